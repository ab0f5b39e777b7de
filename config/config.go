package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
)

type Config struct {
	MetadataDB  MySQL       `json:"metadata_db"`
	DispatchMQ  Kafka       `json:"dispatch_mq"`
	Brevo       Brevo       `json:"brevo"`
	Sender      Sender      `json:"sender"`
	Tracking    Tracking    `json:"tracking"`
	Quota       Quota       `json:"quota"`
	Dispatch    Dispatch    `json:"dispatch"`
	Segments    Segments    `json:"segments"`
	Personalize Personalize `json:"personalize"`
	TestEmails  []string    `json:"test_emails"`
}

type MySQL struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
}

func (mysql *MySQL) ToDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true", mysql.Username, mysql.Password, mysql.Host, mysql.Port, mysql.Database)
}

type Kafka struct {
	Brokers       []string `json:"brokers"`
	DispatchTopic string   `json:"dispatch_topic"`
	ConsumerGroup string   `json:"consumer_group"`
	InitialOffset string   `json:"initial_offset"`
}

type Brevo struct {
	APIKey string `json:"api_key"`
}

type Sender struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	ReplyTo string `json:"reply_to"`
}

type Tracking struct {
	// BaseURL is the public root the email client reaches, e.g. https://track.example.com
	BaseURL string `json:"base_url"`
	// Secret seals tracking tokens, 32 bytes after base64 decode
	Secret string `json:"secret"`
}

type Quota struct {
	DailyLimit   uint64  `json:"daily_limit"`
	MonthlyLimit uint64  `json:"monthly_limit"`
	WarningPct   float64 `json:"warning_pct"`
	CriticalPct  float64 `json:"critical_pct"`
}

type Dispatch struct {
	Workers        int `json:"workers"`
	SendIntervalMs int `json:"send_interval_ms"`
	MaxSendRetries int `json:"max_send_retries"`
	// StuckSendingMinutes is how long a sending campaign can go without an
	// update before the due-scan treats it as crashed and re-queues it.
	StuckSendingMinutes int `json:"stuck_sending_minutes"`
}

// Segments holds the audience classification boundaries.
// Boundaries are lower-inclusive, upper-exclusive.
type Segments struct {
	SilverMinPoints   uint64  `json:"silver_min_points"`
	GoldMinPoints     uint64  `json:"gold_min_points"`
	PlatinumMinPoints uint64  `json:"platinum_min_points"`
	MediumMinSpend    float64 `json:"medium_min_spend"`
	HighMinSpend      float64 `json:"high_min_spend"`
	NewCustomerDays   int     `json:"new_customer_days"`
	ActiveDays        int     `json:"active_days"`
}

type Personalize struct {
	DefaultDiscount     string `json:"default_discount"`
	DefaultDiscountCode string `json:"default_discount_code"`
	ExpiryDays          int    `json:"expiry_days"`
}

func NewConfig() *Config {
	return &Config{
		MetadataDB: MySQL{
			Username: "",
			Password: "",
			Host:     "127.0.0.1",
			Port:     3306,
			Database: "fidelity_db",
		},
		DispatchMQ: Kafka{
			Brokers:       []string{"127.0.0.1:9092"},
			DispatchTopic: "dispatch_campaign",
			ConsumerGroup: "fidelity_dispatch",
			InitialOffset: "oldest",
		},
		Brevo: Brevo{
			APIKey: "",
		},
		Sender: Sender{
			Email: "noreply@fidelity.local",
			Name:  "Fidelity",
		},
		Tracking: Tracking{
			BaseURL: "http://127.0.0.1:9090",
			Secret:  "",
		},
		Quota: Quota{
			DailyLimit:   300,
			MonthlyLimit: 9000,
			WarningPct:   80,
			CriticalPct:  95,
		},
		Dispatch: Dispatch{
			Workers:             1,
			SendIntervalMs:      200,
			MaxSendRetries:      2,
			StuckSendingMinutes: 30,
		},
		Segments: Segments{
			SilverMinPoints:   100,
			GoldMinPoints:     300,
			PlatinumMinPoints: 500,
			MediumMinSpend:    50,
			HighMinSpend:      200,
			NewCustomerDays:   30,
			ActiveDays:        60,
		},
		Personalize: Personalize{
			DefaultDiscount:     "20%",
			DefaultDiscountCode: "WELCOME20",
			ExpiryDays:          7,
		},
		TestEmails: []string{},
	}
}

func (c *Config) Load(ctx context.Context, path string) error {
	if path == "" {
		log.Ctx(ctx).Warn().Msgf("empty config file")
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Ctx(ctx).Warn().Msgf("config file does not exist, file path: %s", path)
			return nil
		}
		return err
	}
	defer func(f *os.File) {
		err := f.Close()
		if err != nil {
			log.Ctx(ctx).Error().Msgf("config file close failed, file path: %s", path)
		}
	}(f)

	p := json.NewDecoder(f)
	if err := p.Decode(&c); err != nil {
		return err
	}

	return nil
}
