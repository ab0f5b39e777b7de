package dep

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"fidelity/config"

	"github.com/cenkalti/backoff/v4"
	brevo "github.com/getbrevo/brevo-go/lib"
)

var (
	sendEmailUrl = "https://api.brevo.com/v3/smtp/email"
)

type brevoResp struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

type Sender struct {
	Email string
	Name  string
}

type SendEmail struct {
	CampaignID uint64
	From       *Sender
	ReplyTo    string
	To         string
	Subject    string
	HtmlBody   string
}

// EmailService is the provider-agnostic transport contract. A send is
// one recipient, the dispatch loop owns batching and pacing.
type EmailService interface {
	SendEmail(ctx context.Context, sendEmail *SendEmail) error
	Close(ctx context.Context) error
}

type emailService struct {
	apiKey     string
	maxRetries uint64
}

func NewEmailService(_ context.Context, cfg config.Brevo, maxRetries int) (EmailService, error) {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &emailService{
		apiKey:     cfg.APIKey,
		maxRetries: uint64(maxRetries),
	}, nil
}

func (s *emailService) SendEmail(ctx context.Context, sendEmail *SendEmail) error {
	body := brevo.SendSmtpEmail{
		Sender: &brevo.SendSmtpEmailSender{
			Email: sendEmail.From.Email,
			Name:  sendEmail.From.Name,
		},
		To:          []brevo.SendSmtpEmailTo{{Email: sendEmail.To}},
		Subject:     sendEmail.Subject,
		HtmlContent: sendEmail.HtmlBody,
		Tags:        []string{fmt.Sprint(sendEmail.CampaignID)},
	}

	if sendEmail.ReplyTo != "" {
		body.ReplyTo = &brevo.SendSmtpEmailReplyTo{
			Email: sendEmail.ReplyTo,
		}
	}

	// retry transient provider hiccups, the dispatch loop records the
	// final outcome per recipient
	op := func() error {
		return s.postHttpRequest(ctx, sendEmailUrl, body)
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), s.maxRetries), ctx)

	return backoff.Retry(op, bo)
}

func (s *emailService) Close(_ context.Context) error {
	return nil
}

func (s *emailService) postHttpRequest(ctx context.Context, url string, body interface{}) error {
	js, err := json.Marshal(body)
	if err != nil {
		return backoff.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(js))
	if err != nil {
		return backoff.Permanent(err)
	}

	req.Header.Add("accept", "application/json")
	req.Header.Add("content-type", "application/json")
	req.Header.Add("api-key", s.apiKey)

	client := &http.Client{Timeout: 30 * time.Second}
	res, err := client.Do(req)
	if err != nil {
		return err
	}

	defer func() {
		_ = res.Body.Close()
	}()

	b, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}

	brevoResp := new(brevoResp)
	if err := json.Unmarshal(b, brevoResp); err != nil {
		return err
	}

	if brevoResp.Message != "" {
		err := fmt.Errorf("encounter brevo error: %s, code: %s", brevoResp.Message, brevoResp.Code)
		if res.StatusCode >= 400 && res.StatusCode < 500 && res.StatusCode != http.StatusTooManyRequests {
			return backoff.Permanent(err)
		}
		return err
	}

	return nil
}
