package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"fidelity/config"
	"fidelity/dispatch"
	"fidelity/job/recompute_stats"
	"fidelity/job/run_campaigns"
	"fidelity/pkg/logutil"
	"fidelity/pkg/mq"
	"fidelity/pkg/service"
	"fidelity/repo"
)

func main() {
	var (
		opt = config.NewOptions()
		ctx = logutil.InitZeroLog(context.Background(), "DEBUG")
	)

	if configPath := os.Getenv("CONFIG_PATH"); configPath != "" {
		opt.ConfigPath = configPath
	}

	cfg := config.NewConfig()
	if err := cfg.Load(ctx, opt.ConfigPath); err != nil {
		log.Ctx(ctx).Error().Msgf("load config failed: %v", err)
		os.Exit(1)
	}

	// base repo
	baseRepo, err := repo.NewBaseRepo(ctx, cfg.MetadataDB)
	if err != nil {
		log.Ctx(ctx).Error().Msgf("init base repo failed, err: %v", err)
		os.Exit(1)
	}
	defer func() {
		if baseRepo != nil {
			if err := baseRepo.Close(ctx); err != nil {
				log.Ctx(ctx).Error().Msgf("close base repo failed, err: %v", err)
				return
			}
		}
	}()

	// campaign repo
	campaignRepo, err := repo.NewCampaignRepo(ctx, cfg.MetadataDB)
	if err != nil {
		log.Ctx(ctx).Error().Msgf("init campaign repo failed, err: %v", err)
		os.Exit(1)
	}
	defer func() {
		if campaignRepo != nil {
			if err := campaignRepo.Close(ctx); err != nil {
				log.Ctx(ctx).Error().Msgf("close campaign repo failed, err: %v", err)
				return
			}
		}
	}()

	// delivery + tracking event repos
	deliveryRepo := repo.NewDeliveryRepo(ctx, baseRepo)
	trackingEventRepo := repo.NewTrackingEventRepo(ctx, baseRepo)

	// mq producer
	producer, err := mq.NewProducer(ctx, mq.ProducerConfig{
		Brokers: cfg.DispatchMQ.Brokers,
		Topics: map[uint32]string{
			uint32(mq.PayloadDispatchCampaign): cfg.DispatchMQ.DispatchTopic,
		},
	})
	if err != nil {
		log.Ctx(ctx).Error().Msgf("init producer failed, err: %v", err)
		os.Exit(1)
	}
	defer func() {
		if producer != nil {
			if err := producer.Close(); err != nil {
				log.Ctx(ctx).Error().Msgf("close producer failed, err: %v", err)
				return
			}
		}
	}()

	stats := dispatch.NewStatsAggregator(campaignRepo, deliveryRepo, trackingEventRepo)

	jobs := map[string]service.Job{
		"run-campaigns":   run_campaigns.New(campaignRepo, producer, cfg.Dispatch),
		"recompute-stats": recompute_stats.New(campaignRepo, stats),
	}

	if len(os.Args) < 2 {
		fmt.Println("Usage: go run main.go <job_name>")
		os.Exit(1)
	}

	jobName := os.Args[1]
	job, exists := jobs[jobName]
	if !exists {
		log.Ctx(ctx).Error().Msgf("job %s not found", jobName)
		os.Exit(1)
	}

	if err := job.Init(ctx); err != nil {
		log.Ctx(ctx).Error().Msgf("init job err: %v", err)
		os.Exit(1)
	}

	if err := job.Run(ctx); err != nil {
		log.Ctx(ctx).Error().Msgf("run job err: %v", err)
		os.Exit(1)
	}

	if err := job.CleanUp(ctx); err != nil {
		log.Ctx(ctx).Error().Msgf("cleanup job err: %v", err)
		os.Exit(1)
	}

	log.Ctx(ctx).Info().Msg("job executed successfully")
	os.Exit(0)
}
