package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"fidelity/config"
	"fidelity/dep"
	"fidelity/dispatch"
	"fidelity/handler"
	"fidelity/middleware"
	"fidelity/pkg/logutil"
	"fidelity/pkg/mq"
	"fidelity/pkg/router"
	"fidelity/pkg/service"
	"fidelity/repo"
	"fidelity/tracking"
)

type server struct {
	ctx context.Context
	opt *config.Option
	cfg *config.Config

	baseRepo          repo.BaseRepo
	baseCache         repo.BaseCache
	campaignRepo      repo.CampaignRepo
	deliveryRepo      repo.DeliveryRepo
	trackingEventRepo repo.TrackingEventRepo
	quotaRepo         repo.QuotaRepo
	customerRepo      repo.CustomerRepo

	emailService dep.EmailService
	producer     *mq.Producer
	consumer     *mq.Consumer

	dispatcher *dispatch.Dispatcher

	// api handlers
	campaignHandler handler.CampaignHandler
	segmentHandler  handler.SegmentHandler
	quotaHandler    handler.QuotaHandler
	trackingHandler *handler.TrackingHandler
}

func main() {
	s := new(server)
	if err := service.Run(s); err != nil {
		log.Fatal().Msg(err.Error())
	}
}

func (s *server) Init() error {
	opt := config.NewOptions()

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		opt.LogLevel = logLevel
	}

	if configPath := os.Getenv("CONFIG_PATH"); configPath != "" {
		opt.ConfigPath = configPath
	}

	if serverPort := os.Getenv("PORT"); serverPort != "" {
		if port, err := strconv.Atoi(serverPort); err == nil {
			opt.Port = port
		}
	}

	s.opt = opt

	return nil
}

func (s *server) Start() error {
	var err error

	// ====== init logger ===== //

	s.ctx = logutil.InitZeroLog(context.Background(), s.opt.LogLevel)

	// ===== init config ===== //

	s.cfg = config.NewConfig()
	if err = s.cfg.Load(s.ctx, s.opt.ConfigPath); err != nil {
		log.Ctx(s.ctx).Error().Msgf("load config failed, err: %v", err)
		return err
	}

	// ===== init repos ===== //

	s.baseRepo, err = repo.NewBaseRepo(s.ctx, s.cfg.MetadataDB)
	if err != nil {
		log.Ctx(s.ctx).Error().Msgf("init base repo failed, err: %v", err)
		return err
	}
	defer func() {
		if err != nil && s.baseRepo != nil {
			if err := s.baseRepo.Close(s.ctx); err != nil {
				log.Ctx(s.ctx).Error().Msgf("close base repo failed, err: %v", err)
				return
			}
		}
	}()

	s.baseCache = repo.NewBaseCache(s.ctx)

	s.campaignRepo, err = repo.NewCampaignRepo(s.ctx, s.cfg.MetadataDB)
	if err != nil {
		log.Ctx(s.ctx).Error().Msgf("init campaign repo failed, err: %v", err)
		return err
	}
	defer func() {
		if err != nil && s.campaignRepo != nil {
			if err := s.campaignRepo.Close(s.ctx); err != nil {
				log.Ctx(s.ctx).Error().Msgf("close campaign repo failed, err: %v", err)
				return
			}
		}
	}()

	s.deliveryRepo = repo.NewDeliveryRepo(s.ctx, s.baseRepo)
	s.trackingEventRepo = repo.NewTrackingEventRepo(s.ctx, s.baseRepo)

	s.quotaRepo, err = repo.NewQuotaRepo(s.ctx, s.cfg.MetadataDB)
	if err != nil {
		log.Ctx(s.ctx).Error().Msgf("init quota repo failed, err: %v", err)
		return err
	}
	defer func() {
		if err != nil && s.quotaRepo != nil {
			if err := s.quotaRepo.Close(s.ctx); err != nil {
				log.Ctx(s.ctx).Error().Msgf("close quota repo failed, err: %v", err)
				return
			}
		}
	}()

	s.customerRepo, err = repo.NewCustomerRepo(s.ctx, s.cfg.MetadataDB, s.baseCache)
	if err != nil {
		log.Ctx(s.ctx).Error().Msgf("init customer repo failed, err: %v", err)
		return err
	}
	defer func() {
		if err != nil && s.customerRepo != nil {
			if err := s.customerRepo.Close(s.ctx); err != nil {
				log.Ctx(s.ctx).Error().Msgf("close customer repo failed, err: %v", err)
				return
			}
		}
	}()

	// ===== init email transport ===== //

	s.emailService, err = dep.NewEmailService(s.ctx, s.cfg.Brevo, s.cfg.Dispatch.MaxSendRetries)
	if err != nil {
		log.Ctx(s.ctx).Error().Msgf("init email service failed, err: %v", err)
		return err
	}

	// ===== init dispatch engine ===== //

	codec, err := tracking.NewCodec(s.cfg.Tracking.Secret)
	if err != nil {
		log.Ctx(s.ctx).Error().Msgf("init tracking codec failed, err: %v", err)
		return err
	}

	var (
		rewriter     = tracking.NewRewriter(codec, s.cfg.Tracking.BaseURL)
		classifier   = dispatch.NewClassifier(s.cfg.Segments)
		resolver     = dispatch.NewSegmentResolver(s.customerRepo, classifier)
		personalizer = dispatch.NewPersonalizer(s.cfg.Personalize, classifier)
		quotaGuard   = dispatch.NewQuotaGuard(s.quotaRepo, s.cfg.Quota)
		stats        = dispatch.NewStatsAggregator(s.campaignRepo, s.deliveryRepo, s.trackingEventRepo)
	)

	s.dispatcher = dispatch.NewDispatcher(
		s.campaignRepo,
		s.deliveryRepo,
		resolver,
		personalizer,
		rewriter,
		quotaGuard,
		stats,
		s.emailService,
		s.cfg.Sender,
		s.cfg.Dispatch,
	)

	// ===== init mq ===== //

	s.producer, err = mq.NewProducer(s.ctx, mq.ProducerConfig{
		Brokers: s.cfg.DispatchMQ.Brokers,
		Topics: map[uint32]string{
			uint32(mq.PayloadDispatchCampaign): s.cfg.DispatchMQ.DispatchTopic,
		},
	})
	if err != nil {
		log.Ctx(s.ctx).Error().Msgf("init producer failed, err: %v", err)
		return err
	}

	mq.RegisterHandler(mq.PayloadDispatchCampaign, func(ctx context.Context, msg *mq.Message) error {
		m := new(mq.DispatchCampaign)
		if err := msg.ParseBody(m); err != nil {
			return err
		}

		res, err := s.dispatcher.Dispatch(ctx, m.GetCampaignID(), m.GetResend())
		if err != nil {
			log.Ctx(ctx).Error().Msgf("dispatch campaign failed, campaign_id: %d, err: %v", m.GetCampaignID(), err)
			return err
		}

		log.Ctx(ctx).Info().Msgf("campaign dispatched, campaign_id: %d, sent: %d, failed: %d, skipped: %d",
			m.GetCampaignID(), res.TotalSent, res.TotalFailed, res.TotalSkipped)

		return nil
	})

	s.consumer, err = mq.NewConsumer(s.ctx, mq.ConsumerConfig{
		Brokers:       s.cfg.DispatchMQ.Brokers,
		Topic:         s.cfg.DispatchMQ.DispatchTopic,
		ConsumerGroup: s.cfg.DispatchMQ.ConsumerGroup,
		InitialOffset: s.cfg.DispatchMQ.InitialOffset,
	})
	if err != nil {
		log.Ctx(s.ctx).Error().Msgf("init consumer failed, err: %v", err)
		return err
	}

	// ===== init handlers ===== //

	s.campaignHandler = handler.NewCampaignHandler(s.cfg, s.campaignRepo, s.deliveryRepo, s.dispatcher, stats, s.producer)
	s.segmentHandler = handler.NewSegmentHandler(resolver)
	s.quotaHandler = handler.NewQuotaHandler(quotaGuard)
	s.trackingHandler = handler.NewTrackingHandler(codec, s.trackingEventRepo)

	// ===== start server ===== //

	go func() {
		addr := fmt.Sprintf(":%d", s.opt.Port)

		log.Info().Msgf("starting HTTP server at %s", addr)

		httpServer := &http.Server{
			BaseContext: func(_ net.Listener) context.Context {
				return s.ctx
			},
			Addr:    addr,
			Handler: middleware.Log(cors.AllowAll().Handler(s.registerRoutes())),
		}
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Msgf("fail to start HTTP server, err: %v", err)
		}
	}()

	return nil
}

func (s *server) Stop() error {
	if s.consumer != nil {
		if err := s.consumer.Close(); err != nil {
			log.Ctx(s.ctx).Error().Msgf("close consumer failed, err: %v", err)
			return err
		}
	}

	if s.producer != nil {
		if err := s.producer.Close(); err != nil {
			log.Ctx(s.ctx).Error().Msgf("close producer failed, err: %v", err)
			return err
		}
	}

	if s.emailService != nil {
		if err := s.emailService.Close(s.ctx); err != nil {
			log.Ctx(s.ctx).Error().Msgf("close email service failed, err: %v", err)
			return err
		}
	}

	if s.campaignRepo != nil {
		if err := s.campaignRepo.Close(s.ctx); err != nil {
			log.Ctx(s.ctx).Error().Msgf("close campaign repo failed, err: %v", err)
			return err
		}
	}

	if s.quotaRepo != nil {
		if err := s.quotaRepo.Close(s.ctx); err != nil {
			log.Ctx(s.ctx).Error().Msgf("close quota repo failed, err: %v", err)
			return err
		}
	}

	if s.customerRepo != nil {
		if err := s.customerRepo.Close(s.ctx); err != nil {
			log.Ctx(s.ctx).Error().Msgf("close customer repo failed, err: %v", err)
			return err
		}
	}

	if s.baseRepo != nil {
		if err := s.baseRepo.Close(s.ctx); err != nil {
			log.Ctx(s.ctx).Error().Msgf("close base repo failed, err: %v", err)
			return err
		}
	}

	if s.baseCache != nil {
		if err := s.baseCache.Close(s.ctx); err != nil {
			log.Ctx(s.ctx).Error().Msgf("close base cache failed, err: %v", err)
			return err
		}
	}

	return nil
}

type HealthCheckRequest struct{}

type HealthCheckResponse struct{}

func (s *server) registerRoutes() http.Handler {
	r := &router.HttpRouter{
		Router: mux.NewRouter(),
	}

	r.RegisterHttpRoute(&router.HttpRoute{
		Path:   config.PathHealthCheck,
		Method: http.MethodGet,
		Handler: router.Handler{
			Req: new(HealthCheckRequest),
			Res: new(HealthCheckResponse),
			HandleFunc: func(ctx context.Context, req, res interface{}) error {
				return nil
			},
		},
	})

	// create_campaign
	r.RegisterHttpRoute(&router.HttpRoute{
		Path:   config.PathCreateCampaign,
		Method: http.MethodPost,
		Handler: router.Handler{
			Req: new(handler.CreateCampaignRequest),
			Res: new(handler.CreateCampaignResponse),
			HandleFunc: func(ctx context.Context, req, res interface{}) error {
				return s.campaignHandler.CreateCampaign(ctx, req.(*handler.CreateCampaignRequest), res.(*handler.CreateCampaignResponse))
			},
		},
	})

	// update_campaign
	r.RegisterHttpRoute(&router.HttpRoute{
		Path:   config.PathUpdateCampaign,
		Method: http.MethodPost,
		Handler: router.Handler{
			Req: new(handler.UpdateCampaignRequest),
			Res: new(handler.UpdateCampaignResponse),
			HandleFunc: func(ctx context.Context, req, res interface{}) error {
				return s.campaignHandler.UpdateCampaign(ctx, req.(*handler.UpdateCampaignRequest), res.(*handler.UpdateCampaignResponse))
			},
		},
	})

	// get_campaign
	r.RegisterHttpRoute(&router.HttpRoute{
		Path:   config.PathGetCampaign,
		Method: http.MethodGet,
		Handler: router.Handler{
			Req: new(handler.GetCampaignRequest),
			Res: new(handler.GetCampaignResponse),
			HandleFunc: func(ctx context.Context, req, res interface{}) error {
				return s.campaignHandler.GetCampaign(ctx, req.(*handler.GetCampaignRequest), res.(*handler.GetCampaignResponse))
			},
		},
	})

	// get_campaigns
	r.RegisterHttpRoute(&router.HttpRoute{
		Path:   config.PathGetCampaigns,
		Method: http.MethodPost,
		Handler: router.Handler{
			Req: new(handler.GetCampaignsRequest),
			Res: new(handler.GetCampaignsResponse),
			HandleFunc: func(ctx context.Context, req, res interface{}) error {
				return s.campaignHandler.GetCampaigns(ctx, req.(*handler.GetCampaignsRequest), res.(*handler.GetCampaignsResponse))
			},
		},
	})

	// get_campaign_stats
	r.RegisterHttpRoute(&router.HttpRoute{
		Path:   config.PathGetCampaignStats,
		Method: http.MethodGet,
		Handler: router.Handler{
			Req: new(handler.GetCampaignStatsRequest),
			Res: new(handler.GetCampaignStatsResponse),
			HandleFunc: func(ctx context.Context, req, res interface{}) error {
				return s.campaignHandler.GetCampaignStats(ctx, req.(*handler.GetCampaignStatsRequest), res.(*handler.GetCampaignStatsResponse))
			},
		},
	})

	// send_campaign
	r.RegisterHttpRoute(&router.HttpRoute{
		Path:   config.PathSendCampaign,
		Method: http.MethodPost,
		Handler: router.Handler{
			Req: new(handler.SendCampaignRequest),
			Res: new(handler.SendCampaignResponse),
			HandleFunc: func(ctx context.Context, req, res interface{}) error {
				return s.campaignHandler.SendCampaign(ctx, req.(*handler.SendCampaignRequest), res.(*handler.SendCampaignResponse))
			},
		},
	})

	// resend_campaign
	r.RegisterHttpRoute(&router.HttpRoute{
		Path:   config.PathResendCampaign,
		Method: http.MethodPost,
		Handler: router.Handler{
			Req: new(handler.ResendCampaignRequest),
			Res: new(handler.ResendCampaignResponse),
			HandleFunc: func(ctx context.Context, req, res interface{}) error {
				return s.campaignHandler.ResendCampaign(ctx, req.(*handler.ResendCampaignRequest), res.(*handler.ResendCampaignResponse))
			},
		},
	})

	// pause_campaign
	r.RegisterHttpRoute(&router.HttpRoute{
		Path:   config.PathPauseCampaign,
		Method: http.MethodPost,
		Handler: router.Handler{
			Req: new(handler.PauseCampaignRequest),
			Res: new(handler.PauseCampaignResponse),
			HandleFunc: func(ctx context.Context, req, res interface{}) error {
				return s.campaignHandler.PauseCampaign(ctx, req.(*handler.PauseCampaignRequest), res.(*handler.PauseCampaignResponse))
			},
		},
	})

	// resume_campaign
	r.RegisterHttpRoute(&router.HttpRoute{
		Path:   config.PathResumeCampaign,
		Method: http.MethodPost,
		Handler: router.Handler{
			Req: new(handler.ResumeCampaignRequest),
			Res: new(handler.ResumeCampaignResponse),
			HandleFunc: func(ctx context.Context, req, res interface{}) error {
				return s.campaignHandler.ResumeCampaign(ctx, req.(*handler.ResumeCampaignRequest), res.(*handler.ResumeCampaignResponse))
			},
		},
	})

	// cancel_campaign
	r.RegisterHttpRoute(&router.HttpRoute{
		Path:   config.PathCancelCampaign,
		Method: http.MethodPost,
		Handler: router.Handler{
			Req: new(handler.CancelCampaignRequest),
			Res: new(handler.CancelCampaignResponse),
			HandleFunc: func(ctx context.Context, req, res interface{}) error {
				return s.campaignHandler.CancelCampaign(ctx, req.(*handler.CancelCampaignRequest), res.(*handler.CancelCampaignResponse))
			},
		},
	})

	// send_test_email
	r.RegisterHttpRoute(&router.HttpRoute{
		Path:   config.PathSendTestEmail,
		Method: http.MethodPost,
		Handler: router.Handler{
			Req: new(handler.SendTestEmailRequest),
			Res: new(handler.SendTestEmailResponse),
			HandleFunc: func(ctx context.Context, req, res interface{}) error {
				return s.campaignHandler.SendTestEmail(ctx, req.(*handler.SendTestEmailRequest), res.(*handler.SendTestEmailResponse))
			},
		},
	})

	// recompute_campaign_stats
	r.RegisterHttpRoute(&router.HttpRoute{
		Path:   config.PathRecomputeStats,
		Method: http.MethodPost,
		Handler: router.Handler{
			Req: new(handler.RecomputeCampaignStatsRequest),
			Res: new(handler.RecomputeCampaignStatsResponse),
			HandleFunc: func(ctx context.Context, req, res interface{}) error {
				return s.campaignHandler.RecomputeCampaignStats(ctx, req.(*handler.RecomputeCampaignStatsRequest), res.(*handler.RecomputeCampaignStatsResponse))
			},
		},
	})

	// preview_audience
	r.RegisterHttpRoute(&router.HttpRoute{
		Path:   config.PathPreviewAudience,
		Method: http.MethodPost,
		Handler: router.Handler{
			Req: new(handler.PreviewAudienceRequest),
			Res: new(handler.PreviewAudienceResponse),
			HandleFunc: func(ctx context.Context, req, res interface{}) error {
				return s.segmentHandler.PreviewAudience(ctx, req.(*handler.PreviewAudienceRequest), res.(*handler.PreviewAudienceResponse))
			},
		},
	})

	// count_audience
	r.RegisterHttpRoute(&router.HttpRoute{
		Path:   config.PathCountAudience,
		Method: http.MethodPost,
		Handler: router.Handler{
			Req: new(handler.CountAudienceRequest),
			Res: new(handler.CountAudienceResponse),
			HandleFunc: func(ctx context.Context, req, res interface{}) error {
				return s.segmentHandler.CountAudience(ctx, req.(*handler.CountAudienceRequest), res.(*handler.CountAudienceResponse))
			},
		},
	})

	// get_quota_usage
	r.RegisterHttpRoute(&router.HttpRoute{
		Path:   config.PathGetQuotaUsage,
		Method: http.MethodGet,
		Handler: router.Handler{
			Req: new(handler.GetQuotaUsageRequest),
			Res: new(handler.GetQuotaUsageResponse),
			HandleFunc: func(ctx context.Context, req, res interface{}) error {
				return s.quotaHandler.GetQuotaUsage(ctx, req.(*handler.GetQuotaUsageRequest), res.(*handler.GetQuotaUsageResponse))
			},
		},
	})

	// tracking endpoints respond with a pixel and a redirect, not the
	// JSON envelope
	r.RegisterRawRoute(http.MethodGet, config.PathTrackingPixel, s.trackingHandler.Pixel)
	r.RegisterRawRoute(http.MethodGet, config.PathTrackingClick, s.trackingHandler.Click)

	return r
}
