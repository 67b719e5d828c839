package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/aiox-platform/mailgate/internal/analytics"
	"github.com/aiox-platform/mailgate/internal/api"
	"github.com/aiox-platform/mailgate/internal/attachment"
	"github.com/aiox-platform/mailgate/internal/auth"
	"github.com/aiox-platform/mailgate/internal/bulk"
	"github.com/aiox-platform/mailgate/internal/email"
	"github.com/aiox-platform/mailgate/internal/mail"
	mw "github.com/aiox-platform/mailgate/internal/middleware"
	inats "github.com/aiox-platform/mailgate/internal/nats"
	"github.com/aiox-platform/mailgate/internal/quota"
	"github.com/aiox-platform/mailgate/internal/server"
	"github.com/aiox-platform/mailgate/internal/templates"
	"github.com/aiox-platform/mailgate/internal/transport"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), rt)
		},
	}
}

func runServe(ctx context.Context, rt *runtimeState) error {
	cfg := rt.cfg

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	tr, err := transport.New(ctx, cfg.Mail)
	if err != nil {
		return err
	}
	defer tr.Close()

	verifyCtx, cancel := context.WithTimeout(ctx, cfg.Mail.VerifyTimeout)
	if err := tr.Verify(verifyCtx); err != nil {
		slog.Warn("transport verification failed, sends may fail", "transport", tr.Info(), "error", err)
	} else {
		slog.Info("transport ready", "transport", tr.Info())
	}
	cancel()

	// Quota
	tracker, err := newTracker(st.kv, cfg.Quota)
	if err != nil {
		return err
	}
	enforced := tracker
	if !cfg.Quota.Enabled {
		slog.Warn("quota enforcement disabled")
		enforced = nil
	}

	// Templates and analytics
	tplStore := templates.NewStore(st.kv)
	loc := time.UTC
	if l, err := time.LoadLocation(cfg.Quota.Timezone); err == nil {
		loc = l
	}
	analyticsSvc := analytics.NewService(st.kv, analytics.WithLocation(loc))

	// Events: with NATS configured, sends are published and a consumer
	// folds them into analytics. Without it, analytics are written inline.
	var recorder analytics.Recorder = analyticsSvc
	var natsHealthy func() bool
	if cfg.NATS.Enabled() {
		nc, err := inats.NewClient(ctx, cfg.NATS)
		if err != nil {
			slog.Warn("NATS unavailable, recording analytics inline", "error", err)
		} else {
			defer nc.Close()
			natsHealthy = nc.Healthy
			recorder = analytics.NewBusRecorder(inats.NewPublisher(nc.JetStream()))

			consumerCtx, stop := context.WithCancel(ctx)
			defer stop()
			consumer := analytics.NewConsumer(analyticsSvc, inats.NewConsumerManager(nc.JetStream()))
			go func() {
				if err := consumer.Start(consumerCtx); err != nil {
					slog.Error("analytics consumer stopped", "error", err)
				}
			}()
		}
	}

	// Attachments
	var loaderOpts []attachment.Option
	if cfg.Attachments.S3Region != "" {
		s3Client, err := attachment.NewS3Client(ctx, cfg.Attachments.S3Region)
		if err != nil {
			slog.Warn("s3 attachments disabled", "error", err)
		} else {
			loaderOpts = append(loaderOpts, attachment.WithS3(s3Client))
		}
	}
	loader := attachment.NewLoader(cfg.Attachments, loaderOpts...)

	emailSvc := email.NewService(email.Deps{
		Transport:   tr,
		Tracker:     enforced,
		Templates:   tplStore,
		Attachments: loader,
		Dispatcher:  bulk.NewDispatcher(tplStore, bulk.WithPause(cfg.Bulk.Pause)),
		Recorder:    recorder,
		Defaults:    mail.Defaults{Sender: cfg.Mail.DefaultSender, ReplyTo: cfg.Mail.DefaultReplyTo},
		BatchSize:   cfg.Bulk.BatchSize,
	})

	// Auth
	keys, err := auth.NewKeyStore(cfg.Auth.APIKeys, cfg.Auth.Admins, cfg.Quota.DefaultTier)
	if err != nil {
		return err
	}

	emailHandler := email.NewHandler(emailSvc)
	tplHandler := templates.NewHandler(tplStore)
	analyticsHandler := analytics.NewHandler(analyticsSvc)
	quotaHandler := quota.NewHandler(tracker)

	routerCfg := api.RouterConfig{
		CORSAllowedOrigins: cfg.CORS.AllowedOrigins,
		Store:              st.kv,
		NATSHealthy:        natsHealthy,
		TransportInfo:      tr.Info(),
		Config:             newPublicConfig(cfg, tr.Info()),
	}
	if st.redis != nil {
		routerCfg.RateLimiter = mw.NewRateLimiter(st.redis, "api", cfg.RateLimit.Requests, cfg.RateLimit.WindowSec).Middleware
	} else {
		slog.Info("rate limiting disabled, it requires the redis store backend")
	}

	router := api.NewRouter(routerCfg, api.HandlerSet{
		SendEmail:    emailHandler.Send,
		SendTemplate: emailHandler.SendTemplate,
		SendPremium:  emailHandler.SendPremium,
		SendBulk:     emailHandler.SendBulk,

		ListTemplates:  tplHandler.List,
		CreateTemplate: tplHandler.Create,
		GetTemplate:    tplHandler.Get,
		UpdateTemplate: tplHandler.Update,
		DeleteTemplate: tplHandler.Delete,

		AnalyticsSummary: analyticsHandler.Summary,
		AnalyticsDaily:   analyticsHandler.Daily,
		AnalyticsWeekly:  analyticsHandler.Weekly,
		AnalyticsMonthly: analyticsHandler.Monthly,
		AnalyticsRange:   analyticsHandler.Range,
		ResetAnalytics:   analyticsHandler.Reset,

		GetQuota:   quotaHandler.Get,
		GetUsage:   quotaHandler.GetUsage,
		ResetUsage: quotaHandler.Reset,

		AuthMiddleware:  auth.Middleware(keys),
		AdminMiddleware: auth.RequireAdmin,
	})

	srv := server.New(cfg.Server, router)
	return srv.Start()
}
