package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/aiox-platform/mailgate/internal/config"
	"github.com/aiox-platform/mailgate/internal/database"
	"github.com/aiox-platform/mailgate/internal/quota"
	iredis "github.com/aiox-platform/mailgate/internal/redis"
	"github.com/aiox-platform/mailgate/internal/store"
)

// storage is the opened key-value backend. redis is set only for the Redis
// backend and also drives the HTTP rate limiter.
type storage struct {
	kv    store.KV
	redis *goredis.Client
	close func()
}

func openStore(ctx context.Context, cfg *config.Config) (*storage, error) {
	switch cfg.Store.Backend {
	case config.BackendPostgres:
		if err := database.RunMigrations(cfg.DB.DSN(), cfg.Store.MigrationsPath); err != nil {
			return nil, err
		}
		pool, err := database.NewPostgresPool(ctx, cfg.DB)
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		kv := store.NewPostgresKV(pool)

		janitorCtx, cancel := context.WithCancel(context.Background())
		go kv.RunJanitor(janitorCtx, cfg.Store.PurgeInterval)

		return &storage{kv: kv, close: func() {
			cancel()
			pool.Close()
		}}, nil
	default:
		client, err := iredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		return &storage{kv: store.NewRedisKV(client), redis: client, close: func() {
			if err := client.Close(); err != nil {
				slog.Warn("closing redis", "error", err)
			}
		}}, nil
	}
}

func newTracker(kv store.KV, qc config.QuotaConfig) (*quota.Tracker, error) {
	loc, err := time.LoadLocation(qc.Timezone)
	if err != nil {
		return nil, fmt.Errorf("quota timezone: %w", err)
	}
	tiers := make(quota.Tiers, len(qc.Tiers))
	for name, l := range qc.Tiers {
		tiers[name] = quota.Limits{Daily: l.Daily, Monthly: l.Monthly}
	}
	return quota.NewTracker(kv, tiers, quota.WithLocation(loc), quota.WithDefaultTier(qc.DefaultTier)), nil
}

// publicConfig is what GET /config reveals. Credentials never appear here.
type publicConfig struct {
	Service        string   `json:"service"`
	Transport      string   `json:"transport"`
	DefaultSender  string   `json:"default_sender,omitempty"`
	DefaultReplyTo []string `json:"default_reply_to,omitempty"`
	Debug          bool     `json:"debug"`
	Pool           bool     `json:"pool"`
	QuotaEnabled   bool     `json:"quota_enabled"`
	StoreBackend   string   `json:"store_backend"`
	EventsEnabled  bool     `json:"events_enabled"`
}

func newPublicConfig(cfg *config.Config, transportInfo string) publicConfig {
	return publicConfig{
		Service:        cfg.Mail.Service,
		Transport:      transportInfo,
		DefaultSender:  cfg.Mail.DefaultSender,
		DefaultReplyTo: cfg.Mail.DefaultReplyTo,
		Debug:          cfg.Mail.Debug,
		Pool:           cfg.Mail.Pool.Enabled,
		QuotaEnabled:   cfg.Quota.Enabled,
		StoreBackend:   cfg.Store.Backend,
		EventsEnabled:  cfg.NATS.Enabled(),
	}
}
