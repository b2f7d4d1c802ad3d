package app

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"offboarding/ocm/internal/config"
	"offboarding/ocm/internal/email"
	"offboarding/ocm/internal/export"
	"offboarding/ocm/internal/gateway"
	"offboarding/ocm/internal/gitrepo"
	"offboarding/ocm/internal/lifecycle"
	"offboarding/ocm/internal/search"
	"offboarding/ocm/internal/session"
	"offboarding/ocm/internal/storage"
	"offboarding/ocm/internal/store"
)

// OpenSessions selects the session backend named by cfg.SessionBackend.
// The returned closer releases any connection it opened.
func OpenSessions(ctx context.Context, cfg config.Config, logger *zap.Logger) (session.Store, func(), error) {
	noop := func() {}
	switch strings.ToLower(strings.TrimSpace(cfg.SessionBackend)) {
	case "", "file":
		return session.NewFileStore(cfg.SessionFile, cfg.SessionPassphrase), noop, nil
	case "redis":
		redisStore, err := session.NewRedisStore(cfg.RedisURL, session.DefaultProfile)
		if err != nil {
			return nil, noop, fmt.Errorf("redis session store: %w", err)
		}
		logger.Info("using redis session store")
		return redisStore, func() { _ = redisStore.Close() }, nil
	case "postgres":
		db, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, noop, err
		}
		applied, err := store.ApplyMigrations(ctx, db, os.DirFS(cfg.MigrationsDir))
		if err != nil {
			_ = db.Close()
			return nil, noop, fmt.Errorf("migrations failed: %w", err)
		}
		logger.Info("using postgres session store", zap.Int("migrations_applied", applied))
		return session.NewPostgresStore(db, session.DefaultProfile), closeDB(db), nil
	default:
		return nil, noop, fmt.Errorf("unknown session backend %q", cfg.SessionBackend)
	}
}

func closeDB(db *sql.DB) func() {
	return func() { _ = db.Close() }
}

// Build assembles a Service from configuration. backend must already be resolved.
// Optional integrations are left nil when unconfigured.
func Build(cfg config.Config, backend config.Backend, sessions session.Store, logger *zap.Logger) (*Service, func(), error) {
	gw, err := gateway.New(gateway.Options{
		BaseURL:        backend.BaseURL,
		AnonKey:        backend.AnonKey,
		Timeout:        cfg.RequestTimeout,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		Logger:         logger.Named("gateway"),
	})
	if err != nil {
		return nil, func() {}, err
	}
	table, err := lifecycle.ByName(cfg.Lifecycle)
	if err != nil {
		return nil, func() {}, err
	}

	var closers []func()
	deps := Dependencies{
		Gateway:   gw,
		Sessions:  sessions,
		Lifecycle: table,
		Exporter:  export.NewService(logger),
		Archive:   gitrepo.New(cfg.ArchiveDir),
		Logger:    logger,
	}

	var index search.Index
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meili := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		closers = append(closers, meili.Close)
		index = meili
	}
	deps.Search = search.NewService(index, gw, logger)

	if strings.TrimSpace(cfg.StorageEndpoint) != "" {
		uploader, err := storage.New(storage.Options{
			Endpoint:  cfg.StorageEndpoint,
			AccessKey: cfg.StorageAccessKey,
			SecretKey: cfg.StorageSecretKey,
			Bucket:    cfg.StorageBucket,
			Region:    cfg.StorageRegion,
			UseSSL:    cfg.StorageUseSSL,
			Logger:    logger,
		})
		if err != nil {
			return nil, func() {}, err
		}
		deps.Attachments = uploader
	}

	mailer := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	}, logger)
	if mailer.IsConfigured() {
		deps.Notifier = mailer
	}

	svc := New(deps)
	cleanup := func() {
		svc.Close()
		for _, closeFn := range closers {
			closeFn()
		}
	}
	return svc, cleanup, nil
}
