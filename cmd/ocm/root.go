package main

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"offboarding/ocm/internal/app"
	"offboarding/ocm/internal/config"
	"offboarding/ocm/internal/obs"
	"offboarding/ocm/internal/session"
)

// runtime is built lazily so that commands like logout work without a backend.
type runtime struct {
	cfg      config.Config
	explicit config.Backend
	jsonOut  bool
	logLevel string

	once     sync.Once
	logger   *zap.Logger
	sessions session.Store
	closers  []func()

	svc *app.Service
}

func (r *runtime) init(ctx context.Context) error {
	var err error
	r.once.Do(func() {
		level := r.logLevel
		if level == "" {
			level = r.cfg.LogLevel
		}
		r.logger, err = obs.NewLogger(level)
		if err != nil {
			return
		}
		var closeSessions func()
		r.sessions, closeSessions, err = app.OpenSessions(ctx, r.cfg, r.logger)
		r.closers = append(r.closers, closeSessions)
	})
	if err == nil && r.sessions == nil {
		err = fmt.Errorf("session store unavailable")
	}
	return err
}

func (r *runtime) service(ctx context.Context) (*app.Service, error) {
	if r.svc != nil {
		return r.svc, nil
	}
	if err := r.init(ctx); err != nil {
		return nil, err
	}
	backend, err := config.NewResolver(r.cfg).Resolve(ctx, r.explicit)
	if err != nil {
		return nil, fmt.Errorf("resolve backend: %w", err)
	}
	svc, cleanup, err := app.Build(r.cfg, backend, r.sessions, r.logger)
	if err != nil {
		return nil, err
	}
	r.closers = append(r.closers, cleanup)
	r.svc = svc
	return svc, nil
}

func (r *runtime) close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if r.closers[i] != nil {
			r.closers[i]()
		}
	}
	r.closers = nil
	if r.logger != nil {
		_ = r.logger.Sync()
	}
}

func newRootCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ocm",
		Short:         "Offboarding case manager",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(*cobra.Command, []string) {
			rt.close()
		},
	}
	flags := cmd.PersistentFlags()
	flags.BoolVar(&rt.jsonOut, "json", false, "print JSON instead of text")
	flags.StringVar(&rt.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&rt.explicit.BaseURL, "supabase-url", "", "backend base URL (persisted)")
	flags.StringVar(&rt.explicit.AnonKey, "anon-key", "", "backend anon key (persisted)")

	cmd.AddCommand(
		newLoginCmd(rt),
		newLogoutCmd(rt),
		newWhoamiCmd(rt),
		newCasesCmd(rt),
		newCaseCmd(rt),
		newTaskCmd(rt),
		newEvidenceCmd(rt),
		newReviewerCmd(rt),
		newAdminCmd(rt),
		newUsersCmd(rt),
		newInviteCmd(rt),
		newDashboardCmd(rt),
		newSearchCmd(rt),
		newExportCmd(rt),
		newArchiveCmd(rt),
	)
	return cmd
}

func execute() {
	rt := &runtime{cfg: config.Load()}
	if err := newRootCmd(rt).Execute(); err != nil {
		rt.close()
		fmt.Fprintln(os.Stderr, formatError(err))
		os.Exit(1)
	}
}
