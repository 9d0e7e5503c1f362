package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/yourorg/labtrack/internal/api"
	"github.com/yourorg/labtrack/internal/infrastructure/logger"
	"github.com/yourorg/labtrack/internal/observability/tracing"
	"github.com/yourorg/labtrack/internal/permission"
	"github.com/yourorg/labtrack/internal/reliability/retry"
	"github.com/yourorg/labtrack/internal/session"
	"github.com/yourorg/labtrack/pkg/config"
)

// app is the explicitly constructed context every command works against.
// One owning scope, created in the root pre-run and torn down in the
// post-run; nothing lives in ambient globals besides the wiring itself.
type app struct {
	cfg             *config.Config
	log             *slog.Logger
	client          *api.Client
	session         *session.Manager
	perms           *permission.Cache
	tracingShutdown func(context.Context) error
}

var a *app

var rootCmd = &cobra.Command{
	Use:           "labctl",
	Short:         "Operator CLI for the laboratory contract-management backend",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initApp(cmd.Context())
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return teardownApp(cmd.Context())
	},
}

// ExecuteContext runs the command tree
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func initApp(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.NewLogger(cfg.LogLevel)
	slog.SetDefault(log)

	shutdown, err := tracing.Init(ctx, log, "labctl", cfg.Environment)
	if err != nil {
		return err
	}

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = cfg.RetryMaxAttempts
	retryCfg.InitialBackoff = cfg.RetryInitialBackoff

	client, err := api.NewClient(api.Options{
		BaseURL:                 cfg.APIBaseURL,
		Timeout:                 cfg.RequestTimeout,
		Logger:                  log,
		RetryConfig:             retryCfg,
		BreakerFailureThreshold: cfg.BreakerFailureThreshold,
	})
	if err != nil {
		return err
	}
	if err := client.LoadSession(cfg.SessionFile); err != nil {
		log.Warn("could not restore saved session", slog.String("error", err.Error()))
	}

	sess := session.NewManager(client, cfg.RefreshInterval, log)
	perms := permission.NewCache(client, log)

	// Permissions are rebuilt from scratch on every authenticated
	// transition and dropped on logout.
	sess.OnAuthChange(func(authenticated bool) {
		if !authenticated {
			perms.Clear()
			return
		}
		loadCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = perms.Load(loadCtx)
	})

	client.SetAuthHooks(api.AuthHooks{
		Refresh:       sess.RefreshSilently,
		Authenticated: sess.Authenticated,
		ForcedLogout:  sess.ForceLogout,
	})

	a = &app{
		cfg:             cfg,
		log:             log,
		client:          client,
		session:         sess,
		perms:           perms,
		tracingShutdown: shutdown,
	}
	return nil
}

func teardownApp(ctx context.Context) error {
	if a == nil {
		return nil
	}
	if err := a.client.SaveSession(a.cfg.SessionFile); err != nil {
		a.log.Warn("could not persist session", slog.String("error", err.Error()))
	}
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	return a.tracingShutdown(flushCtx)
}
