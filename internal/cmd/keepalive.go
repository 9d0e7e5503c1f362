package cmd

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/yourorg/labtrack/internal/session"
)

var keepaliveCmd = &cobra.Command{
	Use:   "keepalive",
	Short: "Hold the session open with periodic silent refreshes",
	Long: `Runs until interrupted, refreshing the session on the configured interval
so long-running station setups stay signed in. With METRICS_ADDR set, a
prometheus endpoint is served at /metrics for the duration.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a.session.CheckAuth(ctx)
		if !a.session.Authenticated() {
			return fmt.Errorf("not logged in; run 'labctl auth login' first")
		}

		if a.cfg.MetricsAddr != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			srv := &http.Server{
				Addr:         a.cfg.MetricsAddr,
				Handler:      mux,
				ReadTimeout:  5 * time.Second,
				WriteTimeout: 5 * time.Second,
			}
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					a.log.Error("metrics listener failed", slog.String("error", err.Error()))
				}
			}()
			defer srv.Close()
			a.log.Info("metrics listening", slog.String("addr", a.cfg.MetricsAddr))
		}

		lost := sessionLost(a.session)
		a.session.StartKeepalive(ctx)
		defer a.session.StopKeepalive()

		fmt.Println("Session keepalive running, Ctrl-C to stop")
		select {
		case <-ctx.Done():
			return nil
		case <-lost:
			return fmt.Errorf("session was lost while keepalive was running")
		}
	},
}

// sessionLost returns a channel closed on the first transition to an
// unauthenticated session, so the command can stop blocking the moment a
// failed refresh forces a logout instead of waiting for an interrupt.
func sessionLost(sess *session.Manager) <-chan struct{} {
	ch := make(chan struct{})
	var once sync.Once
	sess.OnAuthChange(func(authenticated bool) {
		if !authenticated {
			once.Do(func() { close(ch) })
		}
	})
	return ch
}

func init() {
	rootCmd.AddCommand(keepaliveCmd)
}
