package cmd

import (
	"context"
	"errors"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/nainya/contentver/internal/app"
	"github.com/nainya/contentver/internal/server"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the observability server and the scheduled outbox replay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return opts.withApp(cmd, func(_ context.Context, a *app.App) error {
				ln, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(a.Config.Telemetry.MetricsPort)))
				if err != nil {
					return err
				}
				return serve(ctx, a, ln)
			})
		},
	}
}

// serve runs until ctx is done, then shuts everything down
func serve(ctx context.Context, a *app.App, ln net.Listener) error {
	log := a.Logger.Component("serve")
	a.Logger.LogServerStart(ln.Addr().(*net.TCPAddr).Port, a.Config.Store.Backend)

	go a.Metrics.RunUptime(ctx, 10*time.Second)

	var scheduler *cron.Cron
	if a.Outbox != nil {
		cl := cronLogger{log: log}
		scheduler = cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		)
		_, err := scheduler.AddFunc(a.Config.Outbox.ReplaySchedule, func() {
			stats, err := a.ReplayOutbox(ctx)
			event := log.Debug()
			if err != nil {
				event = log.Warn().Err(err)
			}
			event.Int("saved", stats.Saved).
				Int("discarded", stats.Discarded).
				Int("remaining", stats.Remaining).
				Msg("Outbox replay finished")
		})
		if err != nil {
			ln.Close()
			return err
		}
		scheduler.Start()
	}

	obs := server.NewObservabilityServer(0, a.Registry, a.Ready, log)
	errCh := make(chan error, 1)
	go func() { errCh <- obs.Serve(ln) }()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	a.Logger.LogServerShutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if scheduler != nil {
		select {
		case <-scheduler.Stop().Done():
		case <-shutdownCtx.Done():
		}
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		serveErr = errors.Join(serveErr, err)
	}
	return serveErr
}

// cronLogger routes cron's logging into zerolog
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
