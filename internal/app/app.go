// Package app wires configuration into a running version engine
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/nainya/contentver/internal/config"
	"github.com/nainya/contentver/internal/events"
	"github.com/nainya/contentver/internal/logger"
	"github.com/nainya/contentver/internal/metrics"
	"github.com/nainya/contentver/internal/telemetry"
	"github.com/nainya/contentver/pkg/diff"
	"github.com/nainya/contentver/pkg/docstore"
	"github.com/nainya/contentver/pkg/docstore/fsstore"
	"github.com/nainya/contentver/pkg/docstore/memstore"
	"github.com/nainya/contentver/pkg/docstore/pgstore"
	"github.com/nainya/contentver/pkg/docstore/redisseq"
	"github.com/nainya/contentver/pkg/docstore/sqlitestore"
	"github.com/nainya/contentver/pkg/outbox"
	"github.com/nainya/contentver/pkg/version"
)

// App holds the wired components. Outbox and Saver are nil when the outbox
// is disabled.
type App struct {
	Config   *config.Config
	Logger   *logger.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Engine   *version.Engine
	Outbox   *outbox.Queue
	Saver    *outbox.FallbackSaver
	Tracing  *telemetry.Provider

	docs    docstore.Store
	pingers []docstore.Pinger
	closers []func() error
	log     zerolog.Logger
}

// New builds the application from cfg. On error, everything opened so far
// is closed.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (a *App, err error) {
	a = &App{
		Config:   cfg,
		Logger:   log,
		Registry: prometheus.NewRegistry(),
		log:      log.Component("app"),
	}
	defer func() {
		if err != nil {
			a.Close()
			a = nil
		}
	}()

	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Metrics = metrics.NewMetrics(a.Registry)

	a.Tracing, err = telemetry.Setup(ctx, telemetry.Settings{
		Endpoint:     cfg.Telemetry.OTLPEndpoint,
		ServiceName:  cfg.Telemetry.ServiceName,
		SamplingRate: cfg.Telemetry.SamplingRate,
	}, log.Component("telemetry"))
	if err != nil {
		return a, err
	}
	a.onClose(func() error { return a.Tracing.Shutdown(context.Background()) })

	mode, err := diff.ParseMode(cfg.Versions.DiffMode)
	if err != nil {
		return a, err
	}

	a.docs, err = a.openStore(ctx, cfg.Store)
	if err != nil {
		return a, err
	}

	opts := []version.Option{
		version.WithCollection(cfg.Store.Collection),
		version.WithLogger(log.Component("version")),
		version.WithRecorder(a.Metrics),
		version.WithTracerProvider(a.Tracing),
		version.WithMaxVersions(cfg.Versions.MaxPerField),
		version.WithOverflowBuffer(cfg.Versions.OverflowBuffer),
		version.WithAsyncRetention(cfg.Versions.AsyncRetention),
		version.WithDiffMode(mode),
	}

	if cfg.Redis.Enabled() {
		seq, err := redisseq.Dial(ctx, redisseq.Options{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return a, fmt.Errorf("connect redis sequencer: %w", err)
		}
		a.onClose(seq.Close)
		a.pingers = append(a.pingers, seq)
		opts = append(opts, version.WithSequencer(seq))
	}

	if cfg.Kafka.Enabled() {
		pub, err := events.NewKafkaPublisher(events.Settings{
			Brokers:  cfg.Kafka.Brokers,
			Topic:    cfg.Kafka.Topic,
			ClientID: cfg.Kafka.ClientID,
		}, log.Component("events"))
		if err != nil {
			return a, err
		}
		a.onClose(pub.Close)
		opts = append(opts, version.WithPublisher(pub))
	}

	a.Engine, err = version.NewEngine(a.docs, opts...)
	if err != nil {
		return a, err
	}
	a.pingers = append(a.pingers, a.Engine)
	a.onClose(func() error {
		a.Engine.Wait()
		return nil
	})

	if cfg.Outbox.Enabled {
		a.Outbox, err = outbox.Open(cfg.Outbox.Dir,
			outbox.WithLogger(log.Component("outbox")),
			outbox.WithRecorder(a.Metrics),
			outbox.WithMaxSegmentSize(int64(cfg.Outbox.MaxSegmentMB)<<20),
		)
		if err != nil {
			return a, err
		}
		a.onClose(a.Outbox.Close)
		a.Saver = outbox.NewFallbackSaver(a.Engine, a.Outbox, log.Component("outbox"))
	}

	a.log.Info().
		Str("backend", cfg.Store.Backend).
		Str("collection", cfg.Store.Collection).
		Bool("redis_sequencer", cfg.Redis.Enabled()).
		Bool("kafka_events", cfg.Kafka.Enabled()).
		Bool("outbox", cfg.Outbox.Enabled).
		Msg("Application initialized")
	return a, nil
}

func (a *App) openStore(ctx context.Context, s config.StoreSettings) (docstore.Store, error) {
	switch s.Backend {
	case config.BackendMemory:
		return memstore.New(), nil

	case config.BackendSQLite:
		st, err := sqlitestore.Open(ctx, s.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		a.onClose(st.Close)
		return st, nil

	case config.BackendPostgres:
		if s.Postgres.MigrateOnStart {
			if err := pgstore.Migrate(s.Postgres.DSN); err != nil {
				return nil, err
			}
		}
		st, err := pgstore.Connect(ctx, s.Postgres.DSN, pgstore.PoolConfig{
			MaxConns:        s.Postgres.MaxConns,
			MinConns:        s.Postgres.MinConns,
			MaxConnLifetime: s.Postgres.MaxConnLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		a.onClose(func() error {
			st.Close()
			return nil
		})
		return st, nil

	case config.BackendFirestore:
		st, err := fsstore.Open(ctx, s.Firestore.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("open firestore store: %w", err)
		}
		a.onClose(st.Close)
		return st, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", s.Backend)
	}
}

// Save records an edit, queueing it in the outbox when the store is
// unavailable and the outbox is enabled
func (a *App) Save(ctx context.Context, req version.SaveRequest) (id string, queued bool, err error) {
	if a.Saver != nil {
		return a.Saver.Save(ctx, req)
	}
	id, err = a.Engine.SaveVersion(ctx, req)
	return id, false, err
}

// ReplayOutbox replays pending saves and compacts the log when anything
// was settled
func (a *App) ReplayOutbox(ctx context.Context) (outbox.ReplayStats, error) {
	if a.Outbox == nil {
		return outbox.ReplayStats{}, nil
	}

	stats, err := a.Outbox.Replay(ctx, a.Engine)
	if stats.Saved+stats.Discarded > 0 {
		if cerr := a.Outbox.Compact(); cerr != nil {
			a.log.Warn().Err(cerr).Msg("Outbox compaction failed")
		}
	}
	return stats, err
}

// Ready pings the document store and the sequencer
func (a *App) Ready(ctx context.Context) error {
	var errs []error
	for _, p := range a.pingers {
		if err := p.Ping(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close releases resources in reverse order of acquisition
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}
