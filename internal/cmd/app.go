package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/telhawk-systems/feedgen/common/logging"
	"github.com/telhawk-systems/feedgen/common/middleware"
	natsclient "github.com/telhawk-systems/feedgen/common/messaging/nats"
	"github.com/telhawk-systems/feedgen/internal/classifier"
	"github.com/telhawk-systems/feedgen/internal/config"
	"github.com/telhawk-systems/feedgen/internal/handlers"
	"github.com/telhawk-systems/feedgen/internal/ingester"
	"github.com/telhawk-systems/feedgen/internal/jetstream"
	"github.com/telhawk-systems/feedgen/internal/poller"
	"github.com/telhawk-systems/feedgen/internal/ratelimit"
	"github.com/telhawk-systems/feedgen/internal/repository"
	"github.com/telhawk-systems/feedgen/internal/server"
	"github.com/telhawk-systems/feedgen/internal/sink"
)

// app owns the shared resources of one process.
type app struct {
	cfg    *config.Config
	logger *logging.Logger

	store repository.EventStore
	pg    *repository.PostgresEventStore
	redis *redis.Client
	nats  *natsclient.Client
}

func newApp(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	switch cfg.Store.Backend {
	case config.BackendMemory:
		a.store = repository.NewMemoryEventStore()
		logger.Warn("using in-memory store; events are lost on exit")
	default:
		connString := cfg.Database.ConnString()
		if cfg.Database.AutoMigrate {
			changed, err := repository.Migrate(connString, repository.MigrateUp)
			if err != nil {
				return nil, err
			}
			logger.Info("database migrations completed", slog.Bool("changed", changed))
		}

		pc := repository.DefaultPoolConfig()
		if cfg.Database.MaxConns > 0 {
			pc.MaxConns = cfg.Database.MaxConns
		}
		if cfg.Database.MinConns > 0 {
			pc.MinConns = cfg.Database.MinConns
		}
		pg, err := repository.NewPostgresEventStoreWithPool(ctx, connString, pc)
		if err != nil {
			return nil, err
		}
		a.pg = pg
		a.store = pg
		logger.Info("connected to database", slog.String("db", pg.Describe()))
	}

	return a, nil
}

func (a *app) Close() {
	if a.nats != nil {
		if err := a.nats.Drain(); err != nil {
			a.logger.Warn("nats drain failed", logging.Error(err))
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
}

func (a *app) redisClient(ctx context.Context) (*redis.Client, error) {
	if a.redis != nil {
		return a.redis, nil
	}
	opt, err := redis.ParseURL(a.cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	a.redis = client
	return client, nil
}

func (a *app) natsClient() (*natsclient.Client, error) {
	if a.nats != nil {
		return a.nats, nil
	}
	nc := a.cfg.NATS
	client, err := natsclient.NewClient(natsclient.Config{
		URL:           nc.URL,
		Name:          nc.Name,
		MaxReconnects: nc.MaxReconnects,
		ReconnectWait: nc.ReconnectWait,
		Timeout:       nc.Timeout,
		Username:      nc.Username,
		Password:      nc.Password,
		Token:         nc.Token,
	}, a.logger.WithComponent("nats").Logger)
	if err != nil {
		return nil, err
	}
	a.nats = client
	return client, nil
}

func (a *app) checkpoints(ctx context.Context) (repository.CheckpointStore, error) {
	switch a.cfg.Poller.Checkpoint {
	case config.BackendPostgres:
		if a.pg == nil {
			return nil, errors.New("postgres checkpoints need the postgres store")
		}
		return repository.NewPostgresCheckpointStore(a.pg.Pool()), nil
	case config.BackendRedis:
		client, err := a.redisClient(ctx)
		if err != nil {
			return nil, err
		}
		return repository.NewRedisCheckpointStore(client, ""), nil
	case config.BackendMemory:
		return repository.NewMemoryCheckpointStore(), nil
	default:
		return repository.NoopCheckpointStore{}, nil
	}
}

func (a *app) classifier() classifier.Classifier {
	cc := a.cfg.Classifier
	switch cc.Type {
	case config.ClassifierKeyword:
		return classifier.NewKeyword(cc.Keywords, cc.Languages)
	case config.ClassifierHTTP:
		return classifier.NewHTTP(cc.URL, cc.Timeout)
	default:
		return classifier.AcceptAll{}
	}
}

func (a *app) sink() (sink.Sink, error) {
	var sinks sink.Multi
	for _, t := range a.cfg.Sink.Types {
		switch t {
		case config.SinkLog:
			sinks = append(sinks, sink.NewLog(a.logger))
		case config.SinkNATS:
			client, err := a.natsClient()
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, sink.NewNATS(client, a.cfg.Sink.Subject, a.cfg.Sink.PerCollection))
		default:
			return nil, fmt.Errorf("unknown sink %q", t)
		}
	}
	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return sinks, nil
}

func (a *app) limiter(ctx context.Context) (ratelimit.RateLimiter, error) {
	rc := a.cfg.RateLimit
	if !rc.Enabled {
		return &ratelimit.NoOpRateLimiter{}, nil
	}
	client, err := a.redisClient(ctx)
	if err != nil {
		return nil, err
	}
	return ratelimit.NewWithClient(client, rc.Requests, rc.Window), nil
}

func (a *app) ingester() *ingester.Ingester {
	jc := a.cfg.Jetstream
	dialer := jetstream.NewWebsocketDialer()
	dialer.MaxMessageSize = jc.MaxMessageSize

	return ingester.New(ingester.Config{
		URL:         jc.URL,
		Collections: jc.Collections,
		WantedDIDs:  jc.WantedDIDs,
		Lookback:    jc.Lookback,
		BackoffBase: jc.BackoffBase,
		BackoffCap:  jc.BackoffCap,
	}, a.store, dialer, a.logger)
}

func (a *app) poller(ctx context.Context) (*poller.Poller, error) {
	pc := a.cfg.Poller
	policy, err := poller.ParseStartPolicy(pc.StartPolicy)
	if err != nil {
		return nil, err
	}
	checkpoints, err := a.checkpoints(ctx)
	if err != nil {
		return nil, err
	}
	s, err := a.sink()
	if err != nil {
		return nil, err
	}

	return poller.New(poller.Config{
		Collection:   a.cfg.Jetstream.Collection(),
		BatchLimit:   pc.BatchLimit,
		PollInterval: pc.Interval,
		StartPolicy:  policy,
		Consumer:     pc.Consumer,
		BackoffBase:  pc.BackoffBase,
		BackoffCap:   pc.BackoffCap,
	}, a.store, checkpoints, a.classifier(), s, a.logger)
}

func (a *app) httpServer(ctx context.Context) (*http.Server, error) {
	limiter, err := a.limiter(ctx)
	if err != nil {
		return nil, err
	}

	h := handlers.NewHandler(a.store, a.cfg.Jetstream.Collection(), a.logger)
	router := server.NewRouter(h, server.Options{
		CORS: middleware.CORSConfig{
			AllowedOrigins: a.cfg.CORS.AllowedOrigins,
			MaxAge:         a.cfg.CORS.MaxAge,
		},
		Limiter: limiter,
		Logger:  a.logger,
	})

	sc := a.cfg.Server
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", sc.Port),
		Handler:      router,
		ReadTimeout:  sc.ReadTimeout,
		WriteTimeout: sc.WriteTimeout,
		IdleTimeout:  sc.IdleTimeout,
	}, nil
}

// serveHTTP serves until ctx is cancelled, then shuts down within timeout.
func serveHTTP(ctx context.Context, srv *http.Server, timeout time.Duration, logger *logging.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("read API listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server stopped gracefully")
	return nil
}
