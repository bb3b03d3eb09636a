package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	httpAdapter "github.com/iho/gameledger/internal/adapter/http"
	"github.com/iho/gameledger/internal/adapter/http/handler"
	redisRepo "github.com/iho/gameledger/internal/adapter/repository/redis"
	"github.com/iho/gameledger/internal/infrastructure/config"
	"github.com/iho/gameledger/internal/infrastructure/eventpublisher"
	"github.com/iho/gameledger/internal/infrastructure/metrics"
	"github.com/iho/gameledger/internal/infrastructure/postgres"
	"github.com/iho/gameledger/internal/infrastructure/redis"
)

// Runtime is a Container connected to PostgreSQL, Redis and the event sink.
type Runtime struct {
	*Container

	Pool     *pgxpool.Pool
	Redis    *goredis.Client
	Registry *prometheus.Registry

	closers []func() error
}

// Open connects every backing service and builds the Container.
func Open(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Runtime, error) {
	rt := &Runtime{Registry: prometheus.NewRegistry()}
	rt.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if cfg.MigrateOnStart {
		if err := postgres.RunMigrations(cfg.DatabaseURL, log); err != nil {
			return nil, err
		}
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.DatabaseTimeout)
	defer cancel()

	pool, err := postgres.NewPool(connectCtx, cfg.DatabaseURL, cfg.DatabaseMaxConns, cfg.DatabaseMinConns)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	rt.Pool = pool
	rt.closers = append(rt.closers, func() error { pool.Close(); return nil })
	log.Info().Msg("connected to postgres")

	m := metrics.New(rt.Registry)

	client, err := redis.NewClient(connectCtx, cfg.RedisURL, m)
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	rt.Redis = client
	rt.closers = append(rt.closers, client.Close)
	log.Info().Msg("connected to redis")

	var publisher eventpublisher.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		kp := eventpublisher.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		rt.closers = append(rt.closers, kp.Close)
		publisher = kp
		log.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("publishing events to kafka")
	} else {
		publisher = eventpublisher.NewLogPublisher(log)
		log.Warn().Msg("no kafka brokers configured, logging events instead")
	}

	container := Build(Options{
		Config:  cfg,
		Logger:  log,
		Metrics: m,
		Repos:   PostgresRepositories(pool),
		Locker:  redisRepo.NewLocker(client),
		Queue: redisRepo.NewQueue(client, redisRepo.QueueConfig{
			Attempts:  cfg.JobAttempts,
			Backoff:   cfg.JobBackoff,
			Retention: cfg.JobRetention,
			Lease:     cfg.JobLease,
		}),
		Publisher: publisher,
	})

	rt.Container = container
	return rt, nil
}

// OpsServer returns the health and metrics server.
func (rt *Runtime) OpsServer() *http.Server {
	router := httpAdapter.NewRouter(httpAdapter.RouterConfig{
		Health: handler.NewHealthHandler(
			handler.Check{Name: "postgres", Pinger: rt.Pool},
			handler.Check{Name: "redis", Pinger: handler.RedisPinger(rt.Redis)},
		),
		Gatherer: rt.Registry,
		Metrics:  rt.Metrics,
		Logger:   rt.Logger,
	})
	return &http.Server{
		Addr:              ":" + rt.Config.OpsHTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Close releases every connection in reverse order of opening.
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
