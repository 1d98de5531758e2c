package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/api"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/appointment"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/clock"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/config"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/db"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/eventbus"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/history"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/identity"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/logging"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/metrics"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/provider"
	redisclient "github.com/JavaTeamPosTech/meu-hospital-microservices/internal/redis"
)

var version = "dev"

func main() {
	logger := logging.New("api-server", "info", "json")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config load error")
	}
	if err := cfg.ValidateAPI(); err != nil {
		logger.Fatal().Err(err).Msg("invalid api config")
	}
	logger = logging.New("api-server", cfg.Log.Level, cfg.Log.Format)

	loc, _ := cfg.Location()
	policy, _ := appointment.ParseOverlapPolicy(cfg.Scheduling.OverlapPolicy)

	logger.Info().
		Str("env", cfg.App.Env).
		Str("http_port", cfg.App.HTTPPort).
		Str("overlap_policy", string(policy)).
		Dur("appointment_duration", cfg.Scheduling.AppointmentDuration).
		Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.Postgres.DSN, db.PoolOptions{
		MaxConns: cfg.Postgres.MaxConns,
		MinConns: cfg.Postgres.MinConns,
	})
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	changed, err := db.ApplyOverlapGuard(rootCtx, pgPool, policy.StorageGuard(cfg.Scheduling.AppointmentDuration))
	if err != nil {
		logger.Fatal().Err(err).Msg("overlap guard does not match scheduling config")
	}
	if changed {
		logger.Info().Str("policy", string(policy)).Msg("overlap guard rebuilt")
	}

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(redisclient.Options{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing redis")
		}
	}()
	logger.Info().Msg("connected to Redis")

	m := metrics.New()
	clk := clock.NewRealClock()

	publisher := eventbus.NewStreamPublisher(rdb, eventbus.PublisherOptions{
		MaxLen: cfg.Streams.MaxLen,
		Buffer: cfg.Streams.PublishBuffer,
	}, logger, m)

	directory := identity.NewClient(identity.ClientOptions{
		BaseURL:        cfg.Identity.BaseURL,
		Secret:         cfg.Identity.Secret,
		Timeout:        cfg.Identity.Timeout,
		MaxRetries:     cfg.Identity.MaxRetries,
		InitialBackoff: cfg.Identity.InitialBackoff,
	}, logger, m)

	txRunner := db.NewTxRunner(pgPool, 3, logger)
	svc := appointment.NewService(appointment.Deps{
		Repo:      appointment.NewPgRepository(pgPool, txRunner),
		Providers: provider.NewPgRepository(pgPool),
		Directory: directory,
		Publisher: publisher,
		Locker:    redisclient.NewRedisLocker(rdb, cfg.Scheduling.LockTTL),
		Clock:     clk,
		Logger:    logger,
		Metrics:   m,
	}, appointment.Options{
		Duration:         cfg.Scheduling.AppointmentDuration,
		Policy:           policy,
		RequireNameMatch: cfg.Scheduling.RequireNameMatch,
		Location:         loc,
		Stream:           cfg.Streams.Appointments,
		LockWait:         cfg.Scheduling.LockWait,
	})

	health := api.NewHealthHandler(cfg.App.Env, version,
		api.Check{Name: "postgres", Critical: true, Probe: pgPool.Ping},
		api.Check{Name: "redis", Critical: true, Probe: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
	)

	router := api.NewRouter(api.RouterConfig{
		Appointments: svc,
		History:      history.NewQuery(history.NewPgRepository(pgPool)),
		Auth:         api.NewAuthenticator(cfg.JWT.Secret),
		Health:       health,
		Metrics:      m,
		Clock:        clk,
		Logger:       logger,
	})

	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.App.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
			stop()
		}
	}()

	<-rootCtx.Done()
	logger.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown error")
	}
	if err := publisher.Close(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("publisher drain incomplete")
	}
}
