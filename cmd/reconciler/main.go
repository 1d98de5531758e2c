package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/appointment"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/clock"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/config"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/db"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/eventbus"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/identity"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/logging"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/metrics"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/provider"
	redisclient "github.com/JavaTeamPosTech/meu-hospital-microservices/internal/redis"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/worker"
)

const (
	jobCompletion = "complete-past-appointments"
	jobReminders  = "next-day-reminders"
)

func main() {
	logger := logging.New("reconciler", "info", "json")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config load error")
	}
	if err := cfg.ValidateReconciler(); err != nil {
		logger.Fatal().Err(err).Msg("invalid reconciler config")
	}
	logger = logging.New("reconciler", cfg.Log.Level, cfg.Log.Format)

	loc, _ := cfg.Location()
	completionAt, _ := config.ParseClock(cfg.Jobs.CompletionAt)
	reminderAt, _ := config.ParseClock(cfg.Jobs.ReminderAt)
	policy, _ := appointment.ParseOverlapPolicy(cfg.Scheduling.OverlapPolicy)

	logger.Info().
		Str("env", cfg.App.Env).
		Str("timezone", loc.String()).
		Str("completion_at", cfg.Jobs.CompletionAt).
		Str("reminder_at", cfg.Jobs.ReminderAt).
		Msg("reconciler starting up")

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

	svc := appointment.NewService(appointment.Deps{
		Repo:      appointment.NewPgRepository(pgPool, db.NewTxRunner(pgPool, 3, logger)),
		Providers: provider.NewPgRepository(pgPool),
		Directory: identity.NewClient(identity.ClientOptions{
			BaseURL:        cfg.Identity.BaseURL,
			Secret:         cfg.Identity.Secret,
			Timeout:        cfg.Identity.Timeout,
			MaxRetries:     cfg.Identity.MaxRetries,
			InitialBackoff: cfg.Identity.InitialBackoff,
		}, logger, m),
		Publisher: publisher,
		Locker:    redisclient.NewRedisLocker(rdb, cfg.Scheduling.LockTTL),
		Clock:     clk,
		Logger:    logger,
		Metrics:   m,
	}, appointment.Options{
		Duration: cfg.Scheduling.AppointmentDuration,
		Policy:   policy,
		Location: loc,
		Stream:   cfg.Streams.Appointments,
		LockWait: cfg.Scheduling.LockWait,
	})

	scheduler := worker.NewScheduler([]worker.Job{
		{Name: jobCompletion, At: completionAt, Run: svc.MarkPastAppointmentsCompleted},
		{Name: jobReminders, At: reminderAt, Run: svc.SendNextDayReminders},
	}, redisclient.NewRedisLocker(rdb, cfg.Jobs.LockTTL), clk, worker.Options{
		Location:   loc,
		RunTimeout: cfg.Jobs.RunTimeout,
		RunOnStart: cfg.Jobs.RunOnStart,
	}, logger, m)

	metricsSrv := m.Serve(net.JoinHostPort("", cfg.App.MetricsPort))
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()

	_ = scheduler.Run(rootCtx)
	logger.Info().Msg("shutdown signal received, stopping reconciler")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("metrics server shutdown error")
	}
	if err := publisher.Close(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("publisher drain incomplete")
	}
}
