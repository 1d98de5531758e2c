package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/appointment"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/config"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/db"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/logging"
)

func main() {
	logger := logging.New("migrate", "info", "json")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config load error")
	}
	logger = logging.New("migrate", cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(ctx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.Postgres.DSN, db.PoolOptions{MaxConns: 2, MinConns: 1})
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()

	applied, err := db.NewMigrator(pgPool).Up(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("migration failed")
	}
	logger.Info().Int("applied", applied).Msg("migrations complete")

	policy, err := appointment.ParseOverlapPolicy(cfg.Scheduling.OverlapPolicy)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid overlap policy")
	}
	guard := policy.StorageGuard(cfg.Scheduling.AppointmentDuration)
	changed, err := db.ApplyOverlapGuard(ctx, pgPool, guard)
	if err != nil {
		logger.Fatal().Err(err).Msg("overlap guard failed")
	}
	logger.Info().Str("guard", guard.Tag()).Bool("changed", changed).Msg("overlap guard in place")
}
