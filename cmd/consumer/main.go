package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/clock"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/config"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/db"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/eventbus"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/history"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/logging"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/metrics"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/notification"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/provider"
	redisclient "github.com/JavaTeamPosTech/meu-hospital-microservices/internal/redis"
)

const (
	groupProviders     = "provider-projection"
	groupHistory       = "appointment-history"
	groupNotifications = "notification-dispatcher"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "consumer",
		Short:        "Redis Streams consumers for the scheduling read side",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(consumerCmd("providers", "Keep the provider projection in step with identity changes", groupProviders))
	rootCmd.AddCommand(consumerCmd("history", "Project appointment events into appointment_history", groupHistory))
	rootCmd.AddCommand(consumerCmd("notifications", "Email patients about appointment events", groupNotifications))
	rootCmd.AddCommand(consumerCmd("all", "Run every consumer group in one process", groupProviders, groupHistory, groupNotifications))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func consumerCmd(use, short string, groups ...string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(groups)
		},
	}
}

type deps struct {
	cfg     config.Config
	pool    *pgxpool.Pool
	rdb     *redis.Client
	logger  zerolog.Logger
	metrics *metrics.Metrics
	clock   clock.Clock
}

func run(groups []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config load: %w", err)
	}
	if err := cfg.ValidateConsumer(); err != nil {
		return err
	}
	logger := logging.New("consumer", cfg.Log.Level, cfg.Log.Format)

	if cfg.Consumer.Name == "" {
		host, _ := os.Hostname()
		cfg.Consumer.Name = fmt.Sprintf("%s-%d", host, os.Getpid())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(ctx, 10*time.Second)
	pool, err := db.ConnectPostgres(pgCtx, cfg.Postgres.DSN, db.PoolOptions{
		MaxConns: cfg.Postgres.MaxConns,
		MinConns: cfg.Postgres.MinConns,
	})
	cancelPg()
	if err != nil {
		return fmt.Errorf("postgres connection: %w", err)
	}
	defer pool.Close()

	rdb, err := redisclient.NewRedisClient(redisclient.Options{
		Addr:        cfg.Redis.Addr,
		Username:    cfg.Redis.Username,
		Password:    cfg.Redis.Password,
		ReadTimeout: cfg.Consumer.Block + 2*time.Second,
	})
	if err != nil {
		return fmt.Errorf("redis connection: %w", err)
	}
	defer rdb.Close()

	rt := deps{
		cfg:     cfg,
		pool:    pool,
		rdb:     rdb,
		logger:  logger,
		metrics: metrics.New(),
		clock:   clock.NewRealClock(),
	}

	consumers := make([]*eventbus.Consumer, 0, len(groups))
	for _, g := range groups {
		c, err := rt.consumer(g)
		if err != nil {
			return err
		}
		consumers = append(consumers, c)
	}

	metricsSrv := rt.metrics.Serve(net.JoinHostPort("", cfg.App.MetricsPort))
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()

	logger.Info().Strs("groups", groups).Str("consumer", cfg.Consumer.Name).Msg("consumers starting")

	var wg sync.WaitGroup
	errCh := make(chan error, len(consumers))
	for _, c := range consumers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Run(ctx); err != nil {
				errCh <- err
				stop()
			}
		}()
	}
	wg.Wait()
	close(errCh)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)

	logger.Info().Msg("consumers stopped")
	return <-errCh
}

func (rt deps) consumer(group string) (*eventbus.Consumer, error) {
	opts := eventbus.ConsumerOptions{
		Group:          group,
		Consumer:       rt.cfg.Consumer.Name,
		Block:          rt.cfg.Consumer.Block,
		BatchSize:      rt.cfg.Consumer.BatchSize,
		ClaimIdle:      rt.cfg.Consumer.ClaimIdle,
		MaxDeliveries:  rt.cfg.Consumer.MaxDeliveries,
		HandlerTimeout: 30 * time.Second,
	}

	var h eventbus.Handler
	switch group {
	case groupProviders:
		opts.Stream = rt.cfg.Streams.Providers
		h = provider.NewUpdater(provider.NewPgRepository(rt.pool), rt.clock, rt.logger).Handle
	case groupHistory:
		opts.Stream = rt.cfg.Streams.Appointments
		h = history.NewProjector(history.NewPgRepository(rt.pool), rt.logger).Handle
	case groupNotifications:
		opts.Stream = rt.cfg.Streams.Appointments
		loc, err := rt.cfg.Location()
		if err != nil {
			return nil, err
		}
		sender := notification.NewSMTPSender(notification.SMTPOptions{
			Host:     rt.cfg.SMTP.Host,
			Port:     rt.cfg.SMTP.Port,
			Username: rt.cfg.SMTP.Username,
			Password: rt.cfg.SMTP.Password,
		})
		h = notification.NewDispatcher(sender, notification.NewPgLogRepository(rt.pool), rt.clock, notification.Options{
			From:     rt.cfg.SMTP.From,
			Location: loc,
			Duration: rt.cfg.Scheduling.AppointmentDuration,
		}, rt.logger, rt.metrics).Handle
	default:
		return nil, fmt.Errorf("unknown consumer group %q", group)
	}

	logger := rt.logger.With().Str("group", group).Str("stream", opts.Stream).Logger()
	return eventbus.NewConsumer(rt.rdb, opts, h, logger, rt.metrics), nil
}
