package main

import (
	"context"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/kelseyhightower/envconfig"

	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/config"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/eventbus"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/events"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/logging"
	redisclient "github.com/JavaTeamPosTech/meu-hospital-microservices/internal/redis"
)

type seedConfig struct {
	Providers int `envconfig:"SEED_PROVIDERS" default:"100"`
	Nurses    int `envconfig:"SEED_NURSES" default:"20"`
	// LegacyRoles emits MEDICO/ENFERMEIRO instead of provider/nurse.
	LegacyRoles bool `envconfig:"SEED_LEGACY_ROLES" default:"false"`
}

var specialties = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

func main() {
	logger := logging.New("seed", "info", "json")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config load error")
	}
	logger = logging.New("seed", cfg.Log.Level, cfg.Log.Format)

	var sc seedConfig
	if err := envconfig.Process("", &sc); err != nil {
		logger.Fatal().Err(err).Msg("seed config error")
	}

	rdb, err := redisclient.NewRedisClient(redisclient.Options{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection error")
	}
	defer rdb.Close()

	publisher := eventbus.NewStreamPublisher(rdb, eventbus.PublisherOptions{
		MaxLen: cfg.Streams.MaxLen,
		Buffer: sc.Providers + sc.Nurses,
	}, logger, nil)

	providerRole, nurseRole := "provider", "nurse"
	if sc.LegacyRoles {
		providerRole, nurseRole = "MEDICO", "ENFERMEIRO"
	}

	now := time.Now().UTC()
	for i := 0; i < sc.Providers; i++ {
		publisher.Publish(context.Background(), cfg.Streams.Providers, events.IdentityChanged{
			UserID:             uuid.New(),
			Name:               "Dr. " + gofakeit.Name(),
			RegistrationNumber: gofakeit.Numerify("CRM-######"),
			Specialty:          specialties[gofakeit.Number(0, len(specialties)-1)],
			Role:               providerRole,
			EventKind:          string(events.KindCreated),
			EventTimestamp:     now,
		})
	}
	for i := 0; i < sc.Nurses; i++ {
		publisher.Publish(context.Background(), cfg.Streams.Providers, events.IdentityChanged{
			UserID:             uuid.New(),
			Name:               gofakeit.Name(),
			RegistrationNumber: gofakeit.Numerify("COREN-######"),
			Role:               nurseRole,
			EventKind:          string(events.KindCreated),
			EventTimestamp:     now,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := publisher.Close(ctx); err != nil {
		logger.Fatal().Err(err).Msg("publisher drain incomplete")
	}

	logger.Info().
		Int("providers", sc.Providers).
		Int("nurses", sc.Nurses).
		Str("stream", cfg.Streams.Providers).
		Msg("seed complete")
}
