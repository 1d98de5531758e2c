//go:build integration

// Package testinfra starts throwaway Postgres and Redis containers for the
// integration suites.
package testinfra

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/db"
)

const (
	postgresImage = "postgres:16-alpine"
	redisImage    = "redis:7-alpine"

	postgresPort nat.Port = "5432/tcp"
	redisPort    nat.Port = "6379/tcp"
)

func start(t *testing.T, req testcontainers.ContainerRequest, port nat.Port) (string, string) {
	t.Helper()
	ctx := context.Background()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "start %s", req.Image)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(c); err != nil {
			t.Logf("terminate %s: %v", req.Image, err)
		}
	})

	host, err := c.Host(ctx)
	require.NoError(t, err)
	mapped, err := c.MappedPort(ctx, port)
	require.NoError(t, err)
	return host, mapped.Port()
}

// Postgres returns a pool on a fresh database with every migration applied.
func Postgres(t *testing.T) *pgxpool.Pool {
	t.Helper()

	host, port := start(t, testcontainers.ContainerRequest{
		Image:        postgresImage,
		ExposedPorts: []string{string(postgresPort)},
		Env: map[string]string{
			"POSTGRES_USER":     "hospital",
			"POSTGRES_PASSWORD": "hospital",
			"POSTGRES_DB":       "scheduling",
		},
		// the entrypoint restarts the server once after init
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}, postgresPort)

	dsn := fmt.Sprintf("postgres://hospital:hospital@%s:%s/scheduling?sslmode=disable", host, port)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn, db.PoolOptions{MaxConns: 8})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = db.NewMigrator(pool).Up(ctx)
	require.NoError(t, err)
	return pool
}

// Redis returns a client on a fresh server.
func Redis(t *testing.T) *redis.Client {
	t.Helper()

	host, port := start(t, testcontainers.ContainerRequest{
		Image:        redisImage,
		ExposedPorts: []string{string(redisPort)},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}, redisPort)

	client := redis.NewClient(&redis.Options{
		Addr:        host + ":" + port,
		ReadTimeout: 10 * time.Second,
	})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.Ping(ctx).Err())
	return client
}
