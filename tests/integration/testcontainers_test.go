// Package integration runs the Grounding Engine against real Postgres and
// Redis containers.
package integration

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Backends holds connection details for the running containers.
type Backends struct {
	PostgresDSN string
	RedisAddr   string
}

// requireDocker skips the test in short mode or without a Docker daemon.
// CI is expected to provide Docker, so the daemon check is skipped there.
func requireDocker(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}
	if os.Getenv("CI") == "" && !dockerAvailable() {
		t.Skip("Docker not available")
	}
}

// StartBackends starts Postgres and Redis; both are terminated when t ends.
func StartBackends(t *testing.T) Backends {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	return Backends{
		PostgresDSN: startPostgres(ctx, t),
		RedisAddr:   startRedis(ctx, t),
	}
}

func startPostgres(ctx context.Context, t *testing.T) string {
	ctr, err := postgres.Run(ctx, "postgres:17-alpine",
		postgres.WithDatabase("grounding_engine_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			// Postgres logs readiness twice: once for the init run, once for real.
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	if ctr != nil {
		t.Cleanup(func() { terminate(t, ctr) })
	}
	require.NoError(t, err, "start postgres")

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func startRedis(ctx context.Context, t *testing.T) string {
	ctr, err := redis.Run(ctx, "redis:7.4-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").WithStartupTimeout(30*time.Second),
		),
	)
	if ctr != nil {
		t.Cleanup(func() { terminate(t, ctr) })
	}
	require.NoError(t, err, "start redis")

	addr, err := ctr.Endpoint(ctx, "")
	require.NoError(t, err)
	return addr
}

func terminate(t *testing.T, ctr testcontainers.Container) {
	if err := ctr.Terminate(context.Background()); err != nil {
		t.Logf("terminate container: %v", err)
	}
}

func dockerAvailable() bool {
	provider, err := testcontainers.NewDockerProvider()
	if err != nil {
		return false
	}
	defer provider.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return provider.Health(ctx) == nil
}
