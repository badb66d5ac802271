package containers

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	postgresImage    = "postgres:17-alpine"
	postgresPort     = "5432/tcp"
	postgresUser     = "test"
	postgresPassword = "test"
	postgresDatabase = "eventstore"
)

// StartPostgres runs a PostgreSQL container for the lifetime of t and returns its DSN.
func StartPostgres(t *testing.T) string {
	t.Helper()
	skipUnlessContainersAvailable(t)

	ctx := t.Context()
	postgresC, err := testcontainers.Run(
		ctx, postgresImage,
		testcontainers.WithEnv(map[string]string{
			"POSTGRES_USER":     postgresUser,
			"POSTGRES_PASSWORD": postgresPassword,
			"POSTGRES_DB":       postgresDatabase,
		}),
		testcontainers.WithExposedPorts(postgresPort),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort(postgresPort),
		),
	)
	require.NoError(t, err)
	terminateOnCleanup(t, postgresC)

	host, err := postgresC.Host(ctx)
	require.NoError(t, err)

	port, err := postgresC.MappedPort(ctx, postgresPort)
	require.NoError(t, err)

	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		postgresUser, postgresPassword, host, port.Port(), postgresDatabase)
}

func skipUnlessContainersAvailable(t *testing.T) {
	t.Helper()

	if testing.Short() {
		t.Skip("container tests are skipped in short mode")
	}

	testcontainers.SkipIfProviderIsNotHealthy(t)
}

func terminateOnCleanup(t *testing.T, container testcontainers.Container) {
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Errorf("failed to terminate container: %s", err.Error())
		}
	})
}
