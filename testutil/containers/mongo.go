package containers

import (
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	mongoImage      = "mongo:7"
	mongoPort       = "27017/tcp"
	mongoReplicaSet = "rs0"
)

// StartMongo runs a single node MongoDB replica set for the lifetime of t and returns its URI.
// Transactions need a replica set, a standalone server rejects them.
func StartMongo(t *testing.T) string {
	t.Helper()
	skipUnlessContainersAvailable(t)

	ctx := t.Context()
	mongoC, err := testcontainers.Run(
		ctx, mongoImage,
		testcontainers.WithCmd("--replSet", mongoReplicaSet, "--bind_ip_all"),
		testcontainers.WithExposedPorts(mongoPort),
		testcontainers.WithWaitStrategy(
			wait.ForLog("Waiting for connections"),
			wait.ForListeningPort(mongoPort),
		),
	)
	require.NoError(t, err)
	terminateOnCleanup(t, mongoC)

	initiate := fmt.Sprintf(
		`rs.initiate({_id: %q, members: [{_id: 0, host: "localhost:27017"}]}); `+
			`while (!db.hello().isWritablePrimary) { sleep(100); }`,
		mongoReplicaSet,
	)

	exitCode, output, err := mongoC.Exec(ctx, []string{"mongosh", "--quiet", "--eval", initiate})
	require.NoError(t, err)

	if exitCode != 0 {
		out, _ := io.ReadAll(output)
		require.Failf(t, "initiating the replica set failed", "exit code %d: %s", exitCode, out)
	}

	host, err := mongoC.Host(ctx)
	require.NoError(t, err)

	port, err := mongoC.MappedPort(ctx, mongoPort)
	require.NoError(t, err)

	return fmt.Sprintf("mongodb://%s:%s/?replicaSet=%s&directConnection=true", host, port.Port(), mongoReplicaSet)
}
