package integration

import (
	"bytes"
	"context"
	"testing"

	"github.com/docker/docker/pkg/stdcopy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
)

// execInContainer runs a command in the container and returns stdout
func execInContainer(ctx context.Context, container testcontainers.Container, cmd []string) (int, string, error) {
	exitCode, reader, err := container.Exec(ctx, cmd)
	if err != nil {
		return exitCode, "", err
	}

	// Demux the Docker stream (stdout/stderr are multiplexed)
	var stdout, stderr bytes.Buffer
	_, _ = stdcopy.StdCopy(&stdout, &stderr, reader)

	return exitCode, stdout.String(), nil
}

// mustExec runs a shell snippet in the container and fails the test on error
func mustExec(t *testing.T, ctx context.Context, container testcontainers.Container, script string) {
	t.Helper()
	exitCode, _, err := execInContainer(ctx, container, []string{"sh", "-c", script})
	require.NoError(t, err)
	require.Equal(t, 0, exitCode, "command failed: %s", script)
}

// assertFileExists checks that a file exists in the container
func assertFileExists(t *testing.T, ctx context.Context, container testcontainers.Container, path string) {
	t.Helper()
	exitCode, _, err := execInContainer(ctx, container, []string{"test", "-e", path})
	require.NoError(t, err)
	assert.Equal(t, 0, exitCode, "file %s should exist", path)
}

// assertFileMissing checks that a file does not exist in the container
func assertFileMissing(t *testing.T, ctx context.Context, container testcontainers.Container, path string) {
	t.Helper()
	exitCode, _, err := execInContainer(ctx, container, []string{"test", "-e", path})
	require.NoError(t, err)
	assert.NotEqual(t, 0, exitCode, "file %s should have been removed", path)
}

// remoteChecksum returns the md5 of a file in the container
func remoteChecksum(t *testing.T, ctx context.Context, container testcontainers.Container, path string) string {
	t.Helper()
	exitCode, out, err := execInContainer(ctx, container, []string{"md5sum", path})
	require.NoError(t, err)
	require.Equal(t, 0, exitCode, "failed to hash %s", path)

	sum, _, _ := bytes.Cut([]byte(out), []byte(" "))
	return string(sum)
}
