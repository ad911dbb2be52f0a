package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/eugenetaranov/hoard/internal/runner"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hoard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const validConfig = `target_folder: /srv/archive
hash_algorithm: sha256
sources:
  - host: web1
    user: backup
    folder: /var/log/app
    extension: gz
    max_age: 1440
  - host: box
    connection: docker
    folder: /data
    extension: log
    max_age: 60
`

func TestExecuteWithoutRunPrintsUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := execute(nil, &stdout, &stderr)

	assert.Equal(t, runner.ExitStartup, code)
	assert.Contains(t, stdout.String(), "Usage:")
	assert.Contains(t, stderr.String(), "--run")
}

func TestExecuteMissingConfig(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := execute([]string{"--run", "--config", filepath.Join(t.TempDir(), "nope.yaml")}, &stdout, &stderr)

	assert.Equal(t, runner.ExitStartup, code)
	assert.Contains(t, stderr.String(), "Error:")
}

func TestExecuteRejectsArgs(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := execute([]string{"extra"}, &stdout, &stderr)
	assert.Equal(t, runner.ExitStartup, code)
}

func TestValidateCommand(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		path := writeConfig(t, validConfig)

		var stdout, stderr bytes.Buffer
		code := execute([]string{"validate", "--config", path}, &stdout, &stderr)

		assert.Equal(t, runner.ExitOK, code, stderr.String())
		assert.Contains(t, stdout.String(), "OK: "+path)
		assert.Contains(t, stdout.String(), "2 source(s)")
	})

	t.Run("duplicate host", func(t *testing.T) {
		path := writeConfig(t, `target_folder: /srv/archive
sources:
  - {host: web1, folder: /a, extension: gz, max_age: 60}
  - {host: web1, folder: /b, extension: gz, max_age: 60}
`)

		var stdout, stderr bytes.Buffer
		code := execute([]string{"validate", "--config", path}, &stdout, &stderr)

		assert.Equal(t, runner.ExitStartup, code)
		assert.Contains(t, stdout.String(), "FAIL")
		assert.Contains(t, stdout.String(), "duplicate")
	})

	t.Run("unknown algorithm", func(t *testing.T) {
		path := writeConfig(t, `target_folder: /srv/archive
hash_algorithm: crc32
sources:
  - {host: web1, folder: /a, extension: gz, max_age: 60}
`)

		var stdout, stderr bytes.Buffer
		code := execute([]string{"validate", "--config", path}, &stdout, &stderr)
		assert.Equal(t, runner.ExitStartup, code)
	})
}

func TestValidateEnvOverride(t *testing.T) {
	path := writeConfig(t, validConfig)
	t.Setenv("HOARD_TARGET_FOLDER", "/mnt/elsewhere")

	var stdout, stderr bytes.Buffer
	code := execute([]string{"validate", "--config", path}, &stdout, &stderr)

	require.Equal(t, runner.ExitOK, code, stderr.String())
	assert.Contains(t, stdout.String(), "archive root /mnt/elsewhere")
}

func TestValidateRejectsMissingMaxAge(t *testing.T) {
	path := writeConfig(t, `target_folder: /srv/archive
sources:
  - {host: web1, folder: /a, extension: gz}
`)

	var stdout, stderr bytes.Buffer
	code := execute([]string{"validate", "--config", path}, &stdout, &stderr)
	assert.Equal(t, runner.ExitStartup, code)
	assert.Contains(t, stdout.String(), "max_age")
}

func TestCleanOnlyFromFlag(t *testing.T) {
	t.Setenv("HOARD_CLEAN", "true")

	v := viper.New()
	cmd := newRootCmd(v, io.Discard)
	require.NoError(t, cmd.ParseFlags([]string{"--run"}))
	cmd.PersistentPreRun(cmd, nil)

	assert.False(t, runOptions(cmd).Clean, "environment must not enable cleanup")

	require.NoError(t, cmd.ParseFlags([]string{"--clean"}))
	assert.True(t, runOptions(cmd).Clean)
}

func TestCommandsCommand(t *testing.T) {
	path := writeConfig(t, validConfig)

	var stdout, stderr bytes.Buffer
	code := execute([]string{"commands", "--config", path}, &stdout, &stderr)
	require.Equal(t, runner.ExitOK, code, stderr.String())

	out := stdout.String()
	assert.Contains(t, out, "archive:")
	assert.Contains(t, out, "web1: rsync -avz --blocking-io -e 'ssh -o BatchMode=yes' backup@web1:/var/log/app/ /srv/archive/web1/var/log/app/")
	assert.Contains(t, out, "box: docker exec -i box find /data")
	assert.Contains(t, out, "sha256sum")
	assert.Contains(t, out, "remotechecksum:")
}

func TestExitFuncIsReplaceable(t *testing.T) {
	orig := exitFunc
	t.Cleanup(func() { exitFunc = orig })

	var got int
	exitFunc = func(code int) { got = code }
	exitFunc(runner.ExitCleanSkipped)
	assert.Equal(t, runner.ExitCleanSkipped, got)
}
