//go:build !windows

package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecFrontendLifecycle(t *testing.T) {
	cfg := Config{Frontend: FrontendConfig{Command: "echo ready; exec sleep 30", Shell: true}}
	o := New(cfg)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = o.Shutdown(ctx)
	}()
	ctx := context.Background()

	res, err := o.StartFrontend(ctx, t.TempDir())
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)
	require.NotZero(t, res.PID)

	s, err := o.Status(ctx)
	require.NoError(t, err)
	require.True(t, s.Frontend.Running)
	assert.Equal(t, res.PID, *s.Frontend.PID)

	stop, err := o.StopAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Role{Frontend}, stop.Stopped)

	require.Eventually(t, func() bool {
		s, err := o.Status(ctx)
		return err == nil && s.Frontend.LastExitCode != nil
	}, 5*time.Second, 20*time.Millisecond)
	s, err = o.Status(ctx)
	require.NoError(t, err)
	assert.False(t, s.Frontend.Running)
	assert.Nil(t, s.Frontend.PID)
	assert.Equal(t, -1, *s.Frontend.LastExitCode)
}

func TestExecBackendRunsInsideVenv(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "venv", "bin")
	require.NoError(t, os.MkdirAll(bin, 0o755))
	marker := filepath.Join(dir, "venv.txt")
	script := "#!/bin/sh\necho \"$VIRTUAL_ENV $1\" > " + marker + "\nexec sleep 30\n"
	require.NoError(t, os.WriteFile(filepath.Join(bin, "uvicorn"), []byte(script), 0o755))

	o := New(Config{StopWait: 3 * time.Second})
	ctx := context.Background()

	res, err := o.StartBackend(ctx, dir)
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)

	var b []byte
	require.Eventually(t, func() bool {
		b, _ = os.ReadFile(marker)
		return len(b) > 0 && b[len(b)-1] == '\n'
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, filepath.Join(dir, "venv")+" main:app\n", string(b))

	stop, err := o.StopAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Role{Backend}, stop.Stopped)
	s, err := o.Status(ctx)
	require.NoError(t, err)
	require.NotNil(t, s.Backend.LastExitCode, "stop with wait observes the exit")

	sctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, o.Shutdown(sctx))
}

func TestExecMissingExecutable(t *testing.T) {
	o := New(Config{Backend: BackendConfig{Command: []string{"definitely-not-a-real-binary-xyz"}}})
	defer func() { _ = o.Shutdown(context.Background()) }()

	res, err := o.StartBackend(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "Failed to start VITON Backend", res.Message)
	assert.NotEmpty(t, res.Error)
}
