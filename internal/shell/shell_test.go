package shell

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Apothic-AI/bufo/internal/common/config"
	"github.com/Apothic-AI/bufo/internal/common/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestShell(t *testing.T) (*Shell, string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("persistent shell tests need a POSIX shell")
	}
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	sh := New(config.ShellConfig{
		Program:                "/bin/sh",
		MaxBufferLines:         200,
		WarnUnknown:            true,
		WarnDangerous:          true,
		EscalateOutsideProject: true,
	}, dir, logger.Default())
	require.NoError(t, sh.Start())
	t.Cleanup(func() { _ = sh.Close() })
	return sh, dir
}

func runCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestShellRunCapturesOutput(t *testing.T) {
	sh, dir := newTestShell(t)

	res, err := sh.Run(runCtx(t), `printf 'out-%s\n' hello`)
	require.NoError(t, err)

	assert.Equal(t, `printf 'out-%s\n' hello`, res.Command)
	assert.Equal(t, 0, res.ExitCode)
	assert.Contains(t, res.Output, "out-hello")
	assert.Equal(t, dir, res.Cwd)
	assert.Equal(t, RiskUnknown, res.Risk.Level)
	assert.True(t, sh.Running())
}

func TestShellStatePersistsBetweenRuns(t *testing.T) {
	sh, _ := newTestShell(t)
	ctx := runCtx(t)

	_, err := sh.Run(ctx, "FOO=bar")
	require.NoError(t, err)

	res, err := sh.Run(ctx, `echo "value=$FOO"`)
	require.NoError(t, err)
	assert.Contains(t, res.Output, "value=bar")
}

func TestShellTracksWorkingDirectory(t *testing.T) {
	sh, dir := newTestShell(t)
	ctx := runCtx(t)

	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))

	res, err := sh.Run(ctx, "cd sub")
	require.NoError(t, err)
	assert.Equal(t, sub, res.Cwd)
	assert.Equal(t, sub, sh.Cwd())

	res, err = sh.Run(ctx, "cd ..")
	require.NoError(t, err)
	assert.Equal(t, dir, res.Cwd)
}

func TestShellReportsExitCodes(t *testing.T) {
	sh, _ := newTestShell(t)

	res, err := sh.Run(runCtx(t), "sh -c 'exit 3'")
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
}

func TestShellExitDetected(t *testing.T) {
	sh, _ := newTestShell(t)

	_, err := sh.Run(runCtx(t), "exit 42")
	require.ErrorIs(t, err, ErrExited)
	assert.False(t, sh.Running())

	_, err = sh.Run(runCtx(t), "echo again")
	assert.ErrorIs(t, err, ErrExited)
}

func TestShellInterrupt(t *testing.T) {
	sh, _ := newTestShell(t)

	timer := time.AfterFunc(300*time.Millisecond, func() { _ = sh.Interrupt() })
	defer timer.Stop()

	res, err := sh.Run(runCtx(t), "sleep 30")
	require.NoError(t, err)
	assert.Greater(t, res.ExitCode, 128)
	assert.True(t, sh.Running())
}

func TestShellRunContextTimeout(t *testing.T) {
	sh, _ := newTestShell(t)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_, err := sh.Run(ctx, "sleep 30")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// The command is still in the foreground; clear it before reusing the
	// shell.
	require.NoError(t, sh.Interrupt())
	time.Sleep(500 * time.Millisecond)

	res, err := sh.Run(runCtx(t), `printf 'back-%s\n' again`)
	require.NoError(t, err)
	assert.Contains(t, res.Output, "back-again")
}

func TestShellScreenAndScrollback(t *testing.T) {
	sh, _ := newTestShell(t)

	res, err := sh.Run(runCtx(t), `printf 'scr-%s\n' visible`)
	require.NoError(t, err)
	require.Contains(t, res.Output, "scr-visible")

	assert.Contains(t, sh.Screen().String(), "scr-visible")
	assert.Contains(t, strings.Join(sh.Scrollback(50), "\n"), "scr-visible")
}

func TestShellLifecycleErrors(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("persistent shell tests need a POSIX shell")
	}
	sh := New(config.ShellConfig{Program: "/bin/sh"}, t.TempDir(), logger.Default())

	_, err := sh.Run(context.Background(), "echo hi")
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.ErrorIs(t, sh.Interrupt(), ErrNotStarted)
	assert.ErrorIs(t, sh.Resize(100, 30), ErrNotStarted)
	assert.False(t, sh.Running())

	require.NoError(t, sh.Close())
	assert.ErrorIs(t, sh.Start(), ErrClosed)
}

func TestShellCloseIdempotent(t *testing.T) {
	sh, _ := newTestShell(t)

	_, err := sh.Run(runCtx(t), "true")
	require.NoError(t, err)

	require.NoError(t, sh.Close())
	require.NoError(t, sh.Close())
	assert.False(t, sh.Running())

	_, err = sh.Run(runCtx(t), "echo later")
	assert.ErrorIs(t, err, ErrExited)
}

func TestShellResize(t *testing.T) {
	sh, _ := newTestShell(t)

	require.NoError(t, sh.Resize(120, 40))
	assert.Len(t, sh.Screen().Lines(), 40)

	res, err := sh.Run(runCtx(t), `printf 'w-%s\n' ide`)
	require.NoError(t, err)
	assert.Contains(t, res.Output, "w-ide")
}
