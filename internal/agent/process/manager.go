// Package process manages the agent subprocess lifecycle: spawning, stream
// wiring, stderr capture, and exit detection.
package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/Apothic-AI/bufo/internal/common/logger"
)

// Status represents the agent process status.
type Status string

const (
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
	StatusStopped  Status = "stopped"
)

// SpawnError means the agent executable could not be started at all. It is
// fatal to the connection attempt.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to start agent %q: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// ExitError reports that the agent process terminated. It carries the exit
// code and the last stderr lines written before death, so the user can tell
// a crashed agent from a misconfigured one.
type ExitError struct {
	Command    string
	Code       int
	StderrTail []string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("agent process %q exited with code %d", e.Command, e.Code)
	if len(e.StderrTail) > 0 {
		msg += "\nstderr tail:\n" + strings.Join(e.StderrTail, "\n")
	}
	return msg
}

// Spec describes the child process to launch. Env entries are KEY=VALUE
// overrides applied on top of the inherited environment.
type Spec struct {
	Command         string
	Args            []string
	Dir             string
	Env             []string
	StderrTailLines int
}

// Manager owns one agent subprocess. Protocol traffic flows through Stdin
// and Stdout; stderr is captured into a bounded tail and mirrored to the
// debug log, never parsed as protocol traffic.
type Manager struct {
	logger  *logger.Logger
	command string

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	tail   *TailBuffer

	status   atomic.Value // Status
	exitCode atomic.Int32
	doneCh   chan struct{}

	stopMu  sync.Mutex
	stopped bool
}

const defaultStderrTailLines = 50

// Launch spawns the agent and wires its streams. The returned manager is
// already running; a *SpawnError is returned if the process cannot start.
func Launch(spec Spec, log *logger.Logger) (*Manager, error) {
	if spec.Command == "" {
		return nil, &SpawnError{Command: spec.Command, Err: errors.New("no agent command configured")}
	}

	tailLines := spec.StderrTailLines
	if tailLines <= 0 {
		tailLines = defaultStderrTailLines
	}

	m := &Manager{
		logger:  log.WithFields(zap.String("component", "agent-process")),
		command: spec.Command,
		doneCh:  make(chan struct{}),
	}
	m.status.Store(StatusRunning)
	m.exitCode.Store(-1)
	m.tail = NewTailBuffer(tailLines, m.logger)

	m.cmd = exec.Command(spec.Command, spec.Args...)
	m.cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		m.cmd.Env = append(os.Environ(), spec.Env...)
	}
	// Stderr goes straight into the tail buffer. With a plain io.Writer
	// here, cmd.Wait does not return until the last stderr byte has been
	// copied, so the tail is complete by the time exit is observed.
	m.cmd.Stderr = m.tail

	var err error
	m.stdin, err = m.cmd.StdinPipe()
	if err != nil {
		return nil, &SpawnError{Command: spec.Command, Err: fmt.Errorf("stdin pipe: %w", err)}
	}
	m.stdout, err = m.cmd.StdoutPipe()
	if err != nil {
		return nil, &SpawnError{Command: spec.Command, Err: fmt.Errorf("stdout pipe: %w", err)}
	}

	if err := m.cmd.Start(); err != nil {
		return nil, &SpawnError{Command: spec.Command, Err: err}
	}

	m.logger.Info("agent process started",
		zap.String("command", spec.Command),
		zap.Strings("args", spec.Args),
		zap.String("workdir", spec.Dir),
		zap.Int("pid", m.cmd.Process.Pid))

	go m.waitForExit()
	return m, nil
}

// waitForExit reaps the child and records its exit state. The done channel
// closes only after the exit code and stderr tail are in place, so watchers
// always see a fully populated ExitError.
func (m *Manager) waitForExit() {
	err := m.cmd.Wait()
	m.tail.Flush()

	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		} else {
			code = -1
			m.logger.Warn("agent process wait failed", zap.Error(err))
		}
	}
	m.exitCode.Store(int32(code))
	m.status.Store(StatusStopped)
	m.logger.Info("agent process exited",
		zap.Int("code", code),
		zap.Int("stderr_lines", m.tail.Count()))
	close(m.doneCh)
}

// Stdin is the child's input stream. Only the protocol transport writes it.
func (m *Manager) Stdin() io.Writer { return m.stdin }

// Stdout is the child's output stream. Only the protocol reader consumes it.
func (m *Manager) Stdout() io.Reader { return m.stdout }

// Pid returns the child's process id.
func (m *Manager) Pid() int {
	if m.cmd.Process == nil {
		return 0
	}
	return m.cmd.Process.Pid
}

// Status returns the current process status.
func (m *Manager) Status() Status {
	return m.status.Load().(Status)
}

// Alive reports whether the process is still running.
func (m *Manager) Alive() bool {
	select {
	case <-m.doneCh:
		return false
	default:
		return true
	}
}

// Done closes when the process has exited and its exit state is recorded.
func (m *Manager) Done() <-chan struct{} { return m.doneCh }

// ExitCode returns the recorded exit code, or -1 while still running.
func (m *Manager) ExitCode() int {
	return int(m.exitCode.Load())
}

// StderrTail returns the captured stderr lines, oldest first.
func (m *Manager) StderrTail() []string {
	return m.tail.Lines()
}

// ExitError returns the exit diagnostics, or nil while the process is still
// running.
func (m *Manager) ExitError() *ExitError {
	select {
	case <-m.doneCh:
	default:
		return nil
	}
	return &ExitError{
		Command:    m.command,
		Code:       m.ExitCode(),
		StderrTail: m.tail.Lines(),
	}
}

// Stop shuts the agent down: stdin closes to signal EOF, and the process is
// killed if it has not exited by the time ctx expires. Safe to call more
// than once.
func (m *Manager) Stop(ctx context.Context) error {
	m.stopMu.Lock()
	defer m.stopMu.Unlock()

	if m.stopped {
		return nil
	}
	m.stopped = true

	if !m.Alive() {
		return nil
	}

	m.logger.Info("stopping agent process", zap.Int("pid", m.Pid()))
	m.status.Store(StatusStopping)
	m.stdin.Close()

	select {
	case <-m.doneCh:
		m.logger.Info("agent process stopped gracefully")
		return nil
	case <-ctx.Done():
	}

	if m.cmd.Process != nil {
		m.logger.Warn("force killing agent process", zap.Int("pid", m.Pid()))
		m.cmd.Process.Kill()
	}
	<-m.doneCh
	return nil
}
