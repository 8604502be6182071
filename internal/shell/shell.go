// Package shell runs one persistent interactive PTY shell per project.
// Commands execute sequentially in the same process, so environment
// variables, virtualenvs, and the working directory survive between calls.
// Completion is detected by a sentinel line carrying the exit code and the
// shell's working directory.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Apothic-AI/bufo/internal/common/config"
	"github.com/Apothic-AI/bufo/internal/common/logger"
)

var (
	// ErrNotStarted is returned when the shell was never started.
	ErrNotStarted = errors.New("shell: not started")
	// ErrExited is returned when the shell process has terminated.
	ErrExited = errors.New("shell: process exited")
	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("shell: closed")
)

const (
	defaultCols = 80
	defaultRows = 24

	doneMarker = "__BUFO_DONE__"

	// Lines from the tail of the buffer inspected for the sentinel.
	sentinelScanLines = 6

	// Idle PTY output (prompt redraws) stays bounded between runs.
	maxIdlePending = 16 * 1024

	closeGrace = 2 * time.Second
)

var markerRe = regexp.MustCompile(`__BUFO_DONE__(-?\d+)__(.*)$`)

// Result is the outcome of one shell command.
type Result struct {
	Command  string
	Output   string
	ExitCode int
	Cwd      string
	Risk     Risk
}

// Shell is a persistent interactive shell bound to a project directory.
type Shell struct {
	logger     *logger.Logger
	program    string
	args       []string
	classifier *Classifier
	screen     *Screen
	ring       *OutputRing

	runMu sync.Mutex // serializes Run

	mu        sync.Mutex
	cwd       string
	term      Terminal
	cmd       *exec.Cmd
	running   bool
	stopping  bool
	closed    bool
	activeRun bool
	pending   []byte
	notify    chan struct{}
	exited    chan struct{}
}

// New builds a shell for the given project directory. Start must be called
// before Run.
func New(cfg config.ShellConfig, cwd string, log *logger.Logger) *Shell {
	program, args := shellInvocation(cfg.Program)
	return &Shell{
		logger:     log.WithFields(zap.String("component", "shell")),
		program:    program,
		args:       args,
		classifier: NewClassifier(cfg),
		screen:     NewScreen(defaultCols, defaultRows),
		ring:       NewOutputRing(cfg.MaxBufferLines),
		cwd:        cwd,
	}
}

// Start launches the shell process. Starting an already-running shell is a
// no-op.
func (s *Shell) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.running {
		return nil
	}

	cmd := exec.Command(s.program, s.args...)
	cmd.Dir = s.cwd
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")

	term, err := startTerminal(cmd, defaultCols, defaultRows)
	if err != nil {
		return fmt.Errorf("start shell %s: %w", s.program, err)
	}

	s.cmd = cmd
	s.term = term
	s.running = true
	s.pending = nil
	s.notify = make(chan struct{}, 1)
	s.exited = make(chan struct{})

	s.logger.Info("shell started",
		zap.String("program", s.program),
		zap.Int("pid", cmd.Process.Pid),
		zap.String("cwd", s.cwd))

	go s.readOutput(term)
	go s.waitExit(cmd, s.exited)
	return nil
}

// Run executes command in the shell and waits for the completion sentinel.
// ctx bounds the wait; cancelling leaves the shell running, and the
// command's remaining output surfaces in the scrollback.
func (s *Shell) Run(ctx context.Context, command string) (*Result, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.mu.Lock()
	if s.term == nil {
		s.mu.Unlock()
		return nil, ErrNotStarted
	}
	if !s.running {
		s.mu.Unlock()
		return nil, ErrExited
	}
	term := s.term
	notify := s.notify
	exited := s.exited
	s.pending = s.pending[:0]
	s.activeRun = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.activeRun = false
		s.mu.Unlock()
	}()

	risk := s.classifier.Classify(command)

	if _, err := term.Write([]byte(command + "\n")); err != nil {
		return nil, fmt.Errorf("write command: %w", err)
	}
	if _, err := term.Write([]byte(sentinelCommand() + "\n")); err != nil {
		return nil, fmt.Errorf("write sentinel: %w", err)
	}

	var output bytes.Buffer
	for {
		s.mu.Lock()
		if len(s.pending) > 0 {
			output.Write(s.pending)
			s.pending = s.pending[:0]
		}
		s.mu.Unlock()

		if hit, ok := findSentinel(output.String()); ok {
			s.mu.Lock()
			s.cwd = hit.cwd
			s.mu.Unlock()

			if hit.output != "" {
				for _, line := range strings.Split(hit.output, "\n") {
					s.ring.Add(strings.TrimRight(line, "\r"))
				}
			}
			return &Result{
				Command:  command,
				Output:   hit.output,
				ExitCode: hit.exitCode,
				Cwd:      hit.cwd,
				Risk:     risk,
			}, nil
		}

		select {
		case <-notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-exited:
			return nil, ErrExited
		}
	}
}

// Interrupt stops the foreground command without killing the shell itself.
func (s *Shell) Interrupt() error {
	s.mu.Lock()
	if s.term == nil {
		s.mu.Unlock()
		return ErrNotStarted
	}
	if !s.running || s.cmd == nil || s.cmd.Process == nil {
		s.mu.Unlock()
		return ErrExited
	}
	term := s.term
	pid := s.cmd.Process.Pid
	active := s.activeRun
	s.mu.Unlock()

	if err := interruptShell(pid, term); err != nil {
		return err
	}
	if active {
		// The interrupt flushes the PTY input queue, which can discard the
		// queued completion sentinel. Send a fresh one so the waiting Run
		// still observes the interrupted command's exit status.
		_, err := term.Write([]byte(sentinelCommand() + "\n"))
		return err
	}
	return nil
}

// Resize propagates new terminal dimensions to the PTY and the screen
// tracker.
func (s *Shell) Resize(cols, rows int) error {
	s.screen.Resize(cols, rows)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.term == nil {
		return ErrNotStarted
	}
	return s.term.Resize(uint16(cols), uint16(rows))
}

// Close terminates the shell, escalating to a kill when it does not exit
// within the grace period. Close is idempotent.
func (s *Shell) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.stopping = true
	running := s.running
	pid := 0
	if s.cmd != nil && s.cmd.Process != nil {
		pid = s.cmd.Process.Pid
	}
	term := s.term
	exited := s.exited
	s.mu.Unlock()

	if running && pid > 0 {
		// Interactive shells ignore SIGTERM, so ask politely first. The
		// signal still matters: it reaches any foreground job blocking the
		// shell from reading the exit command.
		if term != nil {
			_, _ = term.Write([]byte("\nexit\n"))
		}
		select {
		case <-exited:
		case <-time.After(closeGrace):
			_ = terminateShell(pid)
			select {
			case <-exited:
			case <-time.After(closeGrace):
				s.logger.Warn("shell close timeout, killing", zap.Int("pid", pid))
				_ = killShell(pid)
				<-exited
			}
		}
	}
	if term != nil {
		_ = term.Close()
	}
	return nil
}

// Cwd returns the directory the last command left the shell in.
func (s *Shell) Cwd() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cwd
}

// Running reports whether the shell process is alive.
func (s *Shell) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Screen returns the visible-terminal tracker fed by the shell's output.
func (s *Shell) Screen() *Screen { return s.screen }

// Scrollback returns up to n recent output lines, oldest first.
func (s *Shell) Scrollback(n int) []string { return s.ring.Last(n) }

// Classifier returns the command risk classifier the shell grades with.
func (s *Shell) Classifier() *Classifier { return s.classifier }

// readOutput drains the PTY until it closes, feeding the screen tracker and
// any waiting Run call.
func (s *Shell) readOutput(term Terminal) {
	buf := make([]byte, 4096)
	for {
		n, err := term.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.consume(chunk)
		}
		if err != nil {
			s.logger.Debug("shell output closed", zap.Error(err))
			return
		}
	}
}

func (s *Shell) consume(chunk []byte) {
	_, _ = s.screen.Write(chunk)

	s.mu.Lock()
	s.pending = append(s.pending, chunk...)
	if !s.activeRun && len(s.pending) > maxIdlePending {
		s.pending = s.pending[len(s.pending)-maxIdlePending/2:]
	}
	notify := s.notify
	s.mu.Unlock()

	select {
	case notify <- struct{}{}:
	default:
	}
}

func (s *Shell) waitExit(cmd *exec.Cmd, exited chan struct{}) {
	err := cmd.Wait()

	s.mu.Lock()
	stopping := s.stopping
	s.running = false
	s.mu.Unlock()

	if stopping {
		s.logger.Debug("shell exited", zap.Error(err))
	} else {
		s.logger.Warn("shell exited unexpectedly", zap.Error(err))
	}
	close(exited)
}

type sentinelHit struct {
	exitCode int
	cwd      string
	output   string
}

// findSentinel scans the tail of raw for the completion marker. The matched
// line is removed from the returned output; everything else, including the
// shell's echo of the command, stays.
func findSentinel(raw string) (sentinelHit, bool) {
	lines := strings.Split(raw, "\n")
	start := len(lines) - sentinelScanLines
	if start < 0 {
		start = 0
	}
	for _, line := range lines[start:] {
		m := markerRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		exitCode, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		cleaned := strings.TrimSpace(strings.Replace(raw, line, "", 1))
		return sentinelHit{exitCode: exitCode, cwd: m[2], output: cleaned}, true
	}
	return sentinelHit{}, false
}
