package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"runtime"
	"testing"
	"time"

	"github.com/Apothic-AI/bufo/internal/common/logger"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tests use /bin/sh")
	}
}

func waitExit(t *testing.T, m *Manager) {
	t.Helper()
	select {
	case <-m.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit within 5s")
	}
}

func TestLaunchMissingExecutable(t *testing.T) {
	_, err := Launch(Spec{Command: "/nonexistent/bufo-test-agent"}, logger.Default())
	if err == nil {
		t.Fatal("expected launch to fail for a missing executable")
	}
	var spawnErr *SpawnError
	if !errors.As(err, &spawnErr) {
		t.Fatalf("expected *SpawnError, got %T: %v", err, err)
	}
	if spawnErr.Command != "/nonexistent/bufo-test-agent" {
		t.Errorf("spawn error command = %q", spawnErr.Command)
	}
}

func TestLaunchEmptyCommand(t *testing.T) {
	_, err := Launch(Spec{}, logger.Default())
	var spawnErr *SpawnError
	if !errors.As(err, &spawnErr) {
		t.Fatalf("expected *SpawnError, got %v", err)
	}
}

func TestExitCodeAndStderrTailCaptured(t *testing.T) {
	requireShell(t)

	m, err := Launch(Spec{
		Command: "sh",
		Args:    []string{"-c", "echo boom >&2; echo worse >&2; exit 3"},
	}, logger.Default())
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	waitExit(t, m)

	exitErr := m.ExitError()
	if exitErr == nil {
		t.Fatal("expected exit error after process death")
	}
	if exitErr.Code != 3 {
		t.Errorf("exit code = %d, want 3", exitErr.Code)
	}
	if len(exitErr.StderrTail) != 2 || exitErr.StderrTail[0] != "boom" || exitErr.StderrTail[1] != "worse" {
		t.Errorf("stderr tail = %q", exitErr.StderrTail)
	}
	if m.Alive() {
		t.Error("Alive() = true after exit")
	}
	if m.Status() != StatusStopped {
		t.Errorf("status = %q, want stopped", m.Status())
	}
}

func TestExitErrorNilWhileRunning(t *testing.T) {
	requireShell(t)

	m, err := Launch(Spec{Command: "sh", Args: []string{"-c", "sleep 10"}}, logger.Default())
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		m.Stop(ctx)
	}()

	if exitErr := m.ExitError(); exitErr != nil {
		t.Fatalf("ExitError() = %v while process still running", exitErr)
	}
	if !m.Alive() {
		t.Error("Alive() = false while process still running")
	}
}

func TestStderrTailIsBounded(t *testing.T) {
	requireShell(t)

	m, err := Launch(Spec{
		Command:         "sh",
		Args:            []string{"-c", "i=1; while [ $i -le 30 ]; do echo line$i >&2; i=$((i+1)); done; exit 1"},
		StderrTailLines: 10,
	}, logger.Default())
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	waitExit(t, m)

	tail := m.StderrTail()
	if len(tail) != 10 {
		t.Fatalf("tail length = %d, want 10", len(tail))
	}
	if tail[0] != "line21" || tail[9] != "line30" {
		t.Errorf("tail window = %q ... %q, want line21 ... line30", tail[0], tail[9])
	}
}

func TestStdioRoundTrip(t *testing.T) {
	requireShell(t)

	m, err := Launch(Spec{Command: "cat"}, logger.Default())
	if err != nil {
		t.Fatalf("launch: %v", err)
	}

	if _, err := fmt.Fprintln(m.Stdin(), "hello agent"); err != nil {
		t.Fatalf("write stdin: %v", err)
	}
	line, err := bufio.NewReader(m.Stdout()).ReadString('\n')
	if err != nil {
		t.Fatalf("read stdout: %v", err)
	}
	if line != "hello agent\n" {
		t.Errorf("round trip = %q", line)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if m.ExitError() == nil {
		t.Error("expected exit error after stop")
	}
}

func TestStopKillsStuckProcess(t *testing.T) {
	requireShell(t)

	// Ignores the stdin EOF, so Stop has to escalate to a kill.
	m, err := Launch(Spec{Command: "sh", Args: []string{"-c", "sleep 30"}}, logger.Default())
	if err != nil {
		t.Fatalf("launch: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	start := time.Now()
	if err := m.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("stop took %s, kill escalation did not engage", elapsed)
	}
	if m.Alive() {
		t.Error("process still alive after stop")
	}

	// Second stop is a no-op.
	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestTailBufferLineSplitting(t *testing.T) {
	b := NewTailBuffer(8, nil)

	b.Write([]byte("first li"))
	b.Write([]byte("ne\nsecond line\npart"))
	if got := b.Count(); got != 2 {
		t.Fatalf("count = %d, want 2 before flush", got)
	}
	b.Flush()

	lines := b.Lines()
	want := []string{"first line", "second line", "part"}
	if len(lines) != len(want) {
		t.Fatalf("lines = %q", lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("lines[%d] = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestTailBufferWindowsLineEndings(t *testing.T) {
	b := NewTailBuffer(4, nil)
	b.Write([]byte("one\r\ntwo\r\n"))

	lines := b.Lines()
	if len(lines) != 2 || lines[0] != "one" || lines[1] != "two" {
		t.Errorf("lines = %q", lines)
	}
}

func TestTailBufferEviction(t *testing.T) {
	b := NewTailBuffer(3, nil)
	for i := 1; i <= 5; i++ {
		fmt.Fprintf(b, "line%d\n", i)
	}

	lines := b.Lines()
	if len(lines) != 3 {
		t.Fatalf("lines = %q", lines)
	}
	if lines[0] != "line3" || lines[2] != "line5" {
		t.Errorf("window = %q, want line3..line5", lines)
	}
	if last := b.Last(2); len(last) != 2 || last[0] != "line4" || last[1] != "line5" {
		t.Errorf("Last(2) = %q", last)
	}
}
