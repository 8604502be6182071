//go:build windows

package shell

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/UserExistsError/conpty"
)

type windowsTerminal struct {
	cpty *conpty.ConPty
}

func (t *windowsTerminal) Read(p []byte) (int, error)  { return t.cpty.Read(p) }
func (t *windowsTerminal) Write(p []byte) (int, error) { return t.cpty.Write(p) }
func (t *windowsTerminal) Close() error                { return t.cpty.Close() }

func (t *windowsTerminal) Resize(cols, rows uint16) error {
	return t.cpty.Resize(int(cols), int(rows))
}

// startTerminal launches cmd inside a ConPTY pseudo-console. ConPTY creates
// the process itself, so the command line is rebuilt from cmd and
// cmd.Process is filled in afterwards for lifecycle management.
func startTerminal(cmd *exec.Cmd, cols, rows uint16) (Terminal, error) {
	line := buildCommandLine(cmd.Args)
	if len(cmd.Args) == 0 {
		line = escapeArg(cmd.Path)
	}

	opts := []conpty.ConPtyOption{conpty.ConPtyDimensions(int(cols), int(rows))}
	if cmd.Dir != "" {
		opts = append(opts, conpty.ConPtyWorkDir(cmd.Dir))
	}
	if cmd.Env != nil {
		opts = append(opts, conpty.ConPtyEnv(cmd.Env))
	}

	cpty, err := conpty.Start(line, opts...)
	if err != nil {
		return nil, err
	}

	proc, err := os.FindProcess(int(cpty.Pid()))
	if err != nil {
		_ = cpty.Close()
		return nil, fmt.Errorf("find conpty process %d: %w", cpty.Pid(), err)
	}
	cmd.Process = proc
	return &windowsTerminal{cpty: cpty}, nil
}
