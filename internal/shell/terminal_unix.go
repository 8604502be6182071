//go:build !windows

package shell

import (
	"os"
	"os/exec"

	"github.com/creack/pty"
)

type unixTerminal struct {
	f *os.File
}

func (t *unixTerminal) Read(p []byte) (int, error)  { return t.f.Read(p) }
func (t *unixTerminal) Write(p []byte) (int, error) { return t.f.Write(p) }
func (t *unixTerminal) Close() error                { return t.f.Close() }

func (t *unixTerminal) Resize(cols, rows uint16) error {
	return pty.Setsize(t.f, &pty.Winsize{Cols: cols, Rows: rows})
}

// startTerminal launches cmd inside a new PTY. The child gets its own
// session, so process-group signals never reach bufo itself.
func startTerminal(cmd *exec.Cmd, cols, rows uint16) (Terminal, error) {
	f, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: cols, Rows: rows})
	if err != nil {
		return nil, err
	}
	return &unixTerminal{f: f}, nil
}
