package shell

import "io"

// Terminal is the platform pseudo-terminal a shell session runs in. Unix
// builds back it with creack/pty, Windows builds with ConPTY.
type Terminal interface {
	io.ReadWriteCloser
	// Resize changes the terminal window size.
	Resize(cols, rows uint16) error
}
