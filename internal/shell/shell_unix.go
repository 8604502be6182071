//go:build !windows

package shell

import (
	"os"
	"syscall"
)

// shellInvocation resolves the shell program and its arguments. An empty
// program falls back to $SHELL, then /bin/sh. The shell runs interactive so
// rc files load and aliases work.
func shellInvocation(program string) (string, []string) {
	if program == "" {
		program = os.Getenv("SHELL")
	}
	if program == "" {
		program = "/bin/sh"
	}
	return program, []string{"-i"}
}

// sentinelCommand builds the line written after every command. The printf
// placeholders keep the shell's echo of this line from matching the marker
// scanner; only the executed output carries real values.
func sentinelCommand() string {
	return `printf "\n` + doneMarker + `%s__%s\n" "$?" "$PWD"`
}

// interruptShell delivers Ctrl-C through the PTY line discipline, which
// signals the foreground process group. A direct kill on the shell's group
// would miss foreground jobs when the shell runs them in their own group.
func interruptShell(_ int, term Terminal) error {
	if term == nil {
		return ErrNotStarted
	}
	_, err := term.Write([]byte{0x03})
	return err
}

// terminateShell asks the shell's process group to exit.
func terminateShell(pid int) error {
	return syscall.Kill(-pid, syscall.SIGTERM)
}

// killShell forcibly ends the shell's process group.
func killShell(pid int) error {
	return syscall.Kill(-pid, syscall.SIGKILL)
}
