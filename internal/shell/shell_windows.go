//go:build windows

package shell

import (
	"fmt"
	"os"
	"os/exec"
)

// shellInvocation picks the shell program and its arguments. COMSPEC is the
// conventional override; cmd.exe needs no extra flags to stay interactive
// inside a ConPTY.
func shellInvocation(program string) (string, []string) {
	if program == "" {
		program = os.Getenv("COMSPEC")
	}
	if program == "" {
		program = "powershell.exe"
	}
	return program, nil
}

// sentinelCommand prints the completion marker. cmd.exe expands
// %errorlevel% and %cd% only in the output, so the echoed command line never
// contains a digit right after the marker and cannot satisfy the scanner.
func sentinelCommand() string {
	return "echo " + doneMarker + "%errorlevel%__%cd%"
}

// interruptShell writes ETX into the console input, which is how Ctrl-C
// reaches a ConPTY child.
func interruptShell(_ int, term Terminal) error {
	if term == nil {
		return ErrNotStarted
	}
	_, err := term.Write([]byte{0x03})
	return err
}

// terminateShell asks the process tree to close. Without /F taskkill sends
// WM_CLOSE, the closest Windows has to SIGTERM.
func terminateShell(pid int) error {
	return exec.Command("taskkill", "/T", "/PID", fmt.Sprintf("%d", pid)).Run()
}

func killShell(pid int) error {
	return exec.Command("taskkill", "/F", "/T", "/PID", fmt.Sprintf("%d", pid)).Run()
}
