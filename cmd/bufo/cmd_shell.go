package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Apothic-AI/bufo/internal/shell"
	"github.com/Apothic-AI/bufo/internal/telemetry"
)

// shellCmd opens the persistent project shell without an agent attached.
var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Open the persistent project shell",
	Long: `Starts the same long-lived shell agents use for terminal work and
reads commands from stdin. State persists between commands: exported
variables stay set and cd moves the working directory for the rest of
the session.

Commands are risk-classified before they run; destructive ones ask for
confirmation. Ctrl-C interrupts the running command, 'exit' leaves.`,
	RunE: runShellRepl,
}

func runShellRepl(cmd *cobra.Command, args []string) error {
	sh := shell.New(cfg.Shell, projectDir, log)
	if err := sh.Start(); err != nil {
		return fmt.Errorf("start shell: %w", err)
	}
	defer sh.Close()

	hist := openHistories()
	tele := openTelemetry()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)

	sc := bufio.NewScanner(os.Stdin)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	for {
		fmt.Printf("%s $ ", sh.Cwd())
		if !sc.Scan() {
			fmt.Println()
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}

		risk := sh.Classifier().Classify(line)
		if sh.Classifier().ShouldWarn(risk) {
			fmt.Printf("warning: %s\n", risk.Reason)
			if risk.Level >= shell.RiskDestructive && !confirm(sc) {
				continue
			}
		}

		res, err := runShellCommand(cmd.Context(), sh, line, sigCh)
		if err != nil {
			if errors.Is(err, shell.ErrExited) {
				fmt.Println("shell exited")
				return nil
			}
			return err
		}

		if res.Output != "" {
			fmt.Println(res.Output)
		}
		if res.ExitCode != 0 {
			fmt.Printf("(exit %d)\n", res.ExitCode)
		}

		if hist != nil {
			if err := hist.Shell.Append(line); err != nil {
				log.WithError(err).Debug("shell history append failed")
			}
		}
		if tele != nil {
			tele.Capture(telemetry.Event{Name: "shell_command", Properties: map[string]interface{}{
				"risk":      risk.Level.String(),
				"exit_code": res.ExitCode,
			}})
		}
	}
}

// runShellCommand executes line while forwarding Ctrl-C to the foreground
// job instead of the REPL.
func runShellCommand(ctx context.Context, sh *shell.Shell, line string, sigCh <-chan os.Signal) (*shell.Result, error) {
	drainSignals(sigCh)

	type outcome struct {
		res *shell.Result
		err error
	}
	resCh := make(chan outcome, 1)
	go func() {
		res, err := sh.Run(ctx, line)
		resCh <- outcome{res: res, err: err}
	}()
	for {
		select {
		case <-sigCh:
			if err := sh.Interrupt(); err != nil {
				log.WithError(err).Warn("interrupt failed")
			}
		case out := <-resCh:
			return out.res, out.err
		}
	}
}

func confirm(sc *bufio.Scanner) bool {
	fmt.Print("proceed? [y/N] ")
	if !sc.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(sc.Text()))
	return answer == "y" || answer == "yes"
}
