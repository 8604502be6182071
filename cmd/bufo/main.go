package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/Apothic-AI/bufo/internal/common/config"
	"github.com/Apothic-AI/bufo/internal/common/logger"
	"github.com/Apothic-AI/bufo/internal/tracing"
)

// version is stamped at build time via -ldflags.
var version = "dev"

var (
	// Global flags
	cfgDir     string
	projectDir string
	verbose    bool

	// Loaded in PersistentPreRunE, shared by every command
	cfg *config.Config
	log *logger.Logger
)

// rootCmd is the base command. Subcommands do the actual work; running bufo
// without one prints usage.
var rootCmd = &cobra.Command{
	Use:     "bufo",
	Version: version,
	Short:   "Drive AI coding agents from the terminal",
	Long: `bufo launches AI coding agents as child processes, speaks the agent
control protocol with them over stdio, and turns their notification
traffic into a single readable event stream.

Agents are declared in a YAML catalog; run 'bufo agents' to see what is
configured and 'bufo run <agent>' to start a conversation.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadWithPath(cfgDir)
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}

		log, err = logger.NewLogger(logger.LoggingConfig{
			Level:      cfg.Logging.Level,
			Format:     cfg.Logging.Format,
			OutputPath: cfg.Logging.OutputPath,
		})
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}
		logger.SetDefault(log)

		if projectDir == "" {
			projectDir, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("resolve working directory: %w", err)
			}
		}
		projectDir, err = filepath.Abs(projectDir)
		if err != nil {
			return fmt.Errorf("resolve project directory: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = tracing.Shutdown(ctx)
		cancel()
		if log != nil {
			_ = log.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgDir, "config", "", "Directory containing config.yaml (default: ., ~/.config/bufo)")
	rootCmd.PersistentFlags().StringVarP(&projectDir, "project", "C", "", "Project directory (default: current directory)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	runCmd.Flags().StringVarP(&runPrompt, "prompt", "p", "", "Send a single prompt and exit when the turn completes")
	runCmd.Flags().StringVar(&runResume, "resume", "", "Resume a stored session by its id (see 'bufo sessions')")
	runCmd.Flags().StringVar(&runMode, "mode", "", "Switch the agent to this mode after the session starts")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Emit canonical events as JSON lines instead of rendered text")
	runCmd.Flags().BoolVar(&runGrant, "grant", false, "Auto-approve agent permission requests (default: reject)")
	runCmd.Flags().BoolVar(&runThoughts, "thoughts", false, "Show the agent's thinking stream in text output")
	runCmd.Flags().BoolVar(&runWatch, "watch", false, "Report project file changes while the session runs")

	sessionsCmd.Flags().IntVarP(&sessionsLimit, "limit", "n", 20, "Maximum number of sessions to list")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(shellCmd)
	rootCmd.AddCommand(doctorCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// catalogDirs returns the extra catalog directories configured beyond the
// built-in and user locations.
func catalogDirs() []string {
	if cfg.Agent.CatalogDir == "" {
		return nil
	}
	return []string{cfg.Agent.CatalogDir}
}
