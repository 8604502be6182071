package main

import (
	"fmt"
	"os/exec"
	"runtime"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Apothic-AI/bufo/internal/agent/catalog"
)

// agentsCmd lists every agent the catalog knows about.
var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List configured agents",
	Long: `Lists the agents from the built-in catalog plus any user overrides
in the agents directory. The default agent is marked with *; INSTALLED
reflects whether the agent's binary is on PATH right now.`,
	RunE: listAgents,
}

func listAgents(cmd *cobra.Command, args []string) error {
	cat, err := catalog.NewRegistry(log, catalogDirs()...).Load()
	if err != nil {
		return fmt.Errorf("load agent catalog: %w", err)
	}
	for _, w := range cat.Warnings() {
		log.Warn("catalog warning", zap.String("detail", w))
	}

	agents := cat.Agents()
	if len(agents) == 0 {
		fmt.Println("No agents configured.")
		return nil
	}

	def := cat.Default()
	fmt.Printf("  %-18s %-24s %-10s %-10s %s\n", "IDENTITY", "NAME", "PROTOCOL", "INSTALLED", "DESCRIPTION")
	for _, d := range agents {
		marker := " "
		if def != nil && def.Identity == d.Identity {
			marker = "*"
		}
		fmt.Printf("%s %-18s %-24s %-10s %-10s %s\n",
			marker, d.Identity, d.Name, d.Protocol, installState(d), d.Description)
	}
	return nil
}

func installState(d catalog.Descriptor) string {
	argv, err := d.Argv(runtime.GOOS)
	if err != nil {
		return "no"
	}
	if _, err := exec.LookPath(argv[0]); err != nil {
		return "no"
	}
	return "yes"
}
