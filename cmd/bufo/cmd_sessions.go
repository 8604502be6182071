package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Apothic-AI/bufo/internal/session"
)

var sessionsLimit int

// sessionsCmd lists recorded sessions, most recently used first.
var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recorded sessions",
	Long: `Lists sessions from the local store, most recently used first.
Sessions whose agent supports loading can be continued with
'bufo run <agent> --resume <id>'.`,
	RunE: listSessions,
}

func listSessions(cmd *cobra.Command, args []string) error {
	store, err := session.Open(cfg.Session.DBPath, log)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer store.Close()

	recs, err := store.Recent(cmd.Context(), sessionsLimit)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	if len(recs) == 0 {
		fmt.Println("No sessions recorded.")
		return nil
	}

	fmt.Printf("%-36s %-18s %-16s %s\n", "ID", "AGENT", "LAST USED", "TITLE")
	for _, rec := range recs {
		title := rec.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Printf("%-36s %-18s %-16s %s\n",
			rec.ID, rec.AgentIdentity, rec.LastUsedAt.Local().Format("2006-01-02 15:04"), title)
	}
	return nil
}
