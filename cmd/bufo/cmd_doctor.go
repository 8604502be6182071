package main

import (
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/Apothic-AI/bufo/internal/agent/catalog"
	"github.com/Apothic-AI/bufo/internal/common/paths"
	"github.com/Apothic-AI/bufo/internal/project"
	"github.com/Apothic-AI/bufo/internal/session"
)

// doctorCmd checks that the local setup can actually run agents.
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the local setup",
	Long: `Verifies the pieces bufo depends on: config, state directories, the
session store, the shell program, and the project tree. Agent binaries
are reported but a missing one is not an error; install the ones you
intend to use.`,
	RunE: runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	failures := 0

	check := func(name string, err error, detail string) {
		if err != nil {
			failures++
			fmt.Printf("✗ %-16s %v\n", name, err)
			return
		}
		fmt.Printf("✓ %-16s %s\n", name, detail)
	}
	note := func(name string, ok bool, detail string) {
		marker := "-"
		if ok {
			marker = "✓"
		}
		fmt.Printf("%s %-16s %s\n", marker, name, detail)
	}

	check("config", nil, fmt.Sprintf("level=%s format=%s", cfg.Logging.Level, cfg.Logging.Format))

	dirs := []struct {
		name string
		fn   func() (string, error)
	}{
		{"config dir", paths.ConfigRoot},
		{"state dir", paths.StateRoot},
		{"data dir", paths.DataRoot},
	}
	for _, d := range dirs {
		dir, err := d.fn()
		check(d.name, err, dir)
	}

	if store, err := session.Open(cfg.Session.DBPath, log); err != nil {
		check("session store", err, "")
	} else {
		recs, rerr := store.Recent(ctx, 1)
		detail := "reachable"
		if rerr == nil && len(recs) > 0 {
			detail = fmt.Sprintf("reachable, last used %s", recs[0].LastUsedAt.Local().Format("2006-01-02 15:04"))
		}
		check("session store", rerr, detail)
		store.Close()
	}

	if cat, err := catalog.NewRegistry(log, catalogDirs()...).Load(); err != nil {
		check("agent catalog", err, "")
	} else {
		check("agent catalog", nil, fmt.Sprintf("%d agents, %d warnings", len(cat.Agents()), len(cat.Warnings())))
		for _, d := range cat.Agents() {
			argv, aerr := d.Argv(runtime.GOOS)
			if aerr != nil {
				note("  "+d.Identity, false, aerr.Error())
				continue
			}
			if path, lerr := exec.LookPath(argv[0]); lerr != nil {
				note("  "+d.Identity, false, fmt.Sprintf("%s not on PATH", argv[0]))
			} else {
				note("  "+d.Identity, true, path)
			}
		}
	}

	if path, err := exec.LookPath(cfg.Shell.Program); err != nil {
		check("shell", fmt.Errorf("%s not on PATH", cfg.Shell.Program), "")
	} else {
		check("shell", nil, path)
	}

	start := time.Now()
	entries, err := project.NewScanner(cfg.Project, log).Scan(ctx, projectDir)
	check("project scan", err, fmt.Sprintf("%d entries in %s", len(entries), time.Since(start).Round(time.Millisecond)))

	if failures > 0 {
		return fmt.Errorf("%d check(s) failed", failures)
	}
	fmt.Println("\nAll checks passed.")
	return nil
}
