package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Apothic-AI/bufo/internal/agent/bridge"
	"github.com/Apothic-AI/bufo/internal/agent/catalog"
	"github.com/Apothic-AI/bufo/internal/project"
	"github.com/Apothic-AI/bufo/internal/session"
	"github.com/Apothic-AI/bufo/internal/telemetry"
	"github.com/Apothic-AI/bufo/pkg/acp"
)

var (
	runPrompt   string
	runResume   string
	runMode     string
	runJSON     bool
	runGrant    bool
	runThoughts bool
	runWatch    bool
)

// runCmd launches an agent and drives a conversation with it.
var runCmd = &cobra.Command{
	Use:   "run [agent]",
	Short: "Launch an agent and talk to it",
	Long: `Launches the named agent (or the catalog default) as a child process,
negotiates a session, and streams its output to the terminal.

Prompts are read from stdin, one per line. Ctrl-C cancels the turn in
flight; a second Ctrl-C aborts. /quit exits, /mode switches agent modes,
/commands lists what the agent advertises. Anything else, slash commands
included, is sent to the agent verbatim.

With --prompt a single turn runs and bufo exits when it completes.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAgent,
}

func runAgent(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cat, err := catalog.NewRegistry(log, catalogDirs()...).Load()
	if err != nil {
		return fmt.Errorf("load agent catalog: %w", err)
	}
	for _, w := range cat.Warnings() {
		log.Warn("catalog warning", zap.String("detail", w))
	}

	var desc *catalog.Descriptor
	if len(args) > 0 {
		desc, err = cat.Resolve(args[0])
		if err != nil {
			return err
		}
	} else {
		desc = cat.Default()
		if desc == nil {
			return fmt.Errorf("no agents configured")
		}
	}

	argv, err := desc.Argv(runtime.GOOS)
	if err != nil {
		return err
	}

	store := openSessionStore()
	if store != nil {
		defer store.Close()
	}
	tele := openTelemetry()
	hist := openHistories()

	// Resolve the resume target before spawning so a bad id fails fast.
	var resume *session.Record
	if runResume != "" {
		if store == nil {
			return fmt.Errorf("session store unavailable, cannot resume")
		}
		resume, err = store.Get(ctx, runResume)
		if err != nil {
			return fmt.Errorf("resume session %s: %w", runResume, err)
		}
		if resume.AgentIdentity != desc.Identity {
			return fmt.Errorf("session %s belongs to %q, not %q", runResume, resume.AgentIdentity, desc.Identity)
		}
		if resume.AgentSessionID == "" {
			return fmt.Errorf("session %s has no agent session id to load", runResume)
		}
	}

	opts := bridge.Options{
		Command:           argv[0],
		Args:              argv[1:],
		Dir:               projectDir,
		Env:               append(os.Environ(), desc.EnvSlice()...),
		ControlTimeout:    cfg.Agent.ControlTimeoutDuration(),
		StderrTailLines:   cfg.Agent.StderrTailLines,
		ForceSessionScope: desc.ForceSessionScope || cfg.Agent.ForceSessionScope,
		Logger:            log,
	}
	if runGrant {
		opts.OnPermission = grantPermission
	}

	br, err := bridge.Connect(opts)
	if err != nil {
		return fmt.Errorf("launch %s: %w", desc.Identity, err)
	}

	rend := newRenderer(runJSON, runThoughts)
	renderQuit := make(chan struct{})
	renderDone := make(chan struct{})
	go func() {
		defer close(renderDone)
		renderLoop(br, rend, renderQuit)
	}()
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = br.Close(cctx)
		cancel()
		close(renderQuit)
		<-renderDone
	}()

	initRes, err := br.Initialize(ctx)
	if err != nil {
		reportAgentDeath(br)
		return fmt.Errorf("initialize %s: %w", desc.Identity, err)
	}
	log.Info("agent initialized",
		zap.String("agent", desc.Identity),
		zap.Int("protocol_version", initRes.ProtocolVersion),
		zap.Bool("load_session", initRes.AgentCapabilities.LoadSession))

	resumed := false
	if resume != nil {
		if !br.Capabilities().LoadSession {
			return fmt.Errorf("agent %q does not support loading sessions", desc.Identity)
		}
		if _, err := br.LoadSession(ctx, resume.AgentSessionID, projectDir); err != nil {
			reportAgentDeath(br)
			return fmt.Errorf("load session: %w", err)
		}
		resumed = true
	} else if _, err := br.NewSession(ctx, projectDir); err != nil {
		reportAgentDeath(br)
		return fmt.Errorf("create session: %w", err)
	}

	rec := resume
	if store != nil && rec == nil {
		rec, err = store.Upsert(ctx, session.UpsertParams{
			AgentName:      desc.Name,
			AgentIdentity:  desc.Identity,
			AgentSessionID: br.SessionID(),
			Title:          titleFrom(runPrompt),
			Protocol:       desc.Protocol,
			Metadata:       map[string]interface{}{"cwd": projectDir},
		})
		if err != nil {
			log.WithError(err).Warn("session record not saved")
			rec = nil
		}
	} else if store != nil && rec != nil {
		if err := store.Touch(ctx, rec.ID); err != nil {
			log.WithError(err).Debug("session touch failed")
		}
	}

	if tele != nil {
		name := "session_created"
		if resumed {
			name = "session_resumed"
		}
		tele.Capture(telemetry.Event{Name: name, Properties: map[string]interface{}{"agent": desc.Identity}})
	}

	if runMode != "" {
		if err := br.SetMode(ctx, runMode); err != nil {
			log.WithError(err).Warn("mode change rejected", zap.String("mode", runMode))
		}
	}

	if runWatch {
		w, werr := project.NewWatcher(cfg.Project.WatchDebounceDuration(), log)
		if werr != nil {
			log.WithError(werr).Warn("file watching unavailable")
		} else {
			defer w.Close()
			cancelWatch, werr := w.Watch(projectDir, func() {
				log.Info("project files changed", zap.String("dir", projectDir))
			})
			if werr != nil {
				log.WithError(werr).Warn("file watching unavailable")
			} else {
				defer cancelWatch()
			}
		}
	}

	if desc.Welcome != "" && !runJSON {
		fmt.Println(desc.Welcome)
	}

	// Ctrl-C cancels the turn in flight rather than killing the process; a
	// second one during the same turn aborts.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	loop := &turnLoop{br: br, rend: rend, store: store, rec: rec, hist: hist, tele: tele, desc: desc, sig: sigCh}
	if runPrompt != "" {
		return loop.turn(ctx, runPrompt)
	}
	return loop.repl(ctx)
}

// turnLoop owns the interactive surface of a connected bridge: prompt
// submission, cancellation, and the bookkeeping that follows each turn.
type turnLoop struct {
	br    *bridge.Bridge
	rend  *renderer
	store *session.Store
	rec   *session.Record
	hist  *session.ProjectHistories
	tele  *telemetry.Telemetry
	desc  *catalog.Descriptor
	sig   chan os.Signal
}

func (t *turnLoop) repl(ctx context.Context) error {
	sc := bufio.NewScanner(os.Stdin)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	for {
		t.rend.Prompt()
		if !sc.Scan() {
			fmt.Println()
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		switch {
		case line == "/quit" || line == "/exit":
			return nil
		case line == "/commands":
			t.printCommands()
			continue
		case line == "/mode" || strings.HasPrefix(line, "/mode "):
			t.switchMode(ctx, strings.TrimSpace(strings.TrimPrefix(line, "/mode")))
			continue
		}
		if err := t.turn(ctx, line); err != nil {
			if !t.br.Alive() {
				return err
			}
			log.WithError(err).Error("prompt failed")
		}
	}
}

func (t *turnLoop) turn(ctx context.Context, text string) error {
	drainSignals(t.sig)
	if t.hist != nil {
		if err := t.hist.Prompt.Append(text); err != nil {
			log.WithError(err).Debug("prompt history append failed")
		}
	}
	if t.tele != nil {
		t.tele.Capture(telemetry.Event{Name: "prompt_sent", Properties: map[string]interface{}{"agent": t.desc.Identity}})
	}

	type outcome struct {
		res *acp.PromptResult
		err error
	}
	resCh := make(chan outcome, 1)
	go func() {
		res, err := t.br.Prompt(ctx, text)
		resCh <- outcome{res: res, err: err}
	}()

	interrupted := false
	for {
		select {
		case <-t.sig:
			if interrupted {
				return fmt.Errorf("interrupted")
			}
			interrupted = true
			cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := t.br.Cancel(cctx); err != nil {
				log.WithError(err).Warn("turn cancellation failed")
			}
			cancel()
		case out := <-resCh:
			t.rend.BreakLine()
			if out.err != nil {
				reportAgentDeath(t.br)
				return out.err
			}
			t.rend.TurnEnded(out.res.StopReason)
			t.afterTurn(ctx, text)
			return nil
		}
	}
}

// afterTurn records that the session saw use. The first completed prompt
// doubles as the session title.
func (t *turnLoop) afterTurn(ctx context.Context, text string) {
	if t.store == nil || t.rec == nil {
		return
	}
	if t.rec.Title == "" && t.br.SessionID() != "" {
		updated, err := t.store.Upsert(ctx, session.UpsertParams{
			AgentName:      t.desc.Name,
			AgentIdentity:  t.desc.Identity,
			AgentSessionID: t.br.SessionID(),
			Title:          titleFrom(text),
			Protocol:       t.desc.Protocol,
			Metadata:       map[string]interface{}{"cwd": projectDir},
		})
		if err == nil {
			t.rec = updated
			return
		}
		log.WithError(err).Debug("session title update failed")
	}
	if err := t.store.Touch(ctx, t.rec.ID); err != nil {
		log.WithError(err).Debug("session touch failed")
	}
}

func (t *turnLoop) printCommands() {
	cmds := t.br.Commands()
	if len(cmds) == 0 {
		fmt.Println("no commands advertised")
		return
	}
	for _, c := range cmds {
		if c.Description != "" {
			fmt.Printf("%-24s %s\n", c.Name, c.Description)
		} else {
			fmt.Println(c.Name)
		}
	}
}

func (t *turnLoop) switchMode(ctx context.Context, mode string) {
	if mode == "" {
		if cur := t.br.CurrentMode(); cur != "" {
			fmt.Printf("mode: %s\n", cur)
		} else {
			fmt.Println("no mode set")
		}
		return
	}
	if err := t.br.SetMode(ctx, mode); err != nil {
		log.WithError(err).Error("mode change rejected")
	}
}

// grantPermission picks the mildest allow option the agent offered. Wired in
// only under --grant; without it the bridge rejects by default.
func grantPermission(_ context.Context, req acp.RequestPermissionParams) acp.RequestPermissionResult {
	selected := func(id string) acp.RequestPermissionResult {
		return acp.RequestPermissionResult{Outcome: acp.PermissionOutcome{Outcome: "selected", OptionID: id}}
	}
	for _, opt := range req.Options {
		if opt.Kind == "allow_once" {
			return selected(opt.OptionID)
		}
	}
	for _, opt := range req.Options {
		if strings.HasPrefix(opt.Kind, "allow") {
			return selected(opt.OptionID)
		}
	}
	if len(req.Options) > 0 {
		return selected(req.Options[0].OptionID)
	}
	return acp.RequestPermissionResult{Outcome: acp.PermissionOutcome{Outcome: "cancelled"}}
}

func openSessionStore() *session.Store {
	store, err := session.Open(cfg.Session.DBPath, log)
	if err != nil {
		log.WithError(err).Warn("session store unavailable, sessions will not be recorded")
		return nil
	}
	return store
}

func openTelemetry() *telemetry.Telemetry {
	tele, err := telemetry.New(cfg.Telemetry, "", log)
	if err != nil {
		log.WithError(err).Debug("telemetry unavailable")
		return nil
	}
	return tele
}

func openHistories() *session.ProjectHistories {
	hist, err := session.NewProjectHistories(projectDir)
	if err != nil {
		log.WithError(err).Debug("history files unavailable")
		return nil
	}
	return hist
}

// reportAgentDeath surfaces the child's last stderr lines when it died out
// from under us.
func reportAgentDeath(br *bridge.Bridge) {
	if br.Alive() {
		return
	}
	tail := br.StderrTail()
	if len(tail) == 0 {
		return
	}
	fmt.Fprintln(os.Stderr, "agent stderr:")
	for _, line := range tail {
		fmt.Fprintf(os.Stderr, "  %s\n", line)
	}
}

func titleFrom(prompt string) string {
	title := strings.Join(strings.Fields(prompt), " ")
	if r := []rune(title); len(r) > 80 {
		title = string(r[:80])
	}
	return title
}

func drainSignals(ch <-chan os.Signal) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}
