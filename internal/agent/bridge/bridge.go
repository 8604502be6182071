// Package bridge drives one external coding agent over the agent-control
// protocol: it owns the child process, correlates JSON-RPC traffic, threads
// session identity through scoped calls, and normalizes heterogeneous
// session updates into one canonical event stream.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Apothic-AI/bufo/internal/agent/events"
	"github.com/Apothic-AI/bufo/internal/agent/process"
	"github.com/Apothic-AI/bufo/internal/common/logger"
	"github.com/Apothic-AI/bufo/internal/tracing"
	"github.com/Apothic-AI/bufo/pkg/acp"
	"github.com/Apothic-AI/bufo/pkg/acp/jsonrpc"
)

const (
	defaultControlTimeout = 30 * time.Second
	eventBufferSize       = 256
)

// ErrResumeUnsupported is returned by LoadSession when the agent did not
// advertise the loadSession capability.
var ErrResumeUnsupported = errors.New("agent does not advertise session resume")

// PermissionFunc answers an agent permission request. It runs off the read
// loop and may block on user input.
type PermissionFunc func(ctx context.Context, req acp.RequestPermissionParams) acp.RequestPermissionResult

// Options configures a bridge connection. Command through Env describe the
// already-resolved agent invocation; the bridge itself never consults the
// catalog or global configuration.
type Options struct {
	Command string
	Args    []string
	Dir     string
	Env     []string

	// ControlTimeout bounds startup and control calls (initialize, session
	// creation, mode change, cancel). Prompts are unbounded: agents may
	// think for minutes, and process death cancels them anyway.
	ControlTimeout time.Duration

	// StderrTailLines bounds the diagnostic tail captured from the agent's
	// stderr.
	StderrTailLines int

	// ForceSessionScope marks agents known to reject unscoped calls, for
	// the rare ones whose capability advertisement cannot be trusted.
	ForceSessionScope bool

	// OnPermission overrides the default reject-all permission policy.
	OnPermission PermissionFunc

	Logger *logger.Logger
}

// Bridge is one live agent connection. All methods are safe for concurrent
// use; operations suspend only on their own pending call and never block
// each other.
type Bridge struct {
	logger *logger.Logger
	opts   Options

	proc    *process.Manager
	client  *jsonrpc.Client
	session *sessionState
	norm    *normalizer

	events chan events.Event

	closed    chan struct{}
	closeOnce sync.Once
	watchDone chan struct{}
}

// Connect launches the agent process and wires the protocol machinery. The
// returned bridge is live but not yet initialized; callers run Initialize
// and NewSession next. A *process.SpawnError means the executable could not
// be started.
func Connect(opts Options) (*Bridge, error) {
	log := opts.Logger
	if log == nil {
		log = logger.Default()
	}
	log = log.WithFields(zap.String("component", "agent-bridge"))

	if opts.ControlTimeout <= 0 {
		opts.ControlTimeout = defaultControlTimeout
	}

	proc, err := process.Launch(process.Spec{
		Command:         opts.Command,
		Args:            opts.Args,
		Dir:             opts.Dir,
		Env:             opts.Env,
		StderrTailLines: opts.StderrTailLines,
	}, log)
	if err != nil {
		return nil, err
	}

	b := &Bridge{
		logger:    log,
		opts:      opts,
		proc:      proc,
		session:   newSessionState(opts.ForceSessionScope),
		norm:      newNormalizer(log),
		events:    make(chan events.Event, eventBufferSize),
		closed:    make(chan struct{}),
		watchDone: make(chan struct{}),
	}

	client := jsonrpc.NewClient(proc.Stdin(), proc.Stdout(), log)
	client.SetNotificationHandler(b.handleNotification)
	client.SetRequestHandler(b.handleRequest)
	b.client = client
	client.Start(context.Background())

	go b.watchExit()
	return b, nil
}

// watchExit is the fail-fast path: the moment the process dies, every
// pending call resolves with the exit diagnostics and all future calls fail
// the same way. Nothing can be left waiting past process death.
func (b *Bridge) watchExit() {
	defer close(b.watchDone)

	<-b.proc.Done()
	exitErr := b.proc.ExitError()
	b.client.Fail(exitErr)
	b.session.terminate()
	b.emit(events.Event{Type: events.TypeStateChanged, State: events.StateNotReady})
	b.logger.Info("agent connection terminated",
		zap.Int("exit_code", exitErr.Code),
		zap.Int("stderr_lines", len(exitErr.StderrTail)))
}

// emit pushes one canonical event upstream, preserving read order. The send
// blocks when the consumer lags rather than dropping events, since tool
// update sequencing depends on prior state; teardown unblocks it.
func (b *Bridge) emit(ev events.Event) {
	if ev.SessionID == "" {
		ev.SessionID = b.session.SessionID()
	}
	select {
	case b.events <- ev:
	case <-b.closed:
	}
}

// Events is the canonical event stream, in the order updates were read from
// the agent. The channel is never closed; select against Done for
// termination.
func (b *Bridge) Events() <-chan events.Event { return b.events }

// Done closes once the agent process has exited and pending calls were
// resolved.
func (b *Bridge) Done() <-chan struct{} { return b.watchDone }

// Err returns the connection's terminal error, or nil while it is alive.
func (b *Bridge) Err() error { return b.client.Err() }

// Alive reports whether the agent process is still running.
func (b *Bridge) Alive() bool { return b.proc.Alive() }

// Pid returns the agent's process id.
func (b *Bridge) Pid() int { return b.proc.Pid() }

// StderrTail returns the captured agent stderr lines, oldest first.
func (b *Bridge) StderrTail() []string { return b.proc.StderrTail() }

// Phase returns the session lifecycle phase.
func (b *Bridge) Phase() Phase { return b.session.Phase() }

// SessionID returns the negotiated session identifier, empty for
// session-less agents.
func (b *Bridge) SessionID() string { return b.session.SessionID() }

// Capabilities returns the agent's advertised capabilities.
func (b *Bridge) Capabilities() acp.AgentCapabilities { return b.session.Capabilities() }

// CurrentMode returns the last known mode identifier.
func (b *Bridge) CurrentMode() string { return b.session.CurrentMode() }

// Commands returns the last advertised slash-command list.
func (b *Bridge) Commands() []events.Command { return b.session.Commands() }

// ToolRecords returns snapshots of every tool call tracked this session,
// in first-seen order.
func (b *Bridge) ToolRecords() []*events.ToolCallRecord { return b.norm.ToolRecords() }

// Initialize negotiates protocol version and capabilities.
func (b *Bridge) Initialize(ctx context.Context) (*acp.InitializeResult, error) {
	cctx, cancel := context.WithTimeout(ctx, b.opts.ControlTimeout)
	defer cancel()

	cctx, span := tracing.TraceControlCall(cctx, acp.MethodInitialize, "")
	defer span.End()

	params := acp.InitializeParams{
		ProtocolVersion: acp.ProtocolVersion,
		ClientCapabilities: acp.ClientCapabilities{
			Fs: acp.FsCapabilities{ReadTextFile: true, WriteTextFile: true},
		},
	}
	raw, err := b.client.Call(cctx, acp.MethodInitialize, params)
	tracing.TraceControlResult(span, err)
	if err != nil {
		return nil, err
	}

	var res acp.InitializeResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decode initialize response: %w", err)
	}
	b.session.recordInitialize(&res)
	b.logger.Info("agent initialized",
		zap.Int("protocol_version", res.ProtocolVersion),
		zap.Bool("load_session", res.AgentCapabilities.LoadSession),
		zap.Bool("embedded_context", res.AgentCapabilities.PromptCapabilities.EmbeddedContext))
	return &res, nil
}

// NewSession creates an agent session rooted at cwd. Agents without session
// scoping legally return an empty identifier.
func (b *Bridge) NewSession(ctx context.Context, cwd string) (*acp.NewSessionResult, error) {
	cctx, cancel := context.WithTimeout(ctx, b.opts.ControlTimeout)
	defer cancel()

	cctx, span := tracing.TraceControlCall(cctx, acp.MethodSessionNew, "")
	defer span.End()

	params := acp.NewSessionParams{Cwd: cwd, McpServers: []acp.McpServer{}}
	raw, err := b.client.Call(cctx, acp.MethodSessionNew, params)
	tracing.TraceControlResult(span, err)
	if err != nil {
		return nil, err
	}

	var res acp.NewSessionResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decode session response: %w", err)
	}
	b.session.recordSession(res.SessionID, res.Modes)
	if res.Modes != nil && res.Modes.CurrentModeID != "" {
		b.emit(events.Event{Type: events.TypeModeChanged, Mode: res.Modes.CurrentModeID})
	}
	b.logger.Info("session created", zap.String("session_id", res.SessionID))
	return &res, nil
}

// LoadSession resumes a previously negotiated session. Only agents that
// advertised loadSession accept this.
func (b *Bridge) LoadSession(ctx context.Context, sessionID, cwd string) (*acp.LoadSessionResult, error) {
	if !b.session.Capabilities().LoadSession {
		return nil, ErrResumeUnsupported
	}

	cctx, cancel := context.WithTimeout(ctx, b.opts.ControlTimeout)
	defer cancel()

	cctx, span := tracing.TraceControlCall(cctx, acp.MethodSessionLoad, sessionID)
	defer span.End()

	params := acp.LoadSessionParams{SessionID: sessionID, Cwd: cwd, McpServers: []acp.McpServer{}}
	raw, err := b.client.Call(cctx, acp.MethodSessionLoad, params)
	tracing.TraceControlResult(span, err)
	if err != nil {
		return nil, err
	}

	var res acp.LoadSessionResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decode session response: %w", err)
	}
	id := res.SessionID
	if id == "" {
		id = sessionID
	}
	b.session.recordSession(id, res.Modes)
	if res.Modes != nil && res.Modes.CurrentModeID != "" {
		b.emit(events.Event{Type: events.TypeModeChanged, Mode: res.Modes.CurrentModeID})
	}
	b.logger.Info("session resumed", zap.String("session_id", id))
	return &res, nil
}

// Prompt sends one user turn. @path mentions are expanded into resources
// against the working directory and shaped to the agent's negotiated
// capabilities. The call has no local deadline; ctx cancellation and
// process death are the only ways it ends early.
func (b *Bridge) Prompt(ctx context.Context, text string) (*acp.PromptResult, error) {
	ctx, span := tracing.TracePrompt(ctx, b.session.SessionID())
	defer span.End()

	transformed, resources := ExpandMentions(b.opts.Dir, text)
	params := acp.PromptParams{
		Prompt: BuildPrompt(transformed, resources, b.session.Capabilities().PromptCapabilities),
	}

	b.emit(events.Event{Type: events.TypeStateChanged, State: events.StateBusy})
	raw, err := b.callScoped(ctx, acp.MethodSessionPrompt, &params)
	if err != nil {
		tracing.TracePromptResult(span, "", err)
		if b.client.Err() == nil {
			// The connection survived (timeout, rejection, cancellation);
			// only actual process death leaves the notready state standing.
			b.emit(events.Event{Type: events.TypeStateChanged, State: events.StateIdle})
		}
		return nil, err
	}

	var res acp.PromptResult
	if err := json.Unmarshal(raw, &res); err != nil {
		err = fmt.Errorf("decode prompt response: %w", err)
		tracing.TracePromptResult(span, "", err)
		return nil, err
	}
	tracing.TracePromptResult(span, string(res.StopReason), nil)
	b.emit(events.Event{Type: events.TypeStateChanged, State: events.StateIdle})
	b.logger.Info("prompt turn completed",
		zap.String("stop_reason", string(res.StopReason)),
		zap.Int("resources", len(resources)))
	return &res, nil
}

// SetMode switches the agent mode.
func (b *Bridge) SetMode(ctx context.Context, modeID string) error {
	cctx, cancel := context.WithTimeout(ctx, b.opts.ControlTimeout)
	defer cancel()

	cctx, span := tracing.TraceControlCall(cctx, acp.MethodSessionSetMode, b.session.SessionID())
	defer span.End()

	params := acp.SetModeParams{ModeID: modeID}
	_, err := b.callScoped(cctx, acp.MethodSessionSetMode, &params)
	tracing.TraceControlResult(span, err)
	if err != nil {
		return err
	}
	b.session.setMode(modeID)
	return nil
}

// Cancel asks the agent to stop the current turn. It is an ordinary
// correlated call: its outcome does not affect other in-flight calls.
func (b *Bridge) Cancel(ctx context.Context) error {
	cctx, cancel := context.WithTimeout(ctx, b.opts.ControlTimeout)
	defer cancel()

	cctx, span := tracing.TraceControlCall(cctx, acp.MethodSessionCancel, b.session.SessionID())
	defer span.End()

	params := acp.CancelParams{}
	_, err := b.callScoped(cctx, acp.MethodSessionCancel, &params)
	tracing.TraceControlResult(span, err)
	return err
}

// callScoped is the single path for session-scoped calls. Every prompt,
// mode change, and cancel goes through decoration here; no call site
// threads a session id by hand.
func (b *Bridge) callScoped(ctx context.Context, method string, params acp.SessionScoped) (json.RawMessage, error) {
	if err := b.session.decorate(params); err != nil {
		return nil, err
	}
	return b.client.Call(ctx, method, params)
}

// Close shuts the connection down: the agent gets a chance to exit on
// stdin EOF and is killed when ctx expires. Safe to call more than once.
func (b *Bridge) Close(ctx context.Context) error {
	var err error
	b.closeOnce.Do(func() {
		close(b.closed)
		err = b.proc.Stop(ctx)
		<-b.watchDone
		b.client.Stop()
		b.logger.Info("bridge closed")
	})
	return err
}
