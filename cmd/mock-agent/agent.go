package main

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/Apothic-AI/bufo/pkg/acp"
	"github.com/Apothic-AI/bufo/pkg/acp/jsonrpc"
)

// Emit pacing profiles selected by --profile.
const (
	profileDefault = "default"
	profileFast    = "fast"
	profileSlow    = "slow"
)

var sessionModes = []acp.SessionMode{
	{ID: "ask", Name: "Ask", Description: "Discuss without making changes"},
	{ID: "code", Name: "Code", Description: "Edit files directly"},
}

// agent owns the stdout encoder and runs every handler on one goroutine, so
// frames never interleave mid-write.
type agent struct {
	enc     *json.Encoder
	inbox   <-chan frame
	profile string

	sessionID   string
	currentMode string
	nextReqID   int64

	// cancelled is set when session/cancel arrives during a prompt turn and
	// cleared at the start of the next one.
	cancelled bool
}

func newAgent(enc *json.Encoder, inbox <-chan frame, profile string) *agent {
	return &agent{enc: enc, inbox: inbox, profile: profile, sessionID: defaultSessionID}
}

// serve dispatches inbox frames until stdin closes.
func (a *agent) serve() {
	for f := range a.inbox {
		if f.isRequest() {
			a.handleRequest(f)
		}
		// Client notifications and stale responses carry nothing for us.
	}
}

func (a *agent) handleRequest(f frame) {
	switch f.Method {
	case acp.MethodInitialize:
		a.respond(f.ID, acp.InitializeResult{
			ProtocolVersion: acp.ProtocolVersion,
			AgentCapabilities: acp.AgentCapabilities{
				LoadSession:        true,
				PromptCapabilities: acp.PromptCapabilities{EmbeddedContext: true},
			},
		})

	case acp.MethodSessionNew:
		a.currentMode = "ask"
		a.respond(f.ID, acp.NewSessionResult{SessionID: a.sessionID, Modes: a.modeState()})
		a.announceCommands()

	case acp.MethodSessionLoad:
		var params acp.LoadSessionParams
		if err := json.Unmarshal(f.Params, &params); err != nil || params.SessionID == "" {
			a.respondError(f.ID, jsonrpc.CodeInvalidParams, "session/load requires a sessionId")
			return
		}
		// Adopt the caller's id so a resumed conversation stays scoped to it.
		a.sessionID = params.SessionID
		if a.currentMode == "" {
			a.currentMode = "ask"
		}
		a.respond(f.ID, acp.LoadSessionResult{SessionID: a.sessionID, Modes: a.modeState()})
		a.announceCommands()

	case acp.MethodSessionPrompt:
		a.handlePrompt(f)

	case acp.MethodSessionSetMode:
		var params acp.SetModeParams
		if err := json.Unmarshal(f.Params, &params); err != nil {
			a.respondError(f.ID, jsonrpc.CodeInvalidParams, "malformed set_mode params")
			return
		}
		if !knownMode(params.ModeID) {
			a.respondError(f.ID, jsonrpc.CodeInvalidParams, "unknown mode: "+params.ModeID)
			return
		}
		a.currentMode = params.ModeID
		a.respond(f.ID, struct{}{})
		a.update(updateBody{"sessionUpdate": "current_mode_update", "currentModeId": params.ModeID})

	case acp.MethodSessionCancel:
		// Nothing is in flight when a cancel reaches the dispatch loop.
		a.respond(f.ID, struct{}{})

	default:
		a.respondError(f.ID, jsonrpc.CodeMethodNotFound, "unsupported method: "+f.Method)
	}
}

func (a *agent) handlePrompt(f frame) {
	var params acp.PromptParams
	if err := json.Unmarshal(f.Params, &params); err != nil {
		a.respondError(f.ID, jsonrpc.CodeInvalidParams, "malformed prompt params")
		return
	}
	if params.SessionID != "" && params.SessionID != a.sessionID {
		a.respondError(f.ID, jsonrpc.CodeInvalidParams, "unknown session: "+params.SessionID)
		return
	}

	a.cancelled = false
	stop := a.runScenario(strings.TrimSpace(promptText(params.Prompt)))
	if a.cancelled {
		stop = acp.StopCancelled
	}
	if stop == "" {
		stop = acp.StopEndTurn
	}
	a.respond(f.ID, acp.PromptResult{StopReason: stop})
}

// promptText flattens the text-bearing blocks of a prompt.
func promptText(blocks []acp.ContentBlock) string {
	var parts []string
	for _, b := range blocks {
		switch b.Type {
		case acp.ContentTypeText:
			if b.Text != "" {
				parts = append(parts, b.Text)
			}
		case acp.ContentTypeResource:
			if b.Resource != nil && b.Resource.Text != "" {
				parts = append(parts, b.Resource.Text)
			}
		}
	}
	return strings.Join(parts, "\n")
}

func (a *agent) modeState() *acp.SessionModeState {
	return &acp.SessionModeState{CurrentModeID: a.currentMode, AvailableModes: sessionModes}
}

func knownMode(id string) bool {
	for _, m := range sessionModes {
		if m.ID == id {
			return true
		}
	}
	return false
}

func (a *agent) respond(id json.RawMessage, result interface{}) {
	payload, err := json.Marshal(result)
	if err != nil {
		a.respondError(id, jsonrpc.CodeInternalError, "marshal result: "+err.Error())
		return
	}
	a.send(jsonrpc.Response{JSONRPC: "2.0", ID: id, Result: payload})
}

func (a *agent) respondError(id json.RawMessage, code int, message string) {
	a.send(jsonrpc.Response{JSONRPC: "2.0", ID: id, Error: &jsonrpc.RemoteError{Code: code, Message: message}})
}

func (a *agent) send(msg interface{}) {
	if err := a.enc.Encode(msg); err != nil {
		fmt.Fprintf(os.Stderr, "mock-agent: write: %v\n", err)
		os.Exit(1)
	}
}

// request issues a client-bound call (fs access, permission) and blocks until
// the matching response arrives. Requests landing in the meantime are served
// inline so a concurrent cancel is not lost; the caller must check
// a.cancelled afterwards.
func (a *agent) request(method string, params interface{}) (frame, bool) {
	raw, err := json.Marshal(params)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mock-agent: marshal %s params: %v\n", method, err)
		return frame{}, false
	}
	a.nextReqID++
	id := a.nextReqID
	a.send(jsonrpc.Request{JSONRPC: "2.0", ID: id, Method: method, Params: raw})

	for f := range a.inbox {
		if f.isResponse() {
			var got int64
			if err := json.Unmarshal(f.ID, &got); err == nil && got == id {
				return f, true
			}
			continue
		}
		if f.isRequest() {
			a.handleTurnInterrupt(f)
		}
	}
	// Stdin closed mid-call; unwind the scenario.
	a.cancelled = true
	return frame{}, false
}

// pollCancel drains queued frames without blocking. Scenarios call it between
// emit steps so a cancel takes effect promptly.
func (a *agent) pollCancel() bool {
	for {
		select {
		case f, ok := <-a.inbox:
			if !ok {
				a.cancelled = true
				return true
			}
			if f.isRequest() {
				a.handleTurnInterrupt(f)
			}
		default:
			return a.cancelled
		}
	}
}

// handleTurnInterrupt services a request that arrives while a prompt turn is
// running. Cancel is honored; anything else is refused rather than queued.
func (a *agent) handleTurnInterrupt(f frame) {
	if f.Method == acp.MethodSessionCancel {
		a.respond(f.ID, struct{}{})
		a.cancelled = true
		return
	}
	a.respondError(f.ID, jsonrpc.CodeInvalidRequest, "busy with a prompt turn")
}

// delayRange returns the emit pause bounds for a pacing profile.
func delayRange(profile string) (time.Duration, time.Duration) {
	switch profile {
	case profileFast:
		return 5 * time.Millisecond, 20 * time.Millisecond
	case profileSlow:
		return 300 * time.Millisecond, 1200 * time.Millisecond
	default:
		return 40 * time.Millisecond, 180 * time.Millisecond
	}
}

func (a *agent) pause() {
	lo, hi := delayRange(a.profile)
	time.Sleep(lo + time.Duration(rand.Int63n(int64(hi-lo))))
}
