package bridge

import (
	"errors"
	"sync"

	"github.com/Apothic-AI/bufo/internal/agent/events"
	"github.com/Apothic-AI/bufo/pkg/acp"
)

// Phase is the connection's position in the session lifecycle.
type Phase string

const (
	PhaseUninitialized Phase = "uninitialized"
	PhaseInitialized   Phase = "initialized"
	PhaseSessionActive Phase = "session_active"
	PhaseTerminated    Phase = "terminated"
)

// ErrSessionRequired is returned by decoration when configuration marks the
// agent session-scoped but no session identifier was ever negotiated.
var ErrSessionRequired = errors.New("agent is configured as session-scoped but no session id was negotiated")

// sessionState tracks negotiated capabilities and session identity. It is
// mutated only while processing responses and notifications; prompt
// construction and decoration read it.
type sessionState struct {
	mu         sync.Mutex
	phase      Phase
	caps       acp.AgentCapabilities
	sessionID  string
	mode       string
	commands   []events.Command
	forceScope bool
}

func newSessionState(forceScope bool) *sessionState {
	return &sessionState{phase: PhaseUninitialized, forceScope: forceScope}
}

func (s *sessionState) recordInitialize(res *acp.InitializeResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseTerminated {
		return
	}
	s.caps = res.AgentCapabilities
	if s.phase == PhaseUninitialized {
		s.phase = PhaseInitialized
	}
}

// recordSession stores the negotiated identifier. Agents without session
// scoping return an empty id; the session still becomes active.
func (s *sessionState) recordSession(id string, modes *acp.SessionModeState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseTerminated {
		return
	}
	s.sessionID = id
	s.phase = PhaseSessionActive
	if modes != nil && modes.CurrentModeID != "" {
		s.mode = modes.CurrentModeID
	}
}

func (s *sessionState) setMode(mode string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
}

func (s *sessionState) setCommands(cmds []events.Command) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append([]events.Command(nil), cmds...)
}

func (s *sessionState) terminate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = PhaseTerminated
}

func (s *sessionState) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *sessionState) Capabilities() acp.AgentCapabilities {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.caps
}

func (s *sessionState) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

func (s *sessionState) CurrentMode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *sessionState) Commands() []events.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]events.Command(nil), s.commands...)
}

// decorate injects the negotiated session identifier into an outgoing
// scoped call. With no identifier on record the call goes out unmodified,
// which session-less agents accept; ErrSessionRequired fires only when
// configuration insists the agent is strict.
func (s *sessionState) decorate(params acp.SessionScoped) error {
	s.mu.Lock()
	id := s.sessionID
	force := s.forceScope
	s.mu.Unlock()

	if id == "" {
		if force {
			return ErrSessionRequired
		}
		return nil
	}
	params.SetSessionID(id)
	return nil
}
