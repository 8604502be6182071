package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Apothic-AI/bufo/internal/agent/events"
	"github.com/Apothic-AI/bufo/pkg/acp"
)

func TestSessionLifecyclePhases(t *testing.T) {
	s := newSessionState(false)
	assert.Equal(t, PhaseUninitialized, s.Phase())

	s.recordInitialize(&acp.InitializeResult{
		AgentCapabilities: acp.AgentCapabilities{LoadSession: true},
	})
	assert.Equal(t, PhaseInitialized, s.Phase())
	assert.True(t, s.Capabilities().LoadSession)

	s.recordSession("s-1", &acp.SessionModeState{CurrentModeID: "build"})
	assert.Equal(t, PhaseSessionActive, s.Phase())
	assert.Equal(t, "s-1", s.SessionID())
	assert.Equal(t, "build", s.CurrentMode())

	s.terminate()
	assert.Equal(t, PhaseTerminated, s.Phase())

	// Nothing revives a terminated session.
	s.recordSession("s-2", nil)
	assert.Equal(t, PhaseTerminated, s.Phase())
	assert.Equal(t, "s-1", s.SessionID())
}

func TestDecorateInjectsNegotiatedID(t *testing.T) {
	s := newSessionState(false)
	s.recordSession("s-1", nil)

	params := &acp.PromptParams{Prompt: []acp.ContentBlock{acp.TextBlock("hi")}}
	require.NoError(t, s.decorate(params))
	assert.Equal(t, "s-1", params.SessionID)

	mode := &acp.SetModeParams{ModeID: "plan"}
	require.NoError(t, s.decorate(mode))
	assert.Equal(t, "s-1", mode.SessionID)

	cancel := &acp.CancelParams{}
	require.NoError(t, s.decorate(cancel))
	assert.Equal(t, "s-1", cancel.SessionID)
}

func TestDecorateWithoutSessionLeavesCallUntouched(t *testing.T) {
	s := newSessionState(false)
	s.recordSession("", nil) // session-less agent

	params := &acp.PromptParams{}
	require.NoError(t, s.decorate(params))
	assert.Empty(t, params.SessionID)
}

func TestDecorateForceScopeRequiresID(t *testing.T) {
	s := newSessionState(true)
	s.recordSession("", nil)

	err := s.decorate(&acp.PromptParams{})
	assert.ErrorIs(t, err, ErrSessionRequired)

	// Once an id exists the forced agent behaves normally.
	s.recordSession("s-7", nil)
	params := &acp.PromptParams{}
	require.NoError(t, s.decorate(params))
	assert.Equal(t, "s-7", params.SessionID)
}

func TestSessionCommandCacheCopies(t *testing.T) {
	s := newSessionState(false)
	s.setCommands([]events.Command{{Name: "/a"}, {Name: "/b"}})

	got := s.Commands()
	require.Len(t, got, 2)
	got[0].Name = "/mutated"
	assert.Equal(t, "/a", s.Commands()[0].Name)
}
