// Package events defines the canonical event stream produced by the agent
// bridge. Every inbound notification, whatever wire shape the agent chose,
// is normalized into exactly one of these variants before it reaches the
// timeline renderer.
package events

import "encoding/json"

// Event type constants define the canonical variants of the stream.
const (
	// TypeMessageChunk is streaming text from the agent. Role distinguishes
	// assistant output from chain-of-thought content.
	TypeMessageChunk = "message_chunk"

	// TypeModeChanged reports that the agent switched modes.
	TypeModeChanged = "mode_changed"

	// TypeCommandsUpdated carries the agent's current slash-command list.
	TypeCommandsUpdated = "commands_updated"

	// TypePlan carries the agent's execution plan or task list.
	TypePlan = "plan"

	// TypeToolCall reports a tool invocation starting.
	TypeToolCall = "tool_call"

	// TypeToolCallUpdate reports a status or content change on an existing
	// tool invocation.
	TypeToolCallUpdate = "tool_call_update"

	// TypeStateChanged reports an agent availability change.
	TypeStateChanged = "state_changed"

	// TypePermissionRequest reports that the agent is asking for approval.
	TypePermissionRequest = "permission_request"

	// TypeRaw is the permissive fallback for payloads matching no known
	// shape. The original bytes are preserved for diagnostics.
	TypeRaw = "raw"
)

// Roles attached to message chunks.
const (
	RoleAssistant = "assistant"
	RoleThought   = "thought"
)

// Agent availability states carried by state_changed events.
const (
	StateNotReady = "notready"
	StateBusy     = "busy"
	StateAsking   = "asking"
	StateIdle     = "idle"
)

// IsAgentState reports whether s is one of the known availability states.
// Agents sometimes reuse the state key for unrelated payloads; anything
// outside this set is not treated as a state transition.
func IsAgentState(s string) bool {
	switch s {
	case StateNotReady, StateBusy, StateAsking, StateIdle:
		return true
	}
	return false
}

// Tool call lifecycle states. Agents that report other strings (started,
// delta, cancelled) have them preserved verbatim on the record.
const (
	ToolStatusPending    = "pending"
	ToolStatusInProgress = "in_progress"
	ToolStatusCompleted  = "completed"
	ToolStatusFailed     = "failed"
)

// Event is the canonical message produced by the bridge's normalizer.
// Type selects which of the remaining fields are meaningful.
type Event struct {
	// Type identifies the variant. Use the Type* constants.
	Type string `json:"type"`

	// SessionID is the session the event belongs to, when known.
	SessionID string `json:"session_id,omitempty"`

	// --- Message fields (for "message_chunk") ---

	// Role is "assistant" or "thought".
	Role string `json:"role,omitempty"`

	// Text is the streamed text content.
	Text string `json:"text,omitempty"`

	// --- Mode fields (for "mode_changed") ---

	// Mode is the new mode identifier.
	Mode string `json:"mode,omitempty"`

	// --- Command fields (for "commands_updated") ---

	// Commands is the full advertised command list, in wire order, with
	// names normalized to the leading-slash form.
	Commands []Command `json:"commands,omitempty"`

	// --- Plan fields (for "plan") ---

	// Plan is the agent's task list, in wire order.
	Plan []PlanEntry `json:"plan,omitempty"`

	// --- Tool fields (for "tool_call" and "tool_call_update") ---

	// Tool is a snapshot of the tracked tool call after applying this
	// event. For updates this includes content accumulated from earlier
	// events on the same identifier.
	Tool *ToolCallRecord `json:"tool,omitempty"`

	// --- State fields (for "state_changed") ---

	// State is one of the State* constants.
	State string `json:"state,omitempty"`

	// --- Permission fields (for "permission_request") ---

	// PermissionDetail describes the action awaiting approval.
	PermissionDetail string `json:"permission_detail,omitempty"`

	// --- Fallback fields (for "raw") ---

	// Raw holds the original payload bytes for unrecognized shapes.
	Raw json.RawMessage `json:"raw,omitempty"`
}

// Command is one slash command advertised by the agent.
type Command struct {
	// Name is the invocation form, always with a leading slash.
	Name string `json:"name"`

	// Description is the agent-provided help text, if any.
	Description string `json:"description,omitempty"`
}

// PlanEntry is one step of the agent's execution plan.
type PlanEntry struct {
	// Description is the content of the task.
	Description string `json:"description,omitempty"`

	// Status is "pending", "in_progress", "completed", or "failed".
	Status string `json:"status,omitempty"`

	// Priority indicates relative importance.
	Priority string `json:"priority,omitempty"`
}

// ToolCallRecord tracks one tool invocation across its lifecycle. Records
// are created on the first event for an identifier, mutated by subsequent
// updates, and retained for the life of the session so the timeline can be
// replayed.
type ToolCallRecord struct {
	// ID uniquely identifies the invocation within the session.
	ID string `json:"id"`

	// Title is the human-readable label, falling back to the tool name or
	// identifier when the agent sent none.
	Title string `json:"title,omitempty"`

	// Kind categorizes the tool (read, edit, execute, ...) when reported.
	Kind string `json:"kind,omitempty"`

	// Status is the current lifecycle state.
	Status string `json:"status,omitempty"`

	// Content accumulates output, error, and delta fragments across the
	// record's lifetime, in arrival order.
	Content []string `json:"content,omitempty"`
}

// Clone returns a copy safe to hand to consumers while the registry keeps
// mutating the original.
func (r *ToolCallRecord) Clone() *ToolCallRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.Content = append([]string(nil), r.Content...)
	return &out
}
