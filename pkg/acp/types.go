// Package acp defines the agent-control-protocol vocabulary: method names,
// capability negotiation shapes, and the parameter/result payloads of the
// calls a client makes against a coding agent.
//
// Message shapes vary between agent implementations. Outgoing payloads here
// follow the strict wire form; tolerant decoding of inbound notification
// traffic is the normalizer's job, not this package's.
package acp

// ProtocolVersion is the protocol revision this client speaks.
const ProtocolVersion = 1

// Methods initiated by the client.
const (
	MethodInitialize     = "initialize"
	MethodAuthenticate   = "authenticate"
	MethodSessionNew     = "session/new"
	MethodSessionLoad    = "session/load"
	MethodSessionPrompt  = "session/prompt"
	MethodSessionSetMode = "session/set_mode"
	MethodSessionCancel  = "session/cancel"
)

// Methods initiated by the agent.
const (
	MethodSessionUpdate     = "session/update"
	MethodRequestPermission = "session/request_permission"
	MethodFsReadTextFile    = "fs/read_text_file"
	MethodFsWriteTextFile   = "fs/write_text_file"
)

// InitializeParams are the parameters of the initialize call.
type InitializeParams struct {
	ProtocolVersion    int                `json:"protocolVersion"`
	ClientCapabilities ClientCapabilities `json:"clientCapabilities"`
}

// ClientCapabilities advertises what agent-initiated requests we can serve.
type ClientCapabilities struct {
	Fs FsCapabilities `json:"fs"`
}

// FsCapabilities advertises filesystem access for the agent.
type FsCapabilities struct {
	ReadTextFile  bool `json:"readTextFile"`
	WriteTextFile bool `json:"writeTextFile"`
}

// InitializeResult is the agent's half of capability negotiation.
type InitializeResult struct {
	ProtocolVersion   int               `json:"protocolVersion"`
	AgentCapabilities AgentCapabilities `json:"agentCapabilities"`
	AuthMethods       []AuthMethod      `json:"authMethods,omitempty"`
}

// AgentCapabilities describes what the agent supports.
type AgentCapabilities struct {
	LoadSession        bool               `json:"loadSession"`
	PromptCapabilities PromptCapabilities `json:"promptCapabilities"`
}

// PromptCapabilities describes which content block kinds the agent accepts
// in prompts. EmbeddedContext gates structured resource blocks.
type PromptCapabilities struct {
	Audio           bool `json:"audio"`
	Image           bool `json:"image"`
	EmbeddedContext bool `json:"embeddedContext"`
}

// AuthMethod is an authentication scheme advertised by the agent.
type AuthMethod struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

// McpServer configures a context server the agent should connect to.
type McpServer struct {
	Name    string   `json:"name"`
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
	Env     []EnvVar `json:"env,omitempty"`
}

// EnvVar is a name/value environment pair.
type EnvVar struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// NewSessionParams are the parameters of session/new.
type NewSessionParams struct {
	Cwd        string      `json:"cwd"`
	McpServers []McpServer `json:"mcpServers"`
}

// NewSessionResult carries the negotiated session identifier. Agents without
// session scoping return an empty id; that is legal.
type NewSessionResult struct {
	SessionID string            `json:"sessionId"`
	Modes     *SessionModeState `json:"modes,omitempty"`
}

// LoadSessionParams are the parameters of session/load, offered by agents
// that advertise the loadSession capability.
type LoadSessionParams struct {
	SessionID  string      `json:"sessionId"`
	Cwd        string      `json:"cwd"`
	McpServers []McpServer `json:"mcpServers"`
}

// LoadSessionResult mirrors NewSessionResult. Some agents echo the session id
// back, some return only mode state.
type LoadSessionResult struct {
	SessionID string            `json:"sessionId,omitempty"`
	Modes     *SessionModeState `json:"modes,omitempty"`
}

// SessionModeState is the agent's mode advertisement.
type SessionModeState struct {
	CurrentModeID  string        `json:"currentModeId"`
	AvailableModes []SessionMode `json:"availableModes,omitempty"`
}

// SessionMode is one selectable agent mode.
type SessionMode struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

// SessionScoped is implemented by parameter types the protocol scopes to a
// session. Decoration injects the negotiated identifier through this
// interface so no call site can thread it by hand.
type SessionScoped interface {
	SetSessionID(id string)
}

// PromptParams are the parameters of session/prompt. SessionID is filled in
// by session decoration when one was negotiated.
type PromptParams struct {
	SessionID string         `json:"sessionId,omitempty"`
	Prompt    []ContentBlock `json:"prompt"`
}

// SetSessionID implements SessionScoped.
func (p *PromptParams) SetSessionID(id string) { p.SessionID = id }

// StopReason says why a prompt turn ended.
type StopReason string

const (
	StopEndTurn         StopReason = "end_turn"
	StopMaxTokens       StopReason = "max_tokens"
	StopMaxTurnRequests StopReason = "max_turn_requests"
	StopRefusal         StopReason = "refusal"
	StopCancelled       StopReason = "cancelled"
)

// PromptResult is the response to session/prompt.
type PromptResult struct {
	StopReason StopReason `json:"stopReason"`
}

// SetModeParams are the parameters of session/set_mode.
type SetModeParams struct {
	SessionID string `json:"sessionId,omitempty"`
	ModeID    string `json:"modeId"`
}

// SetSessionID implements SessionScoped.
func (p *SetModeParams) SetSessionID(id string) { p.SessionID = id }

// CancelParams are the parameters of session/cancel.
type CancelParams struct {
	SessionID string `json:"sessionId,omitempty"`
}

// SetSessionID implements SessionScoped.
func (p *CancelParams) SetSessionID(id string) { p.SessionID = id }

// ReadTextFileParams are the parameters of the agent's fs/read_text_file
// request.
type ReadTextFileParams struct {
	SessionID string `json:"sessionId,omitempty"`
	Path      string `json:"path"`
	Line      *int   `json:"line,omitempty"`
	Limit     *int   `json:"limit,omitempty"`
}

// ReadTextFileResult carries file contents back to the agent.
type ReadTextFileResult struct {
	Content string `json:"content"`
}

// WriteTextFileParams are the parameters of the agent's fs/write_text_file
// request.
type WriteTextFileParams struct {
	SessionID string `json:"sessionId,omitempty"`
	Path      string `json:"path"`
	Content   string `json:"content"`
}

// PermissionOption is one choice offered in a permission request.
type PermissionOption struct {
	OptionID string `json:"optionId"`
	Name     string `json:"name,omitempty"`
	Kind     string `json:"kind,omitempty"` // allow_once, allow_always, reject_once, reject_always
}

// RequestPermissionParams are the parameters of the agent's
// session/request_permission request.
type RequestPermissionParams struct {
	SessionID string             `json:"sessionId,omitempty"`
	ToolCall  *PermissionSubject `json:"toolCall,omitempty"`
	Options   []PermissionOption `json:"options"`
}

// PermissionSubject identifies the tool call a permission request is about.
type PermissionSubject struct {
	ToolCallID string `json:"toolCallId,omitempty"`
	Title      string `json:"title,omitempty"`
}

// PermissionOutcome is the selected/cancelled verdict inside a permission
// response.
type PermissionOutcome struct {
	Outcome  string `json:"outcome"` // selected or cancelled
	OptionID string `json:"optionId,omitempty"`
}

// RequestPermissionResult answers session/request_permission.
type RequestPermissionResult struct {
	Outcome PermissionOutcome `json:"outcome"`
}
