package bridge

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/Apothic-AI/bufo/internal/agent/events"
	"github.com/Apothic-AI/bufo/internal/common/logger"
)

// normalizer converts heterogeneous session update payloads into canonical
// events. Agents disagree wildly here: some send a flat type discriminator,
// some the nested sessionUpdate tagged form, some bare legacy keys. All of
// them land in the same closed event vocabulary, and anything unrecognized
// degrades to a raw event instead of an error.
//
// The normalizer also owns the tool call registry: records are created on
// the first event for an identifier, mutated by later updates, and retained
// for the life of the session so the timeline can be replayed.
type normalizer struct {
	logger *logger.Logger

	mu    sync.Mutex
	tools map[string]*events.ToolCallRecord
	order []string
}

func newNormalizer(log *logger.Logger) *normalizer {
	return &normalizer{
		logger: log,
		tools:  make(map[string]*events.ToolCallRecord),
	}
}

// Normalize maps one notification payload to its canonical events. Payloads
// may batch several updates under an "events" array; each item maps
// independently. A payload yielding nothing becomes a single raw event, so
// every notification produces at least one event and none ever fails.
func (n *normalizer) Normalize(raw json.RawMessage) []events.Event {
	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil || payload == nil {
		n.logger.Debug("update payload is not an object", zap.String("payload", clip(raw)))
		return []events.Event{rawEvent(raw)}
	}

	var out []events.Event
	if items, ok := payload["events"].([]interface{}); ok {
		for _, item := range items {
			if event, ok := item.(map[string]interface{}); ok {
				n.mapEvent(event, &out)
			}
		}
	} else {
		n.mapEvent(payload, &out)
	}

	if len(out) == 0 {
		n.logger.Debug("update payload matched no known shape", zap.String("payload", clip(raw)))
		out = append(out, rawEvent(raw))
	}

	sessionID := fieldString(payload, "sessionId")
	if sessionID == "" {
		sessionID = fieldString(payload, "session_id")
	}
	for i := range out {
		if out[i].SessionID == "" {
			out[i].SessionID = sessionID
		}
	}
	return out
}

// mapEvent dispatches one update object. The flat type discriminator wins
// when both shapes are present; the nested update wrapper and the
// sessionUpdate tag are fallbacks, then the legacy shorthand keys.
func (n *normalizer) mapEvent(event map[string]interface{}, out *[]events.Event) {
	if eventType := strings.ToLower(strings.TrimSpace(fieldString(event, "type"))); eventType != "" {
		n.mapTyped(eventType, event, out)
		return
	}

	if nested, ok := event["update"].(map[string]interface{}); ok {
		before := len(*out)
		n.mapEvent(nested, out)
		if len(*out) > before {
			return
		}
	}

	tag := fieldString(event, "sessionUpdate")
	if tag == "" {
		tag = fieldString(event, "session_update")
	}
	if tag = strings.ToLower(strings.TrimSpace(tag)); tag != "" {
		n.mapTagged(tag, event, out)
		return
	}

	// Legacy shorthand payloads used by various agent implementations.
	if value, ok := event["response"]; ok {
		if text := compact(value); text != "" {
			*out = append(*out, events.Event{Type: events.TypeMessageChunk, Role: events.RoleAssistant, Text: text})
		}
	}
	if value, ok := event["chunk"]; ok {
		if text := compact(value); text != "" {
			*out = append(*out, events.Event{Type: events.TypeMessageChunk, Role: events.RoleAssistant, Text: text})
		}
	}
	if value, ok := event["thought"]; ok {
		if text := compact(value); text != "" {
			*out = append(*out, events.Event{Type: events.TypeMessageChunk, Role: events.RoleThought, Text: text})
		}
	}
	if value, ok := event["plan"]; ok {
		*out = append(*out, events.Event{Type: events.TypePlan, Plan: parsePlan(value)})
	}
	if tool, ok := event["tool_call"]; ok {
		n.toolEvent(tool, "update", false, out)
	}
	if state, ok := event["state"].(string); ok && events.IsAgentState(state) {
		*out = append(*out, events.Event{Type: events.TypeStateChanged, State: state})
	}
}

func (n *normalizer) mapTyped(eventType string, event map[string]interface{}, out *[]events.Event) {
	switch eventType {
	case "response.chunk", "assistant.chunk", "message.chunk", "message.delta", "response.delta":
		if text := firstNonEmpty(event, "text", "delta", "chunk"); text != "" {
			*out = append(*out, events.Event{Type: events.TypeMessageChunk, Role: events.RoleAssistant, Text: text})
		}

	case "response.completed", "response.message", "assistant.message", "message.completed":
		if text := firstNonEmpty(event, "text", "response", "content"); text != "" {
			*out = append(*out, events.Event{Type: events.TypeMessageChunk, Role: events.RoleAssistant, Text: text})
		}

	case "thought", "thought.delta", "reasoning", "reasoning.delta":
		if text := firstNonEmpty(event, "text", "thought", "delta"); text != "" {
			*out = append(*out, events.Event{Type: events.TypeMessageChunk, Role: events.RoleThought, Text: text})
		}

	case "plan", "plan.updated", "plan.delta":
		source, ok := firstPresent(event, "plan", "items")
		if !ok {
			source = event
		}
		*out = append(*out, events.Event{Type: events.TypePlan, Plan: parsePlan(source)})

	case "tool_call.started", "tool_call.delta", "tool_call.completed",
		"tool_call.failed", "tool_call.cancelled", "tool.call", "tool_call":
		tool, ok := event["tool_call"]
		if !ok || tool == nil {
			tool = event
		}
		fallback := eventType
		if idx := strings.LastIndex(eventType, "."); idx >= 0 {
			fallback = eventType[idx+1:]
		}
		create := fallback == "started" || fallback == "call" || eventType == "tool_call"
		n.toolEvent(tool, fallback, create, out)

	case "mode.updated", "session.mode", "session_mode.updated":
		if mode := firstNonEmpty(event, "mode"); mode != "" {
			*out = append(*out, events.Event{Type: events.TypeModeChanged, Mode: mode})
		}

	case "slash_commands.updated", "slash.updated", "session.commands":
		source, _ := firstPresent(event, "commands", "slash_commands")
		*out = append(*out, events.Event{Type: events.TypeCommandsUpdated, Commands: parseCommands(source)})

	case "session.state", "state.updated", "session.updated":
		if state, ok := event["state"].(string); ok && events.IsAgentState(state) {
			*out = append(*out, events.Event{Type: events.TypeStateChanged, State: state})
		} else if len(event) > 0 {
			*out = append(*out, rawEventFromValue(event))
		}

	case "permission.requested", "permission.request":
		detail := firstNonEmpty(event, "message", "reason")
		if detail == "" {
			detail = compact(event)
		}
		*out = append(*out, events.Event{Type: events.TypePermissionRequest, PermissionDetail: detail})

	default:
		*out = append(*out, rawEventFromValue(event))
	}
}

func (n *normalizer) mapTagged(tag string, event map[string]interface{}, out *[]events.Event) {
	switch tag {
	case "agent_message_chunk", "agent.message.chunk":
		if text := extractText(event["content"]); text != "" {
			*out = append(*out, events.Event{Type: events.TypeMessageChunk, Role: events.RoleAssistant, Text: text})
		}

	case "agent_thought_chunk", "agent.thought.chunk":
		if text := extractText(event["content"]); text != "" {
			*out = append(*out, events.Event{Type: events.TypeMessageChunk, Role: events.RoleThought, Text: text})
		}

	case "agent_message", "agent.message", "agent_message_completed":
		text := extractText(event["content"])
		if text == "" {
			text = extractText(event["message"])
		}
		if text == "" {
			text = extractText(event["text"])
		}
		if text != "" {
			*out = append(*out, events.Event{Type: events.TypeMessageChunk, Role: events.RoleAssistant, Text: text})
		}

	case "current_mode_update", "session_mode.updated", "mode.updated":
		if mode := firstNonEmpty(event, "currentModeId", "modeId", "mode"); mode != "" {
			*out = append(*out, events.Event{Type: events.TypeModeChanged, Mode: mode})
		}

	case "available_commands_update", "slash_commands.updated", "session.commands":
		source, _ := firstPresent(event, "availableCommands", "commands", "slash_commands")
		*out = append(*out, events.Event{Type: events.TypeCommandsUpdated, Commands: parseCommands(source)})

	case "plan":
		source, ok := firstPresent(event, "entries", "plan", "items")
		if !ok {
			source = event
		}
		*out = append(*out, events.Event{Type: events.TypePlan, Plan: parsePlan(source)})

	case "tool_call":
		n.toolEvent(event, events.ToolStatusPending, true, out)

	case "tool_call_update":
		n.toolEvent(event, "", false, out)

	default:
		if state, ok := event["state"].(string); ok && events.IsAgentState(state) {
			*out = append(*out, events.Event{Type: events.TypeStateChanged, State: state})
			return
		}
		*out = append(*out, rawEventFromValue(event))
	}
}

// toolEvent folds one tool payload into the registry and appends the
// resulting event. Lists map item by item; non-object payloads degrade to
// raw events.
func (n *normalizer) toolEvent(tool interface{}, fallbackStatus string, create bool, out *[]events.Event) {
	switch v := tool.(type) {
	case []interface{}:
		for _, item := range v {
			n.toolEvent(item, fallbackStatus, create, out)
		}
	case map[string]interface{}:
		n.applyTool(v, fallbackStatus, create, out)
	default:
		*out = append(*out, rawEventFromValue(tool))
	}
}

func (n *normalizer) applyTool(tool map[string]interface{}, fallbackStatus string, create bool, out *[]events.Event) {
	id := firstNonEmpty(tool, "toolCallId", "tool_call_id", "id")
	title := firstNonEmpty(tool, "title", "name", "tool")
	kind := fieldString(tool, "kind")
	status := firstNonEmpty(tool, "status")
	if status == "" {
		status = fallbackStatus
	}

	var content []string
	if detail := firstNonEmpty(tool, "output", "error", "delta"); detail != "" {
		content = append(content, detail)
	}
	if blocks, ok := tool["content"].([]interface{}); ok {
		for _, item := range blocks {
			if text := toolContentText(item); text != "" {
				content = append(content, text)
			}
		}
	}

	// Agents that send no identifier get keyed by title, so repeated
	// updates for the same tool still share one record.
	if id == "" {
		id = title
	}
	if id == "" {
		id = "tool"
	}

	n.mu.Lock()
	rec, known := n.tools[id]
	if create || !known {
		// An initial tool_call replaces any record reusing the id; an
		// update for an unknown id synthesizes one so no progress is lost.
		rec = &events.ToolCallRecord{ID: id}
		if !known {
			n.order = append(n.order, id)
		}
		n.tools[id] = rec
	}
	if title != "" {
		rec.Title = title
	}
	if rec.Title == "" {
		rec.Title = id
	}
	if kind != "" {
		rec.Kind = kind
	}
	if status != "" {
		rec.Status = status
	}
	rec.Content = append(rec.Content, content...)
	snapshot := rec.Clone()
	n.mu.Unlock()

	eventType := events.TypeToolCallUpdate
	if create {
		eventType = events.TypeToolCall
	}
	*out = append(*out, events.Event{Type: eventType, Tool: snapshot})
}

// toolContentText renders one entry of a tool's content block array.
func toolContentText(item interface{}) string {
	m, ok := item.(map[string]interface{})
	if !ok {
		return compact(item)
	}
	if fieldString(m, "type") == "diff" {
		path := firstNonEmpty(m, "path", "uri")
		if path != "" {
			return "diff " + path
		}
		return "diff"
	}
	return extractText(m)
}

// ToolRecord returns a snapshot of the tracked record for id.
func (n *normalizer) ToolRecord(id string) (*events.ToolCallRecord, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	rec, ok := n.tools[id]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// ToolRecords returns snapshots of every tracked record in first-seen order.
func (n *normalizer) ToolRecords() []*events.ToolCallRecord {
	n.mu.Lock()
	defer n.mu.Unlock()
	records := make([]*events.ToolCallRecord, 0, len(n.order))
	for _, id := range n.order {
		records = append(records, n.tools[id].Clone())
	}
	return records
}

func parsePlan(value interface{}) []events.PlanEntry {
	switch v := value.(type) {
	case string:
		if v == "" {
			return nil
		}
		return []events.PlanEntry{{Description: v}}

	case []interface{}:
		entries := make([]events.PlanEntry, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]interface{}); ok {
				desc := firstNonEmpty(m, "content", "description", "step", "title")
				if desc == "" {
					desc = compact(m)
				}
				entries = append(entries, events.PlanEntry{
					Description: desc,
					Status:      fieldString(m, "status"),
					Priority:    fieldString(m, "priority"),
				})
				continue
			}
			if text := compact(item); text != "" {
				entries = append(entries, events.PlanEntry{Description: text})
			}
		}
		return entries

	case map[string]interface{}:
		if items, ok := firstPresent(v, "items", "steps", "entries"); ok {
			return parsePlan(items)
		}
		if text := compact(v); text != "" {
			return []events.PlanEntry{{Description: text}}
		}
		return nil

	default:
		if text := compact(value); text != "" {
			return []events.PlanEntry{{Description: text}}
		}
		return nil
	}
}

// parseCommands normalizes a command list to the canonical leading-slash
// form. Both object entries ({name, description}) and bare strings appear
// in the wild.
func parseCommands(value interface{}) []events.Command {
	list, ok := value.([]interface{})
	if !ok {
		return nil
	}
	commands := make([]events.Command, 0, len(list))
	for _, item := range list {
		var name, description string
		if m, ok := item.(map[string]interface{}); ok {
			name = strings.TrimSpace(fieldString(m, "name"))
			description = fieldString(m, "description")
		} else {
			name = strings.TrimSpace(compact(item))
		}
		if name == "" {
			continue
		}
		if !strings.HasPrefix(name, "/") {
			name = "/" + name
		}
		commands = append(commands, events.Command{Name: name, Description: description})
	}
	return commands
}

// extractText digs agent text out of the content shapes agents use: a bare
// string, an object with a text field, an object wrapping inner content, or
// a list of any of these joined in order.
func extractText(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case map[string]interface{}:
		if text, ok := v["text"].(string); ok {
			return text
		}
		if inner, ok := v["content"]; ok {
			return extractText(inner)
		}
	case []interface{}:
		var b strings.Builder
		for _, item := range v {
			b.WriteString(extractText(item))
		}
		return b.String()
	}
	return ""
}

func rawEvent(raw json.RawMessage) events.Event {
	return events.Event{Type: events.TypeRaw, Raw: append(json.RawMessage(nil), raw...)}
}

func clip(raw []byte) string {
	const max = 256
	if len(raw) <= max {
		return string(raw)
	}
	return string(raw[:max]) + "..."
}

func rawEventFromValue(value interface{}) events.Event {
	data, err := json.Marshal(value)
	if err != nil {
		data, _ = json.Marshal(fmt.Sprintf("%v", value))
	}
	return events.Event{Type: events.TypeRaw, Raw: data}
}

func fieldString(m map[string]interface{}, key string) string {
	value, _ := m[key].(string)
	return value
}

// firstNonEmpty returns the compacted value of the first key whose value
// renders non-empty.
func firstNonEmpty(m map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if value, ok := m[key]; ok {
			if text := compact(value); text != "" {
				return text
			}
		}
	}
	return ""
}

// firstPresent returns the first key present with a non-nil value.
func firstPresent(m map[string]interface{}, keys ...string) (interface{}, bool) {
	for _, key := range keys {
		if value, ok := m[key]; ok && value != nil {
			return value, true
		}
	}
	return nil, false
}

// compact renders an arbitrary JSON value as a short single-line string for
// diagnostic text. Map keys are sorted so output is stable.
func compact(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case []interface{}:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = compact(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, key := range keys {
			parts[i] = key + "=" + compact(v[key])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return fmt.Sprintf("%v", v)
	}
}
