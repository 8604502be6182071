package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/Apothic-AI/bufo/internal/agent/events"
	"github.com/Apothic-AI/bufo/internal/tracing"
	"github.com/Apothic-AI/bufo/pkg/acp"
	"github.com/Apothic-AI/bufo/pkg/acp/jsonrpc"
)

// handleNotification runs on the read loop for every inbound notification,
// in stream order. Session updates flow through the normalizer; a
// notification with an unknown method still surfaces as a raw event.
func (b *Bridge) handleNotification(method string, params json.RawMessage) {
	switch method {
	case acp.MethodSessionUpdate, "session/notification":
		for _, ev := range b.norm.Normalize(params) {
			b.applySessionEffects(ev)
			tracing.TraceSessionUpdate(context.Background(), string(ev.Type), ev.SessionID, params)
			b.emit(ev)
		}
	default:
		b.logger.Debug("notification with unknown method", zap.String("method", method))
		envelope, err := json.Marshal(map[string]json.RawMessage{method: params})
		if err != nil {
			envelope = params
		}
		b.emit(rawEvent(envelope))
	}
}

// applySessionEffects folds normalized events back into session state so
// prompt construction always sees the latest mode and command set.
func (b *Bridge) applySessionEffects(ev events.Event) {
	switch ev.Type {
	case events.TypeModeChanged:
		b.session.setMode(ev.Mode)
	case events.TypeCommandsUpdated:
		b.session.setCommands(ev.Commands)
	}
}

// handleRequest serves agent-initiated calls. Modern agents use the fs/* and
// session/request_permission methods; the legacy filesystem/* and
// permission/request vocabulary is accepted as aliases. Terminal requests
// are acknowledged but not served.
func (b *Bridge) handleRequest(ctx context.Context, method string, params json.RawMessage) (interface{}, error) {
	switch method {
	case acp.MethodFsReadTextFile:
		return b.readTextFile(params)
	case acp.MethodFsWriteTextFile:
		return b.writeTextFile(params)
	case acp.MethodRequestPermission:
		return b.requestPermission(ctx, params)

	case "filesystem/read":
		return b.legacyRead(params)
	case "filesystem/write":
		return b.legacyWrite(params)
	case "permission/request":
		detail := compact(decodeLoose(params))
		b.emit(events.Event{Type: events.TypePermissionRequest, PermissionDetail: detail})
		return map[string]string{"decision": "reject_once"}, nil

	case "terminal/create", "terminal/output", "terminal/kill",
		"terminal/release", "terminal/wait_for_exit":
		b.logger.Debug("declining terminal request", zap.String("method", method))
		return map[string]interface{}{"ok": false, "error": "terminal adapter not wired"}, nil

	default:
		return nil, &jsonrpc.RemoteError{
			Code:    jsonrpc.CodeMethodNotFound,
			Message: fmt.Sprintf("method %q not supported", method),
		}
	}
}

func (b *Bridge) readTextFile(params json.RawMessage) (interface{}, error) {
	var req acp.ReadTextFileParams
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, &jsonrpc.RemoteError{Code: jsonrpc.CodeInvalidParams, Message: err.Error()}
	}

	abs, ok := containedPath(b.opts.Dir, req.Path)
	if !ok {
		return nil, &jsonrpc.RemoteError{Code: jsonrpc.CodeInvalidParams, Message: "path outside project"}
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, &jsonrpc.RemoteError{Code: jsonrpc.CodeInvalidParams, Message: fmt.Sprintf("read %s: %v", req.Path, err)}
	}

	content := string(data)
	if req.Line != nil || req.Limit != nil {
		content = sliceLines(content, req.Line, req.Limit)
	}
	b.logger.Debug("served file read", zap.String("path", req.Path), zap.Int("bytes", len(content)))
	return acp.ReadTextFileResult{Content: content}, nil
}

func (b *Bridge) writeTextFile(params json.RawMessage) (interface{}, error) {
	var req acp.WriteTextFileParams
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, &jsonrpc.RemoteError{Code: jsonrpc.CodeInvalidParams, Message: err.Error()}
	}

	abs, ok := containedPath(b.opts.Dir, req.Path)
	if !ok {
		return nil, &jsonrpc.RemoteError{Code: jsonrpc.CodeInvalidParams, Message: "path outside project"}
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, &jsonrpc.RemoteError{Code: jsonrpc.CodeInternalError, Message: err.Error()}
	}
	if err := os.WriteFile(abs, []byte(req.Content), 0o644); err != nil {
		return nil, &jsonrpc.RemoteError{Code: jsonrpc.CodeInternalError, Message: err.Error()}
	}
	b.logger.Info("agent wrote file", zap.String("path", req.Path), zap.Int("bytes", len(req.Content)))
	return struct{}{}, nil
}

func (b *Bridge) requestPermission(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var req acp.RequestPermissionParams
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, &jsonrpc.RemoteError{Code: jsonrpc.CodeInvalidParams, Message: err.Error()}
	}

	detail := ""
	if req.ToolCall != nil {
		detail = req.ToolCall.Title
		if detail == "" {
			detail = req.ToolCall.ToolCallID
		}
	}
	b.emit(events.Event{Type: events.TypePermissionRequest, PermissionDetail: detail})

	if b.opts.OnPermission != nil {
		return b.opts.OnPermission(ctx, req), nil
	}
	return rejectPermission(req), nil
}

// rejectPermission is the non-interactive default: pick the agent's own
// reject option when it offers one, otherwise cancel the request outright.
func rejectPermission(req acp.RequestPermissionParams) acp.RequestPermissionResult {
	for _, opt := range req.Options {
		if opt.Kind == "reject_once" {
			return acp.RequestPermissionResult{
				Outcome: acp.PermissionOutcome{Outcome: "selected", OptionID: opt.OptionID},
			}
		}
	}
	for _, opt := range req.Options {
		if strings.HasPrefix(opt.Kind, "reject") {
			return acp.RequestPermissionResult{
				Outcome: acp.PermissionOutcome{Outcome: "selected", OptionID: opt.OptionID},
			}
		}
	}
	return acp.RequestPermissionResult{Outcome: acp.PermissionOutcome{Outcome: "cancelled"}}
}

// legacyRead serves the filesystem/read alias, which reports failures in
// its result body rather than as protocol errors.
func (b *Bridge) legacyRead(params json.RawMessage) (interface{}, error) {
	var req struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return map[string]interface{}{"ok": false, "error": err.Error()}, nil
	}

	abs, ok := containedPath(b.opts.Dir, req.Path)
	if !ok {
		return map[string]interface{}{"ok": false, "error": "path outside project"}, nil
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return map[string]interface{}{"ok": false, "error": "not found"}, nil
	}
	return map[string]interface{}{"ok": true, "path": req.Path, "content": string(data)}, nil
}

func (b *Bridge) legacyWrite(params json.RawMessage) (interface{}, error) {
	var req struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return map[string]interface{}{"ok": false, "error": err.Error()}, nil
	}

	abs, ok := containedPath(b.opts.Dir, req.Path)
	if !ok {
		return map[string]interface{}{"ok": false, "error": "path outside project"}, nil
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return map[string]interface{}{"ok": false, "error": err.Error()}, nil
	}
	if err := os.WriteFile(abs, []byte(req.Content), 0o644); err != nil {
		return map[string]interface{}{"ok": false, "error": err.Error()}, nil
	}
	b.logger.Info("agent wrote file", zap.String("path", req.Path), zap.Int("bytes", len(req.Content)))
	return map[string]interface{}{"ok": true}, nil
}

// sliceLines applies the optional line/limit window of fs/read_text_file.
// Line numbers are 1-based.
func sliceLines(content string, line, limit *int) string {
	lines := strings.Split(content, "\n")
	start := 0
	if line != nil && *line > 1 {
		start = *line - 1
	}
	if start >= len(lines) {
		return ""
	}
	end := len(lines)
	if limit != nil && *limit >= 0 && start+*limit < end {
		end = start + *limit
	}
	return strings.Join(lines[start:end], "\n")
}

func decodeLoose(raw json.RawMessage) interface{} {
	var value interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		return string(raw)
	}
	return value
}
