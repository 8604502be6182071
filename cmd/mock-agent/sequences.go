package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Apothic-AI/bufo/pkg/acp"
	"github.com/Apothic-AI/bufo/pkg/acp/jsonrpc"
)

// updateBody is the inner object of a session/update notification.
type updateBody map[string]interface{}

var toolCallCounter int

func nextToolID() string {
	toolCallCounter++
	return fmt.Sprintf("mock_tool_%04d", toolCallCounter)
}

// update emits one session/update notification wrapping the given body.
func (a *agent) update(body updateBody) {
	params, err := json.Marshal(map[string]interface{}{
		"sessionId": a.sessionID,
		"update":    body,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "mock-agent: marshal update: %v\n", err)
		return
	}
	a.send(jsonrpc.Notification{JSONRPC: "2.0", Method: acp.MethodSessionUpdate, Params: params})
}

func textContent(text string) map[string]interface{} {
	return map[string]interface{}{"type": "text", "text": text}
}

func (a *agent) emitText(text string) {
	a.update(updateBody{"sessionUpdate": "agent_message_chunk", "content": textContent(text)})
}

func (a *agent) emitThought(text string) {
	a.update(updateBody{"sessionUpdate": "agent_thought_chunk", "content": textContent(text)})
}

// emitTextStream breaks text into word-group chunks with pacing pauses,
// polling for cancel between chunks. Returns false when the turn was
// cancelled partway.
func (a *agent) emitTextStream(text string) bool {
	words := strings.Fields(text)
	for i := 0; i < len(words); i += 4 {
		if a.pollCancel() {
			return false
		}
		end := i + 4
		if end > len(words) {
			end = len(words)
		}
		chunk := strings.Join(words[i:end], " ")
		if end < len(words) {
			chunk += " "
		} else {
			chunk += "\n"
		}
		a.emitText(chunk)
		a.pause()
	}
	return true
}

type planStep struct {
	Content  string
	Status   string
	Priority string
}

func (a *agent) emitPlan(steps []planStep) {
	entries := make([]interface{}, 0, len(steps))
	for _, s := range steps {
		entries = append(entries, map[string]interface{}{
			"content":  s.Content,
			"status":   s.Status,
			"priority": s.Priority,
		})
	}
	a.update(updateBody{"sessionUpdate": "plan", "entries": entries})
}

func (a *agent) emitToolStart(id, title, kind string) {
	a.update(updateBody{
		"sessionUpdate": "tool_call",
		"toolCallId":    id,
		"title":         title,
		"kind":          kind,
		"status":        "pending",
	})
}

func (a *agent) emitToolStatus(id, status string) {
	a.update(updateBody{"sessionUpdate": "tool_call_update", "toolCallId": id, "status": status})
}

func (a *agent) emitToolOutput(id, status, output string) {
	a.update(updateBody{
		"sessionUpdate": "tool_call_update",
		"toolCallId":    id,
		"status":        status,
		"content": []interface{}{
			map[string]interface{}{"type": "content", "content": textContent(output)},
		},
	})
}

// announceCommands advertises the scripted scenarios as slash commands.
func (a *agent) announceCommands() {
	cmds := make([]interface{}, 0, len(scenarioCommands))
	for _, c := range scenarioCommands {
		cmds = append(cmds, map[string]interface{}{"name": c.name, "description": c.description})
	}
	a.update(updateBody{"sessionUpdate": "available_commands_update", "availableCommands": cmds})
}

// readWorkspaceFile drives the client's fs capability: announce a read tool,
// ask the client for the file contents, and report them as tool output.
func (a *agent) readWorkspaceFile(path string) {
	id := nextToolID()
	a.emitToolStart(id, "Read "+displayPath(path), "read")
	a.pause()

	limit := 20
	res, ok := a.request(acp.MethodFsReadTextFile, acp.ReadTextFileParams{
		SessionID: a.sessionID,
		Path:      path,
		Limit:     &limit,
	})
	if !ok || a.cancelled {
		return
	}
	if res.Error != nil {
		a.emitToolOutput(id, "failed", res.Error.Message)
		return
	}
	var contents acp.ReadTextFileResult
	if err := json.Unmarshal(res.Result, &contents); err != nil {
		a.emitToolOutput(id, "failed", "unreadable response: "+err.Error())
		return
	}
	a.emitToolOutput(id, "completed", contents.Content)
}

// writeScratchFile exercises the permission flow followed by the client's
// write capability. The file lands inside the workspace so the client's path
// containment accepts it.
func (a *agent) writeScratchFile() {
	id := nextToolID()
	path := filepath.Join(workspaceRoot(), "mock-agent-notes.md")
	title := "Write " + filepath.Base(path)
	a.emitToolStart(id, title, "edit")
	a.pause()

	granted, ok := a.requestPermission(id, title)
	if !ok || a.cancelled {
		return
	}
	if !granted {
		a.emitToolOutput(id, "failed", "permission denied")
		return
	}

	content := fmt.Sprintf("# mock agent notes\n\nwritten at %s by %s\n",
		time.Now().Format(time.RFC3339), defaultSessionID)
	res, ok := a.request(acp.MethodFsWriteTextFile, acp.WriteTextFileParams{
		SessionID: a.sessionID,
		Path:      path,
		Content:   content,
	})
	if !ok || a.cancelled {
		return
	}
	if res.Error != nil {
		a.emitToolOutput(id, "failed", res.Error.Message)
		return
	}
	a.emitToolOutput(id, "completed", "wrote "+displayPath(path))
}

// requestPermission asks the client to approve a tool call and decodes the
// verdict. The second return is false when the connection died mid-ask.
func (a *agent) requestPermission(toolCallID, title string) (bool, bool) {
	res, ok := a.request(acp.MethodRequestPermission, acp.RequestPermissionParams{
		SessionID: a.sessionID,
		ToolCall:  &acp.PermissionSubject{ToolCallID: toolCallID, Title: title},
		Options: []acp.PermissionOption{
			{OptionID: "allow-once", Name: "Allow", Kind: "allow_once"},
			{OptionID: "reject-once", Name: "Reject", Kind: "reject_once"},
		},
	})
	if !ok {
		return false, false
	}
	if res.Error != nil {
		return false, true
	}
	var verdict acp.RequestPermissionResult
	if err := json.Unmarshal(res.Result, &verdict); err != nil {
		return false, true
	}
	return permissionGranted(verdict), true
}

// permissionGranted reports whether a verdict selected an allow option.
func permissionGranted(res acp.RequestPermissionResult) bool {
	return res.Outcome.Outcome == "selected" && strings.HasPrefix(res.Outcome.OptionID, "allow")
}
