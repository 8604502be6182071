package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/Apothic-AI/bufo/internal/agent/bridge"
	"github.com/Apothic-AI/bufo/internal/agent/events"
	"github.com/Apothic-AI/bufo/pkg/acp"
)

// renderLoop consumes the bridge's event stream until quit closes, then
// drains whatever is still buffered so late events are not lost.
func renderLoop(br *bridge.Bridge, r *renderer, quit <-chan struct{}) {
	for {
		select {
		case ev := <-br.Events():
			r.Render(ev)
		case <-quit:
			for {
				select {
				case ev := <-br.Events():
					r.Render(ev)
				default:
					return
				}
			}
		}
	}
}

// renderer turns canonical events into terminal output. In JSON mode every
// event becomes one line on stdout; in text mode assistant text streams raw
// and everything else gets a bracketed status line.
type renderer struct {
	jsonOut  bool
	thoughts bool

	mu       sync.Mutex
	enc      *json.Encoder
	lastRole string
	midLine  bool
}

func newRenderer(jsonOut, thoughts bool) *renderer {
	return &renderer{jsonOut: jsonOut, thoughts: thoughts, enc: json.NewEncoder(os.Stdout)}
}

func (r *renderer) Render(ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.jsonOut {
		_ = r.enc.Encode(ev)
		return
	}

	switch ev.Type {
	case events.TypeMessageChunk:
		r.renderChunk(ev)
	case events.TypeToolCall, events.TypeToolCallUpdate:
		if ev.Tool == nil {
			return
		}
		r.breakLineLocked()
		title := ev.Tool.Title
		if title == "" {
			title = ev.Tool.ID
		}
		status := ev.Tool.Status
		if status == "" {
			status = "started"
		}
		fmt.Printf("[tool] %s: %s\n", title, status)
	case events.TypePlan:
		r.breakLineLocked()
		fmt.Println("[plan]")
		for _, entry := range ev.Plan {
			fmt.Printf("  %s %s\n", planMarker(entry.Status), entry.Description)
		}
	case events.TypeModeChanged:
		r.breakLineLocked()
		fmt.Printf("[mode] %s\n", ev.Mode)
	case events.TypePermissionRequest:
		r.breakLineLocked()
		detail := ev.PermissionDetail
		if detail == "" {
			detail = "agent requested permission"
		}
		fmt.Printf("[permission] %s\n", detail)
	case events.TypeStateChanged:
		if ev.State == events.StateNotReady {
			r.breakLineLocked()
			fmt.Println("[agent] not ready")
		}
	}
}

func (r *renderer) renderChunk(ev events.Event) {
	if ev.Role == events.RoleThought {
		if !r.thoughts {
			return
		}
		if r.lastRole != events.RoleThought {
			r.breakLineLocked()
			fmt.Println("[thinking]")
		}
	} else if r.lastRole == events.RoleThought {
		r.breakLineLocked()
	}
	r.lastRole = ev.Role
	fmt.Print(ev.Text)
	r.midLine = !strings.HasSuffix(ev.Text, "\n")
}

// BreakLine closes any partially written output line. Called between turns
// and before the input prompt.
func (r *renderer) BreakLine() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.breakLineLocked()
}

func (r *renderer) breakLineLocked() {
	if r.midLine {
		fmt.Println()
		r.midLine = false
	}
}

// TurnEnded reports an abnormal stop reason. A normal end_turn stays quiet.
func (r *renderer) TurnEnded(reason acp.StopReason) {
	if r.jsonOut || reason == acp.StopEndTurn || reason == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.breakLineLocked()
	fmt.Printf("(turn ended: %s)\n", reason)
}

// Prompt writes the input marker in text mode.
func (r *renderer) Prompt() {
	if r.jsonOut {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.breakLineLocked()
	fmt.Print("> ")
}

func planMarker(status string) string {
	switch status {
	case "completed":
		return "[x]"
	case "in_progress":
		return "[>]"
	case "failed":
		return "[!]"
	default:
		return "[ ]"
	}
}
