package main

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/Apothic-AI/bufo/pkg/acp"
)

// scenarioCommands lists the slash-selectable scripts, advertised to the
// client after session setup.
var scenarioCommands = []struct{ name, description string }{
	{"plan", "Stream a plan and work through its steps"},
	{"tools", "Run a scripted batch of tool calls"},
	{"read", "Read a real workspace file through the client"},
	{"edit", "Ask permission, then write a scratch file"},
	{"thinking", "Stream thought chunks before answering"},
	{"slow", "Drag a reply out, handy for testing cancel"},
	{"error", "Refuse the prompt"},
	{"all", "Every update kind in one turn"},
}

// runScenario picks the script for a prompt. A non-empty return overrides the
// default end_turn stop reason.
func (a *agent) runScenario(prompt string) acp.StopReason {
	lower := strings.ToLower(prompt)
	switch {
	case lower == "/error" || strings.HasPrefix(lower, "/error "):
		return a.scenarioRefusal()
	case strings.HasPrefix(lower, "/slow"):
		a.scenarioSlow()
	case lower == "/plan":
		a.scenarioPlan()
	case lower == "/tools":
		a.scenarioTools()
	case lower == "/read":
		a.scenarioRead()
	case lower == "/edit":
		a.scenarioEdit()
	case lower == "/thinking":
		a.scenarioThinking()
	case lower == "/all":
		a.scenarioAll()
	default:
		a.scenarioChat(prompt)
	}
	return ""
}

func (a *agent) scenarioChat(prompt string) {
	if a.pollCancel() {
		return
	}
	a.emitTextStream(chatReply(prompt))
}

// chatReply picks a canned response. Replies quote the prompt so transcript
// output is traceable to its input.
func chatReply(prompt string) string {
	if prompt == "" {
		return "I received an empty prompt. Try /plan, /tools, /read, /edit, /thinking, /slow, or /error for a specific scenario."
	}
	openers := []string{
		"Here is what I make of %q.",
		"Looking at %q now.",
		"Good question about %q.",
	}
	body := " This is a scripted reply from the mock agent, so no model was consulted." +
		" The words stream in small chunks the way a real agent's would."
	return fmt.Sprintf(openers[rand.Intn(len(openers))], shorten(prompt, 40)) + body
}

func shorten(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}

func (a *agent) scenarioThinking() {
	a.emitThought("Let me think this through before answering. ")
	a.pause()
	if a.pollCancel() {
		return
	}
	a.emitThought("The scripted answer should mention that thinking happened.\n")
	a.pause()
	a.emitTextStream("After some visible deliberation, here is the answer: thought chunks arrive before message chunks and are rendered separately.")
}

func (a *agent) scenarioPlan() {
	steps := []planStep{
		{Content: "Survey the workspace", Status: "pending", Priority: "high"},
		{Content: "Draft the change", Status: "pending", Priority: "medium"},
		{Content: "Verify the result", Status: "pending", Priority: "low"},
	}
	a.emitPlan(steps)
	a.pause()
	for i := range steps {
		if a.pollCancel() {
			return
		}
		steps[i].Status = "in_progress"
		a.emitPlan(steps)
		a.pause()
		steps[i].Status = "completed"
		a.emitPlan(steps)
	}
	a.emitText("All plan steps are done.\n")
}

func (a *agent) scenarioTools() {
	search := nextToolID()
	a.emitToolStart(search, "Search for TODO markers", "search")
	a.pause()
	if a.pollCancel() {
		return
	}
	a.emitToolStatus(search, "in_progress")
	a.pause()
	if hits := workspacePaths(3); len(hits) == 0 {
		a.emitToolOutput(search, "completed", "no matches")
	} else {
		a.emitToolOutput(search, "completed", strings.Join(hits, "\n"))
	}

	if a.pollCancel() {
		return
	}
	run := nextToolID()
	a.emitToolStart(run, "go vet ./...", "execute")
	a.pause()
	a.emitToolOutput(run, "completed", "ok")
	a.emitText("Ran a search and a command; both finished cleanly.\n")
}

func (a *agent) scenarioRead() {
	path := randomWorkspaceFile()
	if path == "" {
		a.emitText("No readable files found in this workspace.\n")
		return
	}
	a.readWorkspaceFile(path)
	if a.cancelled {
		return
	}
	a.emitText(fmt.Sprintf("Read %s through the client connection.\n", displayPath(path)))
}

func (a *agent) scenarioEdit() {
	a.writeScratchFile()
	if a.cancelled {
		return
	}
	a.emitText("Edit scenario finished.\n")
}

// scenarioSlow stretches a reply out over several seconds so interactive
// cancel has something to interrupt.
func (a *agent) scenarioSlow() {
	a.emitText("Starting something slow; cancel whenever you like.\n")
	for i := 1; i <= 8; i++ {
		if a.pollCancel() {
			return
		}
		time.Sleep(600 * time.Millisecond)
		a.emitText(fmt.Sprintf("still working (%d/8)\n", i))
	}
	a.emitText("Finished the slow work.\n")
}

func (a *agent) scenarioRefusal() acp.StopReason {
	a.emitText("I can't help with that.\n")
	return acp.StopRefusal
}

func (a *agent) scenarioAll() {
	a.emitThought("Running every update kind in one turn.\n")
	a.pause()
	if a.pollCancel() {
		return
	}
	steps := []planStep{
		{Content: "Emit a tool call", Status: "in_progress", Priority: "high"},
		{Content: "Close out the turn", Status: "pending", Priority: "low"},
	}
	a.emitPlan(steps)
	a.pause()

	id := nextToolID()
	a.emitToolStart(id, "Inventory workspace", "read")
	a.pause()
	if a.pollCancel() {
		return
	}
	a.emitToolOutput(id, "completed", fmt.Sprintf("%d files discovered", len(workspaceFiles())))

	steps[0].Status = "completed"
	steps[1].Status = "in_progress"
	a.emitPlan(steps)
	a.pause()
	a.emitTextStream("That covers thoughts, plans, tool calls, and streamed text in a single turn.")
	steps[1].Status = "completed"
	a.emitPlan(steps)
}
