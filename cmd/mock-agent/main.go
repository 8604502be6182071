// Command mock-agent is a scripted stand-in for a real coding agent. It
// speaks the agent control protocol over stdio, so bufo can launch it like
// any other catalog entry and exercise the whole bridge without network
// access, API keys, or a live model.
//
// Prompts beginning with a slash select a scenario (/plan, /tools, /read,
// /edit, /thinking, /slow, /error, /all); anything else gets a short
// streamed reply. The --profile flag (fast, slow) scales emit pacing.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Apothic-AI/bufo/pkg/acp/jsonrpc"
)

// defaultSessionID identifies this process instance on the wire.
var defaultSessionID = fmt.Sprintf("mock-session-%d", os.Getpid())

func main() {
	profile := parseProfileFromArgs(os.Args[1:])

	inbox := make(chan frame, 64)
	go readFrames(os.Stdin, inbox)

	newAgent(json.NewEncoder(os.Stdout), inbox, profile).serve()
}

// frame is an inbound JSON-RPC message before classification. A method with
// an id is a request from the client, a method without one is a notification,
// and a bare id carries the response to one of our own requests.
type frame struct {
	JSONRPC string               `json:"jsonrpc"`
	ID      json.RawMessage      `json:"id,omitempty"`
	Method  string               `json:"method,omitempty"`
	Params  json.RawMessage      `json:"params,omitempty"`
	Result  json.RawMessage      `json:"result,omitempty"`
	Error   *jsonrpc.RemoteError `json:"error,omitempty"`
}

func (f frame) isRequest() bool  { return f.Method != "" && len(f.ID) > 0 }
func (f frame) isResponse() bool { return f.Method == "" && len(f.ID) > 0 }

// readFrames feeds decoded stdin frames into the inbox. The channel closes
// when stdin does, which is the signal to exit.
func readFrames(r io.Reader, inbox chan<- frame) {
	defer close(inbox)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var f frame
		if err := json.Unmarshal(line, &f); err != nil {
			fmt.Fprintf(os.Stderr, "mock-agent: skipping malformed frame: %v\n", err)
			continue
		}
		inbox <- f
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "mock-agent: stdin: %v\n", err)
	}
}

// parseProfileFromArgs extracts the --profile flag controlling emit pacing.
// Both "--profile slow" and "--profile=slow" forms are accepted; unknown
// values fall back to the default profile.
func parseProfileFromArgs(args []string) string {
	for i, arg := range args {
		if arg == "--profile" && i+1 < len(args) {
			return normalizeProfile(args[i+1])
		}
		if strings.HasPrefix(arg, "--profile=") {
			return normalizeProfile(strings.TrimPrefix(arg, "--profile="))
		}
	}
	return profileDefault
}

func normalizeProfile(v string) string {
	switch v {
	case profileFast, profileSlow:
		return v
	default:
		return profileDefault
	}
}
