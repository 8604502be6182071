// Package catalog loads agent descriptors from embedded defaults and user
// override files. A descriptor carries everything needed to launch an agent:
// the per-platform run command, its protocol, and connection quirks the
// bridge is told about. The bridge itself never reads the catalog.
package catalog

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// Descriptor describes one launchable agent.
type Descriptor struct {
	// Identity is the stable key used for overrides and session records.
	Identity string `yaml:"identity"`

	// Name is the human-facing name shown in listings.
	Name string `yaml:"name"`

	Protocol    string `yaml:"protocol"`
	Category    string `yaml:"category"`
	Description string `yaml:"description"`

	Recommended     bool `yaml:"recommended"`
	LauncherDefault bool `yaml:"launcherDefault"`

	// Run maps a platform ("linux", "darwin", "windows") to the command line
	// that starts the agent in ACP mode. "default" applies when the current
	// platform has no entry of its own.
	Run map[string]string `yaml:"run"`

	// Env lists extra environment variables for the agent process.
	Env map[string]string `yaml:"env"`

	// ForceSessionScope marks agents that reject unscoped session calls even
	// though their capability advertisement suggests otherwise.
	ForceSessionScope bool `yaml:"forceSessionScope"`

	// Resume requests session/load on reconnect when the agent advertises
	// the capability.
	Resume bool `yaml:"resume"`

	Welcome string `yaml:"welcome"`
}

// CommandLine returns the run command for the given platform, falling back
// to the "default" entry.
func (d Descriptor) CommandLine(goos string) (string, bool) {
	if cmd, ok := d.Run[goos]; ok && strings.TrimSpace(cmd) != "" {
		return cmd, true
	}
	if cmd, ok := d.Run["default"]; ok && strings.TrimSpace(cmd) != "" {
		return cmd, true
	}
	return "", false
}

// Argv resolves the run command for the given platform and splits it into
// an argument vector.
func (d Descriptor) Argv(goos string) ([]string, error) {
	line, ok := d.CommandLine(goos)
	if !ok {
		return nil, fmt.Errorf("agent %q has no run command for %s", d.Identity, goos)
	}
	argv, err := splitCommand(line)
	if err != nil {
		return nil, fmt.Errorf("agent %q: %w", d.Identity, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("agent %q has an empty run command", d.Identity)
	}
	return argv, nil
}

// EnvSlice renders the descriptor's environment overrides as KEY=VALUE pairs
// with deterministic ordering.
func (d Descriptor) EnvSlice() []string {
	if len(d.Env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(d.Env))
	for k := range d.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+d.Env[k])
	}
	return out
}

func (d Descriptor) validate(goos string) error {
	if strings.TrimSpace(d.Identity) == "" {
		return fmt.Errorf("missing identity")
	}
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("agent %q: missing name", d.Identity)
	}
	if len(d.Run) == 0 {
		return fmt.Errorf("agent %q: no run commands", d.Identity)
	}
	// A descriptor restricted to other platforms is valid but unlaunchable
	// here; only malformed command lines are rejected.
	if line, ok := d.CommandLine(goos); ok {
		if _, err := splitCommand(line); err != nil {
			return fmt.Errorf("agent %q: %w", d.Identity, err)
		}
	}
	return nil
}

// splitCommand splits a descriptor command line into argv. Single and double
// quotes group words; no other shell features are interpreted. Descriptors
// needing shell behavior spell out `sh -c '...'` themselves.
func splitCommand(line string) ([]string, error) {
	var args []string
	var current strings.Builder
	var quote rune
	inWord := false

	for _, r := range line {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inWord = true
		case unicode.IsSpace(r):
			if inWord {
				args = append(args, current.String())
				current.Reset()
				inWord = false
			}
		default:
			current.WriteRune(r)
			inWord = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated quote in %q", line)
	}
	if inWord {
		args = append(args, current.String())
	}
	return args, nil
}
