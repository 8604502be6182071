package shell

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/Apothic-AI/bufo/internal/common/config"
)

// RiskLevel orders command risk from benign to destructive.
type RiskLevel int

const (
	RiskSafe RiskLevel = iota
	RiskUnknown
	RiskDangerous
	RiskDestructive
)

func (l RiskLevel) String() string {
	switch l {
	case RiskSafe:
		return "safe"
	case RiskUnknown:
		return "unknown"
	case RiskDangerous:
		return "dangerous"
	case RiskDestructive:
		return "destructive"
	}
	return "unknown"
}

// destructiveTokens lose data or system state when misused.
var destructiveTokens = map[string]struct{}{
	"rm":       {},
	"dd":       {},
	"mkfs":     {},
	"shutdown": {},
	"reboot":   {},
	"poweroff": {},
	"chown":    {},
	"chmod":    {},
	"truncate": {},
}

// dangerousTokens mutate files or reach out to the network.
var dangerousTokens = map[string]struct{}{
	"sudo": {},
	"curl": {},
	"wget": {},
	"scp":  {},
	"mv":   {},
	"cp":   {},
	"tee":  {},
	"sed":  {},
}

// Risk is the classifier's judgement of one command line.
type Risk struct {
	Level  RiskLevel
	Reason string
}

// Classifier grades command lines before they reach the shell. The grading is
// heuristic: it looks at the leading token and at parent-path traversal, not
// at full shell syntax.
type Classifier struct {
	warnUnknown    bool
	warnDangerous  bool
	escalateParent bool
}

// NewClassifier builds a classifier honouring the shell configuration's
// warning switches.
func NewClassifier(cfg config.ShellConfig) *Classifier {
	return &Classifier{
		warnUnknown:    cfg.WarnUnknown,
		warnDangerous:  cfg.WarnDangerous,
		escalateParent: cfg.EscalateOutsideProject,
	}
}

// Classify grades a single command line.
func (c *Classifier) Classify(command string) Risk {
	stripped := strings.TrimSpace(command)
	if stripped == "" {
		return Risk{Level: RiskSafe, Reason: "empty command"}
	}

	first := strings.Fields(stripped)[0]
	_, destructive := destructiveTokens[first]
	_, dangerous := dangerousTokens[first]

	var risk Risk
	switch {
	case destructive:
		risk = Risk{Level: RiskDestructive, Reason: fmt.Sprintf("contains destructive command token %q", first)}
	case dangerous:
		risk = Risk{Level: RiskDangerous, Reason: fmt.Sprintf("contains potentially mutating token %q", first)}
	case isAlpha(first):
		risk = Risk{Level: RiskUnknown, Reason: "command not in known-safe allowlist"}
	default:
		risk = Risk{Level: RiskSafe, Reason: "command appears non-mutating"}
	}

	if c.escalateParent && risk.Level >= RiskDangerous && strings.Contains(stripped, "..") {
		return Risk{Level: RiskDestructive, Reason: "targets parent path outside project context"}
	}
	return risk
}

// ShouldWarn reports whether the configuration asks for confirmation before
// running a command of this risk. Destructive commands always warn.
func (c *Classifier) ShouldWarn(r Risk) bool {
	switch r.Level {
	case RiskDestructive:
		return true
	case RiskDangerous:
		return c.warnDangerous
	case RiskUnknown:
		return c.warnUnknown
	default:
		return false
	}
}

func isAlpha(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}
