package shell

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Apothic-AI/bufo/internal/common/config"
)

func testClassifier() *Classifier {
	return NewClassifier(config.ShellConfig{
		WarnUnknown:            true,
		WarnDangerous:          true,
		EscalateOutsideProject: true,
	})
}

func TestClassifyCommandLevels(t *testing.T) {
	c := testClassifier()

	tests := []struct {
		command string
		level   RiskLevel
	}{
		{"", RiskSafe},
		{"   ", RiskSafe},
		{"./run.sh --all", RiskSafe},
		{"/usr/bin/make build", RiskSafe},
		{"ls -la", RiskUnknown},
		{"echo hello", RiskUnknown},
		{"curl https://example.com", RiskDangerous},
		{"sudo apt install jq", RiskDangerous},
		{"mv a.txt b.txt", RiskDangerous},
		{"rm -rf build", RiskDestructive},
		{"dd if=/dev/zero of=disk.img", RiskDestructive},
		{"chmod 600 key.pem", RiskDestructive},
	}
	for _, tt := range tests {
		risk := c.Classify(tt.command)
		assert.Equal(t, tt.level, risk.Level, "command %q", tt.command)
		assert.NotEmpty(t, risk.Reason, "command %q", tt.command)
	}
}

func TestClassifyEscalatesParentTraversal(t *testing.T) {
	c := testClassifier()

	risk := c.Classify("mv ../notes.txt .")
	assert.Equal(t, RiskDestructive, risk.Level)
	assert.Equal(t, "targets parent path outside project context", risk.Reason)

	risk = c.Classify("rm -rf ../other")
	assert.Equal(t, RiskDestructive, risk.Level)
	assert.Equal(t, "targets parent path outside project context", risk.Reason)

	// Only dangerous-or-worse commands escalate on traversal.
	assert.Equal(t, RiskUnknown, c.Classify("ls ../other").Level)

	off := NewClassifier(config.ShellConfig{})
	assert.Equal(t, RiskDangerous, off.Classify("mv ../notes.txt .").Level)
}

func TestShouldWarnHonorsConfig(t *testing.T) {
	quiet := NewClassifier(config.ShellConfig{})
	loud := testClassifier()

	destructive := Risk{Level: RiskDestructive}
	dangerous := Risk{Level: RiskDangerous}
	unknown := Risk{Level: RiskUnknown}
	safe := Risk{Level: RiskSafe}

	// Destructive commands warn regardless of configuration.
	assert.True(t, quiet.ShouldWarn(destructive))
	assert.True(t, loud.ShouldWarn(destructive))

	assert.False(t, quiet.ShouldWarn(dangerous))
	assert.True(t, loud.ShouldWarn(dangerous))

	assert.False(t, quiet.ShouldWarn(unknown))
	assert.True(t, loud.ShouldWarn(unknown))

	assert.False(t, quiet.ShouldWarn(safe))
	assert.False(t, loud.ShouldWarn(safe))
}

func TestRiskLevelString(t *testing.T) {
	assert.Equal(t, "safe", RiskSafe.String())
	assert.Equal(t, "unknown", RiskUnknown.String())
	assert.Equal(t, "dangerous", RiskDangerous.String())
	assert.Equal(t, "destructive", RiskDestructive.String())
	assert.Equal(t, "unknown", RiskLevel(42).String())
}
