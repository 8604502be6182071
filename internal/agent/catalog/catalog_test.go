package catalog

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Apothic-AI/bufo/internal/common/logger"
)

// isolateUserDirs keeps the test run away from the developer's real override
// directory.
func isolateUserDirs(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("user dir isolation relies on XDG variables")
	}
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
}

func writeOverride(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadEmbeddedDefaults(t *testing.T) {
	isolateUserDirs(t)

	cat, err := NewRegistry(logger.Default()).Load()
	require.NoError(t, err)

	agents := cat.Agents()
	require.NotEmpty(t, agents)
	assert.Empty(t, cat.Warnings())

	for _, d := range agents {
		assert.NotEmpty(t, d.Identity)
		assert.NotEmpty(t, d.Name)
		assert.Equal(t, "acp", d.Protocol)
		argv, err := d.Argv(runtime.GOOS)
		require.NoError(t, err, "agent %s must be launchable", d.Identity)
		assert.NotEmpty(t, argv[0])
	}

	// Sorted by name, case-insensitive.
	for i := 1; i < len(agents); i++ {
		assert.LessOrEqual(t, agents[i-1].Name, agents[i].Name)
	}
}

func TestResolveByIdentityAndName(t *testing.T) {
	isolateUserDirs(t)

	cat, err := NewRegistry(logger.Default()).Load()
	require.NoError(t, err)

	byIdentity, err := cat.Resolve("claude-code")
	require.NoError(t, err)
	assert.Equal(t, "Claude Code", byIdentity.Name)

	byName, err := cat.Resolve("claude code")
	require.NoError(t, err)
	assert.Equal(t, byIdentity.Identity, byName.Identity)

	_, err = cat.Resolve("no-such-agent")
	assert.ErrorIs(t, err, ErrUnknownAgent)
}

func TestOverrideReplacesBuiltin(t *testing.T) {
	isolateUserDirs(t)

	dir := t.TempDir()
	writeOverride(t, dir, "mine.yaml", `
agents:
  - identity: claude-code
    name: Claude (patched)
    run:
      default: my-claude-wrapper --acp
    forceSessionScope: true
`)

	cat, err := NewRegistry(logger.Default(), dir).Load()
	require.NoError(t, err)

	d, err := cat.Resolve("claude-code")
	require.NoError(t, err)
	assert.Equal(t, "Claude (patched)", d.Name)
	assert.True(t, d.ForceSessionScope)
	argv, err := d.Argv(runtime.GOOS)
	require.NoError(t, err)
	assert.Equal(t, []string{"my-claude-wrapper", "--acp"}, argv)

	// The rest of the builtins are untouched.
	_, err = cat.Resolve("gemini")
	assert.NoError(t, err)
}

func TestBrokenOverrideWarnsAndContinues(t *testing.T) {
	isolateUserDirs(t)

	dir := t.TempDir()
	writeOverride(t, dir, "broken.yaml", "agents: [not a mapping")
	writeOverride(t, dir, "extra.yaml", `
agents:
  - identity: extra
    name: Extra Agent
    run:
      default: extra-agent --acp
`)

	cat, err := NewRegistry(logger.Default(), dir).Load()
	require.NoError(t, err)

	assert.NotEmpty(t, cat.Warnings())
	_, err = cat.Resolve("extra")
	assert.NoError(t, err)
	_, err = cat.Resolve("claude-code")
	assert.NoError(t, err)
}

func TestInvalidDescriptorSkippedIndividually(t *testing.T) {
	isolateUserDirs(t)

	dir := t.TempDir()
	writeOverride(t, dir, "mixed.yaml", `
agents:
  - identity: ""
    name: No Identity
    run:
      default: nope
  - identity: good
    name: Good Agent
    run:
      default: good-agent
`)

	cat, err := NewRegistry(logger.Default(), dir).Load()
	require.NoError(t, err)

	require.NotEmpty(t, cat.Warnings())
	_, err = cat.Resolve("good")
	assert.NoError(t, err)
}

func TestDefaultSelection(t *testing.T) {
	isolateUserDirs(t)

	cat, err := NewRegistry(logger.Default()).Load()
	require.NoError(t, err)

	d := cat.Default()
	require.NotNil(t, d)
	assert.True(t, d.LauncherDefault)
}

func TestCommandLinePlatformFallback(t *testing.T) {
	d := Descriptor{
		Identity: "x",
		Name:     "X",
		Run: map[string]string{
			"windows": "x.exe --acp",
			"default": "x --acp",
		},
	}

	cmd, ok := d.CommandLine("windows")
	require.True(t, ok)
	assert.Equal(t, "x.exe --acp", cmd)

	cmd, ok = d.CommandLine("linux")
	require.True(t, ok)
	assert.Equal(t, "x --acp", cmd)

	d.Run = map[string]string{"darwin": "x"}
	_, ok = d.CommandLine("linux")
	assert.False(t, ok)
	_, err := d.Argv("linux")
	assert.Error(t, err)
}

func TestSplitCommand(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"claude-code-acp", []string{"claude-code-acp"}},
		{"npx -y @zed-industries/claude-code-acp", []string{"npx", "-y", "@zed-industries/claude-code-acp"}},
		{`sh -c 'echo hi'`, []string{"sh", "-c", "echo hi"}},
		{`agent --title "My Agent"`, []string{"agent", "--title", "My Agent"}},
		{"  spaced   out  ", []string{"spaced", "out"}},
		{`empty-arg ""`, []string{"empty-arg", ""}},
	}
	for _, tc := range cases {
		got, err := splitCommand(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	_, err := splitCommand(`agent --flag "unterminated`)
	assert.Error(t, err)
}

func TestEnvSliceDeterministic(t *testing.T) {
	d := Descriptor{Env: map[string]string{"B": "2", "A": "1", "C": "3"}}
	assert.Equal(t, []string{"A=1", "B=2", "C=3"}, d.EnvSlice())
	assert.Nil(t, Descriptor{}.EnvSlice())
}
