package project

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Apothic-AI/bufo/internal/common/logger"
)

func TestFilterDefaultExcludes(t *testing.T) {
	f := NewFilter(t.TempDir(), logger.Default())

	assert.True(t, f.Excluded(".git", true))
	assert.True(t, f.Excluded("pkg/node_modules", true))
	assert.True(t, f.Excluded("node_modules/react/index.js", false))
	assert.True(t, f.Excluded(".venv/bin/python", false))

	// The hardcoded exclusions are directory patterns; same-named files pass.
	assert.False(t, f.Excluded(".git", false))
	assert.False(t, f.Excluded("src/main.go", false))
}

func TestFilterGitignoreRules(t *testing.T) {
	root := t.TempDir()
	gitignore := "# build output\n*.log\n!keep.log\n/build\ndist/\nsub/generated.txt\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, ".gitignore"), []byte(gitignore), 0o644))

	f := NewFilter(root, logger.Default())

	assert.True(t, f.Excluded("app.log", false))
	assert.True(t, f.Excluded("nested/deep/app.log", false))
	assert.False(t, f.Excluded("keep.log", false), "negated pattern re-includes")

	assert.True(t, f.Excluded("build", true), "leading slash anchors to the root")
	assert.False(t, f.Excluded("sub/build", true))

	assert.True(t, f.Excluded("dist", true))
	assert.False(t, f.Excluded("dist", false), "directory pattern leaves files alone")
	assert.True(t, f.Excluded("dist/bundle.js", false), "children of an excluded directory stay excluded")

	assert.True(t, f.Excluded("sub/generated.txt", false), "interior slash anchors to the root")
	assert.False(t, f.Excluded("other/sub/generated.txt", false))
}

func TestFilterAncestorGitignore(t *testing.T) {
	parent := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(parent, ".gitignore"), []byte("*.tmp\n"), 0o644))
	root := filepath.Join(parent, "web")
	require.NoError(t, os.MkdirAll(root, 0o755))

	f := NewFilter(root, logger.Default())
	assert.True(t, f.Excluded("cache.tmp", false), "ancestor .gitignore applies when the root has none")

	require.NoError(t, os.WriteFile(filepath.Join(root, ".gitignore"), []byte("*.out\n"), 0o644))
	f = NewFilter(root, logger.Default())
	assert.True(t, f.Excluded("a.out", false))
	assert.False(t, f.Excluded("cache.tmp", false), "the root's own .gitignore wins over ancestors")
}

func TestFilterRootNeverExcluded(t *testing.T) {
	f := NewFilter(t.TempDir(), logger.Default())
	assert.False(t, f.Excluded(".", true))
	assert.False(t, f.Excluded("", true))
}

func TestCompileIgnoreRule(t *testing.T) {
	tests := []struct {
		line    string
		ok      bool
		pattern string
		negate  bool
		dirOnly bool
	}{
		{line: "node_modules/", ok: true, pattern: "**/node_modules", dirOnly: true},
		{line: "*.log", ok: true, pattern: "**/*.log"},
		{line: "/build", ok: true, pattern: "build"},
		{line: "docs/api", ok: true, pattern: "docs/api"},
		{line: "!keep.log", ok: true, pattern: "**/keep.log", negate: true},
		{line: "  ", ok: false},
		{line: "# comment", ok: false},
		{line: "/", ok: false},
		{line: "!", ok: false},
	}

	for _, tt := range tests {
		rule, ok := compileIgnoreRule(tt.line)
		require.Equal(t, tt.ok, ok, "line %q", tt.line)
		if !tt.ok {
			continue
		}
		assert.Equal(t, tt.pattern, rule.pattern, "line %q", tt.line)
		assert.Equal(t, tt.negate, rule.negate, "line %q", tt.line)
		assert.Equal(t, tt.dirOnly, rule.dirOnly, "line %q", tt.line)
	}
}
