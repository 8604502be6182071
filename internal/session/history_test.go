package session

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryAppendAndRead(t *testing.T) {
	h, err := NewHistory(filepath.Join(t.TempDir(), "prompt-history.jsonl"))
	require.NoError(t, err)

	require.NoError(t, h.Append("first prompt"))
	require.NoError(t, h.Append("second prompt"))

	items, err := h.Read(0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "first prompt", items[0].Value)
	assert.Equal(t, "second prompt", items[1].Value)
	assert.False(t, items[0].CreatedAt.IsZero())
}

func TestHistoryMissingFileReadsEmpty(t *testing.T) {
	h, err := NewHistory(filepath.Join(t.TempDir(), "never-written.jsonl"))
	require.NoError(t, err)

	items, err := h.Read(10)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestHistorySkipsCorruptLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	h, err := NewHistory(path)
	require.NoError(t, err)

	require.NoError(t, h.Append("good one"))

	// Simulate a crash mid-write plus stray garbage.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{\"value\": \"trunc\nnot json at all\n\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, h.Append("good two"))

	items, err := h.Read(0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "good one", items[0].Value)
	assert.Equal(t, "good two", items[1].Value)
}

func TestHistoryLimitKeepsNewest(t *testing.T) {
	h, err := NewHistory(filepath.Join(t.TempDir(), "history.jsonl"))
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, h.Append(strings.Repeat("x", i+1)))
	}

	items, err := h.Read(3)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, strings.Repeat("x", 8), items[0].Value)
	assert.Equal(t, strings.Repeat("x", 10), items[2].Value)
}

func TestProjectHistoriesScopedByProject(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("XDG variables are not used on windows")
	}
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	projectA := t.TempDir()
	projectB := t.TempDir()

	ha, err := NewProjectHistories(projectA)
	require.NoError(t, err)
	hb, err := NewProjectHistories(projectB)
	require.NoError(t, err)

	require.NoError(t, ha.Prompt.Append("only in a"))

	itemsA, err := ha.Prompt.Read(0)
	require.NoError(t, err)
	itemsB, err := hb.Prompt.Read(0)
	require.NoError(t, err)

	assert.Len(t, itemsA, 1)
	assert.Empty(t, itemsB)

	// Prompt and shell histories are separate files.
	require.NoError(t, ha.Shell.Append("ls -la"))
	shellItems, err := ha.Shell.Read(0)
	require.NoError(t, err)
	require.Len(t, shellItems, 1)
	assert.Equal(t, "ls -la", shellItems[0].Value)
	promptItems, err := ha.Prompt.Read(0)
	require.NoError(t, err)
	assert.Len(t, promptItems, 1)
}
