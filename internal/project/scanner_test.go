package project

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Apothic-AI/bufo/internal/common/config"
	"github.com/Apothic-AI/bufo/internal/common/logger"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func testScanner(t *testing.T) *Scanner {
	t.Helper()
	return NewScanner(config.ProjectConfig{ScanTimeout: 4, ScanWorkers: 4}, logger.Default())
}

func TestScanOrdersBreadthFirst(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"beta.txt":      "b",
		"alpha/z.txt":   "z",
		"alpha/inner/i": "i",
		"Gamma/g.txt":   "g",
	})

	entries, err := testScanner(t).Scan(context.Background(), root)
	require.NoError(t, err)

	var got []string
	for _, entry := range entries {
		rel := entry.Rel
		if entry.IsDir {
			rel += "/"
		}
		got = append(got, rel)
		assert.True(t, filepath.IsAbs(entry.Path))
		assert.True(t, strings.HasSuffix(entry.Path, filepath.FromSlash(entry.Rel)))
	}

	assert.Equal(t, []string{
		"alpha/",
		"Gamma/",
		"beta.txt",
		"alpha/inner/",
		"alpha/z.txt",
		"Gamma/g.txt",
		"alpha/inner/i",
	}, got)
}

func TestScanHonorsIgnoreRules(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		".gitignore":                  "*.log\n",
		"src/main.go":                 "package main",
		"src/debug.log":               "noise",
		"node_modules/react/index.js": "js",
	})

	entries, err := testScanner(t).Scan(context.Background(), root)
	require.NoError(t, err)

	rels := make([]string, 0, len(entries))
	for _, entry := range entries {
		rels = append(rels, entry.Rel)
	}
	assert.Contains(t, rels, "src")
	assert.Contains(t, rels, "src/main.go")
	assert.Contains(t, rels, ".gitignore")
	assert.NotContains(t, rels, "node_modules")
	assert.NotContains(t, rels, "node_modules/react")
	assert.NotContains(t, rels, "src/debug.log")
}

func TestScanExpiredBudgetReturnsNothing(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.txt": "a"})

	s := &Scanner{logger: logger.Default(), budget: -time.Second, workers: 2}
	entries, err := s.Scan(context.Background(), root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestScanCancelledContext(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.txt": "a"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	entries, err := testScanner(t).Scan(ctx, root)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, entries)
}

func TestScanRootMustBeDirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "plain.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	_, err := testScanner(t).Scan(context.Background(), file)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
}
