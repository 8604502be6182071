package bridge

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Apothic-AI/bufo/pkg/acp"
)

func writeProjectFile(t *testing.T, root, rel string, data []byte) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestExpandMentionsTextFile(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "notes.txt", []byte("remember this"))

	text, resources := ExpandMentions(root, "please read @notes.txt carefully")
	assert.Equal(t, "please read notes.txt carefully", text)
	require.Len(t, resources, 1)
	assert.Equal(t, "notes.txt", resources[0].Path)
	assert.Equal(t, "text/plain", resources[0].MimeType)
	assert.Equal(t, "remember this", resources[0].Text)
	assert.Empty(t, resources[0].Blob)
	assert.Contains(t, resources[0].URI, "file://")
}

func TestExpandMentionsUnknownExtensionSniffsAsText(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "Makefile", []byte("all:\n\techo hi\n"))

	_, resources := ExpandMentions(root, "look at @Makefile")
	require.Len(t, resources, 1)
	assert.Equal(t, "text/plain", resources[0].MimeType)
	assert.Equal(t, "all:\n\techo hi\n", resources[0].Text)
}

func TestExpandMentionsBinaryFile(t *testing.T) {
	root := t.TempDir()
	raw := []byte{0x89, 0x50, 0x4e, 0x47, 0x00, 0xff}
	writeProjectFile(t, root, "img.png", raw)

	_, resources := ExpandMentions(root, "see @img.png")
	require.Len(t, resources, 1)
	assert.Equal(t, "image/png", resources[0].MimeType)
	assert.Empty(t, resources[0].Text)
	decoded, err := base64.StdEncoding.DecodeString(resources[0].Blob)
	require.NoError(t, err)
	assert.Equal(t, raw, decoded)
}

func TestExpandMentionsMissingFileLeftAlone(t *testing.T) {
	root := t.TempDir()

	text, resources := ExpandMentions(root, "maybe @does/not/exist.txt helps")
	assert.Equal(t, "maybe @does/not/exist.txt helps", text)
	assert.Empty(t, resources)
}

func TestExpandMentionsOutsideProjectLeftAlone(t *testing.T) {
	root := t.TempDir()

	text, resources := ExpandMentions(root, "read @../../etc/passwd now")
	assert.Equal(t, "read @../../etc/passwd now", text)
	assert.Empty(t, resources)
}

func TestExpandMentionsDirectoryLeftAlone(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o755))

	text, resources := ExpandMentions(root, "scan @src please")
	assert.Equal(t, "scan @src please", text)
	assert.Empty(t, resources)
}

func TestExpandMentionsRequiresBoundary(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "a.txt", []byte("x"))

	// An @ glued to a word is an email or handle, not a mention.
	text, resources := ExpandMentions(root, "mail me user@a.txt thanks")
	assert.Equal(t, "mail me user@a.txt thanks", text)
	assert.Empty(t, resources)
}

func TestExpandMentionsMultiple(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "a.txt", []byte("A"))
	writeProjectFile(t, root, "sub/b.txt", []byte("B"))

	text, resources := ExpandMentions(root, "@a.txt and @sub/b.txt")
	assert.Equal(t, "a.txt and sub/b.txt", text)
	require.Len(t, resources, 2)
	assert.Equal(t, "a.txt", resources[0].Path)
	assert.Equal(t, "sub/b.txt", resources[1].Path)
}

func TestBuildPromptStructuredBlocks(t *testing.T) {
	caps := acp.PromptCapabilities{EmbeddedContext: true}
	blocks := BuildPrompt("fix the bug", []Resource{
		{Path: "main.go", URI: "file:///p/main.go", MimeType: "text/plain", Text: "package main"},
		{Path: "img.png", URI: "file:///p/img.png", MimeType: "image/png", Blob: "aGk="},
	}, caps)

	require.Len(t, blocks, 3)
	assert.Equal(t, acp.ContentTypeText, blocks[0].Type)
	assert.Equal(t, "fix the bug", blocks[0].Text)

	require.NotNil(t, blocks[1].Resource)
	assert.Equal(t, acp.ContentTypeResource, blocks[1].Type)
	assert.Equal(t, "file:///p/main.go", blocks[1].Resource.URI)
	assert.Equal(t, "package main", blocks[1].Resource.Text)

	require.NotNil(t, blocks[2].Resource)
	assert.Equal(t, "aGk=", blocks[2].Resource.Blob)
}

func TestBuildPromptFlattensWithoutEmbeddedContext(t *testing.T) {
	caps := acp.PromptCapabilities{EmbeddedContext: false}
	blocks := BuildPrompt("fix the bug", []Resource{
		{Path: "main.go"},
		{Path: "util.go"},
	}, caps)

	require.Len(t, blocks, 1)
	assert.Equal(t, acp.ContentTypeText, blocks[0].Type)
	assert.Equal(t, "fix the bug\n[resource: main.go]\n[resource: util.go]", blocks[0].Text)
}

func TestBuildPromptNoResources(t *testing.T) {
	blocks := BuildPrompt("hello", nil, acp.PromptCapabilities{})
	require.Len(t, blocks, 1)
	assert.Equal(t, "hello", blocks[0].Text)
}

func TestContainedPath(t *testing.T) {
	root := t.TempDir()

	abs, ok := containedPath(root, "sub/file.txt")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(root, "sub", "file.txt"), abs)

	_, ok = containedPath(root, "../outside.txt")
	assert.False(t, ok)

	_, ok = containedPath(root, "sub/../../outside.txt")
	assert.False(t, ok)

	// Dot stays inside.
	abs, ok = containedPath(root, ".")
	require.True(t, ok)
	assert.Equal(t, filepath.Clean(root), abs)
}
