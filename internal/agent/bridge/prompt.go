package bridge

import (
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/Apothic-AI/bufo/pkg/acp"
)

// Resource is one file attachment expanded from an @path prompt mention.
type Resource struct {
	Path     string // as written in the prompt, project-relative
	URI      string // file:// form of the absolute path
	MimeType string
	Text     string // textual files
	Blob     string // base64, everything else
}

// mentionPattern matches @path references at a word boundary. Path
// characters follow the mention syntax users type: word characters, dots,
// slashes, and dashes.
var mentionPattern = regexp.MustCompile(`(^|\s)@([\w./-]+)`)

// ExpandMentions scans prompt text for @path references to files under
// root. Each resolvable mention is replaced by its bare path and collected
// as a Resource; mentions pointing outside the project or at nothing are
// left untouched.
func ExpandMentions(root, prompt string) (string, []Resource) {
	var resources []Resource

	transformed := mentionPattern.ReplaceAllStringFunc(prompt, func(match string) string {
		sub := mentionPattern.FindStringSubmatch(match)
		lead, rel := sub[1], sub[2]

		abs, ok := containedPath(root, rel)
		if !ok {
			return match
		}
		info, err := os.Stat(abs)
		if err != nil || info.IsDir() {
			return match
		}
		data, err := os.ReadFile(abs)
		if err != nil {
			return match
		}

		resources = append(resources, newResource(rel, abs, data))
		return lead + rel
	})

	return transformed, resources
}

func newResource(rel, abs string, data []byte) Resource {
	res := Resource{
		Path: rel,
		URI:  "file://" + filepath.ToSlash(abs),
	}

	mimeType := mime.TypeByExtension(filepath.Ext(abs))
	if idx := strings.Index(mimeType, ";"); idx >= 0 {
		mimeType = strings.TrimSpace(mimeType[:idx])
	}
	// Extension tables miss most source files; valid UTF-8 is good enough
	// to ship as text.
	if mimeType == "" && utf8.Valid(data) {
		mimeType = "text/plain"
	}

	switch {
	case strings.HasPrefix(mimeType, "text/"):
		res.MimeType = mimeType
		res.Text = string(data)
	case mimeType == "":
		res.MimeType = "application/octet-stream"
		res.Blob = base64.StdEncoding.EncodeToString(data)
	default:
		res.MimeType = mimeType
		res.Blob = base64.StdEncoding.EncodeToString(data)
	}
	return res
}

// containedPath resolves rel against root and reports whether the result
// stays inside the project.
func containedPath(root, rel string) (string, bool) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", false
	}
	abs := filepath.Clean(filepath.Join(absRoot, rel))
	inside, err := filepath.Rel(absRoot, abs)
	if err != nil || inside == ".." || strings.HasPrefix(inside, ".."+string(filepath.Separator)) {
		return "", false
	}
	return abs, true
}

// BuildPrompt shapes the outgoing prompt. Agents that negotiated embedded
// context get a structured block list; everything else gets one flattened
// text block with reference markers, keeping the legacy branch in this one
// place.
func BuildPrompt(text string, resources []Resource, caps acp.PromptCapabilities) []acp.ContentBlock {
	if !caps.EmbeddedContext {
		return []acp.ContentBlock{acp.TextBlock(flattenPrompt(text, resources))}
	}

	blocks := make([]acp.ContentBlock, 0, 1+len(resources))
	blocks = append(blocks, acp.TextBlock(text))
	for _, res := range resources {
		blocks = append(blocks, acp.ResourceBlock(acp.EmbeddedResource{
			URI:      res.URI,
			MimeType: res.MimeType,
			Text:     res.Text,
			Blob:     res.Blob,
		}))
	}
	return blocks
}

func flattenPrompt(text string, resources []Resource) string {
	if len(resources) == 0 {
		return text
	}
	var b strings.Builder
	b.WriteString(text)
	for _, res := range resources {
		fmt.Fprintf(&b, "\n[resource: %s]", res.Path)
	}
	return b.String()
}
