package project

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/Apothic-AI/bufo/internal/common/logger"
)

// defaultExcludes apply to every project regardless of .gitignore contents.
var defaultExcludes = []string{".git/", ".venv/", "node_modules/"}

type ignoreRule struct {
	pattern string
	negate  bool
	dirOnly bool
}

// Filter decides which paths scans and watches skip. Rules come from the
// hardcoded exclusions plus the project's .gitignore; when the project root
// has no .gitignore the nearest ancestor files are used instead, so scanning a
// subdirectory of a repository still honours the repository's ignores.
type Filter struct {
	root  string
	rules []ignoreRule
}

// NewFilter builds the ignore rules for root. Unparseable .gitignore lines
// are skipped.
func NewFilter(root string, log *logger.Logger) *Filter {
	f := &Filter{root: root}

	lines := append([]string{}, defaultExcludes...)
	lines = append(lines, gitignoreLines(root)...)
	for _, line := range lines {
		rule, ok := compileIgnoreRule(line)
		if !ok {
			if trimmed := strings.TrimSpace(line); trimmed != "" && !strings.HasPrefix(trimmed, "#") {
				log.Debug("ignore pattern skipped", zap.String("pattern", line))
			}
			continue
		}
		f.rules = append(f.rules, rule)
	}
	return f
}

// Excluded reports whether rel, a slash-separated path relative to the filter
// root, should be skipped. Ancestor directories are checked first: everything
// under an excluded directory stays excluded even when a negated pattern
// matches the path itself.
func (f *Filter) Excluded(rel string, isDir bool) bool {
	rel = strings.Trim(filepath.ToSlash(rel), "/")
	if rel == "" || rel == "." {
		return false
	}

	segments := strings.Split(rel, "/")
	for i := 1; i <= len(segments); i++ {
		prefix := strings.Join(segments[:i], "/")
		dir := i < len(segments) || isDir
		if f.matchRules(prefix, dir) {
			return true
		}
	}
	return false
}

// matchRules applies the rules in order; the last matching rule wins, so a
// later negated pattern can re-include a path an earlier one excluded.
func (f *Filter) matchRules(rel string, isDir bool) bool {
	excluded := false
	for _, rule := range f.rules {
		if rule.dirOnly && !isDir {
			continue
		}
		ok, err := doublestar.Match(rule.pattern, rel)
		if err != nil || !ok {
			continue
		}
		excluded = !rule.negate
	}
	return excluded
}

// compileIgnoreRule translates one .gitignore line into a match rule.
// Patterns without a slash match at any depth; a leading slash or an interior
// slash anchors the pattern to the root; a trailing slash restricts it to
// directories.
func compileIgnoreRule(line string) (ignoreRule, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return ignoreRule{}, false
	}

	var rule ignoreRule
	if strings.HasPrefix(line, "!") {
		rule.negate = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		rule.dirOnly = true
		line = strings.TrimSuffix(line, "/")
	}
	if line == "" {
		return ignoreRule{}, false
	}
	if strings.HasPrefix(line, "/") {
		line = strings.TrimPrefix(line, "/")
	} else if !strings.Contains(line, "/") {
		line = "**/" + line
	}
	if line == "" || !doublestar.ValidatePattern(line) {
		return ignoreRule{}, false
	}
	rule.pattern = line
	return rule, true
}

// gitignoreLines reads the root's .gitignore. When the root has none, every
// .gitignore found walking up to the filesystem root contributes instead.
func gitignoreLines(root string) []string {
	var lines []string
	dir := root
	for {
		data, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
		if err == nil {
			lines = append(lines, strings.Split(string(data), "\n")...)
			if dir == root {
				break
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return lines
}
