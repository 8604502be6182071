package session

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/Apothic-AI/bufo/internal/common/paths"
)

const defaultHistoryLimit = 200

// HistoryItem is one saved history entry.
type HistoryItem struct {
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
}

// History is an append-only JSONL file. Corrupt lines are skipped on read;
// a half-written trailing line never poisons the rest of the file.
type History struct {
	path string
}

// NewHistory opens a history file, creating its parent directory.
func NewHistory(path string) (*History, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("prepare history dir: %w", err)
	}
	return &History{path: path}, nil
}

// Append writes one entry.
func (h *History) Append(value string) error {
	line, err := json.Marshal(HistoryItem{Value: value, CreatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encode history entry: %w", err)
	}

	f, err := os.OpenFile(h.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// Read returns up to limit entries, oldest first, keeping the most recent
// ones when the file is longer. A missing file reads as empty.
func (h *History) Read(limit int) ([]HistoryItem, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	f, err := os.Open(h.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open history: %w", err)
	}
	defer f.Close()

	var items []HistoryItem
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var item HistoryItem
		if err := json.Unmarshal(line, &item); err != nil {
			continue
		}
		items = append(items, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}

	if len(items) > limit {
		items = items[len(items)-limit:]
	}
	return items, nil
}

// ProjectHistories bundles the per-project prompt and shell histories.
type ProjectHistories struct {
	Prompt *History
	Shell  *History
}

// NewProjectHistories opens the histories stored under the project's data
// directory.
func NewProjectHistories(projectRoot string) (*ProjectHistories, error) {
	base, err := paths.ProjectDataDir(projectRoot)
	if err != nil {
		return nil, err
	}
	prompt, err := NewHistory(filepath.Join(base, "prompt-history.jsonl"))
	if err != nil {
		return nil, err
	}
	shell, err := NewHistory(filepath.Join(base, "shell-history.jsonl"))
	if err != nil {
		return nil, err
	}
	return &ProjectHistories{Prompt: prompt, Shell: shell}, nil
}
