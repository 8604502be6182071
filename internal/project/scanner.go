// Package project provides filesystem scanning and change watching for
// project trees, honouring .gitignore rules plus a small set of hardcoded
// exclusions.
package project

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Apothic-AI/bufo/internal/common/config"
	"github.com/Apothic-AI/bufo/internal/common/logger"
)

// ScanEntry is one filesystem node found during a project scan.
type ScanEntry struct {
	Path  string // absolute path
	Rel   string // slash-separated path relative to the scanned root
	IsDir bool
}

// Scanner walks a project tree breadth-first with a bounded number of
// concurrent directory listings and a wall-clock budget. Large trees return
// whatever was found when the budget runs out rather than blocking callers.
type Scanner struct {
	logger  *logger.Logger
	budget  time.Duration
	workers int
}

// NewScanner builds a scanner from the project configuration.
func NewScanner(cfg config.ProjectConfig, log *logger.Logger) *Scanner {
	budget := cfg.ScanTimeoutDuration()
	if budget <= 0 {
		budget = 4 * time.Second
	}
	workers := cfg.ScanWorkers
	if workers <= 0 {
		workers = 8
	}
	return &Scanner{
		logger:  log.WithFields(zap.String("component", "project-scanner")),
		budget:  budget,
		workers: workers,
	}
}

// Scan walks root and returns every entry the ignore rules keep. The walk
// stops early when the budget elapses or ctx is cancelled; entries found by
// then are still returned. Output order is deterministic: directories are
// visited breadth-first, and within each directory subdirectories come before
// files, both sorted case-insensitively by name.
func (s *Scanner) Scan(ctx context.Context, root string) ([]ScanEntry, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scan root %s is not a directory", abs)
	}

	filter := NewFilter(abs, s.logger)
	deadline := time.Now().Add(s.budget)

	var entries []ScanEntry
	pending := []string{abs}
	for len(pending) > 0 && time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return entries, err
		}

		chunk := pending
		if max := s.workers * 2; len(chunk) > max {
			chunk = chunk[:max]
		}
		pending = pending[len(chunk):]

		listings := make([][]ScanEntry, len(chunk))
		g := new(errgroup.Group)
		g.SetLimit(s.workers)
		for i, dir := range chunk {
			g.Go(func() error {
				listings[i] = listDir(abs, dir, filter)
				return nil
			})
		}
		_ = g.Wait()

		for _, found := range listings {
			for _, entry := range found {
				entries = append(entries, entry)
				if entry.IsDir {
					pending = append(pending, entry.Path)
				}
			}
		}
	}
	return entries, nil
}

// listDir returns the kept children of dir, subdirectories first. Unreadable
// directories are treated as empty.
func listDir(root, dir string, filter *Filter) []ScanEntry {
	items, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	sort.SliceStable(items, func(i, j int) bool {
		if di, dj := items[i].IsDir(), items[j].IsDir(); di != dj {
			return di
		}
		return strings.ToLower(items[i].Name()) < strings.ToLower(items[j].Name())
	})

	found := make([]ScanEntry, 0, len(items))
	for _, item := range items {
		path := filepath.Join(dir, item.Name())
		rel, err := filepath.Rel(root, path)
		if err != nil {
			continue
		}
		rel = filepath.ToSlash(rel)
		isDir := item.IsDir()
		if filter.Excluded(rel, isDir) {
			continue
		}
		found = append(found, ScanEntry{Path: path, Rel: rel, IsDir: isDir})
	}
	return found
}
