// Package telemetry records anonymous usage events, gated by local opt-in.
// Events are appended to a JSONL sink on disk; nothing is transmitted, so
// users can inspect exactly what collection would look like.
package telemetry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Apothic-AI/bufo/internal/common/config"
	"github.com/Apothic-AI/bufo/internal/common/logger"
	"github.com/Apothic-AI/bufo/internal/common/paths"
)

// Event is one named measurement with free-form properties.
type Event struct {
	Name       string
	Properties map[string]interface{}
}

// Telemetry appends events to the sink when collection is allowed. Safe for
// concurrent use.
type Telemetry struct {
	logger     *logger.Logger
	allow      bool
	sinkPath   string
	distinctID string

	mu sync.Mutex
}

// New builds a collector. An empty sinkPath selects the default location in
// the user state directory. The anonymous distinct id is created on first
// use and persisted next to the sink.
func New(cfg config.TelemetryConfig, sinkPath string, log *logger.Logger) (*Telemetry, error) {
	if sinkPath == "" {
		root, err := paths.StateRoot()
		if err != nil {
			return nil, err
		}
		sinkPath = filepath.Join(root, "telemetry.jsonl")
	}

	return &Telemetry{
		logger:     log.WithFields(zap.String("component", "telemetry")),
		allow:      cfg.AllowCollect,
		sinkPath:   sinkPath,
		distinctID: loadOrCreateDistinctID(filepath.Join(filepath.Dir(sinkPath), "telemetry_id")),
	}, nil
}

// Enabled reports whether events are being collected.
func (t *Telemetry) Enabled() bool { return t.allow }

// DistinctID returns the stable anonymous identifier.
func (t *Telemetry) DistinctID() string { return t.distinctID }

// Capture appends one event to the sink. With collection off this is a
// silent no-op; sink failures are logged but never propagate.
func (t *Telemetry) Capture(ev Event) {
	if !t.allow {
		return
	}

	props := map[string]interface{}{
		"platform": runtime.GOOS + "/" + runtime.GOARCH,
	}
	for k, v := range ev.Properties {
		props[k] = v
	}
	payload := map[string]interface{}{
		"name":        ev.Name,
		"ts":          time.Now().UTC().Format(time.RFC3339Nano),
		"distinct_id": t.distinctID,
		"properties":  props,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(t.sinkPath), 0o755); err != nil {
		t.logger.Debug("telemetry sink unavailable", zap.Error(err))
		return
	}
	f, err := os.OpenFile(t.sinkPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		t.logger.Debug("telemetry sink unavailable", zap.Error(err))
		return
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		t.logger.Debug("telemetry write failed", zap.Error(err))
	}
}

// loadOrCreateDistinctID reads the persisted anonymous id, minting and
// storing a fresh one when absent.
func loadOrCreateDistinctID(path string) string {
	if data, err := os.ReadFile(path); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id
		}
	}
	id := uuid.NewString()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err == nil {
		_ = os.WriteFile(path, []byte(id+"\n"), 0o644)
	}
	return id
}
