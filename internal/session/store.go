// Package session persists agent session metadata in SQLite and keeps
// project-scoped JSONL histories for prompts and shell commands.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/Apothic-AI/bufo/internal/common/logger"
	"github.com/Apothic-AI/bufo/internal/common/paths"
)

const busyTimeout = 5 * time.Second

// Record is one stored agent session.
type Record struct {
	ID            string `db:"id"`
	AgentName     string `db:"agent_name"`
	AgentIdentity string `db:"agent_identity"`

	// AgentSessionID is the identifier the agent negotiated, empty for
	// session-less agents. Rows with an id are unique per (identity, id).
	AgentSessionID string `db:"agent_session_id"`

	Title      string          `db:"title"`
	Protocol   string          `db:"protocol"`
	CreatedAt  time.Time       `db:"created_at"`
	LastUsedAt time.Time       `db:"last_used_at"`
	Metadata   json.RawMessage `db:"metadata_json"`
}

// UpsertParams identifies and describes a session for Upsert.
type UpsertParams struct {
	AgentName      string
	AgentIdentity  string
	AgentSessionID string
	Title          string
	Protocol       string
	Metadata       map[string]interface{}
}

// Store is the SQLite-backed session metadata store. A single write
// connection serializes access; WAL keeps the file safe across processes.
type Store struct {
	db     *sqlx.DB
	logger *logger.Logger
}

// Open opens (and creates, if needed) the session database. An empty dbPath
// means the platform state directory.
func Open(dbPath string, log *logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.Default()
	}
	if dbPath == "" {
		var err error
		dbPath, err = paths.SessionDBPath()
		if err != nil {
			return nil, err
		}
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("prepare database dir: %w", err)
	}

	dsn := fmt.Sprintf(
		"file:%s?_foreign_keys=on&_mode=rwc&_busy_timeout=%d&_journal_mode=WAL&_synchronous=NORMAL",
		dbPath,
		int(busyTimeout/time.Millisecond),
	)
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open session database: %w", err)
	}
	// Single writer connection avoids SQLITE_BUSY under concurrent use.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, logger: log.WithFields(zap.String("component", "session-store"))}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize session schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		agent_name TEXT NOT NULL,
		agent_identity TEXT NOT NULL,
		agent_session_id TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL,
		protocol TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		last_used_at TIMESTAMP NOT NULL,
		metadata_json TEXT NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_agent_pair
		ON sessions(agent_identity, agent_session_id)
		WHERE agent_session_id != '';
	CREATE INDEX IF NOT EXISTS idx_sessions_last_used
		ON sessions(last_used_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Upsert records a session. A row keyed by (agent identity, agent session
// id) is updated in place, preserving its id and creation time; sessions
// without an agent session id always insert a fresh row.
func (s *Store) Upsert(ctx context.Context, p UpsertParams) (*Record, error) {
	if p.AgentIdentity == "" {
		return nil, fmt.Errorf("agent identity is required")
	}
	now := time.Now().UTC()
	metadata, err := marshalMetadata(p.Metadata)
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	_, err = s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO sessions (id, agent_name, agent_identity, agent_session_id,
			title, protocol, created_at, last_used_at, metadata_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(agent_identity, agent_session_id) WHERE agent_session_id != ''
		DO UPDATE SET
			agent_name = excluded.agent_name,
			title = excluded.title,
			protocol = excluded.protocol,
			last_used_at = excluded.last_used_at,
			metadata_json = excluded.metadata_json
	`), id, p.AgentName, p.AgentIdentity, p.AgentSessionID,
		p.Title, p.Protocol, now, now, metadata)
	if err != nil {
		return nil, fmt.Errorf("upsert session: %w", err)
	}

	if p.AgentSessionID != "" {
		return s.GetByAgentPair(ctx, p.AgentIdentity, p.AgentSessionID)
	}
	return s.Get(ctx, id)
}

// Get returns a session by store id. sql.ErrNoRows when absent.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	var rec Record
	err := s.db.GetContext(ctx, &rec, s.db.Rebind(`
		SELECT * FROM sessions WHERE id = ?
	`), id)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetByAgentPair returns the session with the given agent identity and agent
// session id. sql.ErrNoRows when absent.
func (s *Store) GetByAgentPair(ctx context.Context, identity, sessionID string) (*Record, error) {
	var rec Record
	err := s.db.GetContext(ctx, &rec, s.db.Rebind(`
		SELECT * FROM sessions
		WHERE agent_identity = ? AND agent_session_id = ?
	`), identity, sessionID)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Recent returns sessions ordered by last use, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []*Record
	err := s.db.SelectContext(ctx, &out, s.db.Rebind(`
		SELECT * FROM sessions
		ORDER BY last_used_at DESC
		LIMIT ?
	`), limit)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Touch advances a session's last-used timestamp.
func (s *Store) Touch(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE sessions SET last_used_at = ? WHERE id = ?
	`), time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		s.logger.Warn("touched unknown session", zap.String("id", id))
	}
	return nil
}

func marshalMetadata(metadata map[string]interface{}) (string, error) {
	if len(metadata) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("encode session metadata: %w", err)
	}
	return string(data), nil
}
