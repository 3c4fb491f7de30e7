// Package store is the SQLite persistence layer. One Store owns the
// database handle and implements every store interface in
// internal/types.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/user/talkto/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	type TEXT NOT NULL,
	display_name TEXT NOT NULL DEFAULT '',
	about TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS agents (
	id TEXT PRIMARY KEY REFERENCES users(id),
	agent_name TEXT NOT NULL UNIQUE,
	agent_type TEXT NOT NULL,
	project_path TEXT NOT NULL DEFAULT '',
	project_name TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'offline',
	remote_session_id TEXT NOT NULL DEFAULT '',
	remote_endpoint TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	personality TEXT NOT NULL DEFAULT '',
	current_task TEXT NOT NULL DEFAULT '',
	gender TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	agent_id TEXT NOT NULL REFERENCES agents(id),
	pid INTEGER NOT NULL,
	tty TEXT NOT NULL DEFAULT '',
	is_active INTEGER NOT NULL DEFAULT 1,
	started_at TEXT NOT NULL,
	ended_at TEXT,
	last_heartbeat TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_agent_active ON sessions(agent_id, is_active);

CREATE TABLE IF NOT EXISTS channels (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	type TEXT NOT NULL,
	project_path TEXT NOT NULL DEFAULT '',
	created_by TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS channel_members (
	channel_id TEXT NOT NULL REFERENCES channels(id),
	user_id TEXT NOT NULL REFERENCES users(id),
	joined_at TEXT NOT NULL,
	PRIMARY KEY (channel_id, user_id)
);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	channel_id TEXT NOT NULL REFERENCES channels(id),
	sender_id TEXT NOT NULL REFERENCES users(id),
	content TEXT NOT NULL,
	mentions TEXT,
	parent_id TEXT,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_channel_created ON messages(channel_id, created_at);

CREATE TABLE IF NOT EXISTS feature_requests (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'open',
	created_by TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS feature_votes (
	feature_id TEXT NOT NULL REFERENCES feature_requests(id),
	user_id TEXT NOT NULL REFERENCES users(id),
	vote INTEGER NOT NULL,
	PRIMARY KEY (feature_id, user_id)
);
`

var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA foreign_keys = ON",
	"PRAGMA busy_timeout = 5000",
}

// Store implements the persistence interfaces on a single SQLite
// database.
type Store struct {
	db *sql.DB
}

// Interface compliance checks.
var _ types.UserStore = (*Store)(nil)
var _ types.AgentStore = (*Store)(nil)
var _ types.SessionStore = (*Store)(nil)
var _ types.ChannelStore = (*Store)(nil)
var _ types.MessageStore = (*Store)(nil)
var _ types.FeatureStore = (*Store)(nil)

// Open opens (creating if needed) the database at path, applies pragmas
// and the schema, and seeds default channels and the creator agent.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	s := &Store{db: db}
	if err := s.seed(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("seed defaults: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Timestamps are stored as RFC 3339 TEXT to keep SQLite comparisons and
// JSON output consistent.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
