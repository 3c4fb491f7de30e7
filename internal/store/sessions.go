// internal/store/sessions.go
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/user/talkto/internal/types"
)

func (s *Store) CreateSession(ctx context.Context, session *types.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, agent_id, pid, tty, is_active, started_at, ended_at, last_heartbeat)
		 VALUES (?, ?, ?, ?, ?, ?, NULL, ?)`,
		string(session.ID), string(session.AgentID), session.PID, session.TTY,
		boolToInt(session.IsActive), formatTime(session.StartedAt), formatTime(session.LastHeartbeat),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *Store) ActiveSession(ctx context.Context, agentID types.UserID) (*types.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, agent_id, pid, tty, is_active, started_at, ended_at, last_heartbeat
		 FROM sessions WHERE agent_id = ? AND is_active = 1
		 ORDER BY started_at DESC LIMIT 1`,
		string(agentID),
	)

	var sess types.Session
	var id, aid, startedAt, lastHeartbeat string
	var endedAt sql.NullString
	var active int
	err := row.Scan(&id, &aid, &sess.PID, &sess.TTY, &active, &startedAt, &endedAt, &lastHeartbeat)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	sess.ID = types.SessionID(id)
	sess.AgentID = types.UserID(aid)
	sess.IsActive = active != 0
	sess.StartedAt = parseTime(startedAt)
	sess.LastHeartbeat = parseTime(lastHeartbeat)
	if endedAt.Valid {
		t := parseTime(endedAt.String)
		sess.EndedAt = &t
	}
	return &sess, nil
}

// EndSessions marks every active session of the agent as ended. Ending
// an agent with no active sessions is not an error.
func (s *Store) EndSessions(ctx context.Context, agentID types.UserID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET is_active = 0, ended_at = ? WHERE agent_id = ? AND is_active = 1`,
		formatTime(time.Now()), string(agentID),
	)
	if err != nil {
		return fmt.Errorf("end sessions: %w", err)
	}
	return nil
}

func (s *Store) DeactivateSession(ctx context.Context, id types.SessionID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET is_active = 0, ended_at = ? WHERE id = ? AND is_active = 1`,
		formatTime(time.Now()), string(id),
	)
	if err != nil {
		return fmt.Errorf("deactivate session: %w", err)
	}
	return requireRow(res)
}

func (s *Store) HeartbeatSessions(ctx context.Context, agentID types.UserID, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET last_heartbeat = ? WHERE agent_id = ? AND is_active = 1`,
		formatTime(at), string(agentID),
	)
	if err != nil {
		return fmt.Errorf("heartbeat sessions: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
