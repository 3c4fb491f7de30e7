// internal/store/agents.go
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/user/talkto/internal/types"
)

func (s *Store) CreateUser(ctx context.Context, user *types.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, name, type, display_name, about, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		string(user.ID), user.Name, string(user.Type), user.DisplayName, user.About, formatTime(user.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Store) UpdateUser(ctx context.Context, user *types.User) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET name = ?, display_name = ?, about = ? WHERE id = ?`,
		user.Name, user.DisplayName, user.About, string(user.ID),
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return requireRow(res)
}

func (s *Store) scanUser(row *sql.Row) (*types.User, error) {
	var u types.User
	var id, userType, createdAt string
	err := row.Scan(&id, &u.Name, &userType, &u.DisplayName, &u.About, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.ID = types.UserID(id)
	u.Type = types.UserType(userType)
	u.CreatedAt = parseTime(createdAt)
	return &u, nil
}

const userColumns = `id, name, type, display_name, about, created_at`

func (s *Store) UserByName(ctx context.Context, name string) (*types.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE name = ?`, name)
	return s.scanUser(row)
}

// HumanUser returns the single onboarded human operator.
func (s *Store) HumanUser(ctx context.Context) (*types.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE type = ? LIMIT 1`, string(types.UserHuman))
	return s.scanUser(row)
}

const agentColumns = `id, agent_name, agent_type, project_path, project_name, status, remote_session_id, remote_endpoint, description, personality, current_task, gender`

func (s *Store) CreateAgent(ctx context.Context, agent *types.Agent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agents (`+agentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(agent.ID), agent.Name, string(agent.Type), agent.ProjectPath, agent.ProjectName,
		string(agent.Status), agent.RemoteSessionID, agent.RemoteEndpoint,
		agent.Description, agent.Personality, agent.CurrentTask, agent.Gender,
	)
	if err != nil {
		return fmt.Errorf("insert agent: %w", err)
	}
	return nil
}

func scanAgent(scanner interface{ Scan(...any) error }) (*types.Agent, error) {
	var a types.Agent
	var id, agentType, status string
	err := scanner.Scan(&id, &a.Name, &agentType, &a.ProjectPath, &a.ProjectName, &status,
		&a.RemoteSessionID, &a.RemoteEndpoint, &a.Description, &a.Personality, &a.CurrentTask, &a.Gender)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan agent: %w", err)
	}
	a.ID = types.UserID(id)
	a.Type = types.AgentType(agentType)
	a.Status = types.AgentStatus(status)
	return &a, nil
}

func (s *Store) AgentByName(ctx context.Context, name string) (*types.Agent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE agent_name = ?`, name)
	return scanAgent(row)
}

func (s *Store) ListAgents(ctx context.Context) ([]*types.Agent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+agentColumns+` FROM agents ORDER BY agent_name`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var agents []*types.Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}
	return agents, rows.Err()
}

func (s *Store) UpdateAgentStatus(ctx context.Context, id types.UserID, status types.AgentStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE agents SET status = ? WHERE id = ?`, string(status), string(id))
	if err != nil {
		return fmt.Errorf("update agent status: %w", err)
	}
	return requireRow(res)
}

func (s *Store) UpdateAgentConnection(ctx context.Context, id types.UserID, remoteSessionID, remoteEndpoint string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE agents SET remote_session_id = ?, remote_endpoint = ? WHERE id = ?`,
		remoteSessionID, remoteEndpoint, string(id),
	)
	if err != nil {
		return fmt.Errorf("update agent connection: %w", err)
	}
	return requireRow(res)
}

func (s *Store) UpdateAgentProfile(ctx context.Context, id types.UserID, description, personality, currentTask, gender string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE agents SET description = ?, personality = ?, current_task = ?, gender = ? WHERE id = ?`,
		description, personality, currentTask, gender, string(id),
	)
	if err != nil {
		return fmt.Errorf("update agent profile: %w", err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return types.ErrNotFound
	}
	return nil
}
