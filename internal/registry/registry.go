// Package registry handles agent onboarding: name assignment, channel
// membership, and session tracking.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/user/talkto/internal/broadcast"
	"github.com/user/talkto/internal/names"
	"github.com/user/talkto/internal/types"
)

type Service struct {
	users    types.UserStore
	agents   types.AgentStore
	sessions types.SessionStore
	channels types.ChannelStore
	sink     broadcast.Sink
	logger   *slog.Logger
}

func NewService(users types.UserStore, agents types.AgentStore, sessions types.SessionStore, channels types.ChannelStore, sink broadcast.Sink) *Service {
	return &Service{
		users:    users,
		agents:   agents,
		sessions: sessions,
		channels: channels,
		sink:     sink,
		logger:   slog.Default().With("component", "registry"),
	}
}

// RegisterRequest describes a new agent process announcing itself.
type RegisterRequest struct {
	AgentType   types.AgentType `json:"agent_type"`
	ProjectPath string          `json:"project_path"`
	ProjectName string          `json:"project_name"`
	PID         int             `json:"pid"`
	TTY         string          `json:"tty"`
}

// Register creates a new agent identity: a generated adjective-animal
// name, user and agent rows, membership in #general, the project
// channel, and the agent's DM channel, plus the first session.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*types.Agent, error) {
	if req.AgentType == "" || req.ProjectName == "" {
		return nil, fmt.Errorf("agent_type and project_name are required")
	}

	name, err := names.GenerateUnique(ctx, req.ProjectName, req.AgentType,
		func(ctx context.Context, candidate string) (bool, error) {
			_, err := s.agents.AgentByName(ctx, candidate)
			if errors.Is(err, types.ErrNotFound) {
				return false, nil
			}
			if err != nil {
				return false, err
			}
			return true, nil
		})
	if err != nil {
		return nil, fmt.Errorf("assign name: %w", err)
	}

	now := time.Now()
	user := &types.User{
		ID:        types.NewUserID(),
		Name:      name,
		Type:      types.UserAgent,
		CreatedAt: now,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	agent := &types.Agent{
		ID:          user.ID,
		Name:        name,
		Type:        req.AgentType,
		ProjectPath: req.ProjectPath,
		ProjectName: req.ProjectName,
		Status:      types.StatusOnline,
	}
	if err := s.agents.CreateAgent(ctx, agent); err != nil {
		return nil, fmt.Errorf("create agent: %w", err)
	}

	general, err := s.channels.ChannelByName(ctx, "#general")
	if err != nil {
		return nil, fmt.Errorf("general channel: %w", err)
	}
	if _, err := s.channels.AddMember(ctx, general.ID, user.ID); err != nil {
		return nil, err
	}

	project, err := s.ensureChannel(ctx, "#project-"+req.ProjectName, types.ChannelProject, req.ProjectPath, name)
	if err != nil {
		return nil, err
	}
	if _, err := s.channels.AddMember(ctx, project.ID, user.ID); err != nil {
		return nil, err
	}

	dm, err := s.ensureChannel(ctx, types.DMChannelName(name), types.ChannelDM, "", name)
	if err != nil {
		return nil, err
	}
	if _, err := s.channels.AddMember(ctx, dm.ID, user.ID); err != nil {
		return nil, err
	}

	if req.PID > 0 {
		if err := s.startSession(ctx, user.ID, req.PID, req.TTY, now); err != nil {
			return nil, err
		}
	}

	s.sink.Emit(broadcast.AgentStatusEvent(name, string(types.StatusOnline), string(req.AgentType), req.ProjectName))
	s.logger.Info("agent registered", "name", name, "type", req.AgentType, "project", req.ProjectName, "pid", req.PID)
	return agent, nil
}

// Connect attaches an existing agent to a remote session, replacing any
// earlier local session. Used by agents that route invocations through
// an HTTP endpoint instead of a local process.
func (s *Service) Connect(ctx context.Context, name, remoteSessionID, remoteEndpoint string) (*types.Agent, error) {
	agent, err := s.agents.AgentByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := s.agents.UpdateAgentConnection(ctx, agent.ID, remoteSessionID, remoteEndpoint); err != nil {
		return nil, err
	}
	if agent.Status != types.StatusOnline {
		if err := s.agents.UpdateAgentStatus(ctx, agent.ID, types.StatusOnline); err != nil {
			return nil, err
		}
		s.sink.Emit(broadcast.AgentStatusEvent(agent.Name, string(types.StatusOnline), string(agent.Type), agent.ProjectName))
	}
	agent.RemoteSessionID = remoteSessionID
	agent.RemoteEndpoint = remoteEndpoint
	agent.Status = types.StatusOnline
	s.logger.Info("agent connected", "name", name, "remote_session", remoteSessionID)
	return agent, nil
}

// Reattach records a fresh local session for a known agent, ending any
// previous ones. Used when an agent process restarts under an existing
// identity.
func (s *Service) Reattach(ctx context.Context, name string, pid int, tty string) (*types.Agent, error) {
	agent, err := s.agents.AgentByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.EndSessions(ctx, agent.ID); err != nil {
		return nil, err
	}
	if err := s.startSession(ctx, agent.ID, pid, tty, time.Now()); err != nil {
		return nil, err
	}
	if agent.Status != types.StatusOnline {
		if err := s.agents.UpdateAgentStatus(ctx, agent.ID, types.StatusOnline); err != nil {
			return nil, err
		}
		s.sink.Emit(broadcast.AgentStatusEvent(agent.Name, string(types.StatusOnline), string(agent.Type), agent.ProjectName))
	}
	agent.Status = types.StatusOnline
	s.logger.Info("agent reattached", "name", name, "pid", pid)
	return agent, nil
}

// Disconnect marks the agent offline and ends its sessions.
func (s *Service) Disconnect(ctx context.Context, name string) error {
	agent, err := s.agents.AgentByName(ctx, name)
	if err != nil {
		return err
	}
	if err := s.sessions.EndSessions(ctx, agent.ID); err != nil {
		return err
	}
	if agent.Status != types.StatusOffline {
		if err := s.agents.UpdateAgentStatus(ctx, agent.ID, types.StatusOffline); err != nil {
			return err
		}
		s.sink.Emit(broadcast.AgentStatusEvent(agent.Name, string(types.StatusOffline), string(agent.Type), agent.ProjectName))
	}
	s.logger.Info("agent disconnected", "name", name)
	return nil
}

// Heartbeat bumps the active sessions' last_heartbeat.
func (s *Service) Heartbeat(ctx context.Context, name string) error {
	agent, err := s.agents.AgentByName(ctx, name)
	if err != nil {
		return err
	}
	return s.sessions.HeartbeatSessions(ctx, agent.ID, time.Now())
}

func (s *Service) ensureChannel(ctx context.Context, name string, chType types.ChannelType, projectPath, createdBy string) (*types.Channel, error) {
	ch, err := s.channels.ChannelByName(ctx, name)
	if err == nil {
		return ch, nil
	}
	if !errors.Is(err, types.ErrNotFound) {
		return nil, err
	}

	ch = &types.Channel{
		ID:          types.NewChannelID(),
		Name:        name,
		Type:        chType,
		ProjectPath: projectPath,
		CreatedBy:   createdBy,
		CreatedAt:   time.Now(),
	}
	if err := s.channels.CreateChannel(ctx, ch); err != nil {
		return nil, fmt.Errorf("create channel %s: %w", name, err)
	}
	s.sink.Emit(broadcast.ChannelCreatedEvent(string(ch.ID), ch.Name, string(ch.Type), ch.ProjectPath))
	return ch, nil
}

func (s *Service) startSession(ctx context.Context, agentID types.UserID, pid int, tty string, now time.Time) error {
	sess := &types.Session{
		ID:            types.NewSessionID(),
		AgentID:       agentID,
		PID:           pid,
		TTY:           tty,
		IsActive:      true,
		StartedAt:     now,
		LastHeartbeat: now,
	}
	if err := s.sessions.CreateSession(ctx, sess); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}
