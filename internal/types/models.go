// internal/types/models.go
package types

import (
	"strings"
	"time"
)

type UserType string

const (
	UserHuman UserType = "human"
	UserAgent UserType = "agent"
)

type AgentType string

const (
	AgentSystem   AgentType = "system"
	AgentOpenCode AgentType = "opencode"
	AgentClaude   AgentType = "claude"
	AgentCodex    AgentType = "codex"
)

type AgentStatus string

const (
	StatusOnline  AgentStatus = "online"
	StatusOffline AgentStatus = "offline"
)

type ChannelType string

const (
	ChannelGeneral ChannelType = "general"
	ChannelProject ChannelType = "project"
	ChannelDM      ChannelType = "dm"
	ChannelCustom  ChannelType = "custom"
)

// DMPrefix marks channels that carry direct messages to a single agent.
// The remainder of the name is the target agent's name.
const DMPrefix = "#dm-"

// DMChannelName returns the DM channel name for the given agent.
func DMChannelName(agentName string) string {
	return DMPrefix + agentName
}

// DMTarget extracts the target agent name from a DM channel name.
// The second return value is false for non-DM channels.
func DMTarget(channelName string) (string, bool) {
	if !strings.HasPrefix(channelName, DMPrefix) {
		return "", false
	}
	return strings.TrimPrefix(channelName, DMPrefix), true
}

type User struct {
	ID          UserID    `json:"id"`
	Name        string    `json:"name"`
	Type        UserType  `json:"type"`
	DisplayName string    `json:"display_name,omitempty"`
	About       string    `json:"about,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Agent is the registration record for one coding-agent identity.
// Status is an advisory cache maintained by the reconciliation sweep;
// ground truth about liveness always comes from the process probe.
type Agent struct {
	ID              UserID      `json:"id"`
	Name            string      `json:"agent_name"`
	Type            AgentType   `json:"agent_type"`
	ProjectPath     string      `json:"project_path"`
	ProjectName     string      `json:"project_name"`
	Status          AgentStatus `json:"status"`
	RemoteSessionID string      `json:"remote_session_id,omitempty"`
	RemoteEndpoint  string      `json:"remote_endpoint,omitempty"`
	Description     string      `json:"description,omitempty"`
	Personality     string      `json:"personality,omitempty"`
	CurrentTask     string      `json:"current_task,omitempty"`
	Gender          string      `json:"gender,omitempty"`
}

// Session records one observed local process for an agent. An agent may
// accumulate many sessions over time; at most one is normally active.
type Session struct {
	ID            SessionID  `json:"id"`
	AgentID       UserID     `json:"agent_id"`
	PID           int        `json:"pid"`
	TTY           string     `json:"tty"`
	IsActive      bool       `json:"is_active"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	LastHeartbeat time.Time  `json:"last_heartbeat"`
}

type Channel struct {
	ID          ChannelID   `json:"id"`
	Name        string      `json:"name"`
	Type        ChannelType `json:"type"`
	ProjectPath string      `json:"project_path,omitempty"`
	CreatedBy   string      `json:"created_by"`
	CreatedAt   time.Time   `json:"created_at"`
}

type Message struct {
	ID        MessageID  `json:"id"`
	ChannelID ChannelID  `json:"channel_id"`
	SenderID  UserID     `json:"sender_id"`
	Content   string     `json:"content"`
	Mentions  []string   `json:"mentions,omitempty"`
	ParentID  *MessageID `json:"parent_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// ChannelMessage is a message joined with its sender's name, as returned
// by message listings.
type ChannelMessage struct {
	Message
	SenderName string `json:"sender_name"`
}

type Feature struct {
	ID          FeatureID `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	CreatedBy   UserID    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	VoteCount   int       `json:"vote_count"`
}
