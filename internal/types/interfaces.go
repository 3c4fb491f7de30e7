// internal/types/interfaces.go
package types

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by store lookups when no row matches.
var ErrNotFound = errors.New("not found")

type UserStore interface {
	CreateUser(ctx context.Context, user *User) error
	UpdateUser(ctx context.Context, user *User) error
	UserByName(ctx context.Context, name string) (*User, error)
	HumanUser(ctx context.Context) (*User, error)
}

type AgentStore interface {
	CreateAgent(ctx context.Context, agent *Agent) error
	AgentByName(ctx context.Context, name string) (*Agent, error)
	ListAgents(ctx context.Context) ([]*Agent, error)
	UpdateAgentStatus(ctx context.Context, id UserID, status AgentStatus) error
	UpdateAgentConnection(ctx context.Context, id UserID, remoteSessionID, remoteEndpoint string) error
	UpdateAgentProfile(ctx context.Context, id UserID, description, personality, currentTask, gender string) error
}

type SessionStore interface {
	CreateSession(ctx context.Context, session *Session) error
	// ActiveSession returns the newest active session for the agent, or
	// ErrNotFound if none exists.
	ActiveSession(ctx context.Context, agentID UserID) (*Session, error)
	EndSessions(ctx context.Context, agentID UserID) error
	DeactivateSession(ctx context.Context, id SessionID) error
	HeartbeatSessions(ctx context.Context, agentID UserID, at time.Time) error
}

type ChannelStore interface {
	CreateChannel(ctx context.Context, channel *Channel) error
	ChannelByID(ctx context.Context, id ChannelID) (*Channel, error)
	ChannelByName(ctx context.Context, name string) (*Channel, error)
	ListChannels(ctx context.Context) ([]*Channel, error)
	AddMember(ctx context.Context, channelID ChannelID, userID UserID) (added bool, err error)
}

type MessageStore interface {
	CreateMessage(ctx context.Context, message *Message) error
	// ListMessages returns up to limit messages for the channel, newest
	// first.
	ListMessages(ctx context.Context, channelID ChannelID, limit int) ([]*ChannelMessage, error)
	// RecentMessages returns the last n messages of the channel in
	// chronological order (oldest first).
	RecentMessages(ctx context.Context, channelID ChannelID, n int) ([]*ChannelMessage, error)
}

type FeatureStore interface {
	CreateFeature(ctx context.Context, feature *Feature) error
	FeatureByID(ctx context.Context, id FeatureID) (*Feature, error)
	ListFeatures(ctx context.Context, status string) ([]*Feature, error)
	// CastVote upserts the (feature, user) vote and returns the
	// recomputed signed tally for the feature.
	CastVote(ctx context.Context, featureID FeatureID, userID UserID, vote int) (int, error)
}
