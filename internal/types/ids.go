// internal/types/ids.go
package types

import "github.com/google/uuid"

type UserID string
type SessionID string
type ChannelID string
type MessageID string
type FeatureID string

func NewUserID() UserID {
	return UserID(uuid.New().String())
}

func NewSessionID() SessionID {
	return SessionID(uuid.New().String())
}

func NewChannelID() ChannelID {
	return ChannelID(uuid.New().String())
}

func NewMessageID() MessageID {
	return MessageID(uuid.New().String())
}

func NewFeatureID() FeatureID {
	return FeatureID(uuid.New().String())
}
