// internal/store/messages.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/user/talkto/internal/types"
)

func (s *Store) CreateMessage(ctx context.Context, message *types.Message) error {
	var mentions any
	if len(message.Mentions) > 0 {
		raw, err := json.Marshal(message.Mentions)
		if err != nil {
			return fmt.Errorf("encode mentions: %w", err)
		}
		mentions = string(raw)
	}
	var parent any
	if message.ParentID != nil {
		parent = string(*message.ParentID)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, channel_id, sender_id, content, mentions, parent_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(message.ID), string(message.ChannelID), string(message.SenderID),
		message.Content, mentions, parent, formatTime(message.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

const messageQuery = `
	SELECT m.id, m.channel_id, m.sender_id, m.content, m.mentions, m.parent_id, m.created_at, u.name
	FROM messages m JOIN users u ON u.id = m.sender_id
	WHERE m.channel_id = ?
	ORDER BY m.created_at %s, m.id %s
	LIMIT ?`

func (s *Store) ListMessages(ctx context.Context, channelID types.ChannelID, limit int) ([]*types.ChannelMessage, error) {
	return s.queryMessages(ctx, fmt.Sprintf(messageQuery, "DESC", "DESC"), channelID, limit)
}

// RecentMessages returns the last n messages oldest first, the order a
// reader (or an invocation prompt) wants them in.
func (s *Store) RecentMessages(ctx context.Context, channelID types.ChannelID, n int) ([]*types.ChannelMessage, error) {
	msgs, err := s.queryMessages(ctx, fmt.Sprintf(messageQuery, "DESC", "DESC"), channelID, n)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *Store) queryMessages(ctx context.Context, query string, channelID types.ChannelID, limit int) ([]*types.ChannelMessage, error) {
	rows, err := s.db.QueryContext(ctx, query, string(channelID), limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var msgs []*types.ChannelMessage
	for rows.Next() {
		var m types.ChannelMessage
		var id, chID, senderID, createdAt string
		var mentions, parent sql.NullString
		if err := rows.Scan(&id, &chID, &senderID, &m.Content, &mentions, &parent, &createdAt, &m.SenderName); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.ID = types.MessageID(id)
		m.ChannelID = types.ChannelID(chID)
		m.SenderID = types.UserID(senderID)
		m.CreatedAt = parseTime(createdAt)
		if mentions.Valid && mentions.String != "" {
			if err := json.Unmarshal([]byte(mentions.String), &m.Mentions); err != nil {
				return nil, fmt.Errorf("decode mentions: %w", err)
			}
		}
		if parent.Valid {
			pid := types.MessageID(parent.String)
			m.ParentID = &pid
		}
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}
