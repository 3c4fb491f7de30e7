// internal/store/channels.go
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/user/talkto/internal/types"
)

const channelColumns = `id, name, type, project_path, created_by, created_at`

func (s *Store) CreateChannel(ctx context.Context, channel *types.Channel) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO channels (`+channelColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		string(channel.ID), channel.Name, string(channel.Type), channel.ProjectPath,
		channel.CreatedBy, formatTime(channel.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert channel: %w", err)
	}
	return nil
}

func scanChannel(scanner interface{ Scan(...any) error }) (*types.Channel, error) {
	var ch types.Channel
	var id, chType, createdAt string
	err := scanner.Scan(&id, &ch.Name, &chType, &ch.ProjectPath, &ch.CreatedBy, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan channel: %w", err)
	}
	ch.ID = types.ChannelID(id)
	ch.Type = types.ChannelType(chType)
	ch.CreatedAt = parseTime(createdAt)
	return &ch, nil
}

func (s *Store) ChannelByID(ctx context.Context, id types.ChannelID) (*types.Channel, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+channelColumns+` FROM channels WHERE id = ?`, string(id))
	return scanChannel(row)
}

func (s *Store) ChannelByName(ctx context.Context, name string) (*types.Channel, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+channelColumns+` FROM channels WHERE name = ?`, name)
	return scanChannel(row)
}

func (s *Store) ListChannels(ctx context.Context) ([]*types.Channel, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+channelColumns+` FROM channels ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()

	var channels []*types.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

// AddMember adds the user to the channel. It reports whether a new
// membership row was created; joining twice is not an error.
func (s *Store) AddMember(ctx context.Context, channelID types.ChannelID, userID types.UserID) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO channel_members (channel_id, user_id, joined_at) VALUES (?, ?, ?)
		 ON CONFLICT(channel_id, user_id) DO NOTHING`,
		string(channelID), string(userID), formatTime(time.Now()),
	)
	if err != nil {
		return false, fmt.Errorf("add member: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
