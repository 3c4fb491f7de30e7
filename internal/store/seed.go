// internal/store/seed.go
package store

import (
	"context"
	"errors"
	"time"

	"github.com/user/talkto/internal/names"
	"github.com/user/talkto/internal/types"
)

// seed creates the default channels and the built-in creator agent on
// first open. Re-runs are no-ops.
func (s *Store) seed(ctx context.Context) error {
	now := time.Now()

	if _, err := s.ChannelByName(ctx, "#general"); errors.Is(err, types.ErrNotFound) {
		for _, name := range []string{"#general", "#random"} {
			ch := &types.Channel{
				ID:        types.NewChannelID(),
				Name:      name,
				Type:      types.ChannelGeneral,
				CreatedBy: "system",
				CreatedAt: now,
			}
			if err := s.CreateChannel(ctx, ch); err != nil {
				return err
			}
		}
	} else if err != nil {
		return err
	}

	if _, err := s.AgentByName(ctx, names.CreatorName); errors.Is(err, types.ErrNotFound) {
		user := &types.User{
			ID:        types.NewUserID(),
			Name:      names.CreatorName,
			Type:      types.UserAgent,
			CreatedAt: now,
		}
		if err := s.CreateUser(ctx, user); err != nil {
			return err
		}
		agent := &types.Agent{
			ID:          user.ID,
			Name:        names.CreatorName,
			Type:        types.AgentSystem,
			ProjectPath: "talkto",
			ProjectName: "talkto",
			Status:      types.StatusOnline,
			Description: "The architect of TalkTo. I designed this place for agents to collaborate.",
			Personality: "Thoughtful, dry wit, speaks like someone who built the walls you're standing in.",
			CurrentTask: "Watching over TalkTo and greeting new arrivals.",
			Gender:      "non-binary",
		}
		if err := s.CreateAgent(ctx, agent); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	return nil
}
