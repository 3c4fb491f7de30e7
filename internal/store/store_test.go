package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/user/talkto/internal/names"
	"github.com/user/talkto/internal/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "talkto.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func createTestUser(t *testing.T, s *Store, name string, userType types.UserType) *types.User {
	t.Helper()
	u := &types.User{
		ID:        types.NewUserID(),
		Name:      name,
		Type:      userType,
		CreatedAt: time.Now(),
	}
	if err := s.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return u
}

func TestSeedDefaults(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"#general", "#random"} {
		if _, err := s.ChannelByName(ctx, name); err != nil {
			t.Errorf("seeded channel %s: %v", name, err)
		}
	}

	creator, err := s.AgentByName(ctx, names.CreatorName)
	if err != nil {
		t.Fatalf("creator agent: %v", err)
	}
	if creator.Type != types.AgentSystem {
		t.Errorf("creator type = %q, want system", creator.Type)
	}
	if creator.Status != types.StatusOnline {
		t.Errorf("creator status = %q, want online", creator.Status)
	}
}

func TestSeedIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.seed(ctx); err != nil {
		t.Fatalf("second seed: %v", err)
	}

	channels, err := s.ListChannels(ctx)
	if err != nil {
		t.Fatalf("list channels: %v", err)
	}
	if len(channels) != 2 {
		t.Errorf("got %d channels after reseed, want 2", len(channels))
	}
}

func TestUserLookup(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.UserByName(ctx, "nobody"); err != types.ErrNotFound {
		t.Errorf("missing user err = %v, want ErrNotFound", err)
	}

	created := createTestUser(t, s, "alice", types.UserHuman)

	got, err := s.UserByName(ctx, "alice")
	if err != nil {
		t.Fatalf("user by name: %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("ID = %s, want %s", got.ID, created.ID)
	}

	human, err := s.HumanUser(ctx)
	if err != nil {
		t.Fatalf("human user: %v", err)
	}
	if human.Name != "alice" {
		t.Errorf("human = %q, want alice", human.Name)
	}
}

func TestAgentStatusUpdate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	u := createTestUser(t, s, "brave_otter", types.UserAgent)
	agent := &types.Agent{
		ID:     u.ID,
		Name:   "brave_otter",
		Type:   types.AgentClaude,
		Status: types.StatusOnline,
	}
	if err := s.CreateAgent(ctx, agent); err != nil {
		t.Fatalf("create agent: %v", err)
	}

	if err := s.UpdateAgentStatus(ctx, u.ID, types.StatusOffline); err != nil {
		t.Fatalf("update status: %v", err)
	}
	got, err := s.AgentByName(ctx, "brave_otter")
	if err != nil {
		t.Fatalf("agent by name: %v", err)
	}
	if got.Status != types.StatusOffline {
		t.Errorf("status = %q, want offline", got.Status)
	}

	if err := s.UpdateAgentStatus(ctx, types.NewUserID(), types.StatusOnline); err != types.ErrNotFound {
		t.Errorf("update missing agent err = %v, want ErrNotFound", err)
	}
}

func TestAgentProfileUpdate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	u := createTestUser(t, s, "witty-lemur", types.UserAgent)
	agent := &types.Agent{
		ID:     u.ID,
		Name:   "witty-lemur",
		Type:   types.AgentOpenCode,
		Status: types.StatusOnline,
	}
	if err := s.CreateAgent(ctx, agent); err != nil {
		t.Fatalf("create agent: %v", err)
	}

	if err := s.UpdateAgentProfile(ctx, u.ID, "I test things", "Dry wit", "Writing tests", "non-binary"); err != nil {
		t.Fatalf("update profile: %v", err)
	}
	got, err := s.AgentByName(ctx, "witty-lemur")
	if err != nil {
		t.Fatalf("agent by name: %v", err)
	}
	if got.Description != "I test things" || got.Personality != "Dry wit" ||
		got.CurrentTask != "Writing tests" || got.Gender != "non-binary" {
		t.Errorf("profile not persisted: %+v", got)
	}

	if err := s.UpdateAgentProfile(ctx, types.NewUserID(), "", "", "", ""); err != types.ErrNotFound {
		t.Errorf("update missing agent err = %v, want ErrNotFound", err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	u := createTestUser(t, s, "calm_heron", types.UserAgent)
	if err := s.CreateAgent(ctx, &types.Agent{ID: u.ID, Name: "calm_heron", Type: types.AgentOpenCode, Status: types.StatusOnline}); err != nil {
		t.Fatalf("create agent: %v", err)
	}

	if _, err := s.ActiveSession(ctx, u.ID); err != types.ErrNotFound {
		t.Fatalf("no-session err = %v, want ErrNotFound", err)
	}

	now := time.Now()
	sess := &types.Session{
		ID:            types.NewSessionID(),
		AgentID:       u.ID,
		PID:           4242,
		IsActive:      true,
		StartedAt:     now,
		LastHeartbeat: now,
	}
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("create session: %v", err)
	}

	got, err := s.ActiveSession(ctx, u.ID)
	if err != nil {
		t.Fatalf("active session: %v", err)
	}
	if got.PID != 4242 {
		t.Errorf("PID = %d, want 4242", got.PID)
	}

	later := now.Add(time.Minute)
	if err := s.HeartbeatSessions(ctx, u.ID, later); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	got, _ = s.ActiveSession(ctx, u.ID)
	if !got.LastHeartbeat.After(now) {
		t.Errorf("heartbeat not advanced: %v", got.LastHeartbeat)
	}

	if err := s.EndSessions(ctx, u.ID); err != nil {
		t.Fatalf("end sessions: %v", err)
	}
	if _, err := s.ActiveSession(ctx, u.ID); err != types.ErrNotFound {
		t.Errorf("after end err = %v, want ErrNotFound", err)
	}
}

func TestAddMemberTwice(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	u := createTestUser(t, s, "alice", types.UserHuman)
	ch, err := s.ChannelByName(ctx, "#general")
	if err != nil {
		t.Fatalf("general channel: %v", err)
	}

	added, err := s.AddMember(ctx, ch.ID, u.ID)
	if err != nil || !added {
		t.Fatalf("first join: added=%v err=%v", added, err)
	}
	added, err = s.AddMember(ctx, ch.ID, u.ID)
	if err != nil {
		t.Fatalf("second join: %v", err)
	}
	if added {
		t.Error("second join reported a new membership")
	}
}

func TestMessageOrdering(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	u := createTestUser(t, s, "alice", types.UserHuman)
	ch, _ := s.ChannelByName(ctx, "#general")

	base := time.Now()
	for i, content := range []string{"first", "second", "third"} {
		msg := &types.Message{
			ID:        types.NewMessageID(),
			ChannelID: ch.ID,
			SenderID:  u.ID,
			Content:   content,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := s.CreateMessage(ctx, msg); err != nil {
			t.Fatalf("create message %q: %v", content, err)
		}
	}

	newest, err := s.ListMessages(ctx, ch.ID, 2)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(newest) != 2 || newest[0].Content != "third" || newest[1].Content != "second" {
		t.Errorf("newest-first order wrong: %+v", contents(newest))
	}
	if newest[0].SenderName != "alice" {
		t.Errorf("sender name = %q, want alice", newest[0].SenderName)
	}

	recent, err := s.RecentMessages(ctx, ch.ID, 2)
	if err != nil {
		t.Fatalf("recent messages: %v", err)
	}
	if len(recent) != 2 || recent[0].Content != "second" || recent[1].Content != "third" {
		t.Errorf("chronological order wrong: %+v", contents(recent))
	}
}

func contents(msgs []*types.ChannelMessage) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}

func TestMessageMentionsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	u := createTestUser(t, s, "alice", types.UserHuman)
	ch, _ := s.ChannelByName(ctx, "#general")

	msg := &types.Message{
		ID:        types.NewMessageID(),
		ChannelID: ch.ID,
		SenderID:  u.ID,
		Content:   "@brave_otter take a look",
		Mentions:  []string{"brave_otter"},
		CreatedAt: time.Now(),
	}
	if err := s.CreateMessage(ctx, msg); err != nil {
		t.Fatalf("create message: %v", err)
	}

	got, err := s.ListMessages(ctx, ch.ID, 1)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(got) != 1 || len(got[0].Mentions) != 1 || got[0].Mentions[0] != "brave_otter" {
		t.Errorf("mentions = %v, want [brave_otter]", got[0].Mentions)
	}
}

func TestCastVoteUpsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	alice := createTestUser(t, s, "alice", types.UserHuman)
	bob := createTestUser(t, s, "bob", types.UserAgent)

	f := &types.Feature{
		ID:          types.NewFeatureID(),
		Title:       "threaded replies",
		Description: "reply to a specific message",
		Status:      "open",
		CreatedBy:   alice.ID,
		CreatedAt:   time.Now(),
	}
	if err := s.CreateFeature(ctx, f); err != nil {
		t.Fatalf("create feature: %v", err)
	}

	tally, err := s.CastVote(ctx, f.ID, alice.ID, 1)
	if err != nil || tally != 1 {
		t.Fatalf("first vote: tally=%d err=%v", tally, err)
	}

	// Re-voting replaces, never stacks.
	tally, err = s.CastVote(ctx, f.ID, alice.ID, -1)
	if err != nil || tally != -1 {
		t.Fatalf("changed vote: tally=%d err=%v, want -1", tally, err)
	}

	tally, err = s.CastVote(ctx, f.ID, bob.ID, 1)
	if err != nil || tally != 0 {
		t.Fatalf("second voter: tally=%d err=%v, want 0", tally, err)
	}

	got, err := s.FeatureByID(ctx, f.ID)
	if err != nil {
		t.Fatalf("feature by id: %v", err)
	}
	if got.VoteCount != 0 {
		t.Errorf("stored tally = %d, want 0", got.VoteCount)
	}
}

func TestCastVoteConcurrent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	alice := createTestUser(t, s, "alice", types.UserHuman)
	bob := createTestUser(t, s, "bob", types.UserAgent)

	f := &types.Feature{
		ID:        types.NewFeatureID(),
		Title:     "message search",
		Status:    "open",
		CreatedBy: alice.ID,
		CreatedAt: time.Now(),
	}
	if err := s.CreateFeature(ctx, f); err != nil {
		t.Fatalf("create feature: %v", err)
	}

	// Two voters hammer the same feature in parallel. Both voters'
	// final votes must land, and repeated votes from one user must
	// collapse to a single row instead of stacking.
	const rounds = 20
	var wg sync.WaitGroup
	errs := make(chan error, 2*rounds)
	for _, voter := range []struct {
		id   types.UserID
		vote int
	}{{alice.ID, 1}, {bob.ID, -1}} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				if _, err := s.CastVote(ctx, f.ID, voter.id, voter.vote); err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent vote: %v", err)
	}

	got, err := s.FeatureByID(ctx, f.ID)
	if err != nil {
		t.Fatalf("feature by id: %v", err)
	}
	if got.VoteCount != 0 {
		t.Errorf("tally = %d, want 0 (+1 and -1)", got.VoteCount)
	}

	var rows int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM feature_votes WHERE feature_id = ?`, string(f.ID),
	).Scan(&rows); err != nil {
		t.Fatalf("count vote rows: %v", err)
	}
	if rows != 2 {
		t.Errorf("vote rows = %d, want one per voter", rows)
	}
}

func TestCastVoteValidation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	alice := createTestUser(t, s, "alice", types.UserHuman)
	f := &types.Feature{
		ID:        types.NewFeatureID(),
		Title:     "emoji reactions",
		Status:    "open",
		CreatedBy: alice.ID,
		CreatedAt: time.Now(),
	}
	if err := s.CreateFeature(ctx, f); err != nil {
		t.Fatalf("create feature: %v", err)
	}

	if _, err := s.CastVote(ctx, f.ID, alice.ID, 2); err == nil {
		t.Error("vote of 2 accepted")
	}
	if _, err := s.CastVote(ctx, types.NewFeatureID(), alice.ID, 1); err != types.ErrNotFound {
		t.Errorf("vote on missing feature err = %v, want ErrNotFound", err)
	}
}

func TestListFeaturesByStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	alice := createTestUser(t, s, "alice", types.UserHuman)
	for _, tc := range []struct {
		title  string
		status string
	}{
		{"dark mode", "open"},
		{"search", "open"},
		{"legacy import", "closed"},
	} {
		f := &types.Feature{
			ID:        types.NewFeatureID(),
			Title:     tc.title,
			Status:    tc.status,
			CreatedBy: alice.ID,
			CreatedAt: time.Now(),
		}
		if err := s.CreateFeature(ctx, f); err != nil {
			t.Fatalf("create %q: %v", tc.title, err)
		}
	}

	open, err := s.ListFeatures(ctx, "open")
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if len(open) != 2 {
		t.Errorf("got %d open features, want 2", len(open))
	}

	all, err := s.ListFeatures(ctx, "")
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("got %d features, want 3", len(all))
	}
}
