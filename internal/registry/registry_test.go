package registry

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/user/talkto/internal/broadcast"
	"github.com/user/talkto/internal/store"
	"github.com/user/talkto/internal/types"
)

type recordingSink struct {
	mu     sync.Mutex
	events []broadcast.Event
}

func (r *recordingSink) Emit(e broadcast.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingSink) byType(eventType string) []broadcast.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []broadcast.Event
	for _, e := range r.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func newTestService(t *testing.T) (*Service, *store.Store, *recordingSink) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "talkto.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	sink := &recordingSink{}
	return NewService(s, s, s, s, sink), s, sink
}

func TestRegisterCreatesAgent(t *testing.T) {
	svc, st, sink := newTestService(t)
	ctx := context.Background()

	agent, err := svc.Register(ctx, RegisterRequest{
		AgentType:   types.AgentClaude,
		ProjectPath: "/home/dev/widget",
		ProjectName: "widget",
		PID:         1234,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if !strings.Contains(agent.Name, "-") {
		t.Errorf("agent name %q not adjective-animal", agent.Name)
	}
	if agent.Status != types.StatusOnline {
		t.Errorf("status = %q, want online", agent.Status)
	}

	// Channels: project and DM created, status event emitted.
	if _, err := st.ChannelByName(ctx, "#project-widget"); err != nil {
		t.Errorf("project channel: %v", err)
	}
	if _, err := st.ChannelByName(ctx, types.DMChannelName(agent.Name)); err != nil {
		t.Errorf("dm channel: %v", err)
	}
	if len(sink.byType("agent_status")) != 1 {
		t.Errorf("got %d agent_status events, want 1", len(sink.byType("agent_status")))
	}
	if len(sink.byType("channel_created")) != 2 {
		t.Errorf("got %d channel_created events, want 2", len(sink.byType("channel_created")))
	}

	sess, err := st.ActiveSession(ctx, agent.ID)
	if err != nil {
		t.Fatalf("active session: %v", err)
	}
	if sess.PID != 1234 {
		t.Errorf("session PID = %d, want 1234", sess.PID)
	}
}

func TestRegisterSharesProjectChannel(t *testing.T) {
	svc, _, sink := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := svc.Register(ctx, RegisterRequest{
			AgentType:   types.AgentOpenCode,
			ProjectName: "widget",
			PID:         100 + i,
		})
		if err != nil {
			t.Fatalf("register %d: %v", i, err)
		}
	}

	// One project channel plus two DM channels.
	if got := len(sink.byType("channel_created")); got != 3 {
		t.Errorf("got %d channel_created events, want 3", got)
	}
}

func TestRegisterRequiresProject(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, err := svc.Register(context.Background(), RegisterRequest{AgentType: types.AgentClaude}); err == nil {
		t.Error("register without project accepted")
	}
}

func TestDisconnectEndsSessions(t *testing.T) {
	svc, st, sink := newTestService(t)
	ctx := context.Background()

	agent, err := svc.Register(ctx, RegisterRequest{
		AgentType:   types.AgentCodex,
		ProjectName: "widget",
		PID:         555,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := svc.Disconnect(ctx, agent.Name); err != nil {
		t.Fatalf("disconnect: %v", err)
	}

	if _, err := st.ActiveSession(ctx, agent.ID); err != types.ErrNotFound {
		t.Errorf("session still active after disconnect: %v", err)
	}
	got, _ := st.AgentByName(ctx, agent.Name)
	if got.Status != types.StatusOffline {
		t.Errorf("status = %q, want offline", got.Status)
	}

	statuses := sink.byType("agent_status")
	last := statuses[len(statuses)-1].Data.(broadcast.AgentStatusData)
	if last.Status != "offline" {
		t.Errorf("last status event = %q, want offline", last.Status)
	}
}

func TestConnectSetsRemoteSession(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()

	agent, err := svc.Register(ctx, RegisterRequest{
		AgentType:   types.AgentOpenCode,
		ProjectName: "widget",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := svc.Disconnect(ctx, agent.Name); err != nil {
		t.Fatalf("disconnect: %v", err)
	}

	got, err := svc.Connect(ctx, agent.Name, "sess-abc", "http://127.0.0.1:4096")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if got.RemoteSessionID != "sess-abc" || got.Status != types.StatusOnline {
		t.Errorf("connect result: %+v", got)
	}

	stored, _ := st.AgentByName(ctx, agent.Name)
	if stored.RemoteEndpoint != "http://127.0.0.1:4096" {
		t.Errorf("stored endpoint = %q", stored.RemoteEndpoint)
	}
}

func TestReattachReplacesSession(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()

	agent, err := svc.Register(ctx, RegisterRequest{
		AgentType:   types.AgentClaude,
		ProjectName: "widget",
		PID:         111,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := svc.Reattach(ctx, agent.Name, 222, "pts/3"); err != nil {
		t.Fatalf("reattach: %v", err)
	}

	sess, err := st.ActiveSession(ctx, agent.ID)
	if err != nil {
		t.Fatalf("active session: %v", err)
	}
	if sess.PID != 222 {
		t.Errorf("session PID = %d, want 222", sess.PID)
	}
}

func TestHeartbeatUnknownAgent(t *testing.T) {
	svc, _, _ := newTestService(t)
	if err := svc.Heartbeat(context.Background(), "no-such-agent"); err != types.ErrNotFound {
		t.Errorf("heartbeat unknown err = %v, want ErrNotFound", err)
	}
}
