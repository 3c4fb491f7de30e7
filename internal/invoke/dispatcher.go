// internal/invoke/dispatcher.go
package invoke

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/semaphore"

	"github.com/user/talkto/internal/broadcast"
	"github.com/user/talkto/internal/liveness"
	"github.com/user/talkto/internal/tasks"
	"github.com/user/talkto/internal/types"
)

const defaultContextMessages = 5

// Inbound describes one newly persisted message for dispatch.
type Inbound struct {
	ChannelID   types.ChannelID
	ChannelName string
	Content     string
	SenderName  string
	Mentions    []string
}

// Dispatcher decides which agents a message should invoke (DM target,
// then @mentions), vetoes ghosts, and brackets every invocation with
// typing events. Dispatch runs detached from the request that created
// the message; the sender never waits on it.
type Dispatcher struct {
	agents     types.AgentStore
	messages   types.MessageStore
	classifier *liveness.Classifier
	invoker    Invoker
	sink       broadcast.Sink
	registry   *tasks.Registry
	sem        *semaphore.Weighted

	contextMessages int
}

func NewDispatcher(agents types.AgentStore, messages types.MessageStore, classifier *liveness.Classifier, invoker Invoker, sink broadcast.Sink, registry *tasks.Registry, maxConcurrent int64, contextMessages int) *Dispatcher {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	if contextMessages <= 0 {
		contextMessages = defaultContextMessages
	}
	return &Dispatcher{
		agents:          agents,
		messages:        messages,
		classifier:      classifier,
		invoker:         invoker,
		sink:            sink,
		registry:        registry,
		sem:             semaphore.NewWeighted(maxConcurrent),
		contextMessages: contextMessages,
	}
}

// DispatchAsync spawns the dispatch as a tracked background unit and
// returns immediately.
func (d *Dispatcher) DispatchAsync(in Inbound) {
	d.registry.Spawn("dispatch "+in.ChannelName, func() {
		d.Dispatch(context.Background(), in)
	})
}

// Dispatch runs the full routing pass for one message. Exported for
// synchronous use in tests; production callers go through DispatchAsync.
// Each target is handled at most once per message, even when the DM
// target also appears in the mention list: a ghost gets exactly one
// unreachable notice and a live agent exactly one invocation.
func (d *Dispatcher) Dispatch(ctx context.Context, in Inbound) {
	handled := make(map[string]bool)

	if target, ok := types.DMTarget(in.ChannelName); ok {
		handled[target] = true
		if d.classifier.IsGhost(ctx, target) {
			d.notifyUnreachable(target, in.ChannelID)
			slog.Info("skipping ghost DM target", "agent", target, "channel", in.ChannelName)
		} else {
			prompt := FormatInvocationPrompt(in.SenderName, in.ChannelName, in.Content, "")
			d.invokeOne(ctx, target, in.ChannelID, prompt)
		}
	}

	if len(in.Mentions) == 0 {
		return
	}

	recentContext := d.recentContext(ctx, in.ChannelID)
	for _, name := range in.Mentions {
		if handled[name] {
			continue
		}
		handled[name] = true
		if d.classifier.IsGhost(ctx, name) {
			d.notifyUnreachable(name, in.ChannelID)
			slog.Info("skipping ghost mention target", "agent", name, "channel", in.ChannelName)
			continue
		}
		prompt := FormatInvocationPrompt(in.SenderName, in.ChannelName, in.Content, recentContext)
		d.invokeOne(ctx, name, in.ChannelID, prompt)
	}
}

// invokeOne performs one bracketed invocation attempt. The typing
// bracket always closes: the closing event carries an error annotation
// when the call failed.
func (d *Dispatcher) invokeOne(ctx context.Context, agentName string, channelID types.ChannelID, prompt string) (ok bool) {
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return false
	}
	defer d.sem.Release(1)

	d.sink.Emit(broadcast.AgentTypingEvent(agentName, string(channelID), true, ""))
	defer func() {
		if ok {
			d.sink.Emit(broadcast.AgentTypingEvent(agentName, string(channelID), false, ""))
		} else {
			d.notifyUnreachable(agentName, channelID)
			slog.Warn("agent not reachable", "agent", agentName, "channel", channelID)
		}
	}()

	agent, err := d.agents.AgentByName(ctx, agentName)
	if err != nil {
		slog.Warn("invoke: agent lookup failed", "agent", agentName, "error", err)
		return false
	}
	return d.invoker.Invoke(ctx, agent, prompt)
}

func (d *Dispatcher) notifyUnreachable(agentName string, channelID types.ChannelID) {
	d.sink.Emit(broadcast.AgentTypingEvent(agentName, string(channelID), false, agentName+" is not reachable"))
}

// recentContext flattens the channel's last messages, oldest first, into
// the block embedded in mention prompts. Errors degrade to no context.
func (d *Dispatcher) recentContext(ctx context.Context, channelID types.ChannelID) string {
	recent, err := d.messages.RecentMessages(ctx, channelID, d.contextMessages)
	if err != nil {
		slog.Warn("fetch recent context failed", "channel", channelID, "error", err)
		return ""
	}
	if len(recent) == 0 {
		return ""
	}
	lines := make([]string, 0, len(recent))
	for _, m := range recent {
		lines = append(lines, fmt.Sprintf("  %s: %s", m.SenderName, m.Content))
	}
	return strings.Join(lines, "\n")
}
