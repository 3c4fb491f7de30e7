// internal/liveness/classifier.go
package liveness

import (
	"context"
	"errors"
	"log/slog"

	"github.com/user/talkto/internal/types"
)

// Classifier decides whether an agent is a ghost: a registration with no
// currently reachable backing process.
type Classifier struct {
	agents   types.AgentStore
	sessions types.SessionStore
	probe    Probe
}

func NewClassifier(agents types.AgentStore, sessions types.SessionStore, probe Probe) *Classifier {
	return &Classifier{agents: agents, sessions: sessions, probe: probe}
}

// IsGhost resolves the agent by name and checks its liveness with fresh
// probes. Unknown agents are reported as not ghosts: existence checks
// are the caller's job, and this function fails toward not blocking.
func (c *Classifier) IsGhost(ctx context.Context, agentName string) bool {
	agent, err := c.agents.AgentByName(ctx, agentName)
	if err != nil {
		if !errors.Is(err, types.ErrNotFound) {
			slog.Warn("ghost check: agent lookup failed", "agent", agentName, "error", err)
		}
		return false
	}

	if agent.Type == types.AgentSystem {
		return false
	}

	if agent.RemoteSessionID != "" && SessionAlive(ctx, c.probe, agent.RemoteSessionID) {
		return false
	}

	return !c.localProcessAlive(ctx, agent)
}

// ComputeGhost is the batch form of the ghost verdict: the caller takes
// one process-table snapshot and shares it across every agent in a
// reconciliation pass. snapshotOK is false when the table could not be
// listed, in which case remote sessions are assumed alive (fail open).
func (c *Classifier) ComputeGhost(ctx context.Context, agent *types.Agent, snapshot string, snapshotOK bool) bool {
	if agent.Type == types.AgentSystem {
		return false
	}

	if agent.RemoteSessionID != "" {
		if !snapshotOK {
			return false
		}
		if SessionInSnapshot(agent.RemoteSessionID, snapshot) {
			return false
		}
	}

	return !c.localProcessAlive(ctx, agent)
}

// localProcessAlive reports whether the agent has an active local
// session whose PID is still running.
func (c *Classifier) localProcessAlive(ctx context.Context, agent *types.Agent) bool {
	session, err := c.sessions.ActiveSession(ctx, agent.ID)
	if err != nil {
		if !errors.Is(err, types.ErrNotFound) {
			slog.Warn("ghost check: session lookup failed", "agent", agent.Name, "error", err)
		}
		return false
	}
	return c.probe.PIDAlive(session.PID)
}
