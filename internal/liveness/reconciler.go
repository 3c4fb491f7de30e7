// internal/liveness/reconciler.go
package liveness

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/user/talkto/internal/broadcast"
	"github.com/user/talkto/internal/types"
)

// DefaultSweepSchedule is how often agent liveness is reconciled when
// the config does not override it.
const DefaultSweepSchedule = "@every 30s"

// cronParser accepts standard 5-field cron expressions, 6-field
// expressions with a seconds field, and @every descriptors.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Reconciler periodically recomputes every agent's liveness from a
// single process-table snapshot, updates the cached status, deactivates
// sessions whose PID died, and emits agent_status events on transitions.
type Reconciler struct {
	classifier *Classifier
	agents     types.AgentStore
	sessions   types.SessionStore
	probe      Probe
	sink       broadcast.Sink
	schedule   string
	cron       *cron.Cron
}

func NewReconciler(classifier *Classifier, agents types.AgentStore, sessions types.SessionStore, probe Probe, sink broadcast.Sink, schedule string) *Reconciler {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	return &Reconciler{
		classifier: classifier,
		agents:     agents,
		sessions:   sessions,
		probe:      probe,
		sink:       sink,
		schedule:   schedule,
	}
}

// Start registers the sweep with a cron ticker and starts it.
func (r *Reconciler) Start() error {
	r.cron = cron.New(cron.WithParser(cronParser))
	if _, err := r.cron.AddFunc(r.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		r.Sweep(ctx)
	}); err != nil {
		return err
	}
	r.cron.Start()
	slog.Info("liveness reconciler started", "schedule", r.schedule)
	return nil
}

// Stop stops the cron ticker. In-flight sweeps run to completion.
func (r *Reconciler) Stop() {
	if r.cron != nil {
		r.cron.Stop()
	}
}

// Sweep runs one reconciliation pass. One agent failing never aborts the
// pass for the rest.
func (r *Reconciler) Sweep(ctx context.Context) {
	snapshot, err := r.probe.Snapshot(ctx)
	snapshotOK := err == nil
	if err != nil {
		slog.Warn("sweep: process table unavailable, remote sessions assumed alive", "error", err)
	}

	agents, err := r.agents.ListAgents(ctx)
	if err != nil {
		slog.Error("sweep: list agents failed", "error", err)
		return
	}

	for _, agent := range agents {
		r.sweepAgent(ctx, agent, snapshot, snapshotOK)
	}
}

func (r *Reconciler) sweepAgent(ctx context.Context, agent *types.Agent, snapshot string, snapshotOK bool) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("sweep: agent check panicked", "agent", agent.Name, "panic", p)
		}
	}()

	ghost := r.classifier.ComputeGhost(ctx, agent, snapshot, snapshotOK)

	want := types.StatusOnline
	if ghost {
		want = types.StatusOffline
	}

	if ghost {
		r.retireDeadSession(ctx, agent)
	}

	if agent.Status == want {
		return
	}

	if err := r.agents.UpdateAgentStatus(ctx, agent.ID, want); err != nil {
		slog.Warn("sweep: status update failed", "agent", agent.Name, "error", err)
		return
	}
	slog.Info("sweep: agent status changed", "agent", agent.Name, "from", agent.Status, "to", want)
	r.sink.Emit(broadcast.AgentStatusEvent(agent.Name, string(want), string(agent.Type), agent.ProjectName))
}

// retireDeadSession marks the agent's active session inactive when its
// PID is gone, so later checks stop probing a dead process.
func (r *Reconciler) retireDeadSession(ctx context.Context, agent *types.Agent) {
	session, err := r.sessions.ActiveSession(ctx, agent.ID)
	if err != nil {
		return
	}
	if r.probe.PIDAlive(session.PID) {
		return
	}
	if err := r.sessions.DeactivateSession(ctx, session.ID); err != nil {
		slog.Warn("sweep: deactivate session failed", "agent", agent.Name, "session", session.ID, "error", err)
	}
}
