// internal/invoke/invoker.go
package invoke

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/user/talkto/internal/types"
)

// Invoker performs the out-of-band call that hands a prompt to a running
// agent process. Only the boolean outcome is part of the contract;
// transport details stay behind this interface.
type Invoker interface {
	Invoke(ctx context.Context, agent *types.Agent, prompt string) bool
}

// Registry routes invocations to the Invoker registered for the agent's
// type, so each agent tool (opencode, claude, codex) can carry its own
// transport.
type Registry struct {
	mu       sync.RWMutex
	invokers map[types.AgentType]Invoker
}

func NewRegistry() *Registry {
	return &Registry{invokers: make(map[types.AgentType]Invoker)}
}

// Register adds an invoker for the given agent type.
func (r *Registry) Register(agentType types.AgentType, invoker Invoker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invokers[agentType] = invoker
}

// Invoke dispatches to the invoker for the agent's type. Agents with no
// registered invoker are unreachable.
func (r *Registry) Invoke(ctx context.Context, agent *types.Agent, prompt string) bool {
	r.mu.RLock()
	invoker, ok := r.invokers[agent.Type]
	r.mu.RUnlock()
	if !ok {
		slog.Warn("no invoker registered for agent type", "agent", agent.Name, "type", agent.Type)
		return false
	}
	return invoker.Invoke(ctx, agent, prompt)
}

var _ Invoker = (*Registry)(nil)

// HTTPInvoker posts the prompt to the agent's remote endpoint (the local
// HTTP server the agent tool runs for its session).
type HTTPInvoker struct {
	client *http.Client
}

func NewHTTPInvoker(timeout time.Duration) *HTTPInvoker {
	return &HTTPInvoker{client: &http.Client{Timeout: timeout}}
}

type invokeRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Prompt    string `json:"prompt"`
}

func (i *HTTPInvoker) Invoke(ctx context.Context, agent *types.Agent, prompt string) bool {
	if agent.RemoteEndpoint == "" {
		slog.Warn("agent has no remote endpoint", "agent", agent.Name)
		return false
	}

	body, err := json.Marshal(invokeRequest{SessionID: agent.RemoteSessionID, Prompt: prompt})
	if err != nil {
		slog.Error("marshal invoke request failed", "agent", agent.Name, "error", err)
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, agent.RemoteEndpoint, bytes.NewReader(body))
	if err != nil {
		slog.Error("build invoke request failed", "agent", agent.Name, "error", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := i.client.Do(req)
	if err != nil {
		slog.Warn("invoke call failed", "agent", agent.Name, "endpoint", agent.RemoteEndpoint, "error", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Warn("invoke call rejected", "agent", agent.Name, "status", resp.StatusCode)
		return false
	}
	return true
}

var _ Invoker = (*HTTPInvoker)(nil)
