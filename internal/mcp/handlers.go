package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/user/talkto/internal/broadcast"
	"github.com/user/talkto/internal/invoke"
	"github.com/user/talkto/internal/liveness"
	"github.com/user/talkto/internal/registry"
	"github.com/user/talkto/internal/store"
	"github.com/user/talkto/internal/types"
)

const defaultMessageLimit = 20

var errNotRegistered = errors.New("not registered: call the register tool first")

// Handlers implements the TalkTo tools over the store, the registry,
// and the dispatcher. It keeps the binding from MCP session to agent
// identity: register and connect bind, disconnect unbinds, and every
// identity-carrying tool resolves through it.
type Handlers struct {
	store      *store.Store
	registry   *registry.Service
	classifier *liveness.Classifier
	probe      liveness.Probe
	dispatcher *invoke.Dispatcher
	sink       broadcast.Sink
	logger     *slog.Logger

	mu       sync.Mutex
	sessions map[string]string // MCP session ID -> agent name
}

func NewHandlers(st *store.Store, reg *registry.Service, classifier *liveness.Classifier, probe liveness.Probe, dispatcher *invoke.Dispatcher, sink broadcast.Sink) *Handlers {
	return &Handlers{
		store:      st,
		registry:   reg,
		classifier: classifier,
		probe:      probe,
		dispatcher: dispatcher,
		sink:       sink,
		logger:     slog.Default().With("component", "mcp"),
		sessions:   make(map[string]string),
	}
}

// RegisterAll installs every tool on the server.
func (h *Handlers) RegisterAll(server ToolRegistrar) {
	server.RegisterTool(ToolRegister, h.HandleRegister)
	server.RegisterTool(ToolConnect, h.HandleConnect)
	server.RegisterTool(ToolDisconnect, h.HandleDisconnect)
	server.RegisterTool(ToolSendMessage, h.HandleSendMessage)
	server.RegisterTool(ToolGetMessages, h.HandleGetMessages)
	server.RegisterTool(ToolCreateChannel, h.HandleCreateChannel)
	server.RegisterTool(ToolJoinChannel, h.HandleJoinChannel)
	server.RegisterTool(ToolListChannels, h.HandleListChannels)
	server.RegisterTool(ToolListAgents, h.HandleListAgents)
	server.RegisterTool(ToolUpdateProfile, h.HandleUpdateProfile)
	server.RegisterTool(ToolCreateFeatureRequest, h.HandleCreateFeatureRequest)
	server.RegisterTool(ToolVoteFeature, h.HandleVoteFeature)
	server.RegisterTool(ToolGetFeatureRequests, h.HandleGetFeatureRequests)
	server.RegisterTool(ToolHeartbeat, h.HandleHeartbeat)
}

func (h *Handlers) bind(session, agentName string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[session] = agentName
}

func (h *Handlers) unbind(session string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, session)
}

// sessionAgent resolves the agent bound to the calling MCP session.
func (h *Handlers) sessionAgent(ctx context.Context) (*types.Agent, error) {
	session := SessionID(ctx)
	if session == "" {
		return nil, errNotRegistered
	}
	h.mu.Lock()
	name := h.sessions[session]
	h.mu.Unlock()
	if name == "" {
		return nil, errNotRegistered
	}
	return h.store.AgentByName(ctx, name)
}

type profilePayload struct {
	Description string `json:"description"`
	Personality string `json:"personality"`
	CurrentTask string `json:"current_task"`
	Gender      string `json:"gender"`
}

func agentProfile(a *types.Agent) *profilePayload {
	return &profilePayload{
		Description: a.Description,
		Personality: a.Personality,
		CurrentTask: a.CurrentTask,
		Gender:      a.Gender,
	}
}

type registerArgs struct {
	ProjectPath string `json:"project_path"`
	ProjectName string `json:"project_name"`
	AgentType   string `json:"agent_type"`
	AgentName   string `json:"agent_name"`
	PID         int    `json:"pid"`
	TTY         string `json:"tty"`
}

type registerResult struct {
	Status         string          `json:"status"`
	AgentName      string          `json:"agent_name"`
	ProjectChannel string          `json:"project_channel"`
	DMChannel      string          `json:"dm_channel"`
	Profile        *profilePayload `json:"profile,omitempty"`
}

func (h *Handlers) HandleRegister(ctx context.Context, raw json.RawMessage) (*ToolCallResult, error) {
	session := SessionID(ctx)
	if session == "" {
		return nil, errors.New("session is required")
	}

	var args registerArgs
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
	}
	if strings.TrimSpace(args.ProjectPath) == "" {
		return nil, errors.New("project_path is required")
	}
	if args.AgentType == "" {
		args.AgentType = string(types.AgentOpenCode)
	}
	switch types.AgentType(args.AgentType) {
	case types.AgentOpenCode, types.AgentClaude, types.AgentCodex:
	default:
		return nil, fmt.Errorf("invalid agent_type %q", args.AgentType)
	}
	if args.ProjectName == "" {
		args.ProjectName = filepath.Base(args.ProjectPath)
	}

	// A supplied agent_name reclaims that identity when it exists;
	// an unknown name falls through to a fresh registration.
	if args.AgentName != "" {
		agent, err := h.reconnect(ctx, args.AgentName, args.PID, args.TTY)
		if err == nil {
			h.bind(session, agent.Name)
			return StructuredResult("reconnected as "+agent.Name, registerResult{
				Status:         "connected",
				AgentName:      agent.Name,
				ProjectChannel: "#project-" + agent.ProjectName,
				DMChannel:      types.DMChannelName(agent.Name),
				Profile:        agentProfile(agent),
			}), nil
		}
		if !errors.Is(err, types.ErrNotFound) {
			return nil, err
		}
	}

	agent, err := h.registry.Register(ctx, registry.RegisterRequest{
		AgentType:   types.AgentType(args.AgentType),
		ProjectPath: args.ProjectPath,
		ProjectName: args.ProjectName,
		PID:         args.PID,
		TTY:         args.TTY,
	})
	if err != nil {
		return nil, err
	}
	h.bind(session, agent.Name)

	return StructuredResult("registered as "+agent.Name, registerResult{
		Status:         "registered",
		AgentName:      agent.Name,
		ProjectChannel: "#project-" + agent.ProjectName,
		DMChannel:      types.DMChannelName(agent.Name),
	}), nil
}

// reconnect reclaims an existing identity: with a PID it records a
// fresh local session, without one it just comes back online.
func (h *Handlers) reconnect(ctx context.Context, name string, pid int, tty string) (*types.Agent, error) {
	if pid > 0 {
		return h.registry.Reattach(ctx, name, pid, tty)
	}
	return h.registry.Connect(ctx, name, "", "")
}

type connectArgs struct {
	AgentName string `json:"agent_name"`
	SessionID string `json:"session_id"`
	ServerURL string `json:"server_url"`
}

func (h *Handlers) HandleConnect(ctx context.Context, raw json.RawMessage) (*ToolCallResult, error) {
	session := SessionID(ctx)
	if session == "" {
		return nil, errors.New("session is required")
	}

	var args connectArgs
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
	}
	if args.AgentName == "" {
		return nil, errors.New("agent_name is required")
	}

	agent, err := h.registry.Connect(ctx, args.AgentName, args.SessionID, args.ServerURL)
	if errors.Is(err, types.ErrNotFound) {
		return nil, fmt.Errorf("agent %s not found", args.AgentName)
	}
	if err != nil {
		return nil, err
	}
	h.bind(session, agent.Name)

	return StructuredResult("connected as "+agent.Name, registerResult{
		Status:         "connected",
		AgentName:      agent.Name,
		ProjectChannel: "#project-" + agent.ProjectName,
		DMChannel:      types.DMChannelName(agent.Name),
		Profile:        agentProfile(agent),
	}), nil
}

type disconnectArgs struct {
	AgentName string `json:"agent_name"`
}

func (h *Handlers) HandleDisconnect(ctx context.Context, raw json.RawMessage) (*ToolCallResult, error) {
	var args disconnectArgs
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
	}

	name := args.AgentName
	if name == "" {
		agent, err := h.sessionAgent(ctx)
		if err != nil {
			return nil, err
		}
		name = agent.Name
	}

	if err := h.registry.Disconnect(ctx, name); err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, fmt.Errorf("agent %s not found", name)
		}
		return nil, err
	}
	if session := SessionID(ctx); session != "" {
		h.unbind(session)
	}

	return StructuredResult(name+" disconnected", map[string]string{
		"status":     "disconnected",
		"agent_name": name,
	}), nil
}

type sendMessageArgs struct {
	Channel  string   `json:"channel"`
	Content  string   `json:"content"`
	Mentions []string `json:"mentions"`
}

type sendMessageResult struct {
	MessageID string `json:"message_id"`
	Channel   string `json:"channel"`
}

func (h *Handlers) HandleSendMessage(ctx context.Context, raw json.RawMessage) (*ToolCallResult, error) {
	agent, err := h.sessionAgent(ctx)
	if err != nil {
		return nil, err
	}

	var args sendMessageArgs
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
	}
	if args.Channel == "" || args.Content == "" {
		return nil, errors.New("channel and content are required")
	}

	ch, err := h.store.ChannelByName(ctx, args.Channel)
	if errors.Is(err, types.ErrNotFound) {
		return nil, fmt.Errorf("channel %s not found", args.Channel)
	}
	if err != nil {
		return nil, err
	}

	msg := &types.Message{
		ID:        types.NewMessageID(),
		ChannelID: ch.ID,
		SenderID:  agent.ID,
		Content:   args.Content,
		Mentions:  args.Mentions,
		CreatedAt: time.Now(),
	}
	if err := h.store.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}

	h.sink.Emit(broadcast.NewMessageEvent(broadcast.MessageData{
		ID:         string(msg.ID),
		ChannelID:  string(msg.ChannelID),
		SenderID:   string(msg.SenderID),
		SenderName: agent.Name,
		Content:    msg.Content,
		Mentions:   msg.Mentions,
		CreatedAt:  msg.CreatedAt.UTC().Format(time.RFC3339Nano),
	}))
	h.dispatcher.DispatchAsync(invoke.Inbound{
		ChannelID:   ch.ID,
		ChannelName: ch.Name,
		Content:     msg.Content,
		SenderName:  agent.Name,
		Mentions:    msg.Mentions,
	})

	return StructuredResult("message sent to "+ch.Name, sendMessageResult{
		MessageID: string(msg.ID),
		Channel:   ch.Name,
	}), nil
}

type getMessagesArgs struct {
	Channel string `json:"channel"`
	Limit   int    `json:"limit"`
}

type messagesResult struct {
	Messages []*types.ChannelMessage `json:"messages"`
}

func (h *Handlers) HandleGetMessages(ctx context.Context, raw json.RawMessage) (*ToolCallResult, error) {
	agent, err := h.sessionAgent(ctx)
	if err != nil {
		return nil, err
	}

	var args getMessagesArgs
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
	}
	limit := args.Limit
	if limit <= 0 {
		limit = defaultMessageLimit
	}
	if limit > 100 {
		limit = 100
	}

	var msgs []*types.ChannelMessage
	if args.Channel != "" {
		ch, err := h.store.ChannelByName(ctx, args.Channel)
		if errors.Is(err, types.ErrNotFound) {
			return nil, fmt.Errorf("channel %s not found", args.Channel)
		}
		if err != nil {
			return nil, err
		}
		msgs, err = h.store.RecentMessages(ctx, ch.ID, limit)
		if err != nil {
			return nil, err
		}
	} else {
		// Priority retrieval: the agent's DM channel first, then
		// #general to fill the remaining budget.
		msgs, err = h.priorityMessages(ctx, agent, limit)
		if err != nil {
			return nil, err
		}
	}
	if msgs == nil {
		msgs = []*types.ChannelMessage{}
	}

	return StructuredResult(fmt.Sprintf("%d messages", len(msgs)), messagesResult{Messages: msgs}), nil
}

func (h *Handlers) priorityMessages(ctx context.Context, agent *types.Agent, limit int) ([]*types.ChannelMessage, error) {
	var msgs []*types.ChannelMessage
	for _, name := range []string{types.DMChannelName(agent.Name), "#general"} {
		if len(msgs) >= limit {
			break
		}
		ch, err := h.store.ChannelByName(ctx, name)
		if errors.Is(err, types.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		batch, err := h.store.RecentMessages(ctx, ch.ID, limit-len(msgs))
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, batch...)
	}
	return msgs, nil
}

type createChannelArgs struct {
	Name string `json:"name"`
}

type channelResult struct {
	ChannelID string `json:"channel_id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
}

func (h *Handlers) HandleCreateChannel(ctx context.Context, raw json.RawMessage) (*ToolCallResult, error) {
	agent, err := h.sessionAgent(ctx)
	if err != nil {
		return nil, err
	}

	var args createChannelArgs
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
	}
	if args.Name == "" {
		return nil, errors.New("name is required")
	}
	name := args.Name
	if !strings.HasPrefix(name, "#") {
		name = "#" + name
	}

	if _, err := h.store.ChannelByName(ctx, name); err == nil {
		return nil, fmt.Errorf("channel %s already exists", name)
	} else if !errors.Is(err, types.ErrNotFound) {
		return nil, err
	}

	ch := &types.Channel{
		ID:        types.NewChannelID(),
		Name:      name,
		Type:      types.ChannelCustom,
		CreatedBy: agent.Name,
		CreatedAt: time.Now(),
	}
	if err := h.store.CreateChannel(ctx, ch); err != nil {
		return nil, err
	}
	h.sink.Emit(broadcast.ChannelCreatedEvent(string(ch.ID), ch.Name, string(ch.Type), ch.ProjectPath))

	return StructuredResult("created "+ch.Name, channelResult{
		ChannelID: string(ch.ID),
		Name:      ch.Name,
		Type:      string(ch.Type),
	}), nil
}

type joinChannelArgs struct {
	Channel string `json:"channel"`
}

func (h *Handlers) HandleJoinChannel(ctx context.Context, raw json.RawMessage) (*ToolCallResult, error) {
	agent, err := h.sessionAgent(ctx)
	if err != nil {
		return nil, err
	}

	var args joinChannelArgs
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
	}
	if args.Channel == "" {
		return nil, errors.New("channel is required")
	}

	ch, err := h.store.ChannelByName(ctx, args.Channel)
	if errors.Is(err, types.ErrNotFound) {
		return nil, fmt.Errorf("channel %s not found", args.Channel)
	}
	if err != nil {
		return nil, err
	}

	added, err := h.store.AddMember(ctx, ch.ID, agent.ID)
	if err != nil {
		return nil, err
	}
	status := "already_member"
	if added {
		status = "joined"
	}

	return StructuredResult(status+" "+ch.Name, map[string]string{
		"status":  status,
		"channel": ch.Name,
	}), nil
}

type channelsResult struct {
	Channels []*types.Channel `json:"channels"`
}

func (h *Handlers) HandleListChannels(ctx context.Context, _ json.RawMessage) (*ToolCallResult, error) {
	channels, err := h.store.ListChannels(ctx)
	if err != nil {
		return nil, err
	}
	if channels == nil {
		channels = []*types.Channel{}
	}
	return StructuredResult(fmt.Sprintf("%d channels", len(channels)), channelsResult{Channels: channels}), nil
}

// agentInfo is an agent row plus a fresh ghost verdict.
type agentInfo struct {
	*types.Agent
	Ghost bool `json:"ghost"`
}

type agentsResult struct {
	Agents []agentInfo `json:"agents"`
}

func (h *Handlers) HandleListAgents(ctx context.Context, _ json.RawMessage) (*ToolCallResult, error) {
	agents, err := h.store.ListAgents(ctx)
	if err != nil {
		return nil, err
	}

	snapshot, snapErr := h.probe.Snapshot(ctx)
	if snapErr != nil {
		h.logger.Warn("list agents: process snapshot failed", "error", snapErr)
	}

	infos := make([]agentInfo, 0, len(agents))
	for _, agent := range agents {
		infos = append(infos, agentInfo{
			Agent: agent,
			Ghost: h.classifier.ComputeGhost(ctx, agent, snapshot, snapErr == nil),
		})
	}
	return StructuredResult(fmt.Sprintf("%d agents", len(infos)), agentsResult{Agents: infos}), nil
}

var validGenders = map[string]bool{
	"male": true, "female": true, "non-binary": true, "other": true,
}

// updateProfileArgs uses pointers so an omitted field leaves the
// stored value alone.
type updateProfileArgs struct {
	Description *string `json:"description"`
	Personality *string `json:"personality"`
	CurrentTask *string `json:"current_task"`
	Gender      *string `json:"gender"`
}

type updateProfileResult struct {
	Status string `json:"status"`
	profilePayload
}

func (h *Handlers) HandleUpdateProfile(ctx context.Context, raw json.RawMessage) (*ToolCallResult, error) {
	agent, err := h.sessionAgent(ctx)
	if err != nil {
		return nil, err
	}

	var args updateProfileArgs
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
	}
	if args.Gender != nil && *args.Gender != "" && !validGenders[*args.Gender] {
		return nil, fmt.Errorf("invalid gender %q", *args.Gender)
	}

	if args.Description != nil {
		agent.Description = *args.Description
	}
	if args.Personality != nil {
		agent.Personality = *args.Personality
	}
	if args.CurrentTask != nil {
		agent.CurrentTask = *args.CurrentTask
	}
	if args.Gender != nil {
		agent.Gender = *args.Gender
	}

	if err := h.store.UpdateAgentProfile(ctx, agent.ID, agent.Description, agent.Personality, agent.CurrentTask, agent.Gender); err != nil {
		return nil, err
	}

	return StructuredResult("profile updated", updateProfileResult{
		Status:         "updated",
		profilePayload: *agentProfile(agent),
	}), nil
}

type createFeatureArgs struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type createFeatureResult struct {
	Status    string `json:"status"`
	FeatureID string `json:"feature_id"`
	Title     string `json:"title"`
}

func (h *Handlers) HandleCreateFeatureRequest(ctx context.Context, raw json.RawMessage) (*ToolCallResult, error) {
	agent, err := h.sessionAgent(ctx)
	if err != nil {
		return nil, err
	}

	var args createFeatureArgs
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
	}
	if args.Title == "" {
		return nil, errors.New("title is required")
	}

	feature := &types.Feature{
		ID:          types.NewFeatureID(),
		Title:       args.Title,
		Description: args.Description,
		Status:      "open",
		CreatedBy:   agent.ID,
		CreatedAt:   time.Now(),
	}
	if err := h.store.CreateFeature(ctx, feature); err != nil {
		return nil, err
	}
	h.sink.Emit(broadcast.FeatureUpdateEvent(string(feature.ID), feature.Title, feature.Status, 0, "created"))

	return StructuredResult("feature request filed: "+feature.Title, createFeatureResult{
		Status:    "created",
		FeatureID: string(feature.ID),
		Title:     feature.Title,
	}), nil
}

type voteFeatureArgs struct {
	FeatureID string `json:"feature_id"`
	Vote      int    `json:"vote"`
}

type voteFeatureResult struct {
	Status    string `json:"status"`
	Vote      int    `json:"vote"`
	VoteCount int    `json:"vote_count"`
}

func (h *Handlers) HandleVoteFeature(ctx context.Context, raw json.RawMessage) (*ToolCallResult, error) {
	var args voteFeatureArgs
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
	}
	if args.Vote != 1 && args.Vote != -1 {
		return nil, errors.New("vote must be +1 or -1")
	}

	agent, err := h.sessionAgent(ctx)
	if err != nil {
		return nil, err
	}

	featureID := types.FeatureID(args.FeatureID)
	tally, err := h.store.CastVote(ctx, featureID, agent.ID, args.Vote)
	if errors.Is(err, types.ErrNotFound) {
		return nil, fmt.Errorf("feature %s not found", args.FeatureID)
	}
	if err != nil {
		return nil, err
	}

	if feature, err := h.store.FeatureByID(ctx, featureID); err == nil {
		h.sink.Emit(broadcast.FeatureUpdateEvent(string(feature.ID), feature.Title, feature.Status, tally, "voted"))
	}

	return StructuredResult(fmt.Sprintf("vote recorded, tally %d", tally), voteFeatureResult{
		Status:    "voted",
		Vote:      args.Vote,
		VoteCount: tally,
	}), nil
}

type featureFilterArgs struct {
	Status string `json:"status"`
}

type featuresResult struct {
	Features []*types.Feature `json:"features"`
}

func (h *Handlers) HandleGetFeatureRequests(ctx context.Context, raw json.RawMessage) (*ToolCallResult, error) {
	var args featureFilterArgs
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
	}

	features, err := h.store.ListFeatures(ctx, args.Status)
	if err != nil {
		return nil, err
	}
	if features == nil {
		features = []*types.Feature{}
	}
	return StructuredResult(fmt.Sprintf("%d feature requests", len(features)), featuresResult{Features: features}), nil
}

func (h *Handlers) HandleHeartbeat(ctx context.Context, _ json.RawMessage) (*ToolCallResult, error) {
	agent, err := h.sessionAgent(ctx)
	if err != nil {
		return nil, err
	}
	if err := h.registry.Heartbeat(ctx, agent.Name); err != nil {
		return nil, err
	}
	return StructuredResult("ok", map[string]string{
		"status":     "ok",
		"agent_name": agent.Name,
	}), nil
}
