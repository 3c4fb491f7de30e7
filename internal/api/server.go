// Package api is the local HTTP surface: REST endpoints for the UI and
// agent tooling, plus the WebSocket event stream.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/user/talkto/internal/broadcast"
	"github.com/user/talkto/internal/invoke"
	"github.com/user/talkto/internal/liveness"
	"github.com/user/talkto/internal/registry"
	"github.com/user/talkto/internal/store"
	"github.com/user/talkto/internal/types"
)

// Server wires the stores, registry, liveness classifier, and message
// dispatcher behind a single http.Handler.
type Server struct {
	store      *store.Store
	registry   *registry.Service
	classifier *liveness.Classifier
	probe      liveness.Probe
	dispatcher *invoke.Dispatcher
	hub        *broadcast.Hub
	mux        *http.ServeMux
}

func NewServer(st *store.Store, reg *registry.Service, classifier *liveness.Classifier, probe liveness.Probe, dispatcher *invoke.Dispatcher, hub *broadcast.Hub) *Server {
	s := &Server{
		store:      st,
		registry:   reg,
		classifier: classifier,
		probe:      probe,
		dispatcher: dispatcher,
		hub:        hub,
		mux:        http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	s.mux.HandleFunc("POST /api/users/onboard", s.handleOnboard)
	s.mux.HandleFunc("GET /api/users/me", s.handleMe)

	s.mux.HandleFunc("GET /api/channels", s.handleListChannels)
	s.mux.HandleFunc("POST /api/channels", s.handleCreateChannel)
	s.mux.HandleFunc("GET /api/channels/{id}", s.handleGetChannel)
	s.mux.HandleFunc("GET /api/channels/{id}/messages", s.handleListMessages)
	s.mux.HandleFunc("POST /api/channels/{id}/messages", s.handleSendMessage)

	s.mux.HandleFunc("GET /api/agents", s.handleListAgents)
	s.mux.HandleFunc("POST /api/agents/register", s.handleRegisterAgent)
	s.mux.HandleFunc("POST /api/agents/{name}/connect", s.handleConnectAgent)
	s.mux.HandleFunc("POST /api/agents/{name}/reattach", s.handleReattachAgent)
	s.mux.HandleFunc("POST /api/agents/{name}/heartbeat", s.handleHeartbeat)
	s.mux.HandleFunc("POST /api/agents/{name}/disconnect", s.handleDisconnectAgent)

	s.mux.HandleFunc("GET /api/features", s.handleListFeatures)
	s.mux.HandleFunc("POST /api/features", s.handleCreateFeature)
	s.mux.HandleFunc("POST /api/features/{id}/vote", s.handleVoteFeature)

	s.mux.HandleFunc("GET /ws", s.hub.HandleWS)
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Mount attaches an extra handler to the server's mux. The daemon uses
// it to serve the MCP tool endpoint next to the REST API.
func (s *Server) Mount(pattern string, handler http.Handler) {
	s.mux.Handle(pattern, handler)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "ws_clients": s.hub.ClientCount()})
}

type onboardRequest struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	About       string `json:"about"`
}

func (s *Server) handleOnboard(w http.ResponseWriter, r *http.Request) {
	var req onboardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	// Re-onboarding updates the existing human in place.
	if existing, err := s.store.HumanUser(r.Context()); err == nil {
		existing.Name = req.Name
		existing.DisplayName = req.DisplayName
		existing.About = req.About
		if err := s.store.UpdateUser(r.Context(), existing); err != nil {
			writeError(w, http.StatusInternalServerError, "update user")
			return
		}
		writeJSON(w, http.StatusOK, existing)
		return
	}

	user := &types.User{
		ID:          types.NewUserID(),
		Name:        req.Name,
		Type:        types.UserHuman,
		DisplayName: req.DisplayName,
		About:       req.About,
		CreatedAt:   time.Now(),
	}
	if err := s.store.CreateUser(r.Context(), user); err != nil {
		writeError(w, http.StatusInternalServerError, "create user")
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.store.HumanUser(r.Context())
	if errors.Is(err, types.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no human user onboarded yet")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := s.store.ListChannels(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list channels")
		return
	}
	if channels == nil {
		channels = []*types.Channel{}
	}
	writeJSON(w, http.StatusOK, channels)
}

type createChannelRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateChannel(w http.ResponseWriter, r *http.Request) {
	var req createChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	name := req.Name
	if !strings.HasPrefix(name, "#") {
		name = "#" + name
	}

	if _, err := s.store.ChannelByName(r.Context(), name); err == nil {
		writeError(w, http.StatusConflict, "channel "+name+" already exists")
		return
	}

	ch := &types.Channel{
		ID:        types.NewChannelID(),
		Name:      name,
		Type:      types.ChannelCustom,
		CreatedBy: "human",
		CreatedAt: time.Now(),
	}
	if err := s.store.CreateChannel(r.Context(), ch); err != nil {
		writeError(w, http.StatusInternalServerError, "create channel")
		return
	}
	s.hub.Emit(broadcast.ChannelCreatedEvent(string(ch.ID), ch.Name, string(ch.Type), ch.ProjectPath))
	writeJSON(w, http.StatusCreated, ch)
}

func (s *Server) handleGetChannel(w http.ResponseWriter, r *http.Request) {
	ch, err := s.store.ChannelByID(r.Context(), types.ChannelID(r.PathValue("id")))
	if errors.Is(err, types.ErrNotFound) {
		writeError(w, http.StatusNotFound, "channel not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup channel")
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	channelID := types.ChannelID(r.PathValue("id"))
	if _, err := s.store.ChannelByID(r.Context(), channelID); err != nil {
		writeError(w, http.StatusNotFound, "channel not found")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		if n > 100 {
			n = 100
		}
		limit = n
	}

	msgs, err := s.store.ListMessages(r.Context(), channelID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list messages")
		return
	}
	if msgs == nil {
		msgs = []*types.ChannelMessage{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

type sendMessageRequest struct {
	Content    string   `json:"content"`
	Mentions   []string `json:"mentions"`
	ParentID   string   `json:"parent_id"`
	SenderName string   `json:"sender_name"`
}

// handleSendMessage persists the message, broadcasts it, and kicks off
// invocation routing in the background. The response never waits on
// agent invocations.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	channelID := types.ChannelID(r.PathValue("id"))
	ch, err := s.store.ChannelByID(r.Context(), channelID)
	if errors.Is(err, types.ErrNotFound) {
		writeError(w, http.StatusNotFound, "channel not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup channel")
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	sender, err := s.resolveSender(r, req.SenderName)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msg := &types.Message{
		ID:        types.NewMessageID(),
		ChannelID: channelID,
		SenderID:  sender.ID,
		Content:   req.Content,
		Mentions:  req.Mentions,
		CreatedAt: time.Now(),
	}
	if req.ParentID != "" {
		pid := types.MessageID(req.ParentID)
		msg.ParentID = &pid
	}
	if err := s.store.CreateMessage(r.Context(), msg); err != nil {
		writeError(w, http.StatusInternalServerError, "create message")
		return
	}

	var parentID *string
	if msg.ParentID != nil {
		p := string(*msg.ParentID)
		parentID = &p
	}
	s.hub.Emit(broadcast.NewMessageEvent(broadcast.MessageData{
		ID:         string(msg.ID),
		ChannelID:  string(msg.ChannelID),
		SenderID:   string(msg.SenderID),
		SenderName: sender.Name,
		Content:    msg.Content,
		Mentions:   msg.Mentions,
		ParentID:   parentID,
		CreatedAt:  msg.CreatedAt.UTC().Format(time.RFC3339Nano),
	}))

	promptSender := sender.Name
	if sender.DisplayName != "" {
		promptSender = sender.DisplayName
	}
	s.dispatcher.DispatchAsync(invoke.Inbound{
		ChannelID:   channelID,
		ChannelName: ch.Name,
		Content:     msg.Content,
		SenderName:  promptSender,
		Mentions:    msg.Mentions,
	})

	writeJSON(w, http.StatusCreated, types.ChannelMessage{Message: *msg, SenderName: sender.Name})
}

// resolveSender maps an explicit sender_name (agents posting through
// their tooling) to its user row, defaulting to the onboarded human.
func (s *Server) resolveSender(r *http.Request, senderName string) (*types.User, error) {
	if senderName != "" {
		user, err := s.store.UserByName(r.Context(), senderName)
		if errors.Is(err, types.ErrNotFound) {
			return nil, errors.New("unknown sender " + senderName)
		}
		return user, err
	}
	user, err := s.store.HumanUser(r.Context())
	if errors.Is(err, types.ErrNotFound) {
		return nil, errors.New("no user onboarded")
	}
	return user, err
}

// agentView is an agent row plus a fresh ghost verdict.
type agentView struct {
	*types.Agent
	Ghost bool `json:"ghost"`
}

// handleListAgents returns every agent with a liveness verdict computed
// against one shared process-table snapshot.
func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.store.ListAgents(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list agents")
		return
	}

	snapshot, snapErr := s.probe.Snapshot(r.Context())
	if snapErr != nil {
		slog.Warn("agent list: process snapshot failed", "error", snapErr)
	}

	views := make([]agentView, 0, len(agents))
	for _, agent := range agents {
		views = append(views, agentView{
			Agent: agent,
			Ghost: s.classifier.ComputeGhost(r.Context(), agent, snapshot, snapErr == nil),
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	var req registry.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	agent, err := s.registry.Register(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, agent)
}

type connectRequest struct {
	RemoteSessionID string `json:"remote_session_id"`
	RemoteEndpoint  string `json:"remote_endpoint"`
}

func (s *Server) handleConnectAgent(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RemoteSessionID == "" {
		writeError(w, http.StatusBadRequest, "remote_session_id is required")
		return
	}
	agent, err := s.registry.Connect(r.Context(), r.PathValue("name"), req.RemoteSessionID, req.RemoteEndpoint)
	if errors.Is(err, types.ErrNotFound) {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "connect agent")
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

type reattachRequest struct {
	PID int    `json:"pid"`
	TTY string `json:"tty"`
}

func (s *Server) handleReattachAgent(w http.ResponseWriter, r *http.Request) {
	var req reattachRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PID <= 0 {
		writeError(w, http.StatusBadRequest, "pid is required")
		return
	}
	agent, err := s.registry.Reattach(r.Context(), r.PathValue("name"), req.PID, req.TTY)
	if errors.Is(err, types.ErrNotFound) {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "reattach agent")
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	err := s.registry.Heartbeat(r.Context(), r.PathValue("name"))
	if errors.Is(err, types.ErrNotFound) {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "heartbeat")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDisconnectAgent(w http.ResponseWriter, r *http.Request) {
	err := s.registry.Disconnect(r.Context(), r.PathValue("name"))
	if errors.Is(err, types.ErrNotFound) {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "disconnect")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "disconnected"})
}

func (s *Server) handleListFeatures(w http.ResponseWriter, r *http.Request) {
	features, err := s.store.ListFeatures(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list features")
		return
	}
	if features == nil {
		features = []*types.Feature{}
	}
	writeJSON(w, http.StatusOK, features)
}

type createFeatureRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (s *Server) handleCreateFeature(w http.ResponseWriter, r *http.Request) {
	var req createFeatureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	user, err := s.store.HumanUser(r.Context())
	if errors.Is(err, types.ErrNotFound) {
		writeError(w, http.StatusBadRequest, "no user onboarded")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup user")
		return
	}

	feature := &types.Feature{
		ID:          types.NewFeatureID(),
		Title:       req.Title,
		Description: req.Description,
		Status:      "open",
		CreatedBy:   user.ID,
		CreatedAt:   time.Now(),
	}
	if err := s.store.CreateFeature(r.Context(), feature); err != nil {
		writeError(w, http.StatusInternalServerError, "create feature")
		return
	}
	s.hub.Emit(broadcast.FeatureUpdateEvent(string(feature.ID), feature.Title, feature.Status, 0, "created"))
	writeJSON(w, http.StatusCreated, feature)
}

type voteRequest struct {
	Vote int `json:"vote"`
}

func (s *Server) handleVoteFeature(w http.ResponseWriter, r *http.Request) {
	featureID := types.FeatureID(r.PathValue("id"))

	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Vote != 1 && req.Vote != -1 {
		writeError(w, http.StatusBadRequest, "vote must be +1 or -1")
		return
	}

	user, err := s.store.HumanUser(r.Context())
	if errors.Is(err, types.ErrNotFound) {
		writeError(w, http.StatusBadRequest, "no user onboarded")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup user")
		return
	}

	tally, err := s.store.CastVote(r.Context(), featureID, user.ID, req.Vote)
	if errors.Is(err, types.ErrNotFound) {
		writeError(w, http.StatusNotFound, "feature not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "cast vote")
		return
	}

	feature, err := s.store.FeatureByID(r.Context(), featureID)
	if err == nil {
		s.hub.Emit(broadcast.FeatureUpdateEvent(string(feature.ID), feature.Title, feature.Status, tally, "voted"))
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "voted", "vote": req.Vote, "vote_count": tally})
}
