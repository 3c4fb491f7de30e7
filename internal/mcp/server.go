package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// sessionHeader carries the MCP session identity on the HTTP
// transport. The server issues one on initialize; clients echo it on
// every later request. Tool handlers use it to tie calls back to a
// registered agent.
const sessionHeader = "Mcp-Session-Id"

type sessionKey struct{}

// SessionID returns the MCP session identity attached to a tool call,
// or "" when the client never completed the handshake.
func SessionID(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}

func withSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey{}, id)
}

// ToolHandler handles one tool call. It receives the raw arguments and
// returns a result or an error; errors surface as tool-level error
// results, not RPC errors.
type ToolHandler func(ctx context.Context, args json.RawMessage) (*ToolCallResult, error)

// ToolRegistrar is the registration half of the server, what handler
// bundles need to install themselves.
type ToolRegistrar interface {
	RegisterTool(tool Tool, handler ToolHandler)
}

// Server dispatches JSON-RPC requests to registered tools.
type Server struct {
	info         ImplementationInfo
	instructions string
	logger       *slog.Logger

	mu       sync.RWMutex
	order    []string
	tools    map[string]Tool
	handlers map[string]ToolHandler
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithInstructions sets the onboarding text sent in the initialize
// response. Agents read it before touching any tool.
func WithInstructions(instructions string) ServerOption {
	return func(s *Server) {
		s.instructions = instructions
	}
}

func NewServer(name, version string, opts ...ServerOption) *Server {
	s := &Server{
		info:     ImplementationInfo{Name: name, Version: version},
		logger:   slog.Default().With("component", "mcp"),
		tools:    make(map[string]Tool),
		handlers: make(map[string]ToolHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterTool installs a tool and its handler. Tools are listed in
// registration order.
func (s *Server) RegisterTool(tool Tool, handler ToolHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tools[tool.Name]; !exists {
		s.order = append(s.order, tool.Name)
	}
	s.tools[tool.Name] = tool
	s.handlers[tool.Name] = handler
}

// Handler returns the HTTP endpoint for the MCP transport. Each POST
// body is one JSON-RPC message. The session header is issued on first
// contact and echoed back on every response.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "failed to read request", http.StatusBadRequest)
			return
		}

		session := r.Header.Get(sessionHeader)
		if session == "" {
			session = uuid.NewString()
		}

		resp := s.handle(withSessionID(r.Context(), session), body)
		w.Header().Set(sessionHeader, session)
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write(resp); err != nil {
			s.logger.Debug("write response failed", "error", err)
		}
	})
}

// handle processes a single JSON-RPC message and returns the response
// bytes. Notifications get an empty object back.
func (s *Server) handle(ctx context.Context, body []byte) []byte {
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		data, _ := json.Marshal(newErrorResponse(nil, newParseError(err.Error())))
		return data
	}

	if len(req.ID) == 0 || string(req.ID) == "null" {
		s.handleNotification(&req)
		return []byte("{}")
	}

	var result any
	var rpcErr *RPCError
	switch req.Method {
	case "initialize":
		result, rpcErr = s.handleInitialize(req.Params)
	case "tools/list":
		result = s.handleToolsList()
	case "tools/call":
		result, rpcErr = s.handleToolsCall(ctx, req.Params)
	case "ping":
		result = struct{}{}
	default:
		rpcErr = newMethodNotFound(req.Method)
	}

	var resp *Response
	if rpcErr != nil {
		resp = newErrorResponse(req.ID, rpcErr)
	} else {
		resp = newResponse(req.ID, result)
	}
	data, _ := json.Marshal(resp)
	return data
}

func (s *Server) handleNotification(req *Request) {
	// notifications/initialized and notifications/cancelled need no
	// action on this server; unknown notifications are ignored.
	s.logger.Debug("notification", "method", req.Method)
}

func (s *Server) handleInitialize(params json.RawMessage) (any, *RPCError) {
	var p InitializeParams
	if params != nil {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, newInvalidParams(err.Error())
		}
	}
	s.logger.Debug("initialize", "client", p.ClientInfo.Name, "client_version", p.ProtocolVersion)

	return InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities: ServerCapability{
			Tools: &ToolsCapability{ListChanged: false},
		},
		ServerInfo:   s.info,
		Instructions: s.instructions,
	}, nil
}

func (s *Server) handleToolsList() any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tools := make([]Tool, 0, len(s.order))
	for _, name := range s.order {
		tools = append(tools, s.tools[name])
	}
	return ToolsListResult{Tools: tools}
}

func (s *Server) handleToolsCall(ctx context.Context, params json.RawMessage) (any, *RPCError) {
	var p ToolCallParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, newInvalidParams(err.Error())
	}

	s.mu.RLock()
	handler, ok := s.handlers[p.Name]
	s.mu.RUnlock()
	if !ok {
		return nil, newToolNotFound(p.Name)
	}

	start := time.Now()
	result, err := handler(ctx, p.Arguments)
	s.logger.Debug("tool call", "name", p.Name, "duration", time.Since(start), "error", err)

	if err != nil {
		// Handler errors are tool results the agent can read, not
		// protocol failures.
		return ErrorResult(err.Error()), nil
	}
	return result, nil
}
