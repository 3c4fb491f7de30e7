package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// rpcReply mirrors the JSON-RPC response envelope for decoding.
type rpcReply struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

func postRPC(t *testing.T, handler http.Handler, session, body string) (*httptest.ResponseRecorder, rpcReply) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if session != "" {
		req.Header.Set(sessionHeader, session)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	var reply rpcReply
	if err := json.Unmarshal(w.Body.Bytes(), &reply); err != nil {
		t.Fatalf("decode reply %q: %v", w.Body, err)
	}
	return w, reply
}

func echoTool(name string) (Tool, ToolHandler) {
	tool := Tool{
		Name:        name,
		Description: "echoes its input",
		InputSchema: &InputSchema{Type: "object"},
	}
	handler := func(ctx context.Context, args json.RawMessage) (*ToolCallResult, error) {
		return StructuredResult("echo", map[string]string{"session": SessionID(ctx)}), nil
	}
	return tool, handler
}

func TestInitializeHandshake(t *testing.T) {
	srv := NewServer("talkto", "1.0.0", WithInstructions("read the tools"))
	w, reply := postRPC(t, srv.Handler(), "",
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","clientInfo":{"name":"test","version":"0"}}}`)

	if reply.Error != nil {
		t.Fatalf("initialize error: %v", reply.Error)
	}
	if w.Header().Get(sessionHeader) == "" {
		t.Error("no session header issued on initialize")
	}

	var result InitializeResult
	if err := json.Unmarshal(reply.Result, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.ProtocolVersion != ProtocolVersion {
		t.Errorf("protocol version = %q", result.ProtocolVersion)
	}
	if result.ServerInfo.Name != "talkto" || result.Instructions != "read the tools" {
		t.Errorf("server info = %+v instructions = %q", result.ServerInfo, result.Instructions)
	}
	if result.Capabilities.Tools == nil {
		t.Error("tools capability not advertised")
	}
}

func TestSessionHeaderEchoed(t *testing.T) {
	srv := NewServer("talkto", "1.0.0")
	w, _ := postRPC(t, srv.Handler(), "ses-abc", `{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	if got := w.Header().Get(sessionHeader); got != "ses-abc" {
		t.Errorf("session header = %q, want ses-abc", got)
	}
}

func TestToolsListRegistrationOrder(t *testing.T) {
	srv := NewServer("talkto", "1.0.0")
	for _, name := range []string{"beta", "alpha"} {
		tool, handler := echoTool(name)
		srv.RegisterTool(tool, handler)
	}

	_, reply := postRPC(t, srv.Handler(), "", `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
	if reply.Error != nil {
		t.Fatalf("tools/list error: %v", reply.Error)
	}

	var result ToolsListResult
	if err := json.Unmarshal(reply.Result, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(result.Tools) != 2 || result.Tools[0].Name != "beta" || result.Tools[1].Name != "alpha" {
		t.Errorf("tools = %+v, want registration order beta, alpha", result.Tools)
	}
}

func TestToolsCallCarriesSession(t *testing.T) {
	srv := NewServer("talkto", "1.0.0")
	tool, handler := echoTool("echo")
	srv.RegisterTool(tool, handler)

	_, reply := postRPC(t, srv.Handler(), "ses-42",
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"echo"}}`)
	if reply.Error != nil {
		t.Fatalf("tools/call error: %v", reply.Error)
	}

	var result ToolCallResult
	if err := json.Unmarshal(reply.Result, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	structured, ok := result.StructuredContent.(map[string]any)
	if !ok || structured["session"] != "ses-42" {
		t.Errorf("structured content = %#v, want session ses-42", result.StructuredContent)
	}
}

func TestToolsCallUnknownTool(t *testing.T) {
	srv := NewServer("talkto", "1.0.0")
	_, reply := postRPC(t, srv.Handler(), "",
		`{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"nope"}}`)
	if reply.Error == nil || reply.Error.Code != errCodeToolNotFound {
		t.Errorf("error = %+v, want tool not found", reply.Error)
	}
}

func TestHandlerErrorBecomesToolResult(t *testing.T) {
	srv := NewServer("talkto", "1.0.0")
	srv.RegisterTool(
		Tool{Name: "fail", Description: "always fails", InputSchema: &InputSchema{Type: "object"}},
		func(ctx context.Context, args json.RawMessage) (*ToolCallResult, error) {
			return nil, errors.New("channel #void not found")
		},
	)

	_, reply := postRPC(t, srv.Handler(), "",
		`{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"fail"}}`)
	if reply.Error != nil {
		t.Fatalf("handler error surfaced as RPC error: %v", reply.Error)
	}

	var result ToolCallResult
	if err := json.Unmarshal(reply.Result, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !result.IsError || len(result.Content) != 1 || result.Content[0].Text != "channel #void not found" {
		t.Errorf("result = %+v, want error content", result)
	}
}

func TestUnknownMethod(t *testing.T) {
	srv := NewServer("talkto", "1.0.0")
	_, reply := postRPC(t, srv.Handler(), "", `{"jsonrpc":"2.0","id":6,"method":"resources/list"}`)
	if reply.Error == nil || reply.Error.Code != errCodeMethodNotFound {
		t.Errorf("error = %+v, want method not found", reply.Error)
	}
}

func TestParseError(t *testing.T) {
	srv := NewServer("talkto", "1.0.0")
	_, reply := postRPC(t, srv.Handler(), "", `{not json`)
	if reply.Error == nil || reply.Error.Code != errCodeParseError {
		t.Errorf("error = %+v, want parse error", reply.Error)
	}
}

func TestNotificationGetsEmptyBody(t *testing.T) {
	srv := NewServer("talkto", "1.0.0")
	req := httptest.NewRequest(http.MethodPost, "/mcp",
		strings.NewReader(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if strings.TrimSpace(w.Body.String()) != "{}" {
		t.Errorf("notification response = %q, want {}", w.Body.String())
	}
}
