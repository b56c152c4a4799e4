package runner_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/petasbytes/toolchat/internal/toolsession"
	"github.com/petasbytes/toolchat/internal/toolsession/toolsessiontest"
)

type fakeResponse struct {
	status int
	body   string
}

// scriptedTransport answers each request with the next scripted response and
// keeps the request bodies.
type scriptedTransport struct {
	mu        sync.Mutex
	responses []fakeResponse
	requests  [][]byte
	onRequest func(*http.Request) error
}

func (s *scriptedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	b, _ := io.ReadAll(req.Body)
	_ = req.Body.Close()

	s.mu.Lock()
	s.requests = append(s.requests, b)
	next := fakeResponse{status: http.StatusInternalServerError, body: `{"type":"error","error":{"type":"api_error","message":"script exhausted"}}`}
	if len(s.responses) > 0 {
		next = s.responses[0]
		s.responses = s.responses[1:]
	}
	hook := s.onRequest
	s.mu.Unlock()

	if hook != nil {
		if err := hook(req); err != nil {
			return nil, err
		}
	}
	resp := &http.Response{
		StatusCode: next.status,
		Body:       io.NopCloser(bytes.NewReader([]byte(next.body))),
		Header:     make(http.Header),
		Request:    req,
	}
	resp.Header.Set("Content-Type", "application/json")
	return resp, nil
}

func (s *scriptedTransport) requestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// sentRequest is the subset of a Messages request the tests inspect.
type sentRequest struct {
	Model     string `json:"model"`
	MaxTokens int64  `json:"max_tokens"`
	Tools     []struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		InputSchema map[string]any `json:"input_schema"`
	} `json:"tools"`
	Messages []struct {
		Role    string `json:"role"`
		Content []struct {
			Type      string          `json:"type"`
			Text      string          `json:"text"`
			ID        string          `json:"id"`
			Name      string          `json:"name"`
			Input     json.RawMessage `json:"input"`
			ToolUseID string          `json:"tool_use_id"`
			IsError   bool            `json:"is_error"`
			Content   []struct {
				Text string `json:"text"`
			} `json:"content"`
		} `json:"content"`
	} `json:"messages"`
}

func (s *scriptedTransport) request(t *testing.T, i int) sentRequest {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if i >= len(s.requests) {
		t.Fatalf("request %d not sent (have %d)", i, len(s.requests))
	}
	var r sentRequest
	if err := json.Unmarshal(s.requests[i], &r); err != nil {
		t.Fatalf("decode request %d: %v\n%s", i, err, s.requests[i])
	}
	return r
}

func newClient(rt http.RoundTripper) *anthropic.Client {
	c := anthropic.NewClient(
		option.WithHTTPClient(&http.Client{Transport: rt}),
		option.WithAPIKey("test-key"),
		option.WithBaseURL("http://anthropic.test/"),
		option.WithMaxRetries(0),
	)
	return &c
}

func textResponse(text string, in, out int) fakeResponse {
	return fakeResponse{status: http.StatusOK, body: fmt.Sprintf(`{
		"id": "msg_text", "type": "message", "role": "assistant", "model": "claude-sonnet-4-20250514",
		"stop_reason": "end_turn",
		"content": [{"type": "text", "text": %q}],
		"usage": {"input_tokens": %d, "output_tokens": %d}
	}`, text, in, out)}
}

type toolCall struct {
	id, name, input string
}

func toolUseResponse(in, out int, calls ...toolCall) fakeResponse {
	blocks := make([]string, 0, len(calls))
	for _, c := range calls {
		blocks = append(blocks, fmt.Sprintf(`{"type":"tool_use","id":%q,"name":%q,"input":%s}`, c.id, c.name, c.input))
	}
	return fakeResponse{status: http.StatusOK, body: fmt.Sprintf(`{
		"id": "msg_tool", "type": "message", "role": "assistant", "model": "claude-sonnet-4-20250514",
		"stop_reason": "tool_use",
		"content": [%s],
		"usage": {"input_tokens": %d, "output_tokens": %d}
	}`, strings.Join(blocks, ","), in, out)}
}

func errorResponse(status int, typ, message string) fakeResponse {
	return fakeResponse{status: status, body: fmt.Sprintf(`{"type":"error","error":{"type":%q,"message":%q}}`, typ, message)}
}

// newToolManager returns a manager backed by an in-memory server exposing
// lookup(x) -> "x=<x>".
func newToolManager(t *testing.T) (*toolsession.Manager, *toolsessiontest.Counters) {
	t.Helper()
	server := toolsessiontest.NewServer()
	toolsessiontest.AddTextTool(server, "lookup", "Look up a value by x",
		toolsessiontest.ObjectSchema(map[string]string{"x": "integer"}, "x"),
		func(_ context.Context, args map[string]any) (string, error) {
			return fmt.Sprintf("x=%v", args["x"]), nil
		})
	return toolsessiontest.NewManager(t, server, toolsession.Config{})
}

// stallingManager never completes the handshake.
func stallingManager() *toolsession.Manager {
	return toolsession.NewManager(
		toolsession.Config{Command: "node", Args: []string{"tools/build/index.js"}, HandshakeTimeout: 50 * time.Millisecond},
		toolsession.WithTransport(func(context.Context) (mcp.Transport, error) {
			return toolsessiontest.StallTransport{}, nil
		}),
	)
}
