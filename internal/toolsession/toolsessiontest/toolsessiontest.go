// Package toolsessiontest provides in-memory MCP tool servers for tests.
package toolsessiontest

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/petasbytes/toolchat/internal/toolsession"
)

// Counters observe connection lifecycle across every session a manager opens.
type Counters struct {
	Opens  atomic.Int32
	Closes atomic.Int32
}

// NewServer returns an MCP server with no tools registered.
func NewServer() *mcp.Server {
	return mcp.NewServer(&mcp.Implementation{Name: "test-server", Version: "test"}, nil)
}

// ObjectSchema builds a flat object schema with the given property types.
func ObjectSchema(props map[string]string, required ...string) map[string]any {
	p := make(map[string]any, len(props))
	for name, typ := range props {
		p[name] = map[string]any{"type": typ}
	}
	s := map[string]any{"type": "object", "properties": p}
	if len(required) > 0 {
		req := make([]any, 0, len(required))
		for _, r := range required {
			req = append(req, r)
		}
		s["required"] = req
	}
	return s
}

// AddTextTool registers a tool whose handler maps decoded arguments to text.
func AddTextTool(server *mcp.Server, name, description string, schema map[string]any, fn func(ctx context.Context, args map[string]any) (string, error)) {
	server.AddTool(&mcp.Tool{Name: name, Description: description, InputSchema: schema},
		func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := map[string]any{}
			if len(req.Params.Arguments) > 0 {
				if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
					return nil, err
				}
			}
			text, err := fn(ctx, args)
			if err != nil {
				return nil, err
			}
			return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}, nil
		})
}

// Transport returns a TransportFunc that connects each new session to server
// over a fresh in-memory pipe and counts opens and closes in c.
func Transport(t testing.TB, server *mcp.Server, c *Counters) toolsession.TransportFunc {
	t.Helper()
	return func(ctx context.Context) (mcp.Transport, error) {
		serverT, clientT := mcp.NewInMemoryTransports()
		ss, err := server.Connect(context.Background(), serverT, nil)
		if err != nil {
			return nil, err
		}
		t.Cleanup(func() { _ = ss.Close() })
		return &countingTransport{Transport: clientT, c: c}, nil
	}
}

// Count wraps tr so every connection it opens is counted in c.
func Count(tr mcp.Transport, c *Counters) mcp.Transport {
	return &countingTransport{Transport: tr, c: c}
}

// NewManager wires a manager to server through Transport.
func NewManager(t testing.TB, server *mcp.Server, cfg toolsession.Config, opts ...toolsession.Option) (*toolsession.Manager, *Counters) {
	t.Helper()
	c := &Counters{}
	opts = append([]toolsession.Option{toolsession.WithTransport(Transport(t, server, c))}, opts...)
	return toolsession.NewManager(cfg, opts...), c
}

// StallTransport never completes a connection until ctx is done.
type StallTransport struct{}

func (StallTransport) Connect(ctx context.Context) (mcp.Connection, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type countingTransport struct {
	mcp.Transport
	c *Counters
}

func (t *countingTransport) Connect(ctx context.Context) (mcp.Connection, error) {
	conn, err := t.Transport.Connect(ctx)
	if err != nil {
		return nil, err
	}
	if t.c != nil {
		t.c.Opens.Add(1)
	}
	return &countingConn{Connection: conn, c: t.c}, nil
}

type countingConn struct {
	mcp.Connection
	c      *Counters
	closed atomic.Bool
}

// Close counts only the first close of this connection; the SDK may close a
// connection from both the session and its read loop.
func (c *countingConn) Close() error {
	if c.c != nil && c.closed.CompareAndSwap(false, true) {
		c.c.Closes.Add(1)
	}
	return c.Connection.Close()
}
