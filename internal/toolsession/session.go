package toolsession

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/petasbytes/toolchat/internal/history"
	"github.com/petasbytes/toolchat/internal/metrics"
	"github.com/petasbytes/toolchat/internal/telemetry"
	"github.com/petasbytes/toolchat/tools"
)

// Result is the text handed back to the model for one tool call.
type Result struct {
	Content string
	IsError bool
}

// Session is one live tool-server connection. It belongs to a single call and
// is not safe for concurrent use, apart from Close.
type Session struct {
	id       string
	cfg      Config
	cs       *mcp.ClientSession
	recorder history.Recorder
	metrics  *metrics.Recorder
	logger   *slog.Logger
	tracer   trace.Tracer

	descriptors []tools.Descriptor
	discovered  bool
	log         history.Log

	closeOnce sync.Once
	closeErr  error
}

func (s *Session) ID() string { return s.id }

// DiscoverTools lists the server's tool catalog once; later calls return the
// cached descriptors. The listing is bounded by HandshakeTimeout and failures
// are *ConnectError.
func (s *Session) DiscoverTools(ctx context.Context) ([]tools.Descriptor, error) {
	if s.discovered {
		return append([]tools.Descriptor(nil), s.descriptors...), nil
	}

	ctx, span := s.tracer.Start(ctx, "toolsession.discover", trace.WithAttributes(attribute.String("session_id", s.id)))
	defer span.End()

	dctx, cancel := context.WithTimeout(ctx, s.cfg.HandshakeTimeout)
	defer cancel()

	fail := func(cause error) ([]tools.Descriptor, error) {
		err := &ConnectError{ServerPath: s.cfg.ServerPath(), Cause: cause}
		span.RecordError(err)
		span.SetStatus(codes.Error, "discovery failed")
		s.logger.Error("tool discovery failed", "error", cause)
		return nil, err
	}

	var out []tools.Descriptor
	for tool, err := range s.cs.Tools(dctx, nil) {
		if err != nil {
			return fail(boundedCause("list tools", ctx, dctx, err))
		}
		if tool == nil {
			continue
		}
		schema, err := tools.SchemaFromJSON(tool.InputSchema)
		if err != nil {
			return fail(fmt.Errorf("tool %q: %w", tool.Name, err))
		}
		out = append(out, tools.Descriptor{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: schema,
		})
	}
	if err := tools.CheckUnique(out); err != nil {
		return fail(err)
	}

	s.descriptors = out
	s.discovered = true
	span.SetAttributes(attribute.Int("tool_count", len(out)))
	s.logger.Info("tools discovered", "count", len(out), "names", tools.Names(out))
	turnID, _ := telemetry.TurnIDFromContext(ctx)
	telemetry.Emit("tools_discovered", map[string]any{
		"turn_id":    turnID,
		"session_id": s.id,
		"tool_count": len(out),
	})
	return append([]tools.Descriptor(nil), out...), nil
}

// Invoke runs one tool call bounded by CallTimeout. It never fails: a timeout,
// transport error or tool-side error is reported as "Error: ..." content with
// IsError set. Every call is appended to the session history.
func (s *Session) Invoke(ctx context.Context, name string, args json.RawMessage) Result {
	ctx, span := s.tracer.Start(ctx, "tool.invoke", trace.WithAttributes(
		attribute.String("session_id", s.id),
		attribute.String("tool_name", name),
	))
	defer span.End()

	start := time.Now()
	cctx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()

	var arguments any = args
	if len(args) == 0 {
		arguments = map[string]any{}
	}

	s.logger.Info("calling tool", "tool", name, "input_size", len(args))
	res, err := s.cs.CallTool(cctx, &mcp.CallToolParams{Name: name, Arguments: arguments})

	var out Result
	switch {
	case err != nil && ctx.Err() == nil && errors.Is(cctx.Err(), context.DeadlineExceeded):
		out = Result{Content: fmt.Sprintf("Error: Tool call '%s' timed out after %s", name, s.cfg.CallTimeout), IsError: true}
	case err != nil:
		out = Result{Content: fmt.Sprintf("Error: Tool call '%s' failed: %v", name, err), IsError: true}
	case res == nil:
		out = Result{Content: fmt.Sprintf("Error: Tool call '%s' failed: empty result", name), IsError: true}
	case res.IsError:
		out = Result{Content: fmt.Sprintf("Error: Tool call '%s' failed: %s", name, contentText(res.Content)), IsError: true}
	default:
		out = Result{Content: contentText(res.Content)}
	}
	elapsed := time.Since(start)

	entry := s.log.Append(history.Entry{
		Time:      start,
		SessionID: s.id,
		Tool:      name,
		Arguments: args,
		Result:    out.Content,
		Failed:    out.IsError,
	})
	if s.recorder != nil {
		// The sink is informational; a cancelled call should still be recorded.
		if rerr := s.recorder.Record(context.WithoutCancel(ctx), entry); rerr != nil {
			s.logger.Warn("history record failed", "tool", name, "error", rerr)
		}
	}
	s.metrics.RecordTool(ctx, name, !out.IsError, elapsed)

	turnID, _ := telemetry.TurnIDFromContext(ctx)
	fields := map[string]any{
		"turn_id":     turnID,
		"session_id":  s.id,
		"tool_name":   name,
		"duration_ms": elapsed.Milliseconds(),
		"input_size":  len(args),
		"output_size": len(out.Content),
		"error":       nil,
	}
	if out.IsError {
		// Generic marker only; the detailed text goes to the model, not the event log.
		fields["error"] = "tool error"
		span.SetStatus(codes.Error, "tool error")
		s.logger.Warn("tool call failed", "tool", name, "elapsed", elapsed, "result", history.Truncate(out.Content, 100))
	} else {
		span.SetStatus(codes.Ok, "")
		s.logger.Info("tool call done", "tool", name, "elapsed", elapsed, "output_size", len(out.Content))
	}
	telemetry.Emit("tool_exec", fields)
	return out
}

// contentText flattens tool result content: text items verbatim, anything
// else as its JSON encoding, one item per line.
func contentText(content []mcp.Content) string {
	parts := make([]string, 0, len(content))
	for _, c := range content {
		if tc, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
			continue
		}
		b, err := json.Marshal(c)
		if err != nil {
			parts = append(parts, fmt.Sprintf("%v", c))
			continue
		}
		parts = append(parts, string(b))
	}
	return strings.Join(parts, "\n")
}

// History returns the session's tool-call record, oldest first.
func (s *Session) History() []history.Entry { return s.log.Entries() }

// Close releases the transport. Only the first call has an effect.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if s.cs != nil {
			s.closeErr = s.cs.Close()
		}
		s.logger.Info("tool session closed", "tool_calls", s.log.Len())
		telemetry.Emit("session_closed", map[string]any{
			"session_id": s.id,
			"tool_calls": s.log.Len(),
		})
	})
	return s.closeErr
}
