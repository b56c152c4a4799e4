package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Outcome labels for completed calls.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Recorder records orchestration signals into OpenTelemetry instruments.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	calls        metric.Int64Counter
	rounds       metric.Int64Counter
	tokens       metric.Int64Counter
	toolCalls    metric.Int64Counter
	toolLatency  metric.Float64Histogram
	callDuration metric.Float64Histogram
}

// NewRecorder creates the instruments on meter.
func NewRecorder(meter metric.Meter) (*Recorder, error) {
	calls, err := meter.Int64Counter("toolchat.calls",
		metric.WithDescription("Number of orchestrated chat calls"),
	)
	if err != nil {
		return nil, err
	}
	rounds, err := meter.Int64Counter("toolchat.rounds",
		metric.WithDescription("Number of request/response rounds with the model"),
	)
	if err != nil {
		return nil, err
	}
	tokens, err := meter.Int64Counter("toolchat.tokens",
		metric.WithDescription("Tokens reported by the model endpoint"),
	)
	if err != nil {
		return nil, err
	}
	toolCalls, err := meter.Int64Counter("toolchat.tool.invocations",
		metric.WithDescription("Number of tool invocations"),
	)
	if err != nil {
		return nil, err
	}
	toolLatency, err := meter.Float64Histogram("toolchat.tool.latency",
		metric.WithDescription("Tool latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	callDuration, err := meter.Float64Histogram("toolchat.call.duration",
		metric.WithDescription("Duration of an orchestrated call in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	return &Recorder{
		calls:        calls,
		rounds:       rounds,
		tokens:       tokens,
		toolCalls:    toolCalls,
		toolLatency:  toolLatency,
		callDuration: callDuration,
	}, nil
}

// RecordRound counts one model round and its token usage.
func (r *Recorder) RecordRound(ctx context.Context, u Usage) {
	if r == nil {
		return
	}
	r.rounds.Add(ctx, 1)
	r.addTokens(ctx, "input", u.InputTokens)
	r.addTokens(ctx, "output", u.OutputTokens)
	r.addTokens(ctx, "cache_write", u.CacheWriteTokens)
	r.addTokens(ctx, "cache_read", u.CacheReadTokens)
}

func (r *Recorder) addTokens(ctx context.Context, kind string, n int64) {
	if n <= 0 {
		return
	}
	r.tokens.Add(ctx, n, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordTool records one tool invocation.
func (r *Recorder) RecordTool(ctx context.Context, name string, success bool, d time.Duration) {
	if r == nil {
		return
	}
	opts := metric.WithAttributes(
		attribute.String("tool_name", name),
		attribute.Bool("success", success),
	)
	r.toolCalls.Add(ctx, 1, opts)
	r.toolLatency.Record(ctx, d.Seconds(), opts)
}

// RecordCall records the end of one orchestrated call.
func (r *Recorder) RecordCall(ctx context.Context, outcome string, d time.Duration) {
	if r == nil {
		return
	}
	opts := metric.WithAttributes(attribute.String("outcome", outcome))
	r.calls.Add(ctx, 1, opts)
	r.callDuration.Record(ctx, d.Seconds(), opts)
}
