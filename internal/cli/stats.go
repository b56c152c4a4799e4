package cli

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/petasbytes/toolchat/internal/metrics"
)

// sessionStats is what the REPL prints on exit.
type sessionStats struct {
	Requests     int64
	Failed       int64
	Rounds       int64
	ToolCalls    int64
	ToolFailures int64
	Tokens       metrics.Usage
}

func (a *app) collectStats(ctx context.Context) sessionStats {
	var rm metricdata.ResourceMetrics
	if err := a.reader.Collect(ctx, &rm); err != nil {
		a.logger.Warn("collect session stats", "error", err)
		return sessionStats{}
	}
	return statsFrom(&rm)
}

func statsFrom(rm *metricdata.ResourceMetrics) sessionStats {
	var s sessionStats
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				switch m.Name {
				case "toolchat.calls":
					s.Requests += dp.Value
					if attrEquals(dp.Attributes, "outcome", metrics.OutcomeError) {
						s.Failed += dp.Value
					}
				case "toolchat.rounds":
					s.Rounds += dp.Value
				case "toolchat.tool.invocations":
					s.ToolCalls += dp.Value
					if v, ok := dp.Attributes.Value("success"); ok && !v.AsBool() {
						s.ToolFailures += dp.Value
					}
				case "toolchat.tokens":
					kind, _ := dp.Attributes.Value("kind")
					switch kind.AsString() {
					case "input":
						s.Tokens.InputTokens += dp.Value
					case "output":
						s.Tokens.OutputTokens += dp.Value
					case "cache_write":
						s.Tokens.CacheWriteTokens += dp.Value
					case "cache_read":
						s.Tokens.CacheReadTokens += dp.Value
					}
				}
			}
		}
	}
	return s
}

func attrEquals(set attribute.Set, key, want string) bool {
	v, ok := set.Value(attribute.Key(key))
	return ok && v.AsString() == want
}

func printStats(w io.Writer, s sessionStats) {
	fmt.Fprintln(w, "Session stats")
	fmt.Fprintf(w, "  Requests:     %d (%d failed)\n", s.Requests, s.Failed)
	fmt.Fprintf(w, "  Model rounds: %d\n", s.Rounds)
	fmt.Fprintf(w, "  Tool calls:   %d (%d failed)\n", s.ToolCalls, s.ToolFailures)
	fmt.Fprintf(w, "  Tokens:       %d\n", s.Tokens.Total())
}

func printUsage(w io.Writer, label string, u metrics.Usage) {
	fmt.Fprintf(w, "  %s: input %d, output %d, total %d\n", label, u.InputTokens, u.OutputTokens, u.Total())
	if u.CacheReadTokens > 0 {
		fmt.Fprintf(w, "  💾 Cache hits: %d tokens\n", u.CacheReadTokens)
	}
	if u.CacheWriteTokens > 0 {
		fmt.Fprintf(w, "  💾 Cache writes: %d tokens\n", u.CacheWriteTokens)
	}
}
