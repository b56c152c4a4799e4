package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/petasbytes/toolchat/internal/metrics"
	"github.com/petasbytes/toolchat/internal/provider"
	"github.com/petasbytes/toolchat/internal/telemetry"
	"github.com/petasbytes/toolchat/internal/toolsession"
	"github.com/petasbytes/toolchat/internal/windowing"
	"github.com/petasbytes/toolchat/tools"
	"github.com/petasbytes/toolchat/transcript"
)

const tracerName = "github.com/petasbytes/toolchat/internal/runner"

// Sessions opens one tool session per call. *toolsession.Manager satisfies it.
type Sessions interface {
	Open(ctx context.Context) (*toolsession.Session, error)
}

// Result is the outcome of one orchestrated call.
type Result struct {
	Text   string
	Usage  metrics.Usage
	Rounds int
}

type Runner struct {
	client   *anthropic.Client
	sessions Sessions

	model        anthropic.Model
	maxTokens    int64
	maxRounds    int
	windowBudget int
	counter      windowing.TokenCounter

	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *metrics.Recorder
}

type Option func(*Runner)

func WithModel(m anthropic.Model) Option { return func(r *Runner) { r.model = m } }

func WithMaxTokens(n int64) Option { return func(r *Runner) { r.maxTokens = n } }

// WithMaxRounds caps model rounds per call; 0 leaves the loop unbounded.
func WithMaxRounds(n int) Option { return func(r *Runner) { r.maxRounds = n } }

// WithWindowBudget sends only the newest turns that fit budget estimated
// tokens; 0 sends the whole transcript.
func WithWindowBudget(budget int) Option { return func(r *Runner) { r.windowBudget = budget } }

func WithTokenCounter(c windowing.TokenCounter) Option { return func(r *Runner) { r.counter = c } }

func WithLogger(l *slog.Logger) Option { return func(r *Runner) { r.logger = l } }

func WithTracer(t trace.Tracer) Option { return func(r *Runner) { r.tracer = t } }

func WithMetrics(m *metrics.Recorder) Option { return func(r *Runner) { r.metrics = m } }

func New(client *anthropic.Client, sessions Sessions, opts ...Option) *Runner {
	r := &Runner{
		client:    client,
		sessions:  sessions,
		model:     provider.DefaultModel,
		maxTokens: provider.DefaultMaxTokens,
		counter:   windowing.HeuristicCounter{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.tracer == nil {
		r.tracer = otel.Tracer(tracerName)
	}
	return r
}

// Chat runs Complete and renders any failure as display text with empty
// usage. It never panics past its own boundary.
func (r *Runner) Chat(ctx context.Context, tr *transcript.Transcript) (text string, usage metrics.Usage) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("chat panicked", "panic", p)
			text, usage = DisplayText(fmt.Errorf("panic: %v", p)), metrics.Usage{}
		}
	}()

	res, err := r.Complete(ctx, tr)
	if err != nil {
		return DisplayText(err), metrics.Usage{}
	}
	return res.Text, res.Usage
}

// Complete drives the tool loop for tr until the model stops asking for
// tools. Tool rounds are appended to tr; the final assistant turn is not.
// On failure the returned error is a *Error and Result carries the usage
// accumulated so far.
func (r *Runner) Complete(ctx context.Context, tr *transcript.Transcript) (res Result, err error) {
	start := time.Now()
	ctx, turnID := telemetry.EnsureTurnID(ctx)
	ctx, span := r.tracer.Start(ctx, "chat.complete", trace.WithAttributes(
		attribute.String("turn_id", turnID),
		attribute.String("model", string(r.model)),
	))
	defer span.End()

	defer func() {
		outcome := metrics.OutcomeOK
		if err != nil {
			outcome = metrics.OutcomeError
			kind := KindOf(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, kind.String())
			r.logger.Error("chat call failed", "turn_id", turnID, "kind", kind.String(), "rounds", res.Rounds, "error", err)
			telemetry.Emit("call_failed", map[string]any{
				"turn_id": turnID,
				"kind":    kind.String(),
				"rounds":  res.Rounds,
			})
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.SetAttributes(
			attribute.Int("rounds", res.Rounds),
			attribute.Int64("input_tokens", res.Usage.InputTokens),
			attribute.Int64("output_tokens", res.Usage.OutputTokens),
		)
		r.metrics.RecordCall(ctx, outcome, time.Since(start))
	}()

	if err := tr.Validate(); err != nil {
		return res, classify(fmt.Errorf("invalid transcript: %w", err))
	}

	sess, err := r.sessions.Open(ctx)
	if err != nil {
		return res, classify(err)
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			r.logger.Warn("tool session close failed", "session_id", sess.ID(), "error", cerr)
		}
	}()

	descs, err := sess.DiscoverTools(ctx)
	if err != nil {
		return res, classify(err)
	}
	toolParams := tools.Union(descs)

	for {
		if r.maxRounds > 0 && res.Rounds >= r.maxRounds {
			return res, &Error{
				Kind:    KindInternalOrchestrationError,
				Message: fmt.Sprintf("model still requesting tools after %d rounds", res.Rounds),
				Cause:   ErrRoundLimit,
			}
		}

		msg, err := r.round(ctx, tr, toolParams, res.Rounds+1)
		if err != nil {
			return res, classify(err)
		}
		res.Rounds++
		round := metrics.FromAnthropic(msg.Usage)
		res.Usage.Add(round)
		r.metrics.RecordRound(ctx, round)

		turn, err := transcript.FromMessage(msg)
		if err != nil {
			return res, classify(fmt.Errorf("round %d response: %w", res.Rounds, err))
		}
		uses := turn.ToolUses()
		telemetry.Emit("round_completed", map[string]any{
			"turn_id":       turnID,
			"round":         res.Rounds,
			"stop_reason":   string(msg.StopReason),
			"input_tokens":  round.InputTokens,
			"output_tokens": round.OutputTokens,
			"tool_uses":     len(uses),
		})

		if msg.StopReason != anthropic.StopReasonToolUse {
			res.Text = turn.JoinedText()
			r.logger.Info("chat call done", "turn_id", turnID, "rounds", res.Rounds,
				"input_tokens", res.Usage.InputTokens, "output_tokens", res.Usage.OutputTokens)
			return res, nil
		}

		results := make([]transcript.Block, 0, len(uses))
		for _, use := range uses {
			out := sess.Invoke(ctx, use.Name, use.Input)
			results = append(results, transcript.ToolResult(use.ID, out.Content, out.IsError))
		}
		tr.Append(turn, transcript.Turn{Role: transcript.RoleUser, Content: results})
	}
}

// round sends the transcript, windowed when a budget is set, and returns the
// model response.
func (r *Runner) round(ctx context.Context, tr *transcript.Transcript, toolParams []anthropic.ToolUnionParam, n int) (*anthropic.Message, error) {
	ctx, span := r.tracer.Start(ctx, "llm.round", trace.WithAttributes(attribute.Int("round", n)))
	defer span.End()

	turns := tr.Turns()
	if r.windowBudget > 0 {
		window, stats := windowing.PrepareSendWindow(turns, r.windowBudget, r.counter)
		turnID, _ := telemetry.TurnIDFromContext(ctx)
		telemetry.Emit("window_prepared", map[string]any{
			"turn_id":            turnID,
			"model":              string(r.model),
			"budget":             stats.Budget,
			"total_estimated":    stats.Total,
			"included_groups":    stats.IncludedGroups,
			"skipped_groups":     stats.SkippedGroups,
			"over_budget_newest": stats.OverBudgetNewest,
		})
		r.logger.Debug("window prepared", "budget", stats.Budget, "est_total", stats.Total,
			"groups_in", stats.IncludedGroups, "groups_skip", stats.SkippedGroups)
		if stats.OverBudgetNewest || len(window) == 0 {
			err := &Error{Kind: KindInternalOrchestrationError, Message: fmt.Sprintf("window budget %d too small", r.windowBudget), Cause: ErrWindowOverBudget}
			span.RecordError(err)
			span.SetStatus(codes.Error, "window over budget")
			return nil, err
		}
		turns = window
	}

	params := anthropic.MessageNewParams{
		Model:     r.model,
		MaxTokens: r.maxTokens,
		Messages:  transcript.ToParams(turns),
	}
	if len(toolParams) > 0 {
		params.Tools = toolParams
	}

	msg, err := r.client.Messages.New(ctx, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return nil, err
	}
	span.SetAttributes(
		attribute.String("stop_reason", string(msg.StopReason)),
		attribute.Int64("input_tokens", msg.Usage.InputTokens),
		attribute.Int64("output_tokens", msg.Usage.OutputTokens),
	)
	return msg, nil
}
