package telemetry

import (
	"context"

	"github.com/google/uuid"
)

type turnKey struct{}

// NewTurnID returns a fresh id of the form "turn-<uuid>".
func NewTurnID() string { return "turn-" + uuid.NewString() }

// WithTurnID tags ctx with a turn id. Every event emitted for one orchestrated
// call carries the same id.
func WithTurnID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, turnKey{}, id)
}

// TurnIDFromContext reports the turn id on ctx. An empty id counts as absent.
func TurnIDFromContext(ctx context.Context) (string, bool) {
	id, _ := ctx.Value(turnKey{}).(string)
	return id, id != ""
}

// EnsureTurnID keeps an existing turn id or attaches a new one.
func EnsureTurnID(ctx context.Context) (context.Context, string) {
	if id, ok := TurnIDFromContext(ctx); ok {
		return ctx, id
	}
	id := NewTurnID()
	return WithTurnID(ctx, id), id
}
