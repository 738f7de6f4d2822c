// Package session carries the current actor identity through request contexts.
package session

import (
	"context"
	"strings"
)

// Provider supplies the current actor, if any.
type Provider interface {
	ActorID(ctx context.Context) (string, bool)
}

type actorKey struct{}

// WithActor returns a context carrying actorID. A blank id leaves ctx unchanged.
func WithActor(ctx context.Context, actorID string) context.Context {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return ctx
	}
	return context.WithValue(ctx, actorKey{}, actorID)
}

func ActorFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(actorKey{}).(string)
	return id, ok && id != ""
}

// FromContext reads the actor attached by WithActor.
type FromContext struct{}

func (FromContext) ActorID(ctx context.Context) (string, bool) {
	return ActorFromContext(ctx)
}

// Static always reports the same actor. An empty value means signed out.
type Static string

func (s Static) ActorID(context.Context) (string, bool) {
	id := strings.TrimSpace(string(s))
	return id, id != ""
}
