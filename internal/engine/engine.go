package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"precedent/internal/changes"
	"precedent/internal/config"
	"precedent/internal/domain"
	"precedent/internal/logger"
	"precedent/internal/session"
)

// DecisionStore is the durable home of decision records. Lookups of unknown ids
// fail with repo.ErrNotFound.
type DecisionStore interface {
	ListDecisions(ctx context.Context) ([]domain.DecisionRecord, error)
	GetDecision(ctx context.Context, id string) (domain.DecisionRecord, error)
	InsertDecision(ctx context.Context, d domain.DecisionRecord) (domain.DecisionRecord, error)
	UpdateDecision(ctx context.Context, id string, p domain.DecisionPatch) (domain.DecisionRecord, error)
	DeleteDecision(ctx context.Context, id string) error
}

// LinkStore holds directed typed edges between decisions. Both listings return
// links in store order.
type LinkStore interface {
	LinksFrom(ctx context.Context, id string) ([]domain.DecisionLink, error)
	LinksTo(ctx context.Context, id string) ([]domain.DecisionLink, error)
	InsertLink(ctx context.Context, l domain.DecisionLink) (domain.DecisionLink, error)
	DeleteLink(ctx context.Context, id string) (domain.DecisionLink, error)
}

type Engine struct {
	Decisions DecisionStore
	Links     LinkStore
	Changes   changes.Publisher
	Session   session.Provider
	Config    *config.Config
	Log       *logger.Logger
	Now       func() time.Time
}

func New(decisions DecisionStore, links LinkStore, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return Engine{
		Decisions: decisions,
		Links:     links,
		Changes:   changes.NewLocal(),
		Session:   session.FromContext{},
		Config:    cfg,
		Log:       logger.Nop(),
		Now:       time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) log() *logger.Logger {
	if e.Log != nil {
		return e.Log
	}
	return logger.Nop()
}

// ErrUnauthenticated is returned by mutations attempted without an actor.
var ErrUnauthenticated = errors.New("not authenticated")

// ValidationError rejects input before it reaches a store.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// actor resolves the current actor for a read; ok is false when nobody is signed in.
func (e Engine) actor(ctx context.Context) (string, bool) {
	if e.Session == nil {
		return session.ActorFromContext(ctx)
	}
	return e.Session.ActorID(ctx)
}

// requireActor resolves the actor for a mutation and attaches it to ctx for auditing.
func (e Engine) requireActor(ctx context.Context, explicit string) (context.Context, string, error) {
	actorID := strings.TrimSpace(explicit)
	if actorID == "" {
		actorID, _ = e.actor(ctx)
	}
	if actorID == "" {
		return ctx, "", ErrUnauthenticated
	}
	return session.WithActor(ctx, actorID), actorID, nil
}

// publish delivers n after a confirmed write. Delivery failures are logged; the
// write already happened.
func (e Engine) publish(ctx context.Context, n changes.Notification) {
	if e.Changes == nil {
		return
	}
	n.At = domain.FormatTime(e.now())
	if err := e.Changes.Publish(ctx, n); err != nil {
		e.log().Warn("change notification not delivered", "kind", n.Kind, "decision_ids", n.DecisionIDs, "error", err)
	}
}
