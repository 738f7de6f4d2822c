// Package changes delivers "record changed" notifications from the mutation
// path to read caches and other subscribers.
package changes

import (
	"context"
	"sort"
	"sync"
)

type Kind string

const (
	DecisionCreated Kind = "decision.created"
	DecisionUpdated Kind = "decision.updated"
	DecisionDeleted Kind = "decision.deleted"
	LinkCreated     Kind = "link.created"
	LinkDeleted     Kind = "link.deleted"
)

// Notification says which decisions a successful mutation touched. For link
// kinds DecisionIDs holds both endpoints. LinkedIDs names decisions whose link
// lists changed as a side effect, such as the neighbours of a deleted decision.
type Notification struct {
	Kind        Kind     `json:"kind"`
	DecisionIDs []string `json:"decision_ids"`
	LinkedIDs   []string `json:"linked_ids,omitempty"`
	LinkID      string   `json:"link_id,omitempty"`
	ActorID     string   `json:"actor_id,omitempty"`
	At          string   `json:"at"`
	Origin      string   `json:"origin,omitempty"`
}

// AffectsCollection reports whether the full decision listing is stale.
func (n Notification) AffectsCollection() bool {
	switch n.Kind {
	case DecisionCreated, DecisionUpdated, DecisionDeleted:
		return true
	}
	return false
}

// AffectsLinks reports whether link lists of the touched decisions are stale.
func (n Notification) AffectsLinks() bool {
	switch n.Kind {
	case LinkCreated, LinkDeleted, DecisionDeleted:
		return true
	}
	return false
}

type Handler func(Notification)

type Publisher interface {
	Publish(ctx context.Context, n Notification) error
}

type Subscriber interface {
	Subscribe(h Handler) (cancel func())
}

type Bus interface {
	Publisher
	Subscriber
	Close() error
}

// hub fans notifications out to local handlers synchronously.
type hub struct {
	mu       sync.RWMutex
	next     int
	handlers map[int]Handler
}

func (h *hub) subscribe(fn Handler) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.handlers == nil {
		h.handlers = map[int]Handler{}
	}
	id := h.next
	h.next++
	h.handlers[id] = fn
	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.handlers, id)
			h.mu.Unlock()
		})
	}
}

func (h *hub) dispatch(n Notification) {
	h.mu.RLock()
	ids := make([]int, 0, len(h.handlers))
	for id := range h.handlers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]Handler, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, h.handlers[id])
	}
	h.mu.RUnlock()
	for _, fn := range fns {
		fn(n)
	}
}

// Local is an in-process bus. Publish returns after every handler has run.
type Local struct {
	hub hub
}

func NewLocal() *Local {
	return &Local{}
}

func (b *Local) Publish(_ context.Context, n Notification) error {
	b.hub.dispatch(n)
	return nil
}

func (b *Local) Subscribe(h Handler) func() {
	return b.hub.subscribe(h)
}

func (b *Local) Close() error { return nil }
