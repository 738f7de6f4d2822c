// Package cache keeps recently read decisions and links in memory and drops
// entries when a change notification names them.
package cache

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"precedent/internal/changes"
	"precedent/internal/domain"
	"precedent/internal/logger"
)

const DefaultSize = 512

// Backend is the store being cached. Writes pass straight through.
type Backend interface {
	ListDecisions(ctx context.Context) ([]domain.DecisionRecord, error)
	GetDecision(ctx context.Context, id string) (domain.DecisionRecord, error)
	InsertDecision(ctx context.Context, d domain.DecisionRecord) (domain.DecisionRecord, error)
	UpdateDecision(ctx context.Context, id string, p domain.DecisionPatch) (domain.DecisionRecord, error)
	DeleteDecision(ctx context.Context, id string) error
	LinksFrom(ctx context.Context, id string) ([]domain.DecisionLink, error)
	LinksTo(ctx context.Context, id string) ([]domain.DecisionLink, error)
	InsertLink(ctx context.Context, l domain.DecisionLink) (domain.DecisionLink, error)
	DeleteLink(ctx context.Context, id string) (domain.DecisionLink, error)
}

const collectionKey = "decisions"

func decisionKey(id string) string  { return "decision:" + id }
func linksFromKey(id string) string { return "links-from:" + id }
func linksToKey(id string) string   { return "links-to:" + id }

// Store is a read-through cache in front of a Backend.
type Store struct {
	backend Backend
	entries *lru.Cache[string, any]
	group   singleflight.Group
	log     *logger.Logger

	// mu guards gen and orders entry writes against invalidation. gen advances
	// on every invalidation so loads that raced one are not stored.
	mu  sync.Mutex
	gen uint64
}

func New(backend Backend, size int, log *logger.Logger) (*Store, error) {
	if size <= 0 {
		size = DefaultSize
	}
	entries, err := lru.New[string, any](size)
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Store{backend: backend, entries: entries, log: log.With("component", "cache")}, nil
}

// Attach subscribes the cache to sub and returns the unsubscribe func.
func (s *Store) Attach(sub changes.Subscriber) func() {
	return sub.Subscribe(s.Invalidate)
}

// Invalidate drops every entry the notification makes stale. Reads issued
// afterwards start a new load instead of joining one already in flight.
func (s *Store) Invalidate(n changes.Notification) {
	var keys []string
	if n.AffectsCollection() {
		keys = append(keys, collectionKey)
		for _, id := range n.DecisionIDs {
			keys = append(keys, decisionKey(id))
		}
	}
	if n.AffectsLinks() {
		for _, id := range append(append([]string(nil), n.DecisionIDs...), n.LinkedIDs...) {
			keys = append(keys, linksFromKey(id), linksToKey(id))
		}
	}
	s.mu.Lock()
	s.gen++
	for _, k := range keys {
		s.entries.Remove(k)
	}
	s.mu.Unlock()
	s.log.Debug("invalidated", "kind", n.Kind, "keys", keys)
}

// Purge empties the cache.
func (s *Store) Purge() {
	s.mu.Lock()
	s.gen++
	s.entries.Purge()
	s.mu.Unlock()
}

func (s *Store) Len() int { return s.entries.Len() }

// load serves key from the cache or runs fn once per key and generation. The
// backend call is detached from the caller's cancellation so one caller giving
// up does not fail the others sharing the flight.
func (s *Store) load(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	s.mu.Lock()
	if v, ok := s.entries.Get(key); ok {
		s.mu.Unlock()
		return v, nil
	}
	gen := s.gen
	s.mu.Unlock()

	flight := fmt.Sprintf("%s@%d", key, gen)
	ch := s.group.DoChan(flight, func() (any, error) {
		v, err := fn(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		if s.gen == gen {
			s.entries.Add(key, v)
		}
		s.mu.Unlock()
		return v, nil
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Store) ListDecisions(ctx context.Context) ([]domain.DecisionRecord, error) {
	v, err := s.load(ctx, collectionKey, func(ctx context.Context) (any, error) {
		return s.backend.ListDecisions(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.DecisionRecord), nil
}

func (s *Store) GetDecision(ctx context.Context, id string) (domain.DecisionRecord, error) {
	v, err := s.load(ctx, decisionKey(id), func(ctx context.Context) (any, error) {
		return s.backend.GetDecision(ctx, id)
	})
	if err != nil {
		return domain.DecisionRecord{}, err
	}
	return v.(domain.DecisionRecord), nil
}

func (s *Store) LinksFrom(ctx context.Context, id string) ([]domain.DecisionLink, error) {
	v, err := s.load(ctx, linksFromKey(id), func(ctx context.Context) (any, error) {
		return s.backend.LinksFrom(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.DecisionLink), nil
}

func (s *Store) LinksTo(ctx context.Context, id string) ([]domain.DecisionLink, error) {
	v, err := s.load(ctx, linksToKey(id), func(ctx context.Context) (any, error) {
		return s.backend.LinksTo(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.DecisionLink), nil
}

func (s *Store) InsertDecision(ctx context.Context, d domain.DecisionRecord) (domain.DecisionRecord, error) {
	return s.backend.InsertDecision(ctx, d)
}

func (s *Store) UpdateDecision(ctx context.Context, id string, p domain.DecisionPatch) (domain.DecisionRecord, error) {
	return s.backend.UpdateDecision(ctx, id, p)
}

func (s *Store) DeleteDecision(ctx context.Context, id string) error {
	return s.backend.DeleteDecision(ctx, id)
}

func (s *Store) InsertLink(ctx context.Context, l domain.DecisionLink) (domain.DecisionLink, error) {
	return s.backend.InsertLink(ctx, l)
}

func (s *Store) DeleteLink(ctx context.Context, id string) (domain.DecisionLink, error) {
	return s.backend.DeleteLink(ctx, id)
}
