package cache_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"precedent/internal/cache"
	"precedent/internal/changes"
	"precedent/internal/domain"
)

// gatedBackend holds its first ListDecisions call until gate is closed. Only
// ListDecisions is implemented.
type gatedBackend struct {
	cache.Backend

	mu      sync.Mutex
	records []domain.DecisionRecord
	calls   int
	started chan struct{}
	gate    chan struct{}
}

func newGatedBackend(records ...domain.DecisionRecord) *gatedBackend {
	return &gatedBackend{records: records, started: make(chan struct{}), gate: make(chan struct{})}
}

func (b *gatedBackend) add(d domain.DecisionRecord) {
	b.mu.Lock()
	b.records = append(b.records, d)
	b.mu.Unlock()
}

func (b *gatedBackend) ListDecisions(ctx context.Context) ([]domain.DecisionRecord, error) {
	b.mu.Lock()
	b.calls++
	first := b.calls == 1
	snapshot := append([]domain.DecisionRecord(nil), b.records...)
	b.mu.Unlock()
	if first {
		close(b.started)
		select {
		case <-b.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return snapshot, nil
}

type listResult struct {
	items []domain.DecisionRecord
	err   error
}

func listAsync(ctx context.Context, store *cache.Store) <-chan listResult {
	out := make(chan listResult, 1)
	go func() {
		items, err := store.ListDecisions(ctx)
		out <- listResult{items: items, err: err}
	}()
	return out
}

func waitResult(t *testing.T, ch <-chan listResult) listResult {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(2 * time.Second):
		t.Fatalf("read did not return")
		return listResult{}
	}
}

func TestReadAfterInvalidationDoesNotJoinOlderLoad(t *testing.T) {
	backend := newGatedBackend(domain.DecisionRecord{ID: "1", Title: "Acme"})
	store, err := cache.New(backend, 8, nil)
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	ctx := context.Background()

	before := listAsync(ctx, store)
	<-backend.started
	backend.add(domain.DecisionRecord{ID: "2", Title: "Beta"})
	store.Invalidate(changes.Notification{Kind: changes.DecisionCreated, DecisionIDs: []string{"2"}})

	after := waitResult(t, listAsync(ctx, store))
	if after.err != nil || len(after.items) != 2 {
		t.Fatalf("read after invalidation: %d records, err %v; want 2", len(after.items), after.err)
	}

	close(backend.gate)
	if res := waitResult(t, before); res.err != nil || len(res.items) != 1 {
		t.Fatalf("older read: %d records, err %v", len(res.items), res.err)
	}
	cached, err := store.ListDecisions(ctx)
	if err != nil || len(cached) != 2 {
		t.Fatalf("older load must not overwrite the fresh entry, got %d records, err %v", len(cached), err)
	}
}

func TestCanceledCallerDoesNotFailSharedLoad(t *testing.T) {
	backend := newGatedBackend(domain.DecisionRecord{ID: "1", Title: "Acme"})
	store, err := cache.New(backend, 8, nil)
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()

	a := listAsync(ctxA, store)
	<-backend.started
	b := listAsync(context.Background(), store)
	cancelA()

	if res := waitResult(t, a); !errors.Is(res.err, context.Canceled) {
		t.Fatalf("canceled caller: expected context.Canceled, got %v", res.err)
	}
	close(backend.gate)
	if res := waitResult(t, b); res.err != nil || len(res.items) != 1 {
		t.Fatalf("live caller: %d records, err %v", len(res.items), res.err)
	}
}
