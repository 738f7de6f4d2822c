package engine_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"precedent/internal/domain"
)

func seedDecisions(store *memStore, ids ...string) {
	for _, id := range ids {
		store.put(domain.DecisionRecord{ID: id, Title: "Decision " + id, Summary: "summary " + id, ConfidenceLevel: 3})
	}
}

func relatedIDs(items []domain.LinkedDecision) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestResolveRelatedDropsDanglingAndKeepsOrder(t *testing.T) {
	store := newMemStore()
	seedDecisions(store, "1", "2", "3", "4")
	store.link("l-a", "1", "2", domain.RelationshipSimilar)
	store.link("l-b", "1", "3", domain.RelationshipRelated)
	store.link("l-c", "4", "1", domain.RelationshipSupersedes)
	delete(store.decisions, "3")
	eng, _, ctx := newFakeEngine(store)

	got, err := eng.ResolveRelated(ctx, "1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %+v", got)
	}
	want := []domain.LinkedDecision{
		{ID: "2", Title: "Decision 2", Summary: "summary 2", RelationshipType: domain.RelationshipSimilar, LinkID: "l-a", Direction: domain.DirectionFrom},
		{ID: "4", Title: "Decision 4", Summary: "summary 4", RelationshipType: domain.RelationshipSupersedes, LinkID: "l-c", Direction: domain.DirectionTo},
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("entry %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestResolveRelatedFirstOccurrenceWins(t *testing.T) {
	store := newMemStore()
	seedDecisions(store, "1", "2")
	store.link("l-sim", "1", "2", domain.RelationshipSimilar)
	store.link("l-rel", "1", "2", domain.RelationshipRelated)
	store.link("l-back", "2", "1", domain.RelationshipSupersedes)
	eng, _, ctx := newFakeEngine(store)

	got, err := eng.ResolveRelated(ctx, "1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected a single entry for decision 2, got %+v", got)
	}
	if got[0].LinkID != "l-sim" || got[0].Direction != domain.DirectionFrom || got[0].RelationshipType != domain.RelationshipSimilar {
		t.Fatalf("expected first outbound link to win, got %+v", got[0])
	}
}

func TestResolveRelatedBound(t *testing.T) {
	store := newMemStore()
	seedDecisions(store, "root", "o1", "o2", "o3", "o4", "o5", "o6", "o7", "i1", "i2")
	for i := 1; i <= 7; i++ {
		store.link(fmt.Sprintf("out-%d", i), "root", fmt.Sprintf("o%d", i), domain.RelationshipRelated)
	}
	store.link("in-1", "i1", "root", domain.RelationshipSimilar)
	store.link("in-2", "i2", "root", domain.RelationshipSimilar)
	eng, _, ctx := newFakeEngine(store)

	got, err := eng.ResolveRelated(ctx, "root")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if ids := relatedIDs(got); !equalStrings(ids, []string{"o1", "o2", "o3", "o4", "o5"}) {
		t.Fatalf("expected first five outbound, got %v", ids)
	}
}

func TestResolveRelatedBoundSpansDirections(t *testing.T) {
	store := newMemStore()
	seedDecisions(store, "root", "o1", "o2", "o3", "i1", "i2", "i3", "i4")
	for i := 1; i <= 3; i++ {
		store.link(fmt.Sprintf("out-%d", i), "root", fmt.Sprintf("o%d", i), domain.RelationshipRelated)
	}
	for i := 1; i <= 4; i++ {
		store.link(fmt.Sprintf("in-%d", i), fmt.Sprintf("i%d", i), "root", domain.RelationshipSimilar)
	}
	store.link("dup", "o2", "root", domain.RelationshipSimilar)
	eng, _, ctx := newFakeEngine(store)

	got, err := eng.ResolveRelated(ctx, "root")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if ids := relatedIDs(got); !equalStrings(ids, []string{"o1", "o2", "o3", "i1", "i2"}) {
		t.Fatalf("unexpected order %v", ids)
	}
	for _, it := range got[3:] {
		if it.Direction != domain.DirectionTo {
			t.Fatalf("inbound entries must be tagged %q, got %+v", domain.DirectionTo, it)
		}
	}
}

func TestResolveRelatedEmptyID(t *testing.T) {
	store := newMemStore()
	eng, _, ctx := newFakeEngine(store)
	got, err := eng.ResolveRelated(ctx, "  ")
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty result, got %v %v", got, err)
	}
	if store.callCount() != 0 {
		t.Fatalf("empty id must not touch the store, calls=%v", store.calls)
	}
}

func TestResolveRelatedPropagatesStoreFailure(t *testing.T) {
	boom := errors.New("link store unreachable")
	store := newMemStore()
	seedDecisions(store, "1")
	store.failOn["LinksTo"] = boom
	eng, _, ctx := newFakeEngine(store)
	if _, err := eng.ResolveRelated(ctx, "1"); !errors.Is(err, boom) {
		t.Fatalf("expected store failure, got %v", err)
	}

	store = newMemStore()
	seedDecisions(store, "1", "2")
	store.link("l", "1", "2", domain.RelationshipRelated)
	store.failOn["GetDecision"] = boom
	eng, _, ctx = newFakeEngine(store)
	if _, err := eng.ResolveRelated(ctx, "1"); !errors.Is(err, boom) {
		t.Fatalf("expected lookup failure, got %v", err)
	}
}

func TestRelatedWithoutActorIsEmpty(t *testing.T) {
	store := newMemStore()
	seedDecisions(store, "1", "2")
	store.link("l", "1", "2", domain.RelationshipRelated)
	eng, _, _ := newFakeEngine(store)
	got, err := eng.Related(context.Background(), "1")
	if err != nil || len(got) != 0 {
		t.Fatalf("expected no data without an actor, got %v %v", got, err)
	}
	if store.callCount() != 0 {
		t.Fatalf("no store calls expected without an actor")
	}
}
