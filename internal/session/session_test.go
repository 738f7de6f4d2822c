package session

import (
	"context"
	"testing"
)

func TestWithActorRoundTrip(t *testing.T) {
	ctx := WithActor(context.Background(), " alice ")
	id, ok := FromContext{}.ActorID(ctx)
	if !ok || id != "alice" {
		t.Fatalf("expected alice, got %q ok=%v", id, ok)
	}
	if _, ok := ActorFromContext(WithActor(context.Background(), "  ")); ok {
		t.Fatalf("blank actor should not be attached")
	}
}

func TestStaticProvider(t *testing.T) {
	if _, ok := Static("").ActorID(context.Background()); ok {
		t.Fatalf("empty static provider should report no actor")
	}
	if id, ok := Static("bob").ActorID(context.Background()); !ok || id != "bob" {
		t.Fatalf("expected bob, got %q", id)
	}
}
