package changes

import (
	"context"
	"testing"
)

func TestLocalBusDeliversInSubscriptionOrder(t *testing.T) {
	bus := NewLocal()
	var got []string
	bus.Subscribe(func(n Notification) { got = append(got, "first:"+string(n.Kind)) })
	cancel := bus.Subscribe(func(n Notification) { got = append(got, "second:"+string(n.Kind)) })

	if err := bus.Publish(context.Background(), Notification{Kind: DecisionCreated, DecisionIDs: []string{"d1"}}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	cancel()
	cancel()
	if err := bus.Publish(context.Background(), Notification{Kind: DecisionDeleted, DecisionIDs: []string{"d1"}}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	want := []string{"first:decision.created", "second:decision.created", "first:decision.deleted"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestNotificationScopes(t *testing.T) {
	cases := []struct {
		kind       Kind
		collection bool
		links      bool
	}{
		{DecisionCreated, true, false},
		{DecisionUpdated, true, false},
		{DecisionDeleted, true, true},
		{LinkCreated, false, true},
		{LinkDeleted, false, true},
	}
	for _, tc := range cases {
		n := Notification{Kind: tc.kind}
		if n.AffectsCollection() != tc.collection || n.AffectsLinks() != tc.links {
			t.Fatalf("%s: unexpected scope collection=%v links=%v", tc.kind, n.AffectsCollection(), n.AffectsLinks())
		}
	}
}

func TestDecodeRejectsMissingKind(t *testing.T) {
	if _, err := decode([]byte(`{"decision_ids":["a"]}`)); err == nil {
		t.Fatalf("expected error for payload without kind")
	}
	raw, err := encode(Notification{Kind: LinkCreated, DecisionIDs: []string{"a", "b"}, LinkID: "l1", Origin: "o"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	n, err := decode(raw)
	if err != nil || n.LinkID != "l1" || len(n.DecisionIDs) != 2 || n.Origin != "o" {
		t.Fatalf("decode: %+v %v", n, err)
	}
}
