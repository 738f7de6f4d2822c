package engine_test

import (
	"context"
	"errors"
	"testing"

	"precedent/internal/changes"
	"precedent/internal/domain"
	"precedent/internal/engine"
	"precedent/internal/repo"
)

func TestCreateRejectsEmptyTitleWithoutStoreCall(t *testing.T) {
	store := newMemStore()
	eng, rec, ctx := newFakeEngine(store)

	for _, title := range []string{"", "   "} {
		_, err := eng.CreateDecision(ctx, engine.DecisionForm{Title: title, Summary: "anything"}, "alice")
		var verr *engine.ValidationError
		if !errors.As(err, &verr) || verr.Field != "title" {
			t.Fatalf("expected title validation error, got %v", err)
		}
	}
	if store.callCount() != 0 {
		t.Fatalf("store must not be called, got %v", store.calls)
	}
	if len(rec.all()) != 0 {
		t.Fatalf("no notification expected on validation failure")
	}
}

func TestCreateDefaultsAndOwnership(t *testing.T) {
	store := newMemStore()
	eng, rec, ctx := newFakeEngine(store)

	created, err := eng.CreateDecision(ctx, engine.DecisionForm{
		Title:             "  Acme Renewal ",
		ContextTags:       []string{"Annual", "Annual", " Existing Customer "},
		OptionsConsidered: []domain.Option{{Label: "Hold price"}, {Label: "", Description: ""}},
		SelectedOption:    "Hold price",
		IsDraft:           true,
	}, "bob")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Title != "Acme Renewal" || created.OwnerID != "bob" || !created.IsDraft {
		t.Fatalf("unexpected record %+v", created)
	}
	if created.ConfidenceLevel != domain.DefaultConfidence {
		t.Fatalf("expected default confidence 3, got %d", created.ConfidenceLevel)
	}
	if len(created.ContextTags) != 2 || created.ContextTags[1] != "Existing Customer" {
		t.Fatalf("tags not normalized: %v", created.ContextTags)
	}
	if len(created.OptionsConsidered) != 1 {
		t.Fatalf("blank options should be dropped: %+v", created.OptionsConsidered)
	}
	seen := rec.all()
	if len(seen) != 1 || seen[0].Kind != changes.DecisionCreated || seen[0].DecisionIDs[0] != created.ID || seen[0].ActorID != "bob" {
		t.Fatalf("unexpected notifications %+v", seen)
	}
}

func TestCreateValidation(t *testing.T) {
	neg := -1.0
	cases := map[string]engine.DecisionForm{
		"confidence":  {Title: "x", ConfidenceLevel: 6},
		"impact":      {Title: "x", EstimatedImpactValue: &neg},
		"unknown tag": {Title: "x", ContextTags: []string{"Galactic Deal"}},
		"selection":   {Title: "x", OptionsConsidered: []domain.Option{{Label: "A"}}, SelectedOption: "B"},
		"label":       {Title: "x", OptionsConsidered: []domain.Option{{Description: "no label"}}},
	}
	for name, form := range cases {
		store := newMemStore()
		eng, _, ctx := newFakeEngine(store)
		_, err := eng.CreateDecision(ctx, form, "alice")
		var verr *engine.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
		if store.callCount() != 0 {
			t.Fatalf("%s: store must not be called", name)
		}
	}
}

func TestMutationsRequireActor(t *testing.T) {
	store := newMemStore()
	seedDecisions(store, "1")
	eng, rec, _ := newFakeEngine(store)
	ctx := context.Background()

	if _, err := eng.CreateDecision(ctx, engine.DecisionForm{Title: "x"}, ""); !errors.Is(err, engine.ErrUnauthenticated) {
		t.Fatalf("create: expected ErrUnauthenticated, got %v", err)
	}
	title := "y"
	if _, err := eng.UpdateDecision(ctx, "1", domain.DecisionPatch{Title: &title}); !errors.Is(err, engine.ErrUnauthenticated) {
		t.Fatalf("update: expected ErrUnauthenticated, got %v", err)
	}
	if err := eng.DeleteDecision(ctx, "1"); !errors.Is(err, engine.ErrUnauthenticated) {
		t.Fatalf("delete: expected ErrUnauthenticated, got %v", err)
	}
	if store.callCount() != 0 || len(rec.all()) != 0 {
		t.Fatalf("nothing should happen without an actor")
	}
}

func TestUpdateIsPartialAndNotifiesAfterSuccess(t *testing.T) {
	store := newMemStore()
	store.put(domain.DecisionRecord{ID: "1", Title: "Acme", Summary: "keep me", ConfidenceLevel: 2, OwnerID: "alice"})
	eng, rec, ctx := newFakeEngine(store)

	outcome := " Won "
	updated, err := eng.UpdateDecision(ctx, "1", domain.DecisionPatch{Outcome: &outcome})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Summary != "keep me" || updated.Outcome != "Won" || updated.ConfidenceLevel != 2 || updated.OwnerID != "alice" {
		t.Fatalf("unexpected update %+v", updated)
	}
	if seen := rec.all(); len(seen) != 1 || seen[0].Kind != changes.DecisionUpdated {
		t.Fatalf("expected one update notification, got %+v", seen)
	}

	blank := ""
	if _, err := eng.UpdateDecision(ctx, "1", domain.DecisionPatch{Title: &blank}); err == nil {
		t.Fatalf("expected validation error for blank title")
	}
	if _, err := eng.UpdateDecision(ctx, "missing", domain.DecisionPatch{Outcome: &outcome}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(rec.all()) != 1 {
		t.Fatalf("failed updates must not notify, got %+v", rec.all())
	}
}

func TestUpdateKeepsSelectionWithinStoredOptions(t *testing.T) {
	store := newMemStore()
	store.put(domain.DecisionRecord{
		ID:                "1",
		Title:             "Acme",
		ConfidenceLevel:   3,
		OptionsConsidered: []domain.Option{{Label: "Discount"}, {Label: "Hold"}},
		SelectedOption:    "Discount",
		OwnerID:           "alice",
	})
	eng, rec, ctx := newFakeEngine(store)

	var ve *engine.ValidationError
	unknown := "Walk away"
	if _, err := eng.UpdateDecision(ctx, "1", domain.DecisionPatch{SelectedOption: &unknown}); !errors.As(err, &ve) || ve.Field != "selected_option" {
		t.Fatalf("expected selected_option validation error, got %v", err)
	}
	hold := "Hold"
	if _, err := eng.UpdateDecision(ctx, "1", domain.DecisionPatch{SelectedOption: &hold}); err != nil {
		t.Fatalf("select stored option: %v", err)
	}
	dropHold := []domain.Option{{Label: "Discount"}, {Label: "Walk away"}}
	if _, err := eng.UpdateDecision(ctx, "1", domain.DecisionPatch{OptionsConsidered: &dropHold}); !errors.As(err, &ve) {
		t.Fatalf("options without the stored selection must be rejected, got %v", err)
	}
	keepHold := []domain.Option{{Label: "Hold"}, {Label: "Walk away"}}
	updated, err := eng.UpdateDecision(ctx, "1", domain.DecisionPatch{OptionsConsidered: &keepHold})
	if err != nil {
		t.Fatalf("replace options: %v", err)
	}
	if updated.SelectedOption != "Hold" || len(updated.OptionsConsidered) != 2 {
		t.Fatalf("unexpected record %+v", updated)
	}
	if got := len(rec.all()); got != 2 {
		t.Fatalf("only the two accepted updates notify, got %d", got)
	}
}

func TestStoreFailureSurfacesWithoutNotification(t *testing.T) {
	boom := errors.New("disk full")
	store := newMemStore()
	store.failOn["InsertDecision"] = boom
	store.failOn["DeleteDecision"] = boom
	eng, rec, ctx := newFakeEngine(store)

	if _, err := eng.CreateDecision(ctx, engine.DecisionForm{Title: "x"}, "alice"); !errors.Is(err, boom) {
		t.Fatalf("create: expected store error, got %v", err)
	}
	if err := eng.DeleteDecision(ctx, "1"); !errors.Is(err, boom) {
		t.Fatalf("delete: expected store error, got %v", err)
	}
	if len(rec.all()) != 0 {
		t.Fatalf("no notifications expected, got %+v", rec.all())
	}
}

func TestDeleteNotifies(t *testing.T) {
	store := newMemStore()
	seedDecisions(store, "1")
	eng, rec, ctx := newFakeEngine(store)
	if err := eng.DeleteDecision(ctx, "1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	seen := rec.all()
	if len(seen) != 1 || seen[0].Kind != changes.DecisionDeleted || seen[0].DecisionIDs[0] != "1" {
		t.Fatalf("unexpected notifications %+v", seen)
	}
	if err := eng.DeleteDecision(ctx, "1"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteNamesLinkedDecisions(t *testing.T) {
	store := newMemStore()
	seedDecisions(store, "1", "2", "3")
	store.link("l1", "1", "2", domain.RelationshipSimilar)
	store.link("l2", "1", "2", domain.RelationshipRelated)
	store.link("l3", "3", "1", domain.RelationshipSupersedes)
	eng, rec, ctx := newFakeEngine(store)

	if err := eng.DeleteDecision(ctx, "1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	seen := rec.all()
	if len(seen) != 1 {
		t.Fatalf("expected one notification, got %+v", seen)
	}
	linked := seen[0].LinkedIDs
	if len(linked) != 2 || linked[0] != "2" || linked[1] != "3" {
		t.Fatalf("unexpected linked ids %v", linked)
	}
}

func TestLinkLifecycle(t *testing.T) {
	store := newMemStore()
	seedDecisions(store, "1", "2")
	eng, rec, ctx := newFakeEngine(store)

	if _, err := eng.CreateLink(ctx, engine.LinkForm{FromID: "1", ToID: "1", RelationshipType: domain.RelationshipSimilar}, "alice"); err == nil {
		t.Fatalf("self link must be rejected")
	}
	if _, err := eng.CreateLink(ctx, engine.LinkForm{FromID: "1", ToID: "2", RelationshipType: "blocks"}, "alice"); err == nil {
		t.Fatalf("unknown relationship must be rejected")
	}
	if _, err := eng.CreateLink(ctx, engine.LinkForm{FromID: "1", ToID: "9", RelationshipType: domain.RelationshipRelated}, "alice"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing endpoint, got %v", err)
	}
	score := 0.8
	link, err := eng.CreateLink(ctx, engine.LinkForm{FromID: "1", ToID: "2", RelationshipType: domain.RelationshipSupersedes, ConfidenceScore: &score}, "alice")
	if err != nil {
		t.Fatalf("create link: %v", err)
	}
	if link.CreatedBy != "alice" {
		t.Fatalf("link creator not stamped: %+v", link)
	}
	removed, err := eng.DeleteLink(ctx, link.ID)
	if err != nil || removed.ID != link.ID {
		t.Fatalf("delete link: %+v %v", removed, err)
	}
	seen := rec.all()
	if len(seen) != 2 {
		t.Fatalf("expected create and delete notifications, got %+v", seen)
	}
	for i, kind := range []changes.Kind{changes.LinkCreated, changes.LinkDeleted} {
		if seen[i].Kind != kind || len(seen[i].DecisionIDs) != 2 || seen[i].DecisionIDs[0] != "1" || seen[i].DecisionIDs[1] != "2" {
			t.Fatalf("notification %d: %+v", i, seen[i])
		}
	}
}
