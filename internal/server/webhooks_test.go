package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"precedent/internal/config"
	"precedent/internal/db"
	"precedent/internal/domain"
	"precedent/internal/events"
	"precedent/internal/logger"
	"precedent/internal/migrate"
	"precedent/internal/repo"
)

type delivery struct {
	header http.Header
	body   EventResponse
}

type hookReceiver struct {
	mu     sync.Mutex
	status int
	got    []delivery
}

func (h *hookReceiver) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	var evt EventResponse
	_ = json.Unmarshal(data, &evt)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.status != 0 && h.status != http.StatusOK {
		w.WriteHeader(h.status)
		return
	}
	h.got = append(h.got, delivery{header: r.Header.Clone(), body: evt})
}

func (h *hookReceiver) deliveries() []delivery {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]delivery(nil), h.got...)
}

func (h *hookReceiver) setStatus(code int) {
	h.mu.Lock()
	h.status = code
	h.mu.Unlock()
}

func newWebhookRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo.New(conn)
}

func TestWebhooksDeliverFilteredEventsAfterStartup(t *testing.T) {
	ctx := context.Background()
	r := newWebhookRepo(t)
	if _, err := r.InsertDecision(ctx, domain.DecisionRecord{Title: "before startup", ConfidenceLevel: 3, OwnerID: "alice"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	recv := &hookReceiver{}
	hookSrv := httptest.NewServer(recv)
	defer hookSrv.Close()

	d := newWebhookDispatcher(r, []config.Webhook{{URL: hookSrv.URL, Events: []string{events.DecisionCreated}, Secret: "s3cret"}}, logger.Nop())
	d.dispatchAll(ctx)
	if n := len(recv.deliveries()); n != 0 {
		t.Fatalf("events before startup must not be delivered, got %d", n)
	}

	created, err := r.InsertDecision(ctx, domain.DecisionRecord{Title: "after startup", ConfidenceLevel: 3, OwnerID: "alice"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	title := "renamed"
	if _, err := r.UpdateDecision(ctx, created.ID, domain.DecisionPatch{Title: &title}); err != nil {
		t.Fatalf("update: %v", err)
	}
	d.dispatchAll(ctx)

	got := recv.deliveries()
	if len(got) != 1 {
		t.Fatalf("expected one delivery, got %d", len(got))
	}
	if got[0].header.Get("X-Precedent-Event") != events.DecisionCreated || got[0].header.Get("X-Precedent-Secret") != "s3cret" {
		t.Fatalf("unexpected headers %v", got[0].header)
	}
	if got[0].body.EntityID != created.ID || got[0].body.EntityKind != events.KindDecision {
		t.Fatalf("unexpected body %+v", got[0].body)
	}

	d.dispatchAll(ctx)
	if n := len(recv.deliveries()); n != 1 {
		t.Fatalf("delivered events must not repeat, got %d", n)
	}
}

func TestWebhooksRetryFailedDelivery(t *testing.T) {
	ctx := context.Background()
	r := newWebhookRepo(t)
	recv := &hookReceiver{status: http.StatusServiceUnavailable}
	hookSrv := httptest.NewServer(recv)
	defer hookSrv.Close()

	d := newWebhookDispatcher(r, []config.Webhook{{URL: hookSrv.URL}}, logger.Nop())
	d.dispatchAll(ctx)

	created, err := r.InsertDecision(ctx, domain.DecisionRecord{Title: "retry me", ConfidenceLevel: 3, OwnerID: "alice"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	d.dispatchAll(ctx)
	if n := len(recv.deliveries()); n != 0 {
		t.Fatalf("failed delivery must not be recorded, got %d", n)
	}

	recv.setStatus(http.StatusOK)
	d.dispatchAll(ctx)
	got := recv.deliveries()
	if len(got) != 1 || got[0].body.EntityID != created.ID {
		t.Fatalf("expected the failed event to be redelivered, got %+v", got)
	}
	if got[0].header.Get("X-Precedent-Secret") != "" {
		t.Fatalf("secret header must be absent without a secret")
	}
}

func TestEventFilter(t *testing.T) {
	all := newEventFilter([]string{" ", ""})
	if !all.match(events.LinkDeleted) {
		t.Fatalf("blank filter must match everything")
	}
	only := newEventFilter([]string{events.LinkCreated})
	if !only.match(events.LinkCreated) || only.match(events.LinkDeleted) {
		t.Fatalf("unexpected filter behaviour")
	}
}
