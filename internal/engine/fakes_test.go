package engine_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"precedent/internal/changes"
	"precedent/internal/config"
	"precedent/internal/domain"
	"precedent/internal/engine"
	"precedent/internal/repo"
	"precedent/internal/session"
)

// memStore is an in-memory DecisionStore and LinkStore that records every call.
type memStore struct {
	mu        sync.Mutex
	decisions map[string]domain.DecisionRecord
	links     []domain.DecisionLink
	calls     []string
	seq       int
	failOn    map[string]error
}

func newMemStore() *memStore {
	return &memStore{decisions: map[string]domain.DecisionRecord{}, failOn: map[string]error{}}
}

func (m *memStore) record(call string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
	return m.failOn[call]
}

func (m *memStore) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *memStore) put(d domain.DecisionRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions[d.ID] = d
}

func (m *memStore) link(id, from, to string, t domain.RelationshipType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links = append(m.links, domain.DecisionLink{ID: id, FromID: from, ToID: to, RelationshipType: t})
}

func (m *memStore) ListDecisions(ctx context.Context) ([]domain.DecisionRecord, error) {
	if err := m.record("ListDecisions"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.DecisionRecord
	for _, d := range m.decisions {
		out = append(out, d)
	}
	return out, nil
}

func (m *memStore) GetDecision(ctx context.Context, id string) (domain.DecisionRecord, error) {
	if err := m.record("GetDecision"); err != nil {
		return domain.DecisionRecord{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.decisions[id]
	if !ok {
		return domain.DecisionRecord{}, repo.ErrNotFound
	}
	return d, nil
}

func (m *memStore) InsertDecision(ctx context.Context, d domain.DecisionRecord) (domain.DecisionRecord, error) {
	if err := m.record("InsertDecision"); err != nil {
		return domain.DecisionRecord{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	d.ID = fmt.Sprintf("d%d", m.seq)
	d.CreatedAt = domain.FormatTime(time.Date(2024, 1, 1, 0, 0, m.seq, 0, time.UTC))
	d.UpdatedAt = d.CreatedAt
	m.decisions[d.ID] = d
	return d, nil
}

func (m *memStore) UpdateDecision(ctx context.Context, id string, p domain.DecisionPatch) (domain.DecisionRecord, error) {
	if err := m.record("UpdateDecision"); err != nil {
		return domain.DecisionRecord{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.decisions[id]
	if !ok {
		return domain.DecisionRecord{}, repo.ErrNotFound
	}
	if p.Title != nil {
		d.Title = *p.Title
	}
	if p.Summary != nil {
		d.Summary = *p.Summary
	}
	if p.ConfidenceLevel != nil {
		d.ConfidenceLevel = *p.ConfidenceLevel
	}
	if p.Outcome != nil {
		d.Outcome = *p.Outcome
	}
	if p.ContextTags != nil {
		d.ContextTags = *p.ContextTags
	}
	if p.OptionsConsidered != nil {
		d.OptionsConsidered = *p.OptionsConsidered
	}
	if p.SelectedOption != nil {
		d.SelectedOption = *p.SelectedOption
	}
	m.decisions[id] = d
	return d, nil
}

func (m *memStore) DeleteDecision(ctx context.Context, id string) error {
	if err := m.record("DeleteDecision"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.decisions[id]; !ok {
		return repo.ErrNotFound
	}
	delete(m.decisions, id)
	return nil
}

func (m *memStore) LinksFrom(ctx context.Context, id string) ([]domain.DecisionLink, error) {
	if err := m.record("LinksFrom"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.DecisionLink
	for _, l := range m.links {
		if l.FromID == id {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memStore) LinksTo(ctx context.Context, id string) ([]domain.DecisionLink, error) {
	if err := m.record("LinksTo"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.DecisionLink
	for _, l := range m.links {
		if l.ToID == id {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memStore) InsertLink(ctx context.Context, l domain.DecisionLink) (domain.DecisionLink, error) {
	if err := m.record("InsertLink"); err != nil {
		return domain.DecisionLink{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	l.ID = fmt.Sprintf("l%d", m.seq)
	m.links = append(m.links, l)
	return l, nil
}

func (m *memStore) DeleteLink(ctx context.Context, id string) (domain.DecisionLink, error) {
	if err := m.record("DeleteLink"); err != nil {
		return domain.DecisionLink{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, l := range m.links {
		if l.ID == id {
			m.links = append(m.links[:i], m.links[i+1:]...)
			return l, nil
		}
	}
	return domain.DecisionLink{}, repo.ErrNotFound
}

type recorder struct {
	mu   sync.Mutex
	seen []changes.Notification
}

func (r *recorder) handle(n changes.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, n)
}

func (r *recorder) all() []changes.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]changes.Notification(nil), r.seen...)
}

func newFakeEngine(store *memStore) (engine.Engine, *recorder, context.Context) {
	eng := engine.New(store, store, config.Default())
	eng.Now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	bus := changes.NewLocal()
	rec := &recorder{}
	bus.Subscribe(rec.handle)
	eng.Changes = bus
	return eng, rec, session.WithActor(context.Background(), "alice")
}
