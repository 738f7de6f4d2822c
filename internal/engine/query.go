package engine

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"precedent/internal/domain"
	"precedent/internal/repo"
)

type SortMode string

const (
	SortRecent     SortMode = "recent"
	SortConfidence SortMode = "confidence"
	SortImpact     SortMode = "impact"
)

// FilterAll disables the tag or confidence filter.
const FilterAll = "all"

func ParseSortMode(s string) (SortMode, error) {
	switch SortMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", SortRecent:
		return SortRecent, nil
	case SortConfidence:
		return SortConfidence, nil
	case SortImpact:
		return SortImpact, nil
	}
	return "", invalid("sort", "must be recent, confidence or impact, got %q", s)
}

// QuerySpec narrows and orders a decision collection. Empty Tag and Confidence
// behave like FilterAll.
type QuerySpec struct {
	SearchTerm string
	Tag        string
	Confidence string
	Sort       SortMode
}

func (q QuerySpec) matches(d domain.DecisionRecord, term string) bool {
	if term != "" && !matchesTerm(d, term) {
		return false
	}
	if q.Tag != "" && q.Tag != FilterAll && !d.HasTag(q.Tag) {
		return false
	}
	if q.Confidence != "" && q.Confidence != FilterAll && strconv.Itoa(d.ConfidenceLevel) != q.Confidence {
		return false
	}
	return true
}

func matchesTerm(d domain.DecisionRecord, term string) bool {
	for _, field := range []string{d.Title, d.Summary, d.Reasoning, d.SelectedOption} {
		if field != "" && strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}

func confidenceKey(d domain.DecisionRecord) int {
	if d.ConfidenceLevel == 0 {
		return domain.DefaultConfidence
	}
	return d.ConfidenceLevel
}

func impactKey(d domain.DecisionRecord) float64 {
	if d.EstimatedImpactValue == nil {
		return 0
	}
	return *d.EstimatedImpactValue
}

func createdKey(d domain.DecisionRecord) time.Time {
	t, err := domain.ParseTime(d.CreatedAt)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Query filters all by spec and returns a newly allocated, stably sorted slice.
// The input is never modified.
func Query(all []domain.DecisionRecord, spec QuerySpec) []domain.DecisionRecord {
	term := strings.ToLower(strings.TrimSpace(spec.SearchTerm))
	out := make([]domain.DecisionRecord, 0, len(all))
	for _, d := range all {
		if spec.matches(d, term) {
			out = append(out, d)
		}
	}

	switch spec.Sort {
	case SortConfidence:
		sort.SliceStable(out, func(i, j int) bool { return confidenceKey(out[i]) > confidenceKey(out[j]) })
	case SortImpact:
		sort.SliceStable(out, func(i, j int) bool { return impactKey(out[i]) > impactKey(out[j]) })
	default:
		type keyed struct {
			d  domain.DecisionRecord
			at time.Time
		}
		ks := make([]keyed, len(out))
		for i, d := range out {
			ks[i] = keyed{d: d, at: createdKey(d)}
		}
		sort.SliceStable(ks, func(i, j int) bool { return ks[i].at.After(ks[j].at) })
		for i := range ks {
			out[i] = ks[i].d
		}
	}
	return out
}

// ListDecisions loads the collection and applies spec. Without a signed-in
// actor the result is empty.
func (e Engine) ListDecisions(ctx context.Context, spec QuerySpec) ([]domain.DecisionRecord, error) {
	if _, ok := e.actor(ctx); !ok {
		return []domain.DecisionRecord{}, nil
	}
	all, err := e.Decisions.ListDecisions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	return Query(all, spec), nil
}

// GetDecision returns one record. Without a signed-in actor it reports not found.
func (e Engine) GetDecision(ctx context.Context, id string) (domain.DecisionRecord, error) {
	if _, ok := e.actor(ctx); !ok {
		return domain.DecisionRecord{}, repo.ErrNotFound
	}
	return e.Decisions.GetDecision(ctx, id)
}
