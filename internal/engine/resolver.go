package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"precedent/internal/domain"
	"precedent/internal/repo"
)

// MaxRelated bounds ResolveRelated results.
const MaxRelated = 5

type linkEdge struct {
	link        domain.DecisionLink
	counterpart string
	direction   domain.Direction
}

// ResolveRelated returns the decisions linked to id in either direction.
// Outbound links come first, then inbound, each in store order. A counterpart
// reached twice keeps its first entry, counterparts that no longer exist are
// skipped, and at most MaxRelated entries are returned.
func (e Engine) ResolveRelated(ctx context.Context, id string) ([]domain.LinkedDecision, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return []domain.LinkedDecision{}, nil
	}
	var outbound, inbound []domain.DecisionLink
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		links, err := e.Links.LinksFrom(gctx, id)
		if err != nil {
			return fmt.Errorf("outbound links of %s: %w", id, err)
		}
		outbound = links
		return nil
	})
	g.Go(func() error {
		links, err := e.Links.LinksTo(gctx, id)
		if err != nil {
			return fmt.Errorf("inbound links of %s: %w", id, err)
		}
		inbound = links
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	edges := make([]linkEdge, 0, len(outbound)+len(inbound))
	for _, l := range outbound {
		edges = append(edges, linkEdge{link: l, counterpart: l.ToID, direction: domain.DirectionFrom})
	}
	for _, l := range inbound {
		edges = append(edges, linkEdge{link: l, counterpart: l.FromID, direction: domain.DirectionTo})
	}

	res := make([]domain.LinkedDecision, 0, MaxRelated)
	seen := make(map[string]struct{}, len(edges))
	for _, edge := range edges {
		if len(res) == MaxRelated {
			break
		}
		if _, dup := seen[edge.counterpart]; dup {
			continue
		}
		seen[edge.counterpart] = struct{}{}
		rec, err := e.Decisions.GetDecision(ctx, edge.counterpart)
		if errors.Is(err, repo.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", edge.counterpart, err)
		}
		res = append(res, domain.LinkedDecision{
			ID:               rec.ID,
			Title:            rec.Title,
			Summary:          rec.Summary,
			RelationshipType: edge.link.RelationshipType,
			LinkID:           edge.link.ID,
			Direction:        edge.direction,
		})
	}
	return res, nil
}

// Related is ResolveRelated for the signed-in actor. Without one there is nothing to show.
func (e Engine) Related(ctx context.Context, id string) ([]domain.LinkedDecision, error) {
	if _, ok := e.actor(ctx); !ok {
		return []domain.LinkedDecision{}, nil
	}
	return e.ResolveRelated(ctx, id)
}

// DecisionLinks lists the raw outbound and inbound links of id, dangling ones
// included. Without a signed-in actor both are empty.
func (e Engine) DecisionLinks(ctx context.Context, id string) ([]domain.DecisionLink, []domain.DecisionLink, error) {
	if _, ok := e.actor(ctx); !ok || strings.TrimSpace(id) == "" {
		return []domain.DecisionLink{}, []domain.DecisionLink{}, nil
	}
	out, err := e.Links.LinksFrom(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("links from %s: %w", id, err)
	}
	in, err := e.Links.LinksTo(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("links to %s: %w", id, err)
	}
	return out, in, nil
}
