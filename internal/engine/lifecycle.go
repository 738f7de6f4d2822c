package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"precedent/internal/changes"
	"precedent/internal/domain"
	"precedent/internal/repo"
)

// DecisionForm is the full input for a new decision. A zero ConfidenceLevel means unset.
type DecisionForm struct {
	Title                string
	Summary              string
	ContextTags          []string
	Constraints          string
	OptionsConsidered    []domain.Option
	SelectedOption       string
	Reasoning            string
	RisksAssumptions     string
	ConfidenceLevel      int
	EstimatedImpactValue *float64
	EstimatedImpactLabel string
	Outcome              string
	IsDraft              bool
	Approvers            []string
}

type LinkForm struct {
	FromID           string
	ToID             string
	RelationshipType domain.RelationshipType
	ConfidenceScore  *float64
}

func validTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", invalid("title", "title is required")
	}
	return title, nil
}

func validConfidence(level int) error {
	if level < domain.MinConfidence || level > domain.MaxConfidence {
		return invalid("confidence_level", "must be between %d and %d, got %d", domain.MinConfidence, domain.MaxConfidence, level)
	}
	return nil
}

func validImpact(v *float64) error {
	if v == nil {
		return nil
	}
	if math.IsNaN(*v) || math.IsInf(*v, 0) || *v < 0 {
		return invalid("estimated_impact_value", "must be a non-negative number")
	}
	return nil
}

// normalizeTags trims, drops duplicates and checks tags against the vocabulary.
func (e Engine) normalizeTags(tags []string) ([]string, error) {
	out := make([]string, 0, len(tags))
	seen := map[string]struct{}{}
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		if e.Config != nil && !e.Config.KnownTag(t) {
			return nil, invalid("context_tags", "unknown tag %q", t)
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out, nil
}

func normalizeOptions(opts []domain.Option) ([]domain.Option, error) {
	out := make([]domain.Option, 0, len(opts))
	for i, o := range opts {
		o.Label = strings.TrimSpace(o.Label)
		o.Description = strings.TrimSpace(o.Description)
		if o.Label == "" {
			if o.Description == "" {
				continue
			}
			return nil, invalid("options_considered", "option %d has a description but no label", i+1)
		}
		out = append(out, o)
	}
	return out, nil
}

func checkSelection(selected string, opts []domain.Option) error {
	if selected == "" || len(opts) == 0 {
		return nil
	}
	for _, o := range opts {
		if o.Label == selected {
			return nil
		}
	}
	return invalid("selected_option", "%q is not one of the options considered", selected)
}

// CreateDecision validates form, stamps actorID as owner and stores the record.
// Invalid input never reaches the store.
func (e Engine) CreateDecision(ctx context.Context, form DecisionForm, actorID string) (domain.DecisionRecord, error) {
	ctx, actorID, err := e.requireActor(ctx, actorID)
	if err != nil {
		return domain.DecisionRecord{}, err
	}
	title, err := validTitle(form.Title)
	if err != nil {
		return domain.DecisionRecord{}, err
	}
	if form.ConfidenceLevel == 0 {
		form.ConfidenceLevel = domain.DefaultConfidence
	}
	if err := validConfidence(form.ConfidenceLevel); err != nil {
		return domain.DecisionRecord{}, err
	}
	if err := validImpact(form.EstimatedImpactValue); err != nil {
		return domain.DecisionRecord{}, err
	}
	tags, err := e.normalizeTags(form.ContextTags)
	if err != nil {
		return domain.DecisionRecord{}, err
	}
	opts, err := normalizeOptions(form.OptionsConsidered)
	if err != nil {
		return domain.DecisionRecord{}, err
	}
	selected := strings.TrimSpace(form.SelectedOption)
	if err := checkSelection(selected, opts); err != nil {
		return domain.DecisionRecord{}, err
	}

	rec := domain.DecisionRecord{
		Title:                title,
		Summary:              strings.TrimSpace(form.Summary),
		ContextTags:          tags,
		Constraints:          strings.TrimSpace(form.Constraints),
		OptionsConsidered:    opts,
		SelectedOption:       selected,
		Reasoning:            strings.TrimSpace(form.Reasoning),
		RisksAssumptions:     strings.TrimSpace(form.RisksAssumptions),
		ConfidenceLevel:      form.ConfidenceLevel,
		EstimatedImpactValue: form.EstimatedImpactValue,
		EstimatedImpactLabel: strings.TrimSpace(form.EstimatedImpactLabel),
		Outcome:              strings.TrimSpace(form.Outcome),
		IsDraft:              form.IsDraft,
		Approvers:            form.Approvers,
		OwnerID:              actorID,
	}
	created, err := e.Decisions.InsertDecision(ctx, rec)
	if err != nil {
		return domain.DecisionRecord{}, fmt.Errorf("create decision: %w", err)
	}
	e.log().Info("decision created", "decision_id", created.ID, "actor_id", actorID, "draft", created.IsDraft)
	e.publish(ctx, changes.Notification{Kind: changes.DecisionCreated, DecisionIDs: []string{created.ID}, ActorID: actorID})
	return created, nil
}

func (e Engine) validatePatch(p *domain.DecisionPatch) error {
	if p.Title != nil {
		title, err := validTitle(*p.Title)
		if err != nil {
			return err
		}
		p.Title = &title
	}
	if p.ConfidenceLevel != nil {
		if err := validConfidence(*p.ConfidenceLevel); err != nil {
			return err
		}
	}
	if err := validImpact(p.EstimatedImpactValue); err != nil {
		return err
	}
	if p.ContextTags != nil {
		tags, err := e.normalizeTags(*p.ContextTags)
		if err != nil {
			return err
		}
		p.ContextTags = &tags
	}
	if p.OptionsConsidered != nil {
		opts, err := normalizeOptions(*p.OptionsConsidered)
		if err != nil {
			return err
		}
		p.OptionsConsidered = &opts
	}
	if p.SelectedOption != nil {
		selected := strings.TrimSpace(*p.SelectedOption)
		p.SelectedOption = &selected
		if p.OptionsConsidered != nil {
			if err := checkSelection(selected, *p.OptionsConsidered); err != nil {
				return err
			}
		}
	}
	for _, f := range []**string{&p.Summary, &p.Constraints, &p.Reasoning, &p.RisksAssumptions, &p.EstimatedImpactLabel, &p.Outcome} {
		if *f != nil {
			v := strings.TrimSpace(**f)
			*f = &v
		}
	}
	return nil
}

// UpdateDecision applies the supplied fields only. The store refreshes updated_at.
func (e Engine) UpdateDecision(ctx context.Context, id string, patch domain.DecisionPatch) (domain.DecisionRecord, error) {
	ctx, actorID, err := e.requireActor(ctx, "")
	if err != nil {
		return domain.DecisionRecord{}, err
	}
	if strings.TrimSpace(id) == "" {
		return domain.DecisionRecord{}, invalid("id", "decision id is required")
	}
	if err := e.validatePatch(&patch); err != nil {
		return domain.DecisionRecord{}, err
	}
	if (patch.SelectedOption == nil) != (patch.OptionsConsidered == nil) {
		if err := e.checkStoredSelection(ctx, id, patch); err != nil {
			return domain.DecisionRecord{}, err
		}
	}
	updated, err := e.Decisions.UpdateDecision(ctx, id, patch)
	if err != nil {
		return domain.DecisionRecord{}, fmt.Errorf("update decision %s: %w", id, err)
	}
	e.log().Info("decision updated", "decision_id", id, "actor_id", actorID)
	e.publish(ctx, changes.Notification{Kind: changes.DecisionUpdated, DecisionIDs: []string{id}, ActorID: actorID})
	return updated, nil
}

// checkStoredSelection validates a patch that changes only one side of the
// selected option / options pair against the stored other side.
func (e Engine) checkStoredSelection(ctx context.Context, id string, patch domain.DecisionPatch) error {
	current, err := e.Decisions.GetDecision(ctx, id)
	if err != nil {
		return fmt.Errorf("update decision %s: %w", id, err)
	}
	selected, opts := current.SelectedOption, current.OptionsConsidered
	if patch.SelectedOption != nil {
		selected = *patch.SelectedOption
	}
	if patch.OptionsConsidered != nil {
		opts = *patch.OptionsConsidered
	}
	return checkSelection(selected, opts)
}

// DeleteDecision removes a record. Link cleanup belongs to the store.
func (e Engine) DeleteDecision(ctx context.Context, id string) error {
	ctx, actorID, err := e.requireActor(ctx, "")
	if err != nil {
		return err
	}
	if strings.TrimSpace(id) == "" {
		return invalid("id", "decision id is required")
	}
	neighbours := e.neighbours(ctx, id)
	if err := e.Decisions.DeleteDecision(ctx, id); err != nil {
		return fmt.Errorf("delete decision %s: %w", id, err)
	}
	e.log().Info("decision deleted", "decision_id", id, "actor_id", actorID, "linked", len(neighbours))
	e.publish(ctx, changes.Notification{Kind: changes.DecisionDeleted, DecisionIDs: []string{id}, LinkedIDs: neighbours, ActorID: actorID})
	return nil
}

// neighbours lists the other endpoints of id's links. The store drops those
// links with the decision, so their link lists go stale.
func (e Engine) neighbours(ctx context.Context, id string) []string {
	out, err := e.Links.LinksFrom(ctx, id)
	if err != nil {
		e.log().Warn("neighbour lookup failed", "decision_id", id, "error", err)
		return nil
	}
	in, err := e.Links.LinksTo(ctx, id)
	if err != nil {
		e.log().Warn("neighbour lookup failed", "decision_id", id, "error", err)
		return nil
	}
	seen := map[string]struct{}{}
	var ids []string
	for _, l := range out {
		if _, ok := seen[l.ToID]; !ok {
			seen[l.ToID] = struct{}{}
			ids = append(ids, l.ToID)
		}
	}
	for _, l := range in {
		if _, ok := seen[l.FromID]; !ok {
			seen[l.FromID] = struct{}{}
			ids = append(ids, l.FromID)
		}
	}
	return ids
}

// CreateLink records a directed relationship between two existing decisions.
func (e Engine) CreateLink(ctx context.Context, form LinkForm, actorID string) (domain.DecisionLink, error) {
	ctx, actorID, err := e.requireActor(ctx, actorID)
	if err != nil {
		return domain.DecisionLink{}, err
	}
	from, to := strings.TrimSpace(form.FromID), strings.TrimSpace(form.ToID)
	if from == "" || to == "" {
		return domain.DecisionLink{}, invalid("decision_id", "both decision ids are required")
	}
	if from == to {
		return domain.DecisionLink{}, invalid("to_decision_id", "a decision cannot link to itself")
	}
	if !form.RelationshipType.Valid() {
		return domain.DecisionLink{}, invalid("relationship_type", "must be similar, supersedes or related, got %q", form.RelationshipType)
	}
	if s := form.ConfidenceScore; s != nil && (math.IsNaN(*s) || *s < 0 || *s > 1) {
		return domain.DecisionLink{}, invalid("confidence_score", "must be between 0 and 1")
	}
	for _, endpoint := range []string{from, to} {
		if _, err := e.Decisions.GetDecision(ctx, endpoint); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return domain.DecisionLink{}, fmt.Errorf("decision %s: %w", endpoint, repo.ErrNotFound)
			}
			return domain.DecisionLink{}, err
		}
	}
	link, err := e.Links.InsertLink(ctx, domain.DecisionLink{
		FromID:           from,
		ToID:             to,
		RelationshipType: form.RelationshipType,
		ConfidenceScore:  form.ConfidenceScore,
		CreatedBy:        actorID,
	})
	if err != nil {
		return domain.DecisionLink{}, fmt.Errorf("create link: %w", err)
	}
	e.log().Info("link created", "link_id", link.ID, "from", from, "to", to, "type", link.RelationshipType)
	e.publish(ctx, changes.Notification{Kind: changes.LinkCreated, DecisionIDs: []string{from, to}, LinkID: link.ID, ActorID: actorID})
	return link, nil
}

// DeleteLink removes a link and returns it.
func (e Engine) DeleteLink(ctx context.Context, linkID string) (domain.DecisionLink, error) {
	ctx, actorID, err := e.requireActor(ctx, "")
	if err != nil {
		return domain.DecisionLink{}, err
	}
	if strings.TrimSpace(linkID) == "" {
		return domain.DecisionLink{}, invalid("link_id", "link id is required")
	}
	link, err := e.Links.DeleteLink(ctx, linkID)
	if err != nil {
		return domain.DecisionLink{}, fmt.Errorf("delete link %s: %w", linkID, err)
	}
	e.log().Info("link deleted", "link_id", linkID, "actor_id", actorID)
	e.publish(ctx, changes.Notification{Kind: changes.LinkDeleted, DecisionIDs: []string{link.FromID, link.ToID}, LinkID: linkID, ActorID: actorID})
	return link, nil
}
