package server

import (
	"encoding/json"
	"strconv"

	"precedent/internal/config"
	"precedent/internal/domain"
	"precedent/internal/engine"
)

// Request payloads

type OptionRequest struct {
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

type CreateDecisionRequest struct {
	Title                string          `json:"title"`
	Summary              string          `json:"summary,omitempty"`
	ContextTags          []string        `json:"context_tags,omitempty"`
	Constraints          string          `json:"constraints,omitempty"`
	OptionsConsidered    []OptionRequest `json:"options_considered,omitempty"`
	SelectedOption       string          `json:"selected_option,omitempty"`
	Reasoning            string          `json:"reasoning,omitempty"`
	RisksAssumptions     string          `json:"risks_assumptions,omitempty"`
	ConfidenceLevel      int             `json:"confidence_level,omitempty" minimum:"0" maximum:"5"`
	EstimatedImpactValue *float64        `json:"estimated_impact_value,omitempty"`
	EstimatedImpactLabel string          `json:"estimated_impact_label,omitempty"`
	Outcome              string          `json:"outcome,omitempty"`
	IsDraft              bool            `json:"is_draft,omitempty"`
	Approvers            []string        `json:"approvers,omitempty"`
}

// UpdateDecisionRequest carries only the fields to change. Sending
// estimated_impact_value as null clears it.
type UpdateDecisionRequest struct {
	Title                *string          `json:"title,omitempty"`
	Summary              *string          `json:"summary,omitempty"`
	ContextTags          *[]string        `json:"context_tags,omitempty"`
	Constraints          *string          `json:"constraints,omitempty"`
	OptionsConsidered    *[]OptionRequest `json:"options_considered,omitempty"`
	SelectedOption       *string          `json:"selected_option,omitempty"`
	Reasoning            *string          `json:"reasoning,omitempty"`
	RisksAssumptions     *string          `json:"risks_assumptions,omitempty"`
	ConfidenceLevel      *int             `json:"confidence_level,omitempty" minimum:"1" maximum:"5"`
	EstimatedImpactValue *float64         `json:"estimated_impact_value,omitempty" nullable:"true"`
	EstimatedImpactLabel *string          `json:"estimated_impact_label,omitempty"`
	Outcome              *string          `json:"outcome,omitempty"`
	IsDraft              *bool            `json:"is_draft,omitempty"`
	Approvers            *[]string        `json:"approvers,omitempty"`
}

type CreateLinkRequest struct {
	FromDecisionID   string   `json:"from_decision_id"`
	ToDecisionID     string   `json:"to_decision_id"`
	RelationshipType string   `json:"relationship_type" enum:"similar,supersedes,related"`
	ConfidenceScore  *float64 `json:"confidence_score,omitempty" minimum:"0" maximum:"1"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
}

// Response payloads

type DecisionListResponse struct {
	Items []domain.DecisionRecord `json:"items"`
	Count int                     `json:"count"`
}

type RelatedDecisionResponse struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	Summary          string `json:"summary"`
	RelationshipType string `json:"relationship_type" enum:"similar,supersedes,related"`
	RelationLabel    string `json:"relationship_label"`
	LinkID           string `json:"link_id"`
	Direction        string `json:"direction" enum:"from,to"`
}

type RelatedResponse struct {
	Items []RelatedDecisionResponse `json:"items"`
}

type LinksResponse struct {
	Outbound []domain.DecisionLink `json:"outbound"`
	Inbound  []domain.DecisionLink `json:"inbound"`
}

type TagGroupResponse struct {
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

type LabelResponse struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

type VocabularyResponse struct {
	TypeLabel         string             `json:"type_label"`
	TagGroups         []TagGroupResponse `json:"tag_groups"`
	ConfidenceLevels  []LabelResponse    `json:"confidence_levels"`
	RelationshipTypes []LabelResponse    `json:"relationship_types"`
	SortModes         []string           `json:"sort_modes"`
}

type EventResponse struct {
	ID         int64           `json:"id"`
	TS         string          `json:"ts" format:"date-time"`
	Type       string          `json:"type"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	Payload    json.RawMessage `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type WhoAmIResponse struct {
	ActorID string `json:"actor_id"`
	Source  string `json:"source"`
}

type DevLoginResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

// Mappers

func decisionForm(req CreateDecisionRequest) engine.DecisionForm {
	return engine.DecisionForm{
		Title:                req.Title,
		Summary:              req.Summary,
		ContextTags:          req.ContextTags,
		Constraints:          req.Constraints,
		OptionsConsidered:    options(req.OptionsConsidered),
		SelectedOption:       req.SelectedOption,
		Reasoning:            req.Reasoning,
		RisksAssumptions:     req.RisksAssumptions,
		ConfidenceLevel:      req.ConfidenceLevel,
		EstimatedImpactValue: req.EstimatedImpactValue,
		EstimatedImpactLabel: req.EstimatedImpactLabel,
		Outcome:              req.Outcome,
		IsDraft:              req.IsDraft,
		Approvers:            req.Approvers,
	}
}

func decisionPatch(req UpdateDecisionRequest, clearImpact bool) domain.DecisionPatch {
	p := domain.DecisionPatch{
		Title:                req.Title,
		Summary:              req.Summary,
		ContextTags:          req.ContextTags,
		Constraints:          req.Constraints,
		SelectedOption:       req.SelectedOption,
		Reasoning:            req.Reasoning,
		RisksAssumptions:     req.RisksAssumptions,
		ConfidenceLevel:      req.ConfidenceLevel,
		EstimatedImpactValue: req.EstimatedImpactValue,
		ClearImpactValue:     clearImpact && req.EstimatedImpactValue == nil,
		EstimatedImpactLabel: req.EstimatedImpactLabel,
		Outcome:              req.Outcome,
		IsDraft:              req.IsDraft,
		Approvers:            req.Approvers,
	}
	if req.OptionsConsidered != nil {
		opts := options(*req.OptionsConsidered)
		p.OptionsConsidered = &opts
	}
	return p
}

func options(in []OptionRequest) []domain.Option {
	out := make([]domain.Option, 0, len(in))
	for _, o := range in {
		out = append(out, domain.Option{Label: o.Label, Description: o.Description})
	}
	return out
}

func relatedResponse(items []domain.LinkedDecision, cfg *config.Config) RelatedResponse {
	res := RelatedResponse{Items: make([]RelatedDecisionResponse, 0, len(items))}
	for _, it := range items {
		label := string(it.RelationshipType)
		if cfg != nil {
			label = cfg.RelationshipLabel(label)
		}
		res.Items = append(res.Items, RelatedDecisionResponse{
			ID:               it.ID,
			Title:            it.Title,
			Summary:          it.Summary,
			RelationshipType: string(it.RelationshipType),
			RelationLabel:    label,
			LinkID:           it.LinkID,
			Direction:        string(it.Direction),
		})
	}
	return res
}

func vocabularyResponse(cfg *config.Config) VocabularyResponse {
	res := VocabularyResponse{
		TypeLabel:         cfg.Decisions.TypeLabel,
		TagGroups:         []TagGroupResponse{},
		ConfidenceLevels:  []LabelResponse{},
		RelationshipTypes: []LabelResponse{},
		SortModes:         []string{string(engine.SortRecent), string(engine.SortConfidence), string(engine.SortImpact)},
	}
	for _, g := range cfg.Decisions.ContextTags {
		res.TagGroups = append(res.TagGroups, TagGroupResponse{Name: g.Name, Tags: nonNilSlice(g.Tags)})
	}
	for level := domain.MinConfidence; level <= domain.MaxConfidence; level++ {
		res.ConfidenceLevels = append(res.ConfidenceLevels, LabelResponse{
			Value: strconv.Itoa(level),
			Label: cfg.ConfidenceLabel(level),
		})
	}
	for _, t := range domain.RelationshipTypes {
		res.RelationshipTypes = append(res.RelationshipTypes, LabelResponse{
			Value: string(t),
			Label: cfg.RelationshipLabel(string(t)),
		})
	}
	return res
}

func eventResponse(evt domain.Event) EventResponse {
	payload := json.RawMessage("{}")
	if evt.Payload != "" && json.Valid([]byte(evt.Payload)) {
		payload = json.RawMessage(evt.Payload)
	}
	return EventResponse{
		ID:         evt.ID,
		TS:         evt.TS,
		Type:       evt.Type,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		Payload:    payload,
	}
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
