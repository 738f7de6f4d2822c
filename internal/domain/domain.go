package domain

import "time"

// TimeLayout is the storage format for timestamps. Fixed width keeps values
// lexically ordered.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

// FormatTime renders t in TimeLayout after converting it to UTC.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime accepts TimeLayout and any RFC3339 timestamp.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

const (
	DefaultConfidence = 3
	MinConfidence     = 1
	MaxConfidence     = 5
)

type Option struct {
	Label       string `json:"label"`
	Description string `json:"description"`
}

type DecisionRecord struct {
	ID                   string   `json:"id"`
	Title                string   `json:"title"`
	Summary              string   `json:"summary"`
	ContextTags          []string `json:"context_tags"`
	Constraints          string   `json:"constraints"`
	OptionsConsidered    []Option `json:"options_considered"`
	SelectedOption       string   `json:"selected_option"`
	Reasoning            string   `json:"reasoning"`
	RisksAssumptions     string   `json:"risks_assumptions"`
	ConfidenceLevel      int      `json:"confidence_level" minimum:"1" maximum:"5"`
	EstimatedImpactValue *float64 `json:"estimated_impact_value,omitempty"`
	EstimatedImpactLabel string   `json:"estimated_impact_label"`
	Outcome              string   `json:"outcome"`
	IsDraft              bool     `json:"is_draft"`
	Approvers            []string `json:"approvers,omitempty"`
	OwnerID              string   `json:"owner_id"`
	CreatedAt            string   `json:"created_at" format:"date-time"`
	UpdatedAt            string   `json:"updated_at" format:"date-time"`
}

// HasTag reports whether tag is one of the record's context tags.
func (d DecisionRecord) HasTag(tag string) bool {
	for _, t := range d.ContextTags {
		if t == tag {
			return true
		}
	}
	return false
}

// DecisionPatch carries a partial update. Nil fields are left untouched.
type DecisionPatch struct {
	Title                *string
	Summary              *string
	ContextTags          *[]string
	Constraints          *string
	OptionsConsidered    *[]Option
	SelectedOption       *string
	Reasoning            *string
	RisksAssumptions     *string
	ConfidenceLevel      *int
	EstimatedImpactValue *float64
	ClearImpactValue     bool
	EstimatedImpactLabel *string
	Outcome              *string
	IsDraft              *bool
	Approvers            *[]string
}

// Empty reports whether the patch changes nothing.
func (p DecisionPatch) Empty() bool {
	return p.Title == nil && p.Summary == nil && p.ContextTags == nil && p.Constraints == nil &&
		p.OptionsConsidered == nil && p.SelectedOption == nil && p.Reasoning == nil &&
		p.RisksAssumptions == nil && p.ConfidenceLevel == nil && p.EstimatedImpactValue == nil &&
		!p.ClearImpactValue && p.EstimatedImpactLabel == nil && p.Outcome == nil &&
		p.IsDraft == nil && p.Approvers == nil
}

type RelationshipType string

const (
	RelationshipSimilar    RelationshipType = "similar"
	RelationshipSupersedes RelationshipType = "supersedes"
	RelationshipRelated    RelationshipType = "related"
)

// RelationshipTypes lists the accepted link types in display order.
var RelationshipTypes = []RelationshipType{RelationshipSimilar, RelationshipSupersedes, RelationshipRelated}

func (t RelationshipType) Valid() bool {
	switch t {
	case RelationshipSimilar, RelationshipSupersedes, RelationshipRelated:
		return true
	}
	return false
}

type Direction string

const (
	// DirectionFrom marks an entry reached through one of the decision's own outbound links.
	DirectionFrom Direction = "from"
	// DirectionTo marks an entry reached through a link pointing at the decision.
	DirectionTo Direction = "to"
)

type DecisionLink struct {
	ID               string           `json:"id"`
	FromID           string           `json:"from_decision_id"`
	ToID             string           `json:"to_decision_id"`
	RelationshipType RelationshipType `json:"relationship_type" enum:"similar,supersedes,related"`
	ConfidenceScore  *float64         `json:"confidence_score,omitempty"`
	CreatedBy        string           `json:"created_by,omitempty"`
	CreatedAt        string           `json:"created_at" format:"date-time"`
}

type LinkedDecision struct {
	ID               string           `json:"id"`
	Title            string           `json:"title"`
	Summary          string           `json:"summary"`
	RelationshipType RelationshipType `json:"relationship_type" enum:"similar,supersedes,related"`
	LinkID           string           `json:"link_id"`
	Direction        Direction        `json:"direction" enum:"from,to"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload,omitempty"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name"`
	KeyHash   string `json:"-"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
