package precedentsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal Precedent HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v1",
		Timeout:  10 * time.Second,
	}
}

type Option struct {
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

// Decision represents the API decision record.
type Decision struct {
	ID                   string   `json:"id"`
	Title                string   `json:"title"`
	Summary              string   `json:"summary"`
	ContextTags          []string `json:"context_tags"`
	Constraints          string   `json:"constraints"`
	OptionsConsidered    []Option `json:"options_considered"`
	SelectedOption       string   `json:"selected_option"`
	Reasoning            string   `json:"reasoning"`
	RisksAssumptions     string   `json:"risks_assumptions"`
	ConfidenceLevel      int      `json:"confidence_level"`
	EstimatedImpactValue *float64 `json:"estimated_impact_value,omitempty"`
	EstimatedImpactLabel string   `json:"estimated_impact_label"`
	Outcome              string   `json:"outcome"`
	IsDraft              bool     `json:"is_draft"`
	Approvers            []string `json:"approvers,omitempty"`
	OwnerID              string   `json:"owner_id"`
	CreatedAt            string   `json:"created_at"`
	UpdatedAt            string   `json:"updated_at"`
}

// DecisionInput is the create payload. A zero ConfidenceLevel lets the server default it.
type DecisionInput struct {
	Title                string   `json:"title"`
	Summary              string   `json:"summary,omitempty"`
	ContextTags          []string `json:"context_tags,omitempty"`
	Constraints          string   `json:"constraints,omitempty"`
	OptionsConsidered    []Option `json:"options_considered,omitempty"`
	SelectedOption       string   `json:"selected_option,omitempty"`
	Reasoning            string   `json:"reasoning,omitempty"`
	RisksAssumptions     string   `json:"risks_assumptions,omitempty"`
	ConfidenceLevel      int      `json:"confidence_level,omitempty"`
	EstimatedImpactValue *float64 `json:"estimated_impact_value,omitempty"`
	EstimatedImpactLabel string   `json:"estimated_impact_label,omitempty"`
	Outcome              string   `json:"outcome,omitempty"`
	IsDraft              bool     `json:"is_draft,omitempty"`
	Approvers            []string `json:"approvers,omitempty"`
}

// ListOptions narrows ListDecisions. Empty fields are not sent.
type ListOptions struct {
	Query      string
	Tag        string
	Confidence string
	Sort       string
}

type DecisionList struct {
	Items []Decision `json:"items"`
	Count int        `json:"count"`
}

type Link struct {
	ID               string   `json:"id"`
	FromDecisionID   string   `json:"from_decision_id"`
	ToDecisionID     string   `json:"to_decision_id"`
	RelationshipType string   `json:"relationship_type"`
	ConfidenceScore  *float64 `json:"confidence_score,omitempty"`
	CreatedBy        string   `json:"created_by,omitempty"`
	CreatedAt        string   `json:"created_at"`
}

type Links struct {
	Outbound []Link `json:"outbound"`
	Inbound  []Link `json:"inbound"`
}

// Related is one entry of a decision's related list.
type Related struct {
	ID                string `json:"id"`
	Title             string `json:"title"`
	Summary           string `json:"summary"`
	RelationshipType  string `json:"relationship_type"`
	RelationshipLabel string `json:"relationship_label"`
	LinkID            string `json:"link_id"`
	Direction         string `json:"direction"`
}

type Vocabulary struct {
	TypeLabel string `json:"type_label"`
	TagGroups []struct {
		Name string   `json:"name"`
		Tags []string `json:"tags"`
	} `json:"tag_groups"`
	ConfidenceLevels  []Label  `json:"confidence_levels"`
	RelationshipTypes []Label  `json:"relationship_types"`
	SortModes         []string `json:"sort_modes"`
}

type Label struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

type WhoAmI struct {
	ActorID string `json:"actor_id"`
	Source  string `json:"source"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// ListDecisions lists decisions matching opts.
func (c *Client) ListDecisions(ctx context.Context, opts ListOptions) (DecisionList, error) {
	q := url.Values{}
	for k, v := range map[string]string{"q": opts.Query, "tag": opts.Tag, "confidence": opts.Confidence, "sort": opts.Sort} {
		if v != "" {
			q.Set(k, v)
		}
	}
	endpoint := "decisions"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp DecisionList
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) GetDecision(ctx context.Context, id string) (Decision, error) {
	var resp Decision
	err := c.do(ctx, http.MethodGet, "decisions/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// CreateDecision records a decision owned by the authenticated actor.
func (c *Client) CreateDecision(ctx context.Context, in DecisionInput) (Decision, error) {
	var resp Decision
	err := c.do(ctx, http.MethodPost, "decisions", in, &resp)
	return resp, err
}

// UpdateDecision sends only the given fields. A nil value for
// "estimated_impact_value" clears it.
func (c *Client) UpdateDecision(ctx context.Context, id string, fields map[string]any) (Decision, error) {
	var resp Decision
	err := c.do(ctx, http.MethodPatch, "decisions/"+url.PathEscape(id), fields, &resp)
	return resp, err
}

func (c *Client) DeleteDecision(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "decisions/"+url.PathEscape(id), nil, nil)
}

// Related returns up to five decisions linked to id.
func (c *Client) Related(ctx context.Context, id string) ([]Related, error) {
	var resp struct {
		Items []Related `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "decisions/"+url.PathEscape(id)+"/related", nil, &resp)
	return resp.Items, err
}

func (c *Client) Links(ctx context.Context, id string) (Links, error) {
	var resp Links
	err := c.do(ctx, http.MethodGet, "decisions/"+url.PathEscape(id)+"/links", nil, &resp)
	return resp, err
}

// CreateLink links from to to. score may be nil.
func (c *Client) CreateLink(ctx context.Context, from, to, relationshipType string, score *float64) (Link, error) {
	body := map[string]any{
		"from_decision_id":  from,
		"to_decision_id":    to,
		"relationship_type": relationshipType,
	}
	if score != nil {
		body["confidence_score"] = *score
	}
	var resp Link
	err := c.do(ctx, http.MethodPost, "links", body, &resp)
	return resp, err
}

func (c *Client) DeleteLink(ctx context.Context, linkID string) (Link, error) {
	var resp Link
	err := c.do(ctx, http.MethodDelete, "links/"+url.PathEscape(linkID), nil, &resp)
	return resp, err
}

func (c *Client) Vocabulary(ctx context.Context) (Vocabulary, error) {
	var resp Vocabulary
	err := c.do(ctx, http.MethodGet, "vocabulary", nil, &resp)
	return resp, err
}

// Events pages through the event log, newest first.
func (c *Client) Events(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) Me(ctx context.Context) (WhoAmI, error) {
	var resp WhoAmI
	err := c.do(ctx, http.MethodGet, "me", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code, apiErr.Message = env.Error.Code, env.Error.Message
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}
