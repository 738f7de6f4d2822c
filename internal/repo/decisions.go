package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"precedent/internal/domain"
	"precedent/internal/events"
)

const decisionColumns = `id,title,summary,context_tags_json,constraints,options_considered_json,selected_option,reasoning,
risks_assumptions,confidence_level,estimated_impact_value,estimated_impact_label,outcome,is_draft,approvers_json,owner_id,created_at,updated_at`

func scanDecision(row rowScanner) (domain.DecisionRecord, error) {
	var d domain.DecisionRecord
	var summary, constraints, selected, reasoning, risks, impactLabel, outcome, approvers sql.NullString
	var tags, options string
	var impact sql.NullFloat64
	var draft int
	err := row.Scan(&d.ID, &d.Title, &summary, &tags, &constraints, &options, &selected, &reasoning,
		&risks, &d.ConfidenceLevel, &impact, &impactLabel, &outcome, &draft, &approvers, &d.OwnerID, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return d, ErrNotFound
	}
	if err != nil {
		return d, err
	}
	d.Summary = summary.String
	d.Constraints = constraints.String
	d.SelectedOption = selected.String
	d.Reasoning = reasoning.String
	d.RisksAssumptions = risks.String
	d.EstimatedImpactLabel = impactLabel.String
	d.Outcome = outcome.String
	d.IsDraft = draft != 0
	if impact.Valid {
		v := impact.Float64
		d.EstimatedImpactValue = &v
	}
	if err := json.Unmarshal([]byte(tags), &d.ContextTags); err != nil {
		return d, fmt.Errorf("decode context tags for %s: %w", d.ID, err)
	}
	if err := json.Unmarshal([]byte(options), &d.OptionsConsidered); err != nil {
		return d, fmt.Errorf("decode options for %s: %w", d.ID, err)
	}
	if approvers.Valid && approvers.String != "" {
		if err := json.Unmarshal([]byte(approvers.String), &d.Approvers); err != nil {
			return d, fmt.Errorf("decode approvers for %s: %w", d.ID, err)
		}
	}
	if d.ContextTags == nil {
		d.ContextTags = []string{}
	}
	if d.OptionsConsidered == nil {
		d.OptionsConsidered = []domain.Option{}
	}
	return d, nil
}

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func encodeList[T any](v []T) (string, error) {
	if v == nil {
		v = []T{}
	}
	return encodeJSON(v)
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

// ListDecisions returns every record, newest first.
func (r Repo) ListDecisions(ctx context.Context) ([]domain.DecisionRecord, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+decisionColumns+` FROM decision_records ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.DecisionRecord{}
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

func (r Repo) GetDecision(ctx context.Context, id string) (domain.DecisionRecord, error) {
	return scanDecision(r.DB.QueryRowContext(ctx, `SELECT `+decisionColumns+` FROM decision_records WHERE id=?`, id))
}

func getDecisionTx(ctx context.Context, tx *sql.Tx, id string) (domain.DecisionRecord, error) {
	return scanDecision(tx.QueryRowContext(ctx, `SELECT `+decisionColumns+` FROM decision_records WHERE id=?`, id))
}

// InsertDecision stores d, assigning its id and timestamps, and journals the creation.
func (r Repo) InsertDecision(ctx context.Context, d domain.DecisionRecord) (domain.DecisionRecord, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := domain.FormatTime(r.now())
	d.CreatedAt = now
	d.UpdatedAt = now
	tags, err := encodeList(d.ContextTags)
	if err != nil {
		return domain.DecisionRecord{}, err
	}
	options, err := encodeList(d.OptionsConsidered)
	if err != nil {
		return domain.DecisionRecord{}, err
	}
	var approvers any
	if d.Approvers != nil {
		s, err := encodeJSON(d.Approvers)
		if err != nil {
			return domain.DecisionRecord{}, err
		}
		approvers = s
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.DecisionRecord{}, err
	}
	defer tx.Rollback()
	_, err = tx.ExecContext(ctx, `INSERT INTO decision_records(`+decisionColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		d.ID, d.Title, nullable(d.Summary), tags, nullable(d.Constraints), options, nullable(d.SelectedOption), nullable(d.Reasoning),
		nullable(d.RisksAssumptions), d.ConfidenceLevel, nullableFloatPtr(d.EstimatedImpactValue), nullable(d.EstimatedImpactLabel),
		nullable(d.Outcome), boolInt(d.IsDraft), approvers, d.OwnerID, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.DecisionRecord{}, fmt.Errorf("decision %s: %w", d.ID, ErrConflict)
		}
		return domain.DecisionRecord{}, err
	}
	if err := r.writer().Append(ctx, tx, events.DecisionCreated, events.KindDecision, d.ID, d.OwnerID, events.EventPayload{
		"title":    d.Title,
		"is_draft": d.IsDraft,
	}); err != nil {
		return domain.DecisionRecord{}, err
	}
	created, err := getDecisionTx(ctx, tx, d.ID)
	if err != nil {
		return domain.DecisionRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.DecisionRecord{}, err
	}
	return created, nil
}

// UpdateDecision applies the non-nil fields of p and refreshes updated_at.
func (r Repo) UpdateDecision(ctx context.Context, id string, p domain.DecisionPatch) (domain.DecisionRecord, error) {
	var fields []string
	var args []any
	var changed []string
	set := func(col string, v any) {
		fields = append(fields, col+"=?")
		args = append(args, v)
		changed = append(changed, col)
	}
	if p.Title != nil {
		set("title", *p.Title)
	}
	if p.Summary != nil {
		set("summary", nullable(*p.Summary))
	}
	if p.ContextTags != nil {
		s, err := encodeList(*p.ContextTags)
		if err != nil {
			return domain.DecisionRecord{}, err
		}
		set("context_tags_json", s)
	}
	if p.Constraints != nil {
		set("constraints", nullable(*p.Constraints))
	}
	if p.OptionsConsidered != nil {
		s, err := encodeList(*p.OptionsConsidered)
		if err != nil {
			return domain.DecisionRecord{}, err
		}
		set("options_considered_json", s)
	}
	if p.SelectedOption != nil {
		set("selected_option", nullable(*p.SelectedOption))
	}
	if p.Reasoning != nil {
		set("reasoning", nullable(*p.Reasoning))
	}
	if p.RisksAssumptions != nil {
		set("risks_assumptions", nullable(*p.RisksAssumptions))
	}
	if p.ConfidenceLevel != nil {
		set("confidence_level", *p.ConfidenceLevel)
	}
	if p.ClearImpactValue {
		set("estimated_impact_value", nil)
	} else if p.EstimatedImpactValue != nil {
		set("estimated_impact_value", *p.EstimatedImpactValue)
	}
	if p.EstimatedImpactLabel != nil {
		set("estimated_impact_label", nullable(*p.EstimatedImpactLabel))
	}
	if p.Outcome != nil {
		set("outcome", nullable(*p.Outcome))
	}
	if p.IsDraft != nil {
		set("is_draft", boolInt(*p.IsDraft))
	}
	if p.Approvers != nil {
		s, err := encodeList(*p.Approvers)
		if err != nil {
			return domain.DecisionRecord{}, err
		}
		set("approvers_json", s)
	}
	fields = append(fields, "updated_at=?")
	args = append(args, domain.FormatTime(r.now()), id)

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.DecisionRecord{}, err
	}
	defer tx.Rollback()
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE decision_records SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return domain.DecisionRecord{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.DecisionRecord{}, err
	}
	if n == 0 {
		return domain.DecisionRecord{}, ErrNotFound
	}
	if err := r.writer().Append(ctx, tx, events.DecisionUpdated, events.KindDecision, id, auditActor(ctx), events.EventPayload{
		"fields": changed,
	}); err != nil {
		return domain.DecisionRecord{}, err
	}
	updated, err := getDecisionTx(ctx, tx, id)
	if err != nil {
		return domain.DecisionRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.DecisionRecord{}, err
	}
	return updated, nil
}

// DeleteDecision removes the record; its links go with it through the FK cascade.
func (r Repo) DeleteDecision(ctx context.Context, id string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	var links int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM decision_links WHERE from_decision_id=? OR to_decision_id=?`, id, id).Scan(&links); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM decision_records WHERE id=?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	if err := r.writer().Append(ctx, tx, events.DecisionDeleted, events.KindDecision, id, auditActor(ctx), events.EventPayload{
		"cascaded_links": links,
	}); err != nil {
		return err
	}
	return tx.Commit()
}
