package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"precedent/internal/domain"
	"precedent/internal/events"
)

const linkColumns = `id,from_decision_id,to_decision_id,relationship_type,confidence_score,created_by,created_at`

func scanLink(row rowScanner) (domain.DecisionLink, error) {
	var l domain.DecisionLink
	var score sql.NullFloat64
	var createdBy sql.NullString
	var relType string
	err := row.Scan(&l.ID, &l.FromID, &l.ToID, &relType, &score, &createdBy, &l.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return l, ErrNotFound
	}
	if err != nil {
		return l, err
	}
	l.RelationshipType = domain.RelationshipType(relType)
	l.CreatedBy = createdBy.String
	if score.Valid {
		v := score.Float64
		l.ConfidenceScore = &v
	}
	return l, nil
}

// LinksFrom returns links whose origin is id, in insertion order.
func (r Repo) LinksFrom(ctx context.Context, id string) ([]domain.DecisionLink, error) {
	return r.queryLinks(ctx, `SELECT `+linkColumns+` FROM decision_links WHERE from_decision_id=? ORDER BY rowid ASC`, id)
}

// LinksTo returns links pointing at id, in insertion order.
func (r Repo) LinksTo(ctx context.Context, id string) ([]domain.DecisionLink, error) {
	return r.queryLinks(ctx, `SELECT `+linkColumns+` FROM decision_links WHERE to_decision_id=? ORDER BY rowid ASC`, id)
}

func (r Repo) GetLink(ctx context.Context, id string) (domain.DecisionLink, error) {
	return scanLink(r.DB.QueryRowContext(ctx, `SELECT `+linkColumns+` FROM decision_links WHERE id=?`, id))
}

func (r Repo) queryLinks(ctx context.Context, query string, args ...any) ([]domain.DecisionLink, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.DecisionLink{}
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}

// InsertLink stores a directed link. A repeated (from, to, type) triple is ErrConflict
// and a missing endpoint is ErrNotFound.
func (r Repo) InsertLink(ctx context.Context, l domain.DecisionLink) (domain.DecisionLink, error) {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	l.CreatedAt = domain.FormatTime(r.now())
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.DecisionLink{}, err
	}
	defer tx.Rollback()
	_, err = tx.ExecContext(ctx, `INSERT INTO decision_links(`+linkColumns+`) VALUES (?,?,?,?,?,?,?)`,
		l.ID, l.FromID, l.ToID, string(l.RelationshipType), nullableFloatPtr(l.ConfidenceScore), nullable(l.CreatedBy), l.CreatedAt)
	switch {
	case isUniqueViolation(err):
		return domain.DecisionLink{}, fmt.Errorf("%s link %s -> %s already exists: %w", l.RelationshipType, l.FromID, l.ToID, ErrConflict)
	case isForeignKeyViolation(err):
		return domain.DecisionLink{}, fmt.Errorf("link endpoint: %w", ErrNotFound)
	case err != nil:
		return domain.DecisionLink{}, err
	}
	if err := r.writer().Append(ctx, tx, events.LinkCreated, events.KindLink, l.ID, l.CreatedBy, events.EventPayload{
		"from_decision_id":  l.FromID,
		"to_decision_id":    l.ToID,
		"relationship_type": l.RelationshipType,
	}); err != nil {
		return domain.DecisionLink{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.DecisionLink{}, err
	}
	return l, nil
}

// DeleteLink removes a link and returns it so callers know both endpoints.
func (r Repo) DeleteLink(ctx context.Context, id string) (domain.DecisionLink, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.DecisionLink{}, err
	}
	defer tx.Rollback()
	l, err := scanLink(tx.QueryRowContext(ctx, `SELECT `+linkColumns+` FROM decision_links WHERE id=?`, id))
	if err != nil {
		return domain.DecisionLink{}, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM decision_links WHERE id=?`, id); err != nil {
		return domain.DecisionLink{}, err
	}
	if err := r.writer().Append(ctx, tx, events.LinkDeleted, events.KindLink, id, auditActor(ctx), events.EventPayload{
		"from_decision_id": l.FromID,
		"to_decision_id":   l.ToID,
	}); err != nil {
		return domain.DecisionLink{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.DecisionLink{}, err
	}
	return l, nil
}
