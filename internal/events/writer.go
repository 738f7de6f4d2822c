package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"precedent/internal/domain"
)

// Journal event types.
const (
	DecisionCreated = "decision.created"
	DecisionUpdated = "decision.updated"
	DecisionDeleted = "decision.deleted"
	LinkCreated     = "link.created"
	LinkDeleted     = "link.deleted"
)

const (
	KindDecision = "decision"
	KindLink     = "link"
)

// Writer appends journal rows inside the caller's transaction.
type Writer struct {
	Now func() time.Time
}

type EventPayload map[string]any

func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID, actorID string, payload EventPayload) error {
	now := w.Now
	if now == nil {
		now = time.Now
	}
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	if actorID == "" {
		actorID = "system"
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`,
		domain.FormatTime(now()), evtType, entityKind, nullable(entityID), actorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
