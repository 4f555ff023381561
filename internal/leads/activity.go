package leads

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// ActivityAction names a recorded board mutation.
type ActivityAction string

const (
	ActivityCreated ActivityAction = "lead.created"
	ActivityMoved   ActivityAction = "lead.moved"
	ActivityAssign  ActivityAction = "bulk.assign"
	ActivityTag     ActivityAction = "bulk.tag"
	ActivityMove    ActivityAction = "bulk.move"
	ActivityDelete  ActivityAction = "bulk.delete"
	ActivityExport  ActivityAction = "bulk.export"
)

// Activity is one append-only audit row.
type Activity struct {
	ID        int64          `json:"id"`
	OrgID     string         `json:"org_id"`
	Action    ActivityAction `json:"action"`
	LeadIDs   []string       `json:"lead_ids"`
	Detail    string         `json:"detail,omitempty"`
	Actor     string         `json:"actor,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// ActivityRecorder is what the handler writes mutations to.
type ActivityRecorder interface {
	Record(ctx context.Context, a Activity) error
}

// ActivityReader lists recorded activity, newest first.
type ActivityReader interface {
	Recent(ctx context.Context, orgID string, limit int) ([]Activity, error)
}

// ActivityLog persists board activity.
type ActivityLog struct {
	db *sql.DB
}

// NewActivityLog creates an activity log over db.
func NewActivityLog(db *sql.DB) *ActivityLog {
	return &ActivityLog{db: db}
}

// Record appends a row.
func (l *ActivityLog) Record(ctx context.Context, a Activity) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO lead_activity (org_id, action, lead_ids, detail, actor, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := l.db.ExecContext(ctx, query,
		a.OrgID,
		string(a.Action),
		pq.Array(a.LeadIDs),
		nullString(a.Detail),
		nullString(a.Actor),
		a.CreatedAt,
	); err != nil {
		return fmt.Errorf("leads: record activity: %w", err)
	}
	return nil
}

// Recent lists the org's latest activity, newest first.
func (l *ActivityLog) Recent(ctx context.Context, orgID string, limit int) ([]Activity, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `
		SELECT id, org_id, action, lead_ids, COALESCE(detail, ''), COALESCE(actor, ''), created_at
		FROM lead_activity
		WHERE org_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	rows, err := l.db.QueryContext(ctx, query, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("leads: list activity: %w", err)
	}
	defer rows.Close()

	var out []Activity
	for rows.Next() {
		var (
			a      Activity
			action string
		)
		if err := rows.Scan(&a.ID, &a.OrgID, &action, pq.Array(&a.LeadIDs), &a.Detail, &a.Actor, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("leads: scan activity: %w", err)
		}
		a.Action = ActivityAction(action)
		out = append(out, a)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
