package leads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/medspa-pipeline/internal/pipeline"
)

// leadsDB is the slice of pgxpool.Pool the repository needs, so pgxmock can
// stand in for it.
type leadsDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores leads in the relational database.
type PostgresRepository struct {
	db      leadsDB
	initial pipeline.Stage
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool, initial pipeline.Stage) *PostgresRepository {
	if pool == nil {
		panic("leads: pgx pool required")
	}
	return NewPostgresRepositoryWithDB(pool, initial)
}

// NewPostgresRepositoryWithDB allows injecting a mock database for testing.
func NewPostgresRepositoryWithDB(db leadsDB, initial pipeline.Stage) *PostgresRepository {
	if initial == "" {
		initial = pipeline.StageNew
	}
	return &PostgresRepository{db: db, initial: initial}
}

const leadColumns = `id::text, org_id, name, COALESCE(email, ''), COALESCE(phone, ''), channel, status,
	COALESCE(assignee_id, ''), COALESCE(assignee_name, ''), value_cents, tags, custom_fields,
	last_contact_at, created_at, updated_at`

// Create inserts a new row.
func (r *PostgresRepository) Create(ctx context.Context, req *CreateLeadRequest) (*pipeline.Lead, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	lead := req.newLead(uuid.New().String(), r.initial, time.Time{})
	fields, err := encodeFields(lead.CustomFields)
	if err != nil {
		return nil, err
	}
	query := `
		INSERT INTO leads (id, org_id, name, email, phone, message, channel, status, value_cents, tags, custom_fields)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8, $9, $10, $11)
		RETURNING created_at
	`
	var createdAt time.Time
	if err := r.db.QueryRow(ctx, query,
		lead.ID,
		lead.OrgID,
		lead.Name,
		lead.Email,
		lead.Phone,
		req.Message,
		lead.Channel,
		string(lead.Status),
		lead.ValueCents,
		tagsArg(lead.Tags),
		fields,
	).Scan(&createdAt); err != nil {
		return nil, fmt.Errorf("leads: insert failed: %w", err)
	}
	lead.CreatedAt = createdAt
	lead.UpdatedAt = createdAt
	return &lead, nil
}

// GetByID fetches a lead scoped to the org.
func (r *PostgresRepository) GetByID(ctx context.Context, orgID, id string) (*pipeline.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE id::text = $1 AND org_id = $2`
	lead, err := scanLead(r.db.QueryRow(ctx, query, id, orgID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("leads: select failed: %w", err)
	}
	return &lead, nil
}

// GetMany returns the org's leads among ids, in the order given.
func (r *PostgresRepository) GetMany(ctx context.Context, orgID string, ids []string) ([]pipeline.Lead, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return []pipeline.Lead{}, nil
	}
	query := `SELECT ` + leadColumns + ` FROM leads WHERE org_id = $1 AND id::text = ANY($2)`
	found, err := r.queryLeads(ctx, query, orgID, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]pipeline.Lead, len(found))
	for _, l := range found {
		byID[l.ID] = l
	}
	out := make([]pipeline.Lead, 0, len(found))
	for _, id := range ids {
		if l, ok := byID[id]; ok {
			out = append(out, l)
		}
	}
	return out, nil
}

// ListByStage pages through a stage, most recently moved first. The limit
// is over-fetched by one to decide HasMore without trusting the count.
func (r *PostgresRepository) ListByStage(ctx context.Context, orgID string, stage pipeline.Stage, offset, limit int) (pipeline.Page, error) {
	var total int
	countQuery := `SELECT COUNT(*) FROM leads WHERE org_id = $1 AND status = $2`
	if err := r.db.QueryRow(ctx, countQuery, orgID, string(stage)).Scan(&total); err != nil {
		return pipeline.Page{}, fmt.Errorf("leads: count stage: %w", err)
	}

	query := `SELECT ` + leadColumns + `
		FROM leads
		WHERE org_id = $1 AND status = $2
		ORDER BY status_changed_at DESC, id
		OFFSET $3 LIMIT $4`
	leads, err := r.queryLeads(ctx, query, orgID, string(stage), offset, limit+1)
	if err != nil {
		return pipeline.Page{}, err
	}
	page := pipeline.Page{Leads: leads, Total: total}
	if len(leads) > limit {
		page.Leads = leads[:limit]
		page.HasMore = true
	}
	return page, nil
}

// UpdateStatus moves one lead.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, orgID, id string, stage pipeline.Stage) (*pipeline.Lead, error) {
	query := `
		UPDATE leads SET status = $3, status_changed_at = now(), updated_at = now()
		WHERE id::text = $1 AND org_id = $2
		RETURNING ` + leadColumns
	lead, err := scanLead(r.db.QueryRow(ctx, query, id, orgID, string(stage)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("leads: update status: %w", err)
	}
	return &lead, nil
}

// BulkMove moves every matching lead.
func (r *PostgresRepository) BulkMove(ctx context.Context, orgID string, ids []string, stage pipeline.Stage) (int, error) {
	return r.bulk(ctx, "bulk move", `
		UPDATE leads SET status = $3, status_changed_at = now(), updated_at = now()
		WHERE org_id = $1 AND id::text = ANY($2)`, orgID, ids, string(stage))
}

// BulkAssign sets the assignee on every matching lead.
func (r *PostgresRepository) BulkAssign(ctx context.Context, orgID string, ids []string, a pipeline.Assignment) (int, error) {
	return r.bulk(ctx, "bulk assign", `
		UPDATE leads SET assignee_id = $3, assignee_name = $4, updated_at = now()
		WHERE org_id = $1 AND id::text = ANY($2)`, orgID, ids, a.AssigneeID, a.AssigneeName)
}

// BulkTag adds tag to every matching lead, keeping the set sorted.
func (r *PostgresRepository) BulkTag(ctx context.Context, orgID string, ids []string, tag string) (int, error) {
	return r.bulk(ctx, "bulk tag", `
		UPDATE leads
		SET tags = ARRAY(SELECT DISTINCT t FROM unnest(array_append(tags, $3)) AS t ORDER BY t), updated_at = now()
		WHERE org_id = $1 AND id::text = ANY($2)`, orgID, ids, tag)
}

// BulkDelete removes every matching lead.
func (r *PostgresRepository) BulkDelete(ctx context.Context, orgID string, ids []string) (int, error) {
	return r.bulk(ctx, "bulk delete", `DELETE FROM leads WHERE org_id = $1 AND id::text = ANY($2)`, orgID, ids)
}

// Stats aggregates the org's counters in one pass.
func (r *PostgresRepository) Stats(ctx context.Context, orgID string, q StatsQuery) (pipeline.Baseline, error) {
	w := pipeline.PeriodWindows(q.Now)
	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(value_cents), 0),
			COUNT(*) FILTER (WHERE created_at >= $2),
			COUNT(*) FILTER (WHERE created_at >= $3),
			COUNT(*) FILTER (WHERE created_at >= $4),
			COUNT(*) FILTER (WHERE status = $8),
			COUNT(*) FILTER (WHERE status = $9),
			COUNT(*) FILTER (WHERE created_at < $4),
			COALESCE(SUM(value_cents) FILTER (WHERE created_at < $4), 0),
			COUNT(*) FILTER (WHERE created_at >= $5 AND created_at < $2),
			COUNT(*) FILTER (WHERE created_at >= $6 AND created_at < $3),
			COUNT(*) FILTER (WHERE created_at >= $7 AND created_at < $4),
			COUNT(*) FILTER (WHERE status = $8 AND created_at < $4),
			COUNT(*) FILTER (WHERE status = $9 AND created_at < $4)
		FROM leads
		WHERE org_id = $1
	`
	var b pipeline.Baseline
	cur, prev := &b.Current, &b.Previous
	if err := r.db.QueryRow(ctx, query,
		orgID, w.Today, w.Week, w.Month, w.Yesterday, w.LastWeek, w.LastMonth,
		string(q.Converted), string(q.Rejected),
	).Scan(
		&cur.TotalLeads, &cur.ValueTotal, &cur.NewToday, &cur.NewThisWeek, &cur.NewThisMonth,
		&cur.Converted, &cur.Rejected,
		&prev.TotalLeads, &prev.ValueTotal, &prev.NewToday, &prev.NewThisWeek, &prev.NewThisMonth,
		&prev.Converted, &prev.Rejected,
	); err != nil {
		return pipeline.Baseline{}, fmt.Errorf("leads: stats: %w", err)
	}
	return b, nil
}

func (r *PostgresRepository) bulk(ctx context.Context, op, query, orgID string, ids []string, extra ...any) (int, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return 0, ErrNoLeads
	}
	args := append([]any{orgID, ids}, extra...)
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("leads: %s: %w", op, err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *PostgresRepository) queryLeads(ctx context.Context, query string, args ...any) ([]pipeline.Lead, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("leads: query failed: %w", err)
	}
	defer rows.Close()

	out := []pipeline.Lead{}
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("leads: scan failed: %w", err)
		}
		out = append(out, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("leads: rows: %w", err)
	}
	return out, nil
}

func scanLead(row pgx.Row) (pipeline.Lead, error) {
	var (
		lead   pipeline.Lead
		status string
		tags   []string
		fields []byte
	)
	if err := row.Scan(
		&lead.ID,
		&lead.OrgID,
		&lead.Name,
		&lead.Email,
		&lead.Phone,
		&lead.Channel,
		&status,
		&lead.AssigneeID,
		&lead.AssigneeName,
		&lead.ValueCents,
		&tags,
		&fields,
		&lead.LastContactAt,
		&lead.CreatedAt,
		&lead.UpdatedAt,
	); err != nil {
		return pipeline.Lead{}, err
	}
	lead.Status = pipeline.Stage(status)
	lead.Tags = pipeline.NewTags(tags...)
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &lead.CustomFields); err != nil {
			return pipeline.Lead{}, fmt.Errorf("custom fields: %w", err)
		}
		if len(lead.CustomFields) == 0 {
			lead.CustomFields = nil
		}
	}
	return lead, nil
}

func tagsArg(t pipeline.Tags) []string {
	if t == nil {
		return []string{}
	}
	return []string(t)
}

func encodeFields(f pipeline.CustomFields) ([]byte, error) {
	if len(f) == 0 {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("leads: encode custom fields: %w", err)
	}
	return b, nil
}
