package leads

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/medspa-pipeline/internal/pipeline"
)

var leadRowColumns = []string{
	"id", "org_id", "name", "email", "phone", "channel", "status", "assignee_id", "assignee_name",
	"value_cents", "tags", "custom_fields", "last_contact_at", "created_at", "updated_at",
}

func leadRows(ids ...string) *pgxmock.Rows {
	created := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows(leadRowColumns)
	for _, id := range ids {
		rows.AddRow(id, "org-1", "Patient "+id, "p@example.com", "", "web", "new", "", "",
			int64(25000), []string{"vip", "botox"}, []byte(`{"source_campaign":"fall"}`),
			(*time.Time)(nil), created, created)
	}
	return rows
}

func newMockRepo(t *testing.T) (*PostgresRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresRepositoryWithDB(mock, pipeline.StageNew), mock
}

func TestPostgresRepository_ListByStage(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM leads WHERE org_id = \$1 AND status = \$2`).
		WithArgs("org-1", "new").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(`FROM leads\s+WHERE org_id = \$1 AND status = \$2\s+ORDER BY status_changed_at DESC, id\s+OFFSET \$3 LIMIT \$4`).
		WithArgs("org-1", "new", 0, 3).
		WillReturnRows(leadRows("a", "b", "c"))

	page, err := repo.ListByStage(context.Background(), "org-1", pipeline.StageNew, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, []string{page.Leads[0].ID, page.Leads[1].ID})
	assert.True(t, page.HasMore)
	assert.Equal(t, 3, page.Total)

	l := page.Leads[0]
	assert.Equal(t, pipeline.StageNew, l.Status)
	assert.Equal(t, pipeline.Tags{"botox", "vip"}, l.Tags)
	assert.Equal(t, pipeline.StringValue("fall"), l.CustomFields["source_campaign"])
	assert.Nil(t, l.LastContactAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_ListByStageLastPage(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\)`).
		WithArgs("org-1", "new").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(`ORDER BY status_changed_at`).
		WithArgs("org-1", "new", 2, 3).
		WillReturnRows(leadRows("c"))

	page, err := repo.ListByStage(context.Background(), "org-1", pipeline.StageNew, 2, 2)
	require.NoError(t, err)
	assert.Len(t, page.Leads, 1)
	assert.False(t, page.HasMore)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_GetByIDNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`FROM leads WHERE id::text = \$1 AND org_id = \$2`).
		WithArgs("missing", "org-1").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "org-1", "missing")
	assert.ErrorIs(t, err, ErrLeadNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_GetManyKeepsRequestOrder(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`WHERE org_id = \$1 AND id::text = ANY\(\$2\)`).
		WithArgs("org-1", []string{"b", "a", "ghost"}).
		WillReturnRows(leadRows("a", "b"))

	got, err := repo.GetMany(context.Background(), "org-1", []string{"b", "a", "b", "ghost"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "a", got[1].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_UpdateStatus(t *testing.T) {
	repo, mock := newMockRepo(t)

	rows := pgxmock.NewRows(leadRowColumns).AddRow("a", "org-1", "A", "", "", "web", "contacted", "", "",
		int64(0), []string{}, []byte(`{}`), (*time.Time)(nil), time.Now(), time.Now())
	mock.ExpectQuery(`UPDATE leads SET status = \$3, status_changed_at = now\(\)`).
		WithArgs("a", "org-1", "contacted").
		WillReturnRows(rows)

	lead, err := repo.UpdateStatus(context.Background(), "org-1", "a", pipeline.StageContacted)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StageContacted, lead.Status)
	assert.Nil(t, lead.Tags)
	assert.Nil(t, lead.CustomFields)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_BulkStatements(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()
	ids := []string{"a", "b"}

	mock.ExpectExec(`UPDATE leads SET status = \$3`).
		WithArgs("org-1", ids, "scheduled").
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	mock.ExpectExec(`UPDATE leads SET assignee_id = \$3, assignee_name = \$4`).
		WithArgs("org-1", ids, "s1", "Rae").
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	mock.ExpectExec(`SET tags = ARRAY\(SELECT DISTINCT t FROM unnest\(array_append\(tags, \$3\)\)`).
		WithArgs("org-1", ids, "VIP").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`DELETE FROM leads WHERE org_id = \$1 AND id::text = ANY\(\$2\)`).
		WithArgs("org-1", ids).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	n, err := repo.BulkMove(ctx, "org-1", ids, pipeline.StageScheduled)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = repo.BulkAssign(ctx, "org-1", ids, pipeline.Assignment{AssigneeID: "s1", AssigneeName: "Rae"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = repo.BulkTag(ctx, "org-1", ids, "VIP")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = repo.BulkDelete(ctx, "org-1", ids)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_BulkRequiresIDs(t *testing.T) {
	repo, mock := newMockRepo(t)
	_, err := repo.BulkDelete(context.Background(), "org-1", []string{" "})
	assert.ErrorIs(t, err, ErrNoLeads)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_BulkWrapsErrors(t *testing.T) {
	repo, mock := newMockRepo(t)
	dbErr := errors.New("connection reset")
	mock.ExpectExec(`DELETE FROM leads`).WithArgs("org-1", []string{"a"}).WillReturnError(dbErr)

	_, err := repo.BulkDelete(context.Background(), "org-1", []string{"a"})
	assert.ErrorIs(t, err, dbErr)
	assert.Contains(t, err.Error(), "leads: bulk delete")
}

func TestPostgresRepository_Create(t *testing.T) {
	repo, mock := newMockRepo(t)
	created := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`INSERT INTO leads`).
		WithArgs(pgxmock.AnyArg(), "org-1", "Jane", "jane@example.com", "", "hi", "instagram", "new",
			int64(1500), []string{"vip"}, []byte("{}")).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(created))

	lead, err := repo.Create(context.Background(), &CreateLeadRequest{
		OrgID: "org-1", Name: "Jane", Email: "jane@example.com", Message: "hi",
		Source: "Instagram", ValueCents: 1500, Tags: []string{"vip"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, lead.ID)
	assert.Equal(t, created, lead.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_Stats(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Date(2026, 10, 19, 15, 0, 0, 0, time.UTC)

	cols := make([]string, 14)
	for i := range cols {
		cols[i] = "c"
	}
	mock.ExpectQuery(`FROM leads\s+WHERE org_id = \$1`).
		WithArgs("org-1",
			time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC),
			time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC),
			time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC),
			time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC),
			time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
			"converted", "rejected").
		WillReturnRows(pgxmock.NewRows(cols).AddRow(
			int64(40), int64(900000), int64(2), int64(5), int64(12), int64(7), int64(3),
			int64(28), int64(600000), int64(1), int64(6), int64(10), int64(4), int64(2),
		))

	b, err := repo.Stats(context.Background(), "org-1", StatsQuery{
		Now: now, Converted: pipeline.StageConverted, Rejected: pipeline.StageRejected,
	})
	require.NoError(t, err)
	assert.Equal(t, pipeline.Counters{
		TotalLeads: 40, ValueTotal: 900000, NewToday: 2, NewThisWeek: 5, NewThisMonth: 12, Converted: 7, Rejected: 3,
	}, b.Current)
	assert.Equal(t, pipeline.Counters{
		TotalLeads: 28, ValueTotal: 600000, NewToday: 1, NewThisWeek: 6, NewThisMonth: 10, Converted: 4, Rejected: 2,
	}, b.Previous)
	require.NoError(t, mock.ExpectationsWereMet())
}
