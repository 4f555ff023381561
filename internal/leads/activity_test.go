package leads

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivityLog_Record(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)
	mock.ExpectExec(`INSERT INTO lead_activity`).
		WithArgs("org-1", "bulk.move", sqlmock.AnyArg(), "contacted", nil, at).
		WillReturnResult(sqlmock.NewResult(1, 1))

	log := NewActivityLog(db)
	err = log.Record(context.Background(), Activity{
		OrgID:     "org-1",
		Action:    ActivityMove,
		LeadIDs:   []string{"a", "b"},
		Detail:    "contacted",
		CreatedAt: at,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActivityLog_RecordError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO lead_activity`).WillReturnError(errors.New("disk full"))

	err = NewActivityLog(db).Record(context.Background(), Activity{OrgID: "org-1", Action: ActivityDelete})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leads: record activity")
}

func TestActivityLog_Recent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "org_id", "action", "lead_ids", "detail", "actor", "created_at"}).
		AddRow(int64(7), "org-1", "bulk.tag", []byte(`{a,b}`), "VIP", "staff-9", at).
		AddRow(int64(6), "org-1", "lead.created", []byte(`{c}`), "web", "", at.Add(-time.Minute))
	mock.ExpectQuery(`SELECT id, org_id, action, lead_ids`).
		WithArgs("org-1", 50).
		WillReturnRows(rows)

	got, err := NewActivityLog(db).Recent(context.Background(), "org-1", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, ActivityTag, got[0].Action)
	assert.Equal(t, []string{"a", "b"}, got[0].LeadIDs)
	assert.Equal(t, "staff-9", got[0].Actor)
	assert.Equal(t, []string{"c"}, got[1].LeadIDs)
	require.NoError(t, mock.ExpectationsWereMet())
}
