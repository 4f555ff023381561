package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/medspa-pipeline/pkg/logging"
)

type bulkFixture struct {
	store     *Store
	selection *Selection
	notes     *recordingNotifier
	received  map[Action][]Lead
	results   map[Action]BulkResult
	errs      map[Action]error
	coord     *Coordinator
}

func newBulkFixture(t *testing.T) *bulkFixture {
	t.Helper()
	backend := newFakeBackend()
	backend.seed(StageNew, 5)
	backend.seed(StageQualified, 2)
	f := &bulkFixture{
		store:     newTestStore(t, backend),
		selection: NewSelection(),
		notes:     &recordingNotifier{},
		received:  make(map[Action][]Lead),
		results:   make(map[Action]BulkResult),
		errs:      make(map[Action]error),
	}
	require.NoError(t, f.store.LoadInitial(context.Background()))
	f.store.OnRemove(f.selection.Remove)

	execs := make(map[Action]BulkExecutor)
	for _, action := range []Action{ActionMove, ActionAssign, ActionTag, ActionDelete} {
		action := action
		execs[action] = BulkExecutorFunc(func(ctx context.Context, leads []Lead, params BulkParams) (BulkResult, error) {
			f.received[action] = leads
			if err := f.errs[action]; err != nil {
				return BulkResult{}, err
			}
			if res, ok := f.results[action]; ok {
				return res, nil
			}
			return BulkResult{Success: true, AffectedCount: len(leads)}, nil
		})
	}
	f.coord = NewCoordinator(testConfig(), f.store, f.selection, execs, f.notes, logging.Discard())
	return f
}

func (f *bulkFixture) selectAll(ids ...string) {
	for _, id := range ids {
		f.selection.Toggle(id, true)
	}
}

var fiveNew = []string{"new-00", "new-01", "new-02", "new-03", "new-04"}

func TestCoordinator_TagAddsToEverySelectedLead(t *testing.T) {
	f := newBulkFixture(t)
	f.selectAll(fiveNew...)
	_, err := f.store.UpdateLead(StageNew, "new-02", LeadPatch{Tags: tagsPtr("botox")})
	require.NoError(t, err)

	report, err := f.coord.Run(context.Background(), ActionTag, BulkParams{Tag: "VIP"})
	require.NoError(t, err)

	assert.Equal(t, 5, report.Result.AffectedCount)
	assert.Equal(t, 5, report.Mirrored)
	for _, id := range fiveNew {
		l, _ := f.store.Find(id)
		assert.True(t, l.Tags.Has("VIP"), id)
	}
	l, _ := f.store.Find("new-02")
	assert.Equal(t, Tags{"VIP", "botox"}, l.Tags)

	notes := f.notes.all()
	require.Len(t, notes, 1)
	assert.Equal(t, NoticeSuccess, notes[0].Type)
	assert.Equal(t, report.Notification.ID, notes[0].ID)
	assert.Zero(t, f.selection.Len())
}

func TestCoordinator_FailureMirrorsNothing(t *testing.T) {
	cases := []struct {
		name   string
		action Action
		params BulkParams
		setup  func(f *bulkFixture)
	}{
		{
			name:   "executor error",
			action: ActionTag,
			params: BulkParams{Tag: "VIP"},
			setup:  func(f *bulkFixture) { f.errs[ActionTag] = errors.New("crm unavailable") },
		},
		{
			name:   "executor reports failure",
			action: ActionMove,
			params: BulkParams{TargetStage: StageContacted},
			setup:  func(f *bulkFixture) { f.results[ActionMove] = BulkResult{Success: false} },
		},
		{
			name:   "delete rejected",
			action: ActionDelete,
			params: BulkParams{Confirmed: true},
			setup:  func(f *bulkFixture) { f.errs[ActionDelete] = errors.New("forbidden") },
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newBulkFixture(t)
			f.selectAll(fiveNew...)
			tc.setup(f)
			before := f.store.Snapshot()

			_, err := f.coord.Run(context.Background(), tc.action, tc.params)

			assert.ErrorIs(t, err, ErrBulkFailed)
			assert.Equal(t, before, f.store.Snapshot())
			notes := f.notes.all()
			require.Len(t, notes, 1)
			assert.Equal(t, NoticeError, notes[0].Type)
			assert.Equal(t, 5, f.selection.Len())
		})
	}
}

func TestCoordinator_SkipsLeadsMissingLocally(t *testing.T) {
	f := newBulkFixture(t)
	f.selectAll("new-00", "ghost", "qualified-01")

	report, err := f.coord.Run(context.Background(), ActionMove, BulkParams{TargetStage: StageContacted})
	require.NoError(t, err)

	assert.Equal(t, []string{"new-00", "qualified-01"}, ids(f.received[ActionMove]))
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 2, report.Mirrored)
	p, _ := f.store.Partition(StageContacted)
	assert.ElementsMatch(t, []string{"new-00", "qualified-01"}, ids(p.Leads))
	requireExclusive(t, f.store.Snapshot())
}

func TestCoordinator_LeadRemovedDuringExecuteIsSkipped(t *testing.T) {
	f := newBulkFixture(t)
	f.selectAll("new-00", "new-01")
	inner := f.coord.executors[ActionAssign]
	f.coord.executors[ActionAssign] = BulkExecutorFunc(func(ctx context.Context, leads []Lead, params BulkParams) (BulkResult, error) {
		f.store.RemoveLead(StageNew, "new-01")
		return inner.Execute(ctx, leads, params)
	})

	report, err := f.coord.Run(context.Background(), ActionAssign, BulkParams{AssigneeID: "staff-1", AssigneeName: "Rae"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Mirrored)
	l, _ := f.store.Find("new-00")
	assert.Equal(t, "staff-1", l.AssigneeID)
	assert.Equal(t, "Rae", l.AssigneeName)
}

func TestCoordinator_DeleteRemovesLeads(t *testing.T) {
	f := newBulkFixture(t)
	f.selectAll("new-00", "new-01")

	_, err := f.coord.Run(context.Background(), ActionDelete, BulkParams{Confirmed: true})
	require.NoError(t, err)

	p, _ := f.store.Partition(StageNew)
	assert.Equal(t, []string{"new-02", "new-03", "new-04"}, ids(p.Leads))
	assert.Equal(t, 3, p.Total)
}

func TestCoordinator_ConfirmationGates(t *testing.T) {
	f := newBulkFixture(t)
	f.selectAll("new-00")

	_, err := f.coord.Run(context.Background(), ActionMove, BulkParams{TargetStage: StageRejected})
	assert.ErrorIs(t, err, ErrConfirmationRequired)
	_, err = f.coord.Run(context.Background(), ActionDelete, BulkParams{})
	assert.ErrorIs(t, err, ErrConfirmationRequired)

	assert.Empty(t, f.received)
	assert.Len(t, f.notes.all(), 2)

	_, err = f.coord.Run(context.Background(), ActionMove, BulkParams{TargetStage: StageRejected, Confirmed: true})
	require.NoError(t, err)
	l, _ := f.store.Find("new-00")
	assert.Equal(t, StageRejected, l.Status)
}

func TestCoordinator_InvalidParams(t *testing.T) {
	f := newBulkFixture(t)
	f.selectAll("new-00")

	_, err := f.coord.Run(context.Background(), ActionTag, BulkParams{Tag: "  "})
	assert.ErrorIs(t, err, ErrInvalidBulkParam)
	_, err = f.coord.Run(context.Background(), ActionAssign, BulkParams{})
	assert.ErrorIs(t, err, ErrInvalidBulkParam)
	_, err = f.coord.Run(context.Background(), ActionMove, BulkParams{TargetStage: "archived"})
	assert.ErrorIs(t, err, ErrUnknownStage)
	_, err = f.coord.Run(context.Background(), Action("merge"), BulkParams{})
	assert.ErrorIs(t, err, ErrUnknownAction)
	// no export executor configured
	_, err = f.coord.Run(context.Background(), ActionExport, BulkParams{})
	assert.ErrorIs(t, err, ErrUnknownAction)

	assert.Len(t, f.notes.all(), 5)
	assert.Equal(t, 1, f.selection.Len())
}

func TestCoordinator_EmptySelection(t *testing.T) {
	f := newBulkFixture(t)

	_, err := f.coord.Run(context.Background(), ActionTag, BulkParams{Tag: "VIP"})
	assert.ErrorIs(t, err, ErrEmptySelection)
	notes := f.notes.all()
	require.Len(t, notes, 1)
	assert.Equal(t, NoticeWarning, notes[0].Type)
}

type memorySink struct {
	leads    []Lead
	filename string
}

func (m *memorySink) Export(ctx context.Context, leads []Lead, filename string) (string, error) {
	m.leads = leads
	m.filename = filename
	return "https://downloads.example.com/" + filename, nil
}

func TestCoordinator_ExportLeavesStoreUntouched(t *testing.T) {
	f := newBulkFixture(t)
	sink := &memorySink{}
	now := func() time.Time { return time.Date(2026, 10, 19, 15, 0, 0, 0, time.UTC) }
	f.coord.executors[ActionExport] = ExportExecutor{Sink: sink, Now: now}
	f.selectAll("new-03", "qualified-00")
	before := f.store.Snapshot()

	report, err := f.coord.Run(context.Background(), ActionExport, BulkParams{})
	require.NoError(t, err)

	assert.Equal(t, before, f.store.Snapshot())
	assert.Equal(t, "leads-2026-10-19.csv", sink.filename)
	assert.Equal(t, []string{"new-03", "qualified-00"}, ids(sink.leads))
	assert.Equal(t, "https://downloads.example.com/leads-2026-10-19.csv", report.Result.Location)
	assert.Contains(t, report.Notification.Message, report.Result.Location)
	assert.Len(t, f.notes.all(), 1)
}

func TestParseAction(t *testing.T) {
	a, err := ParseAction(" Tag ")
	require.NoError(t, err)
	assert.Equal(t, ActionTag, a)

	_, err = ParseAction("merge")
	assert.ErrorIs(t, err, ErrUnknownAction)
}
