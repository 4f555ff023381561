package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wolfman30/medspa-pipeline/pkg/logging"
)

// fakeBackend serves pages from an in-memory ordered set per stage.
type fakeBackend struct {
	mu      sync.Mutex
	data    map[Stage][]Lead
	fail    map[Stage]error
	calls   []pageCall
	started chan pageCall
	release chan struct{}
}

type pageCall struct {
	Stage  Stage
	Offset int
	Limit  int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		data: make(map[Stage][]Lead),
		fail: make(map[Stage]error),
	}
}

func (f *fakeBackend) seed(stage Stage, n int) []Lead {
	f.mu.Lock()
	defer f.mu.Unlock()
	base := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	leads := make([]Lead, n)
	for i := range leads {
		leads[i] = Lead{
			ID:         fmt.Sprintf("%s-%02d", stage, i),
			OrgID:      "org-1",
			Name:       fmt.Sprintf("Patient %s %d", stage, i),
			Email:      fmt.Sprintf("patient%d@%s.example.com", i, stage),
			Phone:      fmt.Sprintf("+1555000%04d", i),
			Channel:    "web",
			Status:     stage,
			ValueCents: 10000,
			CreatedAt:  base.Add(time.Duration(i) * time.Hour),
		}
	}
	f.data[stage] = append(f.data[stage], leads...)
	return leads
}

func (f *fakeBackend) LoadPage(ctx context.Context, stage Stage, offset, limit int) (Page, error) {
	call := pageCall{Stage: stage, Offset: offset, Limit: limit}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	started, release := f.started, f.release
	f.mu.Unlock()

	if started != nil {
		started <- call
	}
	if release != nil {
		<-release
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[stage]; err != nil {
		return Page{}, err
	}
	all := f.data[stage]
	if offset > len(all) {
		offset = len(all)
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	page := make([]Lead, end-offset)
	copy(page, all[offset:end])
	return Page{Leads: page, HasMore: end < len(all), Total: len(all)}, nil
}

// MoveLead mirrors the move server side so later pages stay consistent.
func (f *fakeBackend) MoveLead(ctx context.Context, id string, target Stage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for stage, leads := range f.data {
		for i, l := range leads {
			if l.ID != id {
				continue
			}
			f.data[stage] = append(leads[:i:i], leads[i+1:]...)
			l.Status = target
			f.data[target] = append([]Lead{l}, f.data[target]...)
			return nil
		}
	}
	return fmt.Errorf("lead %s not found", id)
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeBackend) lastCall() pageCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func testConfig() BoardConfig {
	cfg := DefaultBoardConfig()
	cfg.PageSize = 20
	return cfg
}

func newTestStore(t *testing.T, backend *fakeBackend) *Store {
	t.Helper()
	store, err := NewStore(testConfig(), backend, logging.Discard())
	require.NoError(t, err)
	return store
}

// recordingNotifier counts notifications instead of scheduling dismissal.
type recordingNotifier struct {
	mu    sync.Mutex
	notes []Notification
}

func (r *recordingNotifier) Notify(n Notification) Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	n.ID = fmt.Sprintf("n-%d", len(r.notes)+1)
	r.notes = append(r.notes, n)
	return n
}

func (r *recordingNotifier) all() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.notes...)
}

func ids(leads []Lead) []string {
	out := make([]string, len(leads))
	for i, l := range leads {
		out[i] = l.ID
	}
	return out
}

// requireExclusive checks every lead sits in exactly one partition whose
// stage matches its status.
func requireExclusive(t *testing.T, snap Snapshot) {
	t.Helper()
	seen := make(map[string]Stage)
	for _, stage := range snap.Stages {
		for _, l := range snap.Partitions[stage].Leads {
			prev, dup := seen[l.ID]
			require.Falsef(t, dup, "lead %s in %s and %s", l.ID, prev, stage)
			require.Equal(t, stage, l.Status, "lead %s status", l.ID)
			seen[l.ID] = stage
		}
	}
}
