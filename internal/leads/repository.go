package leads

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/medspa-pipeline/internal/pipeline"
)

// Repository defines the interface for lead storage. Every call is scoped
// to one org; leads of other orgs are invisible.
type Repository interface {
	Create(ctx context.Context, req *CreateLeadRequest) (*pipeline.Lead, error)
	GetByID(ctx context.Context, orgID, id string) (*pipeline.Lead, error)
	GetMany(ctx context.Context, orgID string, ids []string) ([]pipeline.Lead, error)
	ListByStage(ctx context.Context, orgID string, stage pipeline.Stage, offset, limit int) (pipeline.Page, error)
	UpdateStatus(ctx context.Context, orgID, id string, stage pipeline.Stage) (*pipeline.Lead, error)
	BulkMove(ctx context.Context, orgID string, ids []string, stage pipeline.Stage) (int, error)
	BulkAssign(ctx context.Context, orgID string, ids []string, a pipeline.Assignment) (int, error)
	BulkTag(ctx context.Context, orgID string, ids []string, tag string) (int, error)
	BulkDelete(ctx context.Context, orgID string, ids []string) (int, error)
	Stats(ctx context.Context, orgID string, q StatsQuery) (pipeline.Baseline, error)
}

// InMemoryRepository is a Repository using in-memory storage, for local
// runs and tests.
type InMemoryRepository struct {
	mu      sync.RWMutex
	leads   map[string]*record
	initial pipeline.Stage
	now     func() time.Time
}

// record carries the ordering key alongside the lead.
type record struct {
	lead         pipeline.Lead
	stageChanged time.Time
}

// NewInMemoryRepository creates a new in-memory repository. New leads
// enter initial.
func NewInMemoryRepository(initial pipeline.Stage) *InMemoryRepository {
	if initial == "" {
		initial = pipeline.StageNew
	}
	return &InMemoryRepository{
		leads:   make(map[string]*record),
		initial: initial,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Create creates a new lead in memory
func (r *InMemoryRepository) Create(ctx context.Context, req *CreateLeadRequest) (*pipeline.Lead, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.tick()
	lead := req.newLead(uuid.New().String(), r.initial, now)
	r.leads[lead.ID] = &record{lead: lead, stageChanged: now}

	out := lead.Clone()
	return &out, nil
}

// GetByID retrieves a lead by ID
func (r *InMemoryRepository) GetByID(ctx context.Context, orgID, id string) (*pipeline.Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.leads[id]
	if !ok || rec.lead.OrgID != orgID {
		return nil, ErrLeadNotFound
	}
	out := rec.lead.Clone()
	return &out, nil
}

// GetMany returns the org's leads among ids, in the order given. Unknown
// ids are skipped.
func (r *InMemoryRepository) GetMany(ctx context.Context, orgID string, ids []string) ([]pipeline.Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]pipeline.Lead, 0, len(ids))
	for _, id := range dedupe(ids) {
		if rec, ok := r.leads[id]; ok && rec.lead.OrgID == orgID {
			out = append(out, rec.lead.Clone())
		}
	}
	return out, nil
}

// ListByStage pages through a stage, most recently moved first.
func (r *InMemoryRepository) ListByStage(ctx context.Context, orgID string, stage pipeline.Stage, offset, limit int) (pipeline.Page, error) {
	r.mu.RLock()
	var recs []*record
	for _, rec := range r.leads {
		if rec.lead.OrgID == orgID && rec.lead.Status == stage {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].stageChanged.Equal(recs[j].stageChanged) {
			return recs[i].stageChanged.After(recs[j].stageChanged)
		}
		return recs[i].lead.ID < recs[j].lead.ID
	})
	page := pipeline.Page{Total: len(recs)}
	if offset < len(recs) {
		end := offset + limit
		if end > len(recs) {
			end = len(recs)
		}
		for _, rec := range recs[offset:end] {
			page.Leads = append(page.Leads, rec.lead.Clone())
		}
		page.HasMore = end < len(recs)
	}
	r.mu.RUnlock()

	if page.Leads == nil {
		page.Leads = []pipeline.Lead{}
	}
	return page, nil
}

// UpdateStatus moves one lead.
func (r *InMemoryRepository) UpdateStatus(ctx context.Context, orgID, id string, stage pipeline.Stage) (*pipeline.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.leads[id]
	if !ok || rec.lead.OrgID != orgID {
		return nil, ErrLeadNotFound
	}
	r.move(rec, stage, r.tick())
	out := rec.lead.Clone()
	return &out, nil
}

// BulkMove moves every matching lead.
func (r *InMemoryRepository) BulkMove(ctx context.Context, orgID string, ids []string, stage pipeline.Stage) (int, error) {
	return r.each(orgID, ids, func(rec *record, now time.Time) {
		r.move(rec, stage, now)
	}), nil
}

// BulkAssign sets the assignee on every matching lead.
func (r *InMemoryRepository) BulkAssign(ctx context.Context, orgID string, ids []string, a pipeline.Assignment) (int, error) {
	return r.each(orgID, ids, func(rec *record, now time.Time) {
		rec.lead.AssigneeID = a.AssigneeID
		rec.lead.AssigneeName = a.AssigneeName
		rec.lead.UpdatedAt = now
	}), nil
}

// BulkTag adds tag to every matching lead.
func (r *InMemoryRepository) BulkTag(ctx context.Context, orgID string, ids []string, tag string) (int, error) {
	return r.each(orgID, ids, func(rec *record, now time.Time) {
		rec.lead.Tags = rec.lead.Tags.Union(tag)
		rec.lead.UpdatedAt = now
	}), nil
}

// BulkDelete removes every matching lead.
func (r *InMemoryRepository) BulkDelete(ctx context.Context, orgID string, ids []string) (int, error) {
	return r.each(orgID, ids, func(rec *record, _ time.Time) {
		delete(r.leads, rec.lead.ID)
	}), nil
}

// Stats counts the org's leads.
func (r *InMemoryRepository) Stats(ctx context.Context, orgID string, q StatsQuery) (pipeline.Baseline, error) {
	r.mu.RLock()
	var leads []pipeline.Lead
	for _, rec := range r.leads {
		if rec.lead.OrgID == orgID {
			leads = append(leads, rec.lead)
		}
	}
	r.mu.RUnlock()

	cfg := pipeline.BoardConfig{ConvertedStage: q.Converted, DestructiveStage: q.Rejected}
	return pipeline.Tally(cfg, leads, q.Now), nil
}

func (r *InMemoryRepository) each(orgID string, ids []string, fn func(*record, time.Time)) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.tick()
	n := 0
	for _, id := range dedupe(ids) {
		rec, ok := r.leads[id]
		if !ok || rec.lead.OrgID != orgID {
			continue
		}
		fn(rec, now)
		n++
	}
	return n
}

func (r *InMemoryRepository) move(rec *record, stage pipeline.Stage, now time.Time) {
	rec.lead.Status = stage
	rec.lead.UpdatedAt = now
	rec.stageChanged = now
}

// tick returns a strictly increasing timestamp so ordering stays stable
// when calls land within the clock's resolution. Callers hold mu.
func (r *InMemoryRepository) tick() time.Time {
	now := r.now()
	for _, rec := range r.leads {
		if !now.After(rec.stageChanged) {
			now = rec.stageChanged.Add(time.Nanosecond)
		}
	}
	return now
}
