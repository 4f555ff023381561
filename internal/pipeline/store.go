package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/wolfman30/medspa-pipeline/internal/observability/metrics"
	"github.com/wolfman30/medspa-pipeline/pkg/logging"
)

// partition is the materialized, paginated slice of one stage.
type partition struct {
	stage   Stage
	leads   []Lead
	total   int
	offset  int // server rows consumed so far
	hasMore bool
	loaded  bool
	loading bool
	gen     uint64
	lastErr error
	// ids moved in locally; they were never part of the server prefix
	local map[string]struct{}
}

func (p *partition) indexOf(id string) int {
	for i := range p.leads {
		if p.leads[i].ID == id {
			return i
		}
	}
	return -1
}

func (p *partition) exhausted() bool {
	return !p.hasMore || len(p.leads) >= p.total
}

// detach removes the lead at i and keeps offset/total consistent with the
// server-side view.
func (p *partition) detach(i int) Lead {
	lead := p.leads[i]
	next := make([]Lead, 0, len(p.leads)-1)
	next = append(next, p.leads[:i]...)
	next = append(next, p.leads[i+1:]...)
	p.leads = next
	if p.total > 0 {
		p.total--
	}
	if _, ok := p.local[lead.ID]; ok {
		delete(p.local, lead.ID)
	} else if p.offset > 0 {
		p.offset--
	}
	return lead
}

// PartitionSnapshot is an immutable copy of one partition.
type PartitionSnapshot struct {
	Stage   Stage
	Leads   []Lead
	Total   int
	HasMore bool
	Loaded  bool
	Loading bool
	Err     error
}

// Snapshot is an immutable copy of the whole board, in stage order.
type Snapshot struct {
	Stages     []Stage
	Partitions map[Stage]PartitionSnapshot
}

// Store holds every materialized lead, partitioned by stage. All mutations
// are synchronous; only page loads suspend.
type Store struct {
	mu         sync.Mutex
	cfg        BoardConfig
	loader     PageLoader
	logger     *logging.Logger
	metrics    *metrics.BoardMetrics
	order      []Stage
	partitions map[Stage]*partition
	index      map[string]Stage
	onRemove   []func(id string)
	closed     bool

	group singleflight.Group
}

// NewStore creates an empty partition for every configured stage.
func NewStore(cfg BoardConfig, loader PageLoader, logger *logging.Logger) (*Store, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if loader == nil {
		return nil, errors.New("pipeline: page loader required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Store{
		cfg:        cfg,
		loader:     loader,
		logger:     logger.Component("lead_store"),
		order:      append([]Stage(nil), cfg.Stages...),
		partitions: make(map[Stage]*partition, len(cfg.Stages)),
		index:      make(map[string]Stage),
	}
	for _, stage := range cfg.Stages {
		s.partitions[stage] = &partition{stage: stage, local: make(map[string]struct{})}
	}
	return s, nil
}

// WithMetrics attaches board metrics.
func (s *Store) WithMetrics(m *metrics.BoardMetrics) *Store {
	s.metrics = m
	return s
}

// OnRemove registers a hook invoked (outside the store lock) after a lead
// is removed from the board.
func (s *Store) OnRemove(fn func(id string)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.onRemove = append(s.onRemove, fn)
	s.mu.Unlock()
}

// Close tears the store down. Page results that resolve afterwards are
// discarded.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Stages returns the configured stage order.
func (s *Store) Stages() []Stage {
	return append([]Stage(nil), s.order...)
}

// LoadInitial requests the first page of each stage (all stages when none
// are given). Stages load independently; failures are joined.
func (s *Store) LoadInitial(ctx context.Context, stages ...Stage) error {
	if len(stages) == 0 {
		stages = s.order
	}
	errs := make([]error, len(stages))
	var g errgroup.Group
	for i, stage := range stages {
		g.Go(func() error {
			_, err, _ := s.group.Do(string(stage), func() (any, error) {
				return nil, s.loadFirst(ctx, stage)
			})
			errs[i] = err
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (s *Store) loadFirst(ctx context.Context, stage Stage) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStoreClosed
	}
	p, ok := s.partitions[stage]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownStage, stage)
	}
	p.gen++
	gen := p.gen
	p.loading = true
	limit := s.cfg.PageSize
	s.mu.Unlock()

	page, err := s.loader.LoadPage(ctx, stage, 0, limit)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || p.gen != gen {
		return nil
	}
	p.loading = false
	if err != nil {
		p.lastErr = err
		s.metrics.ObservePageLoad(string(stage), "error")
		s.logger.Warn("initial page load failed", "stage", stage, "error", err)
		return fmt.Errorf("pipeline: load %s: %w", stage, err)
	}

	for _, l := range p.leads {
		if s.index[l.ID] == stage {
			delete(s.index, l.ID)
		}
	}
	p.leads = nil
	p.offset = 0
	p.local = make(map[string]struct{})
	s.appendPage(p, page)
	p.loaded = true
	p.lastErr = nil
	s.metrics.ObservePageLoad(string(stage), "ok")
	s.logger.Debug("initial page loaded", "stage", stage, "count", len(p.leads), "total", p.total)
	return nil
}

// LoadMore appends the next page of stage. It is a no-op while a load is in
// flight or once the partition is exhausted.
func (s *Store) LoadMore(ctx context.Context, stage Stage) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStoreClosed
	}
	p, ok := s.partitions[stage]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownStage, stage)
	}
	if p.loading || p.exhausted() {
		s.mu.Unlock()
		return nil
	}
	p.loading = true
	gen := p.gen
	offset := p.offset
	limit := s.cfg.PageSize
	s.mu.Unlock()

	page, err := s.loader.LoadPage(ctx, stage, offset, limit)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || p.gen != gen {
		return nil
	}
	p.loading = false
	if err != nil {
		p.lastErr = err
		s.metrics.ObservePageLoad(string(stage), "error")
		s.logger.Warn("next page load failed", "stage", stage, "offset", offset, "error", err)
		return fmt.Errorf("pipeline: load more %s: %w", stage, err)
	}
	s.appendPage(p, page)
	p.lastErr = nil
	s.metrics.ObservePageLoad(string(stage), "ok")
	return nil
}

// appendPage must be called with s.mu held.
func (s *Store) appendPage(p *partition, page Page) {
	p.offset += len(page.Leads)
	for _, lead := range page.Leads {
		if lead.ID == "" {
			continue
		}
		if _, dup := s.index[lead.ID]; dup {
			continue
		}
		l := lead.Clone()
		l.Status = p.stage
		p.leads = append(p.leads, l)
		s.index[l.ID] = p.stage
	}
	p.hasMore = page.HasMore
	p.total = page.Total
	if p.total < len(p.leads) {
		p.total = len(p.leads)
	}
}

// MoveLead relocates a lead between partitions locally. It reports whether
// anything moved; same-stage moves and unknown ids are no-ops.
func (s *Store) MoveLead(id string, from, to Stage) bool {
	if from == to {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	src, okFrom := s.partitions[from]
	dst, okTo := s.partitions[to]
	if !okFrom || !okTo {
		return false
	}
	i := src.indexOf(id)
	if i < 0 {
		return false
	}
	lead := src.detach(i)
	lead.Status = to
	dst.leads = append([]Lead{lead}, dst.leads...)
	dst.total++
	dst.local[id] = struct{}{}
	s.index[id] = to
	return true
}

// UpdateLead shallow-merges patch into the lead. Missing leads are a
// silent no-op; invalid custom fields are rejected before any change.
func (s *Store) UpdateLead(stage Stage, id string, patch LeadPatch) (bool, error) {
	if err := patch.Validate(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.partitions[stage]
	if !ok {
		return false, nil
	}
	i := p.indexOf(id)
	if i < 0 {
		return false, nil
	}
	patch.apply(&p.leads[i])
	return true, nil
}

// RemoveLead deletes a lead from its partition and decrements the total.
func (s *Store) RemoveLead(stage Stage, id string) bool {
	s.mu.Lock()
	p, ok := s.partitions[stage]
	if !ok {
		s.mu.Unlock()
		return false
	}
	i := p.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	p.detach(i)
	delete(s.index, id)
	hooks := append([]func(string){}, s.onRemove...)
	s.mu.Unlock()

	for _, fn := range hooks {
		fn(id)
	}
	return true
}

// Find returns a copy of the lead and the stage currently holding it.
func (s *Store) Find(id string) (Lead, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stage, ok := s.index[id]
	if !ok {
		return Lead{}, false
	}
	p := s.partitions[stage]
	i := p.indexOf(id)
	if i < 0 {
		return Lead{}, false
	}
	return p.leads[i].Clone(), true
}

// Partition returns a copy of one partition.
func (s *Store) Partition(stage Stage) (PartitionSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.partitions[stage]
	if !ok {
		return PartitionSnapshot{}, false
	}
	return snapshotOf(p), true
}

// Snapshot deep-copies the board.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Stages:     append([]Stage(nil), s.order...),
		Partitions: make(map[Stage]PartitionSnapshot, len(s.partitions)),
	}
	for stage, p := range s.partitions {
		snap.Partitions[stage] = snapshotOf(p)
	}
	return snap
}

func snapshotOf(p *partition) PartitionSnapshot {
	leads := make([]Lead, len(p.leads))
	for i := range p.leads {
		leads[i] = p.leads[i].Clone()
	}
	return PartitionSnapshot{
		Stage:   p.stage,
		Leads:   leads,
		Total:   p.total,
		HasMore: p.hasMore && len(p.leads) < p.total,
		Loaded:  p.loaded,
		Loading: p.loading,
		Err:     p.lastErr,
	}
}
