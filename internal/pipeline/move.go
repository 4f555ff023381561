package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/medspa-pipeline/internal/observability/metrics"
	"github.com/wolfman30/medspa-pipeline/pkg/logging"
)

var moveTracer = otel.Tracer("medspa.internal.pipeline.move")

// MoveState is the lifecycle position of a move intent.
type MoveState int

const (
	MoveProposed MoveState = iota
	MoveGated
	MoveCommitting
	MoveApplied
	MoveFailed
	MoveCancelled
)

func (s MoveState) String() string {
	switch s {
	case MoveProposed:
		return "proposed"
	case MoveGated:
		return "gated"
	case MoveCommitting:
		return "committing"
	case MoveApplied:
		return "applied"
	case MoveFailed:
		return "failed"
	case MoveCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// MoveIntent proposes relocating one lead between stages.
type MoveIntent struct {
	LeadID string `json:"lead_id"`
	From   Stage  `json:"from"`
	To     Stage  `json:"to"`
}

// Move tracks one intent through the protocol. It is never persisted.
type Move struct {
	Intent MoveIntent
	// Lead is the local copy at proposal time; Found is false when the lead
	// was not materialized.
	Lead  Lead
	Found bool

	mu    sync.Mutex
	state MoveState
	err   error
}

func (m *Move) State() MoveState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Move) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Noop reports a drop onto the lead's own column.
func (m *Move) Noop() bool {
	return m.Intent.From == m.Intent.To
}

func (m *Move) setState(s MoveState, err error) {
	m.mu.Lock()
	m.state = s
	m.err = err
	m.mu.Unlock()
}

// ConfirmFunc asks the operator to confirm a gated move.
type ConfirmFunc func(ctx context.Context, m *Move) bool

// Mover runs the move protocol. The store is only touched after the
// executor succeeds.
type Mover struct {
	cfg       BoardConfig
	store     *Store
	selection *Selection
	executor  MoveExecutor
	qualifier QualificationWorkflow
	logger    *logging.Logger
	metrics   *metrics.BoardMetrics

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewMover wires the protocol. qualifier may be nil.
func NewMover(cfg BoardConfig, store *Store, selection *Selection, executor MoveExecutor, qualifier QualificationWorkflow, logger *logging.Logger) *Mover {
	if logger == nil {
		logger = logging.Default()
	}
	return &Mover{
		cfg:       cfg.withDefaults(),
		store:     store,
		selection: selection,
		executor:  executor,
		qualifier: qualifier,
		logger:    logger.Component("move_protocol"),
		inflight:  make(map[string]struct{}),
	}
}

func (mv *Mover) WithMetrics(m *metrics.BoardMetrics) *Mover {
	mv.metrics = m
	return mv
}

// InFlight reports whether a commit is pending for the lead.
func (mv *Mover) InFlight(leadID string) bool {
	mv.mu.Lock()
	defer mv.mu.Unlock()
	_, ok := mv.inflight[leadID]
	return ok
}

// Propose creates a move. Moves into the destructive stage start gated.
func (mv *Mover) Propose(intent MoveIntent) (*Move, error) {
	if !mv.cfg.Has(intent.To) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStage, intent.To)
	}
	m := &Move{Intent: intent, state: MoveProposed}
	if lead, ok := mv.store.Find(intent.LeadID); ok {
		m.Lead = lead
		m.Found = true
		// The board is the authority on where a loaded lead sits.
		if lead.Status != intent.From {
			mv.logger.Debug("rebasing stale move source",
				"lead_id", intent.LeadID,
				"from", intent.From,
				"actual", lead.Status,
			)
			m.Intent.From = lead.Status
		}
	}
	if !m.Noop() && mv.cfg.IsDestructive(intent.To) {
		m.state = MoveGated
	}
	return m, nil
}

// Submit commits a proposed move. Gated moves return
// ErrConfirmationRequired and leave everything untouched.
func (mv *Mover) Submit(ctx context.Context, m *Move) error {
	if m.Noop() {
		return nil
	}
	switch m.State() {
	case MoveProposed:
		return mv.commit(ctx, m)
	case MoveGated:
		return ErrConfirmationRequired
	default:
		return ErrMoveResolved
	}
}

// Confirm commits a gated (or plain proposed) move.
func (mv *Mover) Confirm(ctx context.Context, m *Move) error {
	if m.Noop() {
		return nil
	}
	switch m.State() {
	case MoveProposed, MoveGated:
		return mv.commit(ctx, m)
	default:
		return ErrMoveResolved
	}
}

// Cancel discards a move that has not been committed.
func (mv *Mover) Cancel(m *Move) error {
	switch m.State() {
	case MoveProposed, MoveGated:
		m.setState(MoveCancelled, nil)
		mv.metrics.ObserveMove(string(m.Intent.To), "cancelled", 0)
		return nil
	default:
		return ErrMoveResolved
	}
}

// Move drives an intent through the whole protocol, asking confirm when
// the move is gated. A declined confirmation is not an error.
func (mv *Mover) Move(ctx context.Context, intent MoveIntent, confirm ConfirmFunc) (*Move, error) {
	m, err := mv.Propose(intent)
	if err != nil {
		return nil, err
	}
	if m.Noop() {
		return m, nil
	}
	if m.State() == MoveGated {
		if confirm == nil || !confirm(ctx, m) {
			return m, mv.Cancel(m)
		}
		return m, mv.Confirm(ctx, m)
	}
	return m, mv.Submit(ctx, m)
}

func (mv *Mover) commit(ctx context.Context, m *Move) error {
	id := m.Intent.LeadID
	mv.mu.Lock()
	if _, busy := mv.inflight[id]; busy {
		mv.mu.Unlock()
		return ErrMoveInFlight
	}
	mv.inflight[id] = struct{}{}
	mv.mu.Unlock()
	defer func() {
		mv.mu.Lock()
		delete(mv.inflight, id)
		mv.mu.Unlock()
	}()

	m.setState(MoveCommitting, nil)

	ctx, span := moveTracer.Start(ctx, "pipeline.move.commit")
	defer span.End()
	span.SetAttributes(
		attribute.String("medspa.lead_id", id),
		attribute.String("pipeline.from", string(m.Intent.From)),
		attribute.String("pipeline.to", string(m.Intent.To)),
	)

	start := time.Now()
	err := mv.executor.MoveLead(ctx, id, m.Intent.To)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		span.RecordError(err)
		failure := fmt.Errorf("%w: %w", ErrMoveFailed, err)
		m.setState(MoveFailed, failure)
		mv.metrics.ObserveMove(string(m.Intent.To), "failed", elapsed)
		mv.logger.Warn("move rejected by backend",
			"lead_id", id,
			"from", m.Intent.From,
			"to", m.Intent.To,
			"error", err,
		)
		return failure
	}

	from := m.Intent.From
	if lead, ok := mv.store.Find(id); ok {
		from = lead.Status
	}
	mv.store.MoveLead(id, from, m.Intent.To)
	if mv.selection != nil {
		mv.selection.Clear()
	}
	if m.Intent.To == mv.cfg.QualificationStage && mv.qualifier != nil {
		mv.qualify(ctx, id, m.Intent.To)
	}

	m.setState(MoveApplied, nil)
	mv.metrics.ObserveMove(string(m.Intent.To), "applied", elapsed)
	mv.logger.Info("lead moved", "lead_id", id, "from", m.Intent.From, "to", m.Intent.To)
	return nil
}

// qualify runs the qualification workflow after an applied move. Failures
// are logged; the move itself stays applied.
func (mv *Mover) qualify(ctx context.Context, id string, stage Stage) {
	lead, ok := mv.store.Find(id)
	if !ok {
		return
	}
	asg, err := mv.qualifier.Qualify(ctx, lead)
	if err != nil {
		mv.logger.Warn("qualification workflow failed", "lead_id", id, "error", err)
		return
	}
	if asg.AssigneeID == "" && asg.AssigneeName == "" {
		return
	}
	patch := LeadPatch{AssigneeID: &asg.AssigneeID, AssigneeName: &asg.AssigneeName}
	if _, err := mv.store.UpdateLead(stage, id, patch); err != nil {
		mv.logger.Warn("failed to apply qualification result", "lead_id", id, "error", err)
	}
}
