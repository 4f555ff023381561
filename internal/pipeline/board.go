package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wolfman30/medspa-pipeline/internal/observability/metrics"
	"github.com/wolfman30/medspa-pipeline/pkg/logging"
)

// Board composes the store, selection, move protocol and bulk coordinator
// around one configuration.
type Board struct {
	cfg       BoardConfig
	store     *Store
	selection *Selection
	notices   *Notices
	mover     *Mover
	bulk      *Coordinator
	logger    *logging.Logger
}

// NewBoard validates cfg and wires the engine to its collaborators. Loader
// and Mover are required; bulk executors and the qualifier are optional.
func NewBoard(cfg BoardConfig, collab Collaborators, logger *logging.Logger) (*Board, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if collab.Mover == nil {
		return nil, errors.New("pipeline: move executor required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	store, err := NewStore(cfg, collab.Loader, logger)
	if err != nil {
		return nil, err
	}
	selection := NewSelection()
	store.OnRemove(selection.Remove)
	notices := NewNotices(cfg.NotificationTTL)

	return &Board{
		cfg:       cfg,
		store:     store,
		selection: selection,
		notices:   notices,
		mover:     NewMover(cfg, store, selection, collab.Mover, collab.Qualifier, logger),
		bulk:      NewCoordinator(cfg, store, selection, collab.Bulk, notices, logger),
		logger:    logger.Component("board"),
	}, nil
}

// WithMetrics attaches metrics to every component.
func (b *Board) WithMetrics(m *metrics.BoardMetrics) *Board {
	b.store.WithMetrics(m)
	b.mover.WithMetrics(m)
	b.bulk.WithMetrics(m)
	return b
}

func (b *Board) Config() BoardConfig       { return b.cfg }
func (b *Board) Store() *Store             { return b.store }
func (b *Board) Selection() *Selection     { return b.selection }
func (b *Board) Notices() *Notices         { return b.notices }
func (b *Board) Mover() *Mover             { return b.mover }
func (b *Board) Coordinator() *Coordinator { return b.bulk }

// Load fetches the first page of every stage. A failing stage does not
// block the others; the joined error names each one.
func (b *Board) Load(ctx context.Context) error {
	err := b.store.LoadInitial(ctx)
	if err != nil {
		b.notices.Notify(Notification{Type: NoticeError, Message: "Some columns failed to load"})
	}
	return err
}

// LoadMore pages one stage forward.
func (b *Board) LoadMore(ctx context.Context, stage Stage) error {
	return b.store.LoadMore(ctx, stage)
}

// Toggle forwards a selection gesture.
func (b *Board) Toggle(id string, extend bool) {
	b.selection.Toggle(id, extend)
}

func (b *Board) ClearSelection() {
	b.selection.Clear()
}

// Move runs a drag-and-drop move. Backend failures are reported as an error
// notification as well as returned.
func (b *Board) Move(ctx context.Context, intent MoveIntent, confirm ConfirmFunc) (*Move, error) {
	m, err := b.mover.Move(ctx, intent, confirm)
	if errors.Is(err, ErrMoveFailed) {
		b.notices.Notify(Notification{
			Type:    NoticeError,
			Message: fmt.Sprintf("Could not move lead to %s", intent.To),
		})
	}
	return m, err
}

// Bulk runs an action over the current selection.
func (b *Board) Bulk(ctx context.Context, action Action, params BulkParams) (BulkReport, error) {
	return b.bulk.Run(ctx, action, params)
}

// RemoveLead drops a lead locally, clearing its selection membership.
func (b *Board) RemoveLead(stage Stage, id string) bool {
	return b.store.RemoveLead(stage, id)
}

// View renders the filtered columns. A board configured with HideEmpty
// always hides empty columns.
func (b *Board) View(opts FilterOptions) []FilteredPartition {
	if b.cfg.HideEmpty {
		opts.HideEmpty = true
	}
	return Filter(b.store.Snapshot(), opts)
}

// Baseline computes the local aggregates at now.
func (b *Board) Baseline(now time.Time) Baseline {
	return ComputeBaseline(b.cfg, b.store.Snapshot(), now)
}

// Close discards any page results that arrive later.
func (b *Board) Close() {
	b.store.Close()
	b.logger.Debug("board closed")
}
