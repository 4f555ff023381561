package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/medspa-pipeline/internal/observability/metrics"
	"github.com/wolfman30/medspa-pipeline/pkg/logging"
)

var bulkTracer = otel.Tracer("medspa.internal.pipeline.bulk")

// Action identifies a bulk operation.
type Action string

const (
	ActionMove   Action = "move"
	ActionAssign Action = "assign"
	ActionTag    Action = "tag"
	ActionExport Action = "export"
	ActionDelete Action = "delete"
)

// Actions is the closed set of bulk actions.
var Actions = []Action{ActionMove, ActionAssign, ActionTag, ActionExport, ActionDelete}

// ParseAction validates a raw action name.
func ParseAction(raw string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Actions {
		if a == known {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, raw)
}

// BulkParams carries the action-specific parameters. Only the fields the
// action needs are read.
type BulkParams struct {
	TargetStage  Stage  `json:"target_stage,omitempty"`
	AssigneeID   string `json:"assignee_id,omitempty"`
	AssigneeName string `json:"assignee_name,omitempty"`
	Tag          string `json:"tag,omitempty"`
	Filename     string `json:"filename,omitempty"`
	// Confirmed must be set for deletes and for moves into the
	// destructive stage.
	Confirmed bool `json:"confirmed,omitempty"`
}

// BulkReport is the outcome of one Coordinator.Run call.
type BulkReport struct {
	Action       Action
	Result       BulkResult
	Mirrored     int
	Skipped      int
	Notification Notification
}

// Coordinator applies one action across the selection and mirrors the
// effect locally once the executor reports success.
type Coordinator struct {
	cfg       BoardConfig
	store     *Store
	selection *Selection
	executors map[Action]BulkExecutor
	notifier  Notifier
	logger    *logging.Logger
	metrics   *metrics.BoardMetrics
}

// NewCoordinator wires the coordinator. A nil notifier gets a private
// Notices center using the configured TTL.
func NewCoordinator(cfg BoardConfig, store *Store, selection *Selection, executors map[Action]BulkExecutor, notifier Notifier, logger *logging.Logger) *Coordinator {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = logging.Default()
	}
	if notifier == nil {
		notifier = NewNotices(cfg.NotificationTTL)
	}
	execs := make(map[Action]BulkExecutor, len(executors))
	for a, e := range executors {
		if e != nil {
			execs[a] = e
		}
	}
	return &Coordinator{
		cfg:       cfg,
		store:     store,
		selection: selection,
		executors: execs,
		notifier:  notifier,
		logger:    logger.Component("bulk_coordinator"),
	}
}

func (c *Coordinator) WithMetrics(m *metrics.BoardMetrics) *Coordinator {
	c.metrics = m
	return c
}

// Run executes action over the current selection. Exactly one notification
// is produced per call, whatever the outcome.
func (c *Coordinator) Run(ctx context.Context, action Action, params BulkParams) (BulkReport, error) {
	report := BulkReport{Action: action}

	if err := c.validate(action, params); err != nil {
		report.Notification = c.notify(NoticeError, bulkErrorMessage(action, err))
		c.metrics.ObserveBulk(string(action), "invalid", 0)
		return report, err
	}
	exec, ok := c.executors[action]
	if !ok {
		err := fmt.Errorf("%w: no executor for %s", ErrUnknownAction, action)
		report.Notification = c.notify(NoticeError, bulkErrorMessage(action, err))
		c.metrics.ObserveBulk(string(action), "invalid", 0)
		return report, err
	}

	leads, skipped := c.materialize()
	report.Skipped = skipped
	if len(leads) == 0 {
		report.Notification = c.notify(NoticeWarning, "No leads selected")
		c.metrics.ObserveBulk(string(action), "empty", 0)
		return report, ErrEmptySelection
	}

	ctx, span := bulkTracer.Start(ctx, "pipeline.bulk.execute")
	defer span.End()
	span.SetAttributes(
		attribute.String("pipeline.action", string(action)),
		attribute.Int("pipeline.selected", len(leads)),
	)

	res, err := exec.Execute(ctx, leads, params)
	if err == nil && !res.Success {
		err = errors.New("executor reported failure")
	}
	if err != nil {
		span.RecordError(err)
		failure := fmt.Errorf("%w: %s: %w", ErrBulkFailed, action, err)
		report.Result = res
		report.Notification = c.notify(NoticeError, bulkErrorMessage(action, err))
		c.metrics.ObserveBulk(string(action), "error", 0)
		c.logger.Warn("bulk action failed", "action", action, "selected", len(leads), "error", err)
		return report, failure
	}

	report.Result = res
	report.Mirrored = c.mirror(action, params, leads)
	report.Skipped += len(leads) - report.Mirrored
	if c.selection != nil {
		c.selection.Clear()
	}
	span.SetAttributes(attribute.Int("pipeline.affected", res.AffectedCount))
	report.Notification = c.notify(NoticeSuccess, bulkSuccessMessage(action, params, res))
	c.metrics.ObserveBulk(string(action), "ok", res.AffectedCount)
	c.logger.Info("bulk action applied",
		"action", action,
		"selected", len(leads),
		"affected", res.AffectedCount,
		"mirrored", report.Mirrored,
	)
	return report, nil
}

func (c *Coordinator) validate(action Action, params BulkParams) error {
	switch action {
	case ActionMove:
		if !c.cfg.Has(params.TargetStage) {
			return fmt.Errorf("%w: %s", ErrUnknownStage, params.TargetStage)
		}
		if c.cfg.IsDestructive(params.TargetStage) && !params.Confirmed {
			return ErrConfirmationRequired
		}
	case ActionAssign:
		if strings.TrimSpace(params.AssigneeID) == "" {
			return fmt.Errorf("%w: assignee required", ErrInvalidBulkParam)
		}
	case ActionTag:
		if strings.TrimSpace(params.Tag) == "" {
			return fmt.Errorf("%w: tag required", ErrInvalidBulkParam)
		}
	case ActionDelete:
		if !params.Confirmed {
			return ErrConfirmationRequired
		}
	case ActionExport:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	return nil
}

// materialize resolves the selection into local leads, in selection order.
func (c *Coordinator) materialize() ([]Lead, int) {
	if c.selection == nil {
		return nil, 0
	}
	ids := c.selection.IDs()
	leads := make([]Lead, 0, len(ids))
	skipped := 0
	for _, id := range ids {
		lead, ok := c.store.Find(id)
		if !ok {
			skipped++
			continue
		}
		leads = append(leads, lead)
	}
	return leads, skipped
}

// mirror applies the local effect of a successful action. Leads that left
// the store while the executor ran are skipped.
func (c *Coordinator) mirror(action Action, params BulkParams, leads []Lead) int {
	applied := 0
	for _, l := range leads {
		current, ok := c.store.Find(l.ID)
		if !ok {
			continue
		}
		stage := current.Status
		switch action {
		case ActionMove:
			if stage == params.TargetStage || c.store.MoveLead(l.ID, stage, params.TargetStage) {
				applied++
			}
		case ActionTag:
			tags := current.Tags.Union(strings.TrimSpace(params.Tag))
			if ok, err := c.store.UpdateLead(stage, l.ID, LeadPatch{Tags: &tags}); ok && err == nil {
				applied++
			}
		case ActionAssign:
			patch := LeadPatch{AssigneeID: &params.AssigneeID, AssigneeName: &params.AssigneeName}
			if ok, err := c.store.UpdateLead(stage, l.ID, patch); ok && err == nil {
				applied++
			}
		case ActionDelete:
			if c.store.RemoveLead(stage, l.ID) {
				applied++
			}
		case ActionExport:
			applied++
		}
	}
	return applied
}

func (c *Coordinator) notify(kind NotificationType, msg string) Notification {
	return c.notifier.Notify(Notification{Message: msg, Type: kind})
}

func bulkSuccessMessage(action Action, params BulkParams, res BulkResult) string {
	n := res.AffectedCount
	noun := "leads"
	if n == 1 {
		noun = "lead"
	}
	switch action {
	case ActionMove:
		return fmt.Sprintf("%d %s moved to %s", n, noun, params.TargetStage)
	case ActionAssign:
		who := params.AssigneeName
		if who == "" {
			who = params.AssigneeID
		}
		return fmt.Sprintf("%d %s assigned to %s", n, noun, who)
	case ActionTag:
		return fmt.Sprintf("Tag %q added to %d %s", strings.TrimSpace(params.Tag), n, noun)
	case ActionExport:
		if res.Location != "" {
			return fmt.Sprintf("%d %s exported: %s", n, noun, res.Location)
		}
		return fmt.Sprintf("%d %s exported", n, noun)
	case ActionDelete:
		return fmt.Sprintf("%d %s deleted", n, noun)
	default:
		return fmt.Sprintf("%d %s updated", n, noun)
	}
}

func bulkErrorMessage(action Action, err error) string {
	return fmt.Sprintf("Bulk %s failed: %v", action, err)
}

// ExportExecutor adapts an ExportSink to the export action.
type ExportExecutor struct {
	Sink ExportSink
	Now  func() time.Time
}

// DefaultExportFilename names an export after its UTC date.
func DefaultExportFilename(now time.Time) string {
	return fmt.Sprintf("leads-%s.csv", now.UTC().Format("2006-01-02"))
}

func (e ExportExecutor) Execute(ctx context.Context, leads []Lead, params BulkParams) (BulkResult, error) {
	if e.Sink == nil {
		return BulkResult{}, fmt.Errorf("pipeline: export sink not configured")
	}
	name := strings.TrimSpace(params.Filename)
	if name == "" {
		now := time.Now
		if e.Now != nil {
			now = e.Now
		}
		name = DefaultExportFilename(now())
	}
	loc, err := e.Sink.Export(ctx, leads, name)
	if err != nil {
		return BulkResult{}, fmt.Errorf("pipeline: export: %w", err)
	}
	return BulkResult{Success: true, AffectedCount: len(leads), Location: loc}, nil
}
