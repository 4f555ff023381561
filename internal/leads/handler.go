package leads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	httpmiddleware "github.com/wolfman30/medspa-pipeline/internal/http/middleware"
	"github.com/wolfman30/medspa-pipeline/internal/livestats"
	"github.com/wolfman30/medspa-pipeline/internal/pipeline"
	"github.com/wolfman30/medspa-pipeline/pkg/logging"
)

const maxPageSize = 100

// Assigner picks who a newly qualified lead goes to.
type Assigner interface {
	Next(ctx context.Context, orgID string) (pipeline.Assignment, error)
}

// StatsPublisher pushes refreshed aggregates to live subscribers.
type StatsPublisher interface {
	Publish(ctx context.Context, orgID string, msg livestats.StatsMessage) error
}

// Handler handles HTTP requests for leads and the pipeline board
type Handler struct {
	repo      Repository
	cfg       pipeline.BoardConfig
	logger    *logging.Logger
	activity  ActivityRecorder
	assigner  Assigner
	exporter  pipeline.ExportSink
	publisher StatsPublisher
	now       func() time.Time
}

// HandlerOption configures optional collaborators.
type HandlerOption func(*Handler)

func WithActivity(a ActivityRecorder) HandlerOption    { return func(h *Handler) { h.activity = a } }
func WithAssigner(a Assigner) HandlerOption            { return func(h *Handler) { h.assigner = a } }
func WithExporter(e pipeline.ExportSink) HandlerOption { return func(h *Handler) { h.exporter = e } }
func WithPublisher(p StatsPublisher) HandlerOption     { return func(h *Handler) { h.publisher = p } }

// NewHandler creates a new leads handler
func NewHandler(repo Repository, cfg pipeline.BoardConfig, logger *logging.Logger, opts ...HandlerOption) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	if len(cfg.Stages) == 0 {
		cfg = pipeline.DefaultBoardConfig()
	}
	h := &Handler{
		repo:   repo,
		cfg:    cfg,
		logger: logger.Component("leads"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes mounts the board API. Callers put org authentication in front.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/leads/web", h.CreateWebLead)
	r.Get("/leads/{leadID}", h.GetLead)
	r.Route("/pipeline", func(r chi.Router) {
		r.Get("/stages", h.ListStages)
		r.Get("/stages/{stage}/leads", h.ListStage)
		r.Put("/leads/{leadID}/status", h.UpdateStatus)
		r.Post("/leads/{leadID}/qualify", h.Qualify)
		r.Post("/bulk/{action}", h.Bulk)
		r.Get("/stats", h.Stats)
		r.Get("/activity", h.ListActivity)
	})
	return r
}

// CreateWebLead handles POST /leads/web requests
func (h *Handler) CreateWebLead(w http.ResponseWriter, r *http.Request) {
	var req CreateLeadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode request", "error", err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	orgID, ok := orgFrom(w, r)
	if !ok {
		return
	}
	req.OrgID = orgID

	lead, err := h.repo.Create(r.Context(), &req)
	if err != nil {
		if isValidation(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("failed to create lead", "error", err, "org_id", orgID)
		writeError(w, http.StatusInternalServerError, "failed to create lead")
		return
	}

	h.logger.Info("lead created", "id", lead.ID, "org_id", orgID, "channel", lead.Channel)
	h.record(r, ActivityCreated, []string{lead.ID}, lead.Channel)
	h.publishStats(r.Context(), orgID)
	writeJSON(w, http.StatusCreated, lead)
}

// GetLead handles GET /leads/{leadID}
func (h *Handler) GetLead(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFrom(w, r)
	if !ok {
		return
	}
	lead, err := h.repo.GetByID(r.Context(), orgID, chi.URLParam(r, "leadID"))
	if err != nil {
		h.repoError(w, err, "failed to load lead")
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

// StagesResponse describes the configured board.
type StagesResponse struct {
	Stages             []pipeline.Stage `json:"stages"`
	DestructiveStage   pipeline.Stage   `json:"destructive_stage,omitempty"`
	QualificationStage pipeline.Stage   `json:"qualification_stage,omitempty"`
	ConvertedStage     pipeline.Stage   `json:"converted_stage,omitempty"`
	PageSize           int              `json:"page_size"`
}

// ListStages handles GET /pipeline/stages
func (h *Handler) ListStages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StagesResponse{
		Stages:             h.cfg.Stages,
		DestructiveStage:   h.cfg.DestructiveStage,
		QualificationStage: h.cfg.QualificationStage,
		ConvertedStage:     h.cfg.ConvertedStage,
		PageSize:           h.cfg.PageSize,
	})
}

// ListStage handles GET /pipeline/stages/{stage}/leads?offset=&limit=
func (h *Handler) ListStage(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFrom(w, r)
	if !ok {
		return
	}
	stage, ok := h.stageParam(w, chi.URLParam(r, "stage"))
	if !ok {
		return
	}

	limit := h.cfg.PageSize
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 && n <= maxPageSize {
			limit = n
		}
	}
	offset := 0
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if n, err := strconv.Atoi(offsetStr); err == nil && n >= 0 {
			offset = n
		}
	}

	page, err := h.repo.ListByStage(r.Context(), orgID, stage, offset, limit)
	if err != nil {
		h.logger.Error("failed to list stage", "error", err, "org_id", orgID, "stage", stage)
		writeError(w, http.StatusInternalServerError, "failed to list leads")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// UpdateStatus handles PUT /pipeline/leads/{leadID}/status
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFrom(w, r)
	if !ok {
		return
	}
	var req StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	stage, ok := h.stageParam(w, string(req.Status))
	if !ok {
		return
	}

	lead, err := h.repo.UpdateStatus(r.Context(), orgID, chi.URLParam(r, "leadID"), stage)
	if err != nil {
		h.repoError(w, err, "failed to update status")
		return
	}
	h.logger.Info("lead moved", "id", lead.ID, "org_id", orgID, "status", stage)
	h.record(r, ActivityMoved, []string{lead.ID}, string(stage))
	h.publishStats(r.Context(), orgID)
	writeJSON(w, http.StatusOK, lead)
}

// Qualify handles POST /pipeline/leads/{leadID}/qualify by picking the next
// assignee and assigning the lead to them.
func (h *Handler) Qualify(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFrom(w, r)
	if !ok {
		return
	}
	if h.assigner == nil {
		writeError(w, http.StatusNotImplemented, "qualification workflow not configured")
		return
	}
	id := chi.URLParam(r, "leadID")

	a, err := h.assigner.Next(r.Context(), orgID)
	if err != nil {
		h.logger.Error("assignment failed", "error", err, "org_id", orgID, "id", id)
		writeError(w, http.StatusServiceUnavailable, "no assignee available")
		return
	}
	n, err := h.repo.BulkAssign(r.Context(), orgID, []string{id}, a)
	if err != nil {
		h.repoError(w, err, "failed to assign lead")
		return
	}
	if n == 0 {
		writeError(w, http.StatusNotFound, ErrLeadNotFound.Error())
		return
	}
	h.record(r, ActivityAssign, []string{id}, a.AssigneeID)
	writeJSON(w, http.StatusOK, a)
}

// Bulk handles POST /pipeline/bulk/{action}
func (h *Handler) Bulk(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFrom(w, r)
	if !ok {
		return
	}
	action, err := pipeline.ParseAction(chi.URLParam(r, "action"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	var req BulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ids := dedupe(req.LeadIDs)
	if len(ids) == 0 {
		writeError(w, http.StatusBadRequest, ErrNoLeads.Error())
		return
	}

	ctx := r.Context()
	var (
		result   pipeline.BulkResult
		detail   string
		activity ActivityAction
	)
	switch action {
	case pipeline.ActionMove:
		stage, ok := h.stageParam(w, string(req.TargetStage))
		if !ok {
			return
		}
		result.AffectedCount, err = h.repo.BulkMove(ctx, orgID, ids, stage)
		activity, detail = ActivityMove, string(stage)
	case pipeline.ActionAssign:
		if strings.TrimSpace(req.AssigneeID) == "" {
			writeError(w, http.StatusBadRequest, "assignee_id is required")
			return
		}
		a := pipeline.Assignment{AssigneeID: req.AssigneeID, AssigneeName: req.AssigneeName}
		result.AffectedCount, err = h.repo.BulkAssign(ctx, orgID, ids, a)
		activity, detail = ActivityAssign, req.AssigneeID
	case pipeline.ActionTag:
		tag := strings.TrimSpace(req.Tag)
		if tag == "" {
			writeError(w, http.StatusBadRequest, "tag is required")
			return
		}
		result.AffectedCount, err = h.repo.BulkTag(ctx, orgID, ids, tag)
		activity, detail = ActivityTag, tag
	case pipeline.ActionDelete:
		result.AffectedCount, err = h.repo.BulkDelete(ctx, orgID, ids)
		activity = ActivityDelete
	case pipeline.ActionExport:
		result, err = h.export(ctx, orgID, ids, req.Filename)
		activity, detail = ActivityExport, result.Location
	}
	if err != nil {
		h.logger.Error("bulk action failed", "error", err, "org_id", orgID, "action", action, "count", len(ids))
		writeError(w, http.StatusBadGateway, fmt.Sprintf("bulk %s failed", action))
		return
	}
	result.Success = true

	h.logger.Info("bulk action applied", "org_id", orgID, "action", action, "requested", len(ids), "affected", result.AffectedCount)
	h.record(r, activity, ids, detail)
	if action == pipeline.ActionMove || action == pipeline.ActionDelete {
		h.publishStats(ctx, orgID)
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) export(ctx context.Context, orgID string, ids []string, filename string) (pipeline.BulkResult, error) {
	if h.exporter == nil {
		return pipeline.BulkResult{}, errors.New("leads: export sink not configured")
	}
	selected, err := h.repo.GetMany(ctx, orgID, ids)
	if err != nil {
		return pipeline.BulkResult{}, err
	}
	if strings.TrimSpace(filename) == "" {
		filename = pipeline.DefaultExportFilename(h.now())
	}
	loc, err := h.exporter.Export(ctx, selected, filename)
	if err != nil {
		return pipeline.BulkResult{}, err
	}
	return pipeline.BulkResult{AffectedCount: len(selected), Location: loc}, nil
}

// Stats handles GET /pipeline/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFrom(w, r)
	if !ok {
		return
	}
	b, err := h.repo.Stats(r.Context(), orgID, statsQueryFor(h.cfg, h.now()))
	if err != nil {
		h.logger.Error("failed to get stats", "error", err, "org_id", orgID)
		writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// ListActivity handles GET /pipeline/activity. Without a persistent log
// the list is empty.
func (h *Handler) ListActivity(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFrom(w, r)
	if !ok {
		return
	}
	out := []Activity{}
	if reader, ok := h.activity.(ActivityReader); ok {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		rows, err := reader.Recent(r.Context(), orgID, limit)
		if err != nil {
			h.logger.Error("failed to list activity", "error", err, "org_id", orgID)
			writeError(w, http.StatusInternalServerError, "failed to list activity")
			return
		}
		if rows != nil {
			out = rows
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"activity": out})
}

// publishStats recomputes the org's aggregates and pushes them. Failures
// only cost subscribers a refresh.
func (h *Handler) publishStats(ctx context.Context, orgID string) {
	if h.publisher == nil {
		return
	}
	b, err := h.repo.Stats(ctx, orgID, statsQueryFor(h.cfg, h.now()))
	if err != nil {
		h.logger.Warn("stats refresh failed", "error", err, "org_id", orgID)
		return
	}
	prev := livestats.Full(b.Previous)
	msg := livestats.StatsMessage{PartialCounters: livestats.Full(b.Current), Previous: &prev}
	if err := h.publisher.Publish(ctx, orgID, msg); err != nil {
		h.logger.Warn("stats publish failed", "error", err, "org_id", orgID)
	}
}

func (h *Handler) record(r *http.Request, action ActivityAction, ids []string, detail string) {
	if h.activity == nil {
		return
	}
	a := Activity{
		OrgID:   httpmiddleware.OrgIDFromContext(r.Context()),
		Action:  action,
		LeadIDs: ids,
		Detail:  detail,
	}
	if claims, ok := httpmiddleware.StaffClaimsFromContext(r.Context()); ok {
		a.Actor = claims.Subject
	}
	if err := h.activity.Record(r.Context(), a); err != nil {
		h.logger.Warn("activity not recorded", "error", err, "action", action)
	}
}

func (h *Handler) stageParam(w http.ResponseWriter, raw string) (pipeline.Stage, bool) {
	stage := pipeline.Stage(strings.ToLower(strings.TrimSpace(raw)))
	if !h.cfg.Has(stage) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s: %q", ErrInvalidStage, raw))
		return "", false
	}
	return stage, true
}

func (h *Handler) repoError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, ErrLeadNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNoLeads):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error(msg, "error", err)
		writeError(w, http.StatusInternalServerError, msg)
	}
}

func orgFrom(w http.ResponseWriter, r *http.Request) (string, bool) {
	orgID := httpmiddleware.OrgIDFromContext(r.Context())
	if orgID == "" {
		writeError(w, http.StatusBadRequest, "missing org context")
		return "", false
	}
	return orgID, true
}

func isValidation(err error) bool {
	return errors.Is(err, ErrMissingOrgID) ||
		errors.Is(err, ErrInvalidName) ||
		errors.Is(err, ErrMissingContact) ||
		errors.Is(err, ErrInvalidValue) ||
		errors.Is(err, pipeline.ErrInvalidCustomField)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
