package leads

import (
	"strings"
	"time"

	"github.com/wolfman30/medspa-pipeline/internal/pipeline"
)

// CreateLeadRequest represents the request body for creating a lead
type CreateLeadRequest struct {
	OrgID        string                `json:"-"`
	Name         string                `json:"name"`
	Email        string                `json:"email"`
	Phone        string                `json:"phone"`
	Message      string                `json:"message"`
	Source       string                `json:"source"`
	ValueCents   int64                 `json:"value_cents"`
	Tags         []string              `json:"tags"`
	CustomFields pipeline.CustomFields `json:"custom_fields"`
}

// Validate validates the create lead request
func (r *CreateLeadRequest) Validate() error {
	if strings.TrimSpace(r.OrgID) == "" {
		return ErrMissingOrgID
	}
	if strings.TrimSpace(r.Name) == "" {
		return ErrInvalidName
	}
	if r.Email == "" && r.Phone == "" {
		return ErrMissingContact
	}
	if r.ValueCents < 0 {
		return ErrInvalidValue
	}
	return r.CustomFields.Validate()
}

// channel is the intake channel recorded on the lead. Web form
// submissions without an explicit source count as web.
func (r *CreateLeadRequest) channel() string {
	if s := strings.ToLower(strings.TrimSpace(r.Source)); s != "" {
		return s
	}
	return "web"
}

// newLead builds the row for a validated request. New leads always enter
// the first configured stage.
func (r *CreateLeadRequest) newLead(id string, stage pipeline.Stage, now time.Time) pipeline.Lead {
	return pipeline.Lead{
		ID:           id,
		OrgID:        r.OrgID,
		Name:         strings.TrimSpace(r.Name),
		Email:        strings.TrimSpace(r.Email),
		Phone:        strings.TrimSpace(r.Phone),
		Channel:      r.channel(),
		Status:       stage,
		ValueCents:   r.ValueCents,
		Tags:         pipeline.NewTags(r.Tags...),
		CustomFields: r.CustomFields.Clone(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// StatusRequest is the body of a single-lead stage change.
type StatusRequest struct {
	Status pipeline.Stage `json:"status"`
}

// BulkRequest is the body of a bulk action. Only the fields the action
// needs are read.
type BulkRequest struct {
	LeadIDs      []string       `json:"lead_ids"`
	TargetStage  pipeline.Stage `json:"target_stage,omitempty"`
	AssigneeID   string         `json:"assignee_id,omitempty"`
	AssigneeName string         `json:"assignee_name,omitempty"`
	Tag          string         `json:"tag,omitempty"`
	Filename     string         `json:"filename,omitempty"`
}

// StatsQuery parameterizes the aggregate query.
type StatsQuery struct {
	Now       time.Time
	Converted pipeline.Stage
	Rejected  pipeline.Stage
}

// statsQueryFor derives the stage roles from the board configuration.
func statsQueryFor(cfg pipeline.BoardConfig, now time.Time) StatsQuery {
	return StatsQuery{Now: now, Converted: cfg.ConvertedStage, Rejected: cfg.DestructiveStage}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
