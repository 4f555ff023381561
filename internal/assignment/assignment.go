// Package assignment picks who a qualified lead is routed to.
package assignment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/medspa-pipeline/internal/pipeline"
	"github.com/wolfman30/medspa-pipeline/pkg/logging"
)

var tracer = otel.Tracer("medspa.internal.assignment")

// ErrNoStaff is returned when no assignee is configured.
var ErrNoStaff = errors.New("assignment: no staff configured")

// Staff is one assignable team member.
type Staff struct {
	ID   string
	Name string
}

// ParseStaff reads "id:Name" entries. A bare id doubles as the name.
func ParseStaff(entries []string) ([]Staff, error) {
	var out []Staff
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		id, name, _ := strings.Cut(e, ":")
		id, name = strings.TrimSpace(id), strings.TrimSpace(name)
		if id == "" {
			return nil, fmt.Errorf("assignment: invalid staff entry %q", e)
		}
		if name == "" {
			name = id
		}
		out = append(out, Staff{ID: id, Name: name})
	}
	return out, nil
}

// RoundRobin rotates through staff per org. The cursor lives in redis so
// every API replica shares it; when redis is unavailable an in-process
// cursor takes over.
type RoundRobin struct {
	staff  []Staff
	redis  *redis.Client
	logger *logging.Logger

	mu    sync.Mutex
	local map[string]int64
}

// NewRoundRobin creates a rotation. client may be nil.
func NewRoundRobin(staff []Staff, client *redis.Client, logger *logging.Logger) *RoundRobin {
	if logger == nil {
		logger = logging.Default()
	}
	return &RoundRobin{
		staff:  append([]Staff(nil), staff...),
		redis:  client,
		logger: logger.Component("assignment"),
		local:  make(map[string]int64),
	}
}

func cursorKey(orgID string) string {
	return fmt.Sprintf("pipeline:assign:%s", orgID)
}

// Next returns the org's next assignee.
func (r *RoundRobin) Next(ctx context.Context, orgID string) (pipeline.Assignment, error) {
	if len(r.staff) == 0 {
		return pipeline.Assignment{}, ErrNoStaff
	}
	ctx, span := tracer.Start(ctx, "assignment.next")
	defer span.End()
	span.SetAttributes(attribute.String("org_id", orgID))

	n, err := r.advance(ctx, orgID)
	if err != nil {
		r.logger.Warn("redis cursor unavailable, using local rotation", "org_id", orgID, "error", err)
		n = r.advanceLocal(orgID)
	}
	s := r.staff[(n-1)%int64(len(r.staff))]
	span.SetAttributes(attribute.String("assignee_id", s.ID))
	return pipeline.Assignment{AssigneeID: s.ID, AssigneeName: s.Name}, nil
}

func (r *RoundRobin) advance(ctx context.Context, orgID string) (int64, error) {
	if r.redis == nil {
		return 0, errors.New("redis not configured")
	}
	n, err := r.redis.Incr(ctx, cursorKey(orgID)).Result()
	if err != nil {
		return 0, fmt.Errorf("incr: %w", err)
	}
	return n, nil
}

func (r *RoundRobin) advanceLocal(orgID string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.local[orgID]++
	return r.local[orgID]
}

// Workflow runs the rotation in-process as the board's qualification
// workflow.
type Workflow struct {
	Assigner interface {
		Next(ctx context.Context, orgID string) (pipeline.Assignment, error)
	}
}

func (w Workflow) Qualify(ctx context.Context, lead pipeline.Lead) (pipeline.Assignment, error) {
	return w.Assigner.Next(ctx, lead.OrgID)
}
