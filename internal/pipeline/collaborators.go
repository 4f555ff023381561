package pipeline

import "context"

// Page is one page of a stage's server-side ordered lead set. HasMore is
// authoritative for pagination; Total may be approximate.
type Page struct {
	Leads   []Lead `json:"leads"`
	HasMore bool   `json:"has_more"`
	Total   int    `json:"total"`
}

// PageLoader fetches a page of leads for a stage. Implementations must be
// idempotent for the same (stage, offset).
type PageLoader interface {
	LoadPage(ctx context.Context, stage Stage, offset, limit int) (Page, error)
}

// PageLoaderFunc adapts a function to PageLoader.
type PageLoaderFunc func(ctx context.Context, stage Stage, offset, limit int) (Page, error)

func (f PageLoaderFunc) LoadPage(ctx context.Context, stage Stage, offset, limit int) (Page, error) {
	return f(ctx, stage, offset, limit)
}

// MoveExecutor performs the remote stage change for one lead.
type MoveExecutor interface {
	MoveLead(ctx context.Context, leadID string, target Stage) error
}

// MoveExecutorFunc adapts a function to MoveExecutor.
type MoveExecutorFunc func(ctx context.Context, leadID string, target Stage) error

func (f MoveExecutorFunc) MoveLead(ctx context.Context, leadID string, target Stage) error {
	return f(ctx, leadID, target)
}

// BulkResult is what a bulk executor reports back.
type BulkResult struct {
	Success       bool   `json:"success"`
	AffectedCount int    `json:"affected_count"`
	Location      string `json:"location,omitempty"` // export download link
}

// BulkExecutor runs one bulk action remotely over the selected leads.
type BulkExecutor interface {
	Execute(ctx context.Context, leads []Lead, params BulkParams) (BulkResult, error)
}

// BulkExecutorFunc adapts a function to BulkExecutor.
type BulkExecutorFunc func(ctx context.Context, leads []Lead, params BulkParams) (BulkResult, error)

func (f BulkExecutorFunc) Execute(ctx context.Context, leads []Lead, params BulkParams) (BulkResult, error) {
	return f(ctx, leads, params)
}

// Assignment is the qualification workflow's outcome.
type Assignment struct {
	AssigneeID   string `json:"assignee_id"`
	AssigneeName string `json:"assignee_name"`
}

// QualificationWorkflow runs when a lead lands in the qualification stage.
type QualificationWorkflow interface {
	Qualify(ctx context.Context, lead Lead) (Assignment, error)
}

// ExportSink turns selected leads into a downloadable delimited file and
// returns where it can be fetched.
type ExportSink interface {
	Export(ctx context.Context, leads []Lead, filename string) (string, error)
}

// Collaborators bundles the remote operations a Board depends on.
type Collaborators struct {
	Loader    PageLoader
	Mover     MoveExecutor
	Bulk      map[Action]BulkExecutor
	Qualifier QualificationWorkflow
}
