package pipeline

import "errors"

var (
	// ErrNoStages is returned when a board is configured without stages
	ErrNoStages = errors.New("pipeline: at least one stage is required")

	// ErrUnknownStage is returned for stages outside the configured set
	ErrUnknownStage = errors.New("pipeline: unknown stage")

	// ErrDuplicateStage is returned when a stage is configured twice
	ErrDuplicateStage = errors.New("pipeline: duplicate stage")

	// ErrInvalidCustomField is returned when a custom field fails validation
	ErrInvalidCustomField = errors.New("pipeline: invalid custom field")

	// ErrStoreClosed is returned by loads issued after teardown
	ErrStoreClosed = errors.New("pipeline: store closed")

	ErrConfirmationRequired = errors.New("pipeline: move requires confirmation")
	ErrMoveInFlight         = errors.New("pipeline: move already in flight for lead")
	ErrMoveResolved         = errors.New("pipeline: move already resolved")
	ErrMoveFailed           = errors.New("pipeline: move rejected by backend")

	ErrEmptySelection   = errors.New("pipeline: no leads selected")
	ErrUnknownAction    = errors.New("pipeline: unknown bulk action")
	ErrInvalidBulkParam = errors.New("pipeline: invalid bulk parameters")
	ErrBulkFailed       = errors.New("pipeline: bulk action failed")
)
