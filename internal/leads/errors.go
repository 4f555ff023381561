package leads

import "errors"

var (
	// ErrMissingOrgID is returned when a request carries no org scope
	ErrMissingOrgID = errors.New("org_id is required")

	// ErrInvalidName is returned when the name is invalid
	ErrInvalidName = errors.New("name is required")

	// ErrMissingContact is returned when both email and phone are missing
	ErrMissingContact = errors.New("either email or phone is required")

	// ErrLeadNotFound is returned when a lead is not found
	ErrLeadNotFound = errors.New("lead not found")

	// ErrInvalidStage is returned for a status outside the configured pipeline
	ErrInvalidStage = errors.New("unknown pipeline stage")

	// ErrNoLeads is returned when a bulk request names no leads
	ErrNoLeads = errors.New("lead_ids is required")

	// ErrInvalidValue is returned for a negative lead value
	ErrInvalidValue = errors.New("value must not be negative")
)
