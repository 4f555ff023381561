// Package pipeline holds the lead-pipeline board engine: a partitioned,
// incrementally loaded lead store plus the move, bulk and selection
// protocols that mutate it.
package pipeline

import (
	"fmt"
	"strings"
	"time"
)

// Stage is a pipeline stage. Each stage owns exactly one board partition.
type Stage string

const (
	StageNew       Stage = "new"
	StageReviewing Stage = "reviewing"
	StageQualified Stage = "qualified"
	StageContacted Stage = "contacted"
	StageScheduled Stage = "scheduled"
	StageConverted Stage = "converted"
	StageRejected  Stage = "rejected"
)

// DefaultStages is the ordered stage set used when none is configured.
var DefaultStages = []Stage{
	StageNew,
	StageReviewing,
	StageQualified,
	StageContacted,
	StageScheduled,
	StageConverted,
	StageRejected,
}

const (
	DefaultPageSize        = 20
	DefaultNotificationTTL = 4 * time.Second
)

// ParseStages turns raw names from a comma-separated env list into stages.
func ParseStages(names []string) []Stage {
	out := make([]Stage, 0, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" {
			continue
		}
		out = append(out, Stage(n))
	}
	return out
}

// BoardConfig is the explicit configuration handed to the engine at
// construction time.
type BoardConfig struct {
	Stages             []Stage
	DestructiveStage   Stage
	QualificationStage Stage
	// ConvertedStage is counted as won in local aggregates.
	ConvertedStage     Stage
	PageSize           int
	NotificationTTL    time.Duration
	HideEmpty          bool
}

// DefaultBoardConfig returns the stock clinic pipeline.
func DefaultBoardConfig() BoardConfig {
	stages := make([]Stage, len(DefaultStages))
	copy(stages, DefaultStages)
	return BoardConfig{
		Stages:             stages,
		DestructiveStage:   StageRejected,
		QualificationStage: StageQualified,
		ConvertedStage:     StageConverted,
		PageSize:           DefaultPageSize,
		NotificationTTL:    DefaultNotificationTTL,
	}
}

// withDefaults fills zero values.
func (c BoardConfig) withDefaults() BoardConfig {
	if len(c.Stages) == 0 {
		c.Stages = append([]Stage(nil), DefaultStages...)
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.NotificationTTL <= 0 {
		c.NotificationTTL = DefaultNotificationTTL
	}
	return c
}

// Validate checks the stage set and the special stages.
func (c BoardConfig) Validate() error {
	if len(c.Stages) == 0 {
		return ErrNoStages
	}
	seen := make(map[Stage]struct{}, len(c.Stages))
	for _, s := range c.Stages {
		if s == "" {
			return fmt.Errorf("%w: empty stage name", ErrUnknownStage)
		}
		if _, dup := seen[s]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateStage, s)
		}
		seen[s] = struct{}{}
	}
	if c.DestructiveStage != "" && !c.Has(c.DestructiveStage) {
		return fmt.Errorf("%w: destructive stage %s", ErrUnknownStage, c.DestructiveStage)
	}
	if c.QualificationStage != "" && !c.Has(c.QualificationStage) {
		return fmt.Errorf("%w: qualification stage %s", ErrUnknownStage, c.QualificationStage)
	}
	if c.ConvertedStage != "" && !c.Has(c.ConvertedStage) {
		return fmt.Errorf("%w: converted stage %s", ErrUnknownStage, c.ConvertedStage)
	}
	return nil
}

// Has reports whether stage is configured.
func (c BoardConfig) Has(stage Stage) bool {
	for _, s := range c.Stages {
		if s == stage {
			return true
		}
	}
	return false
}

// IsDestructive reports whether entering stage requires confirmation.
func (c BoardConfig) IsDestructive(stage Stage) bool {
	return c.DestructiveStage != "" && stage == c.DestructiveStage
}
