package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestComputeBaseline(t *testing.T) {
	// Monday 19 Oct 2026
	now := time.Date(2026, 10, 19, 15, 0, 0, 0, time.UTC)
	at := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 10, 0, 0, 0, time.UTC) }

	snap := Snapshot{
		Stages: []Stage{StageNew, StageConverted, StageRejected},
		Partitions: map[Stage]PartitionSnapshot{
			StageNew: {Leads: []Lead{
				{ID: "today", Status: StageNew, ValueCents: 100, CreatedAt: at(2026, 10, 19)},
				{ID: "yesterday", Status: StageNew, ValueCents: 200, CreatedAt: at(2026, 10, 18)},
				{ID: "last-week", Status: StageNew, ValueCents: 300, CreatedAt: at(2026, 10, 13)},
			}},
			StageConverted: {Leads: []Lead{
				{ID: "september", Status: StageConverted, ValueCents: 1000, CreatedAt: at(2026, 9, 20)},
			}},
			StageRejected: {Leads: []Lead{
				{ID: "august", Status: StageRejected, ValueCents: 50, CreatedAt: at(2026, 8, 2)},
			}},
		},
	}

	got := ComputeBaseline(DefaultBoardConfig(), snap, now)

	assert.Equal(t, Counters{
		TotalLeads:   5,
		ValueTotal:   1650,
		NewToday:     1,
		NewThisWeek:  1,
		NewThisMonth: 3,
		Converted:    1,
		Rejected:     1,
	}, got.Current)
	assert.Equal(t, Counters{
		TotalLeads:   2,
		ValueTotal:   1050,
		NewToday:     1,
		NewThisWeek:  2,
		NewThisMonth: 1,
		Converted:    1,
		Rejected:     1,
	}, got.Previous)
}

func TestComputeBaseline_Empty(t *testing.T) {
	got := ComputeBaseline(DefaultBoardConfig(), Snapshot{}, time.Now())
	assert.Equal(t, Baseline{}, got)
}

func TestPeriodWindows(t *testing.T) {
	// Sunday belongs to the ISO week that started the previous Monday.
	now := time.Date(2026, 11, 1, 8, 30, 0, 0, time.UTC)
	w := PeriodWindows(now)

	assert.Equal(t, time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC), w.Today)
	assert.Equal(t, time.Date(2026, 10, 31, 0, 0, 0, 0, time.UTC), w.Yesterday)
	assert.Equal(t, time.Date(2026, 10, 26, 0, 0, 0, 0, time.UTC), w.Week)
	assert.Equal(t, time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC), w.LastWeek)
	assert.Equal(t, time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC), w.Month)
	assert.Equal(t, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), w.LastMonth)
}
