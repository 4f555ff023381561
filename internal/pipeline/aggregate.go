package pipeline

import "time"

// Counters are the named summary numbers shown above the board.
type Counters struct {
	TotalLeads   int64 `json:"total_leads"`
	ValueTotal   int64 `json:"value_total"`
	NewToday     int64 `json:"new_today"`
	NewThisWeek  int64 `json:"new_this_week"`
	NewThisMonth int64 `json:"new_this_month"`
	Converted    int64 `json:"converted"`
	Rejected     int64 `json:"rejected"`
}

// Baseline pairs the current period with the previous one for trend
// display.
type Baseline struct {
	Current  Counters `json:"current"`
	Previous Counters `json:"previous"`
}

// Windows are the period boundaries counters are bucketed by, all in the
// location of the reference time.
type Windows struct {
	Today     time.Time
	Yesterday time.Time
	Week      time.Time
	LastWeek  time.Time
	Month     time.Time
	LastMonth time.Time
}

// PeriodWindows anchors the windows at now: calendar day, ISO week
// starting Monday and calendar month.
func PeriodWindows(now time.Time) Windows {
	loc := now.Location()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	weekday := (int(today.Weekday()) + 6) % 7
	week := today.AddDate(0, 0, -weekday)
	month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
	return Windows{
		Today:     today,
		Yesterday: today.AddDate(0, 0, -1),
		Week:      week,
		LastWeek:  week.AddDate(0, 0, -7),
		Month:     month,
		LastMonth: month.AddDate(0, -1, 0),
	}
}

// ComputeBaseline derives counters from the materialized leads only.
func ComputeBaseline(cfg BoardConfig, snap Snapshot, now time.Time) Baseline {
	var leads []Lead
	for _, stage := range snap.Stages {
		leads = append(leads, snap.Partitions[stage].Leads...)
	}
	return Tally(cfg, leads, now)
}

// Tally counts leads at now.
//
// Current covers every lead, with the New* windows from PeriodWindows.
// Previous is the set as it stood at the start of the month: totals over
// leads created before then, and the New* windows shifted back one period.
func Tally(cfg BoardConfig, leads []Lead, now time.Time) Baseline {
	w := PeriodWindows(now)
	loc := now.Location()

	var b Baseline
	for _, l := range leads {
		created := l.CreatedAt.In(loc)
		won := cfg.ConvertedStage != "" && l.Status == cfg.ConvertedStage
		lost := cfg.DestructiveStage != "" && l.Status == cfg.DestructiveStage

		b.Current.add(l.ValueCents, won, lost)
		if !created.Before(w.Today) {
			b.Current.NewToday++
		}
		if !created.Before(w.Week) {
			b.Current.NewThisWeek++
		}
		if !created.Before(w.Month) {
			b.Current.NewThisMonth++
		}

		if created.Before(w.Month) {
			b.Previous.add(l.ValueCents, won, lost)
		}
		if within(created, w.Yesterday, w.Today) {
			b.Previous.NewToday++
		}
		if within(created, w.LastWeek, w.Week) {
			b.Previous.NewThisWeek++
		}
		if within(created, w.LastMonth, w.Month) {
			b.Previous.NewThisMonth++
		}
	}
	return b
}

func (c *Counters) add(value int64, won, lost bool) {
	c.TotalLeads++
	c.ValueTotal += value
	if won {
		c.Converted++
	}
	if lost {
		c.Rejected++
	}
}

func within(t, from, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}
