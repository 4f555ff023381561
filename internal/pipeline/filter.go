package pipeline

import "strings"

// FilterOptions narrows what the board renders.
type FilterOptions struct {
	Search    string
	Channel   string
	HideEmpty bool
}

// FilteredPartition is one rendered column.
type FilteredPartition struct {
	Stage      Stage
	Leads      []Lead
	ValueTotal int64
	Total      int
	HasMore    bool
	Loading    bool
}

// Filter projects a snapshot through search and channel filters. It never
// touches the store; partitions hidden by HideEmpty stay in the snapshot.
func Filter(snap Snapshot, opts FilterOptions) []FilteredPartition {
	search := strings.ToLower(strings.TrimSpace(opts.Search))
	rawSearch := strings.TrimSpace(opts.Search)
	channel := strings.TrimSpace(opts.Channel)

	out := make([]FilteredPartition, 0, len(snap.Stages))
	for _, stage := range snap.Stages {
		p := snap.Partitions[stage]
		fp := FilteredPartition{
			Stage:   stage,
			Leads:   make([]Lead, 0, len(p.Leads)),
			Total:   p.Total,
			HasMore: p.HasMore,
			Loading: p.Loading,
		}
		for _, lead := range p.Leads {
			if channel != "" && lead.Channel != channel {
				continue
			}
			if search != "" && !matchesSearch(lead, search, rawSearch) {
				continue
			}
			fp.Leads = append(fp.Leads, lead)
			fp.ValueTotal += lead.ValueCents
		}
		if opts.HideEmpty && len(fp.Leads) == 0 && !fp.Loading {
			continue
		}
		out = append(out, fp)
	}
	return out
}

// matchesSearch compares name and email case-insensitively and the phone
// as typed, without normalization.
func matchesSearch(lead Lead, lowered, raw string) bool {
	if strings.Contains(strings.ToLower(lead.Name), lowered) {
		return true
	}
	if strings.Contains(strings.ToLower(lead.Email), lowered) {
		return true
	}
	return lead.Phone != "" && strings.Contains(lead.Phone, raw)
}
