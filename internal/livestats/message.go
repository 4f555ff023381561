// Package livestats merges pushed partial statistics snapshots into a live
// baseline and carries them over redis and websocket transports.
package livestats

import (
	"encoding/json"
	"fmt"

	"github.com/wolfman30/medspa-pipeline/internal/pipeline"
)

// PartialCounters is a counter set where every field is optional. A nil
// field means "not part of this update", never zero.
type PartialCounters struct {
	TotalLeads   *int64 `json:"total_leads,omitempty"`
	ValueTotal   *int64 `json:"value_total,omitempty"`
	NewToday     *int64 `json:"new_today,omitempty"`
	NewThisWeek  *int64 `json:"new_this_week,omitempty"`
	NewThisMonth *int64 `json:"new_this_month,omitempty"`
	Converted    *int64 `json:"converted,omitempty"`
	Rejected     *int64 `json:"rejected,omitempty"`
}

// StatsMessage is one push update. Current-period fields sit at the top
// level; the previous period only arrives nested.
type StatsMessage struct {
	PartialCounters
	Previous *PartialCounters `json:"previous,omitempty"`
}

// Int64 returns a pointer to v for building partial payloads.
func Int64(v int64) *int64 { return &v }

// Full lifts a complete counter set into a partial one with every field set.
func Full(c pipeline.Counters) PartialCounters {
	return PartialCounters{
		TotalLeads:   Int64(c.TotalLeads),
		ValueTotal:   Int64(c.ValueTotal),
		NewToday:     Int64(c.NewToday),
		NewThisWeek:  Int64(c.NewThisWeek),
		NewThisMonth: Int64(c.NewThisMonth),
		Converted:    Int64(c.Converted),
		Rejected:     Int64(c.Rejected),
	}
}

// Empty reports whether no field is present.
func (p PartialCounters) Empty() bool {
	return p.TotalLeads == nil && p.ValueTotal == nil && p.NewToday == nil &&
		p.NewThisWeek == nil && p.NewThisMonth == nil && p.Converted == nil && p.Rejected == nil
}

// overlay writes every present field of p into dst.
func (p PartialCounters) overlay(dst *PartialCounters) {
	set := func(dst **int64, src *int64) {
		if src != nil {
			v := *src
			*dst = &v
		}
	}
	set(&dst.TotalLeads, p.TotalLeads)
	set(&dst.ValueTotal, p.ValueTotal)
	set(&dst.NewToday, p.NewToday)
	set(&dst.NewThisWeek, p.NewThisWeek)
	set(&dst.NewThisMonth, p.NewThisMonth)
	set(&dst.Converted, p.Converted)
	set(&dst.Rejected, p.Rejected)
}

// resolve prefers the live value of each field and falls back to local.
func (p PartialCounters) resolve(local pipeline.Counters) pipeline.Counters {
	pick := func(live *int64, fallback int64) int64 {
		if live != nil {
			return *live
		}
		return fallback
	}
	return pipeline.Counters{
		TotalLeads:   pick(p.TotalLeads, local.TotalLeads),
		ValueTotal:   pick(p.ValueTotal, local.ValueTotal),
		NewToday:     pick(p.NewToday, local.NewToday),
		NewThisWeek:  pick(p.NewThisWeek, local.NewThisWeek),
		NewThisMonth: pick(p.NewThisMonth, local.NewThisMonth),
		Converted:    pick(p.Converted, local.Converted),
		Rejected:     pick(p.Rejected, local.Rejected),
	}
}

func (p PartialCounters) clone() PartialCounters {
	var out PartialCounters
	p.overlay(&out)
	return out
}

// DecodeStats parses a stats payload.
func DecodeStats(data []byte) (StatsMessage, error) {
	var msg StatsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return StatsMessage{}, fmt.Errorf("livestats: decode stats: %w", err)
	}
	return msg, nil
}

// Event types on the websocket.
const (
	EventSubscribe  = "subscribe"
	EventSubscribed = "subscribed"
	EventStats      = "stats"
	EventError      = "error"
	EventPing       = "ping"
	EventPong       = "pong"
)

// Envelope is the websocket frame shape in both directions.
type Envelope struct {
	Type  string          `json:"type"`
	Token string          `json:"token,omitempty"`
	OrgID string          `json:"org_id,omitempty"`
	Error string          `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}
