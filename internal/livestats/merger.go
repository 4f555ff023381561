package livestats

import (
	"sync"

	"github.com/wolfman30/medspa-pipeline/internal/observability/metrics"
	"github.com/wolfman30/medspa-pipeline/internal/pipeline"
	"github.com/wolfman30/medspa-pipeline/pkg/logging"
)

// Merger holds the live baseline. Updates overwrite present fields and
// keep absent ones; the last applied update wins regardless of any
// timestamp it carries.
type Merger struct {
	mu        sync.RWMutex
	connected bool
	current   PartialCounters
	previous  PartialCounters
	listeners []func(StatsMessage)
	logger    *logging.Logger
	metrics   *metrics.BoardMetrics
}

func NewMerger(logger *logging.Logger) *Merger {
	if logger == nil {
		logger = logging.Default()
	}
	return &Merger{logger: logger.Component("live_stats")}
}

func (m *Merger) WithMetrics(bm *metrics.BoardMetrics) *Merger {
	m.metrics = bm
	return m
}

// OnUpdate registers a callback run after each applied update with the
// resulting live baseline.
func (m *Merger) OnUpdate(fn func(StatsMessage)) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// HandleConnect resumes live updates.
func (m *Merger) HandleConnect() {
	m.mu.Lock()
	m.connected = true
	m.mu.Unlock()
	m.logger.Debug("live stats connected")
}

// HandleDisconnect stops live updates. The live values are kept; stale is
// preferred over reverting to zero.
func (m *Merger) HandleDisconnect() {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
	m.logger.Debug("live stats disconnected")
}

func (m *Merger) Connected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// Apply merges msg into the live baseline. It reports false when the
// update was dropped because the feed is disconnected.
func (m *Merger) Apply(msg StatsMessage) bool {
	m.mu.Lock()
	if !m.connected {
		m.mu.Unlock()
		m.metrics.ObserveLiveMessage("dropped")
		return false
	}
	msg.PartialCounters.overlay(&m.current)
	if msg.Previous != nil {
		msg.Previous.overlay(&m.previous)
	}
	live := StatsMessage{PartialCounters: m.current.clone()}
	prev := m.previous.clone()
	live.Previous = &prev
	listeners := append([]func(StatsMessage){}, m.listeners...)
	m.mu.Unlock()

	m.metrics.ObserveLiveMessage("applied")
	for _, fn := range listeners {
		fn(live)
	}
	return true
}

// Live returns a copy of the live baseline. Fields that never arrived are
// nil.
func (m *Merger) Live() StatsMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	prev := m.previous.clone()
	return StatsMessage{PartialCounters: m.current.clone(), Previous: &prev}
}

// Display merges the live baseline over the locally computed one, field by
// field.
func (m *Merger) Display(local pipeline.Baseline) pipeline.Baseline {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return pipeline.Baseline{
		Current:  m.current.resolve(local.Current),
		Previous: m.previous.resolve(local.Previous),
	}
}
