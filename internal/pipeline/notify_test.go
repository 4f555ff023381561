package pipeline

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// manualTimers captures scheduled dismissals so tests can fire them.
type manualTimers struct {
	mu  sync.Mutex
	fns []func()
	ds  []time.Duration
}

func (m *manualTimers) afterFunc(d time.Duration, f func()) *time.Timer {
	m.mu.Lock()
	m.fns = append(m.fns, f)
	m.ds = append(m.ds, d)
	m.mu.Unlock()
	return time.NewTimer(time.Hour)
}

func (m *manualTimers) fire(i int) {
	m.mu.Lock()
	f := m.fns[i]
	m.mu.Unlock()
	f()
}

func TestNotices_AutoDismiss(t *testing.T) {
	clock := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	timers := &manualTimers{}
	n := NewNotices(0)
	n.now = func() time.Time { return clock }
	n.afterFunc = timers.afterFunc

	var dismissed []string
	n.OnDismiss(func(note Notification) { dismissed = append(dismissed, note.Message) })

	first := n.Notify(Notification{Message: "5 leads tagged", Type: NoticeSuccess})
	second := n.Notify(Notification{Message: "Export ready"})

	require.NotEmpty(t, first.ID)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, NoticeInfo, second.Type)
	assert.Equal(t, clock.Add(DefaultNotificationTTL), first.ExpiresAt)
	assert.Equal(t, []time.Duration{DefaultNotificationTTL, DefaultNotificationTTL}, timers.ds)
	assert.Len(t, n.Active(), 2)

	timers.fire(0)
	active := n.Active()
	require.Len(t, active, 1)
	assert.Equal(t, second.ID, active[0].ID)
	assert.Equal(t, []string{"5 leads tagged"}, dismissed)

	// firing twice is harmless
	timers.fire(0)
	assert.Len(t, dismissed, 1)
}

func TestNotices_ActiveHidesExpired(t *testing.T) {
	clock := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	timers := &manualTimers{}
	n := NewNotices(2 * time.Second)
	n.now = func() time.Time { return clock }
	n.afterFunc = timers.afterFunc

	n.Notify(Notification{Message: "Lead moved"})
	clock = clock.Add(3 * time.Second)
	assert.Empty(t, n.Active())
}

func TestNotices_Dismiss(t *testing.T) {
	n := NewNotices(time.Minute)
	note := n.Notify(Notification{Message: "Bulk delete failed", Type: NoticeError})
	n.Dismiss(note.ID)
	n.Dismiss("unknown")
	assert.Empty(t, n.Active())
}
