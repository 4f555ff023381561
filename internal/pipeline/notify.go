package pipeline

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// NotificationType classifies a user-visible notice.
type NotificationType string

const (
	NoticeSuccess NotificationType = "success"
	NoticeError   NotificationType = "error"
	NoticeWarning NotificationType = "warning"
	NoticeInfo    NotificationType = "info"
)

// Notification is a transient message shown to the operator.
type Notification struct {
	ID        string           `json:"id"`
	Message   string           `json:"message"`
	Type      NotificationType `json:"type"`
	CreatedAt time.Time        `json:"created_at"`
	ExpiresAt time.Time        `json:"expires_at"`
}

// Notifier receives notifications.
type Notifier interface {
	Notify(n Notification) Notification
}

// Notices keeps the active notifications and dismisses each one after ttl.
type Notices struct {
	mu        sync.Mutex
	ttl       time.Duration
	now       func() time.Time
	afterFunc func(time.Duration, func()) *time.Timer
	active    []Notification
	timers    map[string]*time.Timer
	onDismiss func(Notification)
}

func NewNotices(ttl time.Duration) *Notices {
	if ttl <= 0 {
		ttl = DefaultNotificationTTL
	}
	return &Notices{
		ttl:       ttl,
		now:       time.Now,
		afterFunc: time.AfterFunc,
		timers:    make(map[string]*time.Timer),
	}
}

// OnDismiss registers a callback run when a notification expires or is
// dismissed.
func (n *Notices) OnDismiss(fn func(Notification)) {
	n.mu.Lock()
	n.onDismiss = fn
	n.mu.Unlock()
}

// Notify stamps and stores the notification and schedules its dismissal.
func (n *Notices) Notify(note Notification) Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	if note.ID == "" {
		note.ID = uuid.NewString()
	}
	if note.Type == "" {
		note.Type = NoticeInfo
	}
	note.CreatedAt = n.now().UTC()
	note.ExpiresAt = note.CreatedAt.Add(n.ttl)
	n.active = append(n.active, note)
	id := note.ID
	n.timers[id] = n.afterFunc(n.ttl, func() { n.Dismiss(id) })
	return note
}

// Dismiss removes a notification early. Unknown ids are ignored.
func (n *Notices) Dismiss(id string) {
	n.mu.Lock()
	var dismissed *Notification
	for i, note := range n.active {
		if note.ID == id {
			d := note
			dismissed = &d
			n.active = append(n.active[:i:i], n.active[i+1:]...)
			break
		}
	}
	if t, ok := n.timers[id]; ok {
		t.Stop()
		delete(n.timers, id)
	}
	hook := n.onDismiss
	n.mu.Unlock()

	if dismissed != nil && hook != nil {
		hook(*dismissed)
	}
}

// Active returns notifications that have not expired yet.
func (n *Notices) Active() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	now := n.now()
	out := make([]Notification, 0, len(n.active))
	for _, note := range n.active {
		if now.Before(note.ExpiresAt) {
			out = append(out, note)
		}
	}
	return out
}
