package testutil

import (
	"sync"

	"github.com/merchkit/shopfront/internal/notify"
)

// Notification is one recorded notification.
type Notification struct {
	Category notify.Category
	Detail   string
}

// RecordingNotifier captures notifications for assertions.
type RecordingNotifier struct {
	mu   sync.Mutex
	seen []Notification
}

// Notify records the notification.
func (n *RecordingNotifier) Notify(cat notify.Category, detail string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seen = append(n.seen, Notification{Category: cat, Detail: detail})
}

// All returns a copy of the recorded notifications.
func (n *RecordingNotifier) All() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Notification, len(n.seen))
	copy(out, n.seen)
	return out
}
