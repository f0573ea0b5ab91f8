package services

import (
	"sync"

	"github.com/username/fintrack/backend/src/logger"
)

const (
	EventHeartbeat         = "heartbeat"
	EventTransactionUpdate = "transaction_update"
)

// ChangeEvent is the payload pushed to subscribed channels when a user's
// transaction set mutates.
type ChangeEvent struct {
	Type   string `json:"type"`
	UserID int64  `json:"userId"`
}

// Notifier fans out change events to the push channels of a user's active
// sessions. Publishing never blocks: a subscriber that cannot keep up has its
// event dropped, which is safe because every event means "reload everything".
type Notifier struct {
	mu   sync.Mutex
	subs map[int64]map[chan ChangeEvent]struct{}
}

func NewNotifier() *Notifier {
	return &Notifier{
		subs: make(map[int64]map[chan ChangeEvent]struct{}),
	}
}

// Subscribe registers a new channel for the user's change events.
func (n *Notifier) Subscribe(userID int64) chan ChangeEvent {
	ch := make(chan ChangeEvent, 8)
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.subs[userID] == nil {
		n.subs[userID] = make(map[chan ChangeEvent]struct{})
	}
	n.subs[userID][ch] = struct{}{}
	return ch
}

// Unsubscribe removes and closes the channel. Safe to call once per channel.
func (n *Notifier) Unsubscribe(userID int64, ch chan ChangeEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if set, ok := n.subs[userID]; ok {
		if _, ok := set[ch]; ok {
			delete(set, ch)
			close(ch)
		}
		if len(set) == 0 {
			delete(n.subs, userID)
		}
	}
}

// Publish emits a transaction_update event to every subscriber of the user.
func (n *Notifier) Publish(userID int64) {
	event := ChangeEvent{Type: EventTransactionUpdate, UserID: userID}
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.subs[userID] {
		select {
		case ch <- event:
		default:
			logger.L.Warn("Dropping change event for slow subscriber", "userID", userID)
		}
	}
}

// SubscriberCount reports the number of live channels for a user.
func (n *Notifier) SubscriberCount(userID int64) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs[userID])
}
