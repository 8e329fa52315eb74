package central

import (
	"sync"
	"sync/atomic"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"

	"github.com/srg/blecentral/internal/ringchan"
)

// EventKind tags what changed. Subscribers typically ignore the kind and
// re-pull a snapshot; the tag exists for diagnostics and selective UIs.
type EventKind int

const (
	EventDeviceDiscovered EventKind = iota
	EventStatusChanged
	EventRSSIChanged
	EventNameChanged
	EventServiceUpdated
	EventServiceWritten
	EventListReset
)

func (k EventKind) String() string {
	switch k {
	case EventDeviceDiscovered:
		return "device_discovered"
	case EventStatusChanged:
		return "status_changed"
	case EventRSSIChanged:
		return "rssi_changed"
	case EventNameChanged:
		return "name_changed"
	case EventServiceUpdated:
		return "service_updated"
	case EventServiceWritten:
		return "service_written"
	case EventListReset:
		return "list_reset"
	default:
		return "unknown"
	}
}

// Event signals that the observable device list changed. It carries no
// payload beyond the identity: subscribers re-pull the full snapshot.
type Event struct {
	Kind     EventKind
	Identity string
}

// subscriberBuffer bounds how far a slow subscriber can lag before old
// events are coalesced away. Dropping is safe: every event means the same
// thing, "re-pull the snapshot".
const subscriberBuffer = 64

// Subscription is one registered listener. Cancel must be called to release
// it; failing to do so leaks the subscription's ring buffer.
type Subscription struct {
	id     uintptr
	ring   *ringchan.Ring[Event]
	cancel func(id uintptr)

	// mu serializes Send against Close so cancelling a subscription while
	// the dispatch goroutine publishes can never hit a closed channel.
	mu     sync.Mutex
	closed bool
}

// Events returns the channel on which change events arrive, in FIFO order.
// The channel is closed after Cancel.
func (s *Subscription) Events() <-chan Event {
	return s.ring.C()
}

// Cancel unregisters the subscription and closes its event channel.
// Safe to call more than once.
func (s *Subscription) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.cancel(s.id)
	s.ring.Close()
}

// send delivers ev unless the subscription was cancelled. Reports whether an
// older event was coalesced away.
func (s *Subscription) send(ev Event) (dropped, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, false
	}
	return s.ring.Send(ev), true
}

// Notifier fans registry change events out to any number of subscribers.
// Publishing never blocks: each subscriber owns a drop-oldest ring, so a
// stalled UI cannot stall the transport dispatch goroutine.
type Notifier struct {
	subs   *hashmap.Map[uintptr, *Subscription]
	nextID atomic.Uintptr
	logger *logrus.Logger
}

// NewNotifier creates a Notifier. A nil logger falls back to a default one.
func NewNotifier(logger *logrus.Logger) *Notifier {
	if logger == nil {
		logger = logrus.New()
	}
	return &Notifier{
		subs:   hashmap.New[uintptr, *Subscription](),
		logger: logger,
	}
}

// Subscribe registers a new listener and returns its subscription.
func (n *Notifier) Subscribe() *Subscription {
	id := n.nextID.Add(1)
	sub := &Subscription{
		id:     id,
		ring:   ringchan.New[Event](subscriberBuffer),
		cancel: func(id uintptr) { n.subs.Del(id) },
	}
	n.subs.Set(id, sub)
	n.logger.WithField("subscriber", id).Debug("Subscribed to device list changes")
	return sub
}

// Publish delivers ev to every live subscriber. Called from the registry on
// the dispatch goroutine, so per-subscriber ordering follows mutation order.
func (n *Notifier) Publish(ev Event) {
	n.subs.Range(func(id uintptr, sub *Subscription) bool {
		if dropped, _ := sub.send(ev); dropped {
			n.logger.WithFields(logrus.Fields{
				"subscriber": id,
				"event":      ev.Kind.String(),
			}).Debug("Coalesced stale event for slow subscriber")
		}
		return true
	})
}

// SubscriberCount returns the number of live subscriptions.
func (n *Notifier) SubscriberCount() int {
	return n.subs.Len()
}
