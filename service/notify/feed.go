package notify

import (
	"context"
	"errors"
	"sync"

	"github.com/brojonat/solwallet/service/metrics"
)

// DefaultFeedCapacity is how many notifications the feed remembers.
const DefaultFeedCapacity = 20

// Feed keeps the most recent notifications in memory and fans them out to live subscribers.
type Feed struct {
	mu       sync.Mutex
	items    []Notification // oldest first
	capacity int
	subs     map[int]chan Notification
	nextID   int
	metrics  *metrics.Metrics
}

// NewFeed creates a feed that keeps up to capacity notifications.
// If metrics is nil, no metrics will be recorded.
func NewFeed(capacity int, m *metrics.Metrics) *Feed {
	if capacity <= 0 {
		capacity = DefaultFeedCapacity
	}
	return &Feed{
		capacity: capacity,
		subs:     make(map[int]chan Notification),
		metrics:  m,
	}
}

// Notify appends n and delivers it to subscribers. Slow subscribers miss notifications
// rather than blocking the caller.
func (f *Feed) Notify(ctx context.Context, n Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.items = append(f.items, n)
	if len(f.items) > f.capacity {
		f.items = f.items[len(f.items)-f.capacity:]
	}

	for _, ch := range f.subs {
		select {
		case ch <- n:
		default:
		}
	}

	if f.metrics != nil {
		f.metrics.RecordNotification(string(n.Level))
	}
	return nil
}

// Recent returns up to limit notifications, newest first. A non-positive limit returns all.
func (f *Feed) Recent(limit int) []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := len(f.items)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Notification, 0, n)
	for i := len(f.items) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, f.items[i])
	}
	return out
}

// Subscribe returns a channel of notifications published after the call and a function
// that ends the subscription and closes the channel.
func (f *Feed) Subscribe(buffer int) (<-chan Notification, func()) {
	ch := make(chan Notification, buffer)

	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = ch
	f.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
			close(ch)
		})
	}
}

// Multi delivers every notification to all notifiers. Every notifier is tried;
// the errors are joined.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, notifier := range m {
		if notifier == nil {
			continue
		}
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ Notifier = (*Feed)(nil)
	_ Notifier = Multi(nil)
)
