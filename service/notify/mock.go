package notify

import (
	"context"
	"sync"
)

// MockNotifier is a mock implementation of Notifier for testing.
type MockNotifier struct {
	mu        sync.RWMutex
	delivered []Notification
	err       error
}

// NewMockNotifier creates a new mock notifier for testing.
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{
		delivered: make([]Notification, 0),
	}
}

// Notify records the notification and returns any configured error.
func (m *MockNotifier) Notify(ctx context.Context, n Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	m.delivered = append(m.delivered, n)
	return nil
}

// SetError configures the mock to return an error on Notify.
func (m *MockNotifier) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Notifications returns all delivered notifications, oldest first.
func (m *MockNotifier) Notifications() []Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Notification, len(m.delivered))
	copy(out, m.delivered)
	return out
}

// Messages returns the message text of every delivered notification.
func (m *MockNotifier) Messages() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.delivered))
	for _, n := range m.delivered {
		out = append(out, n.Message)
	}
	return out
}

// Reset clears all delivered notifications and errors.
func (m *MockNotifier) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delivered = make([]Notification, 0)
	m.err = nil
}
