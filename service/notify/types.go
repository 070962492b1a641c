package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Level is the severity of a user notification.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notification is a transient user-facing message (a toast).
// It is published to the subject "notifications.{account}" in JetStream.
type Notification struct {
	ID        string    `json:"id"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	Account   string    `json:"account,omitempty"` // connected account, empty when none
	CreatedAt time.Time `json:"created_at"`
}

// New creates a notification with a fresh ID and timestamp.
func New(level Level, message, account string) Notification {
	return Notification{
		ID:        uuid.NewString(),
		Level:     level,
		Message:   message,
		Account:   account,
		CreatedAt: time.Now().UTC(),
	}
}

// Success is shorthand for New(LevelSuccess, ...).
func Success(message, account string) Notification {
	return New(LevelSuccess, message, account)
}

// Error is shorthand for New(LevelError, ...).
func Error(message, account string) Notification {
	return New(LevelError, message, account)
}

// Notifier delivers notifications to the user.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Subject returns the JetStream subject for n.
func Subject(n Notification) string {
	if n.Account == "" {
		return SubjectPrefix + "anon"
	}
	return SubjectPrefix + n.Account
}
