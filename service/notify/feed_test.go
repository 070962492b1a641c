package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	n := Success("Wallet address copied!", "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")

	assert.NotEmpty(t, n.ID)
	assert.Equal(t, LevelSuccess, n.Level)
	assert.False(t, n.CreatedAt.IsZero())
	assert.NotEqual(t, n.ID, Success("again", "").ID)
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "notifications.anon", Subject(Error("Wallet not connected!", "")))
	assert.Equal(t, "notifications.abc", Subject(Error("x", "abc")))
}

func TestFeed_RecentNewestFirst(t *testing.T) {
	ctx := context.Background()
	feed := NewFeed(3, nil)

	for _, msg := range []string{"a", "b", "c", "d"} {
		require.NoError(t, feed.Notify(ctx, Success(msg, "")))
	}

	recent := feed.Recent(0)
	require.Len(t, recent, 3, "capacity bounds the feed")
	assert.Equal(t, "d", recent[0].Message)
	assert.Equal(t, "b", recent[2].Message)

	assert.Len(t, feed.Recent(2), 2)
	assert.Empty(t, NewFeed(0, nil).Recent(5))
}

func TestFeed_Subscribe(t *testing.T) {
	ctx := context.Background()
	feed := NewFeed(10, nil)

	require.NoError(t, feed.Notify(ctx, Success("before", "")))

	ch, cancel := feed.Subscribe(4)
	require.NoError(t, feed.Notify(ctx, Error("after", "")))

	got := <-ch
	assert.Equal(t, "after", got.Message)

	cancel()
	cancel() // idempotent
	_, open := <-ch
	assert.False(t, open)

	// Publishing after cancel must not panic.
	require.NoError(t, feed.Notify(ctx, Success("later", "")))
}

func TestFeed_SlowSubscriberDoesNotBlock(t *testing.T) {
	ctx := context.Background()
	feed := NewFeed(10, nil)
	_, cancel := feed.Subscribe(0)
	defer cancel()

	for i := 0; i < 5; i++ {
		require.NoError(t, feed.Notify(ctx, Success("x", "")))
	}
	assert.Len(t, feed.Recent(0), 5)
}

func TestMulti(t *testing.T) {
	ctx := context.Background()
	first := NewMockNotifier()
	failing := NewMockNotifier()
	failing.SetError(errors.New("nats down"))
	last := NewMockNotifier()

	err := Multi{first, failing, nil, last}.Notify(ctx, Success("Token created", ""))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "nats down")
	assert.Equal(t, []string{"Token created"}, first.Messages())
	assert.Equal(t, []string{"Token created"}, last.Messages(), "a failing notifier does not stop the others")
}

func TestMockNotifier_Reset(t *testing.T) {
	m := NewMockNotifier()
	require.NoError(t, m.Notify(context.Background(), Success("x", "")))
	m.Reset()
	assert.Empty(t, m.Notifications())
}
