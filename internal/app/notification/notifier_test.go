package notification

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/osa030/foldatunez/internal/app/command"
	"github.com/osa030/foldatunez/internal/domain/track"
)

func TestNotifier_Unbound(t *testing.T) {
	n := NewNotifier(Config{})
	assert.False(t, n.Notify(context.Background(), 1, "", "hello"))
}

func TestNotifier_DeliversToLastBound(t *testing.T) {
	n := NewNotifier(Config{RatePerSec: 100, Burst: 10})
	first := command.NewRecorder(1, track.Requester{})
	second := command.NewRecorder(1, track.Requester{})

	n.Bind(first)
	assert.True(t, n.Notify(context.Background(), 1, "", "a"))
	n.Bind(second)
	assert.True(t, n.Notify(context.Background(), 1, "", "b"))

	assert.Equal(t, []string{"a"}, first.Replies())
	assert.Equal(t, []string{"b"}, second.Replies())

	n.Forget(1)
	assert.False(t, n.Notify(context.Background(), 1, "", "c"))
}

func TestNotifier_DeduplicatesIncidents(t *testing.T) {
	n := NewNotifier(Config{RatePerSec: 100, Burst: 10, DedupWindow: time.Minute})
	now := time.Unix(1000, 0)
	n.now = func() time.Time { return now }
	rec := command.NewRecorder(1, track.Requester{})
	n.Bind(rec)

	assert.True(t, n.Notify(context.Background(), 1, "sink-lost", "connection lost"))
	assert.False(t, n.Notify(context.Background(), 1, "sink-lost", "connection lost"))
	assert.True(t, n.Notify(context.Background(), 1, "other", "other incident"))

	now = now.Add(2 * time.Minute)
	assert.True(t, n.Notify(context.Background(), 1, "sink-lost", "connection lost"))
	assert.Len(t, rec.Replies(), 3)
}

func TestNotifier_RateLimited(t *testing.T) {
	n := NewNotifier(Config{RatePerSec: 0.001, Burst: 2})
	rec := command.NewRecorder(1, track.Requester{})
	n.Bind(rec)

	delivered := 0
	for range 5 {
		if n.Notify(context.Background(), 1, "", "x") {
			delivered++
		}
	}
	assert.Equal(t, 2, delivered)
}
