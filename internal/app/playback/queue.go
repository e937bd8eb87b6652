package playback

import (
	"sync"

	"github.com/osa030/foldatunez/internal/domain/track"
)

// Queue is a FIFO of pending tracks. It is safe for concurrent use, but the
// scheduler still only touches it while holding its own lock so that multi-step
// transitions stay atomic.
type Queue struct {
	mu     sync.Mutex
	tracks []track.Track
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{tracks: make([]track.Track, 0)}
}

// PushBack appends tracks to the tail.
func (q *Queue) PushBack(ts ...track.Track) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tracks = append(q.tracks, ts...)
}

// PushFront puts a track back at the head.
func (q *Queue) PushFront(t track.Track) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tracks = append([]track.Track{t}, q.tracks...)
}

// PopFront removes and returns the head.
func (q *Queue) PopFront() (track.Track, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tracks) == 0 {
		return track.Track{}, false
	}
	t := q.tracks[0]
	q.tracks[0] = track.Track{}
	q.tracks = q.tracks[1:]
	return t, true
}

// RemoveWhere removes every track matching pred and returns how many were removed.
func (q *Queue) RemoveWhere(pred func(track.Track) bool) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := make([]track.Track, 0, len(q.tracks))
	for _, t := range q.tracks {
		if !pred(t) {
			kept = append(kept, t)
		}
	}
	removed := len(q.tracks) - len(kept)
	q.tracks = kept
	return removed
}

// ToList returns a copy of the queue in order.
func (q *Queue) ToList() []track.Track {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]track.Track, len(q.tracks))
	copy(out, q.tracks)
	return out
}

// ReplaceAll swaps the contents in one step.
func (q *Queue) ReplaceAll(ts []track.Track) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tracks = make([]track.Track, len(ts))
	copy(q.tracks, ts)
}

// Clear empties the queue and returns what was removed.
func (q *Queue) Clear() []track.Track {
	q.mu.Lock()
	defer q.mu.Unlock()
	removed := q.tracks
	q.tracks = make([]track.Track, 0)
	return removed
}

// Len returns the number of pending tracks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tracks)
}
