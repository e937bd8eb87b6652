package playback

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/osa030/foldatunez/internal/domain/track"
)

// fakeSink records calls and lets tests finish tracks by hand.
type fakeSink struct {
	mu         sync.Mutex
	busy       bool
	paused     bool
	closed     bool
	plays      []string
	finish     func(error)
	playErrs   []error
	stops      int
	concurrent int
	maxActive  int
}

func newFakeSink(playErrs ...error) *fakeSink {
	return &fakeSink{playErrs: playErrs}
}

func (f *fakeSink) Connect(ctx context.Context) error { return nil }

func (f *fakeSink) Play(ctx context.Context, t track.Track, onFinish func(error)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.playErrs) > 0 {
		err := f.playErrs[0]
		f.playErrs = f.playErrs[1:]
		if err != nil {
			return err
		}
	}
	if f.busy {
		return ErrAlreadyPlaying
	}
	f.busy = true
	f.concurrent++
	if f.concurrent > f.maxActive {
		f.maxActive = f.concurrent
	}
	f.plays = append(f.plays, t.Title)
	f.finish = onFinish
	return nil
}

func (f *fakeSink) end(err error) {
	f.mu.Lock()
	cb := f.finish
	f.finish = nil
	if f.busy {
		f.concurrent--
	}
	f.busy = false
	f.paused = false
	f.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}

func (f *fakeSink) Stop() error {
	f.mu.Lock()
	f.stops++
	f.mu.Unlock()
	f.end(nil)
	return nil
}

func (f *fakeSink) Pause() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused = true
	return nil
}

func (f *fakeSink) Resume() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused = false
	return nil
}

func (f *fakeSink) IsBusy() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.busy
}

func (f *fakeSink) IsConnected() bool { return true }

func (f *fakeSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSink) played() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.plays))
	copy(out, f.plays)
	return out
}

func (f *fakeSink) peakActive() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxActive
}

func (f *fakeSink) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func testConfig() Config {
	return Config{
		PollInterval:    10 * time.Millisecond,
		Retry:           Backoff{Base: time.Millisecond, Max: 4 * time.Millisecond, Attempts: 3},
		FailureCooldown: 10 * time.Millisecond,
		EventBuffer:     256,
	}
}

func newTestScheduler(t *testing.T, sink OutputSink) *Scheduler {
	t.Helper()
	s := New(1234, sink, testConfig())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Close(ctx)
	})
	return s
}

func mkTrack(title string) track.Track {
	return track.New(title, "/music/"+title+".mp3", track.Requester{ID: "u1", Name: "tester"}, time.Minute)
}

func waitPlaying(t *testing.T, s *Scheduler, title string) {
	t.Helper()
	require.Eventually(t, func() bool {
		snap := s.Snapshot()
		return snap.Phase == PhasePlaying && snap.Current != nil && snap.Current.Title == title
	}, time.Second, time.Millisecond, "expected %s to be playing", title)
}

func waitPhase(t *testing.T, s *Scheduler, phase Phase) {
	t.Helper()
	require.Eventually(t, func() bool {
		return s.Snapshot().Phase == phase
	}, time.Second, time.Millisecond, "expected phase %s", phase)
}

func titles(ts []track.Track) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.Title
	}
	return out
}

func drainEvents(s *Scheduler) []Event {
	var out []Event
	for {
		select {
		case e, ok := <-s.Events():
			if !ok {
				return out
			}
			out = append(out, e)
		default:
			return out
		}
	}
}

func hasEvent(events []Event, typ EventType) bool {
	for _, e := range events {
		if e.Type == typ {
			return true
		}
	}
	return false
}
