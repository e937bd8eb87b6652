package playback

import (
	"context"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/foldatunez/internal/domain/track"
)

func TestScheduler_PlaysPendingInOrder(t *testing.T) {
	sink := newFakeSink()
	s := newTestScheduler(t, sink)

	s.EnqueueMany([]track.Track{mkTrack("A"), mkTrack("B"), mkTrack("C")})
	started, err := s.EnsureRunning()
	require.NoError(t, err)
	require.True(t, started)

	for _, title := range []string{"A", "B", "C"} {
		waitPlaying(t, s, title)
		sink.end(nil)
	}
	waitPhase(t, s, PhaseIdle)

	assert.Equal(t, []string{"A", "B", "C"}, sink.played())
	assert.Equal(t, 1, sink.peakActive())
	snap := s.Snapshot()
	assert.Nil(t, snap.Current)
	assert.Empty(t, snap.Pending)
	assert.Equal(t, 3, snap.HistoryLen)

	events := drainEvents(s)
	assert.True(t, hasEvent(events, EventTrackStarted))
	assert.True(t, hasEvent(events, EventQueueEmpty))
}

func TestScheduler_EnsureRunningStartsOneLoop(t *testing.T) {
	s := newTestScheduler(t, newFakeSink())

	var started atomic.Int32
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.EnsureRunning()
			assert.NoError(t, err)
			if ok {
				started.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), started.Load())
	assert.True(t, s.Running())
}

func TestScheduler_EnqueueWhileIdleWakesLoop(t *testing.T) {
	sink := newFakeSink()
	s := newTestScheduler(t, sink)
	_, err := s.EnsureRunning()
	require.NoError(t, err)

	s.Enqueue(mkTrack("late"))

	waitPlaying(t, s, "late")
}

func TestScheduler_SongLoop(t *testing.T) {
	sink := newFakeSink()
	s := newTestScheduler(t, sink)

	s.EnqueueMany([]track.Track{mkTrack("A"), mkTrack("B")})
	s.SetLoopMode(LoopSong)
	_, err := s.EnsureRunning()
	require.NoError(t, err)

	for range 3 {
		waitPlaying(t, s, "A")
		sink.end(nil)
	}
	waitPlaying(t, s, "A")

	assert.Equal(t, []string{"A", "A", "A", "A"}, sink.played())
	assert.Equal(t, []string{"B"}, titles(s.Snapshot().Pending))
}

func TestScheduler_QueueLoopRepeatsHistory(t *testing.T) {
	sink := newFakeSink()
	s := newTestScheduler(t, sink)

	s.EnqueueMany([]track.Track{mkTrack("A"), mkTrack("B")})
	s.SetLoopMode(LoopQueue)
	_, err := s.EnsureRunning()
	require.NoError(t, err)

	for _, title := range []string{"A", "B", "A", "B", "A"} {
		waitPlaying(t, s, title)
		sink.end(nil)
	}
	waitPlaying(t, s, "B")

	assert.Equal(t, []string{"A", "B", "A", "B", "A", "B"}, sink.played())
	assert.Equal(t, 2, s.Snapshot().HistoryLen, "refills must not grow history")
}

func TestScheduler_SkipInQueueLoopScenario(t *testing.T) {
	sink := newFakeSink()
	s := newTestScheduler(t, sink)

	s.EnqueueMany([]track.Track{mkTrack("A"), mkTrack("B")})
	_, err := s.EnsureRunning()
	require.NoError(t, err)

	waitPlaying(t, s, "A")
	sink.end(nil)
	waitPlaying(t, s, "B")

	s.SetLoopMode(LoopQueue)
	skipped, err := s.Skip()
	require.NoError(t, err)
	assert.Equal(t, "B", skipped.Title)

	// B was requeued and plays again.
	require.Eventually(t, func() bool { return len(sink.played()) == 3 }, time.Second, time.Millisecond)
	waitPlaying(t, s, "B")
	snap := s.Snapshot()
	assert.Empty(t, snap.Pending)
	assert.Equal(t, 2, snap.HistoryLen)

	sink.end(nil)
	waitPlaying(t, s, "A")
	assert.Equal(t, []string{"B"}, titles(s.Snapshot().Pending))
	assert.Equal(t, []string{"A", "B", "B", "A"}, sink.played())
}

func TestScheduler_SkipAdvances(t *testing.T) {
	sink := newFakeSink()
	s := newTestScheduler(t, sink)

	_, err := s.Skip()
	assert.ErrorIs(t, err, ErrNothingPlaying)

	s.EnqueueMany([]track.Track{mkTrack("A"), mkTrack("B")})
	_, err = s.EnsureRunning()
	require.NoError(t, err)
	waitPlaying(t, s, "A")

	_, err = s.Skip()
	require.NoError(t, err)
	waitPlaying(t, s, "B")
	assert.Empty(t, s.Snapshot().Pending)
}

func TestScheduler_StopDrainsAndLoopSurvives(t *testing.T) {
	sink := newFakeSink()
	s := newTestScheduler(t, sink)

	s.EnqueueMany([]track.Track{mkTrack("A"), mkTrack("B"), mkTrack("C")})
	s.SetLoopMode(LoopQueue)
	_, err := s.EnsureRunning()
	require.NoError(t, err)
	waitPlaying(t, s, "A")

	require.NoError(t, s.Stop())

	snap := s.Snapshot()
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.Equal(t, LoopNone, snap.LoopMode)
	assert.Nil(t, snap.Current)
	assert.Empty(t, snap.Pending)
	assert.False(t, sink.IsBusy())

	// Nothing restarts on its own.
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, []string{"A"}, sink.played())

	s.Enqueue(mkTrack("D"))
	waitPlaying(t, s, "D")
}

func TestScheduler_PauseResume(t *testing.T) {
	sink := newFakeSink()
	s := newTestScheduler(t, sink)

	assert.ErrorIs(t, s.Pause(), ErrNothingPlaying)
	assert.ErrorIs(t, s.Resume(), ErrNothingPaused)

	s.Enqueue(mkTrack("A"))
	_, err := s.EnsureRunning()
	require.NoError(t, err)
	waitPlaying(t, s, "A")

	require.NoError(t, s.Pause())
	assert.Equal(t, PhasePaused, s.Snapshot().Phase)
	assert.ErrorIs(t, s.Pause(), ErrNothingPlaying)

	require.NoError(t, s.Resume())
	assert.Equal(t, PhasePlaying, s.Snapshot().Phase)
	assert.ErrorIs(t, s.Resume(), ErrNothingPaused)
}

func TestScheduler_Shuffle(t *testing.T) {
	sink := newFakeSink()
	cfg := testConfig()
	cfg.Rand = rand.New(rand.NewPCG(9, 9))
	s := New(1, sink, cfg)
	defer s.Close(context.Background())

	s.Enqueue(mkTrack("A"))
	_, err := s.Shuffle()
	assert.ErrorIs(t, err, ErrTooFewTracks)

	s.EnqueueMany([]track.Track{mkTrack("B"), mkTrack("C"), mkTrack("D")})
	before := s.Snapshot().Pending

	s.BeginBulk()
	assert.True(t, s.Snapshot().Ingesting)
	_, err = s.Shuffle()
	assert.ErrorIs(t, err, ErrBusy)
	s.EndBulk()

	n, err := s.Shuffle()
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, ids(before), ids(s.Snapshot().Pending))
}

func TestScheduler_TransientErrorRetries(t *testing.T) {
	sink := newFakeSink(ErrAlreadyPlaying, ErrNotConnected)
	s := newTestScheduler(t, sink)

	s.Enqueue(mkTrack("A"))
	_, err := s.EnsureRunning()
	require.NoError(t, err)

	waitPlaying(t, s, "A")
	events := drainEvents(s)
	assert.True(t, hasEvent(events, EventSinkRetry))
	assert.False(t, hasEvent(events, EventTrackFailed))
}

func TestScheduler_TransientErrorExhaustedKeepsTrack(t *testing.T) {
	sink := newFakeSink(ErrNotConnected, ErrNotConnected, ErrNotConnected)
	s := newTestScheduler(t, sink)

	s.EnqueueMany([]track.Track{mkTrack("A"), mkTrack("B")})
	_, err := s.EnsureRunning()
	require.NoError(t, err)

	// After the cooldown the same track is tried again.
	waitPlaying(t, s, "A")
	assert.Equal(t, []string{"B"}, titles(s.Snapshot().Pending))
	assert.True(t, hasEvent(drainEvents(s), EventTrackFailed))
}

func TestScheduler_MediaUnavailableSkipsTrack(t *testing.T) {
	sink := newFakeSink(ErrMediaUnavailable)
	s := newTestScheduler(t, sink)

	s.EnqueueMany([]track.Track{mkTrack("missing"), mkTrack("B")})
	_, err := s.EnsureRunning()
	require.NoError(t, err)

	waitPlaying(t, s, "B")
	assert.Equal(t, []string{"B"}, sink.played())
	assert.Equal(t, 1, s.Snapshot().HistoryLen)
}

func TestScheduler_ConnectionLostParksLoop(t *testing.T) {
	sink := newFakeSink(ErrConnectionLost)
	s := newTestScheduler(t, sink)

	s.EnqueueMany([]track.Track{mkTrack("A")})
	_, err := s.EnsureRunning()
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return hasEvent(drainEvents(s), EventSinkLost)
	}, time.Second, time.Millisecond)

	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, sink.played())
	assert.Equal(t, []string{"A"}, titles(s.Snapshot().Pending))
}

func TestScheduler_Close(t *testing.T) {
	sink := newFakeSink()
	s := New(1, sink, testConfig())

	s.EnqueueMany([]track.Track{mkTrack("A"), mkTrack("B")})
	_, err := s.EnsureRunning()
	require.NoError(t, err)
	waitPlaying(t, s, "A")

	require.NoError(t, s.Close(context.Background()))
	require.NoError(t, s.Close(context.Background()))

	select {
	case <-s.Done():
	default:
		t.Fatal("loop must have exited")
	}
	assert.True(t, sink.isClosed())
	assert.False(t, sink.IsBusy())

	snap := s.Snapshot()
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.Empty(t, snap.Pending)
	assert.Zero(t, snap.HistoryLen)

	_, err = s.EnsureRunning()
	assert.ErrorIs(t, err, ErrClosed)

	drainEvents(s)
	_, open := <-s.Events()
	assert.False(t, open)
}

func TestScheduler_CloseWithoutLoop(t *testing.T) {
	sink := newFakeSink()
	s := New(1, sink, testConfig())

	require.NoError(t, s.Close(context.Background()))
	assert.True(t, sink.isClosed())

	_, err := s.EnsureRunning()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestScheduler_ClearAndRemoveAt(t *testing.T) {
	s := newTestScheduler(t, newFakeSink())
	s.EnqueueMany([]track.Track{mkTrack("A"), mkTrack("B"), mkTrack("C")})

	removed, err := s.RemoveAt(2)
	require.NoError(t, err)
	assert.Equal(t, "B", removed.Title)
	assert.Equal(t, []string{"A", "C"}, titles(s.Snapshot().Pending))

	_, err = s.RemoveAt(3)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = s.RemoveAt(0)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)

	assert.Equal(t, 2, s.Clear())
	assert.Empty(t, s.Snapshot().Pending)
}

func TestScheduler_SnapshotIsCopy(t *testing.T) {
	sink := newFakeSink()
	s := newTestScheduler(t, sink)
	s.EnqueueMany([]track.Track{mkTrack("A"), mkTrack("B")})
	_, err := s.EnsureRunning()
	require.NoError(t, err)
	waitPlaying(t, s, "A")

	snap := s.Snapshot()
	snap.Current.Title = "changed"
	snap.Pending[0].Title = "changed"

	again := s.Snapshot()
	assert.Equal(t, "A", again.Current.Title)
	assert.Equal(t, "B", again.Pending[0].Title)
}

func TestScheduler_CycleLoopMode(t *testing.T) {
	s := newTestScheduler(t, newFakeSink())

	assert.Equal(t, LoopQueue, s.CycleLoopMode())
	assert.Equal(t, LoopSong, s.CycleLoopMode())
	assert.Equal(t, LoopNone, s.CycleLoopMode())
	assert.Equal(t, LoopNone, s.LoopMode())
}

func TestScheduler_Usage(t *testing.T) {
	sink := newFakeSink()
	s := newTestScheduler(t, sink)
	s.Enqueue(mkTrack("A"))
	_, err := s.EnsureRunning()
	require.NoError(t, err)
	waitPlaying(t, s, "A")

	u := s.Usage()
	assert.Equal(t, 1, u.TracksStarted)
	assert.False(t, u.StartedAt.IsZero())
}
