// Package timed provides an output sink that plays nothing and finishes
// tracks after their duration has elapsed on the wall clock.
package timed

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/foldatunez/internal/app/playback"
	"github.com/osa030/foldatunez/internal/domain/track"
)

// bytesPerSecond is the nominal 128 kbit/s stream rate used for usage accounting.
const bytesPerSecond = 16000

// Option configures a Sink.
type Option func(*Sink)

// WithTick sets how often the wall clock is checked.
func WithTick(d time.Duration) Option {
	return func(s *Sink) { s.tick = d }
}

// WithCheckFiles makes Play fail with playback.ErrMediaUnavailable for
// local sources that do not exist.
func WithCheckFiles() Option {
	return func(s *Sink) { s.checkFiles = true }
}

// Sink is a playback.OutputSink backed by timers.
type Sink struct {
	mu sync.Mutex

	defaultDuration time.Duration
	tick            time.Duration
	checkFiles      bool

	connected bool
	closed    bool

	busy          bool
	paused        bool
	playID        uint64
	duration      time.Duration
	startTime     time.Time
	pausedAt      time.Time
	pausedElapsed time.Duration
	timerCancel   func()
	onFinish      func(error)

	bytes int64
}

var (
	_ playback.OutputSink  = (*Sink)(nil)
	_ playback.ByteCounter = (*Sink)(nil)
)

// New creates a sink. Tracks of unknown length last defaultDuration.
func New(defaultDuration time.Duration, opts ...Option) *Sink {
	s := &Sink{
		defaultDuration: defaultDuration,
		tick:            100 * time.Millisecond,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Connect marks the sink connected.
func (s *Sink) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.Wrap(playback.ErrConnectionLost, "sink closed")
	}
	s.connected = true
	return nil
}

// Play starts the track timer. onFinish is called exactly once, when the
// track ends, is stopped, or the connection drops.
func (s *Sink) Play(ctx context.Context, t track.Track, onFinish func(error)) error {
	if s.checkFiles && isLocal(t.Source) {
		if info, err := os.Stat(t.Source); err != nil || info.Size() == 0 {
			return errors.Wrapf(playback.ErrMediaUnavailable, "%s", t.Source)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.closed:
		return errors.Wrap(playback.ErrConnectionLost, "sink closed")
	case !s.connected:
		return playback.ErrNotConnected
	case s.busy:
		return playback.ErrAlreadyPlaying
	}

	s.duration = t.Duration
	if s.duration <= 0 {
		s.duration = s.defaultDuration
	}
	s.playID++
	s.busy = true
	s.paused = false
	s.startTime = toWallTime(time.Now())
	s.pausedElapsed = 0
	s.onFinish = onFinish
	s.startTimerLocked(s.duration)

	zlog.Debug().Msgf("timed: playing: title=%s duration=%s", t.Title, s.duration)
	return nil
}

// Stop ends the current track.
func (s *Sink) Stop() error {
	s.finish(0, nil)
	return nil
}

// Pause freezes the track timer.
func (s *Sink) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.busy {
		return playback.ErrNothingPlaying
	}
	if s.paused {
		return nil
	}
	s.cancelTimerLocked()
	s.pausedAt = toWallTime(time.Now())
	s.paused = true
	return nil
}

// Resume restarts the track timer with the remaining duration.
func (s *Sink) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.busy || !s.paused {
		return playback.ErrNothingPaused
	}
	s.pausedElapsed += toWallTime(time.Now()).Sub(s.pausedAt)
	s.paused = false
	s.startTimerLocked(s.remainingLocked())
	return nil
}

// IsBusy reports whether a track is playing or paused.
func (s *Sink) IsBusy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// IsConnected reports whether Connect has been called and the sink is open.
func (s *Sink) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected && !s.closed
}

// Disconnect drops the connection. A playing track finishes with
// playback.ErrConnectionLost.
func (s *Sink) Disconnect() {
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
	s.finish(0, errors.Wrap(playback.ErrConnectionLost, "disconnected"))
}

// Close stops playback and releases the sink.
func (s *Sink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.connected = false
	s.mu.Unlock()
	s.finish(0, nil)
	return nil
}

// BytesStreamed returns the nominal number of bytes played so far.
func (s *Sink) BytesStreamed() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := s.bytes
	if s.busy {
		total += int64(s.elapsedLocked().Seconds() * bytesPerSecond)
	}
	return total
}

// Remaining returns the time left on the current track.
func (s *Sink) Remaining() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.busy {
		return 0
	}
	return s.remainingLocked()
}

// finish ends play id (or whatever is playing when id is 0) and runs its callback.
func (s *Sink) finish(id uint64, err error) {
	s.mu.Lock()
	if !s.busy || (id != 0 && id != s.playID) {
		s.mu.Unlock()
		return
	}
	s.cancelTimerLocked()
	s.bytes += int64(s.elapsedLocked().Seconds() * bytesPerSecond)
	s.busy = false
	s.paused = false
	cb := s.onFinish
	s.onFinish = nil
	s.mu.Unlock()

	if cb != nil {
		cb(err)
	}
}

func (s *Sink) elapsedLocked() time.Duration {
	now := toWallTime(time.Now())
	elapsed := now.Sub(s.startTime) - s.pausedElapsed
	if s.paused {
		elapsed -= now.Sub(s.pausedAt)
	}
	if elapsed < 0 {
		return 0
	}
	if elapsed > s.duration {
		return s.duration
	}
	return elapsed
}

func (s *Sink) remainingLocked() time.Duration {
	remaining := s.duration - s.elapsedLocked()
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (s *Sink) cancelTimerLocked() {
	if s.timerCancel != nil {
		s.timerCancel()
		s.timerCancel = nil
	}
}

func (s *Sink) startTimerLocked(d time.Duration) {
	s.cancelTimerLocked()
	id := s.playID
	s.timerCancel = startWallClockTimer(d, s.tick, func() {
		s.finish(id, nil)
	})
}

// startWallClockTimer calls callback once duration has passed on the wall
// clock. It returns a cancel function.
func startWallClockTimer(duration, tick time.Duration, callback func()) func() {
	ctx, cancel := context.WithCancel(context.Background())
	endTime := toWallTime(time.Now()).Add(duration)

	go func() {
		ticker := time.NewTicker(tick)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !toWallTime(time.Now()).Before(endTime) {
					callback()
					return
				}
			}
		}
	}()

	return cancel
}

// toWallTime strips the monotonic clock reading so differences follow the wall clock.
func toWallTime(t time.Time) time.Time {
	return time.Unix(t.Unix(), int64(t.Nanosecond()))
}

func isLocal(source string) bool {
	return source != "" && !strings.Contains(source, "://")
}
