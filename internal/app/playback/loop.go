package playback

import (
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/foldatunez/internal/domain/track"
)

// run is the scheduler loop. It never holds the lock while waiting.
func (s *Scheduler) run() {
	defer close(s.done)
	defer s.release()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if s.ctx.Err() != nil {
			return
		}

		if cooldown := s.iterate(); cooldown > 0 {
			timer := time.NewTimer(cooldown)
			select {
			case <-s.ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			s.signal()
		}

		select {
		case <-s.ctx.Done():
			return
		case <-s.wake:
		case <-ticker.C:
		}
	}
}

// iterate runs one selection step, recovering from panics so a single bad
// track cannot kill the loop.
func (s *Scheduler) iterate() (cooldown time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Msgf("playback: loop panic recovered: %v", r)
			cooldown = s.cfg.FailureCooldown
		}
	}()

	next, gen, fromQueue, ok := s.selectNext()
	if !ok {
		return 0
	}
	return s.start(next, gen, fromQueue)
}

// selectNext picks the next track and moves to AWAITING_SINK.
//  1. song loop replays the current track
//  2. otherwise the head of pending
//  3. otherwise, in queue loop, pending is refilled from history
//  4. otherwise nothing
func (s *Scheduler) selectNext() (next track.Track, gen uint64, fromQueue bool, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.lost || s.phase != PhaseIdle {
		return track.Track{}, 0, false, false
	}

	switch {
	case s.loopMode == LoopSong && s.current != nil:
		next = *s.current
	default:
		t, found := s.pending.PopFront()
		if !found && s.loopMode == LoopQueue && len(s.history) > 0 {
			s.pending.ReplaceAll(s.history)
			t, found = s.pending.PopFront()
			s.log.Debug().Msgf("playback: queue loop refill: tracks=%d", len(s.history))
		}
		if !found {
			if s.current != nil {
				s.current = nil
				s.sendEventLocked(Event{Type: EventQueueEmpty})
			}
			return track.Track{}, 0, false, false
		}
		next = t
		fromQueue = true
	}

	s.current = &next
	s.phase = PhaseAwaitingSink
	s.startedAt = time.Time{}
	s.pausedAt = time.Time{}
	s.pausedFor = 0
	s.gen++
	return next, s.gen, fromQueue, true
}

// start hands the track to the sink, retrying transient errors with backoff.
func (s *Scheduler) start(t track.Track, gen uint64, fromQueue bool) time.Duration {
	for attempt := 1; ; attempt++ {
		if attempt > 1 && !s.isCurrent(gen) {
			return 0
		}

		err := s.connect()
		if err == nil {
			err = s.sink.Play(s.ctx, t, s.finisher(gen))
		}
		if err == nil {
			s.markStarted(gen)
			return 0
		}

		if IsTransient(err) && attempt < s.cfg.Retry.Attempts {
			s.log.Warn().Err(err).Msgf("playback: sink not ready, retrying: title=%s attempt=%d delay=%v",
				t.Title, attempt, s.cfg.Retry.Delay(attempt))
			s.mu.Lock()
			s.sendEventLocked(Event{Type: EventSinkRetry, Track: &t, Attempt: attempt, Err: err})
			s.mu.Unlock()
			if s.cfg.Retry.Wait(s.ctx, attempt) != nil {
				return 0
			}
			continue
		}
		return s.failStart(gen, t, fromQueue, err)
	}
}

func (s *Scheduler) connect() error {
	if s.sink.IsConnected() {
		return nil
	}
	if err := s.sink.Connect(s.ctx); err != nil {
		if IsPermanent(err) || IsTransient(err) {
			return err
		}
		return errors.Mark(errors.Wrap(err, "failed to connect sink"), ErrNotConnected)
	}
	return nil
}

func (s *Scheduler) isCurrent(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen && !s.closed
}

// markStarted records a successful start unless a stop or teardown invalidated it meanwhile.
func (s *Scheduler) markStarted(gen uint64) {
	s.mu.Lock()
	if s.gen != gen || s.current == nil {
		s.mu.Unlock()
		s.log.Debug().Msg("playback: start superseded, stopping sink")
		if err := s.sink.Stop(); err != nil {
			s.log.Warn().Err(err).Msg("playback: failed to stop superseded track")
		}
		return
	}
	defer s.mu.Unlock()

	started := *s.current
	if s.phase == PhaseAwaitingSink {
		s.phase = PhasePlaying
		s.startedAt = time.Now()
	}
	if _, seen := s.inHistory[started.ID]; !seen {
		s.inHistory[started.ID] = struct{}{}
		s.history = append(s.history, started)
	}
	s.tracksStarted++
	s.sendEventLocked(Event{Type: EventTrackStarted, Track: &started})
	s.log.Info().Msgf("playback: track started: title=%s requester=%s pending=%d",
		started.Title, started.Requester.DisplayName(), s.pending.Len())
}

// finisher builds the sink completion callback. It only moves the phase to IDLE
// and wakes the loop.
func (s *Scheduler) finisher(gen uint64) func(error) {
	var once bool
	return func(err error) {
		s.mu.Lock()
		if !once && s.gen == gen && s.phase.Active() && s.current != nil {
			once = true
			ended := *s.current
			s.phase = PhaseIdle
			s.sendEventLocked(Event{Type: EventTrackEnded, Track: &ended, Err: err})
			if IsPermanent(err) {
				s.lost = true
				s.sendEventLocked(Event{Type: EventSinkLost, Err: err})
			}
		}
		s.mu.Unlock()

		if err != nil {
			s.log.Warn().Err(err).Msg("playback: track ended with error")
		}
		s.signal()
	}
}

// failStart classifies a start failure and returns the cooldown before the next attempt.
func (s *Scheduler) failStart(gen uint64, t track.Track, fromQueue bool, err error) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen {
		return 0
	}
	s.phase = PhaseIdle
	s.current = nil

	switch {
	case IsPermanent(err):
		s.lost = true
		if fromQueue {
			s.pending.PushFront(t)
		}
		s.sendEventLocked(Event{Type: EventSinkLost, Track: &t, Err: err})
		s.log.Error().Err(err).Msg("playback: sink lost")
		return 0

	case errors.Is(err, ErrMediaUnavailable):
		s.forgetLocked(t.ID)
		s.sendEventLocked(Event{Type: EventTrackFailed, Track: &t, Err: err})
		s.log.Warn().Err(err).Msgf("playback: media unavailable, skipping: title=%s", t.Title)
		s.signal()
		return 0

	case IsTransient(err):
		if fromQueue {
			s.pending.PushFront(t)
		} else {
			s.current = &t
		}
		s.sendEventLocked(Event{Type: EventTrackFailed, Track: &t, Err: err})
		s.log.Error().Err(err).Msgf("playback: sink still unavailable after %d attempts: title=%s",
			s.cfg.Retry.Attempts, t.Title)
		return s.cfg.FailureCooldown

	default:
		s.forgetLocked(t.ID)
		s.sendEventLocked(Event{Type: EventTrackFailed, Track: &t, Err: err})
		s.log.Error().Err(err).Msgf("playback: failed to start track: title=%s", t.Title)
		return s.cfg.FailureCooldown
	}
}

// forgetLocked drops a track from history so queue loop does not keep retrying it.
func (s *Scheduler) forgetLocked(id string) {
	if _, ok := s.inHistory[id]; !ok {
		return
	}
	delete(s.inHistory, id)
	kept := s.history[:0]
	for _, h := range s.history {
		if h.ID != id {
			kept = append(kept, h)
		}
	}
	s.history = kept
}
