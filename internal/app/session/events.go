package session

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/foldatunez/internal/app/media"
	"github.com/osa030/foldatunez/internal/app/playback"
)

// pump forwards scheduler events to the notifier and metrics until the
// event channel closes. A panic in a handler restarts the pump.
func (m *Manager) pump(s *playback.Scheduler) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("session: event pump panicked: guild=%s panic=%v", s.GuildID(), r)
			zlog.Info().Msgf("session: restarting event pump: guild=%s", s.GuildID())
			go m.pump(s)
		}
	}()

	for e := range s.Events() {
		m.handleEvent(s, e)
	}
	// Late events may have recreated gauges after teardown.
	if cur, err := m.registry.Get(s.GuildID()); err != nil || cur != s {
		m.metrics.Forget(s.GuildID())
	}
	zlog.Debug().Msgf("session: event pump stopped: guild=%s", s.GuildID())
}

func (m *Manager) handleEvent(s *playback.Scheduler, e playback.Event) {
	id := s.GuildID()
	zlog.Debug().Msgf("session: playback event: guild=%s type=%s", id, e.Type)

	switch e.Type {
	case playback.EventTrackStarted:
		m.metrics.TrackStarted(id)
		if e.Track != nil {
			m.notify(id, "started:"+e.Track.ID, fmt.Sprintf("🎵 Now playing: %s", e.Track.Title))
		}

	case playback.EventTrackSkipped:
		m.metrics.TrackSkipped(id)

	case playback.EventTrackFailed:
		m.metrics.TrackFailed(id)
		if e.Track != nil {
			m.notify(id, "failed:"+e.Track.ID, fmt.Sprintf("❌ Could not play %s: %s", e.Track.Title, failureReason(e.Err)))
		}

	case playback.EventSinkRetry:
		m.metrics.SinkRetry(id)
		zlog.Warn().Msgf("session: retrying playback: guild=%s attempt=%d error=%v", id, e.Attempt, e.Err)

	case playback.EventSinkLost:
		m.metrics.SinkLost(id)
		m.notify(id, "sink_lost", "⚠️ Lost the audio connection, leaving")
		go m.handleSinkLost(s)

	case playback.EventQueueEmpty:
		m.notify(id, "queue_empty", "The playlist has finished!")
	}

	snap := s.Snapshot()
	m.metrics.SetPending(id, len(snap.Pending))
	m.metrics.SetPlaying(id, snap.Phase.Active())
	m.metrics.SetBytesStreamed(id, s.Usage().BytesStreamed)
}

func (m *Manager) notify(id snowflake.ID, key, msg string) {
	m.notifier.Notify(m.ctx, id, key, msg)
}

func failureReason(err error) string {
	switch {
	case err == nil:
		return "unknown error"
	case errors.Is(err, playback.ErrMediaUnavailable):
		return "the media is unavailable"
	case playback.IsTransient(err):
		return "the audio output did not respond, will try again"
	default:
		return media.Describe(err)
	}
}
