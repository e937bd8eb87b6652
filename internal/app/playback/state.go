// Package playback provides the per-guild scheduler: queue, history, loop mode
// and the background loop that drives an output sink.
package playback

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// Phase represents the playback phase of a scheduler.
type Phase int

const (
	PhaseIdle         Phase = iota // Nothing playing
	PhaseAwaitingSink              // Track selected, sink start in progress
	PhasePlaying                   // Sink is rendering the current track
	PhasePaused                    // Current track is paused
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAwaitingSink:
		return "awaiting_sink"
	case PhasePlaying:
		return "playing"
	case PhasePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Active reports whether a current track is being started, played or paused.
func (p Phase) Active() bool {
	return p != PhaseIdle
}

// LoopMode controls what happens when a track finishes.
type LoopMode int

const (
	LoopNone  LoopMode = iota // Play pending once
	LoopQueue                 // Replay history when pending runs out
	LoopSong                  // Replay the current track
)

// String returns the string representation of the loop mode.
func (m LoopMode) String() string {
	switch m {
	case LoopNone:
		return "none"
	case LoopQueue:
		return "queue"
	case LoopSong:
		return "song"
	default:
		return "unknown"
	}
}

// Next returns the mode after m in the cycle none -> queue -> song -> none.
func (m LoopMode) Next() LoopMode {
	switch m {
	case LoopNone:
		return LoopQueue
	case LoopQueue:
		return LoopSong
	default:
		return LoopNone
	}
}

// ParseLoopMode parses a loop mode name. "off" is accepted for none, "all" for queue
// and "one"/"track" for song.
func ParseLoopMode(s string) (LoopMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "off":
		return LoopNone, nil
	case "queue", "all":
		return LoopQueue, nil
	case "song", "one", "track":
		return LoopSong, nil
	default:
		return LoopNone, errors.Newf("unknown loop mode: %q", s)
	}
}
