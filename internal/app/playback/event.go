package playback

import "github.com/osa030/foldatunez/internal/domain/track"

// EventType represents a playback event type.
type EventType int

const (
	EventTrackStarted  EventType = iota // Sink started the current track
	EventTrackEnded                     // Track finished (naturally or after stop)
	EventTrackSkipped                   // Track was skipped by a command
	EventTrackFailed                    // Track could not be played
	EventStateChanged                   // Pause / resume / stop
	EventLoopChanged                    // Loop mode changed
	EventQueueShuffled                  // Pending was shuffled
	EventQueueEmpty                     // Nothing left to play
	EventSinkRetry                      // Sink reported a transient error, retrying
	EventSinkLost                       // Sink connection lost permanently
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventTrackStarted:
		return "track_started"
	case EventTrackEnded:
		return "track_ended"
	case EventTrackSkipped:
		return "track_skipped"
	case EventTrackFailed:
		return "track_failed"
	case EventStateChanged:
		return "state_changed"
	case EventLoopChanged:
		return "loop_changed"
	case EventQueueShuffled:
		return "queue_shuffled"
	case EventQueueEmpty:
		return "queue_empty"
	case EventSinkRetry:
		return "sink_retry"
	case EventSinkLost:
		return "sink_lost"
	default:
		return "unknown"
	}
}

// Event represents a playback event.
type Event struct {
	Type     EventType
	Track    *track.Track // Track concerned (nil for some events)
	Phase    Phase        // Phase after the event
	LoopMode LoopMode     // Loop mode after the event
	Attempt  int          // Retry attempt for EventSinkRetry
	Err      error        // Cause for failure events
}
