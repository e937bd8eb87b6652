package playback

import "github.com/cockroachdb/errors"

// Command errors returned by the scheduler.
var (
	ErrNothingPlaying  = errors.New("nothing is playing")
	ErrNothingPaused   = errors.New("nothing is paused")
	ErrTooFewTracks    = errors.New("not enough tracks to shuffle")
	ErrBusy            = errors.New("queue is busy, a playlist is still loading")
	ErrClosed          = errors.New("scheduler is closed")
	ErrIndexOutOfRange = errors.New("queue position out of range")
)

// Sink errors. Sinks return (or wrap) these so the loop can classify failures.
var (
	ErrNotConnected     = errors.New("sink not connected")
	ErrAlreadyPlaying   = errors.New("sink already playing")
	ErrConnectionLost   = errors.New("sink connection lost")
	ErrMediaUnavailable = errors.New("media unavailable")
)

// IsTransient reports whether err is worth retrying with backoff.
func IsTransient(err error) bool {
	return errors.Is(err, ErrNotConnected) || errors.Is(err, ErrAlreadyPlaying)
}

// IsPermanent reports whether err means the sink cannot be used again.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrConnectionLost)
}
