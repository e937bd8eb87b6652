//go:build !((linux && cgo) || windows || darwin)

package speaker

import (
	"context"

	"github.com/osa030/foldatunez/internal/app/playback"
	"github.com/osa030/foldatunez/internal/domain/track"
)

// Available reports whether audio playback is supported in this build.
// Audio requires cgo for the native sound libraries.
const Available = false

// Sink is unusable without cgo.
type Sink struct{}

// New always fails without cgo.
func New(cfg Config) (*Sink, error) {
	return nil, ErrUnavailable
}

func (s *Sink) Connect(ctx context.Context) error { return ErrUnavailable }

func (s *Sink) Play(ctx context.Context, t track.Track, onFinish func(error)) error {
	return playback.ErrNotConnected
}

func (s *Sink) Stop() error          { return nil }
func (s *Sink) Pause() error         { return playback.ErrNothingPlaying }
func (s *Sink) Resume() error        { return playback.ErrNothingPlaying }
func (s *Sink) IsBusy() bool         { return false }
func (s *Sink) IsConnected() bool    { return false }
func (s *Sink) BytesStreamed() int64 { return 0 }
func (s *Sink) Close() error         { return nil }
