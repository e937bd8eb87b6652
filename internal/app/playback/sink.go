package playback

import (
	"context"

	"github.com/osa030/foldatunez/internal/domain/track"
)

// OutputSink renders tracks for one guild.
//
// Play must return promptly once rendering has started. onFinish is called
// exactly once per successful Play, when the track ends or is stopped, from any
// goroutine, with nil or the error that ended playback. Play must not call
// onFinish before returning an error.
type OutputSink interface {
	Connect(ctx context.Context) error
	Play(ctx context.Context, t track.Track, onFinish func(error)) error
	Stop() error
	Pause() error
	Resume() error
	IsBusy() bool
	IsConnected() bool
	Close() error
}

// ByteCounter is implemented by sinks that account the media they read.
type ByteCounter interface {
	BytesStreamed() int64
}
