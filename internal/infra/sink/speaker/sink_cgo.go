//go:build (linux && cgo) || windows || darwin

package speaker

import (
	"context"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/wav"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/foldatunez/internal/app/playback"
	"github.com/osa030/foldatunez/internal/domain/track"
)

// Available reports whether audio playback is supported in this build.
const Available = true

// The sound device is process wide.
var (
	initOnce sync.Once
	initErr  error
)

// Sink is a playback.OutputSink playing through the sound device.
type Sink struct {
	mu sync.Mutex

	sampleRate beep.SampleRate
	connected  bool
	closed     bool

	playID   uint64
	ctrl     *beep.Ctrl
	streamer beep.StreamSeekCloser
	onFinish func(error)

	bytes atomic.Int64
}

var (
	_ playback.OutputSink  = (*Sink)(nil)
	_ playback.ByteCounter = (*Sink)(nil)
)

// New creates a speaker sink.
func New(cfg Config) (*Sink, error) {
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = 44100
	}
	return &Sink{sampleRate: beep.SampleRate(rate)}, nil
}

// Connect initialises the sound device.
func (s *Sink) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.Wrap(playback.ErrConnectionLost, "sink closed")
	}

	initOnce.Do(func() {
		initErr = speaker.Init(s.sampleRate, s.sampleRate.N(time.Second/10))
	})
	if initErr != nil {
		return errors.Mark(errors.Wrap(initErr, "failed to initialise speaker"), playback.ErrNotConnected)
	}
	s.connected = true
	return nil
}

// Play decodes the track's file and starts it.
func (s *Sink) Play(ctx context.Context, t track.Track, onFinish func(error)) error {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return errors.Wrap(playback.ErrConnectionLost, "sink closed")
	case !s.connected:
		s.mu.Unlock()
		return playback.ErrNotConnected
	case s.ctrl != nil:
		s.mu.Unlock()
		return playback.ErrAlreadyPlaying
	}
	s.mu.Unlock()

	streamer, format, err := decode(t.Source)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctrl != nil {
		streamer.Close()
		return playback.ErrAlreadyPlaying
	}

	s.playID++
	id := s.playID
	s.streamer = streamer
	s.onFinish = onFinish

	var src beep.Streamer = streamer
	if format.SampleRate != s.sampleRate {
		src = beep.Resample(4, format.SampleRate, s.sampleRate, streamer)
	}
	s.ctrl = &beep.Ctrl{Streamer: &counter{Streamer: src, bytes: &s.bytes}}

	// The speaker lock is held while the callback runs.
	speaker.Play(beep.Seq(s.ctrl, beep.Callback(func() {
		go s.finish(id, nil)
	})))

	zlog.Debug().Msgf("speaker: playing: title=%s rate=%d", t.Title, format.SampleRate)
	return nil
}

// Stop silences the current track and finishes it.
func (s *Sink) Stop() error {
	s.finish(0, nil)
	return nil
}

// Pause pauses the current track.
func (s *Sink) Pause() error {
	return s.setPaused(true)
}

// Resume resumes the current track.
func (s *Sink) Resume() error {
	return s.setPaused(false)
}

func (s *Sink) setPaused(paused bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctrl == nil {
		return playback.ErrNothingPlaying
	}
	speaker.Lock()
	s.ctrl.Paused = paused
	speaker.Unlock()
	return nil
}

// IsBusy reports whether a track is loaded.
func (s *Sink) IsBusy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl != nil
}

// IsConnected reports whether the device is initialised.
func (s *Sink) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected && !s.closed
}

// BytesStreamed returns the PCM bytes produced so far.
func (s *Sink) BytesStreamed() int64 {
	return s.bytes.Load()
}

// Close stops playback. The device itself stays initialised for other sinks.
func (s *Sink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.connected = false
	s.mu.Unlock()
	s.finish(0, nil)
	return nil
}

func (s *Sink) finish(id uint64, err error) {
	s.mu.Lock()
	if s.ctrl == nil || (id != 0 && id != s.playID) {
		s.mu.Unlock()
		return
	}
	speaker.Lock()
	s.ctrl.Streamer = nil
	speaker.Unlock()
	if s.streamer != nil {
		if cerr := s.streamer.Close(); cerr != nil {
			zlog.Warn().Err(cerr).Msg("speaker: failed to close streamer")
		}
	}
	s.ctrl = nil
	s.streamer = nil
	cb := s.onFinish
	s.onFinish = nil
	s.mu.Unlock()

	if cb != nil {
		cb(err)
	}
}

func decode(path string) (beep.StreamSeekCloser, beep.Format, error) {
	kind := decoderFor(path)
	if kind == "" {
		return nil, beep.Format{}, errors.Wrapf(playback.ErrMediaUnavailable, "cannot decode %s", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, beep.Format{}, errors.Wrapf(playback.ErrMediaUnavailable, "open %s: %v", path, err)
	}

	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
	)
	switch kind {
	case "mp3":
		streamer, format, err = mp3.Decode(f)
	case "wav":
		streamer, format, err = wav.Decode(io.ReadSeekCloser(f))
	}
	if err != nil {
		f.Close()
		return nil, beep.Format{}, errors.Wrapf(playback.ErrMediaUnavailable, "decode %s: %v", path, err)
	}
	return streamer, format, nil
}

// counter counts the samples that pass through it.
type counter struct {
	beep.Streamer
	bytes *atomic.Int64
}

func (c *counter) Stream(samples [][2]float64) (int, bool) {
	n, ok := c.Streamer.Stream(samples)
	c.bytes.Add(pcmBytes(n))
	return n, ok
}
