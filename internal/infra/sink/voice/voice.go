// Package voice plays tracks into a Discord voice channel.
package voice

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	disgovoice "github.com/disgoorg/disgo/voice"
	"github.com/disgoorg/snowflake/v2"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/foldatunez/internal/app/playback"
	"github.com/osa030/foldatunez/internal/domain/track"
)

// Conn is the part of a disgo voice connection the sink drives.
type Conn interface {
	Open(ctx context.Context, channelID snowflake.ID, selfMute bool, selfDeaf bool) error
	Close(ctx context.Context)
	SetOpusFrameProvider(provider disgovoice.OpusFrameProvider)
	SetSpeaking(ctx context.Context, flags disgovoice.SpeakingFlags) error
}

// ConnFactory creates the voice connection of a guild.
type ConnFactory func(guildID snowflake.ID) Conn

const controlTimeout = 5 * time.Second

// Sink is a playback.OutputSink streaming Opus to a voice channel.
type Sink struct {
	guildID  snowflake.ID
	channels *Channels
	newConn  ConnFactory
	encoder  Encoder

	mu        sync.Mutex
	conn      Conn
	channelID snowflake.ID
	connected bool
	closed    bool

	playID   uint64
	stream   io.ReadCloser
	provider *oggReader
	cancel   context.CancelFunc
	paused   bool
	onFinish func(error)

	bytes atomic.Int64
}

var (
	_ playback.OutputSink  = (*Sink)(nil)
	_ playback.ByteCounter = (*Sink)(nil)
)

// New creates the sink of a guild. It joins the channel selected in channels.
func New(guildID snowflake.ID, channels *Channels, newConn ConnFactory, encoder Encoder) *Sink {
	return &Sink{guildID: guildID, channels: channels, newConn: newConn, encoder: encoder}
}

// Connect joins the guild's selected channel, leaving the previous one.
func (s *Sink) Connect(ctx context.Context) error {
	channelID, ok := s.channels.Channel(s.guildID)
	if !ok {
		return errors.Wrapf(playback.ErrNotConnected, "no voice channel selected for guild %s", s.guildID)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.Wrap(playback.ErrConnectionLost, "sink closed")
	}
	if s.connected && s.channelID == channelID {
		s.mu.Unlock()
		return nil
	}
	old := s.conn
	s.conn = nil
	s.connected = false
	s.mu.Unlock()

	if old != nil {
		old.Close(ctx)
	}
	conn := s.newConn(s.guildID)
	if err := conn.Open(ctx, channelID, false, false); err != nil {
		conn.Close(ctx)
		return errors.Mark(errors.Wrapf(err, "failed to join voice channel %s", channelID), playback.ErrNotConnected)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close(ctx)
		return errors.Wrap(playback.ErrConnectionLost, "sink closed")
	}
	s.conn = conn
	s.channelID = channelID
	s.connected = true
	s.mu.Unlock()

	zlog.Info().Msgf("voice: joined channel: guild=%s channel=%s", s.guildID, channelID)
	return nil
}

// Play starts encoding the track and hands its packets to the connection.
func (s *Sink) Play(ctx context.Context, t track.Track, onFinish func(error)) error {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return errors.Wrap(playback.ErrConnectionLost, "sink closed")
	case !s.connected:
		s.mu.Unlock()
		return playback.ErrNotConnected
	case s.provider != nil:
		s.mu.Unlock()
		return playback.ErrAlreadyPlaying
	}
	s.mu.Unlock()

	pctx, cancel := context.WithCancel(context.Background())
	stream, err := s.encoder.Encode(pctx, t.Source)
	if err != nil {
		cancel()
		return errors.Mark(errors.Wrapf(err, "cannot encode %s", t.Source), playback.ErrMediaUnavailable)
	}

	s.mu.Lock()
	if s.provider != nil || !s.connected {
		busy := s.provider != nil
		s.mu.Unlock()
		cancel()
		stream.Close()
		if busy {
			return playback.ErrAlreadyPlaying
		}
		return playback.ErrNotConnected
	}
	s.playID++
	id := s.playID
	s.stream = stream
	s.cancel = cancel
	s.paused = false
	s.onFinish = onFinish
	s.provider = newOggReader(stream, &s.bytes, func(frames int64, err error) {
		go s.finish(id, endError(frames, err))
	})
	conn := s.conn
	conn.SetOpusFrameProvider(s.provider)
	s.mu.Unlock()

	s.speak(conn, disgovoice.SpeakingFlagMicrophone)
	zlog.Debug().Msgf("voice: playing: guild=%s title=%s", s.guildID, t.Title)
	return nil
}

// endError maps how a stream ended to the error reported for the track.
func endError(frames int64, err error) error {
	switch {
	case errors.Is(err, io.EOF) && frames > 0:
		return nil
	case frames == 0:
		return errors.Mark(errors.Wrap(err, "no audio decoded"), playback.ErrMediaUnavailable)
	default:
		return errors.Mark(errors.Wrap(err, "audio stream broke"), playback.ErrMediaUnavailable)
	}
}

// Stop ends the current track.
func (s *Sink) Stop() error {
	s.finish(0, nil)
	return nil
}

// Pause detaches the stream from the connection. Encoding stalls until Resume.
func (s *Sink) Pause() error {
	return s.setPaused(true)
}

// Resume reattaches the stream.
func (s *Sink) Resume() error {
	return s.setPaused(false)
}

func (s *Sink) setPaused(paused bool) error {
	s.mu.Lock()
	if s.provider == nil || s.conn == nil {
		s.mu.Unlock()
		return playback.ErrNothingPlaying
	}
	if s.paused == paused {
		s.mu.Unlock()
		return nil
	}
	s.paused = paused
	conn := s.conn
	flags := disgovoice.SpeakingFlagMicrophone
	if paused {
		conn.SetOpusFrameProvider(nil)
		flags = 0
	} else {
		conn.SetOpusFrameProvider(s.provider)
	}
	s.mu.Unlock()

	s.speak(conn, flags)
	return nil
}

// IsBusy reports whether a track is loaded.
func (s *Sink) IsBusy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.provider != nil
}

// IsConnected reports whether the sink sits in the guild's selected channel.
func (s *Sink) IsConnected() bool {
	channelID, ok := s.channels.Channel(s.guildID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected && !s.closed && ok && channelID == s.channelID
}

// BytesStreamed returns the Opus bytes sent so far.
func (s *Sink) BytesStreamed() int64 {
	return s.bytes.Load()
}

// Close stops playback and leaves the channel.
func (s *Sink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.finish(0, nil)

	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.connected = false
	s.mu.Unlock()

	if conn != nil {
		ctx, cancel := context.WithTimeout(context.Background(), controlTimeout)
		defer cancel()
		conn.Close(ctx)
		zlog.Info().Msgf("voice: left channel: guild=%s", s.guildID)
	}
	return nil
}

func (s *Sink) finish(id uint64, err error) {
	s.mu.Lock()
	if s.provider == nil || (id != 0 && id != s.playID) {
		s.mu.Unlock()
		return
	}
	conn := s.conn
	if conn != nil {
		conn.SetOpusFrameProvider(nil)
	}
	s.cancel()
	if cerr := s.stream.Close(); cerr != nil {
		zlog.Warn().Err(cerr).Msg("voice: failed to close stream")
	}
	s.provider = nil
	s.stream = nil
	s.cancel = nil
	s.paused = false
	cb := s.onFinish
	s.onFinish = nil
	s.mu.Unlock()

	if conn != nil {
		s.speak(conn, 0)
	}
	if cb != nil {
		cb(err)
	}
}

func (s *Sink) speak(conn Conn, flags disgovoice.SpeakingFlags) {
	ctx, cancel := context.WithTimeout(context.Background(), controlTimeout)
	defer cancel()
	if err := conn.SetSpeaking(ctx, flags); err != nil {
		zlog.Warn().Msgf("voice: failed to set speaking: guild=%s error=%v", s.guildID, err)
	}
}
