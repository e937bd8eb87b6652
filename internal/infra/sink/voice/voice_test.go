package voice

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	disgovoice "github.com/disgoorg/disgo/voice"
	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/foldatunez/internal/app/playback"
	"github.com/osa030/foldatunez/internal/domain/track"
)

type fakeConn struct {
	mu       sync.Mutex
	channel  snowflake.ID
	openErr  error
	closed   bool
	provider disgovoice.OpusFrameProvider
	speaking []disgovoice.SpeakingFlags
}

func (c *fakeConn) Open(_ context.Context, channelID snowflake.ID, _, _ bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channel = channelID
	return c.openErr
}

func (c *fakeConn) Close(context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) SetOpusFrameProvider(p disgovoice.OpusFrameProvider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.provider = p
}

func (c *fakeConn) SetSpeaking(_ context.Context, flags disgovoice.SpeakingFlags) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.speaking = append(c.speaking, flags)
	return nil
}

func (c *fakeConn) current() disgovoice.OpusFrameProvider {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.provider
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type closeTracker struct {
	io.Reader
	mu     sync.Mutex
	closed bool
}

func (c *closeTracker) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *closeTracker) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeEncoder struct {
	data    map[string][]byte
	streams []*closeTracker
}

func (e *fakeEncoder) Encode(_ context.Context, source string) (io.ReadCloser, error) {
	data, ok := e.data[source]
	if !ok {
		return nil, errors.Newf("no such file %s", source)
	}
	s := &closeTracker{Reader: bytes.NewReader(data)}
	e.streams = append(e.streams, s)
	return s, nil
}

type voiceHarness struct {
	sink     *Sink
	channels *Channels
	encoder  *fakeEncoder

	mu    sync.Mutex
	conns []*fakeConn
}

const testGuild = snowflake.ID(1)

func newVoiceHarness() *voiceHarness {
	h := &voiceHarness{channels: NewChannels(), encoder: &fakeEncoder{data: map[string][]byte{
		"song.mp3":  opusStream([]byte("f1"), []byte("f2")),
		"empty.mp3": opusStream(),
	}}}
	h.sink = New(testGuild, h.channels, func(snowflake.ID) Conn {
		c := &fakeConn{}
		h.mu.Lock()
		h.conns = append(h.conns, c)
		h.mu.Unlock()
		return c
	}, h.encoder)
	return h
}

func (h *voiceHarness) conn(i int) *fakeConn {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conns[i]
}

// finished returns an onFinish callback and a channel receiving its error.
func finished() (func(error), chan error) {
	ch := make(chan error, 2)
	return func(err error) { ch <- err }, ch
}

func drain(t *testing.T, p disgovoice.OpusFrameProvider) int {
	t.Helper()
	n := 0
	for {
		if _, err := p.ProvideOpusFrame(); err != nil {
			return n
		}
		n++
	}
}

func waitFinish(t *testing.T, ch chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("onFinish not called")
		return nil
	}
}

func TestSink_ConnectNeedsChannel(t *testing.T) {
	h := newVoiceHarness()
	err := h.sink.Connect(context.Background())
	assert.True(t, errors.Is(err, playback.ErrNotConnected))
	assert.False(t, h.sink.IsConnected())
}

func TestSink_PlaysTrackToEnd(t *testing.T) {
	h := newVoiceHarness()
	ctx := context.Background()
	h.channels.Join(testGuild, 10)
	require.NoError(t, h.sink.Connect(ctx))
	assert.True(t, h.sink.IsConnected())
	assert.Equal(t, snowflake.ID(10), h.conn(0).channel)

	onFinish, done := finished()
	require.NoError(t, h.sink.Play(ctx, track.Track{Title: "song", Source: "song.mp3"}, onFinish))
	assert.True(t, h.sink.IsBusy())
	assert.ErrorIs(t, h.sink.Play(ctx, track.Track{Source: "song.mp3"}, func(error) {}), playback.ErrAlreadyPlaying)

	p := h.conn(0).current()
	require.NotNil(t, p)
	assert.Equal(t, 2, drain(t, p))
	require.NoError(t, waitFinish(t, done))

	assert.False(t, h.sink.IsBusy())
	assert.Nil(t, h.conn(0).current())
	assert.Equal(t, int64(4), h.sink.BytesStreamed())
	assert.True(t, h.encoder.streams[0].isClosed())
	assert.Equal(t, []disgovoice.SpeakingFlags{disgovoice.SpeakingFlagMicrophone, 0}, h.conn(0).speaking)
}

func TestSink_EmptyStreamIsUnavailable(t *testing.T) {
	h := newVoiceHarness()
	ctx := context.Background()
	h.channels.Join(testGuild, 10)
	require.NoError(t, h.sink.Connect(ctx))

	onFinish, done := finished()
	require.NoError(t, h.sink.Play(ctx, track.Track{Source: "empty.mp3"}, onFinish))
	drain(t, h.conn(0).current())
	assert.True(t, errors.Is(waitFinish(t, done), playback.ErrMediaUnavailable))

	err := h.sink.Play(ctx, track.Track{Source: "missing.mp3"}, func(error) {})
	assert.True(t, errors.Is(err, playback.ErrMediaUnavailable))
	assert.False(t, h.sink.IsBusy())
}

func TestSink_PauseResumeStop(t *testing.T) {
	h := newVoiceHarness()
	ctx := context.Background()
	h.channels.Join(testGuild, 10)
	require.NoError(t, h.sink.Connect(ctx))
	assert.ErrorIs(t, h.sink.Pause(), playback.ErrNothingPlaying)

	onFinish, done := finished()
	require.NoError(t, h.sink.Play(ctx, track.Track{Source: "song.mp3"}, onFinish))
	p := h.conn(0).current()

	require.NoError(t, h.sink.Pause())
	assert.Nil(t, h.conn(0).current())
	require.NoError(t, h.sink.Resume())
	assert.Same(t, p, h.conn(0).current())

	require.NoError(t, h.sink.Stop())
	assert.NoError(t, waitFinish(t, done))
	assert.Nil(t, h.conn(0).current())
	assert.True(t, h.encoder.streams[0].isClosed())

	// The reader ending after a stop does not finish the track again.
	drain(t, p)
	select {
	case <-done:
		t.Fatal("onFinish called twice")
	case <-time.After(30 * time.Millisecond):
	}
}

func TestSink_MovesToNewChannel(t *testing.T) {
	h := newVoiceHarness()
	ctx := context.Background()
	h.channels.Join(testGuild, 10)
	require.NoError(t, h.sink.Connect(ctx))

	h.channels.Join(testGuild, 11)
	assert.False(t, h.sink.IsConnected())
	require.NoError(t, h.sink.Connect(ctx))
	assert.True(t, h.conn(0).isClosed())
	assert.Equal(t, snowflake.ID(11), h.conn(1).channel)
	assert.True(t, h.sink.IsConnected())
}

func TestSink_OpenFailure(t *testing.T) {
	h := newVoiceHarness()
	h.channels.Join(testGuild, 10)
	h.sink.newConn = func(snowflake.ID) Conn {
		return &fakeConn{openErr: errors.New("timed out")}
	}
	err := h.sink.Connect(context.Background())
	assert.True(t, errors.Is(err, playback.ErrNotConnected))
	assert.False(t, h.sink.IsConnected())
}

func TestSink_Close(t *testing.T) {
	h := newVoiceHarness()
	ctx := context.Background()
	h.channels.Join(testGuild, 10)
	require.NoError(t, h.sink.Connect(ctx))

	onFinish, done := finished()
	require.NoError(t, h.sink.Play(ctx, track.Track{Source: "song.mp3"}, onFinish))
	require.NoError(t, h.sink.Close())
	assert.NoError(t, waitFinish(t, done))
	assert.True(t, h.conn(0).isClosed())
	assert.False(t, h.sink.IsConnected())

	err := h.sink.Play(ctx, track.Track{Source: "song.mp3"}, func(error) {})
	assert.True(t, errors.Is(err, playback.ErrConnectionLost))
	assert.True(t, errors.Is(h.sink.Connect(ctx), playback.ErrConnectionLost))
}

func TestChannels(t *testing.T) {
	c := NewChannels()
	_, ok := c.Channel(1)
	assert.False(t, ok)
	c.Join(1, 5)
	id, ok := c.Channel(1)
	assert.True(t, ok)
	assert.Equal(t, snowflake.ID(5), id)
	c.Forget(1)
	_, ok = c.Channel(1)
	assert.False(t, ok)
}

func TestFFmpegArgs(t *testing.T) {
	args := FFmpeg{BitrateKbps: 96}.args("/tmp/a.webm")
	assert.Contains(t, args, "96k")
	assert.Equal(t, "pipe:1", args[len(args)-1])
	assert.NotContains(t, args, "-reconnect")

	args = FFmpeg{}.args("https://media.test/a")
	assert.Equal(t, "-reconnect", args[0])
	assert.Contains(t, args, "128k")
}
