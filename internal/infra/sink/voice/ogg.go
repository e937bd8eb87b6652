package voice

import (
	"bufio"
	"bytes"
	"io"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	disgovoice "github.com/disgoorg/disgo/voice"
)

const (
	oggCapture    = "OggS"
	oggHeaderSize = 27
	maxSegment    = 255
)

var errBadPage = errors.New("malformed ogg page")

// oggReader provides the Opus packets of an Ogg stream one at a time. It
// calls onEnd once when the stream ends or breaks.
type oggReader struct {
	r      *bufio.Reader
	header [oggHeaderSize]byte
	segs   [maxSegment]byte
	packet bytes.Buffer
	queue  [][]byte

	frames int64
	bytes  *atomic.Int64
	onEnd  func(frames int64, err error)
	once   sync.Once
}

var _ disgovoice.OpusFrameProvider = (*oggReader)(nil)

func newOggReader(r io.Reader, counter *atomic.Int64, onEnd func(frames int64, err error)) *oggReader {
	return &oggReader{r: bufio.NewReaderSize(r, 16*1024), bytes: counter, onEnd: onEnd}
}

// ProvideOpusFrame returns the next audio packet. Header packets are skipped.
func (o *oggReader) ProvideOpusFrame() ([]byte, error) {
	for len(o.queue) == 0 {
		if err := o.readPage(); err != nil {
			o.end(err)
			return nil, err
		}
	}
	frame := o.queue[0]
	o.queue = o.queue[1:]
	o.frames++
	if o.bytes != nil {
		o.bytes.Add(int64(len(frame)))
	}
	return frame, nil
}

// Close is called by the connection when the provider is replaced.
func (o *oggReader) Close() {}

func (o *oggReader) end(err error) {
	o.once.Do(func() {
		if o.onEnd != nil {
			o.onEnd(o.frames, err)
		}
	})
}

// readPage reads one page and queues the packets it completes. A packet that
// spans pages is carried over in o.packet.
func (o *oggReader) readPage() error {
	if err := o.sync(); err != nil {
		return err
	}
	if _, err := io.ReadFull(o.r, o.header[:]); err != nil {
		return unexpected(err)
	}
	if o.header[4] != 0 {
		return errors.Wrapf(errBadPage, "unsupported version %d", o.header[4])
	}

	n := int(o.header[26])
	segs := o.segs[:n]
	if _, err := io.ReadFull(o.r, segs); err != nil {
		return unexpected(err)
	}
	for _, l := range segs {
		if _, err := io.CopyN(&o.packet, o.r, int64(l)); err != nil {
			return unexpected(err)
		}
		if l == maxSegment {
			continue
		}
		packet := bytes.Clone(o.packet.Bytes())
		o.packet.Reset()
		if isHeaderPacket(packet) {
			continue
		}
		o.queue = append(o.queue, packet)
	}
	return nil
}

// sync skips garbage up to the next capture pattern.
func (o *oggReader) sync() error {
	for {
		sig, err := o.r.Peek(len(oggCapture))
		if err != nil {
			if errors.Is(err, io.EOF) && len(sig) > 0 {
				return io.ErrUnexpectedEOF
			}
			return err
		}
		if string(sig) == oggCapture {
			return nil
		}
		if _, err := o.r.Discard(1); err != nil {
			return err
		}
	}
}

func isHeaderPacket(p []byte) bool {
	if len(p) < 8 {
		return len(p) == 0
	}
	s := string(p[:8])
	return s == "OpusHead" || s == "OpusTags"
}

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
