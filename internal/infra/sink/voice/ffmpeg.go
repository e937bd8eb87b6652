package voice

import (
	"context"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// Encoder turns a media source into an Ogg/Opus stream.
type Encoder interface {
	Encode(ctx context.Context, source string) (io.ReadCloser, error)
}

// FFmpeg encodes with an ffmpeg binary.
type FFmpeg struct {
	Path        string
	BitrateKbps int
}

// Encode starts ffmpeg on source. Closing the stream stops the process.
func (f FFmpeg) Encode(ctx context.Context, source string) (io.ReadCloser, error) {
	path := f.Path
	if path == "" {
		path = "ffmpeg"
	}
	cmd := exec.CommandContext(ctx, path, f.args(source)...)
	cmd.Stderr = stderrLog{}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "failed to open ffmpeg output")
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "failed to start %s", path)
	}
	return &process{ReadCloser: stdout, cmd: cmd}, nil
}

func (f FFmpeg) args(source string) []string {
	bitrate := f.BitrateKbps
	if bitrate <= 0 {
		bitrate = 128
	}
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-i", source,
		"-map", "0:a",
		"-acodec", "libopus",
		"-b:a", strconv.Itoa(bitrate) + "k",
		"-vbr", "on",
		"-ar", "48000",
		"-ac", "2",
		"-f", "opus",
		"pipe:1",
	}
	if strings.HasPrefix(source, "http") {
		args = append([]string{
			"-reconnect", "1",
			"-reconnect_streamed", "1",
			"-reconnect_delay_max", "2",
		}, args...)
	}
	return args
}

type process struct {
	io.ReadCloser
	cmd  *exec.Cmd
	once sync.Once
}

func (p *process) Close() error {
	p.once.Do(func() {
		_ = p.cmd.Process.Kill()
		_ = p.cmd.Wait()
	})
	return nil
}

type stderrLog struct{}

func (stderrLog) Write(b []byte) (int, error) {
	zlog.Debug().Msgf("voice: ffmpeg: %s", strings.TrimSpace(string(b)))
	return len(b), nil
}
