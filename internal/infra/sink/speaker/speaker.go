// Package speaker provides an output sink that plays decoded audio files on
// the local sound device.
package speaker

import (
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrUnavailable is returned when the build has no audio support.
var ErrUnavailable = errors.New("speaker output is not available in this build")

// Config configures the speaker sink.
type Config struct {
	SampleRate int
}

// pcmBytes converts stereo samples to bytes of 16-bit PCM.
func pcmBytes(samples int) int64 {
	return int64(samples) * 4
}

// decoderFor returns the decoder name for path, or "" when the format cannot be decoded.
func decoderFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return "mp3"
	case ".wav":
		return "wav"
	default:
		return ""
	}
}
