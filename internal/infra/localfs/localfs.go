// Package localfs locates audio files on the local disk.
package localfs

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

var (
	// ErrNotFound is returned when no file matches, even after probing alternate extensions.
	ErrNotFound = errors.New("file not found")
	// ErrEmpty is returned for zero-byte files.
	ErrEmpty = errors.New("file is empty")
)

// AlternateExts are tried, in order, when the requested file does not exist.
var AlternateExts = []string{".mp3", ".m4a", ".webm", ".mp4", ".wav", ".flac", ".ogg", ".aac"}

// File is a located audio file.
type File struct {
	Path  string
	Title string
	Size  int64
}

// Locator resolves paths relative to a root directory.
type Locator struct {
	root string
}

// New creates a locator. An empty root resolves relative paths against the working directory.
func New(root string) *Locator {
	return &Locator{root: root}
}

// Locate finds path on disk. If it does not exist, the same name with each of
// AlternateExts is tried.
func (l *Locator) Locate(path string) (*File, error) {
	p := l.expand(path)

	if f, err := stat(p); err == nil || errors.Is(err, ErrEmpty) {
		return f, err
	}

	base := strings.TrimSuffix(p, filepath.Ext(p))
	for _, ext := range AlternateExts {
		candidate := base + ext
		if candidate == p {
			continue
		}
		f, err := stat(candidate)
		if err == nil {
			zlog.Debug().Msgf("localfs: using alternate extension: requested=%s found=%s", p, candidate)
			return f, nil
		}
	}
	return nil, errors.Wrapf(ErrNotFound, "%s", path)
}

func (l *Locator) expand(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	if !filepath.IsAbs(path) && l.root != "" {
		path = filepath.Join(l.root, path)
	}
	return filepath.Clean(path)
}

func stat(path string) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(ErrNotFound, "%s", path)
	}
	if info.IsDir() {
		return nil, errors.Wrapf(ErrNotFound, "%s is a directory", path)
	}
	if info.Size() == 0 {
		return nil, errors.Wrapf(ErrEmpty, "%s", path)
	}
	return &File{
		Path:  path,
		Title: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Size:  info.Size(),
	}, nil
}
