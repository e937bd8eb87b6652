package media

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/osa030/foldatunez/internal/domain/track"
	"github.com/osa030/foldatunez/internal/infra/localfs"
)

// LocalBackendConfig holds local backend settings.
type LocalBackendConfig struct {
	Root string `mapstructure:"root"`
}

// LocalBackend plays files from disk.
type LocalBackend struct {
	locator *localfs.Locator
}

// NewLocalBackend creates a local backend from a settings map.
func NewLocalBackend(settings map[string]any) (*LocalBackend, error) {
	var config LocalBackendConfig
	if err := decodeSettings(settings, &config); err != nil {
		return nil, err
	}
	return &LocalBackend{locator: localfs.New(config.Root)}, nil
}

// Name returns the backend name.
func (b *LocalBackend) Name() string { return "local" }

// Supports reports whether the backend handles kind.
func (b *LocalBackend) Supports(kind Kind) bool { return kind == KindLocal }

// Resolve locates the file. Its length is unknown until it is decoded.
func (b *LocalBackend) Resolve(_ context.Context, locator string, requester track.Requester) (track.Track, error) {
	f, err := b.locator.Locate(locator)
	if err != nil {
		return track.Track{}, errors.Mark(err, ErrNotFound)
	}
	t := track.New(f.Title, f.Path, requester, 0)
	t.Origin = locator
	return t, nil
}
