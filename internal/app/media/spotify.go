package media

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/foldatunez/internal/domain/track"
	"github.com/osa030/foldatunez/internal/infra/spotify"
)

// Catalog is the subset of the Spotify client used by SpotifyBackend.
type Catalog interface {
	GetTrack(ctx context.Context, ref string) (*spotify.TrackInfo, error)
	GetPlaylist(ctx context.Context, ref string, limit int) (*spotify.Playlist, error)
}

// SpotifyBackendConfig holds Spotify backend settings.
type SpotifyBackendConfig struct {
	PlaylistLimit int `mapstructure:"playlist_limit" default:"100" validate:"gte=1,lte=5000"`
}

// SpotifyBackend turns Spotify links into search queries played through
// the remote backend. Spotify itself serves no audio.
type SpotifyBackend struct {
	catalog Catalog
	remote  *RemoteBackend
	config  SpotifyBackendConfig
}

// NewSpotifyBackend creates a Spotify backend from a settings map.
func NewSpotifyBackend(catalog Catalog, remote *RemoteBackend, settings map[string]any) (*SpotifyBackend, error) {
	if remote == nil {
		return nil, errors.New("spotify backend needs a remote backend to fetch audio")
	}
	var config SpotifyBackendConfig
	if err := decodeSettings(settings, &config); err != nil {
		return nil, err
	}
	return &SpotifyBackend{catalog: catalog, remote: remote, config: config}, nil
}

// Name returns the backend name.
func (b *SpotifyBackend) Name() string { return "spotify" }

// Supports reports whether the backend handles kind.
func (b *SpotifyBackend) Supports(kind Kind) bool {
	return kind == KindSpotifyTrack || kind == KindSpotifyPlaylist
}

// Resolve looks the track up on Spotify and plays the best search match.
func (b *SpotifyBackend) Resolve(ctx context.Context, locator string, requester track.Requester) (track.Track, error) {
	info, err := b.catalog.GetTrack(ctx, locator)
	if err != nil {
		return track.Track{}, wrapSpotify(err, "track %s", locator)
	}
	zlog.Debug().Msgf("media: spotify track: ref=%s query=%s", locator, info.Query())

	t, err := b.remote.resolveQuery(ctx, info.Query(), requester)
	if err != nil {
		return track.Track{}, err
	}
	t.Title = info.DisplayName()
	if info.Duration > 0 {
		t.Duration = info.Duration
	}
	t.Origin = locator
	return t, nil
}

// Expand lists a Spotify playlist as search queries.
func (b *SpotifyBackend) Expand(ctx context.Context, locator string) (*Collection, error) {
	pl, err := b.catalog.GetPlaylist(ctx, locator, b.config.PlaylistLimit)
	if err != nil {
		return nil, wrapSpotify(err, "playlist %s", locator)
	}
	col := &Collection{Title: pl.Name, Entries: make([]Entry, 0, len(pl.Tracks))}
	for _, ti := range pl.Tracks {
		col.Entries = append(col.Entries, Entry{
			Locator:  ti.Query(),
			Title:    ti.DisplayName(),
			Uploader: strings.Join(ti.Artists, ", "),
			Duration: ti.Duration,
		})
	}
	return col, nil
}

func wrapSpotify(err error, format string, args ...any) error {
	wrapped := errors.Wrapf(err, format, args...)
	if errors.Is(err, spotify.ErrNotFound) {
		return errors.Mark(wrapped, ErrNotFound)
	}
	return errors.Mark(wrapped, ErrNetwork)
}
