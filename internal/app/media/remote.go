package media

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/foldatunez/internal/domain/track"
	"github.com/osa030/foldatunez/internal/infra/ytdlp"
)

// Downloader is the subset of the yt-dlp client used by RemoteBackend.
type Downloader interface {
	Download(ctx context.Context, url string) (*ytdlp.Media, error)
	FlatPlaylist(ctx context.Context, url string) (*ytdlp.Playlist, error)
	Search(ctx context.Context, query string, limit int) ([]ytdlp.Item, error)
}

// RemoteBackendConfig holds remote backend settings.
type RemoteBackendConfig struct {
	// DisableSearch stops free text from resolving to the first search result.
	DisableSearch bool `mapstructure:"disable_search"`
}

// RemoteBackend fetches web media through yt-dlp.
type RemoteBackend struct {
	dl     Downloader
	config RemoteBackendConfig
}

// NewRemoteBackend creates a remote backend from a settings map.
func NewRemoteBackend(dl Downloader, settings map[string]any) (*RemoteBackend, error) {
	var config RemoteBackendConfig
	if err := decodeSettings(settings, &config); err != nil {
		return nil, err
	}
	return &RemoteBackend{dl: dl, config: config}, nil
}

// Name returns the backend name.
func (b *RemoteBackend) Name() string { return "remote" }

// Supports reports whether the backend handles kind.
func (b *RemoteBackend) Supports(kind Kind) bool {
	switch kind {
	case KindURL, KindPlaylistURL:
		return true
	case KindSearch:
		return !b.config.DisableSearch
	default:
		return false
	}
}

// Resolve downloads the locator. Free text resolves to the first search result.
func (b *RemoteBackend) Resolve(ctx context.Context, locator string, requester track.Requester) (track.Track, error) {
	if Classify(locator) == KindSearch {
		return b.resolveQuery(ctx, locator, requester)
	}
	return b.resolveURL(ctx, locator, requester)
}

func (b *RemoteBackend) resolveQuery(ctx context.Context, query string, requester track.Requester) (track.Track, error) {
	items, err := b.dl.Search(ctx, query, 1)
	if err != nil {
		return track.Track{}, wrapRemote(err, "search %q", query)
	}
	if len(items) == 0 {
		return track.Track{}, errors.Wrapf(ErrNotFound, "no results for %q", query)
	}
	zlog.Debug().Msgf("media: search resolved: query=%s url=%s", query, items[0].URL)

	t, err := b.resolveURL(ctx, items[0].URL, requester)
	if err != nil {
		return track.Track{}, err
	}
	t.Origin = query
	return t, nil
}

func (b *RemoteBackend) resolveURL(ctx context.Context, url string, requester track.Requester) (track.Track, error) {
	m, err := b.dl.Download(ctx, url)
	if err != nil {
		return track.Track{}, wrapRemote(err, "download %s", url)
	}
	t := track.New(m.Title, m.Path, requester, m.Duration)
	t.Origin = url
	return t, nil
}

// Expand lists a web playlist.
func (b *RemoteBackend) Expand(ctx context.Context, locator string) (*Collection, error) {
	pl, err := b.dl.FlatPlaylist(ctx, locator)
	if err != nil {
		return nil, wrapRemote(err, "expand %s", locator)
	}
	col := &Collection{Title: pl.Title, Entries: make([]Entry, 0, len(pl.Items))}
	for _, it := range pl.Items {
		col.Entries = append(col.Entries, entryFromItem(it))
	}
	return col, nil
}

// Search returns up to limit candidates for query.
func (b *RemoteBackend) Search(ctx context.Context, query string, limit int) ([]Entry, error) {
	items, err := b.dl.Search(ctx, query, limit)
	if err != nil {
		return nil, wrapRemote(err, "search %q", query)
	}
	entries := make([]Entry, 0, len(items))
	for _, it := range items {
		entries = append(entries, entryFromItem(it))
	}
	return entries, nil
}

func entryFromItem(it ytdlp.Item) Entry {
	return Entry{Locator: it.URL, Title: it.Title, Uploader: it.Uploader, Duration: it.Duration}
}

func wrapRemote(err error, format string, args ...any) error {
	wrapped := errors.Wrapf(err, format, args...)
	switch {
	case errors.Is(err, ytdlp.ErrUnavailable), errors.Is(err, ytdlp.ErrNoResults):
		return errors.Mark(wrapped, ErrNotFound)
	case errors.Is(err, ytdlp.ErrNetwork):
		return errors.Mark(wrapped, ErrNetwork)
	default:
		return wrapped
	}
}

// decodeSettings fills config from a settings map, applies defaults and validates it.
func decodeSettings(settings map[string]any, config any) error {
	if err := mapstructure.Decode(settings, config); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(config); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(config); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	return nil
}
