// Package media turns user locators (paths, URLs, links, search text) into
// playable tracks.
package media

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/foldatunez/internal/domain/track"
)

// Resolution errors. Backends mark their errors with these.
var (
	ErrNotFound    = errors.New("media not found")
	ErrUnsupported = errors.New("unsupported locator")
	ErrNetwork     = errors.New("media source unreachable")
)

// Kind is the class of a locator.
type Kind int

const (
	KindLocal           Kind = iota // Local file path
	KindURL                         // Single web media URL
	KindPlaylistURL                 // Web playlist URL
	KindSpotifyTrack                // Spotify track link or URI
	KindSpotifyPlaylist             // Spotify playlist link or URI
	KindSearch                      // Free text
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindLocal:
		return "local"
	case KindURL:
		return "url"
	case KindPlaylistURL:
		return "playlist_url"
	case KindSpotifyTrack:
		return "spotify_track"
	case KindSpotifyPlaylist:
		return "spotify_playlist"
	case KindSearch:
		return "search"
	default:
		return "unknown"
	}
}

// IsPlaylist reports whether the kind expands to several tracks.
func (k Kind) IsPlaylist() bool {
	return k == KindPlaylistURL || k == KindSpotifyPlaylist
}

var audioExts = map[string]bool{
	".mp3": true, ".m4a": true, ".webm": true, ".mp4": true,
	".wav": true, ".flac": true, ".ogg": true, ".aac": true, ".opus": true,
}

// Classify decides what kind of locator s is.
func Classify(s string) Kind {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)

	switch {
	case strings.HasPrefix(lower, "spotify:track:"), strings.Contains(lower, "open.spotify.com/track/"),
		strings.Contains(lower, "open.spotify.com/intl-") && strings.Contains(lower, "/track/"):
		return KindSpotifyTrack
	case strings.HasPrefix(lower, "spotify:playlist:"), strings.Contains(lower, "open.spotify.com/playlist/"),
		strings.Contains(lower, "open.spotify.com/intl-") && strings.Contains(lower, "/playlist/"):
		return KindSpotifyPlaylist
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		if strings.Contains(lower, "list=") || strings.Contains(lower, "/playlist") {
			return KindPlaylistURL
		}
		return KindURL
	case looksLikePath(s):
		return KindLocal
	default:
		return KindSearch
	}
}

func looksLikePath(s string) bool {
	if filepath.IsAbs(s) || strings.HasPrefix(s, "./") || strings.HasPrefix(s, "../") || strings.HasPrefix(s, "~/") {
		return true
	}
	if strings.ContainsAny(s, " \t") && !strings.ContainsAny(s, `/\`) {
		return false
	}
	return audioExts[strings.ToLower(filepath.Ext(s))]
}

// Entry is one item of a playlist or a search result, not yet resolved.
type Entry struct {
	Locator  string
	Title    string
	Uploader string
	Duration time.Duration
}

// Collection is an expanded playlist.
type Collection struct {
	Title   string
	Entries []Entry
}

// Resolver turns one locator into a playable track.
type Resolver interface {
	Resolve(ctx context.Context, locator string, requester track.Requester) (track.Track, error)
}

// Expander lists the entries of a playlist locator.
type Expander interface {
	Expand(ctx context.Context, locator string) (*Collection, error)
}

// Searcher finds candidates for free text.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]Entry, error)
}

// Backend is a resolver for some kinds of locator.
type Backend interface {
	Resolver
	Name() string
	Supports(kind Kind) bool
}

// Describe returns a short user-facing reason for a resolution error.
func Describe(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "Could not find that media"
	case errors.Is(err, ErrUnsupported):
		return "That link or file type is not supported"
	case errors.Is(err, ErrNetwork):
		return "The media source could not be reached, try again later"
	default:
		return "Failed to load that media"
	}
}
