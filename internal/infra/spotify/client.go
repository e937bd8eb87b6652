// Package spotify provides a client for the Spotify catalog API. Tracks found
// there are turned into search queries for a playable source.
package spotify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"
)

// ErrNotFound is returned when the track or playlist does not exist or is not accessible.
var ErrNotFound = errors.New("spotify item not found")

// TrackInfo is the catalog metadata of a Spotify track.
type TrackInfo struct {
	ID       string
	Title    string
	Artists  []string
	Duration time.Duration
	URL      string
}

// Query returns a search query identifying the track on other platforms.
func (t TrackInfo) Query() string {
	if len(t.Artists) == 0 {
		return t.Title
	}
	return t.Artists[0] + " - " + t.Title
}

// DisplayName returns "Artist, Artist - Title".
func (t TrackInfo) DisplayName() string {
	if len(t.Artists) == 0 {
		return t.Title
	}
	return strings.Join(t.Artists, ", ") + " - " + t.Title
}

// Playlist is a Spotify playlist with its tracks.
type Playlist struct {
	ID     string
	Name   string
	Tracks []TrackInfo
}

// Client is a Spotify API client.
type Client struct {
	client     *spotify.Client
	market     string
	maxRetries int
	retryDelay time.Duration
}

// Config represents Spotify client configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	Market       string
}

// New creates a new Spotify client using the client credentials flow.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("spotify credentials are required")
	}

	creds := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	if _, err := creds.Token(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to obtain spotify token")
	}

	market := cfg.Market
	if market == "" {
		market = "US"
	}

	return &Client{
		client:     spotify.New(creds.Client(ctx)),
		market:     market,
		maxRetries: 3,
		retryDelay: time.Second,
	}, nil
}

// GetTrack retrieves track information by ID, URL, or URI.
func (c *Client) GetTrack(ctx context.Context, trackRef string) (*TrackInfo, error) {
	id := extractTrackID(trackRef)
	if id == "" {
		return nil, errors.Wrap(ErrNotFound, "invalid track reference")
	}

	var result *spotify.FullTrack
	err := c.retry(ctx, func() error {
		t, err := c.client.GetTrack(ctx, spotify.ID(id), spotify.Market(c.market))
		if err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(classify(err), "failed to get track")
	}

	info := convertTrack(result)
	return &info, nil
}

// GetPlaylist retrieves up to limit tracks of a playlist (0 means all).
func (c *Client) GetPlaylist(ctx context.Context, playlistRef string, limit int) (*Playlist, error) {
	playlistID := extractPlaylistID(playlistRef)
	if playlistID == "" {
		return nil, errors.Wrap(ErrNotFound, "invalid playlist reference")
	}

	var full *spotify.FullPlaylist
	err := c.retry(ctx, func() error {
		p, err := c.client.GetPlaylist(ctx, spotify.ID(playlistID), spotify.Market(c.market))
		if err != nil {
			return err
		}
		full = p
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(classify(err), "failed to get playlist")
	}

	result := &Playlist{ID: playlistID, Name: full.Name}
	offset := 0
	pageSize := 100

	for {
		var page *spotify.PlaylistItemPage
		err := c.retry(ctx, func() error {
			p, err := c.client.GetPlaylistItems(ctx, spotify.ID(playlistID),
				spotify.Limit(pageSize),
				spotify.Offset(offset),
				spotify.Market(c.market),
			)
			if err != nil {
				return err
			}
			page = p
			return nil
		})
		if err != nil {
			return nil, errors.Wrap(classify(err), "failed to get playlist items")
		}

		for _, item := range page.Items {
			// Only tracks, episodes are skipped
			if item.Track.Track != nil && item.Track.Track.ID != "" {
				result.Tracks = append(result.Tracks, convertTrack(item.Track.Track))
				if limit > 0 && len(result.Tracks) >= limit {
					return result, nil
				}
			}
		}

		if len(page.Items) < pageSize {
			break
		}
		offset += pageSize
	}

	return result, nil
}

// convertTrack converts a Spotify FullTrack to TrackInfo.
func convertTrack(t *spotify.FullTrack) TrackInfo {
	artists := make([]string, len(t.Artists))
	for i, a := range t.Artists {
		artists[i] = a.Name
	}
	return TrackInfo{
		ID:       string(t.ID),
		Title:    t.Name,
		Artists:  artists,
		Duration: time.Duration(t.Duration) * time.Millisecond,
		URL:      TrackURL(string(t.ID)),
	}
}

// TrackURL returns the Spotify URL for a track.
func TrackURL(trackID string) string {
	return fmt.Sprintf("https://open.spotify.com/track/%s", trackID)
}

// retry retries an operation with linear backoff.
func (c *Client) retry(ctx context.Context, fn func() error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if i < c.maxRetries-1 {
			select {
			case <-ctx.Done():
				return errors.Wrap(ctx.Err(), "retry aborted")
			case <-time.After(c.retryDelay * time.Duration(i+1)):
			}
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

// classify marks not-found API errors with ErrNotFound.
func classify(err error) error {
	var apiErr spotify.Error
	if errors.As(err, &apiErr) && (apiErr.Status == 404 || apiErr.Status == 400) {
		return errors.Mark(err, ErrNotFound)
	}
	return err
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr spotify.Error
	if errors.As(err, &apiErr) {
		return apiErr.Status == 429 || apiErr.Status >= 500
	}
	// Rate limit errors and server errors are retryable
	errStr := err.Error()
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504")
}

// IsSpotifyRef reports whether s is a Spotify track or playlist URL/URI.
func IsSpotifyRef(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "spotify:") || strings.Contains(s, "open.spotify.com/")
}

// extractPlaylistID extracts the playlist ID from a Spotify playlist URL or URI.
func extractPlaylistID(input string) string {
	return extractID(input, "playlist")
}

// extractTrackID extracts the track ID from a Spotify track URL or URI.
func extractTrackID(input string) string {
	return extractID(input, "track")
}

// extractID handles spotify:<kind>:ID, https://open.spotify.com/[intl-xx/]<kind>/ID[?...]
// and bare IDs.
func extractID(input, kind string) string {
	input = strings.TrimSpace(input)
	if uri := "spotify:" + kind + ":"; strings.HasPrefix(input, uri) {
		return strings.TrimPrefix(input, uri)
	}

	sep := "/" + kind + "/"
	if strings.Contains(input, "open.spotify.com") && strings.Contains(input, sep) {
		parts := strings.Split(input, sep)
		id := strings.Split(parts[len(parts)-1], "?")[0]
		return strings.TrimRight(id, "/")
	}

	// Assume it's already an ID
	return input
}
