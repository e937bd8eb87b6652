// Package ytdlp fetches remote media with yt-dlp and searches YouTube.
package ytdlp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lrstanley/go-ytdlp"
	"github.com/ppalone/ytsearch"
	zlog "github.com/rs/zerolog/log"
)

var (
	// ErrUnavailable is returned when the media is gone, private or region locked.
	ErrUnavailable = errors.New("media unavailable")
	// ErrNetwork is returned when the source could not be reached.
	ErrNetwork = errors.New("network error")
	// ErrNoResults is returned when a search yields nothing.
	ErrNoResults = errors.New("no results")
)

// Config holds yt-dlp settings.
type Config struct {
	CacheDir      string
	Proxy         string
	PlaylistLimit int
}

// Media is a downloaded audio file.
type Media struct {
	ID       string
	Title    string
	Duration time.Duration
	Path     string
	URL      string
}

// Item is a playlist or search entry that has not been downloaded.
type Item struct {
	URL      string
	Title    string
	Uploader string
	Duration time.Duration
}

// Playlist is a flat playlist listing.
type Playlist struct {
	Title string
	Items []Item
}

// Client runs yt-dlp.
type Client struct {
	cfg    Config
	search *ytsearch.Client
}

// New creates a client. The cache directory is created if missing.
func New(cfg Config) (*Client, error) {
	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(os.TempDir(), "foldatunez")
	}
	if cfg.PlaylistLimit <= 0 {
		cfg.PlaylistLimit = 100
	}
	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create cache dir %s", cfg.CacheDir)
	}
	return &Client{cfg: cfg, search: ytsearch.NewClient(nil)}, nil
}

func (c *Client) command() *ytdlp.Command {
	cmd := ytdlp.New().NoWarnings().IgnoreConfig()
	if c.cfg.Proxy != "" {
		cmd = cmd.Proxy(c.cfg.Proxy)
	}
	return cmd
}

// Download fetches url as an mp3 into the cache directory.
func (c *Client) Download(ctx context.Context, url string) (*Media, error) {
	zlog.Debug().Msgf("ytdlp: downloading: url=%s", url)
	res, err := c.command().
		NoPlaylist().
		NoSimulate().
		NoPart().
		Format("bestaudio/best").
		Output(filepath.Join(c.cfg.CacheDir, "%(id)s.%(ext)s")).
		Print("after_move:%(id)s\t%(title)s\t%(duration)s\t%(filepath)s").
		Run(ctx, "--extract-audio", "--audio-format", "mp3", "--socket-timeout", "30", url)
	if err != nil {
		return nil, classify(err, stderrOf(res))
	}

	m, err := parseDownload(res.Stdout)
	if err != nil {
		return nil, err
	}
	m.URL = url
	zlog.Info().Msgf("ytdlp: downloaded: title=%s path=%s", m.Title, m.Path)
	return m, nil
}

// FlatPlaylist lists the entries of a playlist without downloading them.
func (c *Client) FlatPlaylist(ctx context.Context, url string) (*Playlist, error) {
	res, err := c.command().
		FlatPlaylist().
		Print("%(playlist_title)s\t%(url)s\t%(title)s\t%(uploader)s\t%(duration)s").
		PlaylistItems(fmt.Sprintf("1-%d", c.cfg.PlaylistLimit)).
		Run(ctx, url)
	if err != nil {
		return nil, classify(err, stderrOf(res))
	}

	pl := parsePlaylist(res.Stdout)
	if len(pl.Items) == 0 {
		return nil, errors.Wrapf(ErrUnavailable, "playlist %s is empty", url)
	}
	return pl, nil
}

// Search returns up to limit videos matching query. It asks YouTube directly
// and falls back to yt-dlp search when that fails.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Item, error) {
	if limit <= 0 {
		limit = 5
	}

	res, err := c.search.Search(ctx, query)
	if err == nil && len(res.Results) > 0 {
		items := make([]Item, 0, limit)
		for _, r := range res.Results {
			if r.VideoID == "" {
				continue
			}
			items = append(items, Item{
				URL:      "https://www.youtube.com/watch?v=" + r.VideoID,
				Title:    r.Title,
				Uploader: r.Channel,
			})
			if len(items) == limit {
				break
			}
		}
		if len(items) > 0 {
			return items, nil
		}
	}
	if err != nil {
		zlog.Warn().Msgf("ytdlp: ytsearch failed, falling back to yt-dlp: query=%s error=%v", query, err)
	}

	out, err := c.command().
		FlatPlaylist().
		Print("%(url)s\t%(title)s\t%(uploader)s\t%(duration)s").
		Run(ctx, fmt.Sprintf("ytsearch%d:%s", limit, query))
	if err != nil {
		return nil, classify(err, stderrOf(out))
	}
	items := parseItems(out.Stdout)
	if len(items) == 0 {
		return nil, errors.Wrapf(ErrNoResults, "query %q", query)
	}
	return items, nil
}

func stderrOf(res *ytdlp.Result) string {
	if res == nil {
		return ""
	}
	return res.Stderr
}

func parseDownload(stdout string) (*Media, error) {
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		ps := strings.Split(lines[i], "\t")
		if len(ps) < 4 || ps[3] == "" || ps[3] == "NA" {
			continue
		}
		return &Media{
			ID:       ps[0],
			Title:    ps[1],
			Duration: parseSeconds(ps[2]),
			Path:     ps[3],
		}, nil
	}
	return nil, errors.Wrap(ErrUnavailable, "yt-dlp produced no file")
}

func parsePlaylist(stdout string) *Playlist {
	pl := &Playlist{}
	for _, l := range strings.Split(strings.TrimSpace(stdout), "\n") {
		ps := strings.SplitN(l, "\t", 2)
		if len(ps) < 2 {
			continue
		}
		if pl.Title == "" && ps[0] != "NA" {
			pl.Title = ps[0]
		}
		pl.Items = append(pl.Items, parseItems(ps[1])...)
	}
	return pl
}

func parseItems(stdout string) []Item {
	var items []Item
	for _, l := range strings.Split(strings.TrimSpace(stdout), "\n") {
		ps := strings.Split(l, "\t")
		if len(ps) < 4 || ps[0] == "" || ps[0] == "NA" {
			continue
		}
		items = append(items, Item{
			URL:      ps[0],
			Title:    ps[1],
			Uploader: ps[2],
			Duration: parseSeconds(ps[3]),
		})
	}
	return items
}

// parseSeconds reads yt-dlp durations, which may be fractional or "NA".
func parseSeconds(s string) time.Duration {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || f < 0 {
		return 0
	}
	return time.Duration(f * float64(time.Second))
}

var unavailableMarkers = []string{
	"video unavailable", "private video", "has been removed", "not available in your country",
	"unsupported url", "sign in to confirm your age", "no video formats found", "http error 404",
	"does not exist",
}

var networkMarkers = []string{
	"unable to download webpage", "timed out", "connection reset", "temporary failure in name resolution",
	"network is unreachable", "http error 5", "http error 429",
}

func classify(err error, stderr string) error {
	lower := strings.ToLower(stderr + " " + err.Error())
	for _, m := range unavailableMarkers {
		if strings.Contains(lower, m) {
			return errors.Mark(errors.Wrapf(err, "yt-dlp: %s", firstLine(stderr)), ErrUnavailable)
		}
	}
	for _, m := range networkMarkers {
		if strings.Contains(lower, m) {
			return errors.Mark(errors.Wrapf(err, "yt-dlp: %s", firstLine(stderr)), ErrNetwork)
		}
	}
	return errors.Wrapf(err, "yt-dlp failed: %s", firstLine(stderr))
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
