package media

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/foldatunez/internal/domain/track"
	"github.com/osa030/foldatunez/internal/infra/config"
	"github.com/osa030/foldatunez/internal/infra/spotify"
	"github.com/osa030/foldatunez/internal/infra/ytdlp"
)

type fakeDownloader struct {
	downloads []string
	searches  []string
	err       error
	results   []ytdlp.Item
	playlist  *ytdlp.Playlist
}

func (f *fakeDownloader) Download(_ context.Context, url string) (*ytdlp.Media, error) {
	f.downloads = append(f.downloads, url)
	if f.err != nil {
		return nil, f.err
	}
	return &ytdlp.Media{Title: "Title of " + url, Path: "/cache/" + filepath.Base(url) + ".mp3", Duration: 3 * time.Minute}, nil
}

func (f *fakeDownloader) FlatPlaylist(_ context.Context, _ string) (*ytdlp.Playlist, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.playlist, nil
}

func (f *fakeDownloader) Search(_ context.Context, query string, limit int) ([]ytdlp.Item, error) {
	f.searches = append(f.searches, query)
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.results) {
		return f.results[:limit], nil
	}
	return f.results, nil
}

type fakeCatalog struct {
	track    *spotify.TrackInfo
	playlist *spotify.Playlist
	err      error
}

func (f *fakeCatalog) GetTrack(context.Context, string) (*spotify.TrackInfo, error) {
	return f.track, f.err
}

func (f *fakeCatalog) GetPlaylist(context.Context, string, int) (*spotify.Playlist, error) {
	return f.playlist, f.err
}

var user = track.Requester{ID: "u1", Name: "alice", Type: track.RequesterTypeUser}

func TestClassify(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
	}{
		{"https://www.youtube.com/watch?v=abc", KindURL},
		{"https://www.youtube.com/watch?v=abc&list=PL1", KindPlaylistURL},
		{"https://www.youtube.com/playlist?list=PL1", KindPlaylistURL},
		{"https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC", KindSpotifyTrack},
		{"https://open.spotify.com/intl-ja/track/4uLU6hMCjMI75M1A2tKUQC", KindSpotifyTrack},
		{"spotify:playlist:37i9dQZF1DXcBWIGoYBM5M", KindSpotifyPlaylist},
		{"https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M?si=x", KindSpotifyPlaylist},
		{"/music/song.mp3", KindLocal},
		{"./song.flac", KindLocal},
		{"song.ogg", KindLocal},
		{"never gonna give you up", KindSearch},
		{"daft punk one more time.mp3", KindSearch},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.in))
		})
	}
}

func TestChain_ResolveFallsThrough(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.mp3"), []byte("x"), 0o644))

	local, err := NewLocalBackend(map[string]any{"root": dir})
	require.NoError(t, err)
	dl := &fakeDownloader{results: []ytdlp.Item{{URL: "https://y/1", Title: "One"}}}
	remote, err := NewRemoteBackend(dl, nil)
	require.NoError(t, err)

	chain := NewChain(local, remote)

	t.Run("local", func(t *testing.T) {
		tr, err := chain.Resolve(context.Background(), "a.mp3", user)
		require.NoError(t, err)
		assert.Equal(t, "a", tr.Title)
		assert.Equal(t, filepath.Join(dir, "a.mp3"), tr.Source)
		assert.Equal(t, "a.mp3", tr.Origin)
		assert.Equal(t, user, tr.Requester)
		assert.NotEmpty(t, tr.ID)
	})

	t.Run("missing local", func(t *testing.T) {
		_, err := chain.Resolve(context.Background(), "missing.mp3", user)
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("search resolves first result", func(t *testing.T) {
		tr, err := chain.Resolve(context.Background(), "some song", user)
		require.NoError(t, err)
		assert.Equal(t, "some song", tr.Origin)
		assert.Equal(t, "/cache/1.mp3", tr.Source)
		assert.Equal(t, []string{"https://y/1"}, dl.downloads)
	})

	t.Run("playlist is not a single track", func(t *testing.T) {
		_, err := chain.Resolve(context.Background(), "https://y/playlist?list=1", user)
		assert.True(t, errors.Is(err, ErrUnsupported))
	})

	t.Run("no backend", func(t *testing.T) {
		_, err := NewChain(local).Resolve(context.Background(), "https://y/x", user)
		assert.True(t, errors.Is(err, ErrUnsupported))
	})
}

func TestRemoteBackend_ErrorClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"unavailable", errors.Mark(errors.New("private"), ytdlp.ErrUnavailable), ErrNotFound},
		{"network", errors.Mark(errors.New("timeout"), ytdlp.ErrNetwork), ErrNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remote, err := NewRemoteBackend(&fakeDownloader{err: tt.err}, nil)
			require.NoError(t, err)
			_, err = remote.Resolve(context.Background(), "https://y/x", user)
			assert.True(t, errors.Is(err, tt.want))
		})
	}
}

func TestRemoteBackend_DisableSearch(t *testing.T) {
	remote, err := NewRemoteBackend(&fakeDownloader{}, map[string]any{"disable_search": true})
	require.NoError(t, err)
	assert.False(t, remote.Supports(KindSearch))
	assert.True(t, remote.Supports(KindURL))
}

func TestChain_ExpandAndSearch(t *testing.T) {
	dl := &fakeDownloader{
		playlist: &ytdlp.Playlist{Title: "Mix", Items: []ytdlp.Item{{URL: "https://y/1", Title: "One"}, {URL: "https://y/2", Title: "Two"}}},
		results:  []ytdlp.Item{{URL: "https://y/a"}, {URL: "https://y/b"}, {URL: "https://y/c"}},
	}
	remote, err := NewRemoteBackend(dl, nil)
	require.NoError(t, err)
	chain := NewChain(remote)

	col, err := chain.Expand(context.Background(), "https://y/playlist?list=1")
	require.NoError(t, err)
	assert.Equal(t, "Mix", col.Title)
	require.Len(t, col.Entries, 2)
	assert.Equal(t, "https://y/2", col.Entries[1].Locator)

	entries, err := chain.Search(context.Background(), "q", 2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestSpotifyBackend(t *testing.T) {
	dl := &fakeDownloader{results: []ytdlp.Item{{URL: "https://y/1"}}}
	remote, err := NewRemoteBackend(dl, nil)
	require.NoError(t, err)

	catalog := &fakeCatalog{
		track: &spotify.TrackInfo{ID: "t1", Title: "Song", Artists: []string{"Band"}, Duration: 200 * time.Second},
		playlist: &spotify.Playlist{Name: "List", Tracks: []spotify.TrackInfo{
			{Title: "A", Artists: []string{"X", "Y"}},
		}},
	}
	sp, err := NewSpotifyBackend(catalog, remote, nil)
	require.NoError(t, err)

	tr, err := sp.Resolve(context.Background(), "spotify:track:t1", user)
	require.NoError(t, err)
	assert.Equal(t, []string{"Band - Song"}, dl.searches)
	assert.Equal(t, 200*time.Second, tr.Duration)
	assert.Equal(t, "spotify:track:t1", tr.Origin)

	col, err := sp.Expand(context.Background(), "spotify:playlist:p1")
	require.NoError(t, err)
	assert.Equal(t, "List", col.Title)
	assert.Equal(t, "X, Y", col.Entries[0].Uploader)

	catalog.err = errors.Mark(errors.New("404"), spotify.ErrNotFound)
	_, err = sp.Resolve(context.Background(), "spotify:track:gone", user)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestNewChainFromConfig(t *testing.T) {
	cfg := &config.Config{Media: config.MediaConfig{Backends: []config.BackendConfig{
		{Type: "local"}, {Type: "spotify"}, {Type: "remote"},
	}}}

	chain, err := NewChainFromConfig(cfg, Deps{Downloader: &fakeDownloader{}, Catalog: &fakeCatalog{}})
	require.NoError(t, err)
	names := make([]string, 0)
	for _, b := range chain.Backends() {
		names = append(names, b.Name())
	}
	assert.Equal(t, []string{"local", "spotify", "remote"}, names)

	_, err = NewChainFromConfig(cfg, Deps{Downloader: &fakeDownloader{}})
	assert.Error(t, err)

	cfg.Media.Backends = []config.BackendConfig{{Type: "ftp"}}
	_, err = NewChainFromConfig(cfg, Deps{})
	assert.ErrorContains(t, err, "unsupported backend type")
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "", Describe(nil))
	assert.Contains(t, Describe(errors.Wrap(ErrNotFound, "x")), "find")
	assert.Contains(t, Describe(errors.New("boom")), "Failed")
}
