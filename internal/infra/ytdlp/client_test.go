package ytdlp

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDownload(t *testing.T) {
	out := "[download] 100%\nabc123\tSome Song\t215.0\t/tmp/cache/abc123.mp3\n"
	m, err := parseDownload(out)
	require.NoError(t, err)
	assert.Equal(t, "abc123", m.ID)
	assert.Equal(t, "Some Song", m.Title)
	assert.Equal(t, 215*time.Second, m.Duration)
	assert.Equal(t, "/tmp/cache/abc123.mp3", m.Path)

	_, err = parseDownload("")
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestParseItems(t *testing.T) {
	out := "https://y/1\tOne\tChan\t61\nNA\tbroken\tx\t1\nhttps://y/2\tTwo\tChan\tNA\nshort line"
	items := parseItems(out)
	require.Len(t, items, 2)
	assert.Equal(t, "One", items[0].Title)
	assert.Equal(t, 61*time.Second, items[0].Duration)
	assert.Equal(t, time.Duration(0), items[1].Duration)
}

func TestParsePlaylist(t *testing.T) {
	out := "Mix\thttps://y/1\tOne\tA\t10\nMix\thttps://y/2\tTwo\tB\t20\n"
	pl := parsePlaylist(out)
	assert.Equal(t, "Mix", pl.Title)
	require.Len(t, pl.Items, 2)
	assert.Equal(t, "https://y/2", pl.Items[1].URL)
}

func TestClassify(t *testing.T) {
	base := errors.New("exit status 1")

	tests := []struct {
		name    string
		stderr  string
		target  error
		matches bool
	}{
		{"private", "ERROR: [youtube] x: Private video", ErrUnavailable, true},
		{"removed", "ERROR: This video has been removed", ErrUnavailable, true},
		{"network", "ERROR: Unable to download webpage: timed out", ErrNetwork, true},
		{"rate limited", "ERROR: HTTP Error 429: Too Many Requests", ErrNetwork, true},
		{"other", "ERROR: something odd", ErrUnavailable, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify(base, tt.stderr)
			assert.Equal(t, tt.matches, errors.Is(err, tt.target))
		})
	}
}

func TestParseSeconds(t *testing.T) {
	assert.Equal(t, 90*time.Second, parseSeconds("90"))
	assert.Equal(t, 1500*time.Millisecond, parseSeconds("1.5"))
	assert.Equal(t, time.Duration(0), parseSeconds("NA"))
}
