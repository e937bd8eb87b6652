package filter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/foldatunez/internal/domain/track"
)

var (
	user     = track.Requester{ID: "u1", Name: "alice", Type: track.RequesterTypeUser}
	other    = track.Requester{ID: "u2", Name: "bob", Type: track.RequesterTypeUser}
	operator = track.Requester{ID: "admin", Type: track.RequesterTypeOperator}
	playlist = track.Requester{ID: "u1", Type: track.RequesterTypePlaylist}
)

func mk(title, origin string, r track.Requester, d time.Duration) track.Track {
	t := track.New(title, origin, r, d)
	return t
}

func TestNewChainFromConfig(t *testing.T) {
	chain, err := NewChainFromConfig(map[string]map[string]any{
		"duration_limit_filter": {"max_minutes": 10},
		"queue_limit_filter":    {"max_pending": 2},
	})
	require.NoError(t, err)
	require.Len(t, chain.Filters(), 2)
	assert.Equal(t, "duration_limit_filter", chain.Filters()[0].Name())

	_, err = NewChainFromConfig(map[string]map[string]any{"nope": nil})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown filter")

	_, err = NewChainFromConfig(map[string]map[string]any{
		"duration_limit_filter": {"min_minutes": 5, "max_minutes": 1},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "min_minutes cannot be greater")
}

func TestChain_Execute(t *testing.T) {
	chain, err := NewChainFromConfig(map[string]map[string]any{
		"queue_limit_filter":     {"max_pending": 2},
		"duplicate_track_filter": {},
	})
	require.NoError(t, err)

	pending := []track.Track{mk("Song A", "https://x/a", other, 0)}

	res := chain.Execute(context.Background(), Request{Track: mk("Song B", "https://x/b", user, 0), Pending: pending})
	assert.True(t, res.Accepted)

	res = chain.Execute(context.Background(), Request{Track: mk("Song A", "https://x/a", user, 0), Pending: pending})
	assert.False(t, res.Accepted)
	assert.Equal(t, "duplicate_track", res.Code)

	full := append(pending, mk("Song C", "https://x/c", other, 0))
	res = chain.Execute(context.Background(), Request{Track: mk("Song D", "https://x/d", operator, 0), Pending: full})
	assert.False(t, res.Accepted)
	assert.Equal(t, "queue_full", res.Code)
}

func TestDurationLimitFilter(t *testing.T) {
	tests := []struct {
		name     string
		settings map[string]any
		track    track.Track
		accepted bool
	}{
		{
			name:     "within limit",
			settings: map[string]any{"max_minutes": 10},
			track:    mk("a", "a", user, 4*time.Minute),
			accepted: true,
		},
		{
			name:     "too long",
			settings: map[string]any{"max_minutes": 10},
			track:    mk("a", "a", user, 11*time.Minute),
			accepted: false,
		},
		{
			name:     "too short",
			settings: map[string]any{"min_minutes": 1},
			track:    mk("a", "a", user, 30*time.Second),
			accepted: false,
		},
		{
			name:     "unknown duration allowed by default",
			settings: map[string]any{},
			track:    mk("a", "a", user, 0),
			accepted: true,
		},
		{
			name:     "unknown duration rejected",
			settings: map[string]any{"reject_unknown": true},
			track:    mk("a", "a", user, 0),
			accepted: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewDurationLimitFilter()
			require.NoError(t, f.ValidateConfig(tt.settings))
			res := f.Check(context.Background(), Request{Track: tt.track})
			assert.Equal(t, tt.accepted, res.Accepted)
			if !tt.accepted {
				assert.Equal(t, "duration_limit_exceeded", res.Code)
			}
		})
	}
}

func TestDurationLimitFilter_NoConfigAccepts(t *testing.T) {
	f := NewDurationLimitFilter()
	res := f.Check(context.Background(), Request{Track: mk("a", "a", user, 5*time.Hour)})
	assert.True(t, res.Accepted)
}

func TestUserPendingFilter(t *testing.T) {
	f := &UserPendingFilter{}
	require.NoError(t, f.ValidateConfig(map[string]any{"max_tracks": 2}))

	pending := []track.Track{mk("1", "1", user, 0), mk("2", "2", other, 0)}
	assert.True(t, f.Check(context.Background(), Request{Track: mk("3", "3", user, 0), Pending: pending}).Accepted)

	pending = append(pending, mk("4", "4", user, 0))
	res := f.Check(context.Background(), Request{Track: mk("5", "5", user, 0), Pending: pending})
	assert.False(t, res.Accepted)
	assert.Equal(t, "user_pending", res.Code)

	assert.True(t, f.Check(context.Background(), Request{Track: mk("6", "6", other, 0), Pending: pending}).Accepted)
}

func TestQueueLimitFilter(t *testing.T) {
	f := &QueueLimitFilter{}
	require.NoError(t, f.ValidateConfig(map[string]any{"max_pending": 2}))

	pending := []track.Track{mk("1", "1", user, 0)}
	assert.True(t, f.Check(context.Background(), Request{Track: mk("2", "2", other, 0), Pending: pending}).Accepted)

	pending = append(pending, mk("2", "2", other, 0))
	res := f.Check(context.Background(), Request{Track: mk("3", "3", operator, 0), Pending: pending})
	assert.False(t, res.Accepted)
	assert.Equal(t, "queue_full", res.Code)

	assert.Error(t, (&QueueLimitFilter{}).ValidateConfig(map[string]any{"max_pending": -1}))
}

func TestAppliesTo(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		want   map[track.RequesterType]bool
	}{
		{
			name:   "duration limit skips operators",
			filter: &DurationLimitFilter{},
			want: map[track.RequesterType]bool{
				track.RequesterTypeUser: true, track.RequesterTypePlaylist: true, track.RequesterTypeOperator: false,
			},
		},
		{
			name:   "user pending only users",
			filter: &UserPendingFilter{},
			want: map[track.RequesterType]bool{
				track.RequesterTypeUser: true, track.RequesterTypePlaylist: false, track.RequesterTypeOperator: false,
			},
		},
		{
			name:   "queue limit applies to all",
			filter: &QueueLimitFilter{},
			want: map[track.RequesterType]bool{
				track.RequesterTypeUser: true, track.RequesterTypePlaylist: true, track.RequesterTypeOperator: true,
			},
		},
		{
			name:   "duplicate only users",
			filter: &DuplicateTrackFilter{},
			want: map[track.RequesterType]bool{
				track.RequesterTypeUser: true, track.RequesterTypePlaylist: false, track.RequesterTypeOperator: false,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for rt, want := range tt.want {
				assert.Equal(t, want, tt.filter.AppliesTo(rt), "requester type %s", rt)
			}
		})
	}
}

func TestRegistered(t *testing.T) {
	reg := GetRegistered()
	for _, name := range []string{"duration_limit_filter", "user_pending_filter", "queue_limit_filter", "duplicate_track_filter"} {
		factory, ok := reg[name]
		require.True(t, ok, name)
		assert.Equal(t, name, factory().Name())
		assert.NotEmpty(t, factory().ReturnCodes())
	}
}
