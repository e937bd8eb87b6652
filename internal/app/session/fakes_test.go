package session

import (
	"context"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/require"

	"github.com/osa030/foldatunez/internal/app/command"
	"github.com/osa030/foldatunez/internal/app/filter"
	"github.com/osa030/foldatunez/internal/app/media"
	"github.com/osa030/foldatunez/internal/app/notification"
	"github.com/osa030/foldatunez/internal/app/playback"
	"github.com/osa030/foldatunez/internal/domain/track"
	"github.com/osa030/foldatunez/internal/infra/config"
	"github.com/osa030/foldatunez/internal/infra/sink/timed"
)

// fakeResolver resolves any locator to a track titled after it, except the
// ones listed in fail. Locators with a gate block until it is closed.
type fakeResolver struct {
	mu       sync.Mutex
	fail     map[string]error
	gates    map[string]chan struct{}
	duration time.Duration
	expand   *media.Collection
	search   []media.Entry
	resolved []string
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{fail: map[string]error{}, gates: map[string]chan struct{}{}, duration: time.Hour}
}

func (f *fakeResolver) Resolve(ctx context.Context, locator string, r track.Requester) (track.Track, error) {
	return f.ResolveAs(ctx, media.Classify(locator), locator, r)
}

func (f *fakeResolver) ResolveAs(ctx context.Context, _ media.Kind, locator string, r track.Requester) (track.Track, error) {
	f.mu.Lock()
	gate := f.gates[locator]
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return track.Track{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolved = append(f.resolved, locator)
	if err, ok := f.fail[locator]; ok {
		return track.Track{}, err
	}
	t := track.New(locator, "https://media.test/"+locator, r, f.duration)
	return t, nil
}

// hold makes locator block until the returned channel is closed.
func (f *fakeResolver) hold(locator string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	gate := make(chan struct{})
	f.gates[locator] = gate
	return gate
}

func (f *fakeResolver) wasResolved(locator string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Contains(f.resolved, locator)
}

func (f *fakeResolver) Expand(context.Context, string) (*media.Collection, error) {
	if f.expand == nil {
		return nil, errors.Wrap(media.ErrNotFound, "no playlist")
	}
	return f.expand, nil
}

func (f *fakeResolver) Search(_ context.Context, _ string, limit int) ([]media.Entry, error) {
	if limit < len(f.search) {
		return f.search[:limit], nil
	}
	return f.search, nil
}

type harness struct {
	m        *Manager
	resolver *fakeResolver
	cfg      *config.Config

	mu    sync.Mutex
	sinks map[snowflake.ID]*timed.Sink
}

func newHarness(t *testing.T, filters map[string]map[string]any) *harness {
	t.Helper()
	t.Setenv("ADMIN_TOKEN", "")
	cfg, err := config.Parse([]byte("admin:\n  token: test\n"))
	require.NoError(t, err)

	chain, err := filter.NewChainFromConfig(filters)
	require.NoError(t, err)

	h := &harness{resolver: newFakeResolver(), cfg: cfg, sinks: map[snowflake.ID]*timed.Sink{}}
	h.m, err = NewManager(Options{
		Config:   cfg,
		Resolver: h.resolver,
		Filters:  chain,
		Notifier: notification.NewNotifier(notification.Config{RatePerSec: 100, Burst: 100}),
		NewSink: func(id snowflake.ID) (playback.OutputSink, error) {
			s := timed.New(time.Hour, timed.WithTick(5*time.Millisecond))
			h.mu.Lock()
			h.sinks[id] = s
			h.mu.Unlock()
			return s, nil
		},
		Playback: playback.Config{
			PollInterval:    20 * time.Millisecond,
			Retry:           playback.Backoff{Base: time.Millisecond, Max: 5 * time.Millisecond, Attempts: 3},
			FailureCooldown: 10 * time.Millisecond,
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.m.Close(ctx)
	})
	return h
}

func (h *harness) sink(id snowflake.ID) *timed.Sink {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sinks[id]
}

func user(name string) track.Requester {
	return track.Requester{ID: name, Name: name, Type: track.RequesterTypeUser}
}

func recorder(guild snowflake.ID, name string) *command.Recorder {
	return command.NewRecorder(guild, user(name))
}

func (h *harness) waitCurrent(t *testing.T, guild snowflake.ID, title string) {
	t.Helper()
	require.Eventually(t, func() bool {
		snap, err := h.m.Status(guild)
		return err == nil && snap.Current != nil && snap.Current.Title == title
	}, 2*time.Second, 5*time.Millisecond)
}

func containsReply(cc *command.Recorder, sub string) bool {
	for _, r := range cc.Replies() {
		if strings.Contains(r, sub) {
			return true
		}
	}
	return false
}
