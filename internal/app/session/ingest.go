package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/osa030/foldatunez/internal/app/command"
	"github.com/osa030/foldatunez/internal/app/media"
	"github.com/osa030/foldatunez/internal/domain/playlist"
	"github.com/osa030/foldatunez/internal/domain/track"
)

// ingestResult is the outcome of resolving one playlist entry.
type ingestResult struct {
	entry media.Entry
	track track.Track
	err   error
}

// LoadPlaylistFile enqueues every entry of a local playlist file.
func (m *Manager) LoadPlaylistFile(ctx context.Context, cc command.Context, file string) error {
	file = strings.TrimSpace(file)
	if file == "" {
		reply(ctx, cc, m.usage("playlist <file>"))
		return ErrUsage
	}
	m.notifier.Bind(cc)
	m.followRequester(cc)
	ctx, t := m.reserve(ctx, cc.GuildID())
	defer t.done()

	pl, err := playlist.ParseFile(file)
	if err != nil {
		reply(ctx, cc, "❌ Playlist file not found or unreadable")
		return errors.Wrapf(err, "failed to read playlist %s", file)
	}
	if pl.Len() == 0 {
		reply(ctx, cc, "❌ Playlist file is empty")
		return errors.Wrapf(media.ErrNotFound, "playlist %s has no entries", file)
	}

	entries := lo.Map(pl.Entries, func(e string, _ int) media.Entry {
		return media.Entry{Locator: e}
	})
	return m.ingest(ctx, cc, pl.Name, entries)
}

func (m *Manager) ingestPlaylist(ctx context.Context, cc command.Context, locator string) error {
	col, err := m.resolver.Expand(ctx, locator)
	if err != nil {
		reply(ctx, cc, "❌ "+media.Describe(err))
		return errors.Wrapf(err, "failed to expand %s", locator)
	}
	if len(col.Entries) == 0 {
		reply(ctx, cc, "❌ That playlist is empty")
		return errors.Wrapf(media.ErrNotFound, "playlist %s is empty", locator)
	}
	return m.ingest(ctx, cc, col.Title, col.Entries)
}

// ingest resolves entries concurrently and enqueues each success in playlist
// order as soon as every earlier entry has finished resolving. Playback starts
// with the first accepted entry. Shuffle is refused while it runs.
func (m *Manager) ingest(ctx context.Context, cc command.Context, title string, entries []media.Entry) error {
	s, err := m.scheduler(cc.GuildID())
	if err != nil {
		reply(ctx, cc, "❌ Could not start a session")
		return err
	}
	reply(ctx, cc, ingestHeader(title, len(entries)))

	s.BeginBulk()
	defer s.EndBulk()

	requester := cc.Requester()
	requester.Type = track.RequesterTypePlaylist

	rctx, cancel := context.WithCancel(ctx)
	defer cancel()
	results := make([]ingestResult, len(entries))
	ready := make([]chan struct{}, len(entries))
	for i := range ready {
		ready[i] = make(chan struct{})
	}
	g, gctx := errgroup.WithContext(rctx)
	g.SetLimit(m.config.Media.IngestWorkers)
	launched := make(chan struct{})
	go func() {
		defer close(launched)
		for i, e := range entries {
			g.Go(func() error {
				defer close(ready[i])
				if err := gctx.Err(); err != nil {
					results[i] = ingestResult{entry: e, err: err}
					return nil
				}
				t, err := m.resolver.Resolve(gctx, e.Locator, requester)
				if err == nil && e.Title != "" && t.Title == "" {
					t.Title = e.Title
				}
				results[i] = ingestResult{entry: e, track: t, err: err}
				return nil
			})
		}
	}()
	defer func() {
		cancel()
		<-launched
		_ = g.Wait()
	}()

	turn := m.turnFor(ctx, cc.GuildID())
	waited := false
	added, rejected := 0, 0
	var missing []string
	for i := range entries {
		select {
		case <-ready[i]:
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "playlist %s interrupted after %d songs", title, added)
		}
		r := results[i]
		if r.err != nil {
			zlog.Warn().Msgf("session: playlist entry skipped: guild=%s locator=%s error=%v", cc.GuildID(), r.entry.Locator, r.err)
			missing = append(missing, lo.Ternary(r.entry.Title != "", r.entry.Title, r.entry.Locator))
			continue
		}
		if !waited {
			if err := turn.wait(ctx); err != nil {
				return errors.Wrap(err, "gave up waiting for earlier commands")
			}
			waited = true
		}
		if res := m.admit(ctx, s, r.track); !res.Accepted {
			rejected++
			continue
		}
		s.Enqueue(r.track)
		added++
		if added == 1 {
			if err := m.start(s); err != nil {
				reply(ctx, cc, "❌ Could not start playback")
				return err
			}
			// Later commands of the guild may run while the rest loads.
			turn.done()
		}
	}

	reply(ctx, cc, ingestSummary(title, added, rejected, missing))
	zlog.Info().Msgf("session: playlist ingested: guild=%s title=%s added=%d rejected=%d failed=%d",
		cc.GuildID(), title, added, rejected, len(missing))
	if added == 0 {
		return errors.Wrapf(media.ErrNotFound, "no playable entries in %s", title)
	}
	return nil
}

func ingestHeader(title string, n int) string {
	if title == "" {
		return fmt.Sprintf("📜 Adding %d tracks...", n)
	}
	return fmt.Sprintf("📜 %s: Adding %d tracks...", title, n)
}

func ingestSummary(title string, added, rejected int, missing []string) string {
	var b strings.Builder
	if title != "" {
		fmt.Fprintf(&b, "📜 %s: ", title)
	}
	fmt.Fprintf(&b, "Added %d songs to queue", added)
	if rejected > 0 {
		fmt.Fprintf(&b, ", %d rejected", rejected)
	}
	if len(missing) > 0 {
		const maxListed = 10
		listed := missing
		if len(listed) > maxListed {
			listed = listed[:maxListed]
		}
		fmt.Fprintf(&b, "\n⚠️ %d could not be loaded: %s", len(missing), strings.Join(listed, ", "))
		if len(missing) > maxListed {
			fmt.Fprintf(&b, " and %d more", len(missing)-maxListed)
		}
	}
	return b.String()
}
