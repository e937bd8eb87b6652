package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/foldatunez/internal/app/command"
	"github.com/osa030/foldatunez/internal/app/media"
	"github.com/osa030/foldatunez/internal/app/playback"
	"github.com/osa030/foldatunez/internal/domain/track"
)

// Play resolves query and enqueues it. Playlists are ingested in bulk.
func (m *Manager) Play(ctx context.Context, cc command.Context, query string) error {
	query = strings.TrimSpace(query)
	if query == "" {
		reply(ctx, cc, m.usage("play <url | file | search text>"))
		return ErrUsage
	}
	m.notifier.Bind(cc)
	m.followRequester(cc)
	ctx, t := m.reserve(ctx, cc.GuildID())
	defer t.done()

	kind := media.Classify(query)
	if kind.IsPlaylist() {
		return m.ingestPlaylist(ctx, cc, query)
	}
	return m.enqueueOne(ctx, cc, kind, query)
}

// PlayLocal enqueues a file from disk.
func (m *Manager) PlayLocal(ctx context.Context, cc command.Context, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		reply(ctx, cc, m.usage("local <file>"))
		return ErrUsage
	}
	m.notifier.Bind(cc)
	m.followRequester(cc)
	ctx, t := m.reserve(ctx, cc.GuildID())
	defer t.done()
	return m.enqueueOne(ctx, cc, media.KindLocal, path)
}

func (m *Manager) enqueueOne(ctx context.Context, cc command.Context, kind media.Kind, locator string) error {
	s, err := m.scheduler(cc.GuildID())
	if err != nil {
		reply(ctx, cc, "❌ Could not start a session")
		return err
	}

	t, err := m.resolver.ResolveAs(ctx, kind, locator, cc.Requester())
	if err != nil {
		zlog.Warn().Msgf("session: resolve failed: guild=%s locator=%s error=%v", cc.GuildID(), locator, err)
		reply(ctx, cc, "❌ "+media.Describe(err))
		return errors.Wrapf(err, "failed to resolve %s", locator)
	}

	// Resolution may overlap other commands; the queue is touched in arrival order.
	if err := m.turnFor(ctx, cc.GuildID()).wait(ctx); err != nil {
		return errors.Wrap(err, "gave up waiting for earlier commands")
	}
	if res := m.admit(ctx, s, t); !res.Accepted {
		reply(ctx, cc, "❌ "+m.config.GetMessage(res.Code))
		return errors.Wrapf(ErrRejected, "%s", res.Code)
	}

	before := s.Snapshot()
	s.Enqueue(t)
	if err := m.start(s); err != nil {
		reply(ctx, cc, "❌ Could not start playback")
		return err
	}

	if before.Current == nil && len(before.Pending) == 0 {
		reply(ctx, cc, fmt.Sprintf("🎵 Queued: %s (%s)", t.Title, track.FormatDuration(t.Duration)))
	} else {
		reply(ctx, cc, fmt.Sprintf("✅ Added to queue at position %d: %s (%s)",
			len(before.Pending)+1, t.Title, track.FormatDuration(t.Duration)))
	}
	return nil
}

// Join selects the voice channel the guild plays in: the one named in args,
// or the one the requester is in. The sink moves there before the next track.
func (m *Manager) Join(ctx context.Context, cc command.Context, args string) error {
	if m.voice == nil {
		reply(ctx, cc, "❌ Voice output is not enabled")
		return errors.Wrap(ErrUsage, "voice output disabled")
	}

	var channelID snowflake.ID
	if args = strings.TrimSpace(args); args != "" {
		id, err := snowflake.Parse(strings.TrimSuffix(strings.TrimPrefix(args, "<#"), ">"))
		if err != nil {
			reply(ctx, cc, m.usage("join [channel]"))
			return errors.Mark(errors.Wrapf(err, "bad channel %q", args), ErrUsage)
		}
		channelID = id
	} else if vl, ok := cc.(command.VoiceLocator); ok {
		channelID, _ = vl.VoiceChannel()
	}
	if channelID == 0 {
		reply(ctx, cc, "❗ Join a voice channel first, or name one")
		return errors.Wrap(ErrUsage, "no voice channel")
	}

	m.voice.Join(cc.GuildID(), channelID)
	if _, err := m.scheduler(cc.GuildID()); err != nil {
		reply(ctx, cc, "❌ Could not start a session")
		return err
	}
	zlog.Info().Msgf("session: voice channel selected: guild=%s channel=%s", cc.GuildID(), channelID)
	reply(ctx, cc, fmt.Sprintf("🔊 Joined <#%s>", channelID))
	return nil
}

// followRequester selects the requester's voice channel when the guild has none.
func (m *Manager) followRequester(cc command.Context) {
	if m.voice == nil {
		return
	}
	if _, ok := m.voice.Channel(cc.GuildID()); ok {
		return
	}
	if vl, ok := cc.(command.VoiceLocator); ok {
		if id, ok := vl.VoiceChannel(); ok {
			m.voice.Join(cc.GuildID(), id)
		}
	}
}

// Search replies with up to limit candidates for query.
func (m *Manager) Search(ctx context.Context, cc command.Context, query string, limit int) ([]media.Entry, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		reply(ctx, cc, m.usage("search <text>"))
		return nil, ErrUsage
	}
	if limit <= 0 {
		limit = m.config.Media.SearchLimit
	}

	entries, err := m.resolver.Search(ctx, query, limit)
	if err != nil || len(entries) == 0 {
		if err == nil {
			err = errors.Wrapf(media.ErrNotFound, "no results for %q", query)
		}
		reply(ctx, cc, "❌ No results found.")
		return nil, err
	}

	lines := []string{fmt.Sprintf("🔎 Results for \"%s\":", query)}
	for i, e := range entries {
		lines = append(lines, fmt.Sprintf("%d. %s (%s) %s", i+1, e.Title, track.FormatDuration(e.Duration), e.Locator))
	}
	lines = append(lines, fmt.Sprintf("Use `%splay <url>` to queue one.", m.config.Discord.Prefix))
	reply(ctx, cc, strings.Join(lines, "\n"))
	return entries, nil
}

// Skip skips the current track.
func (m *Manager) Skip(ctx context.Context, cc command.Context) error {
	s, err := m.registry.Get(cc.GuildID())
	if err != nil {
		reply(ctx, cc, "No audio is currently playing.")
		return errors.Mark(err, playback.ErrNothingPlaying)
	}
	skipped, err := s.Skip()
	if err != nil {
		if errors.Is(err, playback.ErrNothingPlaying) {
			reply(ctx, cc, "No audio is currently playing.")
		} else {
			reply(ctx, cc, "❌ Failed to skip")
		}
		return err
	}
	reply(ctx, cc, fmt.Sprintf("⏭️ Skipped: %s", skipped.Title))
	return nil
}

// Stop stops playback and clears the queue.
func (m *Manager) Stop(ctx context.Context, cc command.Context) error {
	s, err := m.registry.Get(cc.GuildID())
	if err != nil {
		reply(ctx, cc, "I'm not playing any audio.")
		return err
	}
	if err := s.Stop(); err != nil {
		reply(ctx, cc, "❌ Failed to stop playback")
		return err
	}
	reply(ctx, cc, "⏹️ Playback stopped and queue cleared")
	return nil
}

// Pause pauses playback.
func (m *Manager) Pause(ctx context.Context, cc command.Context) error {
	s, err := m.registry.Get(cc.GuildID())
	if err == nil {
		err = s.Pause()
	}
	if err != nil {
		reply(ctx, cc, "No audio is currently playing to pause.")
		return err
	}
	reply(ctx, cc, "⏸️ Audio playback has been paused.")
	return nil
}

// Resume resumes paused playback.
func (m *Manager) Resume(ctx context.Context, cc command.Context) error {
	s, err := m.registry.Get(cc.GuildID())
	if err == nil {
		err = s.Resume()
	}
	if err != nil {
		reply(ctx, cc, "There is no paused audio to resume.")
		return err
	}
	reply(ctx, cc, "▶️ Audio playback has been resumed.")
	return nil
}

// Loop sets the loop mode. An empty mode cycles none, queue, song.
func (m *Manager) Loop(ctx context.Context, cc command.Context, mode string) error {
	s, err := m.scheduler(cc.GuildID())
	if err != nil {
		reply(ctx, cc, "❌ Could not start a session")
		return err
	}

	var next playback.LoopMode
	if strings.TrimSpace(mode) == "" {
		next = s.CycleLoopMode()
	} else {
		next, err = playback.ParseLoopMode(mode)
		if err != nil {
			reply(ctx, cc, m.usage("loop [none | queue | song]"))
			return errors.Mark(err, ErrUsage)
		}
		s.SetLoopMode(next)
	}

	switch next {
	case playback.LoopQueue:
		reply(ctx, cc, "🔁 Looping entire queue")
	case playback.LoopSong:
		reply(ctx, cc, "🔂 Looping current song")
	default:
		reply(ctx, cc, "➡️ Looping disabled")
	}
	return nil
}

// Shuffle shuffles the pending tracks.
func (m *Manager) Shuffle(ctx context.Context, cc command.Context) error {
	s, err := m.registry.Get(cc.GuildID())
	if err != nil {
		reply(ctx, cc, "❗ Need at least 2 songs in the queue to shuffle!")
		return errors.Mark(err, playback.ErrTooFewTracks)
	}
	n, err := s.Shuffle()
	switch {
	case errors.Is(err, playback.ErrTooFewTracks):
		reply(ctx, cc, "❗ Need at least 2 songs in the queue to shuffle!")
		return err
	case errors.Is(err, playback.ErrBusy):
		reply(ctx, cc, "⏳ A playlist is still loading, try again when it is done")
		return err
	case err != nil:
		reply(ctx, cc, "❌ Failed to shuffle queue due to an internal error")
		return err
	}
	reply(ctx, cc, fmt.Sprintf("🔀 Successfully shuffled %d songs!", n))
	return nil
}

// Queue replies with the current track and the pending list, split into
// messages no longer than the configured limit.
func (m *Manager) Queue(ctx context.Context, cc command.Context) error {
	s, err := m.registry.Get(cc.GuildID())
	if err != nil {
		reply(ctx, cc, "Queue is empty")
		return nil
	}
	for _, msg := range RenderQueue(s.Snapshot(), m.config.Notifications.MessageLimit) {
		reply(ctx, cc, msg)
	}
	return nil
}

// Clear drops pending tracks and keeps the current one playing.
func (m *Manager) Clear(ctx context.Context, cc command.Context) error {
	n := 0
	if s, err := m.registry.Get(cc.GuildID()); err == nil {
		n = s.Clear()
	}
	reply(ctx, cc, fmt.Sprintf("✅ Cleared %d songs from the queue", n))
	return nil
}

// Remove removes the pending track at a 1-based position.
func (m *Manager) Remove(ctx context.Context, cc command.Context, pos int) error {
	s, err := m.registry.Get(cc.GuildID())
	if err != nil {
		reply(ctx, cc, "Queue is empty")
		return errors.Mark(err, playback.ErrIndexOutOfRange)
	}
	t, err := s.RemoveAt(pos)
	if err != nil {
		reply(ctx, cc, fmt.Sprintf("❗ No track at position %d", pos))
		return err
	}
	reply(ctx, cc, fmt.Sprintf("🗑️ Removed: %s", t.Title))
	return nil
}

// Usage replies with the data streamed and the uptime of the guild's session.
func (m *Manager) Usage(ctx context.Context, cc command.Context) error {
	u, err := m.UsageOf(cc.GuildID())
	if err != nil {
		reply(ctx, cc, "No usage recorded yet")
		return nil
	}
	reply(ctx, cc, FormatUsage(u, time.Now()))
	return nil
}

// Leave tears the guild's session down.
func (m *Manager) Leave(ctx context.Context, cc command.Context) error {
	if _, err := m.registry.Get(cc.GuildID()); err != nil {
		reply(ctx, cc, "I'm not connected to any voice channel!")
		return err
	}
	if err := m.teardown(ctx, cc.GuildID()); err != nil {
		reply(ctx, cc, "❌ Failed to leave voice channel")
		return err
	}
	reply(ctx, cc, "✅ Left voice channel and cleared queue")
	return nil
}

func (m *Manager) usage(syntax string) string {
	return fmt.Sprintf("Usage: `%s%s`", m.config.Discord.Prefix, syntax)
}
