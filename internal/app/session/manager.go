// Package session provides the guild command surface over the playback schedulers.
package session

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/foldatunez/internal/app/command"
	"github.com/osa030/foldatunez/internal/app/filter"
	"github.com/osa030/foldatunez/internal/app/media"
	"github.com/osa030/foldatunez/internal/app/notification"
	"github.com/osa030/foldatunez/internal/app/playback"
	"github.com/osa030/foldatunez/internal/app/session/registry"
	"github.com/osa030/foldatunez/internal/domain/track"
	"github.com/osa030/foldatunez/internal/infra/config"
	"github.com/osa030/foldatunez/internal/infra/metrics"
)

var (
	ErrUsage    = errors.New("invalid command usage")
	ErrRejected = errors.New("request rejected")
)

// Resolver turns locators into tracks. *media.Chain implements it.
type Resolver interface {
	Resolve(ctx context.Context, locator string, requester track.Requester) (track.Track, error)
	ResolveAs(ctx context.Context, kind media.Kind, locator string, requester track.Requester) (track.Track, error)
	Expand(ctx context.Context, locator string) (*media.Collection, error)
	Search(ctx context.Context, query string, limit int) ([]media.Entry, error)
}

// VoiceChannels selects the voice channel each guild plays in.
// *voice.Channels implements it.
type VoiceChannels interface {
	Join(guildID, channelID snowflake.ID)
	Channel(guildID snowflake.ID) (snowflake.ID, bool)
	Forget(guildID snowflake.ID)
}

// SinkFactory creates the output sink of a new guild scheduler.
type SinkFactory func(guildID snowflake.ID) (playback.OutputSink, error)

// Options are the dependencies of a Manager.
type Options struct {
	Config   *config.Config
	Resolver Resolver
	Filters  *filter.Chain
	Notifier *notification.Notifier
	Metrics  *metrics.Metrics
	NewSink  SinkFactory
	Playback playback.Config
	// Voice is set when tracks play into voice channels.
	Voice VoiceChannels
}

// Manager manages the guild sessions.
type Manager struct {
	config   *config.Config
	resolver Resolver
	filters  *filter.Chain
	notifier *notification.Notifier
	metrics  *metrics.Metrics
	newSink  SinkFactory
	pbConfig playback.Config
	voice    VoiceChannels
	registry *registry.GuildRegistry
	turns    *turns

	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager creates a new session manager.
func NewManager(opts Options) (*Manager, error) {
	if opts.Config == nil {
		return nil, errors.New("config is required")
	}
	if opts.Resolver == nil {
		return nil, errors.New("media resolver is required")
	}
	if opts.NewSink == nil {
		return nil, errors.New("sink factory is required")
	}
	if opts.Filters == nil {
		opts.Filters = filter.NewChain()
	}
	if opts.Notifier == nil {
		opts.Notifier = notification.NewNotifier(notification.Config{})
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		config:   opts.Config,
		resolver: opts.Resolver,
		filters:  opts.Filters,
		notifier: opts.Notifier,
		metrics:  opts.Metrics,
		newSink:  opts.NewSink,
		pbConfig: opts.Playback,
		voice:    opts.Voice,
		turns:    newTurns(),
		ctx:      ctx,
		cancel:   cancel,
	}
	m.registry = registry.NewGuildRegistry(m.createScheduler, m.onSchedulerCreated)
	return m, nil
}

// PlaybackConfigFrom converts the playback section of the configuration.
func PlaybackConfigFrom(cfg *config.Config) playback.Config {
	return playback.Config{
		PollInterval: cfg.Playback.PollInterval(),
		Retry: playback.Backoff{
			Base:     cfg.Playback.RetryBase(),
			Max:      cfg.Playback.RetryMax(),
			Attempts: cfg.Playback.RetryAttempts,
		},
		FailureCooldown: cfg.Playback.FailureCooldown(),
		EventBuffer:     cfg.Playback.EventBuffer,
	}
}

func (m *Manager) createScheduler(guildID snowflake.ID) (*playback.Scheduler, error) {
	sink, err := m.newSink(guildID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create output sink")
	}
	return playback.New(guildID, sink, m.pbConfig), nil
}

func (m *Manager) onSchedulerCreated(s *playback.Scheduler) {
	zlog.Info().Msgf("session: guild scheduler created: guild=%s", s.GuildID())
	m.metrics.SetGuilds(m.registry.Count())
	go m.pump(s)
}

// Metrics returns the metrics collectors.
func (m *Manager) Metrics() *metrics.Metrics {
	return m.metrics
}

// Guilds returns the IDs of guilds with a live scheduler.
func (m *Manager) Guilds() []snowflake.ID {
	all := m.registry.All()
	ids := make([]snowflake.ID, 0, len(all))
	for _, s := range all {
		ids = append(ids, s.GuildID())
	}
	return ids
}

// Status returns a snapshot of the guild's scheduler.
func (m *Manager) Status(guildID snowflake.ID) (playback.Snapshot, error) {
	s, err := m.registry.Get(guildID)
	if err != nil {
		return playback.Snapshot{}, err
	}
	return s.Snapshot(), nil
}

// UsageOf returns the usage totals of the guild's scheduler.
func (m *Manager) UsageOf(guildID snowflake.ID) (playback.Usage, error) {
	s, err := m.registry.Get(guildID)
	if err != nil {
		return playback.Usage{}, err
	}
	return s.Usage(), nil
}

// HandleDisconnect tears the guild down after its output went away for good,
// or the bot was disconnected on the platform side.
func (m *Manager) HandleDisconnect(guildID snowflake.ID) {
	ctx, cancel := context.WithTimeout(m.ctx, 10*time.Second)
	defer cancel()
	if err := m.teardown(ctx, guildID); err != nil {
		zlog.Error().Msgf("session: teardown after disconnect failed: guild=%s error=%v", guildID, err)
		return
	}
	zlog.Info().Msgf("session: cleaned up after disconnect: guild=%s", guildID)
}

// handleSinkLost tears down s after its output went away for good. A guild
// that has since been recreated keeps its new scheduler.
func (m *Manager) handleSinkLost(s *playback.Scheduler) {
	ctx, cancel := context.WithTimeout(m.ctx, 10*time.Second)
	defer cancel()

	id := s.GuildID()
	removed, err := m.registry.RemoveInstance(ctx, s)
	if !removed {
		zlog.Debug().Msgf("session: ignoring sink loss of a replaced scheduler: guild=%s", id)
		return
	}
	m.forget(id)
	if err != nil {
		zlog.Error().Msgf("session: teardown after sink loss failed: guild=%s error=%v", id, err)
		return
	}
	zlog.Info().Msgf("session: cleaned up after sink loss: guild=%s", id)
}

func (m *Manager) teardown(ctx context.Context, guildID snowflake.ID) error {
	err := m.registry.Remove(ctx, guildID)
	m.forget(guildID)
	return err
}

func (m *Manager) forget(guildID snowflake.ID) {
	if m.voice != nil {
		m.voice.Forget(guildID)
	}
	m.notifier.Forget(guildID)
	m.metrics.Forget(guildID)
	m.metrics.SetGuilds(m.registry.Count())
}

// Close tears down every guild.
func (m *Manager) Close(ctx context.Context) error {
	m.cancel()
	err := m.registry.CloseAll(ctx)
	m.metrics.SetGuilds(0)
	return err
}

func (m *Manager) scheduler(guildID snowflake.ID) (*playback.Scheduler, error) {
	s, _, err := m.registry.GetOrCreate(guildID)
	return s, err
}

// start ensures the loop runs after an enqueue.
func (m *Manager) start(s *playback.Scheduler) error {
	if _, err := s.EnsureRunning(); err != nil {
		return errors.Wrap(err, "failed to start playback")
	}
	return nil
}

// admit runs the filter chain for t against the scheduler's current queue.
func (m *Manager) admit(ctx context.Context, s *playback.Scheduler, t track.Track) filter.Result {
	snap := s.Snapshot()
	res := m.filters.Execute(ctx, filter.Request{Track: t, Current: snap.Current, Pending: snap.Pending})
	if !res.Accepted {
		m.metrics.FilterRejected(res.Code)
		zlog.Info().Msgf("session: request rejected: guild=%s title=%s code=%s", s.GuildID(), t.Title, res.Code)
	}
	return res
}

func reply(ctx context.Context, cc command.Context, msg string) {
	if err := cc.Reply(ctx, msg); err != nil {
		zlog.Warn().Msgf("session: reply failed: guild=%s error=%v", cc.GuildID(), err)
	}
}
