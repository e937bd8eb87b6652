package playback

import (
	"context"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"
	"github.com/rs/zerolog"

	"github.com/osa030/foldatunez/internal/domain/track"
	"github.com/osa030/foldatunez/internal/infra/logger"
)

// Config holds scheduler configuration.
type Config struct {
	PollInterval    time.Duration // Safety re-check of the queue while idle
	Retry           Backoff       // Retry policy for transient sink errors
	FailureCooldown time.Duration // Pause after a failed start before trying again
	EventBuffer     int           // Capacity of the event channel
	Rand            *rand.Rand    // Shuffle source, used under the scheduler lock; nil uses the global source
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		PollInterval:    time.Second,
		Retry:           Backoff{Base: time.Second, Max: 8 * time.Second, Attempts: 4},
		FailureCooldown: 5 * time.Second,
		EventBuffer:     64,
	}
}

// Snapshot is an immutable view of a scheduler.
type Snapshot struct {
	GuildID    snowflake.ID
	Phase      Phase
	LoopMode   LoopMode
	Current    *track.Track
	Elapsed    time.Duration
	Pending    []track.Track
	HistoryLen int
	Ingesting  bool
}

// Usage summarises what a scheduler has played.
type Usage struct {
	StartedAt     time.Time
	TracksStarted int
	BytesStreamed int64
}

// Scheduler owns the queue, history, loop mode and playback state of one guild
// and runs the single loop that calls OutputSink.Play.
type Scheduler struct {
	guildID snowflake.ID
	sink    OutputSink
	cfg     Config
	log     zerolog.Logger

	mu            sync.Mutex
	pending       *Queue
	history       []track.Track
	inHistory     map[string]struct{}
	current       *track.Track
	phase         Phase
	loopMode      LoopMode
	gen           uint64 // Bumped whenever the current play is invalidated
	startedAt     time.Time
	pausedAt      time.Time
	pausedFor     time.Duration
	bulk          int
	lost          bool
	tracksStarted int
	createdAt     time.Time
	closed        bool
	eventsClosed  bool

	running   atomic.Bool
	wake      chan struct{}
	events    chan Event
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a scheduler for a guild. The loop is not started until EnsureRunning.
func New(guildID snowflake.ID, sink OutputSink, cfg Config) *Scheduler {
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.Retry.Attempts <= 0 {
		cfg.Retry = def.Retry
	}
	if cfg.FailureCooldown <= 0 {
		cfg.FailureCooldown = def.FailureCooldown
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = def.EventBuffer
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		guildID:   guildID,
		sink:      sink,
		cfg:       cfg,
		log:       logger.Guild(guildID),
		pending:   NewQueue(),
		inHistory: make(map[string]struct{}),
		phase:     PhaseIdle,
		loopMode:  LoopNone,
		createdAt: time.Now(),
		wake:      make(chan struct{}, 1),
		events:    make(chan Event, cfg.EventBuffer),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// GuildID returns the guild this scheduler belongs to.
func (s *Scheduler) GuildID() snowflake.ID {
	return s.guildID
}

// Events returns the event channel. It is closed after Close.
func (s *Scheduler) Events() <-chan Event {
	return s.events
}

// Done is closed once the loop has exited after Close.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

// Enqueue appends a track to pending.
func (s *Scheduler) Enqueue(t track.Track) {
	s.EnqueueMany([]track.Track{t})
}

// EnqueueMany appends tracks to pending in order.
func (s *Scheduler) EnqueueMany(ts []track.Track) {
	if len(ts) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		s.log.Debug().Msgf("playback: enqueue after close ignored: count=%d", len(ts))
		return
	}
	s.pending.PushBack(ts...)
	if s.phase == PhaseIdle {
		s.signal()
	}
}

// EnsureRunning starts the loop if it is not running. It reports whether this call started it.
func (s *Scheduler) EnsureRunning() (bool, error) {
	if !s.running.CompareAndSwap(false, true) {
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return false, ErrClosed
		}
		return false, nil
	}
	go s.run()
	s.log.Debug().Msg("playback: loop started")
	return true, nil
}

// Running reports whether the loop has been started.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Skip stops the current track so the loop advances. In queue loop mode the
// skipped track goes back to the tail of pending.
func (s *Scheduler) Skip() (*track.Track, error) {
	s.mu.Lock()
	if s.phase != PhasePlaying || s.current == nil {
		s.mu.Unlock()
		return nil, ErrNothingPlaying
	}
	skipped := *s.current
	if s.loopMode == LoopQueue {
		s.pending.PushBack(skipped)
	}
	s.sendEventLocked(Event{Type: EventTrackSkipped, Track: &skipped})
	s.mu.Unlock()

	if err := s.sink.Stop(); err != nil {
		return &skipped, errors.Wrap(err, "failed to stop sink")
	}
	return &skipped, nil
}

// Stop drains pending, resets the loop mode and stops the current track.
// The loop keeps running and picks up anything enqueued later.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	dropped := len(s.pending.Clear())
	wasActive := s.phase.Active()
	s.loopMode = LoopNone
	s.current = nil
	s.phase = PhaseIdle
	s.gen++
	if wasActive {
		s.sendEventLocked(Event{Type: EventStateChanged})
	}
	s.mu.Unlock()

	s.log.Info().Msgf("playback: stopped: dropped=%d", dropped)
	if wasActive || s.sink.IsBusy() {
		if err := s.sink.Stop(); err != nil {
			return errors.Wrap(err, "failed to stop sink")
		}
	}
	return nil
}

// Pause pauses the current track.
func (s *Scheduler) Pause() error {
	s.mu.Lock()
	if s.phase != PhasePlaying {
		s.mu.Unlock()
		return ErrNothingPlaying
	}
	gen := s.gen
	s.mu.Unlock()

	if err := s.sink.Pause(); err != nil {
		return errors.Wrap(err, "failed to pause sink")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == gen && s.phase == PhasePlaying {
		s.phase = PhasePaused
		s.pausedAt = time.Now()
		s.sendEventLocked(Event{Type: EventStateChanged, Track: s.currentCopyLocked()})
	}
	return nil
}

// Resume resumes a paused track.
func (s *Scheduler) Resume() error {
	s.mu.Lock()
	if s.phase != PhasePaused {
		s.mu.Unlock()
		return ErrNothingPaused
	}
	gen := s.gen
	s.mu.Unlock()

	if err := s.sink.Resume(); err != nil {
		return errors.Wrap(err, "failed to resume sink")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == gen && s.phase == PhasePaused {
		s.pausedFor += time.Since(s.pausedAt)
		s.pausedAt = time.Time{}
		s.phase = PhasePlaying
		s.sendEventLocked(Event{Type: EventStateChanged, Track: s.currentCopyLocked()})
	}
	return nil
}

// SetLoopMode sets the loop mode.
func (s *Scheduler) SetLoopMode(m LoopMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loopMode = m
	s.sendEventLocked(Event{Type: EventLoopChanged})
}

// CycleLoopMode advances none -> queue -> song -> none and returns the new mode.
func (s *Scheduler) CycleLoopMode() LoopMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loopMode = s.loopMode.Next()
	s.sendEventLocked(Event{Type: EventLoopChanged})
	return s.loopMode
}

// LoopMode returns the current loop mode.
func (s *Scheduler) LoopMode() LoopMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loopMode
}

// Shuffle randomises pending and returns how many tracks were shuffled.
func (s *Scheduler) Shuffle() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}
	list := s.pending.ToList()
	if len(list) < 2 {
		return 0, ErrTooFewTracks
	}
	if s.bulk > 0 {
		return 0, ErrBusy
	}
	// Every pending track is shuffled, including one requeued by a skip that is
	// still current.
	shuffled, err := Shuffle(list, nil, s.cfg.Rand)
	if err != nil {
		return 0, err
	}
	s.pending.ReplaceAll(shuffled)
	s.sendEventLocked(Event{Type: EventQueueShuffled})
	return len(shuffled), nil
}

// Clear drops pending without touching the current track.
func (s *Scheduler) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending.Clear())
}

// RemoveAt removes the track at a 1-based position in pending.
func (s *Scheduler) RemoveAt(pos int) (track.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.pending.ToList()
	if pos < 1 || pos > len(list) {
		return track.Track{}, errors.Wrapf(ErrIndexOutOfRange, "position %d of %d", pos, len(list))
	}
	target := list[pos-1]
	s.pending.RemoveWhere(func(t track.Track) bool { return t.ID == target.ID })
	return target, nil
}

// BeginBulk marks a playlist ingestion in flight. Shuffle is refused until the
// matching EndBulk.
func (s *Scheduler) BeginBulk() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bulk++
}

// EndBulk ends a playlist ingestion started with BeginBulk.
func (s *Scheduler) EndBulk() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bulk > 0 {
		s.bulk--
	}
}

// Snapshot returns a copy of the scheduler state.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		GuildID:    s.guildID,
		Phase:      s.phase,
		LoopMode:   s.loopMode,
		Pending:    s.pending.ToList(),
		HistoryLen: len(s.history),
		Ingesting:  s.bulk > 0,
	}
	if s.phase.Active() {
		snap.Current = s.currentCopyLocked()
		snap.Elapsed = s.elapsedLocked()
	}
	return snap
}

// Usage returns playback totals since the scheduler was created.
func (s *Scheduler) Usage() Usage {
	s.mu.Lock()
	u := Usage{StartedAt: s.createdAt, TracksStarted: s.tracksStarted}
	s.mu.Unlock()
	if bc, ok := s.sink.(ByteCounter); ok {
		u.BytesStreamed = bc.BytesStreamed()
	}
	return u
}

// Close tears the scheduler down: the loop is cancelled and awaited, the sink
// stopped and closed, and all state cleared. Safe to call more than once.
func (s *Scheduler) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.gen++
		s.mu.Unlock()
		s.cancel()

		// Claim the loop handle so a loop can never start after close.
		if s.running.CompareAndSwap(false, true) {
			s.release()
			close(s.done)
		}
	})

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "timed out waiting for playback loop to exit")
	}
}

// release frees the sink and resets state. Runs once, on the loop goroutine or in Close.
func (s *Scheduler) release() {
	if s.sink.IsBusy() {
		if err := s.sink.Stop(); err != nil {
			s.log.Warn().Err(err).Msg("playback: failed to stop sink on teardown")
		}
	}
	if err := s.sink.Close(); err != nil {
		s.log.Warn().Err(err).Msg("playback: failed to close sink")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending.Clear()
	s.history = nil
	s.inHistory = make(map[string]struct{})
	s.current = nil
	s.phase = PhaseIdle
	s.loopMode = LoopNone
	s.bulk = 0
	s.eventsClosed = true
	close(s.events)
	s.log.Info().Msg("playback: scheduler released")
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) currentCopyLocked() *track.Track {
	if s.current == nil {
		return nil
	}
	c := *s.current
	return &c
}

func (s *Scheduler) elapsedLocked() time.Duration {
	if s.startedAt.IsZero() {
		return 0
	}
	end := time.Now()
	if s.phase == PhasePaused && !s.pausedAt.IsZero() {
		end = s.pausedAt
	}
	elapsed := end.Sub(s.startedAt) - s.pausedFor
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// sendEventLocked sends an event without blocking.
// Must be called with lock held.
func (s *Scheduler) sendEventLocked(e Event) {
	if s.eventsClosed {
		return
	}
	e.Phase = s.phase
	e.LoopMode = s.loopMode
	select {
	case s.events <- e:
	default:
		s.log.Debug().Msgf("playback: event dropped: type=%s", e.Type)
	}
}
