// Package registry keeps one playback scheduler per guild.
package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"

	"github.com/osa030/foldatunez/internal/app/playback"
)

var ErrUnknownGuild = errors.New("no active session for guild")

// Factory builds the scheduler for a guild. It must not block on I/O, it runs
// under the registry lock.
type Factory func(guildID snowflake.ID) (*playback.Scheduler, error)

// GuildRegistry manages guild schedulers with thread-safe access.
type GuildRegistry struct {
	mu         sync.RWMutex
	schedulers map[snowflake.ID]*playback.Scheduler
	factory    Factory
	onCreate   func(*playback.Scheduler)
}

// NewGuildRegistry creates a registry. onCreate, if set, is called once for every new
// scheduler after it has been inserted.
func NewGuildRegistry(factory Factory, onCreate func(*playback.Scheduler)) *GuildRegistry {
	return &GuildRegistry{
		schedulers: make(map[snowflake.ID]*playback.Scheduler),
		factory:    factory,
		onCreate:   onCreate,
	}
}

// GetOrCreate returns the guild's scheduler, creating it on first use. Concurrent
// callers for the same guild always get the same instance.
func (r *GuildRegistry) GetOrCreate(guildID snowflake.ID) (*playback.Scheduler, bool, error) {
	r.mu.RLock()
	s, ok := r.schedulers[guildID]
	r.mu.RUnlock()
	if ok {
		return s, false, nil
	}

	r.mu.Lock()
	if s, ok = r.schedulers[guildID]; ok {
		r.mu.Unlock()
		return s, false, nil
	}
	s, err := r.factory(guildID)
	if err != nil {
		r.mu.Unlock()
		return nil, false, errors.Wrapf(err, "failed to create scheduler for guild %s", guildID)
	}
	r.schedulers[guildID] = s
	r.mu.Unlock()

	if r.onCreate != nil {
		r.onCreate(s)
	}
	return s, true, nil
}

// Get retrieves a guild's scheduler.
func (r *GuildRegistry) Get(guildID snowflake.ID) (*playback.Scheduler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.schedulers[guildID]
	if !ok {
		return nil, ErrUnknownGuild
	}
	return s, nil
}

// Remove tears the guild's scheduler down and forgets it. Removing an unknown
// guild is not an error.
func (r *GuildRegistry) Remove(ctx context.Context, guildID snowflake.ID) error {
	r.mu.Lock()
	s, ok := r.schedulers[guildID]
	delete(r.schedulers, guildID)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return s.Close(ctx)
}

// RemoveInstance is Remove for one specific scheduler. It reports false and
// leaves the registry alone when the guild now maps to another scheduler.
func (r *GuildRegistry) RemoveInstance(ctx context.Context, s *playback.Scheduler) (bool, error) {
	r.mu.Lock()
	cur, ok := r.schedulers[s.GuildID()]
	if !ok || cur != s {
		r.mu.Unlock()
		return false, nil
	}
	delete(r.schedulers, s.GuildID())
	r.mu.Unlock()

	return true, s.Close(ctx)
}

// All returns all schedulers ordered by guild ID.
func (r *GuildRegistry) All() []*playback.Scheduler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*playback.Scheduler, 0, len(r.schedulers))
	for _, s := range r.schedulers {
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].GuildID() < result[j].GuildID() })
	return result
}

// Count returns the number of guilds with a scheduler.
func (r *GuildRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.schedulers)
}

// CloseAll tears down every scheduler.
func (r *GuildRegistry) CloseAll(ctx context.Context) error {
	r.mu.Lock()
	all := r.schedulers
	r.schedulers = make(map[snowflake.ID]*playback.Scheduler)
	r.mu.Unlock()

	var errs error
	for id, s := range all {
		if err := s.Close(ctx); err != nil {
			errs = errors.CombineErrors(errs, errors.Wrapf(err, "guild %s", id))
		}
	}
	return errs
}
