package session

import (
	"context"
	"sync"

	"github.com/disgoorg/snowflake/v2"
)

// turns hands out per-guild tickets in arrival order. A command holding a
// ticket may do slow work early, but it touches the guild's queue only after
// every earlier ticket of the same guild is done.
type turns struct {
	mu    sync.Mutex
	tails map[snowflake.ID]chan struct{}
}

func newTurns() *turns {
	return &turns{tails: make(map[snowflake.ID]chan struct{})}
}

type turn struct {
	owner *turns
	guild snowflake.ID
	prev  <-chan struct{}
	self  chan struct{}
	once  sync.Once
}

// take reserves the next position of the guild.
func (ts *turns) take(guild snowflake.ID) *turn {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	t := &turn{owner: ts, guild: guild, prev: ts.tails[guild], self: make(chan struct{})}
	ts.tails[guild] = t.self
	return t
}

// wait blocks until every earlier turn of the guild is done.
func (t *turn) wait(ctx context.Context) error {
	if t.prev == nil {
		return nil
	}
	select {
	case <-t.prev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// done releases the turn. Later turns still wait for earlier ones, so a turn
// finished out of order is only released once its predecessor is. Safe to
// call more than once.
func (t *turn) done() {
	t.once.Do(func() {
		if t.prev == nil {
			t.release()
			return
		}
		select {
		case <-t.prev:
			t.release()
		default:
			go func() {
				<-t.prev
				t.release()
			}()
		}
	})
}

func (t *turn) release() {
	close(t.self)
	t.owner.mu.Lock()
	if t.owner.tails[t.guild] == t.self {
		delete(t.owner.tails, t.guild)
	}
	t.owner.mu.Unlock()
}

type turnKey struct{}

func withTurn(ctx context.Context, t *turn) context.Context {
	return context.WithValue(ctx, turnKey{}, t)
}

// turnFor returns the turn reserved for this command, or reserves one now.
func (m *Manager) turnFor(ctx context.Context, guild snowflake.ID) *turn {
	if t, ok := ctx.Value(turnKey{}).(*turn); ok && t.guild == guild {
		return t
	}
	return m.turns.take(guild)
}

// reserve returns ctx carrying the command's turn.
func (m *Manager) reserve(ctx context.Context, guild snowflake.ID) (context.Context, *turn) {
	t := m.turnFor(ctx, guild)
	return withTurn(ctx, t), t
}
