package session

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/osa030/foldatunez/internal/app/command"
)

// ErrNotCommand is returned for lines that do not start with the prefix.
var ErrNotCommand = errors.New("not a command")

type handler func(ctx context.Context, cc command.Context, args string) error

// Router parses "<prefix>command args" lines and calls the manager.
type Router struct {
	m        *Manager
	prefix   string
	handlers map[string]handler
	aliases  map[string]string
	// lateTurn lists handlers that wait for their turn themselves, or never
	// touch the queue.
	lateTurn map[string]bool
}

// NewRouter creates a router with the manager's configured prefix.
func NewRouter(m *Manager) *Router {
	r := &Router{m: m, prefix: m.config.Discord.Prefix}
	r.handlers = map[string]handler{
		"play":     m.Play,
		"local":    m.PlayLocal,
		"playlist": m.LoadPlaylistFile,
		"search": func(ctx context.Context, cc command.Context, args string) error {
			_, err := m.Search(ctx, cc, args, 0)
			return err
		},
		"skip":    noArgs(m.Skip),
		"stop":    noArgs(m.Stop),
		"pause":   noArgs(m.Pause),
		"resume":  noArgs(m.Resume),
		"loop":    m.Loop,
		"shuffle": noArgs(m.Shuffle),
		"queue":   noArgs(m.Queue),
		"clear":   noArgs(m.Clear),
		"remove":  r.remove,
		"usage":   noArgs(m.Usage),
		"leave":   noArgs(m.Leave),
		"join":    m.Join,
		"help":    r.help,
	}
	r.lateTurn = map[string]bool{
		"play":     true,
		"local":    true,
		"playlist": true,
		"search":   true,
		"help":     true,
	}
	r.aliases = map[string]string{
		"stream":         "play",
		"p":              "play",
		"playlist_local": "playlist",
		"q":              "queue",
		"help_me":        "help",
		"disconnect":     "leave",
		"connect":        "join",
	}
	return r
}

func noArgs(fn func(context.Context, command.Context) error) handler {
	return func(ctx context.Context, cc command.Context, _ string) error {
		return fn(ctx, cc)
	}
}

// Prefix returns the command prefix.
func (r *Router) Prefix() string {
	return r.prefix
}

// Dispatch runs the command in line. Lines without the prefix return ErrNotCommand.
func (r *Router) Dispatch(ctx context.Context, cc command.Context, line string) error {
	run, err := r.Prepare(cc, line)
	if err != nil {
		return err
	}
	return run(ctx)
}

// Prepare parses line and reserves the guild's next turn. The returned
// function runs the command and must be called once. Commands of a guild
// change its queue in the order they were prepared, even when they run
// concurrently.
func (r *Router) Prepare(cc command.Context, line string) (func(context.Context) error, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, r.prefix) {
		return nil, ErrNotCommand
	}
	name, args, _ := strings.Cut(strings.TrimPrefix(line, r.prefix), " ")
	name = strings.ToLower(name)
	if alias, ok := r.aliases[name]; ok {
		name = alias
	}
	args = strings.TrimSpace(args)

	h, ok := r.handlers[name]
	if !ok {
		return func(ctx context.Context) error {
			reply(ctx, cc, fmt.Sprintf("Unknown command. Use `%shelp` for help", r.prefix))
			return errors.Wrapf(ErrUsage, "unknown command %q", name)
		}, nil
	}

	t := r.m.turns.take(cc.GuildID())
	return func(ctx context.Context) error {
		defer t.done()
		if !r.lateTurn[name] {
			if err := t.wait(ctx); err != nil {
				return errors.Wrapf(err, "%s gave up waiting for earlier commands", name)
			}
		}
		err := h(withTurn(ctx, t), cc, args)
		r.m.metrics.Command(name, err)
		return err
	}, nil
}

func (r *Router) remove(ctx context.Context, cc command.Context, args string) error {
	pos, err := strconv.Atoi(args)
	if err != nil {
		reply(ctx, cc, r.m.usage("remove <position>"))
		return errors.Mark(errors.Wrapf(err, "bad position %q", args), ErrUsage)
	}
	return r.m.Remove(ctx, cc, pos)
}

func (r *Router) help(ctx context.Context, cc command.Context, _ string) error {
	p := r.prefix
	lines := []string{
		"**Folda Tunez Commands**\n",
		"🎵 **Music Commands**:",
		fmt.Sprintf("`%splay <url | text>` - Stream from a URL, a Spotify link, or the best search match", p),
		fmt.Sprintf("`%slocal <file>` - Play an audio file from disk", p),
		fmt.Sprintf("`%splaylist <file>` - Load a local playlist file", p),
		fmt.Sprintf("`%ssearch <text>` - Show the top search results", p),
		fmt.Sprintf("`%squeue` - Show current queue with timestamps", p),
		fmt.Sprintf("`%sclear` - Clear upcoming songs", p),
		fmt.Sprintf("`%sremove <n>` - Remove song n from the queue", p),
		fmt.Sprintf("`%sskip` - Skip current track", p),
		fmt.Sprintf("`%spause` - Pause playback", p),
		fmt.Sprintf("`%sresume` - Resume playback", p),
		fmt.Sprintf("`%sstop` - Stop playback and clear queue", p),
		fmt.Sprintf("`%sshuffle` - Shuffle the queue", p),
		fmt.Sprintf("`%sloop [none | queue | song]` - Set or cycle looping", p),
		fmt.Sprintf("`%sjoin [channel]` - Play in your voice channel, or the one given", p),
		fmt.Sprintf("`%sleave` - Leave and clear the queue", p),
		"\n📊 **Info Commands**:",
		fmt.Sprintf("`%susage` - Show data usage and uptime", p),
		fmt.Sprintf("`%shelp` - Show this help message", p),
	}
	reply(ctx, cc, strings.Join(lines, "\n"))
	return nil
}
