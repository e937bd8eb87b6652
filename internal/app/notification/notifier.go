// Package notification delivers playback notices to the channel a guild last used.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/osa030/foldatunez/internal/app/command"
)

// Config holds notifier configuration.
type Config struct {
	RatePerSec  float64       // Sustained notices per second per guild
	Burst       int           // Notices allowed at once
	DedupWindow time.Duration // Same incident key is delivered once per window
	SendTimeout time.Duration // Upper bound for a single reply
}

type target struct {
	cc       command.Context
	limiter  *rate.Limiter
	incident map[string]time.Time
}

// Notifier sends notices to the last bound command context of each guild.
type Notifier struct {
	mu      sync.Mutex
	cfg     Config
	targets map[snowflake.ID]*target
	now     func() time.Time
}

// NewNotifier creates a notifier.
func NewNotifier(cfg Config) *Notifier {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 5 * time.Second
	}
	return &Notifier{
		cfg:     cfg,
		targets: make(map[snowflake.ID]*target),
		now:     time.Now,
	}
}

// Bind makes cc the destination for the guild's notices.
func (n *Notifier) Bind(cc command.Context) {
	n.mu.Lock()
	defer n.mu.Unlock()

	t, ok := n.targets[cc.GuildID()]
	if !ok {
		t = &target{
			limiter:  rate.NewLimiter(rate.Limit(n.cfg.RatePerSec), n.cfg.Burst),
			incident: make(map[string]time.Time),
		}
		n.targets[cc.GuildID()] = t
	}
	t.cc = cc
}

// Forget drops the guild's destination.
func (n *Notifier) Forget(guildID snowflake.ID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.targets, guildID)
}

// Notify sends message to the guild. An empty key disables deduplication.
// It reports whether the message was delivered.
func (n *Notifier) Notify(ctx context.Context, guildID snowflake.ID, key, message string) bool {
	n.mu.Lock()
	t, ok := n.targets[guildID]
	if !ok || t.cc == nil {
		n.mu.Unlock()
		return false
	}
	now := n.now()
	if key != "" && n.cfg.DedupWindow > 0 {
		if last, seen := t.incident[key]; seen && now.Sub(last) < n.cfg.DedupWindow {
			n.mu.Unlock()
			zlog.Debug().Msgf("notification: duplicate suppressed: guild=%s key=%s", guildID, key)
			return false
		}
	}
	if !t.limiter.AllowN(now, 1) {
		n.mu.Unlock()
		zlog.Debug().Msgf("notification: rate limited: guild=%s", guildID)
		return false
	}
	if key != "" {
		t.incident[key] = now
	}
	cc := t.cc
	n.mu.Unlock()

	sendCtx, cancel := context.WithTimeout(ctx, n.cfg.SendTimeout)
	defer cancel()
	if err := cc.Reply(sendCtx, message); err != nil {
		zlog.Warn().Err(err).Msgf("notification: failed to send: guild=%s", guildID)
		return false
	}
	return true
}
