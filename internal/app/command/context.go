// Package command defines the context a chat command runs in.
package command

import (
	"context"
	"sync"

	"github.com/disgoorg/snowflake/v2"

	"github.com/osa030/foldatunez/internal/domain/track"
)

// Context is where a command came from and where its answer goes.
type Context interface {
	GuildID() snowflake.ID
	Requester() track.Requester
	Reply(ctx context.Context, message string) error
}

// VoiceLocator is implemented by contexts that know which voice channel the
// requester is in.
type VoiceLocator interface {
	VoiceChannel() (snowflake.ID, bool)
}

// Recorder is an in-memory Context that keeps every reply.
type Recorder struct {
	Guild snowflake.ID
	User  track.Requester

	mu      sync.Mutex
	replies []string
}

// NewRecorder creates a recorder for a guild.
func NewRecorder(guildID snowflake.ID, requester track.Requester) *Recorder {
	return &Recorder{Guild: guildID, User: requester}
}

func (r *Recorder) GuildID() snowflake.ID      { return r.Guild }
func (r *Recorder) Requester() track.Requester { return r.User }

// Reply records the message.
func (r *Recorder) Reply(_ context.Context, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies = append(r.replies, message)
	return nil
}

// Replies returns a copy of the recorded replies.
func (r *Recorder) Replies() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.replies))
	copy(out, r.replies)
	return out
}

// Last returns the most recent reply, or "".
func (r *Recorder) Last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.replies) == 0 {
		return ""
	}
	return r.replies[len(r.replies)-1]
}
