package voice

import (
	"sync"

	"github.com/disgoorg/snowflake/v2"
)

// Channels records the voice channel each guild plays in.
type Channels struct {
	mu sync.RWMutex
	m  map[snowflake.ID]snowflake.ID
}

// NewChannels creates an empty directory.
func NewChannels() *Channels {
	return &Channels{m: make(map[snowflake.ID]snowflake.ID)}
}

// Join selects the channel of a guild. Sinks move there before their next track.
func (c *Channels) Join(guildID, channelID snowflake.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[guildID] = channelID
}

// Channel returns the selected channel of a guild.
func (c *Channels) Channel(guildID snowflake.ID) (snowflake.ID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.m[guildID]
	return id, ok
}

// Forget drops the selection of a guild.
func (c *Channels) Forget(guildID snowflake.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, guildID)
}
