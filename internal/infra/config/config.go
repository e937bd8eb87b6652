// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server        ServerConfig            `yaml:"server"`
	Admin         AdminConfig             `yaml:"admin"`
	Discord       DiscordConfig           `yaml:"discord"`
	Playback      PlaybackConfig          `yaml:"playback"`
	Output        OutputConfig            `yaml:"output"`
	Media         MediaConfig             `yaml:"media"`
	Spotify       SpotifyConfig           `yaml:"spotify"`
	Notifications NotificationsConfig     `yaml:"notifications"`
	Filters       map[string]FilterConfig `yaml:"filters"`
	Messages      MessagesConfig          `yaml:"messages"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr  string      `yaml:"addr" default:":8080"`
	Hooks HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// AdminConfig represents admin-related configuration.
type AdminConfig struct {
	Token string `yaml:"token" validate:"required"`
	Name  string `yaml:"name" default:"operator"`
}

// DiscordConfig represents the chat gateway configuration.
type DiscordConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token" validate:"required_if=Enabled true"`
	Prefix  string `yaml:"prefix" default:"!"`
}

// PlaybackConfig represents scheduler timing configuration.
type PlaybackConfig struct {
	PollIntervalMs    int `yaml:"poll_interval_ms" default:"1000" validate:"gte=50,lte=60000"`
	RetryBaseMs       int `yaml:"retry_base_ms" default:"1000" validate:"gte=10"`
	RetryMaxMs        int `yaml:"retry_max_ms" default:"8000" validate:"gtefield=RetryBaseMs"`
	RetryAttempts     int `yaml:"retry_attempts" default:"4" validate:"gte=1,lte=20"`
	FailureCooldownMs int `yaml:"failure_cooldown_ms" default:"5000" validate:"gte=0"`
	EventBuffer       int `yaml:"event_buffer" default:"64" validate:"gte=1"`
}

// PollInterval returns the idle re-evaluation interval.
func (p PlaybackConfig) PollInterval() time.Duration {
	return time.Duration(p.PollIntervalMs) * time.Millisecond
}

// RetryBase returns the first retry delay.
func (p PlaybackConfig) RetryBase() time.Duration {
	return time.Duration(p.RetryBaseMs) * time.Millisecond
}

// RetryMax returns the retry delay cap.
func (p PlaybackConfig) RetryMax() time.Duration {
	return time.Duration(p.RetryMaxMs) * time.Millisecond
}

// FailureCooldown returns the pause after an unrecoverable start failure.
func (p PlaybackConfig) FailureCooldown() time.Duration {
	return time.Duration(p.FailureCooldownMs) * time.Millisecond
}

// OutputConfig selects the audio output.
type OutputConfig struct {
	Driver             string `yaml:"driver" default:"timed" validate:"oneof=speaker timed voice"`
	FFmpegPath         string `yaml:"ffmpeg_path" default:"ffmpeg"`
	BitrateKbps        int    `yaml:"bitrate_kbps" default:"128" validate:"gte=8,lte=512"`
	SampleRate         int    `yaml:"sample_rate" default:"44100" validate:"gte=8000,lte=192000"`
	DefaultDurationSec int    `yaml:"default_duration_sec" default:"180" validate:"gte=1"`
}

// DefaultDuration is used by the timed output for tracks of unknown length.
func (o OutputConfig) DefaultDuration() time.Duration {
	return time.Duration(o.DefaultDurationSec) * time.Second
}

// MediaConfig represents media resolution configuration.
type MediaConfig struct {
	CacheDir      string          `yaml:"cache_dir"`
	Proxy         string          `yaml:"proxy"`
	PlaylistLimit int             `yaml:"playlist_limit" default:"100" validate:"gte=1,lte=5000"`
	IngestWorkers int             `yaml:"ingest_workers" default:"4" validate:"gte=1,lte=32"`
	SearchLimit   int             `yaml:"search_limit" default:"5" validate:"gte=1,lte=25"`
	Backends      []BackendConfig `yaml:"backends" validate:"dive"`
}

// BackendConfig represents a single media backend.
type BackendConfig struct {
	Type     string         `yaml:"type" validate:"required,oneof=local remote spotify"`
	Settings map[string]any `yaml:"settings"`
}

// SpotifyConfig represents Spotify API configuration.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Market       string `yaml:"market" validate:"omitempty,len=2" default:"US"`
}

// Configured reports whether Spotify credentials are present.
func (s SpotifyConfig) Configured() bool {
	return s.ClientID != "" && s.ClientSecret != ""
}

// NotificationsConfig represents user-visible notice throttling.
type NotificationsConfig struct {
	RatePerSec     float64 `yaml:"rate_per_sec" default:"1" validate:"gt=0"`
	Burst          int     `yaml:"burst" default:"5" validate:"gte=1"`
	DedupWindowSec int     `yaml:"dedup_window_sec" default:"5" validate:"gte=0"`
	MessageLimit   int     `yaml:"message_limit" default:"1900" validate:"gte=200,lte=2000"`
}

// DedupWindow returns the incident de-duplication window.
func (n NotificationsConfig) DedupWindow() time.Duration {
	return time.Duration(n.DedupWindowSec) * time.Second
}

// FilterConfig represents a filter's configuration.
type FilterConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// MessagesConfig represents user-facing messages.
type MessagesConfig struct {
	DefaultError          string `yaml:"default_error" default:"Request rejected"`
	DuplicateTrack        string `yaml:"duplicate_track" default:"That track is already queued"`
	DurationLimitExceeded string `yaml:"duration_limit_exceeded" default:"That track is too long"`
	UserPending           string `yaml:"user_pending" default:"You already have too many tracks queued"`
	QueueFull             string `yaml:"queue_full" default:"The queue is full"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse parses YAML configuration bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if len(cfg.Media.Backends) == 0 {
		cfg.Media.Backends = DefaultBackends()
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// DefaultBackends is used when no media backends are configured.
func DefaultBackends() []BackendConfig {
	return []BackendConfig{{Type: "local"}, {Type: "remote"}}
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("DISCORD_TOKEN"); v != "" {
		c.Discord.Token = v
	}
	if v := os.Getenv("ADMIN_TOKEN"); v != "" {
		c.Admin.Token = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("YOUTUBE_PROXY"); v != "" {
		c.Media.Proxy = v
	}
}

// GetMessage returns the message for the given filter code.
func (c *Config) GetMessage(code string) string {
	switch code {
	case "duplicate_track":
		return c.Messages.DuplicateTrack
	case "duration_limit_exceeded":
		return c.Messages.DurationLimitExceeded
	case "user_pending":
		return c.Messages.UserPending
	case "queue_full":
		return c.Messages.QueueFull
	default:
		return c.Messages.DefaultError
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	if c.Output.Driver == "voice" && !c.Discord.Enabled {
		return errors.New("voice output driver requires discord.enabled")
	}
	for _, b := range c.Media.Backends {
		if b.Type == "spotify" && !c.Spotify.Configured() {
			return errors.New("spotify backend requires spotify.client_id and spotify.client_secret")
		}
	}
	return nil
}

// IsFilterEnabled checks if a filter is enabled.
func (c *Config) IsFilterEnabled(filterName string) bool {
	if f, ok := c.Filters[filterName]; ok {
		return f.Enabled
	}
	return false
}

// EnabledFilters returns the settings of every enabled filter, keyed by name.
func (c *Config) EnabledFilters() map[string]map[string]any {
	out := make(map[string]map[string]any)
	for name, f := range c.Filters {
		if f.Enabled {
			out[name] = f.Settings
		}
	}
	return out
}
