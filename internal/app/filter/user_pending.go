package filter

import (
	"context"

	"github.com/samber/lo"

	"github.com/osa030/foldatunez/internal/domain/track"
)

// UserPendingConfig represents the configuration for UserPendingFilter.
type UserPendingConfig struct {
	MaxTracks int `yaml:"max_tracks" mapstructure:"max_tracks" default:"5" validate:"gte=1"`
}

// UserPendingFilter limits how many tracks one requester may have waiting.
type UserPendingFilter struct {
	config *UserPendingConfig
}

func (f *UserPendingFilter) Name() string {
	return "user_pending_filter"
}

func (f *UserPendingFilter) Description() string {
	return "Limits the number of tracks a single user may have waiting"
}

func (f *UserPendingFilter) ReturnCodes() []string {
	return []string{"user_pending"}
}

func (f *UserPendingFilter) ValidateConfig(settings map[string]any) error {
	var config UserPendingConfig
	if err := decodeSettings(settings, &config); err != nil {
		return err
	}
	f.config = &config
	return nil
}

func (f *UserPendingFilter) AppliesTo(requesterType track.RequesterType) bool {
	// Playlist loads and operators are not counted against a user
	return requesterType == track.RequesterTypeUser
}

func (f *UserPendingFilter) Check(ctx context.Context, req Request) Result {
	if f.config == nil {
		return Accept()
	}
	mine := lo.CountBy(req.Pending, func(t track.Track) bool {
		return t.Requester.ID == req.Track.Requester.ID
	})
	if mine >= f.config.MaxTracks {
		return Reject("user_pending")
	}
	return Accept()
}

func init() {
	Register("user_pending_filter", func() Filter {
		return &UserPendingFilter{}
	})
}
