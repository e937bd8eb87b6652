package media

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/foldatunez/internal/domain/track"
)

// Chain dispatches locators to the first backends that support their kind,
// trying the next one when a backend fails.
type Chain struct {
	backends []Backend
}

// NewChain creates a chain over backends, in priority order.
func NewChain(backends ...Backend) *Chain {
	return &Chain{backends: backends}
}

// Backends returns the configured backends.
func (c *Chain) Backends() []Backend {
	return c.backends
}

// Resolve classifies the locator and resolves it.
func (c *Chain) Resolve(ctx context.Context, locator string, requester track.Requester) (track.Track, error) {
	return c.ResolveAs(ctx, Classify(locator), locator, requester)
}

// ResolveAs resolves the locator as the given kind.
func (c *Chain) ResolveAs(ctx context.Context, kind Kind, locator string, requester track.Requester) (track.Track, error) {
	if kind.IsPlaylist() {
		return track.Track{}, errors.Wrapf(ErrUnsupported, "%s is a playlist", kind)
	}

	lastErr := errors.Wrapf(ErrUnsupported, "no backend for %s locator", kind)
	for i, b := range c.backends {
		if !b.Supports(kind) {
			continue
		}
		zlog.Debug().Msgf("media: trying backend: index=%d name=%s kind=%s", i+1, b.Name(), kind)

		t, err := b.Resolve(ctx, locator, requester)
		if err == nil {
			return t, nil
		}
		if ctx.Err() != nil {
			return track.Track{}, errors.Wrap(ctx.Err(), "resolution cancelled")
		}
		zlog.Warn().Msgf("media: backend failed, trying next: backend=%s locator=%s error=%v", b.Name(), locator, err)
		lastErr = err
	}
	return track.Track{}, lastErr
}

// Expand lists the entries of a playlist locator.
func (c *Chain) Expand(ctx context.Context, locator string) (*Collection, error) {
	kind := Classify(locator)
	lastErr := errors.Wrapf(ErrUnsupported, "no backend can expand %s locator", kind)
	for _, b := range c.backends {
		ex, ok := b.(Expander)
		if !ok || !b.Supports(kind) {
			continue
		}
		col, err := ex.Expand(ctx, locator)
		if err == nil {
			return col, nil
		}
		zlog.Warn().Msgf("media: expand failed, trying next: backend=%s error=%v", b.Name(), err)
		lastErr = err
	}
	return nil, lastErr
}

// Search returns candidates for free text from the first backend able to search.
func (c *Chain) Search(ctx context.Context, query string, limit int) ([]Entry, error) {
	lastErr := errors.Wrap(ErrUnsupported, "no backend can search")
	for _, b := range c.backends {
		s, ok := b.(Searcher)
		if !ok {
			continue
		}
		entries, err := s.Search(ctx, query, limit)
		if err == nil {
			return entries, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
