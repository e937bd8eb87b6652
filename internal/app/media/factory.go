package media

import (
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/foldatunez/internal/infra/config"
)

// Deps are the clients backends are built on. Catalog may be nil when no
// Spotify backend is configured.
type Deps struct {
	Downloader Downloader
	Catalog    Catalog
}

// NewChainFromConfig creates a backend chain from configuration, in the configured order.
func NewChainFromConfig(cfg *config.Config, deps Deps) (*Chain, error) {
	if len(cfg.Media.Backends) == 0 {
		return nil, errors.New("no media backends configured")
	}

	var remote *RemoteBackend
	getRemote := func() (*RemoteBackend, error) {
		if remote != nil {
			return remote, nil
		}
		if deps.Downloader == nil {
			return nil, errors.New("remote backend requires a downloader")
		}
		r, err := NewRemoteBackend(deps.Downloader, settingsFor(cfg, "remote"))
		if err != nil {
			return nil, err
		}
		remote = r
		return r, nil
	}

	var backends []Backend
	for i, bcfg := range cfg.Media.Backends {
		var backend Backend
		var err error
		zlog.Debug().Msgf("creating media backend: index=%d type=%s settings=%+v", i+1, bcfg.Type, bcfg.Settings)
		switch bcfg.Type {
		case "local":
			backend, err = NewLocalBackend(bcfg.Settings)

		case "remote":
			backend, err = getRemote()

		case "spotify":
			if deps.Catalog == nil {
				err = errors.New("spotify backend requires a spotify client")
				break
			}
			var r *RemoteBackend
			if r, err = getRemote(); err == nil {
				backend, err = NewSpotifyBackend(deps.Catalog, r, bcfg.Settings)
			}

		default:
			return nil, errors.Newf("unsupported backend type: %s (backend index %d)", bcfg.Type, i)
		}

		if err != nil {
			return nil, errors.Wrapf(err, "failed to create backend (index %d, type %s)", i, bcfg.Type)
		}

		backends = append(backends, backend)
		zlog.Info().Msgf("registered media backend: index=%d type=%s", i+1, bcfg.Type)
	}

	return NewChain(backends...), nil
}

// settingsFor returns the settings of the first backend of type typ.
func settingsFor(cfg *config.Config, typ string) map[string]any {
	for _, b := range cfg.Media.Backends {
		if b.Type == typ {
			return b.Settings
		}
	}
	return nil
}
