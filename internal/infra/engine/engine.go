// Package engine provides the decode/render engines behind the
// playback backend.
package engine

import (
	"github.com/cockroachdb/errors"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/returnzero/radiod/internal/app/backend"
	"github.com/returnzero/radiod/internal/infra/config"
)

// NewFactoryFromConfig builds an engine factory for the configured
// engine type.
func NewFactoryFromConfig(cfg *config.Config) (backend.Factory, error) {
	switch cfg.Engine.Type {
	case "mp3":
		var settings MP3Settings
		if err := mapstructure.Decode(cfg.Engine.Settings, &settings); err != nil {
			return nil, errors.Wrap(err, "engine: invalid mp3 settings")
		}
		zlog.Debug().Msgf("engine: mp3 factory: settings=%+v", settings)
		return func() (backend.Engine, error) {
			return NewMP3(settings), nil
		}, nil

	case "null":
		return func() (backend.Engine, error) {
			return NewNull(), nil
		}, nil

	default:
		return nil, errors.Newf("engine: unsupported engine type: %s", cfg.Engine.Type)
	}
}
