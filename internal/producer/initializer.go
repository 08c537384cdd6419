package producer

import (
	"path/filepath"

	"github.com/kebairia/digibankup/internal/config"
	"github.com/kebairia/digibankup/internal/logger"
)

// initializer builds one producer when its flag is enabled.
type initializer struct {
	enabled func(config.Backupflags) bool
	build   func(cfg config.Config, settings *FogSettingsSource, log logger.Logger) Producer
}

// initializers is ordered: producers run in this order.
var initializers = []initializer{
	{
		enabled: func(f config.Backupflags) bool { return f.FogDB },
		build: func(cfg config.Config, settings *FogSettingsSource, log logger.Logger) Producer {
			return NewFogDB(settings, cfg.Subpaths.FogDB, log,
				WithFogDBRetries(cfg.Settings.ExportRetries),
				WithFogDBTimeout(cfg.Settings.ExportTimeout),
				WithFogDBCompress(cfg.Settings.CompressDB),
			)
		},
	},
	{
		enabled: func(f config.Backupflags) bool { return f.FogImages },
		build: func(cfg config.Config, settings *FogSettingsSource, log logger.Logger) Producer {
			source := func() (string, error) {
				s, err := settings.Get()
				if err != nil {
					return "", err
				}
				return s.Require("storageLocation")
			}
			return NewTreeCopy(NameFogImages, cfg.Subpaths.FogImages, source, cfg.Settings.LoggingMinFilesize, log)
		},
	},
	{
		enabled: func(f config.Backupflags) bool { return f.FogSnapins },
		build: func(cfg config.Config, _ *FogSettingsSource, log logger.Logger) Producer {
			return NewTreeCopy(NameFogSnapins, cfg.Subpaths.FogSnapins,
				StaticSource(cfg.Paths.FogSnapins), cfg.Settings.LoggingMinFilesize, log)
		},
	},
	{
		enabled: func(f config.Backupflags) bool { return f.FogReports },
		build: func(cfg config.Config, settings *FogSettingsSource, log logger.Logger) Producer {
			source := func() (string, error) {
				s, err := settings.Get()
				if err != nil {
					return "", err
				}
				return filepath.Join(WebDirDest(s, pathExists, log), "lib/reports"), nil
			}
			return NewTreeCopy(NameFogReports, cfg.Subpaths.FogReports, source, cfg.Settings.LoggingMinFilesize, log)
		},
	},
	{
		enabled: func(f config.Backupflags) bool { return f.Snipeit },
		build: func(cfg config.Config, _ *FogSettingsSource, log logger.Logger) Producer {
			return NewInventory(cfg.SnipeIT.APIEndpoint, cfg.Subpaths.Snipeit, log)
		},
	},
}

// InitProducers returns the producers enabled by cfg.Perform, in run order:
// database export, images, snapins, reports, inventory.
func InitProducers(cfg config.Config, log logger.Logger) []Producer {
	settings := NewFogSettingsSource(cfg.Paths.FogSettings)
	var producers []Producer
	for _, in := range initializers {
		if in.enabled(cfg.Perform) {
			producers = append(producers, in.build(cfg, settings, log))
		}
	}
	return producers
}
