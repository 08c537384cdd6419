package operations

import (
	"time"

	"github.com/kebairia/digibankup/internal/config"
	"github.com/kebairia/digibankup/internal/generation"
	"github.com/kebairia/digibankup/internal/logger"
	"github.com/kebairia/digibankup/internal/producer"
	"github.com/kebairia/digibankup/internal/state"
)

// OperationManager drives a backup run against one backups root.
type OperationManager struct {
	cfg       config.Config
	loc       *time.Location
	tracker   *state.Tracker
	rotator   *generation.Rotator
	producers []producer.Producer
	log       logger.Logger
	now       func() time.Time
}

// Option overrides parts of an OperationManager, mostly for tests.
type Option func(*OperationManager)

// WithProducers replaces the producers derived from the configuration.
func WithProducers(producers ...producer.Producer) Option {
	return func(om *OperationManager) {
		om.producers = producers
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(om *OperationManager) {
		if now != nil {
			om.now = now
		}
	}
}

// NewOperationManager layers the per-run overrides on top of cfg, validates
// the result and wires the tracker, rotator and producers for a run.
func NewOperationManager(
	cfg config.Config,
	flags config.FlagOverrides,
	log logger.Logger,
	opts ...Option,
) (*OperationManager, error) {
	cfg.ApplyOverrides(flags)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	om := &OperationManager{
		cfg:       cfg,
		loc:       loc,
		tracker:   state.NewTracker(cfg.Paths.Info, cfg.DefaultInfo.LastBackupAt, log),
		rotator:   generation.NewRotator(cfg.Paths.Backups, cfg.Settings.BackupCount, log),
		producers: producer.InitProducers(cfg, log),
		log:       log,
		now:       time.Now,
	}
	if !cfg.Perform.Any() {
		log.Warn("no backup components enabled, the backup will be empty")
	}
	for _, opt := range opts {
		opt(om)
	}
	return om, nil
}

// Config returns the effective configuration of the run.
func (om *OperationManager) Config() config.Config {
	return om.cfg
}
