package config

// Backupflags determines which parts of the backup to perform.
type Backupflags struct {
	Snipeit    bool `mapstructure:"snipeit"     yaml:"snipeit"`
	FogDB      bool `mapstructure:"fog_db"      yaml:"fog_db"`
	FogImages  bool `mapstructure:"fog_images"  yaml:"fog_images"`
	FogSnapins bool `mapstructure:"fog_snapins" yaml:"fog_snapins"`
	FogReports bool `mapstructure:"fog_reports" yaml:"fog_reports"`
}

// FlagOverrides carries per-run overrides from the command line. A nil field
// inherits the configured value.
type FlagOverrides struct {
	Snipeit    *bool
	FogDB      *bool
	FogImages  *bool
	FogSnapins *bool
	FogReports *bool
	CheckDate  *bool
	Log        *bool
}

// Merge returns f with every explicitly supplied override applied.
func (f Backupflags) Merge(o FlagOverrides) Backupflags {
	apply(&f.Snipeit, o.Snipeit)
	apply(&f.FogDB, o.FogDB)
	apply(&f.FogImages, o.FogImages)
	apply(&f.FogSnapins, o.FogSnapins)
	apply(&f.FogReports, o.FogReports)
	return f
}

// Any reports whether at least one component is enabled.
func (f Backupflags) Any() bool {
	return f.Snipeit || f.FogDB || f.FogImages || f.FogSnapins || f.FogReports
}

// ApplyOverrides layers o on top of the loaded configuration, so that the
// resolved Config is the single source of truth for the run.
func (c *Config) ApplyOverrides(o FlagOverrides) {
	c.Perform = c.Perform.Merge(o)
	apply(&c.Settings.CheckDate, o.CheckDate)
	apply(&c.Settings.Log, o.Log)
}

func apply(dst *bool, override *bool) {
	if override != nil {
		*dst = *override
	}
}
