package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"
	_ "time/tzdata" // settings.timezone must resolve on hosts without zoneinfo

	"github.com/go-viper/mapstructure/v2"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// ErrLoadConfig indicates a failure to read or parse the YAML configuration.
var ErrLoadConfig = errors.New("config load failed")

// ErrValidateConfig indicates that the loaded configuration is invalid.
var ErrValidateConfig = errors.New("configuration validation failed")

// EnvPrefix prefixes environment variables overriding configuration keys,
// e.g. DIGIBANKUP_SETTINGS_BACKUP_COUNT.
const EnvPrefix = "DIGIBANKUP"

// DefaultConfigName is looked up in the home directory when no file is given.
const DefaultConfigName = ".digibankup"

// Config represents the top-level YAML configuration file.
type Config struct {
	Paths       PathsConfig       `mapstructure:"paths"        yaml:"paths"`
	Mount       MountConfig       `mapstructure:"mount"        yaml:"mount"`
	Subpaths    SubpathsConfig    `mapstructure:"subpaths"     yaml:"subpaths"`
	Settings    SettingsConfig    `mapstructure:"settings"     yaml:"settings"`
	Perform     Backupflags       `mapstructure:"perform"      yaml:"perform"`
	DefaultInfo DefaultInfoConfig `mapstructure:"default_info" yaml:"default_info"`
	SnipeIT     SnipeITConfig     `mapstructure:"snipe_it"     yaml:"snipe_it"`
}

// PathsConfig holds the on-disk locations used by a run.
type PathsConfig struct {
	Backups     string `mapstructure:"backups"     yaml:"backups"`
	Info        string `mapstructure:"info"        yaml:"info"`
	Log         string `mapstructure:"log"         yaml:"log"`
	FogSettings string `mapstructure:"fogsettings" yaml:"fogsettings"`
	FogSnapins  string `mapstructure:"fog_snapins" yaml:"fog_snapins"`
}

// MountConfig describes the network share holding the backups root.
type MountConfig struct {
	Enabled   bool   `mapstructure:"enabled"    yaml:"enabled"`
	Type      string `mapstructure:"type"       yaml:"type"`
	Point     string `mapstructure:"point"      yaml:"point"`
	ServerIP  string `mapstructure:"server_ip"  yaml:"server_ip"`
	ServerDir string `mapstructure:"server_dir" yaml:"server_dir"`
}

// SubpathsConfig holds the location of each sub-backup relative to a generation.
type SubpathsConfig struct {
	FogDB      string `mapstructure:"fog_db"      yaml:"fog_db"`
	FogImages  string `mapstructure:"fog_images"  yaml:"fog_images"`
	FogSnapins string `mapstructure:"fog_snapins" yaml:"fog_snapins"`
	FogReports string `mapstructure:"fog_reports" yaml:"fog_reports"`
	Snipeit    string `mapstructure:"snipeit"     yaml:"snipeit"`
}

// SettingsConfig contains global backup options.
type SettingsConfig struct {
	BackupCount        int           `mapstructure:"backup_count"         yaml:"backup_count"`
	Timezone           string        `mapstructure:"timezone"             yaml:"timezone"`
	BackupInterval     int           `mapstructure:"backup_interval"      yaml:"backup_interval"`
	LoggingMinFilesize int64         `mapstructure:"logging_min_filesize" yaml:"logging_min_filesize"`
	Log                bool          `mapstructure:"log"                  yaml:"log"`
	CheckDate          bool          `mapstructure:"check_date"           yaml:"check_date"`
	CompressDB         bool          `mapstructure:"compress_db"          yaml:"compress_db"`
	ExportRetries      int           `mapstructure:"export_retries"       yaml:"export_retries"`
	ExportTimeout      time.Duration `mapstructure:"export_timeout"       yaml:"export_timeout"`
}

// DefaultInfoConfig is the state used when no usable state record exists.
type DefaultInfoConfig struct {
	LastBackupAt string `mapstructure:"last_backup_at" yaml:"last_backup_at"`
}

// SnipeITConfig holds the inventory server connection settings.
type SnipeITConfig struct {
	APIEndpoint string `mapstructure:"api_endpoint" yaml:"api_endpoint"`
	APIToken    string `mapstructure:"api_token"    yaml:"api_token,omitempty"`
}

// defaults mirrors the layout of a stock FOG server with the backups share
// mounted at /mnt/nasbackup.
var defaults = map[string]any{
	"paths.backups":     "/mnt/nasbackup/backups",
	"paths.info":        "/mnt/nasbackup/info.dat",
	"paths.log":         "/mnt/nasbackup/backup.log",
	"paths.fogsettings": "/opt/fog/.fogsettings",
	"paths.fog_snapins": "/opt/fog/snapins",

	"mount.enabled":    false,
	"mount.type":       "nfs",
	"mount.point":      "/mnt/nasbackup",
	"mount.server_ip":  "",
	"mount.server_dir": "",

	"subpaths.fog_db":      "fog/db.sql",
	"subpaths.fog_images":  "fog/images",
	"subpaths.fog_snapins": "fog/snapins",
	"subpaths.fog_reports": "fog/reports",
	"subpaths.snipeit":     "snipeit",

	"settings.backup_count":         16,
	"settings.timezone":             "Europe/Brussels",
	"settings.backup_interval":      7,
	"settings.logging_min_filesize": 8 << 20,
	"settings.log":                  true,
	"settings.check_date":           false,
	"settings.compress_db":          false,
	"settings.export_retries":       3,
	"settings.export_timeout":       "5m",

	"perform.snipeit":     false,
	"perform.fog_db":      true,
	"perform.fog_images":  false,
	"perform.fog_snapins": true,
	"perform.fog_reports": true,

	"default_info.last_backup_at": "0001-01-01T00:00:00+01:00",

	"snipe_it.api_endpoint": "",
	"snipe_it.api_token":    "",
}

// Load reads the configuration from the given YAML file using Viper on top of
// the built-in defaults. An empty path falls back to ~/.digibankup.yaml when it
// exists, and to the defaults alone otherwise.
func (c *Config) Load(path string) error {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = defaultConfigPath()
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("%w: read config %s: %v", ErrLoadConfig, path, err)
		}
	}

	hook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		expandHomeHookFunc(),
	)
	if err := v.UnmarshalExact(c, viper.DecodeHook(hook)); err != nil {
		return fmt.Errorf("%w: unmarshal config: %v", ErrLoadConfig, err)
	}
	return nil
}

// defaultConfigPath returns ~/.digibankup.yaml if it exists.
func defaultConfigPath() string {
	home, err := homedir.Dir()
	if err != nil {
		return ""
	}
	candidate := filepath.Join(home, DefaultConfigName+".yaml")
	if _, err := os.Stat(candidate); err != nil {
		return ""
	}
	return candidate
}

// expandHomeHookFunc expands a leading "~" in every decoded string.
func expandHomeHookFunc() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to.Kind() != reflect.String {
			return data, nil
		}
		s := data.(string)
		if !strings.HasPrefix(s, "~") {
			return data, nil
		}
		return homedir.Expand(s)
	}
}

// Validate checks the constraints the core relies on.
func (c *Config) Validate() error {
	if c.Paths.Backups == "" {
		return fmt.Errorf("%w: paths.backups must not be empty", ErrValidateConfig)
	}
	if c.Paths.Info == "" {
		return fmt.Errorf("%w: paths.info must not be empty", ErrValidateConfig)
	}
	// A retention of zero would delete the backup that was just produced.
	if c.Settings.BackupCount < 1 {
		return fmt.Errorf("%w: settings.backup_count must be at least 1, got %d",
			ErrValidateConfig, c.Settings.BackupCount)
	}
	if c.Settings.BackupInterval < 0 {
		return fmt.Errorf("%w: settings.backup_interval must not be negative, got %d",
			ErrValidateConfig, c.Settings.BackupInterval)
	}
	if c.Settings.ExportRetries < 0 {
		return fmt.Errorf("%w: settings.export_retries must not be negative", ErrValidateConfig)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves settings.timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Settings.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: settings.timezone %q: %v", ErrValidateConfig, c.Settings.Timezone, err)
	}
	return loc, nil
}

// Export writes the effective configuration as YAML to path.
func (c *Config) Export(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config export directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config export %s: %w", path, err)
	}
	return nil
}
