package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kebairia/digibankup/internal/config"
	"github.com/kebairia/digibankup/internal/logger"
	"github.com/kebairia/digibankup/internal/mount"
	"github.com/kebairia/digibankup/internal/operations"
)

// ExportConfigPath is where the effective configuration is written, if set.
var ExportConfigPath string

// toggles are the --x/--no-x pairs of the backup command.
var toggles = []struct {
	name  string
	usage string
	set   func(*config.FlagOverrides, *bool)
}{
	{"check-date", "skip the backup when one was performed within the interval",
		func(o *config.FlagOverrides, v *bool) { o.CheckDate = v }},
	{"log", "log the steps of the backup",
		func(o *config.FlagOverrides, v *bool) { o.Log = v }},
	{"snipeit", "back up the Snipe-IT server (not supported by the server)",
		func(o *config.FlagOverrides, v *bool) { o.Snipeit = v }},
	{"fogdb", "back up the FOG Project database",
		func(o *config.FlagOverrides, v *bool) { o.FogDB = v }},
	{"fogimages", "back up the FOG Project images (very slow)",
		func(o *config.FlagOverrides, v *bool) { o.FogImages = v }},
	{"fogsnapins", "back up the FOG Project snapins",
		func(o *config.FlagOverrides, v *bool) { o.FogSnapins = v }},
	{"fogreports", "back up the FOG Project reports",
		func(o *config.FlagOverrides, v *bool) { o.FogReports = v }},
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Perform a backup as per config",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		overrides, err := flagOverrides(cmd)
		if err != nil {
			return err
		}

		effective := cfg
		effective.ApplyOverrides(overrides)
		if err := effective.Validate(); err != nil {
			return err
		}
		if ExportConfigPath != "" {
			if err := effective.Export(ExportConfigPath); err != nil {
				return err
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log := newLogger(effective)
		defer log.Close()

		if cfg.Mount.Enabled {
			unmount, err := mountShare(ctx, cfg.Mount, mountLogger(effective, log))
			if err != nil {
				return err
			}
			defer func() {
				// A log file on the share keeps it busy.
				_ = log.Close()
				unmount()
			}()
		}

		log.Info("digibankup " + Version)

		om, err := operations.NewOperationManager(cfg, overrides, log)
		if err != nil {
			return err
		}
		report, err := om.Run(ctx)
		if err != nil {
			log.Error("backup failed", "error", err.Error())
			return err
		}
		if report.Skipped {
			fmt.Fprintf(cmd.OutOrStdout(), "backup skipped, last backup at %s\n", report.LastBackupAt)
			return nil
		}
		if failed := report.Failed(); len(failed) > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "backup completed with %d failed component(s)\n", len(failed))
		}
		return nil
	},
}

func init() {
	backupCmd.Flags().
		StringVar(&ExportConfigPath, "export-config", "", "path at which to export the effective configuration")
	addToggleFlags(backupCmd)
}

// addToggleFlags registers every toggle and its negated form on cmd.
func addToggleFlags(cmd *cobra.Command) {
	for _, t := range toggles {
		cmd.Flags().Bool(t.name, false, t.usage)
		cmd.Flags().Bool("no-"+t.name, false, "do not "+t.usage)
		cmd.MarkFlagsMutuallyExclusive(t.name, "no-"+t.name)
	}
}

// flagOverrides collects the toggles given explicitly on the command line.
func flagOverrides(cmd *cobra.Command) (config.FlagOverrides, error) {
	var o config.FlagOverrides
	flags := cmd.Flags()
	for _, t := range toggles {
		name := t.name
		if !flags.Changed(name) {
			name = "no-" + t.name
			if !flags.Changed(name) {
				continue
			}
		}
		v, err := flags.GetBool(name)
		if err != nil {
			return o, err
		}
		if name != t.name {
			v = !v
		}
		t.set(&o, &v)
	}
	return o, nil
}

// mountLogger picks the logger for mount and unmount events. It is the run
// logger, unless the log file lives on the share itself: entries written
// before the mount or around the unmount would land in the directory hidden
// under the mount point, or keep the share busy, so they go to the console.
func mountLogger(cfg config.Config, runLog logger.Logger) logger.Logger {
	if cfg.Settings.Log && within(cfg.Paths.Log, cfg.Mount.Point) {
		return consoleLogger(cfg)
	}
	return runLog
}

// within reports whether path lies at or below dir.
func within(path, dir string) bool {
	if path == "" || dir == "" {
		return false
	}
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// mountShare mounts the backups share and returns a function unmounting it.
// Unmount failures are logged only.
func mountShare(ctx context.Context, cfg config.MountConfig, log logger.Logger, opts ...mount.Option) (func(), error) {
	m, err := mount.New(cfg, log, opts...)
	if err != nil {
		return nil, err
	}
	if err := m.Mount(ctx); err != nil {
		return nil, err
	}
	return func() {
		if err := m.Unmount(context.WithoutCancel(ctx)); err != nil {
			log.Error("unmount failed", "point", cfg.Point, "error", err.Error())
		}
	}, nil
}
