package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kebairia/digibankup/internal/config"
)

func parseToggles(t *testing.T, args ...string) (config.FlagOverrides, error) {
	t.Helper()
	cmd := &cobra.Command{Use: "backup", RunE: func(*cobra.Command, []string) error { return nil }}
	addToggleFlags(cmd)
	cmd.SetArgs(args)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err != nil {
		return config.FlagOverrides{}, err
	}
	return flagOverrides(cmd)
}

func TestFlagOverrides(t *testing.T) {
	o, err := parseToggles(t)
	require.NoError(t, err)
	assert.Equal(t, config.FlagOverrides{}, o)

	o, err = parseToggles(t, "--fogdb", "--no-fogimages", "--check-date", "--no-log", "--fogreports=false")
	require.NoError(t, err)
	require.NotNil(t, o.FogDB)
	assert.True(t, *o.FogDB)
	require.NotNil(t, o.FogImages)
	assert.False(t, *o.FogImages)
	require.NotNil(t, o.CheckDate)
	assert.True(t, *o.CheckDate)
	require.NotNil(t, o.Log)
	assert.False(t, *o.Log)
	require.NotNil(t, o.FogReports)
	assert.False(t, *o.FogReports)
	assert.Nil(t, o.FogSnapins)
	assert.Nil(t, o.Snipeit)
}

func TestFlagOverrides_Conflict(t *testing.T) {
	_, err := parseToggles(t, "--fogdb", "--no-fogdb")
	require.Error(t, err)
}

func TestBackupCommand_EndToEnd(t *testing.T) {
	base := t.TempDir()
	snapins := filepath.Join(base, "snapins")
	require.NoError(t, os.MkdirAll(snapins, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(snapins, "install.ps1"), []byte("Write-Host hi"), 0o644))

	cfgPath := filepath.Join(base, "digibankup.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
paths:
  backups: `+filepath.Join(base, "backups")+`
  info: `+filepath.Join(base, "info.dat")+`
  log: `+filepath.Join(base, "backup.log")+`
  fog_snapins: `+snapins+`
settings:
  timezone: UTC
  backup_count: 2
perform:
  fog_db: false
  fog_reports: false
`), 0o644))
	exported := filepath.Join(base, "exported.yaml")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"--config", cfgPath, "backup", "--no-log", "--export-config", exported})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		ExportConfigPath = ""
		ConfigFile = ""
	})
	require.NoError(t, Execute())

	assert.FileExists(t, filepath.Join(base, "backups", "1", "fog", "snapins", "install.ps1"))
	assert.FileExists(t, filepath.Join(base, "info.dat"))
	assert.NoFileExists(t, filepath.Join(base, "backup.log"))

	var reloaded config.Config
	require.NoError(t, reloaded.Load(exported))
	assert.False(t, reloaded.Settings.Log)
	assert.Equal(t, 2, reloaded.Settings.BackupCount)
}
