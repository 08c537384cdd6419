package producer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kebairia/digibankup/internal/logger"
)

const sampleFogSettings = `## Start of FOG Settings
## Created by the FOG Installer
ipaddress='192.168.1.10'
osid='2'
webroot='/fog/'
docroot='/var/www/'
storageLocation='/images'
interface="eth0"
blank=''

# trailing comment
`

func TestParseFogSettings(t *testing.T) {
	settings, err := ParseFogSettings(strings.NewReader(sampleFogSettings))
	require.NoError(t, err)

	assert.Equal(t, "192.168.1.10", settings["ipaddress"])
	assert.Equal(t, "/fog/", settings["webroot"])
	assert.Equal(t, "/images", settings["storageLocation"])
	assert.Equal(t, "eth0", settings["interface"])
	assert.Equal(t, "", settings["blank"])
	assert.Len(t, settings, 7)
}

func TestParseFogSettings_RejectsMalformedLine(t *testing.T) {
	_, err := ParseFogSettings(strings.NewReader("ipaddress='1.2.3.4'\nnot a declaration\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestFogSettings_Require(t *testing.T) {
	s := FogSettings{"ipaddress": "10.0.0.1", "webroot": ""}
	v, err := s.Require("ipaddress")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", v)

	_, err = s.Require("webroot")
	require.ErrorIs(t, err, ErrMissingSetting)
	_, err = s.Require("storageLocation")
	require.ErrorIs(t, err, ErrMissingSetting)
}

func TestFogSettingsSource_LoadsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".fogsettings")
	require.NoError(t, os.WriteFile(path, []byte(sampleFogSettings), 0o644))
	src := NewFogSettingsSource(path)

	first, err := src.Get()
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))

	second, err := src.Get()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestFogSettingsSource_MissingFile(t *testing.T) {
	src := NewFogSettingsSource(filepath.Join(t.TempDir(), ".fogsettings"))
	_, err := src.Get()
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestWebDirDest(t *testing.T) {
	never := func(string) bool { return false }
	always := func(string) bool { return true }

	tests := []struct {
		name     string
		settings FogSettings
		exists   func(string) bool
		want     string
	}{
		{"docroot without fog", FogSettings{"docroot": "/var/www/", "osid": "1"}, always, "/var/www/fog/"},
		{"docroot containing fog", FogSettings{"docroot": "/srv/fog", "osid": "1"}, always, "/srv/fog/"},
		{"default docroot", FogSettings{"osid": "1"}, never, "/var/www/html/fog/"},
		{"debian without html", FogSettings{"osid": "2"}, never, "/var/www/fog/"},
		{"debian with html", FogSettings{"osid": "2"}, always, "/var/www/html/fog/"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, WebDirDest(tc.settings, tc.exists, logger.Nop()))
		})
	}
}
