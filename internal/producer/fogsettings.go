package producer

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/kebairia/digibankup/internal/logger"
)

// ErrMissingSetting is returned when .fogsettings lacks a required variable.
var ErrMissingSetting = errors.New("missing .fogsettings variable")

const defaultDocroot = "/var/www/html/"

// FogSettings holds the variables declared in a FOG server's .fogsettings.
type FogSettings map[string]string

// Require returns the value of key or ErrMissingSetting.
func (s FogSettings) Require(key string) (string, error) {
	v, ok := s[key]
	if !ok || v == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingSetting, key)
	}
	return v, nil
}

// ParseFogSettings reads variable declarations of the form key='value'.
// Blank lines and lines starting with '#' are ignored; the first and last
// character of each value (its quotes) are stripped.
func ParseFogSettings(r io.Reader) (FogSettings, error) {
	settings := make(FogSettings)
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("line %d: expected key=value, got %q", lineNo, line)
		}
		if len(value) >= 2 {
			value = value[1 : len(value)-1]
		} else {
			value = ""
		}
		settings[strings.TrimSpace(key)] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read fogsettings: %w", err)
	}
	return settings, nil
}

// LoadFogSettings parses the .fogsettings file at path.
func LoadFogSettings(path string) (FogSettings, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fogsettings %q: %w", path, err)
	}
	defer f.Close()
	settings, err := ParseFogSettings(f)
	if err != nil {
		return nil, fmt.Errorf("parse fogsettings %q: %w", path, err)
	}
	return settings, nil
}

// FogSettingsSource loads .fogsettings at most once per run, on first use.
type FogSettingsSource struct {
	path     string
	once     sync.Once
	settings FogSettings
	err      error
}

// NewFogSettingsSource returns a source reading the file at path.
func NewFogSettingsSource(path string) *FogSettingsSource {
	return &FogSettingsSource{path: path}
}

// StaticFogSettings returns a source that always yields settings.
func StaticFogSettings(settings FogSettings) *FogSettingsSource {
	s := &FogSettingsSource{settings: settings}
	s.once.Do(func() {})
	return s
}

// Get returns the parsed settings or the error of the first load.
func (s *FogSettingsSource) Get() (FogSettings, error) {
	s.once.Do(func() {
		s.settings, s.err = LoadFogSettings(s.path)
	})
	return s.settings, s.err
}

// WebDirDest determines the web root of the FOG server. exists reports
// whether a path exists on the host.
func WebDirDest(settings FogSettings, exists func(string) bool, log logger.Logger) string {
	docroot, ok := settings["docroot"]
	if !ok {
		log.Warn("no docroot in .fogsettings, falling back on hardcoded default",
			"docroot", defaultDocroot,
		)
		docroot = defaultDocroot
	}

	var webdirdest string
	if strings.Contains(docroot, "fog") {
		webdirdest = docroot + "/"
	} else {
		webdirdest = docroot + "fog/"
	}

	// Debian based installs (osid 2) without /var/www/html serve from /var/www.
	if settings["osid"] == "2" && docroot == defaultDocroot && !exists(docroot) {
		webdirdest = "/var/www/fog/"
	}
	return webdirdest
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
