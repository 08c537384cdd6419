package producer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/kebairia/digibankup/internal/logger"
)

const (
	NameFogDB = "fog_db"

	exportPath = "management/export.php"
)

// ErrExportStatus is returned when the export endpoint answers with a non-2xx status.
var ErrExportStatus = errors.New("unexpected export status")

// FogDBOption lets you override default settings on a FogDB.
type FogDBOption func(*FogDB)

// FogDB exports the FOG server's SQL database through its web interface.
type FogDB struct {
	Settings *FogSettingsSource
	Subpath  string
	Client   *http.Client
	Retries  int
	Timeout  time.Duration
	Compress bool
	Logger   logger.Logger

	newBackOff func() backoff.BackOff
}

// NewFogDB returns a FogDB reading the server address from settings.
func NewFogDB(settings *FogSettingsSource, subpath string, log logger.Logger, opts ...FogDBOption) *FogDB {
	f := &FogDB{
		Settings: settings,
		Subpath:  subpath,
		Client:   &http.Client{},
		Retries:  3,
		Timeout:  5 * time.Minute,
		Logger:   log,
		newBackOff: func() backoff.BackOff {
			// Only Retries bounds the attempts, however long each one takes.
			return backoff.NewExponentialBackOff(backoff.WithMaxElapsedTime(0))
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// WithFogDBClient overrides the HTTP client.
func WithFogDBClient(client *http.Client) FogDBOption {
	return func(f *FogDB) {
		if client != nil {
			f.Client = client
		}
	}
}

// WithFogDBRetries sets how many times a failed export is retried.
func WithFogDBRetries(retries int) FogDBOption {
	return func(f *FogDB) {
		if retries >= 0 {
			f.Retries = retries
		}
	}
}

// WithFogDBTimeout bounds each export attempt.
func WithFogDBTimeout(timeout time.Duration) FogDBOption {
	return func(f *FogDB) {
		if timeout > 0 {
			f.Timeout = timeout
		}
	}
}

// WithFogDBCompress enables zstd compression of the export.
func WithFogDBCompress(compress bool) FogDBOption {
	return func(f *FogDB) {
		f.Compress = compress
	}
}

// WithFogDBBackOff overrides the retry schedule.
func WithFogDBBackOff(newBackOff func() backoff.BackOff) FogDBOption {
	return func(f *FogDB) {
		if newBackOff != nil {
			f.newBackOff = newBackOff
		}
	}
}

func (f *FogDB) Name() string {
	return NameFogDB
}

func (f *FogDB) Destination() Destination {
	return Destination{Subpath: f.Subpath}
}

// ArtifactPath is dest, or the compressed file next to it.
func (f *FogDB) ArtifactPath(dest string) string {
	if f.Compress {
		return dest + ".zst"
	}
	return dest
}

// ExportURL builds the SQL export endpoint from .fogsettings.
func ExportURL(settings FogSettings) (string, error) {
	host, err := settings.Require("ipaddress")
	if err != nil {
		return "", err
	}
	u := url.URL{
		Scheme:   "http",
		Host:     host,
		Path:     path.Join("/", settings["webroot"], exportPath),
		RawQuery: "type=sql",
	}
	return u.String(), nil
}

// Produce downloads the SQL export to dest, retrying transient failures.
func (f *FogDB) Produce(ctx context.Context, dest string) error {
	settings, err := f.Settings.Get()
	if err != nil {
		return err
	}
	endpoint, err := ExportURL(settings)
	if err != nil {
		return err
	}

	b := backoff.WithContext(backoff.WithMaxRetries(f.newBackOff(), uint64(f.Retries)), ctx)
	err = backoff.RetryNotify(
		func() error { return f.export(ctx, endpoint, dest) },
		b,
		func(err error, wait time.Duration) {
			f.Logger.Warn("database export failed, retrying",
				"url", endpoint,
				"error", err.Error(),
				"retry_in", wait.String(),
			)
		},
	)
	if err != nil {
		return fmt.Errorf("export %s: %w", endpoint, err)
	}
	f.Logger.Info("FOG Project SQL database written", "path", dest)

	if f.Compress {
		compressed, err := CompressZstd(dest)
		if err != nil {
			return fmt.Errorf("compress export: %w", err)
		}
		f.Logger.Info("FOG Project SQL database compressed", "path", compressed)
	}
	return nil
}

// export performs a single attempt. Client errors are permanent.
func (f *FogDB) export(ctx context.Context, endpoint, dest string) error {
	ctx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()

	form := url.Values{"nojson": {"1"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := f.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := fmt.Errorf("%w: %s", ErrExportStatus, resp.Status)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return backoff.Permanent(err)
		}
		return err
	}
	return writeStream(dest, resp.Body)
}

// writeStream copies r into a temporary file next to dest and renames it into
// place, so dest never holds a truncated export.
func writeStream(dest string, r io.Reader) error {
	dir := filepath.Dir(dest)
	out, err := os.CreateTemp(dir, "digibankup-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file in %s: %w", dir, err)
	}
	defer os.Remove(out.Name())

	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("failed to write %s: %w", out.Name(), err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", out.Name(), err)
	}
	return os.Rename(out.Name(), dest)
}
