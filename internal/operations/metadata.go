package operations

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"

	"github.com/kebairia/digibankup/internal/producer"
)

const MetadataFilename = "metadata.json"

// Report describes one backup run. It is written into the generation it
// produced.
type Report struct {
	StartedAt   time.Time         `json:"started_at"`
	CompletedAt time.Time         `json:"completed_at"`
	Results     []producer.Result `json:"results"`

	// Skipped is set when the run stopped because a backup was not due.
	Skipped bool `json:"-"`
	// LastBackupAt is the timestamp recorded by the run.
	LastBackupAt string `json:"-"`
}

// Failed returns the results that did not succeed or get skipped.
func (r *Report) Failed() []producer.Result {
	var failed []producer.Result
	for _, res := range r.Results {
		if res.Status == producer.StatusFailed {
			failed = append(failed, res)
		}
	}
	return failed
}

// Load reads the report stored in dirPath.
func (r *Report) Load(dirPath string) error {
	filePath := filepath.Join(dirPath, MetadataFilename)
	jsonFile, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open metadata file %q: %w", filePath, err)
	}
	defer jsonFile.Close()

	if err := json.NewDecoder(jsonFile).Decode(r); err != nil {
		return fmt.Errorf("decode metadata JSON: %w", err)
	}
	return nil
}

// Write stores the report as dirPath/metadata.json.
func (r *Report) Write(dirPath string) error {
	filePath := filepath.Join(dirPath, MetadataFilename)

	jsonFile, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("create metadata file %q: %w", filePath, err)
	}

	encoder := json.NewEncoder(jsonFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(r); err != nil {
		jsonFile.Close()
		return fmt.Errorf("encode metadata JSON: %w", err)
	}
	if err := jsonFile.Close(); err != nil {
		return fmt.Errorf("close metadata file %q: %w", filePath, err)
	}
	return nil
}
