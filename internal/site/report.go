// internal/site/report.go
package site

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/afero"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Stats summarizes one build pass.
type Stats struct {
	Pages        int           `json:"pages"`
	Assets       int           `json:"assets"`
	TrackedPaths int           `json:"tracked_paths"`
	Duration     time.Duration `json:"duration_ns"`
}

// Report is the JSON document written by `jen build --report`.
type Report struct {
	SessionID   string    `json:"session_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Stats       Stats     `json:"stats"`
}

// WriteReport marshals a build report for the given stats to path.
func WriteReport(fs afero.Fs, path string, stats Stats) error {
	report := Report{
		SessionID:   uuid.NewString(),
		GeneratedAt: time.Now().UTC(),
		Stats:       stats,
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal build report: %w", err)
	}
	if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
		return fmt.Errorf("write build report: %w", err)
	}
	return nil
}
