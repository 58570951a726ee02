// internal/site/report_test.go
package site

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReport(t *testing.T) {
	fs := afero.NewMemMapFs()
	stats := Stats{Pages: 3, Assets: 7, TrackedPaths: 12, Duration: 250 * time.Millisecond}

	require.NoError(t, WriteReport(fs, "/out/report.json", stats))

	data, err := afero.ReadFile(fs, "/out/report.json")
	require.NoError(t, err)

	var report Report
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, stats, report.Stats)
	assert.False(t, report.GeneratedAt.IsZero())

	_, err = uuid.Parse(report.SessionID)
	assert.NoError(t, err, "session id is a uuid")
}
