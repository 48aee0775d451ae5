package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.File(ResultProcessed, 2.5)
	m.File(ResultProcessed, 1)
	m.File(ResultSkipped, 0)
	m.Chunk(true, 120, 120)
	m.Chunk(false, 120, 0)
	m.Chunk(false, 30, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FilesTotal.WithLabelValues(ResultProcessed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FilesTotal.WithLabelValues(ResultSkipped)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChunksTotal.WithLabelValues(VerdictKept)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ChunksTotal.WithLabelValues(VerdictDropped)))
	assert.Equal(t, 270.0, testutil.ToFloat64(m.FramesClassifiedTotal))
	assert.Equal(t, 120.0, testutil.ToFloat64(m.FramesWrittenTotal))
	assert.Equal(t, 1, testutil.CollectAndCount(m.FileDuration))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.File(ResultFailed, 1)
		m.Chunk(true, 1, 1)
	})
}

func TestSeparateRegistries(t *testing.T) {
	a, b := New(), New()
	a.File(ResultFailed, 1)
	assert.Equal(t, 0.0, testutil.ToFloat64(b.FilesTotal.WithLabelValues(ResultFailed)))
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.File(ResultProcessed, 3)

	path := filepath.Join(t.TempDir(), "steeltrim.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `steeltrim_files_total{result="processed"} 1`)
	assert.Contains(t, string(data), "steeltrim_file_duration_seconds_count 1")
}
