package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// File results.
const (
	ResultProcessed = "processed"
	ResultFailed    = "failed"
	ResultSkipped   = "skipped"
)

// Chunk verdicts.
const (
	VerdictKept    = "kept"
	VerdictDropped = "dropped"
)

// Metrics holds the collectors of one batch run. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	FilesTotal            *prometheus.CounterVec
	ChunksTotal           *prometheus.CounterVec
	FramesClassifiedTotal prometheus.Counter
	FramesWrittenTotal    prometheus.Counter
	FileDuration          prometheus.Histogram
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		FilesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "steeltrim_files_total",
			Help: "Total number of input files handled, by result",
		}, []string{"result"}),
		ChunksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "steeltrim_chunks_total",
			Help: "Total number of probe windows sampled, by verdict",
		}, []string{"verdict"}),
		FramesClassifiedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "steeltrim_frames_classified_total",
			Help: "Total number of frames run through the steel classifier",
		}),
		FramesWrittenTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "steeltrim_frames_written_total",
			Help: "Total number of frames written to output videos",
		}),
		FileDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "steeltrim_file_duration_seconds",
			Help:    "Duration of processing a single input file",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		}),
	}
}

func (m *Metrics) File(result string, seconds float64) {
	if m == nil {
		return
	}
	m.FilesTotal.WithLabelValues(result).Inc()
	if result != ResultSkipped {
		m.FileDuration.Observe(seconds)
	}
}

func (m *Metrics) Chunk(kept bool, classified, written int) {
	if m == nil {
		return
	}
	verdict := VerdictDropped
	if kept {
		verdict = VerdictKept
	}
	m.ChunksTotal.WithLabelValues(verdict).Inc()
	m.FramesClassifiedTotal.Add(float64(classified))
	m.FramesWrittenTotal.Add(float64(written))
}

// WriteTextfile dumps the registry in the node-exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
