package pipeline

import (
	"fmt"

	"github.com/keagan/steeltrim/internal/config"
	"github.com/keagan/steeltrim/internal/detect"
	"github.com/keagan/steeltrim/internal/discovery"
	"github.com/keagan/steeltrim/internal/ffmpeg"
	"github.com/keagan/steeltrim/internal/ledger"
	"github.com/keagan/steeltrim/internal/metrics"
	"github.com/rs/zerolog"
)

// New assembles a batch from configuration: ffmpeg executor, classifier,
// sampler, planner, transcoder and scanner. The ledger stays owned by the
// caller. m may be nil.
func New(logger zerolog.Logger, cfg *config.Config, l ledger.Ledger, m *metrics.Metrics) (*Batch, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	// Initialize ffmpeg executor
	ffmpegExec, err := ffmpeg.New(logger, ffmpeg.Options{
		FFmpegPath:  cfg.FFmpeg.BinaryPath,
		FFprobePath: cfg.FFmpeg.ProbePath,
		Threads:     cfg.FFmpeg.Threads,
		Encode: ffmpeg.EncodeOptions{
			VideoCodec: cfg.FFmpeg.VideoCodec,
			CodecTag:   cfg.FFmpeg.CodecTag,
			Quality:    cfg.FFmpeg.Quality,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ffmpeg: %w", err)
	}

	sampler := detect.NewSampler(logger, Classifier(cfg.Detection))
	planner := NewPlanner(logger, sampler, cfg.Chunking.ProbeSeconds, cfg.Chunking.SkipSeconds, m)
	transcoder := NewFFmpegTranscoder(logger, planner, ffmpegExec)
	scanner := discovery.NewScanner(logger, cfg.Extensions)

	return NewBatch(logger, BatchOptions{
		SourceRoot: cfg.SourceRoot,
		DestRoot:   cfg.DestRoot,
	}, scanner, l, transcoder, m), nil
}

// Classifier builds the frame classifier described by d.
func Classifier(d config.DetectionConfig) detect.Classifier {
	return detect.Classifier{
		GrayThreshold:       uint8(d.GrayThreshold),
		SaturationThreshold: uint8(d.SaturationThreshold),
		CoverageFraction:    d.CoverageFraction,
		AnalysisWidth:       uint(d.AnalysisWidth),
	}
}
