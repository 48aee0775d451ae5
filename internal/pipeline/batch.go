package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/keagan/steeltrim/internal/discovery"
	"github.com/keagan/steeltrim/internal/ledger"
	"github.com/keagan/steeltrim/internal/logging"
	"github.com/keagan/steeltrim/internal/metrics"
	"github.com/keagan/steeltrim/pkg/util"
	"github.com/rs/zerolog"
)

// OutputExt is appended to output names that do not already end in it.
const OutputExt = ".mp4"

// BatchOptions locates the trees a batch reads from and writes to.
type BatchOptions struct {
	SourceRoot string
	DestRoot   string
}

// Batch processes every discovered file once, skipping those already in the ledger.
type Batch struct {
	logger     zerolog.Logger
	opts       BatchOptions
	scanner    *discovery.Scanner
	ledger     ledger.Ledger
	transcoder *Transcoder
	metrics    *metrics.Metrics
}

// NewBatch creates a batch. m may be nil.
func NewBatch(logger zerolog.Logger, opts BatchOptions, scanner *discovery.Scanner, l ledger.Ledger, t *Transcoder, m *metrics.Metrics) *Batch {
	return &Batch{
		logger:     logging.WithComponent(logger, "batch"),
		opts:       opts,
		scanner:    scanner,
		ledger:     l,
		transcoder: t,
		metrics:    m,
	}
}

// OutputPath maps a source-relative path to its destination, forcing an .mp4 name.
func OutputPath(destRoot, rel string) string {
	out := filepath.Join(destRoot, rel)
	if !util.HasExtFold(out, OutputExt) {
		out += OutputExt
	}
	return out
}

// Run processes the source tree. Individual file failures are logged and
// counted; only ledger persistence failures and cancellation end the run early.
func (b *Batch) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	var summary Summary

	b.logger.Info().
		Str("source", b.opts.SourceRoot).
		Str("dest", b.opts.DestRoot).
		Int("ledger_entries", b.ledger.Len()).
		Msg("starting batch")

	files, err := b.scanner.Scan(b.opts.SourceRoot, b.opts.DestRoot)
	if err != nil {
		return summary, err
	}
	summary.Discovered = len(files)

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			summary.Duration = time.Since(start)
			return summary, err
		}

		if b.ledger.Contains(f.RelPath) {
			b.logger.Debug().Str("file", f.RelPath).Msg("already processed, skipping")
			summary.Skipped++
			b.metrics.File(metrics.ResultSkipped, 0)
			continue
		}

		ok, err := b.processFile(ctx, f)
		if err != nil {
			summary.Duration = time.Since(start)
			return summary, err
		}
		if ok {
			summary.Processed++
		} else {
			summary.Failed++
		}
	}

	summary.Duration = time.Since(start)
	b.logger.Info().
		Int("discovered", summary.Discovered).
		Int("processed", summary.Processed).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Dur("elapsed", summary.Duration).
		Msgf("%d videos processed", summary.Processed)

	return summary, nil
}

// processFile reports whether f completed. A non-nil error aborts the batch.
func (b *Batch) processFile(ctx context.Context, f discovery.VideoFile) (bool, error) {
	fileStart := time.Now()
	out := OutputPath(b.opts.DestRoot, f.RelPath)
	logger := b.logger.With().Str("file", f.RelPath).Logger()

	logger.Info().Str("output", out).Msg("processing video")

	if err := util.EnsureDir(filepath.Dir(out)); err != nil {
		logger.Warn().Err(err).Msg("cannot create output directory")
		b.metrics.File(metrics.ResultFailed, time.Since(fileStart).Seconds())
		return false, nil
	}

	result, err := b.transcoder.Transcode(ctx, f.AbsPath, out)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		event := logger.Warn().Err(err)
		switch {
		case errors.Is(err, ErrOpenSource):
			event.Msg("could not open video")
		case errors.Is(err, ErrSink):
			event.Msg("could not write output")
		default:
			event.Msg("processing failed")
		}
		b.metrics.File(metrics.ResultFailed, time.Since(fileStart).Seconds())
		return false, nil
	}

	if err := b.ledger.MarkDone(f.RelPath); err != nil {
		return false, fmt.Errorf("record %s as done: %w", f.RelPath, err)
	}

	elapsed := time.Since(fileStart)
	b.metrics.File(metrics.ResultProcessed, elapsed.Seconds())

	logger.Info().
		Int("chunks", len(result.Chunks)).
		Int("kept", result.Kept()).
		Int("frames_written", result.FramesWritten).
		Bool("output_created", result.FramesWritten > 0).
		Dur("elapsed", elapsed).
		Msg("video done")
	return true, nil
}
