package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/keagan/steeltrim/internal/detect"
	"github.com/keagan/steeltrim/internal/logging"
	"github.com/keagan/steeltrim/internal/metrics"
	"github.com/keagan/steeltrim/pkg/util"
	"github.com/rs/zerolog"
)

// Default probe/skip cycle, in seconds.
const (
	DefaultProbeSeconds = 4
	DefaultSkipSeconds  = 6
)

// Windows lists the probe windows of a video: one every (probe+skip)*fps
// frames starting at 0, each probe*fps frames long and clipped to frameCount.
func Windows(frameCount, fps, probeSeconds, skipSeconds int) []Window {
	probe := probeSeconds * fps
	step := (probeSeconds + skipSeconds) * fps
	if frameCount <= 0 || probe <= 0 || step <= 0 {
		return nil
	}

	windows := make([]Window, 0, frameCount/step+1)
	for start := 0; start < frameCount; start += step {
		windows = append(windows, Window{
			Index: len(windows),
			Start: start,
			End:   min(start+probe, frameCount),
		})
	}
	return windows
}

// Planner walks a source in probe/skip cycles, copying the probe spans that
// pass detection to a sink.
type Planner struct {
	logger       zerolog.Logger
	sampler      *detect.Sampler
	metrics      *metrics.Metrics
	probeSeconds int
	skipSeconds  int
}

// NewPlanner creates a planner. m may be nil.
func NewPlanner(logger zerolog.Logger, sampler *detect.Sampler, probeSeconds, skipSeconds int, m *metrics.Metrics) *Planner {
	return &Planner{
		logger:       logging.WithComponent(logger, "planner"),
		sampler:      sampler,
		metrics:      m,
		probeSeconds: probeSeconds,
		skipSeconds:  skipSeconds,
	}
}

// Run samples every window of src and copies passing ones to sink.
// Sink failures are returned wrapped in ErrSink.
func (p *Planner) Run(ctx context.Context, src VideoSource, sink FrameSink) (PlanResult, error) {
	info := src.Info()
	fps := info.FrameRate
	var result PlanResult

	for _, w := range Windows(info.FrameCount, fps, p.probeSeconds, p.skipSeconds) {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		p.logger.Info().
			Int("chunk", w.Index).
			Str("at", util.FormatDuration(util.FrameTime(w.Start, fps))).
			Msgf("checking chunk %d at %d sec", w.Index, w.Start/fps)

		verdict, err := p.sampler.WindowPasses(ctx, src, w.Start, fps, p.probeSeconds)
		if err != nil {
			return result, fmt.Errorf("sample chunk %d: %w", w.Index, err)
		}

		chunk := ChunkResult{
			Window:   w,
			Passed:   verdict.Passed,
			Detected: verdict.Detected,
			Checked:  verdict.Checked,
		}

		if verdict.Passed {
			written, err := p.copyWindow(ctx, src, sink, w.Start, p.probeSeconds*fps)
			chunk.Written = written
			result.FramesWritten += written
			if err != nil {
				result.Chunks = append(result.Chunks, chunk)
				return result, err
			}
		}

		p.logger.Debug().
			Int("chunk", w.Index).
			Bool("kept", chunk.Passed).
			Int("detected", chunk.Detected).
			Int("checked", chunk.Checked).
			Int("written", chunk.Written).
			Msg(chunkOutcome(chunk.Passed))

		p.metrics.Chunk(chunk.Passed, chunk.Checked, chunk.Written)
		result.Chunks = append(result.Chunks, chunk)
	}

	return result, nil
}

// copyWindow re-seeks to start and forwards up to n frames, fewer at end of stream.
func (p *Planner) copyWindow(ctx context.Context, src VideoSource, sink FrameSink, start, n int) (int, error) {
	if err := src.Seek(start); err != nil {
		return 0, fmt.Errorf("seek to frame %d: %w", start, err)
	}

	written := 0
	for written < n {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		frame, err := src.Read()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				p.logger.Debug().Err(err).Int("frame", start+written).Msg("read failed, treating as end of stream")
			}
			break
		}
		if err := sink.Write(frame); err != nil {
			return written, fmt.Errorf("%w: frame %d: %w", ErrSink, start+written, err)
		}
		written++
	}
	return written, nil
}

func chunkOutcome(kept bool) string {
	if kept {
		return "chunk kept"
	}
	return "chunk skipped"
}
