package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/keagan/steeltrim/internal/ffmpeg"
	"github.com/keagan/steeltrim/internal/logging"
	"github.com/rs/zerolog"
)

// SourceOpener opens an input video.
type SourceOpener func(ctx context.Context, path string) (VideoSource, error)

// SinkFactory prepares an output matching the geometry and rate of info.
// Implementations should not create the file before the first Write.
type SinkFactory func(ctx context.Context, path string, info ffmpeg.VideoInfo) FrameSink

// Transcoder turns one input file into one trimmed output file.
type Transcoder struct {
	logger  zerolog.Logger
	planner *Planner
	open    SourceOpener
	create  SinkFactory
}

// NewTranscoder wires the planner to explicit source and sink constructors.
func NewTranscoder(logger zerolog.Logger, planner *Planner, open SourceOpener, create SinkFactory) *Transcoder {
	return &Transcoder{
		logger:  logging.WithComponent(logger, "transcoder"),
		planner: planner,
		open:    open,
		create:  create,
	}
}

// NewFFmpegTranscoder decodes and encodes through exec.
func NewFFmpegTranscoder(logger zerolog.Logger, planner *Planner, exec *ffmpeg.Executor) *Transcoder {
	open := func(ctx context.Context, path string) (VideoSource, error) {
		dec, err := exec.OpenDecoder(ctx, path)
		if err != nil {
			return nil, err
		}
		return dec, nil
	}
	create := func(ctx context.Context, path string, info ffmpeg.VideoInfo) FrameSink {
		return exec.NewEncoder(ctx, path, info)
	}
	return NewTranscoder(logger, planner, open, create)
}

// Transcode copies the passing windows of inputPath into outputPath. When
// nothing passes, no output file is created. On failure any partial output
// is removed.
func (t *Transcoder) Transcode(ctx context.Context, inputPath, outputPath string) (result PlanResult, err error) {
	src, err := t.open(ctx, inputPath)
	if err != nil {
		return result, fmt.Errorf("%w %s: %w", ErrOpenSource, inputPath, err)
	}
	defer src.Close()

	info := src.Info()
	if info.FrameRate < 1 || info.Width <= 0 || info.Height <= 0 {
		return result, fmt.Errorf("%w %s: unusable stream %dx%d at %d fps",
			ErrOpenSource, inputPath, info.Width, info.Height, info.FrameRate)
	}

	t.logger.Debug().
		Str("input", inputPath).
		Int("width", info.Width).
		Int("height", info.Height).
		Int("fps", info.FrameRate).
		Int("frames", info.FrameCount).
		Msg("source opened")

	sink := t.create(ctx, outputPath, info)
	defer func() {
		if cerr := sink.Close(); cerr != nil && err == nil {
			if ctx.Err() != nil {
				err = ctx.Err()
			} else {
				err = fmt.Errorf("%w: finalize %s: %w", ErrSink, outputPath, cerr)
			}
		}
		if err != nil {
			t.removePartial(outputPath)
		}
	}()

	return t.planner.Run(ctx, src, sink)
}

func (t *Transcoder) removePartial(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		t.logger.Warn().Err(err).Str("output", path).Msg("failed to remove partial output")
		return
	}
	t.logger.Debug().Str("output", path).Msg("partial output removed")
}
