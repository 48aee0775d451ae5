package pipeline

import (
	"errors"
	"image"
	"time"

	"github.com/keagan/steeltrim/internal/ffmpeg"
)

// Per-file failure classes. Both are recoverable at batch level.
var (
	ErrOpenSource = errors.New("open source")
	ErrSink       = errors.New("write output")
)

// VideoSource is a seekable sequential frame reader.
type VideoSource interface {
	Info() ffmpeg.VideoInfo
	// Seek positions the source so the next Read returns frame n, 0 <= n <= FrameCount.
	Seek(n int) error
	// Read returns the next frame or io.EOF. The frame is only valid until the next Read or Seek.
	Read() (*image.RGBA, error)
	Close() error
}

// FrameSink appends frames to an output video in submission order.
type FrameSink interface {
	Write(frame *image.RGBA) error
	Close() error
}

// Window is the half-open frame span [Start, End) sampled by one probe.
type Window struct {
	Index int
	Start int
	End   int
}

// ChunkResult describes what happened to one window.
type ChunkResult struct {
	Window   Window
	Passed   bool
	Detected int
	Checked  int
	Written  int
}

// PlanResult is the outcome of running the planner over one source.
type PlanResult struct {
	Chunks        []ChunkResult
	FramesWritten int
}

// Kept counts the windows copied to the output.
func (r PlanResult) Kept() int {
	n := 0
	for _, c := range r.Chunks {
		if c.Passed {
			n++
		}
	}
	return n
}

// Summary totals a batch run.
type Summary struct {
	Discovered int
	Processed  int
	Skipped    int
	Failed     int
	Duration   time.Duration
}
