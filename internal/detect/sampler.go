package detect

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/keagan/steeltrim/internal/logging"
	"github.com/rs/zerolog"
)

// FrameReader is the part of a video source the sampler needs.
type FrameReader interface {
	Seek(frame int) error
	Read() (*image.RGBA, error)
}

// Verdict is the outcome of sampling one window.
type Verdict struct {
	Planned  int // windowSeconds * frameRate
	Checked  int // frames actually read
	Detected int // frames the classifier accepted
	Passed   bool
}

// Sampler runs the classifier across a window and takes a strict majority vote.
type Sampler struct {
	Classifier Classifier
	logger     zerolog.Logger
}

// NewSampler creates a sampler using classifier.
func NewSampler(logger zerolog.Logger, classifier Classifier) *Sampler {
	return &Sampler{
		Classifier: classifier,
		logger:     logging.WithComponent(logger, "sampler"),
	}
}

// WindowPasses seeks src to start and classifies up to windowSeconds*frameRate
// frames. The window passes when more than half of the planned frames match;
// frames missing at end of stream count against it. The source is left
// wherever reading stopped.
func (s *Sampler) WindowPasses(ctx context.Context, src FrameReader, start, frameRate, windowSeconds int) (Verdict, error) {
	v := Verdict{Planned: windowSeconds * frameRate}

	if err := src.Seek(start); err != nil {
		return v, fmt.Errorf("seek to frame %d: %w", start, err)
	}

	for v.Checked < v.Planned {
		if err := ctx.Err(); err != nil {
			return v, err
		}
		frame, err := src.Read()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Debug().Err(err).Int("frame", start+v.Checked).Msg("read failed, treating as end of stream")
			}
			break
		}
		v.Checked++
		if s.Classifier.Classify(frame) {
			v.Detected++
		}
	}

	v.Passed = v.Detected > v.Planned/2
	return v, nil
}
