package ffmpeg

import (
	"context"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strconv"
)

// Encoder appends rgba frames to an mp4 file. The output file is only created
// when the first frame arrives, so an encoder that never receives a frame
// leaves nothing behind.
type Encoder struct {
	exec   *Executor
	ctx    context.Context
	path   string
	width  int
	height int
	rate   int

	cmd     *exec.Cmd
	stdin   io.WriteCloser
	tail    *stderrTail
	written int
}

// NewEncoder prepares an encoder with the geometry and integer frame rate of info.
// ffmpeg is not started until the first Write: a video whose windows all fail
// detection gets no output file instead of an empty container, and is still
// recorded as done by the batch.
func (e *Executor) NewEncoder(ctx context.Context, path string, info VideoInfo) *Encoder {
	return &Encoder{
		exec:   e,
		ctx:    ctx,
		path:   path,
		width:  info.Width,
		height: info.Height,
		rate:   info.FrameRate,
	}
}

// Started reports whether the output file has been opened.
func (enc *Encoder) Started() bool {
	return enc.cmd != nil
}

// Written is the number of frames accepted so far.
func (enc *Encoder) Written() int {
	return enc.written
}

// Write appends one frame.
func (enc *Encoder) Write(img *image.RGBA) error {
	b := img.Bounds()
	if b.Dx() != enc.width || b.Dy() != enc.height {
		return fmt.Errorf("frame is %dx%d, encoder expects %dx%d", b.Dx(), b.Dy(), enc.width, enc.height)
	}

	if enc.cmd == nil {
		if err := enc.start(); err != nil {
			return err
		}
	}

	rowLen := enc.width * bytesPerPixel
	if img.Stride == rowLen && img.Rect.Min == (image.Point{}) {
		if _, err := enc.stdin.Write(img.Pix[:rowLen*enc.height]); err != nil {
			return enc.writeErr(err)
		}
	} else {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			off := img.PixOffset(b.Min.X, y)
			if _, err := enc.stdin.Write(img.Pix[off : off+rowLen]); err != nil {
				return enc.writeErr(err)
			}
		}
	}

	enc.written++
	return nil
}

// Close flushes and finalizes the container.
func (enc *Encoder) Close() error {
	if enc.cmd == nil {
		return nil
	}
	cmd, tail := enc.cmd, enc.tail
	enc.cmd = nil

	_ = enc.stdin.Close()
	if err := cmd.Wait(); err != nil {
		if enc.ctx.Err() != nil {
			return enc.ctx.Err()
		}
		return fmt.Errorf("ffmpeg encoder failed: %w: %s", err, tail.String())
	}

	enc.exec.logger.Debug().
		Str("output", enc.path).
		Int("frames", enc.written).
		Msg("encoder finished")
	return nil
}

func (enc *Encoder) writeErr(err error) error {
	return fmt.Errorf("write frame %d to %s: %w", enc.written, enc.path, err)
}

func (enc *Encoder) start() error {
	opts := enc.exec.encode
	args := []string{
		"-y",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", enc.width, enc.height),
		"-framerate", strconv.Itoa(enc.rate),
		"-i", "pipe:0",
		"-an",
		"-c:v", opts.VideoCodec,
	}
	if opts.CodecTag != "" {
		args = append(args, "-tag:v", opts.CodecTag)
	}
	if opts.Quality > 0 {
		args = append(args, "-q:v", strconv.Itoa(opts.Quality))
	}
	args = append(args, "-pix_fmt", "yuv420p", enc.path)

	cmd, tail := enc.exec.command(enc.ctx, "encode", args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg encoder: %w", err)
	}

	enc.cmd = cmd
	enc.stdin = stdin
	enc.tail = tail
	return nil
}
