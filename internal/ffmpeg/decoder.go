package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"

	"github.com/keagan/steeltrim/pkg/util"
)

// Decoder streams rgba frames out of one video file. Seeking restarts the
// underlying ffmpeg process at the requested frame; reads are sequential.
//
// The frame returned by Read is reused by the next Read or Seek.
type Decoder struct {
	exec  *Executor
	ctx   context.Context
	path  string
	info  VideoInfo
	frame *image.RGBA

	pos    int
	cmd    *exec.Cmd
	stdout io.ReadCloser
	tail   *stderrTail
}

// OpenDecoder probes path and prepares a decoder positioned at frame 0.
// The ffmpeg process is not started until the first Read.
func (e *Executor) OpenDecoder(ctx context.Context, path string) (*Decoder, error) {
	info, err := e.ProbeVideo(ctx, path)
	if err != nil {
		return nil, err
	}
	if info.Width <= 0 || info.Height <= 0 {
		return nil, fmt.Errorf("invalid geometry %dx%d", info.Width, info.Height)
	}
	if info.FrameRate < 1 {
		return nil, fmt.Errorf("unusable frame rate %.3f", info.FPS)
	}

	return &Decoder{
		exec:  e,
		ctx:   ctx,
		path:  path,
		info:  *info,
		frame: image.NewRGBA(image.Rect(0, 0, info.Width, info.Height)),
	}, nil
}

// Info returns the probed metadata.
func (d *Decoder) Info() VideoInfo {
	return d.info
}

// Seek positions the decoder so the next Read returns frame n.
func (d *Decoder) Seek(n int) error {
	if n < 0 || n > d.info.FrameCount {
		return fmt.Errorf("seek to frame %d outside [0, %d]", n, d.info.FrameCount)
	}
	d.stop()
	d.pos = n
	return nil
}

// Read decodes the next frame. It returns io.EOF once the stream is exhausted.
func (d *Decoder) Read() (*image.RGBA, error) {
	if d.cmd == nil {
		if err := d.start(); err != nil {
			return nil, err
		}
	}

	if _, err := io.ReadFull(d.stdout, d.frame.Pix); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("decode frame %d: %w", d.pos, err)
	}
	d.pos++
	return d.frame, nil
}

// Close stops the ffmpeg process, if any.
func (d *Decoder) Close() error {
	d.stop()
	return nil
}

func (d *Decoder) start() error {
	args := make([]string, 0, 24)
	if d.pos > 0 {
		// Half a frame early so rounding never lands past the wanted frame;
		// accurate seeking then drops everything before it.
		at := (float64(d.pos) - 0.5) / d.info.FPS
		args = append(args, "-ss", util.FormatSeconds(at))
	}
	// Width and height come from the coded stream, so frames must not be
	// turned by display rotation or the rows would no longer line up.
	args = append(args,
		"-nostdin",
		"-noautorotate",
		"-i", d.path,
		"-map", "0:v:0",
		"-an", "-sn", "-dn",
		"-fps_mode", "passthrough",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"pipe:1",
	)

	cmd, tail := d.exec.command(d.ctx, "decode", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg decoder: %w", err)
	}

	d.cmd = cmd
	d.stdout = stdout
	d.tail = tail
	return nil
}

func (d *Decoder) stop() {
	if d.cmd == nil {
		return
	}
	if d.cmd.Process != nil {
		_ = d.cmd.Process.Kill()
	}
	_ = d.cmd.Wait()
	if msg := d.tail.String(); msg != "" {
		d.exec.logger.Debug().Str("input", d.path).Str("stderr", msg).Msg("decoder stopped")
	}
	d.cmd = nil
	d.stdout = nil
	d.tail = nil
}
