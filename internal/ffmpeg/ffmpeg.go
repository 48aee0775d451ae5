package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/keagan/steeltrim/internal/logging"
	"github.com/rs/zerolog"
)

// Executor locates the ffmpeg binaries and builds the decode, encode and probe processes.
type Executor struct {
	logger      zerolog.Logger
	ffmpegPath  string
	ffprobePath string
	threads     int
	encode      EncodeOptions
}

// Options configures an Executor.
type Options struct {
	FFmpegPath  string
	FFprobePath string
	Threads     int
	Encode      EncodeOptions
}

// New creates a new ffmpeg executor
func New(logger zerolog.Logger, opts Options) (*Executor, error) {
	ffmpegName := opts.FFmpegPath
	if ffmpegName == "" {
		ffmpegName = "ffmpeg"
	}
	ffprobeName := opts.FFprobePath
	if ffprobeName == "" {
		ffprobeName = "ffprobe"
	}

	ffmpegPath, err := exec.LookPath(ffmpegName)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}

	ffprobePath, err := exec.LookPath(ffprobeName)
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}

	encode := opts.Encode
	if encode.VideoCodec == "" {
		encode.VideoCodec = DefaultVideoCodec
	}

	return &Executor{
		logger:      logging.WithComponent(logger, "ffmpeg"),
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		threads:     opts.Threads,
		encode:      encode,
	}, nil
}

// command builds an ffmpeg invocation with the shared leading flags.
func (e *Executor) command(ctx context.Context, stage string, args ...string) (*exec.Cmd, *stderrTail) {
	baseArgs := []string{"-hide_banner", "-nostats", "-loglevel", "error"}
	if e.threads > 0 {
		baseArgs = append(baseArgs, "-threads", fmt.Sprintf("%d", e.threads))
	}
	full := append(baseArgs, args...)

	e.logger.Debug().
		Str("cmd", "ffmpeg").
		Str("stage", stage).
		Strs("args", full).
		Msg("executing ffmpeg")

	tail := newStderrTail(e.logger, stage, 20)
	cmd := exec.CommandContext(ctx, e.ffmpegPath, full...)
	cmd.Stderr = tail
	return cmd, tail
}

// stderrTail keeps the last lines ffmpeg wrote to stderr so failures can be reported with context.
type stderrTail struct {
	mu     sync.Mutex
	logger zerolog.Logger
	stage  string
	max    int
	lines  []string
	buf    bytes.Buffer
}

func newStderrTail(logger zerolog.Logger, stage string, max int) *stderrTail {
	return &stderrTail{logger: logger, stage: stage, max: max}
}

func (t *stderrTail) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf.Write(p)
	for {
		line, err := t.buf.ReadString('\n')
		if err != nil {
			// incomplete line stays buffered
			t.buf.Reset()
			t.buf.WriteString(line)
			break
		}
		t.push(strings.TrimRight(line, "\r\n"))
	}
	return len(p), nil
}

func (t *stderrTail) push(line string) {
	if line == "" {
		return
	}
	t.logger.Debug().Str("ffmpeg", line).Msg(t.stage)
	t.lines = append(t.lines, line)
	if len(t.lines) > t.max {
		t.lines = t.lines[len(t.lines)-t.max:]
	}
}

func (t *stderrTail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	lines := t.lines
	if rest := strings.TrimSpace(t.buf.String()); rest != "" {
		lines = append(append([]string(nil), lines...), rest)
	}
	return strings.Join(lines, "; ")
}
