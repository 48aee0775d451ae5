package ffmpeg

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// skipIfNoFFmpeg skips the test if ffmpeg is not available
func skipIfNoFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found in PATH - install with: brew install ffmpeg")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not found in PATH - install with: brew install ffmpeg")
	}
}

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()
	skipIfNoFFmpeg(t)

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	e, err := New(logger, Options{})
	require.NoError(t, err)
	return e
}

// makeClip renders a solid gray clip with lavfi.
func makeClip(t *testing.T, dir string, seconds, rate int) string {
	t.Helper()
	out := filepath.Join(dir, "gray.mp4")
	cmd := exec.Command("ffmpeg", "-y", "-hide_banner", "-loglevel", "error",
		"-f", "lavfi", "-i", fmt.Sprintf("color=c=gray:s=64x48:r=%d:d=%d", rate, seconds),
		"-c:v", "mpeg4", out)
	output, err := cmd.CombinedOutput()
	require.NoError(t, err, string(output))
	return out
}

func TestParseProbe(t *testing.T) {
	raw := []byte(`{
  "streams": [
    {"codec_type": "audio", "codec_name": "aac"},
    {"codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080,
     "r_frame_rate": "30000/1001", "avg_frame_rate": "30000/1001", "nb_frames": "1798"}
  ],
  "format": {"duration": "60.0", "bit_rate": "5000000"}
}`)

	info, err := parseProbe(raw)
	require.NoError(t, err)

	assert.Equal(t, 1920, info.Width)
	assert.Equal(t, 1080, info.Height)
	assert.Equal(t, 29, info.FrameRate)
	assert.InDelta(t, 29.97, info.FPS, 0.01)
	assert.Equal(t, 1798, info.FrameCount)
	assert.Equal(t, 60*time.Second, info.Duration)
	assert.Equal(t, int64(5000000), info.Bitrate)
	assert.True(t, info.HasAudio)
	assert.Equal(t, "aac", info.AudioCodec)
}

func TestParseProbeDerivesFrameCount(t *testing.T) {
	// mkv streams carry no nb_frames
	raw := []byte(`{
  "streams": [{"codec_type": "video", "codec_name": "vp9", "width": 640, "height": 360,
               "r_frame_rate": "0/0", "avg_frame_rate": "25/1"}],
  "format": {"duration": "7.5"}
}`)

	info, err := parseProbe(raw)
	require.NoError(t, err)
	assert.Equal(t, 25, info.FrameRate)
	assert.Equal(t, 187, info.FrameCount)
}

func TestParseProbePrefersAverageRate(t *testing.T) {
	// variable-rate phone capture: r_frame_rate is the timebase ceiling
	raw := []byte(`{
  "streams": [{"codec_type": "video", "codec_name": "h264", "width": 1280, "height": 720,
               "r_frame_rate": "60/1", "avg_frame_rate": "30/1", "nb_frames": "300"}],
  "format": {"duration": "10.0"}
}`)

	info, err := parseProbe(raw)
	require.NoError(t, err)
	assert.Equal(t, 30, info.FrameRate)
	assert.Equal(t, 300, info.FrameCount)
}

func TestParseProbeRotation(t *testing.T) {
	tests := []struct {
		name   string
		stream string
		want   int
	}{
		{"display matrix", `"side_data_list": [{"side_data_type": "Display Matrix", "rotation": -90}]`, -90},
		{"legacy tag", `"tags": {"rotate": "180"}`, 180},
		{"none", `"tags": {}`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := []byte(`{"streams": [{"codec_type": "video", "width": 1920, "height": 1080,
				"avg_frame_rate": "30/1", "nb_frames": "30", ` + tt.stream + `}], "format": {"duration": "1"}}`)

			info, err := parseProbe(raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, info.Rotation)
			// geometry stays the coded size the decoder emits
			assert.Equal(t, 1920, info.Width)
			assert.Equal(t, 1080, info.Height)
		})
	}
}

func TestParseProbeRejects(t *testing.T) {
	_, err := parseProbe([]byte(`{"streams":[{"codec_type":"audio"}],"format":{}}`))
	assert.Error(t, err)

	_, err = parseProbe([]byte(`not json`))
	assert.Error(t, err)
}

func TestStderrTailKeepsLastLines(t *testing.T) {
	tail := newStderrTail(zerolog.Nop(), "test", 2)

	_, _ = tail.Write([]byte("one\ntwo\nthr"))
	_, _ = tail.Write([]byte("ee\nfour"))

	assert.Equal(t, "two; three; four", tail.String())
}

func TestExecutorCreation(t *testing.T) {
	e := newTestExecutor(t)
	assert.NotEmpty(t, e.ffmpegPath)
	assert.NotEmpty(t, e.ffprobePath)
	assert.Equal(t, DefaultVideoCodec, e.encode.VideoCodec)
}

func TestExecutorMissingBinary(t *testing.T) {
	_, err := New(zerolog.Nop(), Options{FFmpegPath: "definitely-not-ffmpeg-binary"})
	assert.Error(t, err)
}

func TestDecoderReadAndSeek(t *testing.T) {
	e := newTestExecutor(t)
	ctx := context.Background()
	clip := makeClip(t, t.TempDir(), 2, 10)

	dec, err := e.OpenDecoder(ctx, clip)
	require.NoError(t, err)
	defer dec.Close()

	info := dec.Info()
	assert.Equal(t, 10, info.FrameRate)
	assert.Equal(t, 20, info.FrameCount)

	count := 0
	for {
		frame, err := dec.Read()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 64, 48), frame.Bounds())
		count++
	}
	assert.Equal(t, 20, count)

	require.NoError(t, dec.Seek(15))
	count = 0
	for {
		if _, err := dec.Read(); err != nil {
			break
		}
		count++
	}
	assert.Equal(t, 5, count)

	assert.Error(t, dec.Seek(21))
}

// makeRotatedClip renders a 64x48 clip, black on the left half and white on
// the right, tagged with a 90 degree display rotation.
func makeRotatedClip(t *testing.T, dir string) string {
	t.Helper()
	plain := filepath.Join(dir, "halves.mp4")
	cmd := exec.Command("ffmpeg", "-y", "-hide_banner", "-loglevel", "error",
		"-f", "lavfi", "-i", "color=c=white:s=64x48:r=10:d=1,drawbox=x=0:y=0:w=32:h=48:color=black:t=fill",
		"-c:v", "mpeg4", "-q:v", "2", plain)
	output, err := cmd.CombinedOutput()
	require.NoError(t, err, string(output))

	rotated := filepath.Join(dir, "rotated.mp4")
	cmd = exec.Command("ffmpeg", "-y", "-hide_banner", "-loglevel", "error",
		"-display_rotation:v:0", "90", "-i", plain, "-c", "copy", rotated)
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Skipf("ffmpeg cannot tag display rotation: %s", output)
	}
	return rotated
}

func TestDecoderIgnoresDisplayRotation(t *testing.T) {
	e := newTestExecutor(t)
	clip := makeRotatedClip(t, t.TempDir())

	dec, err := e.OpenDecoder(context.Background(), clip)
	require.NoError(t, err)
	defer dec.Close()

	info := dec.Info()
	if info.Rotation == 0 {
		t.Skip("stream copy dropped the display matrix on this ffmpeg build")
	}
	assert.Equal(t, 64, info.Width)
	assert.Equal(t, 48, info.Height)

	count := 0
	for {
		frame, err := dec.Read()
		if err != nil {
			break
		}
		count++
		// rows line up: left stays dark, right stays bright on every row
		for _, y := range []int{0, 24, 47} {
			assert.Less(t, frame.RGBAAt(4, y).R, uint8(64), "row %d left", y)
			assert.Greater(t, frame.RGBAAt(60, y).R, uint8(192), "row %d right", y)
		}
	}
	assert.Equal(t, 10, count)
}

func TestOpenDecoderRejectsGarbage(t *testing.T) {
	e := newTestExecutor(t)
	path := filepath.Join(t.TempDir(), "broken.mp4")
	require.NoError(t, os.WriteFile(path, []byte("not a video"), 0o644))

	_, err := e.OpenDecoder(context.Background(), path)
	assert.Error(t, err)
}

func TestEncoderWritesFrames(t *testing.T) {
	e := newTestExecutor(t)
	ctx := context.Background()
	out := filepath.Join(t.TempDir(), "out.mp4")

	enc := e.NewEncoder(ctx, out, VideoInfo{Width: 32, Height: 24, FrameRate: 10})
	assert.False(t, enc.Started())

	frame := image.NewRGBA(image.Rect(0, 0, 32, 24))
	for i := range frame.Pix {
		frame.Pix[i] = 128
	}
	for i := 0; i < 7; i++ {
		require.NoError(t, enc.Write(frame))
	}
	require.NoError(t, enc.Close())
	assert.Equal(t, 7, enc.Written())

	info, err := e.ProbeVideo(ctx, out)
	require.NoError(t, err)
	assert.Equal(t, 32, info.Width)
	assert.Equal(t, 24, info.Height)
	assert.Equal(t, 10, info.FrameRate)
	assert.Equal(t, 7, info.FrameCount)
	assert.Equal(t, "mpeg4", info.VideoCodec)
}

func TestEncoderWithoutFramesCreatesNothing(t *testing.T) {
	e := newTestExecutor(t)
	out := filepath.Join(t.TempDir(), "empty.mp4")

	enc := e.NewEncoder(context.Background(), out, VideoInfo{Width: 32, Height: 24, FrameRate: 10})
	require.NoError(t, enc.Close())

	_, err := os.Stat(out)
	assert.True(t, os.IsNotExist(err))
}

func TestEncoderRejectsWrongGeometry(t *testing.T) {
	e := newTestExecutor(t)
	enc := e.NewEncoder(context.Background(), filepath.Join(t.TempDir(), "x.mp4"),
		VideoInfo{Width: 32, Height: 24, FrameRate: 10})

	err := enc.Write(image.NewRGBA(image.Rect(0, 0, 16, 16)))
	assert.Error(t, err)
	assert.False(t, enc.Started())
}
