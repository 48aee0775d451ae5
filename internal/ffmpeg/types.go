package ffmpeg

import "time"

// VideoInfo contains metadata about a video file
type VideoInfo struct {
	FilePath   string
	Duration   time.Duration
	Width      int
	Height     int
	FPS        float64 // exact stream rate, used to convert frame indexes to timestamps
	FrameRate  int     // FPS truncated; the unit every frame-range computation uses
	FrameCount int
	Rotation   int // display rotation in degrees; frames are decoded unrotated
	Bitrate    int64
	VideoCodec string
	HasAudio   bool
	AudioCodec string
}

// EncodeOptions selects the codec written by Encoder.
type EncodeOptions struct {
	VideoCodec string
	CodecTag   string
	Quality    int // -q:v, 0 leaves the encoder default
}

// Default encoding settings. mpeg4 tagged mp4v mirrors the classic MP4V fourcc.
const (
	DefaultVideoCodec = "mpeg4"
	DefaultCodecTag   = "mp4v"
	DefaultQuality    = 3
)

// bytesPerPixel of the rgba raw frames exchanged with ffmpeg.
const bytesPerPixel = 4
