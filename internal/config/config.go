package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type contextKey string

const configKey contextKey = "config"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "STEELTRIM_"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config holds all application configuration
type Config struct {
	// Core settings
	SourceRoot string   `yaml:"source_root" env:"SOURCE_ROOT"`
	DestRoot   string   `yaml:"dest_root" env:"DEST_ROOT"`
	Extensions []string `yaml:"extensions" env:"EXTENSIONS" envSeparator:","`

	// Detection settings
	Detection DetectionConfig `yaml:"detection" envPrefix:"DETECTION_"`

	// Probe/skip cycle
	Chunking ChunkingConfig `yaml:"chunking" envPrefix:"CHUNKING_"`

	// Completion log
	Ledger LedgerConfig `yaml:"ledger" envPrefix:"LEDGER_"`

	// FFmpeg settings
	FFmpeg FFmpegConfig `yaml:"ffmpeg" envPrefix:"FFMPEG_"`

	Metrics MetricsConfig `yaml:"metrics" envPrefix:"METRICS_"`
}

// DetectionConfig tunes the steel heuristic. Thresholds use the 8-bit HSV scale.
type DetectionConfig struct {
	GrayThreshold       int     `yaml:"gray_threshold" env:"GRAY_THRESHOLD"`
	SaturationThreshold int     `yaml:"saturation_threshold" env:"SATURATION_THRESHOLD"`
	CoverageFraction    float64 `yaml:"coverage_fraction" env:"COVERAGE_FRACTION"`
	AnalysisWidth       int     `yaml:"analysis_width" env:"ANALYSIS_WIDTH"`
}

type ChunkingConfig struct {
	ProbeSeconds int `yaml:"probe_seconds" env:"PROBE_SECONDS"`
	SkipSeconds  int `yaml:"skip_seconds" env:"SKIP_SECONDS"`
}

type LedgerConfig struct {
	Driver string `yaml:"driver" env:"DRIVER"`
	Path   string `yaml:"path" env:"PATH"`
}

type FFmpegConfig struct {
	BinaryPath string `yaml:"binary_path" env:"BINARY_PATH"`
	ProbePath  string `yaml:"probe_path" env:"PROBE_PATH"`
	Threads    int    `yaml:"threads" env:"THREADS"`
	VideoCodec string `yaml:"video_codec" env:"VIDEO_CODEC"`
	CodecTag   string `yaml:"codec_tag" env:"CODEC_TAG"`
	Quality    int    `yaml:"quality" env:"QUALITY"`
}

type MetricsConfig struct {
	Textfile string `yaml:"textfile" env:"TEXTFILE"`
}

// Ledger drivers
const (
	LedgerJSON   = "json"
	LedgerSQLite = "sqlite"
)

// DefaultExtensions are the container extensions picked up by discovery.
var DefaultExtensions = []string{
	".3gp", ".avi", ".flv", ".mkv", ".mov", ".mp4", ".mpg", ".vob", ".webm", ".wmv",
}

// Load reads configuration from file, applies environment overrides and validates.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read is Load without validation, for commands that do not need the roots.
func Read(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = findConfigFile()
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case os.IsNotExist(err):
		default:
			return nil, err
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}

	cfg.normalize()
	return cfg, nil
}

// Default returns the documented defaults. Roots are left empty.
func Default() *Config {
	return &Config{
		Extensions: append([]string(nil), DefaultExtensions...),
		Detection: DetectionConfig{
			GrayThreshold:       60,
			SaturationThreshold: 50,
			CoverageFraction:    0.05,
			AnalysisWidth:       0,
		},
		Chunking: ChunkingConfig{
			ProbeSeconds: 4,
			SkipSeconds:  6,
		},
		Ledger: LedgerConfig{
			Driver: LedgerJSON,
			Path:   "processed_videos.json",
		},
		FFmpeg: FFmpegConfig{
			BinaryPath: "ffmpeg",
			ProbePath:  "ffprobe",
			Threads:    0,
			VideoCodec: "mpeg4",
			CodecTag:   "mp4v",
			Quality:    3,
		},
	}
}

func (c *Config) normalize() {
	c.SourceRoot = cleanPath(c.SourceRoot)
	c.DestRoot = cleanPath(c.DestRoot)
	c.Ledger.Driver = strings.ToLower(strings.TrimSpace(c.Ledger.Driver))

	exts := make([]string, 0, len(c.Extensions))
	for _, e := range c.Extensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts = append(exts, e)
	}
	c.Extensions = exts
}

// Validate checks ranges and required fields.
func (c *Config) Validate() error {
	var errs []error
	if c.SourceRoot == "" {
		errs = append(errs, errors.New("source_root is required"))
	}
	if c.DestRoot == "" {
		errs = append(errs, errors.New("dest_root is required"))
	}
	if c.SourceRoot != "" && c.SourceRoot == c.DestRoot {
		errs = append(errs, errors.New("source_root and dest_root must differ"))
	}
	if len(c.Extensions) == 0 {
		errs = append(errs, errors.New("extensions must not be empty"))
	}

	d := c.Detection
	if d.GrayThreshold < 0 || d.GrayThreshold > 255 {
		errs = append(errs, fmt.Errorf("detection.gray_threshold %d out of range 0..255", d.GrayThreshold))
	}
	if d.SaturationThreshold < 0 || d.SaturationThreshold > 255 {
		errs = append(errs, fmt.Errorf("detection.saturation_threshold %d out of range 0..255", d.SaturationThreshold))
	}
	if d.CoverageFraction < 0 || d.CoverageFraction >= 1 {
		errs = append(errs, fmt.Errorf("detection.coverage_fraction %g out of range [0,1)", d.CoverageFraction))
	}
	if d.AnalysisWidth < 0 {
		errs = append(errs, errors.New("detection.analysis_width must be >= 0"))
	}

	if c.Chunking.ProbeSeconds <= 0 {
		errs = append(errs, errors.New("chunking.probe_seconds must be > 0"))
	}
	if c.Chunking.SkipSeconds < 0 {
		errs = append(errs, errors.New("chunking.skip_seconds must be >= 0"))
	}

	switch c.Ledger.Driver {
	case LedgerJSON, LedgerSQLite:
	default:
		errs = append(errs, fmt.Errorf("ledger.driver %q must be %s or %s", c.Ledger.Driver, LedgerJSON, LedgerSQLite))
	}
	if strings.TrimSpace(c.Ledger.Path) == "" {
		errs = append(errs, errors.New("ledger.path is required"))
	}

	if c.FFmpeg.VideoCodec == "" {
		errs = append(errs, errors.New("ffmpeg.video_codec is required"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// LedgerFile resolves the ledger path; relative paths live under the destination root.
func (c *Config) LedgerFile() string {
	if filepath.IsAbs(c.Ledger.Path) {
		return c.Ledger.Path
	}
	return filepath.Join(c.DestRoot, c.Ledger.Path)
}

func cleanPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, p[2:])
		}
	}
	return filepath.Clean(p)
}

func findConfigFile() string {
	candidates := []string{
		"./steeltrim.yaml",
		"./steeltrim.yml",
		filepath.Join(os.Getenv("HOME"), ".steeltrim", "config.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// WithConfig stores config in context
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext retrieves config from context
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey).(*Config); ok {
		return cfg
	}
	return Default()
}
