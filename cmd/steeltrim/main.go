package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/keagan/steeltrim/internal/config"
	"github.com/keagan/steeltrim/internal/ffmpeg"
	"github.com/keagan/steeltrim/internal/ledger"
	"github.com/keagan/steeltrim/internal/logging"
	"github.com/keagan/steeltrim/internal/metrics"
	"github.com/keagan/steeltrim/internal/pipeline"
	"github.com/keagan/steeltrim/pkg/util"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	cfgFile string
	verbose bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "steeltrim",
	Short:        "steeltrim - keep only the steel",
	Long:         "Scans a video library, samples each file in probe/skip cycles and writes a trimmed copy containing only the windows where steel is on screen.",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logging
		logging.Init(verbose)

		// Roots are only required by the batch itself
		cfg, err := config.Read(cfgFile)
		if err != nil {
			return err
		}

		// Store config in context
		ctx := config.WithConfig(cmd.Context(), cfg)
		cmd.SetContext(ctx)

		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		if err := cfg.Validate(); err != nil {
			return err
		}
		return runBatch(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./steeltrim.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(probeCmd)
}

func runBatch(ctx context.Context, cfg *config.Config) error {
	runID := uuid.NewString()
	logger := logging.WithRun(log.Logger, runID)

	m := metrics.New()

	l, err := ledger.Open(logger, cfg.Ledger.Driver, cfg.LedgerFile())
	if err != nil {
		return err
	}
	defer func() {
		if err := l.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close ledger")
		}
	}()

	batch, err := pipeline.New(logger, cfg, l, m)
	if err != nil {
		return err
	}

	summary, runErr := batch.Run(ctx)

	if cfg.Metrics.Textfile != "" {
		if err := m.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			logger.Warn().Err(err).Str("path", cfg.Metrics.Textfile).Msg("failed to write metrics")
		}
	}

	if runErr != nil {
		logger.Error().
			Err(runErr).
			Int("processed", summary.Processed).
			Int("failed", summary.Failed).
			Msg("batch aborted")
		return runErr
	}
	return nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		if _, err := cmd.OutOrStdout().Write(data); err != nil {
			return err
		}

		if err := cfg.Validate(); err != nil {
			log.Warn().Err(err).Msg("configuration is not runnable")
		}
		return nil
	},
}

var probeCmd = &cobra.Command{
	Use:   "probe [video]",
	Short: "Print the stream metadata steeltrim sees for a video",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		exec, err := ffmpeg.New(log.Logger, ffmpeg.Options{
			FFmpegPath:  cfg.FFmpeg.BinaryPath,
			FFprobePath: cfg.FFmpeg.ProbePath,
		})
		if err != nil {
			return err
		}

		info, err := exec.ProbeVideo(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "file:        %s\n", info.FilePath)
		fmt.Fprintf(out, "codec:       %s\n", info.VideoCodec)
		fmt.Fprintf(out, "geometry:    %dx%d\n", info.Width, info.Height)
		fmt.Fprintf(out, "fps:         %.3f (planning at %d)\n", info.FPS, info.FrameRate)
		fmt.Fprintf(out, "frames:      %d\n", info.FrameCount)
		fmt.Fprintf(out, "rotation:    %d\n", info.Rotation)
		fmt.Fprintf(out, "duration:    %s\n", util.FormatDuration(info.Duration))
		fmt.Fprintf(out, "audio:       %t\n", info.HasAudio)
		fmt.Fprintf(out, "probe spans: %d\n", len(pipeline.Windows(info.FrameCount, info.FrameRate,
			cfg.Chunking.ProbeSeconds, cfg.Chunking.SkipSeconds)))
		return nil
	},
}
