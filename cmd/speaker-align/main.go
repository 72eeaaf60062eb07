package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/snarg/speaker-align/internal/config"
)

var version = "dev"

// rootFlags are shared by every subcommand.
type rootFlags struct {
	envFile  string
	logLevel string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var flags rootFlags
	root := &cobra.Command{
		Use:          "speaker-align",
		Short:        "Attribute ASR transcript segments to diarized speakers",
		Version:      version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", "", "path to .env file (default .env)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(
		newAlignCmd(&flags),
		newTranscribeCmd(&flags),
		newServeCmd(&flags),
	)
	return root
}

// loadConfig applies the shared flags on top of extra overrides.
func loadConfig(flags *rootFlags, o config.Overrides) (*config.Config, error) {
	o.EnvFile = flags.envFile
	o.LogLevel = flags.logLevel
	cfg, err := config.Load(o)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger. Logs go to stderr so command output
// on stdout stays clean; LOG_FILE adds a rotated file sink.
func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var console io.Writer = os.Stderr
	if cfg.LogPretty {
		console = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	}
	out := console
	if cfg.LogFile != "" {
		out = zerolog.MultiLevelWriter(console, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
			MaxAge:     cfg.LogMaxAgeDays,
			Compress:   true,
		})
	}
	return zerolog.New(out).With().Timestamp().Logger().Level(level)
}
