// Command speechprep converts, resamples and segments raw telephony and
// capture audio into speech segments ready for transcription.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MrWong99/speechprep/internal/config"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(os.Stdin, os.Stdout, os.Stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "speechprep: %v\n", err)
		}
		return 1
	}
	return 0
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	level *slog.LevelVar
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	g := &globalFlags{stdin: stdin, stdout: stdout, stderr: stderr, level: new(slog.LevelVar)}

	root := &cobra.Command{
		Use:           "speechprep",
		Short:         "Audio preprocessing for speech recognition",
		Long:          "Convert sample formats, resample to a transcription rate, and cut speech segments out of raw audio.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().StringVar(&g.configPath, "config", "", "path to a YAML configuration file (defaults apply when empty)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "override log_level from the configuration (debug, info, warn, error)")

	root.AddCommand(newConvertCmd(g))
	root.AddCommand(newSegmentCmd(g))
	root.AddCommand(newInfoCmd(g))
	return root
}

// loadConfig reads the configuration named by --config, applies --log-level
// and installs the default logger.
func (g *globalFlags) loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if g.configPath != "" {
		var err error
		if cfg, err = config.Load(g.configPath); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("config file %q not found", g.configPath)
			}
			return nil, err
		}
	}
	if g.logLevel != "" {
		cfg.LogLevel = config.LogLevel(g.logLevel)
		if !cfg.LogLevel.IsValid() {
			return nil, fmt.Errorf("--log-level %q is invalid; valid values: debug, info, warn, error", g.logLevel)
		}
	}

	g.level.Set(slogLevel(cfg.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(g.stderr, &slog.HandlerOptions{Level: g.level})))
	return cfg, nil
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
