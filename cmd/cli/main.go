package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/myrjola/compassmystery/internal/config"
	"github.com/myrjola/compassmystery/internal/errors"
	"github.com/myrjola/compassmystery/internal/logging"
	"github.com/myrjola/compassmystery/internal/setup"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "compassmystery",
	Long:         `Command line tools for the Celestial Compass mystery.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().Bool("verbose", false, "log debug output to stderr")
	rootCmd.AddGroup(gameGroup, storyGroup)
	rootCmd.AddCommand(playCmd, replayCmd, storyCmd)
}

// newLogger logs to stderr so that it doesn't mix with the game output.
func newLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	return slog.New(logging.NewContextHandler(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		AddSource:   false,
		Level:       level,
		ReplaceAttr: nil,
	})))
}

// newApp assembles the game from the environment. Entries in overrides take precedence over the environment.
func newApp(ctx context.Context, logger *slog.Logger, overrides map[string]string) (*setup.App, error) {
	cfg, err := config.Load(func(key string) (string, bool) {
		if v, ok := overrides[key]; ok {
			return v, true
		}
		return os.LookupEnv(key)
	})
	if err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	app, err := setup.New(ctx, cfg, logger)
	if err != nil {
		return nil, errors.Wrap(err, "setup game")
	}
	return app, nil
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		cancel()
		os.Exit(1) //nolint:gocritic // cancel is called above
	}
}
