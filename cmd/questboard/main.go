package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/AccelByte/extend-questboard-common/pkg/config"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "questboard",
		Short:         "Quest board progression tools and change feed workers",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(
		rankCmd(opts),
		rewardCmd(opts),
		experienceCmd(opts),
		migrateCmd(opts),
		expireCmd(opts),
		relayCmd(opts),
		watchCmd(opts),
	)
	return cmd
}

func (o *rootOptions) logger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func (o *rootOptions) load(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	logger := o.logger(cmd.ErrOrStderr())
	cfg, err := config.Load(o.configPath, logger)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
