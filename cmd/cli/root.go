package main

import (
	"fmt"
	"time"

	"smart-secretary/internal/config"
	"smart-secretary/internal/storage"
	v "smart-secretary/internal/version"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type cliOptions struct {
	load   config.LoadOptions
	file   string
	window string
	debug  bool
}

func newRootCmd(load config.LoadOptions) *cobra.Command {
	opts := &cliOptions{load: load}

	rootCmd := &cobra.Command{
		Use:           "secretary-cli",
		Short:         "Inspect and maintain the secretary's responses log",
		Long:          v.AppName + ": " + v.AppDescription + ".\nThis tool reads and edits the responses log and runs the reachability rule offline.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&opts.file, "file", "", "responses log file (defaults to RESPONSES_FILE)")
	rootCmd.PersistentFlags().StringVar(&opts.window, "window", "", "cooldown window, seconds or a Go duration (defaults to COOLDOWN_WINDOW)")
	rootCmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "log storage activity to stderr")

	rootCmd.AddCommand(
		newVersionCmd(),
		newLogCmd(opts),
		newClassifyCmd(opts),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", v.AppName, v.Version, v.BuildDate)
			return err
		},
	}
}

// settings loads the bot configuration and applies the command line overrides.
func (o *cliOptions) settings() (*config.Config, error) {
	cfg, err := config.Load(o.load)
	if err != nil {
		return nil, err
	}
	if o.file != "" {
		cfg.ResponsesFile = o.file
	}
	if o.window != "" {
		var d config.Duration
		if err := d.UnmarshalText([]byte(o.window)); err != nil {
			return nil, fmt.Errorf("--window: %w", err)
		}
		cfg.CooldownWindow = d
	}
	if cfg.CooldownWindow.Duration() <= 0 {
		return nil, fmt.Errorf("cooldown window must be positive")
	}
	return cfg, nil
}

func (o *cliOptions) openStore(cmd *cobra.Command) (*storage.Storage, *config.Config, error) {
	cfg, err := o.settings()
	if err != nil {
		return nil, nil, err
	}

	logger := zerolog.Nop()
	if o.debug {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: time.DateTime}).
			With().Timestamp().Str("component", "storage").Logger()
	}

	store, err := storage.New(cfg.ResponsesFile, cfg.CooldownWindow.Duration(), storage.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	return store, cfg, nil
}
