package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"benchmark-verifier/internal/config"
	"benchmark-verifier/internal/logger"
	"benchmark-verifier/internal/verification"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags and what PersistentPreRunE builds from them.
type RootOptions struct {
	ConfigPath string
	LogFile    string
	Quiet      bool
	NoColor    bool
	LogLevel   string

	Config *config.Config
	Logger *slog.Logger
	Report *logger.Logger

	logFile *os.File
}

// NewRootCommand creates the root command for the verifier CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "verifier",
		Short: "Verify web framework benchmark implementations",
		Long: `Verify that benchmark implementations answer their endpoints correctly
before they are measured, and print the load-generator commands that measure them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return opts.Close()
		},
	}

	// Global flags
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (default $"+config.EnvConfig+" or "+config.DefaultPath+")")
	cmd.PersistentFlags().StringVar(&opts.LogFile, "log-file", "", "also write the report to this file")
	cmd.PersistentFlags().BoolVarP(&opts.Quiet, "quiet", "q", false, "do not print the report to the console")
	cmd.PersistentFlags().BoolVar(&opts.NoColor, "no-color", false, "disable colored output")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "operational log level (debug|info|warn|error)")

	cmd.AddCommand(NewVerifyCommand(opts))
	cmd.AddCommand(NewCommandsCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))

	return cmd
}

// setup loads the config, applies flag overrides and builds the loggers.
func (o *RootOptions) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("log-file") {
		cfg.Log.File = o.LogFile
	}
	if flags.Changed("quiet") {
		cfg.Log.Quiet = o.Quiet
	}
	if flags.Changed("no-color") {
		cfg.Log.NoColor = o.NoColor
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = o.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		return &verification.ConfigurationError{Field: "log.level", Reason: err.Error()}
	}
	o.Logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	var file io.Writer
	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		o.logFile = f
		file = f
	}
	o.Report = logger.New(cmd.OutOrStdout(), file, !cfg.Log.NoColor)
	o.Config = cfg
	return nil
}

// Close releases the log file, if one was opened.
func (o *RootOptions) Close() error {
	if o.logFile == nil {
		return nil
	}
	err := o.logFile.Close()
	o.logFile = nil
	return err
}
