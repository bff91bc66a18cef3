package cli

import (
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/ydoc/internal/config"
	"github.com/roach88/ydoc/internal/metrics"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string

	config   *config.Config
	metrics  *metrics.Collectors
	registry *prometheus.Registry
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the ydoc CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "ydoc",
		Short: "ydoc - replicated document tool",
		Long:  "Inspect, export and merge replicated documents kept in a SQLite update log.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return opts.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			opts.logMetrics()
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "CUE configuration file")

	cmd.AddCommand(NewApplyCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewStateVectorCommand(opts))
	cmd.AddCommand(NewInspectCommand(opts))
	cmd.AddCommand(NewCompactCommand(opts))
	cmd.AddCommand(NewMergeCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// setup installs the logger, loads the configuration and creates the
// metrics collectors.
func (o *RootOptions) setup(cmd *cobra.Command) error {
	logLevel := slog.LevelInfo
	if o.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))

	if o.ConfigPath != "" {
		cfg, err := config.Load(o.ConfigPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load config", err)
		}
		o.config = cfg
		slog.Debug("config loaded", "path", o.ConfigPath, "documents", len(cfg.Documents))
	}

	o.registry = prometheus.NewRegistry()
	o.metrics = metrics.New()
	return o.metrics.Register(o.registry)
}

// Config returns the loaded configuration, or the defaults.
func (o *RootOptions) Config() *config.Config {
	if o.config == nil {
		return config.Default()
	}
	return o.config
}

// databasePath picks the --db flag, falling back to the configured database.
func (o *RootOptions) databasePath(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if db := o.Config().Database; db != "" {
		return db, nil
	}
	return "", NewExitError(ExitCommandError, "no database: pass --db or set database in the config file")
}

// logMetrics writes the collected counters at debug level.
func (o *RootOptions) logMetrics() {
	if o.registry == nil || !o.Verbose {
		return
	}
	families, err := o.registry.Gather()
	if err != nil {
		slog.Warn("failed to gather metrics", "error", err)
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			attrs := []any{"metric", mf.GetName()}
			for _, lp := range m.GetLabel() {
				attrs = append(attrs, lp.GetName(), lp.GetValue())
			}
			switch {
			case m.GetCounter() != nil:
				attrs = append(attrs, "value", m.GetCounter().GetValue())
			case m.GetHistogram() != nil:
				attrs = append(attrs, "count", m.GetHistogram().GetSampleCount(), "sum", m.GetHistogram().GetSampleSum())
			}
			slog.Debug("metric", attrs...)
		}
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	cmd := NewRootCommand()
	cmd.SilenceErrors = true
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return GetExitCode(err)
	}
	return ExitSuccess
}
