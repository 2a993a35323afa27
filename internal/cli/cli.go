package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pfrederiksen/fomc-docs/internal/config"
	"github.com/pfrederiksen/fomc-docs/internal/logger"
	"github.com/pfrederiksen/fomc-docs/internal/scraper"
)

const (
	ExitSuccess             = 0
	ExitError               = 1
	ExitUpstreamUnavailable = 2
	ExitParseFailure        = 3
)

// rootOptions holds persistent flag values and the loaded configuration
type rootOptions struct {
	cfgFile string
	verbose bool
	format  string

	cfg     *config.Config
	cfgUsed string
	log     *logger.Logger
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	o := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "fomc-docs",
		Short: "Collect FOMC statements and projection materials",
		Long: `A CLI tool to collect FOMC monetary-policy statements and projection materials.
Discovers meetings from the public calendar, downloads and verifies each document,
and records one outcome per meeting and category in a CSV collection log.

Example usage:
  fomc-docs collect                     # dry run: list what would be collected
  fomc-docs collect --download          # download the last 10 years
  fomc-docs summary --from 2020         # report on the collection log
  fomc-docs serve --addr :8000          # serve the log as JSON`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return o.setup(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&o.cfgFile, "config", "", "config file (default is .fomc-docs.yaml)")
	cmd.PersistentFlags().String("data-dir", "", "data directory for documents and the collection log")
	cmd.PersistentFlags().BoolVarP(&o.verbose, "verbose", "v", false, "enable debug logging and print run metrics")
	cmd.PersistentFlags().StringVar(&o.format, "format", "text", "output format: text or json")

	cmd.AddCommand(
		newCollectCmd(o),
		newServeCmd(o),
		newSummaryCmd(o),
		newConfigCmd(o),
		newVersionCmd(),
	)
	return cmd
}

// setup validates flags, loads configuration and installs the logger
func (o *rootOptions) setup(cmd *cobra.Command) error {
	format := OutputFormat(strings.ToLower(o.format))
	if format != FormatText && format != FormatJSON {
		return fmt.Errorf("invalid format: %s (must be 'text' or 'json')", o.format)
	}
	o.format = string(format)

	cfg, used, err := config.Load(o.cfgFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	o.cfg = cfg
	o.cfgUsed = used

	level := logger.ParseLevel(cfg.Log.Level)
	if o.verbose {
		level = logger.LevelDebug
	}
	o.log = logger.NewWithFormat(level, logger.Format(strings.ToLower(cfg.Log.Format)), cmd.ErrOrStderr())
	logger.SetDefault(o.log)

	o.log.Debug("configuration loaded", logger.Fields{
		"config_file": used,
		"data_dir":    cfg.DataDir,
		"years":       cfg.Years,
		"workers":     cfg.Workers,
	})
	return nil
}

func (o *rootOptions) outputFormat() OutputFormat {
	return OutputFormat(o.format)
}

// ExitCode maps a command error to the process exit status
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, scraper.ErrUpstreamUnavailable):
		return ExitUpstreamUnavailable
	case errors.Is(err, scraper.ErrParseFailure):
		return ExitParseFailure
	default:
		return ExitError
	}
}

// Execute runs the CLI and exits the process with the mapped status
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := NewRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		NewPrinter(os.Stderr).Error("Error: %v", err)
	}
	os.Exit(ExitCode(err))
}
