package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/pfrederiksen/fomc-docs/internal/cache"
	"github.com/pfrederiksen/fomc-docs/internal/collect"
	"github.com/pfrederiksen/fomc-docs/internal/fetch"
	"github.com/pfrederiksen/fomc-docs/internal/logger"
	"github.com/pfrederiksen/fomc-docs/internal/notifier"
	"github.com/pfrederiksen/fomc-docs/internal/scraper"
	"github.com/pfrederiksen/fomc-docs/internal/storage"
	"github.com/pfrederiksen/fomc-docs/internal/verify"
)

func newCollectCmd(o *rootOptions) *cobra.Command {
	var retryFailed, noCache bool

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Discover meetings and collect their documents",
		Long: `Discover FOMC meetings in the lookback window, resolve their statement and
projection links, and record one collection log entry per meeting and category.

Without --download this is a dry run: meetings and links are resolved and the log
headers are written, but no documents are fetched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollect(cmd, o, retryFailed, noCache)
		},
	}

	cmd.Flags().Int("years", scraper.DefaultLookbackYears, "lookback window in years")
	cmd.Flags().Bool("download", false, "download documents (default is a dry run)")
	cmd.Flags().Int("workers", 1, "meetings processed concurrently")
	cmd.Flags().Bool("strict-pdf", false, "also validate PDF structure")
	cmd.Flags().BoolVar(&retryFailed, "retry-failed", false, "re-attempt documents whose last outcome was a failure")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "bypass the calendar page cache")
	return cmd
}

// runCollect is the main collection logic
func runCollect(cmd *cobra.Command, o *rootOptions, retryFailed, noCache bool) (err error) {
	cfg := o.cfg
	runID := uuid.NewString()
	log := o.log.With(logger.Fields{"run_id": runID})
	metrics := logger.NewMetrics()

	store, err := storage.New(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}

	var (
		pages     fetch.PageCache
		pageCache *cache.Cache
	)
	if cfg.Cache.Enabled && !noCache {
		path, err := cfg.CachePath()
		if err != nil {
			return err
		}
		c, err := cache.Open(path)
		if err != nil {
			return fmt.Errorf("opening page cache: %w", err)
		}
		defer c.Close()
		pages = c
		pageCache = c
		log.Debug("page cache enabled", logger.Fields{"path": path})
	}

	client := fetch.New(fetch.Options{
		UserAgent:       cfg.UserAgent,
		Timeout:         cfg.Timeout,
		RequestInterval: cfg.RequestInterval,
		RespectRobots:   cfg.RespectRobots,
		Retry:           cfg.Retry,
		Cache:           pages,
		Logger:          log,
		Metrics:         metrics,
	})

	discoverer := scraper.NewDiscoverer(client, scraper.DiscovererOptions{
		CalendarURL:           cfg.CalendarURL,
		HistoricalURLTemplate: cfg.HistoricalURLTemplate,
		Logger:                log,
	})
	resolver := scraper.NewResolver(client, nil, log)
	verifier := verify.New(client, verify.Options{
		Store:     store,
		MaxBytes:  cfg.MaxDocumentBytes,
		StrictPDF: cfg.StrictPDF,
		Logger:    log,
		Metrics:   metrics,
	})

	entries, err := store.OpenLog()
	if err != nil {
		return fmt.Errorf("opening collection log: %w", err)
	}
	defer func() {
		if cerr := entries.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing collection log: %w", cerr)
		}
	}()

	var alerts notifier.Notifier = notifier.NewDryRunNotifier(cmd.ErrOrStderr())
	if cfg.Alert.WebhookURL != "" {
		alerts = notifier.NewWebhookNotifier(cfg.Alert.WebhookURL)
	}

	pipeline := collect.New(discoverer, resolver, verifier, entries, collect.Options{
		Years:       cfg.Years,
		Download:    cfg.Download,
		Workers:     cfg.Workers,
		RetryFailed: retryFailed,
		RunID:       runID,
		Source:      cfg.CalendarURL,
		Notifier:    alerts,
		Logger:      o.log,
		Metrics:     metrics,
	})

	report, err := pipeline.Run(cmd.Context())
	if err != nil {
		return err
	}

	if err := WriteReport(cmd.OutOrStdout(), report, o.outputFormat()); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	if o.verbose {
		if pageCache != nil {
			n, err := pageCache.Len(cmd.Context())
			if err != nil {
				log.Warn("counting cached pages failed", logger.Fields{"error": err.Error()})
			} else {
				metrics.SetGauge("cache.pages", float64(n))
			}
		}
		writeMetrics(cmd.ErrOrStderr(), metrics.GetSnapshot())
	}
	return nil
}
