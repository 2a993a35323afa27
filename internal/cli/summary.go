package cli

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/pfrederiksen/fomc-docs/internal/filter"
	"github.com/pfrederiksen/fomc-docs/internal/logger"
	"github.com/pfrederiksen/fomc-docs/internal/storage"
)

type summaryFlags struct {
	from       string
	to         string
	labels     []string
	categories []string
	outcomes   []string
	sort       string
}

func newSummaryCmd(o *rootOptions) *cobra.Command {
	var f summaryFlags

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Report on the collection log",
		Long: `Print collection log entries with outcome counts and missing documents.

Dates accept YYYY, YYYY-MM or YYYY-MM-DD. --label matches label substrings
case-insensitively; repeat a flag to match any of several values.`,
		Example: `  fomc-docs summary
  fomc-docs summary --from 2020 --to 2022-06
  fomc-docs summary --outcome missing_upstream --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSummary(cmd, o, f)
		},
	}

	cmd.Flags().StringVar(&f.from, "from", "", "only entries on or after this date")
	cmd.Flags().StringVar(&f.to, "to", "", "only entries on or before this date")
	cmd.Flags().StringSliceVar(&f.labels, "label", nil, "only entries whose label contains this text")
	cmd.Flags().StringSliceVar(&f.categories, "category", nil, "only this category (statement, projection)")
	cmd.Flags().StringSliceVar(&f.outcomes, "outcome", nil, "only this outcome")
	cmd.Flags().StringVar(&f.sort, "sort", string(SortByDate), "sort order: date, outcome, or category")
	return cmd
}

func runSummary(cmd *cobra.Command, o *rootOptions, f summaryFlags) error {
	order, err := ParseSortOrder(f.sort)
	if err != nil {
		return err
	}

	query := url.Values{}
	if f.from != "" {
		query.Set("from", f.from)
	}
	if f.to != "" {
		query.Set("to", f.to)
	}
	query["label"] = f.labels
	query["category"] = f.categories
	query["outcome"] = f.outcomes

	criteria, err := filter.FromQuery(query)
	if err != nil {
		return fmt.Errorf("invalid filter: %w", err)
	}

	root, err := storage.ExpandHome(o.cfg.DataDir)
	if err != nil {
		return fmt.Errorf("resolving data directory: %w", err)
	}
	entries, err := storage.ReadLog(root)
	if err != nil {
		return err
	}

	total := len(entries)
	entries = criteria.Apply(entries)
	sortEntries(entries, order)
	if !criteria.IsEmpty() {
		o.log.Debug("filter applied", logger.Fields{
			"filter":   criteria.String(),
			"total":    total,
			"filtered": len(entries),
		})
	}

	return WriteSummary(cmd.OutOrStdout(), entries, o.outputFormat())
}
