package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pfrederiksen/fomc-docs/internal/api"
	"github.com/pfrederiksen/fomc-docs/internal/logger"
	"github.com/pfrederiksen/fomc-docs/internal/storage"
)

func newServeCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the collection log over HTTP",
		Long: `Serve read-only JSON views of the collection log.

Endpoints:
  /                   service info and summary
  /years              years with saved documents, newest first
  /statements         saved documents grouped by year
  /statements/{year}  saved documents for one year
  /calendar.ics       meetings as an iCalendar feed
  /metrics            Prometheus metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := storage.ExpandHome(o.cfg.DataDir)
			if err != nil {
				return fmt.Errorf("resolving data directory: %w", err)
			}

			srv := api.New(root, api.Options{Logger: o.log})
			o.log.Info("serving collection log", logger.Fields{"data_dir": root, "addr": o.cfg.Server.Addr})
			return srv.ListenAndServe(cmd.Context(), o.cfg.Server.Addr)
		},
	}

	cmd.Flags().String("addr", "", "listen address (default :8000)")
	return cmd
}
