package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newConfigCmd(o *rootOptions) *cobra.Command {
	var showPath bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if showPath {
				if o.cfgUsed == "" {
					fmt.Fprintln(out, "No config file found (using defaults)")
					return nil
				}
				fmt.Fprintln(out, o.cfgUsed)
				return nil
			}

			data, err := o.cfg.YAML()
			if err != nil {
				return fmt.Errorf("rendering config: %w", err)
			}
			_, err = out.Write(data)
			return err
		},
	}

	cmd.Flags().BoolVar(&showPath, "path", false, "print the config file in use")
	return cmd
}
