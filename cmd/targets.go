package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/sw33tLie/promowatch/internal/utils"
	"github.com/sw33tLie/promowatch/pkg/targets"
)

// targetsCmd implements: promowatch targets
var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "List the configured targets",
	RunE: func(cmd *cobra.Command, args []string) error {
		ts, err := targets.FromViper(nil).Targets(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "NAME\tURL\tSELECTOR\tENABLED\tNOTES")
		for _, t := range ts {
			enabled := "yes"
			if !t.IsEnabled() {
				enabled = "no"
			}
			if err := t.Validate(); err != nil {
				enabled = "invalid"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.DisplayName(), t.URL, t.Selector, enabled, utils.Truncate(t.Notes, 40))
		}
		w.Flush()
		fmt.Printf("%d targets, %d enabled\n", len(ts), len(targets.Enabled(ts)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(targetsCmd)
}
