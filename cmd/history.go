package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// historyCmd implements: promowatch history <url>
var historyCmd = &cobra.Command{
	Use:   "history <url>",
	Short: "Print the stored state and change snapshots of a target",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		url := args[0]
		showPromos, _ := cmd.Flags().GetBool("promos")

		store, err := openStore(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer store.Close()

		st, err := store.LoadState(cmd.Context(), url)
		if err != nil {
			return err
		}
		if st == nil {
			fmt.Printf("No state stored for %s\n", url)
			return nil
		}
		fmt.Printf("Last seen %s, %d promotions, hash %s\n", st.LastSeen, len(st.Promos), st.Hash)
		if showPromos {
			printPromotions(st.Promos)
		}

		hist, err := store.History(cmd.Context(), url)
		if err != nil {
			return err
		}
		if len(hist) == 0 {
			fmt.Println("No changes recorded yet")
			return nil
		}
		for _, snap := range hist {
			fmt.Printf("\n%s  %d promotions  %s\n", snap.Timestamp, len(snap.Promos), snap.Hash)
			if showPromos {
				printPromotions(snap.Promos)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().BoolP("promos", "p", false, "Also print the promotions of every entry")
}
