package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/sw33tLie/promowatch/internal/utils"
	"github.com/sw33tLie/promowatch/pkg/promo"
)

// extractCmd implements: promowatch extract <url|file> --selector
var extractCmd = &cobra.Command{
	Use:   "extract <url>",
	Short: "Fetch one page and print the promotions found on it",
	Long: `Fetch one page and print the promotions found on it, without touching the store.
Use --file to read markup from a local file instead of fetching it.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		selector, _ := cmd.Flags().GetString("selector")
		file, _ := cmd.Flags().GetString("file")
		asJSON, _ := cmd.Flags().GetBool("json")

		extractor, err := newExtractor()
		if err != nil {
			return err
		}

		var markup string
		switch {
		case file != "":
			b, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			markup = string(b)
		case len(args) == 1:
			fetcher, err := newFetcher()
			if err != nil {
				return err
			}
			page, err := fetcher.Fetch(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			utils.Log.Debugf("Fetched %s (%q, %d bytes)", page.URL, page.Title, len(page.Body))
			markup = page.Body
		default:
			return fmt.Errorf("either a url or --file is required")
		}

		promos, err := extractor.Extract(markup, selector)
		if err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(promos)
		}
		printPromotions(promos)
		fmt.Printf("%d promotions, list hash %s (%s backend)\n", len(promos), promo.Hash(promos), extractor.Name())
		return nil
	},
}

func printPromotions(promos []promo.Promotion) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tPERK\tDATES\tPRICE")
	for _, p := range promos {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", p.ID, utils.Truncate(p.Title, 40), utils.Truncate(p.Perk, 50), utils.Truncate(p.Dates, 30), p.Price)
	}
	w.Flush()
}

func init() {
	rootCmd.AddCommand(extractCmd)
	extractCmd.Flags().StringP("selector", "s", "", "Selector addressing the promotion containers")
	extractCmd.Flags().StringP("file", "f", "", "Read markup from a local file")
	extractCmd.Flags().Bool("json", false, "Print promotions as JSON")
	extractCmd.MarkFlagRequired("selector")
}
