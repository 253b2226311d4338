package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/sw33tLie/promowatch/internal/utils"
	"github.com/sw33tLie/promowatch/pkg/cache"
	"github.com/sw33tLie/promowatch/pkg/polling"
	"github.com/sw33tLie/promowatch/pkg/promo"
	"github.com/sw33tLie/promowatch/pkg/targets"
)

// runCmd implements: promowatch run
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll every enabled target once and report material changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 {
			return fmt.Errorf("unknown command: '%s'. See 'promowatch run --help'", args[0])
		}
		console, _ := cmd.Flags().GetBool("print")
		if c, _ := cmd.Flags().GetInt("concurrency"); c > 0 {
			viper.Set("concurrency", c)
		}

		fetcher, err := newFetcher()
		if err != nil {
			return err
		}
		extractor, err := newExtractor()
		if err != nil {
			return err
		}
		store, err := openStore(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer store.Close()

		batch := polling.PollAll(cmd.Context(), polling.Config{
			Source:        targets.FromViper(nil),
			Fetcher:       fetcher,
			Extractor:     extractor,
			Store:         store.Store,
			Notifier:      newNotifier(console),
			Cache:         cache.New[string, []promo.Promotion](viper.GetInt("cache.size")),
			Concurrency:   viper.GetInt("concurrency"),
			FetchTimeout:  viper.GetDuration("fetch.timeout"),
			NotifyTimeout: viper.GetDuration("notify.timeout"),
			Log:           utils.Log,
			OnTargetDone:  printTargetResult,
		})

		fmt.Println(batch.Summary)
		return batch.Err
	},
}

func printTargetResult(r polling.TargetResult) {
	name := r.Target.DisplayName()
	switch {
	case !r.Success:
		fmt.Printf("❌  %s  %s  %s failed: %v\n", name, r.Target.URL, r.Stage, r.Err)
	case r.Changes.HasChanges:
		notified := ""
		if r.Notified {
			notified = " (notified)"
		}
		fmt.Printf("🔄  %s  %s  %s%s\n", name, r.Target.URL, r.Changes.Summary, notified)
	default:
		fmt.Printf("✅  %s  %s  %s (%d promotions)\n", name, r.Target.URL, r.Changes.Summary, len(r.Promotions))
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Bool("print", false, "Also print material changes to the console")
	runCmd.Flags().Int("concurrency", 0, "Number of targets polled in parallel (default from config)")
}
