package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/sw33tLie/promowatch/pkg/extract"
	"github.com/sw33tLie/promowatch/pkg/notify"
	"github.com/sw33tLie/promowatch/pkg/polling"
	"github.com/sw33tLie/promowatch/pkg/storage"
	"github.com/sw33tLie/promowatch/pkg/targets"
	"github.com/sw33tLie/promowatch/pkg/whttp"
)

func main() {
	// Usage: go run *.go -url "https://example.com/offers" -selector ".promo" -db promos.sqlite
	// Run it twice to see changes between runs.

	urlFlag := flag.String("url", "", "Page to watch")
	selectorFlag := flag.String("selector", "", "Selector addressing the promotion containers")
	dbFlag := flag.String("db", "promowatch-example.sqlite", "SQLite file holding state between runs")

	flag.Parse()

	if *urlFlag == "" || *selectorFlag == "" {
		fmt.Println("Both -url and -selector are required.")
		return
	}

	db, err := storage.Open(*dbFlag)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer db.Close()

	fetcher, err := whttp.NewFetcher(whttp.Options{})
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	// Both extractor backends share the same contract
	batch := polling.PollAll(context.Background(), polling.Config{
		Source:    targets.Static{{URL: *urlFlag, Selector: *selectorFlag}},
		Fetcher:   fetcher,
		Extractor: extract.Query{},
		Store:     storage.NewStore(db, storage.DefaultHistoryKeep),
		Notifier:  notify.NewPrinter(),
	})

	for _, r := range batch.Results {
		if !r.Success {
			fmt.Printf("%s failed at %s: %v\n", r.Target.URL, r.Stage, r.Err)
			continue
		}
		for _, p := range r.Promotions {
			fmt.Println(p.Title, p.Price)
		}
	}
	fmt.Println(batch.Summary)
}
