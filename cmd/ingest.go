package main

import (
	"fmt"
	"sort"

	"easy2trade/config"
	"easy2trade/internal/ingest"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [SYMBOL...]",
	Short: "Download a year of daily candles, compute features and rebuild the processed table",
	Long: "Fetches daily klines for the given USDT pairs (the built-in list when none are given),\n" +
		"writes one feature file per pair, combines them into the processed table and\n" +
		"copies the saved feedback scores onto it.",
	RunE: func(cmd *cobra.Command, args []string) error {
		symbols := ingest.Symbols
		if len(args) > 0 {
			symbols = args
		}

		a := newApp()
		pipeline := ingest.NewPipeline(a.market, config.GetString("data_dir"), config.GetString("processed_file"))

		report, err := pipeline.FetchAll(cmd.Context(), symbols)
		if err != nil {
			return errors.Wrap(err, "ingest interrupted")
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Fetched %d of %d symbols\n", len(report.Written), len(symbols))
		failed := make([]string, 0, len(report.Failed))
		for symbol := range report.Failed {
			failed = append(failed, symbol)
		}
		sort.Strings(failed)
		for _, symbol := range failed {
			fmt.Fprintf(out, "  skipped %s: %v\n", symbol, report.Failed[symbol])
		}

		rows, err := pipeline.Combine()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Combined %d rows into %s\n", rows, config.GetString("processed_file"))

		sync, err := a.sync.Run()
		if err != nil {
			return errors.Wrap(err, "could not apply feedback to the new data")
		}
		if len(sync.Unmatched) > 0 {
			log.Warnf("Feedback for coins without market data: %v", sync.Unmatched)
		}
		fmt.Fprintf(out, "Feedback applied: %d rows updated\n", sync.Updated)
		return nil
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Copy the saved feedback scores onto the processed table",
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := newApp().sync.Run()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d rows updated, %d rows reset\n", report.Updated, report.Reset)
		for _, coin := range report.Unmatched {
			fmt.Fprintf(cmd.OutOrStdout(), "  no market data for %s\n", coin)
		}
		return nil
	},
}

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the recommendation model on the processed table and save it",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newApp().ranker.Train()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Model trained on %d rows, test accuracy %.1f%% on %d rows, saved to %s\n",
			m.TrainRows, m.Accuracy*100, m.TestRows, config.GetString("model_file"))
		return nil
	},
}
