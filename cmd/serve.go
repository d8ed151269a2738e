package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"easy2trade/config"
	"easy2trade/internal/alert"
	"easy2trade/internal/analysis"
	"easy2trade/internal/chart"
	"easy2trade/internal/coininfo"
	"easy2trade/internal/database"
	"easy2trade/internal/feedback"
	"easy2trade/internal/metrics"
	"easy2trade/internal/scheduler"
	"easy2trade/internal/session"
	"easy2trade/internal/web"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the web UI, the metrics endpoint and scheduled price checks",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := database.Open(config.GetString("metrics_db"))
		if err != nil {
			return err
		}
		defer db.Close()

		metrics.App.Load(db)

		a := newApp()
		monitor := a.monitor(db)

		font, err := chart.LoadFont(config.GetString("chart_font_path"))
		if err != nil {
			log.Errorf("Using the default chart font: %v", err)
		}

		srv, err := web.New(web.Services{
			Sessions:      session.NewManager(),
			Tickers:       a.market,
			Klines:        a.market,
			Analyzer:      analysis.NewAnalyzer(a.market, a.feedback, config.GetInt("kline_limit")),
			Reconciler:    feedback.NewReconciler(a.feedback),
			Feedback:      a.feedback,
			Synchronizer:  a.sync,
			Ranker:        a.ranker,
			Tracker:       a.tracker,
			Monitor:       monitor,
			Preferences:   a.preferences,
			Notifications: db,
			Coins:         coininfo.New(nil, config.GetString("paprika_api_key")),
			ChartFont:     font,
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if spec := config.GetString("check_schedule"); spec != "" {
			sched := scheduler.New(2 * time.Minute)
			err := sched.AddJob(spec, scheduler.JobFunc{JobName: "price-check", Fn: func(ctx context.Context) error {
				_, err := monitor.CheckAll(ctx)
				return err
			}})
			if err != nil {
				return err
			}
			sched.Start()
			defer sched.Stop()
		}

		go func() {
			ticker := time.NewTicker(5 * time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					metrics.App.Save(db)
				case <-ctx.Done():
					return
				}
			}
		}()

		go func() {
			if err := launchMetricsAndHealthServer(config.GetInt("metrics_port")); err != nil {
				log.Errorf("Metrics and health server stopped: %v", err)
			}
		}()

		err = srv.Serve(ctx, config.GetInt("http_port"))
		metrics.App.Save(db)
		log.Info("Metrics saved, shutting down...")
		return err
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "Web UI port (overrides HTTP_PORT)")
	serveCmd.PreRun = func(cmd *cobra.Command, args []string) {
		if port, _ := cmd.Flags().GetInt("port"); port > 0 {
			config.Set("http_port", port)
		}
	}
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one price check over the tracked coins",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := database.Open(config.GetString("metrics_db"))
		if err != nil {
			return err
		}
		defer db.Close()

		result, err := newApp().monitor(db).CheckAll(cmd.Context())
		if err != nil {
			return errors.Wrap(err, "price check failed")
		}
		printCheck(cmd, result)
		return nil
	},
}

func printCheck(cmd *cobra.Command, result alert.Result) {
	out := cmd.OutOrStdout()
	if result.Skipped != "" {
		fmt.Fprintf(out, "Nothing checked: %s\n", result.Skipped)
		return
	}
	for _, n := range result.Notified {
		fmt.Fprintf(out, "%s moved %+.2f%% (threshold %g%%), alert sent\n", n.Coin, n.Change, n.Threshold)
	}
	fmt.Fprintf(out, "%d notified, %d still tracked\n", len(result.Notified), len(result.Remaining))
}
