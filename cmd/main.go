package main

import (
	"fmt"
	"net/http"
	"os"

	"easy2trade/config"
	"easy2trade/lib/translation"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var version = "dev"

var (
	debug      bool
	localesDir string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "easy2trade",
	Short:   "Crypto research: analyze, rate, get recommendations, track prices",
	Version: version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		config.InitConfig()
		if debug {
			config.Set("debug", true)
		}
		setupLogging()
		translation.Configure(localesDir, config.GetString("lang"))
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&localesDir, "locales", "locales", "Directory with translation files")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(trainCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(versionCmd)
}

func setupLogging() {
	log.SetLevel(log.ErrorLevel)

	if config.GetBool("debug") {
		log.SetLevel(log.DebugLevel)
	}

	log.Debug("Starting easy2trade...")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("easy2trade", version)
	},
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func launchMetricsAndHealthServer(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", healthCheckHandler)

	log.Infof("Launching metrics and health endpoint on :%d", port)
	return http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
}
