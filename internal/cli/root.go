package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"finrag/config"
	"finrag/internal/logging"
	"finrag/internal/metrics"
)

var (
	cfgFile     string
	cfg         *config.Config
	rootDir     string
	logLevel    string
	metricsAddr string
	logger      *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "finrag",
	Short: "Question answering over PDF financial reports",
	Long: `finrag parses PDF financial reports, embeds them into a vector index and
answers questions with retrieval, optional LLM reranking and optional answer
synthesis.

Example usage:
  finrag ingest data/reports                 # Parse and index every PDF
  finrag query -q "revenue growth in 2023"   # Retrieve and rerank passages
  finrag query -q "net margin" --answer      # Synthesize an answer
  finrag cache clear "query:*"               # Drop cached query results`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error

		if rootDir == "" {
			rootDir, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}
		}

		if cfgFile != "" {
			cfg, err = config.Load(cfgFile)
		} else {
			cfg, err = config.LoadFromDir(rootDir)
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}

		logger = logging.New(cfg.Logging.Level, os.Stderr)
		slog.SetDefault(logger)

		if metricsAddr != "" {
			serveMetrics(metricsAddr)
		}
		return nil
	},
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "addr", addr, "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./finrag.yaml)")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "dir", "d", "", "directory to look for config in (default is current directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
}

func GetConfig() *config.Config {
	return cfg
}
