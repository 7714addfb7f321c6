package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/viaobs/via/internal/analysis"
	"github.com/viaobs/via/internal/api"
	"github.com/viaobs/via/internal/config"
	"github.com/viaobs/via/internal/control"
	"github.com/viaobs/via/internal/embed"
	"github.com/viaobs/via/internal/ingest"
	"github.com/viaobs/via/internal/logging"
	"github.com/viaobs/via/internal/vectorstore"
	"github.com/viaobs/via/internal/worker"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var rootCmd = &cobra.Command{
	Use:     "via",
	Short:   "VIA - real-time log anomaly detection and triage",
	Long:    `VIA ingests structured log events, detects novel and frequency-spiking patterns over a hot rhythm monitor, and promotes incidents into a daily-partitioned forensic index for triage.`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		runServer()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("VIA %s\n", Version)
		if BuildTime != "unknown" {
			fmt.Printf("Built: %s\n", BuildTime)
		}
		if GitCommit != "unknown" {
			fmt.Printf("Commit: %s\n", GitCommit)
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServer() {
	// Baseline logger for early startup messages
	logging.Init(logging.Config{Format: "auto", Level: "info", Component: "via"})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{Format: cfg.LogFormat, Level: cfg.LogLevel, Component: "via"})

	registry, err := control.Open(cfg.RegistryDBPath, cfg.EvalsDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open control registry")
	}
	defer registry.Close()

	client, err := newVectorClient(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize vector store client")
	}

	gateway := vectorstore.NewGateway(client, vectorstore.GatewayConfig{
		Tier1Name:   cfg.Tier1Prefix,
		Tier2Prefix: cfg.Tier2Prefix,
		DenseDim:    cfg.DenseDim,
		Replication: cfg.Replication,
		Shards:      cfg.Shards,
		Timeout:     cfg.GatewayTimeout,
		Parallelism: cfg.GatewayParallelism,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := gateway.SetupTier1(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to set up Tier-1 collection")
	}

	dense := embed.NewHashingDense(cfg.DenseDim)
	sparse := embed.NewBM25Sparse()

	promoter := analysis.NewPromoter(gateway, dense, sparse)
	analyzer := analysis.NewAnalyzer(gateway, registry, promoter)
	forensic := analysis.NewForensic(gateway, registry, dense, sparse)
	pipeline := ingest.NewPipeline(gateway)

	wk := worker.New(analyzer, cfg.AnalysisInterval)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		wk.Run(ctx)
	}()

	router := api.NewRouter(pipeline, analyzer, forensic, registry, cfg.LiveLogPath)
	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.HTTPHost, cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		serverErr <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown incomplete")
	}

	// Bounded grace for the worker's in-flight analysis.
	select {
	case <-workerDone:
	case <-time.After(10 * time.Second):
		log.Warn().Msg("Worker did not stop within grace period")
	}
	log.Info().Msg("Shutdown complete")
}

func newVectorClient(cfg *config.Config) (vectorstore.Client, error) {
	switch cfg.VectorMode {
	case "memory":
		return vectorstore.NewMemory(), nil
	default:
		// Remote backends plug in here behind vectorstore.Client.
		return nil, fmt.Errorf("unsupported vector store mode %q", cfg.VectorMode)
	}
}
