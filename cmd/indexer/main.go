package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/goran-ethernal/staking-indexer/internal/backfill"
	"github.com/goran-ethernal/staking-indexer/internal/checkpoint"
	"github.com/goran-ethernal/staking-indexer/internal/common"
	"github.com/goran-ethernal/staking-indexer/internal/config"
	"github.com/goran-ethernal/staking-indexer/internal/db"
	"github.com/goran-ethernal/staking-indexer/internal/db/migrations"
	"github.com/goran-ethernal/staking-indexer/internal/ingest"
	"github.com/goran-ethernal/staking-indexer/internal/logger"
	"github.com/goran-ethernal/staking-indexer/internal/metrics"
	"github.com/goran-ethernal/staking-indexer/internal/reorg"
	"github.com/goran-ethernal/staking-indexer/internal/rpc"
	"github.com/goran-ethernal/staking-indexer/pkg/api"
)

const version = "1.0.0"

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "staking-indexer",
	Short: "Staking contract event indexer",
	Long: `staking-indexer backfills and indexes staking contract events into a
local SQLite database. It detects gaps in the indexed block range, fetches
the missing blocks concurrently, guards against chain reorganizations and
exposes the indexed events over a read-only HTTP API.`,
	Version: version,
	RunE:    runIndexer,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to configuration file")
}

func runIndexer(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nShutting down gracefully...")
		cancel()
	}()

	log := logger.NewComponentLoggerFromConfig(common.ComponentPipeline, cfg.Logging)

	log.Info("Connecting to Ethereum node...")
	contract := ethcommon.HexToAddress(cfg.Ingest.ContractAddress)
	client, err := rpc.NewClient(ctx, cfg.RPC, contract)
	if err != nil {
		return fmt.Errorf("failed to create RPC client: %w", err)
	}
	log.Infof("Connected to Ethereum node: %s", cfg.RPC.URL)

	var metricsServer *metrics.Server
	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics)
		if err := metricsServer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer func() {
			if err := metricsServer.Stop(ctx); err != nil {
				log.Warnf("Failed to stop metrics server: %v", err)
			}
		}()
		log.Infof("Metrics server started on %s%s", cfg.Metrics.ListenAddress, cfg.Metrics.Path)
	}

	log.Info("Running database migrations...")
	if err := migrations.RunMigrations(cfg.DB.Path); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	database, err := db.NewSQLiteDBFromConfig(cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer database.Close()

	store := checkpoint.NewStore(database,
		logger.NewComponentLoggerFromConfig(common.ComponentCheckpoint, cfg.Logging))

	guard := reorg.NewGuard(store, client, cfg.Ingest.ReorgWindow,
		logger.NewComponentLoggerFromConfig(common.ComponentReorgGuard, cfg.Logging))

	scheduler := backfill.NewScheduler(client, store, guard, cfg.Ingest,
		logger.NewComponentLoggerFromConfig(common.ComponentScheduler, cfg.Logging))

	pipeline := ingest.NewPipeline(client, store, guard, scheduler, cfg.Ingest, log)

	if cfg.API != nil && cfg.API.Enabled {
		apiServer := api.NewServer(cfg.API, store, cfg.Ingest.MinBlockHeight,
			logger.NewComponentLoggerFromConfig(common.ComponentAPI, cfg.Logging))
		go func() {
			if err := apiServer.Start(ctx); err != nil {
				log.Errorf("API server error: %v", err)
			}
		}()
	}

	log.Infof("Indexing %s from block %d", cfg.Ingest.ContractAddress, cfg.Ingest.MinBlockHeight)

	if err := pipeline.Start(ctx); err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	log.Info("Indexer stopped successfully")
	return nil
}
