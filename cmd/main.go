// Command treasuryops runs the treasury dashboard service. It reconciles
// the primary backend API against on-chain ledger state, persists a local
// snapshot timeseries, and serves the unified view plus yield and payment
// write actions over HTTP.
//
// Usage:
//
//	treasuryops --config config.yaml
//	treasuryops (runs the setup wizard when no config is found)
//
// Optional environment variables:
//
//	TREASURY_OPERATOR_KEY (or the key named by operator_key_env) enables
//	on-chain write actions; without it the service runs read-only.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/gigpay/treasuryops/config"
	"github.com/gigpay/treasuryops/internal/clients"
	"github.com/gigpay/treasuryops/internal/events"
	"github.com/gigpay/treasuryops/internal/services/fallback"
	"github.com/gigpay/treasuryops/internal/services/gatekeeper"
	"github.com/gigpay/treasuryops/internal/services/intent"
	"github.com/gigpay/treasuryops/internal/services/reconciler"
	"github.com/gigpay/treasuryops/internal/setup"
	"github.com/gigpay/treasuryops/internal/storage/snapshots"
	"github.com/gigpay/treasuryops/internal/web"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Get()
	if err != nil {
		if err := setup.RunTUI(); err != nil {
			log.Fatal(err)
		}
		cfg, err = config.Load("config.gen.yaml")
		if err != nil {
			log.Fatal(err)
		}
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ledger, err := clients.NewLedgerClient(ctx, cfg.RPCURL, uint64(cfg.ChainID),
		cfg.RegistryAddress.Hex(), cfg.TreasuryAddress.Hex(), os.Getenv(cfg.OperatorKeyEnv))
	if err != nil {
		logger.Fatal("connect ledger", zap.Error(err))
	}

	store, err := snapshots.NewWALStore(cfg.WALDir, uint64(cfg.ChainID), cfg.TreasuryAddress.Hex(), cfg.SampleInterval)
	if err != nil {
		logger.Fatal("open snapshot store", zap.Error(err))
	}
	defer store.Close()

	backend := clients.NewBackendClient(cfg.BackendURL, cfg.BackendAPIKey)
	aggregator := fallback.NewAggregator(ledger, cfg.Assets, logger)
	views := events.NewViewBroadcaster(8)
	controller := reconciler.New(backend, aggregator, store, views, cfg.CallTimeout, logger)

	go func() {
		if err := controller.Run(ctx, cfg.PollInterval, cfg.DefaultRange); err != nil {
			logger.Error("reconciliation loop stopped", zap.Error(err))
		}
	}()

	if cfg.Owner != "" {
		go controller.RefreshJobs(ctx, cfg.Owner)
	}

	server := web.NewServer(cfg.ListenAddr,
		controller,
		gatekeeper.New(ledger, cfg.Assets, logger),
		intent.New(ledger, ledger, cfg.Assets, logger),
		views)

	logger.Info("treasury dashboard listening",
		zap.String("addr", cfg.ListenAddr),
		zap.Int64("chain_id", cfg.ChainID),
		zap.String("treasury", cfg.TreasuryAddress.Hex()))

	if err := server.Start(ctx); err != nil {
		logger.Fatal("web server", zap.Error(err))
	}
}
