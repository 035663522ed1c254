// Command walletsync runs the client-side wallet session layer: it keeps a
// unified balance view reconciled across the token contract, the escrow
// contract and the server-side ledger, monitors wallet session health, and
// drives deposit/withdraw flows against the escrow.
//
// Usage:
//
//	walletsync --config config.yaml
//	walletsync setup   (interactive configuration wizard)
//
// Required environment variables:
//
//	WALLETSYNC_PRIVATE_KEY - hex-encoded signing key for the wallet account
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/walletsync/config"
	"github.com/vadiminshakov/walletsync/internal"
	"github.com/vadiminshakov/walletsync/internal/clients"
	"github.com/vadiminshakov/walletsync/internal/setup"
	"github.com/vadiminshakov/walletsync/internal/web"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "setup" {
		if err := setup.RunTUI(); err != nil {
			log.Fatal(err)
		}
		return
	}

	cfg, err := config.Get()
	if err != nil {
		log.Fatal(err)
	}

	key := os.Getenv("WALLETSYNC_PRIVATE_KEY")
	if key == "" {
		log.Fatal("WALLETSYNC_PRIVATE_KEY environment variable must be set")
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	connector, err := clients.NewEthConnector(key, cfg.RPCEndpoints, cfg.ChainID)
	if err != nil {
		logger.Fatal("failed to create connector", zap.Error(err))
	}

	app, err := internal.NewWalletApp(cfg, connector, logger)
	if err != nil {
		logger.Fatal("failed to wire wallet session layer", zap.Error(err))
	}
	defer app.Close()

	server := web.NewServer(cfg.DashboardAddr, app.SnapshotStore(), app.Journal(), app, logger.Named("web"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.Run(ctx)
	})
	g.Go(func() error {
		logger.Info("dashboard listening", zap.String("addr", cfg.DashboardAddr))
		return server.Start(ctx)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error("shutdown with error", zap.Error(err))
	}
}
