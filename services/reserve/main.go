package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	zlog "github.com/rs/zerolog/log"

	"github.com/matheusmosca/orders-tpc/internal/config"
	"github.com/matheusmosca/orders-tpc/internal/logging"
	"github.com/matheusmosca/orders-tpc/internal/postgres"
	"github.com/matheusmosca/orders-tpc/internal/rpc"
	"github.com/matheusmosca/orders-tpc/internal/telemetry"
	"github.com/matheusmosca/orders-tpc/internal/tpc"
)

func main() {
	cfg, err := config.Load("reserve-service", ":8081", "reserve_db")
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load config")
	}
	logging.Setup(cfg.ServiceName, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Init(ctx, cfg.ServiceName, cfg.Telemetry)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize telemetry")
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			zlog.Error().Err(err).Msg("Error shutting down telemetry")
		}
	}()

	pool, err := postgres.Connect(ctx, cfg.Database)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool, schema+tpc.Schema); err != nil {
		zlog.Fatal().Err(err).Msg("Failed to migrate database")
	}

	coordinator, err := tpc.OpenCoordinator(cfg.Database.DBConf())
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to open coordinator")
	}
	defer coordinator.Close()

	// Setup repositories and use cases
	repository := NewPostgresRepository()
	ledger := NewInventoryLedger(repository)
	participant := tpc.Participant{DB: pool, Registry: tpc.NewRegistry(pool)}
	reserveUseCase := NewReserveUseCase(participant, pool, repository, ledger)
	warehouseUseCase := NewWarehouseUseCase(participant, pool, repository, ledger)

	r := rpc.NewRouter(cfg.ServiceName)
	RegisterRoutes(r, reserveUseCase, warehouseUseCase, coordinator)

	zlog.Info().Msg("🚀 Reserve Service (2PC) starting")
	if err := rpc.Serve(ctx, cfg.HTTPAddr, r); err != nil {
		zlog.Error().Err(err).Msg("Server stopped")
	}
}
