package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/matheusmosca/orders-tpc/internal/config"
	"github.com/matheusmosca/orders-tpc/internal/kafka"
	"github.com/matheusmosca/orders-tpc/internal/logging"
	"github.com/matheusmosca/orders-tpc/internal/postgres"
	"github.com/matheusmosca/orders-tpc/internal/rpc"
	"github.com/matheusmosca/orders-tpc/internal/telemetry"
	"github.com/matheusmosca/orders-tpc/internal/tpc"
)

func main() {
	cfg, err := config.Load("orders-service", ":8080", "orders_db")
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

	// Setup participant clients
	p := cfg.Participants
	paymentsRPC := rpc.NewClient("payments-service", p.PaymentsURL, p.Timeout, p.ConnectTimeout)
	reserveRPC := rpc.NewClient("reserve-service", p.ReserveURL, p.Timeout, p.ConnectTimeout)

	var costs CostSource = NewWarehouseClient(reserveRPC)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			zlog.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("⚠️ Redis unavailable, item costs will not be cached until it recovers")
		}
		cancel()
		costs = NewCachedCostSource(rdb, costs, cfg.Redis.CostTTL)
	}

	// Setup repositories and use cases
	participant := tpc.Participant{DB: pool, Registry: tpc.NewRegistry(pool)}
	orderUseCase := NewOrderUseCase(
		participant,
		pool,
		NewPostgresOrderRepository(),
		NewPaymentClient(paymentsRPC),
		NewReserveClient(reserveRPC),
		costs,
		Finalizers{
			Payment: tpc.NewClient(paymentsRPC),
			Reserve: tpc.NewClient(reserveRPC),
			Order:   coordinator,
		},
	)

	r := rpc.NewRouter(cfg.ServiceName)
	RegisterRoutes(r, orderUseCase, coordinator)

	listener := NewBalanceListener(orderUseCase, cfg.TwoPhaseCommit)
	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.BalanceTopic)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zlog.Info().Msg("🚀 Orders Service (2PC) starting")
		return rpc.Serve(gctx, cfg.HTTPAddr, r)
	})
	g.Go(func() error {
		zlog.Info().Str("topic", cfg.Kafka.BalanceTopic).Msg("👂 Balance listener starting")
		return consumer.Run(gctx, listener.Handle)
	})

	if err := g.Wait(); err != nil {
		zlog.Error().Err(err).Msg("Server stopped")
	}
}
