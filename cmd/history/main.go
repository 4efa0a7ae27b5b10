package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-realtime-offers/internal/config"
	"github.com/ariefcatur/go-realtime-offers/internal/history"
	kafkax "github.com/ariefcatur/go-realtime-offers/internal/kafka"
	"github.com/ariefcatur/go-realtime-offers/internal/orders"
	"github.com/ariefcatur/go-realtime-offers/internal/postgres"
	"github.com/ariefcatur/go-realtime-offers/internal/redisx"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns)
	if err != nil {
		logger.Error("db connect", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := redisx.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("redis connect", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer rdb.Close()

	svc := &history.Service{
		Repo:        &orders.HistoryRepo{DB: db},
		Redis:       rdb,
		ServiceName: cfg.ServiceName + "-history",
		Log:         logger,
	}

	topics := []string{orders.TopicOfferCreated, orders.TopicOfferUpdated}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.HistoryGroup, topics, cfg.HistoryWorkers, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("history consumer started",
			slog.String("group", cfg.HistoryGroup),
			slog.Any("topics", topics),
			slog.Int("workers", cfg.HistoryWorkers),
		)
		return cons.Start(gctx, svc.HandleOfferEvent)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("consumer exit", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("history consumer stopped")
}
