package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-realtime-offers/internal/config"
	"github.com/ariefcatur/go-realtime-offers/internal/httpx"
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

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns)
	if err != nil {
		logger.Error("db connect", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()
	if cfg.RunMigrations {
		if err := postgres.Migrate(ctx, db); err != nil {
			logger.Error("migrate", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// Redis
	rdb, err := redisx.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("redis connect", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer rdb.Close()

	// Kafka producer
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, logger)
	prod.Start(ctx)

	// Engine & handler
	repo := &orders.Repo{DB: db}
	router := httpx.NewRouter(logger)
	oh := &httpx.OrdersHandler{
		Engine:   orders.NewEngine(repo, logger),
		Reader:   repo,
		History:  &orders.HistoryRepo{DB: db},
		Cache:    &redisx.Cache{RDB: rdb},
		Producer: prod,
		Service:  cfg.ServiceName,
		Log:      logger,
	}
	oh.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http listening", slog.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(sctx)
		prod.Close() // no handler publishes after Shutdown returns
		prod.WaitClosed()
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Error("api exit", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
