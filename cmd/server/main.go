package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ghshop/storefront/internal/adapter/gateway"
	"github.com/ghshop/storefront/internal/adapter/handler"
	"github.com/ghshop/storefront/internal/adapter/storage"
	"github.com/ghshop/storefront/internal/config"
	"github.com/ghshop/storefront/internal/core/domain"
	"github.com/ghshop/storefront/internal/core/service"
	"github.com/ghshop/storefront/internal/logging"
	"github.com/ghshop/storefront/internal/observability"
	"github.com/ghshop/storefront/internal/port"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New("storefront")
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	// MySQL
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		logger.Fatal("failed to connect mysql", zap.Error(err))
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		logger.Fatal("failed to ping mysql", zap.Error(err))
	}
	logger.Info("connected to mysql")

	if err := storage.RunMigrations(db, cfg.MigrationsPath); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	logger.Info("database migrations completed")

	// Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		PoolSize: 100,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to connect redis", zap.Error(err))
	}
	logger.Info("connected to redis")

	// Adapters
	store := storage.NewMySQLAdapter(db)
	cache := storage.NewRedisAdapter(rdb)
	payGateway := gateway.New(cfg.Gateway, nil)

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)

	// Services
	events := service.NewEventQueue(cfg.EventQueueSize, logger)
	orderService := service.NewOrderService(store, store, store, events, metrics, logger)
	invoiceService := service.NewInvoiceService(store, store, events, metrics, logger)
	paymentService := service.NewPaymentService(store, store, payGateway, cache, invoiceService, metrics, logger)

	// Notifier worker pool
	var wg sync.WaitGroup
	for i := 0; i < cfg.WorkerCount; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			notifierLoop(id, events.Events(), cache, logger)
		}(i)
	}
	logger.Info("started notifier workers", zap.Int("count", cfg.WorkerCount))

	// HTTP server
	httpHandler := handler.NewHTTPHandler(orderService, invoiceService, paymentService, logger)
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	httpHandler.Register(r)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	logger.Info("HTTP server stopped")

	// Close event queue and wait for notifier workers
	events.Close()
	wg.Wait()
	logger.Info("notifier workers stopped")

	rdb.Close()
	db.Close()
	logger.Info("connections closed")
}

func notifierLoop(id int, queue <-chan domain.InvoiceEvent, notifier port.Notifier, logger *zap.Logger) {
	for event := range queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)

		if err := notifier.Notify(ctx, event); err != nil {
			// best-effort delivery; the pipeline never waits on it
			logger.Warn("event delivery failed",
				zap.Int("worker", id),
				zap.String("type", string(event.Type)),
				zap.String("invoiceID", event.InvoiceID),
				zap.Error(err),
			)
		}

		cancel()
	}
}
