package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"order-store/config"
	"order-store/internal/api"
	"order-store/internal/backend"
	"order-store/internal/broker"
	"order-store/internal/ingest"
	"order-store/internal/models"
	"order-store/internal/service"
	"order-store/internal/store"
	"order-store/internal/util"
	"order-store/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting order store", zap.String("backend", cfg.Backend))

	tp, err := util.InitTracer("order-store", cfg.Observ.JaegerEndpoint, cfg.Observ.TraceSampling)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	ctx := context.Background()

	b, err := backend.Open(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to open backend", zap.Error(err))
	}
	recordStore := store.NewStore(b, models.DefaultSchema())
	defer recordStore.Close()

	if _, err := recordStore.EnsureSchema(ctx); err != nil {
		logger.Fatal("Failed to ensure schema", zap.Error(err))
	}

	// Kafka is optional: without brokers writes publish no events and no ingest worker runs
	var (
		recordEvents service.EventPublisher
		importEvents ingest.Publisher
		ingestWorker *worker.IngestWorker
	)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	if cfg.Kafka.Enabled() {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents)
		defer producer.Close()
		eventPublisher := broker.NewEventPublisher(producer)
		recordEvents, importEvents = eventPublisher, eventPublisher
		logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicEvents))
	}

	orderService := service.NewOrderService(recordStore, recordEvents)
	queryService := service.NewQueryService(recordStore)
	importer := ingest.NewImporter(orderService, recordStore, importEvents, ingest.Options{
		Concurrency:     cfg.Import.Concurrency,
		WritesPerSecond: cfg.Import.WritesPerSecond,
	})

	if cfg.Kafka.Enabled() {
		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicIngest, cfg.Kafka.ConsumerGroup)
		ingestWorker = worker.NewIngestWorker(consumer, orderService)
		go func() {
			if err := ingestWorker.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Ingest worker error", zap.Error(err))
			}
		}()
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(orderService, queryService, importer, cfg.Import.DataDir)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if ingestWorker != nil {
		_ = ingestWorker.Stop()
	}

	logger.Info("Server exited")
}
