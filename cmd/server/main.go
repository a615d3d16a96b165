package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shop-order-service/config"
	"shop-order-service/internal/api"
	"shop-order-service/internal/broker"
	"shop-order-service/internal/gateway"
	"shop-order-service/internal/redisclient"
	"shop-order-service/internal/service"
	"shop-order-service/internal/store"
	"shop-order-service/internal/util"
	"shop-order-service/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting shop order service")

	tp, err := util.InitTracer("shop-order-service", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	tolerance, err := decimal.NewFromString(cfg.Business.PriceTolerance)
	if err != nil {
		log.Fatalf("Invalid price tolerance: %v", err)
	}

	gatewayClient := gateway.NewClient(cfg.Gateway)

	cartService := service.NewCartService(db)
	orderService := service.NewOrderService(db, redisClient, eventPublisher, tolerance)
	paymentService := service.NewPaymentService(db, gatewayClient, eventPublisher)
	catalogService := service.NewCatalogService(db, redisClient)

	ctx := context.Background()
	if err := syncStockCache(ctx, db, redisClient); err != nil {
		log.Printf("Failed to seed stock cache: %v", err)
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	notifyConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.ConsumerGroup)
	notifyWorker := worker.NewNotificationWorker(notifyConsumer, worker.NewLogSender())
	go func() {
		if err := notifyWorker.Start(workerCtx); err != nil {
			log.Printf("Notification worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(cartService, orderService, paymentService, catalogService)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	notifyWorker.Stop()

	log.Println("Server exited")
}

// syncStockCache seeds the cached stock mirror from the catalog at boot.
func syncStockCache(ctx context.Context, db *store.Store, cache *redisclient.Client) error {
	products, err := db.GetProducts(ctx)
	if err != nil {
		return err
	}

	for _, product := range products {
		if err := cache.SetStock(ctx, product.ID, product.Stock); err != nil {
			log.Printf("Failed to cache stock for product %d: %v", product.ID, err)
		}
	}

	log.Printf("Stock cache seeded: %d products", len(products))
	return nil
}
