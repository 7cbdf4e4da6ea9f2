package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"fulfillment-engine/internal/adapters/events"
	"fulfillment-engine/internal/app"
	"fulfillment-engine/internal/core"
	"fulfillment-engine/internal/db"

	"github.com/joho/godotenv"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	stockService := core.NewStockService(pool)
	reservationService := core.NewReservationService(pool)
	expirationService := core.NewExpirationService(pool, reservationService)
	planner := core.NewAllocationPlanner(pool)
	orchestrator := core.NewOrchestrator(pool, stockService, reservationService, planner, reservationTTL())

	svc := app.NewAppService(stockService, expirationService, orchestrator)

	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:        brokers(),
		GroupID:        envOr("KAFKA_GROUP_ID", "fulfillment-engine"),
		Topic:          envOr("KAFKA_TOPIC", "inventory-events"),
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // synchronous commits; offsets advance per message
	})
	defer reader.Close()

	handler := events.NewMessageHandler(svc, logger)
	consumer := events.NewConsumer(reader, handler, logger)

	if err := consumer.Run(ctx); err != nil {
		logger.Fatal("consumer", zap.Error(err))
	}
	logger.Info("worker shut down")
}

func brokers() []string {
	v := envOr("KAFKA_BROKERS", "localhost:9092")
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func reservationTTL() time.Duration {
	if v := os.Getenv("RESERVATION_TTL_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Minute
		}
	}
	return core.DefaultReservationTTL
}
