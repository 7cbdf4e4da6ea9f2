package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	webAdapter "fulfillment-engine/internal/adapters/web"
	"fulfillment-engine/internal/app"
	"fulfillment-engine/internal/core"
	"fulfillment-engine/internal/db"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	ctx := context.Background()
	pool, err := db.NewPool(ctx)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer pool.Close()

	stockService := core.NewStockService(pool)
	reservationService := core.NewReservationService(pool)
	expirationService := core.NewExpirationService(pool, reservationService)
	planner := core.NewAllocationPlanner(pool)
	orchestrator := core.NewOrchestrator(pool, stockService, reservationService, planner, reservationTTL())

	svc := app.NewAppService(stockService, expirationService, orchestrator)

	// Periodic expiration sweep; the admin endpoint can also trigger it.
	go runSweep(ctx, svc)

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}

	handler := webAdapter.NewHandler(svc)
	log.Printf("server starting on :%s", port)
	if err := http.ListenAndServe(":"+port, handler); err != nil {
		log.Fatalf("server: %v", err)
	}
}

func runSweep(ctx context.Context, svc app.ApplicationService) {
	interval := 60 * time.Second
	if v := os.Getenv("SWEEP_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			interval = time.Duration(n) * time.Second
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count, err := svc.CleanupExpiredReservations(ctx)
			if err != nil {
				log.Printf("expiration sweep: %v", err)
			}
			if count > 0 {
				log.Printf("expiration sweep released %d reservations", count)
			}
		}
	}
}

func reservationTTL() time.Duration {
	if v := os.Getenv("RESERVATION_TTL_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Minute
		}
	}
	return core.DefaultReservationTTL
}
