package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/rs/cors"

	"github.com/quickai-labs/quickai/backend/internal/ai"
	"github.com/quickai-labs/quickai/backend/internal/clipdrop"
	"github.com/quickai-labs/quickai/backend/internal/cloudinary"
	"github.com/quickai-labs/quickai/backend/internal/config"
	"github.com/quickai-labs/quickai/backend/internal/handlers"
	"github.com/quickai-labs/quickai/backend/internal/identity"
	"github.com/quickai-labs/quickai/backend/internal/middleware"
	"github.com/quickai-labs/quickai/backend/internal/quota"
	"github.com/quickai-labs/quickai/backend/internal/workers"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Warn about missing provider keys; features backed by a missing key fail
	// at call time, matching how deployments have always behaved.
	config.WarnMissing()

	// Root context for background workers and graceful shutdown
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	// Run migrations on startup
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		log.Fatalf("Failed to init migration driver: %v", err)
	}
	migrator, err := migrate.NewWithDatabaseInstance("file://db/migrations", "postgres", driver)
	if err != nil {
		log.Fatalf("Failed to create migrator: %v", err)
	}
	if err := migrator.Up(); err != nil && err != migrate.ErrNoChange {
		log.Fatalf("Database migration failed: %v", err)
	}
	log.Println("Database is up-to-date")

	// External service clients
	idClient := identity.NewFromEnv()
	gate := quota.NewGate(idClient)
	auth := middleware.NewAuth(idClient)

	h := handlers.New(db, gate, ai.NewFromEnv(), clipdrop.NewFromEnv(), cloudinary.NewFromEnv())

	r := mux.NewRouter()
	handlers.RegisterRoutes(h, auth, r)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})
	handler := c.Handler(r)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8081"
	}

	srv := &http.Server{
		Handler:      handler,
		Addr:         ":" + port,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}

	// Handle graceful shutdown on SIGINT/SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// Background: sweep leftover free-usage counters on premium accounts.
	{
		enabled := os.Getenv("USAGE_RESET_ENABLED")
		if enabled == "" || enabled == "true" {
			interval := 6 * time.Hour
			if v := os.Getenv("USAGE_RESET_INTERVAL_SECONDS"); v != "" {
				if d, err := time.ParseDuration(v + "s"); err == nil && d > 0 {
					interval = d
				}
			}
			w := &workers.PremiumUsageResetWorker{Directory: idClient, Interval: interval}
			go w.Start(rootCtx)
		} else {
			log.Printf("[UsageResetWorker] disabled via USAGE_RESET_ENABLED=%q", enabled)
		}
	}

	go func() {
		<-stop
		log.Println("Shutting down server...")
		cancel()
		ctx, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("Server starting on port %s", port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
	log.Println("Server stopped")
}
