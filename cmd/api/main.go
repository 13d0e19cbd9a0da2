package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/bobarin/reels/internal/api"
	"github.com/bobarin/reels/internal/app"
	"github.com/bobarin/reels/internal/config"
	"github.com/bobarin/reels/internal/db"
	"github.com/bobarin/reels/internal/pipeline"
	"github.com/bobarin/reels/internal/queue"
	"github.com/bobarin/reels/internal/storage"
	"github.com/bobarin/reels/internal/worker"
)

func main() {
	log.Println("Starting Reels API...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to database
	database, err := db.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()
	if err := database.EnsureSchema(context.Background()); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}
	log.Println("Connected to database")

	// Connect to Redis queue
	q, err := queue.New(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to queue: %v", err)
	}
	defer q.Close()
	log.Println("Connected to Redis queue")

	// Initialize storage
	stor := storage.New(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseStorageBucket)
	log.Println("Initialized Supabase storage")

	// Create API handler
	handler := api.NewHandler(database, q, stor, storage.ReelPath)
	router := api.NewRouter(handler, api.RouterConfig{
		BackendAPIKey:      cfg.BackendAPIKey,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
	})

	if cfg.BackendAPIKey != "" {
		log.Println("API key authentication enabled")
	} else {
		log.Println("WARNING: No BACKEND_API_KEY set, API is unprotected (dev mode)")
	}

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	// Start worker if enabled
	var (
		workerCancel context.CancelFunc
		workerDone   sync.WaitGroup
	)
	if cfg.WorkerEnabled {
		log.Println("Worker enabled, starting background processing...")

		p, err := app.Build(cfg, database, pipeline.AnyCancel{q, database})
		if err != nil {
			log.Fatalf("Failed to build pipeline: %v", err)
		}
		if err := p.FFmpeg.CheckInstalled(); err != nil {
			log.Fatalf("Worker needs ffmpeg: %v", err)
		}

		sweeper, err := app.StartSweeper(cfg)
		if err != nil {
			log.Fatalf("%v", err)
		}
		defer sweeper.Stop()

		w := worker.New(database, q, stor, p.Orchestrator, storage.ReelPath)

		var workerCtx context.Context
		workerCtx, workerCancel = context.WithCancel(context.Background())
		workerDone.Add(1)
		go func() {
			defer workerDone.Done()
			w.Start(workerCtx, cfg.MaxConcurrentJobs)
		}()
	}

	go func() {
		log.Printf("API server listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	// in-flight reels see a cancelled context and are recorded as failed
	if workerCancel != nil {
		workerCancel()
		workerDone.Wait()
	}

	log.Println("Server exited")
}
