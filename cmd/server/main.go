package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"boldestate-backend/internal/config"
	"boldestate-backend/internal/conversation"
	"boldestate-backend/internal/database"
	"boldestate-backend/internal/handlers"
	"boldestate-backend/internal/logger"
	"boldestate-backend/internal/middleware"
	"boldestate-backend/internal/render"
	"boldestate-backend/internal/repository"
	"boldestate-backend/internal/router"
	"boldestate-backend/internal/services"
	"boldestate-backend/internal/websocket"
	"boldestate-backend/internal/worker"
)

func main() {
	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	log.Info("🚀 Starting BoldEstate Assistant Backend...")
	log.Info("✓ Environment variables loaded")

	// ──── Step 2: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(context.Background(), cfg.RedisURL)
	if err != nil {
		log.Fatalf("✗ Redis connection failed: %v", err)
	}
	defer redisClients.Close()
	log.Info("✓ Redis connected")

	// ──── Step 3: Exchange Log (optional) ────
	var (
		pool       *pgxpool.Pool
		recorder   services.ExchangeRecorder
		workerPool *worker.Pool
	)
	if cfg.DatabaseURL != "" {
		pool, err = database.NewPostgresPool(context.Background(), cfg.DatabaseURL, cfg.WorkerCount)
		if err != nil {
			log.Fatalf("✗ PostgreSQL connection failed: %v", err)
		}
		defer pool.Close()
		log.Info("✓ PostgreSQL connected")

		if err := database.RunMigrations(context.Background(), pool, os.DirFS("migrations"), log); err != nil {
			log.Fatalf("✗ Database migration failed: %v", err)
		}
		log.Info("✓ Database migrations applied")

		queue := worker.NewRedisQueue(redisClients.Queue)
		recorder = worker.NewRecorder(queue)
		workerPool = worker.NewPool(queue, repository.NewExchangeRepo(pool), cfg.WorkerCount, log)
		workerPool.Start()
		log.Infof("✓ Exchange log worker pool started (%d goroutines)", cfg.WorkerCount)
	} else {
		log.Warn("DATABASE_URL not set, exchange log disabled")
	}

	// ──── Step 4: Initialize Gemini Client ────
	var generator services.Generator
	if cfg.GeminiAPIKey != "" {
		generator, err = services.NewGenerator(cfg.GeminiTransport, cfg.GeminiAPIKey, cfg.GeminiEndpoint)
		if err != nil {
			log.Fatalf("✗ Gemini client initialization failed: %v", err)
		}
		log.Infof("✓ Gemini client initialized (%s transport)", cfg.GeminiTransport)
	} else {
		log.Warn("GEMINI_API_KEY not set, assistant will answer with setup instructions")
	}

	assistant := services.NewAssistantService(generator, services.AssistantOptions{
		Timeout:           cfg.GeminiTimeout,
		ConcurrentReqs:    cfg.GeminiConcurrentReqs,
		RequestsPerMinute: cfg.GeminiRequestsPerMin,
	}, recorder, log)
	defer assistant.Close()

	// ──── Step 5: Conversations ────
	registry := conversation.NewRegistry(cfg.ConversationIdleTTL, log)
	registry.StartReaper(time.Minute)

	conversations := conversation.NewService(conversation.ServiceOptions{
		Replies: func(id uuid.UUID, profile *services.Profile) conversation.Replier {
			return assistant.ClientFor(id, profile)
		},
		Registry:         registry,
		Publisher:        websocket.NewRedisPublisher(redisClients.PubSub),
		Renderer:         render.NewMarkdown(),
		DefaultVariant:   cfg.DefaultVariant,
		UtteranceTimeout: cfg.SpeechUtteranceTimeout,
		Log:              log,
	})
	log.Infof("✓ Conversation registry started (idle TTL %s)", cfg.ConversationIdleTTL)

	// ──── Step 6: Start WebSocket Hub ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	wsHub := websocket.NewHub(redisClients.PubSub, jwtAuth, conversations, log)
	log.Info("✓ WebSocket hub started")

	// ──── Step 7: Start HTTP Server ────
	r, stopLimiters := router.New(
		jwtAuth,
		handlers.NewConversationHandler(conversations, jwtAuth, log),
		handlers.NewHealthHandler(redisClients, registry, assistant.Configured()),
		wsHub,
		cfg.FrontendURL,
		router.Limits{
			CreatePerMinute: cfg.CreateRateLimit,
			SubmitPerMinute: cfg.SubmitRateLimit,
		},
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.WithError(err).Warn("HTTP server shutdown incomplete")
		}

		wsHub.Close()
		registry.Stop()
		stopLimiters()
		if workerPool != nil {
			workerPool.Stop()
		}
	}()

	log.Infof("✓ BoldEstate Assistant ready on http://localhost:%s", cfg.Port)
	log.Infof("  API: http://localhost:%s/api/v1", cfg.Port)
	log.Infof("  WS:  ws://localhost:%s/api/v1/ws", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
	<-shutdownDone
	log.Info("Shutdown complete")
}
