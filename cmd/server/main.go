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

	"lawfi-backend/internal/config"
	"lawfi-backend/internal/database"
	"lawfi-backend/internal/handlers"
	"lawfi-backend/internal/llm"
	"lawfi-backend/internal/middleware"
	"lawfi-backend/internal/repository"
	"lawfi-backend/internal/router"
	"lawfi-backend/internal/services"
	"lawfi-backend/internal/websocket"
	"lawfi-backend/internal/worker"
)

func main() {
	log.Println("🚀 Starting LawFI Backend...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("✗ PostgreSQL connection failed: %v", err)
	}
	defer pool.Close()
	log.Println("✓ PostgreSQL connected")

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(cfg.RedisURL)
	if err != nil {
		log.Fatalf("✗ Redis connection failed: %v", err)
	}
	defer redisClients.Close()
	log.Println("✓ Redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.Migrate(pool, "migrations"); err != nil {
		log.Fatalf("✗ Database migration failed: %v", err)
	}
	log.Println("✓ Database migrations applied")

	// ──── Step 5: Initialize Generation Adapter ────
	// A missing credential is not fatal at boot. The chat endpoint
	// reports it per request so the rest of the app stays usable.
	adapter, credEnvVar, err := buildAdapter(cfg)
	if err != nil {
		log.Fatalf("✗ Generation adapter initialization failed: %v", err)
	}
	if adapter == nil {
		log.Printf("⚠ %s not set; chat will return a configuration error", credEnvVar)
	} else {
		log.Printf("✓ Generation adapter ready (%s)", cfg.LLMProvider)
	}

	// ──── Initialize Repositories ────
	userRepo := repository.NewUserRepo(pool)
	chatRepo := repository.NewChatRepo(pool)

	// ──── Initialize Services ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	emailService := services.NewEmailService(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.FrontendURL)
	authService := services.NewAuthService(userRepo, redisClients.Queue, jwtAuth, emailService, cfg.GoogleClientID)
	notifier := services.NewNotifier(redisClients.Queue)

	// ──── Initialize Handlers ────
	authHandler := handlers.NewAuthHandler(authService)
	chatHandler := handlers.NewChatHandler(adapter, credEnvVar)
	conversationHandler := handlers.NewConversationHandler(chatRepo, redisClients.Queue, notifier)

	// ──── Step 6: Start Job Worker Pool ────
	workerPool := worker.NewPool(redisClients.Queue, adapter, chatRepo, notifier, 3)
	workerPool.Start()
	log.Println("✓ Worker pool started (3 goroutines)")

	// ──── Step 7: Start WebSocket Hub ────
	wsHub := websocket.NewHub(redisClients.PubSub, cfg.JWTSecret)
	log.Println("✓ WebSocket hub started")

	// ──── Step 8: Start HTTP Server ────
	r := router.New(
		jwtAuth,
		authHandler,
		chatHandler,
		conversationHandler,
		wsHub,
		cfg.FrontendURL,
	)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: r,
		// WriteTimeout must cover a full streamed reply, so it is far
		// longer than the usual request timeout.
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 6 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		workerPool.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("✓ LawFI Backend ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)
	log.Printf("  WS:  ws://localhost:%s/api/v1/ws", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}

// buildAdapter constructs the configured provider adapter, or returns a
// nil adapter plus the name of the credential variable when it is unset.
func buildAdapter(cfg *config.Config) (llm.Adapter, string, error) {
	switch cfg.LLMProvider {
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return nil, "GEMINI_API_KEY", nil
		}
		adapter, err := llm.NewGemini(context.Background(), llm.GeminiConfig{
			APIKey:      cfg.GeminiAPIKey,
			Model:       cfg.GeminiModel,
			System:      llm.SystemPrompt,
			MaxTokens:   cfg.LLMMaxTokens,
			Temperature: cfg.LLMTemperature,
		})
		return adapter, "GEMINI_API_KEY", err
	default:
		if cfg.AnthropicAPIKey == "" {
			return nil, "ANTHROPIC_API_KEY", nil
		}
		adapter, err := llm.NewAnthropic(llm.AnthropicConfig{
			APIKey:      cfg.AnthropicAPIKey,
			Model:       cfg.AnthropicModel,
			System:      llm.SystemPrompt,
			MaxTokens:   cfg.LLMMaxTokens,
			Temperature: cfg.LLMTemperature,
		})
		return adapter, "ANTHROPIC_API_KEY", err
	}
}
