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

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/launchsignal/orchestrator/agentclient"
	"github.com/launchsignal/orchestrator/api"
	"github.com/launchsignal/orchestrator/config"
	"github.com/launchsignal/orchestrator/domain"
	"github.com/launchsignal/orchestrator/eventbus"
	"github.com/launchsignal/orchestrator/planner"
	"github.com/launchsignal/orchestrator/policy"
	"github.com/launchsignal/orchestrator/ratelimit"
	"github.com/launchsignal/orchestrator/saga"
	"github.com/launchsignal/orchestrator/service"
	"github.com/launchsignal/orchestrator/session"
	"github.com/launchsignal/orchestrator/store"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting orchestrator...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Database: %s", cfg.DatabaseURL)
	if cfg.NATSURL != "" {
		log.Printf("Event bus: NATS at %s", cfg.NATSURL)
	} else {
		log.Printf("Event bus: in-process")
	}

	// Initialize store
	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer db.Close()

	// Initialize event bus
	var bus eventbus.Bus
	if cfg.NATSURL != "" {
		bus, err = eventbus.NewNATSBus(cfg.NATSURL, cfg.EventPrefix, cfg.RetryDelayBase, cfg.MaxRetries)
		if err != nil {
			log.Fatalf("Failed to connect to NATS: %v", err)
		}
	} else {
		bus = eventbus.NewInProc(cfg.EventPrefix, cfg.RetryDelayBase, cfg.MaxRetries)
	}
	defer bus.Close()

	// Audit recorder: every bus event lands in the store
	ctx := context.Background()
	if _, err := bus.Subscribe(cfg.EventPrefix+".>", func(ctx context.Context, ev *domain.AgentEvent) error {
		return db.RecordEvent(ctx, ev)
	}); err != nil {
		log.Fatalf("Failed to subscribe audit recorder: %v", err)
	}

	// Initialize policy engine
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		log.Fatalf("Failed to initialize policy engine: %v", err)
	}

	// Initialize agent client behind the rate limiter
	limiter := ratelimit.New(cfg.RateLimitRequests, cfg.RateLimitTokens, time.Minute)
	agents := agentclient.NewClient(cfg.AgentTimeout, limiter)

	// Register one agent executor per action type
	registry := saga.NewRegistry()
	for _, actionType := range []domain.ActionType{
		domain.ActionCreateVideo,
		domain.ActionSchedulePost,
		domain.ActionAnalyzeAudience,
		domain.ActionGenerateContent,
		domain.ActionOptimizeTiming,
	} {
		registry.Register(string(actionType), saga.NewAgentExecutor(agents, cfg.AgentBaseURL))
	}

	// Initialize services
	sagaEngine := saga.NewEngine(db, bus, policyEngine, registry, cfg.StepTimeout, cfg.RetryDelayBase, cfg.MaxRetries)
	sessions := session.New(db, bus, cfg.SessionTTL, cfg.MaxRecentTurns)
	plans := planner.New(bus)
	meta := service.New(sessions, plans, sagaEngine)

	// Initialize handlers
	h := api.NewHandler(plans, sagaEngine, sessions, meta, bus, cfg)

	// Create Echo server
	server := echo.New()
	server.HideBanner = true

	// Middleware
	server.Use(middleware.Logger())
	server.Use(middleware.Recover())
	server.Use(middleware.CORS())

	h.RegisterRoutes(server)

	// Start server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("API started on port %d", cfg.HTTPPort)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down orchestrator...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server gracefully: %v", err)
	}

	log.Println("Orchestrator stopped")
}
