package main

import (
	"context"
	"fmt"
	"os"

	"github.com/skysketch/editor-backend/internal/app"
	"github.com/skysketch/editor-backend/internal/clients/showapi"
	"github.com/skysketch/editor-backend/internal/handlers"
	"github.com/skysketch/editor-backend/internal/observability"
	"github.com/skysketch/editor-backend/internal/platform/logger"
	"github.com/skysketch/editor-backend/internal/realtime"
	"github.com/skysketch/editor-backend/internal/server"
	"github.com/skysketch/editor-backend/internal/services"
	"github.com/skysketch/editor-backend/internal/store"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Config
	log.Info("Loading configuration from main...")
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Error("Could not load config", "error", err)
		os.Exit(1)
	}

	// Tracing
	log.Info("Setting up tracing from main...")
	otelShutdown := observability.InitOTel(context.Background(), log, observability.Config{
		ServiceName: "editor-backend",
		Environment: logMode,
		Version:     os.Getenv("SERVICE_VERSION"),
	})
	if otelShutdown != nil {
		defer func() {
			if err := otelShutdown(context.Background()); err != nil {
				log.Warn("otel shutdown failed", "error", err)
			}
		}()
	}

	// Durable store
	log.Info("Setting up canvas store from main...")
	db, err := store.Open(log)
	if err != nil {
		log.Error("Canvas store init failed", "error", err)
		os.Exit(1)
	}
	stateRepo := store.NewCanvasStateRepo(db, log)
	localStore, err := store.New(stateRepo, cfg.Policy.MemoryCacheSize, log)
	if err != nil {
		log.Error("Canvas store cache init failed", "error", err)
		os.Exit(1)
	}
	if removed, err := localStore.CleanupOlderThan(context.Background(), cfg.Policy.StoreRetention); err != nil {
		log.Warn("Startup store cleanup failed", "error", err)
	} else if removed > 0 {
		log.Info("Startup store cleanup done", "removed", removed)
	}

	// Clients
	log.Info("Setting up clients from main...")
	showClient := showapi.NewClient(log)
	previewBus := realtime.FromEnv(log)
	defer previewBus.Close()

	// Services
	log.Info("Setting up services from main...")
	editorService := services.NewEditorService(log, cfg.Policy, localStore, showClient, previewBus)
	defer editorService.CloseAll(context.Background())

	// Handlers
	log.Info("Setting up handlers from main...")
	sessionHandler := handlers.NewSessionHandler(editorService)
	layerHandler := handlers.NewLayerHandler(editorService)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		ServiceName:    "editor-backend",
		SessionHandler: sessionHandler,
		LayerHandler:   layerHandler,
	})

	log.Info("Starting server", "port", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Error("Server exited", "error", err)
		os.Exit(1)
	}
}
