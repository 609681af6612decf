package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/skysketch/editor-backend/internal/handlers"
)

type RouterConfig struct {
	ServiceName    string
	SessionHandler *handlers.SessionHandler
	LayerHandler   *handlers.LayerHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	// Tracing
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "editor-backend"
	}
	router.Use(otelgin.Middleware(serviceName))
	router.Use(AttachTraceContext())

	// Cors
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
			"http://localhost:5174",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	{
		api.POST("/sessions", cfg.SessionHandler.Open)
		api.DELETE("/sessions/:id", cfg.SessionHandler.Close)
		api.GET("/sessions/:id/status", cfg.SessionHandler.Status)

		// event ingestion
		api.POST("/sessions/:id/pointer", cfg.SessionHandler.Pointer)
		api.POST("/sessions/:id/wheel", cfg.SessionHandler.Wheel)
		api.POST("/sessions/:id/resize", cfg.SessionHandler.Resize)

		// mode and color
		api.PUT("/sessions/:id/mode", cfg.SessionHandler.SetMode)
		api.PUT("/sessions/:id/color", cfg.SessionHandler.SetColor)

		// document
		api.GET("/sessions/:id/document", cfg.SessionHandler.Serialize)
		api.PUT("/sessions/:id/document", cfg.SessionHandler.Load)
		api.POST("/sessions/:id/clear", cfg.SessionHandler.Clear)
		api.GET("/sessions/:id/export.png", cfg.SessionHandler.Export)

		// history
		api.POST("/sessions/:id/undo", cfg.SessionHandler.Undo)
		api.POST("/sessions/:id/redo", cfg.SessionHandler.Redo)

		// persistence
		api.POST("/sessions/:id/save", cfg.SessionHandler.Save)
		api.PUT("/sessions/:id/save-mode", cfg.SessionHandler.ChangeSaveMode)
		api.POST("/sessions/:id/scene", cfg.SessionHandler.SwitchScene)
		api.POST("/sessions/:id/convert", cfg.SessionHandler.Convert)
		api.POST("/sessions/:id/thumbnail", cfg.SessionHandler.Thumbnail)

		// layers
		api.GET("/sessions/:id/layers", cfg.LayerHandler.List)
		api.POST("/sessions/:id/layers", cfg.LayerHandler.Create)
		api.DELETE("/sessions/:id/layers/:layerId", cfg.LayerHandler.Delete)
		api.PUT("/sessions/:id/layers/:layerId/activate", cfg.LayerHandler.Activate)
		api.PUT("/sessions/:id/layers/:layerId/visibility", cfg.LayerHandler.ToggleVisibility)
		api.PUT("/sessions/:id/layers/:layerId/lock", cfg.LayerHandler.ToggleLock)
		api.PUT("/sessions/:id/layers/:layerId/name", cfg.LayerHandler.Rename)
		api.PUT("/sessions/:id/layers/:layerId/position", cfg.LayerHandler.Reorder)
	}

	return router
}
