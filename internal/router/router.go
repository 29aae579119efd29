package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/docquiz-backend/internal/config"
	"github.com/stemsi/docquiz-backend/internal/handler"
	"github.com/stemsi/docquiz-backend/internal/middleware"
	"github.com/stemsi/docquiz-backend/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Quiz    *handler.QuizHandler
	Export  *handler.ExportHandler
	WS      *handler.WSHandler
	Monitor *handler.MonitorHandler
	System  *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	generateLimiter *middleware.RateLimiter,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()
	router.MaxMultipartMemory = 8 << 20

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "X-RateLimit-Remaining", "Retry-After"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	router.Use(middleware.Brotli())

	router.GET("/health", handlers.System.Health)

	// ─── 1. Authorization Callback (Redirect Only) ─────────────────────
	router.GET("/oauth2callback", middleware.NoStore(), handlers.Export.Callback)

	api := router.Group("/api/v1")

	// ─── 2. Quiz Generation (Rate Limited) ─────────────────────────────
	quiz := api.Group("/quiz")
	quiz.Use(generateLimiter.Middleware())
	{
		quiz.POST("/generate", handlers.Quiz.Generate)
	}

	// ─── 3. Form Export ────────────────────────────────────────────────
	api.POST("/form", middleware.NoStore(), handlers.Export.StartExport)

	exports := api.Group("/exports")
	{
		exports.GET("/:id", handlers.Export.GetExport)
		exports.POST("/:id/retry", middleware.NoStore(), handlers.Export.RetryExport)
		exports.GET("/:id/events", handlers.Monitor.ExportEventsSSE)
	}

	// ─── 4. WebSocket ──────────────────────────────────────────────────
	wsGroup := router.Group("/ws/v1")
	{
		wsGroup.GET("/exports/:id/stream", handlers.WS.ExportStream)
	}

	return router
}
