package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/handler"
	"github.com/stemsi/exstem-attempt/internal/middleware"
	"github.com/stemsi/exstem-attempt/internal/response"
	"github.com/stemsi/exstem-attempt/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Session *handler.SessionHandler
	WS      *handler.WSHandler
	// SaveLimiter guards PUT answers; the WS handler shares it.
	SaveLimiter *middleware.RateLimiter
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.GinMode != gin.TestMode {
		router.Use(gin.Logger())
	}

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", response.HeaderRequestID}
	corsConfig.ExposeHeaders = []string{response.HeaderRequestID}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Saves arrive on every edit; everything else is rare.
	saveLimiter := handlers.SaveLimiter
	if saveLimiter == nil {
		saveLimiter = middleware.NewRateLimiter(cfg.SaveRatePerMinute, time.Minute)
	}

	// ─── 1. Exam Group (Taker JWT) ─────────────────────────────────────
	examAPI := router.Group("/api/v1/exam")
	examAPI.Use(
		middleware.RequireTakerJWT(authService),
		middleware.CacheControl(middleware.NoStore),
		middleware.Brotli(cfg.CompressQuality, 0),
	)
	{
		examAPI.POST("/start", handlers.Session.StartSession)
		examAPI.GET("/tests/:test_id/instructions", handlers.Session.GetInstructions)
		examAPI.GET("/tests/:test_id/ongoing", handlers.Session.GetOngoing)
		examAPI.GET("/sessions/:session_id/details", handlers.Session.GetDetails)
		examAPI.PUT("/sessions/:session_id/answers", saveLimiter.Middleware(), handlers.Session.SaveAnswer)
		examAPI.POST("/sessions/:session_id/submit", handlers.Session.Submit)
		examAPI.GET("/sessions/:session_id/result", handlers.Session.GetResult)
	}

	// ─── 2. WebSocket Group (Taker WS Auth) ────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireTakerWSAuth(authService))
	{
		ws.GET("/sessions/:session_id/stream", handlers.WS.SessionStream)
	}

	return router
}
