package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/syziel1/zrozoom-quiz-backend/internal/config"
	"github.com/syziel1/zrozoom-quiz-backend/internal/handler"
	"github.com/syziel1/zrozoom-quiz-backend/internal/middleware"
	"github.com/syziel1/zrozoom-quiz-backend/internal/response"
	"github.com/syziel1/zrozoom-quiz-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth *handler.AuthHandler
	Quiz *handler.QuizHandler
	WS   *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Apply brotli middleware globally.
	router.Use(middleware.Brotli())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for auth routes (30 requests per minute per IP).
	authLimiter := middleware.NewRateLimiter(30, time.Minute)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	{
		auth.POST("/register", authLimiter.Middleware(), handlers.Auth.Register)
		auth.POST("/login", authLimiter.Middleware(), handlers.Auth.Login)

		// Authenticated profile routes
		auth.POST("/logout", middleware.RequireUserJWT(authService), handlers.Auth.Logout)
		auth.GET("/me", middleware.RequireUserJWT(authService), handlers.Auth.Me)
	}

	// ─── 2. Quiz Group (JWT + Single Device) ───────────────────────────
	quizAPI := router.Group("/api/v1/quiz")
	quizAPI.Use(
		middleware.RequireUserJWT(authService),
		middleware.CheckSingleDeviceSession(authService),
	)
	{
		quizAPI.POST("/sessions", handlers.Quiz.Start)
		quizAPI.GET("/sessions/active", handlers.Quiz.GetActive)
		quizAPI.POST("/sessions/:session_id/answer", handlers.Quiz.Answer)
		quizAPI.POST("/sessions/:session_id/finish", handlers.Quiz.Finish)
		quizAPI.DELETE("/sessions/:session_id", handlers.Quiz.Abort)
		quizAPI.GET("/progress", handlers.Quiz.Progress)
		quizAPI.GET("/leaderboard", handlers.Quiz.Leaderboard)
	}

	// ─── 3. WebSocket Group (JWT via ?token=) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(
		middleware.RequireUserJWT(authService),
		middleware.CheckSingleDeviceSession(authService),
	)
	{
		ws.GET("/quiz/sessions/:session_id/stream", handlers.WS.QuizWebSocketStream)
	}

	return router
}
