package api

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/playrally/backend/internal/api/handlers"
	"github.com/playrally/backend/internal/config"
	"github.com/playrally/backend/internal/middleware"
	"github.com/redis/go-redis/v9"
)

// SetupRoutes configures all API routes
func SetupRoutes(router *gin.Engine, db *sqlx.DB, rdb *redis.Client, cfg *config.Config) {
	router.Use(middleware.CORSMiddleware(cfg))
	router.Use(middleware.WebSocketCORSCheck(cfg))

	// No-cache middleware in development
	if cfg.Environment != "production" {
		router.Use(func(c *gin.Context) {
			c.Header("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
			c.Header("Pragma", "no-cache")
			c.Header("Expires", "0")
			c.Next()
		})
		log.Println("[DEV MODE] No-cache headers enabled for all routes")
	}

	// API v1 group
	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", handlers.HealthCheck)

		// Auth
		auth := v1.Group("/auth")
		{
			auth.POST("/register", handlers.RegisterPlayer(db, cfg))
			auth.POST("/refresh", handlers.PlayerAuthMiddleware(cfg), handlers.RefreshToken(cfg))
		}

		// Match endpoints
		match := v1.Group("/match")
		{
			match.POST("", handlers.CreateMatch(db, rdb, cfg))
			match.POST("/test", handlers.CreateTestMatch(cfg)) // Dev only
			match.GET("/:token", handlers.GetMatchState())
			match.GET("/:token/ws", handlers.HandleMatchWebSocket())
		}

		// Player endpoints
		player := v1.Group("/player")
		{
			player.GET("/:id", handlers.GetPlayerProfile(db))
			player.GET("/me/stats", handlers.PlayerAuthMiddleware(cfg), handlers.GetPlayerStats(db))
			player.PUT("/me", handlers.PlayerAuthMiddleware(cfg), handlers.UpdatePlayerProfile(db))
		}

		// Admin endpoints
		adminGroup := v1.Group("/admin")
		{
			adminGroup.POST("/login", handlers.AdminLogin(db, rdb, cfg))
			adminGroup.POST("/logout", handlers.AdminLogout(rdb))

			authed := adminGroup.Group("")
			authed.Use(handlers.AdminSessionMiddleware(rdb, db))
			{
				authed.GET("/me", handlers.AdminMe())
				authed.GET("/stats", handlers.GetAdminStats(db))
				authed.GET("/accounts", handlers.GetAdminAccounts(db))
				authed.GET("/audit", handlers.GetAdminAuditLog(db))
			}
		}
	}
}
