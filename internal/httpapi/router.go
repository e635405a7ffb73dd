// Package httpapi wires the gin engine: middleware ordering, CORS, and the
// per-endpoint rate limits over the handler set.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/orconsole/server/internal/config"
	"github.com/orconsole/server/internal/httpapi/handlers"
	"github.com/orconsole/server/internal/httpapi/middleware"
)

func NewRouter(db *gorm.DB, cfg config.Config) (*gin.Engine, error) {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(cors.New(cors.Config{
		AllowOrigins:  cfg.Origins(),
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Content-Type", "X-Request-ID"},
		ExposeHeaders: []string{"X-Request-ID", "Retry-After", "X-RateLimit-Limit"},
		MaxAge:        12 * time.Hour,
	}))

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"message": "route not found"})
	})
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"message": "method not allowed"})
	})

	h, err := handlers.NewHandler(db, cfg)
	if err != nil {
		return nil, err
	}

	rl := func(policy string) gin.HandlerFunc {
		return middleware.RateLimit(policy, cfg.RateLimits.Enabled)
	}
	limits := cfg.RateLimits

	api := r.Group("/api")

	api.GET("/health", rl(limits.HealthCheck), h.Health)

	api.POST("/models/sync", rl(limits.ModelSync), h.SyncModels)
	api.GET("/models", rl(limits.ModelsList), h.ListModels)

	profiles := api.Group("/profiles", rl(limits.Profiles))
	profiles.POST("", h.CreateProfile)
	profiles.GET("", h.ListProfiles)
	profiles.GET("/:id", h.GetProfile)
	profiles.PUT("/:id", h.UpdateProfile)
	profiles.DELETE("/:id", h.DeleteProfile)

	sessions := api.Group("/sessions", rl(limits.Sessions))
	sessions.POST("", h.CreateSession)
	sessions.GET("", h.ListSessions)
	sessions.GET("/:id", h.GetSession)
	sessions.PATCH("/:id", h.UpdateSession)
	sessions.DELETE("/:id", h.DeleteSession)
	sessions.GET("/:id/messages", h.ListSessionMessages)

	messages := api.Group("/messages", rl(limits.Messages))
	messages.POST("", h.CreateMessage)
	messages.GET("/search", h.SearchMessages)
	messages.GET("/:id", h.GetMessage)

	api.GET("/stream", rl(limits.Stream), h.Stream)

	documents := api.Group("/documents")
	documents.POST("/upload", rl(limits.Upload), h.UploadDocument)
	documents.GET("", rl(limits.Messages), h.ListDocuments)
	documents.DELETE("/:id", rl(limits.Messages), h.DeleteDocument)
	documents.POST("/:id/qa", rl(limits.Stream), h.DocumentQA)

	usage := api.Group("/usage", rl(limits.UsageLogs))
	usage.POST("", h.CreateUsageLog)
	usage.GET("/sessions/:id", h.ListSessionUsage)
	usage.GET("/models", h.UsageByModel)
	usage.GET("/timeline", h.UsageTimeline)
	usage.GET("/stats", h.UsageStats)

	cacheAdmin := api.Group("/cache", rl(limits.Profiles))
	cacheAdmin.GET("/stats", h.CacheStats)
	cacheAdmin.POST("/clear", h.CacheClear)
	cacheAdmin.POST("/clear/profiles", h.CacheClearProfiles)
	cacheAdmin.POST("/clear/models", h.CacheClearModels)

	admin := api.Group("/admin")
	admin.GET("/backup", rl(limits.Profiles), h.DownloadBackup)
	admin.GET("/backups", rl(limits.Profiles), h.ListBackups)
	admin.POST("/restore", rl(limits.Upload), h.RestoreBackup)

	return r, nil
}
