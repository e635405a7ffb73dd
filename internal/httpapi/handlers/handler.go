// Package handlers implements the JSON and SSE endpoints of the console
// API. Every failure goes out as a typed envelope carrying the request id.
package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/orconsole/server/internal/ai"
	"github.com/orconsole/server/internal/apierr"
	"github.com/orconsole/server/internal/config"
	"github.com/orconsole/server/internal/console"
	"github.com/orconsole/server/internal/docs"
	"github.com/orconsole/server/internal/httpapi/middleware"
	"github.com/orconsole/server/internal/store"
)

type Handler struct {
	Cfg      config.Config
	Repo     *console.Repo
	Pipeline *console.Pipeline
	AI       *ai.Client
	Docs     *docs.Service
	Backups  *store.BackupManager
}

func NewHandler(db *gorm.DB, cfg config.Config) (*Handler, error) {
	repo := console.NewRepo(db)
	client := ai.NewClient(
		cfg.OpenRouterBaseURL,
		cfg.OpenRouterAPIKey,
		cfg.OpenRouterHTTPReferer,
		cfg.OpenRouterXTitle,
		time.Duration(cfg.OpenRouterIdleSec)*time.Second,
	)
	hasKey := strings.TrimSpace(cfg.OpenRouterAPIKey) != ""

	docSvc, err := docs.NewService(cfg.UploadsDir)
	if err != nil {
		return nil, err
	}
	backups, err := store.NewBackupManager(cfg.DBPath, cfg.BackupsDir)
	if err != nil {
		return nil, err
	}

	return &Handler{
		Cfg:      cfg,
		Repo:     repo,
		Pipeline: console.NewPipeline(repo, client, hasKey),
		AI:       client,
		Docs:     docSvc,
		Backups:  backups,
	}, nil
}

// fail writes a typed error envelope with its HTTP status.
func fail(c *gin.Context, err error) {
	e := apierr.From(err)
	c.JSON(e.Status, e.Envelope(middleware.GetRequestID(c)))
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
