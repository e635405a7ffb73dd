package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/orconsole/server/internal/apierr"
	"github.com/orconsole/server/internal/cache"
	"github.com/orconsole/server/internal/common"
	"github.com/orconsole/server/internal/httpapi/middleware"
)

func (h *Handler) CacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"profiles": cache.Profiles.Stats(),
		"models":   cache.Models.Stats(),
	})
}

func (h *Handler) CacheClear(c *gin.Context) {
	profiles := cache.Profiles.Stats().Size
	models := cache.Models.Stats().Size
	cache.Profiles.Clear()
	cache.Models.Clear()
	c.JSON(http.StatusOK, gin.H{"cleared": gin.H{"profiles": profiles, "models": models}})
}

func (h *Handler) CacheClearProfiles(c *gin.Context) {
	n := cache.Profiles.Stats().Size
	cache.Profiles.Clear()
	c.JSON(http.StatusOK, gin.H{"cleared": gin.H{"profiles": n}})
}

func (h *Handler) CacheClearModels(c *gin.Context) {
	n := cache.Models.Stats().Size
	cache.Models.Clear()
	c.JSON(http.StatusOK, gin.H{"cleared": gin.H{"models": n}})
}

// DownloadBackup snapshots the database and serves the file.
func (h *Handler) DownloadBackup(c *gin.Context) {
	backup, err := h.Backups.Create()
	if err != nil {
		fail(c, apierr.Internal(apierr.CodeFileSaveFailed, "Backup failed: "+err.Error()))
		return
	}
	common.RequestLogger(middleware.GetRequestID(c)).Info("database backup created",
		"backup_file", backup.Filename, "size_bytes", backup.SizeBytes)
	c.FileAttachment(backup.Path, backup.Filename)
}

func (h *Handler) ListBackups(c *gin.Context) {
	backups, err := h.Backups.List()
	if err != nil {
		fail(c, apierr.Internal(apierr.CodeFileSaveFailed, "Failed to list backups: "+err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"backups":          backups,
		"total":            len(backups),
		"backup_directory": h.Backups.Dir(),
	})
}

// RestoreBackup swaps the database for an uploaded snapshot. The upload is
// integrity-checked first and the replaced file is kept as a safety backup.
// Open connections keep their old data until the server restarts.
func (h *Handler) RestoreBackup(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		fail(c, apierr.BadRequest(apierr.CodeMissingFilename, "No filename provided", nil))
		return
	}
	if !strings.HasSuffix(file.Filename, ".db") {
		fail(c, apierr.BadRequest(apierr.CodeValidationError, "Invalid file type. Must be a .db file", nil))
		return
	}

	f, err := file.Open()
	if err != nil {
		fail(c, apierr.Internal(apierr.CodeFileSaveFailed, "Restore failed"))
		return
	}
	defer f.Close()

	safetyBackup, err := h.Backups.Restore(f)
	if err != nil {
		if strings.Contains(err.Error(), "invalid SQLite") {
			fail(c, apierr.BadRequest(apierr.CodeValidationError, "Invalid SQLite database file", nil))
			return
		}
		fail(c, apierr.Internal(apierr.CodeFileSaveFailed, "Restore failed: "+err.Error()))
		return
	}
	common.RequestLogger(middleware.GetRequestID(c)).Info("database restored",
		"source_file", file.Filename, "safety_backup", safetyBackup)
	c.JSON(http.StatusOK, gin.H{
		"message":       "Database restored successfully",
		"safety_backup": safetyBackup,
		"note":          "Server restart recommended for changes to take full effect",
	})
}
