package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/orconsole/server/internal/common"
	"github.com/orconsole/server/internal/config"
	"github.com/orconsole/server/internal/httpapi"
	"github.com/orconsole/server/internal/store"
)

func main() {
	cfg := config.Load()
	log := common.Logger()

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Error("open database failed", "db_path", cfg.DBPath, "error", err)
		os.Exit(1)
	}

	// The schema must be current before any request is served.
	if err := store.MigrateUp(db); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	router, err := httpapi.NewRouter(db, cfg)
	if err != nil {
		log.Error("router setup failed", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: router,
		// No WriteTimeout: SSE responses may legitimately run for minutes.
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("server started", "addr", cfg.Addr, "db_path", cfg.DBPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown failed", "error", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
