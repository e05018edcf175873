package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/subidb/DMS-Dashboard/internal/api"
	"github.com/subidb/DMS-Dashboard/internal/app"
	"github.com/subidb/DMS-Dashboard/internal/config"
	"github.com/subidb/DMS-Dashboard/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	seed := flag.Bool("seed", true, "seed an empty database from testdata/documents.json")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.New("info", "text").Fatalf("Failed to load config: %v", err)
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, logger, *seed)
	stop()
	if err != nil {
		logger.WithError(err).Error("server stopped")
		os.Exit(1)
	}
}

// run owns the application for its lifetime so deferred cleanup runs on
// every exit path.
func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger, seed bool) error {
	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}
	defer a.Close()

	if seed {
		if err := a.SeedIfEmpty(ctx); err != nil {
			logger.WithError(err).Warn("failed to seed documents")
		}
	}

	router := api.NewRouter(a.Store, a.Recon, a.Ingestion, logger, cfg.MaxUploadBytes)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Infof("DMS reconciliation engine listening on http://localhost:%s", cfg.Port)
	logger.Infof("API base: http://localhost:%s/api/v1", cfg.Port)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("shutdown")
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
