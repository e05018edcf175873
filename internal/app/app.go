// Package app wires configuration, storage, locking and services together
// for the server and CLI binaries.
package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/subidb/DMS-Dashboard/internal/config"
	"github.com/subidb/DMS-Dashboard/internal/domain"
	"github.com/subidb/DMS-Dashboard/internal/ingestion"
	"github.com/subidb/DMS-Dashboard/internal/lock"
	"github.com/subidb/DMS-Dashboard/internal/reconciliation"
	"github.com/subidb/DMS-Dashboard/internal/repository"
)

type App struct {
	Config    *config.Config
	Logger    *logrus.Logger
	DB        *sql.DB
	Store     *repository.Store
	Locker    lock.Locker
	Recon     *reconciliation.Service
	Ingestion *ingestion.Service

	redis *redis.Client
}

// Open initializes the database and services described by cfg. Locks go
// through Redis when an address is configured.
func Open(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*App, error) {
	logger.WithField("db_path", cfg.DBPath).Info("initializing database")
	db, err := repository.InitDB(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("init db: %w", err)
	}

	a := &App{
		Config: cfg,
		Logger: logger,
		DB:     db,
		Store:  repository.NewStore(db),
	}

	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := a.redis.Ping(pingCtx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("ping redis %s: %w", cfg.Redis.Addr, err)
		}
		a.Locker = lock.NewRedis(a.redis, cfg.LockTTL())
		logger.WithField("addr", cfg.Redis.Addr).Info("using redis locks")
	} else {
		a.Locker = lock.NewLocal()
	}

	a.Recon = reconciliation.NewService(a.Store,
		reconciliation.WithPolicy(reconciliation.PolicyFromConfig(cfg.Policy)),
		reconciliation.WithLocker(a.Locker),
		reconciliation.WithLogger(logger),
	)
	a.Ingestion = ingestion.NewService(a.Store, a.Recon, a.Locker, logger,
		ingestion.WithIdentityTolerance(cfg.Policy.IdentityAmountPercent),
	)
	return a, nil
}

func (a *App) Close() error {
	if a.redis != nil {
		a.redis.Close()
	}
	return a.DB.Close()
}

// SeedIfEmpty loads testdata/documents.json into an empty database and
// builds the initial alert set.
func (a *App) SeedIfEmpty(ctx context.Context) error {
	count, err := a.Store.Documents.Count(ctx, repository.DocumentQuery{})
	if err != nil {
		return fmt.Errorf("count documents: %w", err)
	}
	if count > 0 {
		a.Logger.WithField("documents", count).Info("database already populated, skipping seed")
		return nil
	}

	// Try multiple possible locations for testdata.
	candidates := []string{
		filepath.Join("testdata", "documents.json"),
	}
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		candidates = append(candidates,
			filepath.Join(dir, "testdata", "documents.json"),
			filepath.Join(dir, "..", "..", "testdata", "documents.json"),
		)
	}

	var data []byte
	var loadErr error
	for _, path := range candidates {
		data, loadErr = os.ReadFile(path)
		if loadErr == nil {
			a.Logger.WithField("path", path).Info("loaded seed documents")
			break
		}
	}
	if loadErr != nil {
		return fmt.Errorf("could not find documents.json in any candidate path: %w", loadErr)
	}

	var docs []domain.Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return fmt.Errorf("unmarshal documents: %w", err)
	}

	inserted, err := a.Store.Documents.BulkInsert(ctx, docs)
	if err != nil {
		return fmt.Errorf("bulk insert: %w", err)
	}

	alerts, err := a.Recon.RefreshAllAlerts(ctx)
	if err != nil {
		return fmt.Errorf("initial refresh: %w", err)
	}

	a.Logger.WithFields(logrus.Fields{
		"seeded":  inserted,
		"in_file": len(docs),
		"alerts":  alerts,
	}).Info("seeded documents")
	return nil
}
