package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/subidb/DMS-Dashboard/internal/domain"
	"github.com/subidb/DMS-Dashboard/internal/ingestion"
	"github.com/subidb/DMS-Dashboard/internal/logging"
	"github.com/subidb/DMS-Dashboard/internal/reconciliation"
	"github.com/subidb/DMS-Dashboard/internal/repository"
)

const defaultMaxUpload = 10 << 20

// NewRouter creates the Chi router with all API routes mounted.
func NewRouter(
	store *repository.Store,
	recon *reconciliation.Service,
	ingest *ingestion.Service,
	logger logrus.FieldLogger,
	maxUploadBytes int64,
) http.Handler {
	if logger == nil {
		logger = logging.Discard()
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUpload
	}
	h := &Handlers{
		store:     store,
		recon:     recon,
		ingest:    ingest,
		validate:  domain.NewValidator(),
		logger:    logger.WithField("component", "api"),
		maxUpload: maxUploadBytes,
	}

	r := chi.NewRouter()

	// Middleware.
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.SetHeader("Content-Type", "application/json"))

	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		// Documents.
		r.Get("/documents", h.ListDocuments)
		r.Post("/documents", h.CreateDocument)
		r.Get("/documents/{id}", h.GetDocument)
		r.Get("/documents/{id}/consumption", h.GetPOConsumption)
		r.Get("/documents/{id}/alerts", h.GetDocumentAlerts)
		r.Delete("/documents/{id}/link", h.ClearDocumentLink)

		// Alerts.
		r.Get("/alerts", h.ListAlerts)
		r.Post("/alerts/refresh", h.RefreshAlerts)
		r.Get("/alerts/export.xlsx", h.ExportAlerts)
		r.Post("/alerts/{id}/acknowledge", h.AcknowledgeAlert)

		// Exceptions.
		r.Get("/exceptions", h.ListExceptions)
		r.Post("/exceptions", h.CreateException)
		r.Post("/exceptions/{id}/resolve", h.ResolveException)

		// Ingestion.
		r.Post("/ingest", h.Ingest)

		// Dashboard.
		r.Get("/dashboard", h.GetDashboard)
	})

	return r
}
