package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/subidb/DMS-Dashboard/internal/domain"
	"github.com/subidb/DMS-Dashboard/internal/ingestion"
	"github.com/subidb/DMS-Dashboard/internal/lock"
	"github.com/subidb/DMS-Dashboard/internal/logging"
	"github.com/subidb/DMS-Dashboard/internal/reconciliation"
	"github.com/subidb/DMS-Dashboard/internal/repository"
)

// Handlers groups all HTTP handler methods and their dependencies.
type Handlers struct {
	store     *repository.Store
	recon     *reconciliation.Service
	ingest    *ingestion.Service
	validate  *validator.Validate
	logger    logrus.FieldLogger
	maxUpload int64
}

// --- helpers ---

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.WithError(err).Warn("encode response")
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}

// writeErr maps service errors onto status codes. Anything unexpected is
// logged and reported as a 500.
func (h *Handlers) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	var invalid *ingestion.InvalidDocumentError
	var verrs validator.ValidationErrors

	switch {
	case errors.Is(err, repository.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "not found")
	case errors.As(err, &invalid):
		h.writeError(w, http.StatusBadRequest, invalid.Error())
	case errors.As(err, &verrs):
		h.writeError(w, http.StatusBadRequest, domain.ValidationMessage(verrs))
	case errors.Is(err, ingestion.ErrUnsupportedFormat):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, lock.ErrNotObtained):
		h.writeError(w, http.StatusConflict, "reconciliation is busy, retry later")
	default:
		logging.LogError(h.logger, "api", r.Method+" "+r.URL.Path, "handler failed", nil, err)
		h.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return def
	}
	return v
}

// parseBool returns nil for an absent or unparsable value.
func parseBool(s string) *bool {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return nil
	}
	return &v
}

func parseCategories(s string) []domain.Category {
	var out []domain.Category
	for _, c := range strings.Split(s, ",") {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, domain.Category(c))
		}
	}
	return out
}

// --- Health ---

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Documents ---

func (h *Handlers) ListDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := repository.DocumentQuery{
		Categories:    parseCategories(q.Get("category")),
		Client:        q.Get("client"),
		Vendor:        q.Get("vendor"),
		Status:        q.Get("status"),
		TitleContains: q.Get("q"),
		FoldParties:   true,
	}
	page := parseIntDefault(q.Get("page"), 1)
	limit := parseIntDefault(q.Get("limit"), 50)

	docs, total, err := h.store.Documents.List(r.Context(), query, page, limit)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	if docs == nil {
		docs = []domain.Document{}
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"documents": docs,
		"total":     total,
		"page":      page,
		"limit":     limit,
	})
}

func (h *Handlers) CreateDocument(w http.ResponseWriter, r *http.Request) {
	var doc domain.Document
	if err := json.NewDecoder(io.LimitReader(r.Body, h.maxUpload)).Decode(&doc); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	res, err := h.ingest.Create(r.Context(), &doc)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	status := http.StatusCreated
	if res.Duplicates > 0 {
		status = http.StatusOK
	}
	h.writeJSON(w, status, map[string]any{
		"document":       doc,
		"duplicate":      res.Duplicates > 0,
		"alerts_created": res.AlertsCreated,
	})
}

func (h *Handlers) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.store.Documents.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, doc)
}

func (h *Handlers) GetPOConsumption(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	po, err := h.store.Documents.GetByID(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	if !po.Category.IsPO() {
		h.writeError(w, http.StatusBadRequest, "document is not a purchase order")
		return
	}

	engine := h.recon.Engine()
	invoices, err := engine.LinkedInvoices(ctx, po)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	if invoices == nil {
		invoices = []domain.Document{}
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"po_id":       po.ID,
		"po_amount":   po.Amount,
		"currency":    po.Currency,
		"consumption": reconciliation.ConsumptionOf(po, invoices),
		"invoices":    invoices,
	})
}

func (h *Handlers) GetDocumentAlerts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if _, err := h.store.Documents.GetByID(ctx, id); err != nil {
		h.writeErr(w, r, err)
		return
	}

	alerts, err := h.store.Alerts.GetByDocumentID(ctx, id)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	if alerts == nil {
		alerts = []domain.Alert{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

// ClearDocumentLink is the only way a link is removed. The engine itself
// never overwrites one.
func (h *Handlers) ClearDocumentLink(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Documents.ClearLink(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Ingest ---

func (h *Handlers) Ingest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "file field is required: "+err.Error())
		return
	}
	defer file.Close()

	format := r.FormValue("format")
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(path.Ext(header.Filename)), ".")
	}

	data, err := io.ReadAll(file)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "read file: "+err.Error())
		return
	}

	result, err := h.ingest.IngestFile(r.Context(), data, format)
	if err != nil {
		var invalid *ingestion.InvalidDocumentError
		if errors.As(err, &invalid) || errors.Is(err, ingestion.ErrUnsupportedFormat) ||
			errors.Is(err, lock.ErrNotObtained) {
			h.writeErr(w, r, err)
			return
		}
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// --- Dashboard ---

func (h *Handlers) GetDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	total, err := h.store.Documents.Count(ctx, repository.DocumentQuery{})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	byCategory, err := h.store.Documents.CountBy(ctx, "category")
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	byStatus, err := h.store.Documents.CountBy(ctx, "status")
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	openAlerts, err := h.store.Alerts.OpenCountByLevel(ctx)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	openExceptions, err := h.store.Exceptions.CountOpen(ctx)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"documents": map[string]any{
			"total":       total,
			"by_category": byCategory,
			"by_status":   byStatus,
		},
		"open_alerts": map[string]int{
			"info":     openAlerts[string(domain.LevelInfo)],
			"warning":  openAlerts[string(domain.LevelWarning)],
			"critical": openAlerts[string(domain.LevelCritical)],
		},
		"open_exceptions": openExceptions,
	})
}
