package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/subidb/DMS-Dashboard/internal/domain"
	"github.com/subidb/DMS-Dashboard/internal/report"
	"github.com/subidb/DMS-Dashboard/internal/repository"
)

// --- Alerts ---

func (h *Handlers) ListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.AlertFilter{
		Acknowledged: parseBool(q.Get("acknowledged")),
		Level:        q.Get("level"),
		DocumentID:   q.Get("document_id"),
		Page:         parseIntDefault(q.Get("page"), 1),
		Limit:        parseIntDefault(q.Get("limit"), 100),
	}

	alerts, total, err := h.store.Alerts.List(r.Context(), filter)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	if alerts == nil {
		alerts = []domain.Alert{}
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"total":  total,
		"page":   filter.Page,
		"limit":  filter.Limit,
	})
}

func (h *Handlers) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if err := h.store.Alerts.Acknowledge(ctx, id); err != nil {
		h.writeErr(w, r, err)
		return
	}
	alert, err := h.store.Alerts.GetByID(ctx, id)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, alert)
}

func (h *Handlers) RefreshAlerts(w http.ResponseWriter, r *http.Request) {
	n, err := h.recon.RefreshAllAlerts(r.Context())
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int{"alerts_created": n})
}

// ExportAlerts streams open alerts as a workbook; all=true includes
// acknowledged history.
func (h *Handlers) ExportAlerts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter := repository.AlertFilter{Limit: 100000}
	if all := parseBool(r.URL.Query().Get("all")); all == nil || !*all {
		open := false
		filter.Acknowledged = &open
	}
	alerts, _, err := h.store.Alerts.List(ctx, filter)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	docs, err := h.store.Documents.ForAlerts(ctx, alerts)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", "attachment; filename=alerts.xlsx")
	if err := report.WriteAlerts(w, alerts, docs); err != nil {
		h.logger.WithError(err).Error("export alerts")
	}
}

// --- Exceptions ---

func (h *Handlers) ListExceptions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	excs, err := h.store.Exceptions.List(r.Context(), repository.ExceptionFilter{
		DocumentID: q.Get("document_id"),
		Resolved:   parseBool(q.Get("resolved")),
	})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	if excs == nil {
		excs = []domain.Exception{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"exceptions": excs})
}

func (h *Handlers) CreateException(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var exc domain.Exception
	if err := json.NewDecoder(io.LimitReader(r.Body, h.maxUpload)).Decode(&exc); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if err := h.validate.Struct(&exc); err != nil {
		h.writeErr(w, r, err)
		return
	}
	if _, err := h.store.Documents.GetByID(ctx, exc.DocumentID); err != nil {
		h.writeErr(w, r, err)
		return
	}

	exc.ID = uuid.NewString()
	exc.RaisedAt = time.Now().UTC().Truncate(time.Second)
	exc.Resolved = false
	if err := h.store.Exceptions.Insert(ctx, &exc); err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, exc)
}

func (h *Handlers) ResolveException(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Exceptions.Resolve(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"resolved": true})
}
