package ingestion

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/subidb/DMS-Dashboard/internal/domain"
)

// jsonDocument is one extracted-field record. Dates are kept as strings so
// both plain dates and RFC3339 timestamps are accepted.
type jsonDocument struct {
	Title         string  `json:"title"`
	Category      string  `json:"category"`
	Client        string  `json:"client"`
	Vendor        string  `json:"vendor"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	Status        string  `json:"status"`
	CreatedAt     string  `json:"created_at"`
	DueDate       string  `json:"due_date"`
	Confidence    float64 `json:"confidence"`
	PDFURL        string  `json:"pdf_url"`
	FilePath      string  `json:"file_path"`
	PONumber      string  `json:"po_number"`
	InvoiceNumber string  `json:"invoice_number"`
}

type jsonEnvelope struct {
	Documents []jsonDocument `json:"documents"`
}

// ParseJSON accepts either an array of documents or an object holding
// them under "documents".
func ParseJSON(data []byte) ([]domain.Document, error) {
	var entries []jsonDocument

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, fmt.Errorf("unmarshal: %w", err)
		}
	} else {
		var env jsonEnvelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, fmt.Errorf("unmarshal: %w", err)
		}
		entries = env.Documents
	}

	docs := make([]domain.Document, 0, len(entries))
	for i, e := range entries {
		createdAt, err := parseDate(e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("document %d created_at: %w", i, err)
		}
		dueDate, err := parseDate(e.DueDate)
		if err != nil {
			return nil, fmt.Errorf("document %d due_date: %w", i, err)
		}

		d := domain.Document{
			Title:         e.Title,
			Category:      domain.Category(e.Category),
			Client:        e.Client,
			Vendor:        e.Vendor,
			Amount:        e.Amount,
			Currency:      e.Currency,
			Status:        domain.DocumentStatus(e.Status),
			CreatedAt:     createdAt,
			Confidence:    e.Confidence,
			PDFURL:        e.PDFURL,
			FilePath:      e.FilePath,
			PONumber:      e.PONumber,
			InvoiceNumber: e.InvoiceNumber,
		}
		if !dueDate.IsZero() {
			d.DueDate = &dueDate
		}
		docs = append(docs, d)
	}
	return docs, nil
}
