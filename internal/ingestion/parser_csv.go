package ingestion

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/subidb/DMS-Dashboard/internal/domain"
)

var requiredCSVColumns = []string{"title", "category", "client", "amount"}

// ParseCSV parses extracted fields from a CSV file whose first row names
// the columns. Columns may appear in any order; unknown ones are ignored.
//
// Recognized header names:
//
//	title,category,client,vendor,amount,currency,status,created_at,due_date,
//	confidence,pdf_url,file_path,po_number,invoice_number
func ParseCSV(data []byte) ([]domain.Document, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, name := range requiredCSVColumns {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}

	var docs []domain.Document
	lineNum := 1

	for {
		lineNum++
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}

		get := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}

		amount, err := parseAmount(get("amount"))
		if err != nil {
			return nil, fmt.Errorf("line %d amount: %w", lineNum, err)
		}
		confidence := 0.0
		if s := get("confidence"); s != "" {
			if confidence, err = strconv.ParseFloat(s, 64); err != nil {
				return nil, fmt.Errorf("line %d confidence: %w", lineNum, err)
			}
		}
		createdAt, err := parseDate(get("created_at"))
		if err != nil {
			return nil, fmt.Errorf("line %d created_at: %w", lineNum, err)
		}
		dueDate, err := parseDate(get("due_date"))
		if err != nil {
			return nil, fmt.Errorf("line %d due_date: %w", lineNum, err)
		}

		d := domain.Document{
			Title:         get("title"),
			Category:      domain.Category(get("category")),
			Client:        get("client"),
			Vendor:        get("vendor"),
			Amount:        amount,
			Currency:      get("currency"),
			Status:        domain.DocumentStatus(get("status")),
			CreatedAt:     createdAt,
			Confidence:    confidence,
			PDFURL:        get("pdf_url"),
			FilePath:      get("file_path"),
			PONumber:      get("po_number"),
			InvoiceNumber: get("invoice_number"),
		}
		if !dueDate.IsZero() {
			d.DueDate = &dueDate
		}
		docs = append(docs, d)
	}

	return docs, nil
}

// parseAmount accepts thousands separators: "12,500.00".
func parseAmount(s string) (float64, error) {
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

// parseDate accepts 2006-01-02 or RFC3339. An empty string yields the zero
// time.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, err
		}
	}
	return t.UTC(), nil
}
