package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/subidb/DMS-Dashboard/internal/domain"
)

const documentColumns = `id, title, category, client, vendor, amount, currency, status,
	created_at, due_date, confidence, linked_to, pdf_url, file_path, processed,
	po_number, invoice_number`

type DocumentRepo struct {
	db DBTX
}

func NewDocumentRepo(db DBTX) *DocumentRepo {
	return &DocumentRepo{db: db}
}

func (r *DocumentRepo) Insert(ctx context.Context, d *domain.Document) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO documents (`+documentColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		d.ID, d.Title, string(d.Category), d.Client, nullableString(d.Vendor),
		d.Amount, d.Currency, string(d.Status), formatTime(d.CreatedAt),
		formatNullableTime(d.DueDate), d.Confidence, nullableString(d.LinkedTo),
		nullableString(d.PDFURL), nullableString(d.FilePath), boolInt(d.Processed),
		nullableString(d.PONumber), nullableString(d.InvoiceNumber),
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// BulkInsert inserts documents, skipping ids that already exist.
func (r *DocumentRepo) BulkInsert(ctx context.Context, docs []domain.Document) (int, error) {
	inserted := 0
	for i := range docs {
		d := &docs[i]
		res, err := r.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO documents (`+documentColumns+`)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			d.ID, d.Title, string(d.Category), d.Client, nullableString(d.Vendor),
			d.Amount, d.Currency, string(d.Status), formatTime(d.CreatedAt),
			formatNullableTime(d.DueDate), d.Confidence, nullableString(d.LinkedTo),
			nullableString(d.PDFURL), nullableString(d.FilePath), boolInt(d.Processed),
			nullableString(d.PONumber), nullableString(d.InvoiceNumber),
		)
		if err != nil {
			return inserted, fmt.Errorf("insert row %d: %w", i, err)
		}
		ra, _ := res.RowsAffected()
		inserted += int(ra)
	}
	return inserted, nil
}

func (r *DocumentRepo) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+documentColumns+" FROM documents WHERE id = ?", id)
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	return d, nil
}

// SetLinkIfUnset points a document at its counterpart. A link, once set,
// is append-only: the update only applies while linked_to is still NULL.
// It reports whether the row was changed.
func (r *DocumentRepo) SetLinkIfUnset(ctx context.Context, id, linkedTo string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE documents SET linked_to = ? WHERE id = ? AND linked_to IS NULL",
		linkedTo, id,
	)
	if err != nil {
		return false, fmt.Errorf("set link %s -> %s: %w", id, linkedTo, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ClearLink removes a document's link. Only external actors call this.
func (r *DocumentRepo) ClearLink(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "UPDATE documents SET linked_to = NULL WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("clear link %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DocumentQuery describes a document lookup. Zero-valued fields do not
// constrain the result. Results are ordered newest first.
type DocumentQuery struct {
	IDs           []string
	Categories    []domain.Category
	PONumber      string
	InvoiceNumber string
	Client        string
	Vendor        string
	Currency      string
	Title         string
	Status        string
	FilePath      string
	LinkedTo      string

	TitleContains    string
	FilePathContains string

	// FoldParties compares Client and Vendor case-insensitively. Linking
	// leaves it off; party names must match exactly there.
	FoldParties bool

	CreatedFrom *time.Time
	CreatedTo   *time.Time
	// DueOpenOrAfter matches rows with no due date or a due date on or after it.
	DueOpenOrAfter *time.Time

	AmountMin *float64
	AmountMax *float64

	Limit  int
	Offset int
}

// Find returns every document matching q.
func (r *DocumentRepo) Find(ctx context.Context, q DocumentQuery) ([]domain.Document, error) {
	where, args := buildDocumentWhere(q)

	query := "SELECT " + documentColumns + " FROM documents" + where + " ORDER BY created_at DESC, id ASC"
	if q.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, q.Limit, q.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, *d)
	}
	return docs, rows.Err()
}

// ForAlerts returns the subject documents of alerts keyed by id. Alerts
// without a document, or whose document is gone, have no entry.
func (r *DocumentRepo) ForAlerts(ctx context.Context, alerts []domain.Alert) (map[string]domain.Document, error) {
	seen := make(map[string]bool)
	var ids []string
	for _, a := range alerts {
		if a.DocumentID != "" && !seen[a.DocumentID] {
			seen[a.DocumentID] = true
			ids = append(ids, a.DocumentID)
		}
	}

	out := make(map[string]domain.Document, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	docs, err := r.Find(ctx, DocumentQuery{IDs: ids})
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		out[d.ID] = d
	}
	return out, nil
}

// First returns the newest document matching q, or nil when none does.
func (r *DocumentRepo) First(ctx context.Context, q DocumentQuery) (*domain.Document, error) {
	q.Limit = 1
	q.Offset = 0
	docs, err := r.Find(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return &docs[0], nil
}

func (r *DocumentRepo) Count(ctx context.Context, q DocumentQuery) (int, error) {
	where, args := buildDocumentWhere(q)
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents"+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

// List is Find with page/limit pagination and a total count.
func (r *DocumentRepo) List(ctx context.Context, q DocumentQuery, page, limit int) ([]domain.Document, int, error) {
	total, err := r.Count(ctx, q)
	if err != nil {
		return nil, 0, err
	}

	if limit <= 0 {
		limit = 50
	}
	if page <= 0 {
		page = 1
	}
	q.Limit = limit
	q.Offset = (page - 1) * limit

	docs, err := r.Find(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	return docs, total, nil
}

// CountBy groups documents by category or status.
func (r *DocumentRepo) CountBy(ctx context.Context, col string) (map[string]int, error) {
	if col != "category" && col != "status" {
		return nil, fmt.Errorf("unsupported group column %q", col)
	}
	rows, err := r.db.QueryContext(ctx, "SELECT "+col+", COUNT(*) FROM documents GROUP BY "+col)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	m := make(map[string]int)
	for rows.Next() {
		var k string
		var v int
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		m[k] = v
	}
	return m, rows.Err()
}

// --- helpers ---

func buildDocumentWhere(q DocumentQuery) (string, []any) {
	var clauses []string
	var args []any

	if len(q.IDs) > 0 {
		clauses = append(clauses, "id IN ("+placeholders(len(q.IDs))+")")
		for _, id := range q.IDs {
			args = append(args, id)
		}
	}
	if len(q.Categories) > 0 {
		clauses = append(clauses, "category IN ("+placeholders(len(q.Categories))+")")
		for _, c := range q.Categories {
			args = append(args, string(c))
		}
	}

	eq := []struct {
		col, val string
		nocase   bool
	}{
		{"po_number", q.PONumber, false},
		{"invoice_number", q.InvoiceNumber, false},
		{"client", q.Client, q.FoldParties},
		{"vendor", q.Vendor, q.FoldParties},
		{"currency", q.Currency, false},
		{"title", q.Title, false},
		{"status", q.Status, false},
		{"file_path", q.FilePath, false},
		{"linked_to", q.LinkedTo, false},
	}
	for _, f := range eq {
		if f.val == "" {
			continue
		}
		if f.nocase {
			clauses = append(clauses, f.col+" = ? COLLATE NOCASE")
		} else {
			clauses = append(clauses, f.col+" = ?")
		}
		args = append(args, f.val)
	}

	if q.TitleContains != "" {
		clauses = append(clauses, "instr(title, ?) > 0")
		args = append(args, q.TitleContains)
	}
	if q.FilePathContains != "" {
		clauses = append(clauses, "instr(file_path, ?) > 0")
		args = append(args, q.FilePathContains)
	}
	if q.CreatedFrom != nil {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, formatTime(*q.CreatedFrom))
	}
	if q.CreatedTo != nil {
		clauses = append(clauses, "created_at <= ?")
		args = append(args, formatTime(*q.CreatedTo))
	}
	if q.DueOpenOrAfter != nil {
		clauses = append(clauses, "(due_date IS NULL OR due_date >= ?)")
		args = append(args, formatTime(*q.DueOpenOrAfter))
	}
	if q.AmountMin != nil {
		clauses = append(clauses, "amount >= ?")
		args = append(args, *q.AmountMin)
	}
	if q.AmountMax != nil {
		clauses = append(clauses, "amount <= ?")
		args = append(args, *q.AmountMax)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var d domain.Document
	var category, status, createdAt string
	var vendor, dueDate, linkedTo, pdfURL, filePath, poNumber, invoiceNumber sql.NullString
	var processed int

	err := row.Scan(
		&d.ID, &d.Title, &category, &d.Client, &vendor, &d.Amount, &d.Currency,
		&status, &createdAt, &dueDate, &d.Confidence, &linkedTo, &pdfURL,
		&filePath, &processed, &poNumber, &invoiceNumber,
	)
	if err != nil {
		return nil, err
	}

	d.Category = domain.Category(category)
	d.Status = domain.DocumentStatus(status)
	d.CreatedAt = parseTime(createdAt)
	if dueDate.Valid {
		t := parseTime(dueDate.String)
		d.DueDate = &t
	}
	d.Vendor = vendor.String
	d.LinkedTo = linkedTo.String
	d.PDFURL = pdfURL.String
	d.FilePath = filePath.String
	d.Processed = processed != 0
	d.PONumber = poNumber.String
	d.InvoiceNumber = invoiceNumber.String

	return &d, nil
}
