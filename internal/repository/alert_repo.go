package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/subidb/DMS-Dashboard/internal/domain"
)

const alertColumns = "id, title, description, level, timestamp, acknowledged, document_id"

type AlertRepo struct {
	db DBTX
}

func NewAlertRepo(db DBTX) *AlertRepo {
	return &AlertRepo{db: db}
}

// InsertOpen stores alerts, skipping any that duplicate an alert already
// open for the same document, title and level. It returns the alerts that
// were actually written.
func (r *AlertRepo) InsertOpen(ctx context.Context, alerts []domain.Alert) ([]domain.Alert, error) {
	var inserted []domain.Alert
	for i := range alerts {
		a := &alerts[i]
		res, err := r.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO alerts (`+alertColumns+`) VALUES (?,?,?,?,?,?,?)`,
			a.ID, a.Title, a.Description, string(a.Level), formatTime(a.Timestamp),
			boolInt(a.Acknowledged), nullableString(a.DocumentID),
		)
		if err != nil {
			return inserted, fmt.Errorf("insert alert %d: %w", i, err)
		}
		if ra, _ := res.RowsAffected(); ra > 0 {
			inserted = append(inserted, *a)
		}
	}
	return inserted, nil
}

func (r *AlertRepo) GetByID(ctx context.Context, id string) (*domain.Alert, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+alertColumns+" FROM alerts WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("get alert %s: %w", id, err)
	}
	defer rows.Close()

	alerts, err := scanAlerts(rows)
	if err != nil {
		return nil, err
	}
	if len(alerts) == 0 {
		return nil, ErrNotFound
	}
	return &alerts[0], nil
}

// DeleteUnacknowledged removes every open alert. Acknowledged alerts are
// history and are left untouched.
func (r *AlertRepo) DeleteUnacknowledged(ctx context.Context) (int, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM alerts WHERE acknowledged = 0")
	if err != nil {
		return 0, fmt.Errorf("delete open alerts: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// DeleteOpen removes a document's unacknowledged alerts carrying any of
// the given titles.
func (r *AlertRepo) DeleteOpen(ctx context.Context, docID string, titles ...string) (int, error) {
	if len(titles) == 0 {
		return 0, nil
	}
	args := []any{docID}
	for _, t := range titles {
		args = append(args, t)
	}
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM alerts WHERE acknowledged = 0 AND document_id = ? AND title IN ("+placeholders(len(titles))+")",
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("delete open alerts for %s: %w", docID, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (r *AlertRepo) Acknowledge(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "UPDATE alerts SET acknowledged = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("acknowledge alert %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *AlertRepo) GetByDocumentID(ctx context.Context, docID string) ([]domain.Alert, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+alertColumns+" FROM alerts WHERE document_id = ? ORDER BY timestamp DESC, id", docID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAlerts(rows)
}

type AlertFilter struct {
	Acknowledged *bool
	Level        string
	DocumentID   string
	Page         int
	Limit        int
}

// List returns alerts matching f. Open alerts sort before acknowledged ones,
// newest first within each group.
func (r *AlertRepo) List(ctx context.Context, f AlertFilter) ([]domain.Alert, int, error) {
	where, args := buildAlertWhere(f)

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM alerts"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	if f.Limit <= 0 {
		f.Limit = 100
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	offset := (f.Page - 1) * f.Limit

	q := "SELECT " + alertColumns + " FROM alerts" + where +
		" ORDER BY acknowledged ASC, timestamp DESC, id LIMIT ? OFFSET ?"
	args = append(args, f.Limit, offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	alerts, err := scanAlerts(rows)
	return alerts, total, err
}

// OpenCountByLevel counts unacknowledged alerts per level.
func (r *AlertRepo) OpenCountByLevel(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT level, COUNT(*) FROM alerts WHERE acknowledged = 0 GROUP BY level",
	)
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

func buildAlertWhere(f AlertFilter) (string, []any) {
	var clauses []string
	var args []any

	if f.Acknowledged != nil {
		clauses = append(clauses, "acknowledged = ?")
		args = append(args, boolInt(*f.Acknowledged))
	}
	if f.Level != "" {
		clauses = append(clauses, "level = ?")
		args = append(args, f.Level)
	}
	if f.DocumentID != "" {
		clauses = append(clauses, "document_id = ?")
		args = append(args, f.DocumentID)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanAlerts(rows *sql.Rows) ([]domain.Alert, error) {
	var alerts []domain.Alert
	for rows.Next() {
		var a domain.Alert
		var level, ts string
		var ack int
		var docID sql.NullString

		if err := rows.Scan(&a.ID, &a.Title, &a.Description, &level, &ts, &ack, &docID); err != nil {
			return nil, err
		}

		a.Level = domain.AlertLevel(level)
		a.Timestamp = parseTime(ts)
		a.Acknowledged = ack != 0
		a.DocumentID = docID.String
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
