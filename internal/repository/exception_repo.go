package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/subidb/DMS-Dashboard/internal/domain"
)

type ExceptionRepo struct {
	db DBTX
}

func NewExceptionRepo(db DBTX) *ExceptionRepo {
	return &ExceptionRepo{db: db}
}

func (r *ExceptionRepo) Insert(ctx context.Context, e *domain.Exception) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO exceptions (id, document_id, issue, severity, owner, raised_at, resolved)
		VALUES (?,?,?,?,?,?,?)`,
		e.ID, e.DocumentID, e.Issue, string(e.Severity), e.Owner,
		formatTime(e.RaisedAt), boolInt(e.Resolved),
	)
	if err != nil {
		return fmt.Errorf("insert exception: %w", err)
	}
	return nil
}

func (r *ExceptionRepo) Resolve(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "UPDATE exceptions SET resolved = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("resolve exception %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type ExceptionFilter struct {
	DocumentID string
	Resolved   *bool
}

func (r *ExceptionRepo) List(ctx context.Context, f ExceptionFilter) ([]domain.Exception, error) {
	var clauses []string
	var args []any
	if f.DocumentID != "" {
		clauses = append(clauses, "document_id = ?")
		args = append(args, f.DocumentID)
	}
	if f.Resolved != nil {
		clauses = append(clauses, "resolved = ?")
		args = append(args, boolInt(*f.Resolved))
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT id, document_id, issue, severity, owner, raised_at, resolved FROM exceptions"+
			where+" ORDER BY raised_at DESC, id", args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query exceptions: %w", err)
	}
	defer rows.Close()

	var out []domain.Exception
	for rows.Next() {
		var e domain.Exception
		var sev, raisedAt string
		var resolved int
		if err := rows.Scan(&e.ID, &e.DocumentID, &e.Issue, &sev, &e.Owner, &raisedAt, &resolved); err != nil {
			return nil, err
		}
		e.Severity = domain.ExceptionSeverity(sev)
		e.RaisedAt = parseTime(raisedAt)
		e.Resolved = resolved != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *ExceptionRepo) CountOpen(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM exceptions WHERE resolved = 0").Scan(&n)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return n, err
}
