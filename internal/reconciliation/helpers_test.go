package reconciliation

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/subidb/DMS-Dashboard/internal/domain"
	"github.com/subidb/DMS-Dashboard/internal/repository"
)

func newTestStore(t *testing.T) *repository.Store {
	t.Helper()
	_, store := newTestDB(t)
	return store
}

// newTestDB also exposes the raw handle for tests that install triggers.
func newTestDB(t *testing.T) (*sql.DB, *repository.Store) {
	t.Helper()
	db, err := repository.InitDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("init db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, repository.NewStore(db)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func insertDocs(t *testing.T, store *repository.Store, docs ...*domain.Document) {
	t.Helper()
	for _, d := range docs {
		if d.Currency == "" {
			d.Currency = "USD"
		}
		if d.Status == "" {
			d.Status = domain.StatusApproved
		}
		if err := store.Documents.Insert(context.Background(), d); err != nil {
			t.Fatalf("insert %s: %v", d.ID, err)
		}
	}
}

func reload(t *testing.T, store *repository.Store, id string) *domain.Document {
	t.Helper()
	d, err := store.Documents.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	return d
}

func alertsFor(t *testing.T, store *repository.Store, docID string) []domain.Alert {
	t.Helper()
	alerts, err := store.Alerts.GetByDocumentID(context.Background(), docID)
	if err != nil {
		t.Fatalf("alerts for %s: %v", docID, err)
	}
	return alerts
}

func withTitle(alerts []domain.Alert, title string) []domain.Alert {
	var out []domain.Alert
	for _, a := range alerts {
		if a.Title == title {
			out = append(out, a)
		}
	}
	return out
}
