package ingestion

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/subidb/DMS-Dashboard/internal/domain"
	"github.com/subidb/DMS-Dashboard/internal/repository"
)

func newTestStore(t *testing.T) *repository.Store {
	t.Helper()
	db, err := repository.InitDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("init db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return repository.NewStore(db)
}

func TestAmountsMatch(t *testing.T) {
	cases := []struct {
		a, b float64
		want bool
	}{
		{1000, 1005, true},
		{1005, 1000, true},
		{1000, 1020, false},
		{1000, 1010, true},
		{0, 0, true},
		{0, 1, false},
	}
	for _, tc := range cases {
		if got := AmountsMatch(tc.a, tc.b, IdentityAmountTolerance); got != tc.want {
			t.Fatalf("AmountsMatch(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestIsPlaceholderClient(t *testing.T) {
	for _, name := range []string{"", "Unknown", "unknown client", " N/A ", "tbd"} {
		if !IsPlaceholderClient(name) {
			t.Fatalf("%q should be a placeholder", name)
		}
	}
	if IsPlaceholderClient("Acme") {
		t.Fatal("Acme is a real client")
	}
}

func TestIdentityCascade(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	stored := []domain.Document{
		{ID: "by-path", Title: "Scan 1", Category: domain.CategoryVendorInvoice, Client: "Unknown",
			Amount: 10, Currency: "USD", CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			FilePath: "/uploads/2024/inv_001.pdf"},
		{ID: "by-invoice", Title: "Invoice A", Category: domain.CategoryClientInvoice, Client: "Acme",
			Amount: 700, Currency: "USD", CreatedAt: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
			InvoiceNumber: "INV-9"},
		{ID: "by-po", Title: "Order", Category: domain.CategoryClientPO, Client: "Acme",
			Amount: 5000, Currency: "USD", CreatedAt: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
			PONumber: "PO-1"},
		{ID: "by-title", Title: "Hosting March", Category: domain.CategoryVendorInvoice, Client: "Globex",
			Amount: 1000, Currency: "USD", CreatedAt: time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC)},
	}
	for i := range stored {
		if err := store.Documents.Insert(ctx, &stored[i]); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	r := NewIdentityResolver(store.Documents)

	cases := []struct {
		name string
		c    domain.Document
		want string
		rule string
	}{
		{"exact path", domain.Document{FilePath: "/uploads/2024/inv_001.pdf", Client: "Unknown"}, "by-path", "file_path"},
		{"same file name in another directory", domain.Document{FilePath: `C:\scans\inv_001.pdf`, Client: "Unknown"}, "by-path", "file_name"},
		{"invoice number", domain.Document{Category: domain.CategoryClientInvoice, InvoiceNumber: "INV-9", Client: "Unknown"}, "by-invoice", "invoice_number"},
		{"po number", domain.Document{Category: domain.CategoryVendorPO, PONumber: "PO-1", Client: "Unknown"}, "by-po", "po_number"},
		{"invoice quoting a po number is not the po", domain.Document{Category: domain.CategoryClientInvoice, PONumber: "PO-1", Client: "Unknown", Amount: 3}, "", ""},
		{"title within half a percent", domain.Document{Title: "Hosting March", Amount: 1005, Client: "Unknown"}, "by-title", "title_amount"},
		{"title two percent off", domain.Document{Title: "Hosting March", Amount: 1020, Client: "Unknown"}, "", ""},
		{"client and amount", domain.Document{Category: domain.CategoryClientInvoice, Client: "acme", Amount: 703}, "by-invoice", "client_amount"},
		{"placeholder client never matches", domain.Document{Category: domain.CategoryVendorInvoice, Client: "Unknown", Amount: 10}, "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, rule, err := r.Match(ctx, &tc.c)
			if err != nil {
				t.Fatalf("match: %v", err)
			}
			gotID := ""
			if got != nil {
				gotID = got.ID
			}
			if gotID != tc.want || rule != tc.rule {
				t.Fatalf("got %q via %q, want %q via %q", gotID, rule, tc.want, tc.rule)
			}
		})
	}
}
