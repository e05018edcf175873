package reconciliation

import (
	"context"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/subidb/DMS-Dashboard/internal/domain"
	"github.com/subidb/DMS-Dashboard/internal/repository"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestRefreshPOUtilizationScenario(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	po := &domain.Document{ID: "po", Title: "PO-2024-001", Category: domain.CategoryClientPO,
		Client: "Acme", Vendor: "Globex", Amount: 10000, CreatedAt: day(2024, 1, 1), PONumber: "PO-2024-001"}
	inv1 := &domain.Document{ID: "inv1", Title: "INV-1", Category: domain.CategoryClientInvoice,
		Client: "Acme", Vendor: "Globex", Amount: 4000, CreatedAt: day(2024, 2, 1), PONumber: "PO-2024-001"}
	inv2 := &domain.Document{ID: "inv2", Title: "INV-2", Category: domain.CategoryClientInvoice,
		Client: "Acme", Vendor: "Globex", Amount: 5000, CreatedAt: day(2024, 3, 1), PONumber: "PO-2024-001"}
	insertDocs(t, store, po, inv1, inv2)

	svc := NewService(store, WithClock(fixedClock(day(2024, 4, 1))))
	if _, err := svc.RefreshAllAlerts(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	for _, id := range []string{"inv1", "inv2"} {
		if got := reload(t, store, id).LinkedTo; got != "po" {
			t.Fatalf("%s linked to %q, want po", id, got)
		}
	}

	alerts := alertsFor(t, store, "po")
	if len(alerts) != 1 {
		t.Fatalf("expected exactly one PO alert, got %d: %+v", len(alerts), alerts)
	}
	a := alerts[0]
	if a.Title != TitlePOApproachingLimit || a.Level != domain.LevelWarning {
		t.Fatalf("unexpected alert %q/%s", a.Title, a.Level)
	}
	if !strings.Contains(a.Description, "1,000.00 USD remaining") {
		t.Fatalf("description %q missing remaining balance", a.Description)
	}

	c, err := svc.Engine().CalculatePOConsumption(ctx, po)
	if err != nil {
		t.Fatalf("consumption: %v", err)
	}
	if c.TotalInvoiced != 9000 || c.UtilizationPercentage != 90 || c.LinkedInvoiceCount != 2 {
		t.Fatalf("unexpected consumption %+v", c)
	}
}

func TestGenerateAlertsUnlinkedInvoice(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	inv := &domain.Document{ID: "inv", Title: "INV-9", Category: domain.CategoryVendorInvoice,
		Client: "Nobody", Amount: 250, CreatedAt: day(2024, 2, 1)}
	insertDocs(t, store, inv)

	svc := NewService(store)
	alerts, err := svc.GenerateAlertsForDocument(ctx, inv)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(alerts) != 1 || alerts[0].Title != TitleInvoiceNotLinked || alerts[0].Level != domain.LevelWarning {
		t.Fatalf("unexpected alerts %+v", alerts)
	}

	again, err := svc.GenerateAlertsForDocument(ctx, inv)
	if err != nil {
		t.Fatalf("generate again: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("open alert repeated: %+v", again)
	}
	if n := len(alertsFor(t, store, "inv")); n != 1 {
		t.Fatalf("expected 1 stored alert, got %d", n)
	}
}

func TestGenerateAlertsKeepsExistingLink(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	manual := &domain.Document{ID: "po-manual", Title: "Manual PO", Category: domain.CategoryClientPO,
		Client: "Acme", Amount: 100000, CreatedAt: day(2024, 1, 1)}
	numbered := &domain.Document{ID: "po-numbered", Title: "Numbered PO", Category: domain.CategoryClientPO,
		Client: "Acme", Amount: 100000, CreatedAt: day(2024, 1, 2), PONumber: "PO-555"}
	inv := &domain.Document{ID: "inv", Title: "INV", Category: domain.CategoryClientInvoice,
		Client: "Acme", Amount: 10, CreatedAt: day(2024, 2, 1), PONumber: "PO-555", LinkedTo: "po-manual"}
	insertDocs(t, store, manual, numbered, inv)

	svc := NewService(store)
	if _, err := svc.RefreshAllAlerts(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if got := reload(t, store, "inv").LinkedTo; got != "po-manual" {
		t.Fatalf("link overwritten: %q", got)
	}

	c, err := svc.Engine().CalculatePOConsumption(ctx, numbered)
	if err != nil {
		t.Fatalf("consumption: %v", err)
	}
	if c.LinkedInvoiceCount != 0 {
		t.Fatalf("invoice counted against the wrong PO: %+v", c)
	}
}

func TestLinkDocumentWritesOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	po := &domain.Document{ID: "po", Title: "PO", Category: domain.CategoryClientPO,
		Client: "Acme", Amount: 1000, CreatedAt: day(2024, 1, 1), PONumber: "PO-77"}
	inv := &domain.Document{ID: "inv", Title: "INV", Category: domain.CategoryClientInvoice,
		Client: "Acme", Amount: 10, CreatedAt: day(2024, 2, 1), PONumber: "PO-77"}
	insertDocs(t, store, po, inv)

	svc := NewService(store)
	changed, err := svc.LinkDocument(ctx, inv)
	if err != nil || !changed {
		t.Fatalf("first link: changed=%v err=%v", changed, err)
	}
	if inv.LinkedTo != "po" {
		t.Fatalf("in-memory document not updated: %q", inv.LinkedTo)
	}

	changed, err = svc.LinkDocument(ctx, reload(t, store, "inv"))
	if err != nil || changed {
		t.Fatalf("second link: changed=%v err=%v", changed, err)
	}
}

func TestContractExpiringSoon(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)

	due := now.AddDate(0, 0, 10)
	contract := &domain.Document{ID: "sa", Title: "MSA Acme", Category: domain.CategoryServiceAgreement,
		Client: "Acme", Vendor: "Globex", Amount: 50000, CreatedAt: day(2024, 1, 1), DueDate: &due}
	po := &domain.Document{ID: "po", Title: "PO", Category: domain.CategoryClientPO,
		Client: "Acme", Vendor: "Globex", Amount: 2000, CreatedAt: day(2024, 3, 1)}
	insertDocs(t, store, contract, po)

	svc := NewService(store, WithClock(fixedClock(now)))
	if _, err := svc.RefreshAllAlerts(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	if got := reload(t, store, "po").LinkedTo; got != "sa" {
		t.Fatalf("po linked to %q, want sa", got)
	}

	alerts := withTitle(alertsFor(t, store, "sa"), TitleContractExpiringSoon)
	if len(alerts) != 1 {
		t.Fatalf("expected one expiry alert, got %+v", alerts)
	}
	if !strings.Contains(alerts[0].Description, "10 days") {
		t.Fatalf("description %q missing day count", alerts[0].Description)
	}
	if !strings.Contains(alerts[0].Description, "1 PO(s)") {
		t.Fatalf("description %q missing exposure", alerts[0].Description)
	}
}

func TestInvoiceOutsideContractPeriod(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	due := day(2024, 3, 31)
	contract := &domain.Document{ID: "sa", Title: "MSA", Category: domain.CategoryServiceAgreement,
		Client: "Acme", Vendor: "Globex", Amount: 50000, CreatedAt: day(2024, 1, 1), DueDate: &due}
	po := &domain.Document{ID: "po", Title: "PO", Category: domain.CategoryClientPO,
		Client: "Acme", Vendor: "Globex", Amount: 50000, CreatedAt: day(2024, 2, 1), PONumber: "PO-9"}
	late := &domain.Document{ID: "late", Title: "INV late", Category: domain.CategoryClientInvoice,
		Client: "Acme", Vendor: "Globex", Amount: 100, CreatedAt: day(2024, 4, 1), PONumber: "PO-9"}
	insertDocs(t, store, contract, po, late)

	svc := NewService(store, WithClock(fixedClock(day(2024, 5, 1))))
	if _, err := svc.RefreshAllAlerts(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	out := withTitle(alertsFor(t, store, "late"), TitleInvoiceOutsideContract)
	if len(out) != 1 {
		t.Fatalf("expected one outside-contract alert on the invoice, got %+v", out)
	}
	if !strings.Contains(out[0].Description, "after contract expiration") {
		t.Fatalf("unexpected description %q", out[0].Description)
	}
	if n := len(withTitle(alertsFor(t, store, "po"), TitlePOOutsideContract)); n != 0 {
		t.Fatalf("PO inside the period was flagged %d times", n)
	}
	if n := len(withTitle(alertsFor(t, store, "sa"), TitleContractExpired)); n != 1 {
		t.Fatalf("expected expired contract alert, got %d", n)
	}
}

type alertKey struct {
	doc, title string
	level      domain.AlertLevel
}

func openAlertKeys(t *testing.T, svc *Service) []alertKey {
	t.Helper()
	open := false
	alerts, _, err := svc.store.Alerts.List(context.Background(), repository.AlertFilter{Acknowledged: &open})
	if err != nil {
		t.Fatalf("list alerts: %v", err)
	}
	keys := make([]alertKey, 0, len(alerts))
	for _, a := range alerts {
		keys = append(keys, alertKey{a.DocumentID, a.Title, a.Level})
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].doc != keys[j].doc {
			return keys[i].doc < keys[j].doc
		}
		return keys[i].title < keys[j].title
	})
	return keys
}

func seedMixed(t *testing.T, svc *Service) {
	t.Helper()
	due := day(2024, 6, 30)
	insertDocs(t, svc.store,
		&domain.Document{ID: "sa", Title: "MSA", Category: domain.CategoryServiceAgreement,
			Client: "Acme", Vendor: "Globex", Amount: 1, CreatedAt: day(2024, 1, 1), DueDate: &due},
		&domain.Document{ID: "po", Title: "PO-42", Category: domain.CategoryClientPO,
			Client: "Acme", Vendor: "Globex", Amount: 1000, CreatedAt: day(2024, 2, 1), PONumber: "PO-42"},
		&domain.Document{ID: "inv-a", Title: "INV-A", Category: domain.CategoryClientInvoice,
			Client: "Acme", Vendor: "Globex", Amount: 500, CreatedAt: day(2024, 3, 1), PONumber: "PO-42"},
		&domain.Document{ID: "inv-b", Title: "INV-B", Category: domain.CategoryClientInvoice,
			Client: "Acme", Vendor: "Globex", Amount: 460, Currency: "EUR", CreatedAt: day(2024, 7, 15), PONumber: "PO-42"},
		&domain.Document{ID: "inv-orphan", Title: "INV-X", Category: domain.CategoryVendorInvoice,
			Client: "Nobody", Amount: 5, CreatedAt: day(2024, 3, 1)},
	)
}

func TestRefreshAllAlertsIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	svc := NewService(store, WithClock(fixedClock(day(2024, 6, 20))))
	seedMixed(t, svc)

	first, err := svc.RefreshAllAlerts(ctx)
	if err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	keys1 := openAlertKeys(t, svc)

	second, err := svc.RefreshAllAlerts(ctx)
	if err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	keys2 := openAlertKeys(t, svc)

	if first == 0 || first != second {
		t.Fatalf("refresh counts differ: %d then %d", first, second)
	}
	if len(keys1) != len(keys2) || len(keys1) != first {
		t.Fatalf("open alerts %d then %d, refresh reported %d", len(keys1), len(keys2), first)
	}
	for i := range keys1 {
		if keys1[i] != keys2[i] {
			t.Fatalf("alert set changed at %d: %+v vs %+v", i, keys1[i], keys2[i])
		}
	}
}

func TestRefreshPreservesAcknowledgedAlerts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	svc := NewService(store, WithClock(fixedClock(day(2024, 6, 20))))
	seedMixed(t, svc)

	if _, err := svc.RefreshAllAlerts(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	orphan := alertsFor(t, store, "inv-orphan")
	if len(orphan) != 1 {
		t.Fatalf("expected one orphan alert, got %d", len(orphan))
	}
	if err := store.Alerts.Acknowledge(ctx, orphan[0].ID); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}

	if _, err := svc.RefreshAllAlerts(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	kept, err := store.Alerts.GetByID(ctx, orphan[0].ID)
	if err != nil {
		t.Fatalf("acknowledged alert lost: %v", err)
	}
	if !kept.Acknowledged {
		t.Fatal("acknowledged flag cleared")
	}
}

func TestReconcileDocumentNotFound(t *testing.T) {
	svc := NewService(newTestStore(t))
	_, err := svc.ReconcileDocument(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error for unknown document")
	}
}

func TestUtilizationEscalationReplacesWarning(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	svc := NewService(store)

	po := &domain.Document{ID: "po", Title: "PO-77", Category: domain.CategoryClientPO,
		Client: "Acme", Vendor: "Globex", Amount: 1000, CreatedAt: day(2024, 1, 1), PONumber: "PO-77"}
	first := &domain.Document{ID: "inv-1", Title: "INV-1", Category: domain.CategoryClientInvoice,
		Client: "Acme", Vendor: "Globex", Amount: 800, CreatedAt: day(2024, 2, 1), PONumber: "PO-77"}
	insertDocs(t, store, po, first)

	if _, err := svc.ReconcileDocument(ctx, "inv-1"); err != nil {
		t.Fatalf("reconcile first invoice: %v", err)
	}
	if n := len(withTitle(alertsFor(t, store, "po"), TitlePOApproachingLimit)); n != 1 {
		t.Fatalf("expected approaching-limit warning, got %d", n)
	}

	second := &domain.Document{ID: "inv-2", Title: "INV-2", Category: domain.CategoryClientInvoice,
		Client: "Acme", Vendor: "Globex", Amount: 150, CreatedAt: day(2024, 3, 1), PONumber: "PO-77"}
	insertDocs(t, store, second)
	if _, err := svc.ReconcileDocument(ctx, "inv-2"); err != nil {
		t.Fatalf("reconcile second invoice: %v", err)
	}

	alerts := alertsFor(t, store, "po")
	if len(alerts) != 1 {
		t.Fatalf("expected a single open utilization alert, got %+v", alerts)
	}
	if alerts[0].Title != TitlePONearlyConsumed || alerts[0].Level != domain.LevelCritical {
		t.Fatalf("unexpected alert %q/%s", alerts[0].Title, alerts[0].Level)
	}
}

func TestExpiredContractReplacesExpiringSoon(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	due := day(2024, 6, 30)
	insertDocs(t, store, &domain.Document{ID: "sa", Title: "MSA", Category: domain.CategoryServiceAgreement,
		Client: "Acme", Vendor: "Globex", Amount: 1, CreatedAt: day(2024, 1, 1), DueDate: &due})

	before := NewService(store, WithClock(fixedClock(day(2024, 6, 20))))
	if _, err := before.ReconcileDocument(ctx, "sa"); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if n := len(withTitle(alertsFor(t, store, "sa"), TitleContractExpiringSoon)); n != 1 {
		t.Fatalf("expected expiring-soon warning, got %d", n)
	}

	after := NewService(store, WithClock(fixedClock(day(2024, 7, 2))))
	if _, err := after.ReconcileDocument(ctx, "sa"); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	alerts := alertsFor(t, store, "sa")
	if len(alerts) != 1 || alerts[0].Title != TitleContractExpired {
		t.Fatalf("expected only the expired alert, got %+v", alerts)
	}
}

func TestAlertSetIndependentOfDocumentOrder(t *testing.T) {
	ctx := context.Background()
	clock := WithClock(fixedClock(day(2024, 6, 20)))

	forward := NewService(newTestStore(t), clock)
	seedMixed(t, forward)
	if _, err := forward.RefreshAllAlerts(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	want := openAlertKeys(t, forward)

	reversed := NewService(newTestStore(t), clock)
	seedMixed(t, reversed)
	docs, err := reversed.store.Documents.Find(ctx, repository.DocumentQuery{})
	if err != nil {
		t.Fatalf("load documents: %v", err)
	}
	for i, j := 0, len(docs)-1; i < j; i, j = i+1, j-1 {
		docs[i], docs[j] = docs[j], docs[i]
	}
	for i := range docs {
		if _, err := reversed.LinkDocument(ctx, &docs[i]); err != nil {
			t.Fatalf("link %s: %v", docs[i].ID, err)
		}
	}
	for i := range docs {
		if _, err := reversed.GenerateAlertsForDocument(ctx, &docs[i]); err != nil {
			t.Fatalf("generate %s: %v", docs[i].ID, err)
		}
	}
	got := openAlertKeys(t, reversed)

	if len(got) != len(want) {
		t.Fatalf("reversed order produced %d alerts, want %d:\n%+v\n%+v", len(got), len(want), got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("alert sets differ at %d: %+v vs %+v", i, got[i], want[i])
		}
	}
}

func TestRefreshSkipsFailingDocument(t *testing.T) {
	db, store := newTestDB(t)
	ctx := context.Background()
	svc := NewService(store)

	insertDocs(t, store,
		&domain.Document{ID: "inv-broken", Title: "INV-B", Category: domain.CategoryVendorInvoice,
			Client: "Nobody", Amount: 5, CreatedAt: day(2024, 3, 1)},
		&domain.Document{ID: "inv-fine", Title: "INV-F", Category: domain.CategoryVendorInvoice,
			Client: "Nobody Else", Amount: 7, CreatedAt: day(2024, 3, 2)},
	)
	if _, err := db.Exec(`CREATE TRIGGER reject_broken BEFORE INSERT ON alerts
		WHEN NEW.document_id = 'inv-broken'
		BEGIN SELECT RAISE(ABORT, 'alert rejected'); END`); err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	n, err := svc.RefreshAllAlerts(ctx)
	if err != nil {
		t.Fatalf("refresh should isolate per-document failures: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one alert from the healthy document, got %d", n)
	}
	if got := alertsFor(t, store, "inv-fine"); len(got) != 1 || got[0].Title != TitleInvoiceNotLinked {
		t.Fatalf("healthy document alerts %+v", got)
	}
	if got := alertsFor(t, store, "inv-broken"); len(got) != 0 {
		t.Fatalf("failing document should have no alerts, got %+v", got)
	}
}
