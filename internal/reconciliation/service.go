package reconciliation

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/subidb/DMS-Dashboard/internal/domain"
	"github.com/subidb/DMS-Dashboard/internal/lock"
	"github.com/subidb/DMS-Dashboard/internal/logging"
	"github.com/subidb/DMS-Dashboard/internal/repository"
)

// Service links documents, evaluates them and persists the resulting
// alerts. It keeps no state between calls; callers serialize work through
// the locker.
type Service struct {
	store  *repository.Store
	locker lock.Locker
	policy Policy
	logger logrus.FieldLogger
	now    func() time.Time
}

type Option func(*Service)

func WithPolicy(p Policy) Option {
	return func(s *Service) { s.policy = p }
}

func WithLocker(l lock.Locker) Option {
	return func(s *Service) { s.locker = l }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock overrides the time source used for expiry math and alert
// timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store *repository.Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		locker: lock.NewLocal(),
		policy: DefaultPolicy(),
		logger: logging.Discard(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithField("component", "reconciliation")
	return s
}

// Engine returns an engine reading the service's store outside any
// transaction.
func (s *Service) Engine() *Engine {
	return NewEngine(s.store.Documents, s.policy)
}

// ReconcileDocument regenerates alerts for one stored document while
// holding the reconciliation lock.
func (s *Service) ReconcileDocument(ctx context.Context, id string) ([]domain.Alert, error) {
	lk, err := s.locker.Obtain(ctx, lock.ReconcileKey)
	if err != nil {
		return nil, fmt.Errorf("obtain reconcile lock: %w", err)
	}
	defer lk.Release(context.WithoutCancel(ctx))

	doc, err := s.store.Documents.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.GenerateAlertsForDocument(ctx, doc)
}

// RefreshAllAlerts drops every unacknowledged alert and rebuilds the set
// from scratch. Links are resolved for every document before any alert is
// evaluated, so the outcome does not depend on document order. A failure
// on one document is logged and skipped.
func (s *Service) RefreshAllAlerts(ctx context.Context) (int, error) {
	lk, err := s.locker.Obtain(ctx, lock.ReconcileKey)
	if err != nil {
		return 0, fmt.Errorf("obtain reconcile lock: %w", err)
	}
	defer lk.Release(context.WithoutCancel(ctx))

	start := s.now()

	deleted, err := s.store.Alerts.DeleteUnacknowledged(ctx)
	if err != nil {
		return 0, err
	}

	docs, err := s.store.Documents.Find(ctx, repository.DocumentQuery{})
	if err != nil {
		return 0, fmt.Errorf("load documents: %w", err)
	}

	linked, failed := 0, 0
	for i := range docs {
		changed, err := s.LinkDocument(ctx, &docs[i])
		if err != nil {
			failed++
			logging.LogError(s.logger, "reconciliation", "RefreshAllAlerts", "link document", docs[i].ID, err)
			continue
		}
		if changed {
			linked++
		}
	}

	total := 0
	for i := range docs {
		alerts, err := s.GenerateAlertsForDocument(ctx, &docs[i])
		if err != nil {
			failed++
			logging.LogError(s.logger, "reconciliation", "RefreshAllAlerts", "generate alerts", docs[i].ID, err)
			continue
		}
		total += len(alerts)
	}

	s.logger.WithFields(logrus.Fields{
		"documents":     len(docs),
		"deleted":       deleted,
		"links_created": linked,
		"alerts":        total,
		"failures":      failed,
		"elapsed":       s.now().Sub(start).String(),
	}).Info("refresh complete")

	return total, nil
}

// LinkDocument resolves and persists the counterpart link for an invoice
// or PO. Existing links are never replaced. It reports whether a new link
// was written.
func (s *Service) LinkDocument(ctx context.Context, doc *domain.Document) (bool, error) {
	if doc.Linked() || !(doc.Category.IsInvoice() || doc.Category.IsPO()) {
		return false, nil
	}

	var changed bool
	err := s.store.WithTx(ctx, func(tx *repository.Store) error {
		e := NewEngine(tx.Documents, s.policy)

		var target *domain.Document
		var err error
		if doc.Category.IsInvoice() {
			target, err = e.LinkInvoiceToPO(ctx, doc)
		} else {
			target, err = e.LinkPOToContract(ctx, doc)
		}
		if err != nil || target == nil {
			return err
		}

		changed, err = setLink(ctx, tx, doc, target)
		return err
	})
	return changed, err
}

// GenerateAlertsForDocument evaluates one document according to its
// category and stores the resulting alerts. Link writes and alert inserts
// commit together. Only newly stored alerts are returned; an alert that is
// already open for the same document, title and level is not repeated.
//
// Callers are responsible for serializing this with other reconciliation
// work; see ReconcileDocument.
func (s *Service) GenerateAlertsForDocument(ctx context.Context, doc *domain.Document) ([]domain.Alert, error) {
	var inserted []domain.Alert
	err := s.store.WithTx(ctx, func(tx *repository.Store) error {
		g := &generator{
			ctx:    ctx,
			tx:     tx,
			engine: NewEngine(tx.Documents, s.policy),
			policy: s.policy,
			now:    s.now(),
		}

		var err error
		switch {
		case doc.Category.IsInvoice():
			err = g.invoice(doc)
		case doc.Category.IsPO():
			err = g.purchaseOrder(doc)
		case doc.Category.IsContract():
			err = g.contract(doc)
		}
		if err != nil {
			return err
		}

		inserted, err = tx.Alerts.InsertOpen(ctx, g.alerts)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("generate alerts for %s: %w", doc.ID, err)
	}

	if len(inserted) > 0 {
		s.logger.WithFields(logrus.Fields{
			"document_id": doc.ID,
			"category":    doc.Category,
			"alerts":      len(inserted),
		}).Debug("alerts generated")
	}
	return inserted, nil
}

// setLink is the only write path for engine-created links. It honours
// the append-only rule: a document that already points somewhere keeps
// its link.
func setLink(ctx context.Context, tx *repository.Store, doc, target *domain.Document) (bool, error) {
	if doc.Linked() {
		return false, nil
	}
	ok, err := tx.Documents.SetLinkIfUnset(ctx, doc.ID, target.ID)
	if err != nil {
		return false, err
	}
	if ok {
		doc.LinkedTo = target.ID
	}
	return ok, nil
}

// generator collects the alerts for a single document inside one
// transaction.
type generator struct {
	ctx    context.Context
	tx     *repository.Store
	engine *Engine
	policy Policy
	now    time.Time
	alerts []domain.Alert
}

func (g *generator) add(alerts ...domain.Alert) {
	g.alerts = append(g.alerts, alerts...)
}

func (g *generator) invoice(inv *domain.Document) error {
	po, err := g.linkedOrResolved(inv, domain.Category.IsPO, g.engine.LinkInvoiceToPO)
	if err != nil {
		return err
	}
	if po == nil {
		g.add(notLinkedAlert(inv, g.now))
		return nil
	}

	if _, err := setLink(g.ctx, g.tx, inv, po); err != nil {
		return err
	}

	v, err := g.engine.ValidateInvoiceAgainstPO(g.ctx, inv, po)
	if err != nil {
		return err
	}
	g.add(findingAlerts(inv, po, v, g.now)...)

	if err := g.utilization(po); err != nil {
		return err
	}
	return g.contractValidity(po, nil)
}

func (g *generator) purchaseOrder(po *domain.Document) error {
	contract, err := g.linkedOrResolved(po, domain.Category.IsContract, g.engine.LinkPOToContract)
	if err != nil {
		return err
	}
	if contract != nil {
		if _, err := setLink(g.ctx, g.tx, po, contract); err != nil {
			return err
		}
	}

	if err := g.utilization(po); err != nil {
		return err
	}
	if contract == nil {
		return nil
	}
	return g.contractValidity(po, contract)
}

func (g *generator) contract(contract *domain.Document) error {
	pos, err := g.engine.LinkContractToPOs(g.ctx, contract)
	if err != nil {
		return err
	}

	if err := g.expiration(contract); err != nil {
		return err
	}

	for i := range pos {
		if err := g.contractValidity(&pos[i], contract); err != nil {
			return err
		}
	}
	return nil
}

// linkedOrResolved follows doc's existing link when it points at a
// document of the wanted kind, and otherwise runs the resolver.
func (g *generator) linkedOrResolved(
	doc *domain.Document,
	want func(domain.Category) bool,
	resolve func(context.Context, *domain.Document) (*domain.Document, error),
) (*domain.Document, error) {
	if doc.Linked() {
		target, err := g.tx.Documents.GetByID(g.ctx, doc.LinkedTo)
		switch {
		case err == nil && want(target.Category):
			return target, nil
		case err != nil && !repository.IsNotFound(err):
			return nil, err
		}
	}
	return resolve(g.ctx, doc)
}

func (g *generator) utilization(po *domain.Document) error {
	if !po.Category.IsPO() {
		return nil
	}
	c, err := g.engine.CalculatePOConsumption(g.ctx, po)
	if err != nil {
		return err
	}
	a := utilizationAlert(po, c, g.policy, g.now)
	if err := g.supersede(po.ID, utilizationTier, a); err != nil {
		return err
	}
	if a != nil {
		g.add(*a)
	}
	return nil
}

// supersede closes the document's open alerts in tier that current
// replaces, so an escalation or a recovery never leaves two levels open.
func (g *generator) supersede(docID string, tier []string, current *domain.Alert) error {
	_, err := g.tx.Alerts.DeleteOpen(g.ctx, docID, supersededBy(tier, current)...)
	return err
}

func (g *generator) expiration(contract *domain.Document) error {
	if contract.DueDate == nil {
		return g.supersede(contract.ID, expirationTier, nil)
	}
	days := DaysUntil(*contract.DueDate, g.now)
	if days > g.policy.ContractExpiryWarningDays {
		return g.supersede(contract.ID, expirationTier, nil)
	}

	pos, err := g.engine.LinkedPOsForContract(g.ctx, contract)
	if err != nil {
		return err
	}
	x := contractExposure{POCount: len(pos)}
	for i := range pos {
		x.POValue += pos[i].Amount
		invoices, err := g.engine.LinkedInvoices(g.ctx, &pos[i])
		if err != nil {
			return err
		}
		x.InvoiceCount += len(invoices)
	}

	a := expirationAlert(contract, days, x, g.policy, g.now)
	if err := g.supersede(contract.ID, expirationTier, a); err != nil {
		return err
	}
	if a != nil {
		g.add(*a)
	}
	return nil
}

// contractValidity checks a PO and each of its invoices against the
// contract. When contract is nil it is taken from the PO's link or
// resolved afresh.
func (g *generator) contractValidity(po, contract *domain.Document) error {
	if contract == nil {
		var err error
		contract, err = g.linkedOrResolved(po, domain.Category.IsContract, g.engine.LinkPOToContract)
		if err != nil {
			return err
		}
	}
	if contract == nil || contract.DueDate == nil {
		return nil
	}

	if res := CheckContractValidity(po, contract, g.now); !res.Valid {
		g.add(outsideContractAlert(po, contract, res.Reason, g.now))
	}

	invoices, err := g.engine.LinkedInvoices(g.ctx, po)
	if err != nil {
		return err
	}
	for i := range invoices {
		if res := CheckContractValidity(&invoices[i], contract, g.now); !res.Valid {
			g.add(outsideContractAlert(&invoices[i], contract, res.Reason, g.now))
		}
	}
	return nil
}
