package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/subidb/DMS-Dashboard/internal/currency"
	"github.com/subidb/DMS-Dashboard/internal/domain"
	"github.com/subidb/DMS-Dashboard/internal/lock"
	"github.com/subidb/DMS-Dashboard/internal/logging"
	"github.com/subidb/DMS-Dashboard/internal/reconciliation"
	"github.com/subidb/DMS-Dashboard/internal/repository"
)

var (
	// ErrUnsupportedFormat is returned for an upload format other than json or csv.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrInvalidLink is returned for a supplied linked_to that does not name
	// a stored counterpart: a PO for an invoice, a contract for a PO.
	ErrInvalidLink = errors.New("invalid linked_to")
)

// InvalidDocumentError reports a candidate that failed field validation.
type InvalidDocumentError struct {
	Index int
	Err   error
}

func (e *InvalidDocumentError) Error() string {
	return fmt.Sprintf("document %d: %s", e.Index, domain.ValidationMessage(e.Err))
}

func (e *InvalidDocumentError) Unwrap() error { return e.Err }

// IngestResult is returned from a successful ingestion.
type IngestResult struct {
	Ingested      int      `json:"ingested"`
	Duplicates    int      `json:"duplicates"`
	DocumentIDs   []string `json:"document_ids"`
	AlertsCreated int      `json:"alerts_created"`
}

// Service stores already-extracted documents and reconciles each new one.
type Service struct {
	store    *repository.Store
	recon    *reconciliation.Service
	locker   lock.Locker
	validate *validator.Validate
	logger   logrus.FieldLogger
	now      func() time.Time

	identityTolerance float64
}

type Option func(*Service)

// WithIdentityTolerance sets the relative amount difference under which a
// same-title or same-client document counts as a duplicate.
func WithIdentityTolerance(tol float64) Option {
	return func(s *Service) {
		if tol > 0 {
			s.identityTolerance = tol
		}
	}
}

func NewService(store *repository.Store, recon *reconciliation.Service, locker lock.Locker, logger logrus.FieldLogger, opts ...Option) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Service{
		store:             store,
		recon:             recon,
		locker:            locker,
		validate:          domain.NewValidator(),
		logger:            logger.WithField("component", "ingestion"),
		now:               func() time.Time { return time.Now().UTC() },
		identityTolerance: IdentityAmountTolerance,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IngestFile parses data in the given format and ingests the result.
//
// format must be one of: json, csv
func (s *Service) IngestFile(ctx context.Context, data []byte, format string) (*IngestResult, error) {
	var docs []domain.Document
	var err error

	switch strings.ToLower(format) {
	case "json":
		docs, err = ParseJSON(data)
	case "csv":
		docs, err = ParseCSV(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", format, err)
	}

	return s.Ingest(ctx, docs)
}

// Ingest validates every candidate before storing any of them. A candidate
// that duplicates a stored document is not inserted; its existing id is
// reported instead.
func (s *Service) Ingest(ctx context.Context, candidates []domain.Document) (*IngestResult, error) {
	for i := range candidates {
		s.Normalize(&candidates[i])
		if err := s.validate.Struct(&candidates[i]); err != nil {
			return nil, &InvalidDocumentError{Index: i, Err: err}
		}
		if err := s.checkLink(ctx, &candidates[i]); err != nil {
			return nil, &InvalidDocumentError{Index: i, Err: err}
		}
	}

	res := &IngestResult{DocumentIDs: make([]string, 0, len(candidates))}
	for i := range candidates {
		id, created, alerts, err := s.ingestOne(ctx, &candidates[i])
		if err != nil {
			return res, fmt.Errorf("document %d: %w", i, err)
		}
		res.DocumentIDs = append(res.DocumentIDs, id)
		res.AlertsCreated += alerts
		if created {
			res.Ingested++
		} else {
			res.Duplicates++
		}
	}

	s.logger.WithFields(logrus.Fields{
		"candidates": len(candidates),
		"ingested":   res.Ingested,
		"duplicates": res.Duplicates,
		"alerts":     res.AlertsCreated,
	}).Info("ingestion complete")

	return res, nil
}

// Create stores a single document the way an upload would, and is used by
// the management API.
func (s *Service) Create(ctx context.Context, doc *domain.Document) (*IngestResult, error) {
	docs := []domain.Document{*doc}
	res, err := s.Ingest(ctx, docs)
	if err == nil {
		*doc = docs[0]
	}
	return res, err
}

func (s *Service) ingestOne(ctx context.Context, c *domain.Document) (string, bool, int, error) {
	lk, err := s.locker.Obtain(ctx, "ingest:"+fileIdentity(c))
	if err != nil {
		return "", false, 0, fmt.Errorf("obtain ingest lock: %w", err)
	}
	defer lk.Release(context.WithoutCancel(ctx))

	resolver := NewIdentityResolver(s.store.Documents)
	resolver.tolerance = s.identityTolerance
	existing, rule, err := resolver.Match(ctx, c)
	if err != nil {
		return "", false, 0, err
	}
	if existing != nil {
		s.logger.WithFields(logrus.Fields{
			"document_id": existing.ID,
			"rule":        rule,
			"title":       c.Title,
		}).Info("duplicate document skipped")
		*c = *existing
		return existing.ID, false, 0, nil
	}

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if err := s.store.Documents.Insert(ctx, c); err != nil {
		return "", false, 0, err
	}

	alerts, err := s.recon.ReconcileDocument(ctx, c.ID)
	if err != nil {
		// The document is stored; the next refresh picks it up.
		logging.LogError(s.logger, "ingestion", "ingestOne", "reconcile new document", c.ID, err)
		return c.ID, true, 0, nil
	}
	if stored, err := s.store.Documents.GetByID(ctx, c.ID); err == nil {
		*c = *stored
	}
	return c.ID, true, len(alerts), nil
}

// checkLink accepts an empty linked_to or one that points at an existing
// document of the counterpart kind. Links are never rewritten once stored.
func (s *Service) checkLink(ctx context.Context, d *domain.Document) error {
	if d.LinkedTo == "" {
		return nil
	}
	var want func(domain.Category) bool
	switch {
	case d.Category.IsInvoice():
		want = domain.Category.IsPO
	case d.Category.IsPO():
		want = domain.Category.IsContract
	default:
		return fmt.Errorf("%w: %s documents are not linked", ErrInvalidLink, d.Category)
	}

	target, err := s.store.Documents.GetByID(ctx, d.LinkedTo)
	if repository.IsNotFound(err) {
		return fmt.Errorf("%w: document %s does not exist", ErrInvalidLink, d.LinkedTo)
	}
	if err != nil {
		return err
	}
	if !want(target.Category) {
		return fmt.Errorf("%w: %s cannot link to %s", ErrInvalidLink, d.Category, target.Category)
	}
	return nil
}

// Normalize trims free-text fields, canonicalizes the currency code and
// fills in defaults for status and document date.
func (s *Service) Normalize(d *domain.Document) {
	d.Title = strings.TrimSpace(d.Title)
	d.Category = domain.Category(strings.TrimSpace(string(d.Category)))
	d.Client = strings.TrimSpace(d.Client)
	d.Vendor = strings.TrimSpace(d.Vendor)
	d.Currency = currency.Normalize(d.Currency)
	d.PONumber = strings.TrimSpace(d.PONumber)
	d.InvoiceNumber = strings.TrimSpace(d.InvoiceNumber)
	d.FilePath = strings.TrimSpace(d.FilePath)
	d.LinkedTo = strings.TrimSpace(d.LinkedTo)

	if d.Status == "" {
		d.Status = domain.StatusDraft
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = s.now().Truncate(time.Second)
	}
}

// fileIdentity is the key two uploads of the same file share.
func fileIdentity(d *domain.Document) string {
	if name := baseName(d.FilePath); name != "" {
		return name
	}
	return strings.ToLower(d.Title)
}
