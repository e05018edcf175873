package ingestion

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/subidb/DMS-Dashboard/internal/domain"
	"github.com/subidb/DMS-Dashboard/internal/repository"
)

// IdentityAmountTolerance is the relative amount difference under which
// two documents with the same title or client are considered the same.
const IdentityAmountTolerance = 0.01

var placeholderClients = map[string]bool{
	"":               true,
	"unknown":        true,
	"unknown client": true,
	"n/a":            true,
	"tbd":            true,
}

// IsPlaceholderClient reports whether name is one of the values extraction
// fills in when it could not read a client.
func IsPlaceholderClient(name string) bool {
	return placeholderClients[strings.ToLower(strings.TrimSpace(name))]
}

// IdentityResolver decides whether an inbound document is already stored.
type IdentityResolver struct {
	docs      *repository.DocumentRepo
	tolerance float64
}

func NewIdentityResolver(docs *repository.DocumentRepo) *IdentityResolver {
	return &IdentityResolver{docs: docs, tolerance: IdentityAmountTolerance}
}

// FindExisting returns the stored document that c duplicates, or nil.
func (r *IdentityResolver) FindExisting(ctx context.Context, c *domain.Document) (*domain.Document, error) {
	doc, _, err := r.Match(ctx, c)
	return doc, err
}

// Match is FindExisting that also names the rule that matched.
func (r *IdentityResolver) Match(ctx context.Context, c *domain.Document) (*domain.Document, string, error) {
	rules := []struct {
		name string
		find func(context.Context, *domain.Document) (*domain.Document, error)
	}{
		{"file_path", r.byFilePath},
		{"file_name", r.byFileName},
		{"invoice_number", r.byInvoiceNumber},
		{"po_number", r.byPONumber},
		{"title_amount", r.byTitleAmount},
		{"client_amount", r.byClientAmount},
	}
	for _, rule := range rules {
		doc, err := rule.find(ctx, c)
		if err != nil {
			return nil, "", fmt.Errorf("identity %s: %w", rule.name, err)
		}
		if doc != nil {
			return doc, rule.name, nil
		}
	}
	return nil, "", nil
}

func (r *IdentityResolver) byFilePath(ctx context.Context, c *domain.Document) (*domain.Document, error) {
	if c.FilePath == "" {
		return nil, nil
	}
	return r.docs.First(ctx, repository.DocumentQuery{FilePath: c.FilePath})
}

// byFileName catches re-uploads stored under a prefixed or suffixed path.
func (r *IdentityResolver) byFileName(ctx context.Context, c *domain.Document) (*domain.Document, error) {
	name := baseName(c.FilePath)
	if name == "" {
		return nil, nil
	}
	return r.docs.First(ctx, repository.DocumentQuery{FilePathContains: name})
}

func (r *IdentityResolver) byInvoiceNumber(ctx context.Context, c *domain.Document) (*domain.Document, error) {
	if c.InvoiceNumber == "" || !c.Category.IsInvoice() {
		return nil, nil
	}
	return r.docs.First(ctx, repository.DocumentQuery{
		Categories:    domain.InvoiceCategories,
		InvoiceNumber: c.InvoiceNumber,
	})
}

func (r *IdentityResolver) byPONumber(ctx context.Context, c *domain.Document) (*domain.Document, error) {
	if c.PONumber == "" || !c.Category.IsPO() {
		return nil, nil
	}
	return r.docs.First(ctx, repository.DocumentQuery{
		Categories: domain.POCategories,
		PONumber:   c.PONumber,
	})
}

func (r *IdentityResolver) byTitleAmount(ctx context.Context, c *domain.Document) (*domain.Document, error) {
	if c.Title == "" {
		return nil, nil
	}
	docs, err := r.docs.Find(ctx, repository.DocumentQuery{Title: c.Title})
	if err != nil {
		return nil, err
	}
	return r.firstSimilarAmount(docs, c.Amount), nil
}

// byClientAmount only applies to real client names and compares within the
// candidate's category, so an invoice billing a PO in full is not taken
// for the PO itself.
func (r *IdentityResolver) byClientAmount(ctx context.Context, c *domain.Document) (*domain.Document, error) {
	if IsPlaceholderClient(c.Client) {
		return nil, nil
	}
	docs, err := r.docs.Find(ctx, repository.DocumentQuery{
		Categories: []domain.Category{c.Category},
		Client:     c.Client,
	})
	if err != nil {
		return nil, err
	}
	return r.firstSimilarAmount(docs, c.Amount), nil
}

func (r *IdentityResolver) firstSimilarAmount(docs []domain.Document, amount float64) *domain.Document {
	for i := range docs {
		if AmountsMatch(docs[i].Amount, amount, r.tolerance) {
			return &docs[i]
		}
	}
	return nil
}

// AmountsMatch compares a and b relative to the larger of the two, so the
// result does not depend on argument order.
func AmountsMatch(a, b, tolerance float64) bool {
	larger := math.Max(math.Abs(a), math.Abs(b))
	if larger == 0 {
		return true
	}
	return math.Abs(a-b)/larger <= tolerance
}

// baseName strips any directory part, whichever separator the uploader used.
func baseName(path string) string {
	return strings.TrimSpace(path[strings.LastIndexAny(path, `/\`)+1:])
}
