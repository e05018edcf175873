package reconciliation

import (
	"context"
	"fmt"
	"regexp"

	"github.com/subidb/DMS-Dashboard/internal/domain"
	"github.com/subidb/DMS-Dashboard/internal/repository"
)

// strategy finds a counterpart for doc, returning nil when it has no
// opinion. Strategies are tried in slice order and the first hit wins.
type strategy struct {
	name string
	find func(ctx context.Context, doc *domain.Document) (*domain.Document, error)
}

func firstMatch(ctx context.Context, strategies []strategy, doc *domain.Document) (*domain.Document, string, error) {
	for _, s := range strategies {
		found, err := s.find(ctx, doc)
		if err != nil {
			return nil, "", fmt.Errorf("%s: %w", s.name, err)
		}
		if found != nil {
			return found, s.name, nil
		}
	}
	return nil, "", nil
}

func (e *Engine) invoiceStrategies() []strategy {
	return []strategy{
		{"po_number", e.poByInvoiceNumberField},
		{"po_number_in_title", e.poByNumberInTitle},
		{"client_vendor_date", e.poByClientVendorDate},
		{"client_amount", e.poByClientAmount},
	}
}

func (e *Engine) contractStrategies() []strategy {
	return []strategy{
		{"vendor_client_period", e.contractByVendorClient},
		{"client_period", e.contractByClient},
	}
}

// LinkInvoiceToPO finds the purchase order that authorizes an invoice.
// Explicit PO numbers win over party/date proximity, which wins over
// amount similarity.
func (e *Engine) LinkInvoiceToPO(ctx context.Context, invoice *domain.Document) (*domain.Document, error) {
	po, _, err := e.MatchInvoiceToPO(ctx, invoice)
	return po, err
}

// MatchInvoiceToPO is LinkInvoiceToPO that also names the strategy that hit.
func (e *Engine) MatchInvoiceToPO(ctx context.Context, invoice *domain.Document) (*domain.Document, string, error) {
	if !invoice.Category.IsInvoice() {
		return nil, "", nil
	}
	return firstMatch(ctx, e.invoiceStrategies(), invoice)
}

// LinkPOToContract finds the service agreement in force on the PO's date.
func (e *Engine) LinkPOToContract(ctx context.Context, po *domain.Document) (*domain.Document, error) {
	if !po.Category.IsPO() {
		return nil, nil
	}
	contract, _, err := firstMatch(ctx, e.contractStrategies(), po)
	return contract, err
}

// LinkContractToPOs returns every PO created inside the contract's
// validity window for the same client, vendor matches first. A contract
// without an expiration date governs nothing.
func (e *Engine) LinkContractToPOs(ctx context.Context, contract *domain.Document) ([]domain.Document, error) {
	if !contract.Category.IsContract() || contract.DueDate == nil {
		return nil, nil
	}

	var sets [][]domain.Document
	if contract.Vendor != "" {
		pos, err := e.posInPeriod(ctx, contract, true)
		if err != nil {
			return nil, err
		}
		sets = append(sets, pos)
	}
	pos, err := e.posInPeriod(ctx, contract, false)
	if err != nil {
		return nil, err
	}
	sets = append(sets, pos)

	return unionByID(sets...), nil
}

// LinkedInvoices returns the invoices whose link points at po.
func (e *Engine) LinkedInvoices(ctx context.Context, po *domain.Document) ([]domain.Document, error) {
	invoices, err := e.docs.Find(ctx, repository.DocumentQuery{
		Categories: domain.InvoiceCategories,
		LinkedTo:   po.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("linked invoices for %s: %w", po.ID, err)
	}
	return invoices, nil
}

// LinkedPOsForContract returns POs linked directly to the contract plus
// those matching its vendor and client inside its validity window.
func (e *Engine) LinkedPOsForContract(ctx context.Context, contract *domain.Document) ([]domain.Document, error) {
	direct, err := e.docs.Find(ctx, repository.DocumentQuery{
		Categories: domain.POCategories,
		LinkedTo:   contract.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("linked pos for %s: %w", contract.ID, err)
	}

	if contract.Vendor == "" || contract.DueDate == nil {
		return direct, nil
	}
	indirect, err := e.posInPeriod(ctx, contract, true)
	if err != nil {
		return nil, err
	}
	return unionByID(direct, indirect), nil
}

// --- invoice -> PO strategies ---

func (e *Engine) poByInvoiceNumberField(ctx context.Context, inv *domain.Document) (*domain.Document, error) {
	if inv.PONumber == "" {
		return nil, nil
	}
	return e.findPOByNumber(ctx, inv.PONumber)
}

func (e *Engine) poByNumberInTitle(ctx context.Context, inv *domain.Document) (*domain.Document, error) {
	num := ExtractPONumber(inv.Title)
	if num == "" {
		return nil, nil
	}
	return e.findPOByNumber(ctx, num)
}

func (e *Engine) poByClientVendorDate(ctx context.Context, inv *domain.Document) (*domain.Document, error) {
	if inv.Vendor == "" {
		return nil, nil
	}
	from := inv.CreatedAt.Add(-e.policy.InvoiceLookback)
	to := inv.CreatedAt.Add(e.policy.InvoiceLookahead)
	return e.docs.First(ctx, repository.DocumentQuery{
		Categories:  domain.POCategories,
		Client:      inv.Client,
		Vendor:      inv.Vendor,
		CreatedFrom: &from,
		CreatedTo:   &to,
	})
}

func (e *Engine) poByClientAmount(ctx context.Context, inv *domain.Document) (*domain.Document, error) {
	lo := inv.Amount * (1 - e.policy.AmountTolerance)
	hi := inv.Amount * (1 + e.policy.AmountTolerance)
	return e.docs.First(ctx, repository.DocumentQuery{
		Categories: domain.POCategories,
		Client:     inv.Client,
		Currency:   inv.Currency,
		AmountMin:  &lo,
		AmountMax:  &hi,
	})
}

// findPOByNumber tries the po_number field first, then the PO title.
func (e *Engine) findPOByNumber(ctx context.Context, num string) (*domain.Document, error) {
	po, err := e.docs.First(ctx, repository.DocumentQuery{
		Categories: domain.POCategories,
		PONumber:   num,
	})
	if err != nil || po != nil {
		return po, err
	}
	return e.docs.First(ctx, repository.DocumentQuery{
		Categories:    domain.POCategories,
		TitleContains: num,
	})
}

var poNumberPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bPO[:\s#-]*([A-Z0-9-]+)`),
	regexp.MustCompile(`(?i)\bPurchase\s+Order[:\s#-]*([A-Z0-9-]+)`),
	regexp.MustCompile(`(?i)\bP\.O\.\s*[:\s#-]*([A-Z0-9-]+)`),
	regexp.MustCompile(`(?i)\bP/O[:\s#-]*([A-Z0-9-]+)`),
}

// ExtractPONumber pulls a PO-number-shaped token out of free text such as
// "Invoice for PO-2024-017". Each pattern gets one attempt at its first
// match; a token of two characters or fewer moves on to the next pattern.
func ExtractPONumber(text string) string {
	for _, re := range poNumberPatterns {
		if m := re.FindStringSubmatch(text); m != nil && len(m[1]) > 2 {
			return m[1]
		}
	}
	return ""
}

// --- PO -> contract strategies ---

func (e *Engine) contractByVendorClient(ctx context.Context, po *domain.Document) (*domain.Document, error) {
	if po.Vendor == "" {
		return nil, nil
	}
	return e.contractInForce(ctx, po, po.Vendor)
}

func (e *Engine) contractByClient(ctx context.Context, po *domain.Document) (*domain.Document, error) {
	return e.contractInForce(ctx, po, "")
}

func (e *Engine) contractInForce(ctx context.Context, po *domain.Document, vendor string) (*domain.Document, error) {
	on := po.CreatedAt
	return e.docs.First(ctx, repository.DocumentQuery{
		Categories:     domain.ContractCategories,
		Client:         po.Client,
		Vendor:         vendor,
		CreatedTo:      &on,
		DueOpenOrAfter: &on,
	})
}

// --- contract -> PO ---

func (e *Engine) posInPeriod(ctx context.Context, contract *domain.Document, matchVendor bool) ([]domain.Document, error) {
	q := repository.DocumentQuery{
		Categories:  domain.POCategories,
		Client:      contract.Client,
		CreatedFrom: &contract.CreatedAt,
		CreatedTo:   contract.DueDate,
	}
	if matchVendor {
		q.Vendor = contract.Vendor
	}
	pos, err := e.docs.Find(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("pos in period of %s: %w", contract.ID, err)
	}
	return pos, nil
}

func unionByID(sets ...[]domain.Document) []domain.Document {
	seen := make(map[string]bool)
	var out []domain.Document
	for _, set := range sets {
		for _, d := range set {
			if seen[d.ID] {
				continue
			}
			seen[d.ID] = true
			out = append(out, d)
		}
	}
	return out
}
