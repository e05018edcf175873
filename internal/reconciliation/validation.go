package reconciliation

import (
	"context"
	"fmt"
	"strings"

	"github.com/subidb/DMS-Dashboard/internal/currency"
	"github.com/subidb/DMS-Dashboard/internal/domain"
)

const (
	FindingAmountExceedsBalance = "amount_exceeds_balance"
	FindingAmountCloseToBalance = "amount_close_to_balance"
	FindingCurrencyMismatch     = "currency_mismatch"
	FindingVendorMismatch       = "vendor_mismatch"
	FindingClientMismatch       = "client_mismatch"
	FindingDateAnomaly          = "date_anomaly"
)

type Finding struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Title renders the finding type as an alert title: "Currency Mismatch".
func (f Finding) Title() string {
	words := strings.Split(f.Type, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

type Validation struct {
	Valid         bool      `json:"valid"`
	Issues        []Finding `json:"issues"`
	Warnings      []Finding `json:"warnings"`
	POBalance     float64   `json:"po_balance"`
	POUtilization float64   `json:"po_utilization"`
}

// ValidateInvoiceAgainstPO checks an invoice against the PO it is linked to.
func (e *Engine) ValidateInvoiceAgainstPO(ctx context.Context, invoice, po *domain.Document) (Validation, error) {
	c, err := e.CalculatePOConsumption(ctx, po)
	if err != nil {
		return Validation{}, err
	}
	return ValidateInvoice(invoice, po, c, e.policy), nil
}

// ValidateInvoice evaluates every rule independently. Only issues make the
// result invalid; warnings are advisory.
func ValidateInvoice(invoice, po *domain.Document, c Consumption, p Policy) Validation {
	v := Validation{
		Issues:        []Finding{},
		Warnings:      []Finding{},
		POBalance:     c.RemainingBalance,
		POUtilization: c.UtilizationPercentage,
	}

	switch {
	case invoice.Amount > c.RemainingBalance:
		v.Issues = append(v.Issues, Finding{
			Type: FindingAmountExceedsBalance,
			Message: fmt.Sprintf("Invoice amount (%s) exceeds remaining PO balance (%s)",
				currency.Format(invoice.Amount, invoice.Currency),
				currency.Format(c.RemainingBalance, po.Currency)),
		})
	case invoice.Amount > c.RemainingBalance*p.BalanceCloseRatio:
		v.Warnings = append(v.Warnings, Finding{
			Type:    FindingAmountCloseToBalance,
			Message: "Invoice amount is close to exceeding remaining PO balance",
		})
	}

	if invoice.Currency != po.Currency {
		v.Warnings = append(v.Warnings, Finding{
			Type: FindingCurrencyMismatch,
			Message: fmt.Sprintf("Invoice currency (%s) differs from PO currency (%s)",
				invoice.Currency, po.Currency),
		})
	}

	if invoice.Vendor != "" && po.Vendor != "" && !strings.EqualFold(invoice.Vendor, po.Vendor) {
		v.Warnings = append(v.Warnings, Finding{
			Type: FindingVendorMismatch,
			Message: fmt.Sprintf("Invoice vendor (%s) differs from PO vendor (%s)",
				invoice.Vendor, po.Vendor),
		})
	}

	if !strings.EqualFold(invoice.Client, po.Client) {
		v.Warnings = append(v.Warnings, Finding{
			Type: FindingClientMismatch,
			Message: fmt.Sprintf("Invoice client (%s) differs from PO client (%s)",
				invoice.Client, po.Client),
		})
	}

	if invoice.CreatedAt.Before(po.CreatedAt) {
		v.Warnings = append(v.Warnings, Finding{
			Type: FindingDateAnomaly,
			Message: fmt.Sprintf("Invoice date (%s) is before PO creation date (%s)",
				invoice.CreatedAt.Format(dateLayout), po.CreatedAt.Format(dateLayout)),
		})
	}

	v.Valid = len(v.Issues) == 0
	return v
}
