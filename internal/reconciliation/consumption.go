package reconciliation

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/subidb/DMS-Dashboard/internal/domain"
)

// Consumption is derived from a PO's linked invoices on every call; no
// running balance is stored anywhere.
type Consumption struct {
	TotalInvoiced         float64 `json:"total_invoiced"`
	RemainingBalance      float64 `json:"remaining_balance"`
	UtilizationPercentage float64 `json:"utilization_percentage"`
	LinkedInvoiceCount    int     `json:"linked_invoice_count"`
}

// CalculatePOConsumption sums the invoices currently linked to po.
func (e *Engine) CalculatePOConsumption(ctx context.Context, po *domain.Document) (Consumption, error) {
	invoices, err := e.LinkedInvoices(ctx, po)
	if err != nil {
		return Consumption{}, err
	}
	return ConsumptionOf(po, invoices), nil
}

// ConsumptionOf computes consumption for po from the given invoices.
// Amounts in other currencies are added at face value.
func ConsumptionOf(po *domain.Document, invoices []domain.Document) Consumption {
	total := decimal.Zero
	for _, inv := range invoices {
		total = total.Add(decimal.NewFromFloat(inv.Amount))
	}

	limit := decimal.NewFromFloat(po.Amount)
	utilization := decimal.Zero
	if limit.IsPositive() {
		utilization = total.Div(limit).Mul(decimal.NewFromInt(100))
	}

	return Consumption{
		TotalInvoiced:         total.InexactFloat64(),
		RemainingBalance:      limit.Sub(total).InexactFloat64(),
		UtilizationPercentage: utilization.InexactFloat64(),
		LinkedInvoiceCount:    len(invoices),
	}
}
