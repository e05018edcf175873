package reconciliation

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/subidb/DMS-Dashboard/internal/currency"
	"github.com/subidb/DMS-Dashboard/internal/domain"
)

const (
	TitleInvoiceNotLinked       = "Invoice Not Linked to Purchase Order"
	TitlePONearlyConsumed       = "Purchase Order Nearly Fully Consumed"
	TitlePOApproachingLimit     = "Purchase Order Approaching Full Utilization"
	TitleContractExpired        = "Contract Has Expired"
	TitleContractExpiringSoon   = "Contract Expiring Soon"
	TitlePOOutsideContract      = "Purchase Order Outside Contract Period"
	TitleInvoiceOutsideContract = "Invoice Outside Contract Period"
)

// Alerts within a tier are mutually exclusive for one document: only the
// highest applicable level may be open.
var (
	utilizationTier = []string{TitlePONearlyConsumed, TitlePOApproachingLimit}
	expirationTier  = []string{TitleContractExpired, TitleContractExpiringSoon}
)

// supersededBy returns the titles in tier other than current. A nil current
// supersedes the whole tier.
func supersededBy(tier []string, current *domain.Alert) []string {
	out := make([]string, 0, len(tier))
	for _, t := range tier {
		if current == nil || t != current.Title {
			out = append(out, t)
		}
	}
	return out
}

func newAlert(title, description string, level domain.AlertLevel, docID string, now time.Time) domain.Alert {
	return domain.Alert{
		ID:          uuid.NewString(),
		Title:       title,
		Description: description,
		Level:       level,
		Timestamp:   now,
		DocumentID:  docID,
	}
}

func notLinkedAlert(inv *domain.Document, now time.Time) domain.Alert {
	return newAlert(TitleInvoiceNotLinked,
		fmt.Sprintf("Invoice %s (%s) could not be matched to a Purchase Order. Please review and link manually.",
			inv.Title, currency.Format(inv.Amount, inv.Currency)),
		domain.LevelWarning, inv.ID, now)
}

// findingAlerts turns validator issues into critical alerts and warnings
// into warning alerts.
func findingAlerts(inv, po *domain.Document, v Validation, now time.Time) []domain.Alert {
	var out []domain.Alert
	for _, f := range v.Issues {
		out = append(out, newAlert(f.Title(),
			fmt.Sprintf("Invoice %s: %s. PO: %s (Total: %s).",
				inv.Title, f.Message, po.Title, currency.Format(po.Amount, po.Currency)),
			domain.LevelCritical, inv.ID, now))
	}
	for _, f := range v.Warnings {
		out = append(out, newAlert(f.Title(),
			fmt.Sprintf("Invoice %s: %s. PO: %s.", inv.Title, f.Message, po.Title),
			domain.LevelWarning, inv.ID, now))
	}
	return out
}

// utilizationAlert returns at most one alert; the highest crossed
// threshold wins.
func utilizationAlert(po *domain.Document, c Consumption, p Policy, now time.Time) *domain.Alert {
	summary := fmt.Sprintf("PO %s is %.1f%% utilized (%d invoices totaling %s of %s).",
		po.Title, c.UtilizationPercentage, c.LinkedInvoiceCount,
		currency.Format(c.TotalInvoiced, po.Currency), currency.Format(po.Amount, po.Currency))
	remaining := currency.Format(c.RemainingBalance, po.Currency)

	var a domain.Alert
	switch {
	case c.UtilizationPercentage >= p.POCriticalPercent:
		a = newAlert(TitlePONearlyConsumed,
			fmt.Sprintf("%s Only %s remaining.", summary, remaining),
			domain.LevelCritical, po.ID, now)
	case c.UtilizationPercentage >= p.POWarningPercent:
		a = newAlert(TitlePOApproachingLimit,
			fmt.Sprintf("%s %s remaining.", summary, remaining),
			domain.LevelWarning, po.ID, now)
	default:
		return nil
	}
	return &a
}

// contractExposure summarizes what an expiring contract governs.
type contractExposure struct {
	POCount      int
	POValue      float64
	InvoiceCount int
}

func (x contractExposure) sentence(code string) string {
	if x.POCount == 0 {
		return ""
	}
	return fmt.Sprintf(" This contract governs %d PO(s) worth %s with %d linked invoice(s).",
		x.POCount, currency.Format(x.POValue, code), x.InvoiceCount)
}

func expirationAlert(contract *domain.Document, days int, x contractExposure, p Policy, now time.Time) *domain.Alert {
	if contract.DueDate == nil {
		return nil
	}
	due := contract.DueDate.Format(dateLayout)

	var a domain.Alert
	switch {
	case days < 0:
		a = newAlert(TitleContractExpired,
			fmt.Sprintf("Service Agreement %s expired on %s.%s Please renew or terminate.",
				contract.Title, due, x.sentence(contract.Currency)),
			domain.LevelCritical, contract.ID, now)
	case days <= p.ContractExpiryWarningDays:
		a = newAlert(TitleContractExpiringSoon,
			fmt.Sprintf("Service Agreement %s will expire in %d days (%s).%s Please review renewal options.",
				contract.Title, days, due, x.sentence(contract.Currency)),
			domain.LevelWarning, contract.ID, now)
	default:
		return nil
	}
	return &a
}

func outsideContractAlert(doc, contract *domain.Document, reason string, now time.Time) domain.Alert {
	title, kind := TitlePOOutsideContract, "PO"
	if doc.Category.IsInvoice() {
		title, kind = TitleInvoiceOutsideContract, "Invoice"
	}
	return newAlert(title,
		fmt.Sprintf("%s %s (%s) is outside the validity period of contract %s (valid until %s). %s",
			kind, doc.Title, doc.CreatedAt.Format(dateLayout), contract.Title,
			contract.DueDate.Format(dateLayout), reason),
		domain.LevelWarning, doc.ID, now)
}
