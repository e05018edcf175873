package reconciliation

import (
	"time"

	"github.com/subidb/DMS-Dashboard/internal/config"
)

// Policy holds the thresholds that turn reconciliation results into alerts.
type Policy struct {
	POWarningPercent          float64
	POCriticalPercent         float64
	ContractExpiryWarningDays int

	// Window around an invoice date in which a same-party PO is accepted.
	InvoiceLookback  time.Duration
	InvoiceLookahead time.Duration

	// Relative tolerance for the client+amount PO fallback (0.2 = ±20%).
	AmountTolerance float64
	// An invoice above this fraction of the remaining balance is "close".
	BalanceCloseRatio float64
}

func DefaultPolicy() Policy {
	return PolicyFromConfig(config.Default().Policy)
}

func PolicyFromConfig(c config.PolicyConfig) Policy {
	return Policy{
		POWarningPercent:          c.POWarningPercent,
		POCriticalPercent:         c.POCriticalPercent,
		ContractExpiryWarningDays: c.ContractExpiryDays,
		InvoiceLookback:           time.Duration(c.InvoiceLookbackDays) * 24 * time.Hour,
		InvoiceLookahead:          time.Duration(c.InvoiceLookaheadDays) * 24 * time.Hour,
		AmountTolerance:           c.AmountTolerance,
		BalanceCloseRatio:         c.BalanceCloseRatio,
	}
}
