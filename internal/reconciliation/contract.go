package reconciliation

import (
	"fmt"
	"math"
	"time"

	"github.com/subidb/DMS-Dashboard/internal/domain"
)

const dateLayout = "2006-01-02"

type ContractValidity struct {
	Valid           bool       `json:"valid"`
	Reason          string     `json:"reason,omitempty"`
	DaysUntilExpiry int        `json:"days_until_expiry"`
	ContractStart   time.Time  `json:"contract_start"`
	ContractEnd     *time.Time `json:"contract_end,omitempty"`
}

// CheckContractValidity reports whether doc's date falls inside the
// contract's [created_at, due_date] window, both ends inclusive.
func CheckContractValidity(doc, contract *domain.Document, now time.Time) ContractValidity {
	res := ContractValidity{
		ContractStart: contract.CreatedAt,
		ContractEnd:   contract.DueDate,
	}
	if contract.DueDate == nil {
		res.Reason = "Contract has no expiration date"
		return res
	}
	end := *contract.DueDate

	if doc.CreatedAt.Before(contract.CreatedAt) {
		res.Reason = fmt.Sprintf("Document date (%s) is before contract start (%s)",
			doc.CreatedAt.Format(dateLayout), contract.CreatedAt.Format(dateLayout))
		return res
	}
	if doc.CreatedAt.After(end) {
		res.Reason = fmt.Sprintf("Document date (%s) is after contract expiration (%s)",
			doc.CreatedAt.Format(dateLayout), end.Format(dateLayout))
		return res
	}

	res.Valid = true
	res.DaysUntilExpiry = DaysUntil(end, now)
	return res
}

// DaysUntil counts whole days from now to t, rounding toward negative
// infinity so anything already past is negative.
func DaysUntil(t, now time.Time) int {
	return int(math.Floor(t.Sub(now).Hours() / 24))
}
