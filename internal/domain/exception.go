package domain

import "time"

type ExceptionSeverity string

const (
	ExceptionLow    ExceptionSeverity = "low"
	ExceptionMedium ExceptionSeverity = "medium"
	ExceptionHigh   ExceptionSeverity = "high"
)

// Exception is a manually raised review item against a document.
type Exception struct {
	ID         string            `json:"id"`
	DocumentID string            `json:"document_id" validate:"required"`
	Issue      string            `json:"issue" validate:"required"`
	Severity   ExceptionSeverity `json:"severity" validate:"required,oneof=low medium high"`
	Owner      string            `json:"owner" validate:"required"`
	RaisedAt   time.Time         `json:"raised_at"`
	Resolved   bool              `json:"resolved"`
}
