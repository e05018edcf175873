package domain

import "time"

type AlertLevel string

const (
	LevelInfo     AlertLevel = "info"
	LevelWarning  AlertLevel = "warning"
	LevelCritical AlertLevel = "critical"
)

// Alert is a notification raised by reconciliation. Acknowledged alerts are
// kept as history; unacknowledged ones are rebuilt on every full refresh.
type Alert struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Level        AlertLevel `json:"level"`
	Timestamp    time.Time  `json:"timestamp"`
	Acknowledged bool       `json:"acknowledged"`
	DocumentID   string     `json:"document_id,omitempty"`
}
