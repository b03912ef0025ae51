package models

import (
	"time"
)

// Outcome classifies a single scan attempt.
type Outcome string

const (
	OutcomeValid     Outcome = "valid"
	OutcomeInvalid   Outcome = "invalid"
	OutcomeDuplicate Outcome = "duplicate"
)

// ScanRecord is one immutable entry in the scan ledger. Records are
// only ever appended; the check-in status of a ticket is derived from
// the presence of a valid record, not stored on the ticket.
type ScanRecord struct {
	ID             string    `json:"id"`
	TicketID       string    `json:"ticket_id,omitempty"` // empty when the code did not resolve
	EventID        string    `json:"event_id,omitempty"`
	ScannerID      string    `json:"scanner_id"`
	Outcome        Outcome   `json:"outcome"`
	Message        string    `json:"message,omitempty"`
	EntryConfirmed bool      `json:"entry_confirmed"`
	CreatedAt      time.Time `json:"created_at"`
}
