package store

import (
	"checkin-system/models"

	"github.com/pocketbase/pocketbase/core"
)

// Collection names. The scanner directory lives on the built-in users
// auth collection.
const (
	CollectionEvents   = "events"
	CollectionTickets  = "tickets"
	CollectionScans    = "scans"
	CollectionScanners = "users"
)

func recordToScan(record *core.Record) *models.ScanRecord {
	return &models.ScanRecord{
		ID:             record.Id,
		TicketID:       record.GetString("ticket"),
		EventID:        record.GetString("event"),
		ScannerID:      record.GetString("scanner"),
		Outcome:        models.Outcome(record.GetString("outcome")),
		Message:        record.GetString("message"),
		EntryConfirmed: record.GetBool("entry_confirmed"),
		CreatedAt:      record.GetDateTime("created").Time(),
	}
}
