package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"checkin-system/internal/status"
	"checkin-system/models"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
)

// ScanLedger is the append-only log of scan attempts. Rows are never
// updated after creation except for the entry_confirmed flag, and the
// schema carries a partial unique index so at most one valid row can
// exist per ticket no matter how many processes write concurrently.
type ScanLedger struct {
	app core.App
}

func NewScanLedger(app core.App) *ScanLedger {
	return &ScanLedger{app: app}
}

// Append writes a non-valid scan record (invalid or duplicate
// outcomes). Write failures propagate; the ledger never drops entries
// silently.
func (s *ScanLedger) Append(ctx context.Context, rec *models.ScanRecord) (string, error) {
	if rec.Outcome == models.OutcomeValid {
		return "", errors.New("scan ledger: valid records must go through AppendValid")
	}
	return s.insert(s.app, rec)
}

// AppendValid records the winning scan for a ticket. The existence
// check and insert run in one transaction, and the unique index on
// valid rows backs the same guarantee at the storage layer, so exactly
// one concurrent caller succeeds; the rest get ErrAlreadyCheckedIn.
func (s *ScanLedger) AppendValid(ctx context.Context, rec *models.ScanRecord) (string, error) {
	if rec.TicketID == "" {
		return "", errors.New("scan ledger: valid record requires a ticket")
	}

	var id string
	err := s.app.RunInTransaction(func(txApp core.App) error {
		existing, err := s.latestValid(txApp, rec.TicketID)
		if err != nil {
			return err
		}
		if existing != nil {
			return status.ErrAlreadyCheckedIn
		}

		rec.Outcome = models.OutcomeValid
		id, err = s.insert(txApp, rec)
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return "", status.ErrAlreadyCheckedIn
		}
		return "", err
	}

	return id, nil
}

// LatestValid returns the most recent valid record for a ticket, or
// nil when the ticket has never been checked in.
func (s *ScanLedger) LatestValid(ctx context.Context, ticketID string) (*models.ScanRecord, error) {
	return s.latestValid(s.app, ticketID)
}

// CountForTicket returns how many valid and duplicate scans exist for
// a ticket. Invalid attempts (wrong event, not paid) are not part of
// the check-in count.
func (s *ScanLedger) CountForTicket(ctx context.Context, ticketID string) (int, error) {
	var count int
	err := s.app.DB().
		Select("COUNT(*)").
		From(CollectionScans).
		Where(dbx.HashExp{"ticket": ticketID}).
		AndWhere(dbx.In("outcome", string(models.OutcomeValid), string(models.OutcomeDuplicate))).
		Row(&count)
	if err != nil {
		return 0, fmt.Errorf("count scans: %w", err)
	}
	return count, nil
}

// ConfirmEntry marks the latest valid record of a ticket as a
// completed entry. Calling it again is a no-op that reports the
// existing state.
func (s *ScanLedger) ConfirmEntry(ctx context.Context, ticketID string) (already bool, err error) {
	err = s.app.RunInTransaction(func(txApp core.App) error {
		record, err := s.latestValidRecord(txApp, ticketID)
		if err != nil {
			return err
		}
		if record == nil {
			return status.ErrNoValidScan
		}

		if record.GetBool("entry_confirmed") {
			already = true
			return nil
		}

		record.Set("entry_confirmed", true)
		if err := txApp.Save(record); err != nil {
			return fmt.Errorf("confirm entry: %w", err)
		}
		return nil
	})
	return already, err
}

// List returns scan records newest-first, optionally scoped to one
// event, with cursor pagination on the created timestamp.
func (s *ScanLedger) List(ctx context.Context, eventID string, limit int, before time.Time) ([]*models.ScanRecord, error) {
	if limit < 1 || limit > 500 {
		limit = 100
	}

	q := s.app.DB().
		Select("id", "ticket", "event", "scanner", "outcome", "message", "entry_confirmed", "created").
		From(CollectionScans).
		OrderBy("created DESC").
		Limit(int64(limit))

	if eventID != "" {
		q.AndWhere(dbx.HashExp{"event": eventID})
	}
	if !before.IsZero() {
		cursor, err := types.ParseDateTime(before)
		if err != nil {
			return nil, fmt.Errorf("parse cursor: %w", err)
		}
		q.AndWhere(dbx.NewExp("created < {:before}", dbx.Params{"before": cursor.String()}))
	}

	var rows []scanRow
	if err := q.All(&rows); err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}

	records := make([]*models.ScanRecord, len(rows))
	for i, row := range rows {
		records[i] = row.toModel()
	}
	return records, nil
}

// OutcomeCounts aggregates outcomes for one event directly in SQL.
func (s *ScanLedger) OutcomeCounts(ctx context.Context, eventID string) (map[models.Outcome]int, error) {
	var rows []struct {
		Outcome string `db:"outcome"`
		Count   int    `db:"n"`
	}

	err := s.app.DB().
		NewQuery("SELECT outcome, COUNT(*) AS n FROM scans WHERE event = {:event} GROUP BY outcome").
		Bind(dbx.Params{"event": eventID}).
		All(&rows)
	if err != nil {
		return nil, fmt.Errorf("outcome counts: %w", err)
	}

	counts := make(map[models.Outcome]int, len(rows))
	for _, row := range rows {
		counts[models.Outcome(row.Outcome)] = row.Count
	}
	return counts, nil
}

// CheckedInRevenue sums the price of every ticket with a valid scan
// for the event.
func (s *ScanLedger) CheckedInRevenue(ctx context.Context, eventID string) (float64, error) {
	var total sql.NullFloat64
	err := s.app.DB().
		NewQuery(`SELECT SUM(t.price) FROM scans s
			JOIN tickets t ON t.id = s.ticket
			WHERE s.event = {:event} AND s.outcome = 'valid'`).
		Bind(dbx.Params{"event": eventID}).
		Row(&total)
	if err != nil {
		return 0, fmt.Errorf("checked-in revenue: %w", err)
	}
	return total.Float64, nil
}

func (s *ScanLedger) latestValid(app core.App, ticketID string) (*models.ScanRecord, error) {
	record, err := s.latestValidRecord(app, ticketID)
	if err != nil || record == nil {
		return nil, err
	}
	return recordToScan(record), nil
}

func (s *ScanLedger) latestValidRecord(app core.App, ticketID string) (*core.Record, error) {
	records, err := app.FindRecordsByFilter(
		CollectionScans,
		"ticket = {:ticket} && outcome = 'valid'",
		"-created",
		1,
		0,
		dbx.Params{"ticket": ticketID},
	)
	if err != nil {
		return nil, fmt.Errorf("latest valid scan: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

func (s *ScanLedger) insert(app core.App, rec *models.ScanRecord) (string, error) {
	collection, err := app.FindCollectionByNameOrId(CollectionScans)
	if err != nil {
		return "", fmt.Errorf("scans collection: %w", err)
	}

	record := core.NewRecord(collection)
	record.Set("ticket", rec.TicketID)
	record.Set("event", rec.EventID)
	record.Set("scanner", rec.ScannerID)
	record.Set("outcome", string(rec.Outcome))
	record.Set("message", rec.Message)
	record.Set("entry_confirmed", false)

	if err := app.Save(record); err != nil {
		return "", fmt.Errorf("append scan: %w", err)
	}

	rec.ID = record.Id
	rec.CreatedAt = record.GetDateTime("created").Time()
	return record.Id, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(strings.ToUpper(err.Error()), "UNIQUE")
}

type scanRow struct {
	ID             string         `db:"id"`
	Ticket         string         `db:"ticket"`
	Event          string         `db:"event"`
	Scanner        string         `db:"scanner"`
	Outcome        string         `db:"outcome"`
	Message        string         `db:"message"`
	EntryConfirmed bool           `db:"entry_confirmed"`
	Created        types.DateTime `db:"created"`
}

func (r scanRow) toModel() *models.ScanRecord {
	return &models.ScanRecord{
		ID:             r.ID,
		TicketID:       r.Ticket,
		EventID:        r.Event,
		ScannerID:      r.Scanner,
		Outcome:        models.Outcome(r.Outcome),
		Message:        r.Message,
		EntryConfirmed: r.EntryConfirmed,
		CreatedAt:      r.Created.Time(),
	}
}
