package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"checkin-system/internal/status"
	"checkin-system/models"
	"checkin-system/utils"
)

// Messages surfaced to gate devices for non-valid outcomes.
const (
	MsgTicketNotFound = "ticket not found"
	MsgWrongEvent     = "wrong event"
	MsgNotPaid        = "not paid"
	MsgAlreadyUsed    = "already used"
)

// TicketStore is the slice of ticket persistence the validator needs.
type TicketStore interface {
	GetByCode(ctx context.Context, code string) (*models.Ticket, error)
	GetByID(ctx context.Context, id string) (*models.Ticket, error)
}

// ScannerDirectory resolves scanner identities. A nil scanner with a
// nil error means the id is unknown.
type ScannerDirectory interface {
	GetScanner(ctx context.Context, id string) (*models.Scanner, error)
}

// ScanLedger is the append-only scan log. AppendValid must be atomic:
// when several callers race on the same ticket, exactly one insert
// succeeds and the rest fail with status.ErrAlreadyCheckedIn. The
// backing implementation enforces this with a transactional re-check
// plus a unique index, never in process memory.
type ScanLedger interface {
	Append(ctx context.Context, rec *models.ScanRecord) (string, error)
	AppendValid(ctx context.Context, rec *models.ScanRecord) (string, error)
	LatestValid(ctx context.Context, ticketID string) (*models.ScanRecord, error)
	CountForTicket(ctx context.Context, ticketID string) (int, error)
	ConfirmEntry(ctx context.Context, ticketID string) (already bool, err error)
}

// ValidationResult is the classified outcome of one scan attempt.
// Non-valid outcomes are ordinary results, not errors; only
// infrastructure failures surface as errors from Validate.
type ValidationResult struct {
	Outcome      models.Outcome        `json:"outcome"`
	Message      string                `json:"message,omitempty"`
	Ticket       *models.TicketSummary `json:"ticket,omitempty"`
	ScanCount    int                   `json:"scan_count,omitempty"`
	FirstValidAt *time.Time            `json:"first_valid_at,omitempty"`
}

// ValidatorService decides the outcome of gate scans and records every
// attempt in the ledger.
type ValidatorService struct {
	tickets    TicketStore
	scanners   ScannerDirectory
	ledger     ScanLedger
	codeSecret string
}

func NewValidatorService(tickets TicketStore, scanners ScannerDirectory, ledger ScanLedger, codeSecret string) *ValidatorService {
	return &ValidatorService{
		tickets:    tickets,
		scanners:   scanners,
		ledger:     ledger,
		codeSecret: codeSecret,
	}
}

// Validate resolves a presented code and records the outcome exactly
// once. An unauthorized scanner is rejected before anything touches
// the ledger.
func (v *ValidatorService) Validate(ctx context.Context, code, scannerID, eventID string) (*ValidationResult, error) {
	scanner, err := v.scanners.GetScanner(ctx, scannerID)
	if err != nil {
		return nil, err
	}
	if !scanner.Privileged() {
		return nil, status.ErrUnauthorizedScanner
	}

	// Forged codes fail the signature check and skip the store lookup,
	// but the attempt is still recorded.
	if v.codeSecret != "" && !utils.VerifyTicketCode(v.codeSecret, code) {
		return v.recordInvalid(ctx, &models.ScanRecord{
			EventID:   eventID,
			ScannerID: scannerID,
		}, MsgTicketNotFound)
	}

	ticket, err := v.tickets.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, status.ErrTicketNotFound) {
			return v.recordInvalid(ctx, &models.ScanRecord{
				EventID:   eventID,
				ScannerID: scannerID,
			}, MsgTicketNotFound)
		}
		return nil, err
	}

	if eventID != "" && ticket.EventID != eventID {
		return v.recordInvalid(ctx, &models.ScanRecord{
			TicketID:  ticket.ID,
			EventID:   eventID,
			ScannerID: scannerID,
		}, MsgWrongEvent)
	}

	prior, err := v.ledger.LatestValid(ctx, ticket.ID)
	if err != nil {
		return nil, err
	}
	if prior != nil {
		return v.recordDuplicate(ctx, ticket, scannerID, prior)
	}

	if !ticket.PaymentState.Admits() {
		return v.recordInvalid(ctx, &models.ScanRecord{
			TicketID:  ticket.ID,
			EventID:   ticket.EventID,
			ScannerID: scannerID,
		}, MsgNotPaid)
	}

	_, err = v.ledger.AppendValid(ctx, &models.ScanRecord{
		TicketID:  ticket.ID,
		EventID:   ticket.EventID,
		ScannerID: scannerID,
	})
	if err != nil {
		if errors.Is(err, status.ErrAlreadyCheckedIn) {
			// Lost the race against another gate. The winner's row is
			// already committed, so classify this attempt as duplicate.
			winner, lerr := v.ledger.LatestValid(ctx, ticket.ID)
			if lerr != nil {
				return nil, lerr
			}
			return v.recordDuplicate(ctx, ticket, scannerID, winner)
		}
		return nil, err
	}

	slog.Info("ticket checked in",
		"ticket_id", ticket.ID,
		"event_id", ticket.EventID,
		"scanner_id", scannerID,
	)

	return &ValidationResult{
		Outcome:   models.OutcomeValid,
		Ticket:    ticket.Summary(),
		ScanCount: 1,
	}, nil
}

// ConfirmEntry marks the winning scan of a ticket as a completed
// entry. It is idempotent: confirming twice reports the existing state
// instead of creating a second marker.
func (v *ValidatorService) ConfirmEntry(ctx context.Context, ticketID, scannerID string) (confirmed, already bool, err error) {
	scanner, err := v.scanners.GetScanner(ctx, scannerID)
	if err != nil {
		return false, false, err
	}
	if !scanner.Privileged() {
		return false, false, status.ErrUnauthorizedScanner
	}

	if _, err := v.tickets.GetByID(ctx, ticketID); err != nil {
		return false, false, err
	}

	already, err = v.ledger.ConfirmEntry(ctx, ticketID)
	if err != nil {
		return false, false, err
	}

	return true, already, nil
}

func (v *ValidatorService) recordInvalid(ctx context.Context, rec *models.ScanRecord, message string) (*ValidationResult, error) {
	rec.Outcome = models.OutcomeInvalid
	rec.Message = message

	if _, err := v.ledger.Append(ctx, rec); err != nil {
		return nil, fmt.Errorf("record invalid scan: %w", err)
	}

	return &ValidationResult{
		Outcome: models.OutcomeInvalid,
		Message: message,
	}, nil
}

func (v *ValidatorService) recordDuplicate(ctx context.Context, ticket *models.Ticket, scannerID string, winner *models.ScanRecord) (*ValidationResult, error) {
	_, err := v.ledger.Append(ctx, &models.ScanRecord{
		TicketID:  ticket.ID,
		EventID:   ticket.EventID,
		ScannerID: scannerID,
		Outcome:   models.OutcomeDuplicate,
		Message:   MsgAlreadyUsed,
	})
	if err != nil {
		return nil, fmt.Errorf("record duplicate scan: %w", err)
	}

	count, err := v.ledger.CountForTicket(ctx, ticket.ID)
	if err != nil {
		return nil, err
	}

	result := &ValidationResult{
		Outcome:   models.OutcomeDuplicate,
		Message:   MsgAlreadyUsed,
		Ticket:    ticket.Summary(),
		ScanCount: count,
	}
	if winner != nil {
		t := winner.CreatedAt
		result.FirstValidAt = &t
	}
	return result, nil
}
