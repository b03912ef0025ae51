package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"checkin-system/internal/status"
	"checkin-system/models"
	"checkin-system/utils"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTicketStore struct {
	mu      sync.Mutex
	tickets map[string]*models.Ticket // by code
}

func newFakeTicketStore(tickets ...*models.Ticket) *fakeTicketStore {
	store := &fakeTicketStore{tickets: map[string]*models.Ticket{}}
	for _, t := range tickets {
		store.tickets[t.Code] = t
	}
	return store
}

func (f *fakeTicketStore) GetByCode(ctx context.Context, code string) (*models.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ticket, ok := f.tickets[code]
	if !ok {
		return nil, status.ErrTicketNotFound
	}
	return ticket, nil
}

func (f *fakeTicketStore) GetByID(ctx context.Context, id string) (*models.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ticket := range f.tickets {
		if ticket.ID == id {
			return ticket, nil
		}
	}
	return nil, status.ErrTicketNotFound
}

type fakeScannerDirectory struct {
	scanners map[string]*models.Scanner
}

func (f *fakeScannerDirectory) GetScanner(ctx context.Context, id string) (*models.Scanner, error) {
	return f.scanners[id], nil
}

// fakeLedger mirrors the storage contract: at most one valid record
// per ticket, enforced under the same lock that performs the insert.
type fakeLedger struct {
	mu      sync.Mutex
	records []*models.ScanRecord
	nextID  int
}

func (f *fakeLedger) Append(ctx context.Context, rec *models.ScanRecord) (string, error) {
	if rec.Outcome == models.OutcomeValid {
		return "", fmt.Errorf("valid records must go through AppendValid")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insert(rec), nil
}

func (f *fakeLedger) AppendValid(ctx context.Context, rec *models.ScanRecord) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.latestValid(rec.TicketID) != nil {
		return "", status.ErrAlreadyCheckedIn
	}
	rec.Outcome = models.OutcomeValid
	return f.insert(rec), nil
}

func (f *fakeLedger) LatestValid(ctx context.Context, ticketID string) (*models.ScanRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latestValid(ticketID), nil
}

func (f *fakeLedger) CountForTicket(ctx context.Context, ticketID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, rec := range f.records {
		if rec.TicketID == ticketID && rec.Outcome != models.OutcomeInvalid {
			count++
		}
	}
	return count, nil
}

func (f *fakeLedger) ConfirmEntry(ctx context.Context, ticketID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	winner := f.latestValid(ticketID)
	if winner == nil {
		return false, status.ErrNoValidScan
	}
	if winner.EntryConfirmed {
		return true, nil
	}
	winner.EntryConfirmed = true
	return false, nil
}

func (f *fakeLedger) insert(rec *models.ScanRecord) string {
	f.nextID++
	rec.ID = fmt.Sprintf("scan-%d", f.nextID)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	f.records = append(f.records, rec)
	return rec.ID
}

func (f *fakeLedger) latestValid(ticketID string) *models.ScanRecord {
	for i := len(f.records) - 1; i >= 0; i-- {
		if f.records[i].TicketID == ticketID && f.records[i].Outcome == models.OutcomeValid {
			return f.records[i]
		}
	}
	return nil
}

func (f *fakeLedger) outcomes() map[models.Outcome]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := map[models.Outcome]int{}
	for _, rec := range f.records {
		counts[rec.Outcome]++
	}
	return counts
}

func setupValidator(tickets ...*models.Ticket) (*ValidatorService, *fakeLedger) {
	ledger := &fakeLedger{}
	scanners := &fakeScannerDirectory{scanners: map[string]*models.Scanner{
		"staff-1": {ID: "staff-1", Name: "Gate A", Role: models.RoleStaff},
		"admin-1": {ID: "admin-1", Name: "Ops", Role: models.RoleAdmin},
		"guest-1": {ID: "guest-1", Name: "Visitor", Role: "guest"},
	}}
	validator := NewValidatorService(newFakeTicketStore(tickets...), scanners, ledger, "")
	return validator, ledger
}

func paidTicket() *models.Ticket {
	return &models.Ticket{
		ID:           "t1",
		Code:         "TKT-AAAA-1111",
		EventID:      "ev1",
		HolderID:     "holder-1",
		TicketType:   "standard",
		Price:        decimal.NewFromInt(50),
		PaymentState: models.PaymentPaid,
	}
}

func TestValidate_UnknownCode(t *testing.T) {
	validator, ledger := setupValidator()

	result, err := validator.Validate(context.Background(), "UNKNOWN-CODE", "staff-1", "")

	require.NoError(t, err)
	assert.Equal(t, models.OutcomeInvalid, result.Outcome)
	assert.Equal(t, MsgTicketNotFound, result.Message)
	assert.Nil(t, result.Ticket)

	require.Len(t, ledger.records, 1)
	assert.Empty(t, ledger.records[0].TicketID)
	assert.Equal(t, models.OutcomeInvalid, ledger.records[0].Outcome)
}

func TestValidate_UnknownScanner(t *testing.T) {
	validator, ledger := setupValidator(paidTicket())

	_, err := validator.Validate(context.Background(), "TKT-AAAA-1111", "nobody", "")

	assert.ErrorIs(t, err, status.ErrUnauthorizedScanner)
	assert.Empty(t, ledger.records, "unauthorized scans must not touch the ledger")
}

func TestValidate_UnprivilegedScanner(t *testing.T) {
	validator, ledger := setupValidator(paidTicket())

	_, err := validator.Validate(context.Background(), "TKT-AAAA-1111", "guest-1", "")

	assert.ErrorIs(t, err, status.ErrUnauthorizedScanner)
	assert.Empty(t, ledger.records)
}

func TestValidate_WrongEvent(t *testing.T) {
	validator, ledger := setupValidator(paidTicket())

	result, err := validator.Validate(context.Background(), "TKT-AAAA-1111", "staff-1", "other-event")

	require.NoError(t, err)
	assert.Equal(t, models.OutcomeInvalid, result.Outcome)
	assert.Equal(t, MsgWrongEvent, result.Message)

	require.Len(t, ledger.records, 1)
	assert.Equal(t, "t1", ledger.records[0].TicketID)
}

func TestValidate_NotPaid(t *testing.T) {
	ticket := paidTicket()
	ticket.PaymentState = models.PaymentAwaiting
	validator, ledger := setupValidator(ticket)

	result, err := validator.Validate(context.Background(), ticket.Code, "staff-1", "ev1")

	require.NoError(t, err)
	assert.Equal(t, models.OutcomeInvalid, result.Outcome)
	assert.Equal(t, MsgNotPaid, result.Message)
	require.Len(t, ledger.records, 1)
}

func TestValidate_CancelledTicket(t *testing.T) {
	ticket := paidTicket()
	ticket.PaymentState = models.PaymentCancelled
	validator, _ := setupValidator(ticket)

	// Repeated attempts on a cancelled ticket stay "not paid" and
	// never produce a valid record.
	for i := 0; i < 3; i++ {
		result, err := validator.Validate(context.Background(), ticket.Code, "staff-1", "ev1")
		require.NoError(t, err)
		assert.Equal(t, models.OutcomeInvalid, result.Outcome)
		assert.Equal(t, MsgNotPaid, result.Message)
	}
}

func TestValidate_PendingAdmits(t *testing.T) {
	ticket := paidTicket()
	ticket.PaymentState = models.PaymentPending
	validator, _ := setupValidator(ticket)

	result, err := validator.Validate(context.Background(), ticket.Code, "staff-1", "ev1")

	require.NoError(t, err)
	assert.Equal(t, models.OutcomeValid, result.Outcome)
}

func TestValidate_ThenDuplicate(t *testing.T) {
	validator, ledger := setupValidator(paidTicket())
	ctx := context.Background()

	first, err := validator.Validate(ctx, "TKT-AAAA-1111", "staff-1", "ev1")
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeValid, first.Outcome)
	require.NotNil(t, first.Ticket)
	assert.Equal(t, "t1", first.Ticket.ID)
	assert.Equal(t, 1, first.ScanCount)

	second, err := validator.Validate(ctx, "TKT-AAAA-1111", "staff-1", "ev1")
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeDuplicate, second.Outcome)
	assert.Equal(t, MsgAlreadyUsed, second.Message)
	assert.Equal(t, 2, second.ScanCount)
	require.NotNil(t, second.FirstValidAt)
	assert.Equal(t, ledger.records[0].CreatedAt, *second.FirstValidAt)
}

func TestValidate_DuplicateCountIgnoresInvalidAttempts(t *testing.T) {
	ticket := paidTicket()
	ticket.PaymentState = models.PaymentAwaiting
	validator, _ := setupValidator(ticket)
	ctx := context.Background()

	// Scanned before paying: recorded, but not part of the check-in
	// count.
	result, err := validator.Validate(ctx, ticket.Code, "staff-1", "ev1")
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeInvalid, result.Outcome)

	ticket.PaymentState = models.PaymentPaid

	result, err = validator.Validate(ctx, ticket.Code, "staff-1", "ev1")
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeValid, result.Outcome)

	result, err = validator.Validate(ctx, ticket.Code, "staff-1", "ev1")
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeDuplicate, result.Outcome)
	assert.Equal(t, 2, result.ScanCount, "only valid and duplicate scans count")
}

func TestValidate_CancelledAfterCheckinIsDuplicate(t *testing.T) {
	ticket := paidTicket()
	validator, ledger := setupValidator(ticket)
	ctx := context.Background()

	first, err := validator.Validate(ctx, ticket.Code, "staff-1", "ev1")
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeValid, first.Outcome)

	// A refund after entry does not rewrite the ledger: later scans of
	// the ticket read as duplicates, not as unpaid.
	ticket.PaymentState = models.PaymentCancelled

	second, err := validator.Validate(ctx, ticket.Code, "staff-1", "ev1")
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeDuplicate, second.Outcome)
	assert.Equal(t, MsgAlreadyUsed, second.Message)

	outcomes := ledger.outcomes()
	assert.Equal(t, 1, outcomes[models.OutcomeValid])
	assert.Equal(t, 1, outcomes[models.OutcomeDuplicate])
}

func TestValidate_ForgedCodeSkipsLookup(t *testing.T) {
	const secret = "test-secret"

	code, err := utils.NewTicketCode(secret)
	require.NoError(t, err)

	ticket := paidTicket()
	ticket.Code = code

	ledger := &fakeLedger{}
	scanners := &fakeScannerDirectory{scanners: map[string]*models.Scanner{
		"staff-1": {ID: "staff-1", Role: models.RoleStaff},
	}}
	validator := NewValidatorService(newFakeTicketStore(ticket), scanners, ledger, secret)

	forged := code[:len(code)-1] + "X"
	result, err := validator.Validate(context.Background(), forged, "staff-1", "ev1")

	require.NoError(t, err)
	assert.Equal(t, models.OutcomeInvalid, result.Outcome)
	assert.Equal(t, MsgTicketNotFound, result.Message)

	// The genuine code still validates.
	result, err = validator.Validate(context.Background(), code, "staff-1", "ev1")
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeValid, result.Outcome)
}

func TestValidate_ConcurrentSingleWinner(t *testing.T) {
	const attempts = 25

	validator, ledger := setupValidator(paidTicket())
	ctx := context.Background()

	results := make([]*ValidationResult, attempts)
	errs := make([]error, attempts)

	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = validator.Validate(ctx, "TKT-AAAA-1111", "staff-1", "ev1")
		}(i)
	}
	wg.Wait()

	valid, duplicate := 0, 0
	for i := 0; i < attempts; i++ {
		require.NoError(t, errs[i])
		switch results[i].Outcome {
		case models.OutcomeValid:
			valid++
		case models.OutcomeDuplicate:
			duplicate++
		default:
			t.Fatalf("unexpected outcome %q", results[i].Outcome)
		}
	}

	assert.Equal(t, 1, valid, "exactly one concurrent scan may win")
	assert.Equal(t, attempts-1, duplicate)

	outcomes := ledger.outcomes()
	assert.Equal(t, 1, outcomes[models.OutcomeValid])
	assert.Equal(t, attempts-1, outcomes[models.OutcomeDuplicate])
}

func TestConfirmEntry_Idempotent(t *testing.T) {
	validator, ledger := setupValidator(paidTicket())
	ctx := context.Background()

	_, err := validator.Validate(ctx, "TKT-AAAA-1111", "staff-1", "ev1")
	require.NoError(t, err)

	confirmed, already, err := validator.ConfirmEntry(ctx, "t1", "staff-1")
	require.NoError(t, err)
	assert.True(t, confirmed)
	assert.False(t, already)

	confirmed, already, err = validator.ConfirmEntry(ctx, "t1", "staff-1")
	require.NoError(t, err)
	assert.True(t, confirmed)
	assert.True(t, already, "second confirm is a no-op")

	// Still exactly one valid record, now flagged.
	outcomes := ledger.outcomes()
	assert.Equal(t, 1, outcomes[models.OutcomeValid])
	assert.True(t, ledger.records[0].EntryConfirmed)
}

func TestConfirmEntry_NoValidScan(t *testing.T) {
	validator, _ := setupValidator(paidTicket())

	_, _, err := validator.ConfirmEntry(context.Background(), "t1", "staff-1")

	assert.ErrorIs(t, err, status.ErrNoValidScan)
}

func TestConfirmEntry_UnauthorizedScanner(t *testing.T) {
	validator, _ := setupValidator(paidTicket())

	_, _, err := validator.ConfirmEntry(context.Background(), "t1", "guest-1")

	assert.ErrorIs(t, err, status.ErrUnauthorizedScanner)
}
