package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"checkin-system/internal/status"
	"checkin-system/models"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
)

// TicketStore reads and writes issued tickets.
type TicketStore struct {
	app core.App
}

func NewTicketStore(app core.App) *TicketStore {
	return &TicketStore{app: app}
}

func (s *TicketStore) GetByCode(ctx context.Context, code string) (*models.Ticket, error) {
	record, err := s.app.FindFirstRecordByFilter(
		CollectionTickets,
		"code = {:code}",
		dbx.Params{"code": code},
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, status.ErrTicketNotFound
		}
		return nil, fmt.Errorf("ticket lookup by code: %w", err)
	}

	return recordToTicket(record), nil
}

func (s *TicketStore) GetByID(ctx context.Context, id string) (*models.Ticket, error) {
	record, err := s.app.FindRecordById(CollectionTickets, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, status.ErrTicketNotFound
		}
		return nil, fmt.Errorf("ticket lookup by id: %w", err)
	}

	return recordToTicket(record), nil
}

// Create persists a new ticket record and returns its id.
func (s *TicketStore) Create(ctx context.Context, t *models.Ticket) (string, error) {
	collection, err := s.app.FindCollectionByNameOrId(CollectionTickets)
	if err != nil {
		return "", fmt.Errorf("tickets collection: %w", err)
	}

	record := core.NewRecord(collection)
	record.Set("code", t.Code)
	record.Set("event", t.EventID)
	record.Set("holder", t.HolderID)
	record.Set("ticket_type", t.TicketType)
	record.Set("price", t.Price.InexactFloat64())
	record.Set("payment_state", string(t.PaymentState))

	if err := s.app.Save(record); err != nil {
		return "", fmt.Errorf("save ticket: %w", err)
	}

	return record.Id, nil
}

// TransitionPayment moves a ticket to the next payment state. The read
// and write run in one transaction so concurrent transitions cannot
// leapfrog the forward-only rule.
func (s *TicketStore) TransitionPayment(ctx context.Context, id string, next models.PaymentState) (*models.Ticket, error) {
	var updated *models.Ticket

	err := s.app.RunInTransaction(func(txApp core.App) error {
		record, err := txApp.FindRecordById(CollectionTickets, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return status.ErrTicketNotFound
			}
			return fmt.Errorf("ticket lookup: %w", err)
		}

		current := models.PaymentState(record.GetString("payment_state"))
		if !current.CanTransition(next) {
			return fmt.Errorf("%w: %s -> %s", status.ErrInvalidTransition, current, next)
		}

		record.Set("payment_state", string(next))
		if err := txApp.Save(record); err != nil {
			return fmt.Errorf("save ticket: %w", err)
		}

		updated = recordToTicket(record)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// TicketPage is one server-side page of tickets for an event.
type TicketPage struct {
	Tickets    []*models.Ticket `json:"tickets"`
	Page       int              `json:"page"`
	PerPage    int              `json:"per_page"`
	TotalItems int              `json:"total_items"`
}

// ListByEvent returns a filtered, paginated page of an event's
// tickets. Filtering happens in the query, not in memory.
func (s *TicketStore) ListByEvent(ctx context.Context, eventID string, paymentState models.PaymentState, page, perPage int) (*TicketPage, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 200 {
		perPage = 50
	}

	where := dbx.HashExp{"event": eventID}
	if paymentState != "" {
		where["payment_state"] = string(paymentState)
	}

	var total int
	err := s.app.DB().
		Select("COUNT(*)").
		From(CollectionTickets).
		Where(where).
		Row(&total)
	if err != nil {
		return nil, fmt.Errorf("count tickets: %w", err)
	}

	records, err := s.app.FindRecordsByFilter(
		CollectionTickets,
		"event = {:event}"+paymentStateFilter(paymentState),
		"-created",
		perPage,
		(page-1)*perPage,
		dbx.Params{"event": eventID, "state": string(paymentState)},
	)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}

	tickets := make([]*models.Ticket, len(records))
	for i, record := range records {
		tickets[i] = recordToTicket(record)
	}

	return &TicketPage{
		Tickets:    tickets,
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
	}, nil
}

func paymentStateFilter(state models.PaymentState) string {
	if state == "" {
		return ""
	}
	return " && payment_state = {:state}"
}

func recordToTicket(record *core.Record) *models.Ticket {
	return &models.Ticket{
		ID:           record.Id,
		Code:         record.GetString("code"),
		EventID:      record.GetString("event"),
		HolderID:     record.GetString("holder"),
		TicketType:   record.GetString("ticket_type"),
		Price:        decimal.NewFromFloat(record.GetFloat("price")),
		PaymentState: models.PaymentState(record.GetString("payment_state")),
		CreatedAt:    record.GetDateTime("created").Time(),
	}
}
