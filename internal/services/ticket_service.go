package services

import (
	"context"
	"fmt"

	"checkin-system/internal/store"
	"checkin-system/models"
	"checkin-system/utils"

	"github.com/shopspring/decimal"
)

// TicketService issues tickets and manages their payment lifecycle.
type TicketService struct {
	store      *store.TicketStore
	codeSecret string
}

func NewTicketService(ticketStore *store.TicketStore, codeSecret string) *TicketService {
	return &TicketService{
		store:      ticketStore,
		codeSecret: codeSecret,
	}
}

type IssueTicketsRequest struct {
	EventID    string          `json:"event_id"`
	HolderID   string          `json:"holder_id"`
	TicketType string          `json:"ticket_type"`
	Price      decimal.Decimal `json:"price"`
	Count      int             `json:"count"`
}

// IssueTickets creates count tickets with freshly signed codes, all in
// awaiting_payment state.
func (s *TicketService) IssueTickets(ctx context.Context, req IssueTicketsRequest) ([]*models.Ticket, error) {
	if req.Count < 1 {
		req.Count = 1
	}
	if req.Count > 100 {
		return nil, fmt.Errorf("issue tickets: count %d exceeds batch limit", req.Count)
	}

	tickets := make([]*models.Ticket, 0, req.Count)
	for i := 0; i < req.Count; i++ {
		code, err := utils.NewTicketCode(s.codeSecret)
		if err != nil {
			return nil, fmt.Errorf("generate ticket code: %w", err)
		}

		ticket := &models.Ticket{
			Code:         code,
			EventID:      req.EventID,
			HolderID:     req.HolderID,
			TicketType:   req.TicketType,
			Price:        req.Price,
			PaymentState: models.PaymentAwaiting,
		}

		id, err := s.store.Create(ctx, ticket)
		if err != nil {
			return nil, err
		}
		ticket.ID = id

		tickets = append(tickets, ticket)
	}

	return tickets, nil
}

func (s *TicketService) Get(ctx context.Context, id string) (*models.Ticket, error) {
	return s.store.GetByID(ctx, id)
}

func (s *TicketService) TransitionPayment(ctx context.Context, id string, next models.PaymentState) (*models.Ticket, error) {
	if !next.IsValid() {
		return nil, fmt.Errorf("unknown payment state %q", next)
	}
	return s.store.TransitionPayment(ctx, id, next)
}

func (s *TicketService) ListByEvent(ctx context.Context, eventID string, paymentState models.PaymentState, page, perPage int) (*store.TicketPage, error) {
	return s.store.ListByEvent(ctx, eventID, paymentState, page, perPage)
}
