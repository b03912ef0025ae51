package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentState is the payment lifecycle of an issued ticket.
// Transitions only move forward; cancelled is terminal.
type PaymentState string

const (
	PaymentAwaiting  PaymentState = "awaiting_payment"
	PaymentPending   PaymentState = "pending"
	PaymentPaid      PaymentState = "paid"
	PaymentCancelled PaymentState = "cancelled"
)

var paymentTransitions = map[PaymentState][]PaymentState{
	PaymentAwaiting:  {PaymentPending, PaymentPaid},
	PaymentPending:   {PaymentPaid, PaymentCancelled},
	PaymentPaid:      {PaymentCancelled},
	PaymentCancelled: {},
}

// CanTransition reports whether moving from s to next is a legal
// forward transition.
func (s PaymentState) CanTransition(next PaymentState) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Admits reports whether a ticket in this payment state may pass the
// gate.
func (s PaymentState) Admits() bool {
	return s == PaymentPaid || s == PaymentPending
}

func (s PaymentState) IsValid() bool {
	_, ok := paymentTransitions[s]
	return ok
}

type Ticket struct {
	ID           string          `json:"id"`
	Code         string          `json:"code"`
	EventID      string          `json:"event_id"`
	HolderID     string          `json:"holder_id"`
	TicketType   string          `json:"ticket_type"`
	Price        decimal.Decimal `json:"price"`
	PaymentState PaymentState    `json:"payment_state"`
	CreatedAt    time.Time       `json:"created_at"`
}

// TicketSummary is the slice of ticket data returned to gate devices
// on a successful scan.
type TicketSummary struct {
	ID         string          `json:"id"`
	EventID    string          `json:"event_id"`
	HolderID   string          `json:"holder_id"`
	TicketType string          `json:"ticket_type"`
	Price      decimal.Decimal `json:"price"`
}

func (t *Ticket) Summary() *TicketSummary {
	return &TicketSummary{
		ID:         t.ID,
		EventID:    t.EventID,
		HolderID:   t.HolderID,
		TicketType: t.TicketType,
		Price:      t.Price,
	}
}
