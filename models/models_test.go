package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPaymentState_CanTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    PaymentState
		to      PaymentState
		allowed bool
	}{
		{"awaiting to pending", PaymentAwaiting, PaymentPending, true},
		{"awaiting to paid", PaymentAwaiting, PaymentPaid, true},
		{"pending to paid", PaymentPending, PaymentPaid, true},
		{"pending to cancelled", PaymentPending, PaymentCancelled, true},
		{"paid to cancelled", PaymentPaid, PaymentCancelled, true},
		{"paid to pending is backwards", PaymentPaid, PaymentPending, false},
		{"paid to awaiting is backwards", PaymentPaid, PaymentAwaiting, false},
		{"pending to awaiting is backwards", PaymentPending, PaymentAwaiting, false},
		{"awaiting to cancelled skips", PaymentAwaiting, PaymentCancelled, false},
		{"cancelled is terminal", PaymentCancelled, PaymentPaid, false},
		{"cancelled stays cancelled", PaymentCancelled, PaymentAwaiting, false},
		{"same state is not a transition", PaymentPaid, PaymentPaid, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransition(tt.to))
		})
	}
}

func TestPaymentState_Admits(t *testing.T) {
	assert.True(t, PaymentPaid.Admits())
	assert.True(t, PaymentPending.Admits())
	assert.False(t, PaymentAwaiting.Admits())
	assert.False(t, PaymentCancelled.Admits())
}

func TestPaymentState_IsValid(t *testing.T) {
	assert.True(t, PaymentAwaiting.IsValid())
	assert.True(t, PaymentPaid.IsValid())
	assert.False(t, PaymentState("refunded").IsValid())
	assert.False(t, PaymentState("").IsValid())
}

func TestScanner_Privileged(t *testing.T) {
	assert.True(t, (&Scanner{ID: "s1", Role: RoleStaff}).Privileged())
	assert.True(t, (&Scanner{ID: "s2", Role: RoleAdmin}).Privileged())
	assert.False(t, (&Scanner{ID: "s3", Role: "guest"}).Privileged())
	assert.False(t, (&Scanner{ID: "s4"}).Privileged())

	var missing *Scanner
	assert.False(t, missing.Privileged(), "nil scanner is never privileged")
}

func TestTicket_Summary(t *testing.T) {
	ticket := &Ticket{
		ID:           "t1",
		Code:         "TKT-AAAA-1111",
		EventID:      "ev1",
		HolderID:     "h1",
		TicketType:   "vip",
		Price:        decimal.NewFromFloat(99.5),
		PaymentState: PaymentPaid,
	}

	summary := ticket.Summary()

	assert.Equal(t, "t1", summary.ID)
	assert.Equal(t, "ev1", summary.EventID)
	assert.Equal(t, "h1", summary.HolderID)
	assert.Equal(t, "vip", summary.TicketType)
	assert.True(t, summary.Price.Equal(decimal.NewFromFloat(99.5)))
}
