package handlers

import (
	"errors"
	"net/http"

	"checkin-system/internal/services"
	"checkin-system/internal/status"
	"checkin-system/models"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type TicketHandler struct {
	app     *pocketbase.PocketBase
	tickets *services.TicketService
}

func NewTicketHandler(app *pocketbase.PocketBase, tickets *services.TicketService) *TicketHandler {
	return &TicketHandler{
		app:     app,
		tickets: tickets,
	}
}

// IssueTickets - create a batch of tickets with signed codes
func (h *TicketHandler) IssueTickets(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req services.IssueTicketsRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.EventID == "" || req.HolderID == "" {
		return apis.NewBadRequestError("event_id and holder_id are required", nil)
	}

	tickets, err := h.tickets.IssueTickets(e.Request.Context(), req)
	if err != nil {
		return apis.NewBadRequestError("Failed to issue tickets", err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"tickets": tickets,
		"count":   len(tickets),
	})
}

// GetTicket - single ticket by id
func (h *TicketHandler) GetTicket(e *core.RequestEvent) error {
	ticketID := e.Request.PathValue("ticketId")
	if ticketID == "" {
		return apis.NewBadRequestError("Ticket ID is required", nil)
	}

	ticket, err := h.tickets.Get(e.Request.Context(), ticketID)
	if err != nil {
		if errors.Is(err, status.ErrTicketNotFound) {
			return apis.NewNotFoundError("Ticket not found", err)
		}
		return apis.NewApiError(http.StatusInternalServerError, "Failed to get ticket", err)
	}

	return e.JSON(http.StatusOK, ticket)
}

// UpdatePaymentState - forward-only payment transition
func (h *TicketHandler) UpdatePaymentState(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	ticketID := e.Request.PathValue("ticketId")
	if ticketID == "" {
		return apis.NewBadRequestError("Ticket ID is required", nil)
	}

	var req struct {
		PaymentState string `json:"payment_state"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	ticket, err := h.tickets.TransitionPayment(e.Request.Context(), ticketID, models.PaymentState(req.PaymentState))
	if err != nil {
		switch {
		case errors.Is(err, status.ErrTicketNotFound):
			return apis.NewNotFoundError("Ticket not found", err)
		case errors.Is(err, status.ErrInvalidTransition):
			return apis.NewBadRequestError("Illegal payment state transition", err)
		}
		return apis.NewApiError(http.StatusInternalServerError, "Failed to update payment state", err)
	}

	return e.JSON(http.StatusOK, ticket)
}

// ListEventTickets - server-side filtered and paginated ticket listing
func (h *TicketHandler) ListEventTickets(e *core.RequestEvent) error {
	eventID := e.Request.PathValue("eventId")
	if eventID == "" {
		return apis.NewBadRequestError("Event ID is required", nil)
	}

	query := e.Request.URL.Query()
	paymentState := models.PaymentState(query.Get("payment_state"))
	if paymentState != "" && !paymentState.IsValid() {
		return apis.NewBadRequestError("Unknown payment_state filter", nil)
	}

	page := queryInt(query.Get("page"), 1)
	perPage := queryInt(query.Get("per_page"), 50)

	result, err := h.tickets.ListByEvent(e.Request.Context(), eventID, paymentState, page, perPage)
	if err != nil {
		return apis.NewApiError(http.StatusInternalServerError, "Failed to list tickets", err)
	}

	return e.JSON(http.StatusOK, result)
}
