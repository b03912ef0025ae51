package services

import (
	"context"
	"encoding/json"
	"log/slog"

	"checkin-system/config"
	"checkin-system/models"

	pubnub "github.com/pubnub/go"
)

// PaymentService consumes payment notifications from the provider
// channel and moves tickets through their payment states. QR
// generation and the actual charge live with the payment provider;
// this side only reacts to the result.
type PaymentService struct {
	pubnub  *pubnub.PubNub
	tickets *TicketService
	config  *config.Config
}

func NewPaymentService(ctx context.Context, pn *pubnub.PubNub, tickets *TicketService, cfg *config.Config) *PaymentService {
	service := &PaymentService{
		pubnub:  pn,
		tickets: tickets,
		config:  cfg,
	}

	if pn != nil {
		go service.subscribe(ctx)
	}

	return service
}

func (s *PaymentService) subscribe(ctx context.Context) {
	listener := pubnub.NewListener()

	s.pubnub.AddListener(listener)
	s.pubnub.Subscribe().
		Channels([]string{s.config.PaymentChannel}).
		Execute()

	for {
		select {
		case <-ctx.Done():
			s.pubnub.UnsubscribeAll()
			return
		case message := <-listener.Message:
			go s.handleNotification(message)
		}
	}
}

type paymentNotification struct {
	TicketID string `json:"ticket_id"`
	Status   string `json:"status"`
}

func (s *PaymentService) handleNotification(message *pubnub.PNMessage) {
	data, ok := message.Message.(map[string]any)
	if !ok {
		return
	}

	jsonData, _ := json.Marshal(data)
	var notification paymentNotification
	if err := json.Unmarshal(jsonData, &notification); err != nil {
		slog.Error("parse payment notification", "error", err)
		return
	}
	if notification.TicketID == "" {
		return
	}

	ctx := context.Background()

	var next models.PaymentState
	switch notification.Status {
	case "success":
		next = models.PaymentPaid
	case "pending":
		next = models.PaymentPending
	case "failed", "cancelled":
		next = models.PaymentCancelled
	default:
		slog.Warn("unknown payment status", "status", notification.Status)
		return
	}

	if _, err := s.tickets.TransitionPayment(ctx, notification.TicketID, next); err != nil {
		slog.Error("apply payment notification",
			"ticket_id", notification.TicketID,
			"status", notification.Status,
			"error", err,
		)
		return
	}

	slog.Info("payment state updated",
		"ticket_id", notification.TicketID,
		"state", string(next),
	)
}
