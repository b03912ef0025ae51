package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"checkin-system/internal/services"
	"checkin-system/internal/status"
	"checkin-system/internal/store"
	"checkin-system/monitoring"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type ScanHandler struct {
	app       *pocketbase.PocketBase
	validator *services.ValidatorService
	feed      *services.FeedService
	ledger    *store.ScanLedger
	monitor   *monitoring.Monitor
}

func NewScanHandler(app *pocketbase.PocketBase, validator *services.ValidatorService, feed *services.FeedService, ledger *store.ScanLedger, monitor *monitoring.Monitor) *ScanHandler {
	return &ScanHandler{
		app:       app,
		validator: validator,
		feed:      feed,
		ledger:    ledger,
		monitor:   monitor,
	}
}

// ValidateScan - decide and record the outcome of one gate scan
func (h *ScanHandler) ValidateScan(e *core.RequestEvent) error {
	var req struct {
		Code      string `json:"code"`
		ScannerID string `json:"scanner_id"`
		EventID   string `json:"event_id"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.Code == "" || req.ScannerID == "" {
		return apis.NewBadRequestError("code and scanner_id are required", nil)
	}

	ctx := e.Request.Context()
	started := time.Now()

	result, err := h.validator.Validate(ctx, req.Code, req.ScannerID, req.EventID)
	if err != nil {
		if errors.Is(err, status.ErrUnauthorizedScanner) {
			return apis.NewForbiddenError("Scanner not authorized", err)
		}
		return apis.NewApiError(http.StatusInternalServerError, "Validation failed, retry the scan", err)
	}

	h.monitor.TrackScan(req.EventID, string(result.Outcome), time.Since(started))

	// Live feed updates run off the request path; an outage there must
	// not affect the recorded outcome.
	entry := services.FeedEntry{
		EventID:   req.EventID,
		ScannerID: req.ScannerID,
		Outcome:   result.Outcome,
		Message:   result.Message,
	}
	if result.Ticket != nil {
		entry.TicketID = result.Ticket.ID
		entry.EventID = result.Ticket.EventID
	}
	go h.feed.RecordScan(context.Background(), entry)

	return e.JSON(http.StatusOK, result)
}

// ConfirmEntry - mark the winning scan of a ticket as a completed entry
func (h *ScanHandler) ConfirmEntry(e *core.RequestEvent) error {
	var req struct {
		TicketID  string `json:"ticket_id"`
		ScannerID string `json:"scanner_id"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.TicketID == "" || req.ScannerID == "" {
		return apis.NewBadRequestError("ticket_id and scanner_id are required", nil)
	}

	confirmed, already, err := h.validator.ConfirmEntry(e.Request.Context(), req.TicketID, req.ScannerID)
	if err != nil {
		switch {
		case errors.Is(err, status.ErrUnauthorizedScanner):
			return apis.NewForbiddenError("Scanner not authorized", err)
		case errors.Is(err, status.ErrTicketNotFound):
			return apis.NewNotFoundError("Ticket not found", err)
		case errors.Is(err, status.ErrNoValidScan):
			return apis.NewBadRequestError("Ticket has no valid scan to confirm", err)
		}
		return apis.NewApiError(http.StatusInternalServerError, "Confirm entry failed", err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"confirmed":         confirmed,
		"already_confirmed": already,
	})
}

// GetScanHistory - scan ledger entries, newest first, cursor paginated
func (h *ScanHandler) GetScanHistory(e *core.RequestEvent) error {
	query := e.Request.URL.Query()
	eventID := query.Get("event_id")

	limit := 100
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return apis.NewBadRequestError("Invalid limit", err)
		}
		limit = parsed
	}

	var before time.Time
	if raw := query.Get("before"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return apis.NewBadRequestError("Invalid before cursor, want RFC3339", err)
		}
		before = parsed
	}

	records, err := h.ledger.List(e.Request.Context(), eventID, limit, before)
	if err != nil {
		return apis.NewApiError(http.StatusInternalServerError, "Failed to list scans", err)
	}

	response := map[string]any{
		"scans": records,
		"count": len(records),
	}
	if len(records) > 0 {
		response["next_before"] = records[len(records)-1].CreatedAt.Format(time.RFC3339Nano)
	}

	return e.JSON(http.StatusOK, response)
}
