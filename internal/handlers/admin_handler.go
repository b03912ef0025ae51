package handlers

import (
	"net/http"
	"strconv"
	"time"

	"checkin-system/internal/services"
	"checkin-system/internal/store"
	"checkin-system/models"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
)

type AdminHandler struct {
	app    *pocketbase.PocketBase
	feed   *services.FeedService
	ledger *store.ScanLedger
}

func NewAdminHandler(app *pocketbase.PocketBase, feed *services.FeedService, ledger *store.ScanLedger) *AdminHandler {
	return &AdminHandler{
		app:    app,
		feed:   feed,
		ledger: ledger,
	}
}

// GetCheckinDashboard - per-event check-in stats for the admin UI.
// Authoritative counts come from SQLite; the live feed from Redis.
func (h *AdminHandler) GetCheckinDashboard(e *core.RequestEvent) error {
	if e.Auth == nil || e.Auth.GetString("role") != models.RoleAdmin {
		return apis.NewUnauthorizedError("Admin access required", nil)
	}

	eventID := e.Request.URL.Query().Get("event_id")
	if eventID == "" {
		return apis.NewBadRequestError("Event ID required", nil)
	}
	ctx := e.Request.Context()

	record, err := h.app.FindRecordById(store.CollectionEvents, eventID)
	if err != nil {
		return apis.NewNotFoundError("Event not found", err)
	}
	event := models.Event{
		ID:        record.Id,
		Name:      record.GetString("name"),
		Venue:     record.GetString("venue"),
		StartTime: record.GetDateTime("start_date").Time(),
		EndTime:   record.GetDateTime("end_date").Time(),
		Status:    record.GetString("status"),
	}

	var issued int
	err = h.app.DB().
		Select("COUNT(*)").
		From(store.CollectionTickets).
		Where(dbx.HashExp{"event": eventID}).
		Row(&issued)
	if err != nil {
		return apis.NewApiError(http.StatusInternalServerError, "Failed to count tickets", err)
	}

	outcomes, err := h.ledger.OutcomeCounts(ctx, eventID)
	if err != nil {
		return apis.NewApiError(http.StatusInternalServerError, "Failed to aggregate scans", err)
	}

	revenue, err := h.ledger.CheckedInRevenue(ctx, eventID)
	if err != nil {
		return apis.NewApiError(http.StatusInternalServerError, "Failed to sum revenue", err)
	}

	checkedIn := outcomes[models.OutcomeValid]
	ratio := 0.0
	if issued > 0 {
		ratio = float64(checkedIn) / float64(issued)
	}

	recent, err := h.feed.RecentScans(ctx, eventID, 20)
	if err != nil {
		// The dashboard still works without the live feed.
		recent = nil
	}

	return e.JSON(http.StatusOK, map[string]any{
		"event":              event,
		"tickets_issued":     issued,
		"checked_in":         checkedIn,
		"checkin_ratio":      ratio,
		"outcomes":           outcomes,
		"checked_in_revenue": decimal.NewFromFloat(revenue).StringFixed(2),
		"recent_scans":       recent,
	})
}

// GetGateActivity - last-seen times of every scanner at an event
func (h *AdminHandler) GetGateActivity(e *core.RequestEvent) error {
	if e.Auth == nil || e.Auth.GetString("role") != models.RoleAdmin {
		return apis.NewUnauthorizedError("Admin access required", nil)
	}

	eventID := e.Request.URL.Query().Get("event_id")
	if eventID == "" {
		return apis.NewBadRequestError("Event ID required", nil)
	}
	ctx := e.Request.Context()

	activity, err := h.feed.GateActivity(ctx, eventID)
	if err != nil {
		return apis.NewApiError(http.StatusInternalServerError, "Failed to get gate activity", err)
	}

	gates := []map[string]any{}
	for scannerID, lastSeen := range activity {
		gate := map[string]any{
			"scanner_id":   scannerID,
			"last_seen":    lastSeen.Format(time.RFC3339),
			"idle_seconds": time.Since(lastSeen).Seconds(),
		}
		if scanner, err := h.app.FindRecordById(store.CollectionScanners, scannerID); err == nil {
			gate["scanner_name"] = scanner.GetString("name")
		}
		gates = append(gates, gate)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"event_id": eventID,
		"gates":    gates,
	})
}

func queryInt(raw string, defaultValue int) int {
	if raw == "" {
		return defaultValue
	}
	if parsed, err := strconv.Atoi(raw); err == nil {
		return parsed
	}
	return defaultValue
}
