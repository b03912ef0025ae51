package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"checkin-system/config"
	"checkin-system/internal/handlers"
	"checkin-system/internal/services"
	"checkin-system/internal/store"
	_ "checkin-system/migrations"
	"checkin-system/monitoring"
	"checkin-system/security"
	"checkin-system/utils"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	pubnub "github.com/pubnub/go"
	"github.com/redis/go-redis/v9"
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	// Initialize Redis
	redisClient := utils.NewRedisClient(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
	defer redisClient.Close()

	// Initialize PubNub (optional: without keys the feed is Redis-only)
	var pn *pubnub.PubNub
	if cfg.PubNubPublishKey != "" && cfg.PubNubSubscribeKey != "" {
		pnConfig := pubnub.NewConfig()
		pnConfig.PublishKey = cfg.PubNubPublishKey
		pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
		pnConfig.SecretKey = cfg.PubNubSecretKey
		pn = pubnub.NewPubNub(pnConfig)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize stores
	ticketStore := store.NewTicketStore(app)
	scannerStore := store.NewScannerStore(app)
	scanLedger := store.NewScanLedger(app)

	// Initialize services
	validatorService := services.NewValidatorService(ticketStore, scannerStore, scanLedger, cfg.TicketCodeSecret)
	ticketService := services.NewTicketService(ticketStore, cfg.TicketCodeSecret)
	feedService := services.NewFeedService(redisClient, pn, cfg)
	services.NewPaymentService(ctx, pn, ticketService, cfg)

	// Monitoring
	monitor := monitoring.NewMonitor(ctx, redisClient)
	if cfg.EnableMetrics {
		monitoring.StartMetricsServer(cfg.MetricsPort)
	}

	// Initialize handlers
	scanHandler := handlers.NewScanHandler(app, validatorService, feedService, scanLedger, monitor)
	ticketHandler := handlers.NewTicketHandler(app, ticketService)
	adminHandler := handlers.NewAdminHandler(app, feedService, scanLedger)

	// Rate limiting for gate devices
	rateLimiter := security.NewScanRateLimiter(redisClient, cfg.ScanRateLimit, cfg.ScanRateWindow)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	// Setup graceful shutdown
	go handleShutdown(cancel)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		// Scan endpoints
		e.Router.POST("/api/v1/scans/validate", scanHandler.ValidateScan).BindFunc(rateLimiter.Middleware())
		e.Router.POST("/api/v1/scans/confirm-entry", scanHandler.ConfirmEntry)
		e.Router.GET("/api/v1/scans/history", scanHandler.GetScanHistory)

		// Ticket endpoints
		e.Router.POST("/api/v1/tickets/issue", ticketHandler.IssueTickets)
		e.Router.GET("/api/v1/tickets/{ticketId}", ticketHandler.GetTicket)
		e.Router.POST("/api/v1/tickets/{ticketId}/payment-state", ticketHandler.UpdatePaymentState)
		e.Router.GET("/api/v1/events/{eventId}/tickets", ticketHandler.ListEventTickets)

		// Admin endpoints
		e.Router.GET("/api/v1/admin/checkin-dashboard", adminHandler.GetCheckinDashboard)
		e.Router.GET("/api/v1/admin/gate-activity", adminHandler.GetGateActivity)

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(503, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(200, map[string]string{"status": "healthy"})
		})

		log.Println("Server routes registered")

		setupEventHooks(app, redisClient)

		return e.Next()
	})

	// Start server
	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
	return nil
}

// setupEventHooks keeps the Redis live-feed keys from outliving their
// event.
func setupEventHooks(app *pocketbase.PocketBase, redisClient *redis.Client) {
	app.OnRecordUpdateRequest(store.CollectionEvents).BindFunc(func(e *core.RecordRequestEvent) error {
		ctx := e.Request.Context()

		if e.Record.GetString("status") == "ended" {
			dropFeedKeys(ctx, redisClient, e.Record.Id)
			slog.Info("cleared live feed for ended event", "event_id", e.Record.Id)
		}
		return e.Next()
	})

	app.OnRecordDeleteRequest(store.CollectionEvents).BindFunc(func(e *core.RecordRequestEvent) error {
		ctx := e.Request.Context()

		dropFeedKeys(ctx, redisClient, e.Record.Id)
		slog.Info("cleared live feed for deleted event", "event_id", e.Record.Id)
		return e.Next()
	})
}

func dropFeedKeys(ctx context.Context, redisClient *redis.Client, eventID string) {
	keys := []string{
		fmt.Sprintf("scan:feed:%s", eventID),
		fmt.Sprintf("scan:stats:%s", eventID),
		fmt.Sprintf("scan:gates:%s", eventID),
	}
	if err := redisClient.Del(ctx, keys...).Err(); err != nil {
		slog.Error("failed to clear feed keys", "event_id", eventID, "error", err)
	}
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
	cancel()
}
