package monitoring

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

var (
	scanOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scan_outcomes_total",
			Help: "Total scan attempts by outcome",
		},
		[]string{"event_id", "outcome"},
	)

	scanDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scan_validation_duration_seconds",
			Help:    "Duration of scan validations",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"outcome"},
	)

	checkedInGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "checked_in_total",
			Help: "Current checked-in count per event from the live counters",
		},
		[]string{"event_id"},
	)

	activeGates = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "active_gates_total",
			Help: "Scanners seen at an event within the last five minutes",
		},
		[]string{"event_id"},
	)
)

type Monitor struct {
	redis *redis.Client
}

func NewMonitor(ctx context.Context, redisClient *redis.Client) *Monitor {
	monitor := &Monitor{redis: redisClient}

	// Start metrics collection
	go monitor.collectMetrics(ctx)

	return monitor
}

func (m *Monitor) collectMetrics(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.collectCheckinMetrics(ctx)
			m.collectGateMetrics(ctx)
		}
	}
}

func (m *Monitor) collectCheckinMetrics(ctx context.Context) {
	statsKeys, _ := m.redis.Keys(ctx, "scan:stats:*").Result()
	for _, key := range statsKeys {
		eventID := key[len("scan:stats:"):]
		valid, _ := m.redis.HGet(ctx, key, "valid").Int64()
		checkedInGauge.WithLabelValues(eventID).Set(float64(valid))
	}
}

func (m *Monitor) collectGateMetrics(ctx context.Context) {
	gateKeys, _ := m.redis.Keys(ctx, "scan:gates:*").Result()
	cutoff := time.Now().Add(-5 * time.Minute).Unix()

	for _, key := range gateKeys {
		eventID := key[len("scan:gates:"):]
		gates, err := m.redis.HGetAll(ctx, key).Result()
		if err != nil {
			continue
		}

		active := 0
		for _, value := range gates {
			lastSeen, err := strconv.ParseInt(value, 10, 64)
			if err == nil && lastSeen >= cutoff {
				active++
			}
		}
		activeGates.WithLabelValues(eventID).Set(float64(active))
	}
}

// TrackScan records one validation outcome and its duration.
func (m *Monitor) TrackScan(eventID, outcome string, duration time.Duration) {
	if eventID == "" {
		eventID = "unknown"
	}
	scanOutcomes.WithLabelValues(eventID, outcome).Inc()
	scanDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// StartMetricsServer serves /metrics on its own port so the scrape
// path never mixes with the API router.
func StartMetricsServer(port string) {
	e := echo.New()
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	server := &http.Server{
		Addr:    ":" + port,
		Handler: e,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil {
			slog.Error("metrics server stopped", "error", err)
		}
	}()
}
