package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"checkin-system/config"
	"checkin-system/models"
	"checkin-system/utils"

	pubnub "github.com/pubnub/go"
	"github.com/redis/go-redis/v9"
)

// FeedService keeps per-event live check-in state in Redis and pushes
// scan outcomes to the event's gate channel. It is best-effort: a
// Redis or PubNub outage must never fail a validation, so callers run
// RecordScan off the request path and errors are only logged.
type FeedService struct {
	Redis   *redis.Client
	pubnub  *pubnub.PubNub
	config  *config.Config
	breaker *utils.CircuitBreaker
}

func NewFeedService(redisClient *redis.Client, pn *pubnub.PubNub, cfg *config.Config) *FeedService {
	return &FeedService{
		Redis:   redisClient,
		pubnub:  pn,
		config:  cfg,
		breaker: utils.NewCircuitBreaker("gate-push"),
	}
}

// FeedEntry is one row of the live scan feed.
type FeedEntry struct {
	TicketID  string         `json:"ticket_id,omitempty"`
	EventID   string         `json:"event_id"`
	ScannerID string         `json:"scanner_id"`
	Outcome   models.Outcome `json:"outcome"`
	Message   string         `json:"message,omitempty"`
	At        time.Time      `json:"at"`
}

// RecordScan updates the event's feed, counters and gate activity,
// then publishes the outcome to the gate channel.
func (s *FeedService) RecordScan(ctx context.Context, entry FeedEntry) {
	if entry.EventID == "" {
		return
	}
	if entry.At.IsZero() {
		entry.At = time.Now()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		slog.Error("marshal feed entry", "error", err)
		return
	}

	feedKey := fmt.Sprintf("scan:feed:%s", entry.EventID)
	statsKey := fmt.Sprintf("scan:stats:%s", entry.EventID)
	gatesKey := fmt.Sprintf("scan:gates:%s", entry.EventID)

	pipe := s.Redis.TxPipeline()
	pipe.LPush(ctx, feedKey, data)
	pipe.LTrim(ctx, feedKey, 0, int64(s.config.ScanFeedLength-1))
	pipe.Expire(ctx, feedKey, s.config.ScanFeedTTL)
	pipe.HIncrBy(ctx, statsKey, string(entry.Outcome), 1)
	pipe.Expire(ctx, statsKey, s.config.ScanFeedTTL)
	pipe.HSet(ctx, gatesKey, entry.ScannerID, entry.At.Unix())
	pipe.Expire(ctx, gatesKey, s.config.ScanFeedTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		slog.Error("update scan feed", "event_id", entry.EventID, "error", err)
	}

	s.publish(ctx, entry)
}

func (s *FeedService) publish(ctx context.Context, entry FeedEntry) {
	if s.pubnub == nil {
		return
	}

	channel := fmt.Sprintf("%s-%s", s.config.GateChannelPrefix, entry.EventID)
	err := s.breaker.Do(ctx, func() error {
		_, _, err := s.pubnub.Publish().
			Channel(channel).
			Message(map[string]any{
				"type":       "scan_result",
				"ticket_id":  entry.TicketID,
				"scanner_id": entry.ScannerID,
				"outcome":    string(entry.Outcome),
				"message":    entry.Message,
				"at":         entry.At.Unix(),
			}).
			Execute()
		return err
	})
	if err != nil {
		slog.Warn("gate channel publish skipped", "channel", channel, "error", err)
	}
}

// EventStats returns the live outcome counters for an event.
func (s *FeedService) EventStats(ctx context.Context, eventID string) (map[string]int64, error) {
	statsKey := fmt.Sprintf("scan:stats:%s", eventID)

	raw, err := s.Redis.HGetAll(ctx, statsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("event stats: %w", err)
	}

	stats := make(map[string]int64, len(raw))
	for outcome, value := range raw {
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			continue
		}
		stats[outcome] = n
	}
	return stats, nil
}

// RecentScans returns the newest feed entries for an event.
func (s *FeedService) RecentScans(ctx context.Context, eventID string, limit int) ([]FeedEntry, error) {
	if limit < 1 || limit > s.config.ScanFeedLength {
		limit = s.config.ScanFeedLength
	}

	feedKey := fmt.Sprintf("scan:feed:%s", eventID)
	raw, err := s.Redis.LRange(ctx, feedKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("recent scans: %w", err)
	}

	entries := make([]FeedEntry, 0, len(raw))
	for _, item := range raw {
		var entry FeedEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// GateActivity returns the last-seen time of every scanner that has
// scanned at the event.
func (s *FeedService) GateActivity(ctx context.Context, eventID string) (map[string]time.Time, error) {
	gatesKey := fmt.Sprintf("scan:gates:%s", eventID)

	raw, err := s.Redis.HGetAll(ctx, gatesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("gate activity: %w", err)
	}

	activity := make(map[string]time.Time, len(raw))
	for scannerID, value := range raw {
		unix, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			continue
		}
		activity[scannerID] = time.Unix(unix, 0)
	}
	return activity, nil
}
