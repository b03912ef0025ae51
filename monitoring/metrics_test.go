package monitoring

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectCheckinMetrics(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer mock.ClearExpect()
	monitor := &Monitor{redis: db}

	mock.ExpectKeys("scan:stats:*").SetVal([]string{"scan:stats:ev1"})
	mock.ExpectHGet("scan:stats:ev1", "valid").SetVal("42")

	monitor.collectCheckinMetrics(context.Background())

	assert.Equal(t, 42.0, testutil.ToFloat64(checkedInGauge.WithLabelValues("ev1")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCollectorStopsOnCancel(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer mock.ClearExpect()
	monitor := &Monitor{redis: db}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		monitor.collectMetrics(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		require.Fail(t, "collector kept running after cancel")
	}
}
