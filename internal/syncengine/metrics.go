package syncengine

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nguyentranbao-ct/chat-sync/internal/models"
	"github.com/nguyentranbao-ct/chat-sync/pkg/util"
)

// Metrics is optional; a nil *Metrics records nothing.
type Metrics struct {
	batches       *prometheus.CounterVec
	skipped       *prometheus.CounterVec
	sends         *prometheus.CounterVec
	cacheWrites   *prometheus.CounterVec
	state         prometheus.Gauge
	batchDuration *prometheus.HistogramVec
}

func NewMetrics() (*Metrics, error) {
	batches, errBatches := util.GetCounterVec("chatsync_batches_total", "Remote batches by outcome.", "result")
	skipped, errSkipped := util.GetCounterVec("chatsync_documents_skipped_total", "Documents dropped during normalization.", "reason")
	sends, errSends := util.GetCounterVec("chatsync_send_total", "Send attempts by outcome.", "result")
	cacheWrites, errCache := util.GetCounterVec("chatsync_cache_writes_total", "Cache write-through attempts by outcome.", "result")
	state, errState := util.GetGauge("chatsync_engine_state", "0 initializing, 1 live, 2 offline, 3 teardown.")
	duration, errDuration := util.GetHistogramVec("chatsync_batch_duration_seconds", "result")
	if err := errors.Join(errBatches, errSkipped, errSends, errCache, errState, errDuration); err != nil {
		return nil, err
	}
	return &Metrics{
		batches:       batches,
		skipped:       skipped,
		sends:         sends,
		cacheWrites:   cacheWrites,
		state:         state,
		batchDuration: duration,
	}, nil
}

func (m *Metrics) observeBatch(result string, start time.Time) {
	if m == nil {
		return
	}
	m.batches.WithLabelValues(result).Inc()
	m.batchDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
}

func (m *Metrics) skippedDocument(err error) {
	if m == nil {
		return
	}
	m.skipped.WithLabelValues(skipReason(err)).Inc()
}

func (m *Metrics) send(result string) {
	if m == nil {
		return
	}
	m.sends.WithLabelValues(result).Inc()
}

func (m *Metrics) cacheWrite(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.cacheWrites.WithLabelValues(result).Inc()
}

func (m *Metrics) setState(s models.EngineState) {
	if m == nil {
		return
	}
	m.state.Set(s.Gauge())
}
