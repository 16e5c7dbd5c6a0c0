package flowsdr

import (
	"sync/atomic"
	"time"

	"github.com/behrlich/flowsdr/internal/interfaces"
)

// Metrics tracks per-flowgraph operational statistics using atomic
// counters, reshaped around dataflow concepts (items/messages) instead of
// block-device I/O ops.
type Metrics struct {
	ItemsProduced atomic.Uint64
	ItemsConsumed atomic.Uint64
	MessagesSent  atomic.Uint64

	WorkCalls atomic.Uint64
	WorkErrors atomic.Uint64

	TotalWorkLatencyNs atomic.Uint64
	BufferWaitNs       atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a metrics instance with StartTime set to now.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordWork records one Work call's outcome for a single block.
func (m *Metrics) RecordWork(itemsProduced, itemsConsumed uint64, latencyNs uint64, err error) {
	m.WorkCalls.Add(1)
	m.ItemsProduced.Add(itemsProduced)
	m.ItemsConsumed.Add(itemsConsumed)
	m.TotalWorkLatencyNs.Add(latencyNs)
	if err != nil {
		m.WorkErrors.Add(1)
	}
}

// RecordMessage records one message delivered on any message edge.
func (m *Metrics) RecordMessage() {
	m.MessagesSent.Add(1)
}

// RecordBufferWait records time a driver spent waiting on a stream buffer
// or message inbox before its next Work call.
func (m *Metrics) RecordBufferWait(waitNs uint64) {
	m.BufferWaitNs.Add(waitNs)
}

// Stop marks the flowgraph as stopped.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time read of Metrics.
type MetricsSnapshot struct {
	ItemsProduced uint64
	ItemsConsumed uint64
	MessagesSent  uint64
	WorkCalls     uint64
	WorkErrors    uint64
	AvgWorkLatencyNs uint64
	UptimeNs      uint64
}

// Snapshot computes a MetricsSnapshot from the current counter values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		ItemsProduced: m.ItemsProduced.Load(),
		ItemsConsumed: m.ItemsConsumed.Load(),
		MessagesSent:  m.MessagesSent.Load(),
		WorkCalls:     m.WorkCalls.Load(),
		WorkErrors:    m.WorkErrors.Load(),
	}
	if s.WorkCalls > 0 {
		s.AvgWorkLatencyNs = m.TotalWorkLatencyNs.Load() / s.WorkCalls
	}
	start := m.StartTime.Load()
	stop := m.StopTime.Load()
	if stop > 0 {
		s.UptimeNs = uint64(stop - start)
	} else {
		s.UptimeNs = uint64(time.Now().UnixNano() - start)
	}
	return s
}

// NoOpObserver discards every metrics event; the zero-value default when a
// Flowgraph is not configured with an Observer.
type NoOpObserver struct{}

func (NoOpObserver) ObserveWork(blockID int, itemsProduced, itemsConsumed uint64, latencyNs uint64) {}
func (NoOpObserver) ObserveMessage(blockID int, port string)                                        {}
func (NoOpObserver) ObserveBufferWait(blockID int, waitNs uint64)                                    {}
func (NoOpObserver) ObserveQueueDepth(blockID int, depth uint32)                                     {}

// MetricsObserver implements the Observer contract (internal/interfaces)
// by recording into a Metrics instance.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an Observer that records into m.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

// Metrics returns the Metrics instance this observer records into, for
// callers that installed it via Flowgraph.WithObserver and want to read
// it back (spec.md §6 "describe()" sibling: operational stats rather than
// static topology).
func (o *MetricsObserver) Metrics() *Metrics {
	return o.metrics
}

func (o *MetricsObserver) ObserveWork(blockID int, itemsProduced, itemsConsumed uint64, latencyNs uint64) {
	o.metrics.RecordWork(itemsProduced, itemsConsumed, latencyNs, nil)
}

func (o *MetricsObserver) ObserveMessage(blockID int, port string) {
	o.metrics.RecordMessage()
}

func (o *MetricsObserver) ObserveBufferWait(blockID int, waitNs uint64) {
	o.metrics.RecordBufferWait(waitNs)
}

func (o *MetricsObserver) ObserveQueueDepth(blockID int, depth uint32) {}

// Compile-time interface checks.
var (
	_ interfaces.Observer = (*MetricsObserver)(nil)
	_ interfaces.Observer = NoOpObserver{}
)
