// Package metrics provides in-memory runtime statistics collection.
package metrics

import (
	"math"
	"sync"
	"time"
)

// OperationMetrics holds aggregated timings for a single operation type.
type OperationMetrics struct {
	Count     int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration
}

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Count       int64   `json:"count"`
	TotalTimeMs int64   `json:"totalTimeMs"`
	AvgTimeMs   float64 `json:"avgTimeMs"`
	MinTimeMs   int64   `json:"minTimeMs"`
	MaxTimeMs   int64   `json:"maxTimeMs"`
}

// Snapshot represents the full server statistics at a point in time.
type Snapshot struct {
	UptimeSeconds   float64            `json:"uptimeSeconds"`
	ActiveStreams   int64              `json:"activeStreams"`
	EventsForwarded int64              `json:"eventsForwarded"`
	StoreGet        *OperationSnapshot `json:"storeGet,omitempty"`
	StorePut        *OperationSnapshot `json:"storePut,omitempty"`
	StoreDelete     *OperationSnapshot `json:"storeDelete,omitempty"`
	Retrieval       *OperationSnapshot `json:"retrieval,omitempty"`
	Generation      *OperationSnapshot `json:"generation,omitempty"`
	RAGQuery        *OperationSnapshot `json:"ragQuery,omitempty"`
	Ingest          *OperationSnapshot `json:"ingest,omitempty"`
}

// Operation names for the collector.
const (
	OpStoreGet    = "store_get"
	OpStorePut    = "store_put"
	OpStoreDelete = "store_delete"
	OpRetrieval   = "retrieval"
	OpGeneration  = "generation"
	OpRAGQuery    = "rag_query"
	OpIngest      = "ingest"
)

// Collector aggregates in-memory runtime statistics.
// All methods are thread-safe.
type Collector struct {
	mu              sync.RWMutex
	startTime       time.Time
	ops             map[string]*OperationMetrics
	activeStreams   int64
	eventsForwarded int64
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*OperationMetrics),
	}
}

// getOrCreate returns existing metrics or creates new ones for an operation.
// Caller must hold write lock.
func (c *Collector) getOrCreate(op string) *OperationMetrics {
	m, ok := c.ops[op]
	if !ok {
		m = &OperationMetrics{
			MinTime: time.Duration(math.MaxInt64),
		}
		c.ops[op] = m
	}
	return m
}

// RecordTiming records timing for an operation.
func (c *Collector) RecordTiming(op string, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(op)
	m.Count++
	m.TotalTime += duration

	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}
}

// StreamOpened increments the active stream gauge.
func (c *Collector) StreamOpened() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.activeStreams++
}

// StreamClosed decrements the active stream gauge.
func (c *Collector) StreamClosed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.activeStreams > 0 {
		c.activeStreams--
	}
}

// EventsForwarded adds to the forwarded-event counter.
func (c *Collector) EventsForwarded(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eventsForwarded += int64(n)
}

// snapshotOp creates a snapshot for an operation, returning nil if no data.
func snapshotOp(m *OperationMetrics) *OperationSnapshot {
	if m == nil || m.Count == 0 {
		return nil
	}
	return &OperationSnapshot{
		Count:       m.Count,
		TotalTimeMs: m.TotalTime.Milliseconds(),
		AvgTimeMs:   float64(m.TotalTime.Milliseconds()) / float64(m.Count),
		MinTimeMs:   m.MinTime.Milliseconds(),
		MaxTimeMs:   m.MaxTime.Milliseconds(),
	}
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		UptimeSeconds:   time.Since(c.startTime).Seconds(),
		ActiveStreams:   c.activeStreams,
		EventsForwarded: c.eventsForwarded,
		StoreGet:        snapshotOp(c.ops[OpStoreGet]),
		StorePut:        snapshotOp(c.ops[OpStorePut]),
		StoreDelete:     snapshotOp(c.ops[OpStoreDelete]),
		Retrieval:       snapshotOp(c.ops[OpRetrieval]),
		Generation:      snapshotOp(c.ops[OpGeneration]),
		RAGQuery:        snapshotOp(c.ops[OpRAGQuery]),
		Ingest:          snapshotOp(c.ops[OpIngest]),
	}
}
