package admin

import "sync/atomic"

// Metrics holds server-wide counters, incremented from the transport and
// room packages and snapshotted read-only for the /metrics endpoint.
type Metrics struct {
	DatagramsProcessed int64
	DatagramsDropped   int64
	ProtocolViolations int64
	CacheMisses        int64
	FloodControlDrops  int64
}

func (m *Metrics) IncDatagramsProcessed() { atomic.AddInt64(&m.DatagramsProcessed, 1) }
func (m *Metrics) IncDatagramsDropped()   { atomic.AddInt64(&m.DatagramsDropped, 1) }
func (m *Metrics) IncProtocolViolations() { atomic.AddInt64(&m.ProtocolViolations, 1) }
func (m *Metrics) IncCacheMisses()        { atomic.AddInt64(&m.CacheMisses, 1) }
func (m *Metrics) IncFloodControlDrops()  { atomic.AddInt64(&m.FloodControlDrops, 1) }

// Snapshot returns a read-only copy suitable for JSON encoding.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"datagrams_processed": atomic.LoadInt64(&m.DatagramsProcessed),
		"datagrams_dropped":   atomic.LoadInt64(&m.DatagramsDropped),
		"protocol_violations": atomic.LoadInt64(&m.ProtocolViolations),
		"cache_misses":        atomic.LoadInt64(&m.CacheMisses),
		"flood_control_drops": atomic.LoadInt64(&m.FloodControlDrops),
	}
}
