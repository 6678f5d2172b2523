package memd

import "sync/atomic"

// DispatchStats contains counters of the dispatch pipeline.
// All fields are safe for concurrent access.
type DispatchStats struct {
	Dispatched      uint64 // Responses and immediate failures handed to Dispatch
	Delivered       uint64 // Results handed to a continuation
	ClientGenerated uint64 // Results carrying a client-generated status
	Forwarded       uint64 // Raw responses routed to the Forwarder
	ProtocolErrors  uint64 // Responses rejected as protocol violations
	TokensMerged    uint64 // Mutation tokens merged into a connection table
	Suppressed      uint64 // Deliveries skipped because the request was already invoked
}

// dispatchStatsCollector provides internal methods for updating dispatch stats.
type dispatchStatsCollector struct {
	stats DispatchStats
}

func (c *dispatchStatsCollector) recordDispatch() {
	atomic.AddUint64(&c.stats.Dispatched, 1)
}

func (c *dispatchStatsCollector) recordDelivery(clientGenerated bool) {
	atomic.AddUint64(&c.stats.Delivered, 1)
	if clientGenerated {
		atomic.AddUint64(&c.stats.ClientGenerated, 1)
	}
}

func (c *dispatchStatsCollector) recordForward() {
	atomic.AddUint64(&c.stats.Forwarded, 1)
}

func (c *dispatchStatsCollector) recordProtocolError() {
	atomic.AddUint64(&c.stats.ProtocolErrors, 1)
}

func (c *dispatchStatsCollector) recordTokenMerge() {
	atomic.AddUint64(&c.stats.TokensMerged, 1)
}

func (c *dispatchStatsCollector) recordSuppressed() {
	atomic.AddUint64(&c.stats.Suppressed, 1)
}

func (c *dispatchStatsCollector) snapshot() DispatchStats {
	return DispatchStats{
		Dispatched:      atomic.LoadUint64(&c.stats.Dispatched),
		Delivered:       atomic.LoadUint64(&c.stats.Delivered),
		ClientGenerated: atomic.LoadUint64(&c.stats.ClientGenerated),
		Forwarded:       atomic.LoadUint64(&c.stats.Forwarded),
		ProtocolErrors:  atomic.LoadUint64(&c.stats.ProtocolErrors),
		TokensMerged:    atomic.LoadUint64(&c.stats.TokensMerged),
		Suppressed:      atomic.LoadUint64(&c.stats.Suppressed),
	}
}
