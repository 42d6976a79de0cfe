// Package metrics collects counters for the arq/session stack: simple
// atomic counters in the style of kcp-go's Snmp struct, exposed to
// Prometheus via a Collector adapter.
package metrics

import "sync/atomic"

// Counter is a 64-bit counter, safe for concurrent use without locking. It
// normally only increases, but Add also accepts a wrapped negative delta
// (CurrEstab is decremented this way).
type Counter struct {
	v uint64
}

// Add adds delta to the counter. A negative delta (e.g. ^uint64(0) for -1)
// is permitted the same way sync/atomic itself permits it.
func (c *Counter) Add(delta uint64) {
	atomic.AddUint64(&c.v, delta)
}

// Value returns the counter's current value.
func (c *Counter) Value() uint64 {
	return atomic.LoadUint64(&c.v)
}

// Snmp mirrors kcp-go's Snmp struct: one atomic counter per protocol event
// of interest, updated from the session package as packets and bytes cross
// the wire.
type Snmp struct {
	CurrEstab     Counter // sessions currently open
	InSegs        Counter // datagrams received (each may carry several segments)
	OutSegs       Counter // datagrams sent (each may carry several segments)
	InBytes       Counter // raw bytes received off the wire
	OutBytes      Counter // raw bytes written to the wire
	BytesSent     Counter // application bytes accepted by Write
	BytesReceived Counter // application bytes returned by Read
	InErrs        Counter // Input() calls that returned an error
	RepeatSegs    Counter // duplicate segments discarded on receive
	LostSegs      Counter // segments inferred lost (timeout retransmit)
	RetransSegs   Counter // all retransmitted segments, fast + timeout
	FastRetrans   Counter // fast-retransmitted segments only
}

// Default is the package-wide Snmp instance the session package updates.
// A process embedding this module for multiple independent stacks can
// instead construct its own Snmp and Collector.
var Default = &Snmp{}
