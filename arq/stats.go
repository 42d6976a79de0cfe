package arq

// FlushStats reports what one Flush call actually put on the wire, so a
// host can feed its own retransmission/loss metrics without Flush needing
// to know anything about how those metrics are recorded.
type FlushStats struct {
	Retrans     uint32 // segments retransmitted this call, timeout + fast
	Lost        uint32 // segments retransmitted because their RTO expired
	FastRetrans uint32 // segments retransmitted via fast-retransmit
}

// InputStats reports what one Input call actually did, so a host can feed
// its own duplicate-segment metric.
type InputStats struct {
	Repeat uint32 // PUSH segments dropped as exact duplicates of one already held
}
