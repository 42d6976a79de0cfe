// Package arq implements the per-connection core of a reliable, ordered,
// datagram-oriented ARQ transport: segmentation, sequencing, acknowledgement
// processing, RTT/RTO estimation, fast retransmission, congestion window
// maintenance, window probing and the periodic flush scheduler that emits
// wire packets.
//
// A Connection is layered on top of an unreliable packet substrate supplied
// by the host. It is single-owner and not safe for concurrent use: Send,
// Recv, Input, Update and Flush are all run-to-completion with no internal
// locking and no background goroutines. Progress is driven exclusively by
// the host calling Update at the requested cadence and Input when packets
// arrive off the wire.
//
// The engine does not dial, listen, encrypt, authenticate or discover path
// MTU. Those concerns belong to a substrate layer built on top of it (see
// the session package).
package arq

const (
	RTONoDelay = 30    // minimum RTO in nodelay mode
	RTOMin     = 100   // minimum RTO in normal mode
	RTODefault = 200   // initial RTO before any sample
	RTOMax     = 60000 // ceiling for RTO growth

	CmdPush = 81 // push data
	CmdAck  = 82 // acknowledge
	CmdWask = 83 // window probe: ask
	CmdWins = 84 // window probe: tell

	AskSend = 1 // peer should receive a WASK
	AskTell = 2 // peer should receive a WINS

	WindowSend = 32  // default send window, in segments
	WindowRecv = 128 // hard floor for the receive window

	MTUDefault = 1400
	Overhead   = 24 // encoded segment header size

	AckFast = 3 // default fast-resend duplicate-ack threshold

	Interval = 100 // default flush interval, ms
	DeadLink = 20  // retransmissions of one segment before state goes dead

	ThreshInit = 2 // initial ssthresh
	ThreshMin  = 2 // floor for ssthresh

	ProbeInit  = 7000   // first window-probe backoff, ms
	ProbeLimit = 120000 // ceiling for window-probe backoff, ms
)
