package arq

// Output is the egress capability a Connection is constructed with: it is
// handed exactly the bytes of one outbound datagram (already at most MTU
// bytes) and is expected to deliver them towards the peer. Output is called
// synchronously from inside Flush and must not re-enter the Connection.
type Output func(buf []byte)

type ackItem struct {
	sn uint32
	ts uint32
}

// Connection is a single logical ARQ conversation, identified on the wire
// by conv. It is not safe for concurrent use: exactly one goroutine may
// call its methods at a time, and none of them block or spawn goroutines.
type Connection struct {
	conv, mtu, mss uint32
	state          int32 // 0 normal, -1 dead-link

	sndUna, sndNxt, rcvNxt uint32
	ssthresh               uint32

	rxRttvar, rxSrtt int32
	rxRto, rxMinrto  uint32

	sndWnd, rcvWnd, rmtWnd, cwnd, probe uint32
	interval, tsFlush, xmit            uint32
	nodelay, updated                   uint32
	tsProbe, probeWait                 uint32
	deadLink, incr                     uint32

	fastresend     int32
	nocwnd, stream bool

	sndQueue []segment
	rcvQueue []segment
	sndBuf   []segment
	rcvBuf   []segment

	acklist []ackItem

	buffer []byte
	output Output
}

// NewConnection creates a Connection for conversation id conv. Both peers
// of a conversation must agree on conv out of band; it is echoed in every
// segment and mismatches are rejected by Input.
func NewConnection(conv uint32, output Output) *Connection {
	c := &Connection{
		conv:     conv,
		sndWnd:   WindowSend,
		rcvWnd:   WindowRecv,
		rmtWnd:   WindowRecv,
		mtu:      MTUDefault,
		mss:      MTUDefault - Overhead,
		rxRto:    RTODefault,
		rxMinrto: RTOMin,
		interval: Interval,
		tsFlush:  Interval,
		ssthresh: ThreshInit,
		deadLink: DeadLink,
		output:   output,
	}
	c.buffer = make([]byte, (c.mtu+Overhead)*3)
	return c
}

// Dead reports whether the Connection has given up on a segment after
// DeadLink retransmissions. This is the engine's only fatal signal; the
// engine keeps functioning afterwards, but the host should tear the
// Connection down.
func (c *Connection) Dead() bool {
	return c.state == -1
}

// Waitsnd returns the number of segments still queued or in flight,
// snd_buf.len + snd_queue.len.
func (c *Connection) Waitsnd() int {
	return len(c.sndBuf) + len(c.sndQueue)
}

// MSS returns the maximum segment size: the current mtu minus the segment
// header overhead. A single Send submission longer than MSS is split into
// multiple fragments; a host layering a stream on top (see the session
// package's Write) chunks at this boundary to avoid ever tripping
// ErrMessageTooLarge.
func (c *Connection) MSS() int {
	return int(c.mss)
}

// Cwnd returns the current effective congestion window, in segments: the
// minimum of the send window, the peer's advertised window, and (unless
// congestion control has been disabled) the locally-estimated window.
func (c *Connection) Cwnd() uint32 {
	cwnd := min32(c.sndWnd, c.rmtWnd)
	if !c.nocwnd {
		cwnd = min32(c.cwnd, cwnd)
	}
	return cwnd
}

// SetMTU changes the maximum transmission unit of the substrate, default
// 1400. It fails with ErrInvalidConfig if mtu is below 50 bytes.
func (c *Connection) SetMTU(mtu int) error {
	if mtu < 50 || mtu < Overhead {
		return ErrInvalidConfig
	}
	c.buffer = make([]byte, (mtu+Overhead)*3)
	c.mtu = uint32(mtu)
	c.mss = c.mtu - Overhead
	return nil
}

// SetInterval sets the flush scheduler's period, clamped to [10, 5000] ms.
func (c *Connection) SetInterval(ms int) {
	if ms > 5000 {
		ms = 5000
	} else if ms < 10 {
		ms = 10
	}
	c.interval = uint32(ms)
}

// SetWindowSize sets the maximum send and receive window sizes, in
// segments. A non-positive value leaves the corresponding window
// unchanged; rcv can never be set below WindowRecv, since the receive
// window must always admit a fully fragmented maximum-size message.
func (c *Connection) SetWindowSize(snd, rcv int) {
	if snd > 0 {
		c.sndWnd = uint32(snd)
	}
	if rcv > 0 {
		c.rcvWnd = max32(uint32(rcv), WindowRecv)
	}
}

// SetNoDelay toggles the low-latency profile.
//
//	nodelay: -1 leave unchanged, 0 disable (default), 1 enable fast RTO floor
//	interval: -1 leave unchanged, else the flush interval in ms
//	resend: -1 leave unchanged, 0 disable fast resend (default), >0 duplicate-ack threshold
//	nocwnd: -1 leave unchanged, 0 normal congestion control (default), 1 disable it
func (c *Connection) SetNoDelay(nodelay, interval, resend, nocwnd int) {
	if nodelay >= 0 {
		c.nodelay = uint32(nodelay)
		if nodelay != 0 {
			c.rxMinrto = RTONoDelay
		} else {
			c.rxMinrto = RTOMin
		}
	}
	if interval >= 0 {
		c.SetInterval(interval)
	}
	if resend >= 0 {
		c.fastresend = int32(resend)
	}
	if nocwnd >= 0 {
		c.nocwnd = nocwnd != 0
	}
}

// SetStreamMode toggles coalescing of Send submissions into the tail of
// snd_queue (stream mode) versus always fragmenting a submission into its
// own message (message mode, the default).
func (c *Connection) SetStreamMode(enable bool) {
	c.stream = enable
}
