package arq

// wndUnused returns the sender's currently advertised free receive window,
// in segments.
func (c *Connection) wndUnused() uint32 {
	if len(c.rcvQueue) < int(c.rcvWnd) {
		return c.rcvWnd - uint32(len(c.rcvQueue))
	}
	return 0
}

// Flush assembles and emits outgoing datagrams: pending acknowledgements,
// window probes, newly-admitted segments, and any due retransmissions,
// packed up to mtu bytes per call to output. Flush is invoked by Update at
// most once per interval ms; hosts needing to flush ack-only traffic
// immediately (e.g. on an empty remote window) may call it directly. The
// returned FlushStats counts only retransmissions, for a host that wants to
// track loss; callers uninterested in that may discard it.
func (c *Connection) Flush(current uint32) FlushStats {
	var scratch segment
	scratch.conv = c.conv
	scratch.cmd = CmdAck
	scratch.wnd = uint16(c.wndUnused())
	scratch.una = c.rcvNxt

	buf := c.buffer[:0]

	// Emit pending acknowledgements, filtering out any whose sn has
	// already been superseded by rcv_nxt advancing past it, except the
	// very last queued one, which is always kept.
	for i, ack := range c.acklist {
		if timediff(ack.sn, c.rcvNxt) >= 0 || i == len(c.acklist)-1 {
			scratch.sn, scratch.ts = ack.sn, ack.ts
			if len(buf)+scratch.encodedLen() > int(c.mtu) {
				c.output(buf)
				buf = c.buffer[:0]
			}
			buf = scratch.encode(buf)
		}
	}
	c.acklist = nil

	// Window-probe backoff: grows exponentially-ish while rmt_wnd stays
	// at zero, resets the moment the peer reports room again.
	if c.rmtWnd == 0 {
		if c.probeWait == 0 {
			c.probeWait = ProbeInit
			c.tsProbe = current + c.probeWait
		} else if timediff(current, c.tsProbe) >= 0 {
			c.probeWait += c.probeWait / 2
			if c.probeWait > ProbeLimit {
				c.probeWait = ProbeLimit
			}
			c.tsProbe = current + c.probeWait
			c.probe |= AskSend
		}
	} else {
		c.tsProbe = 0
		c.probeWait = 0
	}

	if c.probe&AskSend != 0 {
		scratch.cmd = CmdWask
		if len(buf)+scratch.encodedLen() > int(c.mtu) {
			c.output(buf)
			buf = c.buffer[:0]
		}
		buf = scratch.encode(buf)
	}
	if c.probe&AskTell != 0 {
		scratch.cmd = CmdWins
		if len(buf)+scratch.encodedLen() > int(c.mtu) {
			c.output(buf)
			buf = c.buffer[:0]
		}
		buf = scratch.encode(buf)
	}
	c.probe = 0

	// Admit new segments from snd_queue up to the effective window.
	cwndEff := min32(c.sndWnd, c.rmtWnd)
	if !c.nocwnd {
		cwndEff = min32(c.cwnd, cwndEff)
	}
	newCount := 0
	for newCount < len(c.sndQueue) {
		if timediff(c.sndNxt, c.sndUna+cwndEff) >= 0 {
			break
		}
		seg := c.sndQueue[newCount]
		seg.conv = c.conv
		seg.cmd = CmdPush
		seg.sn = c.sndNxt
		c.sndBuf = append(c.sndBuf, seg)
		c.sndNxt++
		newCount++
	}
	c.sndQueue = c.sndQueue[newCount:]

	resent := uint32(c.fastresend)
	if c.fastresend <= 0 {
		resent = ^uint32(0)
	}

	change := false
	lost := false
	var lostCount, fastRetransCount uint32

	for k := range c.sndBuf {
		seg := &c.sndBuf[k]
		needsend := false

		switch {
		case seg.xmit == 0:
			needsend = true
			seg.xmit = 1
			seg.rto = c.rxRto
			rtomin := uint32(0)
			if c.nodelay == 0 {
				rtomin = c.rxRto / 8
			}
			seg.resendts = current + seg.rto + rtomin
		case timediff(current, seg.resendts) >= 0:
			needsend = true
			seg.xmit++
			c.xmit++
			if c.nodelay == 0 {
				seg.rto += c.rxRto
			} else {
				seg.rto += c.rxRto / 2
			}
			seg.resendts = current + seg.rto
			lost = true
			lostCount++
		case seg.fastack >= resent:
			needsend = true
			seg.xmit++
			seg.fastack = 0
			seg.resendts = current + seg.rto
			change = true
			fastRetransCount++
		}

		if !needsend {
			continue
		}

		seg.ts = current
		seg.wnd = scratch.wnd
		seg.una = c.rcvNxt

		if len(buf)+seg.encodedLen() > int(c.mtu) {
			c.output(buf)
			buf = c.buffer[:0]
		}
		buf = seg.encode(buf)

		if seg.xmit >= c.deadLink {
			c.state = -1
		}
	}

	if len(buf) > 0 {
		c.output(buf)
	}

	if change {
		inflight := c.sndNxt - c.sndUna
		c.ssthresh = max32(inflight/2, ThreshMin)
		c.cwnd = c.ssthresh + resent
		c.incr = c.cwnd * c.mss
	} else if lost {
		c.ssthresh = max32(cwndEff/2, ThreshMin)
		c.cwnd = 1
		c.incr = c.mss
	}

	if c.cwnd < 1 {
		c.cwnd = 1
		c.incr = c.mss
	}

	return FlushStats{
		Retrans:     lostCount + fastRetransCount,
		Lost:        lostCount,
		FastRetrans: fastRetransCount,
	}
}

// Update drives the Connection's clock: on the first call it bootstraps
// ts_flush to current; thereafter, once current has reached ts_flush (or
// drifted from it by more than 10s in either direction, in which case
// ts_flush resyncs to current), it advances ts_flush by interval and calls
// Flush. Call Update repeatedly at the host's tick cadence, or use Check
// to learn the next necessary call time.
func (c *Connection) Update(current uint32) {
	if c.updated == 0 {
		c.updated = 1
		c.tsFlush = current
	}

	slap := timediff(current, c.tsFlush)
	if slap >= 10000 || slap < -10000 {
		c.tsFlush = current
		slap = 0
	}

	if slap >= 0 {
		c.tsFlush += c.interval
		if timediff(current, c.tsFlush) >= 0 {
			c.tsFlush = current + c.interval
		}
		c.Flush(current)
	}
}

// Check returns the earliest timestamp at which Update needs to be called
// again: the minimum of the next ts_flush and every pending segment's
// resendts, clamped so the returned delay never exceeds interval. Hosts
// may use this to avoid unnecessary ticks.
func (c *Connection) Check(current uint32) uint32 {
	if c.updated == 0 {
		return current
	}

	tsFlush := c.tsFlush
	if d := timediff(current, tsFlush); d >= 10000 || d < -10000 {
		tsFlush = current
	}
	if timediff(current, tsFlush) >= 0 {
		return current
	}

	tmFlush := timediff(tsFlush, current)
	tmPacket := int32(0x7fffffff)
	for k := range c.sndBuf {
		diff := timediff(c.sndBuf[k].resendts, current)
		if diff <= 0 {
			return current
		}
		if diff < tmPacket {
			tmPacket = diff
		}
	}

	minimal := tmPacket
	if tmPacket >= tmFlush {
		minimal = tmFlush
	}
	if uint32(minimal) >= c.interval {
		minimal = int32(c.interval)
	}
	return current + uint32(minimal)
}
