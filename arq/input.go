package arq

// Input parses zero or more concatenated segments out of data, applying
// cumulative acks, selective acks, RTT samples and pushed payloads to the
// Connection's state. current is the host's current millisecond clock,
// used to compute ACK RTT samples.
//
// A malformed segment anywhere in data fails the whole call with the
// corresponding error (ErrWrongConv, ErrTruncated, ErrBadCmd), but any
// ACK/PUSH effects already applied by segments preceding the bad one are
// not rolled back: every mutation Input performs is individually
// monotonic, so leaving it applied is safe. The returned InputStats
// reflects whatever was processed before a failure, if any.
func (c *Connection) Input(data []byte, current uint32) (InputStats, error) {
	sndUnaAtEntry := c.sndUna

	var stats InputStats
	var maxack uint32
	var sawAck bool

	for len(data) > 0 {
		if len(data) < Overhead {
			return stats, ErrTruncated
		}
		h := decodeHeader(data)
		if h.conv != c.conv {
			return stats, ErrWrongConv
		}
		if uint32(len(data)-Overhead) < h.len {
			return stats, ErrTruncated
		}
		if !validCmd(h.cmd) {
			return stats, ErrBadCmd
		}
		payload := data[Overhead : Overhead+int(h.len)]
		data = data[Overhead+int(h.len):]

		c.rmtWnd = uint32(h.wnd)
		c.parseUna(h.una)
		c.shrinkBuf()

		switch h.cmd {
		case CmdAck:
			if timediff(current, h.ts) >= 0 {
				c.updateAck(timediff(current, h.ts))
			}
			c.parseAck(h.sn)
			c.shrinkBuf()
			if !sawAck {
				sawAck = true
				maxack = h.sn
			} else if timediff(h.sn, maxack) > 0 {
				maxack = h.sn
			}
		case CmdPush:
			if timediff(h.sn, c.rcvNxt+c.rcvWnd) < 0 {
				c.ackPush(h.sn, h.ts)
				if timediff(h.sn, c.rcvNxt) >= 0 {
					seg := segment{
						conv: h.conv,
						cmd:  h.cmd,
						frg:  h.frg,
						wnd:  h.wnd,
						ts:   h.ts,
						sn:   h.sn,
						una:  h.una,
						data: append([]byte(nil), payload...),
					}
					if c.parseData(&seg) {
						stats.Repeat++
					}
				}
			}
		case CmdWask:
			c.probe |= AskTell
		case CmdWins:
			// rmt_wnd already absorbed above; nothing else to do.
		}
	}

	if sawAck {
		c.parseFastack(maxack)
	}

	if timediff(c.sndUna, sndUnaAtEntry) > 0 {
		c.growCwnd()
	}
	return stats, nil
}

// updateAck feeds one RTT sample into the Jacobson/Karels estimator and
// recomputes rx_rto from it.
func (c *Connection) updateAck(rtt int32) {
	if c.rxSrtt == 0 {
		c.rxSrtt = rtt
		c.rxRttvar = rtt / 2
	} else {
		delta := rtt - c.rxSrtt
		if delta < 0 {
			delta = -delta
		}
		c.rxRttvar = (3*c.rxRttvar + delta) / 4
		c.rxSrtt = (7*c.rxSrtt + rtt) / 8
		if c.rxSrtt < 1 {
			c.rxSrtt = 1
		}
	}
	rto := uint32(c.rxSrtt) + max32(c.interval, uint32(c.rxRttvar)*4)
	c.rxRto = bound32(c.rxMinrto, rto, RTOMax)
}

// shrinkBuf refreshes snd_una from the front of snd_buf, or from snd_nxt if
// snd_buf is empty, preserving invariant 1.
func (c *Connection) shrinkBuf() {
	if len(c.sndBuf) > 0 {
		c.sndUna = c.sndBuf[0].sn
	} else {
		c.sndUna = c.sndNxt
	}
}

// parseUna drops every segment from the front of snd_buf cumulatively
// acknowledged by una. Per the reference design, a segment with
// sn == una is not dropped: una is "next expected", so that segment is
// still in flight from the peer's point of view.
func (c *Connection) parseUna(una uint32) {
	count := 0
	for k := range c.sndBuf {
		if timediff(una, c.sndBuf[k].sn) > 0 {
			count++
		} else {
			break
		}
	}
	c.sndBuf = c.sndBuf[count:]
}

// parseAck removes the single segment matching sn from snd_buf, a no-op if
// sn falls outside [snd_una, snd_nxt).
func (c *Connection) parseAck(sn uint32) {
	if timediff(sn, c.sndUna) < 0 || timediff(sn, c.sndNxt) >= 0 {
		return
	}
	for k := range c.sndBuf {
		if sn == c.sndBuf[k].sn {
			c.sndBuf = append(c.sndBuf[:k], c.sndBuf[k+1:]...)
			return
		}
		if timediff(sn, c.sndBuf[k].sn) < 0 {
			break
		}
	}
}

// parseFastack bumps the fastack counter of every segment in snd_buf still
// below sn, arming the fast-retransmit threshold check in Flush.
func (c *Connection) parseFastack(sn uint32) {
	if timediff(sn, c.sndUna) < 0 || timediff(sn, c.sndNxt) >= 0 {
		return
	}
	for k := range c.sndBuf {
		if timediff(sn, c.sndBuf[k].sn) < 0 {
			break
		} else if sn != c.sndBuf[k].sn {
			c.sndBuf[k].fastack++
		}
	}
}

// ackPush schedules an (sn, ts) pair for acknowledgement on the next flush.
func (c *Connection) ackPush(sn, ts uint32) {
	c.acklist = append(c.acklist, ackItem{sn, ts})
}

// parseData inserts a newly-arrived PUSH segment into rcv_buf in sorted
// order (scanning from the tail, since arrivals tend to be near it),
// dropping it if out of window or an exact duplicate, then promotes any
// now-contiguous run into rcv_queue. It reports whether newseg was dropped
// as an exact duplicate of a segment already held in rcv_buf.
func (c *Connection) parseData(newseg *segment) bool {
	sn := newseg.sn
	if timediff(sn, c.rcvNxt+c.rcvWnd) >= 0 || timediff(sn, c.rcvNxt) < 0 {
		return false
	}

	n := len(c.rcvBuf) - 1
	insertAt := 0
	repeat := false
	for i := n; i >= 0; i-- {
		if c.rcvBuf[i].sn == sn {
			repeat = true
			break
		}
		if timediff(sn, c.rcvBuf[i].sn) > 0 {
			insertAt = i + 1
			break
		}
	}

	if !repeat {
		if insertAt == n+1 {
			c.rcvBuf = append(c.rcvBuf, *newseg)
		} else {
			c.rcvBuf = append(c.rcvBuf, segment{})
			copy(c.rcvBuf[insertAt+1:], c.rcvBuf[insertAt:])
			c.rcvBuf[insertAt] = *newseg
		}
	}

	c.promoteFromRcvBuf()
	return repeat
}

// growCwnd implements the slow-start/congestion-avoidance window growth
// triggered whenever snd_una has advanced during this Input call.
func (c *Connection) growCwnd() {
	if c.cwnd >= c.rmtWnd {
		return
	}
	mss := c.mss
	if c.cwnd < c.ssthresh {
		c.cwnd++
		c.incr += mss
	} else {
		if c.incr < mss {
			c.incr = mss
		}
		c.incr += mss*mss/c.incr + mss/16
		if (c.cwnd+1)*mss <= c.incr {
			c.cwnd++
		}
	}
	if c.cwnd > c.rmtWnd {
		c.cwnd = c.rmtWnd
		c.incr = c.rmtWnd * mss
	}
}
