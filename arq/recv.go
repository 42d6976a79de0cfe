package arq

// PeekSize returns the length of the next complete message in rcv_queue
// without consuming it, or ErrNotReady if no complete message is present
// yet. A message is complete once rcv_queue holds front.frg+1 segments
// starting from the front.
func (c *Connection) PeekSize() (int, error) {
	if len(c.rcvQueue) == 0 {
		return 0, ErrNotReady
	}

	front := &c.rcvQueue[0]
	if front.frg == 0 {
		return len(front.data), nil
	}

	if len(c.rcvQueue) < int(front.frg)+1 {
		return 0, ErrNotReady
	}

	length := 0
	for k := range c.rcvQueue {
		seg := &c.rcvQueue[k]
		length += len(seg.data)
		if seg.frg == 0 {
			break
		}
	}
	return length, nil
}

// Recv drains and returns the next complete message from rcv_queue, or
// ErrNotReady if none is available. After draining it promotes any
// contiguous segments newly eligible at the front of rcv_buf into
// rcv_queue, advancing rcv_nxt. If rcv_queue had been saturated
// (len >= rcv_wnd) before this drain, the receive window has likely been
// advertised as closed to the peer; Recv then requests an unsolicited
// WINS on the next flush so the peer is woken from any zero-window
// backoff it has entered.
func (c *Connection) Recv() ([]byte, error) {
	if len(c.rcvQueue) == 0 {
		return nil, ErrNotReady
	}

	size, err := c.PeekSize()
	if err != nil {
		return nil, err
	}

	wasSaturated := len(c.rcvQueue) >= int(c.rcvWnd)

	out := make([]byte, 0, size)
	count := 0
	for k := range c.rcvQueue {
		seg := &c.rcvQueue[k]
		out = append(out, seg.data...)
		count++
		if seg.frg == 0 {
			break
		}
	}
	c.rcvQueue = c.rcvQueue[count:]

	c.promoteFromRcvBuf()

	if len(c.rcvQueue) < int(c.rcvWnd) && wasSaturated {
		c.probe |= AskTell
	}
	return out, nil
}

// promoteFromRcvBuf moves the contiguous run of segments at the front of
// rcv_buf whose sn equals rcv_nxt into rcv_queue, bounded by rcv_wnd. It is
// the single invariant-preserving step shared by Recv and parse_data.
func (c *Connection) promoteFromRcvBuf() {
	count := 0
	for k := range c.rcvBuf {
		seg := &c.rcvBuf[k]
		if seg.sn == c.rcvNxt && len(c.rcvQueue) < int(c.rcvWnd) {
			c.rcvNxt++
			count++
		} else {
			break
		}
	}
	c.rcvQueue = append(c.rcvQueue, c.rcvBuf[:count]...)
	c.rcvBuf = c.rcvBuf[count:]
}
