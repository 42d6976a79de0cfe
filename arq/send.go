package arq

// Send queues buf for transmission. In message mode (the default) it
// always fragments buf into its own message of ceil(len(buf)/mss)
// segments, counting down frg from count-1 to 0; Send fails with
// ErrMessageTooLarge if that count would reach WindowRecv, since the
// receive window must be able to hold every fragment of the largest
// message it promises to admit. In stream mode, buf first tops up the
// tail segment of snd_queue if it has spare capacity, then any remainder
// is split into fresh mss-sized segments all carrying frg 0.
//
// Segments produced here carry only frg and data; sn, cmd and the timing
// fields are assigned when Flush moves them into snd_buf.
func (c *Connection) Send(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}

	if c.stream {
		if n := len(c.sndQueue); n > 0 {
			old := &c.sndQueue[n-1]
			if len(old.data) < int(c.mss) {
				capacity := int(c.mss) - len(old.data)
				extend := capacity
				if len(buf) < capacity {
					extend = len(buf)
				}
				merged := make([]byte, len(old.data)+extend)
				copy(merged, old.data)
				copy(merged[len(old.data):], buf[:extend])
				old.data = merged
				old.frg = 0
				buf = buf[extend:]
			}
		}
		if len(buf) == 0 {
			return nil
		}
	}

	var count int
	if len(buf) <= int(c.mss) {
		count = 1
	} else {
		count = (len(buf) + int(c.mss) - 1) / int(c.mss)
	}
	if count >= WindowRecv {
		return ErrMessageTooLarge
	}

	for i := 0; i < count; i++ {
		size := len(buf)
		if size > int(c.mss) {
			size = int(c.mss)
		}
		data := make([]byte, size)
		copy(data, buf[:size])
		seg := segment{data: data}
		if !c.stream {
			seg.frg = uint8(count - i - 1)
		}
		c.sndQueue = append(c.sndQueue, seg)
		buf = buf[size:]
	}
	return nil
}
