package arq

import (
	"bytes"
	"testing"
)

// loopback wires two Connections' Output callbacks directly into each
// other's Input, driven manually by the test instead of a real substrate.
type loopback struct {
	a, b *Connection
	drop func(fromA bool) bool
	ms   uint32
}

func newLoopback(t *testing.T) *loopback {
	t.Helper()
	lb := &loopback{}
	lb.a = NewConnection(123, func(buf []byte) {
		if lb.drop != nil && lb.drop(true) {
			return
		}
		data := append([]byte(nil), buf...)
		if _, err := lb.b.Input(data, lb.ms); err != nil {
			t.Fatalf("b.Input: %v", err)
		}
	})
	lb.b = NewConnection(123, func(buf []byte) {
		if lb.drop != nil && lb.drop(false) {
			return
		}
		data := append([]byte(nil), buf...)
		if _, err := lb.a.Input(data, lb.ms); err != nil {
			t.Fatalf("a.Input: %v", err)
		}
	})
	return lb
}

func (lb *loopback) tick(n int) {
	for i := 0; i < n; i++ {
		lb.ms += 100
		lb.a.Update(lb.ms)
		lb.b.Update(lb.ms)
	}
}

func TestSendRecvSmallMessage(t *testing.T) {
	lb := newLoopback(t)
	if err := lb.a.Send([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	lb.tick(10)

	got, err := lb.b.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("got %q", got)
	}
	if n := lb.a.Waitsnd(); n != 0 {
		t.Fatalf("waitsnd = %d, want 0", n)
	}
}

func TestSendRecvLargeMessage(t *testing.T) {
	lb := newLoopback(t)
	msg := bytes.Repeat([]byte("0123456789abcdef"), 640) // 10240 bytes
	if err := lb.a.Send(msg); err != nil {
		t.Fatal(err)
	}

	var out []byte
	for i := 0; i < 200 && out == nil; i++ {
		lb.tick(1)
		if got, err := lb.b.Recv(); err == nil {
			out = got
		} else if err != ErrNotReady {
			t.Fatalf("Recv: %v", err)
		}
	}
	if !bytes.Equal(out, msg) {
		t.Fatalf("message mismatch: got %d bytes, want %d", len(out), len(msg))
	}
}

func TestMessageTooLarge(t *testing.T) {
	c := NewConnection(1, func([]byte) {})
	big := make([]byte, int(c.mss)*(WindowRecv-1)+1) // needs WindowRecv fragments
	if err := c.Send(big); err != ErrMessageTooLarge {
		t.Fatalf("Send: got %v, want ErrMessageTooLarge", err)
	}
	ok := make([]byte, int(c.mss)*(WindowRecv-2)+1) // needs WindowRecv-1 fragments
	if err := c.Send(ok); err != nil {
		t.Fatalf("Send: %v", err)
	}
}

func TestSendEmptyStreamIsNoop(t *testing.T) {
	c := NewConnection(1, func([]byte) {})
	c.SetStreamMode(true)
	if err := c.Send(nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if c.Waitsnd() != 0 {
		t.Fatalf("waitsnd = %d, want 0", c.Waitsnd())
	}
}

func TestInputWrongConv(t *testing.T) {
	b := NewConnection(2, func([]byte) {})

	var captured []byte
	producer := NewConnection(1, func(buf []byte) { captured = append([]byte(nil), buf...) })
	if err := producer.Send([]byte("x")); err != nil {
		t.Fatal(err)
	}
	producer.Flush(0) // cwnd starts at 0: this flush only raises it to 1
	producer.Flush(0)

	if _, err := b.Input(captured, 0); err != ErrWrongConv {
		t.Fatalf("Input: got %v, want ErrWrongConv", err)
	}
}

func TestInputTruncated(t *testing.T) {
	c := NewConnection(1, func([]byte) {})
	short := make([]byte, Overhead-1)
	if _, err := c.Input(short, 0); err != ErrTruncated {
		t.Fatalf("Input: got %v, want ErrTruncated", err)
	}
}

func TestInputBadCmd(t *testing.T) {
	producer := NewConnection(1, func([]byte) {})
	if err := producer.Send([]byte("x")); err != nil {
		t.Fatal(err)
	}
	var buf []byte
	producer.output = func(b []byte) { buf = append([]byte(nil), b...) }
	producer.Flush(0) // cwnd starts at 0: this flush only raises it to 1
	producer.Flush(0)
	buf[4] = 99 // corrupt cmd byte

	c := NewConnection(1, func([]byte) {})
	if _, err := c.Input(buf, 0); err != ErrBadCmd {
		t.Fatalf("Input: got %v, want ErrBadCmd", err)
	}
}

func TestInputTruncatedPreservesPriorEffects(t *testing.T) {
	producer := NewConnection(1, func([]byte) {})
	var segs [][]byte
	producer.output = func(b []byte) { segs = append(segs, append([]byte(nil), b...)) }
	if err := producer.Send([]byte("first")); err != nil {
		t.Fatal(err)
	}
	producer.Flush(0) // cwnd starts at 0: this flush only raises it to 1
	producer.Flush(0)

	c := NewConnection(1, func([]byte) {})
	full := append([]byte(nil), segs[0]...)
	truncated := append(full, byte(1)) // one stray byte: a second, truncated header
	if _, err := c.Input(truncated, 0); err != ErrTruncated {
		t.Fatalf("Input: got %v, want ErrTruncated", err)
	}
	if len(c.rcvBuf)+len(c.rcvQueue) == 0 {
		t.Fatalf("expected first valid segment's effect to be retained")
	}
}

func TestPeekSizeNotReady(t *testing.T) {
	c := NewConnection(1, func([]byte) {})
	if _, err := c.PeekSize(); err != ErrNotReady {
		t.Fatalf("PeekSize: got %v, want ErrNotReady", err)
	}
	if _, err := c.Recv(); err != ErrNotReady {
		t.Fatalf("Recv: got %v, want ErrNotReady", err)
	}
}

func TestCwndFloorAfterAck(t *testing.T) {
	lb := newLoopback(t)
	if err := lb.a.Send([]byte("probe")); err != nil {
		t.Fatal(err)
	}
	lb.tick(5)
	if lb.a.cwnd < 1 {
		t.Fatalf("cwnd = %d, want >= 1", lb.a.cwnd)
	}
	if lb.a.ssthresh < ThreshMin {
		t.Fatalf("ssthresh = %d, want >= %d", lb.a.ssthresh, ThreshMin)
	}
}

func TestLossTriggersBackoffAndRecovery(t *testing.T) {
	lb := newLoopback(t)
	toggled := false
	lb.drop = func(fromA bool) bool {
		if !fromA {
			return false
		}
		toggled = !toggled
		return toggled
	}

	msg := bytes.Repeat([]byte("x"), 4000)
	if err := lb.a.Send(msg); err != nil {
		t.Fatal(err)
	}

	sawGrow, sawShrink := false, false
	var out []byte
	for i := 0; i < 30; i++ {
		lb.tick(1)
		if lb.a.cwnd > 1 {
			sawGrow = true
		} else if sawGrow {
			sawShrink = true
		}
		if i == 20 {
			lb.drop = nil
		}
		if got, err := lb.b.Recv(); err == nil {
			out = got
			break
		}
	}
	for i := 0; i < 200 && out == nil; i++ {
		lb.tick(1)
		if got, err := lb.b.Recv(); err == nil {
			out = got
		}
	}
	if !bytes.Equal(out, msg) {
		t.Fatalf("message not delivered intact under loss")
	}
	if !sawShrink {
		t.Fatalf("expected cwnd to shrink to 1 at least once under loss")
	}
	for i := 0; i < 200 && lb.a.Waitsnd() > 0; i++ {
		lb.tick(1)
	}
	if n := lb.a.Waitsnd(); n != 0 {
		t.Fatalf("waitsnd = %d, want 0 eventually", n)
	}
}

func TestWindowProbeOnZeroRemoteWindow(t *testing.T) {
	c := NewConnection(1, func([]byte) {})
	c.rmtWnd = 0
	var sawWask bool
	c.output = func(buf []byte) {
		for len(buf) > 0 {
			h := decodeHeader(buf)
			if h.cmd == CmdWask {
				sawWask = true
			}
			buf = buf[Overhead+int(h.len):]
		}
	}
	if err := c.Send([]byte("x")); err != nil {
		t.Fatal(err)
	}
	var ms uint32
	for i := 0; i < 5 && !sawWask; i++ {
		ms += ProbeInit + 1
		c.Update(ms)
	}
	if !sawWask {
		t.Fatalf("expected a WASK probe while rmt_wnd == 0")
	}
}

func TestSetMTUInvalid(t *testing.T) {
	c := NewConnection(1, func([]byte) {})
	if err := c.SetMTU(10); err != ErrInvalidConfig {
		t.Fatalf("SetMTU: got %v, want ErrInvalidConfig", err)
	}
}

func TestSetIntervalClamped(t *testing.T) {
	c := NewConnection(1, func([]byte) {})
	c.SetInterval(1)
	if c.interval != 10 {
		t.Fatalf("interval = %d, want 10", c.interval)
	}
	c.SetInterval(100000)
	if c.interval != 5000 {
		t.Fatalf("interval = %d, want 5000", c.interval)
	}
}

func TestSetWindowSizeFloor(t *testing.T) {
	c := NewConnection(1, func([]byte) {})
	c.SetWindowSize(16, 1)
	if c.sndWnd != 16 {
		t.Fatalf("sndWnd = %d, want 16", c.sndWnd)
	}
	if c.rcvWnd != WindowRecv {
		t.Fatalf("rcvWnd = %d, want floor %d", c.rcvWnd, WindowRecv)
	}
}

func TestSequenceWraparound(t *testing.T) {
	lb := newLoopback(t)
	lb.a.sndNxt = ^uint32(0) - 2
	lb.a.sndUna = lb.a.sndNxt
	lb.b.rcvNxt = lb.a.sndNxt

	if err := lb.a.Send([]byte("wrap")); err != nil {
		t.Fatal(err)
	}
	lb.tick(10)
	got, err := lb.b.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if string(got) != "wrap" {
		t.Fatalf("got %q", got)
	}
}
