// Package session layers a net.Conn/net.Listener substrate on top of the
// arq engine: packet I/O over net.PacketConn, a background emitter and
// updater, and optional packet encryption. It is the "external
// collaborator" the arq package itself deliberately knows nothing about.
package session

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/leenjewel/goarq/arq"
	"github.com/leenjewel/goarq/metrics"
)

const (
	mtuLimit     = 2048
	rxQueueLimit = 8192

	errBrokenPipe       = "broken pipe"
	errInvalidOperation = "invalid operation"
)

type errTimeout struct{ error }

func (errTimeout) Timeout() bool   { return true }
func (errTimeout) Temporary() bool { return true }
func (errTimeout) Error() string   { return "i/o timeout" }

type (
	setReadBuffer interface {
		SetReadBuffer(bytes int) error
	}
	setWriteBuffer interface {
		SetWriteBuffer(bytes int) error
	}
)

// Session is a net.Conn backed by one arq.Connection multiplexed over a
// net.PacketConn. Unlike arq.Connection itself, Session is safe for
// concurrent Read/Write/Close from separate goroutines.
type Session struct {
	conv uint32
	conn *arq.Connection

	listener *Listener // set if accepted server-side
	pconn    net.PacketConn
	remote   net.Addr
	block    BlockCrypt

	rd, wd time.Time

	sockbuf []byte // bytes already Recv'd but not yet drained by Read

	die          chan struct{}
	dieOnce      sync.Once
	chReadEvent  chan struct{}
	chWriteEvent chan struct{}

	ackNoDelay bool
	closed     bool

	mu             sync.Mutex
	updateInterval int32
}

func newSession(conv uint32, l *Listener, pconn net.PacketConn, remote net.Addr, block BlockCrypt) *Session {
	s := &Session{
		conv:           conv,
		listener:       l,
		pconn:          pconn,
		remote:         remote,
		block:          block,
		die:            make(chan struct{}),
		chReadEvent:    make(chan struct{}, 1),
		chWriteEvent:   make(chan struct{}, 1),
		updateInterval: arq.Interval,
	}
	s.conn = arq.NewConnection(conv, func(buf []byte) {
		s.output(buf)
	})
	s.conn.SetWindowSize(defaultWndSize, defaultWndSize)
	metrics.Default.CurrEstab.Add(1)
	return s
}

// Read implements net.Conn.
func (s *Session) Read(b []byte) (int, error) {
	for {
		s.mu.Lock()
		if len(s.sockbuf) > 0 {
			n := copy(b, s.sockbuf)
			s.sockbuf = s.sockbuf[n:]
			s.mu.Unlock()
			metrics.Default.BytesReceived.Add(uint64(n))
			return n, nil
		}
		if s.closed {
			s.mu.Unlock()
			return 0, errors.New(errBrokenPipe)
		}
		if !s.rd.IsZero() && time.Now().After(s.rd) {
			s.mu.Unlock()
			return 0, errTimeout{}
		}

		if n, err := s.conn.PeekSize(); err == nil {
			out, _ := s.conn.Recv()
			var copied int
			if len(b) >= n {
				copied = copy(b, out)
			} else {
				copied = copy(b, out)
				s.sockbuf = out[copied:]
			}
			s.mu.Unlock()
			metrics.Default.BytesReceived.Add(uint64(copied))
			return copied, nil
		}

		var timeout <-chan time.Time
		var timer *time.Timer
		if !s.rd.IsZero() {
			timer = time.NewTimer(time.Until(s.rd))
			timeout = timer.C
		}
		s.mu.Unlock()

		select {
		case <-s.chReadEvent:
		case <-timeout:
		case <-s.die:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// Write implements net.Conn. It chunks b into mss-sized submissions bounded
// by waitsnd() < cwnd(), mirroring UDPSession.Write in the teacher's
// sess.go, so that a single Write of arbitrary size never trips
// arq.ErrMessageTooLarge.
func (s *Session) Write(b []byte) (int, error) {
	sent := 0
	for sent < len(b) {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return sent, errors.New(errBrokenPipe)
		}
		if !s.wd.IsZero() && time.Now().After(s.wd) {
			s.mu.Unlock()
			return sent, errTimeout{}
		}

		if s.conn.Waitsnd() < int(s.conn.Cwnd()) {
			end := sent + s.conn.MSS()
			if end > len(b) {
				end = len(b)
			}
			chunk := b[sent:end]
			if err := s.conn.Send(chunk); err != nil {
				s.mu.Unlock()
				return sent, errors.WithStack(err)
			}
			recordFlushStats(s.conn.Flush(nowMs()))
			sent += len(chunk)
			s.mu.Unlock()
			metrics.Default.BytesSent.Add(uint64(len(chunk)))
			continue
		}

		var timeout <-chan time.Time
		var timer *time.Timer
		if !s.wd.IsZero() {
			timer = time.NewTimer(time.Until(s.wd))
			timeout = timer.C
		}
		s.mu.Unlock()

		select {
		case <-s.chWriteEvent:
		case <-timeout:
		case <-s.die:
		}
		if timer != nil {
			timer.Stop()
		}
	}
	return sent, nil
}

// Close implements net.Conn.
func (s *Session) Close() error {
	var already bool
	s.dieOnce.Do(func() { close(s.die) })

	s.mu.Lock()
	already = s.closed
	s.closed = true
	s.mu.Unlock()
	if already {
		return errors.New(errBrokenPipe)
	}

	metrics.Default.CurrEstab.Add(^uint64(0))
	if s.listener != nil {
		s.listener.forget(s.remote)
		return nil
	}
	return s.pconn.Close()
}

func (s *Session) LocalAddr() net.Addr  { return s.pconn.LocalAddr() }
func (s *Session) RemoteAddr() net.Addr { return s.remote }

func (s *Session) SetDeadline(t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rd, s.wd = t, t
	return nil
}

func (s *Session) SetReadDeadline(t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rd = t
	return nil
}

func (s *Session) SetWriteDeadline(t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wd = t
	return nil
}

// SetWindowSize sets the maximum send/receive window, in segments.
func (s *Session) SetWindowSize(snd, rcv int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWindowSize(snd, rcv)
}

// SetMTU sets the maximum transmission unit of the underlying substrate.
func (s *Session) SetMTU(mtu int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.SetMTU(mtu - s.headerSize())
}

// SetStreamMode toggles stream-mode coalescing.
func (s *Session) SetStreamMode(enable bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetStreamMode(enable)
}

// SetACKNoDelay, when true, is reserved for a future fast-ack-flush path;
// currently all acks flush on the regular update cadence.
func (s *Session) SetACKNoDelay(nodelay bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ackNoDelay = nodelay
}

// SetNoDelay calls through to arq.Connection.SetNoDelay.
func (s *Session) SetNoDelay(nodelay, interval, resend, nocwnd int) {
	s.mu.Lock()
	s.conn.SetNoDelay(nodelay, interval, resend, nocwnd)
	s.mu.Unlock()
	if interval >= 0 {
		atomic.StoreInt32(&s.updateInterval, int32(interval))
	}
}

// SetReadBuffer sets the underlying socket's read buffer, where supported.
func (s *Session) SetReadBuffer(bytes int) error {
	if s.listener == nil {
		if nc, ok := s.pconn.(setReadBuffer); ok {
			return nc.SetReadBuffer(bytes)
		}
	}
	return errors.New(errInvalidOperation)
}

// SetWriteBuffer sets the underlying socket's write buffer, where supported.
func (s *Session) SetWriteBuffer(bytes int) error {
	if s.listener == nil {
		if nc, ok := s.pconn.(setWriteBuffer); ok {
			return nc.SetWriteBuffer(bytes)
		}
	}
	return errors.New(errInvalidOperation)
}

// GetConv returns the session's conversation id.
func (s *Session) GetConv() uint32 { return s.conv }

func (s *Session) headerSize() int {
	if s.block != nil {
		return cryptHeaderSize
	}
	return 0
}

func (s *Session) notifyReadEvent() {
	select {
	case s.chReadEvent <- struct{}{}:
	default:
	}
}

func (s *Session) notifyWriteEvent() {
	select {
	case s.chWriteEvent <- struct{}{}:
	default:
	}
}

// output is the arq.Output callback: it optionally encrypts the wire bytes
// and hands them to the shared emitter.
func (s *Session) output(buf []byte) {
	if s.block == nil {
		defaultEmitter.emit(emitPacket{pconn: s.pconn, to: s.remote, data: append([]byte(nil), buf...)})
		return
	}

	ext := make([]byte, cryptHeaderSize+len(buf))
	copy(ext[cryptHeaderSize:], buf)
	sealCrypt(s.block, ext)
	defaultEmitter.emit(emitPacket{pconn: s.pconn, to: s.remote, data: ext})
}

// recordFlushStats feeds one Flush call's retransmission counts into the
// shared metrics, the way kcp.go writes straight into DefaultSnmp — done
// here instead, so the arq package itself stays free of any metrics
// dependency.
func recordFlushStats(st arq.FlushStats) {
	if st.Retrans > 0 {
		metrics.Default.RetransSegs.Add(uint64(st.Retrans))
	}
	if st.Lost > 0 {
		metrics.Default.LostSegs.Add(uint64(st.Lost))
	}
	if st.FastRetrans > 0 {
		metrics.Default.FastRetrans.Add(uint64(st.FastRetrans))
	}
}

// update flushes the underlying Connection and wakes a blocked Write if
// room has opened up. It returns the Session's configured update interval;
// the shared updater calls update on its fixed 10 ms tick and does not use
// this value.
func (s *Session) update(current uint32) time.Duration {
	s.mu.Lock()
	st := s.conn.Flush(current)
	if s.conn.Waitsnd() < int(s.conn.Cwnd()) {
		s.notifyWriteEvent()
	}
	s.mu.Unlock()
	recordFlushStats(st)
	return time.Duration(atomic.LoadInt32(&s.updateInterval)) * time.Millisecond
}

func (s *Session) checkDeadline(current uint32) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Check(current)
}

// input feeds one raw datagram (already decrypted, if applicable) into the
// underlying Connection.
func (s *Session) input(data []byte) {
	s.mu.Lock()
	stats, err := s.conn.Input(data, nowMs())
	ready := false
	if _, peekErr := s.conn.PeekSize(); peekErr == nil {
		ready = true
	}
	s.mu.Unlock()

	metrics.Default.InSegs.Add(1)
	metrics.Default.InBytes.Add(uint64(len(data)))
	if stats.Repeat > 0 {
		metrics.Default.RepeatSegs.Add(uint64(stats.Repeat))
	}
	if err != nil {
		metrics.Default.InErrs.Add(1)
		return
	}
	if ready {
		s.notifyReadEvent()
	}
}

func nowMs() uint32 {
	return uint32(time.Now().UnixNano() / int64(time.Millisecond))
}
