package session

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/leenjewel/goarq/arq"
)

const defaultWndSize = 128 // floor matches arq.WindowRecv

// Listener accepts incoming Sessions multiplexed by remote address over a
// single net.PacketConn, the way kcp-go's Listener demultiplexes UDPSessions
// behind one socket.
type Listener struct {
	block        BlockCrypt
	pconn        net.PacketConn
	ownConn      bool
	sessions     map[string]*Session
	sessionMutex sync.RWMutex
	chAccepts    chan *Session
	chDeadlinks  chan net.Addr
	die          chan struct{}
	dieOnce      sync.Once
	rd           atomic.Value // time.Time
}

// ListenWithOptions listens on laddr and returns a Listener. block, if
// non-nil, encrypts every packet crossing the wire.
func ListenWithOptions(laddr string, block BlockCrypt) (*Listener, error) {
	udpaddr, err := net.ResolveUDPAddr("udp", laddr)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	conn, err := net.ListenUDP("udp", udpaddr)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return serveConn(block, conn, true)
}

// Listen is ListenWithOptions with no encryption.
func Listen(laddr string) (*Listener, error) {
	return ListenWithOptions(laddr, nil)
}

// ServeConn wraps an already-bound net.PacketConn in a Listener, so callers
// can supply their own socket (e.g. one obtained from systemd or a test
// harness) instead of letting the session package open it. Close will not
// close conn, since the caller retains ownership of it.
func ServeConn(block BlockCrypt, conn net.PacketConn) (*Listener, error) {
	return serveConn(block, conn, false)
}

func serveConn(block BlockCrypt, conn net.PacketConn, ownConn bool) (*Listener, error) {
	l := &Listener{
		block:       block,
		pconn:       conn,
		ownConn:     ownConn,
		sessions:    make(map[string]*Session),
		chAccepts:   make(chan *Session, 128),
		chDeadlinks: make(chan net.Addr, 128),
		die:         make(chan struct{}),
	}
	go l.receiver()
	go l.monitor()
	return l, nil
}

// receiver is the single goroutine reading the shared socket. It demuxes
// inbound datagrams to existing Sessions by remote address, or creates a new
// Session and offers it on chAccepts.
func (l *Listener) receiver() {
	buf := make([]byte, mtuLimit)
	for {
		n, from, err := l.pconn.ReadFrom(buf)
		if err != nil {
			return
		}
		data := buf[:n]
		if l.block != nil {
			plain, ok := openCrypt(l.block, data)
			if !ok {
				continue
			}
			data = plain
		}
		if len(data) < arq.Overhead {
			continue
		}

		key := from.String()
		l.sessionMutex.RLock()
		s, ok := l.sessions[key]
		l.sessionMutex.RUnlock()
		if ok {
			s.input(data)
			continue
		}

		conv := arq.ConvOf(data)
		s = newSession(conv, l, l.pconn, from, l.block)
		l.sessionMutex.Lock()
		l.sessions[key] = s
		l.sessionMutex.Unlock()
		s.input(data)
		defaultUpdater.addSession(s)

		select {
		case l.chAccepts <- s:
		case <-l.die:
			return
		}
	}
}

// monitor drains deadlink notifications and removes the corresponding
// sessions, the way kcp-go's Listener.monitor does.
func (l *Listener) monitor() {
	for {
		select {
		case deadlink := <-l.chDeadlinks:
			l.forget(deadlink)
		case <-l.die:
			return
		}
	}
}

func (l *Listener) forget(addr net.Addr) {
	l.sessionMutex.Lock()
	if s, ok := l.sessions[addr.String()]; ok {
		defaultUpdater.removeSession(s)
		delete(l.sessions, addr.String())
	}
	l.sessionMutex.Unlock()
}

// AcceptSession waits for and returns the next incoming Session.
func (l *Listener) AcceptSession() (*Session, error) {
	select {
	case s := <-l.chAccepts:
		return s, nil
	case <-l.die:
		return nil, errors.New(errBrokenPipe)
	}
}

// Accept implements net.Listener.
func (l *Listener) Accept() (net.Conn, error) { return l.AcceptSession() }

// Close implements net.Listener.
func (l *Listener) Close() error {
	var err error
	l.dieOnce.Do(func() {
		close(l.die)
		if l.ownConn {
			err = l.pconn.Close()
		}
	})
	return err
}

// Addr implements net.Listener.
func (l *Listener) Addr() net.Addr { return l.pconn.LocalAddr() }

// DialWithOptions dials raddr as conv, optionally encrypting the link with
// block.
func DialWithOptions(raddr string, conv uint32, block BlockCrypt) (*Session, error) {
	udpaddr, err := net.ResolveUDPAddr("udp", raddr)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	conn, err := net.DialUDP("udp", nil, udpaddr)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return NewConn(conv, block, conn)
}

// Dial is DialWithOptions with no encryption and an arbitrary conv.
func Dial(raddr string) (*Session, error) {
	return DialWithOptions(raddr, newConv(), nil)
}

// NewConn wraps an already-connected net.PacketConn as a client-side
// Session talking to conn's fixed remote peer.
func NewConn(conv uint32, block BlockCrypt, conn *net.UDPConn) (*Session, error) {
	s := newSession(conv, nil, conn, conn.RemoteAddr(), block)
	go clientReadLoop(s, conn, block)
	defaultUpdater.addSession(s)
	return s, nil
}

func clientReadLoop(s *Session, conn net.PacketConn, block BlockCrypt) {
	buf := make([]byte, mtuLimit)
	for {
		n, err := conn.(*net.UDPConn).Read(buf)
		if err != nil {
			return
		}
		data := buf[:n]
		if block != nil {
			plain, ok := openCrypt(block, data)
			if !ok {
				continue
			}
			data = plain
		}
		if len(data) < arq.Overhead {
			continue
		}
		s.input(data)
	}
}

var convCounter uint32

// newConv picks a fresh conversation id for client dials that don't care to
// choose their own.
func newConv() uint32 {
	return atomic.AddUint32(&convCounter, 1)
}
