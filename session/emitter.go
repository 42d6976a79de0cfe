package session

import (
	"net"

	"github.com/leenjewel/goarq/metrics"
)

// emitPacket is one outbound datagram queued for the emitter goroutine.
type emitPacket struct {
	pconn net.PacketConn
	to    net.Addr
	data  []byte
}

const emitQueueSize = 8192

// emitter decouples arq.Connection's synchronous Output callback from the
// blocking socket write, adapted from kcp-go's emitter.go: a single
// goroutine drains a buffered channel into the kernel.
type emitter struct {
	ch chan emitPacket
}

var defaultEmitter = newEmitter()

func newEmitter() *emitter {
	e := &emitter{ch: make(chan emitPacket, emitQueueSize)}
	go e.run()
	return e
}

func (e *emitter) run() {
	for p := range e.ch {
		var n int
		var err error
		if uc, ok := p.pconn.(*net.UDPConn); ok && uc.RemoteAddr() != nil {
			// a dialed (connected) UDP socket rejects WriteTo
			n, err = uc.Write(p.data)
		} else {
			n, err = p.pconn.WriteTo(p.data, p.to)
		}
		if err == nil {
			metrics.Default.OutSegs.Add(1)
			metrics.Default.OutBytes.Add(uint64(n))
		}
	}
}

func (e *emitter) emit(p emitPacket) {
	e.ch <- p
}
