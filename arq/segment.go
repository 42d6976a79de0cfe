package arq

import "encoding/binary"

// segment is the atomic unit on the wire: a 24-byte header optionally
// followed by a payload. The retransmission bookkeeping fields (resendts,
// rto, fastack, xmit) are meaningful only for locally-held send-side
// segments; decoded peer segments populate conv/cmd/frg/wnd/ts/sn/una/data
// and nothing else.
type segment struct {
	conv uint32
	cmd  uint8
	frg  uint8
	wnd  uint16
	ts   uint32
	sn   uint32
	una  uint32
	data []byte

	// local bookkeeping for segments held in sndBuf, unset on the wire.
	resendts uint32
	rto      uint32
	fastack  uint32
	xmit     uint32
}

// encodedLen is the wire length of a segment's header plus payload.
func (s *segment) encodedLen() int {
	return Overhead + len(s.data)
}

// encode appends the segment's header and payload to buf, returning the
// extended slice. If buf lacks the capacity, append grows it into a new
// backing array; the flush scheduler checks encodedLen against mtu first so
// its scratch buffer normally suffices.
func (s *segment) encode(buf []byte) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, s.conv)
	buf = append(buf, s.cmd, s.frg)
	buf = binary.LittleEndian.AppendUint16(buf, s.wnd)
	buf = binary.LittleEndian.AppendUint32(buf, s.ts)
	buf = binary.LittleEndian.AppendUint32(buf, s.sn)
	buf = binary.LittleEndian.AppendUint32(buf, s.una)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s.data)))
	buf = append(buf, s.data...)
	return buf
}

// decodedHeader is a segment header parsed off the wire, before the payload
// bytes (still owned by the caller's buffer) are sliced out.
type decodedHeader struct {
	conv uint32
	cmd  uint8
	frg  uint8
	wnd  uint16
	ts   uint32
	sn   uint32
	una  uint32
	len  uint32
}

// decodeHeader parses the Overhead-byte header at the front of buf. Callers
// must check len(buf) >= Overhead first; ErrTruncated is raised by Input,
// not here, since the caller also needs to know how much of buf it already
// validated.
func decodeHeader(buf []byte) decodedHeader {
	return decodedHeader{
		conv: binary.LittleEndian.Uint32(buf[0:4]),
		cmd:  buf[4],
		frg:  buf[5],
		wnd:  binary.LittleEndian.Uint16(buf[6:8]),
		ts:   binary.LittleEndian.Uint32(buf[8:12]),
		sn:   binary.LittleEndian.Uint32(buf[12:16]),
		una:  binary.LittleEndian.Uint32(buf[16:20]),
		len:  binary.LittleEndian.Uint32(buf[20:24]),
	}
}

func validCmd(cmd uint8) bool {
	return cmd == CmdPush || cmd == CmdAck || cmd == CmdWask || cmd == CmdWins
}

// ConvOf reads the conversation id out of a raw datagram without otherwise
// validating or decoding it, letting a substrate demux packets to the right
// Connection before calling Input. buf must be at least 4 bytes long.
func ConvOf(buf []byte) uint32 {
	return binary.LittleEndian.Uint32(buf[0:4])
}
