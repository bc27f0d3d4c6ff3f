package zdtun

import "encoding/binary"

// TCP flag bits, matching the wire layout (low byte of the flags field).
const (
	TCPFlagFIN uint8 = 1 << 0
	TCPFlagSYN uint8 = 1 << 1
	TCPFlagRST uint8 = 1 << 2
	TCPFlagPSH uint8 = 1 << 3
	TCPFlagACK uint8 = 1 << 4
	TCPFlagURG uint8 = 1 << 5
)

const (
	icmpTypeEchoRequest = 8
	icmpTypeEchoReply   = 0

	ipProtoICMP = 1
	ipProtoTCP  = 6
	ipProtoUDP  = 17
)

// Packet is a parsed view over a raw IPv4 buffer: header/payload offsets
// and the derived 5-tuple. It never copies the input — all slices alias
// buf — so the caller's buffer must stay valid and unmodified while the
// Packet is in use.
type Packet struct {
	buf []byte

	IPHeaderLen int
	L4HeaderLen int

	IP      []byte // IP header
	L4      []byte // L4 header (TCP/UDP/ICMP)
	Payload []byte // L4 payload

	Tuple Tuple

	// TCP-only, zero otherwise.
	TCPSeq   uint32
	TCPAck   uint32
	TCPFlags uint8
	TCPWin   uint16

	// ICMP-only.
	ICMPType uint8
	ICMPCode uint8
}

// IPProto returns the IPv4 protocol number this packet carries.
func (p *Packet) IPProto() uint8 {
	return p.IP[9]
}

// L4Raw returns the L4 header and payload as one contiguous slice, exactly
// as carried in the original buffer. Used by the ICMP forwarder, which
// relays the echo body unchanged.
func (p *Packet) L4Raw() []byte {
	return p.buf[p.IPHeaderLen:]
}

// ParsePacket decodes buf as an IPv4 datagram. It performs no checksum
// verification — the engine trusts the kernel-side tun driver — and
// returns a distinct error for each malformed or unsupported shape.
func ParsePacket(buf []byte) (*Packet, error) {
	if len(buf) < 20 {
		return nil, newError(ErrMalformed, "buffer shorter than a minimal IPv4 header")
	}
	if buf[0]>>4 != 4 {
		return nil, newError(ErrUnsupported, "not IPv4")
	}
	ihl := int(buf[0]&0x0f) * 4
	if ihl < 20 || len(buf) < ihl {
		return nil, newError(ErrMalformed, "truncated IPv4 header")
	}

	p := &Packet{buf: buf, IPHeaderLen: ihl, IP: buf[:ihl]}
	srcIP := buf[12:16]
	dstIP := buf[16:20]
	l4 := buf[ihl:]

	switch p.IPProto() {
	case ipProtoTCP:
		if len(l4) < 20 {
			return nil, newError(ErrMalformed, "truncated TCP header")
		}
		dataOff := int(l4[12]>>4) * 4
		if dataOff < 20 || len(l4) < dataOff {
			return nil, newError(ErrMalformed, "truncated TCP header (data offset)")
		}
		p.L4HeaderLen = dataOff
		p.L4 = l4[:dataOff]
		p.Payload = l4[dataOff:]
		srcPort := binary.BigEndian.Uint16(l4[0:2])
		dstPort := binary.BigEndian.Uint16(l4[2:4])
		p.TCPSeq = binary.BigEndian.Uint32(l4[4:8])
		p.TCPAck = binary.BigEndian.Uint32(l4[8:12])
		p.TCPFlags = l4[13]
		p.TCPWin = binary.BigEndian.Uint16(l4[14:16])
		p.Tuple = NewTuple(ProtoTCP, srcIP, srcPort, dstIP, dstPort)

	case ipProtoUDP:
		if len(l4) < 8 {
			return nil, newError(ErrMalformed, "truncated UDP header")
		}
		p.L4HeaderLen = 8
		p.L4 = l4[:8]
		p.Payload = l4[8:]
		srcPort := binary.BigEndian.Uint16(l4[0:2])
		dstPort := binary.BigEndian.Uint16(l4[2:4])
		p.Tuple = NewTuple(ProtoUDP, srcIP, srcPort, dstIP, dstPort)

	case ipProtoICMP:
		if len(l4) < 8 {
			return nil, newError(ErrMalformed, "truncated ICMP header")
		}
		p.ICMPType = l4[0]
		p.ICMPCode = l4[1]
		if p.ICMPType != icmpTypeEchoRequest && p.ICMPType != icmpTypeEchoReply {
			return nil, newError(ErrUnsupported, "non-echo ICMP message")
		}
		p.L4HeaderLen = 8
		p.L4 = l4[:8]
		p.Payload = l4[8:]
		echoID := binary.BigEndian.Uint16(l4[4:6])
		echoSeq := binary.BigEndian.Uint16(l4[6:8])
		p.Tuple = NewTuple(ProtoICMP, srcIP, echoID, dstIP, echoSeq)

	default:
		return nil, newError(ErrUnsupported, "unknown L4 protocol")
	}

	return p, nil
}
