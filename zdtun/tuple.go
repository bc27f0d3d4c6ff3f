package zdtun

import (
	"fmt"
	"net"
)

// Proto identifies the L4 protocol carried by a connection's 5-tuple.
type Proto uint8

const (
	ProtoTCP Proto = iota
	ProtoUDP
	ProtoICMP
)

func (p Proto) String() string {
	switch p {
	case ProtoTCP:
		return "tcp"
	case ProtoUDP:
		return "udp"
	case ProtoICMP:
		return "icmp"
	default:
		return "unknown"
	}
}

// Tuple is the identity of a flow: L4 protocol, source IPv4/port and
// destination IPv4/port. For ICMP echo, SrcPort holds the echo identifier
// and DstPort holds the echo sequence number. IPs are stored
// in their 4-byte network-order form so the tuple is directly usable as a
// comparable map key; ports are host-order uint16 for convenience, but two
// tuples are only ever considered equal as an opaque whole, never compared
// field-by-field across protocols.
type Tuple struct {
	Proto   Proto
	SrcIP   [4]byte
	SrcPort uint16
	DstIP   [4]byte
	DstPort uint16
}

// NewTuple builds a tuple from net.IP values, truncating to IPv4.
func NewTuple(proto Proto, srcIP net.IP, srcPort uint16, dstIP net.IP, dstPort uint16) Tuple {
	var t Tuple
	t.Proto = proto
	copy(t.SrcIP[:], srcIP.To4())
	t.SrcPort = srcPort
	copy(t.DstIP[:], dstIP.To4())
	t.DstPort = dstPort
	return t
}

// Reversed returns the tuple as seen from the other endpoint: source and
// destination swapped. Used when the engine synthesizes a reply — the
// engine is the remote peer from the client's point of view.
func (t Tuple) Reversed() Tuple {
	return Tuple{
		Proto:   t.Proto,
		SrcIP:   t.DstIP,
		SrcPort: t.DstPort,
		DstIP:   t.SrcIP,
		DstPort: t.SrcPort,
	}
}

func (t Tuple) SrcIPAddr() net.IP { return net.IP(t.SrcIP[:]) }
func (t Tuple) DstIPAddr() net.IP { return net.IP(t.DstIP[:]) }

func (t Tuple) String() string {
	if t.Proto == ProtoICMP {
		return fmt.Sprintf("icmp %s->%s id=%d seq=%d", t.SrcIPAddr(), t.DstIPAddr(), t.SrcPort, t.DstPort)
	}
	return fmt.Sprintf("%s %s:%d->%s:%d", t.Proto, t.SrcIPAddr(), t.SrcPort, t.DstIPAddr(), t.DstPort)
}
