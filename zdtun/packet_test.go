package zdtun

import (
	"encoding/binary"
	"testing"
)

func buildIPv4(proto byte, l4 []byte) []byte {
	buf := make([]byte, 20+len(l4))
	buf[0] = 0x45
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(buf)))
	buf[8] = 64
	buf[9] = proto
	copy(buf[12:16], []byte{10, 0, 0, 1})
	copy(buf[16:20], []byte{1, 2, 3, 4})
	copy(buf[20:], l4)
	return buf
}

func TestParsePacketRejectsNonIPv4(t *testing.T) {
	buf := buildIPv4(ipProtoTCP, make([]byte, 20))
	buf[0] = 0x65 // version 6
	_, err := ParsePacket(buf)
	assertKind(t, err, ErrUnsupported)
}

func TestParsePacketRejectsTruncatedIPHeader(t *testing.T) {
	_, err := ParsePacket(make([]byte, 10))
	assertKind(t, err, ErrMalformed)
}

func TestParsePacketRejectsTruncatedTCP(t *testing.T) {
	buf := buildIPv4(ipProtoTCP, make([]byte, 10))
	_, err := ParsePacket(buf)
	assertKind(t, err, ErrMalformed)
}

func TestParsePacketRejectsTruncatedTCPDataOffset(t *testing.T) {
	l4 := make([]byte, 20)
	l4[12] = 6 << 4 // data offset 24, but buffer only has 20
	buf := buildIPv4(ipProtoTCP, l4)
	_, err := ParsePacket(buf)
	assertKind(t, err, ErrMalformed)
}

func TestParsePacketRejectsTruncatedUDP(t *testing.T) {
	buf := buildIPv4(ipProtoUDP, make([]byte, 4))
	_, err := ParsePacket(buf)
	assertKind(t, err, ErrMalformed)
}

func TestParsePacketRejectsNonEchoICMP(t *testing.T) {
	l4 := make([]byte, 8)
	l4[0] = 3 // destination unreachable
	buf := buildIPv4(ipProtoICMP, l4)
	_, err := ParsePacket(buf)
	assertKind(t, err, ErrUnsupported)
}

func TestParsePacketRejectsUnknownL4(t *testing.T) {
	buf := buildIPv4(250, make([]byte, 8))
	_, err := ParsePacket(buf)
	assertKind(t, err, ErrUnsupported)
}

func TestParsePacketTCPTuple(t *testing.T) {
	l4 := make([]byte, 24)
	l4[12] = 6 << 4 // data offset 24
	binary.BigEndian.PutUint16(l4[0:2], 1111)
	binary.BigEndian.PutUint16(l4[2:4], 80)
	buf := buildIPv4(ipProtoTCP, l4)
	p, err := ParsePacket(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Tuple.SrcPort != 1111 || p.Tuple.DstPort != 80 || p.Tuple.Proto != ProtoTCP {
		t.Fatalf("unexpected tuple: %+v", p.Tuple)
	}
	if len(p.Payload) != 0 {
		t.Fatalf("expected no payload, got %d bytes", len(p.Payload))
	}
}

func assertKind(t *testing.T, err error, kind ErrorKind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error of kind %v, got nil", kind)
	}
	zerr, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *zdtun.Error, got %T", err)
	}
	if zerr.Kind != kind {
		t.Fatalf("expected kind %v, got %v", kind, zerr.Kind)
	}
}
