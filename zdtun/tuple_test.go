package zdtun

import (
	"net"
	"testing"
)

func TestTupleReversed(t *testing.T) {
	tup := NewTuple(ProtoTCP, net.IPv4(10, 0, 0, 1), 1234, net.IPv4(1, 2, 3, 4), 80)
	rev := tup.Reversed()

	if rev.SrcIP != tup.DstIP || rev.SrcPort != tup.DstPort {
		t.Fatalf("Reversed() did not swap source: %+v", rev)
	}
	if rev.DstIP != tup.SrcIP || rev.DstPort != tup.SrcPort {
		t.Fatalf("Reversed() did not swap destination: %+v", rev)
	}
	if rev.Proto != tup.Proto {
		t.Fatalf("Reversed() changed protocol")
	}
}

func TestTupleAsMapKey(t *testing.T) {
	a := NewTuple(ProtoUDP, net.IPv4(1, 1, 1, 1), 1, net.IPv4(2, 2, 2, 2), 2)
	b := NewTuple(ProtoUDP, net.IPv4(1, 1, 1, 1), 1, net.IPv4(2, 2, 2, 2), 2)
	m := map[Tuple]bool{a: true}
	if !m[b] {
		t.Fatalf("equal tuples did not compare equal as map keys")
	}
}
