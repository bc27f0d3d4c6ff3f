package zdtun

import "testing"

func buildClientTCP(srcIP, dstIP [4]byte, srcPort, dstPort uint16, seq, ack uint32, flags uint8, window uint16, payload []byte) []byte {
	buf := make([]byte, maxReplySize)
	n := copy(buf[40:40+len(payload)], payload)
	seg := writeTCPHeader(buf[20:], srcPort, dstPort, seq, ack, flags, flags&TCPFlagACK != 0, window, n, srcIP, dstIP)
	pkt := writeIPv4Header(buf, srcIP, dstIP, ipProtoTCP, len(seg))
	return append([]byte(nil), buf[:len(pkt)+len(seg)]...)
}

var (
	testClientIP = [4]byte{10, 0, 0, 1}
	testServerIP = [4]byte{1, 2, 3, 4}
)

// TestTCPHandshakeSynthesis is scenario S1.
func TestTCPHandshakeSynthesis(t *testing.T) {
	e, _, _, sent := testEngine(t)
	syn := buildClientTCP(testClientIP, testServerIP, 5000, 80, 1000, 0, TCPFlagSYN, 65535, nil)
	p, err := ParsePacket(syn)
	if err != nil {
		t.Fatalf("ParsePacket: %v", err)
	}
	if err := e.Forward(p, false, 0); err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if len(*sent) != 1 {
		t.Fatalf("expected exactly one outbound packet, got %d", len(*sent))
	}
	rp, err := ParsePacket((*sent)[0])
	if err != nil {
		t.Fatalf("parsing reply: %v", err)
	}
	if rp.TCPFlags != TCPFlagSYN|TCPFlagACK {
		t.Fatalf("expected SYN|ACK, got flags %#x", rp.TCPFlags)
	}
	if rp.TCPAck != 1001 {
		t.Fatalf("expected ack 1001, got %d", rp.TCPAck)
	}
	if rp.TCPSeq != legacySeed {
		t.Fatalf("expected seq %#x, got %#x", legacySeed, rp.TCPSeq)
	}
	if rp.Tuple.SrcPort != 80 || rp.Tuple.DstPort != 5000 {
		t.Fatalf("expected ports swapped, got %+v", rp.Tuple)
	}
}

// TestTCPAsyncConnect is scenario S2.
func TestTCPAsyncConnect(t *testing.T) {
	e, fd, _, sent := testEngine(t)
	fd.dialInProgress = true

	syn := buildClientTCP(testClientIP, testServerIP, 5000, 80, 1000, 0, TCPFlagSYN, 65535, nil)
	p, err := ParsePacket(syn)
	if err != nil {
		t.Fatalf("ParsePacket: %v", err)
	}
	if err := e.Forward(p, false, 0); err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if len(*sent) != 0 {
		t.Fatalf("expected no packet on the original forward, got %d", len(*sent))
	}
	conn, err := e.Lookup(p.Tuple, false, 0)
	if err != nil || conn == nil {
		t.Fatalf("expected connection to exist")
	}
	if conn.Status() != StatusConnecting {
		t.Fatalf("expected CONNECTING, got %v", conn.Status())
	}

	fd.tcp[conn.sock].soErr = nil
	write := NewFDSet()
	write.Add(conn.sock)
	e.Dispatch(NewFDSet(), write, 0)

	if conn.Status() != StatusConnected {
		t.Fatalf("expected CONNECTED after writable event, got %v", conn.Status())
	}
	if len(*sent) != 1 {
		t.Fatalf("expected exactly one SYN+ACK after writable event, got %d", len(*sent))
	}
}

// TestTCPFlowControl is scenario S3.
func TestTCPFlowControl(t *testing.T) {
	e, fd, _, sent := testEngine(t)

	syn := buildClientTCP(testClientIP, testServerIP, 5000, 80, 1000, 0, TCPFlagSYN, 65535, nil)
	p, _ := ParsePacket(syn)
	if err := e.Forward(p, false, 0); err != nil {
		t.Fatalf("Forward SYN: %v", err)
	}
	conn, _ := e.Lookup(p.Tuple, false, 0)

	ackSeg := buildClientTCP(testClientIP, testServerIP, 5000, 80, 1001, legacySeed+1, TCPFlagACK, 4, nil)
	pa, _ := ParsePacket(ackSeg)
	if err := e.Forward(pa, false, 0); err != nil {
		t.Fatalf("Forward ACK: %v", err)
	}
	if conn.TCP().window != 4 {
		t.Fatalf("expected window 4, got %d", conn.TCP().window)
	}

	*sent = nil
	fd.tcp[conn.sock].reads = [][]byte{make([]byte, 10)}
	if err := e.onTCPReadable(conn, 0); err != nil {
		t.Fatalf("onTCPReadable: %v", err)
	}
	if len(*sent) != 1 {
		t.Fatalf("expected exactly one emitted segment, got %d", len(*sent))
	}
	rp, _ := ParsePacket((*sent)[0])
	if len(rp.Payload) != 4 {
		t.Fatalf("expected first segment to carry 4 bytes, got %d", len(rp.Payload))
	}
	if conn.TCP().pending == nil || conn.TCP().pending.remaining() != 6 {
		t.Fatalf("expected 6 bytes still queued")
	}
	read := NewFDSet()
	e.Populate(read, NewFDSet())
	if read.Has(conn.sock) {
		t.Fatalf("socket should be deregistered from read while pending is non-empty")
	}

	*sent = nil
	ack2 := buildClientTCP(testClientIP, testServerIP, 5000, 80, 1001, legacySeed+5, TCPFlagACK, 10, nil)
	pa2, _ := ParsePacket(ack2)
	if err := e.Forward(pa2, false, 0); err != nil {
		t.Fatalf("Forward second ACK: %v", err)
	}
	if len(*sent) != 1 {
		t.Fatalf("expected exactly one more emitted segment, got %d", len(*sent))
	}
	rp2, _ := ParsePacket((*sent)[0])
	if len(rp2.Payload) != 6 {
		t.Fatalf("expected second segment to carry 6 bytes, got %d", len(rp2.Payload))
	}
	if conn.TCP().pending != nil {
		t.Fatalf("expected pending queue drained")
	}
	read2 := NewFDSet()
	e.Populate(read2, NewFDSet())
	if !read2.Has(conn.sock) {
		t.Fatalf("socket should be re-registered for read once pending drains")
	}
}

// TestTCPLargeReadDoesNotOverflowScratch exercises a server reply large
// enough to fill the whole read buffer with a client window wide enough to
// send it in one segment, guarding against writing past the end of the
// fixed-size scratch buffer once the IP+TCP header is prepended.
func TestTCPLargeReadDoesNotOverflowScratch(t *testing.T) {
	e, fd, _, sent := testEngine(t)
	syn := buildClientTCP(testClientIP, testServerIP, 5000, 80, 1000, 0, TCPFlagSYN, 65535, nil)
	p, _ := ParsePacket(syn)
	_ = e.Forward(p, false, 0)
	conn, _ := e.Lookup(p.Tuple, false, 0)

	ack := buildClientTCP(testClientIP, testServerIP, 5000, 80, 1001, legacySeed+1, TCPFlagACK, 65535, nil)
	pa, _ := ParsePacket(ack)
	_ = e.Forward(pa, false, 0)
	// Force the window wide open regardless of maxWindow so the direct-send
	// path (rather than the pending queue) is what's under test here.
	conn.TCP().window = maxReadSize

	big := make([]byte, maxReadSize)
	for i := range big {
		big[i] = byte(i)
	}
	fd.tcp[conn.sock].reads = [][]byte{big}

	*sent = nil
	if err := e.onTCPReadable(conn, 0); err != nil {
		t.Fatalf("onTCPReadable: %v", err)
	}
	if len(*sent) != 1 {
		t.Fatalf("expected exactly one emitted segment, got %d", len(*sent))
	}
	rp, err := ParsePacket((*sent)[0])
	if err != nil {
		t.Fatalf("parsing reply: %v", err)
	}
	if len(rp.Payload) != maxReadSize {
		t.Fatalf("expected full %d-byte payload, got %d", maxReadSize, len(rp.Payload))
	}
}

// TestCloseConnIdempotent checks that calling close twice emits at most
// one RST.
func TestCloseConnIdempotent(t *testing.T) {
	e, _, _, sent := testEngine(t)
	syn := buildClientTCP(testClientIP, testServerIP, 5000, 80, 1000, 0, TCPFlagSYN, 65535, nil)
	p, _ := ParsePacket(syn)
	_ = e.Forward(p, false, 0)
	conn, _ := e.Lookup(p.Tuple, false, 0)

	*sent = nil
	e.closeConn(conn)
	e.closeConn(conn)

	rstCount := 0
	for _, buf := range *sent {
		rp, err := ParsePacket(buf)
		if err == nil && rp.TCPFlags&TCPFlagRST != 0 {
			rstCount++
		}
	}
	if rstCount != 1 {
		t.Fatalf("expected exactly one RST, got %d", rstCount)
	}
	if conn.Status() != StatusClosed {
		t.Fatalf("expected CLOSED, got %v", conn.Status())
	}
	if conn.sock != sentinelSocket {
		t.Fatalf("expected sentinel socket after close")
	}
}

// TestTCPMonotonicSequence checks zdtun_seq only ever increases.
func TestTCPMonotonicSequence(t *testing.T) {
	e, fd, _, sent := testEngine(t)
	syn := buildClientTCP(testClientIP, testServerIP, 5000, 80, 1000, 0, TCPFlagSYN, 65535, nil)
	p, _ := ParsePacket(syn)
	_ = e.Forward(p, false, 0)
	conn, _ := e.Lookup(p.Tuple, false, 0)

	ack := buildClientTCP(testClientIP, testServerIP, 5000, 80, 1001, legacySeed+1, TCPFlagACK, 65535, nil)
	pa, _ := ParsePacket(ack)
	_ = e.Forward(pa, false, 0)

	fd.tcp[conn.sock].reads = [][]byte{[]byte("hello"), []byte("world")}
	_ = e.onTCPReadable(conn, 0)
	_ = e.onTCPReadable(conn, 0)

	var seqs []uint32
	for _, buf := range *sent {
		rp, err := ParsePacket(buf)
		if err != nil {
			continue
		}
		seqs = append(seqs, rp.TCPSeq)
	}
	for i := 1; i < len(seqs); i++ {
		if seqs[i] <= seqs[i-1] {
			t.Fatalf("sequence numbers not strictly increasing: %v", seqs)
		}
	}
}
