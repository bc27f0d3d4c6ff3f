package zdtun

import "testing"

// TestPurgeIdleTimeout checks that after purge, no record exceeds its
// protocol's idle budget.
func TestPurgeIdleTimeout(t *testing.T) {
	e, _, _, _ := testEngine(t)
	for i := uint16(1); i <= 3; i++ {
		tup := Tuple{Proto: ProtoUDP, SrcIP: testClientIP, SrcPort: i, DstIP: testServerIP, DstPort: 9999}
		if _, err := e.Lookup(tup, true, 0); err != nil {
			t.Fatalf("Lookup create: %v", err)
		}
	}
	e.Purge(udpIdleTimeout + 1)
	if got := e.Stats().NumActiveConnections; got != 0 {
		t.Fatalf("expected all idle UDP records purged, got %d remaining", got)
	}
}

// TestPurgeOverloadEviction is scenario S6: fill the table to the
// ceiling, create one more, and expect the oldest record to be evicted
// once a purge tick runs.
func TestPurgeOverloadEviction(t *testing.T) {
	e, d, _, _ := testEngine(t)
	e.ceiling = 4
	e.postPurge = 4

	// The ceiling counts open sockets, so each record gets one.
	for i := uint16(1); i <= 4; i++ {
		tup := Tuple{Proto: ProtoUDP, SrcIP: testClientIP, SrcPort: i, DstIP: testServerIP, DstPort: 9999}
		c, err := e.Lookup(tup, true, int64(i))
		if err != nil {
			t.Fatalf("Lookup create: %v", err)
		}
		sock, _ := d.DialUDP()
		e.openSocket(c, sock)
	}
	if got := e.Stats().NumActiveConnections; got != 4 {
		t.Fatalf("expected 4 connections, got %d", got)
	}

	oldestTup := Tuple{Proto: ProtoUDP, SrcIP: testClientIP, SrcPort: 1, DstIP: testServerIP, DstPort: 9999}
	newTup := Tuple{Proto: ProtoUDP, SrcIP: testClientIP, SrcPort: 99, DstIP: testServerIP, DstPort: 9999}
	latest, err := e.Lookup(newTup, true, 5)
	if err != nil {
		t.Fatalf("Lookup create over ceiling: %v", err)
	}
	sock, _ := d.DialUDP()
	e.openSocket(latest, sock)
	if got := e.Stats().NumActiveConnections; got != 5 {
		t.Fatalf("expected creation to proceed past the ceiling, got %d", got)
	}

	e.Purge(6)

	if _, ok := e.table.lookup(oldestTup); ok {
		t.Fatalf("expected the oldest record to be evicted")
	}
	if _, ok := e.table.lookup(newTup); !ok {
		t.Fatalf("expected the new connection to have survived")
	}
}
