package zdtun

import "sort"

func idleTimeout(proto Proto) int64 {
	switch proto {
	case ProtoTCP:
		return tcpIdleTimeout
	case ProtoUDP:
		return udpIdleTimeout
	case ProtoICMP:
		return icmpIdleTimeout
	default:
		return 0
	}
}

// Purge runs a two-pass eviction: idle records first, then an LRU
// overload pass if the socket ceiling is still exceeded. now is
// caller-supplied so tests can drive time deterministically.
func (e *Engine) Purge(now int64) {
	var stale []*Conn
	e.table.iterate(func(c *Conn) bool {
		if c.status == StatusClosed || now-c.tstamp > idleTimeout(c.tuple.Proto) {
			stale = append(stale, c)
		}
		return true
	})
	for _, c := range stale {
		e.destroyConn(c)
	}

	if len(e.table.bySock) <= e.ceiling {
		return
	}

	var remaining []*Conn
	e.table.iterate(func(c *Conn) bool {
		remaining = append(remaining, c)
		return true
	})
	sort.Slice(remaining, func(i, j int) bool {
		return remaining[i].tstamp < remaining[j].tstamp
	})
	for _, c := range remaining {
		if len(e.table.bySock) <= e.postPurge {
			break
		}
		e.destroyConn(c)
	}
}
