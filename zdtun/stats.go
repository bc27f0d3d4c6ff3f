package zdtun

// Stats is an aggregate snapshot of engine activity, safe to marshal for
// a telemetry sink.
type Stats struct {
	NumActiveConnections int `json:"num_active_connections"`
	NumOpenSockets       int `json:"num_open_sockets"`

	CurrentTCP  int `json:"current_tcp"`
	CurrentUDP  int `json:"current_udp"`
	CurrentICMP int `json:"current_icmp"`

	LifetimeTCP  uint64 `json:"lifetime_tcp"`
	LifetimeUDP  uint64 `json:"lifetime_udp"`
	LifetimeICMP uint64 `json:"lifetime_icmp"`

	OldestTCP  int64 `json:"oldest_tcp_tstamp"`
	OldestUDP  int64 `json:"oldest_udp_tstamp"`
	OldestICMP int64 `json:"oldest_icmp_tstamp"`
}

// lifetimeCounters tracks per-protocol connections ever created, never
// decremented.
type lifetimeCounters struct {
	tcp, udp, icmp uint64
}

// Stats computes a fresh aggregate snapshot by walking the connection table.
func (e *Engine) Stats() Stats {
	s := Stats{
		NumActiveConnections: e.table.count(),
		NumOpenSockets:       len(e.table.bySock),
		LifetimeTCP:          e.lifetime.tcp,
		LifetimeUDP:          e.lifetime.udp,
		LifetimeICMP:         e.lifetime.icmp,
	}
	var oldestTCP, oldestUDP, oldestICMP int64 = -1, -1, -1
	e.table.iterate(func(c *Conn) bool {
		switch c.tuple.Proto {
		case ProtoTCP:
			s.CurrentTCP++
			if oldestTCP == -1 || c.tstamp < oldestTCP {
				oldestTCP = c.tstamp
			}
		case ProtoUDP:
			s.CurrentUDP++
			if oldestUDP == -1 || c.tstamp < oldestUDP {
				oldestUDP = c.tstamp
			}
		case ProtoICMP:
			s.CurrentICMP++
			if oldestICMP == -1 || c.tstamp < oldestICMP {
				oldestICMP = c.tstamp
			}
		}
		return true
	})
	if oldestTCP != -1 {
		s.OldestTCP = oldestTCP
	}
	if oldestUDP != -1 {
		s.OldestUDP = oldestUDP
	}
	if oldestICMP != -1 {
		s.OldestICMP = oldestICMP
	}
	return s
}
