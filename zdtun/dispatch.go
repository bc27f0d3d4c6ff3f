package zdtun

// FDSet is a set of OS socket handles, the readiness primitive the event
// loop operates over. A map rather than a fixed-size bitmap, so any event
// primitive (select, poll, epoll, kqueue) the caller actually drives can
// be filled from it without a descriptor-count ceiling of its own.
type FDSet map[int]struct{}

// NewFDSet returns an empty set.
func NewFDSet() FDSet { return make(FDSet) }

func (s FDSet) Add(fd int)      { s[fd] = struct{}{} }
func (s FDSet) Remove(fd int)   { delete(s, fd) }
func (s FDSet) Has(fd int) bool { _, ok := s[fd]; return ok }

// Populate adds every socket the engine currently wants signaled into read
// and write. A TCP connection with a non-empty pending queue is withheld
// from read, since there is no room to accept more data until it drains;
// a CONNECTING TCP connection is registered for write only, awaiting the
// async-connect completion signal.
func (e *Engine) Populate(read, write FDSet) {
	read.Add(e.icmp.Fd())
	e.table.iterate(func(c *Conn) bool {
		if c.sock == sentinelSocket {
			return true
		}
		if c.tuple.Proto == ProtoTCP && c.status == StatusConnecting {
			write.Add(c.sock)
			return true
		}
		if c.tuple.Proto == ProtoTCP && c.tcp.pending != nil {
			return true // withheld from read: flow control
		}
		read.Add(c.sock)
		return true
	})
}

// Dispatch routes every socket present in readable/writable to its
// handler and returns the number of events handled: the ICMP socket
// first, then each connection's socket against the reply handler or the
// async-connect handler.
func (e *Engine) Dispatch(readable, writable FDSet, now int64) int {
	events := 0
	if readable.Has(e.icmp.Fd()) {
		if err := e.onICMPSocketReadable(now); err == nil {
			events++
		}
	}
	e.table.iterate(func(c *Conn) bool {
		if c.sock == sentinelSocket {
			return true
		}
		switch {
		case readable.Has(c.sock):
			events++
			e.dispatchReadable(c, now)
		case writable.Has(c.sock):
			events++
			e.dispatchWritable(c, now)
		}
		return true
	})
	return events
}

func (e *Engine) dispatchReadable(c *Conn, now int64) {
	switch c.tuple.Proto {
	case ProtoTCP:
		_ = e.onTCPReadable(c, now)
	case ProtoUDP:
		_ = e.onUDPReadable(c, now)
	}
}

func (e *Engine) dispatchWritable(c *Conn, now int64) {
	if c.tuple.Proto == ProtoTCP {
		_ = e.onTCPWritable(c, now)
	}
}
