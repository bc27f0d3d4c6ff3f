package zdtun

import "sort"

// connTable is the engine's connection table: every open flow keyed by its
// 5-tuple, plus a by-socket index used by the readiness dispatcher to map
// a ready fd back to its connection.
//
// Not safe for concurrent use; the engine is single-threaded cooperative,
// all access happens from the goroutine driving Populate/Dispatch/Purge.
type connTable struct {
	byTuple map[Tuple]*Conn
	bySock  map[int]*Conn
	// closing holds connections that finished their protocol-level
	// teardown (FIN/ACK, RST) but are kept one more purge cycle so any
	// final reply packet already queued can still be delivered. A
	// connection moves here on closeConn and is fully removed on destroy.
	closing map[Tuple]*Conn
}

func newConnTable() *connTable {
	return &connTable{
		byTuple: make(map[Tuple]*Conn),
		bySock:  make(map[int]*Conn),
		closing: make(map[Tuple]*Conn),
	}
}

func (t *connTable) lookup(tuple Tuple) (*Conn, bool) {
	c, ok := t.byTuple[tuple]
	return c, ok
}

func (t *connTable) lookupBySocket(fd int) (*Conn, bool) {
	c, ok := t.bySock[fd]
	return c, ok
}

// count is the number of records in the table, including closed ones
// still awaiting destroy by the next purge. The eager- and
// overload-purge triggers compare against len(bySock) instead (the actual
// open-socket count), since a connection can occupy a tuple slot without
// holding an OS socket (e.g. CONNECTING, or kept alive only to ack a FIN).
func (t *connTable) count() int { return len(t.byTuple) }

// insert adds a freshly-created connection. The tuple must not already be
// present: at most one connection may exist per 5-tuple at a time.
func (t *connTable) insert(c *Conn) {
	t.byTuple[c.tuple] = c
	if c.sock != sentinelSocket {
		t.bySock[c.sock] = c
	}
}

// bindSocket registers/updates the by-socket index after a connection's fd
// changes (e.g. once DialTCPNonblocking returns a real fd).
func (t *connTable) bindSocket(c *Conn, fd int) {
	if c.sock != sentinelSocket {
		delete(t.bySock, c.sock)
	}
	c.sock = fd
	if fd != sentinelSocket {
		t.bySock[fd] = c
	}
}

// closeConn marks a connection closed and moves it to the deferred-destroy
// set; it keeps occupying its tuple slot (no new connection can reuse the
// tuple) until purge reaps it via destroy.
func (t *connTable) closeConn(c *Conn) {
	if c.status == StatusClosed {
		return
	}
	c.status = StatusClosed
	t.closing[c.tuple] = c
}

// destroy fully removes a connection from every index and releases its
// socket. Safe to call on a connection already removed.
func (t *connTable) destroy(c *Conn, d dialer) {
	if cur, ok := t.byTuple[c.tuple]; ok && cur == c {
		delete(t.byTuple, c.tuple)
	}
	delete(t.closing, c.tuple)
	if c.sock != sentinelSocket {
		if cur, ok := t.bySock[c.sock]; ok && cur == c {
			delete(t.bySock, c.sock)
		}
		if d != nil {
			_ = d.Close(c.sock)
		}
		c.sock = sentinelSocket
	}
}

// iterate walks every record in the table, closed ones included, ordered
// by Tuple.String() (deterministic, so
// Populate/Purge scans are reproducible in tests). Stops early if fn
// returns false.
func (t *connTable) iterate(fn func(*Conn) bool) {
	tuples := make([]Tuple, 0, len(t.byTuple))
	for k := range t.byTuple {
		tuples = append(tuples, k)
	}
	sort.Slice(tuples, func(i, j int) bool {
		return tuples[i].String() < tuples[j].String()
	})
	for _, k := range tuples {
		c := t.byTuple[k]
		if !fn(c) {
			return
		}
	}
}
