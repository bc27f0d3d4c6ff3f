package zdtun

import "fmt"

// defaultMaxWindow is the window the engine advertises to clients absent
// an explicit SetMaxWindow call; chosen to match a typical BSD-stack
// default so unconfigured embedders see reasonable throughput.
const defaultMaxWindow = 64240

// legacySeed is a fixed, predictable initial sequence number. The engine
// now randomizes the ISN per connection (see randomISN); legacySeed is
// kept only as the deterministic seed tests can opt into via
// EngineOptions.FixedISN.
const legacySeed uint32 = 0x77EB77EB

const (
	tcpIdleTimeout  int64 = 30
	udpIdleTimeout  int64 = 15
	icmpIdleTimeout int64 = 5
)

// EngineOptions configures a new Engine. Zero value is valid: it yields
// the poll-based socket ceiling, the default max window and the real
// platform dialer/raw-ICMP-socket.
type EngineOptions struct {
	MaxWindow     uint16
	SocketCeiling int // defaults to CeilingPollBased
	Userdata      interface{}

	// FixedISN forces the legacy deterministic initial sequence number
	// instead of a random one. Only meant for tests asserting exact
	// sequence numbers.
	FixedISN bool

	// dialer and icmp are unexported injection points: out-of-package
	// callers always get the real platform implementations. In-package
	// tests set these fields directly on a literal to run the engine
	// against a fake socket layer.
	dialer dialer
	icmp   rawICMPSocket
}

// Engine is the tunneling engine: connection table, forwarders, and the
// scratch buffer they synthesize replies into. Not safe for concurrent
// use: every public method must be called from a single owning goroutine.
type Engine struct {
	table *connTable
	dial  dialer
	icmp  rawICMPSocket

	cb      Callbacks
	scratch [maxReplySize]byte
	readBuf [maxReadSize]byte
	maxWindow uint16
	ceiling   int
	postPurge int
	fixedISN  bool

	userdata interface{}
	lifetime lifetimeCounters
}

// NewEngine constructs an engine bound to cb and opts. It opens the shared
// raw ICMP socket immediately; on most platforms this requires elevated
// privileges (CAP_NET_RAW or root), so construction fails outright if it
// cannot be opened rather than producing an engine with ICMP silently
// disabled.
func NewEngine(cb Callbacks, opts EngineOptions) (*Engine, error) {
	e := &Engine{
		table:     newConnTable(),
		cb:        cb,
		maxWindow: opts.MaxWindow,
		ceiling:   opts.SocketCeiling,
		userdata:  opts.Userdata,
		fixedISN:  opts.FixedISN,
	}
	if e.maxWindow == 0 {
		e.maxWindow = defaultMaxWindow
	}
	if e.ceiling == 0 {
		e.ceiling = CeilingPollBased
	}
	e.postPurge = postPurgeTarget(e.ceiling)

	if opts.dialer != nil {
		e.dial = opts.dialer
	} else {
		e.dial = newPlatformDialer()
	}

	if opts.icmp != nil {
		e.icmp = opts.icmp
	} else {
		sock, err := newRawICMPSocket()
		if err != nil {
			return nil, fmt.Errorf("zdtun: opening raw ICMP socket: %w", err)
		}
		e.icmp = sock
	}
	return e, nil
}

// Close releases the shared raw ICMP socket and every live connection's
// socket. The engine must not be used afterward.
func (e *Engine) Close() {
	e.table.iterate(func(c *Conn) bool {
		e.destroyConn(c)
		return true
	})
	if e.icmp != nil {
		_ = e.icmp.Close()
	}
}

// SetMaxWindow sets the window the engine advertises to clients.
func (e *Engine) SetMaxWindow(w uint16) { e.maxWindow = w }

// Userdata returns the engine-level opaque value set at construction.
func (e *Engine) Userdata() interface{} { return e.userdata }

// SetUserdata replaces the engine-level opaque value.
func (e *Engine) SetUserdata(v interface{}) { e.userdata = v }

// Lookup finds the connection for tuple. If create is true and no record
// exists, a new NEW-status record is allocated: the open-socket ceiling
// is checked first and an eager purge runs if it has been reached, then
// OnConnectionOpen is consulted before insertion.
func (e *Engine) Lookup(tuple Tuple, create bool, now int64) (*Conn, error) {
	if c, ok := e.table.lookup(tuple); ok {
		return c, nil
	}
	if !create {
		return nil, nil
	}
	if len(e.table.bySock) >= e.ceiling {
		e.Purge(now)
	}
	c := newConn(tuple, now)
	if !e.cb.connectionOpen(e, c) {
		return nil, newError(ErrConnectionRejected, "on_connection_open refused")
	}
	e.table.insert(c)
	switch tuple.Proto {
	case ProtoTCP:
		e.lifetime.tcp++
	case ProtoUDP:
		e.lifetime.udp++
	case ProtoICMP:
		e.lifetime.icmp++
	}
	return c, nil
}

// Forward routes a parsed packet to its connection's protocol forwarder,
// looking up or creating the connection as needed. noAck suppresses the
// automatic bare-ACK normally sent for plain data segments, for callers
// that want to batch multiple segments before acknowledging.
func (e *Engine) Forward(p *Packet, noAck bool, now int64) error {
	conn, err := e.Lookup(p.Tuple, true, now)
	if err != nil {
		return err
	}
	conn.touch(now)
	switch p.Tuple.Proto {
	case ProtoTCP:
		return e.forwardTCP(conn, p, noAck, now)
	case ProtoUDP:
		return e.forwardUDP(conn, p, now)
	case ProtoICMP:
		return e.forwardICMP(conn, p, now)
	default:
		return newError(ErrUnsupported, "unknown protocol in tuple")
	}
}

// EasyForward parses buf and forwards it in one call, destroying the
// connection outright (rather than deferring to purge) if forwarding
// fails — this is the one call site outside the purge pass allowed to
// invoke destroy_conn directly.
func (e *Engine) EasyForward(buf []byte, now int64) error {
	p, err := ParsePacket(buf)
	if err != nil {
		return err
	}
	if err := e.Forward(p, false, now); err != nil {
		if c, ok := e.table.lookup(p.Tuple); ok {
			e.destroyConn(c)
		}
		return err
	}
	return nil
}

// Iterate walks every non-closed connection, stopping early if fn
// returns false.
func (e *Engine) Iterate(fn func(*Conn) bool) {
	e.table.iterate(func(c *Conn) bool {
		if c.status == StatusClosed {
			return true
		}
		return fn(c)
	})
}

// closeConn is the engine-level close_conn: idempotent, protocol-specific
// teardown, then the record is handed to the deferred-destroy set.
func (e *Engine) closeConn(c *Conn) {
	if c.status == StatusClosed {
		return
	}
	switch c.tuple.Proto {
	case ProtoTCP:
		e.closeTCP(c)
	default:
		e.releaseSocket(c)
	}
	e.cb.connectionClose(e, c)
	e.table.closeConn(c)
}

// destroyConn is destroy_conn: close if needed, then fully remove.
func (e *Engine) destroyConn(c *Conn) {
	e.closeConn(c)
	e.table.destroy(c, e.dial)
}

// releaseSocket closes a connection's OS socket (if any) and fires
// OnSocketClose, without touching connection status.
func (e *Engine) releaseSocket(c *Conn) {
	if c.sock == sentinelSocket {
		return
	}
	fd := c.sock
	e.table.bindSocket(c, sentinelSocket)
	_ = e.dial.Close(fd)
	e.cb.socketClose(e, fd)
}

func (e *Engine) openSocket(c *Conn, fd int) {
	e.table.bindSocket(c, fd)
	e.cb.socketOpen(e, fd)
}
