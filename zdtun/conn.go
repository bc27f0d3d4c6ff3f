package zdtun

import "github.com/google/uuid"

// Status is a connection's lifecycle state.
type Status uint8

const (
	StatusNew Status = iota
	StatusConnecting
	StatusConnected
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "new"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusClosed:
		return "closed"
	default:
		return "invalid"
	}
}

// dnatOverride is a per-connection destination rewrite applied at connect
// time (glossary: DNAT override).
type dnatOverride struct {
	IP   [4]byte
	Port uint16
}

// pendingData is the per-TCP-connection buffer of server-originated bytes
// awaiting client window (glossary: Pending queue).
type pendingData struct {
	bytes []byte
	sent  int
}

func (p *pendingData) remaining() int { return len(p.bytes) - p.sent }

// tcpState is the TCP-only tagged variant of a connection record. TCP
// fields must never be read from a non-TCP record — accessible only
// through Conn.TCP(), which returns nil for non-TCP connections.
type tcpState struct {
	clientSeq  uint32 // next expected client sequence number
	zdtunSeq   uint32 // next proxy-generated sequence number
	window     int64  // current advertised client window, remaining bytes
	finAckSent bool
	pending    *pendingData
	// wantWrite marks the socket as registered for the writable set while
	// an async connect is outstanding (status == StatusConnecting).
	wantWrite bool
}

// icmpState is the ICMP-only tagged variant: last-seen echo id/sequence.
type icmpState struct {
	echoID  uint16
	echoSeq uint16
}

// Conn is a single tracked flow: its identity, lifecycle, OS socket and
// protocol-tagged state.
type Conn struct {
	tuple  Tuple
	id     uuid.UUID
	tstamp int64
	sock   int
	status Status
	dnat   *dnatOverride
	udata  interface{}

	tcp  *tcpState
	icmp *icmpState
}

func newConn(tuple Tuple, now int64) *Conn {
	c := &Conn{
		tuple:  tuple,
		id:     uuid.New(),
		tstamp: now,
		sock:   sentinelSocket,
		status: StatusNew,
	}
	switch tuple.Proto {
	case ProtoTCP:
		c.tcp = &tcpState{}
	case ProtoICMP:
		c.icmp = &icmpState{echoID: tuple.SrcPort, echoSeq: tuple.DstPort}
	}
	return c
}

// Tuple returns the connection's 5-tuple identity (immutable after insertion).
func (c *Conn) Tuple() Tuple { return c.tuple }

// ID is a correlation id for log lines, not part of the connection's wire
// identity — never compared against, never hashed into the table key.
func (c *Conn) ID() uuid.UUID { return c.id }

// Status returns the connection's current lifecycle state.
func (c *Conn) Status() Status { return c.status }

// Userdata returns the opaque value attached via SetUserdata, nil by default.
func (c *Conn) Userdata() interface{} { return c.udata }

// SetUserdata attaches an opaque value the engine never interprets.
func (c *Conn) SetUserdata(v interface{}) { c.udata = v }

// SetDNAT installs a destination rewrite applied at connect time.
func (c *Conn) SetDNAT(ip [4]byte, port uint16) {
	c.dnat = &dnatOverride{IP: ip, Port: port}
}

// dialTarget returns the IP/port forwarding should connect/send to: the
// DNAT override if set, else the tuple's original destination.
func (c *Conn) dialTarget() ([4]byte, uint16) {
	if c.dnat != nil {
		return c.dnat.IP, c.dnat.Port
	}
	return c.tuple.DstIP, c.tuple.DstPort
}

// TCP returns the TCP-only state, or nil if this is not a TCP connection.
func (c *Conn) TCP() *tcpState { return c.tcp }

// LastActivity returns the last-activity timestamp in seconds.
func (c *Conn) LastActivity() int64 { return c.tstamp }

func (c *Conn) touch(now int64) { c.tstamp = now }
