package zdtun

// sentinelSocket is the fd value meaning "no socket currently associated".
// It is never a valid OS descriptor.
const sentinelSocket = -1

// Platform open-socket ceilings. The engine picks one at construction
// time based on the readiness primitive in use; hosts that know their
// own limits can override it via EngineOptions.SocketCeiling.
const (
	CeilingSelectBased = 55  // classic fd_set-based readiness (64 descriptor limit)
	CeilingPollBased   = 128 // poll/epoll/kqueue-based readiness
)

func postPurgeTarget(ceiling int) int {
	switch ceiling {
	case CeilingSelectBased:
		return 40
	default:
		return 96
	}
}

// dialer abstracts the non-blocking BSD-socket operations the TCP/UDP
// forwarders need. A real implementation is provided per-platform
// (socket_linux.go / socket_darwin.go / socket_other.go), all built on
// the same syscall.Socket/Connect/GetsockoptInt idiom. Tests inject a
// fakeDialer instead to run the engine against a mock socket layer.
type dialer interface {
	// DialTCPNonblocking creates a non-blocking TCP socket and starts an
	// async connect to dst. inProgress is true when the connect has not
	// completed synchronously (EINPROGRESS); the caller must then wait for
	// writability and call SOError.
	DialTCPNonblocking(dst [4]byte, port uint16) (fd int, inProgress bool, err error)
	// SetBlocking toggles a socket's blocking mode.
	SetBlocking(fd int, blocking bool) error
	// SOError fetches and clears SO_ERROR on fd; nil means the pending
	// connect succeeded.
	SOError(fd int) error
	Read(fd int, buf []byte) (int, error)
	Write(fd int, buf []byte) (int, error)

	// DialUDP creates an unconnected datagram socket; the caller addresses
	// every send explicitly so a per-connection DNAT override can still
	// retarget individual packets.
	DialUDP() (fd int, err error)
	SendToUDP(fd int, buf []byte, dst [4]byte, port uint16) (int, error)
	RecvFromUDP(fd int, buf []byte) (n int, src [4]byte, srcPort uint16, err error)

	Close(fd int) error
}

// rawICMPSocket abstracts the single process-wide raw ICMP socket the
// engine relays echoes through.
type rawICMPSocket interface {
	SendTo(dst [4]byte, buf []byte) error
	// Recv returns the ICMP payload (IP header already stripped by the
	// kernel for raw ICMP sockets) and the source IP it arrived from.
	Recv(buf []byte) (n int, src [4]byte, err error)
	Fd() int
	Close() error
}
