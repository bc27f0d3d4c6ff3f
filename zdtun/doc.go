// Package zdtun implements a user-space packet-to-socket tunneling engine.
//
// It accepts raw IPv4 packets read from a tun-like device, terminates the
// TCP/UDP/ICMP flow carried inside them against real sockets on the host,
// and synthesizes IPv4 response packets to hand back to the client. It is
// meant to sit underneath a VPN or packet-capture application that owns a
// tun file descriptor but cannot route packets at the kernel level.
//
// The engine is single-threaded and cooperative: every exported method
// performs at most a bounded amount of work and returns. Callers own the
// event loop — they read packets off the tun device, call Forward or
// EasyForward, drive their own readiness primitive (poll/epoll/kqueue) over
// the descriptors returned by Populate, and call Dispatch and Purge on
// their own schedule.
package zdtun
