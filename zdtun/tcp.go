package zdtun

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"syscall"
)

// randomISN draws a random initial sequence number. A fixed seed is
// predictable and lets an off-path observer guess sequence numbers, so
// each connection gets its own; EngineOptions.FixedISN opts back into the
// legacy constant for tests that assert exact bytes.
func randomISN() uint32 {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand failing means the platform CSPRNG is broken; fall
		// back to the legacy seed rather than panicking mid-handshake.
		return legacySeed
	}
	return binary.BigEndian.Uint32(b[:])
}

func min16(a uint16, b uint16) uint16 {
	if a < b {
		return a
	}
	return b
}

// isPeerSocketError reports whether err is one of the "peer gone" errors
// (connection refused/reset/aborted): these close the connection quietly
// and report success to the caller, as opposed to any other transient
// syscall error which reports failure.
func isPeerSocketError(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED)
}

// buildTCPReply synthesizes a full IPv4+TCP reply packet into the engine's
// scratch buffer (single writer, reused across calls) with src/dst
// swapped relative to conn's tuple, and returns the slice actually used.
func (e *Engine) buildTCPReply(conn *Conn, seq, ack uint32, flags uint8, payload []byte) []byte {
	buf := e.scratch[:]
	rt := conn.tuple.Reversed()
	n := copy(buf[40:40+len(payload)], payload)
	seg := writeTCPHeader(buf[20:], rt.SrcPort, rt.DstPort, seq, ack, flags, true, e.maxWindow, n, rt.SrcIP, rt.DstIP)
	pkt := writeIPv4Header(buf, rt.SrcIP, rt.DstIP, ipProtoTCP, len(seg))
	return buf[:len(pkt)+len(seg)]
}

// sendTCPSegment builds and sends a segment carrying conn's current
// zdtun_seq/client_seq, then advances zdtun_seq: by len(payload) for data,
// plus one more if SYN or FIN is set, keeping it strictly monotonic.
func (e *Engine) sendTCPSegment(conn *Conn, flags uint8, payload []byte) error {
	t := conn.tcp
	pkt := e.buildTCPReply(conn, t.zdtunSeq, t.clientSeq, flags, payload)
	t.zdtunSeq += uint32(len(payload))
	if flags&(TCPFlagSYN|TCPFlagFIN) != 0 {
		t.zdtunSeq++
	}
	return e.send(pkt, conn)
}

// forwardTCP routes an inbound client TCP segment by the connection's
// current status.
func (e *Engine) forwardTCP(conn *Conn, p *Packet, noAck bool, now int64) error {
	switch conn.status {
	case StatusNew:
		return e.handleNewTCP(conn, p, now)
	case StatusConnecting:
		return nil // silently dropped; client is expected to retransmit
	case StatusConnected:
		return e.handleConnectedTCP(conn, p, noAck, now)
	default: // StatusClosed
		return nil
	}
}

// handleNewTCP processes the first SYN on a fresh record: opens the
// forwarding socket and starts (or completes) the async connect.
func (e *Engine) handleNewTCP(conn *Conn, p *Packet, now int64) error {
	t := conn.tcp
	t.clientSeq = p.TCPSeq // finalized (+1) once the SYN completion path runs

	dst, port := conn.dialTarget()
	fd, inProgress, err := e.dial.DialTCPNonblocking(dst, port)
	if err != nil {
		e.destroyConn(conn)
		return newError(ErrSend, err.Error())
	}
	e.openSocket(conn, fd)

	if inProgress {
		conn.status = StatusConnecting
		t.wantWrite = true
		return nil
	}
	conn.status = StatusConnected
	return e.tcpSynCompletion(conn, now)
}

// onTCPWritable is the async-connect-completion handler: fired when a
// CONNECTING socket becomes writable.
func (e *Engine) onTCPWritable(conn *Conn, now int64) error {
	if conn.status != StatusConnecting {
		return nil
	}
	conn.tcp.wantWrite = false
	if err := e.dial.SOError(conn.sock); err != nil {
		e.closeConn(conn)
		return nil
	}
	conn.status = StatusConnected
	return e.tcpSynCompletion(conn, now)
}

// tcpSynCompletion seeds the sequence space and emits SYN+ACK, run once a
// connect has succeeded whether synchronously or asynchronously.
func (e *Engine) tcpSynCompletion(conn *Conn, now int64) error {
	t := conn.tcp
	t.clientSeq++
	if e.fixedISN {
		t.zdtunSeq = legacySeed
	} else {
		t.zdtunSeq = randomISN()
	}
	_ = e.dial.SetBlocking(conn.sock, true)
	return e.sendTCPSegment(conn, TCPFlagSYN|TCPFlagACK, nil)
}

// handleConnectedTCP processes a client segment once the connection is
// already established.
func (e *Engine) handleConnectedTCP(conn *Conn, p *Packet, noAck bool, now int64) error {
	t := conn.tcp

	if p.TCPFlags&TCPFlagRST != 0 {
		e.closeConn(conn)
		return nil
	}

	if p.TCPFlags&TCPFlagFIN != 0 && p.TCPFlags&TCPFlagACK != 0 {
		t.clientSeq += uint32(len(p.Payload)) + 1
		return e.sendTCPSegment(conn, TCPFlagACK, nil)
	}

	if conn.sock == sentinelSocket {
		return nil // server already closed; keeping the record alive just to ack the client's FIN
	}

	if p.TCPFlags&TCPFlagACK != 0 {
		inFlight := t.zdtunSeq - p.TCPAck // uint32 subtraction wraps mod 2^32
		t.window = int64(min16(p.TCPWin, e.maxWindow)) - int64(inFlight)
		e.drainPending(conn)
	}

	if len(p.Payload) > 0 {
		if _, err := e.dial.Write(conn.sock, p.Payload); err != nil {
			e.closeConn(conn)
			return newError(ErrSend, err.Error())
		}
		if !noAck {
			t.clientSeq += uint32(len(p.Payload))
			return e.sendTCPSegment(conn, TCPFlagACK, nil)
		}
	}
	return nil
}

// onTCPReadable handles the forwarding socket becoming readable: either a
// server reply is ready, EOF, or an error.
func (e *Engine) onTCPReadable(conn *Conn, now int64) error {
	t := conn.tcp
	n, err := e.dial.Read(conn.sock, e.readBuf[:])
	if err != nil {
		if isPeerSocketError(err) {
			e.closeConn(conn)
			return nil
		}
		e.closeConn(conn)
		return newError(ErrSend, err.Error())
	}

	if n == 0 {
		if !t.finAckSent {
			// Drain whatever the current window allows before sending FIN,
			// so a server that closes right after writing its last bytes
			// doesn't lose them to the window being temporarily exhausted.
			if t.pending != nil {
				e.drainPending(conn)
			}
			if err := e.sendTCPSegment(conn, TCPFlagFIN|TCPFlagACK, nil); err != nil {
				return err
			}
			t.finAckSent = true
		}
		// Anything still queued after the drain above is unreachable: the
		// socket is going away and the client window never grew enough to
		// take it.
		t.pending = nil
		e.releaseSocket(conn)
		return nil
	}

	payload := e.readBuf[:n]
	if t.pending != nil || t.window < int64(n) {
		buf := append([]byte(nil), payload...)
		if t.pending == nil {
			t.pending = &pendingData{bytes: buf}
		} else {
			t.pending.bytes = append(t.pending.bytes[t.pending.sent:], buf...)
			t.pending.sent = 0
		}
		e.drainPending(conn)
		return nil
	}

	if err := e.sendTCPSegment(conn, TCPFlagPSH|TCPFlagACK, payload); err != nil {
		return err
	}
	t.window -= int64(n)
	return nil
}

// drainPending emits as much of the pending buffer as the current window
// allows, freeing it once exhausted.
func (e *Engine) drainPending(conn *Conn) {
	t := conn.tcp
	for t.pending != nil && t.window > 0 && conn.sock != sentinelSocket {
		remaining := t.pending.remaining()
		toSend := remaining
		if int64(toSend) > t.window {
			toSend = int(t.window)
		}
		// window is derived from the client's advertised uint16 window and
		// can exceed what a single reply's scratch buffer can carry
		// alongside its IP+TCP header; never build a segment larger than
		// that regardless of how much backlog and window are available.
		if toSend > maxReadSize {
			toSend = maxReadSize
		}
		if toSend <= 0 {
			break
		}
		chunk := t.pending.bytes[t.pending.sent : t.pending.sent+toSend]
		if err := e.sendTCPSegment(conn, TCPFlagPSH|TCPFlagACK, chunk); err != nil {
			return
		}
		t.pending.sent += toSend
		t.window -= int64(toSend)
		if t.pending.remaining() == 0 {
			t.pending = nil
		}
	}
}

// closeTCP is the TCP half of close_conn: emits RST+ACK unless the
// connection already completed a clean FIN exchange, then releases the
// socket and any queued pending data.
func (e *Engine) closeTCP(conn *Conn) {
	t := conn.tcp
	if conn.status == StatusConnected && !t.finAckSent && conn.sock != sentinelSocket {
		_ = e.sendTCPSegment(conn, TCPFlagRST|TCPFlagACK, nil)
	}
	e.releaseSocket(conn)
	t.pending = nil
}
