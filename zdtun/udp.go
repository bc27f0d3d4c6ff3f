package zdtun

// forwardUDP handles UDP forwarding: connect-on-first-packet, echo replies
// back, and early purge once a DNS response comes through.
func (e *Engine) forwardUDP(conn *Conn, p *Packet, now int64) error {
	if conn.status == StatusNew {
		fd, err := e.dial.DialUDP()
		if err != nil {
			e.destroyConn(conn)
			return newError(ErrSend, err.Error())
		}
		e.openSocket(conn, fd)
		conn.status = StatusConnected
	}

	dst, port := conn.dialTarget()
	if _, err := e.dial.SendToUDP(conn.sock, p.Payload, dst, port); err != nil {
		e.closeConn(conn)
		return newError(ErrSend, err.Error())
	}
	return nil
}

// onUDPReadable handles a reply on a UDP forwarding socket: rebuild the
// UDP/IP headers with ports and addresses swapped, and eagerly close the
// connection if this looks like a DNS response (port 53, QR bit set).
func (e *Engine) onUDPReadable(conn *Conn, now int64) error {
	n, _, _, err := e.dial.RecvFromUDP(conn.sock, e.readBuf[:])
	if err != nil {
		if isPeerSocketError(err) {
			e.closeConn(conn)
			return nil
		}
		e.closeConn(conn)
		return newError(ErrSend, err.Error())
	}
	payload := e.readBuf[:n]

	buf := e.scratch[:]
	rt := conn.tuple.Reversed()
	m := copy(buf[28:28+len(payload)], payload)
	seg := writeUDPHeader(buf[20:], rt.SrcPort, rt.DstPort, m)
	pkt := writeIPv4Header(buf, rt.SrcIP, rt.DstIP, ipProtoUDP, len(seg))
	full := buf[:len(pkt)+len(seg)]

	if err := e.send(full, conn); err != nil {
		return err
	}

	if conn.tuple.DstPort == 53 && isDNSResponse(payload) {
		e.closeConn(conn)
	}
	return nil
}
