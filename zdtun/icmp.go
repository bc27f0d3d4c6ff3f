package zdtun

import (
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

const protoICMPv4 = 1 // iana protocol number icmp.ParseMessage expects

// forwardICMP relays the echo body unchanged through the single shared raw
// socket.
func (e *Engine) forwardICMP(conn *Conn, p *Packet, now int64) error {
	if conn.status == StatusNew {
		conn.status = StatusConnected
	}
	dst, _ := conn.dialTarget() // ICMP has no port; DstPort slot holds echo seq, not an address component
	if err := e.icmp.SendTo(dst, p.L4Raw()); err != nil {
		e.closeConn(conn)
		return newError(ErrSend, err.Error())
	}
	return nil
}

// onICMPSocketReadable drains one reply from the shared raw socket and, if
// it matches a tracked echo request, relays it back to the client.
// Matching keys on (dst_ip, echo_id, echo_seq) rather than just
// (dst_ip, echo_id), to avoid collisions between two clients using the
// same echo id against the same remote.
func (e *Engine) onICMPSocketReadable(now int64) error {
	n, src, err := e.icmp.Recv(e.readBuf[:])
	if err != nil {
		return nil // transient raw-socket read error; nothing to close
	}
	msg, err := icmp.ParseMessage(protoICMPv4, e.readBuf[:n])
	if err != nil || msg.Type != ipv4.ICMPTypeEchoReply {
		return nil // malformed or not an echo reply: drop silently
	}
	echo, ok := msg.Body.(*icmp.Echo)
	if !ok {
		return nil
	}

	var found *Conn
	e.table.iterate(func(c *Conn) bool {
		if c.tuple.Proto != ProtoICMP || c.icmp == nil {
			return true
		}
		if c.tuple.DstIP != src {
			return true
		}
		if c.icmp.echoID != uint16(echo.ID) || c.icmp.echoSeq != uint16(echo.Seq) {
			return true
		}
		found = c
		return false
	})
	if found == nil {
		return nil // no match: dropped silently
	}
	found.touch(now)

	raw, err := msg.Marshal(nil)
	if err != nil {
		return nil
	}
	buf := e.scratch[:]
	rt := found.tuple.Reversed()
	m := copy(buf[20:20+len(raw)], raw)
	pkt := writeIPv4Header(buf, rt.SrcIP, rt.DstIP, ipProtoICMP, m)
	full := buf[:len(pkt)+m]
	return e.send(full, found)
}
