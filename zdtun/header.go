package zdtun

import (
	"encoding/binary"

	"golang.org/x/net/ipv4"
)

const maxReplySize = 65535 // scratch buffer sized to the max IPv4 datagram.

// maxHeaderOverhead is the largest header the engine ever prepends to a
// forwarded payload when synthesizing a reply (20-byte IPv4 + 20-byte TCP,
// the TCP path being the worst case; UDP and ICMP need less). readBuf is
// capped to maxReplySize-maxHeaderOverhead so that copying a full read
// into scratch alongside its header never overflows the maxReplySize
// scratch buffer.
const maxHeaderOverhead = 40

const maxReadSize = maxReplySize - maxHeaderOverhead

// writeIPv4Header marshals a 20-byte IPv4 header (no options, DF set, TTL
// 64, identification 0) into dst[:20] and returns it. totalLen is the
// L4 header+payload length that follows the IP header. src/dst are
// already the *outbound* addresses (i.e. the client's original
// destination/source, swapped — the engine is the remote peer from the
// client's point of view).
//
// Always computes and patches the checksum, using golang.org/x/net/ipv4's
// header type for the marshal step instead of hand-rolled byte offsets.
func writeIPv4Header(dst []byte, srcIP, dstIP [4]byte, proto uint8, totalLen int) []byte {
	h := &ipv4.Header{
		Version:  4,
		Len:      ipv4.HeaderLen,
		TOS:      0,
		TotalLen: ipv4.HeaderLen + totalLen,
		ID:       0,
		Flags:    ipv4.DontFragment,
		FragOff:  0,
		TTL:      64,
		Protocol: int(proto),
		Checksum: 0,
		Src:      srcIP[:],
		Dst:      dstIP[:],
	}
	raw, err := h.Marshal()
	if err != nil {
		// Marshal only fails on malformed option data; we never set any.
		panic("zdtun: ipv4 header marshal: " + err.Error())
	}
	n := copy(dst, raw)
	// Checksum field is bytes 10:12; zero it, compute, patch.
	dst[10], dst[11] = 0, 0
	sum := ipChecksum(dst[:n])
	binary.BigEndian.PutUint16(dst[10:12], sum)
	return dst[:n]
}

// writeTCPHeader writes a 20-byte TCP header (no options, data offset 5)
// into dst[:20]. The payload of length payloadLen is assumed to already
// sit in dst[20 : 20+payloadLen] (the caller places it there first) so the
// checksum can be computed over header+payload in one pass. Returns the
// header+payload slice.
func writeTCPHeader(dst []byte, srcPort, dstPort uint16, seq, ack uint32, flags uint8, hasAck bool, window uint16, payloadLen int, srcIP, dstIP [4]byte) []byte {
	h := dst[:20]
	binary.BigEndian.PutUint16(h[0:2], srcPort)
	binary.BigEndian.PutUint16(h[2:4], dstPort)
	binary.BigEndian.PutUint32(h[4:8], seq)
	if hasAck {
		binary.BigEndian.PutUint32(h[8:12], ack)
	} else {
		binary.BigEndian.PutUint32(h[8:12], 0)
	}
	h[12] = 5 << 4 // data offset 5, reserved/NS = 0
	h[13] = flags
	binary.BigEndian.PutUint16(h[14:16], window)
	h[16], h[17] = 0, 0 // checksum, zeroed before computing
	h[18], h[19] = 0, 0 // urgent pointer, unused

	full := dst[:20+payloadLen]
	sum := pseudoHeaderChecksum(srcIP, dstIP, ipProtoTCP, len(full), full)
	binary.BigEndian.PutUint16(h[16:18], sum)
	return full
}

// writeUDPHeader writes an 8-byte UDP header into dst[:8]. Checksum is
// explicitly left zero — valid over IPv4, and the engine elects not to
// pay the cost. Returns the header+payload slice.
func writeUDPHeader(dst []byte, srcPort, dstPort uint16, payloadLen int) []byte {
	h := dst[:8]
	binary.BigEndian.PutUint16(h[0:2], srcPort)
	binary.BigEndian.PutUint16(h[2:4], dstPort)
	binary.BigEndian.PutUint16(h[4:6], uint16(8+payloadLen))
	h[6], h[7] = 0, 0
	return dst[:8+payloadLen]
}
