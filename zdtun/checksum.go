package zdtun

import "encoding/binary"

// ipChecksum computes the RFC 1071 one's-complement checksum over b. It is
// used for both the IPv4 header checksum and as the basis for the TCP/UDP
// pseudo-header checksum; the checksum field itself must be zeroed in b
// before calling this.
func ipChecksum(b []byte) uint16 {
	var sum uint32
	n := len(b)
	i := 0
	for n > 1 {
		sum += uint32(binary.BigEndian.Uint16(b[i : i+2]))
		i += 2
		n -= 2
	}
	if n == 1 {
		sum += uint32(b[i]) << 8
	}
	for sum>>16 != 0 {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return ^uint16(sum)
}

// pseudoHeaderChecksum folds a TCP/UDP pseudo-header (src, dst, zero,
// protocol, L4 length) into an accumulator, then folds hdrAndPayload on
// top, matching the RFC pseudo-header layout used for TCP/UDP checksums.
func pseudoHeaderChecksum(srcIP, dstIP [4]byte, protocol uint8, l4Len int, hdrAndPayload []byte) uint16 {
	ph := make([]byte, 12)
	copy(ph[0:4], srcIP[:])
	copy(ph[4:8], dstIP[:])
	ph[8] = 0
	ph[9] = protocol
	binary.BigEndian.PutUint16(ph[10:12], uint16(l4Len))

	buf := make([]byte, 0, 12+len(hdrAndPayload))
	buf = append(buf, ph...)
	buf = append(buf, hdrAndPayload...)
	return ipChecksum(buf)
}
