package zdtun

// isDNSResponse reports whether payload looks like a DNS message with the
// QR (response) bit set in its flags. This is the only DNS-aware logic in
// the engine: it exists purely to trigger early connection purging on a
// reply, not to validate or parse the message otherwise.
func isDNSResponse(payload []byte) bool {
	if len(payload) < 4 {
		return false
	}
	// DNS header byte 2 (0-indexed) holds QR(1)/Opcode(4)/AA(1)/TC(1)/RD(1).
	// QR is the high bit.
	return payload[2]&0x80 != 0
}
