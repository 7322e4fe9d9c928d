package packet

// Checksum computes the RFC 792 Internet checksum over b.
//
// Words are summed in network byte order. A trailing odd byte is treated as
// the high byte of a zero-padded word. The result is ready to be written into
// a header with binary.BigEndian.
func Checksum(b []byte) uint16 {
	var sum uint32

	n := len(b) &^ 1
	for i := 0; i < n; i += 2 {
		sum += uint32(b[i])<<8 | uint32(b[i+1])
	}
	if len(b)%2 == 1 {
		sum += uint32(b[len(b)-1]) << 8
	}

	for sum>>16 != 0 {
		sum = (sum >> 16) + (sum & 0xffff)
	}
	return ^uint16(sum)
}

// Valid reports whether b, a complete message including its checksum field,
// carries a correct checksum.
func Valid(b []byte) bool {
	return Checksum(b) == 0
}
