package packet

import (
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

const (
	// IPv4HeaderLen is the fixed IPv4 header size handled by DecodeReply.
	// IP options are not supported.
	IPv4HeaderLen = 20
	// ICMPHeaderLen is the size of an ICMP echo header.
	ICMPHeaderLen = 8
	// MaxPayload is the largest echo payload that fits in an IPv4 datagram.
	MaxPayload = 65535 - IPv4HeaderLen - ICMPHeaderLen

	fillStart = 0x42
)

var (
	ErrTruncated = errors.New("truncated reply")
	ErrMalformed = errors.New("malformed reply")
)

// IPHeader holds the fields of a received IPv4 header.
type IPHeader struct {
	Version     uint8      `json:"version"`
	IHL         uint8      `json:"ihl"`
	TOS         uint8      `json:"tos"`
	TotalLength uint16     `json:"total_length"`
	ID          uint16     `json:"id"`
	Flags       uint8      `json:"flags"`
	FragOffset  uint16     `json:"frag_offset"`
	TTL         uint8      `json:"ttl"`
	Protocol    uint8      `json:"protocol"`
	Checksum    uint16     `json:"checksum"`
	Src         netip.Addr `json:"src"`
	Dst         netip.Addr `json:"dst"`
}

// ICMPHeader holds the fields of an ICMP echo header.
type ICMPHeader struct {
	Type     uint8  `json:"type"`
	Code     uint8  `json:"code"`
	Checksum uint16 `json:"checksum"`
	ID       uint16 `json:"id"`
	Seq      uint16 `json:"seq"`
}

// IsEchoReply reports whether the header is an ICMP echo reply.
func (h ICMPHeader) IsEchoReply() bool {
	return h.Type == layers.ICMPv4TypeEchoReply && h.Code == 0
}

// Reply is a decoded IP+ICMP packet. ReceivedAt is filled in by the receiver.
type Reply struct {
	IP          IPHeader   `json:"ip"`
	ICMP        ICMPHeader `json:"icmp"`
	PayloadSize int        `json:"payload_size"`
	ReceivedAt  time.Time  `json:"received_at"`
}

// Fill returns the deterministic echo payload: byte i is (0x42+i) mod 256.
func Fill(size int) []byte {
	b := make([]byte, size)
	for i := range b {
		b[i] = byte(fillStart + i)
	}
	return b
}

// BuildEchoRequest returns an ICMP echo request carrying id, seq and size
// bytes of Fill payload, with a valid checksum.
func BuildEchoRequest(id, seq uint16, size int) ([]byte, error) {
	if size < 0 || size > MaxPayload {
		return nil, fmt.Errorf("payload size %d out of range 0-%d", size, MaxPayload)
	}
	icmp := &layers.ICMPv4{
		TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0),
		Id:       id,
		Seq:      seq,
	}
	payload := gopacket.Payload(Fill(size))

	// First pass with a zero checksum, second pass with the real one.
	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{}, icmp, payload); err != nil {
		return nil, err
	}
	icmp.Checksum = Checksum(buf.Bytes())
	if err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{}, icmp, payload); err != nil {
		return nil, err
	}

	out := make([]byte, len(buf.Bytes()))
	copy(out, buf.Bytes())
	return out, nil
}

// DecodeReply decodes a raw buffer holding a 20-byte IPv4 header followed by
// an ICMP header. Checksums are not validated here.
func DecodeReply(b []byte) (*Reply, error) {
	if len(b) < IPv4HeaderLen+ICMPHeaderLen {
		return nil, fmt.Errorf("%w: got %d bytes, need %d", ErrTruncated, len(b), IPv4HeaderLen+ICMPHeaderLen)
	}

	var ip layers.IPv4
	if err := ip.DecodeFromBytes(b[:IPv4HeaderLen], gopacket.NilDecodeFeedback); err != nil {
		return nil, fmt.Errorf("%w: ipv4 header: %v", ErrMalformed, err)
	}
	var icmp layers.ICMPv4
	if err := icmp.DecodeFromBytes(b[IPv4HeaderLen:], gopacket.NilDecodeFeedback); err != nil {
		return nil, fmt.Errorf("%w: icmp header: %v", ErrMalformed, err)
	}

	src, _ := netip.AddrFromSlice(ip.SrcIP)
	dst, _ := netip.AddrFromSlice(ip.DstIP)

	return &Reply{
		IP: IPHeader{
			Version:     ip.Version,
			IHL:         ip.IHL,
			TOS:         ip.TOS,
			TotalLength: ip.Length,
			ID:          ip.Id,
			Flags:       uint8(ip.Flags),
			FragOffset:  ip.FragOffset,
			TTL:         ip.TTL,
			Protocol:    uint8(ip.Protocol),
			Checksum:    ip.Checksum,
			Src:         src.Unmap(),
			Dst:         dst.Unmap(),
		},
		ICMP: ICMPHeader{
			Type:     icmp.TypeCode.Type(),
			Code:     icmp.TypeCode.Code(),
			Checksum: icmp.Checksum,
			ID:       icmp.Id,
			Seq:      icmp.Seq,
		},
		PayloadSize: len(b) - IPv4HeaderLen - ICMPHeaderLen,
	}, nil
}

// WrapIPv4 prepends a 20-byte IPv4 header to an ICMP message. Kernel ICMP
// sockets hand out the message without its IP header; this restores the
// layout DecodeReply expects.
func WrapIPv4(src, dst netip.Addr, ttl uint8, icmp []byte) ([]byte, error) {
	src, dst = src.Unmap(), dst.Unmap()
	if !src.Is4() {
		src = netip.IPv4Unspecified()
	}
	if !dst.Is4() {
		dst = netip.IPv4Unspecified()
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      ttl,
		Protocol: layers.IPProtocolICMPv4,
		SrcIP:    src.AsSlice(),
		DstIP:    dst.AsSlice(),
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ip, gopacket.Payload(icmp)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
