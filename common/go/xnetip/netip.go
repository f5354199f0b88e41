package xnetip

import (
	"encoding/binary"
	"fmt"
	"net/netip"
)

// Uint32 returns the IPv4 address as a host-order integer, the form used by
// 32-bit match fields and action parameters.
func Uint32(addr netip.Addr) (uint32, error) {
	if !addr.Is4() {
		return 0, fmt.Errorf("%s is not an IPv4 address", addr)
	}

	b := addr.As4()
	return binary.BigEndian.Uint32(b[:]), nil
}

// FromUint32 is the inverse of Uint32.
func FromUint32(v uint32) netip.Addr {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return netip.AddrFrom4(b)
}

// Mask4 returns the contiguous IPv4 netmask with the given number of leading
// ones.
func Mask4(bits int) uint32 {
	switch {
	case bits <= 0:
		return 0
	case bits >= 32:
		return 0xffffffff
	default:
		return ^uint32(0) << (32 - bits)
	}
}

// LastAddr returns the last address covered by an IPv4 prefix.
func LastAddr(prefix netip.Prefix) netip.Addr {
	v, err := Uint32(prefix.Addr())
	if err != nil {
		return netip.Addr{}
	}
	return FromUint32(v | ^Mask4(prefix.Bits()))
}
