package ontas

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zoomcap/zoomcap-p4/common/go/xnetip"
)

// ErrUnsupportedPrefixLen is returned for prefixes the hash actions cannot
// handle.
var ErrUnsupportedPrefixLen = errors.New("unsupported prefix length, can only handle /8, /16, /24 and /32")

// hashMasks maps a prefix length to the mask passed as the second action
// parameter. The first one is always the netmask of the prefix.
var hashMasks = map[int]uint32{
	8:  0x000000ff,
	16: 0x0000ffff,
	24: 0x000000ff,
	32: 0x00000000,
}

// PrefixSpec is an IPv4 prefix whose addresses are anonymized, together with
// the masks the hash actions work with.
type PrefixSpec struct {
	// Prefix is the prefix as given by the user.
	Prefix string
	// Addr is the prefix address in host order, not masked.
	Addr uint32
	// Mask1 selects the prefix part of an address.
	Mask1 uint32
	// Mask2 selects the part of an address fed into the hash.
	Mask2 uint32
}

// ParsePrefix parses an "A.B.C.D/N" prefix.
func ParsePrefix(s string) (PrefixSpec, error) {
	prefix, err := netip.ParsePrefix(strings.TrimSpace(s))
	if err != nil {
		return PrefixSpec{}, fmt.Errorf("invalid prefix %q: %w", s, err)
	}

	addr, err := xnetip.Uint32(prefix.Addr())
	if err != nil {
		return PrefixSpec{}, fmt.Errorf("invalid prefix %q: %w", s, err)
	}

	mask2, ok := hashMasks[prefix.Bits()]
	if !ok {
		return PrefixSpec{}, fmt.Errorf("%w: %q", ErrUnsupportedPrefixLen, s)
	}

	return PrefixSpec{
		Prefix: s,
		Addr:   addr,
		Mask1:  xnetip.Mask4(prefix.Bits()),
		Mask2:  mask2,
	}, nil
}

// Key returns the match value, which is the address masked with Mask1.
func (m PrefixSpec) Key() uint32 {
	return m.Addr & m.Mask1
}

// Range returns the first and the last address covered by the prefix.
func (m PrefixSpec) Range() (netip.Addr, netip.Addr) {
	first := xnetip.FromUint32(m.Key())
	bits := 32
	for mask := m.Mask1; mask&1 == 0 && bits > 0; mask >>= 1 {
		bits--
	}
	return first, xnetip.LastAddr(netip.PrefixFrom(first, bits))
}

// ParsePrefixList splits a list of prefixes.
//
// Both a list literal such as "['140.180.0.0/16', '128.112.0.0/24']" and a
// comma or space separated list are accepted. Elements are not validated.
func ParsePrefixList(s string) ([]string, error) {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "[") {
		var out []string
		if err := yaml.Unmarshal([]byte(s), &out); err != nil {
			return nil, fmt.Errorf("failed to parse prefix list %q: %w", s, err)
		}
		return out, nil
	}

	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	}), nil
}
