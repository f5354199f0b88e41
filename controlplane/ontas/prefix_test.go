package ontas

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePrefixMasks(t *testing.T) {
	tests := []struct {
		prefix string
		key    uint32
		mask1  uint32
		mask2  uint32
	}{
		{prefix: "10.1.2.3/8", key: 0x0a000000, mask1: 0xff000000, mask2: 0x000000ff},
		{prefix: "140.180.0.0/16", key: 0x8cb40000, mask1: 0xffff0000, mask2: 0x0000ffff},
		{prefix: "128.112.0.0/24", key: 0x80700000, mask1: 0xffffff00, mask2: 0x000000ff},
		{prefix: "192.168.1.77/32", key: 0xc0a8014d, mask1: 0xffffffff, mask2: 0x00000000},
	}

	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			spec, err := ParsePrefix(tt.prefix)
			require.NoError(t, err)
			require.Equal(t, tt.prefix, spec.Prefix)
			require.Equal(t, tt.key, spec.Key())
			require.Equal(t, tt.mask1, spec.Mask1)
			require.Equal(t, tt.mask2, spec.Mask2)
		})
	}
}

func TestParsePrefixKeepsHostBits(t *testing.T) {
	spec, err := ParsePrefix("10.1.2.3/8")
	require.NoError(t, err)
	require.Equal(t, uint32(0x0a010203), spec.Addr)
}

func TestParsePrefixErrors(t *testing.T) {
	for _, prefix := range []string{"10.0.0.0/28", "10.0.0.0/0", "10.0.0.0/12"} {
		_, err := ParsePrefix(prefix)
		require.ErrorIs(t, err, ErrUnsupportedPrefixLen, prefix)
	}

	for _, prefix := range []string{"10.0.0.0", "10.0.0/16", "2001:db8::/32", "host/24"} {
		_, err := ParsePrefix(prefix)
		require.Error(t, err, prefix)
		require.NotErrorIs(t, err, ErrUnsupportedPrefixLen, prefix)
	}
}

func TestPrefixRange(t *testing.T) {
	spec, err := ParsePrefix("140.180.5.5/16")
	require.NoError(t, err)

	first, last := spec.Range()
	require.Equal(t, netip.MustParseAddr("140.180.0.0"), first)
	require.Equal(t, netip.MustParseAddr("140.180.255.255"), last)

	spec, err = ParsePrefix("1.2.3.4/32")
	require.NoError(t, err)

	first, last = spec.Range()
	require.Equal(t, first, last)
}

func TestParsePrefixList(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "list literal",
			input:    "['140.180.0.0/16','128.112.0.0/24']",
			expected: []string{"140.180.0.0/16", "128.112.0.0/24"},
		},
		{
			name:     "double quoted literal",
			input:    ` ["1.2.3.4/16", "2.3.4.5/24"] `,
			expected: []string{"1.2.3.4/16", "2.3.4.5/24"},
		},
		{
			name:     "comma separated",
			input:    "140.180.0.0/16, 128.112.0.0/24",
			expected: []string{"140.180.0.0/16", "128.112.0.0/24"},
		},
		{
			name:     "space separated",
			input:    "140.180.0.0/16 128.112.0.0/24",
			expected: []string{"140.180.0.0/16", "128.112.0.0/24"},
		},
		{
			name:     "empty",
			input:    "",
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prefixes, err := ParsePrefixList(tt.input)
			require.NoError(t, err)
			require.Equal(t, tt.expected, prefixes)
		})
	}

	_, err := ParsePrefixList("['140.180.0.0/16'")
	require.Error(t, err)
}
