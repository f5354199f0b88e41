package p4rt

import (
	"testing"

	p4config "github.com/p4lang/p4runtime/go/p4/config/v1"
	p4v1 "github.com/p4lang/p4runtime/go/p4/v1"
	"github.com/stretchr/testify/require"
)

func TestEncodeValue(t *testing.T) {
	tests := []struct {
		name     string
		value    uint64
		bitwidth int32
		expected []byte
	}{
		{name: "zero", value: 0, bitwidth: 32, expected: []byte{0x00}},
		{name: "one bit", value: 1, bitwidth: 1, expected: []byte{0x01}},
		{name: "port", value: 4, bitwidth: 9, expected: []byte{0x04}},
		{name: "wide port", value: 0x1ff, bitwidth: 9, expected: []byte{0x01, 0xff}},
		{name: "leading zeros stripped", value: 0x000000ff, bitwidth: 32, expected: []byte{0xff}},
		{name: "mask", value: 0xffff0000, bitwidth: 32, expected: []byte{0xff, 0xff, 0x00, 0x00}},
		{name: "64 bits", value: ^uint64(0), bitwidth: 64, expected: []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := EncodeValue(tt.value, tt.bitwidth)
			require.NoError(t, err)
			require.Equal(t, tt.expected, b)

			v, err := DecodeValue(b)
			require.NoError(t, err)
			require.Equal(t, tt.value, v)
		})
	}
}

func TestEncodeValueOverflow(t *testing.T) {
	_, err := EncodeValue(2, 1)
	require.Error(t, err)

	_, err = EncodeValue(0x200, 9)
	require.Error(t, err)

	_, err = EncodeValue(1, 0)
	require.Error(t, err)
}

func TestDecodeValueTooWide(t *testing.T) {
	v, err := DecodeValue([]byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0x2a})
	require.NoError(t, err)
	require.Equal(t, uint64(0x2a), v)

	_, err = DecodeValue([]byte{1, 0, 0, 0, 0, 0, 0, 0, 0})
	require.Error(t, err)
}

func matchField(kind p4config.MatchField_MatchType, bitwidth int32) *p4config.MatchField {
	return &p4config.MatchField{
		Id:       1,
		Name:     "hdr.ipv4.src_addr",
		Bitwidth: bitwidth,
		Match:    &p4config.MatchField_MatchType_{MatchType: kind},
	}
}

func TestEncodeMatchTernaryMasksValue(t *testing.T) {
	match, err := encodeMatch(
		matchField(p4config.MatchField_TERNARY, 32),
		Ternary("hdr.ipv4.src_addr", 0x8cb40505, 0xffff0000),
	)
	require.NoError(t, err)

	ternary := match.GetTernary()
	require.NotNil(t, ternary)
	require.Equal(t, []byte{0x8c, 0xb4, 0x00, 0x00}, ternary.GetValue())
	require.Equal(t, []byte{0xff, 0xff, 0x00, 0x00}, ternary.GetMask())
}

func TestEncodeMatchTernaryWildcardOmitted(t *testing.T) {
	match, err := encodeMatch(
		matchField(p4config.MatchField_TERNARY, 32),
		Ternary("hdr.ipv4.src_addr", 0x01020304, 0),
	)
	require.NoError(t, err)
	require.Nil(t, match)
}

func TestEncodeMatchTernaryFromExactKey(t *testing.T) {
	match, err := encodeMatch(
		matchField(p4config.MatchField_TERNARY, 1),
		Exact("hdr.zoom.is_zoom_pkt", 1),
	)
	require.NoError(t, err)
	require.Equal(t, []byte{0x01}, match.GetTernary().GetMask())
}

func TestEncodeMatchLPM(t *testing.T) {
	match, err := encodeMatch(
		matchField(p4config.MatchField_LPM, 32),
		Ternary("hdr.ipv4.src_addr", 0x80700001, 0xffffff00),
	)
	require.NoError(t, err)
	require.Equal(t, int32(24), match.GetLpm().GetPrefixLen())
	require.Equal(t, []byte{0x80, 0x70, 0x00, 0x00}, match.GetLpm().GetValue())

	_, err = encodeMatch(
		matchField(p4config.MatchField_LPM, 32),
		Ternary("hdr.ipv4.src_addr", 0, 0xff00ff00),
	)
	require.Error(t, err)
}

func TestEncodeMatchExactRejectsMask(t *testing.T) {
	_, err := encodeMatch(
		matchField(p4config.MatchField_EXACT, 32),
		Ternary("hdr.ipv4.src_addr", 0x01000000, 0xff000000),
	)
	require.Error(t, err)
}

func TestDecodeMatch(t *testing.T) {
	exact := &p4v1.FieldMatch{
		FieldMatchType: &p4v1.FieldMatch_Exact_{Exact: &p4v1.FieldMatch_Exact{Value: []byte{0x01}}},
	}
	require.Equal(t, "ig_md.is_zoom_pkt=0x1", decodeMatch("ig_md.is_zoom_pkt", exact))

	ternary := &p4v1.FieldMatch{
		FieldMatchType: &p4v1.FieldMatch_Ternary_{Ternary: &p4v1.FieldMatch_Ternary{
			Value: []byte{0x8c, 0xb4, 0x00, 0x00},
			Mask:  []byte{0xff, 0xff, 0x00, 0x00},
		}},
	}
	require.Equal(t, "hdr.ipv4.src_addr=0x8cb40000&&&0xffff0000", decodeMatch("hdr.ipv4.src_addr", ternary))
}
