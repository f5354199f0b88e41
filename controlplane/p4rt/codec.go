package p4rt

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"strings"

	p4config "github.com/p4lang/p4runtime/go/p4/config/v1"
	p4v1 "github.com/p4lang/p4runtime/go/p4/v1"
)

// KeyField is one match field of a table key.
type KeyField struct {
	// Name is the match field name as it appears in the P4Info, e.g.
	// "hdr.ipv4.src_addr".
	Name  string
	Value uint64
	// Mask is applied to ternary and LPM fields when Masked is set.
	Mask   uint64
	Masked bool
}

// Exact returns a key field matching the value exactly.
func Exact(name string, value uint64) KeyField {
	return KeyField{Name: name, Value: value}
}

// Ternary returns a key field matching value under mask.
func Ternary(name string, value uint64, mask uint64) KeyField {
	return KeyField{Name: name, Value: value, Mask: mask, Masked: true}
}

func (m KeyField) String() string {
	if m.Masked {
		return fmt.Sprintf("%s=%#x&&&%#x", m.Name, m.Value, m.Mask)
	}
	return fmt.Sprintf("%s=%#x", m.Name, m.Value)
}

// DataField is one action parameter.
type DataField struct {
	Name  string
	Value uint64
}

// Param returns an action parameter.
func Param(name string, value uint64) DataField {
	return DataField{Name: name, Value: value}
}

func (m DataField) String() string {
	return fmt.Sprintf("%s=%#x", m.Name, m.Value)
}

// EncodeValue encodes v as a canonical byte string of a field that is
// bitwidth bits wide: big-endian, without leading zero bytes, at least one
// byte long.
func EncodeValue(v uint64, bitwidth int32) ([]byte, error) {
	if bitwidth <= 0 {
		return nil, fmt.Errorf("invalid bitwidth %d", bitwidth)
	}
	if bitwidth < 64 && v>>uint(bitwidth) != 0 {
		return nil, fmt.Errorf("value %#x does not fit in %d bits", v, bitwidth)
	}

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)

	skip := bits.LeadingZeros64(v) / 8
	if skip == 8 {
		skip = 7
	}
	return append([]byte(nil), buf[skip:]...), nil
}

// DecodeValue is the inverse of EncodeValue for values up to 64 bits.
func DecodeValue(b []byte) (uint64, error) {
	for len(b) > 8 && b[0] == 0 {
		b = b[1:]
	}
	if len(b) > 8 {
		return 0, fmt.Errorf("value of %d bytes does not fit in 64 bits", len(b))
	}

	var v uint64
	for _, octet := range b {
		v = v<<8 | uint64(octet)
	}
	return v, nil
}

func fullMask(bitwidth int32) uint64 {
	if bitwidth >= 64 {
		return ^uint64(0)
	}
	return 1<<uint(bitwidth) - 1
}

// prefixLen returns the number of leading ones of a contiguous mask of the
// given bitwidth.
func prefixLen(mask uint64, bitwidth int32) (int32, error) {
	if bitwidth > 64 {
		return 0, fmt.Errorf("bitwidth %d is not supported", bitwidth)
	}

	full := fullMask(bitwidth)
	mask &= full
	ones := int32(bits.OnesCount64(mask))
	if contiguous := full &^ (full >> uint(ones)); mask != contiguous {
		return 0, fmt.Errorf("mask %#x is not a prefix mask", mask)
	}

	return ones, nil
}

// encodeMatch builds the runtime match for a key field according to the
// field's match kind. A nil match with a nil error means "don't care" and
// must be omitted from the entry.
func encodeMatch(field *p4config.MatchField, key KeyField) (*p4v1.FieldMatch, error) {
	bitwidth := field.GetBitwidth()
	full := fullMask(bitwidth)

	mask := full
	if key.Masked {
		mask = key.Mask & full
	}
	value := key.Value & mask

	encodedValue, err := EncodeValue(value, bitwidth)
	if err != nil {
		return nil, fmt.Errorf("field %q: %w", key.Name, err)
	}

	match := &p4v1.FieldMatch{FieldId: field.GetId()}

	switch field.GetMatchType() {
	case p4config.MatchField_EXACT:
		if key.Masked && mask != full {
			return nil, fmt.Errorf("field %q: exact match does not take a mask", key.Name)
		}
		match.FieldMatchType = &p4v1.FieldMatch_Exact_{
			Exact: &p4v1.FieldMatch_Exact{Value: encodedValue},
		}
	case p4config.MatchField_TERNARY:
		if mask == 0 {
			return nil, nil
		}
		encodedMask, err := EncodeValue(mask, bitwidth)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key.Name, err)
		}
		match.FieldMatchType = &p4v1.FieldMatch_Ternary_{
			Ternary: &p4v1.FieldMatch_Ternary{Value: encodedValue, Mask: encodedMask},
		}
	case p4config.MatchField_LPM:
		plen, err := prefixLen(mask, bitwidth)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key.Name, err)
		}
		if plen == 0 {
			return nil, nil
		}
		match.FieldMatchType = &p4v1.FieldMatch_Lpm{
			Lpm: &p4v1.FieldMatch_LPM{Value: encodedValue, PrefixLen: plen},
		}
	case p4config.MatchField_OPTIONAL:
		match.FieldMatchType = &p4v1.FieldMatch_Optional_{
			Optional: &p4v1.FieldMatch_Optional{Value: encodedValue},
		}
	case p4config.MatchField_RANGE:
		match.FieldMatchType = &p4v1.FieldMatch_Range_{
			Range: &p4v1.FieldMatch_Range{Low: encodedValue, High: encodedValue},
		}
	default:
		return nil, fmt.Errorf("field %q: unsupported match type %s", key.Name, field.GetMatchType())
	}

	return match, nil
}

// decodeMatch renders a runtime field match in the key notation used when
// printing tables.
func decodeMatch(name string, match *p4v1.FieldMatch) string {
	switch m := match.GetFieldMatchType().(type) {
	case *p4v1.FieldMatch_Exact_:
		return fmt.Sprintf("%s=%s", name, hexBytes(m.Exact.GetValue()))
	case *p4v1.FieldMatch_Ternary_:
		return fmt.Sprintf("%s=%s&&&%s", name, hexBytes(m.Ternary.GetValue()), hexBytes(m.Ternary.GetMask()))
	case *p4v1.FieldMatch_Lpm:
		return fmt.Sprintf("%s=%s/%d", name, hexBytes(m.Lpm.GetValue()), m.Lpm.GetPrefixLen())
	case *p4v1.FieldMatch_Optional_:
		return fmt.Sprintf("%s=%s", name, hexBytes(m.Optional.GetValue()))
	case *p4v1.FieldMatch_Range_:
		return fmt.Sprintf("%s=%s..%s", name, hexBytes(m.Range.GetLow()), hexBytes(m.Range.GetHigh()))
	default:
		return name + "=?"
	}
}

func hexBytes(b []byte) string {
	if v, err := DecodeValue(b); err == nil {
		return fmt.Sprintf("%#x", v)
	}

	var sb strings.Builder
	sb.WriteString("0x")
	for _, octet := range b {
		fmt.Fprintf(&sb, "%02x", octet)
	}
	return sb.String()
}
