package record

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf16"
	"unicode/utf8"
)

// Key is a Value usable as a primary or index key: a number (Int or finite
// Float), a valid UTF-8 String, or an Array whose elements are all keys.
// Keys order number < String < Array. Int and Float are one number type:
// Int(2) and Float(2) are the same key. Strings compare by UTF-16 code units
// and arrays element-wise, shorter first.
type Key = Value

// Type tags of the binary key encoding. Tag order defines type order.
const (
	tagNumber byte = 0x10
	tagString byte = 0x30
	tagArray  byte = 0x50

	arrayEnd    byte = 0x00
	nulEscape   byte = 0xFF
	maxKeyDepth      = 32
)

// MaxSafeInteger bounds Int keys. Numbers are ordered and encoded as
// float64, which represents every integer in [-2^53, 2^53] exactly.
const MaxSafeInteger = 1 << 53

// ValidateKey reports why v cannot be used as a key, or nil.
func ValidateKey(v Value) error {
	return validateKey(v, 0)
}

func validateKey(v Value, depth int) error {
	if depth > maxKeyDepth {
		return fmt.Errorf("key nesting exceeds %d levels", maxKeyDepth)
	}
	switch val := v.(type) {
	case Int:
		if val > MaxSafeInteger || val < -MaxSafeInteger {
			return fmt.Errorf("integer key %d exceeds ±2^53", int64(val))
		}
		return nil
	case Float:
		if math.IsNaN(float64(val)) || math.IsInf(float64(val), 0) {
			return fmt.Errorf("non-finite number is not a valid key")
		}
		return nil
	case String:
		if !utf8.ValidString(string(val)) {
			return fmt.Errorf("string key is not valid UTF-8")
		}
		return nil
	case Array:
		for i, elem := range val {
			if err := validateKey(elem, depth+1); err != nil {
				return fmt.Errorf("key[%d]: %w", i, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("%s is not a valid key", TypeName(v))
	}
}

// CompareKeys orders two valid keys, returning -1, 0 or 1.
func CompareKeys(a, b Key) int {
	ra, rb := keyRank(a), keyRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch av := a.(type) {
	case Int, Float:
		an, bn := number(av), number(b)
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		}
		return 0
	case String:
		return CompareUTF16(string(av), string(b.(String)))
	case Array:
		bv := b.(Array)
		n := min(len(av), len(bv))
		for i := 0; i < n; i++ {
			if c := CompareKeys(av[i], bv[i]); c != 0 {
				return c
			}
		}
		switch {
		case len(av) < len(bv):
			return -1
		case len(av) > len(bv):
			return 1
		}
		return 0
	}
	return 0
}

// number returns the numeric value of an Int or Float key.
func number(k Key) float64 {
	switch v := k.(type) {
	case Int:
		return float64(v)
	case Float:
		return float64(v)
	}
	return 0
}

func keyRank(k Key) int {
	switch k.(type) {
	case Int, Float:
		return 1
	case String:
		return 2
	case Array:
		return 3
	}
	return 0
}

// EncodeKey returns the order-preserving binary form of a key:
// bytes.Compare on two encodings agrees with CompareKeys on the keys.
//
// Layout:
//   - number: 0x10, float64 bits big-endian; positives get the sign bit set,
//     negatives have every bit inverted, -0 is written as 0
//   - String: 0x30, UTF-16 big-endian code units, unit 0x0000 written as
//     00 00 FF, terminated by 00 00
//   - Array:  0x50, encoded elements, terminated by 0x00
func EncodeKey(k Key) ([]byte, error) {
	if err := ValidateKey(k); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	encodeKey(&buf, k)
	return buf.Bytes(), nil
}

// MustEncodeKey is EncodeKey for keys already known to be valid.
func MustEncodeKey(k Key) []byte {
	b, err := EncodeKey(k)
	if err != nil {
		panic(err)
	}
	return b
}

func encodeKey(buf *bytes.Buffer, k Key) {
	switch val := k.(type) {
	case Int, Float:
		buf.WriteByte(tagNumber)
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], orderedBits(number(val)))
		buf.Write(b[:])
	case String:
		buf.WriteByte(tagString)
		for _, u := range utf16.Encode([]rune(string(val))) {
			buf.WriteByte(byte(u >> 8))
			buf.WriteByte(byte(u))
			if u == 0 {
				buf.WriteByte(nulEscape)
			}
		}
		buf.WriteByte(0)
		buf.WriteByte(0)
	case Array:
		buf.WriteByte(tagArray)
		for _, elem := range val {
			encodeKey(buf, elem)
		}
		buf.WriteByte(arrayEnd)
	}
}

// DecodeKey reverses EncodeKey.
func DecodeKey(b []byte) (Key, error) {
	k, n, err := decodeKey(b, 0)
	if err != nil {
		return nil, err
	}
	if n != len(b) {
		return nil, fmt.Errorf("decode key: %d trailing bytes", len(b)-n)
	}
	return k, nil
}

func decodeKey(b []byte, depth int) (Key, int, error) {
	if depth > maxKeyDepth {
		return nil, 0, fmt.Errorf("decode key: nesting exceeds %d levels", maxKeyDepth)
	}
	if len(b) == 0 {
		return nil, 0, fmt.Errorf("decode key: empty input")
	}
	switch b[0] {
	case tagNumber:
		if len(b) < 9 {
			return nil, 0, fmt.Errorf("decode key: short number")
		}
		return numberKey(fromOrderedBits(binary.BigEndian.Uint64(b[1:9]))), 9, nil

	case tagString:
		var units []uint16
		i := 1
		for {
			if i+1 >= len(b) {
				return nil, 0, fmt.Errorf("decode key: unterminated string")
			}
			u := uint16(b[i])<<8 | uint16(b[i+1])
			i += 2
			if u == 0 {
				if i < len(b) && b[i] == nulEscape {
					units = append(units, 0)
					i++
					continue
				}
				return String(string(utf16.Decode(units))), i, nil
			}
			units = append(units, u)
		}

	case tagArray:
		arr := Array{}
		i := 1
		for {
			if i >= len(b) {
				return nil, 0, fmt.Errorf("decode key: unterminated array")
			}
			if b[i] == arrayEnd {
				return arr, i + 1, nil
			}
			elem, n, err := decodeKey(b[i:], depth+1)
			if err != nil {
				return nil, 0, err
			}
			arr = append(arr, elem)
			i += n
		}

	default:
		return nil, 0, fmt.Errorf("decode key: unknown tag 0x%02x", b[0])
	}
}

func orderedBits(f float64) uint64 {
	if f == 0 {
		f = 0
	}
	bits := math.Float64bits(f)
	if bits&(1<<63) != 0 {
		return ^bits
	}
	return bits | 1<<63
}

func fromOrderedBits(u uint64) float64 {
	if u&(1<<63) != 0 {
		return math.Float64frombits(u &^ (1 << 63))
	}
	return math.Float64frombits(^u)
}

// numberKey returns integral numbers within ±2^53 as Int and the rest as
// Float.
func numberKey(f float64) Key {
	if f == math.Trunc(f) && math.Abs(f) <= MaxSafeInteger {
		return Int(int64(f))
	}
	return Float(f)
}
