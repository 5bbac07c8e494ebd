package wire

import (
	"fmt"
	"math"
	"strconv"
)

// ValueType is the 1-byte type tag that follows the key on the wire.
type ValueType byte

const (
	TypeString ValueType = iota
	TypeByte
	TypeChar
	TypeShort
	TypeInt
	TypeFloat
	TypeLong
	TypeDouble
)

// maxType is the highest valid tag; anything above fails validation.
const maxType = TypeDouble

func (t ValueType) String() string {
	switch t {
	case TypeString:
		return "STRING"
	case TypeByte:
		return "BYTE"
	case TypeChar:
		return "CHAR"
	case TypeShort:
		return "SHORT"
	case TypeInt:
		return "INT"
	case TypeFloat:
		return "FLOAT"
	case TypeLong:
		return "LONG"
	case TypeDouble:
		return "DOUBLE"
	default:
		return fmt.Sprintf("Unknown(%d)", byte(t))
	}
}

// Valid reports whether t is one of the eight wire tags.
func (t ValueType) Valid() bool {
	return t <= maxType
}

// Width returns the fixed value width in bytes, or -1 for TypeString.
func (t ValueType) Width() int {
	switch t {
	case TypeByte:
		return 1
	case TypeChar, TypeShort:
		return 2
	case TypeInt, TypeFloat:
		return 4
	case TypeLong, TypeDouble:
		return 8
	default:
		return -1
	}
}

// Numeric reports whether values of this type can be plotted.
// String and Char are text.
func (t ValueType) Numeric() bool {
	switch t {
	case TypeByte, TypeShort, TypeInt, TypeFloat, TypeLong, TypeDouble:
		return true
	}
	return false
}

// Value is a tagged union over the eight wire types. The zero Value is an
// empty String.
type Value struct {
	typ  ValueType
	text string
	bits uint64 // two's-complement or IEEE-754 bits for numeric types
}

func StringValue(s string) Value  { return Value{typ: TypeString, text: s} }
func ByteValue(v int8) Value      { return Value{typ: TypeByte, bits: uint64(uint8(v))} }
func CharValue(v uint16) Value    { return Value{typ: TypeChar, bits: uint64(v)} }
func ShortValue(v int16) Value    { return Value{typ: TypeShort, bits: uint64(uint16(v))} }
func IntValue(v int32) Value      { return Value{typ: TypeInt, bits: uint64(uint32(v))} }
func FloatValue(v float32) Value  { return Value{typ: TypeFloat, bits: uint64(math.Float32bits(v))} }
func LongValue(v int64) Value     { return Value{typ: TypeLong, bits: uint64(v)} }
func DoubleValue(v float64) Value { return Value{typ: TypeDouble, bits: math.Float64bits(v)} }

func (v Value) Type() ValueType { return v.typ }

func (v Value) Text() (string, bool) { return v.text, v.typ == TypeString }
func (v Value) Byte() (int8, bool)   { return int8(uint8(v.bits)), v.typ == TypeByte }
func (v Value) Char() (uint16, bool) { return uint16(v.bits), v.typ == TypeChar }
func (v Value) Short() (int16, bool) { return int16(uint16(v.bits)), v.typ == TypeShort }
func (v Value) Int() (int32, bool)   { return int32(uint32(v.bits)), v.typ == TypeInt }
func (v Value) Long() (int64, bool)  { return int64(v.bits), v.typ == TypeLong }

func (v Value) Float() (float32, bool) {
	return math.Float32frombits(uint32(v.bits)), v.typ == TypeFloat
}

func (v Value) Double() (float64, bool) {
	return math.Float64frombits(v.bits), v.typ == TypeDouble
}

// Float64 widens any numeric value to float64. It returns false for String
// and Char.
func (v Value) Float64() (float64, bool) {
	switch v.typ {
	case TypeByte:
		n, _ := v.Byte()
		return float64(n), true
	case TypeShort:
		n, _ := v.Short()
		return float64(n), true
	case TypeInt:
		n, _ := v.Int()
		return float64(n), true
	case TypeFloat:
		n, _ := v.Float()
		return float64(n), true
	case TypeLong:
		n, _ := v.Long()
		return float64(n), true
	case TypeDouble:
		n, _ := v.Double()
		return n, true
	}
	return 0, false
}

// String formats the value for display: text verbatim, Char as its
// character, numbers in their shortest decimal form.
func (v Value) String() string {
	switch v.typ {
	case TypeString:
		return v.text
	case TypeChar:
		c, _ := v.Char()
		return string(rune(c))
	case TypeByte:
		n, _ := v.Byte()
		return strconv.FormatInt(int64(n), 10)
	case TypeShort:
		n, _ := v.Short()
		return strconv.FormatInt(int64(n), 10)
	case TypeInt:
		n, _ := v.Int()
		return strconv.FormatInt(int64(n), 10)
	case TypeLong:
		n, _ := v.Long()
		return strconv.FormatInt(n, 10)
	case TypeFloat:
		f, _ := v.Float()
		return strconv.FormatFloat(float64(f), 'g', -1, 32)
	case TypeDouble:
		f, _ := v.Double()
		return strconv.FormatFloat(f, 'g', -1, 64)
	default:
		return v.typ.String()
	}
}

// Message is one decoded telemetry frame. Raw holds the validated frame
// bytes without the leading delimiter.
type Message struct {
	Key   string
	Value Value
	Raw   []byte
}

// Type returns the wire tag of the message value.
func (m Message) Type() ValueType { return m.Value.typ }
