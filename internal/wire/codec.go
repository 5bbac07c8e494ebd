package wire

import (
	"math"

	"golang.org/x/text/encoding"
)

// Delimiter marks a possible frame start. It is also a legal byte inside
// binary values and length fields.
const Delimiter byte = 0x00

// headerLen is the type tag plus the 4-byte value length.
const headerLen = 1 + 4

// IsKeyByte reports whether b may appear in a key or a String value:
// anything from 32 up, plus the whitespace controls 9 through 13.
func IsKeyByte(b byte) bool {
	return b >= 32 || (b >= 9 && b <= 13)
}

// Validate reports whether buf, which must still carry its leading
// delimiter, is one complete well-formed frame.
func Validate(buf []byte) bool {
	return Check(buf) == nil
}

// Check is Validate with the reason for rejection. Every failure matches
// ErrMalformedFrame.
func Check(buf []byte) error {
	if len(buf) == 0 {
		return ErrTruncated
	}
	if buf[0] != Delimiter {
		return ErrNoDelimiter
	}

	r := NewReader(buf[1:])
	if len(r.ReadKey()) == 0 {
		return ErrEmptyKey
	}
	tag := ValueType(r.ReadC())
	if r.Short() {
		return ErrTruncated
	}
	if !tag.Valid() {
		return ErrUnknownType
	}
	n := r.ReadD()
	if r.Short() {
		return ErrTruncated
	}
	if uint64(r.Remaining()) != uint64(n) {
		return ErrLengthMismatch
	}
	if tag == TypeString {
		for _, b := range r.Rest() {
			if !IsKeyByte(b) {
				return ErrUnprintable
			}
		}
	}
	return nil
}

// Decoder turns validated frames into messages. A nil Charset keeps key
// and String bytes verbatim.
type Decoder struct {
	Charset encoding.Encoding
}

// Decode decodes buf with the default Decoder.
func Decode(buf []byte) (Message, error) {
	return Decoder{}.Decode(buf)
}

// Decode decodes a delimiter-inclusive frame that already passed Validate.
// The length field is not consulted again; fixed-width types must carry
// exactly their width or ErrWidthMismatch is returned.
func (d Decoder) Decode(buf []byte) (Message, error) {
	if len(buf) == 0 || buf[0] != Delimiter {
		return Message{}, ErrNoDelimiter
	}
	frame := buf[1:]

	r := NewReader(frame)
	key := r.ReadKey()
	if len(key) == 0 {
		return Message{}, ErrEmptyKey
	}
	tag := ValueType(r.ReadC())
	r.ReadD()
	if r.Short() {
		return Message{}, ErrTruncated
	}
	if !tag.Valid() {
		return Message{}, ErrUnknownType
	}
	if w := tag.Width(); w >= 0 && r.Remaining() != w {
		return Message{}, ErrWidthMismatch
	}

	var v Value
	switch tag {
	case TypeString:
		v = StringValue(d.text(r.Rest()))
	case TypeByte:
		v = ByteValue(int8(r.ReadC()))
	case TypeChar:
		v = CharValue(r.ReadH())
	case TypeShort:
		v = ShortValue(int16(r.ReadH()))
	case TypeInt:
		v = IntValue(int32(r.ReadD()))
	case TypeFloat:
		v = FloatValue(math.Float32frombits(r.ReadD()))
	case TypeLong:
		v = LongValue(int64(r.ReadQ()))
	case TypeDouble:
		v = DoubleValue(math.Float64frombits(r.ReadQ()))
	}

	raw := make([]byte, len(frame))
	copy(raw, frame)
	return Message{Key: d.text(key), Value: v, Raw: raw}, nil
}

// text converts raw bytes through the configured charset. Pure ASCII
// passes through unchanged.
func (d Decoder) text(raw []byte) string {
	if d.Charset == nil {
		return string(raw)
	}
	allASCII := true
	for _, b := range raw {
		if b >= 0x80 {
			allASCII = false
			break
		}
	}
	if allASCII {
		return string(raw)
	}
	decoded, err := d.Charset.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(decoded)
}

// Encode builds the delimiter-stripped frame for key and v:
// key | tag | length(4, big-endian) | value.
func Encode(key string, v Value) ([]byte, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}
	for i := 0; i < len(key); i++ {
		if !IsKeyByte(key[i]) {
			return nil, ErrInvalidKey
		}
	}

	var value []byte
	switch v.typ {
	case TypeString:
		for i := 0; i < len(v.text); i++ {
			if !IsKeyByte(v.text[i]) {
				return nil, ErrUnprintable
			}
		}
		if uint64(len(v.text)) > math.MaxUint32 {
			return nil, ErrValueTooLarge
		}
		value = []byte(v.text)
	default:
		vw := NewWriter()
		switch v.typ.Width() {
		case 1:
			vw.WriteC(byte(v.bits))
		case 2:
			vw.WriteH(uint16(v.bits))
		case 4:
			vw.WriteD(uint32(v.bits))
		case 8:
			vw.WriteQ(v.bits)
		default:
			return nil, ErrUnknownType
		}
		value = vw.Bytes()
	}

	w := NewWriter()
	w.WriteBytes([]byte(key))
	w.WriteC(byte(v.typ))
	w.WriteD(uint32(len(value)))
	w.WriteBytes(value)
	return w.Bytes(), nil
}
