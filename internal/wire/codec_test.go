package wire

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// delimited prepends the delimiter the resynchronizer keeps on candidates.
func delimited(frame []byte) []byte {
	return append([]byte{Delimiter}, frame...)
}

func mustEncode(t *testing.T, key string, v Value) []byte {
	t.Helper()
	frame, err := Encode(key, v)
	require.NoError(t, err)
	return frame
}

func TestValidate_HandBuiltFrame(t *testing.T) {
	// key "F", String, length 1, value "K"
	buf := []byte{0, 70, 0, 0, 0, 0, 1, 75}
	assert.True(t, Validate(buf))
}

func TestCheck_Mutations(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
		want error
	}{
		{"empty buffer", nil, ErrTruncated},
		{"missing delimiter", []byte{1, 70, 0, 0, 0, 0, 1, 75}, ErrNoDelimiter},
		{"empty key", []byte{0, 0, 0, 0, 0, 1, 75}, ErrEmptyKey},
		{"tag 8", []byte{0, 70, 8, 0, 0, 0, 1, 75}, ErrUnknownType},
		{"tag 255", []byte{0, 70, 255, 0, 0, 0, 1, 75}, ErrUnknownType},
		{"length one short", []byte{0, 70, 0, 0, 0, 0, 0, 75}, ErrLengthMismatch},
		{"length one long", []byte{0, 70, 0, 0, 0, 0, 2, 75}, ErrLengthMismatch},
		{"key only", []byte{0, 70, 71}, ErrTruncated},
		{"length cut", []byte{0, 70, 4, 0, 0}, ErrTruncated},
		{"control byte in string", []byte{0, 70, 0, 0, 0, 0, 1, 7}, ErrUnprintable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(tt.buf)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, ErrMalformedFrame)
			assert.False(t, Validate(tt.buf))
		})
	}
}

func TestCheck_WhitespaceControlsAreKeyBytes(t *testing.T) {
	frame := mustEncode(t, "a\tb\r\n", StringValue("line\none"))
	assert.NoError(t, Check(delimited(frame)))
}

func TestCheck_HighBytesAreKeyBytes(t *testing.T) {
	buf := []byte{0, 0xC3, 0xA9, byte(TypeByte), 0, 0, 0, 1, 0xFF}
	require.NoError(t, Check(buf))

	msg, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, "é", msg.Key)
	n, ok := msg.Value.Byte()
	assert.True(t, ok)
	assert.Equal(t, int8(-1), n)
}

func TestCheck_BinaryValueMayContainDelimiter(t *testing.T) {
	frame := mustEncode(t, "Count", IntValue(256))
	assert.NoError(t, Check(delimited(frame)))
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		value Value
	}{
		{"string", StringValue("Hello, World!")},
		{"empty string", StringValue("")},
		{"byte", ByteValue(-128)},
		{"char", CharValue('Z')},
		{"short", ShortValue(-12345)},
		{"int", IntValue(-42)},
		{"float", FloatValue(3.25)},
		{"long", LongValue(math.MinInt64)},
		{"double", DoubleValue(12.7896)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := mustEncode(t, "Key", tt.value)
			buf := delimited(frame)
			require.True(t, Validate(buf))

			msg, err := Decode(buf)
			require.NoError(t, err)
			assert.Equal(t, "Key", msg.Key)
			assert.Equal(t, tt.value.Type(), msg.Type())
			assert.Equal(t, tt.value, msg.Value)
			assert.Equal(t, frame, msg.Raw)
		})
	}
}

func TestDecode_RawLengthInvariant(t *testing.T) {
	frame := mustEncode(t, "TestKey", DoubleValue(12.7896))
	msg, err := Decode(delimited(frame))
	require.NoError(t, err)
	assert.Len(t, msg.Raw, len("TestKey")+1+4+8)
}

func TestDecode_TestKeyScenario(t *testing.T) {
	buf := []byte{0, 'T', 'e', 's', 't', 'K', 'e', 'y', 7, 0, 0, 0, 8,
		0x40, 0x29, 0x94, 0x46, 0x73, 0x81, 0xd7, 0xdc}
	require.True(t, Validate(buf))

	msg, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, "TestKey", msg.Key)
	assert.Equal(t, TypeDouble, msg.Type())
	d, ok := msg.Value.Double()
	require.True(t, ok)
	assert.Equal(t, 12.7896, d)
}

func TestDecode_WidthMismatch(t *testing.T) {
	// Int declared with a 2-byte value: passes Validate, rejected by Decode.
	buf := []byte{0, 'K', byte(TypeInt), 0, 0, 0, 2, 1, 2}
	require.True(t, Validate(buf))

	_, err := Decode(buf)
	assert.ErrorIs(t, err, ErrWidthMismatch)
}

func TestDecode_RawIsCopied(t *testing.T) {
	buf := delimited(mustEncode(t, "K", StringValue("abc")))
	msg, err := Decode(buf)
	require.NoError(t, err)

	buf[1] = 'X'
	assert.Equal(t, byte('K'), msg.Raw[0])
}

func TestDecoder_Charset(t *testing.T) {
	enc, err := LookupCharset("windows-1252")
	require.NoError(t, err)

	buf := []byte{0, 'K', byte(TypeString), 0, 0, 0, 4, 'c', 'a', 'f', 0xE9}
	require.True(t, Validate(buf))

	msg, err := Decoder{Charset: enc}.Decode(buf)
	require.NoError(t, err)
	s, ok := msg.Value.Text()
	require.True(t, ok)
	assert.Equal(t, "café", s)
}

func TestLookupCharset(t *testing.T) {
	enc, err := LookupCharset("")
	assert.NoError(t, err)
	assert.Nil(t, enc)

	_, err = LookupCharset("no-such-charset")
	assert.Error(t, err)
}

func TestEncode_Rejects(t *testing.T) {
	_, err := Encode("", IntValue(1))
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = Encode("bad\x00key", IntValue(1))
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = Encode("K", StringValue("bell\x07"))
	assert.ErrorIs(t, err, ErrUnprintable)
}

func TestValue_String(t *testing.T) {
	assert.Equal(t, "Hello", StringValue("Hello").String())
	assert.Equal(t, "A", CharValue('A').String())
	assert.Equal(t, "-42", IntValue(-42).String())
	assert.Equal(t, "12.7896", DoubleValue(12.7896).String())
	assert.Equal(t, "3.25", FloatValue(3.25).String())
	assert.Equal(t, "-1", ByteValue(-1).String())
}

func TestValue_Float64(t *testing.T) {
	f, ok := ShortValue(-7).Float64()
	assert.True(t, ok)
	assert.Equal(t, -7.0, f)

	_, ok = CharValue('x').Float64()
	assert.False(t, ok)
	_, ok = StringValue("1").Float64()
	assert.False(t, ok)
}

func TestValueType_String(t *testing.T) {
	assert.Equal(t, "DOUBLE", TypeDouble.String())
	assert.Equal(t, "Unknown(9)", ValueType(9).String())
	assert.False(t, ValueType(8).Valid())
}
