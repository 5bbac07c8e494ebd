package wire

import "encoding/binary"

// Reader reads big-endian frame fields from a delimiter-stripped frame.
// Reads past the end return zero values and set the short flag instead of
// panicking; callers check Short() once after a sequence of reads.
type Reader struct {
	data  []byte
	off   int
	short bool
}

func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// ReadKey consumes the leading run of key bytes.
func (r *Reader) ReadKey() []byte {
	start := r.off
	for r.off < len(r.data) && IsKeyByte(r.data[r.off]) {
		r.off++
	}
	return r.data[start:r.off]
}

// ReadC reads 1 unsigned byte.
func (r *Reader) ReadC() byte {
	if r.off >= len(r.data) {
		r.short = true
		return 0
	}
	v := r.data[r.off]
	r.off++
	return v
}

// ReadH reads 2 bytes as big-endian uint16.
func (r *Reader) ReadH() uint16 {
	if r.off+2 > len(r.data) {
		r.short = true
		return 0
	}
	v := binary.BigEndian.Uint16(r.data[r.off:])
	r.off += 2
	return v
}

// ReadD reads 4 bytes as big-endian uint32.
func (r *Reader) ReadD() uint32 {
	if r.off+4 > len(r.data) {
		r.short = true
		return 0
	}
	v := binary.BigEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v
}

// ReadQ reads 8 bytes as big-endian uint64.
func (r *Reader) ReadQ() uint64 {
	if r.off+8 > len(r.data) {
		r.short = true
		return 0
	}
	v := binary.BigEndian.Uint64(r.data[r.off:])
	r.off += 8
	return v
}

// Rest returns every unread byte without copying.
func (r *Reader) Rest() []byte {
	return r.data[r.off:]
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.off
}

// Short reports whether any read ran past the end of the frame.
func (r *Reader) Short() bool {
	return r.short
}
