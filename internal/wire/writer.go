package wire

import "encoding/binary"

// Writer builds a delimiter-stripped frame. All multi-byte writes are
// big-endian.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 32)}
}

// WriteC writes 1 byte.
func (w *Writer) WriteC(v byte) {
	w.buf = append(w.buf, v)
}

// WriteH writes 2 bytes big-endian.
func (w *Writer) WriteH(v uint16) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, v)
}

// WriteD writes 4 bytes big-endian.
func (w *Writer) WriteD(v uint32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
}

// WriteQ writes 8 bytes big-endian.
func (w *Writer) WriteQ(v uint64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, v)
}

// WriteBytes writes raw bytes.
func (w *Writer) WriteBytes(b []byte) {
	w.buf = append(w.buf, b...)
}

// Bytes returns the frame built so far.
func (w *Writer) Bytes() []byte {
	return w.buf
}
