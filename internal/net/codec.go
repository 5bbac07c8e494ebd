package net

import (
	"fmt"
	"io"

	"github.com/thorcore/telepathy/internal/wire"
)

var keepAlive = [1]byte{wire.Delimiter}

// WriteFrame writes one frame to w.
// Wire format: [0x00][key][tag][4 bytes BE: value length][value].
// frame is the delimiter-stripped output of wire.Encode.
func WriteFrame(w io.Writer, frame []byte) error {
	buf := make([]byte, 0, len(frame)+1)
	buf = append(buf, wire.Delimiter)
	buf = append(buf, frame...)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// WriteMessage encodes key and v and writes the frame to w.
func WriteMessage(w io.Writer, key string, v wire.Value) error {
	frame, err := wire.Encode(key, v)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	return WriteFrame(w, frame)
}

// WriteKeepAlive writes the single liveness byte.
func WriteKeepAlive(w io.Writer) error {
	if _, err := w.Write(keepAlive[:]); err != nil {
		return fmt.Errorf("write keep-alive: %w", err)
	}
	return nil
}
