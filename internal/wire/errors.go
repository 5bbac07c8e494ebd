package wire

import "errors"

// ErrMalformedFrame is the parent of every validation failure.
var ErrMalformedFrame = errors.New("wire: malformed frame")

var (
	ErrNoDelimiter    = malformed("wire: frame does not start with delimiter")
	ErrEmptyKey       = malformed("wire: empty key")
	ErrUnknownType    = malformed("wire: unknown type tag")
	ErrTruncated      = malformed("wire: truncated frame")
	ErrLengthMismatch = malformed("wire: value length mismatch")
	ErrUnprintable    = malformed("wire: unprintable byte in string value")
	ErrWidthMismatch  = malformed("wire: value width does not match type")
	ErrInvalidKey     = errors.New("wire: key must be non-empty and contain only key bytes")
	ErrValueTooLarge  = errors.New("wire: value too large")
)

type malformedError struct{ msg string }

func malformed(msg string) error { return &malformedError{msg: msg} }

func (e *malformedError) Error() string { return e.msg }

// Is lets errors.Is(err, ErrMalformedFrame) match any validation failure.
func (e *malformedError) Is(target error) bool { return target == ErrMalformedFrame }
