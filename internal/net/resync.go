package net

import "github.com/thorcore/telepathy/internal/wire"

// DefaultZeroLimit is the number of zero bytes after which a candidate that
// has not validated is treated as mis-anchored and dropped.
const DefaultZeroLimit = 20

// candidate is a buffer opened at a byte believed to be a delimiter.
type candidate struct {
	buf   []byte
	zeros int // zero bytes in buf, anchor included
}

// Resynchronizer recovers frames from a byte stream whose delimiter also
// occurs inside frames. Every delimiter opens a new candidate and every byte
// is appended to all open candidates. After each byte, every candidate but
// the newest is checked: a valid one is emitted and dropped, one holding
// fewer than the zero limit is kept, anything else is evicted.
//
// A Resynchronizer is not safe for concurrent use; the session feeds it from
// its reader goroutine only.
type Resynchronizer struct {
	candidates []*candidate
	limit      int

	emit  func(frame []byte)
	evict func(frame []byte)
}

// NewResynchronizer returns a Resynchronizer that calls emit with each
// delimiter-inclusive frame that passes wire.Validate. The slice passed to
// emit is only valid for the duration of the call. A limit <= 0 uses
// DefaultZeroLimit.
func NewResynchronizer(limit int, emit func(frame []byte)) *Resynchronizer {
	if limit <= 0 {
		limit = DefaultZeroLimit
	}
	return &Resynchronizer{limit: limit, emit: emit}
}

// OnEvict installs a hook called with every candidate dropped by the zero
// limit.
func (r *Resynchronizer) OnEvict(fn func(frame []byte)) {
	r.evict = fn
}

// Feed processes one byte.
func (r *Resynchronizer) Feed(b byte) {
	if b == wire.Delimiter {
		r.candidates = append(r.candidates, &candidate{buf: make([]byte, 0, 32)})
	}
	for _, c := range r.candidates {
		c.buf = append(c.buf, b)
		if b == wire.Delimiter {
			c.zeros++
		}
	}
	r.sweep()
}

// Write feeds every byte of p. It never fails.
func (r *Resynchronizer) Write(p []byte) (int, error) {
	for _, b := range p {
		r.Feed(b)
	}
	return len(p), nil
}

// sweep checks all candidates but the newest, oldest first, so frames are
// emitted in arrival order.
func (r *Resynchronizer) sweep() {
	n := len(r.candidates)
	if n < 2 {
		return
	}
	newest := r.candidates[n-1]
	kept := r.candidates[:0]
	for _, c := range r.candidates[:n-1] {
		switch {
		case wire.Validate(c.buf):
			if r.emit != nil {
				r.emit(c.buf)
			}
		case c.zeros < r.limit:
			kept = append(kept, c)
		default:
			if r.evict != nil {
				r.evict(c.buf)
			}
		}
	}
	kept = append(kept, newest)
	for i := len(kept); i < n; i++ {
		r.candidates[i] = nil
	}
	r.candidates = kept
}

// Pending returns the number of open candidates.
func (r *Resynchronizer) Pending() int {
	return len(r.candidates)
}

// Reset drops every open candidate.
func (r *Resynchronizer) Reset() {
	clear(r.candidates)
	r.candidates = r.candidates[:0]
}
