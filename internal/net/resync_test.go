package net

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thorcore/telepathy/internal/wire"
)

type collector struct {
	frames  [][]byte
	evicted [][]byte
}

func (c *collector) emit(frame []byte) {
	c.frames = append(c.frames, bytes.Clone(frame))
}

func (c *collector) evict(frame []byte) {
	c.evicted = append(c.evicted, bytes.Clone(frame))
}

func newCollecting(limit int) (*Resynchronizer, *collector) {
	c := &collector{}
	r := NewResynchronizer(limit, c.emit)
	r.OnEvict(c.evict)
	return r, c
}

func onWire(t *testing.T, key string, v wire.Value) []byte {
	t.Helper()
	frame, err := wire.Encode(key, v)
	require.NoError(t, err)
	return append([]byte{wire.Delimiter}, frame...)
}

func decodeAll(t *testing.T, frames [][]byte) []wire.Message {
	t.Helper()
	out := make([]wire.Message, 0, len(frames))
	for _, f := range frames {
		msg, err := wire.Decode(f)
		require.NoError(t, err)
		out = append(out, msg)
	}
	return out
}

func TestResync_DoubleScenario(t *testing.T) {
	r, c := newCollecting(0)
	stream := []byte{0, 'T', 'e', 's', 't', 'K', 'e', 'y', 7, 0, 0, 0, 8,
		0x40, 0x29, 0x94, 0x46, 0x73, 0x81, 0xd7, 0xdc}
	_, err := r.Write(stream)
	require.NoError(t, err)

	require.Len(t, c.frames, 1)
	msg := decodeAll(t, c.frames)[0]
	assert.Equal(t, "TestKey", msg.Key)
	assert.Equal(t, wire.TypeDouble, msg.Type())
	d, _ := msg.Value.Double()
	assert.Equal(t, 12.7896, d)
}

func TestResync_StringScenario(t *testing.T) {
	r, c := newCollecting(0)
	r.Write([]byte{0, 'K', 0, 0, 0, 0, 5, 'H', 'e', 'l', 'l', 'o'})

	require.Len(t, c.frames, 1)
	msg := decodeAll(t, c.frames)[0]
	assert.Equal(t, "K", msg.Key)
	s, ok := msg.Value.Text()
	assert.True(t, ok)
	assert.Equal(t, "Hello", s)
}

func TestResync_AmbiguousDelimiters(t *testing.T) {
	// String tag, length bytes and the Int value all carry 0x00.
	r, c := newCollecting(0)
	var stream []byte
	stream = append(stream, onWire(t, "K", wire.StringValue("Hello"))...)
	stream = append(stream, onWire(t, "Count", wire.IntValue(256))...)
	stream = append(stream, onWire(t, "Zero", wire.LongValue(0))...)
	stream = append(stream, onWire(t, "Another key", wire.StringValue("Hello, World!"))...)
	r.Write(stream)

	msgs := decodeAll(t, c.frames)
	require.Len(t, msgs, 4)
	assert.Equal(t, []string{"K", "Count", "Zero", "Another key"},
		[]string{msgs[0].Key, msgs[1].Key, msgs[2].Key, msgs[3].Key})
	n, _ := msgs[1].Value.Int()
	assert.Equal(t, int32(256), n)
	z, _ := msgs[2].Value.Long()
	assert.Equal(t, int64(0), z)
}

func TestResync_InterleavedKeepAlives(t *testing.T) {
	r, c := newCollecting(0)
	r.Write([]byte{0, 0, 0})
	r.Write(onWire(t, "Speed", wire.FloatValue(1.5)))
	r.Write([]byte{0, 0})
	r.Write(onWire(t, "Mode", wire.StringValue("auto")))

	msgs := decodeAll(t, c.frames)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Speed", msgs[0].Key)
	assert.Equal(t, "Mode", msgs[1].Key)
}

func TestResync_GarbageEvicted(t *testing.T) {
	r, c := newCollecting(0)
	// 0x09 is a tab and therefore part of the key; 0x10 is the bad tag.
	r.Write([]byte{0, 'K', 0x09, 0x10})
	r.Write(make([]byte, 25))
	assert.Empty(t, c.frames)
	require.NotEmpty(t, c.evicted)
	assert.Equal(t, []byte{0, 'K', 0x09, 0x10}, c.evicted[0][:4])

	r.Write(onWire(t, "K", wire.StringValue("Hello")))
	msgs := decodeAll(t, c.frames)
	require.Len(t, msgs, 1)
	assert.Equal(t, "K", msgs[0].Key)
}

func TestResync_InvalidTagNeverDispatched(t *testing.T) {
	r, c := newCollecting(0)
	r.Write([]byte{0, 'K', 0x0E, 0, 0, 0, 1, 'x'})
	r.Write(make([]byte, 30))
	assert.Empty(t, c.frames)
	assert.NotEmpty(t, c.evicted)
}

func TestResync_EvictionAtExactLimit(t *testing.T) {
	r, c := newCollecting(0)
	r.Write([]byte{0, 'K', 0x0E})
	// anchor holds 1 zero; 18 more keep it below the limit
	r.Write(make([]byte, DefaultZeroLimit-2))
	assert.Empty(t, c.evicted)
	r.Feed(0)
	require.Len(t, c.evicted, 1)
	assert.Equal(t, []byte{0, 'K', 0x0E}, c.evicted[0][:3])
}

func TestResync_PendingBounded(t *testing.T) {
	r, _ := newCollecting(0)
	r.Write(make([]byte, 1000))
	assert.LessOrEqual(t, r.Pending(), DefaultZeroLimit)
}

func TestResync_CustomLimit(t *testing.T) {
	r, c := newCollecting(3)
	r.Write([]byte{0, 'K', 0x0E, 0, 0})
	assert.Len(t, c.evicted, 1)
}

func TestResync_Reset(t *testing.T) {
	r, c := newCollecting(0)
	r.Write([]byte{0, 'K', 0, 0, 0})
	require.Positive(t, r.Pending())
	r.Reset()
	assert.Equal(t, 0, r.Pending())

	r.Write(onWire(t, "K", wire.StringValue("Hello")))
	assert.Len(t, c.frames, 1)
}

func TestResync_NoDelimiterNoCandidates(t *testing.T) {
	r, c := newCollecting(0)
	r.Write([]byte("no frames here"))
	assert.Equal(t, 0, r.Pending())
	assert.Empty(t, c.frames)
}
