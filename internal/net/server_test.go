package net

import (
	"bytes"
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/thorcore/telepathy/internal/wire"
)

func TestServer_BroadcastReachesEveryClient(t *testing.T) {
	srv, host, port := startServer(t)

	got := make(chan string, 8)
	for i := 0; i < 2; i++ {
		s := NewSession(testConfig(), zaptest.NewLogger(t))
		s.OnMessage(func(msg wire.Message) { got <- msg.Key })
		require.NoError(t, s.Open(context.Background(), host, port))
		assert.Equal(t, net.JoinHostPort(host, strconv.Itoa(port)), s.Address())
		acceptPeer(t, srv)
		t.Cleanup(func() {
			s.Close()
			s.Wait()
		})
	}
	require.Eventually(t, func() bool { return srv.Peers() == 2 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, 2, srv.Broadcast("Wave", wire.DoubleValue(0.5)))
	for i := 0; i < 2; i++ {
		select {
		case key := <-got:
			assert.Equal(t, "Wave", key)
		case <-time.After(2 * time.Second):
			t.Fatal("broadcast not received")
		}
	}
}

func TestServer_PeerLeaves(t *testing.T) {
	s, srv, _ := openSession(t)
	require.Eventually(t, func() bool { return srv.Peers() == 1 }, time.Second, 5*time.Millisecond)

	s.Close()
	s.Wait()
	assert.Eventually(t, func() bool { return srv.Peers() == 0 }, time.Second, 5*time.Millisecond)
}

func TestWriteMessage(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, "TestKey", wire.DoubleValue(12.7896)))
	assert.Equal(t, []byte{0x00, 'T', 'e', 's', 't', 'K', 'e', 'y', 0x07, 0, 0, 0, 8,
		0x40, 0x29, 0x94, 0x46, 0x73, 0x81, 0xd7, 0xdc}, buf.Bytes())

	assert.Error(t, WriteMessage(&buf, "", wire.IntValue(1)))

	buf.Reset()
	require.NoError(t, WriteKeepAlive(&buf))
	assert.Equal(t, []byte{0x00}, buf.Bytes())
}
