package net

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/thorcore/telepathy/internal/wire"
)

// Server is the telemetry producer side: it accepts clients and pushes
// frames to them. Keep-alive bytes sent by clients are drained and counted.
type Server struct {
	listener net.Listener
	nextID   atomic.Uint64
	newPeers chan *Peer
	log      *zap.Logger
	closeCh  chan struct{}

	mu    sync.Mutex
	peers map[uint64]*Peer
}

func NewServer(bindAddr string, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	ln, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: ln,
		newPeers: make(chan *Peer, 16),
		log:      log,
		closeCh:  make(chan struct{}),
		peers:    make(map[uint64]*Peer),
	}, nil
}

// AcceptLoop runs in its own goroutine until Shutdown.
func (s *Server) AcceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closeCh:
				return
			default:
			}
			s.log.Error("accept failed", zap.Error(err))
			time.Sleep(10 * time.Millisecond)
			continue
		}

		id := s.nextID.Add(1)
		p := newPeer(conn, id, s.log)
		s.mu.Lock()
		s.peers[id] = p
		s.mu.Unlock()
		go func() {
			p.drainLoop()
			s.mu.Lock()
			delete(s.peers, id)
			s.mu.Unlock()
		}()

		s.log.Info("client connected", zap.Uint64("peer", id), zap.String("ip", p.IP))

		select {
		case s.newPeers <- p:
		default:
		}
	}
}

// NewPeers returns the channel of newly accepted clients. Peers are
// dropped from it, not refused, when nobody is reading.
func (s *Server) NewPeers() <-chan *Peer {
	return s.newPeers
}

// Broadcast sends one message to every connected client and returns how
// many accepted it.
func (s *Server) Broadcast(key string, v wire.Value) int {
	frame, err := wire.Encode(key, v)
	if err != nil {
		s.log.Error("encode failed", zap.String("key", key), zap.Error(err))
		return 0
	}
	s.mu.Lock()
	peers := make([]*Peer, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.Unlock()

	sent := 0
	for _, p := range peers {
		if err := p.SendFrame(frame); err == nil {
			sent++
		}
	}
	return sent
}

// Peers returns the number of connected clients.
func (s *Server) Peers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}

// Shutdown stops accepting and closes every client.
func (s *Server) Shutdown() {
	close(s.closeCh)
	s.listener.Close()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.peers {
		p.Close()
	}
}

// Addr returns the listener's address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Peer is one accepted client.
type Peer struct {
	ID uint64
	IP string

	conn       net.Conn
	mu         sync.Mutex // serializes writes
	keepAlives atomic.Uint64
	closeCh    chan struct{}
	closeOnce  sync.Once
	log        *zap.Logger
}

func newPeer(conn net.Conn, id uint64, log *zap.Logger) *Peer {
	return &Peer{
		ID:      id,
		IP:      conn.RemoteAddr().String(),
		conn:    conn,
		closeCh: make(chan struct{}),
		log:     log.With(zap.Uint64("peer", id)),
	}
}

// Send encodes and writes one message.
func (p *Peer) Send(key string, v wire.Value) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := WriteMessage(p.conn, key, v); err != nil {
		p.log.Debug("send failed", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}

// SendFrame writes a delimiter-stripped frame.
func (p *Peer) SendFrame(frame []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := WriteFrame(p.conn, frame); err != nil {
		p.log.Debug("write failed", zap.Error(err))
		return err
	}
	return nil
}

// SendRaw writes b unframed.
func (p *Peer) SendRaw(b []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := p.conn.Write(b)
	return err
}

// KeepAlives returns the number of zero bytes received from the client.
func (p *Peer) KeepAlives() uint64 {
	return p.keepAlives.Load()
}

// Done is closed once the client is gone.
func (p *Peer) Done() <-chan struct{} {
	return p.closeCh
}

// Close disconnects the client. Safe to call more than once.
func (p *Peer) Close() {
	p.closeOnce.Do(func() {
		close(p.closeCh)
		p.conn.Close()
	})
}

// drainLoop consumes client bytes until the connection ends.
func (p *Peer) drainLoop() {
	defer p.Close()

	buf := make([]byte, 256)
	for {
		n, err := p.conn.Read(buf)
		for _, b := range buf[:n] {
			if b == wire.Delimiter {
				p.keepAlives.Add(1)
			}
		}
		if err != nil {
			select {
			case <-p.closeCh:
			default:
				p.log.Info("client disconnected", zap.Error(err))
			}
			return
		}
	}
}
