package net

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/encoding"

	"github.com/thorcore/telepathy/internal/core/event"
	"github.com/thorcore/telepathy/internal/metric"
	"github.com/thorcore/telepathy/internal/wire"
)

// State is the lifecycle phase of a Session.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// ErrSessionActive is returned by Open when the session is not Disconnected.
var ErrSessionActive = errors.New("session: already connecting or connected")

// ConnectError reports a TCP connection that could not be established.
type ConnectError struct {
	Address string
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Address, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// Config holds the timing and framing parameters of a Session.
type Config struct {
	ConnectTimeout    time.Duration // 0 leaves the dial to the OS
	KeepAliveInterval time.Duration
	PollInterval      time.Duration // read deadline between stop-flag checks
	WriteTimeout      time.Duration // 0 disables the keep-alive write deadline
	ZeroLimit         int
	Charset           encoding.Encoding
}

func DefaultConfig() Config {
	return Config{
		ConnectTimeout:    5 * time.Second,
		KeepAliveInterval: 100 * time.Millisecond,
		PollInterval:      5 * time.Millisecond,
		WriteTimeout:      10 * time.Second,
		ZeroLimit:         DefaultZeroLimit,
	}
}

// link is one TCP connection plus the two goroutines serving it.
type link struct {
	conn      net.Conn
	addr      string
	inUse     atomic.Bool // cooperative stop flag
	connected atomic.Bool // cleared by a failed keep-alive or read
	resync    *Resynchronizer

	done          chan struct{} // closed after the reader tore the link down
	keepAliveDone chan struct{}
}

// Session connects to a single telemetry peer, decodes its frames and
// notifies listeners. The reader goroutine feeds a Resynchronizer and
// dispatches messages; the keep-alive goroutine writes one zero byte per
// interval. The two share only the link's stop and connected flags.
//
// Listeners run synchronously on the reader goroutine and must be fast.
// Disconnection listeners fire once per transition from connected to
// disconnected, never for a caller-initiated Close.
type Session struct {
	cfg     Config
	state   atomic.Int32
	current atomic.Pointer[link]
	lost    edge // reader goroutine only

	bus     *event.Bus
	decoder wire.Decoder
	metrics *metric.Metrics
	log     *zap.Logger
}

// Option configures a Session.
type Option func(*Session)

// WithMetrics records link and framing counters into m.
func WithMetrics(m *metric.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

func NewSession(cfg Config, log *zap.Logger, opts ...Option) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.KeepAliveInterval <= 0 {
		cfg.KeepAliveInterval = def.KeepAliveInterval
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.ZeroLimit <= 0 {
		cfg.ZeroLimit = def.ZeroLimit
	}
	s := &Session{
		cfg:     cfg,
		bus:     event.NewBus(log),
		decoder: wire.Decoder{Charset: cfg.Charset},
		log:     log,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.bus.OnPanic(s.metrics.ListenerPanicked)
	return s
}

func (s *Session) State() State {
	return State(s.state.Load())
}

// IsConnected reports whether the current link is up.
func (s *Session) IsConnected() bool {
	l := s.current.Load()
	return l != nil && l.connected.Load()
}

// Address returns the host:port of the current or last link.
func (s *Session) Address() string {
	if l := s.current.Load(); l != nil {
		return l.addr
	}
	return ""
}

// OnMessage registers a listener for decoded messages. Listeners run with
// the registry locked and must not register further listeners.
func (s *Session) OnMessage(fn func(wire.Message)) {
	event.Subscribe(s.bus, func(ev event.MessageDecoded) { fn(ev.Message) })
}

// OnDisconnected registers a listener for peer loss. Like OnMessage, it
// must not be called from inside a listener.
func (s *Session) OnDisconnected(fn func()) {
	event.Subscribe(s.bus, func(event.Disconnected) { fn() })
}

// Open dials address:port and starts the reader and keep-alive goroutines.
// It does not retry; a failure leaves the session Disconnected and returns
// a *ConnectError.
func (s *Session) Open(ctx context.Context, address string, port int) error {
	if !s.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		return ErrSessionActive
	}

	addr := net.JoinHostPort(address, strconv.Itoa(port))
	dialer := net.Dialer{Timeout: s.cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		s.state.Store(int32(StateDisconnected))
		s.metrics.ConnectAttempt(false)
		return &ConnectError{Address: addr, Err: err}
	}

	l := &link{
		conn:          conn,
		addr:          addr,
		done:          make(chan struct{}),
		keepAliveDone: make(chan struct{}),
	}
	l.inUse.Store(true)
	l.connected.Store(true)
	l.resync = NewResynchronizer(s.cfg.ZeroLimit, s.dispatch)
	l.resync.OnEvict(s.evicted)

	s.current.Store(l)
	s.state.Store(int32(StateConnected))
	s.metrics.ConnectAttempt(true)
	s.metrics.SetConnected(true)
	s.log.Info("connected", zap.String("peer", addr))

	go s.readLoop(l)
	go s.keepAliveLoop(l)
	return nil
}

// Close asks both goroutines to stop. It returns immediately; the loops
// exit at their next poll. Use Wait to block until they have.
func (s *Session) Close() {
	if l := s.current.Load(); l != nil {
		l.inUse.Store(false)
	}
}

// Wait blocks until the current link has been torn down.
func (s *Session) Wait() {
	if l := s.current.Load(); l != nil {
		<-l.done
	}
}

// readLoop runs in its own goroutine. It feeds inbound bytes to the
// resynchronizer and watches the connected flag for the falling edge.
func (s *Session) readLoop(l *link) {
	defer close(l.done)
	log := s.log.With(zap.String("peer", l.addr))

	buf := make([]byte, 4096)
	lost := false
	for l.inUse.Load() {
		if s.lost.observe(l.connected.Load()) {
			lost = true
			break
		}

		l.conn.SetReadDeadline(time.Now().Add(s.cfg.PollInterval))
		n, err := l.conn.Read(buf)
		if n > 0 {
			s.metrics.AddBytes(n)
			l.resync.Write(buf[:n])
			s.metrics.SetCandidates(l.resync.Pending())
		}
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if l.inUse.Load() {
				log.Debug("read failed, connection lost", zap.Error(err))
			}
			l.connected.Store(false)
		}
	}

	s.teardown(l)
	if lost {
		log.Warn("peer disconnected")
		s.metrics.Disconnected()
		event.Publish(s.bus, event.Disconnected{Address: l.addr})
		return
	}
	log.Info("session closed")
}

// keepAliveLoop runs in its own goroutine. A failed write marks the link
// lost; the reader notices and notifies listeners.
func (s *Session) keepAliveLoop(l *link) {
	defer close(l.keepAliveDone)

	ticker := time.NewTicker(s.cfg.KeepAliveInterval)
	defer ticker.Stop()

	for l.inUse.Load() {
		if s.cfg.WriteTimeout > 0 {
			l.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		}
		if err := WriteKeepAlive(l.conn); err != nil {
			if l.inUse.Load() {
				s.log.Debug("keep-alive refused, connection lost",
					zap.String("peer", l.addr), zap.Error(err))
				s.metrics.KeepAliveFailed()
				l.connected.Store(false)
			}
			return
		}
		<-ticker.C
	}
}

// teardown stops the keep-alive goroutine, closes the socket and returns
// the session to Disconnected.
func (s *Session) teardown(l *link) {
	l.inUse.Store(false)
	l.conn.Close()
	<-l.keepAliveDone
	l.connected.Store(false)
	l.resync.Reset()
	s.metrics.SetConnected(false)
	s.metrics.SetCandidates(0)
	s.state.Store(int32(StateDisconnected))
}

// dispatch decodes a validated frame and publishes it.
func (s *Session) dispatch(frame []byte) {
	msg, err := s.decoder.Decode(frame)
	if err != nil {
		s.metrics.FrameRejected()
		s.log.Debug("dropping frame", zap.Error(err), zap.Binary("frame", frame))
		return
	}
	s.metrics.FrameDecoded(msg.Type().String())
	if ce := s.log.Check(zap.DebugLevel, "message"); ce != nil {
		ce.Write(
			zap.String("key", msg.Key),
			zap.Stringer("type", msg.Type()),
			zap.Binary("raw", msg.Raw),
		)
	}
	event.Publish(s.bus, event.MessageDecoded{Message: msg})
}

func (s *Session) evicted(frame []byte) {
	s.metrics.CandidateEvicted()
	s.log.Debug("evicting candidate", zap.Int("len", len(frame)))
}

// edge fires once per connected to disconnected transition and re-arms
// when connected is observed again.
type edge struct {
	fired bool
}

func (e *edge) observe(connected bool) bool {
	if connected {
		e.fired = false
		return false
	}
	if e.fired {
		return false
	}
	e.fired = true
	return true
}
