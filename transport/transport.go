/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package transport owns one websocket connection per logical channel and
// turns its frames into typed protocol messages delivered in receipt order.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Seednode/netpong/logging"
	"github.com/Seednode/netpong/protocol"
)

const (
	writeWait        = 10 * time.Second
	handshakeTimeout = 10 * time.Second
	maxMessageSize   = 64 * 1024
)

var (
	ErrAlreadyOpen = errors.New("connection already open")
	ErrDialAborted = errors.New("dial aborted by close")
)

// Event is delivered to the session owner for every inbound frame and once
// when a connection ends.
type Event interface {
	Source() *Session
	Generation() uint64
}

type Received struct {
	From *Session
	Gen  uint64
	Msg  protocol.Message
}

// Closed reports the end of a connection. Clean is set for local closes and
// for normal or going-away close frames from the server.
type Closed struct {
	From  *Session
	Gen   uint64
	Clean bool
	Code  int
	Err   error
}

func (e Received) Source() *Session   { return e.From }
func (e Received) Generation() uint64 { return e.Gen }
func (e Closed) Source() *Session     { return e.From }
func (e Closed) Generation() uint64   { return e.Gen }

// RetryPolicy bounds automatic reconnects after an abnormal close.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

type Options struct {
	Header http.Header
	Retry  RetryPolicy
	Logf   logging.Func
}

type link struct {
	conn  *websocket.Conn
	gen   uint64
	local atomic.Bool
	done  chan struct{}
	once  sync.Once
}

func (l *link) stop() {
	l.once.Do(func() { close(l.done) })
}

type Session struct {
	Name string

	dialer *websocket.Dialer
	header http.Header
	events chan<- Event
	logf   logging.Func
	retry  RetryPolicy

	mu      sync.Mutex
	writeMu sync.Mutex
	cur     *link
	gen     uint64
	url     string
	retries int

	dialSeq uint64
	dialing uint64
	abort   context.CancelFunc
}

func New(name string, events chan<- Event, opts Options) *Session {
	return &Session{
		Name:    name,
		dialer:  &websocket.Dialer{HandshakeTimeout: handshakeTimeout, Proxy: http.ProxyFromEnvironment},
		header:  opts.Header,
		events:  events,
		logf:    logging.OrDiscard(opts.Logf),
		retry:   opts.Retry,
		retries: opts.Retry.Attempts,
	}
}

// Connect dials url and starts delivering its frames. A session holds at most
// one live or dialing connection; Connect on a busy session fails with
// ErrAlreadyOpen. The session lock is not held while dialing, and Close
// aborts a dial in flight.
func (s *Session) Connect(ctx context.Context, url string) error {
	s.mu.Lock()
	if s.cur != nil || s.dialing != 0 {
		s.mu.Unlock()
		s.logf("SOCKET: %s already connected to %s, refusing second connection", s.Name, s.url)

		return ErrAlreadyOpen
	}

	dctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.dialSeq++
	id := s.dialSeq
	s.dialing = id
	s.abort = cancel
	s.mu.Unlock()

	conn, _, err := s.dialer.DialContext(dctx, url, s.header)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dialing != id {
		if conn != nil {
			_ = conn.Close()
		}
		s.logf("SOCKET: %s dial to %s aborted", s.Name, url)

		return ErrDialAborted
	}
	s.dialing = 0
	s.abort = nil

	if err != nil {
		return fmt.Errorf("dial %s: %w", s.Name, err)
	}
	conn.SetReadLimit(maxMessageSize)

	s.gen++
	l := &link{conn: conn, gen: s.gen, done: make(chan struct{})}
	s.cur = l
	s.url = url

	s.logf("SOCKET: %s connected to %s (generation %d)", s.Name, url, l.gen)

	go s.readPump(l)

	return nil
}

// Reconnect dials the last URL again.
func (s *Session) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	url := s.url
	s.mu.Unlock()

	if url == "" {
		return fmt.Errorf("reconnect %s: never connected", s.Name)
	}

	return s.Connect(ctx, url)
}

func (s *Session) Open() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cur != nil
}

func (s *Session) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.url
}

// Latest reports whether gen belongs to the most recent connection. Events
// from older generations are stale.
func (s *Session) Latest(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return gen == s.gen
}

// Send writes v as one JSON text frame. Sending on a closed session does
// nothing.
func (s *Session) Send(v any) error {
	s.mu.Lock()
	l := s.cur
	s.mu.Unlock()

	if l == nil {
		s.logf("SOCKET: %s not open, dropping %T", s.Name, v)

		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_ = l.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := l.conn.WriteJSON(v); err != nil {
		return fmt.Errorf("send on %s: %w", s.Name, err)
	}

	return nil
}

// Close ends the current connection with a normal-closure frame. It is safe
// to call repeatedly.
func (s *Session) Close() error {
	s.mu.Lock()
	l := s.cur
	s.cur = nil
	if s.dialing != 0 {
		s.abort()
		s.dialing = 0
		s.abort = nil
	}
	s.mu.Unlock()

	if l == nil {
		return nil
	}

	l.local.Store(true)
	l.stop()

	s.writeMu.Lock()
	_ = l.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	s.writeMu.Unlock()

	s.logf("SOCKET: %s closed locally (generation %d)", s.Name, l.gen)

	return l.conn.Close()
}

// Retry consumes one reconnect attempt, returning the delay to wait first.
func (s *Session) Retry() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.retries <= 0 {
		return 0, false
	}
	s.retries--

	return s.retry.Delay, true
}

// ResetRetries restores the retry budget, e.g. when a new match starts.
func (s *Session) ResetRetries() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.retries = s.retry.Attempts
}

func (s *Session) readPump(l *link) {
	var err error

	for {
		var data []byte
		_, data, err = l.conn.ReadMessage()
		if err != nil {
			break
		}

		msg, derr := protocol.Decode(data)
		if derr != nil {
			s.logf("SOCKET: %s dropped frame: %v", s.Name, derr)

			continue
		}

		if !s.deliver(l, Received{From: s, Gen: l.gen, Msg: msg}) {
			break
		}
	}

	closed := Closed{From: s, Gen: l.gen, Err: err}

	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		closed.Code = ce.Code
	}
	closed.Clean = l.local.Load() ||
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)

	s.mu.Lock()
	if s.cur == l {
		s.cur = nil
	}
	s.mu.Unlock()

	_ = l.conn.Close()

	if !closed.Clean {
		s.logf("SOCKET: %s lost connection (code %d): %v", s.Name, closed.Code, err)
	}

	s.deliver(l, closed)
}

func (s *Session) deliver(l *link, ev Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-l.done:
		return false
	}
}
