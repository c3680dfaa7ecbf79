package client

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"docchat-backend/pkg/api"

	"github.com/gorilla/websocket"
)

const (
	DefaultPingInterval   = 30 * time.Second
	DefaultReconnectDelay = 3 * time.Second

	dialTimeout = 10 * time.Second
)

// Conn is the part of *websocket.Conn the Manager uses.
type Conn interface {
	ReadJSON(v any) error
	WriteJSON(v any) error
	Close() error
}

type Dialer func(ctx context.Context, url string) (Conn, error)

func dialWebsocket(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// SocketURL derives the socket endpoint for a client from the server's base
// http(s) URL.
func SocketURL(baseURL, clientId string) string {
	base := strings.TrimSuffix(baseURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws/" + url.PathEscape(clientId)
}

type ManagerOptions struct {
	PingInterval   time.Duration
	ReconnectDelay time.Duration
	Dialer         Dialer
}

type subscriber[T any] struct {
	id int
	fn func(T)
}

// Manager shares a single socket between every component that acquires it.
// The socket is opened on the first Acquire and closed when the last holder
// releases it. While held, a dropped socket is reopened after ReconnectDelay,
// one attempt at a time with no backoff. Messages sent while the socket is
// down are dropped.
type Manager struct {
	url  string
	opts ManagerOptions

	mu        sync.Mutex
	refs      int
	conn      Conn
	gen       int
	dialing   bool
	stopPing  chan struct{}
	reconnect *time.Timer

	nextSubscriber int
	listeners      []subscriber[api.Event]
	statusHandlers []subscriber[bool]

	// Status changes are queued under mu and delivered in that order by one
	// flushing goroutine at a time.
	statusQueue    []bool
	flushingStatus bool

	writeLock sync.Mutex
}

func NewManager(url string, opts ManagerOptions) *Manager {
	if opts.PingInterval <= 0 {
		opts.PingInterval = DefaultPingInterval
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.Dialer == nil {
		opts.Dialer = dialWebsocket
	}
	return &Manager{url: url, opts: opts}
}

// Acquire registers a holder of the connection, opening it if this is the
// first. The returned func releases the hold and is safe to call more than
// once.
func (m *Manager) Acquire() func() {
	m.mu.Lock()
	m.refs++
	if m.refs == 1 && m.conn == nil && !m.dialing && m.reconnect == nil {
		m.dialing = true
		go m.dial()
	}
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(m.release)
	}
}

func (m *Manager) release() {
	m.mu.Lock()
	m.refs--
	if m.refs > 0 {
		m.mu.Unlock()
		return
	}

	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect = nil
	}

	conn := m.detachLocked()
	if conn != nil {
		m.statusQueue = append(m.statusQueue, false)
	}
	m.mu.Unlock()

	if conn != nil {
		conn.Close()
		m.flushStatus()
	}
}

// detachLocked drops the current connection so its read loop's close is
// ignored. The caller closes the returned conn.
func (m *Manager) detachLocked() Conn {
	conn := m.conn
	if conn == nil {
		return nil
	}
	m.conn = nil
	m.gen++
	close(m.stopPing)
	m.stopPing = nil
	return conn
}

func (m *Manager) dial() {
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	conn, err := m.opts.Dialer(ctx, m.url)
	cancel()

	m.mu.Lock()
	m.dialing = false

	if m.refs == 0 {
		m.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}

	if err != nil {
		slog.Warn("socket connect failed", "url", m.url, "error", err)
		m.scheduleReconnectLocked()
		m.mu.Unlock()
		return
	}

	m.conn = conn
	m.gen++
	gen := m.gen
	stop := make(chan struct{})
	m.stopPing = stop
	m.statusQueue = append(m.statusQueue, true)
	m.mu.Unlock()

	go m.pingLoop(stop)
	go m.readLoop(conn, gen)

	m.flushStatus()
}

func (m *Manager) scheduleReconnectLocked() {
	if m.reconnect != nil {
		return
	}

	var timer *time.Timer
	// The callback needs mu, which the caller holds until timer is assigned.
	timer = time.AfterFunc(m.opts.ReconnectDelay, func() {
		m.mu.Lock()
		if m.reconnect != timer {
			// Stopped by release after it had already fired.
			m.mu.Unlock()
			return
		}
		m.reconnect = nil
		if m.refs == 0 || m.conn != nil || m.dialing {
			m.mu.Unlock()
			return
		}
		m.dialing = true
		m.mu.Unlock()

		m.dial()
	})
	m.reconnect = timer
}

func (m *Manager) handleClosed(gen int) {
	m.mu.Lock()
	if gen != m.gen || m.conn == nil {
		m.mu.Unlock()
		return
	}

	conn := m.detachLocked()
	if m.refs > 0 {
		m.scheduleReconnectLocked()
	}
	m.statusQueue = append(m.statusQueue, false)
	m.mu.Unlock()

	conn.Close()
	m.flushStatus()
}

func (m *Manager) readLoop(conn Conn, gen int) {
	for {
		var event api.Event
		if err := conn.ReadJSON(&event); err != nil {
			m.handleClosed(gen)
			return
		}

		m.mu.Lock()
		listeners := append([]subscriber[api.Event](nil), m.listeners...)
		m.mu.Unlock()

		for _, l := range listeners {
			l.fn(event)
		}
	}
}

func (m *Manager) pingLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(m.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.Send(api.NewPingRequest())
		}
	}
}

// Send writes v to the socket if it is open. It never blocks waiting for a
// connection and never queues; false means the message was not sent.
func (m *Manager) Send(v any) bool {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()

	if conn == nil {
		return false
	}

	m.writeLock.Lock()
	defer m.writeLock.Unlock()

	if err := conn.WriteJSON(v); err != nil {
		slog.Warn("socket send failed", "url", m.url, "error", err)
		return false
	}
	return true
}

func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}

// Subscribe registers fn for every inbound event. Listeners are called in
// subscription order from the read loop.
func (m *Manager) Subscribe(fn func(api.Event)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextSubscriber++
	id := m.nextSubscriber
	m.listeners = append(m.listeners, subscriber[api.Event]{id: id, fn: fn})

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.listeners = removeSubscriber(m.listeners, id)
	}
}

// OnStatus registers fn for connection status changes.
func (m *Manager) OnStatus(fn func(connected bool)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextSubscriber++
	id := m.nextSubscriber
	m.statusHandlers = append(m.statusHandlers, subscriber[bool]{id: id, fn: fn})

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.statusHandlers = removeSubscriber(m.statusHandlers, id)
	}
}

// flushStatus delivers queued status changes to the handlers. If another
// goroutine is already delivering, it picks up whatever was queued here.
func (m *Manager) flushStatus() {
	m.mu.Lock()
	if m.flushingStatus {
		m.mu.Unlock()
		return
	}
	m.flushingStatus = true

	for len(m.statusQueue) > 0 {
		connected := m.statusQueue[0]
		m.statusQueue = m.statusQueue[1:]
		handlers := append([]subscriber[bool](nil), m.statusHandlers...)
		m.mu.Unlock()

		for _, h := range handlers {
			h.fn(connected)
		}

		m.mu.Lock()
	}

	m.flushingStatus = false
	m.mu.Unlock()
}

func removeSubscriber[T any](subs []subscriber[T], id int) []subscriber[T] {
	out := subs[:0]
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}
