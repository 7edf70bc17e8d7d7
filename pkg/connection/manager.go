// Package connection maintains one websocket per tab: dialing, keepalive
// replies, decode-and-deliver, and exponential-backoff reconnection.
package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tabchat/tabchat/pkg/protocol"
)

// ErrNotConnected is returned when a frame is sent on a tab whose socket is
// down. The caller decides whether to queue or surface the failure.
var ErrNotConnected = errors.New("websocket is not connected")

const (
	defaultBackoffBase = 1 * time.Second
	defaultBackoffCap  = 30 * time.Second

	writeTimeout = 10 * time.Second
)

// Option configures a Manager.
type Option func(*Manager)

// WithDialer overrides the websocket dialer, mainly for tests.
func WithDialer(d *websocket.Dialer) Option {
	return func(m *Manager) { m.dialer = d }
}

// WithBackoff overrides the reconnect delay bounds.
func WithBackoff(base, cap time.Duration) Option {
	return func(m *Manager) {
		m.backoffBase = base
		m.backoffCap = cap
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// Manager owns the websocket lifecycle for every open tab. Events and
// connectivity changes are delivered through the callbacks given to New;
// both may be invoked from per-tab reader goroutines.
type Manager struct {
	wsURL    string
	onEvent  func(tabID string, ev protocol.Event)
	onStatus func(tabID string, connected bool)

	dialer      *websocket.Dialer
	backoffBase time.Duration
	backoffCap  time.Duration
	log         *slog.Logger

	mu    sync.Mutex
	conns map[string]*tabConn
}

// tabConn is the live state for one tab's socket.
type tabConn struct {
	cancel context.CancelFunc

	// writeMu serializes writes; the reader goroutine writes pong replies
	// concurrently with user-initiated frames.
	writeMu sync.Mutex
	ws      *websocket.Conn
}

func (c *tabConn) setSocket(ws *websocket.Conn) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws = ws
}

func (c *tabConn) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.ws == nil {
		return ErrNotConnected
	}
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("setting write deadline: %w", err)
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// New creates a manager dialing wsURL for every tab. onEvent receives each
// decoded event; onStatus reports connectivity transitions.
func New(wsURL string, onEvent func(string, protocol.Event), onStatus func(string, bool), opts ...Option) *Manager {
	m := &Manager{
		wsURL:       wsURL,
		onEvent:     onEvent,
		onStatus:    onStatus,
		dialer:      websocket.DefaultDialer,
		backoffBase: defaultBackoffBase,
		backoffCap:  defaultBackoffCap,
		log:         slog.Default(),
		conns:       make(map[string]*tabConn),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open starts a connection for the tab and keeps it alive until Close. It
// returns immediately; connectivity is reported through the status callback.
// Opening an already-open tab is a no-op.
func (m *Manager) Open(ctx context.Context, tabID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conns[tabID]; ok {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	conn := &tabConn{cancel: cancel}
	m.conns[tabID] = conn

	go m.run(ctx, tabID, conn)
}

// Send encodes and writes one frame on the tab's socket.
func (m *Manager) Send(tabID string, frame protocol.Frame) error {
	m.mu.Lock()
	conn, ok := m.conns[tabID]
	m.mu.Unlock()
	if !ok {
		return ErrNotConnected
	}

	data, err := protocol.Encode(frame)
	if err != nil {
		return err
	}
	if err := conn.write(data); err != nil {
		return fmt.Errorf("sending frame: %w", err)
	}
	return nil
}

// Close tears down the tab's connection deliberately; no reconnect follows.
func (m *Manager) Close(tabID string) {
	m.mu.Lock()
	conn, ok := m.conns[tabID]
	delete(m.conns, tabID)
	m.mu.Unlock()
	if !ok {
		return
	}

	conn.cancel()
	conn.writeMu.Lock()
	if conn.ws != nil {
		conn.ws.Close()
		conn.ws = nil
	}
	conn.writeMu.Unlock()
}

// CloseAll tears down every tab's connection.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.conns))
	for id := range m.conns {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		m.Close(id)
	}
}

// run is the per-tab connect-read-reconnect loop. Every dial failure or
// dropped socket backs off exponentially from the base delay up to the cap,
// retrying until the context is cancelled.
func (m *Manager) run(ctx context.Context, tabID string, conn *tabConn) {
	delay := m.backoffBase
	for {
		ws, _, err := m.dialer.DialContext(ctx, m.wsURL, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.log.Warn("websocket dial failed", "tab_id", tabID, "url", m.wsURL, "retry_in", delay, "error", err)
			if !sleep(ctx, delay) {
				return
			}
			delay = nextDelay(delay, m.backoffCap)
			continue
		}

		delay = m.backoffBase
		conn.setSocket(ws)
		m.log.Debug("websocket connected", "tab_id", tabID)
		m.onStatus(tabID, true)

		m.readLoop(ctx, tabID, conn, ws)

		conn.setSocket(nil)
		if ctx.Err() != nil {
			return
		}
		m.log.Warn("websocket dropped, reconnecting", "tab_id", tabID, "retry_in", delay)
		m.onStatus(tabID, false)
		if !sleep(ctx, delay) {
			return
		}
		delay = nextDelay(delay, m.backoffCap)
	}
}

func (m *Manager) readLoop(ctx context.Context, tabID string, conn *tabConn, ws *websocket.Conn) {
	// Close the socket when the context dies so ReadMessage unblocks.
	stop := context.AfterFunc(ctx, func() { ws.Close() })
	defer stop()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}

		ev, err := protocol.Decode(data)
		if err != nil {
			var unknown *protocol.ErrUnknownType
			if errors.As(err, &unknown) {
				m.log.Debug("dropping unknown frame", "tab_id", tabID, "frame_type", unknown.TypeName)
			} else {
				m.log.Warn("dropping malformed frame", "tab_id", tabID, "error", err)
			}
			continue
		}

		// Keepalives are answered here and never reach the transcript.
		if _, ok := ev.(*protocol.PingEvent); ok {
			if data, err := protocol.Encode(protocol.PongReply()); err == nil {
				if err := conn.write(data); err != nil {
					m.log.Warn("pong reply failed", "tab_id", tabID, "error", err)
				}
			}
			continue
		}

		m.onEvent(tabID, ev)
	}
}

func nextDelay(d, cap time.Duration) time.Duration {
	d *= 2
	if d > cap {
		return cap
	}
	return d
}

// sleep waits for d, returning false if the context is cancelled first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
