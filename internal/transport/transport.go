package transport

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/P-yoganjaneyulu/float/internal/metrics"
	"github.com/P-yoganjaneyulu/float/internal/protocol"
	"github.com/P-yoganjaneyulu/float/internal/sendqueue"
	"github.com/P-yoganjaneyulu/float/internal/session"
)

// State is the transport's connection state. The transport is the sole
// writer; everyone else observes it through State() or GetSnapshot().
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

var (
	// ErrNotConnected is returned by Send while no connection is open.
	ErrNotConnected = errors.New("transport not connected")

	// ErrMaxAttemptsExceeded is recorded as the last error when the
	// transport gives up reconnecting.
	ErrMaxAttemptsExceeded = errors.New("reconnect attempts exhausted")
)

// Config controls connection, keepalive, and backoff behavior.
type Config struct {
	URL               string
	HandshakeTimeout  time.Duration
	KeepaliveInterval time.Duration
	BackoffBase       time.Duration
	BackoffMax        time.Duration
	MaxAttempts       int
}

// DefaultConfig returns the transport timings used when the config file
// leaves them unset.
func DefaultConfig(url string) Config {
	return Config{
		URL:               url,
		HandshakeTimeout:  10 * time.Second,
		KeepaliveInterval: 20 * time.Second,
		BackoffBase:       time.Second,
		BackoffMax:        60 * time.Second,
		MaxAttempts:       10,
	}
}

// Handlers route classified inbound traffic to the transport's
// collaborators. Nil handlers are skipped. All handlers run on the network
// task and must not block.
type Handlers struct {
	// OnResult receives translated-audio messages for playout.
	OnResult func(msg *protocol.InboundMessage)

	// OnServerError receives error messages from the server.
	OnServerError func(msg *protocol.InboundMessage)

	// OnStateChange observes connection state transitions.
	OnStateChange func(old, new State)
}

// Snapshot is the read-only connection view for the host/UI.
type Snapshot struct {
	State           string    `json:"state"`
	Attempts        int       `json:"attempts"`
	LastError       string    `json:"last_error,omitempty"`
	LastConnectedAt time.Time `json:"last_connected_at,omitempty"`
}

// Transport owns the duplex channel to the translation server: the connect
// and reconnect state machine, the keepalive ticker, the session handshake,
// and inbound dispatch. Outbound chunk acknowledgment flows into the send
// queue; translated audio flows out through Handlers.OnResult.
type Transport struct {
	config   Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	dialer   Dialer
	queue    *sendqueue.Queue
	sess     *session.Session
	handlers Handlers

	mu              sync.Mutex
	state           State
	conn            Conn
	attempt         int
	delay           time.Duration
	lastError       error
	lastConnectedAt time.Time
	explicit        bool
	backoffTimer    *time.Timer
	keepaliveStop   chan struct{}
	everConnected   bool
}

// NewTransport creates a transport for the given session. The dialer seam
// exists for tests; production callers pass NewWebSocketDialer. Metrics may
// be nil.
func NewTransport(config Config, dialer Dialer, queue *sendqueue.Queue, sess *session.Session, handlers Handlers, m *metrics.Metrics, logger *slog.Logger) *Transport {
	def := DefaultConfig(config.URL)
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = def.HandshakeTimeout
	}
	if config.KeepaliveInterval <= 0 {
		config.KeepaliveInterval = def.KeepaliveInterval
	}
	if config.BackoffBase <= 0 {
		config.BackoffBase = def.BackoffBase
	}
	if config.BackoffMax < config.BackoffBase {
		config.BackoffMax = def.BackoffMax
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = def.MaxAttempts
	}
	return &Transport{
		config:   config,
		logger:   logger,
		metrics:  m,
		dialer:   dialer,
		queue:    queue,
		sess:     sess,
		handlers: handlers,
		state:    StateDisconnected,
		delay:    config.BackoffBase,
	}
}

// Connect starts a connection attempt. Calls while already connecting or
// connected are no-ops; only one attempt is ever in flight.
func (t *Transport) Connect() {
	t.mu.Lock()
	if t.state == StateConnecting || t.state == StateConnected {
		t.mu.Unlock()
		return
	}
	t.explicit = false
	// An explicit restart gets a fresh reconnect budget.
	t.attempt = 0
	t.delay = t.config.BackoffBase
	t.setStateLocked(StateConnecting)
	t.mu.Unlock()

	go t.attemptConnect()
}

// Disconnect closes the channel and suppresses any further reconnection,
// including a pending backoff timer. Safe to call in any state.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	t.explicit = true
	if t.backoffTimer != nil {
		t.backoffTimer.Stop()
		t.backoffTimer = nil
	}
	conn := t.conn
	t.conn = nil
	t.stopKeepaliveLocked()
	t.setStateLocked(StateDisconnected)
	connectedAt := t.lastConnectedAt
	t.mu.Unlock()

	if conn != nil {
		conn.Close()
		t.recordConnectionClosed(connectedAt)
	}
	t.queue.OnDisconnected()
}

// State returns the current connection state.
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// GetSnapshot returns an immutable view of the connection.
func (t *Transport) GetSnapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	snapshot := Snapshot{
		State:           t.state.String(),
		Attempts:        t.attempt,
		LastConnectedAt: t.lastConnectedAt,
	}
	if t.lastError != nil {
		snapshot.LastError = t.lastError.Error()
	}
	return snapshot
}

// Send encodes and writes an audio chunk. The sequence id must already be
// assigned by the send queue.
func (t *Transport) Send(seq uint64, payload []byte, retransmit bool) error {
	data, err := protocol.EncodeChunk(t.sess.ID(), seq, t.sess.LanguagePair(), payload, nowMS(), retransmit)
	if err != nil {
		return err
	}
	if err := t.writeMessage(data); err != nil {
		return err
	}
	t.sess.RecordSent(retransmit)
	return nil
}

func (t *Transport) setStateLocked(next State) {
	if t.state == next {
		return
	}
	old := t.state
	t.state = next
	t.logger.Info("Connection state changed",
		slog.String("from", old.String()),
		slog.String("to", next.String()),
	)
	if t.handlers.OnStateChange != nil {
		// Handlers must not call back into the transport synchronously.
		go t.handlers.OnStateChange(old, next)
	}
}

func (t *Transport) attemptConnect() {
	if t.metrics != nil {
		t.metrics.RecordConnectAttempt()
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.config.HandshakeTimeout)
	conn, err := t.dialer.DialContext(ctx, t.config.URL)
	cancel()

	t.mu.Lock()
	if t.explicit {
		t.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		t.lastError = err
		t.setStateLocked(StateError)
		t.logger.Warn("Connection attempt failed",
			slog.String("url", t.config.URL),
			slog.String("error", err.Error()),
		)
		t.scheduleReconnectLocked()
		t.mu.Unlock()
		return
	}

	t.conn = conn
	t.attempt = 0
	t.delay = t.config.BackoffBase
	t.lastConnectedAt = time.Now()
	reconnected := t.everConnected
	t.everConnected = true
	t.setStateLocked(StateConnected)
	t.startKeepaliveLocked()
	t.mu.Unlock()

	if reconnected {
		t.sess.RecordReconnect()
	}

	go t.readLoop(conn)

	if err := t.sendSessionInit(); err != nil {
		t.logger.Warn("Session init failed", slog.String("error", err.Error()))
	}
}

// sendSessionInit opens the session exchange. The server answers with a
// connected message carrying its last processed sequence, which drives the
// post-reconnect resend.
func (t *Transport) sendSessionInit() error {
	data, err := protocol.EncodeSessionInit(t.sess.ID(), t.sess.LanguagePair(), t.queue.LastAcked(), nowMS())
	if err != nil {
		return err
	}
	return t.writeMessage(data)
}

func (t *Transport) writeMessage(data []byte) error {
	t.mu.Lock()
	conn := t.conn
	connected := t.state == StateConnected
	t.mu.Unlock()
	if !connected || conn == nil {
		return ErrNotConnected
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (t *Transport) readLoop(conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.handleClosed(conn, err)
			return
		}
		t.dispatch(data)
	}
}

// dispatch classifies one inbound message and routes it. Malformed data is
// reported and counted, never a reason to drop the connection.
func (t *Transport) dispatch(data []byte) {
	msg, err := protocol.ParseInbound(data)
	if err != nil {
		t.sess.RecordParseError()
		t.logger.Warn("Discarding malformed server message", slog.String("error", err.Error()))
		return
	}

	switch {
	case msg.MessageType == protocol.TypeConnected:
		t.handleConnected(msg)
	case msg.MessageType == protocol.TypeAck:
		t.handleAck(msg)
	case msg.IsResult():
		t.sess.RecordResult(msg.IsPartial())
		if t.handlers.OnResult != nil {
			t.handlers.OnResult(msg)
		}
	case msg.MessageType == protocol.TypeError:
		t.sess.RecordServerError()
		t.logger.Warn("Server reported error",
			slog.String("code", msg.ErrorCode),
			slog.String("message", msg.ErrorMessage),
		)
		if t.handlers.OnServerError != nil {
			t.handlers.OnServerError(msg)
		}
	case msg.MessageType == protocol.TypeKeepalive:
		t.logger.Debug("Keepalive from server")
	}
}

// handleConnected completes the session handshake. Everything the server
// already processed is acknowledged, then the remaining unacked entries are
// resent oldest-first.
func (t *Transport) handleConnected(msg *protocol.InboundMessage) {
	if msg.LastProcessedSequence > 0 {
		before := t.queue.PendingUnacked()
		t.queue.AckThrough(msg.LastProcessedSequence)
		if n := before - t.queue.PendingUnacked(); n > 0 {
			t.sess.RecordAcked(uint64(n))
		}
	}

	resend := t.queue.OnReconnected()
	t.logger.Info("Session established",
		slog.String("session_id", t.sess.ID()),
		slog.Uint64("last_processed", msg.LastProcessedSequence),
		slog.Int("resend", len(resend)),
	)
	for _, entry := range resend {
		if err := t.Send(entry.SequenceID, entry.Payload, true); err != nil {
			t.logger.Warn("Resend failed",
				slog.Uint64("sequence_id", entry.SequenceID),
				slog.String("error", err.Error()),
			)
			return
		}
	}
}

func (t *Transport) handleAck(msg *protocol.InboundMessage) {
	before := t.queue.PendingUnacked()
	if msg.LastAckedSequence > 0 {
		t.queue.AckThrough(msg.LastAckedSequence)
	} else {
		t.queue.Ack(msg.AckSequenceID)
	}
	if n := before - t.queue.PendingUnacked(); n > 0 {
		t.sess.RecordAcked(uint64(n))
	}
}

// handleClosed runs when the read loop observes a closed connection. A
// closure that was not an explicit Disconnect schedules a reconnect.
func (t *Transport) handleClosed(conn Conn, err error) {
	t.mu.Lock()
	if t.conn != conn {
		// A newer connection already replaced this one.
		t.mu.Unlock()
		return
	}
	t.conn = nil
	t.stopKeepaliveLocked()

	if t.explicit {
		t.setStateLocked(StateDisconnected)
		t.mu.Unlock()
		return
	}

	t.lastError = err
	t.logger.Warn("Connection lost", slog.String("error", err.Error()))
	t.scheduleReconnectLocked()
	connectedAt := t.lastConnectedAt
	t.mu.Unlock()

	conn.Close()
	t.recordConnectionClosed(connectedAt)
	t.queue.OnDisconnected()
}

// recordConnectionClosed observes how long the lost connection lasted.
func (t *Transport) recordConnectionClosed(connectedAt time.Time) {
	if t.metrics == nil || connectedAt.IsZero() {
		return
	}
	t.metrics.RecordConnectionClosed(time.Since(connectedAt).Seconds())
}

// scheduleReconnectLocked arms the backoff timer: delay doubles per attempt
// from the base up to the cap. Past the attempt ceiling the transport
// settles in Disconnected until explicitly restarted.
func (t *Transport) scheduleReconnectLocked() {
	t.attempt++
	if t.attempt > t.config.MaxAttempts {
		t.lastError = ErrMaxAttemptsExceeded
		t.logger.Error("Giving up reconnecting",
			slog.Int("attempts", t.attempt-1),
		)
		t.setStateLocked(StateDisconnected)
		return
	}

	delay := t.delay
	t.delay = min(t.delay*2, t.config.BackoffMax)
	t.setStateLocked(StateReconnecting)
	t.logger.Info("Scheduling reconnect",
		slog.Int("attempt", t.attempt),
		slog.Duration("delay", delay),
	)

	t.backoffTimer = time.AfterFunc(delay, func() {
		t.mu.Lock()
		if t.explicit || t.state != StateReconnecting {
			t.mu.Unlock()
			return
		}
		t.backoffTimer = nil
		t.setStateLocked(StateConnecting)
		t.mu.Unlock()
		t.attemptConnect()
	})
}

func (t *Transport) startKeepaliveLocked() {
	stop := make(chan struct{})
	t.keepaliveStop = stop
	go t.keepaliveLoop(stop)
}

func (t *Transport) stopKeepaliveLocked() {
	if t.keepaliveStop != nil {
		close(t.keepaliveStop)
		t.keepaliveStop = nil
	}
}

func (t *Transport) keepaliveLoop(stop chan struct{}) {
	ticker := time.NewTicker(t.config.KeepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			data, err := protocol.EncodeKeepalive(t.sess.ID(), nowMS())
			if err != nil {
				continue
			}
			if err := t.writeMessage(data); err != nil {
				t.logger.Debug("Keepalive write failed", slog.String("error", err.Error()))
			}
		}
	}
}

func nowMS() int64 {
	return time.Now().UnixMilli()
}
