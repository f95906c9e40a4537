package anova

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Default timeouts and intervals for the push channel.
const (
	// defaultConnectTimeout is the maximum time to wait for the dial
	// and handshake.
	defaultConnectTimeout = 10 * time.Second

	// defaultCommandTimeout is how long SendCommand waits for the
	// cloud's response envelope.
	defaultCommandTimeout = 10 * time.Second

	// defaultWriteTimeout is the deadline for individual frame writes.
	defaultWriteTimeout = 5 * time.Second

	// defaultPingInterval is how often keepalive pings are sent.
	defaultPingInterval = 30 * time.Second

	// defaultPongTimeout is how long to wait for traffic before the
	// connection is considered dead.
	defaultPongTimeout = 75 * time.Second

	// eventQueueSize is the buffer size for the event callback queue.
	eventQueueSize = 100

	// eventWorkerCount is the number of concurrent callback workers.
	eventWorkerCount = 4
)

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Config holds push channel configuration.
type Config struct {
	// URL is the cloud websocket endpoint (ws:// or wss://).
	URL string

	// Token is the account token passed as a query parameter.
	Token string

	// Environment selects the cloud environment query parameter.
	// Default: "production".
	Environment string

	// ConnectTimeout is the maximum time for dial and handshake.
	// Default: 10 seconds.
	ConnectTimeout time.Duration

	// CommandTimeout is how long to wait for a command response.
	// Default: 10 seconds.
	CommandTimeout time.Duration

	// PingInterval is the keepalive ping cadence. Default: 30 seconds.
	PingInterval time.Duration

	// PongTimeout is the read inactivity limit. Default: 75 seconds.
	PongTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Environment == "" {
		c.Environment = "production"
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.CommandTimeout == 0 {
		c.CommandTimeout = defaultCommandTimeout
	}
	if c.PingInterval == 0 {
		c.PingInterval = defaultPingInterval
	}
	if c.PongTimeout == 0 {
		c.PongTimeout = defaultPongTimeout
	}
	return c
}

// Stats holds operational statistics for the push channel.
type Stats struct {
	FramesRx      uint64
	FramesTx      uint64
	FramesDropped uint64 // Events dropped due to full callback queue
	ErrorsTotal   uint64
	LastActivity  time.Time
	Connected     bool
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// PushChannel is the interface the update scheduler consumes.
// This allows mocking the cloud client in tests.
type PushChannel interface {
	Connect(ctx context.Context) error
	SendCommand(ctx context.Context, deviceID, command string, body map[string]interface{}) error
	SetOnState(callback func(map[string]interface{}))
	SetOnDevices(callback func([]DiscoveredDevice))
	SetOnDisconnect(callback func(error))
	IsConnected() bool
	Stats() Stats
	Close() error
}

// Ensure Client implements PushChannel.
var _ PushChannel = (*Client)(nil)

// Client maintains the websocket push channel to the Anova cloud.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Event callbacks are invoked from a bounded worker pool.
//
// Connection lifecycle:
//   - Connect establishes one session; when it drops, the client marks
//     itself disconnected, fails pending commands, and invokes the
//     disconnect callback. It does NOT retry on its own — the update
//     scheduler re-dials on its poll cadence, so a dead cloud costs one
//     dial per tick instead of a tight loop.
type Client struct {
	cfg Config

	// Connection state
	connMu    sync.RWMutex
	conn      *websocket.Conn
	connected bool
	session   *closeOnce // per-connection shutdown signal

	// writeMu serializes frame writes (gorilla allows one writer).
	writeMu sync.Mutex

	// Event callbacks
	callbackMu   sync.RWMutex
	onState      func(map[string]interface{})
	onDevices    func([]DiscoveredDevice)
	onDisconnect func(error)

	// Event worker pool (bounded goroutine spawning)
	eventQueue chan Envelope

	// Pending command correlation
	pendingMu sync.Mutex
	pending   map[string]chan CommandResponse

	// Shutdown coordination
	done *closeOnce
	wg   sync.WaitGroup

	// Logger (optional)
	logger   Logger
	loggerMu sync.RWMutex

	// Statistics (atomic for performance)
	framesRx      atomic.Uint64
	framesTx      atomic.Uint64
	framesDropped atomic.Uint64
	errorsTotal   atomic.Uint64
	lastActivity  atomic.Int64 // Unix timestamp
}

// NewClient creates a push channel client. No connection is made until
// Connect is called.
func NewClient(cfg Config) *Client {
	c := &Client{
		cfg:        cfg.withDefaults(),
		eventQueue: make(chan Envelope, eventQueueSize),
		pending:    make(map[string]chan CommandResponse),
		done:       newCloseOnce(),
	}
	c.lastActivity.Store(time.Now().Unix())

	// Workers outlive individual connections.
	for i := 0; i < eventWorkerCount; i++ {
		c.wg.Add(1)
		go c.eventWorker()
	}
	return c
}

// SetLogger sets the logger for this client.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// Connect dials the cloud and starts the receive loop.
//
// The account token and platform identifiers ride as query parameters.
// Calling Connect while a session is live is a no-op; calling it after
// a drop establishes a fresh session.
//
// Parameters:
//   - ctx: Context for cancellation (bounds the dial and handshake)
//
// Returns:
//   - error: wraps ErrConnectionFailed if the dial or handshake fails
func (c *Client) Connect(ctx context.Context) error {
	if c.isClosed() {
		return ErrNotConnected
	}
	if c.IsConnected() {
		return nil
	}

	endpoint, err := c.buildEndpoint()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, endpoint, nil)
	if err != nil {
		c.errorsTotal.Add(1)
		return fmt.Errorf("%w: dial: %w", ErrConnectionFailed, err)
	}

	session := newCloseOnce()

	c.connMu.Lock()
	c.conn = conn
	c.connected = true
	c.session = session
	c.connMu.Unlock()

	c.lastActivity.Store(time.Now().Unix())

	conn.SetPongHandler(func(string) error {
		c.lastActivity.Store(time.Now().Unix())
		return conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	})

	c.wg.Add(2)
	go c.receiveLoop(conn, session)
	go c.pingLoop(conn, session)

	c.logInfo("push channel connected", "url", c.cfg.URL)
	return nil
}

// buildEndpoint assembles the dial URL with auth query parameters.
func (c *Client) buildEndpoint() (string, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("unsupported scheme %q (use ws or wss)", u.Scheme)
	}

	q := u.Query()
	q.Set("token", c.cfg.Token)
	q.Set("supportedAccessories", "APO")
	q.Set("platform", "android")
	if c.cfg.Environment != "" {
		q.Set("environment", c.cfg.Environment)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// receiveLoop reads frames until the session drops.
func (c *Client) receiveLoop(conn *websocket.Conn, session *closeOnce) {
	defer c.wg.Done()

	if err := conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout)); err != nil {
		c.teardownSession(conn, session, fmt.Errorf("set read deadline: %w", err))
		return
	}

	for {
		select {
		case <-c.done.Done():
			c.teardownSession(conn, session, nil)
			return
		case <-session.Done():
			return
		default:
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.isClosed() {
				c.teardownSession(conn, session, nil)
				return
			}
			c.errorsTotal.Add(1)
			c.teardownSession(conn, session, fmt.Errorf("read: %w", err))
			return
		}

		c.framesRx.Add(1)
		c.lastActivity.Store(time.Now().Unix())
		if err := conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout)); err != nil {
			c.teardownSession(conn, session, fmt.Errorf("set read deadline: %w", err))
			return
		}

		env, err := decodeEnvelope(data)
		if err != nil {
			c.logError("dropping malformed frame", err)
			c.errorsTotal.Add(1)
			continue
		}

		c.dispatch(env)
	}
}

// dispatch routes one inbound envelope.
//
// Responses resolve their pending command synchronously; events go
// through the bounded worker queue (dropped with a counter bump when
// the queue is full, so a slow observer cannot wedge the read loop).
func (c *Client) dispatch(env Envelope) {
	if env.Command == MessageResponse && env.RequestID != "" {
		c.resolvePending(env)
		return
	}

	select {
	case c.eventQueue <- env:
	default:
		c.logError("event queue full, dropping frame", nil)
		c.framesDropped.Add(1)
		c.errorsTotal.Add(1)
	}
}

// resolvePending completes a pending command with its response.
func (c *Client) resolvePending(env Envelope) {
	var resp CommandResponse
	if len(env.Payload) > 0 {
		if err := decodeResponse(env.Payload, &resp); err != nil {
			c.logError("malformed command response", err)
			c.errorsTotal.Add(1)
			return
		}
	}

	c.pendingMu.Lock()
	ch, ok := c.pending[env.RequestID]
	if ok {
		delete(c.pending, env.RequestID)
	}
	c.pendingMu.Unlock()

	if ok {
		ch <- resp // buffered, never blocks
	}
}

// eventWorker processes events from the callback queue.
// Runs in a bounded worker pool to prevent goroutine explosion.
func (c *Client) eventWorker() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done.Done():
			c.drainEventQueue()
			return
		case env := <-c.eventQueue:
			c.handleEvent(env)
		}
	}
}

// handleEvent decodes and delivers one event to its callback.
// Panics in callbacks are recovered and logged.
func (c *Client) handleEvent(env Envelope) {
	defer func() {
		if r := recover(); r != nil {
			c.logError("event callback panic", fmt.Errorf("%v", r))
		}
	}()

	switch env.Command {
	case EventDeviceList:
		devices, err := decodeDeviceList(env.Payload)
		if err != nil {
			c.logError("dropping device list event", err)
			c.errorsTotal.Add(1)
			return
		}
		c.callbackMu.RLock()
		callback := c.onDevices
		c.callbackMu.RUnlock()
		if callback != nil {
			callback(devices)
		}

	case EventState:
		raw, err := decodeStatePayload(env.Payload)
		if err != nil {
			c.logError("dropping state event", err)
			c.errorsTotal.Add(1)
			return
		}
		c.callbackMu.RLock()
		callback := c.onState
		c.callbackMu.RUnlock()
		if callback != nil {
			callback(raw)
		}

	default:
		c.logDebug("ignoring event", "command", env.Command)
	}
}

// pingLoop sends keepalive pings for one session.
func (c *Client) pingLoop(conn *websocket.Conn, session *closeOnce) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done.Done():
			return
		case <-session.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(defaultWriteTimeout))
			c.writeMu.Unlock()
			if err != nil {
				c.errorsTotal.Add(1)
				c.teardownSession(conn, session, fmt.Errorf("ping: %w", err))
				return
			}
		}
	}
}

// teardownSession marks the session dead, fails pending commands and
// notifies the disconnect callback exactly once per session.
func (c *Client) teardownSession(conn *websocket.Conn, session *closeOnce, cause error) {
	first := false
	session.once.Do(func() {
		close(session.ch)
		first = true
	})
	if !first {
		return
	}

	conn.Close()

	c.connMu.Lock()
	if c.conn == conn {
		c.conn = nil
		c.connected = false
	}
	c.connMu.Unlock()

	c.failPending(ErrNotConnected)

	if cause != nil && !c.isClosed() {
		c.logInfo("push channel dropped", "error", cause.Error())
		c.callbackMu.RLock()
		callback := c.onDisconnect
		c.callbackMu.RUnlock()
		if callback != nil {
			callback(cause)
		}
	}
}

// failPending completes every in-flight command with an error status.
func (c *Client) failPending(err error) {
	c.pendingMu.Lock()
	pending := c.pending
	c.pending = make(map[string]chan CommandResponse)
	c.pendingMu.Unlock()

	for _, ch := range pending {
		ch <- CommandResponse{Status: "error", Error: err.Error()}
	}
}

// drainEventQueue discards queued events during shutdown.
func (c *Client) drainEventQueue() {
	for {
		select {
		case <-c.eventQueue:
		default:
			return
		}
	}
}

// SendCommand sends a command frame and waits for the cloud's response.
//
// Parameters:
//   - ctx: Context for cancellation
//   - deviceID: Target device id (routed inside the payload)
//   - command: Command name (CommandStartCook, CommandStopCook, ...)
//   - body: Command-specific payload fields (may be nil)
//
// Returns:
//   - error: ErrNotConnected when the channel is down, ErrCommandFailed
//     when the cloud rejects the command, ErrCommandTimeout when no
//     response arrives in time
func (c *Client) SendCommand(ctx context.Context, deviceID, command string, body map[string]interface{}) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	requestID := newRequestID()
	frame, err := encodeCommand(command, requestID, deviceID, body)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCommandFailed, err)
	}

	respCh := make(chan CommandResponse, 1)
	c.pendingMu.Lock()
	c.pending[requestID] = respCh
	c.pendingMu.Unlock()

	cleanup := func() {
		c.pendingMu.Lock()
		delete(c.pending, requestID)
		c.pendingMu.Unlock()
	}

	if err := c.writeFrame(frame); err != nil {
		cleanup()
		return err
	}

	timeout := time.NewTimer(c.cfg.CommandTimeout)
	defer timeout.Stop()

	select {
	case <-ctx.Done():
		cleanup()
		return fmt.Errorf("%w: %w", ErrCommandFailed, ctx.Err())
	case <-c.done.Done():
		cleanup()
		return ErrNotConnected
	case <-timeout.C:
		cleanup()
		return fmt.Errorf("%w: %s after %s", ErrCommandTimeout, command, c.cfg.CommandTimeout)
	case resp := <-respCh:
		if !resp.Success() {
			if resp.Error != "" {
				return fmt.Errorf("%w: %s: %s", ErrCommandFailed, command, resp.Error)
			}
			return fmt.Errorf("%w: %s: status %q", ErrCommandFailed, command, resp.Status)
		}
		return nil
	}
}

// writeFrame writes one text frame with a deadline.
func (c *Client) writeFrame(frame []byte) error {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout)); err != nil {
		return fmt.Errorf("%w: set deadline: %w", ErrCommandFailed, err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		c.errorsTotal.Add(1)
		return fmt.Errorf("%w: write: %w", ErrCommandFailed, err)
	}

	c.framesTx.Add(1)
	c.lastActivity.Store(time.Now().Unix())
	return nil
}

// SetOnState sets the callback for inbound state pushes.
// The callback receives the raw decoded payload for the normalizer.
func (c *Client) SetOnState(callback func(map[string]interface{})) {
	c.callbackMu.Lock()
	c.onState = callback
	c.callbackMu.Unlock()
}

// SetOnDevices sets the callback for device discovery events.
func (c *Client) SetOnDevices(callback func([]DiscoveredDevice)) {
	c.callbackMu.Lock()
	c.onDevices = callback
	c.callbackMu.Unlock()
}

// SetOnDisconnect sets the callback invoked when a session drops for
// any reason other than Close.
func (c *Client) SetOnDisconnect(callback func(error)) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	c.callbackMu.Unlock()
}

// IsConnected returns true if a push session is live.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected
}

// isClosed returns true if the client has been closed.
func (c *Client) isClosed() bool {
	select {
	case <-c.done.Done():
		return true
	default:
		return false
	}
}

// Stats returns current operational statistics.
func (c *Client) Stats() Stats {
	return Stats{
		FramesRx:      c.framesRx.Load(),
		FramesTx:      c.framesTx.Load(),
		FramesDropped: c.framesDropped.Load(),
		ErrorsTotal:   c.errorsTotal.Load(),
		LastActivity:  time.Unix(c.lastActivity.Load(), 0),
		Connected:     c.IsConnected(),
	}
}

// Close shuts the client down permanently.
//
// Safe to call multiple times. After Close, Connect returns an error.
func (c *Client) Close() error {
	c.done.Close()

	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	c.connected = false
	session := c.session
	c.connMu.Unlock()

	if session != nil {
		session.Close()
	}
	if conn != nil {
		conn.Close()
	}

	c.failPending(ErrNotConnected)
	c.wg.Wait()

	c.logInfo("push channel closed")
	return nil
}

// logInfo logs an info message if logger is set.
func (c *Client) logInfo(msg string, args ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()
	if logger != nil {
		logger.Info(msg, args...)
	}
}

// logDebug logs a debug message if logger is set.
func (c *Client) logDebug(msg string, args ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()
	if logger != nil {
		logger.Debug(msg, args...)
	}
}

// logError logs an error message if logger is set.
func (c *Client) logError(msg string, err error) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()
	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
