package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/GriffinCanCode/Shepherd/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/Shepherd/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/Shepherd/backend/internal/shared/id"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeTimeout     = 10 * time.Second
	closeGracePeriod = time.Second
	handshakeTimeout = 15 * time.Second
)

// Client maintains one push connection per tenant and token.
type Client struct {
	baseURL     string
	dialer      *websocket.Dialer
	backoff     []time.Duration
	keepAlive   time.Duration
	maxAttempts int
	autoConnect bool
	schedule    Scheduler
	logger      *zap.Logger
	metrics     *monitoring.Metrics

	mu            sync.Mutex
	tenantID      string
	token         string
	subscriptions []string
	state         State
	attempt       int
	// gen invalidates dial results, reconnect timers and read loops that
	// belong to a superseded connection.
	gen            uint64
	conn           *transport
	dialCancel     context.CancelFunc
	reconnectTimer Timer
	lastMessage    *Envelope
	closed         bool

	onMessage     func(Envelope)
	onConnect     func()
	onDisconnect  func()
	onStateChange func(from, to State)
}

// transport is one open socket
type transport struct {
	id        id.ConnID
	ws        *websocket.Conn
	writeMu   sync.Mutex
	keepAlive Timer
}

func (t *transport) write(env Envelope) error {
	data, err := env.MarshalJSON()
	if err != nil {
		return err
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_ = t.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return t.ws.WriteMessage(websocket.TextMessage, data)
}

func (t *transport) close(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = t.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
	_ = t.ws.Close()
}

// New creates a client. With auto-connect enabled and credentials present
// the first dial starts immediately.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL:     "ws://localhost:8000",
		backoff:     append([]time.Duration(nil), DefaultBackoff...),
		keepAlive:   DefaultKeepAlive,
		autoConnect: true,
		schedule:    afterFunc,
		logger:      zap.NewNop(),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("realtime")
	c.metrics.SetRealtimeState(int(Disconnected))

	if c.autoConnect {
		c.Connect()
	}
	return c
}

// State returns the current connection state
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastMessage returns the most recent non-pong envelope
func (c *Client) LastMessage() (Envelope, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastMessage == nil {
		return Envelope{}, false
	}
	return *c.lastMessage, true
}

// ConnID returns the id of the live transport, or "" when none is open
func (c *Client) ConnID() id.ConnID {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ""
	}
	return c.conn.id
}

// Attempt returns the number of reconnects scheduled since the last open
func (c *Client) Attempt() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempt
}

// Observer slots. Replacing one never touches the transport.

func (c *Client) OnMessage(fn func(Envelope)) {
	c.mu.Lock()
	c.onMessage = fn
	c.mu.Unlock()
}

func (c *Client) OnConnect(fn func()) {
	c.mu.Lock()
	c.onConnect = fn
	c.mu.Unlock()
}

func (c *Client) OnDisconnect(fn func()) {
	c.mu.Lock()
	c.onDisconnect = fn
	c.mu.Unlock()
}

func (c *Client) OnStateChange(fn func(from, to State)) {
	c.mu.Lock()
	c.onStateChange = fn
	c.mu.Unlock()
}

// SetCredentials changes the connection identity. Nothing happens when both
// values are unchanged; otherwise the current connection is torn down,
// OnDisconnect fires if a transport was open and, if the client was active
// or auto-connects, a fresh one is dialed.
func (c *Client) SetCredentials(tenantID, token string) {
	c.mu.Lock()
	if c.closed || (tenantID == c.tenantID && token == c.token) {
		c.mu.Unlock()
		return
	}
	active := c.state != Disconnected
	c.tenantID = tenantID
	c.token = token
	c.mu.Unlock()

	c.logger.Info("credentials changed", logging.Tenant(tenantID))
	gen := c.disconnect()
	if active || c.autoConnect {
		c.connectIf(func() bool { return c.gen == gen })
	}
}

// SetSubscriptions replaces the subscription list. A live connection is
// re-established so the new list takes effect.
func (c *Client) SetSubscriptions(events ...string) {
	c.mu.Lock()
	c.subscriptions = append([]string(nil), events...)
	c.mu.Unlock()

	c.connectIf(func() bool { return c.conn != nil })
}

// Connect tears down any transport and dials a new one. It is a no-op
// without a tenant and token, or after Close.
func (c *Client) Connect() {
	c.connectIf(nil)
}

// connectIf dials only if ok, evaluated under the lock, still holds.
func (c *Client) connectIf(ok func() bool) {
	c.mu.Lock()
	if c.closed || c.tenantID == "" || c.token == "" || (ok != nil && !ok()) {
		c.mu.Unlock()
		return
	}
	old := c.detachLocked()
	c.gen++
	gen := c.gen
	endpoint, err := c.endpointLocked()
	if err != nil {
		from := c.setStateLocked(Disconnected)
		c.mu.Unlock()
		c.logger.Error("invalid realtime endpoint", zap.Error(err))
		if old != nil {
			old.close(CloseNormal, "")
		}
		c.notifyState(from, Disconnected)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.dialCancel = cancel
	from := c.setStateLocked(Connecting)
	tenant := c.tenantID
	c.mu.Unlock()

	if old != nil {
		old.close(CloseNormal, "reconnecting")
	}
	c.notifyState(from, Connecting)

	go c.dial(ctx, gen, tenant, endpoint)
}

// Disconnect closes the transport with a normal closure and cancels any
// pending reconnect. OnDisconnect fires if a transport was open.
func (c *Client) Disconnect() {
	c.disconnect()
}

// disconnect returns the generation it installed.
func (c *Client) disconnect() uint64 {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	t := c.detachLocked()
	c.attempt = 0
	from := c.setStateLocked(Disconnected)
	onDisconnect := c.onDisconnect
	c.mu.Unlock()

	if t != nil {
		t.close(CloseNormal, "client disconnect")
		c.metrics.RecordRealtimeClose(CloseNormal)
		c.logger.Info("disconnected", zap.String("conn_id", t.id.String()))
	}
	c.notifyState(from, Disconnected)
	if t != nil && onDisconnect != nil {
		onDisconnect()
	}
	return gen
}

// Close releases the client. Timers are cancelled, the transport is closed
// with a normal closure and no observer fires afterwards. Later Connect
// calls do nothing.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.gen++
	t := c.detachLocked()
	c.state = Disconnected
	c.mu.Unlock()

	c.metrics.SetRealtimeState(int(Disconnected))
	if t != nil {
		t.close(CloseNormal, "client closed")
	}
	return nil
}

// Send writes env if a transport is open. It never queues.
func (c *Client) Send(env Envelope) bool {
	c.mu.Lock()
	t := c.conn
	c.mu.Unlock()

	if t == nil {
		c.metrics.IncRealtimeSendFailed()
		return false
	}
	if err := t.write(env); err != nil {
		c.logger.Debug("send failed", zap.String("conn_id", t.id.String()), zap.Error(err))
		c.metrics.IncRealtimeSendFailed()
		return false
	}
	c.metrics.RecordRealtimeMessage("out", env.Type)
	return true
}

// detachLocked cancels timers and the in-flight dial and returns the live
// transport, if any, for the caller to close outside the lock.
func (c *Client) detachLocked() *transport {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	if c.dialCancel != nil {
		c.dialCancel()
		c.dialCancel = nil
	}
	t := c.conn
	c.conn = nil
	if t != nil && t.keepAlive != nil {
		t.keepAlive.Stop()
		t.keepAlive = nil
	}
	return t
}

func (c *Client) setStateLocked(s State) State {
	from := c.state
	c.state = s
	return from
}

func (c *Client) notifyState(from, to State) {
	c.metrics.SetRealtimeState(int(to))
	if from == to {
		return
	}
	c.mu.Lock()
	fn := c.onStateChange
	c.mu.Unlock()
	if fn != nil {
		fn(from, to)
	}
}

func (c *Client) endpointLocked() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u = u.JoinPath("ws", c.tenantID)
	u.RawQuery = url.Values{"token": {c.token}}.Encode()
	return u.String(), nil
}

func (c *Client) dial(ctx context.Context, gen uint64, tenant, endpoint string) {
	connID := id.NewConnID()
	log := c.logger.With(zap.String("conn_id", connID.String()), logging.Tenant(tenant))
	log.Debug("dialing")

	ws, resp, err := c.dialer.DialContext(ctx, endpoint, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		code := CloseAbnormal
		if resp != nil {
			switch resp.StatusCode {
			case http.StatusUnauthorized:
				code = CloseUnauthorized
			case http.StatusForbidden:
				code = CloseForbidden
			}
		}
		log.Warn("dial failed", zap.Int("code", code), zap.Error(err))
		c.handleClose(gen, nil, code)
		return
	}

	t := &transport{id: connID, ws: ws}

	c.mu.Lock()
	if gen != c.gen || c.closed {
		c.mu.Unlock()
		t.close(CloseNormal, "superseded")
		return
	}
	c.dialCancel = nil
	c.conn = t
	c.attempt = 0
	from := c.setStateLocked(Connected)
	subs := append([]string(nil), c.subscriptions...)
	c.mu.Unlock()

	c.metrics.IncRealtimeConnects()
	log.Info("connected")
	c.notifyState(from, Connected)

	if len(subs) > 0 {
		if !c.Send(Subscribe(subs)) {
			log.Warn("subscribe not sent")
		}
	}
	c.armKeepAlive(t)

	c.mu.Lock()
	current := c.conn == t
	onConnect := c.onConnect
	c.mu.Unlock()
	if current && onConnect != nil {
		onConnect()
	}

	go c.readLoop(gen, t, log)
}

func (c *Client) armKeepAlive(t *transport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != t || c.keepAlive <= 0 {
		return
	}
	t.keepAlive = c.schedule(c.keepAlive, func() { c.ping(t) })
}

func (c *Client) ping(t *transport) {
	c.mu.Lock()
	current := c.conn == t
	c.mu.Unlock()
	if !current {
		return
	}
	if err := t.write(Ping()); err != nil {
		// a dead socket surfaces as a read error and takes the reconnect path
		c.logger.Debug("keep-alive failed", zap.String("conn_id", t.id.String()), zap.Error(err))
		_ = t.ws.Close()
		return
	}
	c.metrics.RecordRealtimeMessage("out", TypePing)
	c.armKeepAlive(t)
}

func (c *Client) readLoop(gen uint64, t *transport, log *zap.Logger) {
	defer t.ws.Close()
	for {
		_, data, err := t.ws.ReadMessage()
		if err != nil {
			code := CloseAbnormal
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				code = ce.Code
			}
			c.handleClose(gen, t, code)
			return
		}

		var env Envelope
		if err := env.UnmarshalJSON(data); err != nil {
			log.Debug("dropping malformed message", zap.Error(err))
			continue
		}
		c.metrics.RecordRealtimeMessage("in", env.Type)
		if env.Type == TypePong {
			continue
		}

		c.mu.Lock()
		if c.conn != t {
			c.mu.Unlock()
			return
		}
		c.lastMessage = &env
		onMessage := c.onMessage
		c.mu.Unlock()

		if onMessage != nil {
			onMessage(env)
		}
	}
}

// handleClose applies the close-code policy. t is nil for failed dials.
func (c *Client) handleClose(gen uint64, t *transport, code int) {
	c.mu.Lock()
	if gen != c.gen || c.closed || c.conn != t {
		c.mu.Unlock()
		return
	}
	old := c.detachLocked()

	reconnect := ShouldReconnect(code)
	if reconnect && c.maxAttempts > 0 && c.attempt >= c.maxAttempts {
		reconnect = false
		c.logger.Error("giving up reconnecting", zap.Int("attempts", c.attempt))
	}

	var (
		from  State
		to    State
		delay time.Duration
	)
	if reconnect {
		delay = Delay(c.backoff, c.attempt)
		c.attempt++
		to = Reconnecting
		c.reconnectTimer = c.schedule(delay, func() { c.reconnect(gen) })
	} else {
		to = Disconnected
	}
	from = c.setStateLocked(to)
	attempt := c.attempt
	onDisconnect := c.onDisconnect
	c.mu.Unlock()

	if old != nil {
		_ = old.ws.Close()
	}
	c.metrics.RecordRealtimeClose(code)
	fields := []zap.Field{zap.Int("code", code)}
	if t != nil {
		fields = append(fields, zap.String("conn_id", t.id.String()))
	}
	if reconnect {
		c.metrics.IncRealtimeReconnects()
		c.logger.Info("connection lost, reconnect scheduled",
			append(fields, zap.Int("attempt", attempt), zap.Duration("delay", delay))...)
	} else {
		c.logger.Info("connection closed", fields...)
	}

	c.notifyState(from, to)
	if onDisconnect != nil {
		onDisconnect()
	}
}

func (c *Client) reconnect(gen uint64) {
	c.connectIf(func() bool { return gen == c.gen && c.state == Reconnecting })
}
