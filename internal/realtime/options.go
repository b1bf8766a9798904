package realtime

import (
	"time"

	"github.com/GriffinCanCode/Shepherd/backend/internal/infrastructure/monitoring"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Option configures a Client
type Option func(*Client)

// WithBaseURL sets the socket origin, e.g. wss://api.example.org. http(s)
// schemes are mapped to ws(s).
func WithBaseURL(base string) Option {
	return func(c *Client) { c.baseURL = base }
}

// WithCredentials sets the tenant and bearer token used in the socket URI
func WithCredentials(tenantID, token string) Option {
	return func(c *Client) {
		c.tenantID = tenantID
		c.token = token
	}
}

// WithSubscriptions sets the event types sent once per connection
func WithSubscriptions(events ...string) Option {
	return func(c *Client) { c.subscriptions = append([]string(nil), events...) }
}

// WithAutoConnect connects from New and after credential changes
func WithAutoConnect(enabled bool) Option {
	return func(c *Client) { c.autoConnect = enabled }
}

// WithBackoff replaces the reconnect delay table
func WithBackoff(table []time.Duration) Option {
	return func(c *Client) {
		if len(table) > 0 {
			c.backoff = append([]time.Duration(nil), table...)
		}
	}
}

// WithKeepAlive sets the ping interval; 0 disables pings
func WithKeepAlive(d time.Duration) Option {
	return func(c *Client) { c.keepAlive = d }
}

// WithMaxReconnectAttempts stops reconnecting after n consecutive failures.
// 0 retries forever.
func WithMaxReconnectAttempts(n int) Option {
	return func(c *Client) { c.maxAttempts = n }
}

// WithDialer replaces the websocket dialer
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) {
		if d != nil {
			c.dialer = d
		}
	}
}

// WithScheduler replaces the timer source for reconnects and keep-alive
func WithScheduler(s Scheduler) Option {
	return func(c *Client) {
		if s != nil {
			c.schedule = s
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics records connection metrics
func WithMetrics(m *monitoring.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithOnMessage sets the message observer
func WithOnMessage(fn func(Envelope)) Option {
	return func(c *Client) { c.onMessage = fn }
}

// WithOnConnect sets the connect observer
func WithOnConnect(fn func()) Option {
	return func(c *Client) { c.onConnect = fn }
}

// WithOnDisconnect sets the disconnect observer
func WithOnDisconnect(fn func()) Option {
	return func(c *Client) { c.onDisconnect = fn }
}

// WithOnStateChange sets the state observer
func WithOnStateChange(fn func(from, to State)) Option {
	return func(c *Client) { c.onStateChange = fn }
}
