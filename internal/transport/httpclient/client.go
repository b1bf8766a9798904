package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/GriffinCanCode/Shepherd/backend/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/Shepherd/backend/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/Shepherd/backend/internal/shared/id"
	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// maxErrorBody caps how much of a rejected response is read for its message
const maxErrorBody = 64 << 10

var errServerStatus = errors.New("server error status")

// StatusError is returned when the endpoint answers with a non-2xx status.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.Status)
	}
	return fmt.Sprintf("http %d: %s", e.Status, e.Message)
}

// Config defines client behavior
type Config struct {
	// ResponseHeaderTimeout bounds the wait for response headers. The body is
	// unbounded; streams are cancelled through the request context.
	ResponseHeaderTimeout time.Duration
	RetryMax              int
	RetryWaitMin          time.Duration
	RetryWaitMax          time.Duration
	// RequestsPerSecond of 0 disables client-side throttling
	RequestsPerSecond float64
	BreakerFailures   uint32
	BreakerTimeout    time.Duration
	UserAgent         string
}

// DefaultConfig returns production client settings
func DefaultConfig() Config {
	return Config{
		ResponseHeaderTimeout: 15 * time.Second,
		RetryMax:              2,
		RetryWaitMin:          500 * time.Millisecond,
		RetryWaitMax:          5 * time.Second,
		BreakerFailures:       5,
		BreakerTimeout:        30 * time.Second,
		UserAgent:             "Shepherd-Client/1.0",
	}
}

// Client wraps resty with rate limiting, circuit breaker and retrying
// connection establishment for chunked streaming endpoints.
type Client struct {
	resty   *resty.Client
	breaker *resilience.Breaker[*resty.Response]
	logger  *zap.Logger

	mu      sync.RWMutex
	limiter *rate.Limiter
}

// New creates a streaming HTTP client
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.ResponseHeaderTimeout == 0 {
		cfg.ResponseHeaderTimeout = def.ResponseHeaderTimeout
	}
	if cfg.RetryWaitMin == 0 {
		cfg.RetryWaitMin = def.RetryWaitMin
	}
	if cfg.RetryWaitMax == 0 {
		cfg.RetryWaitMax = def.RetryWaitMax
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.RetryMax
	retryClient.RetryWaitMin = cfg.RetryWaitMin
	retryClient.RetryWaitMax = cfg.RetryWaitMax
	retryClient.Logger = nil
	// Hand the final response back instead of a generic "giving up" error so
	// the caller can surface the server's message.
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	if tr, ok := retryClient.HTTPClient.Transport.(*http.Transport); ok {
		tr.ResponseHeaderTimeout = cfg.ResponseHeaderTimeout
	}

	restyClient := resty.NewWithClient(retryClient.StandardClient()).
		SetRetryCount(0).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Accept", "text/event-stream")

	log := logger
	breaker := resilience.New[*resty.Response]("generation-stream", resilience.Settings{
		Timeout:             cfg.BreakerTimeout,
		ConsecutiveFailures: cfg.BreakerFailures,
		OnStateChange: func(name string, from, to resilience.State) {
			log.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	c := &Client{
		resty:   restyClient,
		breaker: breaker,
		logger:  logger,
	}
	c.SetRateLimit(cfg.RequestsPerSecond)
	return c
}

// SetRateLimit configures client-side throttling (requests per second)
func (c *Client) SetRateLimit(rps float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rps <= 0 {
		c.limiter = rate.NewLimiter(rate.Inf, 0)
		return
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
}

// BreakerState returns the current circuit breaker state
func (c *Client) BreakerState() resilience.State {
	return c.breaker.State()
}

// StreamRequest describes one streaming POST
type StreamRequest struct {
	URL     string
	Token   string
	Body    any
	Headers map[string]string
}

// StreamResponse is an open 2xx response whose body the caller must close
type StreamResponse struct {
	Status    int
	Header    http.Header
	Body      io.ReadCloser
	RequestID id.RequestID
}

// OpenStream sends the request and returns once headers arrive. Non-2xx
// answers are returned as *StatusError with the body already closed.
func (c *Client) OpenStream(ctx context.Context, sr StreamRequest) (*StreamResponse, error) {
	c.mu.RLock()
	limiter := c.limiter
	c.mu.RUnlock()

	if err := limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	reqID := id.NewRequestID()
	headers := http.Header{}
	tracing.InjectHeaders(ctx, headers)

	resp, err := c.breaker.Execute(func() (*resty.Response, error) {
		req := c.resty.R().
			SetContext(ctx).
			SetDoNotParseResponse(true).
			SetHeader("Content-Type", "application/json").
			SetHeader("X-Request-ID", reqID.String()).
			SetBody(sr.Body)
		if sr.Token != "" {
			req.SetAuthToken(sr.Token)
		}
		for k, v := range sr.Headers {
			req.SetHeader(k, v)
		}
		for k := range headers {
			req.SetHeader(k, headers.Get(k))
		}

		r, err := req.Post(sr.URL)
		if err != nil {
			return r, err
		}
		if r.StatusCode() >= 500 {
			return r, errServerStatus
		}
		return r, nil
	})

	if resilience.IsOpen(err) {
		return nil, fmt.Errorf("streaming endpoint unavailable: %w", err)
	}
	if err != nil && !errors.Is(err, errServerStatus) {
		if resp != nil && resp.RawBody() != nil {
			resp.RawBody().Close()
		}
		return nil, err
	}

	status := resp.StatusCode()
	if status < 200 || status > 299 {
		body := resp.RawBody()
		defer body.Close()
		data, _ := io.ReadAll(io.LimitReader(body, maxErrorBody))
		c.logger.Debug("stream rejected",
			zap.String("request_id", reqID.String()),
			zap.Int("status", status),
		)
		return nil, &StatusError{Status: status, Message: errorMessage(data)}
	}

	return &StreamResponse{
		Status:    status,
		Header:    resp.Header(),
		Body:      resp.RawBody(),
		RequestID: reqID,
	}, nil
}

// errorMessage extracts a human message from a JSON error body, falling back
// to the trimmed text.
func errorMessage(body []byte) string {
	var payload struct {
		Error   any    `json:"error"`
		Detail  any    `json:"detail"`
		Message string `json:"message"`
	}
	if err := sonic.Unmarshal(body, &payload); err == nil {
		for _, v := range []any{payload.Error, payload.Detail, payload.Message} {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return strings.TrimSpace(string(body))
}
