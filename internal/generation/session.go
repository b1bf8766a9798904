package generation

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/GriffinCanCode/Shepherd/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/Shepherd/backend/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/Shepherd/backend/internal/shared/id"
	"github.com/GriffinCanCode/Shepherd/backend/internal/transport/httpclient"
	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

// Opener opens a chunked streaming response
type Opener interface {
	OpenStream(ctx context.Context, sr httpclient.StreamRequest) (*httpclient.StreamResponse, error)
}

// Snapshot is a point-in-time copy of a session
type Snapshot struct {
	ID         id.SessionID
	State      State
	RawText    string
	Parsed     any
	ChunkCount int
	Asset      *Asset
	// AssetError is set when the derived asset failed but the text completed
	AssetError string
	LastError  *ErrorInfo
}

// Session drives one generation request at a time. Start resets all
// accumulated state; Cancel returns to Idle and silences every observer for
// the cancelled run.
type Session struct {
	client  Opener
	cfg     Config
	logger  *zap.Logger
	metrics *monitoring.Metrics

	mu sync.Mutex
	// epoch is bumped by Start and Cancel; work tagged with an older epoch
	// is discarded before it mutates state or reaches an observer.
	epoch         uint64
	id            id.SessionID
	state         State
	raw           strings.Builder
	parsed        any
	chunkCount    int
	asset         *Asset
	assetErr      string
	lastErr       *ErrorInfo
	wantAsset     bool
	awaitingAsset bool
	started       time.Time
	cancel        context.CancelFunc
	done          chan struct{}

	onStateChange func(from, to State)
	onChunk       func(Snapshot)
	onComplete    func(Snapshot)
	onError       func(ErrorInfo)
}

// Option configures a Session
type Option func(*Session)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records session metrics
func WithMetrics(m *monitoring.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

func WithOnStateChange(fn func(from, to State)) Option {
	return func(s *Session) { s.onStateChange = fn }
}

func WithOnChunk(fn func(Snapshot)) Option {
	return func(s *Session) { s.onChunk = fn }
}

func WithOnComplete(fn func(Snapshot)) Option {
	return func(s *Session) { s.onComplete = fn }
}

func WithOnError(fn func(ErrorInfo)) Option {
	return func(s *Session) { s.onError = fn }
}

// NewSession creates an idle session
func NewSession(client Opener, cfg Config, opts ...Option) *Session {
	s := &Session{
		client: client,
		cfg:    cfg,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("generation")
	return s
}

func (s *Session) OnStateChange(fn func(from, to State)) {
	s.mu.Lock()
	s.onStateChange = fn
	s.mu.Unlock()
}

func (s *Session) OnChunk(fn func(Snapshot)) {
	s.mu.Lock()
	s.onChunk = fn
	s.mu.Unlock()
}

func (s *Session) OnComplete(fn func(Snapshot)) {
	s.mu.Lock()
	s.onComplete = fn
	s.mu.Unlock()
}

func (s *Session) OnError(fn func(ErrorInfo)) {
	s.mu.Lock()
	s.onError = fn
	s.mu.Unlock()
}

// State returns the current state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns a copy of the current session
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:         s.id,
		State:      s.state,
		RawText:    s.raw.String(),
		Parsed:     s.parsed,
		ChunkCount: s.chunkCount,
		Asset:      s.asset,
		AssetError: s.assetErr,
	}
	if s.lastErr != nil {
		e := *s.lastErr
		snap.LastError = &e
	}
	return snap
}

func (s *Session) resetLocked() {
	s.raw.Reset()
	s.parsed = nil
	s.chunkCount = 0
	s.asset = nil
	s.assetErr = ""
	s.awaitingAsset = false
}

// Start aborts any run in flight, resets accumulated state and begins a new
// request. It returns immediately; progress is reported via observers and
// Wait.
func (s *Session) Start(ctx context.Context, req Request) id.SessionID {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.epoch++
	epoch := s.epoch
	s.resetLocked()
	s.lastErr = nil
	s.id = id.NewSessionID()
	s.wantAsset = req.GenerateAsset
	s.started = time.Now()
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	done := make(chan struct{})
	s.done = done
	from := s.state
	s.state = Connecting
	sessionID := s.id
	fn := s.onStateChange
	s.mu.Unlock()

	s.logger.Info("generation started",
		zap.String("session_id", sessionID.String()),
		zap.String("content_kind", s.cfg.ContentKind),
		zap.Bool("generate_asset", req.GenerateAsset),
	)
	if fn != nil && from != Connecting {
		fn(from, Connecting)
	}

	go s.run(runCtx, epoch, req, done)
	return sessionID
}

// Cancel aborts a running session and returns it to Idle without invoking
// completion or error observers. It reports whether anything was cancelled.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	if s.state == Idle || s.state.Terminal() {
		s.mu.Unlock()
		return false
	}
	s.epoch++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.resetLocked()
	s.state = Idle
	sessionID := s.id
	started := s.started
	s.mu.Unlock()

	s.metrics.RecordGenerationOutcome(s.cfg.ContentKind, "cancelled", time.Since(started))
	s.logger.Info("generation cancelled", zap.String("session_id", sessionID.String()))
	return true
}

// Wait blocks until the current run stops and returns its final snapshot.
func (s *Session) Wait(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return Snapshot{}, ErrNotStarted
	}
	select {
	case <-done:
		return s.Snapshot(), nil
	case <-ctx.Done():
		return s.Snapshot(), ctx.Err()
	}
}

func (s *Session) run(ctx context.Context, epoch uint64, req Request, done chan struct{}) {
	defer close(done)

	s.metrics.IncGenerationActive()
	defer s.metrics.DecGenerationActive()

	ctx, span := tracing.StartSpan(ctx, "generation.stream",
		tracing.String("content_kind", s.cfg.ContentKind),
	)
	defer span.End()

	headers := map[string]string{}
	if s.cfg.TenantID != "" {
		headers["X-Tenant-ID"] = s.cfg.TenantID
	}
	resp, err := s.client.OpenStream(ctx, httpclient.StreamRequest{
		URL:     s.cfg.endpoint(),
		Token:   s.cfg.Token,
		Body:    req,
		Headers: headers,
	})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		info := ErrorInfo{Kind: KindTransport, Message: err.Error()}
		var se *httpclient.StatusError
		if errors.As(err, &se) {
			info = ErrorInfo{Kind: KindHTTP, Status: se.Status, Message: se.Message}
			if info.Message == "" {
				info.Message = "request rejected"
			}
		}
		tracing.RecordError(span, &info)
		s.fail(epoch, info)
		return
	}
	defer resp.Body.Close()

	if !s.transition(epoch, Connecting, Streaming) {
		return
	}

	frames := NewFrameReader(resp.Body)
	for {
		f, err := frames.Next()
		if errors.Is(err, io.EOF) {
			s.finishAtEOF(epoch)
			break
		}
		if err != nil {
			if ctx.Err() == nil {
				info := ErrorInfo{Kind: KindTransport, Message: err.Error()}
				tracing.RecordError(span, &info)
				s.fail(epoch, info)
			}
			return
		}
		if !s.handleFrame(epoch, f) {
			break
		}
	}

	if snap := s.Snapshot(); snap.State == Error && snap.LastError != nil {
		tracing.RecordError(span, snap.LastError)
	} else {
		tracing.SetOK(span)
	}
}

// handleFrame applies one frame and reports whether reading should go on.
func (s *Session) handleFrame(epoch uint64, f Frame) bool {
	s.metrics.RecordGenerationFrame(f.Event)

	switch f.Event {
	case FrameChunk:
		var p chunkPayload
		if err := sonic.Unmarshal(f.Data, &p); err != nil {
			s.logger.Debug("skipping malformed chunk", zap.Error(err))
			return true
		}
		return s.appendChunk(epoch, p.Content)

	case FrameComplete:
		var p completePayload
		if len(f.Data) > 0 {
			if err := sonic.Unmarshal(f.Data, &p); err != nil {
				s.logger.Debug("complete frame without valid payload", zap.Error(err))
			}
		}
		return s.complete(epoch, p.Content)

	case FrameAssetStart:
		return s.assetStart(epoch)

	case FrameAssetComplete:
		var a Asset
		if err := sonic.Unmarshal(f.Data, &a); err != nil {
			return s.assetFailed(epoch, "invalid asset payload: "+err.Error())
		}
		return s.assetComplete(epoch, a)

	case FrameAssetError:
		var p errorPayload
		_ = sonic.Unmarshal(f.Data, &p)
		if p.Error == "" {
			p.Error = "asset generation failed"
		}
		return s.assetFailed(epoch, p.Error)

	case FrameError:
		var p errorPayload
		_ = sonic.Unmarshal(f.Data, &p)
		if p.Error == "" {
			p.Error = "generation failed"
		}
		s.fail(epoch, ErrorInfo{Kind: KindStream, Message: p.Error})
		return false

	default:
		s.logger.Debug("ignoring frame", zap.String("event", f.Event))
		return true
	}
}

func (s *Session) appendChunk(epoch uint64, content string) bool {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return false
	}
	if s.state != Streaming || s.awaitingAsset {
		s.mu.Unlock()
		return true
	}
	s.raw.WriteString(content)
	s.chunkCount++
	if v, ok := parseStrict(s.raw.String()); ok {
		s.parsed = v
	}
	snap := s.snapshotLocked()
	fn := s.onChunk
	s.mu.Unlock()

	if fn != nil && s.current(epoch) {
		fn(snap)
	}
	return true
}

func (s *Session) complete(epoch uint64, content any) bool {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return false
	}
	if s.state != Streaming || s.awaitingAsset {
		s.mu.Unlock()
		return true
	}

	switch v := content.(type) {
	case nil:
	case string:
		if parsed, ok := parseStrict(v); ok {
			s.parsed = parsed
		}
	default:
		s.parsed = v
	}
	if s.parsed == nil && s.raw.Len() > 0 {
		if v, ok := parseFinal(s.raw.String()); ok {
			s.parsed = v
		}
	}

	if s.wantAsset {
		s.awaitingAsset = true
		s.mu.Unlock()
		return true
	}
	s.mu.Unlock()

	s.finish(epoch, Complete, "", nil)
	return false
}

func (s *Session) assetStart(epoch uint64) bool {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()
	if !s.transition(epoch, Streaming, GeneratingAsset) {
		return s.current(epoch)
	}
	return true
}

// assetPhaseLocked reports whether asset frames are accepted now
func (s *Session) assetPhaseLocked() bool {
	return s.state == GeneratingAsset || (s.state == Streaming && s.awaitingAsset)
}

func (s *Session) assetComplete(epoch uint64, a Asset) bool {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return false
	}
	if !s.assetPhaseLocked() {
		s.mu.Unlock()
		return true
	}
	s.mu.Unlock()

	asset, err := decodeAsset(a)
	if err != nil {
		return s.assetFailed(epoch, err.Error())
	}

	s.finish(epoch, AssetComplete, "", asset)
	return false
}

func (s *Session) assetFailed(epoch uint64, msg string) bool {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return false
	}
	if !s.assetPhaseLocked() {
		s.mu.Unlock()
		return true
	}
	s.mu.Unlock()

	s.finish(epoch, Complete, msg, nil)
	return false
}

// finishAtEOF settles a stream that ended on its own.
func (s *Session) finishAtEOF(epoch uint64) {
	s.mu.Lock()
	if s.epoch != epoch || s.state.Terminal() || s.state == Idle {
		s.mu.Unlock()
		return
	}
	if s.assetPhaseLocked() {
		s.mu.Unlock()
		s.finish(epoch, Complete, "stream ended before the asset was generated", nil)
		return
	}
	raw := s.raw.String()
	s.mu.Unlock()

	if strings.TrimSpace(raw) == "" {
		s.fail(epoch, ErrorInfo{Kind: KindIncomplete, Message: "stream ended without content"})
		return
	}
	v, ok := parseFinal(raw)
	if !ok {
		s.fail(epoch, ErrorInfo{Kind: KindIncomplete, Message: "stream ended before a complete result"})
		return
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	s.parsed = v
	s.mu.Unlock()
	s.finish(epoch, Complete, "", nil)
}

// finish moves to a successful terminal state and notifies observers.
func (s *Session) finish(epoch uint64, to State, assetErr string, asset *Asset) {
	s.mu.Lock()
	if s.epoch != epoch || s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	from := s.state
	s.state = to
	s.awaitingAsset = false
	s.asset = asset
	if assetErr != "" {
		s.assetErr = assetErr
	}
	s.releaseLocked()
	snap := s.snapshotLocked()
	started := s.started
	onState, onComplete := s.onStateChange, s.onComplete
	s.mu.Unlock()

	s.metrics.RecordGenerationOutcome(s.cfg.ContentKind, to.String(), time.Since(started))
	fields := []zap.Field{
		zap.String("session_id", snap.ID.String()),
		zap.String("state", to.String()),
		zap.Int("chunks", snap.ChunkCount),
	}
	if assetErr != "" {
		s.logger.Warn("generation complete, asset failed", append(fields, zap.String("asset_error", assetErr))...)
	} else {
		s.logger.Info("generation complete", fields...)
	}

	if !s.current(epoch) {
		return
	}
	if onState != nil {
		onState(from, to)
	}
	if onComplete != nil && s.current(epoch) {
		onComplete(snap)
	}
}

// fail moves to Error. Partial content is discarded.
func (s *Session) fail(epoch uint64, info ErrorInfo) {
	s.mu.Lock()
	if s.epoch != epoch || s.state.Terminal() || s.state == Idle {
		s.mu.Unlock()
		return
	}
	from := s.state
	s.resetLocked()
	s.state = Error
	s.lastErr = &info
	s.releaseLocked()
	sessionID := s.id
	started := s.started
	onState, onError := s.onStateChange, s.onError
	s.mu.Unlock()

	s.metrics.RecordGenerationOutcome(s.cfg.ContentKind, Error.String(), time.Since(started))
	s.logger.Warn("generation failed",
		zap.String("session_id", sessionID.String()),
		zap.String("kind", string(info.Kind)),
		zap.Int("status", info.Status),
		zap.String("error", info.Message),
	)

	if !s.current(epoch) {
		return
	}
	if onState != nil {
		onState(from, Error)
	}
	if onError != nil && s.current(epoch) {
		onError(info)
	}
}

// releaseLocked cancels the run context once the run has settled
func (s *Session) releaseLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Session) transition(epoch uint64, from, to State) bool {
	s.mu.Lock()
	if s.epoch != epoch || s.state != from {
		s.mu.Unlock()
		return false
	}
	s.state = to
	fn := s.onStateChange
	s.mu.Unlock()

	if fn != nil && s.current(epoch) {
		fn(from, to)
	}
	return true
}

func (s *Session) current(epoch uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch == epoch
}
