package generation

import (
	"context"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
)

// Result is what a caller keeps from an accepted or edited generation
type Result struct {
	Content    any
	RawText    string
	Asset      *Asset
	AssetError string
}

// GeneratorConfig is the caller-facing configuration of a Generator
type GeneratorConfig struct {
	ContentKind   string
	Model         string
	Language      string
	GenerateAsset bool
	AssetStyle    string
	AssetWidth    int
	AssetHeight   int
	// SanitizeHTML strips unsafe markup from string values on accept/edit
	SanitizeHTML bool

	OnComplete func(Snapshot)
	OnAccept   func(Result)
	OnEdit     func(Result)
	OnReject   func()
}

// Generator owns the session for one piece of content. Regenerate discards
// the current session and starts a new one; Accept, Edit and Reject consume
// the result and discard the session.
type Generator struct {
	client  Opener
	conn    Config
	cfg     GeneratorConfig
	opts    []Option
	logger  *zap.Logger
	policy  *bluemonday.Policy
	mu      sync.Mutex
	session *Session
	topic   string
}

// NewGenerator creates a generator. conn.ContentKind is taken from cfg when
// empty. logger and opts are applied to every session it creates.
func NewGenerator(client Opener, conn Config, cfg GeneratorConfig, logger *zap.Logger, opts ...Option) *Generator {
	if conn.ContentKind == "" {
		conn.ContentKind = cfg.ContentKind
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Generator{
		client: client,
		conn:   conn,
		cfg:    cfg,
		opts:   append([]Option{WithLogger(logger)}, opts...),
		logger: logger.Named("generator"),
	}
	if cfg.SanitizeHTML {
		g.policy = bluemonday.UGCPolicy()
	}
	return g
}

func (g *Generator) request(topic string) Request {
	return Request{
		Topic:         topic,
		Model:         g.cfg.Model,
		Language:      g.cfg.Language,
		GenerateAsset: g.cfg.GenerateAsset,
		AssetStyle:    g.cfg.AssetStyle,
		AssetWidth:    g.cfg.AssetWidth,
		AssetHeight:   g.cfg.AssetHeight,
	}
}

// Generate discards any current session and starts a fresh one for topic.
func (g *Generator) Generate(ctx context.Context, topic string) *Session {
	s := NewSession(g.client, g.conn, g.opts...)
	if g.cfg.OnComplete != nil {
		s.OnComplete(g.cfg.OnComplete)
	}

	g.mu.Lock()
	old := g.session
	g.session = s
	g.topic = topic
	g.mu.Unlock()

	if old != nil {
		old.Cancel()
	}
	s.Start(ctx, g.request(topic))
	return s
}

// Regenerate starts over with the last topic
func (g *Generator) Regenerate(ctx context.Context) (*Session, error) {
	g.mu.Lock()
	topic := g.topic
	started := g.session != nil || topic != ""
	g.mu.Unlock()
	if !started {
		return nil, ErrNoResult
	}
	return g.Generate(ctx, topic), nil
}

// Current returns the live session, or nil
func (g *Generator) Current() *Session {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.session
}

// Cancel aborts the current session without discarding it
func (g *Generator) Cancel() bool {
	if s := g.Current(); s != nil {
		return s.Cancel()
	}
	return false
}

// take detaches a successfully completed session
func (g *Generator) take() (Snapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.session == nil {
		return Snapshot{}, ErrNoResult
	}
	snap := g.session.Snapshot()
	if !snap.State.Succeeded() {
		return Snapshot{}, ErrNoResult
	}
	g.session = nil
	return snap, nil
}

// Accept consumes the completed result
func (g *Generator) Accept() (Result, error) {
	snap, err := g.take()
	if err != nil {
		return Result{}, err
	}
	res := Result{
		Content:    g.sanitize(snap.Parsed),
		RawText:    snap.RawText,
		Asset:      snap.Asset,
		AssetError: snap.AssetError,
	}
	g.logger.Info("generation accepted", zap.String("session_id", snap.ID.String()))
	if g.cfg.OnAccept != nil {
		g.cfg.OnAccept(res)
	}
	return res, nil
}

// Edit consumes the completed result with caller-edited content in place
// of the parsed value.
func (g *Generator) Edit(content any) (Result, error) {
	snap, err := g.take()
	if err != nil {
		return Result{}, err
	}
	res := Result{
		Content:    g.sanitize(content),
		RawText:    snap.RawText,
		Asset:      snap.Asset,
		AssetError: snap.AssetError,
	}
	g.logger.Info("generation edited", zap.String("session_id", snap.ID.String()))
	if g.cfg.OnEdit != nil {
		g.cfg.OnEdit(res)
	}
	return res, nil
}

// Reject cancels and discards the current session
func (g *Generator) Reject() {
	g.mu.Lock()
	s := g.session
	g.session = nil
	g.mu.Unlock()

	if s != nil {
		s.Cancel()
	}
	if g.cfg.OnReject != nil {
		g.cfg.OnReject()
	}
}

// sanitize cleans every string leaf of v
func (g *Generator) sanitize(v any) any {
	if g.policy == nil {
		return v
	}
	switch t := v.(type) {
	case string:
		return g.policy.Sanitize(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = g.sanitize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = g.sanitize(val)
		}
		return out
	default:
		return v
	}
}
