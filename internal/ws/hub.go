package ws

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/Shepherd/backend/internal/api/middleware"
	"github.com/GriffinCanCode/Shepherd/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/Shepherd/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/Shepherd/backend/internal/realtime"
	"github.com/GriffinCanCode/Shepherd/backend/internal/shared/utils"
)

// TypeSubscribed acknowledges a subscribe envelope
const TypeSubscribed = "subscribed"

const (
	writeWait   = 10 * time.Second
	sendBuffer  = 64
	closeGoAway = websocket.CloseGoingAway
)

// ErrReservedType is returned when publishing a control envelope type
var ErrReservedType = errors.New("envelope type is reserved")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // dev server
	},
}

// Authorizer decides whether token may join tenantID's channel
type Authorizer interface {
	Authorize(tenantID, token string) error
}

// Hub tracks tenant sockets and fans published envelopes out to them.
type Hub struct {
	auth        Authorizer
	logger      *zap.Logger
	metrics     *monitoring.Metrics
	readTimeout time.Duration

	mu     sync.RWMutex
	peers  map[string]map[*peer]struct{}
	closed bool
}

// NewHub creates a hub. readTimeout drops sockets that stay silent longer
// than it; zero disables the deadline.
func NewHub(auth Authorizer, logger *zap.Logger, metrics *monitoring.Metrics, readTimeout time.Duration) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		auth:        auth,
		logger:      logger.Named("hub"),
		metrics:     metrics,
		readTimeout: readTimeout,
		peers:       make(map[string]map[*peer]struct{}),
	}
}

// HandleConnection upgrades GET /ws/:tenantId?token= and serves the socket
// until either side closes it. Authorization failures are reported as close
// codes after the upgrade so browser clients can observe them.
func (h *Hub) HandleConnection(c *gin.Context) {
	tenant := c.Param("tenantId")
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", logging.Tenant(tenant), zap.Error(err))
		return
	}

	err = utils.ValidateID(tenant, "tenant_id")
	if err == nil {
		err = h.auth.Authorize(tenant, c.Query("token"))
	}
	if err != nil {
		code := realtime.CloseForbidden
		if errors.Is(err, middleware.ErrUnauthorized) {
			code = realtime.CloseUnauthorized
		}
		h.logger.Info("websocket rejected", logging.Tenant(tenant), zap.Int("code", code))
		closeConn(conn, code, err.Error())
		return
	}

	p := newPeer(tenant, conn)
	if !h.add(p) {
		closeConn(conn, closeGoAway, "server shutting down")
		return
	}
	h.metrics.IncWSConnections()
	h.logger.Info("websocket opened", logging.Tenant(tenant), zap.String("conn_id", p.id.String()))

	go p.writePump(h.logger)
	h.readPump(p)

	h.remove(p)
	p.stop()
	conn.Close()
	h.metrics.DecWSConnections()
	h.logger.Info("websocket closed", logging.Tenant(tenant), zap.String("conn_id", p.id.String()))
}

func (h *Hub) readPump(p *peer) {
	for {
		if h.readTimeout > 0 {
			p.ws.SetReadDeadline(time.Now().Add(h.readTimeout))
		}
		_, data, err := p.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("websocket read error", zap.String("conn_id", p.id.String()), zap.Error(err))
			}
			return
		}

		var env realtime.Envelope
		if err := env.UnmarshalJSON(data); err != nil {
			h.logger.Debug("dropping malformed envelope", zap.String("conn_id", p.id.String()), zap.Error(err))
			continue
		}

		switch env.Type {
		case realtime.TypePing:
			p.enqueue(mustEncode(realtime.NewEnvelope(realtime.TypePong, nil)))
		case realtime.TypeSubscribe:
			events := p.subscribe(env.Fields["events"])
			p.enqueue(mustEncode(realtime.NewEnvelope(TypeSubscribed, map[string]any{"events": events})))
		default:
			h.logger.Debug("ignoring client envelope", zap.String("type", env.Type))
		}
	}
}

// Publish delivers env to every socket of tenantID subscribed to its type and
// returns how many sockets accepted it.
func (h *Hub) Publish(tenantID string, env realtime.Envelope) (int, error) {
	switch env.Type {
	case "", realtime.TypePing, realtime.TypePong, realtime.TypeSubscribe, TypeSubscribed:
		return 0, ErrReservedType
	}
	data, err := env.MarshalJSON()
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, p := range h.tenantPeers(tenantID) {
		if p.wants(env.Type) && p.enqueue(data) {
			delivered++
		}
	}
	h.logger.Debug("published",
		logging.Tenant(tenantID),
		zap.String("type", env.Type),
		zap.Int("delivered", delivered),
	)
	return delivered, nil
}

// Disconnect closes every socket of tenantID with code and returns how many
// were closed.
func (h *Hub) Disconnect(tenantID string, code int, reason string) int {
	peers := h.tenantPeers(tenantID)
	for _, p := range peers {
		closeConn(p.ws, code, reason)
	}
	return len(peers)
}

// Count returns the open sockets of tenantID, or of every tenant when empty
func (h *Hub) Count(tenantID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if tenantID != "" {
		return len(h.peers[tenantID])
	}
	n := 0
	for _, set := range h.peers {
		n += len(set)
	}
	return n
}

// Close sends going-away to every socket and refuses new ones
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var all []*peer
	for _, set := range h.peers {
		for p := range set {
			all = append(all, p)
		}
	}
	h.mu.Unlock()

	for _, p := range all {
		closeConn(p.ws, closeGoAway, "server shutting down")
	}
}

func (h *Hub) add(p *peer) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	set, ok := h.peers[p.tenant]
	if !ok {
		set = make(map[*peer]struct{})
		h.peers[p.tenant] = set
	}
	set[p] = struct{}{}
	return true
}

func (h *Hub) remove(p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.peers[p.tenant]; ok {
		delete(set, p)
		if len(set) == 0 {
			delete(h.peers, p.tenant)
		}
	}
}

func (h *Hub) tenantPeers(tenantID string) []*peer {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*peer, 0, len(h.peers[tenantID]))
	for p := range h.peers[tenantID] {
		out = append(out, p)
	}
	return out
}

func closeConn(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	conn.Close()
}

func mustEncode(env realtime.Envelope) []byte {
	data, err := env.MarshalJSON()
	if err != nil {
		panic(err)
	}
	return data
}
