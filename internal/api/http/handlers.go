package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/Shepherd/backend/internal/generation"
	"github.com/GriffinCanCode/Shepherd/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/Shepherd/backend/internal/realtime"
	"github.com/GriffinCanCode/Shepherd/backend/internal/shared/utils"
	"github.com/GriffinCanCode/Shepherd/backend/internal/ws"
)

// Version of the dev server API
const Version = "0.1.0"

// Handlers contains the dev server's HTTP handlers
type Handlers struct {
	hub        *ws.Hub
	script     Script
	chunkDelay time.Duration
	logger     *zap.Logger
	started    time.Time
}

// NewHandlers creates a new handler set. chunkDelay paces stream frames.
func NewHandlers(hub *ws.Hub, script Script, chunkDelay time.Duration, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		hub:        hub,
		script:     script,
		chunkDelay: chunkDelay,
		logger:     logger.Named("api"),
		started:    time.Now(),
	}
}

// Root handles the service banner
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "Shepherd dev server",
		"version": Version,
	})
}

// Health reports liveness and open sockets
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"connections": h.hub.Count(""),
		"uptime":      time.Since(h.started).Round(time.Second).String(),
	})
}

// Connections reports a tenant's open sockets
func (h *Handlers) Connections(c *gin.Context) {
	tenant := c.Param("tenantId")
	c.JSON(http.StatusOK, gin.H{
		"tenant_id":   tenant,
		"connections": h.hub.Count(tenant),
	})
}

// Publish pushes the posted envelope to the tenant's sockets
func (h *Handlers) Publish(c *gin.Context) {
	tenant := c.Param("tenantId")

	if err := utils.ValidateID(tenant, "tenant_id"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	data, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}
	if err := utils.ValidateSize(data, utils.MaxEnvelopeSize); err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
		return
	}
	var env realtime.Envelope
	if err := env.UnmarshalJSON(data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be a JSON object with a type"})
		return
	}
	if err := utils.ValidateEventType(env.Type); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	if err := utils.ValidateDepth(env.Fields, utils.MaxEnvelopeDepth); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	delivered, err := h.hub.Publish(tenant, env)
	if errors.Is(err, ws.ErrReservedType) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "type " + strconv.Quote(env.Type) + " cannot be published"})
		return
	}
	if err != nil {
		h.logger.Error("publish failed", logging.Tenant(tenant), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "publish failed"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"type": env.Type, "delivered": delivered})
}

// Disconnect drops a tenant's sockets with ?code= (default 1011) so clients
// can be exercised against server-side closes
func (h *Handlers) Disconnect(c *gin.Context) {
	tenant := c.Param("tenantId")
	code := 1011
	if raw := c.Query("code"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1000 || n > 4999 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "code must be between 1000 and 4999"})
			return
		}
		code = n
	}

	closed := h.hub.Disconnect(tenant, code, c.Query("reason"))
	h.logger.Info("tenant disconnected", logging.Tenant(tenant), zap.Int("code", code), zap.Int("closed", closed))
	c.JSON(http.StatusOK, gin.H{"closed": closed, "code": code})
}

// Stream answers POST /stream/:contentKind with a scripted event:/data: body.
// ?fail=error|truncate|asset selects a failure path.
func (h *Handlers) Stream(c *gin.Context) {
	kind := c.Param("contentKind")

	if err := utils.ValidateID(kind, "content kind"); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": err.Error()})
		return
	}

	var req generation.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := utils.ValidateTopic(req.Topic); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}

	fail := c.Query("fail")
	switch fail {
	case FailNone, FailError, FailTruncate, FailAsset:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown fail mode " + strconv.Quote(fail)})
		return
	}

	frames, err := h.script.Plan(kind, req, fail)
	if err != nil {
		h.logger.Error("script failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build stream"})
		return
	}

	h.logger.Info("stream started",
		zap.String("content_kind", kind),
		zap.Int("frames", len(frames)),
		zap.Bool("asset", req.GenerateAsset),
		zap.String("fail", fail),
	)

	c.Header("X-Accel-Buffering", "no")
	ctx := c.Request.Context()
	for i, f := range frames {
		if i > 0 && h.chunkDelay > 0 {
			select {
			case <-ctx.Done():
				h.logger.Debug("stream abandoned by client", zap.Int("sent", i))
				return
			case <-time.After(h.chunkDelay):
			}
		}
		c.SSEvent(f.Event, f.Data)
		c.Writer.Flush()
	}
}
