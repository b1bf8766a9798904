package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func ok(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "success"})
}

func serve(router *gin.Engine, method, path, remote string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if remote != "" {
		req.RemoteAddr = remote
	}
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCORS(t *testing.T) {
	router := setupTestRouter()
	router.Use(CORS(DefaultCORSConfig()))
	router.GET("/test", ok)

	tests := []struct {
		name       string
		method     string
		origin     string
		wantStatus int
		wantOrigin string
	}{
		{
			name:       "simple GET request with origin",
			method:     "GET",
			origin:     "http://localhost:3000",
			wantStatus: http.StatusOK,
			wantOrigin: "*",
		},
		{
			name:       "preflight OPTIONS request",
			method:     "OPTIONS",
			origin:     "http://localhost:3000",
			wantStatus: http.StatusNoContent,
			wantOrigin: "*",
		},
		{
			name:       "no origin header",
			method:     "GET",
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.origin != "" {
				h.Set("Origin", tt.origin)
			}
			if tt.method == "OPTIONS" {
				h.Set("Access-Control-Request-Method", "GET")
			}
			w := serve(router, tt.method, "/test", "", h)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantOrigin, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestCORSWithExplicitOrigins(t *testing.T) {
	cfg := CORSConfig{
		AllowOrigins:     []string{"https://parish.example"},
		AllowMethods:     []string{"GET"},
		AllowHeaders:     []string{"Content-Type"},
		AllowCredentials: true,
		MaxAge:           time.Hour,
	}
	router := setupTestRouter()
	router.Use(CORS(cfg))
	router.GET("/test", ok)

	w := serve(router, "GET", "/test", "", http.Header{"Origin": {"https://parish.example"}})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://parish.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	w = serve(router, "GET", "/test", "", http.Header{"Origin": {"https://elsewhere.example"}})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRateLimit(t *testing.T) {
	router := setupTestRouter()
	router.Use(RateLimit(RateLimitConfig{RequestsPerSecond: 2, Burst: 2}))
	router.GET("/test", ok)

	for i := 0; i < 2; i++ {
		w := serve(router, "GET", "/test", "192.168.1.1:1234", nil)
		assert.Equal(t, http.StatusOK, w.Code, "request %d should succeed", i+1)
	}

	w := serve(router, "GET", "/test", "192.168.1.1:1234", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestRateLimitDifferentClients(t *testing.T) {
	router := setupTestRouter()
	router.Use(RateLimit(RateLimitConfig{RequestsPerSecond: 1, Burst: 1}))
	router.GET("/test", ok)

	assert.Equal(t, http.StatusOK, serve(router, "GET", "/test", "192.168.1.1:1234", nil).Code)
	assert.Equal(t, http.StatusOK, serve(router, "GET", "/test", "192.168.1.2:1234", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(router, "GET", "/test", "192.168.1.1:1234", nil).Code)
}

func TestTenantRateLimit(t *testing.T) {
	router := setupTestRouter()
	router.Use(KeyedRateLimit(RateLimitConfig{RequestsPerSecond: 1, Burst: 1}, TenantKey("tenantId")))
	router.GET("/t/:tenantId", ok)

	// same address, different tenants
	assert.Equal(t, http.StatusOK, serve(router, "GET", "/t/a", "10.0.0.1:1", nil).Code)
	assert.Equal(t, http.StatusOK, serve(router, "GET", "/t/b", "10.0.0.1:1", nil).Code)
	// same tenant, different address
	assert.Equal(t, http.StatusTooManyRequests, serve(router, "GET", "/t/a", "10.0.0.2:1", nil).Code)
}

func TestGlobalRateLimit(t *testing.T) {
	router := setupTestRouter()
	router.Use(GlobalRateLimit(RateLimitConfig{RequestsPerSecond: 2, Burst: 2}))
	router.GET("/test", ok)

	assert.Equal(t, http.StatusOK, serve(router, "GET", "/test", "192.168.1.1:1", nil).Code)
	assert.Equal(t, http.StatusOK, serve(router, "GET", "/test", "192.168.1.2:1", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(router, "GET", "/test", "192.168.1.3:1", nil).Code)
}

func TestBucketsEvictIdle(t *testing.T) {
	b := newBuckets(RateLimitConfig{RequestsPerSecond: 1, Burst: 1, IdleTTL: time.Minute})
	start := time.Unix(1000, 0)

	b.get("a", start)
	b.get("b", start.Add(30*time.Second))
	require.Equal(t, 2, b.len())

	// a has been idle 90s, b exactly one ttl
	b.get("c", start.Add(90*time.Second))
	assert.Equal(t, 2, b.len(), "a evicted, b and c kept")

	b.get("c", start.Add(100*time.Second))
	assert.Equal(t, 2, b.len(), "no sweep inside the ttl window")
}

func TestDefaultRateLimitConfig(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	assert.Equal(t, 50, cfg.RequestsPerSecond)
	assert.Equal(t, 100, cfg.Burst)
	assert.Equal(t, 10*time.Minute, cfg.IdleTTL)
}

func TestTokensAuthorize(t *testing.T) {
	tokens := ParseTokens(map[string]string{
		"admin":  "",
		"stmark": "st-mark",
		" ":      "ignored",
	})
	require.Len(t, tokens, 2)

	tests := []struct {
		name   string
		tenant string
		token  string
		want   error
	}{
		{"wildcard token any tenant", "st-luke", "admin", nil},
		{"tenant token own tenant", "st-mark", "stmark", nil},
		{"tenant token other tenant", "st-luke", "stmark", ErrForbidden},
		{"tenant token without tenant", "", "stmark", nil},
		{"unknown token", "st-mark", "nope", ErrUnauthorized},
		{"empty token", "st-mark", "", ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tokens.Authorize(tt.tenant, tt.token), tt.want)
		})
	}
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("bearer  abc "))
	assert.Equal(t, "", BearerToken("Basic abc"))
	assert.Equal(t, "", BearerToken(""))
}

func TestRequireBearer(t *testing.T) {
	router := setupTestRouter()
	tokens := Tokens{"good": "st-mark"}
	router.POST("/tenants/:tenantId/events", RequireBearer(tokens, "tenantId"), ok)
	router.POST("/stream", RequireBearer(tokens, "tenantId"), ok)

	tests := []struct {
		name   string
		path   string
		header http.Header
		want   int
	}{
		{"missing header", "/tenants/st-mark/events", nil, http.StatusUnauthorized},
		{"wrong token", "/tenants/st-mark/events", http.Header{"Authorization": {"Bearer bad"}}, http.StatusUnauthorized},
		{"other tenant", "/tenants/st-luke/events", http.Header{"Authorization": {"Bearer good"}}, http.StatusForbidden},
		{"own tenant", "/tenants/st-mark/events", http.Header{"Authorization": {"Bearer good"}}, http.StatusOK},
		{"tenant header", "/stream", http.Header{"Authorization": {"Bearer good"}, "X-Tenant-Id": {"st-luke"}}, http.StatusForbidden},
		{"no tenant at all", "/stream", http.Header{"Authorization": {"Bearer good"}}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(router, "POST", tt.path, "", tt.header)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func BenchmarkRateLimit(b *testing.B) {
	router := setupTestRouter()
	router.Use(RateLimit(DefaultRateLimitConfig()))
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/test", nil)
	req.RemoteAddr = "192.168.1.1:1234"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
	}
}
