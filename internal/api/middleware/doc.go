// Package middleware provides the gin middleware stack of the dev server.
//
//   - CORS: cross-origin access for browser clients
//   - RateLimit / KeyedRateLimit: token buckets per IP or per tenant, idle buckets evicted
//   - GlobalRateLimit: one bucket for the whole server
//   - RequireBearer: static token to tenant authorization
//
// Example Usage:
//
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	api.Use(middleware.KeyedRateLimit(cfg, middleware.TenantKey("tenantId")))
package middleware
