// Package config provides 12-factor configuration for the Shepherd clients
// and the development server.
//
// Configuration is loaded from environment variables with sensible defaults.
// A YAML or TOML file can be layered underneath with LoadFile; variables that
// are set in the environment still win.
//
// Configuration Sections:
//   - Realtime: push channel base URL, tenant, token, subscriptions, keep-alive
//   - Generation: streaming endpoint, content kind, model, asset options
//   - HTTP: connect timeout, retry, client-side rate limit, circuit breaker
//   - Logging: log level and output format
//   - Tracing: OpenTelemetry exporter
//   - DevServer: mock server bind address and rate limit
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	client := realtime.New(cfg.Realtime.BaseURL, cfg.Realtime.TenantID, cfg.Realtime.Token)
//
// Environment Variables:
//   - WS_BASE_URL, TENANT_ID, AUTH_TOKEN, WS_SUBSCRIBE, WS_AUTO_CONNECT, WS_KEEPALIVE
//   - API_BASE_URL, GEN_CONTENT_KIND, GEN_MODEL, GEN_ASSET, GEN_ASSET_STYLE
//   - HTTP_CONNECT_TIMEOUT, HTTP_RETRY_MAX, HTTP_RPS
//   - LOG_LEVEL, LOG_DEV, TRACING_ENABLED, TRACING_EXPORTER
//   - PORT, HOST, RATE_LIMIT_RPS, RATE_LIMIT_BURST
package config
