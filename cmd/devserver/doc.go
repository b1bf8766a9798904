// Package main runs the Shepherd dev server, a local stand-in for the church
// admin backend.
//
// It serves the tenant push channel and the streaming generation endpoint so
// the realtime and generation clients can be exercised end to end:
//
//	GET  /ws/{tenantId}?token=...            push channel
//	POST /api/stream/{contentKind}           scripted event:/data: stream
//	POST /api/tenants/{tenantId}/events      publish an envelope
//	POST /api/tenants/{tenantId}/disconnect  close a tenant's sockets
//	GET  /health, /metrics
//
// Configuration:
//   - Environment variables (PORT, HOST, DEV_TOKENS, DEV_CHUNK_DELAY, ...)
//   - -config file (YAML or TOML), environment still wins
//   - CLI flags override both
//
// Usage:
//
//	DEV_TOKENS="dev-token:*" ./devserver -port 8000 -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
