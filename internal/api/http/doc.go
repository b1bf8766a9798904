// Package http provides the dev server's REST handlers.
//
// Endpoints:
//   - Health: / and /health
//   - Generation: POST /api/stream/:contentKind (scripted event:/data: stream)
//   - Push: POST /api/tenants/:tenantId/events, POST /api/tenants/:tenantId/disconnect,
//     GET /api/tenants/:tenantId/connections
//
// The stream endpoint answers every request with deterministic content for the
// content kind. ?fail=error|truncate|asset exercises the client failure paths.
//
// Example Usage:
//
//	handlers := http.NewHandlers(hub, http.Script{}, 40*time.Millisecond, logger)
//	api.POST("/stream/:contentKind", handlers.Stream)
package http
