// Package ws serves the tenant push channel of the dev server.
//
// A client connects to /ws/{tenantId}?token=... . Unknown tokens are closed
// with 4001 and tokens bound to another tenant with 4003, after the upgrade
// so the client sees a close code rather than a failed handshake.
//
// Client → Server:
//   - ping: answered with pong
//   - subscribe: {"type":"subscribe","events":[...]} replaces the event filter,
//     acknowledged with {"type":"subscribed","events":[...]}
//
// Server → Client:
//   - any envelope published to the tenant whose type passes the filter.
//     A socket that never subscribed, or subscribed to nothing or "*",
//     receives every event.
//
// Example Usage:
//
//	hub := ws.NewHub(tokens, logger, metrics, 90*time.Second)
//	router.GET("/ws/:tenantId", hub.HandleConnection)
//	hub.Publish("st-mark", realtime.NewEnvelope("member.updated", fields))
package ws
