// Package realtime implements the tenant push channel client.
//
// A Client keeps at most one WebSocket open to {base}/ws/{tenantId}?token=...
// and recovers from abnormal closures with a capped exponential backoff.
// Observers are mutable slots and can be swapped without touching the
// connection.
//
// Lifecycle:
//   - Connect: replace any transport, dial, send subscribe, start keep-alive,
//     then fire OnConnect before any OnMessage
//   - Close codes 1000, 4001 and 4003 end in Disconnected
//   - Any other closure ends in Reconnecting with delay backoff[min(attempt, 5)]
//   - Disconnect / Close release timers and close the socket with 1000
//
// Message Types (Client → Server):
//   - ping: keep-alive, sent every 30s by default
//   - subscribe: {"events": [...]} once per open connection
//
// Message Types (Server → Client):
//   - pong: keep-alive ack, never delivered to observers
//   - anything else: forwarded to OnMessage and cached as LastMessage
//
// Example Usage:
//
//	client := realtime.New(
//		realtime.WithBaseURL("wss://api.example.org"),
//		realtime.WithCredentials(tenantID, token),
//		realtime.WithSubscriptions("member.updated", "donation.received"),
//		realtime.WithOnMessage(func(env realtime.Envelope) { ... }),
//	)
//	defer client.Close()
package realtime
