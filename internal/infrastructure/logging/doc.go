// Package logging provides structured logging using uber/zap.
//
// Two modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// The realtime and generation clients take a plain *zap.Logger; use
// Component to derive one per subsystem:
//
//	logger, err := logging.New(logging.Config{Level: "info", Service: "shepherd"})
//	client := realtime.New(
//	    realtime.WithCredentials(tenantID, token),
//	    realtime.WithLogger(logger.Component("realtime")))
//
// Bearer tokens are never passed to the logger.
package logging
