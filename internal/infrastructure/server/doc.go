// Package server assembles the dev server: a gin router carrying recovery,
// tracing, metrics, CORS, per-tenant rate limiting and bearer auth in front
// of the push hub and the scripted generation stream.
package server
