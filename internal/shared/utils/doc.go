// Package utils validates dev server input: tenant IDs, content kinds, event
// types, topics and the size and nesting of published payloads.
package utils
