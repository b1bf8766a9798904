package generation

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed session
type ErrorKind string

const (
	// KindHTTP: the endpoint answered with a non-2xx status
	KindHTTP ErrorKind = "http"
	// KindTransport: the request or body read failed
	KindTransport ErrorKind = "transport"
	// KindStream: the server sent an error frame
	KindStream ErrorKind = "stream"
	// KindIncomplete: the stream ended without a usable result
	KindIncomplete ErrorKind = "incomplete"
	// KindAsset: derived asset generation failed; never fatal
	KindAsset ErrorKind = "asset"
)

// ErrorInfo describes why a session failed
type ErrorInfo struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Status  int       `json:"status,omitempty"`
}

func (e *ErrorInfo) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s error (%d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

var (
	// ErrNoResult is returned by Generator operations that need a completed session
	ErrNoResult = errors.New("no completed generation")
	// ErrNotStarted is returned by Wait before the first Start
	ErrNotStarted = errors.New("session not started")
)
