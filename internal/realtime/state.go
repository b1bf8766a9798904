package realtime

import "github.com/gorilla/websocket"

// State is the connection state of a Client
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Close codes with a defined client meaning
const (
	CloseNormal       = websocket.CloseNormalClosure
	CloseAbnormal     = websocket.CloseAbnormalClosure
	CloseUnauthorized = 4001
	CloseForbidden    = 4003
)

// IsFatalClose reports whether a closure must not be followed by a reconnect.
func IsFatalClose(code int) bool {
	switch code {
	case CloseNormal, CloseUnauthorized, CloseForbidden:
		return true
	}
	return false
}

// ShouldReconnect is the inverse of IsFatalClose
func ShouldReconnect(code int) bool {
	return !IsFatalClose(code)
}
