package realtime

import "time"

// DefaultBackoff is the reconnect delay table indexed by attempt
var DefaultBackoff = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	4 * time.Second,
	8 * time.Second,
	16 * time.Second,
	30 * time.Second,
}

// DefaultKeepAlive is the ping interval while connected
const DefaultKeepAlive = 30 * time.Second

// Delay returns table[min(attempt, len(table)-1)]
func Delay(table []time.Duration, attempt int) time.Duration {
	if len(table) == 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= len(table) {
		attempt = len(table) - 1
	}
	return table[attempt]
}

// Timer is a cancellable pending callback
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d. Tests swap it for a manual clock.
type Scheduler func(d time.Duration, f func()) Timer

func afterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
