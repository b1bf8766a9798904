/*
Package resilience provides the circuit breaker that guards the streaming
generation endpoint.

# Overview

Breaker is a typed facade over sony/gobreaker. Only establishing the stream
is guarded (dial, headers, status code); frames that arrive later never
count against the breaker. Caller cancellation is treated as success.

# Usage

	breaker := resilience.New[*http.Response]("generation", resilience.Settings{
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("breaker state change", zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})

	resp, err := breaker.Execute(func() (*http.Response, error) {
		return doRequest(ctx)
	})
	if resilience.IsOpen(err) {
		// fail fast
	}

# States

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                    [failure]
	                                           v
	                                         Open
*/
package resilience
