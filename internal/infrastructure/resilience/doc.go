/*
Package resilience provides a circuit breaker for calls to the host shell.

# Overview

Restoring a large session opens many windows in a burst. When the shell
stops answering, the breaker fails those calls fast instead of stacking up
retries, and the restore carries on with the windows it could open.

# Usage

	breaker := resilience.New("shell", resilience.Settings{
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to resilience.State) {
			metrics.SetShellBreakerState(int(to))
		},
	})

	resp, err := resilience.Call(breaker, func() (*resty.Response, error) {
		return req.Post(url)
	})

# States

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                    [failure]
	                                           |
	                                           v
	                                         Open

Context cancellation is not counted as a failure unless Settings.IsFailure
says otherwise.
*/
package resilience
