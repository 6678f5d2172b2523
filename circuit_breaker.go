package memd

import (
	"context"
	"errors"

	"github.com/sony/gobreaker/v2"
)

// newCircuitBreaker creates the breaker guarding one node. Only
// client-generated failures count against the node; a server status such as
// DocumentNotFound is a healthy answer.
func newCircuitBreaker(addr string, config CircuitBreakerConfig) *gobreaker.CircuitBreaker[Result] {
	if !config.Enabled {
		return nil
	}

	settings := gobreaker.Settings{
		Name:        addr,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			kind, ok := err.(ErrorKind)
			return ok && !kind.IsClientGenerated()
		},
	}
	return gobreaker.NewCircuitBreaker[Result](settings)
}
