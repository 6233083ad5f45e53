package diagnosis

import (
	"time"

	"github.com/sony/gobreaker"
)

// newDiagnosisBreaker builds a circuit breaker shared by both LLM
// backends: it trips after a handful of consecutive failures so a
// backend outage fails fast instead of stalling the poll cycle on
// repeated timeouts, and resets itself after a cooldown.
func newDiagnosisBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
}
