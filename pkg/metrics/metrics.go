// Package metrics exposes orchestration counters for a scrape endpoint.
package metrics

import (
	"time"
)

// Collector receives orchestration events. All methods must be safe for
// concurrent use.
type Collector interface {
	// PhaseEntered records a state machine transition.
	PhaseEntered(from, to string)

	// ServiceLaunched records a launch attempt for a service.
	ServiceLaunched(service, runtime string, err error)

	// ReadinessAttempt records a single failed probe.
	ReadinessAttempt(service string)

	// ReadinessOutcome records how a wait ended.
	ReadinessOutcome(service string, ready bool, elapsed time.Duration)

	// ServiceTerminated records how a service was stopped ("term", "kill", "stop").
	ServiceTerminated(service, how string, duration time.Duration)

	// Supervised records how many services are currently registered.
	Supervised(n int)
}

type noop struct{}

func (noop) PhaseEntered(from, to string)                                  {}
func (noop) ServiceLaunched(service, runtime string, err error)            {}
func (noop) ReadinessAttempt(service string)                               {}
func (noop) ReadinessOutcome(service string, ready bool, d time.Duration)  {}
func (noop) ServiceTerminated(service, how string, duration time.Duration) {}
func (noop) Supervised(n int)                                              {}

// Noop discards everything.
var Noop Collector = noop{}

// OrNoop returns c, or Noop when c is nil.
func OrNoop(c Collector) Collector {
	if c == nil {
		return Noop
	}
	return c
}
