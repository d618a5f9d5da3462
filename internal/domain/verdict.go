package domain

import (
	"fmt"
	"time"
)

// HealthStatus is the classified outcome of a probe.
type HealthStatus string

const (
	StatusHealthy  HealthStatus = "healthy"
	StatusDegraded HealthStatus = "degraded"
	StatusFailed   HealthStatus = "failed"
)

// Classify maps an item count of a successfully parsed feed to a status.
// Zero items is a failure: an empty feed gives the pipeline nothing to work with.
func Classify(itemCount, reliable int) HealthStatus {
	if reliable < 1 {
		reliable = 1
	}
	switch {
	case itemCount <= 0:
		return StatusFailed
	case itemCount < reliable:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}

// HealthVerdict is produced fresh by every probe and never mutated.
type HealthVerdict struct {
	SourceID     string
	Category     Category
	URL          string
	Status       HealthStatus
	ItemCount    int
	HTTPStatus   int
	ErrorMessage string
	CheckedAt    time.Time
	Latency      time.Duration
}

// Healthy reports whether the verdict is good enough to count toward coverage.
func (v HealthVerdict) Healthy() bool {
	return v.Status == StatusHealthy
}

// Reason renders a short human readable cause, used for deactivation notes.
func (v HealthVerdict) Reason() string {
	switch {
	case v.Status != StatusFailed:
		return fmt.Sprintf("health check %s: %d items", v.Status, v.ItemCount)
	case v.HTTPStatus != 0:
		return fmt.Sprintf("health check failed: HTTP %d", v.HTTPStatus)
	case v.ErrorMessage != "":
		return "health check failed: " + v.ErrorMessage
	default:
		return "health check failed: no items"
	}
}
