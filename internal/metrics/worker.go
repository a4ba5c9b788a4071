package metrics

import "time"

// Job outcomes recorded in JobsTotal.
const (
	JobOutcomeCompleted = "completed"
	JobOutcomeRetrying  = "retrying"
	JobOutcomeFailed    = "failed"
)

// TrackJob marks a job as running and returns a func that records its
// outcome and duration.
func TrackJob(jobType string) func(outcome string) {
	start := time.Now()
	JobsInFlight.Inc()
	return func(outcome string) {
		JobsInFlight.Dec()
		JobsTotal.WithLabelValues(jobType, outcome).Inc()
		JobDuration.WithLabelValues(jobType).Observe(time.Since(start).Seconds())
	}
}
