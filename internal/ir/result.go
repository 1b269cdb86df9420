package ir

import "time"

// FiringResult reports the outcome of one Firing Engine step.
type FiringResult struct {
	TaskID          string
	Success         bool
	Message         string
	NewToken        *Token
	Elapsed         time.Duration
	RoutesTriggered int
}
