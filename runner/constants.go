package runner

import "time"

const (
	// DefaultConcurrency is the number of roots executed at once when none is configured
	DefaultConcurrency = 1

	// MaxReasonableConcurrency is the worker count above which a warning is logged
	MaxReasonableConcurrency = 32

	// DefaultActionTimeout bounds a single action when the plan sets none
	DefaultActionTimeout = 10 * time.Minute
)
