package worker

import "time"

// Kind names what a worker does with a task after its handler returns.
type Kind string

// Outcome kinds.
const (
	KindDone       Kind = "done"
	KindRetry      Kind = "retry"
	KindReschedule Kind = "reschedule"
	KindFail       Kind = "fail"
)

// Outcome is a handler's verdict on one task.
type Outcome struct {
	Kind  Kind
	Delay time.Duration
	Err   error
}

// Done acknowledges the task.
func Done() Outcome { return Outcome{Kind: KindDone} }

// Retry re-enqueues the task after d with its attempt counter incremented.
func Retry(d time.Duration, err error) Outcome {
	return Outcome{Kind: KindRetry, Delay: d, Err: err}
}

// Reschedule re-enqueues the task after d without consuming an attempt.
func Reschedule(d time.Duration) Outcome {
	return Outcome{Kind: KindReschedule, Delay: d}
}

// Fail acknowledges the task and records err.
func Fail(err error) Outcome { return Outcome{Kind: KindFail, Err: err} }
