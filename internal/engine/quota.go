package engine

import (
	"errors"
	"fmt"
)

// DefaultMaxTasks is the default maximum number of task executions per run.
// The exit handler is not counted.
const DefaultMaxTasks = 1000

// QuotaEnforcer counts task executions in a run and enforces a limit.
// Skipped tasks do not count.
type QuotaEnforcer struct {
	maxTasks int
	current  int
}

// NewQuotaEnforcer creates a quota enforcer with the given limit.
func NewQuotaEnforcer(maxTasks int) *QuotaEnforcer {
	return &QuotaEnforcer{maxTasks: maxTasks}
}

// Check counts one more task execution and validates it against the limit.
// Returns TasksExceededError once the limit is passed.
func (q *QuotaEnforcer) Check(runID string) error {
	q.current++
	if q.current > q.maxTasks {
		return &TasksExceededError{
			RunID: runID,
			Tasks: q.current,
			Limit: q.maxTasks,
		}
	}
	return nil
}

// Current returns the number of executions counted so far.
func (q *QuotaEnforcer) Current() int {
	return q.current
}

// MaxTasks returns the limit.
func (q *QuotaEnforcer) MaxTasks() int {
	return q.maxTasks
}

// TasksExceededError is returned when a run exceeds its task quota.
// The task that hit the limit and everything after it are skipped.
type TasksExceededError struct {
	RunID string
	Tasks int
	Limit int
}

// Error implements the error interface.
func (e *TasksExceededError) Error() string {
	return fmt.Sprintf("run %s exceeded max tasks quota: %d tasks > %d limit",
		e.RunID, e.Tasks, e.Limit)
}

// IsTasksExceededError reports whether err is a TasksExceededError.
// Uses errors.As to handle wrapped errors.
func IsTasksExceededError(err error) bool {
	var te *TasksExceededError
	return errors.As(err, &te)
}
