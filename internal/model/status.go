// internal/model/status.go
package model

import "time"

// CommitStatus is the lifecycle state of a scheduled commit.
type CommitStatus string

const (
	StatusPending    CommitStatus = "pending"
	StatusProcessing CommitStatus = "processing"
	StatusCompleted  CommitStatus = "completed"
	StatusFailed     CommitStatus = "failed"
)

// Valid reports whether s is a known status.
func (s CommitStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed from s.
func (s CommitStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo reports whether moving from s to next keeps the lifecycle monotonic:
// pending -> processing -> completed | failed.
func (s CommitStatus) CanTransitionTo(next CommitStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	}
	return false
}

// CommitResult is the payload stored on a scheduled commit once it reaches a terminal state.
type CommitResult struct {
	CommitSHA   string     `json:"commitSha,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Error       string     `json:"error,omitempty"`
	FailedAt    *time.Time `json:"failedAt,omitempty"`
}

// SuccessResult records a commit that landed.
func SuccessResult(sha string, at time.Time) CommitResult {
	return CommitResult{CommitSHA: sha, CompletedAt: &at}
}

// FailureResult records the error that ended a scheduled commit.
func FailureResult(err error, at time.Time) CommitResult {
	return CommitResult{Error: err.Error(), FailedAt: &at}
}
