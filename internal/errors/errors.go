// internal/errors/errors.go
package errors

import "fmt"

// ErrInvalidRepoFormat is returned when a repository string is not in 'owner/name' format.
type ErrInvalidRepoFormat struct {
	Repo string
}

func (e *ErrInvalidRepoFormat) Error() string {
	return fmt.Sprintf("invalid repository format: %q, expected 'owner/name' or 'name'", e.Repo)
}

// ValidationError is returned when a request field is missing or malformed.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ErrTooManyCommits is returned when a date range expands past the per-request cap.
type ErrTooManyCommits struct {
	Count int
	Max   int
}

func (e *ErrTooManyCommits) Error() string {
	return fmt.Sprintf("date range produces %d commits, the maximum is %d", e.Count, e.Max)
}

// ErrInvalidTransition is returned when a scheduled commit status change would move backwards.
type ErrInvalidTransition struct {
	From string
	To   string
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid status transition from %q to %q", e.From, e.To)
}

// ErrMissingCredential is returned when a user has no stored GitHub access token.
type ErrMissingCredential struct {
	Login string
}

func (e *ErrMissingCredential) Error() string {
	return fmt.Sprintf("no GitHub credential stored for %q, sign in again", e.Login)
}

// ErrUpstream wraps a GitHub failure that prevents a request from doing any work.
type ErrUpstream struct {
	Op  string
	Err error
}

func (e *ErrUpstream) Error() string {
	return fmt.Sprintf("github %s failed: %v", e.Op, e.Err)
}

func (e *ErrUpstream) Unwrap() error {
	return e.Err
}
