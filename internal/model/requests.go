// internal/model/requests.go
package model

import "time"

// Frequency selects which calendar dates of a range receive a commit.
type Frequency string

const (
	FrequencyDaily    Frequency = "daily"
	FrequencyWeekdays Frequency = "weekdays"
	FrequencyWeekends Frequency = "weekends"
	FrequencyWeekly   Frequency = "weekly"
)

// OperationType decides what happens to dates that are already in the past.
type OperationType string

const (
	// OperationFix commits past dates immediately as backdated commits.
	OperationFix OperationType = "fix"
	// OperationSchedule only persists future dates.
	OperationSchedule OperationType = "schedule"
)

// BulkScheduleRequest is the body of POST /v1/commits/bulk.
type BulkScheduleRequest struct {
	RepoName              string            `json:"repoName"`
	FilePaths             []string          `json:"filePaths"`
	CommitMessageTemplate string            `json:"commitMessageTemplate"`
	CommitMessages        []string          `json:"commitMessages,omitempty"`
	FileContents          map[string]string `json:"fileContents"`
	StartDate             string            `json:"startDate"`
	EndDate               string            `json:"endDate"`
	TimeOfDay             string            `json:"timeOfDay"`
	Times                 []string          `json:"times,omitempty"`
	Frequency             Frequency         `json:"frequency"`
	OperationType         OperationType     `json:"operationType"`
}

// Failure stages reported in a bulk response.
const (
	StageBlob     = "blob"
	StageTree     = "tree"
	StageCommit   = "commit"
	StageRef      = "ref"
	StageSchedule = "schedule"
)

type ScheduledCommitSummary struct {
	ID            string    `json:"id"`
	Date          string    `json:"date"`
	ScheduledTime time.Time `json:"scheduledTime"`
	FilePath      string    `json:"filePath"`
	Message       string    `json:"message"`
}

type ExecutedCommitSummary struct {
	Date      string    `json:"date"`
	CommitSHA string    `json:"commitSha"`
	Message   string    `json:"message"`
	When      time.Time `json:"when"`
	Files     []string  `json:"files"`
}

type ItemFailure struct {
	Date     string `json:"date"`
	FilePath string `json:"filePath,omitempty"`
	Stage    string `json:"stage"`
	Error    string `json:"error"`
}

// BulkScheduleResponse enumerates the outcome of every date and file of a bulk request.
type BulkScheduleResponse struct {
	Repository       string                   `json:"repository"`
	ScheduledCommits []ScheduledCommitSummary `json:"scheduledCommits"`
	ExecutedCommits  []ExecutedCommitSummary  `json:"executedCommits"`
	SkippedDates     []string                 `json:"skippedDates"`
	Failures         []ItemFailure            `json:"failures"`
	TotalScheduled   int                      `json:"totalScheduled"`
	TotalExecuted    int                      `json:"totalExecuted"`
}

// SweepItemResult is the outcome of one scheduled commit in a sweep.
type SweepItemResult struct {
	ID         string       `json:"id"`
	Repository string       `json:"repository"`
	Status     CommitStatus `json:"status"`
	CommitSHA  string       `json:"commitSha,omitempty"`
	Error      string       `json:"error,omitempty"`
	Attempts   int          `json:"attempts"`
}

type SweepResult struct {
	Processed int               `json:"processed"`
	Results   []SweepItemResult `json:"results"`
}

// DayCount is the number of commits on one calendar day.
type DayCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// ActivitySummary is a per-day activity calendar of one user, either across GitHub or
// within one repository.
type ActivitySummary struct {
	Login         string     `json:"login,omitempty"`
	Repository    string     `json:"repository,omitempty"`
	From          string     `json:"from"`
	To            string     `json:"to"`
	Days          []DayCount `json:"days"`
	TotalCommits  int        `json:"totalCommits"`
	CurrentStreak int        `json:"currentStreak"`
	LongestStreak int        `json:"longestStreak"`
	Gaps          []string   `json:"gaps"`
}
