// internal/database/querier.go
package database

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github-streak-manager/internal/model"
)

type Querier interface {
	UpsertUser(ctx context.Context, arg UpsertUserParams) (User, error)
	CreateSession(ctx context.Context, arg CreateSessionParams) (Session, error)
	GetUserBySessionToken(ctx context.Context, token string) (User, error)
	DeleteSession(ctx context.Context, token string) error
	UpsertRepository(ctx context.Context, arg UpsertRepositoryParams) (Repository, error)
	CreateScheduledCommit(ctx context.Context, arg CreateScheduledCommitParams) (ScheduledCommit, error)
	ListScheduledCommitsByUser(ctx context.Context, arg ListScheduledCommitsByUserParams) ([]ScheduledCommitWithRepo, error)
	ListDueScheduledCommits(ctx context.Context, arg ListDueScheduledCommitsParams) ([]ScheduledCommit, error)
	GetScheduledCommitTarget(ctx context.Context, id uuid.UUID) (ScheduledCommitTarget, error)
	TransitionScheduledCommit(ctx context.Context, arg TransitionScheduledCommitParams) (bool, error)
	IncrementScheduledCommitAttempts(ctx context.Context, id uuid.UUID) (int32, error)
}

var _ Querier = (*Queries)(nil)

type UpsertUserParams struct {
	GithubID    int64
	Login       string
	Name        string
	Email       string
	AccessToken string
}

type CreateSessionParams struct {
	Token     string
	UserID    int64
	ExpiresAt time.Time
}

type UpsertRepositoryParams struct {
	UserID   int64
	FullName string
	Url      string
	Private  bool
}

type CreateScheduledCommitParams struct {
	RepositoryID  int64
	CommitMessage string
	FilePath      string
	FileContent   string
	ScheduledTime time.Time
}

type ListScheduledCommitsByUserParams struct {
	UserID int64
	// Status filters by status when non-empty.
	Status model.CommitStatus
	Limit  int32
}

type ScheduledCommitWithRepo struct {
	ScheduledCommit
	Repository string `json:"repository"`
}

type ListDueScheduledCommitsParams struct {
	Now   time.Time
	Limit int32
}

// ScheduledCommitTarget carries what the sweep needs to push a scheduled commit.
type ScheduledCommitTarget struct {
	ScheduledCommitID uuid.UUID
	RepositoryID      int64
	FullName          string
	UserID            int64
	GithubID          int64
	Login             string
	Name              string
	Email             string
	AccessToken       string
}

type TransitionScheduledCommitParams struct {
	ID     uuid.UUID
	From   model.CommitStatus
	To     model.CommitStatus
	Result *model.CommitResult
}
