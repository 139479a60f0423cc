// internal/database/models.go
package database

import (
	"time"

	"github.com/google/uuid"

	"github-streak-manager/internal/model"
)

type User struct {
	ID          int64     `json:"id"`
	GithubID    int64     `json:"githubId"`
	Login       string    `json:"login"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	AccessToken string    `json:"-"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type Session struct {
	Token     string    `json:"-"`
	UserID    int64     `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

type Repository struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"userId"`
	FullName  string    `json:"fullName"`
	Url       string    `json:"url"`
	Private   bool      `json:"private"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type ScheduledCommit struct {
	ID            uuid.UUID           `json:"id"`
	RepositoryID  int64               `json:"repositoryId"`
	CommitMessage string              `json:"commitMessage"`
	FilePath      string              `json:"filePath"`
	FileContent   string              `json:"-"`
	ScheduledTime time.Time           `json:"scheduledTime"`
	Status        model.CommitStatus  `json:"status"`
	Attempts      int32               `json:"attempts"`
	Result        *model.CommitResult `json:"result,omitempty"`
	CreatedAt     time.Time           `json:"createdAt"`
	UpdatedAt     time.Time           `json:"updatedAt"`
}
