// internal/model/models.go
package model

import (
	"fmt"
	"time"
)

// RemoteRepository is the subset of GitHub repository metadata the service needs.
type RemoteRepository struct {
	GithubRepoID  int64  `json:"githubRepoId"`
	Owner         string `json:"owner"`
	Name          string `json:"name"`
	FullName      string `json:"fullName"`
	URL           string `json:"url"`
	Private       bool   `json:"private"`
	DefaultBranch string `json:"defaultBranch"`
}

// GitHubUser is the authenticated GitHub account behind an OAuth token.
type GitHubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatarUrl"`
}

// BranchHead points at the tip of a branch and the tree it carries.
type BranchHead struct {
	Branch    string
	CommitSHA string
	TreeSHA   string
}

// TreeFile maps a repository path to a blob.
type TreeFile struct {
	Path    string
	BlobSHA string
}

// Signature identifies the author and committer of a commit.
type Signature struct {
	Name  string
	Email string
}

// NewSignature builds a commit identity for a GitHub account. Accounts without a public
// email fall back to the noreply address GitHub attributes contributions to.
func NewSignature(githubID int64, login, name, email string) Signature {
	if name == "" {
		name = login
	}
	if email == "" {
		email = fmt.Sprintf("%d+%s@users.noreply.github.com", githubID, login)
	}
	return Signature{Name: name, Email: email}
}

// NewCommit describes a commit object to be created through the git data API.
type NewCommit struct {
	Message   string
	TreeSHA   string
	ParentSHA string
	Author    Signature
	When      time.Time
}

// FileCommit describes a single-file change committed through the contents API.
type FileCommit struct {
	Path    string
	Content string
	Message string
	Author  Signature
	When    time.Time
}

type Commit struct {
	SHA         string
	AuthorName  string
	AuthorEmail string
	Message     string
	URL         string
	CommitDate  time.Time
}
