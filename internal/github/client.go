// internal/github/client.go
package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v62/github"
	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"

	"github-streak-manager/internal/model"
)

const defaultRetryInterval = 500 * time.Millisecond

// Factory builds per-user clients. Every user acts with their own OAuth token.
type Factory struct {
	baseURL       *url.URL
	retryInterval time.Duration
	logger        *slog.Logger
}

// NewFactory creates a Factory. An empty apiURL targets api.github.com.
func NewFactory(apiURL string, logger *slog.Logger) (*Factory, error) {
	f := &Factory{retryInterval: defaultRetryInterval, logger: logger}
	if apiURL != "" {
		u, err := url.Parse(strings.TrimSuffix(apiURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub API URL %q: %w", apiURL, err)
		}
		f.baseURL = u
	}
	return f, nil
}

// ForToken returns a client authenticated with token.
func (f *Factory) ForToken(token string) *Client {
	return NewClient(token, f.baseURL, f.retryInterval, f.logger)
}

// Client is a wrapper around the go-github REST client and the githubv4 GraphQL client.
// Both share one authenticated transport.
type Client struct {
	gh     *github.Client
	v4     *githubv4.Client
	logger *slog.Logger
}

// NewClient creates and configures a new Client instance.
// The provided token is used to create an authenticated http.Client.
func NewClient(token string, baseURL *url.URL, retryInterval time.Duration, logger *slog.Logger) *Client {
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := &http.Client{
		Transport: &oauth2.Transport{
			Source: ts,
			Base:   newRetryTransport(http.DefaultTransport, retryInterval),
		},
	}

	gh := github.NewClient(tc)
	v4 := githubv4.NewClient(tc)
	if baseURL != nil {
		gh.BaseURL = baseURL
		v4 = githubv4.NewEnterpriseClient(graphQLURL(baseURL), tc)
	}
	return &Client{
		gh:     gh,
		v4:     v4,
		logger: logger,
	}
}

// graphQLURL maps a REST base URL to its GraphQL endpoint. Enterprise servers serve REST
// under /api/v3/ and GraphQL at /api/graphql.
func graphQLURL(base *url.URL) string {
	if strings.HasSuffix(base.Path, "/api/v3/") {
		u := *base
		u.Path = strings.TrimSuffix(base.Path, "v3/") + "graphql"
		return u.String()
	}
	return base.JoinPath("graphql").String()
}

// GetAuthenticatedUser returns the account that owns the client's token.
func (c *Client) GetAuthenticatedUser(ctx context.Context) (*model.GitHubUser, error) {
	u, _, err := c.gh.Users.Get(ctx, "")
	if err != nil {
		return nil, err
	}
	return &model.GitHubUser{
		ID:        u.GetID(),
		Login:     u.GetLogin(),
		Name:      u.GetName(),
		Email:     u.GetEmail(),
		AvatarURL: u.GetAvatarURL(),
	}, nil
}

// GetRepository fetches repository details and translates them to our internal model.
func (c *Client) GetRepository(ctx context.Context, owner, name string) (*model.RemoteRepository, error) {
	repo, _, err := c.gh.Repositories.Get(ctx, owner, name)
	if err != nil {
		return nil, err
	}
	return toInternalRepository(repo), nil
}

// GetBranchHead resolves the commit a branch points at and that commit's tree.
func (c *Client) GetBranchHead(ctx context.Context, owner, name, branch string) (model.BranchHead, error) {
	ref, _, err := c.gh.Git.GetRef(ctx, owner, name, "heads/"+branch)
	if err != nil {
		return model.BranchHead{}, fmt.Errorf("failed to read ref heads/%s: %w", branch, err)
	}
	sha := ref.GetObject().GetSHA()

	commit, _, err := c.gh.Git.GetCommit(ctx, owner, name, sha)
	if err != nil {
		return model.BranchHead{}, fmt.Errorf("failed to read commit %s: %w", sha, err)
	}
	return model.BranchHead{
		Branch:    branch,
		CommitSHA: sha,
		TreeSHA:   commit.GetTree().GetSHA(),
	}, nil
}

// CreateBlob stores content as a UTF-8 blob and returns its SHA.
func (c *Client) CreateBlob(ctx context.Context, owner, name, content string) (string, error) {
	blob, _, err := c.gh.Git.CreateBlob(ctx, owner, name, &github.Blob{
		Content:  github.String(content),
		Encoding: github.String("utf-8"),
	})
	if err != nil {
		return "", err
	}
	return blob.GetSHA(), nil
}

// CreateTree layers files over baseTree and returns the new tree SHA.
func (c *Client) CreateTree(ctx context.Context, owner, name, baseTree string, files []model.TreeFile) (string, error) {
	entries := make([]*github.TreeEntry, len(files))
	for i, f := range files {
		entries[i] = &github.TreeEntry{
			Path: github.String(f.Path),
			Mode: github.String("100644"),
			Type: github.String("blob"),
			SHA:  github.String(f.BlobSHA),
		}
	}
	tree, _, err := c.gh.Git.CreateTree(ctx, owner, name, baseTree, entries)
	if err != nil {
		return "", err
	}
	return tree.GetSHA(), nil
}

// CreateCommit creates a commit object whose author and committer dates are nc.When.
func (c *Client) CreateCommit(ctx context.Context, owner, name string, nc model.NewCommit) (string, error) {
	sig := toCommitAuthor(nc.Author, nc.When)
	commit := &github.Commit{
		Message:   github.String(nc.Message),
		Tree:      &github.Tree{SHA: github.String(nc.TreeSHA)},
		Author:    sig,
		Committer: sig,
	}
	if nc.ParentSHA != "" {
		commit.Parents = []*github.Commit{{SHA: github.String(nc.ParentSHA)}}
	}

	created, _, err := c.gh.Git.CreateCommit(ctx, owner, name, commit, nil)
	if err != nil {
		return "", err
	}
	return created.GetSHA(), nil
}

// UpdateBranch moves refs/heads/branch to sha.
func (c *Client) UpdateBranch(ctx context.Context, owner, name, branch, sha string, force bool) error {
	_, _, err := c.gh.Git.UpdateRef(ctx, owner, name, &github.Reference{
		Ref:    github.String("refs/heads/" + branch),
		Object: &github.GitObject{SHA: github.String(sha)},
	}, force)
	return err
}

// CommitFile writes a single file on the default branch through the contents API,
// creating it when absent and updating it otherwise. It returns the commit SHA.
func (c *Client) CommitFile(ctx context.Context, owner, name string, fc model.FileCommit) (string, error) {
	sig := toCommitAuthor(fc.Author, fc.When)
	opts := &github.RepositoryContentFileOptions{
		Message:   github.String(fc.Message),
		Content:   []byte(fc.Content),
		Author:    sig,
		Committer: sig,
	}

	existing, _, _, err := c.gh.Repositories.GetContents(ctx, owner, name, fc.Path, nil)
	switch {
	case IsNotFound(err):
		c.logger.Debug("File does not exist yet, creating it", "owner", owner, "repo", name, "path", fc.Path)
	case err != nil:
		return "", fmt.Errorf("failed to read %s: %w", fc.Path, err)
	case existing == nil:
		return "", fmt.Errorf("path %s is a directory", fc.Path)
	default:
		opts.SHA = existing.SHA
	}

	var res *github.RepositoryContentResponse
	if opts.SHA == nil {
		res, _, err = c.gh.Repositories.CreateFile(ctx, owner, name, fc.Path, opts)
	} else {
		res, _, err = c.gh.Repositories.UpdateFile(ctx, owner, name, fc.Path, opts)
	}
	if err != nil {
		return "", err
	}
	return res.Commit.GetSHA(), nil
}

// GetCommits fetches all commits for a repository by author between since and until.
// It handles API pagination transparently.
func (c *Client) GetCommits(ctx context.Context, owner, name, author string, since, until time.Time) ([]model.Commit, error) {
	var allCommits []model.Commit

	opts := &github.CommitsListOptions{
		Author: author,
		Since:  since,
		Until:  until,
		ListOptions: github.ListOptions{
			PerPage: 100, // Max per page
		},
	}

	for {
		c.logger.Debug("Fetching commits page", "owner", owner, "repo", name, "page", opts.Page)

		commits, resp, err := c.gh.Repositories.ListCommits(ctx, owner, name, opts)
		if err != nil {
			// An empty repository has no history to list.
			if isEmptyRepository(err) {
				return nil, nil
			}
			return nil, err
		}

		for _, commit := range commits {
			allCommits = append(allCommits, toInternalCommit(commit))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return allCommits, nil
}

// ListRepositories returns the repositories the token's user owns or collaborates on,
// most recently pushed first.
func (c *Client) ListRepositories(ctx context.Context) ([]model.RemoteRepository, error) {
	opts := &github.RepositoryListByAuthenticatedUserOptions{
		Affiliation: "owner,collaborator",
		Sort:        "pushed",
		ListOptions: github.ListOptions{PerPage: 100},
	}

	var repos []model.RemoteRepository
	for {
		page, resp, err := c.gh.Repositories.ListByAuthenticatedUser(ctx, opts)
		if err != nil {
			return nil, err
		}
		for _, r := range page {
			repos = append(repos, *toInternalRepository(r))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return repos, nil
}

// IsNotFound reports whether err is a GitHub 404.
func IsNotFound(err error) bool {
	var ghErr *github.ErrorResponse
	return errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound
}

// IsTransient reports whether a failed call is worth retrying later: rate limits, 429 and
// 5xx responses, network failures and truncated bodies. Anything else is permanent.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
		return true
	}
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) {
		if ghErr.Response == nil {
			return false
		}
		code := ghErr.Response.StatusCode
		return code >= http.StatusInternalServerError || code == http.StatusTooManyRequests
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var urlErr *url.Error
	var netErr net.Error
	return errors.As(err, &urlErr) || errors.As(err, &netErr)
}

func isEmptyRepository(err error) bool {
	var ghErr *github.ErrorResponse
	return errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusConflict
}

// toInternalRepository translates a github.Repository object to our internal model.
func toInternalRepository(r *github.Repository) *model.RemoteRepository {
	return &model.RemoteRepository{
		GithubRepoID:  r.GetID(),
		Owner:         r.GetOwner().GetLogin(),
		Name:          r.GetName(),
		FullName:      r.GetFullName(),
		URL:           r.GetHTMLURL(),
		Private:       r.GetPrivate(),
		DefaultBranch: r.GetDefaultBranch(),
	}
}

// toInternalCommit translates a github.RepositoryCommit object to our internal model.Commit.
func toInternalCommit(c *github.RepositoryCommit) model.Commit {
	return model.Commit{
		SHA:         c.GetSHA(),
		AuthorName:  c.GetCommit().GetAuthor().GetName(),
		AuthorEmail: c.GetCommit().GetAuthor().GetEmail(),
		Message:     c.GetCommit().GetMessage(),
		URL:         c.GetHTMLURL(),
		CommitDate:  c.GetCommit().GetAuthor().GetDate().Time,
	}
}

func toCommitAuthor(sig model.Signature, when time.Time) *github.CommitAuthor {
	return &github.CommitAuthor{
		Name:  github.String(sig.Name),
		Email: github.String(sig.Email),
		Date:  &github.Timestamp{Time: when},
	}
}
