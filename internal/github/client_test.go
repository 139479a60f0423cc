// internal/github/client_test.go
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-github/v62/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github-streak-manager/internal/model"
)

// setupTestClient creates a httptest server and a client pointing to it.
func setupTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	server := httptest.NewServer(handler)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	baseURL, err := url.Parse(server.URL + "/")
	require.NoError(t, err)

	// We can pass an empty token because we are not authenticating to the real GitHub.
	client := NewClient("", baseURL, time.Millisecond, logger)
	return client, server
}

func TestClient_GetRepository_Retry(t *testing.T) {
	t.Run("succeeds on first try", func(t *testing.T) {
		var requestCount int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&requestCount, 1)
			assert.Equal(t, "/repos/test/repo", r.URL.Path)
			w.WriteHeader(http.StatusOK)
			fmt.Fprintln(w, `{"id": 1, "name": "repo", "full_name": "test/repo", "private": true, "default_branch": "main", "owner": {"login": "test"}}`)
		})
		client, server := setupTestClient(t, handler)
		defer server.Close()

		repo, err := client.GetRepository(context.Background(), "test", "repo")

		require.NoError(t, err)
		assert.Equal(t, int32(1), atomic.LoadInt32(&requestCount))
		assert.Equal(t, "repo", repo.Name)
		assert.Equal(t, "test/repo", repo.FullName)
		assert.Equal(t, "main", repo.DefaultBranch)
		assert.True(t, repo.Private)
	})

	t.Run("retries on 503 server error and succeeds", func(t *testing.T) {
		var requestCount int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			count := atomic.AddInt32(&requestCount, 1)
			if count == 1 {
				w.WriteHeader(http.StatusServiceUnavailable) // Fail first time
				return
			}
			w.WriteHeader(http.StatusOK) // Succeed second time
			fmt.Fprintln(w, `{"id": 1, "name": "repo", "owner": {"login": "test"}}`)
		})
		client, server := setupTestClient(t, handler)
		defer server.Close()

		_, err := client.GetRepository(context.Background(), "test", "repo")

		require.NoError(t, err)
		assert.Equal(t, int32(2), atomic.LoadInt32(&requestCount), "should have made two requests")
	})

	t.Run("waits for an exhausted rate limit to reset", func(t *testing.T) {
		var requestCount int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			count := atomic.AddInt32(&requestCount, 1)
			if count == 1 {
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", time.Now().Unix()))
				w.WriteHeader(http.StatusForbidden)
				fmt.Fprintln(w, `{"message": "API rate limit exceeded"}`)
				return
			}
			w.WriteHeader(http.StatusOK)
			fmt.Fprintln(w, `{"id": 1, "name": "repo", "owner": {"login": "test"}}`)
		})
		client, server := setupTestClient(t, handler)
		defer server.Close()

		_, err := client.GetRepository(context.Background(), "test", "repo")

		require.NoError(t, err)
		assert.Equal(t, int32(2), atomic.LoadInt32(&requestCount))
	})

	t.Run("fails after max retries on persistent server error", func(t *testing.T) {
		var requestCount int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&requestCount, 1)
			w.WriteHeader(http.StatusInternalServerError)
		})
		client, server := setupTestClient(t, handler)
		defer server.Close()

		_, err := client.GetRepository(context.Background(), "test", "repo")

		require.Error(t, err)
		var ghErr *github.ErrorResponse
		assert.ErrorAs(t, err, &ghErr)
		assert.Equal(t, http.StatusInternalServerError, ghErr.Response.StatusCode)
		assert.Equal(t, int32(maxRetries), atomic.LoadInt32(&requestCount))
		assert.True(t, IsTransient(err))
	})

	t.Run("does not retry client errors", func(t *testing.T) {
		var requestCount int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&requestCount, 1)
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprintln(w, `{"message": "Not Found"}`)
		})
		client, server := setupTestClient(t, handler)
		defer server.Close()

		_, err := client.GetRepository(context.Background(), "test", "repo")

		require.Error(t, err)
		assert.True(t, IsNotFound(err))
		assert.False(t, IsTransient(err))
		assert.Equal(t, int32(1), atomic.LoadInt32(&requestCount))
	})
}

func TestClient_CreateCommit(t *testing.T) {
	when := time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC)
	var requestCount int32

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requestCount, 1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/repos/test/repo/git/commits", r.URL.Path)

		var body struct {
			Message string   `json:"message"`
			Tree    string   `json:"tree"`
			Parents []string `json:"parents"`
			Author  struct {
				Name  string    `json:"name"`
				Email string    `json:"email"`
				Date  time.Time `json:"date"`
			} `json:"author"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Update 2024-01-03", body.Message)
		assert.Equal(t, "tree-sha", body.Tree)
		assert.Equal(t, []string{"parent-sha"}, body.Parents)
		assert.Equal(t, "octo", body.Author.Name)
		assert.True(t, when.Equal(body.Author.Date))

		w.WriteHeader(http.StatusCreated)
		fmt.Fprintln(w, `{"sha": "new-sha"}`)
	})
	client, server := setupTestClient(t, handler)
	defer server.Close()

	sha, err := client.CreateCommit(context.Background(), "test", "repo", model.NewCommit{
		Message:   "Update 2024-01-03",
		TreeSHA:   "tree-sha",
		ParentSHA: "parent-sha",
		Author:    model.Signature{Name: "octo", Email: "octo@example.com"},
		When:      when,
	})

	require.NoError(t, err)
	assert.Equal(t, "new-sha", sha)
	assert.Equal(t, int32(1), atomic.LoadInt32(&requestCount))
}

func TestClient_UpdateBranch_Force(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/repos/test/repo/git/refs/heads/main", r.URL.Path)

		var body struct {
			SHA   string `json:"sha"`
			Force bool   `json:"force"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "new-sha", body.SHA)
		assert.True(t, body.Force)

		fmt.Fprintln(w, `{"ref": "refs/heads/main", "object": {"sha": "new-sha"}}`)
	})
	client, server := setupTestClient(t, handler)
	defer server.Close()

	err := client.UpdateBranch(context.Background(), "test", "repo", "main", "new-sha", true)

	require.NoError(t, err)
}

func TestClient_GetBranchHead(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/test/repo/git/ref/heads/main":
			fmt.Fprintln(w, `{"ref": "refs/heads/main", "object": {"sha": "head-sha", "type": "commit"}}`)
		case "/repos/test/repo/git/commits/head-sha":
			fmt.Fprintln(w, `{"sha": "head-sha", "tree": {"sha": "tree-sha"}}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})
	client, server := setupTestClient(t, handler)
	defer server.Close()

	head, err := client.GetBranchHead(context.Background(), "test", "repo", "main")

	require.NoError(t, err)
	assert.Equal(t, model.BranchHead{Branch: "main", CommitSHA: "head-sha", TreeSHA: "tree-sha"}, head)
}

func TestClient_CommitFile(t *testing.T) {
	when := time.Date(2030, 5, 1, 18, 0, 0, 0, time.UTC)
	fc := model.FileCommit{
		Path:    "notes/log.md",
		Content: "hello",
		Message: "Update 2030-05-01",
		Author:  model.Signature{Name: "octo", Email: "octo@example.com"},
		When:    when,
	}

	t.Run("creates a missing file", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/repos/test/repo/contents/notes/log.md", r.URL.Path)
			switch r.Method {
			case http.MethodGet:
				w.WriteHeader(http.StatusNotFound)
				fmt.Fprintln(w, `{"message": "Not Found"}`)
			case http.MethodPut:
				var body map[string]any
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.NotContains(t, body, "sha")
				assert.Equal(t, "aGVsbG8=", body["content"])
				w.WriteHeader(http.StatusCreated)
				fmt.Fprintln(w, `{"commit": {"sha": "created-sha"}}`)
			}
		})
		client, server := setupTestClient(t, handler)
		defer server.Close()

		sha, err := client.CommitFile(context.Background(), "test", "repo", fc)

		require.NoError(t, err)
		assert.Equal(t, "created-sha", sha)
	})

	t.Run("updates an existing file with its sha", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				fmt.Fprintln(w, `{"type": "file", "sha": "file-sha", "path": "notes/log.md"}`)
			case http.MethodPut:
				var body map[string]any
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, "file-sha", body["sha"])
				fmt.Fprintln(w, `{"commit": {"sha": "updated-sha"}}`)
			}
		})
		client, server := setupTestClient(t, handler)
		defer server.Close()

		sha, err := client.CommitFile(context.Background(), "test", "repo", fc)

		require.NoError(t, err)
		assert.Equal(t, "updated-sha", sha)
	})

	t.Run("a directory at the path is a permanent failure", func(t *testing.T) {
		var puts int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPut {
				atomic.AddInt32(&puts, 1)
			}
			fmt.Fprintln(w, `[{"type": "file", "name": "a.md", "path": "dir/a.md", "sha": "a-sha"}]`)
		})
		client, server := setupTestClient(t, handler)
		defer server.Close()

		dir := fc
		dir.Path = "dir"
		_, err := client.CommitFile(context.Background(), "test", "repo", dir)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "is a directory")
		assert.False(t, IsTransient(err))
		assert.Zero(t, atomic.LoadInt32(&puts))
	})
}

func TestIsTransient(t *testing.T) {
	withStatus := func(code int) error {
		req, _ := http.NewRequest(http.MethodGet, "https://api.github.com/repos/test/repo", nil)
		return &github.ErrorResponse{Response: &http.Response{StatusCode: code, Request: req}}
	}

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"server error", withStatus(http.StatusBadGateway), true},
		{"too many requests", withStatus(http.StatusTooManyRequests), true},
		{"unprocessable", withStatus(http.StatusUnprocessableEntity), false},
		{"rate limit", &github.RateLimitError{Response: &http.Response{StatusCode: http.StatusForbidden}}, true},
		{"connection reset", &url.Error{Op: "Put", URL: "https://api.github.com", Err: errors.New("connection reset by peer")}, true},
		{"truncated body", fmt.Errorf("decode: %w", io.ErrUnexpectedEOF), true},
		{"cancelled", &url.Error{Op: "Get", URL: "https://api.github.com", Err: context.Canceled}, false},
		{"deadline", context.DeadlineExceeded, false},
		{"local error", errors.New("path dir is a directory"), false},
		{"bad json", &json.SyntaxError{Offset: 3}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestClient_GetCommits_Pagination(t *testing.T) {
	var server *httptest.Server
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "octo", r.URL.Query().Get("author"))
		if r.URL.Query().Get("page") == "" {
			w.Header().Set("Link", fmt.Sprintf(`<%s/repos/test/repo/commits?page=2>; rel="next"`, server.URL))
			fmt.Fprintln(w, `[{"sha": "a", "commit": {"author": {"name": "octo", "date": "2024-01-01T12:00:00Z"}, "message": "one"}}]`)
			return
		}
		fmt.Fprintln(w, `[{"sha": "b", "commit": {"author": {"name": "octo", "date": "2024-01-02T12:00:00Z"}, "message": "two"}}]`)
	})
	client, srv := setupTestClient(t, handler)
	server = srv
	defer server.Close()

	commits, err := client.GetCommits(context.Background(), "test", "repo", "octo",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC))

	require.NoError(t, err)
	require.Len(t, commits, 2)
	assert.Equal(t, "a", commits[0].SHA)
	assert.Equal(t, "b", commits[1].SHA)
	assert.Equal(t, 2, commits[1].CommitDate.Day())
}

func TestClient_GetContributionCalendar(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/graphql", r.URL.Path)

		var body struct {
			Query     string         `json:"query"`
			Variables map[string]any `json:"variables"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Contains(t, body.Query, "contributionsCollection(from: $from, to: $to)")
		assert.Contains(t, body.Query, "contributionCount")
		assert.Equal(t, "2024-06-01T00:00:00Z", body.Variables["from"])
		assert.Equal(t, "2024-06-09T23:59:59Z", body.Variables["to"])

		fmt.Fprintln(w, `{"data": {"viewer": {"contributionsCollection": {"contributionCalendar": {
			"totalContributions": 5,
			"weeks": [
				{"contributionDays": [{"date": "2024-06-01", "contributionCount": 2}]},
				{"contributionDays": [{"date": "2024-06-02", "contributionCount": 0}, {"date": "2024-06-03", "contributionCount": 3}]}
			]}}}}}`)
	})
	client, server := setupTestClient(t, handler)
	defer server.Close()

	days, err := client.GetContributionCalendar(context.Background(),
		time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 6, 9, 23, 59, 59, 0, time.UTC))

	require.NoError(t, err)
	assert.Equal(t, []model.DayCount{
		{Date: "2024-06-01", Count: 2},
		{Date: "2024-06-02", Count: 0},
		{Date: "2024-06-03", Count: 3},
	}, days)
}

func TestClient_GetContributionCalendar_GraphQLError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"data": null, "errors": [{"message": "The total time spanned by 'from' and 'to' must not exceed 1 year"}]}`)
	})
	client, server := setupTestClient(t, handler)
	defer server.Close()

	_, err := client.GetContributionCalendar(context.Background(), time.Now().AddDate(-2, 0, 0), time.Now())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "must not exceed 1 year")
	assert.False(t, IsTransient(err))
}

func TestGraphQLURL(t *testing.T) {
	for base, want := range map[string]string{
		"http://127.0.0.1:4000/":            "http://127.0.0.1:4000/graphql",
		"https://ghe.example.com/api/v3/":   "https://ghe.example.com/api/graphql",
		"https://proxy.example.com/github/": "https://proxy.example.com/github/graphql",
	} {
		u, err := url.Parse(base)
		require.NoError(t, err)
		assert.Equal(t, want, graphQLURL(u), base)
	}
}

func TestClient_ListRepositories_Pagination(t *testing.T) {
	var server *httptest.Server
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/user/repos", r.URL.Path)
		assert.Equal(t, "owner,collaborator", r.URL.Query().Get("affiliation"))
		if r.URL.Query().Get("page") == "" {
			w.Header().Set("Link", fmt.Sprintf(`<%s/user/repos?page=2>; rel="next"`, server.URL))
			fmt.Fprintln(w, `[{"id": 1, "name": "streak", "full_name": "octo/streak", "owner": {"login": "octo"}, "default_branch": "main"}]`)
			return
		}
		fmt.Fprintln(w, `[{"id": 2, "name": "notes", "full_name": "octo/notes", "owner": {"login": "octo"}, "private": true}]`)
	})
	client, srv := setupTestClient(t, handler)
	server = srv
	defer server.Close()

	repos, err := client.ListRepositories(context.Background())

	require.NoError(t, err)
	require.Len(t, repos, 2)
	assert.Equal(t, "octo/streak", repos[0].FullName)
	assert.Equal(t, "main", repos[0].DefaultBranch)
	assert.True(t, repos[1].Private)
}
