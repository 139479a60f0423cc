//go:build integration

// internal/database/queries_integration_test.go
package database

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	custom_errors "github-streak-manager/internal/errors"
	"github-streak-manager/internal/model"
)

func setupTestDatabase(ctx context.Context, t *testing.T) *pgxpool.Pool {
	t.Helper()

	// Start a postgres container
	pgContainer, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("test-db"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, pgContainer.Terminate(context.Background())) })

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	m, err := migrate.New("file://../../migrations", connStr)
	require.NoError(t, err)
	require.NoError(t, m.Up())

	dbpool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(dbpool.Close)
	return dbpool
}

func seedRepository(ctx context.Context, t *testing.T, q *Queries) (User, Repository) {
	t.Helper()
	user, err := q.UpsertUser(ctx, UpsertUserParams{GithubID: 42, Login: "octo", Name: "Octo Cat", AccessToken: "gho_1"})
	require.NoError(t, err)
	repo, err := q.UpsertRepository(ctx, UpsertRepositoryParams{UserID: user.ID, FullName: "octo/streak", Url: "https://github.com/octo/streak"})
	require.NoError(t, err)
	return user, repo
}

func TestQueries_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	q := New(setupTestDatabase(ctx, t))
	user, repo := seedRepository(ctx, t, q)

	t.Run("upserts are idempotent", func(t *testing.T) {
		again, err := q.UpsertUser(ctx, UpsertUserParams{GithubID: 42, Login: "octo", Name: "Octo Cat", AccessToken: "gho_2"})
		require.NoError(t, err)
		assert.Equal(t, user.ID, again.ID)
		assert.Equal(t, "gho_2", again.AccessToken)

		r2, err := q.UpsertRepository(ctx, UpsertRepositoryParams{UserID: user.ID, FullName: "octo/streak", Private: true})
		require.NoError(t, err)
		assert.Equal(t, repo.ID, r2.ID)
		assert.True(t, r2.Private)
	})

	t.Run("sessions expire", func(t *testing.T) {
		_, err := q.CreateSession(ctx, CreateSessionParams{Token: "live", UserID: user.ID, ExpiresAt: time.Now().Add(time.Hour)})
		require.NoError(t, err)
		_, err = q.CreateSession(ctx, CreateSessionParams{Token: "dead", UserID: user.ID, ExpiresAt: time.Now().Add(-time.Hour)})
		require.NoError(t, err)

		got, err := q.GetUserBySessionToken(ctx, "live")
		require.NoError(t, err)
		assert.Equal(t, "octo", got.Login)

		_, err = q.GetUserBySessionToken(ctx, "dead")
		assert.ErrorIs(t, err, pgx.ErrNoRows)

		require.NoError(t, q.DeleteSession(ctx, "live"))
		_, err = q.GetUserBySessionToken(ctx, "live")
		assert.ErrorIs(t, err, pgx.ErrNoRows)
	})

	t.Run("lifecycle and due listing", func(t *testing.T) {
		now := time.Now()
		due, err := q.CreateScheduledCommit(ctx, CreateScheduledCommitParams{
			RepositoryID: repo.ID, CommitMessage: "Update 2024-01-01", FilePath: "streak.txt",
			FileContent: "hello", ScheduledTime: now.Add(-time.Minute),
		})
		require.NoError(t, err)
		assert.Equal(t, model.StatusPending, due.Status)
		assert.Nil(t, due.Result)

		_, err = q.CreateScheduledCommit(ctx, CreateScheduledCommitParams{
			RepositoryID: repo.ID, CommitMessage: "later", FilePath: "streak.txt", ScheduledTime: now.Add(time.Hour),
		})
		require.NoError(t, err)

		list, err := q.ListDueScheduledCommits(ctx, ListDueScheduledCommitsParams{Now: now, Limit: 10})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, due.ID, list[0].ID)

		target, err := q.GetScheduledCommitTarget(ctx, due.ID)
		require.NoError(t, err)
		assert.Equal(t, "octo/streak", target.FullName)
		assert.Equal(t, "gho_2", target.AccessToken)

		ok, err := q.TransitionScheduledCommit(ctx, TransitionScheduledCommitParams{ID: due.ID, From: model.StatusPending, To: model.StatusProcessing})
		require.NoError(t, err)
		require.True(t, ok)

		attempts, err := q.IncrementScheduledCommitAttempts(ctx, due.ID)
		require.NoError(t, err)
		assert.Equal(t, int32(1), attempts)

		res := model.SuccessResult("abc123", now)
		ok, err = q.TransitionScheduledCommit(ctx, TransitionScheduledCommitParams{ID: due.ID, From: model.StatusProcessing, To: model.StatusCompleted, Result: &res})
		require.NoError(t, err)
		require.True(t, ok)

		// Terminal records cannot move again.
		_, err = q.TransitionScheduledCommit(ctx, TransitionScheduledCommitParams{ID: due.ID, From: model.StatusCompleted, To: model.StatusPending})
		var transitionErr *custom_errors.ErrInvalidTransition
		assert.True(t, errors.As(err, &transitionErr))

		completed, err := q.ListScheduledCommitsByUser(ctx, ListScheduledCommitsByUserParams{UserID: user.ID, Status: model.StatusCompleted, Limit: 10})
		require.NoError(t, err)
		require.Len(t, completed, 1)
		assert.Equal(t, "octo/streak", completed[0].Repository)
		require.NotNil(t, completed[0].Result)
		assert.Equal(t, "abc123", completed[0].Result.CommitSHA)

		all, err := q.ListScheduledCommitsByUser(ctx, ListScheduledCommitsByUserParams{UserID: user.ID, Limit: 10})
		require.NoError(t, err)
		assert.Len(t, all, 2)
		assert.Equal(t, "later", all[0].CommitMessage) // newest scheduled time first
	})

	t.Run("claim is won exactly once", func(t *testing.T) {
		sc, err := q.CreateScheduledCommit(ctx, CreateScheduledCommitParams{
			RepositoryID: repo.ID, CommitMessage: "race", FilePath: "race.txt", ScheduledTime: time.Now().Add(-time.Second),
		})
		require.NoError(t, err)

		var (
			wg   sync.WaitGroup
			wins atomic.Int32
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := q.TransitionScheduledCommit(ctx, TransitionScheduledCommitParams{ID: sc.ID, From: model.StatusPending, To: model.StatusProcessing})
				if err == nil && ok {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})
}
