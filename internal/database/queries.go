// internal/database/queries.go
package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	custom_errors "github-streak-manager/internal/errors"
	"github-streak-manager/internal/model"
)

const upsertUser = `
INSERT INTO users (github_id, login, name, email, access_token)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (github_id) DO UPDATE
SET login = EXCLUDED.login,
    name = EXCLUDED.name,
    email = EXCLUDED.email,
    access_token = EXCLUDED.access_token,
    updated_at = now()
RETURNING id, github_id, login, name, email, access_token, created_at, updated_at`

func (q *Queries) UpsertUser(ctx context.Context, arg UpsertUserParams) (User, error) {
	row := q.db.QueryRow(ctx, upsertUser, arg.GithubID, arg.Login, arg.Name, arg.Email, arg.AccessToken)
	var u User
	err := row.Scan(&u.ID, &u.GithubID, &u.Login, &u.Name, &u.Email, &u.AccessToken, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

const createSession = `
INSERT INTO sessions (token, user_id, expires_at)
VALUES ($1, $2, $3)
RETURNING token, user_id, expires_at, created_at`

func (q *Queries) CreateSession(ctx context.Context, arg CreateSessionParams) (Session, error) {
	row := q.db.QueryRow(ctx, createSession, arg.Token, arg.UserID, arg.ExpiresAt)
	var s Session
	err := row.Scan(&s.Token, &s.UserID, &s.ExpiresAt, &s.CreatedAt)
	return s, err
}

const getUserBySessionToken = `
SELECT u.id, u.github_id, u.login, u.name, u.email, u.access_token, u.created_at, u.updated_at
FROM sessions s
JOIN users u ON u.id = s.user_id
WHERE s.token = $1 AND s.expires_at > now()`

func (q *Queries) GetUserBySessionToken(ctx context.Context, token string) (User, error) {
	row := q.db.QueryRow(ctx, getUserBySessionToken, token)
	var u User
	err := row.Scan(&u.ID, &u.GithubID, &u.Login, &u.Name, &u.Email, &u.AccessToken, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

const deleteSession = `DELETE FROM sessions WHERE token = $1`

func (q *Queries) DeleteSession(ctx context.Context, token string) error {
	_, err := q.db.Exec(ctx, deleteSession, token)
	return err
}

// The unique (user_id, full_name) constraint makes this a single atomic upsert.
const upsertRepository = `
INSERT INTO repositories (user_id, full_name, url, private)
VALUES ($1, $2, $3, $4)
ON CONFLICT ON CONSTRAINT repositories_user_full_name_key DO UPDATE
SET url = EXCLUDED.url,
    private = EXCLUDED.private,
    updated_at = now()
RETURNING id, user_id, full_name, url, private, created_at, updated_at`

func (q *Queries) UpsertRepository(ctx context.Context, arg UpsertRepositoryParams) (Repository, error) {
	row := q.db.QueryRow(ctx, upsertRepository, arg.UserID, arg.FullName, arg.Url, arg.Private)
	var r Repository
	err := row.Scan(&r.ID, &r.UserID, &r.FullName, &r.Url, &r.Private, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

const scheduledCommitColumns = `sc.id, sc.repository_id, sc.commit_message, sc.file_path, sc.file_content,
       sc.scheduled_time, sc.status, sc.attempts, sc.result, sc.created_at, sc.updated_at`

const createScheduledCommit = `
INSERT INTO scheduled_commits AS sc (repository_id, commit_message, file_path, file_content, scheduled_time)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + scheduledCommitColumns

func (q *Queries) CreateScheduledCommit(ctx context.Context, arg CreateScheduledCommitParams) (ScheduledCommit, error) {
	row := q.db.QueryRow(ctx, createScheduledCommit,
		arg.RepositoryID, arg.CommitMessage, arg.FilePath, arg.FileContent, arg.ScheduledTime)
	return scanScheduledCommit(row)
}

const listScheduledCommitsByUser = `
SELECT ` + scheduledCommitColumns + `, r.full_name
FROM scheduled_commits sc
JOIN repositories r ON r.id = sc.repository_id
WHERE r.user_id = $1 AND ($2::text = '' OR sc.status = $2::text)
ORDER BY sc.scheduled_time DESC
LIMIT $3`

func (q *Queries) ListScheduledCommitsByUser(ctx context.Context, arg ListScheduledCommitsByUserParams) ([]ScheduledCommitWithRepo, error) {
	rows, err := q.db.Query(ctx, listScheduledCommitsByUser, arg.UserID, string(arg.Status), arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []ScheduledCommitWithRepo{}
	for rows.Next() {
		var i ScheduledCommitWithRepo
		sc, err := scanScheduledCommit(rows, &i.Repository)
		if err != nil {
			return nil, err
		}
		i.ScheduledCommit = sc
		items = append(items, i)
	}
	return items, rows.Err()
}

const listDueScheduledCommits = `
SELECT ` + scheduledCommitColumns + `
FROM scheduled_commits sc
WHERE sc.status = 'pending' AND sc.scheduled_time <= $1
ORDER BY sc.scheduled_time ASC
LIMIT $2`

func (q *Queries) ListDueScheduledCommits(ctx context.Context, arg ListDueScheduledCommitsParams) ([]ScheduledCommit, error) {
	rows, err := q.db.Query(ctx, listDueScheduledCommits, arg.Now, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []ScheduledCommit{}
	for rows.Next() {
		sc, err := scanScheduledCommit(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, sc)
	}
	return items, rows.Err()
}

const getScheduledCommitTarget = `
SELECT sc.id, r.id, r.full_name, u.id, u.github_id, u.login, u.name, u.email, u.access_token
FROM scheduled_commits sc
JOIN repositories r ON r.id = sc.repository_id
JOIN users u ON u.id = r.user_id
WHERE sc.id = $1`

func (q *Queries) GetScheduledCommitTarget(ctx context.Context, id uuid.UUID) (ScheduledCommitTarget, error) {
	row := q.db.QueryRow(ctx, getScheduledCommitTarget, id)
	var t ScheduledCommitTarget
	err := row.Scan(&t.ScheduledCommitID, &t.RepositoryID, &t.FullName, &t.UserID, &t.GithubID,
		&t.Login, &t.Name, &t.Email, &t.AccessToken)
	return t, err
}

const transitionScheduledCommit = `
UPDATE scheduled_commits
SET status = $3, result = COALESCE($4, result), updated_at = now()
WHERE id = $1 AND status = $2`

// TransitionScheduledCommit moves a record from one status to the next in a single
// conditional update. It reports false when the record was not in the From status.
func (q *Queries) TransitionScheduledCommit(ctx context.Context, arg TransitionScheduledCommitParams) (bool, error) {
	if !arg.From.CanTransitionTo(arg.To) {
		return false, &custom_errors.ErrInvalidTransition{From: string(arg.From), To: string(arg.To)}
	}

	var result []byte
	if arg.Result != nil {
		b, err := json.Marshal(arg.Result)
		if err != nil {
			return false, fmt.Errorf("failed to encode result: %w", err)
		}
		result = b
	}

	tag, err := q.db.Exec(ctx, transitionScheduledCommit, arg.ID, string(arg.From), string(arg.To), result)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

const incrementScheduledCommitAttempts = `
UPDATE scheduled_commits
SET attempts = attempts + 1, updated_at = now()
WHERE id = $1
RETURNING attempts`

func (q *Queries) IncrementScheduledCommitAttempts(ctx context.Context, id uuid.UUID) (int32, error) {
	var attempts int32
	err := q.db.QueryRow(ctx, incrementScheduledCommitAttempts, id).Scan(&attempts)
	return attempts, err
}

func scanScheduledCommit(row pgx.Row, extra ...any) (ScheduledCommit, error) {
	var (
		sc     ScheduledCommit
		status string
		result []byte
	)
	dest := []any{&sc.ID, &sc.RepositoryID, &sc.CommitMessage, &sc.FilePath, &sc.FileContent,
		&sc.ScheduledTime, &status, &sc.Attempts, &result, &sc.CreatedAt, &sc.UpdatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return ScheduledCommit{}, err
	}
	sc.Status = model.CommitStatus(status)
	if len(result) > 0 {
		var r model.CommitResult
		if err := json.Unmarshal(result, &r); err != nil {
			return ScheduledCommit{}, fmt.Errorf("failed to decode result of %s: %w", sc.ID, err)
		}
		sc.Result = &r
	}
	return sc, nil
}
