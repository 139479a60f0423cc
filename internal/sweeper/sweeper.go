// internal/sweeper/sweeper.go
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github-streak-manager/internal/database"
	custom_errors "github-streak-manager/internal/errors"
	"github-streak-manager/internal/github"
	"github-streak-manager/internal/model"
)

const (
	defaultBatchSize   = 50
	defaultMaxAttempts = 3
	maxRetryInterval   = 30 * time.Second
)

// Store is the persistence the sweep needs.
type Store interface {
	ListDueScheduledCommits(ctx context.Context, arg database.ListDueScheduledCommitsParams) ([]database.ScheduledCommit, error)
	GetScheduledCommitTarget(ctx context.Context, id uuid.UUID) (database.ScheduledCommitTarget, error)
	TransitionScheduledCommit(ctx context.Context, arg database.TransitionScheduledCommitParams) (bool, error)
	IncrementScheduledCommitAttempts(ctx context.Context, id uuid.UUID) (int32, error)
}

// FileCommitter pushes a single-file commit.
type FileCommitter interface {
	CommitFile(ctx context.Context, owner, name string, fc model.FileCommit) (string, error)
}

// ClientFunc returns a FileCommitter acting with a user's token.
type ClientFunc func(token string) FileCommitter

type Options struct {
	BatchSize     int
	MaxAttempts   int
	RetryInterval time.Duration
}

// Sweeper executes scheduled commits once they are due.
type Sweeper struct {
	store     Store
	clients   ClientFunc
	logger    *slog.Logger
	opts      Options
	now       func() time.Time
	transient func(error) bool
}

// NewSweeper creates a new Sweeper instance.
func NewSweeper(store Store, clients ClientFunc, logger *slog.Logger, opts Options) *Sweeper {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = backoff.DefaultInitialInterval
	}
	return &Sweeper{
		store:     store,
		clients:   clients,
		logger:    logger,
		opts:      opts,
		now:       time.Now,
		transient: github.IsTransient,
	}
}

// Start runs the sweep on a cron schedule until ctx is cancelled. A run that is still in
// progress when the next one fires causes that next run to be skipped.
func (s *Sweeper) Start(ctx context.Context, spec string) error {
	logger := cronLogger{s.logger}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(spec, func() { s.runCycle(ctx) }); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}

	s.logger.Info("Starting sweeper", "schedule", spec, "batch_size", s.opts.BatchSize, "max_attempts", s.opts.MaxAttempts)
	c.Start()

	<-ctx.Done()
	s.logger.Info("Sweeper shutting down", "reason", ctx.Err())
	<-c.Stop().Done()
	return nil
}

func (s *Sweeper) runCycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	res, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.Error("Sweep failed", "error", err)
		return
	}
	if res.Processed > 0 {
		s.logger.Info("Sweep finished", "processed", res.Processed)
	}
}

// RunOnce processes every due pending commit, oldest first, one at a time. A failing
// record never stops the others.
func (s *Sweeper) RunOnce(ctx context.Context) (*model.SweepResult, error) {
	due, err := s.store.ListDueScheduledCommits(ctx, database.ListDueScheduledCommitsParams{
		Now:   s.now(),
		Limit: int32(s.opts.BatchSize),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list due scheduled commits: %w", err)
	}

	res := &model.SweepResult{Results: []model.SweepItemResult{}}
	for _, sc := range due {
		item, ok := s.process(ctx, sc)
		if !ok {
			continue
		}
		res.Results = append(res.Results, item)
	}
	res.Processed = len(res.Results)
	return res, nil
}

// process claims and executes one record. It reports false when the record was not claimed.
func (s *Sweeper) process(ctx context.Context, sc database.ScheduledCommit) (model.SweepItemResult, bool) {
	logger := s.logger.With("scheduled_commit", sc.ID.String(), "path", sc.FilePath)

	claimed, err := s.store.TransitionScheduledCommit(ctx, database.TransitionScheduledCommitParams{
		ID:   sc.ID,
		From: model.StatusPending,
		To:   model.StatusProcessing,
	})
	if err != nil {
		logger.Error("Failed to claim scheduled commit", "error", err)
		return model.SweepItemResult{}, false
	}
	if !claimed {
		logger.Debug("Scheduled commit already claimed, skipping")
		return model.SweepItemResult{}, false
	}

	item := model.SweepItemResult{ID: sc.ID.String(), Status: model.StatusProcessing}

	target, err := s.store.GetScheduledCommitTarget(ctx, sc.ID)
	if err != nil {
		return s.finish(ctx, logger, sc.ID, item, "", fmt.Errorf("failed to load target repository: %w", err)), true
	}
	item.Repository = target.FullName
	logger = logger.With("repository", target.FullName)

	if target.AccessToken == "" {
		return s.finish(ctx, logger, sc.ID, item, "", &custom_errors.ErrMissingCredential{Login: target.Login}), true
	}
	owner, name, ok := strings.Cut(target.FullName, "/")
	if !ok {
		return s.finish(ctx, logger, sc.ID, item, "", &custom_errors.ErrInvalidRepoFormat{Repo: target.FullName}), true
	}

	client := s.clients(target.AccessToken)
	fc := model.FileCommit{
		Path:    sc.FilePath,
		Content: sc.FileContent,
		Message: sc.CommitMessage,
		Author:  model.NewSignature(target.GithubID, target.Login, target.Name, target.Email),
		When:    sc.ScheduledTime,
	}

	var sha string
	op := func() error {
		item.Attempts++
		if _, err := s.store.IncrementScheduledCommitAttempts(ctx, sc.ID); err != nil {
			logger.Warn("Failed to record attempt", "error", err)
		}

		var err error
		sha, err = client.CommitFile(ctx, owner, name, fc)
		if err != nil && !s.transient(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn("Commit attempt failed, retrying", "attempt", item.Attempts, "retry_in", wait.String(), "error", err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.RetryInterval
	b.MaxInterval = maxRetryInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.opts.MaxAttempts-1)), ctx)

	err = backoff.RetryNotify(op, policy, notify)
	return s.finish(ctx, logger, sc.ID, item, sha, err), true
}

// finish moves a processing record to its terminal status. The update runs even when
// ctx is cancelled so no record is left in processing by a shutdown.
func (s *Sweeper) finish(ctx context.Context, logger *slog.Logger, id uuid.UUID, item model.SweepItemResult, sha string, cause error) model.SweepItemResult {
	ctx = context.WithoutCancel(ctx)
	at := s.now()

	params := database.TransitionScheduledCommitParams{ID: id, From: model.StatusProcessing}
	if cause != nil {
		result := model.FailureResult(cause, at)
		params.To, params.Result = model.StatusFailed, &result
		item.Status, item.Error = model.StatusFailed, cause.Error()
		logger.Error("Scheduled commit failed", "attempts", item.Attempts, "error", cause)
	} else {
		result := model.SuccessResult(sha, at)
		params.To, params.Result = model.StatusCompleted, &result
		item.Status, item.CommitSHA = model.StatusCompleted, sha
		logger.Info("Scheduled commit completed", "commit", sha, "attempts", item.Attempts)
	}

	ok, err := s.store.TransitionScheduledCommit(ctx, params)
	if err != nil {
		logger.Error("Failed to record scheduled commit result", "status", params.To, "error", err)
	} else if !ok {
		logger.Warn("Scheduled commit left processing before its result was recorded", "status", params.To)
	}
	return item
}

// cronLogger adapts slog to the cron.Logger interface.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
