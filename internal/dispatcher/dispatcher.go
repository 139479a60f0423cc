// internal/dispatcher/dispatcher.go
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github-streak-manager/internal/database"
	custom_errors "github-streak-manager/internal/errors"
	"github-streak-manager/internal/model"
	"github-streak-manager/internal/schedule"
)

// GitService is the slice of the GitHub API the dispatcher drives.
type GitService interface {
	GetRepository(ctx context.Context, owner, name string) (*model.RemoteRepository, error)
	GetBranchHead(ctx context.Context, owner, name, branch string) (model.BranchHead, error)
	CreateBlob(ctx context.Context, owner, name, content string) (string, error)
	CreateTree(ctx context.Context, owner, name, baseTree string, files []model.TreeFile) (string, error)
	CreateCommit(ctx context.Context, owner, name string, nc model.NewCommit) (string, error)
	UpdateBranch(ctx context.Context, owner, name, branch, sha string, force bool) error
}

// Store persists repositories and scheduled commits.
type Store interface {
	UpsertRepository(ctx context.Context, arg database.UpsertRepositoryParams) (database.Repository, error)
	CreateScheduledCommit(ctx context.Context, arg database.CreateScheduledCommitParams) (database.ScheduledCommit, error)
}

// ClientFunc returns a GitService acting with a user's token.
type ClientFunc func(token string) GitService

// Dispatcher turns a bulk request into backdated commits and scheduled commit records.
type Dispatcher struct {
	store   Store
	clients ClientFunc
	logger  *slog.Logger
	loc     *time.Location
	now     func() time.Time
	intn    func(n int) int
}

// New creates a Dispatcher. Calendar dates and times of day are interpreted in loc.
func New(store Store, clients ClientFunc, loc *time.Location, logger *slog.Logger) *Dispatcher {
	if loc == nil {
		loc = time.Local
	}
	return &Dispatcher{
		store:   store,
		clients: clients,
		logger:  logger,
		loc:     loc,
		now:     time.Now,
	}
}

// plan is a validated bulk request.
type plan struct {
	owner    string
	name     string
	paths    []string
	contents map[string]string
	dates    []time.Time
	resolver *Resolver
	op       model.OperationType
}

// Dispatch validates req, then schedules its future dates and, for the fix operation,
// commits its past dates. Validation failures return before any side effect. Per-item
// failures are reported in the response and never abort the batch.
func (d *Dispatcher) Dispatch(ctx context.Context, user database.User, req model.BulkScheduleRequest) (*model.BulkScheduleResponse, error) {
	if user.AccessToken == "" {
		return nil, &custom_errors.ErrMissingCredential{Login: user.Login}
	}

	p, err := d.prepare(user, req)
	if err != nil {
		return nil, err
	}

	times := make([]time.Time, len(p.dates))
	for i, date := range p.dates {
		times[i] = p.resolver.Time(date)
	}
	past, future := schedule.Partition(times, d.now())

	logger := d.logger.With("owner", p.owner, "repo", p.name, "user", user.Login)
	logger.Info("Dispatching bulk request", "dates", len(p.dates), "past", len(past), "future", len(future), "operation", p.op)

	gh := d.clients(user.AccessToken)
	remote, err := gh.GetRepository(ctx, p.owner, p.name)
	if err != nil {
		return nil, &custom_errors.ErrUpstream{Op: "repository lookup", Err: err}
	}
	fullName := remote.FullName
	if fullName == "" {
		fullName = p.owner + "/" + p.name
	}

	repo, err := d.store.UpsertRepository(ctx, database.UpsertRepositoryParams{
		UserID:   user.ID,
		FullName: fullName,
		Url:      remote.URL,
		Private:  remote.Private,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save repository %s: %w", fullName, err)
	}

	resp := &model.BulkScheduleResponse{
		Repository:       fullName,
		ScheduledCommits: []model.ScheduledCommitSummary{},
		ExecutedCommits:  []model.ExecutedCommitSummary{},
		SkippedDates:     []string{},
		Failures:         []model.ItemFailure{},
	}

	// Future dates are always scheduled, whatever the operation type.
	d.scheduleFuture(ctx, logger, repo, p, future, resp)

	if p.op == model.OperationFix {
		sig := model.NewSignature(user.GithubID, user.Login, user.Name, user.Email)
		d.fixPast(ctx, logger, gh, remote.DefaultBranch, sig, p, past, resp)
	} else {
		for _, at := range past {
			resp.SkippedDates = append(resp.SkippedDates, schedule.FormatDate(at))
		}
	}

	resp.TotalScheduled = len(resp.ScheduledCommits)
	resp.TotalExecuted = len(resp.ExecutedCommits)
	logger.Info("Bulk request finished",
		"scheduled", resp.TotalScheduled, "executed", resp.TotalExecuted,
		"skipped", len(resp.SkippedDates), "failures", len(resp.Failures))
	return resp, nil
}

func (d *Dispatcher) scheduleFuture(ctx context.Context, logger *slog.Logger, repo database.Repository, p *plan, future []time.Time, resp *model.BulkScheduleResponse) {
	for _, at := range future {
		date := schedule.FormatDate(at)
		message := p.resolver.Message(at)
		for _, path := range p.paths {
			sc, err := d.store.CreateScheduledCommit(ctx, database.CreateScheduledCommitParams{
				RepositoryID:  repo.ID,
				CommitMessage: message,
				FilePath:      path,
				FileContent:   p.contents[path],
				ScheduledTime: at,
			})
			if err != nil {
				logger.Error("Failed to schedule commit", "date", date, "path", path, "error", err)
				resp.Failures = append(resp.Failures, model.ItemFailure{Date: date, FilePath: path, Stage: model.StageSchedule, Error: err.Error()})
				continue
			}
			resp.ScheduledCommits = append(resp.ScheduledCommits, model.ScheduledCommitSummary{
				ID:            sc.ID.String(),
				Date:          date,
				ScheduledTime: sc.ScheduledTime,
				FilePath:      path,
				Message:       message,
			})
		}
	}
}

// fixPast commits past dates oldest first. Each commit's parent is the previous one, and
// the branch is force-moved after every commit.
func (d *Dispatcher) fixPast(ctx context.Context, logger *slog.Logger, gh GitService, branch string, sig model.Signature, p *plan, past []time.Time, resp *model.BulkScheduleResponse) {
	if len(past) == 0 {
		return
	}

	head, err := gh.GetBranchHead(ctx, p.owner, p.name, branch)
	if err != nil {
		logger.Error("Failed to resolve branch head", "branch", branch, "error", err)
		for _, at := range past {
			resp.Failures = append(resp.Failures, model.ItemFailure{Date: schedule.FormatDate(at), Stage: model.StageRef, Error: err.Error()})
		}
		return
	}

	for _, at := range past {
		date := schedule.FormatDate(at)
		dateLogger := logger.With("date", date)

		var files []model.TreeFile
		for _, path := range p.paths {
			sha, err := gh.CreateBlob(ctx, p.owner, p.name, p.contents[path])
			if err != nil {
				dateLogger.Warn("Failed to create blob, skipping file", "path", path, "error", err)
				resp.Failures = append(resp.Failures, model.ItemFailure{Date: date, FilePath: path, Stage: model.StageBlob, Error: err.Error()})
				continue
			}
			files = append(files, model.TreeFile{Path: path, BlobSHA: sha})
		}
		if len(files) == 0 {
			dateLogger.Warn("No blobs created, skipping date")
			resp.SkippedDates = append(resp.SkippedDates, date)
			continue
		}

		treeSHA, err := gh.CreateTree(ctx, p.owner, p.name, head.TreeSHA, files)
		if err != nil {
			dateLogger.Error("Failed to create tree", "error", err)
			resp.Failures = append(resp.Failures, model.ItemFailure{Date: date, Stage: model.StageTree, Error: err.Error()})
			continue
		}

		message := p.resolver.Message(at)
		commitSHA, err := gh.CreateCommit(ctx, p.owner, p.name, model.NewCommit{
			Message:   message,
			TreeSHA:   treeSHA,
			ParentSHA: head.CommitSHA,
			Author:    sig,
			When:      at,
		})
		if err != nil {
			dateLogger.Error("Failed to create commit", "error", err)
			resp.Failures = append(resp.Failures, model.ItemFailure{Date: date, Stage: model.StageCommit, Error: err.Error()})
			continue
		}

		if err := gh.UpdateBranch(ctx, p.owner, p.name, head.Branch, commitSHA, true); err != nil {
			dateLogger.Error("Failed to move branch", "branch", head.Branch, "commit", commitSHA, "error", err)
			resp.Failures = append(resp.Failures, model.ItemFailure{Date: date, Stage: model.StageRef, Error: err.Error()})
			continue
		}

		head.CommitSHA = commitSHA
		head.TreeSHA = treeSHA

		paths := make([]string, len(files))
		for i, f := range files {
			paths[i] = f.Path
		}
		resp.ExecutedCommits = append(resp.ExecutedCommits, model.ExecutedCommitSummary{
			Date:      date,
			CommitSHA: commitSHA,
			Message:   message,
			When:      at,
			Files:     paths,
		})
		dateLogger.Info("Backdated commit created", "commit", commitSHA)
	}
}

// prepare validates req without touching the store or GitHub.
func (d *Dispatcher) prepare(user database.User, req model.BulkScheduleRequest) (*plan, error) {
	owner, name, err := splitRepoName(user.Login, req.RepoName)
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(req.FilePaths))
	seen := make(map[string]bool)
	for _, path := range req.FilePaths {
		path = strings.TrimPrefix(strings.TrimSpace(path), "/")
		if path == "" || seen[path] {
			continue
		}
		seen[path] = true
		paths = append(paths, path)
	}
	if len(paths) == 0 {
		return nil, &custom_errors.ValidationError{Field: "filePaths", Reason: "at least one file path is required"}
	}

	contents := make(map[string]string, len(paths))
	for k, v := range req.FileContents {
		contents[strings.TrimPrefix(strings.TrimSpace(k), "/")] = v
	}

	if req.CommitMessageTemplate == "" && len(req.CommitMessages) == 0 {
		return nil, &custom_errors.ValidationError{Field: "commitMessageTemplate", Reason: "is required"}
	}

	op := req.OperationType
	if op == "" {
		op = model.OperationSchedule
	}
	if op != model.OperationFix && op != model.OperationSchedule {
		return nil, &custom_errors.ValidationError{Field: "operationType", Reason: fmt.Sprintf("unknown value %q", op)}
	}

	freq, err := schedule.ParseFrequency(string(req.Frequency))
	if err != nil {
		return nil, err
	}
	start, err := schedule.ParseDate("startDate", req.StartDate, d.loc)
	if err != nil {
		return nil, err
	}
	end, err := schedule.ParseDate("endDate", req.EndDate, d.loc)
	if err != nil {
		return nil, err
	}

	var clock schedule.Clock
	if req.TimeOfDay != "" {
		if clock, err = schedule.ParseClock(req.TimeOfDay); err != nil {
			return nil, err
		}
	} else if len(req.Times) == 0 {
		return nil, &custom_errors.ValidationError{Field: "timeOfDay", Reason: "is required when no times are given"}
	}
	clocks := make([]schedule.Clock, 0, len(req.Times))
	for _, s := range req.Times {
		c, err := schedule.ParseClock(s)
		if err != nil {
			return nil, err
		}
		clocks = append(clocks, c)
	}

	dates, err := schedule.Plan(start, end, freq)
	if err != nil {
		return nil, err
	}

	return &plan{
		owner:    owner,
		name:     name,
		paths:    paths,
		contents: contents,
		dates:    dates,
		resolver: NewResolver(req.CommitMessageTemplate, req.CommitMessages, clock, clocks, d.intn),
		op:       op,
	}, nil
}

// splitRepoName accepts "name", owned by login, or "owner/name".
func splitRepoName(login, repoName string) (string, string, error) {
	repoName = strings.TrimSpace(repoName)
	if repoName == "" {
		return "", "", &custom_errors.ValidationError{Field: "repoName", Reason: "is required"}
	}
	parts := strings.Split(repoName, "/")
	switch {
	case len(parts) == 1:
		return login, parts[0], nil
	case len(parts) == 2 && parts[0] != "" && parts[1] != "":
		return parts[0], parts[1], nil
	}
	return "", "", &custom_errors.ErrInvalidRepoFormat{Repo: repoName}
}
