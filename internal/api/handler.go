// internal/api/handler.go
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github-streak-manager/internal/database"
	custom_errors "github-streak-manager/internal/errors"
	"github-streak-manager/internal/model"
	"github-streak-manager/internal/schedule"
	"github-streak-manager/internal/streak"
)

const (
	defaultActivityDays = 30
	maxActivityDays     = 366
	// contributionsCollection spans at most one year.
	maxContributionDays = 365
	maxBulkBodyBytes    = 1 << 20
)

// BulkDispatcher runs bulk fix/schedule requests.
type BulkDispatcher interface {
	Dispatch(ctx context.Context, user database.User, req model.BulkScheduleRequest) (*model.BulkScheduleResponse, error)
}

// SweepRunner executes one sweep of due scheduled commits.
type SweepRunner interface {
	RunOnce(ctx context.Context) (*model.SweepResult, error)
}

// UserClient is the GitHub surface used on behalf of a signed-in user.
type UserClient interface {
	GetAuthenticatedUser(ctx context.Context) (*model.GitHubUser, error)
	GetCommits(ctx context.Context, owner, name, author string, since, until time.Time) ([]model.Commit, error)
	ListRepositories(ctx context.Context) ([]model.RemoteRepository, error)
	GetContributionCalendar(ctx context.Context, from, to time.Time) ([]model.DayCount, error)
}

// UserClientFunc returns a client acting with the given OAuth token.
type UserClientFunc func(token string) UserClient

// Deps are the collaborators the router is built from.
type Deps struct {
	DB         database.Querier
	Dispatcher BulkDispatcher
	Sweeper    SweepRunner
	OAuth      OAuthConfig
	Clients    UserClientFunc
	CronSecret string
	SessionTTL time.Duration
	Location   *time.Location
	Logger     *slog.Logger
}

// Handler is the container for API dependencies.
type Handler struct {
	db         database.Querier
	dispatcher BulkDispatcher
	sweeper    SweepRunner
	oauth      OAuthConfig
	clients    UserClientFunc
	cronSecret string
	sessionTTL time.Duration
	loc        *time.Location
	logger     *slog.Logger
	now        func() time.Time
}

// NewRouter creates and configures a new chi router with all API routes.
func NewRouter(deps Deps) http.Handler {
	return newHandler(deps).routes()
}

func newHandler(deps Deps) *Handler {
	loc := deps.Location
	if loc == nil {
		loc = time.Local
	}
	return &Handler{
		db:         deps.DB,
		dispatcher: deps.Dispatcher,
		sweeper:    deps.Sweeper,
		oauth:      deps.OAuth,
		clients:    deps.Clients,
		cronSecret: deps.CronSecret,
		sessionTTL: deps.SessionTTL,
		loc:        loc,
		logger:     deps.Logger,
		now:        time.Now,
	}
}

func (h *Handler) routes() http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger) // Chi's default logger
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", h.healthCheck)

	r.Route("/auth", func(r chi.Router) {
		r.Get("/github/login", h.login)
		r.Get("/github/callback", h.callback)
		r.Post("/logout", h.logout)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(h.requireSession)
		r.Get("/me", h.me)
		r.Get("/repos", h.listRepositories)
		r.Get("/contributions", h.getContributions)
		r.Post("/commits/bulk", h.bulkCommits)
		r.Get("/scheduled-commits", h.listScheduledCommits)
		r.Get("/repos/{owner}/{name}/activity", h.getActivity)
	})

	r.Route("/internal", func(r chi.Router) {
		r.Use(h.requireCronSecret)
		r.Get("/sweep", h.sweep)
		r.Post("/sweep", h.sweep)
	})

	return r
}

// healthCheck is a simple health endpoint.
func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// me returns the signed-in user.
// GET /v1/me
func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	respondWithJSON(w, http.StatusOK, user)
}

// bulkCommits handles a bulk fix/schedule request.
// POST /v1/commits/bulk
func (h *Handler) bulkCommits(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())

	var req model.BulkScheduleRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBulkBodyBytes))
	if err := dec.Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	resp, err := h.dispatcher.Dispatch(r.Context(), user, req)
	if err != nil {
		respondWithFailure(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

// listScheduledCommits lists the user's scheduled commits, newest first.
// GET /v1/scheduled-commits?status=pending&limit=N
func (h *Handler) listScheduledCommits(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())

	status := model.CommitStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid 'status' parameter %q.", status))
		return
	}

	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		limitStr = "100" // Default limit
	}
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 || limit > 500 {
		respondWithError(w, http.StatusBadRequest, "Invalid 'limit' parameter. Must be an integer between 1 and 500.")
		return
	}

	commits, err := h.db.ListScheduledCommitsByUser(r.Context(), database.ListScheduledCommitsByUserParams{
		UserID: user.ID,
		Status: status,
		Limit:  int32(limit),
	})
	if err != nil {
		respondWithFailure(w, h.logger, err)
		return
	}
	if commits == nil {
		commits = []database.ScheduledCommitWithRepo{}
	}
	respondWithJSON(w, http.StatusOK, commits)
}

// getActivity summarises the user's commits in a repository per day.
// GET /v1/repos/{owner}/{name}/activity?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *Handler) getActivity(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	owner := chi.URLParam(r, "owner")
	name := chi.URLParam(r, "name")

	from, to, err := h.activityRange(r, maxActivityDays)
	if err != nil {
		respondWithFailure(w, h.logger, err)
		return
	}

	commits, err := h.clients(user.AccessToken).GetCommits(r.Context(), owner, name, user.Login, from, to.AddDate(0, 0, 1))
	if err != nil {
		respondWithFailure(w, h.logger, &custom_errors.ErrUpstream{Op: "list commits", Err: err})
		return
	}

	times := make([]time.Time, 0, len(commits))
	for _, c := range commits {
		times = append(times, c.CommitDate)
	}

	summary, err := streak.Summarize(owner+"/"+name, times, from, to, h.loc)
	if err != nil {
		respondWithFailure(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, summary)
}

// listRepositories lists the repositories the user can commit to.
// GET /v1/repos
func (h *Handler) listRepositories(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())

	repos, err := h.clients(user.AccessToken).ListRepositories(r.Context())
	if err != nil {
		respondWithFailure(w, h.logger, &custom_errors.ErrUpstream{Op: "list repositories", Err: err})
		return
	}
	if repos == nil {
		repos = []model.RemoteRepository{}
	}
	respondWithJSON(w, http.StatusOK, repos)
}

// getContributions summarises the user's GitHub contribution calendar.
// GET /v1/contributions?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *Handler) getContributions(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())

	from, to, err := h.activityRange(r, maxContributionDays)
	if err != nil {
		respondWithFailure(w, h.logger, err)
		return
	}

	days, err := h.clients(user.AccessToken).GetContributionCalendar(r.Context(), from, to.AddDate(0, 0, 1).Add(-time.Second))
	if err != nil {
		respondWithFailure(w, h.logger, &custom_errors.ErrUpstream{Op: "contribution calendar", Err: err})
		return
	}

	counts := make(map[string]int, len(days))
	for _, d := range days {
		counts[d.Date] += d.Count
	}

	summary, err := streak.SummarizeCounts(counts, from, to, h.loc)
	if err != nil {
		respondWithFailure(w, h.logger, err)
		return
	}
	summary.Login = user.Login
	respondWithJSON(w, http.StatusOK, summary)
}

func (h *Handler) activityRange(r *http.Request, maxDays int) (time.Time, time.Time, error) {
	q := r.URL.Query()
	now := h.now().In(h.loc)
	to := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, h.loc)

	var err error
	if s := q.Get("to"); s != "" {
		if to, err = schedule.ParseDate("to", s, h.loc); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	from := to.AddDate(0, 0, -(defaultActivityDays - 1))
	if s := q.Get("from"); s != "" {
		if from, err = schedule.ParseDate("from", s, h.loc); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}

	if to.Before(from) {
		return time.Time{}, time.Time{}, &custom_errors.ValidationError{Field: "to", Reason: "must not be before from"}
	}
	if to.After(from.AddDate(0, 0, maxDays-1)) {
		return time.Time{}, time.Time{}, &custom_errors.ValidationError{Field: "from", Reason: fmt.Sprintf("range exceeds %d days", maxDays)}
	}
	return from, to, nil
}

// sweep runs one pass over due scheduled commits.
// GET|POST /internal/sweep
func (h *Handler) sweep(w http.ResponseWriter, r *http.Request) {
	result, err := h.sweeper.RunOnce(r.Context())
	if err != nil {
		respondWithFailure(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

// requireCronSecret accepts CRON_SECRET as a bearer token or as the secret query parameter.
func (h *Handler) requireCronSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secret, ok := bearerToken(r)
		if !ok {
			secret = r.URL.Query().Get("secret")
		}
		if h.cronSecret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(h.cronSecret)) != 1 {
			respondWithError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
