// internal/api/auth.go
package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/oauth2"

	"github-streak-manager/internal/database"
	custom_errors "github-streak-manager/internal/errors"
)

const (
	sessionCookie = "session"
	stateCookie   = "oauth_state"
	stateTTL      = 10 * time.Minute
)

// OAuthConfig is the part of *oauth2.Config the login flow uses.
type OAuthConfig interface {
	AuthCodeURL(state string, opts ...oauth2.AuthCodeOption) string
	Exchange(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error)
}

type ctxKey int

const userKey ctxKey = iota

func userFromContext(ctx context.Context) (database.User, bool) {
	u, ok := ctx.Value(userKey).(database.User)
	return u, ok
}

// login starts the OAuth flow.
// GET /auth/github/login
func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/auth",
		MaxAge:   int(stateTTL.Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.oauth.AuthCodeURL(state), http.StatusFound)
}

// callback finishes the OAuth flow and opens a session.
// GET /auth/github/callback?code=...&state=...
func (h *Handler) callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cookie, err := r.Cookie(stateCookie)
	if err != nil || q.Get("state") == "" || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(q.Get("state"))) != 1 {
		respondWithError(w, http.StatusBadRequest, "Invalid OAuth state")
		return
	}
	code := q.Get("code")
	if code == "" {
		respondWithError(w, http.StatusBadRequest, "Missing 'code' parameter")
		return
	}

	token, err := h.oauth.Exchange(r.Context(), code)
	if err != nil {
		respondWithFailure(w, h.logger, &custom_errors.ErrUpstream{Op: "oauth exchange", Err: err})
		return
	}

	ghUser, err := h.clients(token.AccessToken).GetAuthenticatedUser(r.Context())
	if err != nil {
		respondWithFailure(w, h.logger, &custom_errors.ErrUpstream{Op: "user lookup", Err: err})
		return
	}

	user, err := h.db.UpsertUser(r.Context(), database.UpsertUserParams{
		GithubID:    ghUser.ID,
		Login:       ghUser.Login,
		Name:        ghUser.Name,
		Email:       ghUser.Email,
		AccessToken: token.AccessToken,
	})
	if err != nil {
		respondWithFailure(w, h.logger, err)
		return
	}

	session, err := h.db.CreateSession(r.Context(), database.CreateSessionParams{
		Token:     uuid.NewString(),
		UserID:    user.ID,
		ExpiresAt: h.now().Add(h.sessionTTL),
	})
	if err != nil {
		respondWithFailure(w, h.logger, err)
		return
	}

	http.SetCookie(w, &http.Cookie{Name: stateCookie, Path: "/auth", MaxAge: -1})
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	h.logger.Info("User signed in", "login", user.Login)

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"user":         user,
		"sessionToken": session.Token,
		"expiresAt":    session.ExpiresAt,
	})
}

// logout drops the caller's session, if any.
// POST /auth/logout
func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if token := sessionToken(r); token != "" {
		if err := h.db.DeleteSession(r.Context(), token); err != nil {
			respondWithFailure(w, h.logger, err)
			return
		}
	}
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Path: "/", MaxAge: -1})
	w.WriteHeader(http.StatusNoContent)
}

// requireSession resolves the session cookie or bearer token into a user.
func (h *Handler) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := sessionToken(r)
		if token == "" {
			respondWithError(w, http.StatusUnauthorized, "Authentication required")
			return
		}

		user, err := h.db.GetUserBySessionToken(r.Context(), token)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				respondWithError(w, http.StatusUnauthorized, "Session expired or invalid")
				return
			}
			respondWithFailure(w, h.logger, err)
			return
		}
		if user.AccessToken == "" {
			respondWithFailure(w, h.logger, &custom_errors.ErrMissingCredential{Login: user.Login})
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
	})
}

func sessionToken(r *http.Request) string {
	if token, ok := bearerToken(r); ok {
		return token
	}
	if c, err := r.Cookie(sessionCookie); err == nil {
		return c.Value
	}
	return ""
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || token == "" {
		return "", false
	}
	return token, true
}
