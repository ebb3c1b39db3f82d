package services

import (
	"context"
	"log"
	"net/http"
	"strings"

	"envelope/internal/domain"
	"envelope/internal/store"
	"envelope/internal/util"
)

type ctxKey int

const userKey ctxKey = iota

// WithUser returns a context carrying the authenticated user.
func WithUser(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext returns the authenticated user, if any.
func UserFromContext(ctx context.Context) (*domain.User, bool) {
	user, ok := ctx.Value(userKey).(*domain.User)
	return user, ok && user != nil
}

// Authenticator resolves the user behind a bearer token or auth cookie.
type Authenticator struct {
	tokens     *util.TokenManager
	users      store.UserRepository
	cookieName string
}

// NewAuthenticator creates an authenticator reading tokens from the Authorization
// header or the named cookie.
func NewAuthenticator(tokens *util.TokenManager, users store.UserRepository, cookieName string) *Authenticator {
	if cookieName == "" {
		cookieName = "token"
	}
	return &Authenticator{tokens: tokens, users: users, cookieName: cookieName}
}

// Middleware attaches the user to the request context when a valid token is
// presented. Requests without one continue anonymously.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := a.tokenFrom(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		user, err := a.authenticate(r.Context(), token)
		if err != nil {
			log.Printf("[AUTH] Ignoring credentials: path=%s, err=%v", r.URL.Path, err)
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

func (a *Authenticator) tokenFrom(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	if c, err := r.Cookie(a.cookieName); err == nil {
		return c.Value
	}
	return ""
}

func (a *Authenticator) authenticate(ctx context.Context, token string) (*domain.User, error) {
	claims, err := a.tokens.ValidateToken(token)
	if err != nil {
		return nil, err
	}
	user, err := a.users.GetUserByUsername(ctx, claims.Username)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, Unauthorized("user account is inactive")
	}
	return user, nil
}

// RequireStaff rejects requests without an authenticated staff or admin user.
// JSON routes get a ServiceError body, pages a plain-text error.
func RequireStaff(jsonErrors bool, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		var err error
		switch {
		case !ok:
			err = Unauthorized("authentication required")
		case util.RequireStaff(user) != nil || !user.CanModerate():
			err = Forbidden("insufficient permissions")
		}
		if err != nil {
			if jsonErrors {
				writeError(r.Context(), w, err)
			} else {
				writePageError(w, err)
			}
			return
		}
		next(w, r)
	}
}
