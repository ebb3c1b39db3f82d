package services

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	goahttp "goa.design/goa/v3/http"

	"envelope/internal/metrics"
	"envelope/internal/store"
	"envelope/internal/util"
	apperrors "envelope/pkg/errors"
)

// LoginPayload is the body of POST /api/v1/auth/login.
type LoginPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResult carries the issued access token.
type LoginResult struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// AuthService issues access tokens to moderators.
type AuthService struct {
	users      store.UserRepository
	tokens     *util.TokenManager
	cookieName string
	secure     bool
}

// NewAuthService creates a new auth service
func NewAuthService(users store.UserRepository, tokens *util.TokenManager, cookieName string, secure bool) *AuthService {
	if cookieName == "" {
		cookieName = "token"
	}
	return &AuthService{users: users, tokens: tokens, cookieName: cookieName, secure: secure}
}

// Mount registers the auth endpoints.
func (s *AuthService) Mount(mux goahttp.Muxer) {
	mux.Handle(http.MethodPost, "/api/v1/auth/login", s.handleLogin)
	mux.Handle(http.MethodPost, "/api/v1/auth/logout", s.handleLogout)
}

// Login checks credentials and returns a signed token.
func (s *AuthService) Login(ctx context.Context, p *LoginPayload) (*LoginResult, error) {
	username := strings.TrimSpace(p.Username)
	password := strings.TrimSpace(p.Password)

	log.Printf("[AUTH] Login attempt for user: %s", username)

	if username == "" || password == "" {
		metrics.RecordAuthAttempt(false)
		return nil, BadRequest("username and password are required")
	}

	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		metrics.RecordAuthAttempt(false)
		if apperrors.IsNotFound(err) {
			log.Printf("[AUTH] Login failed: user '%s' not found", username)
			return nil, Unauthorized("incorrect username or password")
		}
		log.Printf("[AUTH] Login failed: database error for user '%s': %v", username, err)
		return nil, err
	}

	if !util.CheckPasswordHash(password, user.HashedPassword) {
		log.Printf("[AUTH] Login failed: invalid password for user '%s'", username)
		metrics.RecordAuthAttempt(false)
		return nil, Unauthorized("incorrect username or password")
	}

	if !user.IsActive {
		log.Printf("[AUTH] Login failed: user '%s' is inactive", username)
		metrics.RecordAuthAttempt(false)
		return nil, Unauthorized("user account is inactive")
	}

	if err := s.users.TouchLastLogin(ctx, user.ID); err != nil {
		log.Printf("[AUTH] Warning: failed to record last login for user '%s': %v", username, err)
	}

	token, err := s.tokens.GenerateToken(user)
	if err != nil {
		log.Printf("[AUTH] Login failed: token generation error for user '%s': %v", username, err)
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	log.Printf("[AUTH] Login successful for user '%s' (id=%d, admin=%v, staff=%v)", username, user.ID, user.IsAdmin, user.IsStaff)
	metrics.RecordAuthAttempt(true)

	return &LoginResult{AccessToken: token, TokenType: "bearer"}, nil
}

func (s *AuthService) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var p LoginPayload
	if err := goahttp.RequestDecoder(r).Decode(&p); err != nil {
		writeError(ctx, w, BadRequest("invalid request body: %v", err))
		return
	}
	res, err := s.Login(ctx, &p)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	// Moderation pages are plain links, so the token also travels as a cookie.
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    res.AccessToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(ctx, w, http.StatusOK, res)
}

func (s *AuthService) handleLogout(w http.ResponseWriter, r *http.Request) {
	if user, ok := UserFromContext(r.Context()); ok {
		log.Printf("[AUTH] Logout for user: %s (id=%d)", user.Username, user.ID)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(r.Context(), w, http.StatusOK, map[string]string{"message": "Successfully logged out"})
}

