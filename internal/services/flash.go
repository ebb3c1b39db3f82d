package services

import (
	"log"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const flashCookie = "flash"

// Flash levels, used as CSS classes by the templates.
const (
	LevelSuccess = "success"
	LevelError   = "error"
)

// Flash is a one-shot message shown on the next rendered page.
type Flash struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

type flashClaims struct {
	Messages []Flash `json:"msgs"`
	jwt.RegisteredClaims
}

// FlashStore keeps pending flashes in a signed cookie between a redirect and the
// page that follows it.
type FlashStore struct {
	secret []byte
	ttl    time.Duration
	secure bool
}

// NewFlashStore signs flash cookies with secret. Secure marks the cookie HTTPS-only.
func NewFlashStore(secret string, secure bool) *FlashStore {
	return &FlashStore{secret: []byte(secret), ttl: 5 * time.Minute, secure: secure}
}

// Add queues a flash for the next request, keeping any not yet consumed.
func (s *FlashStore) Add(w http.ResponseWriter, r *http.Request, f Flash) {
	if s == nil {
		return
	}
	msgs := append(s.read(r), f)
	claims := flashClaims{
		Messages: msgs,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		log.Printf("[CONTACT] Failed to sign flash cookie: %v", err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.ttl.Seconds()),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Consume returns the pending flashes and clears the cookie.
func (s *FlashStore) Consume(w http.ResponseWriter, r *http.Request) []Flash {
	if s == nil {
		return nil
	}
	msgs := s.read(r)
	if _, err := r.Cookie(flashCookie); err == nil {
		http.SetCookie(w, &http.Cookie{
			Name:     flashCookie,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   s.secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return msgs
}

// read ignores a missing, tampered or expired cookie.
func (s *FlashStore) read(r *http.Request) []Flash {
	c, err := r.Cookie(flashCookie)
	if err != nil || c.Value == "" {
		return nil
	}
	claims := &flashClaims{}
	_, err = jwt.ParseWithClaims(c.Value, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil
	}
	return claims.Messages
}
