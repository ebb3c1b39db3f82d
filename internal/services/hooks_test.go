package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"envelope/internal/domain"
	"envelope/internal/util"
)

type fixedLimiter struct {
	allow bool
	keys  []string
}

func (l *fixedLimiter) Allow(_ context.Context, key string) bool {
	l.keys = append(l.keys, key)
	return l.allow
}

func TestHooksRunInOrder(t *testing.T) {
	var order []string
	hooks := NewHooks()
	for _, name := range []string{"a", "b", "c"} {
		name := name
		hooks.OnAfterSubmit(AfterSubmitFunc(name, func(context.Context, *domain.ContactMessage, *ContactForm) {
			order = append(order, name)
		}))
	}
	hooks.AfterSubmit(context.Background(), &domain.ContactMessage{}, nil)
	assert.Equal(t, []string{"a", "b", "c"}, order)

	name, ok := hooks.BeforeSubmit(context.Background(), nil, nil)
	assert.True(t, ok)
	assert.Empty(t, name)

	var nilHooks *Hooks
	_, ok = nilHooks.BeforeSubmit(context.Background(), nil, nil)
	assert.True(t, ok)
}

func TestRateLimitHookKeysByClientIP(t *testing.T) {
	limiter := &fixedLimiter{allow: false}
	hook := NewRateLimitHook(limiter, nil)
	assert.Equal(t, "throttle", hook.Name())

	r := httptest.NewRequest(http.MethodPost, "/contact/acme/", nil)
	r.RemoteAddr = "198.51.100.4:5123"
	assert.False(t, hook.BeforeSubmit(context.Background(), r, nil))

	// Forwarding headers from an untrusted peer are ignored.
	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	r.Header.Set("X-Real-IP", "203.0.113.10")
	limiter.allow = true
	assert.True(t, hook.BeforeSubmit(context.Background(), r, nil))

	assert.Equal(t, []string{"contact:198.51.100.4", "contact:198.51.100.4"}, limiter.keys)
}

func TestRateLimitHookTrustedProxies(t *testing.T) {
	proxies, err := util.ParseProxyList([]string{"10.0.0.0/8"})
	require.NoError(t, err)
	limiter := &fixedLimiter{allow: true}
	hook := NewRateLimitHook(limiter, proxies)

	r := httptest.NewRequest(http.MethodPost, "/contact/acme/", nil)
	r.RemoteAddr = "10.1.2.3:4000"
	r.Header.Set("X-Forwarded-For", "198.51.100.77, 203.0.113.9, 10.4.4.4")
	assert.True(t, hook.BeforeSubmit(context.Background(), r, nil))

	assert.Equal(t, []string{"contact:203.0.113.9"}, limiter.keys)
}

func TestBlockedDomainsHook(t *testing.T) {
	hook := NewBlockedDomainsHook([]string{" Spam.test ", "@junk.example", ""})
	assert.Equal(t, "blocked_domains", hook.Name())

	cases := map[string]bool{
		"ada@example.com":    true,
		"bot@spam.test":      false,
		"bot@SPAM.test":      false,
		"x@junk.example":     false,
		"x@sub.junk.example": true,
		"no-at-sign":         true,
	}
	for email, want := range cases {
		form := &ContactForm{Email: email}
		assert.Equal(t, want, hook.BeforeSubmit(context.Background(), nil, form), email)
	}
}
