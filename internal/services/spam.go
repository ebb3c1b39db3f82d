package services

import (
	"context"
	"log"
	"net/http"
	"strings"

	"envelope/internal/util"
)

// Limiter reports whether another request for key fits in the current window.
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

// RateLimitHook vetoes submissions from a client that exceeded its quota.
type RateLimitHook struct {
	limiter Limiter
	proxies *util.ProxyList
}

// NewRateLimitHook creates the "throttle" hook. Forwarding headers are only
// honoured for requests arriving from one of proxies.
func NewRateLimitHook(limiter Limiter, proxies *util.ProxyList) *RateLimitHook {
	return &RateLimitHook{limiter: limiter, proxies: proxies}
}

func (h *RateLimitHook) Name() string { return "throttle" }

func (h *RateLimitHook) BeforeSubmit(ctx context.Context, r *http.Request, _ *ContactForm) bool {
	ip := util.ClientIP(r, h.proxies)
	if h.limiter.Allow(ctx, "contact:"+ip) {
		return true
	}
	log.Printf("[CONTACT] Throttled submission: ip=%s", ip)
	return false
}

// BlockedDomainsHook vetoes submissions whose email domain is blocked.
type BlockedDomainsHook struct {
	domains map[string]struct{}
}

// NewBlockedDomainsHook creates the "blocked_domains" hook.
func NewBlockedDomainsHook(domains []string) *BlockedDomainsHook {
	set := make(map[string]struct{}, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			set[strings.TrimPrefix(d, "@")] = struct{}{}
		}
	}
	return &BlockedDomainsHook{domains: set}
}

func (h *BlockedDomainsHook) Name() string { return "blocked_domains" }

func (h *BlockedDomainsHook) BeforeSubmit(_ context.Context, _ *http.Request, form *ContactForm) bool {
	at := strings.LastIndex(form.Email, "@")
	if at < 0 {
		return true
	}
	_, blocked := h.domains[strings.ToLower(form.Email[at+1:])]
	return !blocked
}
