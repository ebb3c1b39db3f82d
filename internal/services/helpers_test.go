package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	goahttp "goa.design/goa/v3/http"

	"envelope/internal/config"
	"envelope/internal/domain"
	"envelope/internal/store"
	"envelope/internal/util"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type testEnv struct {
	store   *store.MemoryStore
	company *domain.Company
	tokens  *util.TokenManager
	contact *ContactService
	handler http.Handler
}

func newTestEnv(t *testing.T, cfg *config.ContactConfig, hooks *Hooks) *testEnv {
	t.Helper()
	ctx := context.Background()
	if cfg == nil {
		cfg = &config.ContactConfig{HoneypotField: "email2"}
	}
	if hooks == nil {
		hooks = NewHooks()
	}

	st := store.NewMemoryStore()
	email := "sales@acme.test"
	company := &domain.Company{Slug: "acme", Name: "Acme", Email: &email}
	require.NoError(t, st.CreateCompany(ctx, company))

	renderer, err := NewTemplateRenderer()
	require.NoError(t, err)

	mux := goahttp.NewMuxer()
	tokens := util.NewTokenManager(testSecret, time.Hour)
	contact := NewContactService(st, mux, hooks, renderer, NewFlashStore(testSecret, false), cfg)
	contact.Mount()
	NewModerationService(st, renderer, mux).Mount()
	NewAuthService(st, tokens, "token", false).Mount(mux)

	return &testEnv{
		store:   st,
		company: company,
		tokens:  tokens,
		contact: contact,
		handler: NewAuthenticator(tokens, st, "token").Middleware(mux),
	}
}

func (e *testEnv) createUser(t *testing.T, username string, staff bool) *domain.User {
	t.Helper()
	hashed, err := util.HashPassword("s3cret-pass")
	require.NoError(t, err)
	full := strings.ToUpper(username[:1]) + username[1:] + " Example"
	u := &domain.User{
		Username:       username,
		Email:          username + "@example.com",
		HashedPassword: hashed,
		FullName:       &full,
		IsActive:       true,
		IsStaff:        staff,
	}
	require.NoError(t, e.store.CreateUser(context.Background(), u))
	return u
}

func (e *testEnv) token(t *testing.T, u *domain.User) string {
	t.Helper()
	token, err := e.tokens.GenerateToken(u)
	require.NoError(t, err)
	return token
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) get(path, token string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return e.do(req)
}

func (e *testEnv) post(path string, values url.Values, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return e.do(req)
}

func (e *testEnv) messages(t *testing.T, kind domain.ContactKind) []domain.ContactMessage {
	t.Helper()
	page, err := e.store.ListMessages(context.Background(), store.ListQuery{
		CompanyID: e.company.ID,
		Kind:      kind,
		PageSize:  100,
	})
	require.NoError(t, err)
	return page.Items
}

func validValues() url.Values {
	return url.Values{
		"sender":          {"Ada Lovelace"},
		"email":           {"ada@example.com"},
		"contact_company": {"Analytical Engines"},
		"contact_phone":   {"+44 20 7946 0000"},
		"subject":         {"First choice"},
		"message_box":     {"Please send a quote."},
		"email2":          {""},
	}
}

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
