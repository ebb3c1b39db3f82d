package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"envelope/internal/domain"
)

func (e *testEnv) seedMessage(t *testing.T, company *domain.Company, kind domain.ContactKind, state domain.State, created time.Time) *domain.ContactMessage {
	t.Helper()
	msg := &domain.ContactMessage{
		Kind:           kind,
		State:          state,
		CompanyID:      company.ID,
		Sender:         "Ada",
		UserEmail:      "ada@example.com",
		ContactCompany: "Analytical Engines",
		ContactPhone:   "+44 20 7946 0000",
		Subject:        "First choice",
		MessageBox:     "Hello",
		CreatedAt:      created,
	}
	require.NoError(t, e.store.CreateMessage(context.Background(), msg))
	return msg
}

func TestModerationRequiresStaff(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	visitor := env.createUser(t, "visitor", false)

	assert.Equal(t, http.StatusUnauthorized, env.get("/moderation/acme/company/", "").Code)
	assert.Equal(t, http.StatusForbidden, env.get("/moderation/acme/company/", env.token(t, visitor)).Code)
	assert.Equal(t, http.StatusUnauthorized, env.get("/moderation/acme/company/", "garbage").Code)
}

func TestModerationListFiltersAndPaginates(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	staff := env.createUser(t, "mod", true)
	token := env.token(t, staff)

	other := &domain.Company{Slug: "globex", Name: "Globex"}
	require.NoError(t, env.store.CreateCompany(context.Background(), other))

	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	var replied []*domain.ContactMessage
	for i := 0; i < 12; i++ {
		replied = append(replied, env.seedMessage(t, env.company, domain.KindCompany, domain.StateReplied, base.Add(time.Duration(i)*time.Minute)))
	}
	env.seedMessage(t, env.company, domain.KindCompany, domain.StatePending, base.Add(time.Hour))
	env.seedMessage(t, env.company, domain.KindProduct, domain.StateReplied, base.Add(time.Hour))
	env.seedMessage(t, other, domain.KindCompany, domain.StateReplied, base.Add(time.Hour))

	rec := env.get("/moderation/acme/company/?state=1", token)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Equal(t, 10, strings.Count(body, `class="message"`))
	assert.Contains(t, body, "Page 1 of 2")
	assert.Contains(t, body, `rel="next"`)

	newest := strings.Index(body, fmt.Sprintf(`data-id="%d"`, replied[11].ID))
	older := strings.Index(body, fmt.Sprintf(`data-id="%d"`, replied[2].ID))
	require.NotEqual(t, -1, newest)
	require.NotEqual(t, -1, older)
	assert.Less(t, newest, older)
	assert.NotContains(t, body, fmt.Sprintf(`data-id="%d"`, replied[1].ID))

	rec = env.get("/moderation/acme/company/?state=1&page=2", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, strings.Count(rec.Body.String(), `class="message"`))
	assert.Contains(t, rec.Body.String(), `rel="prev"`)

	rec = env.get("/moderation/acme/company/", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Page 1 of 2")

	rec = env.get("/moderation/acme/product/?state=", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, strings.Count(rec.Body.String(), `class="message"`))
}

func TestModerationListRejectsBadInput(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	token := env.token(t, env.createUser(t, "mod", true))

	assert.Equal(t, http.StatusBadRequest, env.get("/moderation/acme/company/?state=7", token).Code)
	assert.Equal(t, http.StatusBadRequest, env.get("/moderation/acme/company/?state=pending", token).Code)
	assert.Equal(t, http.StatusNotFound, env.get("/moderation/acme/widgets/", token).Code)
	assert.Equal(t, http.StatusNotFound, env.get("/moderation/nobody/company/", token).Code)

	req := httptest.NewRequest(http.MethodPost, "/moderation/acme/company/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	assert.NotEqual(t, http.StatusOK, env.do(req).Code)
}

func TestModerationDetail(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	token := env.token(t, env.createUser(t, "mod", true))
	msg := env.seedMessage(t, env.company, domain.KindProduct, domain.StatePending, time.Time{})

	rec := env.get(fmt.Sprintf("/moderation/acme/product/%d/", msg.ID), token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Analytical Engines")
	assert.Contains(t, rec.Body.String(), `<dd class="state">Pending</dd>`)

	assert.Equal(t, http.StatusNotFound, env.get(fmt.Sprintf("/moderation/acme/company/%d/", msg.ID), token).Code)
	assert.Equal(t, http.StatusNotFound, env.get("/moderation/acme/product/9999/", token).Code)
	assert.Equal(t, http.StatusNotFound, env.get("/moderation/acme/product/abc/", token).Code)

	other := &domain.Company{Slug: "globex", Name: "Globex"}
	require.NoError(t, env.store.CreateCompany(context.Background(), other))
	assert.Equal(t, http.StatusNotFound, env.get(fmt.Sprintf("/moderation/globex/product/%d/", msg.ID), token).Code)
}

func patchState(env *testEnv, id uint, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPatch, fmt.Sprintf("/api/v1/contact/%d/state", id), strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return env.do(req)
}

func TestUpdateState(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	staff := env.createUser(t, "mod", true)
	token := env.token(t, staff)
	msg := env.seedMessage(t, env.company, domain.KindCompany, domain.StatePending, time.Time{})

	for _, state := range []domain.State{domain.StateReplied, domain.StateDeleted, domain.StatePending} {
		rec := patchState(env, msg.ID, fmt.Sprintf(`{"state": %d}`, state), token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var got domain.ContactMessage
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, state, got.State)
		require.NotNil(t, got.UpdatedByID)
		assert.Equal(t, staff.ID, *got.UpdatedByID)
	}

	stored, err := env.store.GetMessage(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatePending, stored.State)
	assert.Nil(t, stored.CreatedByID)
}

func TestUpdateStateErrors(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	token := env.token(t, env.createUser(t, "mod", true))
	visitor := env.token(t, env.createUser(t, "visitor", false))
	msg := env.seedMessage(t, env.company, domain.KindCompany, domain.StatePending, time.Time{})

	cases := []struct {
		name   string
		id     uint
		body   string
		token  string
		status int
		error  string
	}{
		{"anonymous", msg.ID, `{"state": 1}`, "", http.StatusUnauthorized, "unauthorized"},
		{"not staff", msg.ID, `{"state": 1}`, visitor, http.StatusForbidden, "forbidden"},
		{"invalid state", msg.ID, `{"state": 3}`, token, http.StatusBadRequest, "bad_request"},
		{"missing state", msg.ID, `{}`, token, http.StatusBadRequest, "bad_request"},
		{"malformed", msg.ID, `{"state":`, token, http.StatusBadRequest, "bad_request"},
		{"unknown id", 9999, `{"state": 1}`, token, http.StatusNotFound, "not_found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := patchState(env, tc.id, tc.body, tc.token)
			assert.Equal(t, tc.status, rec.Code)
			var body ErrorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.error, body.Name)
			assert.NotEmpty(t, body.Message)
		})
	}

	stored, err := env.store.GetMessage(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatePending, stored.State)
}
