package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"envelope/internal/store"
	"envelope/internal/util"
	apperrors "envelope/pkg/errors"
)

func TestCreateUser(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	var out bytes.Buffer

	err := createUser(ctx, st, &out, userParams{
		Username: "admin",
		Email:    " Admin@Example.com ",
		Password: "correct horse",
		FullName: "System Administrator",
		Admin:    true,
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "User created: admin")

	u, err := st.GetUserByUsername(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, "admin@example.com", u.Email)
	assert.True(t, u.IsActive)
	assert.True(t, u.IsStaff)
	assert.True(t, u.CanModerate())
	assert.Equal(t, "System Administrator", u.DisplayName())
	assert.True(t, util.CheckPasswordHash("correct horse", u.HashedPassword))

	err = createUser(ctx, st, &out, userParams{Username: "admin", Email: "other@example.com", Password: "correct horse"})
	assert.True(t, apperrors.IsConflict(err))

	err = createUser(ctx, st, &out, userParams{Username: "short", Email: "s@example.com", Password: "123"})
	assert.ErrorContains(t, err, "at least 8")
}

func TestCreateCompany(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	var out bytes.Buffer

	require.NoError(t, createCompany(ctx, st, &out, "Acme", "Acme Corp", "sales@acme.test"))
	assert.Contains(t, out.String(), "/contact/acme/")

	c, err := st.GetCompanyBySlug(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "sales@acme.test", c.NotifyAddress())

	require.NoError(t, createCompany(ctx, st, &out, "globex", "Globex", ""))
	c, err = st.GetCompanyBySlug(ctx, "globex")
	require.NoError(t, err)
	assert.Empty(t, c.NotifyAddress())

	assert.Error(t, createCompany(ctx, st, &out, "", "Nameless", ""))
	assert.True(t, apperrors.IsConflict(createCompany(ctx, st, &out, "acme", "Again", "")))
}
