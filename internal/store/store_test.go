package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"envelope/internal/config"
	"envelope/internal/database"
	"envelope/internal/domain"
	apperrors "envelope/pkg/errors"
)

func newGormStore(t *testing.T) Store {
	t.Helper()
	db, err := database.Open(&config.DatabaseConfig{URL: "sqlite:///" + filepath.Join(t.TempDir(), "store.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	return NewGormStore(db)
}

func eachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryStore()) })
	t.Run("gorm", func(t *testing.T) { fn(t, newGormStore(t)) })
}

func seedCompany(t *testing.T, s Store, slug string) *domain.Company {
	t.Helper()
	c := &domain.Company{Slug: slug, Name: slug + " Ltd"}
	require.NoError(t, s.CreateCompany(context.Background(), c))
	return c
}

func newMessage(companyID uint, kind domain.ContactKind, state domain.State, created time.Time) *domain.ContactMessage {
	return &domain.ContactMessage{
		Kind:           kind,
		State:          state,
		CompanyID:      companyID,
		Sender:         "Ada",
		UserEmail:      "ada@example.com",
		ContactCompany: "Analytical Engines",
		ContactPhone:   "+44 20 7946 0000",
		Subject:        "First choice",
		MessageBox:     "Hello there!",
		CreatedAt:      created,
	}
}

func TestCreateAndGetMessage(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		acme := seedCompany(t, s, "acme")

		msg := newMessage(acme.ID, domain.KindCompany, 0, time.Time{})
		require.NoError(t, s.CreateMessage(ctx, msg))
		require.NotZero(t, msg.ID)

		got, err := s.GetMessage(ctx, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatePending, got.State)
		assert.Nil(t, got.CreatedByID)
		assert.False(t, got.CreatedAt.IsZero())
		require.NotNil(t, got.Company)
		assert.Equal(t, "acme", got.Company.Slug)

		_, err = s.GetMessage(ctx, msg.ID+100)
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func TestListMessagesFiltersOrdersAndPaginates(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		acme := seedCompany(t, s, "acme")
		other := seedCompany(t, s, "other")
		base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

		for i := 0; i < 12; i++ {
			require.NoError(t, s.CreateMessage(ctx, newMessage(acme.ID, domain.KindCompany, domain.StateReplied, base.Add(time.Duration(i)*time.Minute))))
		}
		require.NoError(t, s.CreateMessage(ctx, newMessage(acme.ID, domain.KindCompany, domain.StatePending, base.Add(time.Hour))))
		require.NoError(t, s.CreateMessage(ctx, newMessage(acme.ID, domain.KindProduct, domain.StateReplied, base.Add(time.Hour))))
		require.NoError(t, s.CreateMessage(ctx, newMessage(other.ID, domain.KindCompany, domain.StateReplied, base.Add(time.Hour))))

		replied := domain.StateReplied
		page, err := s.ListMessages(ctx, ListQuery{CompanyID: acme.ID, Kind: domain.KindCompany, State: &replied, Page: 1, PageSize: DefaultPageSize})
		require.NoError(t, err)

		assert.EqualValues(t, 12, page.Total)
		require.Len(t, page.Items, 10)
		assert.True(t, page.HasNext())
		assert.False(t, page.HasPrevious())
		assert.Equal(t, 2, page.NumPages())
		for i, item := range page.Items {
			assert.Equal(t, domain.StateReplied, item.State)
			assert.Equal(t, acme.ID, item.CompanyID)
			if i > 0 {
				assert.True(t, item.CreatedAt.Before(page.Items[i-1].CreatedAt), "newest first")
			}
		}

		page2, err := s.ListMessages(ctx, ListQuery{CompanyID: acme.ID, Kind: domain.KindCompany, State: &replied, Page: 2})
		require.NoError(t, err)
		assert.Len(t, page2.Items, 2)
		assert.False(t, page2.HasNext())

		all, err := s.ListMessages(ctx, ListQuery{CompanyID: acme.ID, Kind: domain.KindCompany})
		require.NoError(t, err)
		assert.EqualValues(t, 13, all.Total)
		assert.Equal(t, domain.StatePending, all.Items[0].State)
	})
}

func TestUpdateMessageState(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		acme := seedCompany(t, s, "acme")
		created := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
		msg := newMessage(acme.ID, domain.KindSolution, domain.StatePending, created)
		require.NoError(t, s.CreateMessage(ctx, msg))

		moderator := uint(7)
		lastUpdated := created
		for _, st := range []domain.State{domain.StateDeleted, domain.StatePending, domain.StateReplied} {
			updated, err := s.UpdateMessageState(ctx, msg.ID, st, &moderator)
			require.NoError(t, err)
			assert.Equal(t, st, updated.State)
			require.NotNil(t, updated.UpdatedByID)
			assert.Equal(t, moderator, *updated.UpdatedByID)

			stored, err := s.GetMessage(ctx, msg.ID)
			require.NoError(t, err)
			assert.True(t, stored.CreatedAt.Equal(created), "created must not change: got %s", stored.CreatedAt)
			assert.False(t, stored.UpdatedAt.Before(lastUpdated), "updated must not move backwards")
			assert.True(t, stored.UpdatedAt.After(created.Add(30*time.Minute)), "updated must refresh on change")
			lastUpdated = stored.UpdatedAt
		}

		_, err := s.UpdateMessageState(ctx, msg.ID, domain.State(3), nil)
		assert.Equal(t, apperrors.ErrCodeValidation, apperrors.CodeOf(err))

		_, err = s.UpdateMessageState(ctx, msg.ID+50, domain.StateReplied, nil)
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func TestCompanyAndUserConflicts(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		seedCompany(t, s, "acme")
		err := s.CreateCompany(ctx, &domain.Company{Slug: " ACME ", Name: "dup"})
		assert.True(t, apperrors.IsConflict(err))

		got, err := s.GetCompanyBySlug(ctx, "Acme")
		require.NoError(t, err)
		assert.Equal(t, "acme", got.Slug)

		u := &domain.User{Username: "mod", Email: "mod@example.com", HashedPassword: "x", IsActive: true, IsStaff: true}
		require.NoError(t, s.CreateUser(ctx, u))
		err = s.CreateUser(ctx, &domain.User{Username: "mod2", Email: "mod@example.com", HashedPassword: "x"})
		assert.True(t, apperrors.IsConflict(err))

		require.NoError(t, s.TouchLastLogin(ctx, u.ID))
		loaded, err := s.GetUserByUsername(ctx, "mod")
		require.NoError(t, err)
		assert.NotNil(t, loaded.LastLogin)
		assert.True(t, loaded.CanModerate())
	})
}
