package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"envelope/internal/domain"
	apperrors "envelope/pkg/errors"
)

// MemoryStore keeps everything in-process. It backs tests and local demos.
type MemoryStore struct {
	mu        sync.RWMutex
	messages  map[uint]domain.ContactMessage
	companies map[uint]domain.Company
	users     map[uint]domain.User
	nextID    uint
	now       func() time.Time
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages:  make(map[uint]domain.ContactMessage),
		companies: make(map[uint]domain.Company),
		users:     make(map[uint]domain.User),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryStore) id() uint {
	m.nextID++
	return m.nextID
}

// CreateMessage stores a copy of msg and assigns its ID and timestamps.
func (m *MemoryStore) CreateMessage(_ context.Context, msg *domain.ContactMessage) error {
	if msg.State == 0 {
		msg.State = domain.StatePending
	}
	if !msg.State.Valid() {
		return apperrors.New(apperrors.ErrCodeValidation, fmt.Sprintf("invalid state %d", msg.State))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.companies[msg.CompanyID]; !ok {
		return fmt.Errorf("failed to save contact message: company %d does not exist", msg.CompanyID)
	}
	msg.ID = m.id()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = m.now()
	}
	msg.UpdatedAt = msg.CreatedAt
	stored := *msg
	stored.Company = nil
	m.messages[msg.ID] = stored
	return nil
}

// GetMessage returns a copy of the message with its company attached.
func (m *MemoryStore) GetMessage(_ context.Context, id uint) (*domain.ContactMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msg, ok := m.messages[id]
	if !ok {
		return nil, apperrors.NotFound("contact message %d not found", id)
	}
	if c, ok := m.companies[msg.CompanyID]; ok {
		msg.Company = &c
	}
	return &msg, nil
}

// ListMessages filters, sorts newest first and paginates.
func (m *MemoryStore) ListMessages(_ context.Context, q ListQuery) (*MessagePage, error) {
	q = q.normalized()

	m.mu.RLock()
	matched := make([]domain.ContactMessage, 0)
	for _, msg := range m.messages {
		if msg.CompanyID != q.CompanyID {
			continue
		}
		if q.Kind != "" && msg.Kind != q.Kind {
			continue
		}
		if q.State != nil && msg.State != *q.State {
			continue
		}
		matched = append(matched, msg)
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	page := &MessagePage{Total: int64(len(matched)), Page: q.Page, PageSize: q.PageSize}
	lo := q.offset()
	if lo > len(matched) {
		lo = len(matched)
	}
	hi := lo + q.PageSize
	if hi > len(matched) {
		hi = len(matched)
	}
	page.Items = matched[lo:hi]
	return page, nil
}

// UpdateMessageState sets the moderation state of a message.
func (m *MemoryStore) UpdateMessageState(ctx context.Context, id uint, state domain.State, updatedBy *uint) (*domain.ContactMessage, error) {
	if !state.Valid() {
		return nil, apperrors.New(apperrors.ErrCodeValidation, fmt.Sprintf("invalid state %d", state))
	}
	m.mu.Lock()
	msg, ok := m.messages[id]
	if !ok {
		m.mu.Unlock()
		return nil, apperrors.NotFound("contact message %d not found", id)
	}
	msg.State = state
	msg.UpdatedByID = updatedBy
	msg.UpdatedAt = m.now()
	m.messages[id] = msg
	m.mu.Unlock()
	return m.GetMessage(ctx, id)
}

// GetCompanyBySlug resolves a company by slug.
func (m *MemoryStore) GetCompanyBySlug(_ context.Context, slug string) (*domain.Company, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.companies {
		if c.Slug == slug {
			return &c, nil
		}
	}
	return nil, apperrors.NotFound("company %q not found", slug)
}

// CreateCompany stores a company; a duplicate slug is a conflict.
func (m *MemoryStore) CreateCompany(_ context.Context, c *domain.Company) error {
	c.Slug = strings.ToLower(strings.TrimSpace(c.Slug))
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.companies {
		if existing.Slug == c.Slug {
			return apperrors.New(apperrors.ErrCodeConflict, fmt.Sprintf("company %q already exists", c.Slug))
		}
	}
	c.ID = m.id()
	c.CreatedAt = m.now()
	c.UpdatedAt = c.CreatedAt
	m.companies[c.ID] = *c
	return nil
}

// GetUserByUsername loads a user by username.
func (m *MemoryStore) GetUserByUsername(_ context.Context, username string) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, apperrors.NotFound("user %q not found", username)
}

// CreateUser stores a user; a taken username or email is a conflict.
func (m *MemoryStore) CreateUser(_ context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return apperrors.New(apperrors.ErrCodeConflict, "username or email already registered")
		}
	}
	u.ID = m.id()
	u.CreatedAt = m.now()
	u.UpdatedAt = u.CreatedAt
	m.users[u.ID] = *u
	return nil
}

// TouchLastLogin stamps the user's last login time.
func (m *MemoryStore) TouchLastLogin(_ context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return apperrors.NotFound("user %d not found", id)
	}
	now := m.now()
	u.LastLogin = &now
	m.users[id] = u
	return nil
}
