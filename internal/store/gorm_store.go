package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"envelope/internal/domain"
	"envelope/internal/metrics"
	apperrors "envelope/pkg/errors"
)

// GormStore implements Store on top of gorm.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps an opened and migrated database.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func observe(op string, start time.Time, err error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = nil
	}
	metrics.RecordDBQuery(op, time.Since(start), err)
}

// CreateMessage inserts a new contact message.
func (s *GormStore) CreateMessage(ctx context.Context, msg *domain.ContactMessage) (err error) {
	start := time.Now()
	defer func() { observe("contact_create", start, err) }()
	if !msg.State.Valid() && msg.State != 0 {
		return apperrors.New(apperrors.ErrCodeValidation, fmt.Sprintf("invalid state %d", msg.State))
	}
	if err = s.db.WithContext(ctx).Omit("Company", "CreatedBy", "UpdatedBy").Create(msg).Error; err != nil {
		return fmt.Errorf("failed to save contact message: %w", err)
	}
	return nil
}

// GetMessage loads one message with its company.
func (s *GormStore) GetMessage(ctx context.Context, id uint) (*domain.ContactMessage, error) {
	start := time.Now()
	var msg domain.ContactMessage
	err := s.db.WithContext(ctx).Preload("Company").First(&msg, id).Error
	observe("contact_get", start, err)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("contact message %d not found", id)
		}
		return nil, fmt.Errorf("failed to get contact message: %w", err)
	}
	return &msg, nil
}

// ListMessages returns one page of a company's messages, newest first.
func (s *GormStore) ListMessages(ctx context.Context, q ListQuery) (*MessagePage, error) {
	start := time.Now()
	q = q.normalized()

	query := s.db.WithContext(ctx).Model(&domain.ContactMessage{}).Where("company_id = ?", q.CompanyID)
	if q.Kind != "" {
		query = query.Where("kind = ?", q.Kind)
	}
	if q.State != nil {
		query = query.Where("state = ?", *q.State)
	}
	// Count and Find below must not share a statement.
	query = query.Session(&gorm.Session{})

	page := &MessagePage{Page: q.Page, PageSize: q.PageSize}
	if err := query.Count(&page.Total).Error; err != nil {
		observe("contact_list", start, err)
		return nil, fmt.Errorf("failed to count contact messages: %w", err)
	}
	err := query.Order("created_at DESC").Order("id DESC").
		Offset(q.offset()).Limit(q.PageSize).
		Find(&page.Items).Error
	observe("contact_list", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch contact messages: %w", err)
	}
	return page, nil
}

// UpdateMessageState sets the moderation state and records who changed it.
func (s *GormStore) UpdateMessageState(ctx context.Context, id uint, state domain.State, updatedBy *uint) (*domain.ContactMessage, error) {
	if !state.Valid() {
		return nil, apperrors.New(apperrors.ErrCodeValidation, fmt.Sprintf("invalid state %d", state))
	}
	msg, err := s.GetMessage(ctx, id)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	msg.State = state
	msg.UpdatedByID = updatedBy
	msg.UpdatedAt = time.Now().UTC()
	err = s.db.WithContext(ctx).Model(msg).Select("State", "UpdatedByID", "UpdatedAt").Updates(msg).Error
	observe("contact_update_state", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to update contact message state: %w", err)
	}
	return msg, nil
}

// GetCompanyBySlug resolves a company by its slug.
func (s *GormStore) GetCompanyBySlug(ctx context.Context, slug string) (*domain.Company, error) {
	start := time.Now()
	var company domain.Company
	err := s.db.WithContext(ctx).Where("slug = ?", strings.ToLower(strings.TrimSpace(slug))).First(&company).Error
	observe("company_get", start, err)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("company %q not found", slug)
		}
		return nil, fmt.Errorf("failed to get company: %w", err)
	}
	return &company, nil
}

// CreateCompany inserts a company; a duplicate slug is a conflict.
func (s *GormStore) CreateCompany(ctx context.Context, c *domain.Company) error {
	if _, err := s.GetCompanyBySlug(ctx, c.Slug); err == nil {
		return apperrors.New(apperrors.ErrCodeConflict, fmt.Sprintf("company %q already exists", c.Slug))
	} else if !apperrors.IsNotFound(err) {
		return err
	}
	start := time.Now()
	err := s.db.WithContext(ctx).Create(c).Error
	observe("company_create", start, err)
	if err != nil {
		return fmt.Errorf("failed to create company: %w", err)
	}
	return nil
}

// GetUserByUsername loads a user by username.
func (s *GormStore) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	start := time.Now()
	var user domain.User
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	observe("user_get", start, err)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("user %q not found", username)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// CreateUser inserts a user; a taken username or email is a conflict.
func (s *GormStore) CreateUser(ctx context.Context, u *domain.User) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&domain.User{}).
		Where("username = ? OR email = ?", u.Username, u.Email).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check existing users: %w", err)
	}
	if count > 0 {
		return apperrors.New(apperrors.ErrCodeConflict, "username or email already registered")
	}
	start := time.Now()
	err := s.db.WithContext(ctx).Create(u).Error
	observe("user_create", start, err)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// TouchLastLogin stamps the user's last login time.
func (s *GormStore) TouchLastLogin(ctx context.Context, id uint) error {
	err := s.db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).
		Update("last_login", time.Now().UTC()).Error
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}
