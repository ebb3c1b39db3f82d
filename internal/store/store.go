// Package store persists contact messages, companies and users.
package store

import (
	"context"

	"envelope/internal/domain"
)

// ListQuery selects one page of a company's contact messages.
type ListQuery struct {
	CompanyID uint
	Kind      domain.ContactKind
	// State filters by moderation state; nil lists every state.
	State    *domain.State
	Page     int
	PageSize int
}

func (q ListQuery) normalized() ListQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = DefaultPageSize
	}
	return q
}

func (q ListQuery) offset() int {
	return (q.Page - 1) * q.PageSize
}

// DefaultPageSize is the listing page size used by moderation views.
const DefaultPageSize = 10

// MessagePage is one page of a listing, newest first.
type MessagePage struct {
	Items    []domain.ContactMessage
	Total    int64
	Page     int
	PageSize int
}

// HasNext reports whether a later page exists.
func (p *MessagePage) HasNext() bool {
	return int64(p.Page*p.PageSize) < p.Total
}

// HasPrevious reports whether an earlier page exists.
func (p *MessagePage) HasPrevious() bool {
	return p.Page > 1
}

// NumPages is the number of pages, at least one.
func (p *MessagePage) NumPages() int {
	if p.Total == 0 {
		return 1
	}
	return int((p.Total + int64(p.PageSize) - 1) / int64(p.PageSize))
}

// ContactRepository persists contact messages.
type ContactRepository interface {
	CreateMessage(ctx context.Context, msg *domain.ContactMessage) error
	GetMessage(ctx context.Context, id uint) (*domain.ContactMessage, error)
	ListMessages(ctx context.Context, q ListQuery) (*MessagePage, error)
	UpdateMessageState(ctx context.Context, id uint, state domain.State, updatedBy *uint) (*domain.ContactMessage, error)
}

// CompanyRepository resolves contact addressees.
type CompanyRepository interface {
	GetCompanyBySlug(ctx context.Context, slug string) (*domain.Company, error)
	CreateCompany(ctx context.Context, c *domain.Company) error
}

// UserRepository loads and creates users.
type UserRepository interface {
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	CreateUser(ctx context.Context, u *domain.User) error
	TouchLastLogin(ctx context.Context, id uint) error
}

// Store is the full persistence surface used by the services.
type Store interface {
	ContactRepository
	CompanyRepository
	UserRepository
}

var (
	_ Store = (*GormStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
