package domain

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Company is a directory entry that visitors can contact
type Company struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Slug      string    `gorm:"uniqueIndex;size:100;not null" json:"slug"`
	Name      string    `gorm:"not null" json:"name"`
	Email     *string   `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for Company
func (Company) TableName() string {
	return "companies"
}

// BeforeCreate hook
func (c *Company) BeforeCreate(tx *gorm.DB) error {
	c.Slug = strings.ToLower(strings.TrimSpace(c.Slug))
	c.CreatedAt = time.Now().UTC()
	c.UpdatedAt = c.CreatedAt
	return nil
}

// NotifyAddress returns the company's notification address, or "" when none is set.
func (c *Company) NotifyAddress() string {
	if c.Email == nil {
		return ""
	}
	return strings.TrimSpace(*c.Email)
}
