package domain

import (
	"time"

	"gorm.io/gorm"
)

// ContactKind identifies what a contact message is about. The three kinds share one
// table and differ only by this discriminator.
type ContactKind string

const (
	KindCompany  ContactKind = "company"
	KindProduct  ContactKind = "product"
	KindSolution ContactKind = "solution"
)

// ContactKinds lists every kind in display order.
var ContactKinds = []ContactKind{KindCompany, KindProduct, KindSolution}

// Valid reports whether k is a known kind.
func (k ContactKind) Valid() bool {
	switch k {
	case KindCompany, KindProduct, KindSolution:
		return true
	}
	return false
}

// ContactMessage represents one inquiry submitted to a company
type ContactMessage struct {
	ID              uint        `gorm:"primaryKey" json:"id"`
	Kind            ContactKind `gorm:"size:16;not null;index:idx_contact_company_kind" json:"kind"`
	State           State       `gorm:"type:smallint;not null;default:2;index" json:"state"`
	CompanyID       uint        `gorm:"not null;index:idx_contact_company_kind" json:"company_id"`
	Company         *Company    `gorm:"constraint:OnDelete:CASCADE" json:"company,omitempty"`
	Sender          string      `gorm:"not null" json:"sender"`
	UserEmail       string      `gorm:"size:254;not null" json:"user_email"`
	ContactCompany  string      `gorm:"type:text;not null" json:"contact_company"`
	ContactJobTitle string      `gorm:"type:text" json:"contact_job_title"`
	ContactPhone    string      `gorm:"size:128;not null" json:"contact_phone"`
	Subject         string      `gorm:"type:text;not null" json:"subject"`
	MessageBox      string      `gorm:"type:text;not null" json:"message_box"`
	CreatedByID     *uint       `json:"created_by_id"`
	CreatedBy       *User       `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	UpdatedByID     *uint       `json:"updated_by_id"`
	UpdatedBy       *User       `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt       time.Time   `gorm:"index" json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// TableName specifies the table name for ContactMessage
func (ContactMessage) TableName() string {
	return "contact_messages"
}

// BeforeCreate hook
func (m *ContactMessage) BeforeCreate(tx *gorm.DB) error {
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = m.CreatedAt
	if m.State == 0 {
		m.State = StatePending
	}
	return nil
}

// BeforeUpdate hook
func (m *ContactMessage) BeforeUpdate(tx *gorm.DB) error {
	m.UpdatedAt = time.Now().UTC()
	return nil
}
