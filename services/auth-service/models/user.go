package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"campus-issue-reporting/pkg/auth"
)

// User is a registered account. Citizens self-register; staff and officer accounts are created
// by staff. Department only matters for officers.
type User struct {
	ID         string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	Email      string         `gorm:"uniqueIndex;not null" json:"email"`
	Password   string         `gorm:"not null" json:"-"`
	Name       string         `gorm:"not null" json:"name"`
	Role       string         `gorm:"type:varchar(20);not null;default:'citizen';index" json:"role"`
	Department string         `gorm:"type:varchar(100)" json:"department,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

func (u *User) TokenSubject() auth.User {
	return auth.User{
		ID:         u.ID,
		Email:      u.Email,
		Name:       u.Name,
		Role:       u.Role,
		Department: u.Department,
	}
}
