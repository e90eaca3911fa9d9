package models

import (
	"time"

	"gorm.io/gorm"
)

// User represents a user account in the system
type User struct {
	gorm.Model

	Email        string  `gorm:"uniqueIndex;not null" json:"email"`
	FirstName    *string `json:"first_name,omitempty"`
	LastName     *string `json:"last_name,omitempty"`
	PasswordHash *string `json:"-"` // only set for credentialed (admin) accounts

	// Role is either "user" or "admin"
	Role string `gorm:"default:'user';not null" json:"role"`

	// AccessToken builds the personalized video and unsubscribe links
	AccessToken string `gorm:"uniqueIndex;not null" json:"-"`

	Unsubscribed   bool       `gorm:"default:false" json:"unsubscribed"`
	UnsubscribedAt *time.Time `json:"unsubscribed_at,omitempty"`
	LastLoginAt    *time.Time `json:"last_login_at,omitempty"`

	// Relations
	Groups      []Group            `gorm:"many2many:user_groups;" json:"groups,omitempty"`
	Enrollments []CourseEnrollment `gorm:"foreignKey:UserID" json:"enrollments,omitempty"`
}

// FullName returns "first last" trimmed, falling back to the email address
// when both names are absent. Keep in sync with the fullName merge tag.
func (u *User) FullName() string {
	name := ""
	if u.FirstName != nil {
		name = *u.FirstName
	}
	if u.LastName != nil && *u.LastName != "" {
		if name != "" {
			name += " "
		}
		name += *u.LastName
	}
	if name == "" {
		return u.Email
	}
	return name
}

// IsAdmin reports whether the user holds the admin role
func (u *User) IsAdmin() bool {
	return u.Role == "admin"
}
