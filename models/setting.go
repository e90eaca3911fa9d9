package models

import "gorm.io/gorm"

// Setting keys used by the email template wrapper
const (
	SettingEmailHeader = "email_header"
	SettingEmailFooter = "email_footer"
)

// Setting is a key/value row for admin-editable configuration
type Setting struct {
	gorm.Model

	Key   string `gorm:"uniqueIndex;not null" json:"key"`
	Value string `gorm:"type:text" json:"value"`
}
