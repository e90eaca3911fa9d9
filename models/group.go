package models

import "gorm.io/gorm"

// AllUsersGroupName is the well-known group every signup is added to
const AllUsersGroupName = "All Users"

// Group represents a named set of users for campaign sends
type Group struct {
	gorm.Model

	Name        string `gorm:"uniqueIndex;not null" json:"name"`
	Description string `json:"description"`

	// Relations
	Users []User `gorm:"many2many:user_groups;" json:"users,omitempty"`
}

// UserGroup is the membership join table
type UserGroup struct {
	UserID  uint `gorm:"primaryKey" json:"user_id"`
	GroupID uint `gorm:"primaryKey" json:"group_id"`
}

// CreateDefaultGroups seeds the well-known groups at startup so signup
// handlers never race on a lazy find-or-create
func CreateDefaultGroups(db *gorm.DB) error {
	defaultGroups := []Group{
		{
			Name:        AllUsersGroupName,
			Description: "All users who have signed up",
		},
	}
	for _, group := range defaultGroups {
		if err := db.FirstOrCreate(&group, "name = ?", group.Name).Error; err != nil {
			return err
		}
	}
	return nil
}
