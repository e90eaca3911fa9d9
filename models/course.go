package models

import (
	"time"

	"gorm.io/gorm"
)

// Course represents a video course
type Course struct {
	gorm.Model

	Title       string `gorm:"not null" json:"title"`
	Slug        string `gorm:"uniqueIndex;not null" json:"slug"`
	Description string `json:"description"`
	Published   bool   `gorm:"default:false;index" json:"published"`

	// Relations
	Modules     []CourseModule     `gorm:"foreignKey:CourseID" json:"modules,omitempty"`
	Enrollments []CourseEnrollment `gorm:"foreignKey:CourseID" json:"enrollments,omitempty"`
}

// CourseModule groups lessons within a course
type CourseModule struct {
	gorm.Model

	CourseID uint   `gorm:"not null;index" json:"course_id"`
	Title    string `gorm:"not null" json:"title"`
	Position int    `gorm:"not null" json:"position"`

	// Relations
	Lessons []Lesson `gorm:"foreignKey:ModuleID" json:"lessons,omitempty"`
}

// Lesson is one gated video within a module
type Lesson struct {
	gorm.Model

	ModuleID    uint   `gorm:"not null;index" json:"module_id"`
	Title       string `gorm:"not null" json:"title"`
	Position    int    `gorm:"not null" json:"position"`
	VideoURL    string `json:"video_url"`
	Description string `json:"description"`

	// Duration in seconds
	Duration int `gorm:"default:0" json:"duration"`
}

// CourseEnrollment links a user to a course and tracks overall progress
type CourseEnrollment struct {
	gorm.Model

	UserID   uint `gorm:"not null;uniqueIndex:idx_enrollment_user_course" json:"user_id"`
	CourseID uint `gorm:"not null;uniqueIndex:idx_enrollment_user_course" json:"course_id"`

	// Progress is a 0-100 percentage over all lessons in the course
	Progress    int        `gorm:"default:0" json:"progress"`
	Completed   bool       `gorm:"default:false" json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Relations
	Course Course `json:"course,omitempty"`
}

// LessonProgress tracks a user's state for a single lesson
type LessonProgress struct {
	gorm.Model

	UserID   uint `gorm:"not null;uniqueIndex:idx_progress_user_lesson" json:"user_id"`
	LessonID uint `gorm:"not null;uniqueIndex:idx_progress_user_lesson" json:"lesson_id"`

	Completed   bool       `gorm:"default:false" json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// WatchTime in seconds
	WatchTime int `gorm:"default:0" json:"watch_time"`

	// Relations
	Lesson Lesson `json:"-"`
}
