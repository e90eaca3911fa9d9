package models

import (
	"time"

	"gorm.io/gorm"
)

// Lifecycle events a flow can be bound to
const (
	TriggerSignup           = "signup"
	TriggerCourseEnrollment = "course_enrollment"
	TriggerLessonCompletion = "lesson_completion"
	TriggerCourseCompletion = "course_completion"
	TriggerVideoWatch       = "video_watch"
)

// FlowTriggers lists every valid trigger event
var FlowTriggers = []string{
	TriggerSignup,
	TriggerCourseEnrollment,
	TriggerLessonCompletion,
	TriggerCourseCompletion,
	TriggerVideoWatch,
}

// IsValidTrigger reports whether name is a known trigger event
func IsValidTrigger(name string) bool {
	for _, t := range FlowTriggers {
		if t == name {
			return true
		}
	}
	return false
}

// Execution statuses. Transitions are monotonic:
// pending -> sent | failed | skipped, terminal states are never revisited.
const (
	ExecutionPending = "pending"
	ExecutionSent    = "sent"
	ExecutionFailed  = "failed"
	ExecutionSkipped = "skipped"
)

// EmailFlow is an automated email sequence bound to a lifecycle trigger
type EmailFlow struct {
	gorm.Model

	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`

	// TriggerEvent is stored as trigger_event because "trigger" is a
	// keyword in some of the dialects we run against
	TriggerEvent string `gorm:"column:trigger_event;not null;index" json:"trigger"`

	// No column default on purpose: gorm omits zero-value fields that
	// carry a default tag at insert, which would silently flip a flow
	// created disabled back to enabled. Creators always set this.
	Enabled bool `gorm:"not null;index" json:"enabled"`

	// Relations
	Steps      []FlowStep      `gorm:"foreignKey:FlowID" json:"steps,omitempty"`
	Executions []FlowExecution `gorm:"foreignKey:FlowID" json:"-"`
}

// FlowStep is one email within a flow. StepNumber defines authoring order;
// scheduling only looks at DelayDays.
type FlowStep struct {
	gorm.Model

	FlowID uint `gorm:"not null;index" json:"flow_id"`

	StepNumber int `gorm:"not null" json:"step_number"`
	DelayDays  int `gorm:"not null;default:0" json:"delay_days"`

	Subject     string `gorm:"not null" json:"subject"`
	HTMLContent string `gorm:"type:text" json:"html_content"`

	// TextContent is the plain-text fallback, derived from HTMLContent
	// at creation time when not supplied explicitly
	TextContent string `gorm:"type:text" json:"text_content"`

	// Same as EmailFlow.Enabled: no column default so false persists
	Enabled bool `gorm:"not null" json:"enabled"`
}

// FlowExecution is one scheduled send of a step for one user.
// There is deliberately no uniqueness constraint on (user, flow, step):
// re-triggering an event restarts the sequence. See FLOW_ALLOW_RETRIGGER.
type FlowExecution struct {
	gorm.Model

	UserID uint `gorm:"not null;index" json:"user_id"`
	FlowID uint `gorm:"not null;index" json:"flow_id"`
	StepID uint `gorm:"not null;index" json:"step_id"`

	ScheduledFor time.Time `gorm:"not null;index" json:"scheduled_for"`
	Status       string    `gorm:"default:'pending';index" json:"status"`

	SentAt *time.Time `json:"sent_at,omitempty"`
	Error  string     `json:"error,omitempty"`

	// Relations. The sweeper reads Step content live at send time, so
	// step edits affect already-scheduled executions.
	Flow EmailFlow `json:"-"`
	Step FlowStep  `json:"-"`
}
