package utils

import (
	"fmt"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"courselite/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Group{},
		&models.UserGroup{},
		&models.Course{},
		&models.CourseModule{},
		&models.Lesson{},
		&models.CourseEnrollment{},
		&models.LessonProgress{},
		&models.EmailFlow{},
		&models.FlowStep{},
		&models.FlowExecution{},
		&models.Setting{},
	))

	return db
}

// fakeMailer records sends and can be told to fail for given recipients.
// onSend, when set, runs while the delivery is in flight, before the
// caller observes the result.
type fakeMailer struct {
	mu      sync.Mutex
	sent    []SendEmailParams
	failFor map[string]bool
	onSend  func(SendEmailParams)
}

func newFakeMailer() *fakeMailer {
	return &fakeMailer{failFor: make(map[string]bool)}
}

func (m *fakeMailer) Send(params SendEmailParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFor[params.To] {
		return fmt.Errorf("smtp: delivery refused for %s", params.To)
	}
	if m.onSend != nil {
		m.onSend(params)
	}
	m.sent = append(m.sent, params)
	return nil
}

func (m *fakeMailer) sentTo(email string) []SendEmailParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []SendEmailParams
	for _, p := range m.sent {
		if p.To == email {
			out = append(out, p)
		}
	}
	return out
}

func (m *fakeMailer) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}
