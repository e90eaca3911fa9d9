package controller

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"courselite/models"
	"courselite/utils"
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
	require.NoError(t, models.CreateDefaultGroups(db))

	return db
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []utils.SendEmailParams
	fail bool
}

func (m *recordingMailer) Send(params utils.SendEmailParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return fmt.Errorf("smtp: connection refused")
	}
	m.sent = append(m.sent, params)
	return nil
}

func (m *recordingMailer) sentTo(email string) []utils.SendEmailParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []utils.SendEmailParams
	for _, p := range m.sent {
		if p.To == email {
			out = append(out, p)
		}
	}
	return out
}

func newSignupApp(t *testing.T) (*fiber.App, *recordingMailer, *gorm.DB) {
	t.Helper()

	db := newTestDB(t)
	mailer := &recordingMailer{}
	engine := &utils.FlowEngine{
		DB:             db,
		Mailer:         mailer,
		Logger:         log.New(io.Discard, "", 0),
		AppURL:         "https://courses.example.com",
		AllowRetrigger: true,
	}
	sc := NewSignupController(db, mailer, engine, log.New(io.Discard, "", 0))

	app := fiber.New()
	app.Post("/api/signup", sc.Signup)
	app.Get("/watch", sc.Watch)
	app.Get("/unsubscribe", sc.Unsubscribe)

	return app, mailer, db
}

func postJSON(t *testing.T, app *fiber.App, path string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	return resp, decodeBody(t, resp)
}

func getJSON(t *testing.T, app *fiber.App, path string) (*http.Response, map[string]interface{}) {
	t.Helper()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil), -1)
	require.NoError(t, err)

	return resp, decodeBody(t, resp)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()

	defer resp.Body.Close()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestSignup_CreatesUserWithGroupWelcomeAndFlow(t *testing.T) {
	app, mailer, db := newSignupApp(t)

	flow := models.EmailFlow{
		Name:         "Welcome sequence",
		TriggerEvent: models.TriggerSignup,
		Enabled:      true,
		Steps: []models.FlowStep{
			{StepNumber: 1, DelayDays: 0, Subject: "Hi {{firstName}}", HTMLContent: "<p>hi</p>", Enabled: true},
		},
	}
	require.NoError(t, db.Create(&flow).Error)

	resp, body := postJSON(t, app, "/api/signup", map[string]string{
		"email":      "Sarah@Example.COM",
		"first_name": "Sarah",
		"last_name":  "Johnson",
	})

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])

	var user models.User
	require.NoError(t, db.Where("email = ?", "sarah@example.com").First(&user).Error)
	assert.Equal(t, "Sarah", *user.FirstName)
	assert.Equal(t, "user", user.Role)
	assert.NotEmpty(t, user.AccessToken)

	// Membership in the seeded All Users group
	var membership int64
	require.NoError(t, db.Model(&models.UserGroup{}).
		Joins("JOIN groups ON groups.id = user_groups.group_id").
		Where("user_groups.user_id = ? AND groups.name = ?", user.ID, models.AllUsersGroupName).
		Count(&membership).Error)
	assert.Equal(t, int64(1), membership)

	// Welcome email went out with the personal watch link
	sent := mailer.sentTo("sarah@example.com")
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].HTML, "/watch?token="+user.AccessToken)

	// Signup flow scheduled
	var executions int64
	require.NoError(t, db.Model(&models.FlowExecution{}).
		Where("user_id = ? AND status = ?", user.ID, models.ExecutionPending).
		Count(&executions).Error)
	assert.Equal(t, int64(1), executions)
}

func TestSignup_DuplicateResendsWelcome(t *testing.T) {
	app, mailer, db := newSignupApp(t)

	resp, _ := postJSON(t, app, "/api/signup", map[string]string{
		"email": "s@x.com", "first_name": "Sarah",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := postJSON(t, app, "/api/signup", map[string]string{
		"email": "S@X.com", "first_name": "Sarah",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["already_exists"])

	var users int64
	require.NoError(t, db.Model(&models.User{}).Where("email = ?", "s@x.com").Count(&users).Error)
	assert.Equal(t, int64(1), users)
	assert.Len(t, mailer.sentTo("s@x.com"), 2)
}

func TestSignup_RejectsInvalidEmail(t *testing.T) {
	app, _, db := newSignupApp(t)

	resp, body := postJSON(t, app, "/api/signup", map[string]string{
		"email": "not-an-email", "first_name": "Sarah",
	})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.NotEmpty(t, body["error"])

	var users int64
	require.NoError(t, db.Model(&models.User{}).Count(&users).Error)
	assert.Equal(t, int64(0), users)
}

func TestSignup_SurvivesMailerFailure(t *testing.T) {
	app, mailer, db := newSignupApp(t)
	mailer.fail = true

	resp, body := postJSON(t, app, "/api/signup", map[string]string{
		"email": "s@x.com", "first_name": "Sarah",
	})

	// Delivery is best effort, the account still gets created
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])

	var users int64
	require.NoError(t, db.Model(&models.User{}).Where("email = ?", "s@x.com").Count(&users).Error)
	assert.Equal(t, int64(1), users)
}

func TestWatch_ReturnsPublishedCoursesAndTriggersFlow(t *testing.T) {
	app, _, db := newSignupApp(t)

	user := models.User{Email: "s@x.com", AccessToken: "tok123"}
	require.NoError(t, db.Create(&user).Error)

	require.NoError(t, db.Create(&models.Course{Title: "Published", Slug: "published", Published: true}).Error)
	require.NoError(t, db.Create(&models.Course{Title: "Draft", Slug: "draft", Published: false}).Error)

	flow := models.EmailFlow{
		Name:         "Watched",
		TriggerEvent: models.TriggerVideoWatch,
		Enabled:      true,
		Steps: []models.FlowStep{
			{StepNumber: 1, DelayDays: 1, Subject: "Next", HTMLContent: "<p>n</p>", Enabled: true},
		},
	}
	require.NoError(t, db.Create(&flow).Error)

	resp, body := getJSON(t, app, "/watch?token=tok123")

	require.Equal(t, http.StatusOK, resp.StatusCode)
	courses, ok := body["courses"].([]interface{})
	require.True(t, ok)
	require.Len(t, courses, 1)

	var executions int64
	require.NoError(t, db.Model(&models.FlowExecution{}).
		Where("user_id = ?", user.ID).Count(&executions).Error)
	assert.Equal(t, int64(1), executions)
}

func TestWatch_InvalidToken(t *testing.T) {
	app, _, _ := newSignupApp(t)

	resp, body := getJSON(t, app, "/watch?token=nope")

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.NotEmpty(t, body["error"])
}

func TestUnsubscribe_MarksUserAndSkipsPending(t *testing.T) {
	app, _, db := newSignupApp(t)

	user := models.User{Email: "s@x.com", AccessToken: "tok123"}
	require.NoError(t, db.Create(&user).Error)

	flow := models.EmailFlow{
		Name:         "Welcome",
		TriggerEvent: models.TriggerSignup,
		Enabled:      true,
		Steps: []models.FlowStep{
			{StepNumber: 1, DelayDays: 3, Subject: "S", HTMLContent: "<p>s</p>", Enabled: true},
		},
	}
	require.NoError(t, db.Create(&flow).Error)
	require.NoError(t, db.Create(&models.FlowExecution{
		UserID:       user.ID,
		FlowID:       flow.ID,
		StepID:       flow.Steps[0].ID,
		ScheduledFor: db.NowFunc(),
		Status:       models.ExecutionPending,
	}).Error)

	resp, body := getJSON(t, app, "/unsubscribe?token=tok123")

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(1), body["cancelled"])

	var reloaded models.User
	require.NoError(t, db.First(&reloaded, user.ID).Error)
	assert.True(t, reloaded.Unsubscribed)
	require.NotNil(t, reloaded.UnsubscribedAt)

	var execution models.FlowExecution
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&execution).Error)
	assert.Equal(t, models.ExecutionSkipped, execution.Status)
	assert.Equal(t, "Cancelled by user", execution.Error)
}
