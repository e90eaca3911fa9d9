package utils

import (
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"courselite/models"
)

func newTestEngine(t *testing.T) (*FlowEngine, *fakeMailer, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	mailer := newFakeMailer()
	engine := &FlowEngine{
		DB:             db,
		Mailer:         mailer,
		Logger:         log.New(io.Discard, "", 0),
		AppURL:         "https://courses.example.com",
		AllowRetrigger: true,
	}
	return engine, mailer, db
}

func createTestUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()
	user := &models.User{
		Email:       email,
		FirstName:   Pointer("Sarah"),
		AccessToken: "tok-" + email,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func createTestFlow(t *testing.T, db *gorm.DB, trigger string, enabled bool, steps ...models.FlowStep) *models.EmailFlow {
	t.Helper()
	flow := &models.EmailFlow{
		Name:         "Test flow",
		TriggerEvent: trigger,
		Enabled:      enabled,
		Steps:        steps,
	}
	require.NoError(t, db.Create(flow).Error)
	return flow
}

func step(number, delayDays int, subject, html string, enabled bool) models.FlowStep {
	return models.FlowStep{
		StepNumber:  number,
		DelayDays:   delayDays,
		Subject:     subject,
		HTMLContent: html,
		TextContent: StripHTML(html),
		Enabled:     enabled,
	}
}

func loadExecutions(t *testing.T, db *gorm.DB, userID uint) []models.FlowExecution {
	t.Helper()
	var executions []models.FlowExecution
	require.NoError(t, db.Where("user_id = ?", userID).Order("id ASC").Find(&executions).Error)
	return executions
}

func TestTriggerFlow_CreatesOneExecutionPerEnabledStep(t *testing.T) {
	engine, _, db := newTestEngine(t)
	user := createTestUser(t, db, "u@x.com")
	flow := createTestFlow(t, db, models.TriggerLessonCompletion, true,
		step(1, 0, "Day 0", "<p>now</p>", true),
		step(2, 3, "Day 3", "<p>later</p>", true),
	)

	before := time.Now()
	require.NoError(t, engine.TriggerFlow(user.ID, models.TriggerLessonCompletion))
	after := time.Now()

	executions := loadExecutions(t, db, user.ID)
	require.Len(t, executions, 2)
	for _, exec := range executions {
		assert.Equal(t, models.ExecutionPending, exec.Status)
		assert.Equal(t, flow.ID, exec.FlowID)
	}

	// delayDays=0 fires at trigger time, delayDays=3 three calendar days out
	assert.WithinRange(t, executions[0].ScheduledFor, before, after)
	assert.WithinRange(t, executions[1].ScheduledFor, before.AddDate(0, 0, 3), after.AddDate(0, 0, 3))
}

func TestTriggerFlow_SkipsDisabledFlowsAndSteps(t *testing.T) {
	engine, _, db := newTestEngine(t)
	user := createTestUser(t, db, "u@x.com")

	createTestFlow(t, db, models.TriggerSignup, false,
		step(1, 0, "Never", "<p>disabled flow</p>", true),
	)
	createTestFlow(t, db, models.TriggerSignup, true,
		step(1, 0, "Yes", "<p>enabled</p>", true),
		step(2, 1, "No", "<p>disabled step</p>", false),
	)

	require.NoError(t, engine.TriggerFlow(user.ID, models.TriggerSignup))

	executions := loadExecutions(t, db, user.ID)
	require.Len(t, executions, 1)

	var created models.FlowStep
	require.NoError(t, db.First(&created, executions[0].StepID).Error)
	assert.Equal(t, "Yes", created.Subject)
}

func TestCreateFlowDisabled_PersistsDisabled(t *testing.T) {
	_, _, db := newTestEngine(t)

	flow := createTestFlow(t, db, models.TriggerSignup, false,
		step(1, 0, "Off", "<p>off</p>", false),
	)

	// The disabled state must survive the insert unchanged; a column
	// default would silently flip a zero-value false back to true
	var reloadedFlow models.EmailFlow
	require.NoError(t, db.First(&reloadedFlow, flow.ID).Error)
	assert.False(t, reloadedFlow.Enabled)

	var reloadedStep models.FlowStep
	require.NoError(t, db.Where("flow_id = ?", flow.ID).First(&reloadedStep).Error)
	assert.False(t, reloadedStep.Enabled)
}

func TestTriggerFlow_NoMatchingFlowsIsNotAnError(t *testing.T) {
	engine, _, db := newTestEngine(t)
	user := createTestUser(t, db, "u@x.com")

	require.NoError(t, engine.TriggerFlow(user.ID, models.TriggerCourseCompletion))
	assert.Empty(t, loadExecutions(t, db, user.ID))
}

func TestTriggerFlow_RetriggerDoublesExecutions(t *testing.T) {
	engine, _, db := newTestEngine(t)
	user := createTestUser(t, db, "u@x.com")
	createTestFlow(t, db, models.TriggerSignup, true,
		step(1, 0, "Welcome", "<p>hi</p>", true),
		step(2, 2, "Follow up", "<p>more</p>", true),
	)

	// No dedup on (user, flow, step): firing the event again restarts
	// the sequence
	require.NoError(t, engine.TriggerFlow(user.ID, models.TriggerSignup))
	require.NoError(t, engine.TriggerFlow(user.ID, models.TriggerSignup))

	assert.Len(t, loadExecutions(t, db, user.ID), 4)
}

func TestTriggerFlow_RetriggerDisabledSkipsExisting(t *testing.T) {
	engine, _, db := newTestEngine(t)
	engine.AllowRetrigger = false
	user := createTestUser(t, db, "u@x.com")
	createTestFlow(t, db, models.TriggerSignup, true,
		step(1, 0, "Welcome", "<p>hi</p>", true),
	)

	require.NoError(t, engine.TriggerFlow(user.ID, models.TriggerSignup))
	require.NoError(t, engine.TriggerFlow(user.ID, models.TriggerSignup))

	assert.Len(t, loadExecutions(t, db, user.ID), 1)
}

func TestProcessPending_SendsDueAndLeavesFuture(t *testing.T) {
	engine, mailer, db := newTestEngine(t)
	user := createTestUser(t, db, "u@x.com")
	flow := createTestFlow(t, db, models.TriggerSignup, true,
		step(1, 0, "Due", "<p>due</p>", true),
		step(2, 3, "Future", "<p>future</p>", true),
	)

	require.NoError(t, engine.TriggerFlow(user.ID, models.TriggerSignup))

	now := time.Now()
	summary, err := engine.ProcessPending(now)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Sent)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, now, summary.Timestamp)
	assert.Equal(t, 1, mailer.sentCount())

	executions := loadExecutions(t, db, user.ID)
	require.Len(t, executions, 2)
	assert.Equal(t, models.ExecutionSent, executions[0].Status)
	require.NotNil(t, executions[0].SentAt)
	assert.Equal(t, models.ExecutionPending, executions[1].Status)
	assert.Nil(t, executions[1].SentAt)

	_ = flow
}

func TestProcessPending_NeverSelectsNonPending(t *testing.T) {
	engine, mailer, db := newTestEngine(t)
	user := createTestUser(t, db, "u@x.com")
	flow := createTestFlow(t, db, models.TriggerSignup, true,
		step(1, 0, "S", "<p>s</p>", true),
	)
	var st models.FlowStep
	require.NoError(t, db.Where("flow_id = ?", flow.ID).First(&st).Error)

	past := time.Now().AddDate(0, 0, -1)
	for _, status := range []string{models.ExecutionSent, models.ExecutionFailed, models.ExecutionSkipped} {
		require.NoError(t, db.Create(&models.FlowExecution{
			UserID:       user.ID,
			FlowID:       flow.ID,
			StepID:       st.ID,
			ScheduledFor: past,
			Status:       status,
		}).Error)
	}

	summary, err := engine.ProcessPending(time.Now())
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Processed)
	assert.Equal(t, 0, mailer.sentCount())
}

func TestProcessPending_MissingUserFailsTerminallyAndIsolated(t *testing.T) {
	engine, mailer, db := newTestEngine(t)
	ghost := createTestUser(t, db, "ghost@x.com")
	alive := createTestUser(t, db, "alive@x.com")
	createTestFlow(t, db, models.TriggerSignup, true,
		step(1, 0, "Hello", "<p>hi</p>", true),
	)

	require.NoError(t, engine.TriggerFlow(ghost.ID, models.TriggerSignup))
	require.NoError(t, engine.TriggerFlow(alive.ID, models.TriggerSignup))
	require.NoError(t, db.Unscoped().Delete(&models.User{}, ghost.ID).Error)

	summary, err := engine.ProcessPending(time.Now())
	require.NoError(t, err)

	// The missing user never throws out of the sweep; the sibling still sends
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 1, summary.Sent)
	assert.Equal(t, 1, summary.Failed)

	ghostExecs := loadExecutions(t, db, ghost.ID)
	require.Len(t, ghostExecs, 1)
	assert.Equal(t, models.ExecutionFailed, ghostExecs[0].Status)
	assert.Equal(t, "User not found", ghostExecs[0].Error)

	aliveExecs := loadExecutions(t, db, alive.ID)
	require.Len(t, aliveExecs, 1)
	assert.Equal(t, models.ExecutionSent, aliveExecs[0].Status)
	assert.Len(t, mailer.sentTo("alive@x.com"), 1)
}

func TestProcessPending_TransportFailureIsTerminal(t *testing.T) {
	engine, mailer, db := newTestEngine(t)
	user := createTestUser(t, db, "u@x.com")
	createTestFlow(t, db, models.TriggerSignup, true,
		step(1, 0, "Hello", "<p>hi</p>", true),
	)
	mailer.failFor["u@x.com"] = true

	require.NoError(t, engine.TriggerFlow(user.ID, models.TriggerSignup))

	summary, err := engine.ProcessPending(time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)

	executions := loadExecutions(t, db, user.ID)
	require.Len(t, executions, 1)
	assert.Equal(t, models.ExecutionFailed, executions[0].Status)
	assert.NotEmpty(t, executions[0].Error)

	// Failed executions are never retried by a later sweep
	mailer.failFor["u@x.com"] = false
	summary, err = engine.ProcessPending(time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Processed)
	assert.Equal(t, 0, mailer.sentCount())
}

func TestProcessPending_DeletedStepFailsWithDiagnostic(t *testing.T) {
	engine, mailer, db := newTestEngine(t)
	user := createTestUser(t, db, "u@x.com")
	flow := createTestFlow(t, db, models.TriggerSignup, true,
		step(1, 0, "Hello", "<p>hi</p>", true),
	)

	require.NoError(t, engine.TriggerFlow(user.ID, models.TriggerSignup))
	require.NoError(t, db.Where("flow_id = ?", flow.ID).Delete(&models.FlowStep{}).Error)

	summary, err := engine.ProcessPending(time.Now())
	require.NoError(t, err)

	// No content to send: the row fails with its diagnostic instead of
	// delivering an empty shell
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 0, summary.Sent)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 0, mailer.sentCount())

	executions := loadExecutions(t, db, user.ID)
	require.Len(t, executions, 1)
	assert.Equal(t, models.ExecutionFailed, executions[0].Status)
	assert.Equal(t, "Step not found", executions[0].Error)
}

func TestProcessPending_ExternalSkipDuringSendNotCountedSent(t *testing.T) {
	engine, mailer, db := newTestEngine(t)
	user := createTestUser(t, db, "u@x.com")
	createTestFlow(t, db, models.TriggerSignup, true,
		step(1, 0, "Hello", "<p>hi</p>", true),
	)

	require.NoError(t, engine.TriggerFlow(user.ID, models.TriggerSignup))

	// An unsubscribe lands while the delivery is in flight
	mailer.onSend = func(SendEmailParams) {
		require.NoError(t, db.Model(&models.FlowExecution{}).
			Where("user_id = ?", user.ID).
			Update("status", models.ExecutionSkipped).Error)
	}

	summary, err := engine.ProcessPending(time.Now())
	require.NoError(t, err)

	// The terminal skip wins the race and the summary reflects the store
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 0, summary.Sent)
	assert.Equal(t, 0, summary.Failed)

	executions := loadExecutions(t, db, user.ID)
	require.Len(t, executions, 1)
	assert.Equal(t, models.ExecutionSkipped, executions[0].Status)
	assert.Nil(t, executions[0].SentAt)
}

func TestProcessPending_PersonalizesWithTwoPassSubstitution(t *testing.T) {
	engine, mailer, db := newTestEngine(t)
	user := createTestUser(t, db, "u@x.com")
	createTestFlow(t, db, models.TriggerSignup, true,
		step(1, 0, "Hi {{firstName}}", "<p>Hello {{firstName}}, watch {{videoLink}}</p>", true),
	)

	// Header and footer carry their own tags; only the second pass,
	// after wrapping, can resolve them
	require.NoError(t, UpdateEmailHeader(db, "<div>For {{email}}</div>"))
	require.NoError(t, UpdateEmailFooter(db, `<a href="{{unsubscribeLink}}">Unsubscribe</a>`))

	require.NoError(t, engine.TriggerFlow(user.ID, models.TriggerSignup))
	_, err := engine.ProcessPending(time.Now())
	require.NoError(t, err)

	sent := mailer.sentTo("u@x.com")
	require.Len(t, sent, 1)

	assert.Equal(t, "Hi Sarah", sent[0].Subject)
	assert.Contains(t, sent[0].HTML, "Hello Sarah")
	assert.Contains(t, sent[0].HTML, "https://courses.example.com/watch?token=tok-u@x.com")
	assert.Contains(t, sent[0].HTML, "<div>For u@x.com</div>")
	assert.Contains(t, sent[0].HTML, `href="https://courses.example.com/unsubscribe?token=tok-u@x.com"`)
	assert.NotContains(t, sent[0].HTML, "{{firstName}}")
	assert.NotContains(t, sent[0].HTML, "{{unsubscribeLink}}")
	assert.Contains(t, sent[0].Text, "Hello Sarah")
}

func TestProcessPending_ReadsStepContentLiveAtSendTime(t *testing.T) {
	engine, mailer, db := newTestEngine(t)
	user := createTestUser(t, db, "u@x.com")
	flow := createTestFlow(t, db, models.TriggerSignup, true,
		step(1, 0, "Original subject", "<p>original</p>", true),
	)

	require.NoError(t, engine.TriggerFlow(user.ID, models.TriggerSignup))

	// Editing the step after scheduling changes what gets sent
	require.NoError(t, db.Model(&models.FlowStep{}).
		Where("flow_id = ?", flow.ID).
		Updates(map[string]interface{}{
			"subject":      "Edited subject",
			"html_content": "<p>edited</p>",
			"text_content": "edited",
		}).Error)

	_, err := engine.ProcessPending(time.Now())
	require.NoError(t, err)

	sent := mailer.sentTo("u@x.com")
	require.Len(t, sent, 1)
	assert.Equal(t, "Edited subject", sent[0].Subject)
	assert.Contains(t, sent[0].HTML, "<p>edited</p>")
}

func TestCancelUserFlows_SkipsPendingOnly(t *testing.T) {
	engine, _, db := newTestEngine(t)
	user := createTestUser(t, db, "u@x.com")
	createTestFlow(t, db, models.TriggerSignup, true,
		step(1, 0, "Now", "<p>now</p>", true),
		step(2, 5, "Later", "<p>later</p>", true),
	)

	require.NoError(t, engine.TriggerFlow(user.ID, models.TriggerSignup))
	_, err := engine.ProcessPending(time.Now())
	require.NoError(t, err)

	cancelled, err := engine.CancelUserFlows(user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cancelled)

	executions := loadExecutions(t, db, user.ID)
	require.Len(t, executions, 2)
	assert.Equal(t, models.ExecutionSent, executions[0].Status)
	assert.Equal(t, models.ExecutionSkipped, executions[1].Status)
	assert.Equal(t, "Cancelled by user", executions[1].Error)
}

func TestSweeperNeverOverwritesExternalSkip(t *testing.T) {
	engine, _, db := newTestEngine(t)
	user := createTestUser(t, db, "u@x.com")
	flow := createTestFlow(t, db, models.TriggerSignup, true,
		step(1, 0, "S", "<p>s</p>", true),
	)
	var st models.FlowStep
	require.NoError(t, db.Where("flow_id = ?", flow.ID).First(&st).Error)

	execution := models.FlowExecution{
		UserID:       user.ID,
		FlowID:       flow.ID,
		StepID:       st.ID,
		ScheduledFor: time.Now().AddDate(0, 0, -1),
		Status:       models.ExecutionSkipped,
	}
	require.NoError(t, db.Create(&execution).Error)

	// The guarded transition refuses to touch a non-pending row
	ok := engine.transition(&execution, map[string]interface{}{
		"status":  models.ExecutionSent,
		"sent_at": time.Now(),
	})
	assert.False(t, ok)

	var reloaded models.FlowExecution
	require.NoError(t, db.First(&reloaded, execution.ID).Error)
	assert.Equal(t, models.ExecutionSkipped, reloaded.Status)
}
