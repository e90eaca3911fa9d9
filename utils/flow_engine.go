package utils

import (
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"courselite/config"
	"courselite/models"
)

// FlowEngine schedules and delivers automated email flows. Triggering and
// sweeping share no in-process state beyond the store, so both are safe to
// call concurrently from unrelated request handlers and workers.
type FlowEngine struct {
	DB     *gorm.DB
	Mailer Mailer
	Logger *log.Logger

	// AppURL is the base for personalized merge-tag links
	AppURL string

	// AllowRetrigger preserves the duplicate-on-re-trigger behavior:
	// when true, firing the same event twice schedules the sequence
	// twice. When false, steps that already have an execution for the
	// (user, flow, step) triple are skipped.
	AllowRetrigger bool
}

// SweepSummary reports one ProcessPending pass
type SweepSummary struct {
	Processed int       `json:"processed"`
	Sent      int       `json:"sent"`
	Failed    int       `json:"failed"`
	Timestamp time.Time `json:"timestamp"`
}

// NewFlowEngine wires the engine from the loaded app configuration
func NewFlowEngine(db *gorm.DB, mailer Mailer, logger *log.Logger) *FlowEngine {
	return &FlowEngine{
		DB:             db,
		Mailer:         mailer,
		Logger:         logger,
		AppURL:         config.AppConfig.AppURL,
		AllowRetrigger: config.AppConfig.FlowAllowRetrigger,
	}
}

// TriggerFlow creates one pending execution per enabled step of every
// enabled flow bound to the trigger event. The caller is responsible for
// the user existing; call sites fire-and-forget and must not fail their
// primary action when this returns an error.
func (e *FlowEngine) TriggerFlow(userID uint, triggerEvent string) error {
	var flows []models.EmailFlow
	if err := e.DB.
		Where("trigger_event = ? AND enabled = ?", triggerEvent, true).
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Where("enabled = ?", true).Order("step_number ASC")
		}).
		Find(&flows).Error; err != nil {
		return fmt.Errorf("failed to load flows for trigger %q: %w", triggerEvent, err)
	}

	now := time.Now()
	created := 0
	for _, flow := range flows {
		for _, step := range flow.Steps {
			if !e.AllowRetrigger {
				var existing int64
				if err := e.DB.Model(&models.FlowExecution{}).
					Where("user_id = ? AND flow_id = ? AND step_id = ?", userID, flow.ID, step.ID).
					Count(&existing).Error; err != nil {
					return fmt.Errorf("failed to check prior executions: %w", err)
				}
				if existing > 0 {
					continue
				}
			}

			execution := models.FlowExecution{
				UserID: userID,
				FlowID: flow.ID,
				StepID: step.ID,
				// Calendar days, matching the authoring UI's "send
				// N days after the event"
				ScheduledFor: now.AddDate(0, 0, step.DelayDays),
				Status:       models.ExecutionPending,
			}
			if err := e.DB.Create(&execution).Error; err != nil {
				return fmt.Errorf("failed to create flow execution: %w", err)
			}
			created++
		}
	}

	e.Logger.Printf("Triggered %d flow(s), %d execution(s) for user %d on trigger: %s",
		len(flows), created, userID, triggerEvent)
	return nil
}

// ProcessPending delivers every due pending execution. Executions are
// processed independently: a failure on one is recorded on that row and
// never aborts the rest of the sweep. now is injectable for tests; pass
// time.Now() in production.
func (e *FlowEngine) ProcessPending(now time.Time) (*SweepSummary, error) {
	var executions []models.FlowExecution
	if err := e.DB.
		Where("status = ? AND scheduled_for <= ?", models.ExecutionPending, now).
		Preload("Step").
		Find(&executions).Error; err != nil {
		return nil, fmt.Errorf("failed to load due executions: %w", err)
	}

	e.Logger.Printf("Processing %d pending flow email(s)", len(executions))

	summary := &SweepSummary{
		Processed: len(executions),
		Timestamp: now,
	}

	for i := range executions {
		sent, err := e.processExecution(&executions[i], now)
		if err != nil {
			summary.Failed++
			e.markFailed(&executions[i], err)
			continue
		}
		if sent {
			summary.Sent++
		}
	}

	return summary, nil
}

// processExecution personalizes and sends one due execution. Any error is
// terminal for this execution; there is no automatic retry of failures.
// sent is false without an error when the row left pending state while
// the send was in flight.
func (e *FlowEngine) processExecution(execution *models.FlowExecution, now time.Time) (bool, error) {
	// A deleted step leaves a zero-value preload; without this the
	// sweeper would send an empty shell email and mark it sent
	if execution.Step.ID == 0 {
		return false, fmt.Errorf("Step not found")
	}

	var user models.User
	if err := e.DB.First(&user, execution.UserID).Error; err != nil {
		return false, fmt.Errorf("User not found")
	}

	mergeData := BuildMergeData(&user, e.AppURL)

	// First substitution pass on the raw step body, then wrap with the
	// live header/footer, then substitute again so tags embedded in the
	// template shell (like the unsubscribe link) resolve too.
	personalizedContent := ReplaceMergeTags(execution.Step.HTMLContent, mergeData)
	wrappedHTML := WrapEmailContent(e.DB, personalizedContent)

	personalizedSubject := ReplaceMergeTags(execution.Step.Subject, mergeData)
	personalizedHTML := ReplaceMergeTags(wrappedHTML, mergeData)
	personalizedText := ReplaceMergeTags(execution.Step.TextContent, mergeData)

	if err := e.Mailer.Send(SendEmailParams{
		To:      user.Email,
		Subject: personalizedSubject,
		HTML:    personalizedHTML,
		Text:    personalizedText,
	}); err != nil {
		return false, err
	}

	if ok := e.transition(execution, map[string]interface{}{
		"status":  models.ExecutionSent,
		"sent_at": now,
	}); !ok {
		// Claimed externally (skipped) while the send was in flight;
		// the terminal status wins, we only log the overlap.
		e.Logger.Printf("Execution %d left pending state during send, not marking sent", execution.ID)
		return false, nil
	}

	e.Logger.Printf("Sent flow email to %s: %s", user.Email, execution.Step.Subject)
	return true, nil
}

func (e *FlowEngine) markFailed(execution *models.FlowExecution, cause error) {
	if ok := e.transition(execution, map[string]interface{}{
		"status": models.ExecutionFailed,
		"error":  cause.Error(),
	}); !ok {
		return
	}
	e.Logger.Printf("Failed to send flow email for execution %d: %v", execution.ID, cause)
	LogError("flow_execution_failed", cause, map[string]interface{}{
		"execution_id": execution.ID,
		"user_id":      execution.UserID,
		"flow_id":      execution.FlowID,
		"step_id":      execution.StepID,
	})
}

// transition moves an execution out of pending. The status guard keeps
// the sweeper from overwriting an external skip: terminal states are
// never revisited.
func (e *FlowEngine) transition(execution *models.FlowExecution, updates map[string]interface{}) bool {
	result := e.DB.Model(&models.FlowExecution{}).
		Where("id = ? AND status = ?", execution.ID, models.ExecutionPending).
		Updates(updates)
	if result.Error != nil {
		e.Logger.Printf("Failed to update execution %d: %v", execution.ID, result.Error)
		return false
	}
	return result.RowsAffected > 0
}

// CancelUserFlows skips every pending execution for a user, e.g. on
// unsubscribe. Executions the sweeper already finished are untouched.
func (e *FlowEngine) CancelUserFlows(userID uint) (int64, error) {
	result := e.DB.Model(&models.FlowExecution{}).
		Where("user_id = ? AND status = ?", userID, models.ExecutionPending).
		Updates(map[string]interface{}{
			"status": models.ExecutionSkipped,
			"error":  "Cancelled by user",
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to cancel flows for user %d: %w", userID, result.Error)
	}

	e.Logger.Printf("Cancelled %d pending flow email(s) for user %d", result.RowsAffected, userID)
	return result.RowsAffected, nil
}
