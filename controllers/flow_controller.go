package controller

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"courselite/config"
	"courselite/models"
	"courselite/utils"
)

// FlowController manages email flow definitions and their executions
type FlowController struct {
	DB     *gorm.DB
	Engine *utils.FlowEngine
	Logger *log.Logger
}

func NewFlowController(db *gorm.DB, engine *utils.FlowEngine, logger *log.Logger) *FlowController {
	return &FlowController{DB: db, Engine: engine, Logger: logger}
}

type FlowStepRequest struct {
	DelayDays   int    `json:"delay_days" validate:"gte=0"`
	Subject     string `json:"subject" validate:"required,max=300"`
	HTMLContent string `json:"html_content" validate:"required"`
	TextContent string `json:"text_content"`
	Enabled     *bool  `json:"enabled"`
}

type FlowRequest struct {
	Name        string            `json:"name" validate:"required,max=200"`
	Description string            `json:"description"`
	Trigger     string            `json:"trigger" validate:"required"`
	Enabled     *bool             `json:"enabled"`
	Steps       []FlowStepRequest `json:"steps"`
}

// GetFlows lists every flow with its steps and execution count
func (fc *FlowController) GetFlows(c *fiber.Ctx) error {
	var flows []models.EmailFlow
	if err := fc.DB.
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("step_number ASC")
		}).
		Order("created_at DESC").
		Find(&flows).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch flows",
		})
	}

	type flowWithCount struct {
		models.EmailFlow
		ExecutionCount int64 `json:"execution_count"`
	}

	result := make([]flowWithCount, 0, len(flows))
	for _, flow := range flows {
		var count int64
		fc.DB.Model(&models.FlowExecution{}).Where("flow_id = ?", flow.ID).Count(&count)
		result = append(result, flowWithCount{EmailFlow: flow, ExecutionCount: count})
	}

	return c.JSON(fiber.Map{"flows": result})
}

func (fc *FlowController) GetFlow(c *fiber.Ctx) error {
	var flow models.EmailFlow
	if err := fc.DB.
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("step_number ASC")
		}).
		First(&flow, utils.ParseUint(c.Params("id"))).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Flow not found",
		})
	}

	return c.JSON(fiber.Map{"flow": flow})
}

// CreateFlow creates a flow with its ordered steps. Step numbers are
// assigned from request order; the text fallback is derived from the
// HTML when not supplied.
func (fc *FlowController) CreateFlow(c *fiber.Ctx) error {
	var req FlowRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := utils.ValidateStruct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if !models.IsValidTrigger(req.Trigger) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unknown trigger event",
		})
	}

	flow := models.EmailFlow{
		Name:         req.Name,
		Description:  req.Description,
		TriggerEvent: req.Trigger,
		Enabled:      req.Enabled == nil || *req.Enabled,
	}

	for i, stepReq := range req.Steps {
		textContent := stepReq.TextContent
		if textContent == "" {
			textContent = utils.StripHTML(stepReq.HTMLContent)
		}
		flow.Steps = append(flow.Steps, models.FlowStep{
			StepNumber:  i + 1,
			DelayDays:   stepReq.DelayDays,
			Subject:     stepReq.Subject,
			HTMLContent: stepReq.HTMLContent,
			TextContent: textContent,
			Enabled:     stepReq.Enabled == nil || *stepReq.Enabled,
		})
	}

	if err := fc.DB.Create(&flow).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create flow",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"flow": flow})
}

func (fc *FlowController) UpdateFlow(c *fiber.Ctx) error {
	var flow models.EmailFlow
	if err := fc.DB.First(&flow, utils.ParseUint(c.Params("id"))).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Flow not found",
		})
	}

	var req FlowRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := utils.ValidateStruct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if !models.IsValidTrigger(req.Trigger) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unknown trigger event",
		})
	}

	flow.Name = req.Name
	flow.Description = req.Description
	flow.TriggerEvent = req.Trigger
	if req.Enabled != nil {
		flow.Enabled = *req.Enabled
	}

	if err := fc.DB.Save(&flow).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update flow",
		})
	}

	return c.JSON(fiber.Map{"flow": flow})
}

func (fc *FlowController) DeleteFlow(c *fiber.Ctx) error {
	flowID := utils.ParseUint(c.Params("id"))

	// Steps go with the flow; executions keep their history rows
	if err := fc.DB.Where("flow_id = ?", flowID).Delete(&models.FlowStep{}).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete flow steps",
		})
	}
	if err := fc.DB.Delete(&models.EmailFlow{}, flowID).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete flow",
		})
	}

	return c.JSON(fiber.Map{"message": "Flow deleted"})
}

// AddStep appends a step to a flow
func (fc *FlowController) AddStep(c *fiber.Ctx) error {
	var flow models.EmailFlow
	if err := fc.DB.First(&flow, utils.ParseUint(c.Params("id"))).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Flow not found",
		})
	}

	var req FlowStepRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := utils.ValidateStruct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	var maxStep int
	fc.DB.Model(&models.FlowStep{}).
		Where("flow_id = ?", flow.ID).
		Select("COALESCE(MAX(step_number), 0)").
		Scan(&maxStep)

	textContent := req.TextContent
	if textContent == "" {
		textContent = utils.StripHTML(req.HTMLContent)
	}

	step := models.FlowStep{
		FlowID:      flow.ID,
		StepNumber:  maxStep + 1,
		DelayDays:   req.DelayDays,
		Subject:     req.Subject,
		HTMLContent: req.HTMLContent,
		TextContent: textContent,
		Enabled:     req.Enabled == nil || *req.Enabled,
	}

	if err := fc.DB.Create(&step).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create step",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"step": step})
}

// UpdateStep edits a step's content. Edits take effect for every not yet
// sent execution, because the sweeper reads step content live at send time.
func (fc *FlowController) UpdateStep(c *fiber.Ctx) error {
	var step models.FlowStep
	if err := fc.DB.Where("flow_id = ?", utils.ParseUint(c.Params("id"))).
		First(&step, utils.ParseUint(c.Params("stepId"))).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Step not found",
		})
	}

	var req FlowStepRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := utils.ValidateStruct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	step.DelayDays = req.DelayDays
	step.Subject = req.Subject
	step.HTMLContent = req.HTMLContent
	if req.TextContent != "" {
		step.TextContent = req.TextContent
	} else {
		step.TextContent = utils.StripHTML(req.HTMLContent)
	}
	if req.Enabled != nil {
		step.Enabled = *req.Enabled
	}

	if err := fc.DB.Save(&step).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update step",
		})
	}

	return c.JSON(fiber.Map{"step": step})
}

func (fc *FlowController) DeleteStep(c *fiber.Ctx) error {
	result := fc.DB.Where("flow_id = ?", utils.ParseUint(c.Params("id"))).
		Delete(&models.FlowStep{}, utils.ParseUint(c.Params("stepId")))
	if result.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete step",
		})
	}
	if result.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Step not found",
		})
	}

	return c.JSON(fiber.Map{"message": "Step deleted"})
}

// GetFlowExecutions reports a flow's execution history with statuses and
// diagnostics
func (fc *FlowController) GetFlowExecutions(c *fiber.Ctx) error {
	flowID := utils.ParseUint(c.Params("id"))

	var executions []models.FlowExecution
	if err := fc.DB.Where("flow_id = ?", flowID).
		Order("scheduled_for DESC").
		Limit(500).
		Find(&executions).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch executions",
		})
	}

	return c.JSON(fiber.Map{"executions": executions})
}

// GetMergeTags exposes the recognized tags plus authoring-time feedback
// on unknown placeholders in a draft
func (fc *FlowController) GetMergeTags(c *fiber.Ctx) error {
	content := c.Query("content")
	response := fiber.Map{
		"merge_tags": utils.AvailableMergeTags,
	}
	if content != "" {
		response["unrecognized"] = utils.FindUnrecognizedTags(content)
	}
	return c.JSON(response)
}

// ProcessFlows is the cron entry point: it runs one sweep over due
// pending executions. Guarded by CRON_SECRET when configured.
func (fc *FlowController) ProcessFlows(c *fiber.Ctx) error {
	if secret := config.AppConfig.CronSecret; secret != "" {
		if c.Get("Authorization") != "Bearer "+secret {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}
	}

	summary, err := fc.Engine.ProcessPending(time.Now())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"success":   true,
		"processed": summary.Processed,
		"sent":      summary.Sent,
		"failed":    summary.Failed,
		"timestamp": summary.Timestamp,
	})
}
