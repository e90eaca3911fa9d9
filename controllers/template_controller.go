package controller

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"courselite/utils"
)

// TemplateController manages the persisted email header/footer pair.
// Updates take effect for every future send, including executions that
// were already scheduled.
type TemplateController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewTemplateController(db *gorm.DB, logger *log.Logger) *TemplateController {
	return &TemplateController{DB: db, Logger: logger}
}

type TemplateUpdateRequest struct {
	Header *string `json:"header"`
	Footer *string `json:"footer"`
	Reset  bool    `json:"reset"`
}

func (tc *TemplateController) GetEmailTemplates(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"templates": utils.GetEmailTemplates(tc.DB),
		"defaults":  utils.DefaultEmailTemplates(),
	})
}

func (tc *TemplateController) UpdateEmailTemplates(c *fiber.Ctx) error {
	var req TemplateUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Reset {
		if err := utils.ResetEmailTemplates(tc.DB); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to reset templates",
			})
		}
		return c.JSON(fiber.Map{
			"success": true,
			"message": "Templates reset to defaults",
		})
	}

	if req.Header != nil {
		if err := utils.UpdateEmailHeader(tc.DB, *req.Header); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to update header",
			})
		}
	}

	if req.Footer != nil {
		if err := utils.UpdateEmailFooter(tc.DB, *req.Footer); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to update footer",
			})
		}
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Templates updated successfully",
	})
}
