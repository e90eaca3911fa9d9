package controller

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"courselite/models"
	"courselite/utils"
)

// EmailController sends one-off campaign emails to selected groups
type EmailController struct {
	DB     *gorm.DB
	Mailer utils.Mailer
	AppURL string
	Logger *log.Logger
}

func NewEmailController(db *gorm.DB, mailer utils.Mailer, appURL string, logger *log.Logger) *EmailController {
	return &EmailController{DB: db, Mailer: mailer, AppURL: appURL, Logger: logger}
}

type SendCampaignRequest struct {
	Subject     string `json:"subject" validate:"required,max=300"`
	HTMLContent string `json:"html_content" validate:"required"`
	GroupIDs    []uint `json:"group_ids" validate:"required,min=1"`
}

// SendCampaign personalizes and sends a message to every user in the
// selected groups. Recipients are deduplicated across groups and
// unsubscribed users are skipped. Each send is isolated; one failure
// never stops the rest.
func (ec *EmailController) SendCampaign(c *fiber.Ctx) error {
	var req SendCampaignRequest
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

	var users []models.User
	if err := ec.DB.
		Joins("JOIN user_groups ON user_groups.user_id = users.id").
		Where("user_groups.group_id IN ?", req.GroupIDs).
		Where("users.unsubscribed = ?", false).
		Distinct("users.*").
		Find(&users).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load recipients",
		})
	}

	if len(users) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No users found in selected groups",
		})
	}

	sent := 0
	failed := 0
	for i := range users {
		user := &users[i]
		mergeData := utils.BuildMergeData(user, ec.AppURL)

		// Same two-pass pipeline as the flow sweeper: substitute the
		// body, wrap, substitute again for header/footer tags
		personalizedContent := utils.ReplaceMergeTags(req.HTMLContent, mergeData)
		wrappedHTML := utils.WrapEmailContent(ec.DB, personalizedContent)
		personalizedHTML := utils.ReplaceMergeTags(wrappedHTML, mergeData)
		personalizedSubject := utils.ReplaceMergeTags(req.Subject, mergeData)

		if err := ec.Mailer.Send(utils.SendEmailParams{
			To:      user.Email,
			Subject: personalizedSubject,
			HTML:    personalizedHTML,
			Text:    utils.StripHTML(personalizedContent),
		}); err != nil {
			failed++
			ec.Logger.Printf("Failed to send campaign email to %s: %v", user.Email, err)
			continue
		}
		sent++
	}

	utils.LogEvent("campaign_sent", map[string]interface{}{
		"recipients": len(users),
		"sent":       sent,
		"failed":     failed,
	})

	return c.JSON(fiber.Map{
		"success":    true,
		"recipients": len(users),
		"sent":       sent,
		"failed":     failed,
	})
}
