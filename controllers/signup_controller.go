package controller

import (
	"log"
	"strings"

	"github.com/badoux/checkmail"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"courselite/models"
	"courselite/utils"
)

// SignupController handles the public lead-capture surface: signup with
// welcome email, the personal watch link and unsubscribe.
type SignupController struct {
	DB     *gorm.DB
	Mailer utils.Mailer
	Engine *utils.FlowEngine
	Logger *log.Logger
}

func NewSignupController(db *gorm.DB, mailer utils.Mailer, engine *utils.FlowEngine, logger *log.Logger) *SignupController {
	return &SignupController{
		DB:     db,
		Mailer: mailer,
		Engine: engine,
		Logger: logger,
	}
}

type SignupRequest struct {
	Email     string `json:"email" validate:"required,email"`
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"omitempty,max=100"`
}

// Signup registers a lead, adds them to the All Users group, sends the
// welcome email and fires the signup flow. Email delivery and flow
// triggering are best-effort: their failure never fails the signup.
func (sc *SignupController) Signup(c *fiber.Ctx) error {
	var req SignupRequest
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

	if err := checkmail.ValidateFormat(req.Email); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Please enter a valid email address",
		})
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))

	// User already signed up - resend the welcome email
	var existingUser models.User
	if err := sc.DB.Where("email = ?", email).First(&existingUser).Error; err == nil {
		if err := utils.SendWelcomeEmail(sc.Mailer, &existingUser, sc.Engine.AppURL); err != nil {
			sc.Logger.Printf("Failed to resend welcome email to %s: %v", email, err)
		}
		return c.JSON(fiber.Map{
			"success":        true,
			"message":        "Welcome back! Check your email for your access link.",
			"already_exists": true,
		})
	}

	user := models.User{
		Email:       email,
		FirstName:   utils.Pointer(strings.TrimSpace(req.FirstName)),
		LastName:    optionalString(strings.TrimSpace(req.LastName)),
		Role:        "user",
		AccessToken: utils.GenerateAccessToken(),
	}

	if err := sc.DB.Create(&user).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Something went wrong. Please try again.",
		})
	}

	// The All Users group is seeded at startup, membership only here
	var allUsers models.Group
	if err := sc.DB.Where("name = ?", models.AllUsersGroupName).First(&allUsers).Error; err != nil {
		sc.Logger.Printf("All Users group missing: %v", err)
	} else if err := sc.DB.Create(&models.UserGroup{UserID: user.ID, GroupID: allUsers.ID}).Error; err != nil {
		sc.Logger.Printf("Failed to add user %d to All Users group: %v", user.ID, err)
	}

	if err := utils.SendWelcomeEmail(sc.Mailer, &user, sc.Engine.AppURL); err != nil {
		// Don't fail the signup if email fails - user is still created
		sc.Logger.Printf("Failed to send welcome email to %s: %v", email, err)
	}

	if err := sc.Engine.TriggerFlow(user.ID, models.TriggerSignup); err != nil {
		sc.Logger.Printf("Error triggering signup flows for user %d: %v", user.ID, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Success! Check your email for your free course.",
		"user": fiber.Map{
			"email":      user.Email,
			"first_name": user.FirstName,
		},
	})
}

// Watch resolves a personal access token to the published course catalog
// and fires the video_watch flow
func (sc *SignupController) Watch(c *fiber.Ctx) error {
	token := c.Query("token")
	if token == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Access token is required",
		})
	}

	var user models.User
	if err := sc.DB.Where("access_token = ?", token).First(&user).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Invalid access link",
		})
	}

	var courses []models.Course
	if err := sc.DB.Where("published = ?", true).
		Preload("Modules", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Preload("Modules.Lessons", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Find(&courses).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load courses",
		})
	}

	if err := sc.Engine.TriggerFlow(user.ID, models.TriggerVideoWatch); err != nil {
		sc.Logger.Printf("Error triggering video_watch flows for user %d: %v", user.ID, err)
	}

	return c.JSON(fiber.Map{
		"user": fiber.Map{
			"email":      user.Email,
			"first_name": user.FirstName,
		},
		"courses": courses,
	})
}

// Unsubscribe marks the user out of marketing email and skips every
// pending flow execution they still have
func (sc *SignupController) Unsubscribe(c *fiber.Ctx) error {
	token := c.Query("token")
	if token == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Access token is required",
		})
	}

	var user models.User
	if err := sc.DB.Where("access_token = ?", token).First(&user).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Invalid unsubscribe link",
		})
	}

	if err := sc.DB.Model(&user).Updates(map[string]interface{}{
		"unsubscribed":    true,
		"unsubscribed_at": sc.DB.NowFunc(),
	}).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to unsubscribe",
		})
	}

	cancelled, err := sc.Engine.CancelUserFlows(user.ID)
	if err != nil {
		sc.Logger.Printf("Error cancelling flows for user %d: %v", user.ID, err)
	}

	return c.JSON(fiber.Map{
		"success":   true,
		"message":   "You have been unsubscribed.",
		"cancelled": cancelled,
	})
}
