package controller

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"courselite/models"
)

// UserController exposes the admin views over users and groups
type UserController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewUserController(db *gorm.DB, logger *log.Logger) *UserController {
	return &UserController{DB: db, Logger: logger}
}

// GetUsers lists users with their groups and enrollments
func (uc *UserController) GetUsers(c *fiber.Ctx) error {
	var users []models.User
	if err := uc.DB.
		Preload("Groups").
		Preload("Enrollments").
		Order("created_at DESC").
		Find(&users).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch users",
		})
	}

	return c.JSON(fiber.Map{"users": users})
}

// GetGroups lists groups with member counts
func (uc *UserController) GetGroups(c *fiber.Ctx) error {
	var groups []models.Group
	if err := uc.DB.Order("name ASC").Find(&groups).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch groups",
		})
	}

	type groupWithCount struct {
		models.Group
		MemberCount int64 `json:"member_count"`
	}

	result := make([]groupWithCount, 0, len(groups))
	for _, group := range groups {
		var count int64
		uc.DB.Model(&models.UserGroup{}).Where("group_id = ?", group.ID).Count(&count)
		result = append(result, groupWithCount{Group: group, MemberCount: count})
	}

	return c.JSON(fiber.Map{"groups": result})
}

// GetDashboardStats returns the admin dashboard counters
func (uc *UserController) GetDashboardStats(c *fiber.Ctx) error {
	var userCount, enrollmentCount, flowCount int64
	uc.DB.Model(&models.User{}).Count(&userCount)
	uc.DB.Model(&models.CourseEnrollment{}).Count(&enrollmentCount)
	uc.DB.Model(&models.EmailFlow{}).Count(&flowCount)

	executionsByStatus := make(map[string]int64)
	for _, status := range []string{
		models.ExecutionPending,
		models.ExecutionSent,
		models.ExecutionFailed,
		models.ExecutionSkipped,
	} {
		var count int64
		uc.DB.Model(&models.FlowExecution{}).Where("status = ?", status).Count(&count)
		executionsByStatus[status] = count
	}

	return c.JSON(fiber.Map{
		"users":       userCount,
		"enrollments": enrollmentCount,
		"flows":       flowCount,
		"executions":  executionsByStatus,
	})
}
