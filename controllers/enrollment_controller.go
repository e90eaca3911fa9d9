package controller

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"courselite/models"
	"courselite/utils"
)

// EnrollmentController handles course enrollment and the admin view of it
type EnrollmentController struct {
	DB     *gorm.DB
	Engine *utils.FlowEngine
	Logger *log.Logger
}

func NewEnrollmentController(db *gorm.DB, engine *utils.FlowEngine, logger *log.Logger) *EnrollmentController {
	return &EnrollmentController{DB: db, Engine: engine, Logger: logger}
}

// Enroll adds the authenticated user to a published course and fires the
// course_enrollment flow. Flow scheduling is best-effort: enrollment
// succeeds even when it fails.
func (ec *EnrollmentController) Enroll(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	courseID := utils.ParseUint(c.Params("id"))

	var course models.Course
	if err := ec.DB.Where("id = ? AND published = ?", courseID, true).First(&course).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Course not found or not available",
		})
	}

	var existing models.CourseEnrollment
	if err := ec.DB.Where("user_id = ? AND course_id = ?", user.ID, course.ID).
		First(&existing).Error; err == nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Already enrolled in this course",
		})
	}

	enrollment := models.CourseEnrollment{
		UserID:   user.ID,
		CourseID: course.ID,
	}

	if err := ec.DB.Create(&enrollment).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to enroll in course",
		})
	}

	if err := ec.Engine.TriggerFlow(user.ID, models.TriggerCourseEnrollment); err != nil {
		ec.Logger.Printf("Error triggering enrollment flows for user %d: %v", user.ID, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success":    true,
		"enrollment": enrollment,
	})
}

// GetCourseEnrollments lists a course's enrollments with user details (admin)
func (ec *EnrollmentController) GetCourseEnrollments(c *fiber.Ctx) error {
	courseID := utils.ParseUint(c.Params("id"))

	var enrollments []models.CourseEnrollment
	if err := ec.DB.Where("course_id = ?", courseID).
		Order("created_at DESC").
		Find(&enrollments).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch enrollments",
		})
	}

	return c.JSON(fiber.Map{"enrollments": enrollments})
}

// DeleteEnrollment removes an enrollment (admin)
func (ec *EnrollmentController) DeleteEnrollment(c *fiber.Ctx) error {
	enrollmentID := utils.ParseUint(c.Params("enrollmentId"))

	result := ec.DB.Delete(&models.CourseEnrollment{}, enrollmentID)
	if result.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete enrollment",
		})
	}
	if result.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Enrollment not found",
		})
	}

	return c.JSON(fiber.Map{"message": "Enrollment removed"})
}
