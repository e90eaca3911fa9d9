package controller

import (
	"log"
	"math"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"courselite/models"
	"courselite/utils"
)

// ProgressController tracks lesson completion and overall course progress
type ProgressController struct {
	DB     *gorm.DB
	Engine *utils.FlowEngine
	Logger *log.Logger
}

func NewProgressController(db *gorm.DB, engine *utils.FlowEngine, logger *log.Logger) *ProgressController {
	return &ProgressController{DB: db, Engine: engine, Logger: logger}
}

type ProgressRequest struct {
	Completed *bool `json:"completed"`
	WatchTime *int  `json:"watch_time" validate:"omitempty,gte=0"`
}

// UpdateLessonProgress upserts a lesson's progress for the authenticated
// user, recomputes the course percentage, and fires lesson_completion /
// course_completion flows. course_completion fires only on the transition
// to 100%, never again on later updates.
func (pc *ProgressController) UpdateLessonProgress(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	lessonID := utils.ParseUint(c.Params("id"))

	var req ProgressRequest
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

	var lesson models.Lesson
	if err := pc.DB.First(&lesson, lessonID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Lesson not found",
		})
	}

	var module models.CourseModule
	if err := pc.DB.First(&module, lesson.ModuleID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Module not found",
		})
	}

	var enrollment models.CourseEnrollment
	if err := pc.DB.Where("user_id = ? AND course_id = ?", user.ID, module.CourseID).
		First(&enrollment).Error; err != nil {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Not enrolled in this course",
		})
	}

	progress, err := pc.upsertLessonProgress(user.ID, lesson.ID, req)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update progress",
		})
	}

	percentage, completedLessons, totalLessons, err := pc.courseProgress(user.ID, module.CourseID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to compute course progress",
		})
	}

	wasCompleted := enrollment.Completed
	updates := map[string]interface{}{
		"progress":  percentage,
		"completed": percentage == 100,
	}
	if percentage == 100 {
		updates["completed_at"] = time.Now()
	} else {
		updates["completed_at"] = nil
	}
	if err := pc.DB.Model(&enrollment).Updates(updates).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update enrollment",
		})
	}

	if req.Completed != nil && *req.Completed {
		if err := pc.Engine.TriggerFlow(user.ID, models.TriggerLessonCompletion); err != nil {
			pc.Logger.Printf("Error triggering lesson completion flows for user %d: %v", user.ID, err)
		}
	}

	if percentage == 100 && !wasCompleted {
		if err := pc.Engine.TriggerFlow(user.ID, models.TriggerCourseCompletion); err != nil {
			pc.Logger.Printf("Error triggering course completion flows for user %d: %v", user.ID, err)
		}
	}

	return c.JSON(fiber.Map{
		"success":         true,
		"lesson_progress": progress,
		"course_progress": fiber.Map{
			"percentage":        percentage,
			"completed":         percentage == 100,
			"lessons_completed": completedLessons,
			"total_lessons":     totalLessons,
		},
	})
}

func (pc *ProgressController) upsertLessonProgress(userID, lessonID uint, req ProgressRequest) (*models.LessonProgress, error) {
	var progress models.LessonProgress
	err := pc.DB.Where("user_id = ? AND lesson_id = ?", userID, lessonID).First(&progress).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			return nil, err
		}
		progress = models.LessonProgress{
			UserID:   userID,
			LessonID: lessonID,
		}
	}

	if req.Completed != nil {
		progress.Completed = *req.Completed
		if *req.Completed {
			progress.CompletedAt = utils.Pointer(time.Now())
		} else {
			progress.CompletedAt = nil
		}
	}
	if req.WatchTime != nil {
		progress.WatchTime = *req.WatchTime
	}

	if err := pc.DB.Save(&progress).Error; err != nil {
		return nil, err
	}
	return &progress, nil
}

// courseProgress returns the completed percentage over every lesson in
// the course for one user
func (pc *ProgressController) courseProgress(userID, courseID uint) (int, int64, int64, error) {
	var totalLessons int64
	if err := pc.DB.Model(&models.Lesson{}).
		Joins("JOIN course_modules ON course_modules.id = lessons.module_id").
		Where("course_modules.course_id = ?", courseID).
		Count(&totalLessons).Error; err != nil {
		return 0, 0, 0, err
	}

	var completedLessons int64
	if err := pc.DB.Model(&models.LessonProgress{}).
		Joins("JOIN lessons ON lessons.id = lesson_progresses.lesson_id").
		Joins("JOIN course_modules ON course_modules.id = lessons.module_id").
		Where("lesson_progresses.user_id = ? AND lesson_progresses.completed = ? AND course_modules.course_id = ?",
			userID, true, courseID).
		Count(&completedLessons).Error; err != nil {
		return 0, 0, 0, err
	}

	percentage := 0
	if totalLessons > 0 {
		percentage = int(math.Round(float64(completedLessons) / float64(totalLessons) * 100))
	}
	return percentage, completedLessons, totalLessons, nil
}
