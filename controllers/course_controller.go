package controller

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"courselite/models"
	"courselite/utils"
)

// CourseController manages the course catalog: admin CRUD over courses,
// modules and lessons plus the published read surface.
type CourseController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewCourseController(db *gorm.DB, logger *log.Logger) *CourseController {
	return &CourseController{DB: db, Logger: logger}
}

type CourseRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Slug        string `json:"slug" validate:"required,max=200"`
	Description string `json:"description"`
	Published   bool   `json:"published"`
}

type ModuleRequest struct {
	Title    string `json:"title" validate:"required,max=200"`
	Position int    `json:"position" validate:"gte=0"`
}

type LessonRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Position    int    `json:"position" validate:"gte=0"`
	VideoURL    string `json:"video_url"`
	Description string `json:"description"`
	Duration    int    `json:"duration" validate:"gte=0"`
}

// GetPublishedCourses lists the catalog visible to enrolled users
func (cc *CourseController) GetPublishedCourses(c *fiber.Ctx) error {
	var courses []models.Course
	if err := cc.DB.Where("published = ?", true).
		Preload("Modules", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Preload("Modules.Lessons", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Find(&courses).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch courses",
		})
	}

	return c.JSON(fiber.Map{"courses": courses})
}

// GetCourse returns one course with its modules and lessons
func (cc *CourseController) GetCourse(c *fiber.Ctx) error {
	var course models.Course
	if err := cc.DB.
		Preload("Modules", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Preload("Modules.Lessons", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		First(&course, utils.ParseUint(c.Params("id"))).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Course not found",
		})
	}

	return c.JSON(fiber.Map{"course": course})
}

// GetCourses lists every course including unpublished drafts (admin)
func (cc *CourseController) GetCourses(c *fiber.Ctx) error {
	var courses []models.Course
	if err := cc.DB.
		Preload("Modules", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Preload("Modules.Lessons", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Order("created_at DESC").
		Find(&courses).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch courses",
		})
	}

	return c.JSON(fiber.Map{"courses": courses})
}

func (cc *CourseController) CreateCourse(c *fiber.Ctx) error {
	var req CourseRequest
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

	course := models.Course{
		Title:       req.Title,
		Slug:        strings.ToLower(strings.TrimSpace(req.Slug)),
		Description: req.Description,
		Published:   req.Published,
	}

	if err := cc.DB.Create(&course).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create course",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"course": course})
}

func (cc *CourseController) UpdateCourse(c *fiber.Ctx) error {
	var course models.Course
	if err := cc.DB.First(&course, utils.ParseUint(c.Params("id"))).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Course not found",
		})
	}

	var req CourseRequest
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

	course.Title = req.Title
	course.Slug = strings.ToLower(strings.TrimSpace(req.Slug))
	course.Description = req.Description
	course.Published = req.Published

	if err := cc.DB.Save(&course).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update course",
		})
	}

	return c.JSON(fiber.Map{"course": course})
}

func (cc *CourseController) DeleteCourse(c *fiber.Ctx) error {
	if err := cc.DB.Delete(&models.Course{}, utils.ParseUint(c.Params("id"))).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete course",
		})
	}

	return c.JSON(fiber.Map{"message": "Course deleted"})
}

func (cc *CourseController) AddModule(c *fiber.Ctx) error {
	var course models.Course
	if err := cc.DB.First(&course, utils.ParseUint(c.Params("id"))).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Course not found",
		})
	}

	var req ModuleRequest
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

	module := models.CourseModule{
		CourseID: course.ID,
		Title:    req.Title,
		Position: req.Position,
	}

	if err := cc.DB.Create(&module).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create module",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"module": module})
}

func (cc *CourseController) AddLesson(c *fiber.Ctx) error {
	var module models.CourseModule
	if err := cc.DB.First(&module, utils.ParseUint(c.Params("moduleId"))).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Module not found",
		})
	}

	var req LessonRequest
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

	lesson := models.Lesson{
		ModuleID:    module.ID,
		Title:       req.Title,
		Position:    req.Position,
		VideoURL:    req.VideoURL,
		Description: req.Description,
		Duration:    req.Duration,
	}

	if err := cc.DB.Create(&lesson).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create lesson",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"lesson": lesson})
}

func (cc *CourseController) UpdateLesson(c *fiber.Ctx) error {
	var lesson models.Lesson
	if err := cc.DB.First(&lesson, utils.ParseUint(c.Params("lessonId"))).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Lesson not found",
		})
	}

	var req LessonRequest
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

	lesson.Title = req.Title
	lesson.Position = req.Position
	lesson.VideoURL = req.VideoURL
	lesson.Description = req.Description
	lesson.Duration = req.Duration

	if err := cc.DB.Save(&lesson).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update lesson",
		})
	}

	return c.JSON(fiber.Map{"lesson": lesson})
}

func (cc *CourseController) DeleteLesson(c *fiber.Ctx) error {
	if err := cc.DB.Delete(&models.Lesson{}, utils.ParseUint(c.Params("lessonId"))).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete lesson",
		})
	}

	return c.JSON(fiber.Map{"message": "Lesson deleted"})
}
