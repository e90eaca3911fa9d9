package routes

import (
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"gorm.io/gorm"

	controller "courselite/controllers"
	"courselite/middleware"
	"courselite/utils"
)

// SetupRoutes wires every HTTP surface: public signup/watch, auth, the
// authenticated user API, the admin API and the cron entry point.
func SetupRoutes(app *fiber.App, db *gorm.DB, mailer utils.Mailer, engine *utils.FlowEngine) {
	requestLog := logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	})

	signupController := controller.NewSignupController(db, mailer, engine, log.New(os.Stdout, "SIGNUP: ", log.LstdFlags))
	courseController := controller.NewCourseController(db, log.New(os.Stdout, "COURSE: ", log.LstdFlags))
	enrollmentController := controller.NewEnrollmentController(db, engine, log.New(os.Stdout, "ENROLL: ", log.LstdFlags))
	progressController := controller.NewProgressController(db, engine, log.New(os.Stdout, "PROGRESS: ", log.LstdFlags))
	flowController := controller.NewFlowController(db, engine, log.New(os.Stdout, "FLOW: ", log.LstdFlags))
	templateController := controller.NewTemplateController(db, log.New(os.Stdout, "TEMPLATE: ", log.LstdFlags))
	emailController := controller.NewEmailController(db, mailer, engine.AppURL, log.New(os.Stdout, "EMAIL: ", log.LstdFlags))
	userController := controller.NewUserController(db, log.New(os.Stdout, "USER: ", log.LstdFlags))

	// Public endpoints
	app.Post("/api/signup", requestLog, middleware.SignupRateLimiter(), signupController.Signup)
	app.Get("/watch", requestLog, signupController.Watch)
	app.Get("/unsubscribe", requestLog, signupController.Unsubscribe)

	// Cron entry point, guarded by CRON_SECRET inside the handler
	app.Get("/api/cron/process-flows", requestLog, flowController.ProcessFlows)
	app.Post("/api/cron/process-flows", requestLog, flowController.ProcessFlows)

	// Auth endpoints
	auth := app.Group("/auth", requestLog)
	auth.Post("/register", controller.Register)
	auth.Post("/login", controller.Login)
	auth.Post("/refresh", controller.RefreshToken)

	protectedAuth := auth.Group("", middleware.Protected())
	protectedAuth.Get("/me", controller.GetCurrentUser)

	// Authenticated user API
	api := app.Group("/api/v1", middleware.Protected(), requestLog)
	api.Get("/courses", courseController.GetPublishedCourses)
	api.Get("/courses/:id", courseController.GetCourse)
	api.Post("/courses/:id/enroll", enrollmentController.Enroll)
	api.Post("/lessons/:id/progress", progressController.UpdateLessonProgress)

	// Admin API
	admin := api.Group("/admin", middleware.AdminOnly())

	admin.Get("/courses", courseController.GetCourses)
	admin.Post("/courses", courseController.CreateCourse)
	admin.Put("/courses/:id", courseController.UpdateCourse)
	admin.Delete("/courses/:id", courseController.DeleteCourse)
	admin.Post("/courses/:id/modules", courseController.AddModule)
	admin.Post("/courses/:id/modules/:moduleId/lessons", courseController.AddLesson)
	admin.Put("/courses/:id/modules/:moduleId/lessons/:lessonId", courseController.UpdateLesson)
	admin.Delete("/courses/:id/modules/:moduleId/lessons/:lessonId", courseController.DeleteLesson)
	admin.Get("/courses/:id/enrollments", enrollmentController.GetCourseEnrollments)
	admin.Delete("/courses/:id/enrollments/:enrollmentId", enrollmentController.DeleteEnrollment)

	admin.Get("/flows", flowController.GetFlows)
	admin.Post("/flows", flowController.CreateFlow)
	admin.Get("/flows/:id", flowController.GetFlow)
	admin.Put("/flows/:id", flowController.UpdateFlow)
	admin.Delete("/flows/:id", flowController.DeleteFlow)
	admin.Post("/flows/:id/steps", flowController.AddStep)
	admin.Put("/flows/:id/steps/:stepId", flowController.UpdateStep)
	admin.Delete("/flows/:id/steps/:stepId", flowController.DeleteStep)
	admin.Get("/flows/:id/executions", flowController.GetFlowExecutions)
	admin.Get("/merge-tags", flowController.GetMergeTags)

	admin.Get("/settings/email-template", templateController.GetEmailTemplates)
	admin.Post("/settings/email-template", templateController.UpdateEmailTemplates)

	admin.Post("/emails/send", emailController.SendCampaign)

	admin.Get("/users", userController.GetUsers)
	admin.Get("/groups", userController.GetGroups)
	admin.Get("/dashboard/stats", userController.GetDashboardStats)
}
