package main

import (
	"context"
	"log"
	"os"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"

	"courselite/config"
	"courselite/middleware"
	"courselite/routes"
	"courselite/utils"
	"courselite/worker"
)

func main() {
	// Initialize logger
	logger := log.New(os.Stdout, "COURSELITE: ", log.Ldate|log.Ltime|log.Lshortfile)

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize error reporting
	if dsn := config.AppConfig.SentryDSN; dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         dsn,
			Environment: config.AppConfig.Environment,
		}); err != nil {
			logger.Printf("Sentry initialization failed: %v", err)
		}
	}

	// Initialize database connection (runs migrations and seeds the
	// well-known groups)
	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Create Fiber app
	app := fiber.New()

	// Add CORS middleware
	app.Use(middleware.CORS())

	// Initialize mailer and flow engine
	mailer := utils.NewSMTPMailer()
	flowEngine := utils.NewFlowEngine(config.DB, mailer, log.New(os.Stdout, "FLOW: ", log.LstdFlags))

	// Start flow sweep worker
	flowWorker := worker.NewFlowWorker(config.DB, flowEngine, log.New(os.Stdout, "SWEEP: ", log.LstdFlags), config.AppConfig.FlowSweepInterval)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go flowWorker.Start(ctx)

	// Setup routes
	routes.SetupRoutes(app, config.DB, mailer, flowEngine)

	// Health check endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "running",
			"version": "1.0.0",
		})
	})

	// Start server
	logger.Printf("Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
