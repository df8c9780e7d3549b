package main

import (
	"crm-service/internal/handler"
	"crm-service/internal/mailer"
	"crm-service/internal/middleware"
	"crm-service/pkg/config"
	"crm-service/pkg/database"
	"crm-service/pkg/jwtutil"
	"crm-service/pkg/logger"
	"crm-service/prometheus"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

func main() {
	// Load configuration from .env file and environment variables
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger with config
	logger.InitLogger(cfg)
	log := logger.GetLogger()
	log.Info("Starting CRM service...", zap.String("environment", cfg.Server.Env))

	// Initialize database
	if err := database.InitDB(cfg); err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	log.Info("Database connection established")

	// Initialize JWT utility
	jwtutil.Initialize(&cfg.JWT)
	log.Info("JWT utility initialized")

	// Initialize notification sink
	mailer.Initialize(&cfg.SMTP)
	if cfg.SMTP.Host != "" {
		log.Info("Mail sink initialized", zap.String("host", cfg.SMTP.Host))
	} else {
		log.Warn("No SMTP host configured, notifications will be dropped")
	}

	// Initialize Echo framework
	e := echo.New()

	// Apply global middleware - order matters
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(middleware.RequestIDMiddleware)
	e.Use(logger.Middleware(log))
	e.Use(prometheus.MetricsMiddleware())

	// Public routes - no authentication required
	e.GET("/health", handler.HealthCheck)
	e.GET("/metrics", handler.MetricsHandler)

	// Authentication routes
	auth := e.Group("/auth")
	auth.POST("/signup", handler.Signup)
	auth.POST("/login", handler.Login)

	// API routes - all require authentication and a resolved tenant scope
	api := e.Group("/api")
	api.Use(middleware.AuthMiddleware)
	api.Use(middleware.IdentityMiddleware)

	// Agent management (organisor-only, enforced per handler)
	agents := api.Group("/agents")
	agents.GET("", handler.ListAgents)
	agents.POST("", handler.CreateAgent)
	agents.GET("/:id", handler.GetAgent)
	agents.PATCH("/:id", handler.UpdateAgent)
	agents.DELETE("/:id", handler.DeleteAgent)

	// Lead management
	leads := api.Group("/leads")
	leads.GET("", handler.ListLeads)
	leads.POST("", handler.CreateLead)
	leads.GET("/:id", handler.GetLead)
	leads.PATCH("/:id", handler.UpdateLead)
	leads.DELETE("/:id", handler.DeleteLead)
	leads.POST("/:id/assign", handler.AssignLead)

	// Category management
	categories := api.Group("/categories")
	categories.GET("", handler.ListCategories)
	categories.POST("", handler.CreateCategory)
	categories.GET("/:id", handler.GetCategory)
	categories.PATCH("/:id", handler.UpdateCategory)
	categories.DELETE("/:id", handler.DeleteCategory)

	// Tenant teardown
	api.DELETE("/tenant", handler.DeleteTenant)

	// Get server port from configuration
	port := cfg.Server.Port

	// Start server
	log.Info("Starting server", zap.String("port", port))
	if err := e.Start(":" + port); err != nil {
		log.Fatal("Failed to start server", zap.Error(err))
	}
}
