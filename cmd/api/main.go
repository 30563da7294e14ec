package main

import (
	"context"
	"net/http"

	_ "einvoice/api/swagger" // swagger docs
	"einvoice/internal/config"
	"einvoice/internal/database"
	"einvoice/internal/handler"
	"einvoice/internal/logger"
	"einvoice/internal/middleware"
	"einvoice/internal/repository"
	"einvoice/internal/service"
	"einvoice/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title           E-Invoice Submission API
// @version         1.0
// @description     Submits invoices to the MyInvois tax authority: conversion, signing, submission, status sync and cancellation.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg := config.Load()

	if err := logger.Setup(logger.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: cfg.LogOutput,
	}); err != nil {
		panic("logger setup failed: " + err.Error())
	}
	log := logger.WithComponent("main")

	db, err := database.NewConnection(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	log.Info().Msg("connected to PostgreSQL")

	// Set up WebSocket Hub
	wsHub := websocket.NewHub()
	go wsHub.Run()

	// Set up dependencies (Repository -> Service -> Handler)
	invoiceRepo := repository.NewInvoiceRepository(db)
	customerRepo := repository.NewCustomerRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	pipeline := service.NewPipeline()
	if settings, err := settingsRepo.Get(context.Background()); err != nil {
		log.Warn().Err(err).Msg("could not load stored settings")
	} else if err := pipeline.Reconfigure(settings); err != nil {
		// The server still starts; submissions stay unavailable until the
		// settings are fixed through the API.
		log.Warn().Err(err).Msg("e-invoice pipeline not configured")
	}

	invoiceService := service.NewInvoiceService(invoiceRepo, customerRepo)
	einvoiceService := service.NewEInvoiceService(invoiceRepo, auditRepo, pipeline, wsHub, cfg.SubmitDelay)
	settingsService := service.NewSettingsService(settingsRepo, auditRepo, pipeline)

	statusSync := service.NewStatusSync(invoiceRepo, auditRepo, pipeline, wsHub, cfg.SubmitDelay)
	statusSync.Start(cfg.StatusSyncInterval)

	// Initialize Handlers
	invoiceHandler := handler.NewInvoiceHandler(invoiceService)
	einvoiceHandler := handler.NewEInvoiceHandler(einvoiceService)
	settingsHandler := handler.NewSettingsHandler(settingsService)

	// Set up Gin Router
	router := gin.Default()

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	// Swagger route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check reports the signing certificate state alongside liveness
	router.GET("/health", func(c *gin.Context) {
		level, message := pipeline.CertificateHealth()
		c.JSON(http.StatusOK, gin.H{
			"status":      "OK",
			"certificate": gin.H{"level": level, "message": message},
		})
	})

	// WebSocket endpoint
	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c, middleware.GetJWTSecret())
	})

	// Register API Routes
	invoiceHandler.RegisterRoutes(router.Group(""))
	einvoiceHandler.RegisterRoutes(router.Group(""))
	settingsHandler.RegisterRoutes(router.Group(""))

	log.Info().Str("port", cfg.Port).Msg("server listening")
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}
