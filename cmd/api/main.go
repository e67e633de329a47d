package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"alfredoptarigan/ats-analyzer/internal/config"
	"alfredoptarigan/ats-analyzer/internal/handlers"
	"alfredoptarigan/ats-analyzer/internal/logger"
	"alfredoptarigan/ats-analyzer/internal/repositories"
	"alfredoptarigan/ats-analyzer/internal/services"
)

func main() {
	// Load configuration
	cfg := config.Load()

	zl, err := logger.New(cfg.Server.LogJSON, cfg.Server.LogDebug)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	if err := cfg.EnsureDirectories(); err != nil {
		zl.Fatal("failed to create directories", zap.Error(err))
	}
	zl.Info("config loaded", zap.String("env", cfg.Server.Env), zap.String("engine", string(cfg.Engine.Kind)))

	// Initialize database
	db, err := config.InitDatabase(cfg, zl)
	if err != nil {
		zl.Fatal("failed to initialize database", zap.Error(err))
	}

	// Initialize repositories
	analysisRepo := repositories.NewAnalysisRepository(db)
	docRepo := repositories.NewDocumentRepository(db)

	// Initialize services
	storageService := services.NewStorageService(
		cfg.Storage.UploadPath,
		cfg.Storage.MaxFileSize,
		cfg.Storage.AllowedMimeTypes,
	)
	if err := storageService.EnsureUploadDir(); err != nil {
		zl.Fatal("failed to create upload directory", zap.Error(err))
	}

	pdfParser := services.NewPDFParserService()

	engine, err := newEngine(cfg, pdfParser, zl)
	if err != nil {
		zl.Fatal("failed to initialize scoring engine", zap.Error(err))
	}
	if err := engine.Ready(); err != nil {
		// Requests fail until the engine is installed; the server still starts.
		zl.Warn("scoring engine is not ready", zap.String("engine", engine.Name()), zap.Error(err))
	}

	analyzer := services.NewAnalyzerService(engine, pdfParser, cfg.Worker.BatchConcurrency, zl)
	resolver := services.NewReportResolver(cfg.Reports.ServedDir, cfg.Reports.ProducerDir, zl)
	batchJobs := services.NewBatchJobService(analysisRepo, docRepo, analyzer, zl)
	if _, err := batchJobs.FailStale(cfg.Worker.StaleAfter); err != nil {
		zl.Warn("failed to sweep stale analyses", zap.Error(err))
	}

	// Initialize worker
	worker := services.NewWorker(
		analysisRepo,
		batchJobs,
		cfg.Worker.Concurrency,
		cfg.Worker.PollInterval,
		zl,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)

	// Initialize handlers
	analysisHandler := handlers.NewAnalysisHandler(
		analyzer,
		storageService,
		analysisRepo,
		docRepo,
		worker,
		cfg.Storage.MaxFiles,
		zl,
	)
	resultHandler := handlers.NewResultHandler(analysisRepo)
	reportHandler := handlers.NewReportHandler(resolver, zl)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "ATS Resume Analyzer API",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.Engine.Timeout*time.Duration(max(cfg.Storage.MaxFiles, 1)) + 30*time.Second,
		BodyLimit:    int(cfg.Storage.MaxFileSize)*max(cfg.Storage.MaxFiles, 1) + 1<<20,
		ErrorHandler: handlers.ErrorHandler,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))

	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	// Routes
	api := app.Group("/api/v1")

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"engine": engine.Name(),
			"time":   time.Now(),
		})
	})

	api.Post("/analyze", analysisHandler.HandleAnalyze)
	api.Post("/score", analysisHandler.HandleScore)
	api.Post("/missing", analysisHandler.HandleMissing)
	api.Post("/analyses", analysisHandler.HandleEnqueue)
	api.Get("/analyses/:id", resultHandler.HandleGetAnalysis)
	api.Get("/report/:filename", reportHandler.HandleGetReport)
	api.Get("/reports", reportHandler.HandleListReports)

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Root route
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "ATS Resume Analyzer API",
			"version": "1.0.0",
			"endpoints": []string{
				"POST /api/v1/analyze",
				"POST /api/v1/score",
				"POST /api/v1/missing",
				"POST /api/v1/analyses",
				"GET /api/v1/analyses/:id",
				"GET /api/v1/report/:filename",
				"GET /api/v1/reports",
			},
		})
	})

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		zl.Info("shutting down server")
		cancel()
		worker.Stop()
		if err := app.Shutdown(); err != nil {
			zl.Error("server forced to shutdown", zap.Error(err))
		}
	}()

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	zl.Info("server starting", zap.String("addr", addr))

	if err := app.Listen(addr); err != nil {
		zl.Fatal("failed to start server", zap.Error(err))
	}
}

func newEngine(cfg *config.Config, pdfParser services.PDFParserService, zl *zap.Logger) (services.ScoringEngine, error) {
	switch cfg.Engine.Kind {
	case config.EngineGemini:
		gemini, err := services.NewGeminiService(cfg.Gemini.APIKey, cfg.Gemini.Model, zl)
		if err != nil {
			return nil, err
		}
		return services.NewGeminiEngine(gemini, pdfParser, cfg.Engine.Timeout, cfg.Worker.RetryMaxAttempts, zl), nil
	case config.EngineProcess, "":
		return services.NewProcessEngine(services.ProcessEngineOptions{
			Interpreter:     cfg.Engine.Interpreter,
			EntryPoint:      cfg.Engine.EntryPoint,
			OutputDir:       cfg.Reports.ServedDir,
			Timeout:         cfg.Engine.Timeout,
			MaxOutputBytes:  cfg.Engine.MaxOutputBytes,
			Env:             cfg.Engine.Env,
			ReportURLPrefix: cfg.Reports.URLPrefix,
		}, zl), nil
	default:
		return nil, fmt.Errorf("unknown engine kind %q", cfg.Engine.Kind)
	}
}
