package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"paperdigest/internal/config"
	"paperdigest/internal/database"
	"paperdigest/internal/handlers"
	"paperdigest/internal/jobs"
	"paperdigest/internal/logging"
	"paperdigest/internal/middleware"
	"paperdigest/internal/preflight"
	"paperdigest/internal/services"
	"paperdigest/pkg/auth"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting PaperDigest Server...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}
	log.Printf("📋 Configuration loaded (Port: %s, Environment: %s)", cfg.Port, cfg.Environment)

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Initialize(); err != nil {
		log.Fatalf("❌ Failed to initialize database: %v", err)
	}

	if results := preflight.NewChecker(db, cfg).RunAll(); preflight.HasFailures(results) {
		log.Fatal("❌ Pre-flight checks failed")
	}

	// MongoDB is optional: request audit log
	var requestLogStore *services.RequestLogStore
	if cfg.MongoDBURI != "" {
		log.Println("🔗 Connecting to MongoDB...")
		mongoDB, err := database.NewMongoDB(cfg.MongoDBURI)
		if err != nil {
			log.Printf("⚠️ Failed to connect to MongoDB: %v (request audit log disabled)", err)
		} else {
			defer mongoDB.Close(context.Background())

			initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := mongoDB.Initialize(initCtx); err != nil {
				log.Printf("⚠️ Failed to create MongoDB indexes: %v", err)
			}
			cancel()

			requestLogStore = services.NewRequestLogStore(mongoDB)
			log.Println("✅ MongoDB request audit log enabled")
		}
	} else {
		log.Println("⚠️ MONGODB_URI not set - request audit log disabled")
	}

	// Redis is optional: shared AI generation throttle
	var redisService *services.RedisService
	if cfg.RedisURL != "" {
		redisService, err = services.NewRedisService(cfg.RedisURL)
		if err != nil {
			log.Printf("⚠️ Redis unavailable: %v (AI generation throttle is per-instance)", err)
		} else {
			defer redisService.Close()
		}
	}

	var throttle *services.GenerationThrottle
	if redisService != nil {
		throttle = services.NewGenerationThrottle(redisService.Client(), cfg.AIGenerationBurst, cfg.AIGenerationWindow)
	} else {
		throttle = services.NewGenerationThrottle(nil, cfg.AIGenerationBurst, cfg.AIGenerationWindow)
	}
	log.Printf("🛡️  [THROTTLE] AI generations limited to %d per %s", cfg.AIGenerationBurst, cfg.AIGenerationWindow)

	quotaService := services.NewQuotaService(db)
	summaryService := services.NewSummaryService(db, quotaService)
	userService := services.NewUserService(db, throttle)

	var monitor *services.APIMonitor
	if requestLogStore != nil {
		monitor = services.NewAPIMonitor(requestLogStore)
	} else {
		monitor = services.NewAPIMonitor(nil)
	}

	var jwtAuth *auth.LocalJWTAuth
	if cfg.JWTSecret != "" {
		jwtAuth, err = auth.NewLocalJWTAuth(cfg.JWTSecret, 0)
		if err != nil {
			log.Fatalf("❌ Failed to initialize JWT auth: %v", err)
		}
		log.Println("🔐 JWT authentication enabled")
	} else {
		log.Println("⚠️  JWT_SECRET not set - authentication bypassed (development mode)")
	}

	app := fiber.New(fiber.Config{
		AppName:      "PaperDigest v1.0",
		ErrorHandler: middleware.ErrorHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		BodyLimit:    4 * 1024 * 1024, // six sections of up to 50k characters each
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(middleware.SecurityHeaders())

	// Prometheus metrics middleware
	prometheus := fiberprometheus.New("paperdigest")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	allowCredentials := cfg.AllowedOrigins != "*"
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     "GET,POST,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization",
		AllowCredentials: allowCredentials,
	}))
	log.Printf("🔒 [SECURITY] CORS allowed origins: %s", cfg.AllowedOrigins)

	rateLimitConfig := middleware.LoadRateLimitConfig()
	app.Use("/api", middleware.GlobalAPIRateLimiter(rateLimitConfig))
	log.Printf("🛡️  [RATE-LIMIT] Loaded config: Global=%d/min, Auth=%d/min",
		rateLimitConfig.GlobalAPIMax,
		rateLimitConfig.AuthenticatedMax,
	)

	handlers.RegisterRoutes(app, handlers.Dependencies{
		Config:    cfg,
		DB:        db,
		JWTAuth:   jwtAuth,
		Users:     userService,
		Quota:     quotaService,
		Summaries: summaryService,
		Throttle:  throttle,
		Monitor:   monitor,
		RateLimit: rateLimitConfig,
	})

	// Background jobs
	var jobScheduler *jobs.JobScheduler
	if cfg.MetricsReportCron != "" {
		jobScheduler, err = jobs.NewJobScheduler()
		if err != nil {
			log.Printf("⚠️  Failed to create job scheduler: %v", err)
		} else {
			reportJob := jobs.NewMetricsReportJob(monitor, requestLogStore, time.Hour)
			if err := jobScheduler.Register("metrics_report", cfg.MetricsReportCron, reportJob); err != nil {
				log.Printf("⚠️  Failed to register metrics report job: %v", err)
			}
			jobScheduler.Start()
			log.Printf("🕐 Background jobs: metrics report (%s UTC)", cfg.MetricsReportCron)
		}
	}

	log.Printf("✅ Server ready on port %s", cfg.Port)
	log.Printf("📡 Health check: http://localhost:%s/health", cfg.Port)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	shutdownDone := shutdownOnSignal(sigChan, app, jobScheduler, monitor)

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}

	<-shutdownDone
	log.Println("👋 Server stopped")
}

// shutdownOnSignal stops the scheduler and the server once sig fires, then
// drains pending audit log writes. The returned channel closes when done;
// main waits on it so deferred store closes run last.
func shutdownOnSignal(sig <-chan os.Signal, app *fiber.App, scheduler *jobs.JobScheduler, monitor *services.APIMonitor) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-sig

		log.Println("🛑 Shutting down server...")

		if scheduler != nil {
			if err := scheduler.Stop(); err != nil {
				log.Printf("⚠️ Error stopping job scheduler: %v", err)
			}
		}

		if err := app.ShutdownWithTimeout(15 * time.Second); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}

		monitor.Flush()
	}()
	return done
}
