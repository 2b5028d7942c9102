// main.go - SnapQuest API server
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"snapquest/config"
	"snapquest/database"
	"snapquest/handlers"
	"snapquest/middleware"
	"snapquest/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("FATAL: invalid configuration: ", err)
	}

	db, err := database.Connect(cfg.DSN(), !cfg.IsProduction())
	if err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	defer database.Close(db)

	store := database.NewStore(db, database.NewFeed())

	quests, err := services.NewQuestCache(store, cfg.QuestCacheSize)
	if err != nil {
		log.Fatal("Failed to create quest cache:", err)
	}
	defer quests.Close()

	notifier := services.NewStoreNotifier(store)
	eligibility := services.NewEligibilityEvaluator(store, quests, cfg.Location())
	detector := services.NewCompletionDetector(store, notifier)
	contributions := services.NewContributionAggregator(store, detector)
	attempts := services.NewAttemptTracker(store, eligibility, contributions, notifier, services.RewardPolicy{
		SpeedBonusXP:      cfg.SpeedBonusXP,
		SpeedBonusMinutes: cfg.SpeedBonusMinutes,
		FirstTimeBonusXP:  cfg.FirstTimeBonusXP,
	})
	teams := services.NewTeamService(store, contributions)
	contests := services.NewContestService(store, quests, services.VotingWindow{
		OpenHour: cfg.VotingOpenHour,
		Location: cfg.Location(),
	}, notifier)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Expire abandoned attempts and overdue challenges in the background
	sweeper := services.NewSweeper(store, attempts, cfg.AttemptMaxDuration, cfg.SweepInterval)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	limiter := middleware.NewRateLimiter(cfg.RateLimitMaxRequests, cfg.RateLimitWindow)
	limiterDone := make(chan struct{})
	defer close(limiterDone)
	go limiter.RunCleanup(cfg.RateLimitWindow, 10*cfg.RateLimitWindow, limiterDone)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler,
		BodyLimit:    4 * 1024 * 1024, // 4MB
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} (${latency})\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: cfg.CORSOrigins != "*",
	}))

	handlers.Setup(app, handlers.Services{
		Store:       store,
		Users:       services.NewUserService(store),
		Eligibility: eligibility,
		Attempts:    attempts,
		Teams:       teams,
		Contests:    contests,
	}, handlers.Config{
		JWTSecret:  cfg.JWTSecret,
		Production: cfg.IsProduction(),
		Limiter:    limiter,
	})

	go func() {
		<-ctx.Done()
		log.Println("🛑 Shutting down HTTP server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("⚠️ Shutdown error: %v", err)
		}
	}()

	log.Printf("🚀 HTTP server starting on port %s", cfg.Port)
	log.Printf("📊 Environment: %s", cfg.AppEnv)
	log.Printf("🗳️ Voting opens at %02d:00 %s", cfg.VotingOpenHour, cfg.Location())
	log.Printf("🧹 Attempt sweep every %s (max age %s)", cfg.SweepInterval, cfg.AttemptMaxDuration)
	log.Printf("🌐 WebSocket available at ws://localhost:%s/ws", cfg.Port)

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start HTTP server:", err)
	}
}
