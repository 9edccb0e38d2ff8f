package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/roster-api/internal/config"
	"github.com/noah-isme/roster-api/internal/database"
	"github.com/noah-isme/roster-api/internal/dto"
	"github.com/noah-isme/roster-api/internal/handler"
	"github.com/noah-isme/roster-api/internal/middleware"
	"github.com/noah-isme/roster-api/internal/models"
	"github.com/noah-isme/roster-api/internal/repository"
	"github.com/noah-isme/roster-api/internal/router"
	"github.com/noah-isme/roster-api/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()

	db, err := database.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if cfg.AutoMigrate {
		if err := database.Migrate(db, logger, &models.Student{}, &models.ActivityLog{}); err != nil {
			log.Fatalf("failed to migrate database: %v", err)
		}
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	} else {
		logger.Warn().Msg("redis url not configured; roster cache disabled")
	}

	natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName)
	if err != nil {
		log.Fatalf("failed to connect to nats: %v", err)
	}
	if natsConn != nil {
		defer natsConn.Close()
	}

	schemas, err := dto.LoadSchemas()
	if err != nil {
		log.Fatalf("failed to load request schemas: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	validate := dto.NewValidator()

	studentRepo := repository.NewStudentRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)

	cache := service.NewRosterCache(redisClient, cfg.CacheTTL, logger)
	broker := service.NewEventBroker(redisClient, natsConn, cfg.EventsChannel, logger)
	broker.Start(ctx)

	activityService := service.NewActivityService(activityRepo, studentRepo, logger)
	studentService := service.NewStudentService(studentRepo, validate, cache, broker, activityService, logger)
	rosterFileService := service.NewRosterFileService(studentRepo, validate, cache, broker, activityService, cfg.ImportMaxBytes, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    int(cfg.ImportMaxBytes) + 1<<20,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AllowOrigins: cfg.CORSAllowOrigins})
	router.Register(app, cfg, router.Dependencies{
		StudentHandler:       handler.NewStudentHandler(studentService, activityService, schemas, logger),
		RosterFileHandler:    handler.NewRosterFileHandler(rosterFileService, logger),
		StudentStreamHandler: handler.NewStudentStreamHandler(broker, logger),
		DatabaseProbe:        databaseProbe(db),
	})

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddress()).Str("driver", cfg.DatabaseDriver).Msg("roster api listening")
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(ctx, app, logger)
}

func databaseProbe(db *gorm.DB) handler.HealthProbe {
	return func(ctx context.Context) error {
		return database.Ping(ctx, db)
	}
}

func waitForShutdown(ctx context.Context, app *fiber.App, logger zerolog.Logger) {
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
