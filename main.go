package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"trainhub_go/config"
	"trainhub_go/controllers"
	"trainhub_go/database"
	"trainhub_go/database/seeders"
	"trainhub_go/middleware"
	"trainhub_go/observability"
	"trainhub_go/routes"
	"trainhub_go/services"
	"trainhub_go/services/websocket"
	"trainhub_go/storage"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

const (
	serviceName = "TrainHub API"
	version     = "1.0.0"
)

func main() {
	root := &cobra.Command{
		Use:          "trainhub",
		Short:        "Training management API",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			config.LoadConfig()
			setupLogging(config.AppConfig.LogLevel, config.AppConfig.LogFile, config.AppConfig.AppEnv)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API, websocket hub and background jobs",
			RunE: func(cmd *cobra.Command, args []string) error {
				return serve()
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply database migrations and exit",
			RunE: func(cmd *cobra.Command, args []string) error {
				config.AppConfig.SkipMigrate = true
				database.Connect()
				defer database.Close()
				if err := database.AutoMigrate(database.DB); err != nil {
					return err
				}
				logrus.Info("Database migration completed successfully")
				return nil
			},
		},
		&cobra.Command{
			Use:   "seed",
			Short: "Migrate and load demo users, courses and schedules",
			RunE: func(cmd *cobra.Command, args []string) error {
				database.Connect()
				defer database.Close()
				return seeders.SeedAll(database.DB)
			},
		},
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serve() error {
	cfg := config.AppConfig

	flush, err := observability.InitSentry(cfg.SentryDSN, cfg.AppEnv, version)
	if err != nil {
		logrus.WithError(err).Warn("Sentry disabled")
	}
	defer flush()

	database.Connect()
	defer database.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Object storage is optional; keep the interface nil when it is off.
	var store storage.ObjectStore
	if cfg.S3Enabled() {
		s3Store, err := storage.NewS3Store(ctx, cfg.AWSRegion, cfg.S3BucketName)
		if err != nil {
			logrus.WithError(err).Warn("S3 unavailable, report storage and log archiving disabled")
		} else {
			store = s3Store
		}
	}

	var revoked services.RevocationStore
	if rdb := database.GetRedisClient(); rdb != nil {
		revoked = services.NewRedisRevocationStore(rdb)
	} else {
		revoked = services.NewMemoryRevocationStore()
	}

	wsHub := websocket.NewHub()
	go wsHub.Run(ctx)

	db := database.GetDB()
	locks := services.NewKeyedLocker()
	activity := services.NewActivityService(db, wsHub, store)

	dashboard := services.NewDashboardService(db, database.GetRedisClient(), activity)
	activity.OnRecord(dashboard.InvalidateStats)

	deps := routes.Deps{
		Auth:        services.NewAuthService(db),
		Tokens:      services.NewTokenService(cfg.JWTSecret, cfg.JWTExpiresIn, revoked),
		Courses:     services.NewCourseService(db),
		Roster:      services.NewRosterService(db),
		Schedules:   services.NewScheduleService(db, locks),
		Enrollments: services.NewEnrollmentService(db, locks),
		Attendance:  services.NewAttendanceService(db, locks),
		Dashboard:   dashboard,
		Reports:     services.NewReportService(db, store),
		Activity:    activity,
		Health: services.NewHealthService(db, database.GetRedisClient(), services.HealthInfo{
			Service:     serviceName,
			Version:     version,
			Environment: cfg.AppEnv,
			Flags: services.HealthFlags{
				SkipMigrate: cfg.SkipMigrate,
				JobsEnabled: cfg.JobsEnabled,
				S3Enabled:   store != nil,
			},
		}),
		Hub:                wsHub,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: controllers.ErrorHandler,
		AppName:      serviceName,
	})

	// Global middleware
	app.Use(middleware.RequestID())
	app.Use(middleware.LoggerMiddleware())
	app.Use(recover.New())
	app.Use(helmet.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,HEAD,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	routes.SetupRoutes(app, deps)

	// 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":  "Route not found",
			"path":   c.Path(),
			"method": c.Method(),
		})
	})

	var jobs *services.JobRunner
	if cfg.JobsEnabled {
		jobs, err = startJobs(db, locks, activity, store != nil, cfg)
		if err != nil {
			return err
		}
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.WithFields(logrus.Fields{
			"port":        cfg.Port,
			"environment": cfg.AppEnv,
			"version":     version,
		}).Info("Server starting")
		errCh <- app.Listen(":" + cfg.Port)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logrus.Info("Shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 15*time.Second)
	defer stop()
	if jobs != nil {
		jobs.Stop(shutdownCtx)
	}
	return app.ShutdownWithContext(shutdownCtx)
}

func startJobs(db *gorm.DB, locks *services.KeyedLocker, activity *services.ActivityService, archive bool, cfg *config.Config) (*services.JobRunner, error) {
	runner := services.NewJobRunner()

	completion := services.NewCompletionJob(db, locks)
	err := runner.Add(services.JobCompleteSchedules, cfg.CompleteSchedulesCron, func(ctx context.Context) error {
		_, err := completion.Run(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	if archive {
		days := cfg.ArchiveAfterDays
		err = runner.Add(services.JobArchiveActivity, cfg.ArchiveCron, func(ctx context.Context) error {
			_, err := activity.ArchiveOlderThan(ctx, days)
			return err
		})
		if err != nil {
			return nil, err
		}
	}

	runner.Start()
	return runner, nil
}

// setupLogging configures the logging system
func setupLogging(level, file, env string) {
	logrus.SetFormatter(&logrus.JSONFormatter{})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)

	// Log to stdout in development, and to both stdout and file elsewhere
	if env == "development" || file == "" {
		logrus.SetOutput(os.Stdout)
		return
	}
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		logrus.WithError(err).Warn("Could not create log directory")
		return
	}
	f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
	if err != nil {
		logrus.WithError(err).Warn("Could not open log file")
		return
	}
	logrus.SetOutput(io.MultiWriter(os.Stdout, f))
}
