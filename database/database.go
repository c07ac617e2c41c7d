package database

import (
	"context"
	"fmt"
	"time"

	"trainhub_go/config"
	"trainhub_go/models"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB
var RedisClient *redis.Client

// Connect initializes the database and Redis connections
func Connect() {
	connectDatabase()
	connectRedis()
}

// Dialector picks the gorm driver for the configured backend.
func Dialector(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case "mysql", "":
		return mysql.Open(dsn), nil
	case "postgres":
		return postgres.Open(dsn), nil
	case "sqlite":
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Open connects to the given backend and tunes its pool. SQLite is
// limited to a single connection so writers queue instead of failing
// with "database is locked".
func Open(driver, dsn string, gormLogger logger.Interface) (*gorm.DB, error) {
	dialector, err := Dialector(driver, dsn)
	if err != nil {
		return nil, err
	}
	if gormLogger == nil {
		gormLogger = logger.Default.LogMode(logger.Silent)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                                   gormLogger,
		DisableForeignKeyConstraintWhenMigrating: false,
		NowFunc:                                  func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	if driver == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(50)
		sqlDB.SetConnMaxLifetime(55 * time.Minute)
	}
	return db, nil
}

// connectDatabase initializes the database connection
func connectDatabase() {
	var gormLogger logger.Interface
	if config.AppConfig.AppEnv == "development" {
		gormLogger = logger.Default.LogMode(logger.Info)
	} else {
		gormLogger = logger.Default.LogMode(logger.Silent)
	}

	// Retry logic for databases that come up after the API container
	var err error
	for attempt := 1; attempt <= 8; attempt++ {
		DB, err = Open(config.AppConfig.DBDriver, config.AppConfig.GetDSN(), gormLogger)
		if err == nil {
			break
		}
		logrus.WithError(err).WithField("attempt", attempt).Warn("Database connect attempt failed")
		time.Sleep(time.Duration(attempt*attempt) * 300 * time.Millisecond)
	}
	if DB == nil {
		logrus.WithError(err).Fatal("Failed to connect to database after retries")
	}

	logrus.WithField("driver", config.AppConfig.DBDriver).Info("Database connected successfully")

	if config.AppConfig.SkipMigrate {
		logrus.Info("SKIP_MIGRATE=true, skipping auto migration")
		return
	}
	if err := AutoMigrate(DB); err != nil {
		logrus.WithError(err).Fatal("Auto migration failed")
	}
	logrus.Info("Database migration completed successfully")
}

// AutoMigrate performs automatic database migration
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(models.All()...)
}

// connectRedis initializes Redis connection
func connectRedis() {
	RedisClient = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", config.AppConfig.RedisHost, config.AppConfig.RedisPort),
		Password: config.AppConfig.RedisPassword,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := RedisClient.Ping(ctx).Result(); err != nil {
		logrus.WithError(err).Warn("Redis connection failed, continuing with in-memory token revocation and no stats cache")
		RedisClient = nil
		return
	}

	logrus.Info("Redis connected successfully")
}

// GetRedisClient returns the Redis client instance
func GetRedisClient() *redis.Client {
	return RedisClient
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}

// Close closes the database and Redis connections
func Close() {
	if RedisClient != nil {
		if err := RedisClient.Close(); err != nil {
			logrus.WithError(err).Error("Error closing redis connection")
		}
	}
	if DB == nil {
		return
	}
	sqlDB, err := DB.DB()
	if err != nil {
		logrus.WithError(err).Error("Error getting database instance")
		return
	}
	if err := sqlDB.Close(); err != nil {
		logrus.WithError(err).Error("Error closing database connection")
		return
	}
	logrus.Info("Database connection closed")
}
