package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ssm"
	"github.com/joho/godotenv"
)

type Config struct {
	// Database
	DBDriver   string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPath     string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string

	// JWT
	JWTSecret    string
	JWTExpiresIn time.Duration

	// AWS S3
	AWSRegion    string
	S3BucketName string

	// Server
	Port               string
	AppEnv             string
	RateLimitPerMinute int

	// Logging / error reporting
	LogLevel  string
	LogFile   string
	SentryDSN string

	// Background jobs
	JobsEnabled           bool
	CompleteSchedulesCron string
	ArchiveCron           string
	ArchiveAfterDays      int

	// Feature Toggles
	SkipMigrate bool
}

// GetDSN builds the driver specific connection string.
func (c *Config) GetDSN() string {
	switch c.DBDriver {
	case "postgres":
		return "host=" + c.DBHost + " port=" + c.DBPort + " user=" + c.DBUser + " password=" + c.DBPassword +
			" dbname=" + c.DBName + " sslmode=disable TimeZone=UTC"
	case "sqlite":
		return c.DBPath
	default:
		return c.DBUser + ":" + c.DBPassword + "@tcp(" + c.DBHost + ":" + c.DBPort + ")/" + c.DBName + "?charset=utf8mb4&parseTime=True&loc=Local"
	}
}

// S3Enabled reports whether report uploads and log archiving have somewhere to go.
func (c *Config) S3Enabled() bool {
	return strings.TrimSpace(c.S3BucketName) != ""
}

var AppConfig *Config

func LoadConfig() {
	useSSM := getEnv("USE_SSM", "false") == "true"

	var paramMap map[string]string

	basePath := strings.TrimRight(getEnv("SSM_BASE_PATH", "/trainhub"), "/")
	stage := getEnv("STAGE", getEnv("APP_ENV", "production"))
	prefix := basePath + "/" + stage

	if useSSM {
		sess, err := session.NewSession(&aws.Config{Region: aws.String(getEnv("AWS_REGION", "ap-southeast-1"))})
		if err != nil {
			log.Fatal("Failed to create AWS session:", err)
		}
		log.Printf("Using AWS SSM Parameter Store (prefix=%s)", prefix)
		paramMap = fetchSSMParameters(ssm.New(sess), prefix)
	} else {
		if err := godotenv.Load(); err != nil {
			log.Println("Warning: .env file not found, using environment variables")
		}
	}

	getVal := func(key, def string) string {
		if useSSM {
			if v, ok := paramMap[strings.ToUpper(key)]; ok && v != "" {
				return v
			}
		}
		return getEnv(strings.ToUpper(key), def)
	}

	jwtExpires, err := ParseDuration(getVal("JWT_EXPIRES_IN", "24h"))
	if err != nil {
		log.Fatal("Invalid JWT_EXPIRES_IN format:", err)
	}

	AppConfig = &Config{
		DBDriver:   strings.ToLower(getVal("DB_DRIVER", "mysql")),
		DBHost:     getVal("DB_HOST", "localhost"),
		DBPort:     getVal("DB_PORT", "3306"),
		DBUser:     getVal("DB_USER", "root"),
		DBPassword: getVal("DB_PASSWORD", ""),
		DBName:     getVal("DB_NAME", "trainhub"),
		DBPath:     getVal("DB_PATH", "trainhub.db"),

		RedisHost:     getVal("REDIS_HOST", "localhost"),
		RedisPort:     getVal("REDIS_PORT", "6379"),
		RedisPassword: getVal("REDIS_PASSWORD", ""),

		JWTSecret:    getVal("JWT_SECRET", "your_super_secret_jwt_key"),
		JWTExpiresIn: jwtExpires,

		AWSRegion:    getVal("AWS_REGION", "ap-southeast-1"),
		S3BucketName: getVal("S3_BUCKET_NAME", ""),

		Port:               getVal("PORT", "8000"),
		AppEnv:             getVal("APP_ENV", "development"),
		RateLimitPerMinute: intVal(getVal("RATE_LIMIT_PER_MINUTE", "60"), 60),

		LogLevel:  getVal("LOG_LEVEL", "info"),
		LogFile:   getVal("LOG_FILE", "logs/app.log"),
		SentryDSN: getVal("SENTRY_DSN", ""),

		JobsEnabled:           boolVal(getVal("JOBS_ENABLED", "true")),
		CompleteSchedulesCron: getVal("COMPLETE_SCHEDULES_CRON", "@every 15m"),
		ArchiveCron:           getVal("ARCHIVE_CRON", "0 3 * * *"),
		ArchiveAfterDays:      intVal(getVal("ARCHIVE_AFTER_DAYS", "90"), 90),

		SkipMigrate: boolVal(getVal("SKIP_MIGRATE", "false")),
	}

	validateConfig(AppConfig, useSSM)
}

// ParseDuration accepts Go durations plus the "7d" and "2w" shorthands.
func ParseDuration(raw string) (time.Duration, error) {
	d, err := time.ParseDuration(raw)
	if err == nil {
		return d, nil
	}
	s := strings.TrimSpace(strings.ToLower(raw))
	if len(s) > 1 {
		n, convErr := strconv.Atoi(s[:len(s)-1])
		if convErr == nil {
			switch s[len(s)-1] {
			case 'd':
				return time.Duration(n) * 24 * time.Hour, nil
			case 'w':
				return time.Duration(n*7) * 24 * time.Hour, nil
			}
		}
	}
	return 0, err
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func boolVal(s string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	return err == nil && b
}

func intVal(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return n
}

// fetchSSMParameters reads all parameters under prefix and returns a map with UPPERCASE keys.
func fetchSSMParameters(client *ssm.SSM, prefix string) map[string]string {
	out := make(map[string]string)
	var next *string
	for {
		in := &ssm.GetParametersByPathInput{
			Path:           aws.String(prefix),
			WithDecryption: aws.Bool(true),
			Recursive:      aws.Bool(true),
			NextToken:      next,
		}
		resp, err := client.GetParametersByPath(in)
		if err != nil {
			log.Printf("Warning: unable to fetch SSM parameters for prefix %s: %v", prefix, err)
			break
		}
		for _, p := range resp.Parameters {
			if p.Name == nil || p.Value == nil {
				continue
			}
			name := *p.Name
			key := name[strings.LastIndex(name, "/")+1:]
			if key == "" {
				continue
			}
			out[strings.ToUpper(key)] = *p.Value
		}
		if resp.NextToken == nil || *resp.NextToken == "" {
			break
		}
		next = resp.NextToken
	}
	return out
}

func validateConfig(c *Config, usedSSM bool) {
	switch c.DBDriver {
	case "mysql", "postgres", "sqlite":
	default:
		log.Fatalf("Unsupported DB_DRIVER %q (mysql, postgres or sqlite)", c.DBDriver)
	}
	if c.RateLimitPerMinute <= 0 {
		log.Fatal("RATE_LIMIT_PER_MINUTE must be positive")
	}

	// Only enforce stricter rules in production
	if strings.ToLower(c.AppEnv) != "production" {
		return
	}
	required := map[string]string{
		"JWT_SECRET": c.JWTSecret,
	}
	if c.DBDriver != "sqlite" {
		required["DB_PASSWORD"] = c.DBPassword
	}
	for k, v := range required {
		if strings.TrimSpace(v) == "" {
			log.Fatalf("Missing required secret %s in production (SSM=%v)", k, usedSSM)
		}
	}
	if len(c.JWTSecret) < 16 {
		log.Fatal("JWT_SECRET too short (min 16 chars)")
	}
}
