package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/medspa-pipeline/internal/pipeline"
)

// Config holds application configuration
type Config struct {
	Port        string
	Env         string
	LogLevel    string
	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Staff tokens for the board API and the live stats handshake
	StaffJWTSecret string
	StaffTokenTTL  time.Duration

	// Board layout
	PipelineStages     []string
	DestructiveStage   string
	QualificationStage string
	ConvertedStage     string
	PageSize           int
	NotificationTTL    time.Duration
	HideEmptyStages    bool

	// Qualification round-robin, "id:Name" entries
	AssignmentStaff []string

	// Per-org API rate limit; zero disables it
	RateLimitPerMinute int

	// Exports
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	ExportBucket        string
	ExportPrefix        string

	// Board client (boardctl)
	APIBaseURL  string
	APIToken    string
	StatsWSURL  string
	StatsOrigin string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		StaffJWTSecret: getEnv("STAFF_JWT_SECRET", ""),
		StaffTokenTTL:  getEnvAsDuration("STAFF_TOKEN_TTL", 12*time.Hour),

		PipelineStages:     getEnvAsList("PIPELINE_STAGES", nil),
		DestructiveStage:   strings.ToLower(getEnv("PIPELINE_DESTRUCTIVE_STAGE", string(pipeline.StageRejected))),
		QualificationStage: strings.ToLower(getEnv("PIPELINE_QUALIFICATION_STAGE", string(pipeline.StageQualified))),
		ConvertedStage:     strings.ToLower(getEnv("PIPELINE_CONVERTED_STAGE", string(pipeline.StageConverted))),
		PageSize:           getEnvAsInt("PIPELINE_PAGE_SIZE", pipeline.DefaultPageSize),
		NotificationTTL:    getEnvAsDuration("PIPELINE_NOTIFICATION_TTL", pipeline.DefaultNotificationTTL),
		HideEmptyStages:    getEnvAsBool("PIPELINE_HIDE_EMPTY", false),

		AssignmentStaff: getEnvAsList("ASSIGNMENT_STAFF", nil),

		RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 600),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		ExportBucket:        getEnv("EXPORT_BUCKET", ""),
		ExportPrefix:        getEnv("EXPORT_PREFIX", "exports"),

		APIBaseURL:  getEnv("PIPELINE_API_URL", "http://localhost:8080/api/v1"),
		APIToken:    getEnv("PIPELINE_API_TOKEN", ""),
		StatsWSURL:  getEnv("PIPELINE_STATS_WS_URL", "ws://localhost:8080/ws/stats"),
		StatsOrigin: getEnv("PIPELINE_STATS_ORIGIN", "http://localhost"),
	}
}

// BoardConfig translates the board settings. Stages left unset fall back
// to the stock clinic pipeline; the result still needs Validate.
func (c *Config) BoardConfig() pipeline.BoardConfig {
	cfg := pipeline.DefaultBoardConfig()
	if stages := pipeline.ParseStages(c.PipelineStages); len(stages) > 0 {
		cfg.Stages = stages
	}
	cfg.DestructiveStage = pipeline.Stage(c.DestructiveStage)
	cfg.QualificationStage = pipeline.Stage(c.QualificationStage)
	cfg.ConvertedStage = pipeline.Stage(c.ConvertedStage)
	if c.PageSize > 0 {
		cfg.PageSize = c.PageSize
	}
	if c.NotificationTTL > 0 {
		cfg.NotificationTTL = c.NotificationTTL
	}
	cfg.HideEmpty = c.HideEmptyStages
	return cfg
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated variable, dropping blanks.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
