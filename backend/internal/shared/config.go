// ============================================================================
// backend/internal/shared/config.go
// Configuration management and environment variable helpers
// ============================================================================

package shared

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ============================================================================
// Configuration Structs
// ============================================================================

// ServiceConfig holds the configuration for the API server
type ServiceConfig struct {
	ServiceName    string
	HTTPPort       string
	HealthPort     string // gRPC health endpoint
	Environment    string // development, staging, production
	LogLevel       string // debug, info, warn, error
	RequestTimeout time.Duration

	// MongoDB Configuration
	MongoDB MongoConfig

	// Security Configuration
	Security SecurityConfig

	// Spreadsheet ingestion
	Upload UploadConfig

	// CORS Configuration
	CORS CORSConfig
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	JWTSecret          string
	JWTExpirationHours int
	BCryptCost         int // BCrypt hashing cost (10-12 recommended)
}

// UploadConfig controls the spreadsheet ingestion pipeline
type UploadConfig struct {
	BatchSize      int   // rows written concurrently per batch
	MaxUploadBytes int64 // multipart body limit
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           int // in seconds
}

const (
	DefaultHTTPPort       = "8080"
	DefaultHealthPort     = "50051"
	DefaultBatchSize      = 100
	DefaultMaxUploadBytes = 32 << 20
)

// ============================================================================
// Configuration Loading Functions
// ============================================================================

// LoadEnv loads environment variables from .env file
func LoadEnv(envFile string) error {
	if envFile == "" {
		envFile = ".env"
	}

	if err := godotenv.Load(envFile); err != nil {
		return fmt.Errorf("load %s: %w", envFile, err)
	}
	return nil
}

// LoadServiceConfig loads the service configuration from the environment.
// When CONFIG_FILE is set, values from that file override the environment.
func LoadServiceConfig(serviceName string) (*ServiceConfig, error) {
	config := &ServiceConfig{
		ServiceName:    serviceName,
		HTTPPort:       GetEnv("HTTP_PORT", DefaultHTTPPort),
		HealthPort:     GetEnv("HEALTH_PORT", DefaultHealthPort),
		Environment:    GetEnv("ENVIRONMENT", "development"),
		LogLevel:       GetEnv("LOG_LEVEL", "info"),
		RequestTimeout: GetDurationEnv("REQUEST_TIMEOUT", 120*time.Second),
	}

	config.MongoDB = MongoConfig{
		URI:            GetEnv("MONGO_URI", ""),
		Database:       GetEnv("MONGO_DB_NAME", "StudentRecords"),
		ConnectTimeout: GetDurationEnv("MONGO_CONNECT_TIMEOUT", 20*time.Second),
		MaxPoolSize:    uint64(GetIntEnv("MONGO_MAX_POOL_SIZE", 50)),
		MinPoolSize:    uint64(GetIntEnv("MONGO_MIN_POOL_SIZE", 10)),
		MaxIdleTime:    GetDurationEnv("MONGO_MAX_IDLE_TIME", 30*time.Second),
	}

	config.Security = SecurityConfig{
		JWTSecret:          GetEnv("JWT_SECRET", ""),
		JWTExpirationHours: GetIntEnv("JWT_EXPIRATION_HOURS", 24),
		BCryptCost:         GetIntEnv("BCRYPT_COST", 10),
	}

	config.Upload = UploadConfig{
		BatchSize:      GetIntEnv("UPLOAD_BATCH_SIZE", DefaultBatchSize),
		MaxUploadBytes: int64(GetIntEnv("UPLOAD_MAX_BYTES", DefaultMaxUploadBytes)),
	}

	config.CORS = CORSConfig{
		AllowedOrigins:   GetStringSliceEnv("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
		AllowedMethods:   GetStringSliceEnv("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"}),
		AllowedHeaders:   GetStringSliceEnv("CORS_ALLOWED_HEADERS", []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"}),
		AllowCredentials: GetBoolEnv("CORS_ALLOW_CREDENTIALS", true),
		MaxAge:           GetIntEnv("CORS_MAX_AGE", 300),
	}

	if path := GetEnv("CONFIG_FILE", ""); path != "" {
		if err := LoadConfigFile(path, config); err != nil {
			return nil, err
		}
	}

	if err := ValidateServiceConfig(config); err != nil {
		return nil, err
	}

	return config, nil
}

// LoadConfigFile overlays values from a YAML or JSON file onto config.
// Only keys present in the file are applied.
func LoadConfigFile(path string, config *ServiceConfig) error {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if v.IsSet("service.http_port") {
		config.HTTPPort = v.GetString("service.http_port")
	}
	if v.IsSet("service.health_port") {
		config.HealthPort = v.GetString("service.health_port")
	}
	if v.IsSet("service.environment") {
		config.Environment = v.GetString("service.environment")
	}
	if v.IsSet("service.log_level") {
		config.LogLevel = v.GetString("service.log_level")
	}
	if v.IsSet("service.request_timeout") {
		config.RequestTimeout = v.GetDuration("service.request_timeout")
	}

	if v.IsSet("mongodb.uri") {
		config.MongoDB.URI = v.GetString("mongodb.uri")
	}
	if v.IsSet("mongodb.database") {
		config.MongoDB.Database = v.GetString("mongodb.database")
	}
	if v.IsSet("mongodb.max_pool_size") {
		config.MongoDB.MaxPoolSize = v.GetUint64("mongodb.max_pool_size")
	}
	if v.IsSet("mongodb.min_pool_size") {
		config.MongoDB.MinPoolSize = v.GetUint64("mongodb.min_pool_size")
	}

	if v.IsSet("security.jwt_secret") {
		config.Security.JWTSecret = v.GetString("security.jwt_secret")
	}
	if v.IsSet("security.jwt_expiration_hours") {
		config.Security.JWTExpirationHours = v.GetInt("security.jwt_expiration_hours")
	}
	if v.IsSet("security.bcrypt_cost") {
		config.Security.BCryptCost = v.GetInt("security.bcrypt_cost")
	}

	if v.IsSet("upload.batch_size") {
		config.Upload.BatchSize = v.GetInt("upload.batch_size")
	}
	if v.IsSet("upload.max_upload_bytes") {
		config.Upload.MaxUploadBytes = v.GetInt64("upload.max_upload_bytes")
	}

	if v.IsSet("cors.allowed_origins") {
		config.CORS.AllowedOrigins = v.GetStringSlice("cors.allowed_origins")
	}

	return nil
}

// ============================================================================
// Environment Variable Helper Functions
// ============================================================================

// GetEnv retrieves an environment variable or returns a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetIntEnv retrieves an integer environment variable or returns a default value
func GetIntEnv(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		Log.Warnf("Invalid integer value for %s: %s, using default: %d", key, valueStr, defaultValue)
		return defaultValue
	}

	return value
}

// GetBoolEnv retrieves a boolean environment variable or returns a default value
func GetBoolEnv(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		Log.Warnf("Invalid boolean value for %s: %s, using default: %t", key, valueStr, defaultValue)
		return defaultValue
	}

	return value
}

// GetDurationEnv retrieves a duration environment variable or returns a default value
// Supports format like "30s", "5m", "1h"
func GetDurationEnv(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		Log.Warnf("Invalid duration value for %s: %s, using default: %v", key, valueStr, defaultValue)
		return defaultValue
	}

	return value
}

// GetStringSliceEnv retrieves a comma-separated string list or returns a default value
func GetStringSliceEnv(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	var result []string
	for _, part := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	if len(result) == 0 {
		return defaultValue
	}

	return result
}

// ============================================================================
// Configuration Validation
// ============================================================================

// ValidateServiceConfig validates service configuration
func ValidateServiceConfig(config *ServiceConfig) error {
	if config.ServiceName == "" {
		return fmt.Errorf("service name is required")
	}

	if config.HTTPPort == "" {
		return fmt.Errorf("HTTP port is required")
	}

	if config.MongoDB.URI == "" {
		return fmt.Errorf("MONGO_URI environment variable is required")
	}

	if config.MongoDB.Database == "" {
		return fmt.Errorf("MongoDB database name is required")
	}

	if config.Security.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET environment variable is required")
	}

	if config.Upload.BatchSize <= 0 {
		return fmt.Errorf("upload batch size must be positive, got %d", config.Upload.BatchSize)
	}

	return nil
}

// ============================================================================
// Configuration Display (for debugging)
// ============================================================================

// PrintConfig logs configuration (sanitized) for debugging
func PrintConfig(config *ServiceConfig) {
	Log.WithFields(map[string]interface{}{
		"service":          config.ServiceName,
		"http_port":        config.HTTPPort,
		"health_port":      config.HealthPort,
		"environment":      config.Environment,
		"log_level":        config.LogLevel,
		"database":         config.MongoDB.Database,
		"max_pool_size":    config.MongoDB.MaxPoolSize,
		"min_pool_size":    config.MongoDB.MinPoolSize,
		"jwt_expiration_h": config.Security.JWTExpirationHours,
		"bcrypt_cost":      config.Security.BCryptCost,
		"batch_size":       config.Upload.BatchSize,
		"max_upload_bytes": config.Upload.MaxUploadBytes,
		"cors_origins":     config.CORS.AllowedOrigins,
	}).Info("Service configuration")
}

// ============================================================================
// Environment-Specific Configuration
// ============================================================================

// IsDevelopment checks if running in development environment
func IsDevelopment(config *ServiceConfig) bool {
	return config.Environment == "development"
}

// IsProduction checks if running in production environment
func IsProduction(config *ServiceConfig) bool {
	return config.Environment == "production"
}

// GetLogLevel returns the configured log level
func GetLogLevel(config *ServiceConfig) string {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if validLevels[config.LogLevel] {
		return config.LogLevel
	}

	return "info" // Default
}
