package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Parser and mesher backend names
const (
	BackendStep = "step"
	BackendGmsh = "gmsh"
)

// Config holds the application configuration
type Config struct {
	// Database
	DatabaseURL string

	// Server
	ServerPort string

	// Runs
	WorkRoot          string
	PolicyFile        string
	MaxConcurrentRuns int

	// Backends
	ParserBackend    string
	MesherBackend    string
	GmshPath         string
	GmshTimeout      time.Duration
	AspectRatioLimit float64

	// AWS
	S3Bucket  string
	AWSRegion string

	LogLevel string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	maxRuns, err := getEnvInt("MAX_CONCURRENT_RUNS", 2)
	if err != nil {
		return nil, err
	}
	gmshTimeout, err := getEnvDuration("GMSH_TIMEOUT", 10*time.Minute)
	if err != nil {
		return nil, err
	}
	aspectLimit, err := getEnvFloat("ASPECT_RATIO_LIMIT", 50)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DatabaseURL:       getEnv("DATABASE_URL", "postgres://localhost/mesh_orchestrator?sslmode=disable"),
		ServerPort:        getEnv("SERVER_PORT", "8080"),
		WorkRoot:          getEnv("WORK_ROOT", "workspace"),
		PolicyFile:        getEnv("POLICY_FILE", ""),
		MaxConcurrentRuns: maxRuns,
		ParserBackend:     getEnv("PARSER_BACKEND", BackendGmsh),
		MesherBackend:     getEnv("MESHER_BACKEND", BackendGmsh),
		GmshPath:          getEnv("GMSH_PATH", "gmsh"),
		GmshTimeout:       gmshTimeout,
		AspectRatioLimit:  aspectLimit,
		S3Bucket:          getEnv("S3_BUCKET", ""),
		AWSRegion:         getEnv("AWS_REGION", "us-east-1"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and backend names
func (c *Config) Validate() error {
	if c.WorkRoot == "" {
		return errors.New("WORK_ROOT is required")
	}
	if c.MaxConcurrentRuns < 1 {
		return errors.New("MAX_CONCURRENT_RUNS must be >= 1")
	}
	switch c.ParserBackend {
	case BackendStep, BackendGmsh:
	default:
		return fmt.Errorf("unknown PARSER_BACKEND %q", c.ParserBackend)
	}
	if c.MesherBackend != BackendGmsh {
		return fmt.Errorf("unknown MESHER_BACKEND %q", c.MesherBackend)
	}
	if c.AspectRatioLimit <= 0 {
		return errors.New("ASPECT_RATIO_LIMIT must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", key, err)
	}
	return f, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	return d, nil
}
