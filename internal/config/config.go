package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Gemini   GeminiConfig
	Storage  StorageConfig
	Engine   EngineConfig
	Reports  ReportsConfig
	Worker   WorkerConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogJSON  bool
	LogDebug bool
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

type StorageConfig struct {
	UploadPath       string
	MaxFileSize      int64
	MaxFiles         int
	AllowedMimeTypes []string
}

// EngineKind selects the ScoringEngine implementation.
type EngineKind string

const (
	EngineProcess EngineKind = "process"
	EngineGemini  EngineKind = "gemini"
)

type EngineConfig struct {
	Kind           EngineKind
	Interpreter    string
	EntryPoint     string
	Timeout        time.Duration
	MaxOutputBytes int64
	Env            []string
}

type ReportsConfig struct {
	// ServedDir is the canonical directory reports are streamed from.
	ServedDir string
	// ProducerDir is where the engine writes reports on its own.
	ProducerDir string
	URLPrefix   string
}

type WorkerConfig struct {
	BatchConcurrency int
	Concurrency      int
	RetryMaxAttempts int
	PollInterval     time.Duration
	StaleAfter       time.Duration
}

var defaultEngineEnv = []string{
	"PYTHONIOENCODING=utf-8",
	"PYTHONLEGACYWINDOWSFSENCODING=0",
	"PYTHONWARNINGS=ignore",
}

var defaultMimeTypes = []string{
	"application/pdf",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/msword",
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found. Using default values.")
	}

	return &Config{
		Server: ServerConfig{
			Port:     getEnv("PORT", "3000"),
			Env:      getEnv("ENV", "development"),
			LogJSON:  getEnvAsBool("LOG_JSON", false),
			LogDebug: getEnvAsBool("LOG_DEBUG", false),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "ats_analyzer"),
		},
		Gemini: GeminiConfig{
			APIKey: getEnv("GEMINI_API_KEY", ""),
			Model:  getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		},
		Storage: StorageConfig{
			UploadPath:       getEnv("UPLOAD_PATH", "./uploads"),
			MaxFileSize:      getEnvAsInt64("MAX_FILE_SIZE", 10485760),
			MaxFiles:         getEnvAsInt("MAX_FILES", 10),
			AllowedMimeTypes: getEnvAsList("ALLOWED_MIME_TYPES", defaultMimeTypes),
		},
		Engine: EngineConfig{
			Kind:           EngineKind(strings.ToLower(getEnv("ENGINE_KIND", string(EngineProcess)))),
			Interpreter:    getEnv("ENGINE_INTERPRETER", "python3"),
			EntryPoint:     getEnv("ENGINE_ENTRY_POINT", "./ml-models/resume_matcher/enhanced_analyzer.py"),
			Timeout:        getEnvAsDuration("ENGINE_TIMEOUT", "180s"),
			MaxOutputBytes: getEnvAsInt64("ENGINE_MAX_OUTPUT", 10485760),
			Env:            getEnvAsList("ENGINE_ENV", defaultEngineEnv),
		},
		Reports: ReportsConfig{
			ServedDir:   getEnv("REPORTS_DIR", "./reports"),
			ProducerDir: getEnv("REPORTS_PRODUCER_DIR", "./ml-models/resume_matcher/reports"),
			URLPrefix:   getEnv("REPORTS_URL_PREFIX", "/api/v1/report"),
		},
		Worker: WorkerConfig{
			BatchConcurrency: getEnvAsInt("BATCH_CONCURRENCY", 1),
			Concurrency:      getEnvAsInt("WORKER_CONCURRENCY", 2),
			RetryMaxAttempts: getEnvAsInt("RETRY_MAX_ATTEMPTS", 3),
			PollInterval:     getEnvAsDuration("WORKER_POLL_INTERVAL", "10s"),
			StaleAfter:       getEnvAsDuration("WORKER_STALE_AFTER", "1h"),
		},
	}
}

func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
	)
}

// EnsureDirectories creates the upload and report directories. Calling it
// again is a no-op for directories that already exist.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Storage.UploadPath, c.Reports.ServedDir, c.Reports.ProducerDir}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(filepath.Clean(dir), 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}

// getEnvAsList reads a comma separated list.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return append([]string(nil), defaultValue...)
	}

	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
