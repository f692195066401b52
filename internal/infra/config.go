package infra

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv   string
	Port     string
	LogLevel string

	UploadFolder     string
	ResultFolder     string
	MaxContentLength int64

	AIAPIKey     string
	AIBaseURL    string
	ImageAPIKey  string
	ImageBaseURL string
	VisionModel  string
	ImageModel   string

	GenerationTimeout  time.Duration
	GenerationInterval time.Duration
	APIRequestTimeout  time.Duration
	NumPoses           int
	PoseConcurrency    int

	DailyUsageLimit   int
	UsageStore        string
	RedisURL          string
	SessionCookieName string

	RateLimitPerMin    int
	CORSAllowedOrigins []string
	GeoIPDBPath        string
	SentryDSN          string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

const maxPoses = 8

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:   getEnv("APP_ENV", "development"),
		Port:     getEnv("PORT", "5000"),
		LogLevel: strings.ToLower(os.Getenv("LOG_LEVEL")),

		UploadFolder:     getEnv("UPLOAD_FOLDER", "uploads"),
		ResultFolder:     getEnv("RESULT_FOLDER", "results"),
		MaxContentLength: int64(getEnvInt("MAX_CONTENT_LENGTH", 16*1024*1024)),

		AIAPIKey:     os.Getenv("AI_MODELSCOPE_API_KEY"),
		AIBaseURL:    getEnv("AI_MODELSCOPE_BASE_URL", "https://api-inference.modelscope.cn/v1"),
		ImageAPIKey:  os.Getenv("IMAGE_MODELSCOPE_API_KEY"),
		ImageBaseURL: getEnv("IMAGE_MODELSCOPE_BASE_URL", "https://api-inference.modelscope.cn/"),
		VisionModel:  getEnv("VISION_MODEL", "Qwen/Qwen3-VL-235B-A22B-Instruct"),
		ImageModel:   getEnv("IMAGE_GENERATION_MODEL", "Qwen/Qwen-Image"),

		GenerationTimeout:  getEnvDuration("IMAGE_GENERATION_TIMEOUT", 150*time.Second),
		GenerationInterval: getEnvDuration("IMAGE_GENERATION_CHECK_INTERVAL", 5*time.Second),
		APIRequestTimeout:  getEnvDuration("API_REQUEST_TIMEOUT", 30*time.Second),
		NumPoses:           getEnvInt("NUM_POSES_TO_GENERATE", 4),
		PoseConcurrency:    getEnvInt("POSE_CONCURRENCY", 0),

		DailyUsageLimit:   getEnvInt("DAILY_USAGE_LIMIT", 20),
		UsageStore:        strings.ToLower(getEnv("USAGE_STORE", "memory")),
		RedisURL:          os.Getenv("REDIS_URL"),
		SessionCookieName: getEnv("SESSION_COOKIE_NAME", "posemind_session"),

		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5000"}),
		GeoIPDBPath:        os.Getenv("GEOIP_DB_PATH"),
		SentryDSN:          os.Getenv("SENTRY_DSN"),

		HTTPReadTimeout: time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout: time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if cfg.NumPoses < 1 {
		cfg.NumPoses = 1
	}
	if cfg.NumPoses > maxPoses {
		cfg.NumPoses = maxPoses
	}
	if cfg.PoseConcurrency <= 0 || cfg.PoseConcurrency > cfg.NumPoses {
		cfg.PoseConcurrency = cfg.NumPoses
	}
	if cfg.DailyUsageLimit <= 0 {
		return nil, fmt.Errorf("DAILY_USAGE_LIMIT must be positive")
	}
	if cfg.GenerationInterval <= 0 || cfg.GenerationTimeout <= 0 {
		return nil, errors.New("IMAGE_GENERATION_TIMEOUT and IMAGE_GENERATION_CHECK_INTERVAL must be positive")
	}
	switch cfg.UsageStore {
	case "memory":
	case "redis":
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("REDIS_URL is required when USAGE_STORE=redis")
		}
	default:
		return nil, fmt.Errorf("USAGE_STORE must be memory or redis, got %q", cfg.UsageStore)
	}

	// The write deadline must outlive a full sequential generation run.
	minWrite := cfg.GenerationTimeout*time.Duration(cfg.NumPoses) + 2*cfg.APIRequestTimeout + time.Minute
	cfg.HTTPWriteTimeout = time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", int(minWrite/time.Second)))

	return cfg, nil
}

// HasModelCredentials reports whether both remote API keys are configured.
func (c *Config) HasModelCredentials() bool {
	return c.AIAPIKey != "" && c.ImageAPIKey != ""
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("90s") or bare seconds ("150").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	v = strings.TrimSpace(v)
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
