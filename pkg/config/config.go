// Package config loads the runtime configuration from environment variables,
// applying built-in defaults for everything that is unset. The .env bootstrap
// itself (godotenv) happens in main before Load is called.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the process-wide runtime configuration.
type Config struct {
	// HTTPPort is the port the API server listens on.
	HTTPPort string

	// UserDir is the root of per-project agent/tool/prompt directories
	// (user/<project>/{agents,tools,prompts}).
	UserDir string

	// LogsDir receives one JSON log file per agent run.
	LogsDir string

	// LLM holds the OpenAI-compatible endpoint settings.
	LLM LLMConfig

	// MaxIterations caps LLM turns per run. Zero keeps the runtime default.
	MaxIterations int

	// Workers bounds concurrent asynchronous tool executions process-wide.
	// Zero keeps the runtime default.
	Workers int

	// ScheduleTick is the schedule runner's polling interval.
	ScheduleTick time.Duration

	// WSWriteTimeout bounds a single WebSocket send.
	WSWriteTimeout time.Duration

	// ShutdownTimeout is the budget for draining active runs on shutdown.
	ShutdownTimeout time.Duration

	// RunRetention is how long completed runs and their logs are kept.
	// Zero disables retention sweeps.
	RunRetention time.Duration

	// CleanupInterval is how often the retention sweep runs.
	CleanupInterval time.Duration
}

// LLMConfig describes the chat-completions endpoint.
type LLMConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	// Timeout bounds one completion, stream included. Zero disables it.
	Timeout time.Duration
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPPort: getEnv("HTTP_PORT", "8080"),
		UserDir:  getEnv("USER_DIR", "user"),
		LogsDir:  getEnv("LOGS_DIR", "logs"),
		LLM: LLMConfig{
			BaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			Model:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		},
	}

	var err error
	if cfg.LLM.Temperature, err = getEnvFloat("OPENAI_TEMPERATURE", 0.7); err != nil {
		return nil, err
	}
	if cfg.LLM.Timeout, err = getEnvDuration("LLM_TIMEOUT", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.MaxIterations, err = getEnvInt("MAX_ITERATIONS", 0); err != nil {
		return nil, err
	}
	if cfg.Workers, err = getEnvInt("WORKER_COUNT", 0); err != nil {
		return nil, err
	}
	if cfg.ScheduleTick, err = getEnvDuration("SCHEDULE_TICK", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.WSWriteTimeout, err = getEnvDuration("WS_WRITE_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.RunRetention, err = getEnvDuration("RUN_RETENTION", 0); err != nil {
		return nil, err
	}
	if cfg.CleanupInterval, err = getEnvDuration("CLEANUP_INTERVAL", time.Hour); err != nil {
		return nil, err
	}
	return cfg, nil
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
		return 0, fmt.Errorf("%s: %w", key, err)
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
		return 0, fmt.Errorf("%s: %w", key, err)
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
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
