// Package config loads configuration from environment variables with an
// optional YAML overlay file, and sets up logging.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store backend selection.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// LLM / embedding providers.
const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config holds all configuration values.
type Config struct {
	// HTTP server
	ServerPort string

	// Event store
	StoreBackend  string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	JobTTL        time.Duration
	SweepInterval time.Duration

	// Stream delivery
	HeartbeatInterval time.Duration
	PollInterval      time.Duration
	JobWaitTimeout    time.Duration
	RetryMillis       int
	StreamCleanup     bool

	// RAG pipeline
	LLMProvider     string
	LLMModel        string
	EmbedProvider   string
	EmbedModel      string
	OllamaHost      string
	OpenAIAPIKey    string
	AnthropicAPIKey string
	SearchLimit     int

	// SurrealDB knowledge base
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// fileConfig is the YAML overlay shape. Only the operational knobs belong in
// a checked-in file; credentials stay in the environment.
type fileConfig struct {
	ServerPort        string `yaml:"server_port"`
	StoreBackend      string `yaml:"store_backend"`
	RedisAddr         string `yaml:"redis_addr"`
	JobTTL            string `yaml:"job_ttl"`
	SweepInterval     string `yaml:"sweep_interval"`
	HeartbeatInterval string `yaml:"heartbeat_interval"`
	PollInterval      string `yaml:"poll_interval"`
	JobWaitTimeout    string `yaml:"job_wait_timeout"`
	RetryMillis       int    `yaml:"retry_millis"`
	StreamCleanup     *bool  `yaml:"stream_cleanup"`
	LLMProvider       string `yaml:"llm_provider"`
	LLMModel          string `yaml:"llm_model"`
	EmbedProvider     string `yaml:"embed_provider"`
	EmbedModel        string `yaml:"embed_model"`
	SearchLimit       int    `yaml:"search_limit"`
}

// Load reads configuration: defaults, then the YAML file named by
// PROGRESS_CONFIG (if any), then environment variables. Env wins.
func Load() (Config, error) {
	cfg := defaults()

	if path := os.Getenv("PROGRESS_CONFIG"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return cfg, err
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func defaults() Config {
	return Config{
		ServerPort: "8090",

		StoreBackend:  StoreMemory,
		RedisAddr:     "localhost:6379",
		JobTTL:        5 * time.Minute,
		SweepInterval: time.Minute,

		HeartbeatInterval: 15 * time.Second,
		PollInterval:      time.Second,
		JobWaitTimeout:    30 * time.Second,
		RetryMillis:       3000,

		LLMProvider:   ProviderOllama,
		LLMModel:      "llama3.2",
		EmbedProvider: ProviderOllama,
		EmbedModel:    "all-minilm:l6-v2",
		OllamaHost:    "http://localhost:11434",
		SearchLimit:   5,

		SurrealDBURL:       "ws://localhost:8000/rpc",
		SurrealDBNamespace: "wolfmed",
		SurrealDBDatabase:  "knowledge",
		SurrealDBUser:      "root",
		SurrealDBPass:      "root",
		SurrealDBAuthLevel: "root",

		LogFile:  "/tmp/wolfmed-progress.log",
		LogLevel: slog.LevelInfo,
	}
}

func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&c.ServerPort, fc.ServerPort)
	setString(&c.StoreBackend, fc.StoreBackend)
	setString(&c.RedisAddr, fc.RedisAddr)
	if err := setDuration(&c.JobTTL, fc.JobTTL); err != nil {
		return fmt.Errorf("config file %s: job_ttl: %w", path, err)
	}
	if err := setDuration(&c.SweepInterval, fc.SweepInterval); err != nil {
		return fmt.Errorf("config file %s: sweep_interval: %w", path, err)
	}
	if err := setDuration(&c.HeartbeatInterval, fc.HeartbeatInterval); err != nil {
		return fmt.Errorf("config file %s: heartbeat_interval: %w", path, err)
	}
	if err := setDuration(&c.PollInterval, fc.PollInterval); err != nil {
		return fmt.Errorf("config file %s: poll_interval: %w", path, err)
	}
	if err := setDuration(&c.JobWaitTimeout, fc.JobWaitTimeout); err != nil {
		return fmt.Errorf("config file %s: job_wait_timeout: %w", path, err)
	}
	if fc.RetryMillis > 0 {
		c.RetryMillis = fc.RetryMillis
	}
	if fc.StreamCleanup != nil {
		c.StreamCleanup = *fc.StreamCleanup
	}
	setString(&c.LLMProvider, fc.LLMProvider)
	setString(&c.LLMModel, fc.LLMModel)
	setString(&c.EmbedProvider, fc.EmbedProvider)
	setString(&c.EmbedModel, fc.EmbedModel)
	if fc.SearchLimit > 0 {
		c.SearchLimit = fc.SearchLimit
	}
	return nil
}

func (c *Config) applyEnv() {
	envString(&c.ServerPort, "PROGRESS_SERVER_PORT")
	envString(&c.StoreBackend, "PROGRESS_STORE")
	envString(&c.RedisAddr, "REDIS_ADDR")
	envString(&c.RedisPassword, "REDIS_PASSWORD")
	envInt(&c.RedisDB, "REDIS_DB")
	envDuration(&c.JobTTL, "PROGRESS_JOB_TTL")
	envDuration(&c.SweepInterval, "PROGRESS_SWEEP_INTERVAL")

	envDuration(&c.HeartbeatInterval, "PROGRESS_HEARTBEAT_INTERVAL")
	envDuration(&c.PollInterval, "PROGRESS_POLL_INTERVAL")
	envDuration(&c.JobWaitTimeout, "PROGRESS_JOB_WAIT_TIMEOUT")
	envInt(&c.RetryMillis, "PROGRESS_RETRY_MILLIS")
	envBool(&c.StreamCleanup, "PROGRESS_STREAM_CLEANUP")

	envString(&c.LLMProvider, "PROGRESS_LLM_PROVIDER")
	envString(&c.LLMModel, "PROGRESS_LLM_MODEL")
	envString(&c.EmbedProvider, "PROGRESS_EMBED_PROVIDER")
	envString(&c.EmbedModel, "PROGRESS_EMBED_MODEL")
	envString(&c.OllamaHost, "OLLAMA_HOST")
	envString(&c.OpenAIAPIKey, "OPENAI_API_KEY")
	envString(&c.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envInt(&c.SearchLimit, "PROGRESS_SEARCH_LIMIT")

	envString(&c.SurrealDBURL, "SURREALDB_URL")
	envString(&c.SurrealDBNamespace, "SURREALDB_NAMESPACE")
	envString(&c.SurrealDBDatabase, "SURREALDB_DATABASE")
	envString(&c.SurrealDBUser, "SURREALDB_USER")
	envString(&c.SurrealDBPass, "SURREALDB_PASS")
	envString(&c.SurrealDBAuthLevel, "SURREALDB_AUTH_LEVEL")

	envString(&c.LogFile, "PROGRESS_LOG_FILE")
	if raw := os.Getenv("PROGRESS_LOG_LEVEL"); raw != "" {
		c.LogLevel = parseLogLevel(raw)
	}
}

func setString(dst *string, val string) {
	if val != "" {
		*dst = val
	}
}

func setDuration(dst *time.Duration, val string) error {
	if val == "" {
		return nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

func envString(dst *string, key string) {
	if val := os.Getenv(key); val != "" {
		*dst = val
	}
}

func envInt(dst *int, key string) {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			*dst = n
		}
	}
}

func envBool(dst *bool, key string) {
	if val := os.Getenv(key); val != "" {
		*dst = val == "true" || val == "1"
	}
}

func envDuration(dst *time.Duration, key string) {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
