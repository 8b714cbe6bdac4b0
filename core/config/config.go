package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"darwin.app/engine/core/db"
)

type Config struct {
	OTel          OTelConfig
	Redis         RedisConfig
	DB            db.Config
	ClassifierLLM LLMConfig
	RuleLLM       LLMConfig
	AgentLLM      LLMConfig
	Embedding     EmbeddingConfig
	GitHub        GitHubConfig
	GitLab        GitLabConfig
	Webhook       WebhookConfig
	Cluster       ClusterConfig
	Worker        WorkerConfig
	Fix           FixConfig
	Env           string
	Port          string
	ProductsFile  string
	APIKey        string
}

type OTelConfig struct {
	Endpoint       string
	Headers        string
	ServiceName    string
	ServiceVersion string
}

type RedisConfig struct {
	URL string
}

type LLMConfig struct {
	Provider        string // "openai" or "anthropic"
	APIKey          string
	BaseURL         string // Optional: for custom endpoints
	Model           string
	MaxTokens       int
	ReasoningEffort string
	Timeout         time.Duration
}

type EmbeddingConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
}

type GitHubConfig struct {
	Token   string
	BaseURL string // Optional: GitHub Enterprise API root
}

type GitLabConfig struct {
	Token       string
	BaseURL     string
	BotUsername string // Account behind Token; its MR notes are not review feedback
}

type WebhookConfig struct {
	GitHubSecret string
	GitLabToken  string
}

type ClusterConfig struct {
	K             int
	HighThreshold float64
	LowThreshold  float64
}

type WorkerConfig struct {
	PollInterval    time.Duration
	BatchSize       int
	FixConcurrency  int
	FixStream       string
	FixGroup        string
	FixDLQStream    string
	FixConsumer     string
	ReclaimMinIdle  time.Duration
	ReclaimInterval time.Duration
	MetricsPort     string
}

type FixConfig struct {
	BranchPrefix       string
	WorkDir            string
	CloneTimeout       time.Duration
	PushTimeout        time.Duration
	GitTimeout         time.Duration
	IssueTimeout       time.Duration
	AutoCreateIssues   bool
	MaxIterations      int
	SimilarFixLimit    int
	SimilarFixMinScore float64
	RuleLimit          int
	AgentMaxTurns      int
	AuthorName         string
	AuthorEmail        string
	TriggerMode        string // "off", "all" or "allowlist"
	TriggerProducts    []string
	TriggerPerHour     float64
}

type ServiceType string

const (
	ServiceTypeServer ServiceType = "server"
	ServiceTypeWorker ServiceType = "worker"
	ServiceTypeCLI    ServiceType = "cli"
)

// Load loads configuration from environment variables.
// In development, it loads from service-specific .env files:
//   - .env.server for the API server
//   - .env.worker for the background workers
//
// Falls back to .env if service-specific file doesn't exist.
func Load(serviceType ServiceType) (Config, error) {
	if getEnv("DARWIN_ENV", "development") == "development" {
		envFile := fmt.Sprintf(".env.%s", serviceType)
		if err := godotenv.Load(envFile); err != nil {
			_ = godotenv.Load(".env")
		}
	}

	llmKey := getEnv("OPENAI_API_KEY", "")

	cfg := Config{
		Env:          getEnv("DARWIN_ENV", "development"),
		Port:         getEnv("PORT", "8080"),
		ProductsFile: getEnv("PRODUCTS_FILE", "products.yaml"),
		APIKey:       getEnv("DARWIN_API_KEY", ""),
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379/0"),
		},
		DB: db.Config{
			DSN:      getEnv("DATABASE_URL", ""),
			MaxConns: getEnvInt32("DB_MAX_CONNS", 5),
			MinConns: getEnvInt32("DB_MIN_CONNS", 1),
		},
		OTel: OTelConfig{
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "darwin"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
		},
		ClassifierLLM: LLMConfig{
			Provider:  "openai",
			APIKey:    getEnv("CLASSIFIER_LLM_API_KEY", llmKey),
			BaseURL:   getEnv("CLASSIFIER_LLM_BASE_URL", ""),
			Model:     getEnv("CLASSIFIER_LLM_MODEL", "gpt-4o-mini"),
			MaxTokens: getEnvInt("CLASSIFIER_LLM_MAX_TOKENS", 1000),
			Timeout:   getEnvDuration("CLASSIFIER_LLM_TIMEOUT", 60*time.Second),
		},
		// Rule extraction shares the classifier's key unless told otherwise.
		RuleLLM: LLMConfig{
			Provider:  "openai",
			APIKey:    getEnv("RULE_LLM_API_KEY", llmKey),
			BaseURL:   getEnv("RULE_LLM_BASE_URL", ""),
			Model:     getEnv("RULE_LLM_MODEL", "gpt-4o-mini"),
			MaxTokens: getEnvInt("RULE_LLM_MAX_TOKENS", 1000),
			Timeout:   getEnvDuration("RULE_LLM_TIMEOUT", 60*time.Second),
		},
		AgentLLM: LLMConfig{
			Provider:        getEnv("AGENT_LLM_PROVIDER", "anthropic"),
			APIKey:          getEnv("AGENT_LLM_API_KEY", ""),
			BaseURL:         getEnv("AGENT_LLM_BASE_URL", ""),
			Model:           getEnv("AGENT_LLM_MODEL", "claude-sonnet-4-5-20250514"),
			MaxTokens:       getEnvInt("AGENT_LLM_MAX_TOKENS", 8192),
			ReasoningEffort: getEnv("AGENT_LLM_REASONING_EFFORT", ""),
			Timeout:         getEnvDuration("AGENT_LLM_TIMEOUT", 60*time.Second),
		},
		Embedding: EmbeddingConfig{
			APIKey:     getEnv("EMBEDDING_API_KEY", llmKey),
			BaseURL:    getEnv("EMBEDDING_BASE_URL", ""),
			Model:      getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
			Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", 384),
		},
		GitHub: GitHubConfig{
			Token:   getEnv("GITHUB_TOKEN", ""),
			BaseURL: getEnv("GITHUB_API_URL", ""),
		},
		GitLab: GitLabConfig{
			Token:       getEnv("GITLAB_TOKEN", ""),
			BaseURL:     getEnv("GITLAB_URL", "https://gitlab.com"),
			BotUsername: getEnv("GITLAB_BOT_USERNAME", ""),
		},
		Webhook: WebhookConfig{
			GitHubSecret: getEnv("GITHUB_WEBHOOK_SECRET", ""),
			GitLabToken:  getEnv("GITLAB_WEBHOOK_TOKEN", ""),
		},
		Cluster: ClusterConfig{
			K:             getEnvInt("CLUSTER_K", 5),
			HighThreshold: getEnvFloat("CLUSTER_THRESHOLD_HIGH", 0.75),
			LowThreshold:  getEnvFloat("CLUSTER_THRESHOLD_LOW", 0.60),
		},
		Worker: WorkerConfig{
			PollInterval:    getEnvDuration("CLASSIFY_WORKER_POLL_INTERVAL", 2*time.Second),
			BatchSize:       getEnvInt("CLASSIFY_WORKER_BATCH_SIZE", 5),
			FixConcurrency:  getEnvInt("FIX_WORKER_CONCURRENCY", 2),
			FixStream:       getEnv("FIX_STREAM", "stream:fix-jobs"),
			FixGroup:        getEnv("FIX_CONSUMER_GROUP", "fixers"),
			FixDLQStream:    getEnv("FIX_DLQ_STREAM", "stream:fix-jobs:dlq"),
			FixConsumer:     getEnv("FIX_CONSUMER_NAME", hostname()),
			ReclaimMinIdle:  getEnvDuration("FIX_RECLAIM_MIN_IDLE", 30*time.Minute),
			ReclaimInterval: getEnvDuration("FIX_RECLAIM_INTERVAL", time.Minute),
			MetricsPort:     getEnv("WORKER_METRICS_PORT", "9090"),
		},
		Fix: FixConfig{
			BranchPrefix:       getEnv("FIX_BRANCH_PREFIX", "darwin"),
			WorkDir:            getEnv("FIX_WORK_DIR", os.TempDir()),
			CloneTimeout:       getEnvDuration("FIX_CLONE_TIMEOUT", 120*time.Second),
			PushTimeout:        getEnvDuration("FIX_PUSH_TIMEOUT", 60*time.Second),
			GitTimeout:         getEnvDuration("FIX_GIT_TIMEOUT", 30*time.Second),
			IssueTimeout:       getEnvDuration("ISSUE_TIMEOUT", 30*time.Second),
			AutoCreateIssues:   getEnvBool("AUTO_CREATE_ISSUES", true),
			MaxIterations:      getEnvInt("MAX_FIX_ITERATIONS", 3),
			SimilarFixLimit:    getEnvInt("SIMILAR_FIX_LIMIT", 3),
			SimilarFixMinScore: getEnvFloat("SIMILAR_FIX_MIN_SCORE", 0.5),
			RuleLimit:          getEnvInt("RULE_LIMIT", 10),
			AgentMaxTurns:      getEnvInt("FIX_AGENT_MAX_TURNS", 40),
			AuthorName:         getEnv("GIT_AUTHOR_NAME", "Darwin Bot"),
			AuthorEmail:        getEnv("GIT_AUTHOR_EMAIL", "darwin-bot@users.noreply.github.com"),
			TriggerMode:        getEnv("FIX_TRIGGER_MODE", "off"),
			TriggerProducts:    getEnvList("FIX_TRIGGER_PRODUCTS"),
			TriggerPerHour:     getEnvFloat("FIX_TRIGGER_RATE_PER_HOUR", 4),
		},
	}

	if cfg.Cluster.LowThreshold > cfg.Cluster.HighThreshold {
		return Config{}, fmt.Errorf("CLUSTER_THRESHOLD_LOW (%.2f) must not exceed CLUSTER_THRESHOLD_HIGH (%.2f)",
			cfg.Cluster.LowThreshold, cfg.Cluster.HighThreshold)
	}

	switch cfg.Fix.TriggerMode {
	case "off", "all", "allowlist":
	default:
		return Config{}, fmt.Errorf("FIX_TRIGGER_MODE must be one of off, all, allowlist (got %q)", cfg.Fix.TriggerMode)
	}

	// The server embeds merged fixes for the learning store, the worker
	// embeds everything else.
	if serviceType != ServiceTypeCLI && !cfg.Embedding.Enabled() {
		return Config{}, fmt.Errorf("EMBEDDING_API_KEY or OPENAI_API_KEY is required")
	}

	return cfg, nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

func (c LLMConfig) Enabled() bool {
	return c.APIKey != "" && (c.Provider == "openai" || c.Provider == "anthropic")
}

func (c EmbeddingConfig) Enabled() bool {
	return c.APIKey != ""
}

func (c GitHubConfig) Enabled() bool {
	return c.Token != ""
}

func (c GitLabConfig) Enabled() bool {
	return c.Token != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt32(key string, fallback int32) int32 {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(i)
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("90s") and bare seconds ("2.5").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(f * float64(time.Second))
	}
	return fallback
}

func getEnvList(key string) []string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "darwin-worker"
	}
	return name
}
