// Package config loads Groundwork settings from the environment and an optional .env file.
package config

import (
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/raphaelgruber/groundwork/internal/models"
	"github.com/spf13/viper"
)

// Store drivers.
const (
	StoreSurrealDB = "surrealdb"
	StoreSQLite    = "sqlite"
)

// Config holds all configuration values.
type Config struct {
	// Store selection
	Store      string
	SQLitePath string

	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// Embedding provider
	EmbedProvider  string
	EmbedModel     string
	EmbedDimension int
	OllamaHost     string
	OpenAIAPIKey   string
	OpenAIBaseURL  string

	// Generation provider
	LLMProvider     string
	LLMModel        string
	AnthropicAPIKey string
	AWSRegion       string

	// Per-call timeouts
	EmbedTimeout    time.Duration
	SearchTimeout   time.Duration
	GenerateTimeout time.Duration

	// Retrieval
	MemoryLimit         int
	ChunkLimit          int
	VectorSearchEnabled bool

	// Chunking
	ChunkSize    int
	ChunkOverlap int

	// Backfill
	BackfillLimit int
	BackfillDelay time.Duration

	// Turn history sent to the generator
	HistoryTurns       int
	HistoryTokenBudget int

	// Default principal for CLI and MCP callers. With ProjectFromGit and no Project,
	// MCP callers are scoped to the repository name of the working directory.
	Owner          string
	Project        string
	ProjectFromGit bool

	// Source adapter credentials
	WikiToken      string
	DocExportToken string
	CloudFileToken string

	// LocalFileRoot is the only directory PDF sources may be read from on this host.
	// Empty rejects local paths.
	LocalFileRoot string

	// Server. An empty ServerURL makes the CLI run commands in process.
	ServerPort  string
	ServerURL   string
	Concurrency int

	// Logging
	LogFile  string
	LogLevel slog.Level
}

var defaults = map[string]any{
	"groundwork_store":       StoreSurrealDB,
	"groundwork_sqlite_path": "groundwork.db",

	"surrealdb_url":        "ws://localhost:8000/rpc",
	"surrealdb_namespace":  "groundwork",
	"surrealdb_database":   "grounding",
	"surrealdb_user":       "root",
	"surrealdb_pass":       "root",
	"surrealdb_auth_level": "root",

	"embed_provider":  "ollama",
	"embed_model":     "all-minilm:l6-v2",
	"embed_dimension": 384,
	"ollama_host":     "http://localhost:11434",
	"openai_api_key":  "",
	"openai_base_url": "",

	"llm_provider":      "ollama",
	"llm_model":         "llama3.2",
	"anthropic_api_key": "",
	"aws_region":        "us-east-1",

	"embed_timeout":    "30s",
	"search_timeout":   "30s",
	"generate_timeout": "2m",

	"retrieval_memory_limit": 8,
	"retrieval_chunk_limit":  6,
	"vector_search_enabled":  true,

	"chunk_size":    800,
	"chunk_overlap": 100,

	"backfill_limit": 100,
	"backfill_delay": "200ms",

	"history_turns":        10,
	"history_token_budget": 3000,

	"groundwork_owner":   "local",
	"groundwork_project": "",

	"groundwork_project_from_git": false,

	"wiki_token":       "",
	"doc_export_token": "",
	"cloud_file_token": "",

	"groundwork_local_file_root": "",

	"groundwork_server_port": "8484",
	"groundwork_server_url":  "",
	"groundwork_concurrency": 4,

	"groundwork_log_file":  "/tmp/groundwork.log",
	"groundwork_log_level": "INFO",
}

// Load reads .env (if present) and the environment.
func Load() Config {
	return FromViper(LoadViper())
}

// LoadViper reads .env (if present) and returns a viper instance ready for flag binding.
func LoadViper() *viper.Viper {
	_ = godotenv.Load()
	return NewViper()
}

// NewViper returns a viper instance with defaults applied and environment lookup enabled.
// Callers may bind command-line flags to it before calling FromViper.
func NewViper() *viper.Viper {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// FromViper builds a Config from v.
func FromViper(v *viper.Viper) Config {
	return Config{
		Store:      strings.ToLower(v.GetString("groundwork_store")),
		SQLitePath: v.GetString("groundwork_sqlite_path"),

		SurrealDBURL:       v.GetString("surrealdb_url"),
		SurrealDBNamespace: v.GetString("surrealdb_namespace"),
		SurrealDBDatabase:  v.GetString("surrealdb_database"),
		SurrealDBUser:      v.GetString("surrealdb_user"),
		SurrealDBPass:      v.GetString("surrealdb_pass"),
		SurrealDBAuthLevel: v.GetString("surrealdb_auth_level"),

		EmbedProvider:  strings.ToLower(v.GetString("embed_provider")),
		EmbedModel:     v.GetString("embed_model"),
		EmbedDimension: v.GetInt("embed_dimension"),
		OllamaHost:     v.GetString("ollama_host"),
		OpenAIAPIKey:   v.GetString("openai_api_key"),
		OpenAIBaseURL:  v.GetString("openai_base_url"),

		LLMProvider:     strings.ToLower(v.GetString("llm_provider")),
		LLMModel:        v.GetString("llm_model"),
		AnthropicAPIKey: v.GetString("anthropic_api_key"),
		AWSRegion:       v.GetString("aws_region"),

		EmbedTimeout:    v.GetDuration("embed_timeout"),
		SearchTimeout:   v.GetDuration("search_timeout"),
		GenerateTimeout: v.GetDuration("generate_timeout"),

		MemoryLimit:         v.GetInt("retrieval_memory_limit"),
		ChunkLimit:          v.GetInt("retrieval_chunk_limit"),
		VectorSearchEnabled: v.GetBool("vector_search_enabled"),

		ChunkSize:    v.GetInt("chunk_size"),
		ChunkOverlap: v.GetInt("chunk_overlap"),

		BackfillLimit: v.GetInt("backfill_limit"),
		BackfillDelay: v.GetDuration("backfill_delay"),

		HistoryTurns:       v.GetInt("history_turns"),
		HistoryTokenBudget: v.GetInt("history_token_budget"),

		Owner:          v.GetString("groundwork_owner"),
		Project:        v.GetString("groundwork_project"),
		ProjectFromGit: v.GetBool("groundwork_project_from_git"),

		WikiToken:      v.GetString("wiki_token"),
		DocExportToken: v.GetString("doc_export_token"),
		CloudFileToken: v.GetString("cloud_file_token"),

		LocalFileRoot: v.GetString("groundwork_local_file_root"),

		ServerPort:  v.GetString("groundwork_server_port"),
		ServerURL:   v.GetString("groundwork_server_url"),
		Concurrency: v.GetInt("groundwork_concurrency"),

		LogFile:  v.GetString("groundwork_log_file"),
		LogLevel: parseLogLevel(v.GetString("groundwork_log_level")),
	}
}

// Scope returns the configured default principal.
func (c Config) Scope() models.Scope {
	return models.Scope{OwnerID: c.Owner, ProjectID: c.Project}
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
