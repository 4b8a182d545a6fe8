package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/leofalp/sqlgraph/core/state"
	"github.com/leofalp/sqlgraph/pipeline"
	"github.com/leofalp/sqlgraph/providers/database/sqldb"
)

// LookupFunc returns the value of an environment variable.
type LookupFunc func(string) (string, bool)

// Config is the complete sqlgraph configuration.
type Config struct {
	LLM           LLMConfig               `yaml:"llm"`
	Databases     map[string]sqldb.Config `yaml:"databases"`
	Database      DatabaseConfig          `yaml:"database"`
	Pipeline      pipeline.Config         `yaml:"pipeline"`
	Chat          ChatConfig              `yaml:"chat"`
	Retrieval     RetrievalConfig         `yaml:"retrieval"`
	Observability ObservabilityConfig     `yaml:"observability"`
}

// LLMConfig configures the model endpoint.
type LLMConfig struct {
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	Model          string        `yaml:"model"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	MaxConcurrency int           `yaml:"max_concurrency"`
}

// DatabaseConfig holds the settings shared by every database.
type DatabaseConfig struct {
	MaxRows     int  `yaml:"max_rows"`
	AllowWrites bool `yaml:"allow_writes"`
}

// ChatConfig configures chat sessions. It is folded into the pipeline
// configuration by Load.
type ChatConfig struct {
	AlwaysEnhance bool `yaml:"always_enhance"`
	SummaryTurns  int  `yaml:"summary_turns"`

	// Enhancement overrides the settings of the context enhancement stage.
	Enhancement *pipeline.StageConfig `yaml:"enhancement"`

	// History persists chat turns in PostgreSQL when its DSN is set.
	History HistoryConfig `yaml:"history"`
}

// HistoryConfig locates the chat turn log.
type HistoryConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

// RetrievalConfig configures the in-process retrieval index.
type RetrievalConfig struct {
	TopK         int `yaml:"top_k"`
	SampleValues int `yaml:"sample_values"`
}

// ObservabilityConfig configures logging and metrics.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	MetricsAddr string `yaml:"metrics_addr"`
}

var (
	logLevels  = []string{"trace", "debug", "info", "warn", "warning", "error"}
	logFormats = []string{"compact", "pretty", "json"}
)

// Defaults returns the configuration used for keys absent from the file and
// the environment.
func Defaults() Config {
	return Config{
		LLM: LLMConfig{
			BaseURL:        "https://api.openai.com/v1",
			Model:          "gpt-4o-mini",
			Timeout:        60 * time.Second,
			MaxRetries:     3,
			MaxConcurrency: 8,
		},
		Databases: map[string]sqldb.Config{},
		Database: DatabaseConfig{
			MaxRows: 1000,
		},
		Retrieval: RetrievalConfig{
			TopK:         5,
			SampleValues: 20,
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "compact",
		},
	}
}

// LoadFromEnv loads path with overrides from the process environment.
func LoadFromEnv(path string) (Config, error) {
	return Load(path, os.LookupEnv)
}

// Load reads the YAML file at path, when path is not empty, over the
// defaults, then applies environment overrides through lookup and validates
// the result. Every validation problem is reported in the returned error.
func Load(path string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	cfg := Defaults()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := decode(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(lookup, &cfg); err != nil {
		return Config{}, err
	}
	cfg.normalizeDatabases()
	cfg.foldChat()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// decode unmarshals raw into cfg, rejecting unknown keys. An empty document
// leaves cfg untouched.
func decode(raw []byte, cfg *Config) error {
	decoder := yaml.NewDecoder(bytes.NewReader(raw))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func applyEnv(lookup LookupFunc, cfg *Config) error {
	if err := applyString(lookup, "OPENAI_API_KEY", &cfg.LLM.APIKey); err != nil {
		return err
	}
	if err := applyString(lookup, "SQLGRAPH_LLM_API_KEY", &cfg.LLM.APIKey); err != nil {
		return err
	}
	if err := applyString(lookup, "SQLGRAPH_LLM_BASE_URL", &cfg.LLM.BaseURL); err != nil {
		return err
	}
	if err := applyString(lookup, "SQLGRAPH_LLM_MODEL", &cfg.LLM.Model); err != nil {
		return err
	}
	if err := applyDuration(lookup, "SQLGRAPH_LLM_TIMEOUT", &cfg.LLM.Timeout); err != nil {
		return err
	}
	if err := applyString(lookup, "SQLGRAPH_LOG_LEVEL", &cfg.Observability.LogLevel); err != nil {
		return err
	}
	if err := applyString(lookup, "SQLGRAPH_LOG_FORMAT", &cfg.Observability.LogFormat); err != nil {
		return err
	}
	if err := applyString(lookup, "SQLGRAPH_METRICS_ADDR", &cfg.Observability.MetricsAddr); err != nil {
		return err
	}
	if err := applyString(lookup, "SQLGRAPH_CHAT_HISTORY_DSN", &cfg.Chat.History.DSN); err != nil {
		return err
	}
	return applyBool(lookup, "SQLGRAPH_ALWAYS_ENHANCE", &cfg.Chat.AlwaysEnhance)
}

// normalizeDatabases resolves driver aliases. An empty driver is duckdb.
func (cfg *Config) normalizeDatabases() {
	for id, database := range cfg.Databases {
		switch strings.ToLower(strings.TrimSpace(database.Driver)) {
		case "":
			database.Driver = sqldb.DriverDuckDB
		case "postgres", "postgresql", sqldb.DriverPostgres:
			database.Driver = sqldb.DriverPostgres
		}
		cfg.Databases[id] = database
	}
}

// foldChat copies the chat and retrieval settings into the pipeline
// configuration. Settings under the top-level chat key win over those under
// pipeline.chat.
func (cfg *Config) foldChat() {
	if cfg.Chat.AlwaysEnhance {
		cfg.Pipeline.Chat.AlwaysEnhance = true
	}
	if cfg.Chat.SummaryTurns != 0 {
		cfg.Pipeline.Chat.SummaryTurns = cfg.Chat.SummaryTurns
	}
	if cfg.Pipeline.Stages == nil {
		cfg.Pipeline.Stages = map[string]pipeline.StageConfig{}
	}
	if cfg.Chat.Enhancement != nil {
		cfg.Pipeline.Stages[state.NodeContextEnhancement] = *cfg.Chat.Enhancement
	}
	for _, name := range []string{state.NodeEntityRetrieval, state.NodeContextRetrieval} {
		stage := cfg.Pipeline.Stages[name]
		if stage.TopK == 0 {
			stage.TopK = cfg.Retrieval.TopK
			cfg.Pipeline.Stages[name] = stage
		}
	}
	if cfg.Pipeline.DefaultModel.Name == "" {
		cfg.Pipeline.DefaultModel.Name = cfg.LLM.Model
	}
}

// Validate reports every problem of cfg joined into one error.
func (cfg Config) Validate() error {
	var errs []error

	if cfg.LLM.BaseURL == "" {
		errs = append(errs, errors.New("llm.base_url is required"))
	}
	if cfg.LLM.Timeout < 0 {
		errs = append(errs, fmt.Errorf("llm.timeout must not be negative, got %s", cfg.LLM.Timeout))
	}
	if cfg.LLM.MaxRetries < -1 {
		errs = append(errs, fmt.Errorf("llm.max_retries must be -1 or more, got %d", cfg.LLM.MaxRetries))
	}
	if cfg.LLM.MaxConcurrency < 1 {
		errs = append(errs, fmt.Errorf("llm.max_concurrency must be positive, got %d", cfg.LLM.MaxConcurrency))
	}

	if len(cfg.Databases) == 0 {
		errs = append(errs, errors.New("at least one database must be configured"))
	}
	for _, id := range sortedKeys(cfg.Databases) {
		database := cfg.Databases[id]
		if database.Driver != sqldb.DriverDuckDB && database.Driver != sqldb.DriverPostgres {
			errs = append(errs, fmt.Errorf("databases.%s.driver: unsupported driver %q", id, database.Driver))
		}
		// An empty duckdb DSN opens an in-memory database.
		if database.DSN == "" && database.Driver != sqldb.DriverDuckDB {
			errs = append(errs, fmt.Errorf("databases.%s.dsn is required", id))
		}
	}
	if cfg.Database.MaxRows < 0 {
		errs = append(errs, fmt.Errorf("database.max_rows must not be negative, got %d", cfg.Database.MaxRows))
	}

	stages := pipeline.StageNames()
	for _, name := range sortedKeys(cfg.Pipeline.Stages) {
		if !slices.Contains(stages, name) {
			errs = append(errs, fmt.Errorf("pipeline.stages.%s: unknown stage", name))
		}
	}
	agents := pipeline.AgentNames()
	for _, name := range sortedKeys(cfg.Pipeline.Agents) {
		if !slices.Contains(agents, name) {
			errs = append(errs, fmt.Errorf("pipeline.agents.%s: unknown agent", name))
		}
	}

	if cfg.Retrieval.TopK < 0 || cfg.Retrieval.SampleValues < 0 {
		errs = append(errs, errors.New("retrieval.top_k and retrieval.sample_values must not be negative"))
	}
	if !slices.Contains(logLevels, strings.ToLower(cfg.Observability.LogLevel)) {
		errs = append(errs, fmt.Errorf("observability.log_level: unknown level %q", cfg.Observability.LogLevel))
	}
	if !slices.Contains(logFormats, strings.ToLower(cfg.Observability.LogFormat)) {
		errs = append(errs, fmt.Errorf("observability.log_format: unknown format %q", cfg.Observability.LogFormat))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func sortedKeys[V any](values map[string]V) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}
