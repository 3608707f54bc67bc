// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the process-wide configuration described in spec §6:
// a YAML file with env-var overrides, validated once at init.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/yantianqi1/write-agent/internal/coreerr"
)

// ProviderConfig holds per-provider connection details. Only the fields a
// given provider needs are populated; the rest stay at zero value.
type ProviderConfig struct {
	Type    string `yaml:"type"` // openai|anthropic|gemini|azure-openai|ollama|mock
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	// AzureDeployment is only used by the azure-openai variant of the
	// openai provider.
	AzureDeployment string `yaml:"azure_deployment"`
	AzureAPIVersion string `yaml:"azure_api_version"`
}

// VectorConfig selects and configures the vector store backend.
type VectorConfig struct {
	Backend        string `yaml:"backend"` // chromem|qdrant
	PersistPath    string `yaml:"persist_path"`
	QdrantHost     string `yaml:"qdrant_host"`
	QdrantPort     int    `yaml:"qdrant_port"`
	QdrantAPIKey   string `yaml:"qdrant_api_key"`
	QdrantUseTLS   bool   `yaml:"qdrant_use_tls"`
	CollectionName string `yaml:"collection_name"`
}

// CoordinationConfig selects the backend for the session-turn mutex and the
// per-(project,chapter) generation lock described in spec §5.
type CoordinationConfig struct {
	Backend   string `yaml:"backend"` // inproc|redis
	RedisAddr string `yaml:"redis_addr"`
	RedisDB   int    `yaml:"redis_db"`
}

// Config is the single process-wide configuration value, threaded through
// the agent at construction per spec §9's "AgentContext" design note.
type Config struct {
	Provider string                     `yaml:"provider"`
	Model    string                     `yaml:"model"`
	Models   map[string]ProviderConfig  `yaml:"models"`

	ContextWindow          int `yaml:"context_window"`
	SessionTurnCap         int `yaml:"session_turn_cap"`
	RetrievalK             int `yaml:"retrieval_k"`
	GenerationMaxTokens    int `yaml:"generation_max_tokens"`
	RetryMaxAttempts       int `yaml:"retry_max_attempts"`
	PerProviderConcurrency int `yaml:"per_provider_concurrency"`

	CompletionThreshold  float64 `yaml:"completion_threshold"`
	ConsistencyThreshold float64 `yaml:"consistency_threshold"`

	TurnTimeout   time.Duration `yaml:"turn_timeout"`
	LLMTimeout    time.Duration `yaml:"llm_timeout"`
	VectorTimeout time.Duration `yaml:"vector_timeout"`

	DefaultLocale string `yaml:"default_locale"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	Vector        VectorConfig        `yaml:"vector"`
	Coordination  CoordinationConfig  `yaml:"coordination"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ObservabilityConfig controls tracing and metrics for the process.
type ObservabilityConfig struct {
	TracingEnabled bool    `yaml:"tracing_enabled"`
	LogSpans       bool    `yaml:"log_spans"`
	SamplingRate   float64 `yaml:"sampling_rate"`
	MetricsEnabled bool    `yaml:"metrics_enabled"`
	MetricsNS      string  `yaml:"metrics_namespace"`
}

// Defaults returns the table in spec.md §6, plus the ambient fields the
// table doesn't enumerate.
func Defaults() *Config {
	return &Config{
		Provider:               "openai",
		ContextWindow:          8192,
		SessionTurnCap:         50,
		CompletionThreshold:    0.7,
		ConsistencyThreshold:   0.5,
		RetrievalK:             8,
		GenerationMaxTokens:    3500,
		RetryMaxAttempts:       3,
		PerProviderConcurrency: 8,
		TurnTimeout:            120 * time.Second,
		LLMTimeout:             60 * time.Second,
		VectorTimeout:          5 * time.Second,
		DefaultLocale:          "en",
		LogLevel:               "info",
		LogFormat:              "text",
		Vector: VectorConfig{
			Backend:        "chromem",
			CollectionName: "storyagent",
		},
		Coordination: CoordinationConfig{
			Backend: "inproc",
		},
		Observability: ObservabilityConfig{
			SamplingRate: 1.0,
			MetricsNS:    "storyagent",
		},
	}
}

// Load reads a YAML config file (if present), applies env overrides, and
// validates the result. An absent .env file is not an error; godotenv is
// best-effort, matching hector's own config bootstrap.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, coreerr.Wrap(coreerr.Config, err, "reading config file")
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, coreerr.Wrap(coreerr.Config, err, "parsing config file")
		}
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides layers environment variables over the loaded config.
// Env wins over file, matching hector's pkg/config precedence.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("STORYAGENT_PROVIDER"); v != "" {
		c.Provider = v
	}
	if v := os.Getenv("STORYAGENT_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("STORYAGENT_CONTEXT_WINDOW"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.ContextWindow = n
		}
	}
	if v := os.Getenv("STORYAGENT_RETRY_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RetryMaxAttempts = n
		}
	}
	if v := os.Getenv("STORYAGENT_PER_PROVIDER_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.PerProviderConcurrency = n
		}
	}
	if v := os.Getenv("STORYAGENT_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("STORYAGENT_LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	if v := os.Getenv("STORYAGENT_VECTOR_BACKEND"); v != "" {
		c.Vector.Backend = v
	}
	if v := os.Getenv("STORYAGENT_COORDINATION_BACKEND"); v != "" {
		c.Coordination.Backend = v
	}

	if v, ok := providerAPIKeyEnv(c.Provider); ok {
		pc := c.Models[c.Provider]
		pc.APIKey = v
		if c.Models == nil {
			c.Models = map[string]ProviderConfig{}
		}
		c.Models[c.Provider] = pc
	}
}

func providerAPIKeyEnv(provider string) (string, bool) {
	key := "STORYAGENT_" + strings.ToUpper(provider) + "_API_KEY"
	v := os.Getenv(key)
	return v, v != ""
}

// Validate checks the loaded config for internal consistency, returning a
// *coreerr.Error{Kind: Config} describing the first violation found.
func (c *Config) Validate() error {
	switch {
	case c.Provider == "":
		return coreerr.New(coreerr.Config, "provider must be set")
	case c.ContextWindow <= 0:
		return coreerr.New(coreerr.Config, "context_window must be positive")
	case c.SessionTurnCap <= 0:
		return coreerr.New(coreerr.Config, "session_turn_cap must be positive")
	case c.CompletionThreshold < 0 || c.CompletionThreshold > 1:
		return coreerr.New(coreerr.Config, "completion_threshold must be in [0,1]")
	case c.ConsistencyThreshold < 0 || c.ConsistencyThreshold > 1:
		return coreerr.New(coreerr.Config, "consistency_threshold must be in [0,1]")
	case c.RetrievalK <= 0:
		return coreerr.New(coreerr.Config, "retrieval_k must be positive")
	case c.GenerationMaxTokens <= 0:
		return coreerr.New(coreerr.Config, "generation_max_tokens must be positive")
	case c.RetryMaxAttempts < 0:
		return coreerr.New(coreerr.Config, "retry_max_attempts must be non-negative")
	case c.PerProviderConcurrency <= 0:
		return coreerr.New(coreerr.Config, "per_provider_concurrency must be positive")
	case c.Vector.Backend != "chromem" && c.Vector.Backend != "qdrant":
		return coreerr.New(coreerr.Config, "vector.backend must be chromem or qdrant")
	case c.Coordination.Backend != "inproc" && c.Coordination.Backend != "redis":
		return coreerr.New(coreerr.Config, "coordination.backend must be inproc or redis")
	}
	return nil
}
