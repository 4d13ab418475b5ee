// Package config holds the server configuration, loaded from an
// optional YAML file layered over defaults.
package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// ModelConfig describes one selectable model alias.
type ModelConfig struct {
	// Name is the upstream model identifier sent to the API.
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	BaseURL     string `yaml:"base_url" json:"base_url"`
	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv   string  `yaml:"api_key_env" json:"-"`
	Temperature float32 `yaml:"temperature" json:"-"`
	MaxTokens   int     `yaml:"max_tokens" json:"-"`

	// SupportsTools enables tool binding for this alias.
	SupportsTools bool `yaml:"supports_tools" json:"supports_tools"`
	// SupportsReasoning marks models exposing an internal
	// deliberation channel alongside the answer.
	SupportsReasoning bool `yaml:"supports_reasoning" json:"supports_reasoning"`
}

type SearchConfig struct {
	// Engine selects the search backend: "serpapi" or "duckduckgo".
	Engine     string `yaml:"engine"`
	APIKeyEnv  string `yaml:"api_key_env"`
	MaxResults int    `yaml:"max_results"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type Config struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`

	DefaultModel string                 `yaml:"default_model"`
	Models       map[string]ModelConfig `yaml:"models"`

	// MaxIterations bounds the number of tool-call rounds per request.
	MaxIterations int `yaml:"max_iterations"`

	Search SearchConfig `yaml:"search"`

	// DatabasePath is the sqlite file backing the conversation store.
	DatabasePath string `yaml:"database_path"`

	Log LogConfig `yaml:"log"`
}

// Default returns the built-in configuration: a DeepSeek-compatible
// chat model with tools, its reasoner variant, and a vision model
// served from a ModelScope-compatible endpoint.
func Default() *Config {
	return &Config{
		Host:           "localhost",
		Port:           8000,
		AllowedOrigins: []string{"http://localhost:5173", "http://localhost:3000"},
		DefaultModel:   "deepseek-chat",
		Models: map[string]ModelConfig{
			"deepseek-chat": {
				Name:          "deepseek-chat",
				Description:   "General-purpose chat model with tool calling",
				BaseURL:       "https://api.deepseek.com/v1",
				APIKeyEnv:     "DEEPSEEK_API_KEY",
				Temperature:   1.0,
				MaxTokens:     2048,
				SupportsTools: true,
			},
			"deepseek-reasoner": {
				Name:              "deepseek-reasoner",
				Description:       "Reasoning model that streams its thought process",
				BaseURL:           "https://api.deepseek.com/v1",
				APIKeyEnv:         "DEEPSEEK_API_KEY",
				Temperature:       1.0,
				MaxTokens:         2048,
				SupportsReasoning: true,
			},
			"qwen3-vl-8b-instruct": {
				Name:        "Qwen/Qwen3-VL-8B-Instruct",
				Description: "Vision-language model for image understanding",
				BaseURL:     "https://api-inference.modelscope.cn/v1",
				APIKeyEnv:   "MODELSCOPE_API_KEY",
				Temperature: 1.0,
				MaxTokens:   2048,
			},
		},
		MaxIterations: 5,
		Search: SearchConfig{
			Engine:     "serpapi",
			APIKeyEnv:  "SERPAPI_API_KEY",
			MaxResults: 5,
		},
		DatabasePath: "data/conversations.db",
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads the YAML file at path over the defaults. A missing path
// returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// Model resolves an alias, falling back to the default model when the
// alias is empty.
func (c *Config) Model(alias string) (ModelConfig, error) {
	if alias == "" {
		alias = c.DefaultModel
	}
	mc, ok := c.Models[alias]
	if !ok {
		return ModelConfig{}, fmt.Errorf("unknown model: %s", alias)
	}
	return mc, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
