package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the medrag retrieval engine configuration.
type Config struct {
	HTTP        HTTPConfig        `yaml:"http"`
	Redis       RedisConfig       `yaml:"redis"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Cache       CacheConfig       `yaml:"cache"`
	Collections map[string]int    `yaml:"collections"` // name -> embedding dimension
	ICD10       ICD10Config       `yaml:"icd10"`
	Indexer     IndexerConfig     `yaml:"indexer"`
	Search      SearchConfig      `yaml:"search"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds ops HTTP server settings (health and metrics only).
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// RedisConfig holds result-cache backend connection settings.
// All parameters are injected here, never hard-coded at call sites.
type RedisConfig struct {
	Addrs             []string `yaml:"addrs"`
	Password          string   `yaml:"password"`
	DB                int      `yaml:"db"`
	ConnectTimeoutSec int      `yaml:"connect_timeout_sec"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // label for logs/metrics
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	CacheSize  int    `yaml:"cache_size"` // process-local embedding cache cap (FIFO)
}

// CacheConfig holds result cache settings.
type CacheConfig struct {
	Namespace string `yaml:"namespace"`
}

// ICD10Config holds the ICD-10 code table location.
type ICD10Config struct {
	Path string `yaml:"path"` // sqlite file, ":memory:" for ephemeral
}

// IndexerConfig holds ingestion queue settings.
type IndexerConfig struct {
	QueueSize     int `yaml:"queue_size"`
	Workers       int `yaml:"workers"`
	JobTimeoutSec int `yaml:"job_timeout_sec"`
}

// SearchConfig holds retrieval tuning parameters.
type SearchConfig struct {
	DefaultTopK    int     `yaml:"default_top_k"`
	MinSimilarity  float64 `yaml:"min_similarity"`
	KeywordWeight  float64 `yaml:"keyword_weight"`
	SemanticWeight float64 `yaml:"semantic_weight"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Redis.ConnectTimeoutSec <= 0 {
		c.Redis.ConnectTimeoutSec = 2
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 768
	}
	if c.Embedding.CacheSize <= 0 {
		c.Embedding.CacheSize = 4096
	}
	if c.Cache.Namespace == "" {
		c.Cache.Namespace = "medrag"
	}
	if len(c.Collections) == 0 {
		c.Collections = map[string]int{
			"clinical_records":   c.Embedding.Dimensions,
			"icd10_codes":        c.Embedding.Dimensions,
			"drugs":              c.Embedding.Dimensions,
			"medical_protocols":  c.Embedding.Dimensions,
			"hospital_processes": c.Embedding.Dimensions,
		}
	}
	if c.ICD10.Path == "" {
		c.ICD10.Path = "icd10.db"
	}
	if c.Indexer.QueueSize <= 0 {
		c.Indexer.QueueSize = 256
	}
	if c.Indexer.Workers <= 0 {
		c.Indexer.Workers = 4
	}
	if c.Indexer.JobTimeoutSec <= 0 {
		c.Indexer.JobTimeoutSec = 30
	}
	if c.Search.DefaultTopK <= 0 {
		c.Search.DefaultTopK = 10
	}
	if c.Search.MinSimilarity <= 0 {
		c.Search.MinSimilarity = 0.5
	}
	if c.Search.KeywordWeight <= 0 {
		c.Search.KeywordWeight = 0.4
	}
	if c.Search.SemanticWeight <= 0 {
		c.Search.SemanticWeight = 0.6
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	for name, dim := range c.Collections {
		if dim <= 0 {
			return fmt.Errorf("collections.%s: dimension must be positive, got %d", name, dim)
		}
	}
	if c.Search.KeywordWeight+c.Search.SemanticWeight <= 0 {
		return fmt.Errorf("search: keyword_weight + semantic_weight must be positive")
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
