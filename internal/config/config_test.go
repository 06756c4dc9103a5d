package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidate_InvalidPort(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidate_NonPositiveDimension(t *testing.T) {
	cfg := Config{
		HTTP:        HTTPConfig{Port: 8080},
		Collections: map[string]int{"icd10_codes": 0},
	}

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero collection dimension")
	}
}

func TestValidate_ZeroWeights(t *testing.T) {
	cfg := Config{
		HTTP:        HTTPConfig{Port: 8080},
		Collections: map[string]int{"icd10_codes": 768},
	}

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero fusion weights")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.Embedding.Dimensions != 768 {
		t.Errorf("expected dimensions 768, got %d", cfg.Embedding.Dimensions)
	}
	if cfg.Embedding.CacheSize != 4096 {
		t.Errorf("expected embedding cache size 4096, got %d", cfg.Embedding.CacheSize)
	}
	if cfg.Cache.Namespace != "medrag" {
		t.Errorf("expected namespace medrag, got %q", cfg.Cache.Namespace)
	}
	if cfg.Search.DefaultTopK != 10 {
		t.Errorf("expected default top_k 10, got %d", cfg.Search.DefaultTopK)
	}
	if cfg.Search.MinSimilarity != 0.5 {
		t.Errorf("expected min_similarity 0.5, got %v", cfg.Search.MinSimilarity)
	}
	if cfg.Search.KeywordWeight != 0.4 || cfg.Search.SemanticWeight != 0.6 {
		t.Errorf("expected weights 0.4/0.6, got %v/%v",
			cfg.Search.KeywordWeight, cfg.Search.SemanticWeight)
	}
	if cfg.Indexer.QueueSize != 256 || cfg.Indexer.Workers != 4 {
		t.Errorf("expected indexer 256/4, got %d/%d", cfg.Indexer.QueueSize, cfg.Indexer.Workers)
	}
	if len(cfg.Collections) != 5 {
		t.Errorf("expected 5 default collections, got %d", len(cfg.Collections))
	}
	if dim, ok := cfg.Collections["clinical_records"]; !ok || dim != 768 {
		t.Errorf("clinical_records dimension = %d, ok=%v", dim, ok)
	}
}

func TestApplyDefaults_CollectionsFollowDimensions(t *testing.T) {
	cfg := Config{Embedding: EmbeddingConfig{Dimensions: 1536}}
	cfg.ApplyDefaults()

	if cfg.Collections["icd10_codes"] != 1536 {
		t.Errorf("default collections must use configured dimension, got %d",
			cfg.Collections["icd10_codes"])
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("ENV", "")
	if env := GetEnv(); env != "local" {
		t.Errorf("default env = %q, want local", env)
	}

	t.Setenv("ENV", "prod")
	if env := GetEnv(); env != "prod" {
		t.Errorf("env = %q, want prod", env)
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	dir := t.TempDir()
	content := `
http:
  port: 8080
redis:
  addrs:
    - ${TEST_MEDRAG_REDIS:-fallback:6379}
  db: 3
embedding:
  api_key: ${TEST_MEDRAG_KEY}
`
	if err := os.Mkdir(filepath.Join(dir, "config"), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config", "test.yaml"), []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(cwd) })

	t.Setenv("TEST_MEDRAG_KEY", "sk-test")

	cfg, err := Load("test")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Redis.Addrs[0] != "fallback:6379" {
		t.Errorf("default expansion failed: %v", cfg.Redis.Addrs)
	}
	if cfg.Redis.DB != 3 {
		t.Errorf("redis db index = %d, want 3", cfg.Redis.DB)
	}
	if cfg.Embedding.APIKey != "sk-test" {
		t.Errorf("env expansion failed: %q", cfg.Embedding.APIKey)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_MEDRAG_VAR", "value")

	cases := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"${TEST_MEDRAG_VAR}", "value"},
		{"${TEST_MEDRAG_UNSET}", ""},
		{"${TEST_MEDRAG_UNSET:-fallback}", "fallback"},
		{"${TEST_MEDRAG_VAR:-fallback}", "value"},
	}
	for _, tc := range cases {
		if got := string(expandEnvVars([]byte(tc.in))); got != tc.want {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
