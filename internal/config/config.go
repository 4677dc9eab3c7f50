package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/vecingest/internal/domain"
)

// Embedding providers.
const (
	ProviderArk    = "ark"
	ProviderOpenAI = "openai"
)

// Defaults for the Ark multimodal endpoint.
const (
	DefaultArkBaseURL = "https://ark.cn-beijing.volces.com"
	DefaultArkModel   = "doubao-embedding-vision-250615"
)

// Config holds the vecingest configuration.
type Config struct {
	Env       string          `yaml:"env"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Database  DatabaseConfig  `yaml:"database"`
	Index     IndexConfig     `yaml:"index"`
	Vectorize VectorizeConfig `yaml:"vectorize"`
	Load      LoadConfig      `yaml:"load"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider     string `yaml:"provider"` // ark (default), openai
	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url"`
	Model        string `yaml:"model"`
	Dimensions   int    `yaml:"dimensions"` // 0 = provider default
	TimeoutMs    int    `yaml:"timeout_ms"`
	MaxRetries   int    `yaml:"max_retries"` // negative disables retries
	RetryDelayMs int    `yaml:"retry_delay_ms"`
	Cache        bool   `yaml:"cache"`
	CacheTTLSec  int    `yaml:"cache_ttl_sec"` // 0 keeps entries forever
}

// DatabaseConfig holds vector store connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	UseTLS           bool     `yaml:"use_tls"`
	TimeoutMs        int      `yaml:"timeout_ms"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	KeyPrefix        string   `yaml:"key_prefix"`
}

// IndexConfig holds HNSW parameters for newly created collections.
type IndexConfig struct {
	HNSWM           int `yaml:"hnsw_m"`
	HNSWEFConstruct int `yaml:"hnsw_ef_construction"`
}

// VectorizeConfig holds vectorization batching settings.
type VectorizeConfig struct {
	BatchSize    int `yaml:"batch_size"`
	MaxBatchSize int `yaml:"max_batch_size"`
	DelayMs      int `yaml:"delay_ms"`
}

// LoadConfig holds bulk loading settings.
type LoadConfig struct {
	BatchSize int `yaml:"batch_size"`
	DelayMs   int `yaml:"delay_ms"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// MetricsConfig holds the metrics endpoint address. Empty disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Load reads configuration: .env files first, then the optional YAML file at path,
// then well-known environment variables, then defaults.
func Load(path string) (Config, error) {
	if err := LoadDotEnv(""); err != nil {
		return Config{}, err
	}

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w: %w", path, domain.ErrConfiguration, err)
		}

		// Substitute env variables of the form ${VAR}
		data = expandEnvVars(data)

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w: %w", domain.ErrConfiguration, err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return Config{}, err
	}
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// dotEnvFiles are loaded in order; earlier files win because godotenv never overrides.
var dotEnvFiles = []string{".env.local", ".env"}

// LoadDotEnv walks up from dir (working directory if empty) looking for .env.local and .env,
// stopping at the first directory containing go.mod. Variables already set in the
// process environment are left untouched.
func LoadDotEnv(dir string) error {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("getwd: %w: %w", domain.ErrConfiguration, err)
		}
		dir = wd
	}

	remaining := make(map[string]bool, len(dotEnvFiles))
	for _, name := range dotEnvFiles {
		remaining[name] = true
	}

	for {
		for _, name := range dotEnvFiles {
			if !remaining[name] {
				continue
			}
			path := filepath.Join(dir, name)
			if !fileExists(path) {
				continue
			}
			if err := godotenv.Load(path); err != nil {
				return fmt.Errorf("load %s: %w: %w", path, domain.ErrConfiguration, err)
			}
			remaining[name] = false
		}

		if fileExists(filepath.Join(dir, "go.mod")) {
			return nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil
		}
		dir = parent
	}
}

// ApplyEnv overlays well-known environment variables onto the config.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("ENV"); v != "" {
		c.Env = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("EMBEDDING_PROVIDER"); v != "" {
		c.Embedding.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("ARK_API_KEY"); v != "" {
		c.Embedding.APIKey = v
	}
	if v := os.Getenv("ARK_BASE_URL"); v != "" {
		c.Embedding.BaseURL = v
	}
	if v := os.Getenv("ARK_MODEL"); v != "" {
		c.Embedding.Model = v
	}
	if v := os.Getenv("VALKEY_ADDR"); v != "" {
		c.Database.Addrs = splitList(v)
	}
	if v := os.Getenv("VALKEY_PASSWORD"); v != "" {
		c.Database.Password = v
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"ARK_TIMEOUT", &c.Embedding.TimeoutMs},
		{"ARK_MAX_RETRIES", &c.Embedding.MaxRetries},
		{"ARK_RETRY_DELAY", &c.Embedding.RetryDelayMs},
		{"VALKEY_TIMEOUT", &c.Database.TimeoutMs},
	}
	for _, e := range ints {
		v := os.Getenv(e.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("%s must be a non-negative integer, got %q: %w", e.name, v, domain.ErrConfiguration)
		}
		*e.dst = n
	}
	if c.Embedding.MaxRetries == 0 && os.Getenv("ARK_MAX_RETRIES") != "" {
		c.Embedding.MaxRetries = -1
	}

	if v := os.Getenv("VALKEY_USE_TLS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("VALKEY_USE_TLS must be a boolean, got %q: %w", v, domain.ErrConfiguration)
		}
		c.Database.UseTLS = b
	}
	return nil
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.Env == "" {
		c.Env = "local"
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = ProviderArk
	}
	if c.Embedding.Provider == ProviderArk {
		if c.Embedding.BaseURL == "" {
			c.Embedding.BaseURL = DefaultArkBaseURL
		}
		if c.Embedding.Model == "" {
			c.Embedding.Model = DefaultArkModel
		}
	}
	if c.Embedding.TimeoutMs <= 0 {
		c.Embedding.TimeoutMs = 30000
	}
	if c.Embedding.MaxRetries == 0 {
		c.Embedding.MaxRetries = 2
	}
	if c.Embedding.RetryDelayMs <= 0 {
		c.Embedding.RetryDelayMs = 1000
	}
	if len(c.Database.Addrs) == 0 {
		c.Database.Addrs = []string{"localhost:6379"}
	}
	if c.Database.TimeoutMs <= 0 {
		c.Database.TimeoutMs = 5000
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Database.KeyPrefix == "" {
		c.Database.KeyPrefix = "vecingest:"
	}
	if c.Index.HNSWM <= 0 {
		c.Index.HNSWM = 16
	}
	if c.Index.HNSWEFConstruct <= 0 {
		c.Index.HNSWEFConstruct = 200
	}
	if c.Vectorize.BatchSize <= 0 {
		c.Vectorize.BatchSize = 10
	}
	if c.Vectorize.MaxBatchSize <= 0 {
		c.Vectorize.MaxBatchSize = 300
	}
	if c.Vectorize.DelayMs <= 0 {
		c.Vectorize.DelayMs = 300
	}
	if c.Load.BatchSize <= 0 {
		c.Load.BatchSize = 100
	}
	if c.Load.DelayMs <= 0 {
		c.Load.DelayMs = 200
	}
}

// Validate checks settings shared by every command.
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case ProviderArk, ProviderOpenAI:
	default:
		return fmt.Errorf("embedding.provider must be %q or %q, got %q: %w",
			ProviderArk, ProviderOpenAI, c.Embedding.Provider, domain.ErrConfiguration)
	}
	if c.Vectorize.BatchSize > c.Vectorize.MaxBatchSize {
		return fmt.Errorf("vectorize.batch_size %d exceeds max_batch_size %d: %w",
			c.Vectorize.BatchSize, c.Vectorize.MaxBatchSize, domain.ErrConfiguration)
	}
	if c.Embedding.CacheTTLSec < 0 {
		return fmt.Errorf("embedding.cache_ttl_sec must not be negative: %w", domain.ErrConfiguration)
	}
	return nil
}

// ValidateEmbedding checks the settings the vectorization stage requires.
func (c *Config) ValidateEmbedding() error {
	if c.Embedding.APIKey == "" {
		return fmt.Errorf("embedding api key is required (set ARK_API_KEY): %w", domain.ErrConfiguration)
	}
	if c.Embedding.Model == "" {
		return fmt.Errorf("embedding.model is required: %w", domain.ErrConfiguration)
	}
	if c.Embedding.Provider == ProviderArk && c.Embedding.BaseURL == "" {
		return fmt.Errorf("embedding.base_url is required: %w", domain.ErrConfiguration)
	}
	return nil
}

// ValidateDatabase checks the settings the loading stage requires.
func (c *Config) ValidateDatabase() error {
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required (set VALKEY_ADDR): %w", domain.ErrConfiguration)
	}
	for _, a := range c.Database.Addrs {
		if a == "" {
			return fmt.Errorf("database.addrs contains an empty address: %w", domain.ErrConfiguration)
		}
	}
	return nil
}

// Summary returns a flat view of the effective settings with secrets masked.
func (c *Config) Summary() map[string]string {
	raw := map[string]string{
		"ENV":                c.Env,
		"LOG_LEVEL":          c.Logging.Level,
		"EMBEDDING_PROVIDER": c.Embedding.Provider,
		"ARK_API_KEY":        c.Embedding.APIKey,
		"ARK_BASE_URL":       c.Embedding.BaseURL,
		"ARK_MODEL":          c.Embedding.Model,
		"ARK_TIMEOUT":        strconv.Itoa(c.Embedding.TimeoutMs),
		"ARK_MAX_RETRIES":    strconv.Itoa(c.Embedding.MaxRetries),
		"ARK_RETRY_DELAY":    strconv.Itoa(c.Embedding.RetryDelayMs),
		"VALKEY_ADDR":        strings.Join(c.Database.Addrs, ","),
		"VALKEY_PASSWORD":    c.Database.Password,
		"VALKEY_USE_TLS":     strconv.FormatBool(c.Database.UseTLS),
		"VALKEY_TIMEOUT":     strconv.Itoa(c.Database.TimeoutMs),
	}

	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if isSecret(k) && v != "" {
			v = "***"
		}
		out[k] = v
	}
	return out
}

// SummaryKeys returns Summary keys in stable order.
func SummaryKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func isSecret(name string) bool {
	upper := strings.ToUpper(name)
	return strings.HasSuffix(upper, "_KEY") || strings.Contains(upper, "PASSWORD") ||
		strings.Contains(upper, "SECRET")
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
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
