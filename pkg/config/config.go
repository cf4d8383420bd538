// Package config resolves a cognidb engine's configuration through the
// same four-level hierarchy the brain-engine predecessor used: built-in
// defaults, overridden by COGNIDB_* environment variables, overridden by
// a YAML file, overridden last by explicit programmatic/CLI values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/denizumutdereli/cognidb/pkg/codec"
)

// ServerConfig groups network listener settings.
type ServerConfig struct {
	// HTTPAddr is the TCP address the HTTP/REST API binds to.
	HTTPAddr string `yaml:"httpAddr"`
}

// StorageConfig groups the columnar storage engine's data path and
// block-layout settings.
type StorageConfig struct {
	// DataPath is the directory persisted tables and the memory store live under.
	DataPath string `yaml:"dataPath"`

	// BlockSize is the row count per block a table writer targets.
	BlockSize int `yaml:"blockSize"`

	// Compression names the default block codec: none|lz4|zstd|snappy.
	Compression string `yaml:"compression"`
}

// compressionKind maps a config string to a codec.Kind, defaulting to LZ4
// for an empty or unrecognized value.
func (c StorageConfig) compressionKind() codec.Kind {
	switch strings.ToLower(strings.TrimSpace(c.Compression)) {
	case "none":
		return codec.None
	case "zstd":
		return codec.Zstd
	case "snappy":
		return codec.Snappy
	default:
		return codec.LZ4
	}
}

// CompressionKind returns the resolved codec.Kind for Compression.
func (c StorageConfig) CompressionKind() codec.Kind { return c.compressionKind() }

// VectorConfig groups the embedding index's settings.
type VectorConfig struct {
	// Enabled activates the vector index layer. When false, no index is
	// attached to the memory store and semantic search returns an error.
	Enabled bool `yaml:"enabled"`

	// Dim is the fixed embedding dimensionality every added vector must match.
	Dim int `yaml:"dim"`

	// IndexKind names the index variant: flat|hnsw. cmd/cognidb validates
	// and reports it but always builds a Flat index; M and EfConstruction
	// are not used there.
	IndexKind string `yaml:"indexKind"`

	// M is HNSW's base per-node neighbour count.
	M int `yaml:"m"`

	// EfConstruction controls HNSW's candidate-list breadth during insertion.
	EfConstruction int `yaml:"efConstruction"`
}

// CognitiveConfig groups the thought/memory graph, attention router, and
// parallel thought processor's tunables.
type CognitiveConfig struct {
	// MaxParallelThoughts bounds how many thoughts the processor admits
	// to concurrent processing at once.
	MaxParallelThoughts int `yaml:"maxParallelThoughts"`

	// AttentionTickInterval controls how often the attention router's
	// Route cycle runs in the background daemon.
	AttentionTickInterval time.Duration `yaml:"attentionTickInterval"`
}

// BrokerConfig groups the actor registry and subscription matcher's settings.
type BrokerConfig struct {
	// MaxSubscriptionsPerActor names a per-actor subscription cap. It is
	// not passed to pkg/broker, whose registry enforces a fixed cap of 10,000.
	MaxSubscriptionsPerActor int `yaml:"maxSubscriptionsPerActor"`
}

// DeliveryConfig groups the webhook delivery client's settings.
type DeliveryConfig struct {
	// RequestTimeout bounds one subscription's whole delivery, retries
	// included.
	RequestTimeout time.Duration `yaml:"requestTimeout"`

	// MaxRetries names how many delivery attempts are made beyond the
	// first. It is not passed to pkg/delivery, whose client retries a fixed
	// 10 times.
	MaxRetries int `yaml:"maxRetries"`
}

// AdminConfig groups server administration settings.
type AdminConfig struct {
	// Enabled controls whether the admin-gated HTTP routes require HTTP
	// Basic credentials; when false those routes are open.
	Enabled bool `yaml:"enabled"`

	// User is the HTTP Basic username the admin-gated routes accept.
	User string `yaml:"user"`

	// Password is the HTTP Basic password the admin-gated routes accept.
	// WARNING: Change the default before deploying to production.
	Password string `yaml:"password"`
}

// SecurityConfig groups network security and request-limiting settings.
type SecurityConfig struct {
	// AllowedOrigins controls the CORS Access-Control-Allow-Origin header.
	AllowedOrigins string `yaml:"allowedOrigins"`

	// MaxRequestBody is the maximum allowed HTTP request body size in bytes.
	MaxRequestBody int64 `yaml:"maxRequestBody"`

	// TLSCert is the path to a TLS certificate file for HTTPS.
	TLSCert string `yaml:"tlsCert"`

	// TLSKey is the path to the TLS private key file.
	TLSKey string `yaml:"tlsKey"`

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration `yaml:"readTimeout"`

	// WriteTimeout is the maximum duration before timing out writes of the response.
	WriteTimeout time.Duration `yaml:"writeTimeout"`
}

// Config is the root configuration object for a cognidb engine instance.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Storage   StorageConfig    `yaml:"storage"`
	Vector    VectorConfig     `yaml:"vector"`
	Cognitive CognitiveConfig  `yaml:"cognitive"`
	Broker    BrokerConfig     `yaml:"broker"`
	Delivery  DeliveryConfig   `yaml:"delivery"`
	Admin     AdminConfig      `yaml:"admin"`
	Security  SecurityConfig   `yaml:"security"`
}

// DefaultConfig returns a Config populated with production-safe defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr: ":6060",
		},
		Storage: StorageConfig{
			DataPath:    "./data",
			BlockSize:   65536,
			Compression: "lz4",
		},
		Vector: VectorConfig{
			Enabled:        true,
			Dim:            384,
			IndexKind:      "hnsw",
			M:              16,
			EfConstruction: 200,
		},
		Cognitive: CognitiveConfig{
			MaxParallelThoughts:   8,
			AttentionTickInterval: 500 * time.Millisecond,
		},
		Broker: BrokerConfig{
			MaxSubscriptionsPerActor: 10_000,
		},
		Delivery: DeliveryConfig{
			RequestTimeout: 10 * time.Second,
			MaxRetries:     10,
		},
		Admin: AdminConfig{
			Enabled:  true,
			User:     "admin",
			Password: "cognidb",
		},
		Security: SecurityConfig{
			AllowedOrigins: "http://localhost:6060",
			MaxRequestBody: 1 << 20, // 1 MB
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
		},
	}
}

// ConfigFromFile reads a YAML configuration file and merges it on top of
// the built-in defaults. Fields absent from the file retain their defaults.
func ConfigFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

// ConfigFromEnv applies COGNIDB_* environment variable overrides to cfg.
// If cfg is nil a new default Config is created first.
func ConfigFromEnv(cfg *Config) *Config {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	setEnvStr("COGNIDB_HTTP_ADDR", &cfg.Server.HTTPAddr)

	setEnvStr("COGNIDB_DATA_PATH", &cfg.Storage.DataPath)
	setEnvInt("COGNIDB_BLOCK_SIZE", &cfg.Storage.BlockSize)
	setEnvStr("COGNIDB_COMPRESSION", &cfg.Storage.Compression)

	setEnvBool("COGNIDB_VECTOR_ENABLED", &cfg.Vector.Enabled)
	setEnvInt("COGNIDB_VECTOR_DIM", &cfg.Vector.Dim)
	setEnvStr("COGNIDB_VECTOR_INDEX_KIND", &cfg.Vector.IndexKind)
	setEnvInt("COGNIDB_VECTOR_M", &cfg.Vector.M)
	setEnvInt("COGNIDB_VECTOR_EF_CONSTRUCTION", &cfg.Vector.EfConstruction)

	setEnvInt("COGNIDB_MAX_PARALLEL_THOUGHTS", &cfg.Cognitive.MaxParallelThoughts)
	setEnvDuration("COGNIDB_ATTENTION_TICK_INTERVAL", &cfg.Cognitive.AttentionTickInterval)

	setEnvInt("COGNIDB_MAX_SUBSCRIPTIONS_PER_ACTOR", &cfg.Broker.MaxSubscriptionsPerActor)

	setEnvDuration("COGNIDB_DELIVERY_REQUEST_TIMEOUT", &cfg.Delivery.RequestTimeout)
	setEnvInt("COGNIDB_DELIVERY_MAX_RETRIES", &cfg.Delivery.MaxRetries)

	setEnvBool("COGNIDB_ADMIN_ENABLED", &cfg.Admin.Enabled)
	setEnvStr("COGNIDB_ADMIN_USER", &cfg.Admin.User)
	setEnvStr("COGNIDB_ADMIN_PASSWORD", &cfg.Admin.Password)

	setEnvStr("COGNIDB_ALLOWED_ORIGINS", &cfg.Security.AllowedOrigins)
	setEnvInt64("COGNIDB_MAX_REQUEST_BODY", &cfg.Security.MaxRequestBody)
	setEnvStr("COGNIDB_TLS_CERT", &cfg.Security.TLSCert)
	setEnvStr("COGNIDB_TLS_KEY", &cfg.Security.TLSKey)
	setEnvDuration("COGNIDB_READ_TIMEOUT", &cfg.Security.ReadTimeout)
	setEnvDuration("COGNIDB_WRITE_TIMEOUT", &cfg.Security.WriteTimeout)

	return cfg
}

// LoadConfig implements the full four-level hierarchy up to, but not
// including, programmatic/CLI overrides (apply those last via
// ApplyCLIOverrides):
//
//  1. Built-in defaults.
//  2. Apply COGNIDB_* environment variable overrides.
//  3. If configPath is non-empty, overlay the YAML file.
func LoadConfig(configPath string) (*Config, error) {
	cfg := ConfigFromEnv(DefaultConfig())
	if configPath == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", configPath, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", configPath, err)
	}
	return cfg, nil
}

// Validate performs structural validation of the entire configuration.
// Returns a descriptive error for the first invalid field encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.httpAddr must not be empty")
	}

	if c.Storage.DataPath == "" {
		return fmt.Errorf("storage.dataPath must not be empty")
	}
	if c.Storage.BlockSize <= 0 {
		return fmt.Errorf("storage.blockSize must be > 0, got %d", c.Storage.BlockSize)
	}
	switch strings.ToLower(strings.TrimSpace(c.Storage.Compression)) {
	case "none", "lz4", "zstd", "snappy":
	default:
		return fmt.Errorf("storage.compression must be one of none|lz4|zstd|snappy, got %q", c.Storage.Compression)
	}

	if c.Vector.Enabled {
		if c.Vector.Dim <= 0 {
			return fmt.Errorf("vector.dim must be > 0, got %d", c.Vector.Dim)
		}
		switch strings.ToLower(strings.TrimSpace(c.Vector.IndexKind)) {
		case "flat", "hnsw":
		default:
			return fmt.Errorf("vector.indexKind must be one of flat|hnsw, got %q", c.Vector.IndexKind)
		}
		if c.Vector.M <= 0 {
			return fmt.Errorf("vector.m must be > 0, got %d", c.Vector.M)
		}
		if c.Vector.EfConstruction <= 0 {
			return fmt.Errorf("vector.efConstruction must be > 0, got %d", c.Vector.EfConstruction)
		}
	}

	if c.Cognitive.MaxParallelThoughts <= 0 {
		return fmt.Errorf("cognitive.maxParallelThoughts must be > 0, got %d", c.Cognitive.MaxParallelThoughts)
	}
	if c.Cognitive.AttentionTickInterval <= 0 {
		return fmt.Errorf("cognitive.attentionTickInterval must be > 0")
	}

	if c.Broker.MaxSubscriptionsPerActor <= 0 {
		return fmt.Errorf("broker.maxSubscriptionsPerActor must be > 0, got %d", c.Broker.MaxSubscriptionsPerActor)
	}

	if c.Delivery.RequestTimeout <= 0 {
		return fmt.Errorf("delivery.requestTimeout must be > 0")
	}
	if c.Delivery.MaxRetries < 0 {
		return fmt.Errorf("delivery.maxRetries must be >= 0, got %d", c.Delivery.MaxRetries)
	}

	if c.Admin.Enabled {
		if c.Admin.User == "" || c.Admin.Password == "" {
			return fmt.Errorf("admin.user and admin.password must not be empty when admin is enabled")
		}
		if c.Admin.Password == "cognidb" && isProductionMode() {
			return fmt.Errorf("admin.password must not use the default value in production")
		}
	}

	if c.Security.MaxRequestBody < 0 {
		return fmt.Errorf("security.maxRequestBody must be >= 0 (0 = unlimited, not recommended)")
	}
	if c.Security.ReadTimeout <= 0 {
		return fmt.Errorf("security.readTimeout must be > 0")
	}
	if c.Security.WriteTimeout <= 0 {
		return fmt.Errorf("security.writeTimeout must be > 0")
	}
	if c.Admin.Enabled && c.Security.AllowedOrigins == "*" {
		return fmt.Errorf("security.allowedOrigins must not be '*' when admin is enabled")
	}
	if c.Security.TLSCert != "" && c.Security.TLSKey == "" {
		return fmt.Errorf("security.tlsKey is required when security.tlsCert is set")
	}
	if c.Security.TLSKey != "" && c.Security.TLSCert == "" {
		return fmt.Errorf("security.tlsCert is required when security.tlsKey is set")
	}

	return nil
}

func isProductionMode() bool {
	for _, key := range []string{"COGNIDB_ENV", "GO_ENV", "APP_ENV"} {
		v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
		if v == "production" || v == "prod" {
			return true
		}
	}
	return false
}

func setEnvStr(key string, target *string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func setEnvBool(key string, target *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*target = b
		}
	}
}

func setEnvInt(key string, target *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

func setEnvInt64(key string, target *int64) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*target = n
		}
	}
}

func setEnvDuration(key string, target *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*target = d
		}
	}
}

// CLIOverrides carries optional values set via command-line flags.
// Pointer fields are nil when the flag was not explicitly provided,
// distinguishing "not set" from the zero value.
type CLIOverrides struct {
	ConfigPath     *string
	HTTPAddr       *string
	DataPath       *string
	Compression    *string
	VectorEnabled  *bool
	VectorDim      *int
	AdminEnabled   *bool
	AdminUser      *string
	AdminPassword  *string
	AllowedOrigins *string
	TLSCert        *string
	TLSKey         *string
}

// ApplyCLIOverrides patches the Config with any explicitly-set CLI flags.
// Only non-nil fields in the CLIOverrides are applied, preserving all
// values resolved from earlier hierarchy layers.
func (c *Config) ApplyCLIOverrides(o *CLIOverrides) {
	if o == nil {
		return
	}
	if o.HTTPAddr != nil {
		c.Server.HTTPAddr = *o.HTTPAddr
	}
	if o.DataPath != nil {
		c.Storage.DataPath = *o.DataPath
	}
	if o.Compression != nil {
		c.Storage.Compression = *o.Compression
	}
	if o.VectorEnabled != nil {
		c.Vector.Enabled = *o.VectorEnabled
	}
	if o.VectorDim != nil {
		c.Vector.Dim = *o.VectorDim
	}
	if o.AdminEnabled != nil {
		c.Admin.Enabled = *o.AdminEnabled
	}
	if o.AdminUser != nil {
		c.Admin.User = *o.AdminUser
	}
	if o.AdminPassword != nil {
		c.Admin.Password = *o.AdminPassword
	}
	if o.AllowedOrigins != nil {
		c.Security.AllowedOrigins = *o.AllowedOrigins
	}
	if o.TLSCert != nil {
		c.Security.TLSCert = *o.TLSCert
	}
	if o.TLSKey != nil {
		c.Security.TLSKey = *o.TLSKey
	}
}
