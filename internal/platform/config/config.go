// Package config loads the service configuration from a YAML file with
// environment overrides, so main stays lean.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// OfflineRoot maps a published URL prefix to a local directory. Entries are
// tried in order after catalog resolution fails.
type OfflineRoot struct {
	URLPrefix string `yaml:"url_prefix"`
	LocalRoot string `yaml:"local_root"`
}

// Flags are the feature toggles consumed by the orchestrator. They gate
// behavior, not algorithms.
type Flags struct {
	AllowInstanceRewrite bool `yaml:"allow_instance_rewrite"`
	EnableDTSFirst       bool `yaml:"enable_dts_first"`
	InjectSchemaRefs     bool `yaml:"inject_schema_refs"`
}

// Profile is a named set of engine validation toggles.
type Profile struct {
	Formulas       bool `yaml:"formulas"`
	CSVConstraints bool `yaml:"csv_constraints"`
	Trace          bool `yaml:"trace"`
}

// DictionaryNamespace describes a namespace whose schema import the regulator
// sometimes omits from instances. The injector uses these to detect and
// repair the missing schemaRef.
type DictionaryNamespace struct {
	Prefix     string   `yaml:"prefix"`
	Namespace  string   `yaml:"namespace"`
	Fragment   string   `yaml:"fragment"`
	SchemaURLs []string `yaml:"schema_urls"`
}

// WorkerConfig selects the isolation mechanism for load+validate.
type WorkerConfig struct {
	// Mode is "subprocess" (default) or "local".
	Mode string `yaml:"mode"`
	// Binary is the worker executable path for subprocess mode.
	Binary string `yaml:"binary"`
	// Timeout is the hard kill deadline for one worker run.
	Timeout time.Duration `yaml:"timeout"`
}

// EngineConfig names the registered engine binding to use.
type EngineConfig struct {
	Binding string `yaml:"binding"`
}

// PostgresConfig configures the run store. Empty DSN selects the in-memory
// store.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// RedisConfig configures the result retention cache. Empty URL disables it.
type RedisConfig struct {
	URL          string        `yaml:"url"`
	TTL          time.Duration `yaml:"ttl"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// KafkaConfig configures the audit publisher. Empty broker list disables it.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// AdminConfig guards mutating admin endpoints.
type AdminConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// Config is the full service configuration.
type Config struct {
	Addr     string `yaml:"addr"`
	CacheDir string `yaml:"cache_dir"`
	TempDir  string `yaml:"temp_dir"`

	Packages     []string      `yaml:"packages"`
	OfflineRoots []OfflineRoot `yaml:"offline_roots"`

	Flags                Flags                 `yaml:"flags"`
	Profiles             map[string]Profile    `yaml:"profiles"`
	DictionaryNamespaces []DictionaryNamespace `yaml:"dictionary_namespaces"`
	DTSFirstSchemas      []string              `yaml:"dts_first_schemas"`

	Engine   EngineConfig   `yaml:"engine"`
	Worker   WorkerConfig   `yaml:"worker"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Admin    AdminConfig    `yaml:"admin"`
}

// DefaultProfiles are used when the config file declares none.
// fast: no formulas, no CSV constraints, no trace.
// full: formulas + CSV constraints. debug: full plus trace.
func DefaultProfiles() map[string]Profile {
	return map[string]Profile{
		"fast":  {},
		"full":  {Formulas: true, CSVConstraints: true},
		"debug": {Formulas: true, CSVConstraints: true, Trace: true},
	}
}

// Default returns a config with workable defaults for local development.
func Default() Config {
	return Config{
		Addr:     ":8080",
		CacheDir: "cache",
		TempDir:  "temp",
		Profiles: DefaultProfiles(),
		Engine:   EngineConfig{Binding: "stub"},
		Worker:   WorkerConfig{Mode: "subprocess", Timeout: 10 * time.Minute},
		Redis:    RedisConfig{TTL: 24 * time.Hour, PoolSize: 10, MinIdleConns: 2, DialTimeout: 5 * time.Second, ReadTimeout: 3 * time.Second, WriteTimeout: 3 * time.Second},
	}
}

// Load reads a YAML config file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if len(cfg.Profiles) == 0 {
		cfg.Profiles = DefaultProfiles()
	}
	return cfg, nil
}

// FromEnv applies environment overrides on top of cfg. Environment wins over
// file values so deployments can patch a shared config.
func FromEnv(cfg Config) Config {
	if v := os.Getenv("VERITAX_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("VERITAX_POSTGRES_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("VERITAX_REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("VERITAX_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("VERITAX_ADMIN_JWT_SECRET"); v != "" {
		cfg.Admin.JWTSecret = v
	}
	if v := os.Getenv("VERITAX_WORKER_BINARY"); v != "" {
		cfg.Worker.Binary = v
	}
	return cfg
}

// ProfileNamed resolves a profile by name, falling back to "fast" for
// unknown names so a typo degrades to the cheapest run, never an abort.
func (c Config) ProfileNamed(name string) (string, Profile) {
	if p, ok := c.Profiles[name]; ok {
		return name, p
	}
	if p, ok := c.Profiles["fast"]; ok {
		return "fast", p
	}
	return "fast", Profile{}
}
