// Package engconfig loads engine configuration from environment variables,
// with an optional .env file for local runs. It follows the env-first,
// defaults-plus-override pattern used throughout the service layer: decode
// into a typed struct, never hand-parse individual env vars in callers.
package engconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EngineConfig controls the orchestrator runtime: where project state
// lives, how long a gene is allowed to run, and which mutation engine
// backs it.
type EngineConfig struct {
	ProjectRoot    string        `yaml:"project_root" env:"SG_PROJECT_ROOT,default=."`
	GeneTimeout    time.Duration `yaml:"gene_timeout" env:"SG_GENE_TIMEOUT,default=30s"`
	MutationEngine string        `yaml:"mutation_engine" env:"SG_MUTATION_ENGINE,default=fixture"`
	GenesDir       string        `yaml:"genes_dir" env:"SG_GENES_DIR,default=genes"`
	FixturesDir    string        `yaml:"fixtures_dir" env:"SG_FIXTURES_DIR,default=fixtures"`
	ContractsDir   string        `yaml:"contracts_dir" env:"SG_CONTRACTS_DIR,default=contracts"`
}

// DatabaseConfig controls the execution audit log's Postgres connection.
type DatabaseConfig struct {
	DSN             string `yaml:"dsn" env:"SG_AUDIT_DSN"`
	MaxOpenConns    int    `yaml:"max_open_conns" env:"SG_AUDIT_MAX_OPEN_CONNS,default=10"`
	MaxIdleConns    int    `yaml:"max_idle_conns" env:"SG_AUDIT_MAX_IDLE_CONNS,default=5"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_seconds" env:"SG_AUDIT_CONN_MAX_LIFETIME_SECONDS,default=300"`
	MigrateOnStart  bool   `yaml:"migrate_on_start" env:"SG_AUDIT_MIGRATE_ON_START,default=true"`
}

// CacheConfig controls the optional arena fitness cache.
type CacheConfig struct {
	Addr    string        `yaml:"addr" env:"SG_REDIS_ADDR"`
	TTL     time.Duration `yaml:"ttl" env:"SG_FITNESS_CACHE_TTL,default=5s"`
	Enabled bool          `yaml:"enabled" env:"SG_FITNESS_CACHE_ENABLED,default=false"`
}

// PoolConfig controls the federation/pool client.
type PoolConfig struct {
	Peers          []string      `yaml:"peers" env:"SG_POOL_PEERS"`
	JWTSecret      string        `yaml:"-" env:"SG_POOL_JWT_SECRET"`
	RateLimitRPS   float64       `yaml:"rate_limit_rps" env:"SG_POOL_RATE_LIMIT_RPS,default=5"`
	RequestBurst   int           `yaml:"request_burst" env:"SG_POOL_REQUEST_BURST,default=10"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"SG_POOL_REQUEST_TIMEOUT,default=10s"`
}

// ServerConfig controls the ambient health/metrics and reference pool
// server listeners.
type ServerConfig struct {
	HealthAddr string `yaml:"health_addr" env:"SG_HEALTH_ADDR,default=:9090"`
	PoolAddr   string `yaml:"pool_addr" env:"SG_POOL_ADDR,default=:9091"`
}

// SnapshotRotationConfig controls the recurring snapshot-rotation poller
// `sgctl watch` runs alongside the verify scheduler's one-shot timers.
type SnapshotRotationConfig struct {
	Cron    string `yaml:"cron" env:"SG_SNAPSHOT_CRON,default=@every 1h"`
	Retain  int    `yaml:"retain" env:"SG_SNAPSHOT_RETAIN,default=24"`
	Enabled bool   `yaml:"enabled" env:"SG_SNAPSHOT_ROTATION_ENABLED,default=false"`
}

// LoggingConfig controls obslog's logrus wrapper.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"SG_LOG_LEVEL,default=info"`
	Format string `yaml:"format" env:"SG_LOG_FORMAT,default=text"`
}

// Config is the top-level engine configuration.
type Config struct {
	Engine   EngineConfig           `yaml:"engine"`
	Database DatabaseConfig         `yaml:"database"`
	Cache    CacheConfig            `yaml:"cache"`
	Pool     PoolConfig             `yaml:"pool"`
	Server   ServerConfig           `yaml:"server"`
	Logging  LoggingConfig          `yaml:"logging"`
	Snapshot SnapshotRotationConfig `yaml:"snapshot_rotation"`
}

// Load reads a .env file (if present), layers an optional YAML config file
// on top of defaults, then decodes environment variables over both — env
// vars win, the file wins over defaults, matching the layering every other
// service-layer loader uses. SG_CONFIG_FILE picks the file explicitly;
// otherwise sg.yaml in the working directory is tried and silently skipped
// if absent.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	path := strings.TrimSpace(os.Getenv("SG_CONFIG_FILE"))
	if path == "" {
		path = "sg.yaml"
	}
	if err := loadFromFile(path, cfg); err != nil {
		return nil, err
	}

	if err := envdecode.Decode(cfg); err != nil {
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	root, err := filepath.Abs(cfg.Engine.ProjectRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}
	cfg.Engine.ProjectRoot = root

	return cfg, nil
}

// loadFromFile overlays a YAML config file onto cfg. A missing file is not
// an error: most deployments run on env vars alone.
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// RegistryDir is the content-addressed allele store under the project root.
func (c *Config) RegistryDir() string {
	return filepath.Join(c.Engine.ProjectRoot, ".sg", "registry")
}

// PhenotypePath is the phenotype.toml file, rooted directly under the
// project root (not under .sg).
func (c *Config) PhenotypePath() string {
	return filepath.Join(c.Engine.ProjectRoot, "phenotype.toml")
}

// RegressionPath is the regression.json peak-fitness history file.
func (c *Config) RegressionPath() string {
	return filepath.Join(c.Engine.ProjectRoot, ".sg", "regression.json")
}

// SnapshotsDir is the root of all named snapshots.
func (c *Config) SnapshotsDir() string {
	return filepath.Join(c.Engine.ProjectRoot, ".sg", "snapshots")
}

// PoolMembershipsPath is the federation pool membership state file.
func (c *Config) PoolMembershipsPath() string {
	return filepath.Join(c.Engine.ProjectRoot, ".sg", "pool_memberships.json")
}

// PeersPath is the peers.json federation input file.
func (c *Config) PeersPath() string {
	return filepath.Join(c.Engine.ProjectRoot, "peers.json")
}

// EnsureProjectLayout creates the .sg state directories if they do not
// already exist, mirroring `sgctl init`.
func (c *Config) EnsureProjectLayout() error {
	dirs := []string{
		filepath.Join(c.RegistryDir(), "sources"),
		c.Engine.ProjectRoot,
		c.SnapshotsDir(),
		c.Engine.GenesDir,
		c.Engine.FixturesDir,
		c.Engine.ContractsDir,
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
