package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v2"
)

// config/config.go
type User struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type AuthConfig struct {
	Users []User `yaml:"users"`
}

type Backup struct {
	Provider string `yaml:"provider" env:"BACKUP_PROVIDER"` // "aws", "gcp", ou "azure"
	Enabled  bool   `yaml:"enabled" env:"BACKUP_ENABLED"`
	GCP      struct {
		Bucket    string `yaml:"bucket" env:"GCP_BUCKET"`
		ProjectID string `yaml:"projectID" env:"GCP_PROJECT_ID"`
	} `yaml:"gcp"`
	AWS struct {
		Bucket   string `yaml:"bucket" env:"AWS_BUCKET"`
		Region   string `yaml:"region" env:"AWS_REGION"`
		// Endpoint targets an S3-compatible store (MinIO, Ceph); path-style addressing is used
		Endpoint string `yaml:"endpoint,omitempty" env:"AWS_ENDPOINT"`
	} `yaml:"aws"`
	Azure struct {
		StorageAccount string `yaml:"storageAccount" env:"AZURE_STORAGE_ACCOUNT"`
		Container      string `yaml:"container" env:"AZURE_CONTAINER"`
	} `yaml:"azure"`
}

// RedisConfig is used when storage.driver is "redis"
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password,omitempty" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
	Prefix   string `yaml:"prefix" env:"REDIS_PREFIX"`
}

// StorageConfig selects and locates the persistent store
type StorageConfig struct {
	Driver string      `yaml:"driver" env:"STORAGE_DRIVER"` // "sqlite" (default) or "redis"
	Path   string      `yaml:"path" env:"STORAGE_PATH"`
	Redis  RedisConfig `yaml:"redis"`
}

// CacheConfig is immutable for the engine's lifetime once loaded
type CacheConfig struct {
	MaxStorageBytes  int64         `yaml:"maxStorageBytes" env:"CACHE_MAX_STORAGE_BYTES"`
	IconTTL          time.Duration `yaml:"iconTTL" env:"CACHE_ICON_TTL"`
	FontTTL          time.Duration `yaml:"fontTTL" env:"CACHE_FONT_TTL"`
	ResourceTTL      time.Duration `yaml:"resourceTTL" env:"CACHE_RESOURCE_TTL"`
	CleanupThreshold float64       `yaml:"cleanupThreshold" env:"CACHE_CLEANUP_THRESHOLD"` // fraction of maxStorageBytes
	InitTimeout      time.Duration `yaml:"initTimeout" env:"CACHE_INIT_TIMEOUT"`
	IconFetchTimeout time.Duration `yaml:"iconFetchTimeout" env:"CACHE_ICON_FETCH_TIMEOUT"`
	FontFetchTimeout time.Duration `yaml:"fontFetchTimeout" env:"CACHE_FONT_FETCH_TIMEOUT"`
	// MaxRetries is parsed but not consumed: every fetch is attempted once.
	MaxRetries    int      `yaml:"maxRetries" env:"CACHE_MAX_RETRIES"`
	MaxAssetBytes int64    `yaml:"maxAssetBytes" env:"CACHE_MAX_ASSET_BYTES"`
	Denylist      []string `yaml:"denylist" env:"CACHE_DENYLIST" envSeparator:","`
}

type Config struct {
	Server struct {
		Port int `yaml:"port" env:"SERVER_PORT"`
		// AnonymousFetch lets unauthenticated callers trigger icon and font
		// fetches. Off by default.
		AnonymousFetch bool `yaml:"anonymousFetch" env:"SERVER_ANONYMOUS_FETCH"`
	} `yaml:"server"`

	Storage StorageConfig `yaml:"storage"`

	Logging struct {
		Level  string `yaml:"level" env:"LOG_LEVEL"`
		Format string `yaml:"format" env:"LOG_FORMAT"`
	} `yaml:"logging"`
	Auth   AuthConfig  `yaml:"auth"`
	Backup Backup      `yaml:"backup"`
	Cache  CacheConfig `yaml:"cache"`
}

type Secrets struct {
	// AWS credentials
	AWSAccessKeyID     string
	AWSSecretAccessKey string

	// GCP credentials
	GCPCredentialsFile string

	// Azure credentials
	AzureStorageAccountKey string
}

// Defaults
const (
	DefaultPort             = 3030
	DefaultStoragePath      = "data"
	DefaultMaxStorageBytes  = 50 * 1024 * 1024
	DefaultIconTTL          = 7 * 24 * time.Hour
	DefaultFontTTL          = 30 * 24 * time.Hour
	DefaultCleanupThreshold = 0.8
	DefaultInitTimeout      = 5 * time.Second
	DefaultIconFetchTimeout = 3 * time.Second
	DefaultFontFetchTimeout = 10 * time.Second
	DefaultMaxRetries       = 3
	DefaultMaxAssetBytes    = 2 * 1024 * 1024
	DefaultRedisPrefix      = "assetcache"
)

// DefaultCacheConfig returns the cache settings used when nothing is configured
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		MaxStorageBytes:  DefaultMaxStorageBytes,
		IconTTL:          DefaultIconTTL,
		FontTTL:          DefaultFontTTL,
		ResourceTTL:      DefaultFontTTL,
		CleanupThreshold: DefaultCleanupThreshold,
		InitTimeout:      DefaultInitTimeout,
		IconFetchTimeout: DefaultIconFetchTimeout,
		FontFetchTimeout: DefaultFontFetchTimeout,
		MaxRetries:       DefaultMaxRetries,
		MaxAssetBytes:    DefaultMaxAssetBytes,
	}
}

// LoadConfig charge la configuration depuis un fichier YAML
func LoadConfig(path string) (*Config, error) {
	config := &Config{}
	// seeded before parsing so an explicit 0 survives ApplyDefaults
	config.Cache.MaxRetries = DefaultMaxRetries

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("❌ error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("❌ error parsing config: %w", err)
	}

	// Les variables d'environnement ont priorité sur le fichier
	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("❌ error parsing environment: %w", err)
	}
	loadAuthFromEnv(config)

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("❌ invalid config: %w", err)
	}

	return config, nil
}

// ApplyDefaults fills every unset field with its default
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = DefaultStoragePath
	}
	if c.Storage.Redis.Prefix == "" {
		c.Storage.Redis.Prefix = DefaultRedisPrefix
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	def := DefaultCacheConfig()
	cc := &c.Cache
	if cc.MaxStorageBytes == 0 {
		cc.MaxStorageBytes = def.MaxStorageBytes
	}
	if cc.IconTTL == 0 {
		cc.IconTTL = def.IconTTL
	}
	if cc.FontTTL == 0 {
		cc.FontTTL = def.FontTTL
	}
	// resources are treated as stable as fonts unless told otherwise
	if cc.ResourceTTL == 0 {
		cc.ResourceTTL = cc.FontTTL
	}
	if cc.CleanupThreshold == 0 {
		cc.CleanupThreshold = def.CleanupThreshold
	}
	if cc.InitTimeout == 0 {
		cc.InitTimeout = def.InitTimeout
	}
	if cc.IconFetchTimeout == 0 {
		cc.IconFetchTimeout = def.IconFetchTimeout
	}
	if cc.FontFetchTimeout == 0 {
		cc.FontFetchTimeout = def.FontFetchTimeout
	}
	if cc.MaxAssetBytes == 0 {
		cc.MaxAssetBytes = def.MaxAssetBytes
	}
}

// Validate rejects settings the engine cannot run with
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite":
	case "redis":
		if c.Storage.Redis.Addr == "" {
			return fmt.Errorf("storage.redis.addr is required for the redis driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	cc := c.Cache
	if cc.MaxStorageBytes < 0 {
		return fmt.Errorf("cache.maxStorageBytes must be >= 0")
	}
	if cc.CleanupThreshold <= 0 || cc.CleanupThreshold > 1 {
		return fmt.Errorf("cache.cleanupThreshold must be in (0, 1], got %v", cc.CleanupThreshold)
	}
	for name, d := range map[string]time.Duration{
		"iconTTL":          cc.IconTTL,
		"fontTTL":          cc.FontTTL,
		"resourceTTL":      cc.ResourceTTL,
		"initTimeout":      cc.InitTimeout,
		"iconFetchTimeout": cc.IconFetchTimeout,
		"fontFetchTimeout": cc.FontFetchTimeout,
	} {
		if d < 0 {
			return fmt.Errorf("cache.%s must not be negative", name)
		}
	}
	if cc.MaxRetries < 0 {
		return fmt.Errorf("cache.maxRetries must be >= 0")
	}
	return nil
}

// loadAuthFromEnv charge les utilisateurs depuis CACHE_USERS (format: "user1:pass1,user2:pass2")
func loadAuthFromEnv(config *Config) {
	usersEnv := os.Getenv("CACHE_USERS")
	if usersEnv == "" {
		return
	}
	config.Auth.Users = []User{}
	for _, userPair := range strings.Split(usersEnv, ",") {
		parts := strings.SplitN(strings.TrimSpace(userPair), ":", 2)
		if len(parts) == 2 {
			config.Auth.Users = append(config.Auth.Users, User{
				Username: strings.TrimSpace(parts[0]),
				Password: strings.TrimSpace(parts[1]),
			})
		}
	}
}

// LoadSecrets charge les secrets depuis les variables d'environnement
func LoadSecrets() *Secrets {
	secrets := &Secrets{}

	// AWS secrets
	secrets.AWSAccessKeyID = os.Getenv("AWS_ACCESS_KEY_ID")
	secrets.AWSSecretAccessKey = os.Getenv("AWS_SECRET_ACCESS_KEY")

	// GCP secrets
	secrets.GCPCredentialsFile = os.Getenv("GCP_CREDENTIALS_FILE")

	// Azure secrets
	secrets.AzureStorageAccountKey = os.Getenv("AZURE_STORAGE_ACCOUNT_KEY")

	return secrets
}

// LoadAuthFromFile charge les informations d'authentification depuis un fichier séparé.
// A missing file is not an error: users from config.yaml or CACHE_USERS stay in place.
func LoadAuthFromFile(config *Config) error {
	credFile := os.Getenv("AUTH_FILE")
	if credFile == "" {
		credFile = "config/auth.yaml"
	}

	if _, err := os.Stat(credFile); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(credFile)
	if err != nil {
		return fmt.Errorf("error reading auth file: %w", err)
	}

	var authConfig struct {
		Auth AuthConfig `yaml:"auth"`
	}

	if err := yaml.Unmarshal(data, &authConfig); err != nil {
		return fmt.Errorf("error parsing auth file: %w", err)
	}

	if len(authConfig.Auth.Users) > 0 {
		config.Auth = authConfig.Auth
	}

	return nil
}

// Redacted returns a copy safe to expose over HTTP
func (c *Config) Redacted() Config {
	out := *c
	out.Auth = AuthConfig{Users: make([]User, len(c.Auth.Users))}
	for i, u := range c.Auth.Users {
		out.Auth.Users[i] = User{Username: u.Username, Password: "***"}
	}
	if out.Storage.Redis.Password != "" {
		out.Storage.Redis.Password = "***"
	}
	return out
}
