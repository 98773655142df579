package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	// Environment constants
	Production  = "production"
	Development = "development"

	defaultStorageType         = "postgres"
	defaultBadgerDBPath        = "."
	defaultSSSThreshold        = 2
	defaultJWTExpirySeconds    = 3600
	defaultNodeTimeoutSeconds  = 5
	defaultNodeRetryAttempts   = 2
	defaultCommitTTLSeconds    = 300
	defaultHealthPeriodSeconds = 60

	EnvConfigFile = "OKO_CONFIG_FILE"
)

// Config holds everything both binaries consume. The key-share node ignores
// the orchestrator-only fields and vice versa.
type Config struct {
	Environment string `mapstructure:"environment"`

	// Shared persistence
	StorageType string          `mapstructure:"storage_type"` // "postgres" or "badger" (ks node share store only)
	Postgres    *PostgresConfig `mapstructure:"postgres"`
	DBPath      string          `mapstructure:"db_path"`
	DBPassword  string          `mapstructure:"db_password"`

	// Encryption gateway secret for key shares at rest.
	EncryptionSecret string `mapstructure:"encryption_secret"`

	// Session tokens
	JWTSecret        string `mapstructure:"jwt_secret"`
	JWTExpirySeconds int    `mapstructure:"jwt_expiry_seconds"`

	// Orchestrator: quorum of key-share nodes. Node endpoints are not
	// configured here; they live in the registry.
	SSSThreshold       int `mapstructure:"sss_threshold"`
	NodeTimeoutSeconds int `mapstructure:"node_timeout_seconds"`
	NodeRetryAttempts  int `mapstructure:"node_retry_attempts"`

	// Key-share node identity
	IdentityDir      string `mapstructure:"identity_dir"`
	NodeAuthToken    string `mapstructure:"node_auth_token"`
	CommitTTLSeconds int    `mapstructure:"commit_ttl_seconds"`

	// Orchestrator admin + identity providers
	AdminToken string       `mapstructure:"admin_token"`
	OAuth      *OAuthConfig `mapstructure:"oauth"`

	// Audit events (optional collaborator)
	NATs *NATsConfig `mapstructure:"nats"`

	HealthCheckPeriodSeconds int `mapstructure:"health_check_period_seconds"`
}

type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type OAuthConfig struct {
	GoogleClientID string `mapstructure:"google_client_id"`
}

type NATsConfig struct {
	URL      string     `mapstructure:"url"`
	Username string     `mapstructure:"username"`
	Password string     `mapstructure:"password"`
	TLS      *TLSConfig `mapstructure:"tls"`
}

type TLSConfig struct {
	ClientCert string `mapstructure:"client_cert"`
	ClientKey  string `mapstructure:"client_key"`
	CACert     string `mapstructure:"ca_cert"`
}

var (
	app *Config
	mu  sync.RWMutex
)

func initConfig() error {
	// env
	viper.SetEnvPrefix("OKO")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("environment", Development)
	viper.SetDefault("storage_type", defaultStorageType)
	viper.SetDefault("db_path", defaultBadgerDBPath)
	viper.SetDefault("sss_threshold", defaultSSSThreshold)
	viper.SetDefault("jwt_expiry_seconds", defaultJWTExpirySeconds)
	viper.SetDefault("node_timeout_seconds", defaultNodeTimeoutSeconds)
	viper.SetDefault("node_retry_attempts", defaultNodeRetryAttempts)
	viper.SetDefault("commit_ttl_seconds", defaultCommitTTLSeconds)
	viper.SetDefault("health_check_period_seconds", defaultHealthPeriodSeconds)
	viper.SetDefault("identity_dir", "identity")

	// set env config file
	configFile := os.Getenv(EnvConfigFile)
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/oko/")
		viper.AddConfigPath("$HOME/.oko/")
	}

	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("viper read config: %w", err)
	}

	return nil
}

func SetEnvConfigPath(configPath string) {
	if configPath != "" {
		os.Setenv(EnvConfigFile, configPath)
	}
}

func LoadConfig() (*Config, error) {
	var cfg Config
	decoderConfig := &mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	}

	decoder, err := mapstructure.NewDecoder(decoderConfig)
	if err != nil {
		return nil, fmt.Errorf("create decoder: %w", err)
	}

	if err := decoder.Decode(viper.AllSettings()); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validateEnvironment(cfg.Environment); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	setConfig(&cfg)
	return &cfg, nil
}

func Load() (*Config, error) {
	if err := initConfig(); err != nil {
		return nil, err
	}
	return LoadConfig()
}

func validateEnvironment(environment string) error {
	validEnvironments := []string{Production, Development}

	if !slices.Contains(validEnvironments, environment) {
		return fmt.Errorf("invalid environment '%s'. Must be one of: %s", environment, strings.Join(validEnvironments, ", "))
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = Development
	}
	if cfg.StorageType == "" {
		cfg.StorageType = defaultStorageType
	}
	if cfg.DBPath == "" {
		cfg.DBPath = defaultBadgerDBPath
	}
	if cfg.SSSThreshold == 0 {
		cfg.SSSThreshold = defaultSSSThreshold
	}
	if cfg.JWTExpirySeconds == 0 {
		cfg.JWTExpirySeconds = defaultJWTExpirySeconds
	}
	if cfg.NodeTimeoutSeconds == 0 {
		cfg.NodeTimeoutSeconds = defaultNodeTimeoutSeconds
	}
	if cfg.NodeRetryAttempts == 0 {
		cfg.NodeRetryAttempts = defaultNodeRetryAttempts
	}
	if cfg.CommitTTLSeconds == 0 {
		cfg.CommitTTLSeconds = defaultCommitTTLSeconds
	}
	if cfg.HealthCheckPeriodSeconds == 0 {
		cfg.HealthCheckPeriodSeconds = defaultHealthPeriodSeconds
	}
	if cfg.IdentityDir == "" {
		cfg.IdentityDir = "identity"
	}
}

func setConfig(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()
	app = cfg
}

// GetConfig returns the in-memory application configuration.
// It panics if the configuration has not been loaded yet.
func GetConfig() *Config {
	mu.RLock()
	defer mu.RUnlock()
	if app == nil {
		panic("configuration not loaded")
	}
	return app
}

// Update applies the provided function while holding the configuration write lock.
func Update(fn func(cfg *Config)) {
	mu.Lock()
	defer mu.Unlock()
	if app == nil {
		panic("configuration not loaded")
	}
	fn(app)
}

func Environment() string {
	return GetConfig().Environment
}

func IsProduction() bool {
	return strings.EqualFold(Environment(), Production)
}

func JWTExpiry() time.Duration {
	return time.Duration(GetConfig().JWTExpirySeconds) * time.Second
}

func NodeTimeout() time.Duration {
	return time.Duration(GetConfig().NodeTimeoutSeconds) * time.Second
}

func CommitTTL() time.Duration {
	return time.Duration(GetConfig().CommitTTLSeconds) * time.Second
}

func SetDBPassword(password string) {
	Update(func(cfg *Config) {
		cfg.DBPassword = password
	})
}
