package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/solwave/solwave/internal/ledger"
)

const (
	defaultAppName          = "solwave"
	defaultAppEnv           = "development"
	defaultHost             = "127.0.0.1"
	defaultPort             = "8080"
	defaultLogLevel         = "info"
	defaultNetwork          = "devnet"
	defaultCommitment       = "confirmed"
	defaultShutdownDelay    = 10 * time.Second
	defaultIdempotencyTTL   = 24 * time.Hour
	defaultConnectRateLimit = 10
)

// Config captures runtime configuration. Values come from an optional YAML
// file named by CONFIG_FILE, overridden by environment variables.
type Config struct {
	AppName  string `yaml:"app_name"`
	AppEnv   string `yaml:"app_env"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_level"`

	DatabaseURL string `yaml:"database_url"`
	RedisURL    string `yaml:"redis_url"`

	Network    string `yaml:"solana_network"`
	RPCURL     string `yaml:"solana_rpc_url"`
	Commitment string `yaml:"solana_commitment"`

	KeypairPath string `yaml:"wallet_keypair_path"`
	Mnemonic    string `yaml:"-"`
	Passphrase  string `yaml:"-"`
	Account     uint32 `yaml:"wallet_account"`

	// Zero disables the bound.
	ConnectTimeout   time.Duration `yaml:"connect_timeout"`
	FetchTimeout     time.Duration `yaml:"balance_fetch_timeout"`
	ShutdownPeriod   time.Duration `yaml:"shutdown_timeout"`
	IdempotencyTTL   time.Duration `yaml:"idempotency_ttl"`
	ConnectRateLimit int           `yaml:"connect_rate_limit"`

	APITokenHash string `yaml:"api_token_hash"`
}

func defaults() Config {
	return Config{
		AppName:          defaultAppName,
		AppEnv:           defaultAppEnv,
		Host:             defaultHost,
		Port:             defaultPort,
		LogLevel:         defaultLogLevel,
		Network:          defaultNetwork,
		Commitment:       defaultCommitment,
		ShutdownPeriod:   defaultShutdownDelay,
		IdempotencyTTL:   defaultIdempotencyTTL,
		ConnectRateLimit: defaultConnectRateLimit,
	}
}

// Load reads the optional CONFIG_FILE and then the environment.
func Load() (Config, error) {
	cfg := defaults()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	cfg.AppName = getEnv("APP_NAME", cfg.AppName)
	cfg.AppEnv = getEnv("APP_ENV", cfg.AppEnv)
	cfg.Host = getEnv("HOST", cfg.Host)
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", cfg.LogLevel))
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	cfg.Network = strings.ToLower(getEnv("SOLANA_NETWORK", cfg.Network))
	cfg.RPCURL = getEnv("SOLANA_RPC_URL", cfg.RPCURL)
	cfg.Commitment = strings.ToLower(getEnv("SOLANA_COMMITMENT", cfg.Commitment))
	cfg.KeypairPath = getEnv("WALLET_KEYPAIR_PATH", cfg.KeypairPath)
	cfg.Mnemonic = os.Getenv("WALLET_MNEMONIC")
	cfg.Passphrase = os.Getenv("WALLET_PASSPHRASE")
	cfg.APITokenHash = getEnv("API_TOKEN_HASH", cfg.APITokenHash)

	if v := os.Getenv("WALLET_ACCOUNT"); v != "" {
		n, err := strconv.ParseUint(v, 10, 31)
		if err != nil {
			return Config{}, fmt.Errorf("invalid WALLET_ACCOUNT: %w", err)
		}
		cfg.Account = uint32(n)
	}
	if v := os.Getenv("CONNECT_RATE_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid CONNECT_RATE_LIMIT: %w", err)
		}
		cfg.ConnectRateLimit = n
	}

	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{"SHUTDOWN_TIMEOUT", &cfg.ShutdownPeriod},
		{"IDEMPOTENCY_TTL", &cfg.IdempotencyTTL},
		{"CONNECT_TIMEOUT", &cfg.ConnectTimeout},
		{"BALANCE_FETCH_TIMEOUT", &cfg.FetchTimeout},
	}
	for _, d := range durations {
		if err := durationEnv(d.name, d.dst); err != nil {
			return Config{}, err
		}
	}

	network, _, err := ledger.ResolveNetwork(cfg.Network)
	if err != nil {
		return Config{}, fmt.Errorf("invalid SOLANA_NETWORK: %w", err)
	}
	cfg.Network = network

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Account > 1<<31-1 {
		return fmt.Errorf("wallet_account must be below 2^31")
	}
	switch c.Commitment {
	case "processed", "confirmed", "finalized":
	default:
		return fmt.Errorf("invalid SOLANA_COMMITMENT %q", c.Commitment)
	}
	for name, d := range map[string]time.Duration{
		"SHUTDOWN_TIMEOUT":      c.ShutdownPeriod,
		"IDEMPOTENCY_TTL":       c.IdempotencyTTL,
		"CONNECT_TIMEOUT":       c.ConnectTimeout,
		"BALANCE_FETCH_TIMEOUT": c.FetchTimeout,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if c.RequireBackends() {
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL must be set when APP_ENV=%s", c.AppEnv)
		}
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL must be set when APP_ENV=%s", c.AppEnv)
		}
	}
	return nil
}

// RequireBackends reports whether Postgres and Redis are mandatory. Local
// environments fall back to in-memory journal and rate limiting.
func (c Config) RequireBackends() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return false
	default:
		return true
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	port := strings.TrimPrefix(c.Port, ":")
	return net.JoinHostPort(c.Host, port)
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// durationEnv accepts NAME as a Go duration or NAME_SECONDS as an integer,
// the latter taking precedence.
func durationEnv(name string, dst *time.Duration) error {
	if v := os.Getenv(name + "_SECONDS"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s_SECONDS: %w", name, err)
		}
		*dst = time.Duration(seconds) * time.Second
		return nil
	}
	if v := os.Getenv(name); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		*dst = d
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
