package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Solana configuration
	SolanaCluster string // "devnet", "testnet", "mainnet" or "localnet"
	SolanaRPCURL  string
	ExplorerURL   string

	// Wallet adapters. Each is optional; an adapter without material is listed but not ready.
	WalletKeypairPath string
	WalletMnemonic    string
	WalletPassphrase  string

	// Dashboard behavior
	HistoryLimit     int
	FetchConcurrency int
	ConfirmTimeout   time.Duration
	CopyAckDuration  time.Duration

	// NATS configuration (optional, enables notification streaming)
	NATSURL string

	// Temporal configuration (optional, enables durable token creation)
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string

	// Worker metrics listener
	MetricsAddr string
}

// clusterEndpoints maps cluster names to their public RPC endpoints.
var clusterEndpoints = map[string]string{
	"devnet":   rpc.DevNet_RPC,
	"testnet":  rpc.TestNet_RPC,
	"mainnet":  rpc.MainNetBeta_RPC,
	"localnet": rpc.LocalNet_RPC,
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// Solana configuration
	cfg.SolanaCluster = getEnvOrDefault("SOLANA_CLUSTER", "devnet")
	defaultRPC, ok := clusterEndpoints[cfg.SolanaCluster]
	if !ok {
		errs = append(errs, fmt.Errorf("SOLANA_CLUSTER must be one of devnet, testnet, mainnet, localnet (got %q)", cfg.SolanaCluster))
	}
	cfg.SolanaRPCURL = getEnvOrDefault("SOLANA_RPC_URL", defaultRPC)
	cfg.ExplorerURL = getEnvOrDefault("EXPLORER_URL", "https://explorer.solana.com")

	// Wallet adapters
	cfg.WalletKeypairPath = os.Getenv("WALLET_KEYPAIR_PATH")
	cfg.WalletMnemonic = os.Getenv("WALLET_MNEMONIC")
	cfg.WalletPassphrase = os.Getenv("WALLET_PASSPHRASE")

	// Dashboard behavior
	historyLimit, err := parseInt("HISTORY_LIMIT", 10)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.HistoryLimit = historyLimit
	}

	fetchConcurrency, err := parseInt("FETCH_CONCURRENCY", 10)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.FetchConcurrency = fetchConcurrency
	}

	confirmTimeout, err := parseDuration("CONFIRM_TIMEOUT", "60s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.ConfirmTimeout = confirmTimeout
	}

	copyAck, err := parseDuration("COPY_ACK_DURATION", "2s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.CopyAckDuration = copyAck
	}

	// NATS configuration
	cfg.NATSURL = os.Getenv("NATS_URL")

	// Temporal configuration
	cfg.TemporalHost = os.Getenv("TEMPORAL_HOST")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "solwallet-mint")

	cfg.MetricsAddr = getEnvOrDefault("METRICS_ADDR", ":9091")

	if len(errs) == 0 {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	// Return all validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if _, ok := clusterEndpoints[c.SolanaCluster]; !ok {
		errs = append(errs, fmt.Errorf("SolanaCluster %q is not a known cluster", c.SolanaCluster))
	}

	if c.SolanaRPCURL == "" {
		errs = append(errs, fmt.Errorf("SolanaRPCURL is required"))
	}

	if c.HistoryLimit < 1 || c.HistoryLimit > 1000 {
		errs = append(errs, fmt.Errorf("HistoryLimit must be between 1 and 1000"))
	}

	if c.FetchConcurrency < 1 {
		errs = append(errs, fmt.Errorf("FetchConcurrency must be at least 1"))
	}

	if c.ConfirmTimeout < time.Second {
		errs = append(errs, fmt.Errorf("ConfirmTimeout must be at least 1 second"))
	}

	if c.CopyAckDuration <= 0 {
		errs = append(errs, fmt.Errorf("CopyAckDuration must be positive"))
	}

	if c.TemporalHost != "" && c.TemporalTaskQueue == "" {
		errs = append(errs, fmt.Errorf("TemporalTaskQueue is required when TemporalHost is set"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// ClusterRPCURL returns the public RPC endpoint for a cluster name.
func ClusterRPCURL(cluster string) (string, bool) {
	u, ok := clusterEndpoints[cluster]
	return u, ok
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}
