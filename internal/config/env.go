package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"golang.org/x/term"
)

const (
	NetworkDevnet  = "devnet"
	NetworkTestnet = "testnet"
	NetworkMainnet = "mainnet-beta"
)

// maxRequestTimeout matches the page's call timeout. A request outliving it
// could still be approved after the page gave up on the answer.
const maxRequestTimeout = 30 * time.Second

var rpcEndpoints = map[string]string{
	NetworkDevnet:  "https://api.devnet.solana.com",
	NetworkTestnet: "https://api.testnet.solana.com",
	NetworkMainnet: "https://api.mainnet-beta.solana.com",
}

// Config contains all configuration parameters for the application.
// It is loaded once in main and passed down explicitly.
type Config struct {
	Port    string `envconfig:"PORT" default:"8080"`
	DBPath  string `envconfig:"DB_PATH" default:"./oasis-wallet.db"`
	Network string `envconfig:"NETWORK" default:"devnet"`
	// RPCURL overrides the public endpoint of Network when set
	RPCURL       string `envconfig:"RPC_URL"`
	RPCRateLimit int    `envconfig:"RPC_RATE_LIMIT" default:"10"` // requests per second, 0 = unlimited

	RPCTimeout          time.Duration `envconfig:"RPC_TIMEOUT" default:"15s"`
	ConfirmTimeout      time.Duration `envconfig:"CONFIRM_TIMEOUT" default:"60s"`
	ConfirmPollInterval time.Duration `envconfig:"CONFIRM_POLL_INTERVAL" default:"1s"`
	RequestTimeout      time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"` // how long a dApp request may wait for a decision, at most the page timeout

	AutoLockMinutes   int `envconfig:"AUTO_LOCK_MINUTES" default:"15"`
	SessionTTLMinutes int `envconfig:"SESSION_TTL_MINUTES" default:"60"`
	PayCooldown       int `envconfig:"PAY_COOLDOWN_MINUTES" default:"0"`
	HistoryLimit      int `envconfig:"HISTORY_LIMIT" default:"10"`

	// scrypt parameters; see crypto.DefaultParams for the rationale of the defaults
	ScryptN int `envconfig:"SCRYPT_N" default:"262144"`
	ScryptR int `envconfig:"SCRYPT_R" default:"8"`
	ScryptP int `envconfig:"SCRYPT_P" default:"1"`

	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	LogDevelopment bool   `envconfig:"LOG_DEVELOPMENT" default:"false"`
	UnlockOnStart  bool   `envconfig:"UNLOCK_ON_START" default:"false"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values envconfig cannot express with tags.
func (c *Config) Validate() error {
	if _, ok := rpcEndpoints[c.Network]; !ok {
		return fmt.Errorf("NETWORK must be one of devnet, testnet, mainnet-beta: got %q", c.Network)
	}
	if c.ScryptN < 2 || c.ScryptN&(c.ScryptN-1) != 0 {
		return fmt.Errorf("SCRYPT_N must be a power of two greater than 1")
	}
	if c.HistoryLimit <= 0 {
		return errors.New("HISTORY_LIMIT must be positive")
	}
	if c.ConfirmPollInterval <= 0 || c.ConfirmTimeout <= 0 {
		return errors.New("confirmation timeout and poll interval must be positive")
	}
	if c.RequestTimeout <= 0 || c.RequestTimeout > maxRequestTimeout {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive and at most %s", maxRequestTimeout)
	}
	return nil
}

// RPCEndpoint returns the RPC URL for network, honoring the RPC_URL override for the configured network.
func (c *Config) RPCEndpoint(network string) (string, error) {
	if c.RPCURL != "" && network == c.Network {
		return c.RPCURL, nil
	}
	url, ok := rpcEndpoints[network]
	if !ok {
		return "", fmt.Errorf("unknown network %q", network)
	}
	return url, nil
}

// AutoLockAfter returns the inactivity window before the wallet locks itself, 0 when disabled
func (c *Config) AutoLockAfter() time.Duration {
	return time.Duration(c.AutoLockMinutes) * time.Minute
}

// SessionTTL returns how long an unlocked session may be resumed without the password
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

// PayCooldownDuration returns the minimal delay between two local sends
func (c *Config) PayCooldownDuration() time.Duration {
	return time.Duration(c.PayCooldown) * time.Minute
}

// IsKnownNetwork reports whether network has a public RPC endpoint.
func IsKnownNetwork(network string) bool {
	_, ok := rpcEndpoints[network]
	return ok
}

// PromptForPassword prompts the user for the wallet password in the terminal.
// The password is read without echoing (hidden input).
// Caller must zero the returned slice after use.
func PromptForPassword(prompt string) ([]byte, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, errors.New("stdin is not a terminal: run the app interactively to enter password")
	}
	fmt.Fprint(os.Stderr, prompt)
	defer fmt.Fprintln(os.Stderr)

	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	if len(raw) == 0 {
		return nil, errors.New("password cannot be empty")
	}

	password := make([]byte, len(raw))
	copy(password, raw)
	clear(raw)
	return password, nil
}
