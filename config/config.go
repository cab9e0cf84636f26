package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config holds all configurable parameters for the application
type Config struct {
	ListenPort int            `json:"listen_port"`
	Storage    StorageConfig  `json:"storage"`
	Permit     PermitConfig   `json:"permit"`
	Vesting    VestingConfig  `json:"vesting"` // default for rounds without their own schedule
	Rounds     []RoundConfig  `json:"rounds"`
	Registry   RegistryConfig `json:"registry"`
	Network    NetworkConfig  `json:"network"`
	Logger     LoggerConfig   `json:"logger"`
}

// StorageConfig selects the ledger storage engine
type StorageConfig struct {
	Engine string `json:"engine"` // "leveldb", "bolt" or "memory"
	Dir    string `json:"dir"`
}

// PermitConfig is the EIP-712 domain and the phrases a recipient signs.
// Changing any of them invalidates every outstanding permit.
type PermitConfig struct {
	Domain       PermitDomain `json:"domain"`
	AuthMsg      string       `json:"auth_msg"`
	RecipientMsg string       `json:"recipient_msg"`
}

type PermitDomain struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// VestingConfig is a release schedule in basis points and seconds
type VestingConfig struct {
	Percentages []uint64 `json:"percentages"`
	TimeDeltas  []uint64 `json:"time_deltas"`
}

// RoundConfig binds an airdrop ID to a published distribution artifact
type RoundConfig struct {
	ID          string         `json:"id"`
	Artifact    string         `json:"artifact"`
	ActivatedAt int64          `json:"activated_at"` // unix seconds
	Vesting     *VestingConfig `json:"vesting,omitempty"`
	Immediate   bool           `json:"immediate,omitempty"` // release everything at activation
}

// RegistryConfig either points at a remote registry or seeds the local one
type RegistryConfig struct {
	URL     string          `json:"url,omitempty"`
	Entries []RegistryEntry `json:"entries,omitempty"`
}

type RegistryEntry struct {
	Airdrop    string   `json:"airdrop"`
	Allowed    []string `json:"allowed"`
	Expiration int64    `json:"expiration,omitempty"` // unix seconds, 0 = never
}

// NetworkConfig holds network-level configuration for HTTP clients
type NetworkConfig struct {
	TimeoutMs    int  `json:"timeout_ms"`
	DelayEnabled bool `json:"delay_enabled"`
	MinDelayMs   int  `json:"min_delay_ms"` // Minimum delay in milliseconds
	MaxDelayMs   int  `json:"max_delay_ms"` // Maximum delay in milliseconds
}

// LoggerConfig selects the log level and an optional log file
type LoggerConfig struct {
	Environment      string `json:"env"` // "development" or "production"
	Path             string `json:"path,omitempty"`
	EnableStacktrace bool   `json:"enable_stacktrace,omitempty"`
}

// Default returns the configuration used when no file is present. The
// permit domain, phrases and schedule match the reference deployment.
func Default() *Config {
	return &Config{
		ListenPort: 8080,
		Storage:    StorageConfig{Engine: "memory"},
		Permit: PermitConfig{
			Domain:       PermitDomain{Name: "EIP712Example", Version: "1"},
			AuthMsg:      "I authorize claim to",
			RecipientMsg: "I authorize claim to be receive on",
		},
		Vesting: VestingConfig{
			Percentages: []uint64{10000, 5000, 0},
			TimeDeltas:  []uint64{0, 3600, 7200},
		},
		Network: NetworkConfig{TimeoutMs: 10000},
		Logger:  LoggerConfig{Environment: "production"},
	}
}

// Load reads and parses the config.json file. Fields absent from the file
// keep their Default values.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	return cfg, nil
}

// LoadDefault loads the default config from config.json in the current directory
func LoadDefault() (*Config, error) {
	return Load("config/config.json")
}

// Validate checks the settings that cannot be defaulted
func (c *Config) Validate() error {
	switch c.Storage.Engine {
	case "memory":
	case "leveldb", "bolt":
		if c.Storage.Dir == "" {
			return fmt.Errorf("storage engine %q requires storage.dir", c.Storage.Engine)
		}
	default:
		return fmt.Errorf("unknown storage engine %q", c.Storage.Engine)
	}
	if c.Permit.Domain.Name == "" || c.Permit.Domain.Version == "" {
		return fmt.Errorf("permit domain name and version are required")
	}
	seen := make(map[string]bool, len(c.Rounds))
	for i, r := range c.Rounds {
		if r.ID == "" {
			return fmt.Errorf("round %d has no id", i)
		}
		if seen[r.ID] {
			return fmt.Errorf("round %q configured twice", r.ID)
		}
		seen[r.ID] = true
		if r.Artifact == "" {
			return fmt.Errorf("round %q has no artifact", r.ID)
		}
	}
	return nil
}
