package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"proofcart/crypto"
	"proofcart/native/escrow"
)

// EscrowConfig selects the protocol shape of the escrow engine.
type EscrowConfig struct {
	FundOnCreate     bool   `toml:"FundOnCreate"`
	ResolutionPolicy string `toml:"ResolutionPolicy"`
	Arbiter          string `toml:"Arbiter"`
}

// GenesisAccount allocates balance to an address when the data dir is fresh.
type GenesisAccount struct {
	Address string `toml:"Address"`
	Balance string `toml:"Balance"`
}

// RateLimitConfig bounds per-client RPC traffic. Zero disables limiting.
type RateLimitConfig struct {
	RequestsPerMinute float64 `toml:"RequestsPerMinute"`
	Burst             int     `toml:"Burst"`
}

// JWTConfig gates the RPC endpoint behind HMAC-signed tokens when enabled.
type JWTConfig struct {
	Enabled    bool   `toml:"Enabled"`
	HMACSecret string `toml:"HMACSecret"`
	Issuer     string `toml:"Issuer"`
	Audience   string `toml:"Audience"`
}

// TelemetryConfig wires the OTLP trace exporter.
type TelemetryConfig struct {
	Enabled     bool   `toml:"Enabled"`
	Endpoint    string `toml:"Endpoint"`
	Insecure    bool   `toml:"Insecure"`
	Environment string `toml:"Environment"`
}

type Config struct {
	RPCAddress  string           `toml:"RPCAddress"`
	DataDir     string           `toml:"DataDir"`
	NetworkName string           `toml:"NetworkName"`
	Escrow      EscrowConfig     `toml:"escrow"`
	Genesis     []GenesisAccount `toml:"genesis"`
	RateLimit   RateLimitConfig  `toml:"ratelimit"`
	JWT         JWTConfig        `toml:"jwt"`
	Telemetry   TelemetryConfig  `toml:"telemetry"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8545"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./proofcart-data"
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "proofcart-local"
	}
	if strings.TrimSpace(cfg.Escrow.ResolutionPolicy) == "" {
		cfg.Escrow.ResolutionPolicy = "participants"
	}
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{
		Escrow: EscrowConfig{FundOnCreate: true},
	}
	applyDefaults(cfg)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create config dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create default config: %w", err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, fmt.Errorf("write default config: %w", err)
	}
	return cfg, nil
}

// Validate rejects combinations the node cannot run with.
func (c *Config) Validate() error {
	if _, err := resolutionPolicy(c.Escrow.ResolutionPolicy); err != nil {
		return err
	}
	if trimmed := strings.TrimSpace(c.Escrow.Arbiter); trimmed != "" {
		if _, err := crypto.DecodeAddress(trimmed); err != nil {
			return fmt.Errorf("invalid arbiter address: %w", err)
		}
	}
	for i, alloc := range c.Genesis {
		if _, err := crypto.DecodeAddress(strings.TrimSpace(alloc.Address)); err != nil {
			return fmt.Errorf("genesis entry %d: invalid address: %w", i, err)
		}
		if strings.TrimSpace(alloc.Balance) == "" {
			return fmt.Errorf("genesis entry %d: balance required", i)
		}
	}
	if c.JWT.Enabled && strings.TrimSpace(c.JWT.HMACSecret) == "" {
		return fmt.Errorf("jwt auth enabled without an HMAC secret")
	}
	return nil
}

func resolutionPolicy(raw string) (escrow.ResolutionPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "admin":
		return escrow.ResolveAdminOnly, nil
	case "participants", "":
		return escrow.ResolveParticipantArbitrated, nil
	default:
		return 0, fmt.Errorf("unknown resolution policy %q", raw)
	}
}

// EscrowEngineConfig translates the file-level settings into the engine's
// configuration struct.
func (c *Config) EscrowEngineConfig() (escrow.Config, error) {
	policy, err := resolutionPolicy(c.Escrow.ResolutionPolicy)
	if err != nil {
		return escrow.Config{}, err
	}
	out := escrow.Config{
		FundOnCreate: c.Escrow.FundOnCreate,
		Resolution:   policy,
	}
	if trimmed := strings.TrimSpace(c.Escrow.Arbiter); trimmed != "" {
		addr, err := crypto.DecodeAddress(trimmed)
		if err != nil {
			return escrow.Config{}, fmt.Errorf("invalid arbiter address: %w", err)
		}
		out.Arbiter = addr.Array()
	}
	return out, nil
}
