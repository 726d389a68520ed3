// Copyright 2025 Agent Trust Protocol Contributors
//
// ATP Configuration Loader
// Loads node/explorer endpoints, keystore path, and verifier policy from
// a YAML file, with ${VAR_NAME} environment-variable substitution.

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ATPConfig holds all configuration the document engine needs from its
// host process: where to reach the node, the optional Explorer, where
// keys live on disk, and verifier policy.
type ATPConfig struct {
	Node     NodeSettings     `yaml:"node"`
	Explorer ExplorerSettings `yaml:"explorer"`
	Keystore KeystoreSettings `yaml:"keystore"`
	Chain    ChainSettings    `yaml:"chain"`
	Verifier VerifierSettings `yaml:"verifier"`
	LogLevel string           `yaml:"log_level"`
}

// NodeSettings configures the Bitcoin node JSON-RPC connection used by
// the resolver.
type NodeSettings struct {
	Host       string   `yaml:"host"`
	User       string   `yaml:"user"`
	Pass       string   `yaml:"pass"`
	UseTLS     bool     `yaml:"use_tls"`
	DisableTLS bool     `yaml:"disable_tls"`
	Timeout    Duration `yaml:"timeout"`
}

// ExplorerSettings configures the optional untrusted indexer the
// verifier may consult for chain walking.
type ExplorerSettings struct {
	Enabled bool     `yaml:"enabled"`
	BaseURL string   `yaml:"base_url"`
	Timeout Duration `yaml:"timeout"`
}

// KeystoreSettings configures where per-fingerprint key files live.
type KeystoreSettings struct {
	Dir string `yaml:"dir"`
}

// ChainSettings supplies the default chain reference network when a
// builder or caller omits one.
type ChainSettings struct {
	DefaultNet string `yaml:"default_net"`
}

// VerifierSettings configures verifier policy toggles.
type VerifierSettings struct {
	TimestampDriftTolerance Duration `yaml:"timestamp_drift_tolerance"`
	RequireExplorer         bool     `yaml:"require_explorer"`
}

// DefaultATPConfig returns the configuration used when no file is
// loaded: localhost node over TLS-disabled RPC, Explorer disabled, keys
// under ~/.atp/keys, Bitcoin mainnet as the default chain, and a 2h
// timestamp drift tolerance per the protocol's warning threshold.
func DefaultATPConfig() *ATPConfig {
	home, _ := os.UserHomeDir()
	return &ATPConfig{
		Node: NodeSettings{
			Host:       "127.0.0.1:8332",
			DisableTLS: true,
			Timeout:    Duration(30 * time.Second),
		},
		Explorer: ExplorerSettings{
			Enabled: false,
			Timeout: Duration(10 * time.Second),
		},
		Keystore: KeystoreSettings{
			Dir: home + "/.atp/keys",
		},
		Chain: ChainSettings{
			DefaultNet: "bip122:000000000019d6689c085ae165831e93",
		},
		Verifier: VerifierSettings{
			TimestampDriftTolerance: Duration(2 * time.Hour),
			RequireExplorer:         false,
		},
		LogLevel: "info",
	}
}

// LoadATPConfig reads path, substitutes ${VAR_NAME} environment
// variables, and unmarshals the result over DefaultATPConfig so unset
// fields keep their defaults.
func LoadATPConfig(path string) (*ATPConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	expanded := substituteEnvVars(string(data))

	cfg := DefaultATPConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
