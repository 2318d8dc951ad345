// Copyright 2025 Certen Protocol
//
// Package config loads the coordinator's YAML configuration, grounded on
// the teacher's pkg/config/anchor_config.go: a nested struct tree decoded
// with gopkg.in/yaml.v3, a Duration wrapper implementing yaml.Unmarshaler,
// ${VAR:-default} environment-variable substitution applied to the raw
// document before parsing, and defaulting/validation passes run after
// decode. The section names below are spec.md §6's literal "Env/config
// contract with out-of-scope layers": RPC bind address, queue URL, KV
// path, L1 node RPC URL and credentials, expose-proof-store-API flag,
// network magic.

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so it can be written as "30s" in YAML, the
// same convenience the teacher's AnchorConfig.Duration provides.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string into Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML renders Duration back to its string form.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// RPCConfig configures the RPC transport's bind address.
type RPCConfig struct {
	BindAddress string `yaml:"bind_address"`
}

// QueueConfig configures the job queue backend.
type QueueConfig struct {
	URL string `yaml:"url"`
}

// KVConfig configures the underlying KV store.
type KVConfig struct {
	Path   string `yaml:"path"`
	Driver string `yaml:"driver"` // e.g. "goleveldb", "memdb"
}

// L1Config configures the Bitcoin-like L1 node the orchestrator submits
// block transactions to and scans for deposit UTXOs.
type L1Config struct {
	NodeRPCURL string `yaml:"node_rpc_url"`
	RPCUser    string `yaml:"rpc_user"`
	RPCPass    string `yaml:"rpc_pass"`
	// NetworkMagic is the 64-bit tag spec.md §6 derives from a network name
	// (e.g. "mainnet", "testnet", "regtest"). It is checked by Validate only;
	// signing digests and JobIds do not include it.
	NetworkMagic uint64 `yaml:"network_magic"`
}

// APIConfig configures the read-only HTTP surface.
type APIConfig struct {
	BindAddress          string `yaml:"bind_address"`
	ExposeProofStoreAPI  bool   `yaml:"expose_proof_store_api"`
}

// ProverConfig configures proving-related knobs, including the
// release-mode guard on the block script's dummy-verify development path
// (§4.6 "a development mode replaces the verify opcode with OP_NOP ... this
// must not be reachable in release configurations").
type ProverConfig struct {
	WorkerPoolSize int  `yaml:"worker_pool_size"`
	DevMode        bool `yaml:"dev_mode"`
	// KeysDir holds the circuit trusted-setup artifacts cmd/rollupsetup
	// writes and cmd/rollupd/cmd/rollupworker load: every process proving
	// or verifying against the same circuit must share one System
	// (same fingerprint), which a fresh per-process groth16.Setup call
	// cannot guarantee since Groth16 setup is randomized.
	KeysDir string `yaml:"keys_dir"`
}

// OrchestratorConfig configures the single-actor orchestrator loop (§4.7).
type OrchestratorConfig struct {
	PollInterval       Duration `yaml:"poll_interval"`
	L1RetryAttempts    int      `yaml:"l1_retry_attempts"`
	L1RetryBackoff     Duration `yaml:"l1_retry_backoff"`
}

// Config is the coordinator's top-level configuration document.
type Config struct {
	Environment  string              `yaml:"environment"`
	RPC          RPCConfig           `yaml:"rpc"`
	Queue        QueueConfig         `yaml:"queue"`
	KV           KVConfig            `yaml:"kv"`
	L1           L1Config            `yaml:"l1"`
	API          APIConfig           `yaml:"api"`
	Prover       ProverConfig        `yaml:"prover"`
	Orchestrator OrchestratorConfig  `yaml:"orchestrator"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// substituteEnvVars expands ${VAR} and ${VAR:-default} references in raw
// against the process environment, the same convenience the teacher's
// AnchorConfig loader provides so deployments can inject secrets (L1 RPC
// credentials, queue URLs) without baking them into the YAML file.
func substituteEnvVars(raw []byte) []byte {
	return envVarPattern.ReplaceAllFunc(raw, func(match []byte) []byte {
		groups := envVarPattern.FindSubmatch(match)
		name := string(groups[1])
		def := string(groups[3])
		if v, ok := os.LookupEnv(name); ok {
			return []byte(v)
		}
		return []byte(def)
	})
}

// Load reads, env-substitutes, decodes, and defaults a Config from path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	raw = substituteEnvVars(raw)

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	applyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.RPC.BindAddress == "" {
		cfg.RPC.BindAddress = "0.0.0.0:9100"
	}
	if cfg.API.BindAddress == "" {
		cfg.API.BindAddress = "0.0.0.0:9200"
	}
	if cfg.KV.Driver == "" {
		cfg.KV.Driver = "goleveldb"
	}
	if cfg.Prover.WorkerPoolSize == 0 {
		cfg.Prover.WorkerPoolSize = 4
	}
	if cfg.Prover.KeysDir == "" {
		cfg.Prover.KeysDir = "./keys"
	}
	if cfg.Orchestrator.PollInterval.Duration == 0 {
		cfg.Orchestrator.PollInterval = Duration{500 * time.Millisecond}
	}
	if cfg.Orchestrator.L1RetryAttempts == 0 {
		cfg.Orchestrator.L1RetryAttempts = 3
	}
	if cfg.Orchestrator.L1RetryBackoff.Duration == 0 {
		cfg.Orchestrator.L1RetryBackoff = Duration{2 * time.Second}
	}
}

// Validate checks the invariants the rest of the system assumes hold,
// including the release-mode dev-mode guard spec.md §4.6 requires.
func Validate(cfg *Config) error {
	if cfg.KV.Path == "" {
		return fmt.Errorf("config: kv.path is required")
	}
	if cfg.L1.NodeRPCURL == "" {
		return fmt.Errorf("config: l1.node_rpc_url is required")
	}
	if cfg.L1.NetworkMagic == 0 {
		return fmt.Errorf("config: l1.network_magic is required")
	}
	if cfg.Prover.DevMode && cfg.Environment == "production" {
		return fmt.Errorf("config: prover.dev_mode must not be set when environment is production")
	}
	return nil
}
