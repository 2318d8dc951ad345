package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, `
kv:
  path: /tmp/rollup-kv
l1:
  node_rpc_url: http://127.0.0.1:8332
  network_magic: 42
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RPC.BindAddress != "0.0.0.0:9100" {
		t.Fatalf("expected default RPC bind address, got %q", cfg.RPC.BindAddress)
	}
	if cfg.Prover.WorkerPoolSize != 4 {
		t.Fatalf("expected default worker pool size 4, got %d", cfg.Prover.WorkerPoolSize)
	}
	if cfg.Orchestrator.L1RetryAttempts != 3 {
		t.Fatalf("expected default L1 retry attempts 3, got %d", cfg.Orchestrator.L1RetryAttempts)
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	os.Setenv("TEST_KV_PATH", "/data/kv")
	defer os.Unsetenv("TEST_KV_PATH")

	path := writeTempConfig(t, `
kv:
  path: ${TEST_KV_PATH}
l1:
  node_rpc_url: ${TEST_L1_URL:-http://localhost:8332}
  network_magic: 7
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.KV.Path != "/data/kv" {
		t.Fatalf("expected expanded KV path, got %q", cfg.KV.Path)
	}
	if cfg.L1.NodeRPCURL != "http://localhost:8332" {
		t.Fatalf("expected default-substituted L1 URL, got %q", cfg.L1.NodeRPCURL)
	}
}

func TestLoad_RejectsDevModeInProduction(t *testing.T) {
	path := writeTempConfig(t, `
environment: production
kv:
  path: /tmp/rollup-kv
l1:
  node_rpc_url: http://127.0.0.1:8332
  network_magic: 1
prover:
  dev_mode: true
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected Load to reject dev_mode in production")
	}
}

func TestLoad_RequiresKVPath(t *testing.T) {
	path := writeTempConfig(t, `
l1:
  node_rpc_url: http://127.0.0.1:8332
  network_magic: 1
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected Load to require kv.path")
	}
}
