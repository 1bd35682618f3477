package config

import (
	"os"
	"path/filepath"
	"testing"
)

const testYAML = `
log:
  level: debug
chain:
  name: ethereum
  api_base: https://mainnet.infura.io/v3/
  api_keys:
    - key-one
    - key-two
range:
  start_date: "2024-01-01"
  end_date: "2024-01-08"
assets:
  reference: "0xC02aaA39b223FE8D0A0E5C4F27eAD9083C756Cc2"
  stables:
    - "0xdAC17F958D2ee523a2206206994597C13D831ec7"
  reference_usd_pool: "0x88e6A0c2dDD26FEEb64F039a2c41296FcB3f5640"
output:
  root: ./data
worker:
  rate_limit: 300
monitor:
  enable: false
`

func TestInitConfig(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "config"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config", "config.harvester.yaml"), []byte(testYAML), 0644); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)

	cfg := InitConfig()
	t.Logf("cfg chain: %+v", cfg.Chain)
	t.Logf("cfg assets: %+v", cfg.Assets)

	if cfg.Chain.Name != "ethereum" {
		t.Errorf("chain name = %q, want ethereum", cfg.Chain.Name)
	}
	if len(cfg.Chain.APIKeys) != 2 {
		t.Errorf("api keys = %d, want 2", len(cfg.Chain.APIKeys))
	}
	endpoints := cfg.Chain.Endpoints()
	if endpoints[0] != "https://mainnet.infura.io/v3/key-one" {
		t.Errorf("endpoint[0] = %q", endpoints[0])
	}
	if cfg.Worker.RateLimit != 300 {
		t.Errorf("rate limit = %d, want 300", cfg.Worker.RateLimit)
	}
}
