package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
ethereum:
  node_url: http://localhost:8545
  chain_id: 11155111
  receipt_timeout: 90s
contracts:
  certificate: "0x1000000000000000000000000000000000000001"
  token: "0x1000000000000000000000000000000000000002"
  marketplace: "0x1000000000000000000000000000000000000003"
certificates:
  - id: cert-12345
    name: "IREC Certificate #12345"
    source: Solar
    location: "Turkana County, Kenya"
    amount: 1
    status: verified
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600))

	return dir
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8545", cfg.Ethereum.NodeURL)
	assert.Equal(t, int64(11155111), cfg.Ethereum.ChainID)
	assert.Equal(t, 90*time.Second, cfg.Ethereum.ReceiptTimeout)
	assert.Equal(t, 2*time.Second, cfg.Ethereum.PollInterval)
	assert.Equal(t, "1000", cfg.Tokenization.ReserveSeed)
	assert.Equal(t, int32(18), cfg.Tokenization.Decimals)
	assert.Equal(t, "contract", cfg.History.Source)
	assert.Equal(t, ":8080", cfg.HTTP.Address)
	require.Len(t, cfg.Certificates, 1)
	assert.Equal(t, "verified", cfg.Certificates[0].Status)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("ETHEREUM_NODE_URL", "http://node:8545")

	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, "http://node:8545", cfg.Ethereum.NodeURL)
}

func TestLoadConfig_Missing(t *testing.T) {
	_, err := LoadConfig(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Ethereum:  EthereumConfig{NodeURL: "http://localhost:8545", ChainID: 1},
			Contracts: ContractsConfig{Certificate: "0x1", Token: "0x2", Marketplace: "0x3"},
			History:   HistoryConfig{Source: "logs", MaxBlockRange: 100},
		}
	}

	cases := map[string]func(c *Config){
		"missing node":          func(c *Config) { c.Ethereum.NodeURL = "" },
		"bad chain id":          func(c *Config) { c.Ethereum.ChainID = 0 },
		"missing marketplace":   func(c *Config) { c.Contracts.Marketplace = "" },
		"bad history source":    func(c *Config) { c.History.Source = "graph" },
		"zero block range":      func(c *Config) { c.History.MaxBlockRange = 0 },
		"kafka without brokers": func(c *Config) { c.Kafka.Enabled = true },
	}

	base := valid()
	require.NoError(t, base.Validate())

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(&LogConfig{Level: "debug", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, logger)

	_, err = NewLogger(&LogConfig{Level: "loud"})
	assert.Error(t, err)

	_, err = NewLogger(&LogConfig{Level: "info", Format: "xml"})
	assert.Error(t, err)
}
