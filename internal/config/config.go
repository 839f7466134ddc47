package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Ethereum     EthereumConfig      `mapstructure:"ethereum"`
	Contracts    ContractsConfig     `mapstructure:"contracts"`
	Wallet       WalletConfig        `mapstructure:"wallet"`
	Tokenization TokenizationConfig  `mapstructure:"tokenization"`
	History      HistoryConfig       `mapstructure:"history"`
	Kafka        KafkaConfig         `mapstructure:"kafka"`
	HTTP         HTTPConfig          `mapstructure:"http"`
	Log          LogConfig           `mapstructure:"log"`
	Certificates []CertificateConfig `mapstructure:"certificates"`
}

type EthereumConfig struct {
	NodeURL            string        `mapstructure:"node_url"`
	WebsocketURL       string        `mapstructure:"websocket_url"`
	ChainID            int64         `mapstructure:"chain_id"`
	ConfirmationBlocks uint64        `mapstructure:"confirmation_blocks"`
	ReceiptTimeout     time.Duration `mapstructure:"receipt_timeout"`
	PollInterval       time.Duration `mapstructure:"poll_interval"`
}

type ContractsConfig struct {
	Certificate string `mapstructure:"certificate"`
	Token       string `mapstructure:"token"`
	Marketplace string `mapstructure:"marketplace"`
}

// WalletConfig selects the signing key. PrivateKey wins over Keystore when both are set.
type WalletConfig struct {
	PrivateKey string `mapstructure:"private_key"`
	Keystore   string `mapstructure:"keystore"`
	Passphrase string `mapstructure:"passphrase"`
}

type TokenizationConfig struct {
	// ReserveSeed is the whole-token quantity approved and deposited into the marketplace reserve.
	ReserveSeed string `mapstructure:"reserve_seed"`
	Decimals    int32  `mapstructure:"decimals"`
}

type HistoryConfig struct {
	Source        string `mapstructure:"source"`
	StartBlock    uint64 `mapstructure:"start_block"`
	MaxBlockRange uint64 `mapstructure:"max_block_range"`
}

type KafkaConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	Brokers      []string `mapstructure:"brokers"`
	Topic        string   `mapstructure:"topic"`
	BatchSize    int      `mapstructure:"batch_size"`
	BatchTimeout int      `mapstructure:"batch_timeout"`
}

type HTTPConfig struct {
	Address         string        `mapstructure:"address"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type CertificateConfig struct {
	ID       string  `mapstructure:"id"`
	Name     string  `mapstructure:"name"`
	Source   string  `mapstructure:"source"`
	Location string  `mapstructure:"location"`
	Amount   float64 `mapstructure:"amount"`
	Status   string  `mapstructure:"status"`
	ImageURL string  `mapstructure:"image_url"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ethereum.confirmation_blocks", 0)
	v.SetDefault("ethereum.receipt_timeout", 3*time.Minute)
	v.SetDefault("ethereum.poll_interval", 2*time.Second)
	v.SetDefault("tokenization.reserve_seed", "1000")
	v.SetDefault("tokenization.decimals", 18)
	v.SetDefault("history.source", "contract")
	v.SetDefault("history.max_block_range", 2000)
	v.SetDefault("kafka.topic", "irec-events")
	v.SetDefault("kafka.batch_size", 1)
	v.SetDefault("kafka.batch_timeout", 50)
	v.SetDefault("http.address", ":8080")
	v.SetDefault("http.shutdown_timeout", 30*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// LoadConfig reads config.yaml from path. Environment variables override file values,
// with "." replaced by "_" (ETHEREUM_NODE_URL, WALLET_PRIVATE_KEY, ...).
func LoadConfig(path string) (*Config, error) {
	return Load(viper.New(), path)
}

// Load is LoadConfig on a caller supplied viper instance, so flags bound to it take part.
func Load(v *viper.Viper, path string) (*Config, error) {
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	err := v.ReadInConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	err = v.Unmarshal(&config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	err = config.Validate()
	if err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks the settings every command needs.
func (c *Config) Validate() error {
	if c.Ethereum.NodeURL == "" {
		return fmt.Errorf("invalid config: ethereum.node_url is required")
	}
	if c.Ethereum.ChainID <= 0 {
		return fmt.Errorf("invalid config: ethereum.chain_id must be positive")
	}
	for name, addr := range map[string]string{
		"contracts.certificate": c.Contracts.Certificate,
		"contracts.token":       c.Contracts.Token,
		"contracts.marketplace": c.Contracts.Marketplace,
	} {
		if addr == "" {
			return fmt.Errorf("invalid config: %s is required", name)
		}
	}
	if c.History.Source != "contract" && c.History.Source != "logs" {
		return fmt.Errorf("invalid config: history.source must be contract or logs, got %q", c.History.Source)
	}
	if c.History.MaxBlockRange == 0 {
		return fmt.Errorf("invalid config: history.max_block_range must be positive")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("invalid config: kafka.brokers is required when kafka is enabled")
	}

	return nil
}
