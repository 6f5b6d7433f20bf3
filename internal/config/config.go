package config

import (
	"github.com/spf13/viper"
)

// Config holds the application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
	Entropy EntropyConfig `mapstructure:"entropy"`
	State   StateConfig   `mapstructure:"state"`
	Chain   ChainConfig   `mapstructure:"chain"`
	Auth    AuthConfig    `mapstructure:"auth"`

	// Permissions maps a caller origin to the method names it may invoke.
	// Entries here are merged over the built-in permission table.
	Permissions map[string][]string `mapstructure:"permissions"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port    string `mapstructure:"port"`
	Address string `mapstructure:"address"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// EntropyConfig selects and configures the master-secret source.
type EntropyConfig struct {
	Type  string      `mapstructure:"type"` // "local" or "vault"
	Local LocalConfig `mapstructure:"local"`
	Vault VaultConfig `mapstructure:"vault"`
}

// LocalConfig holds the configuration for the file-backed entropy source.
type LocalConfig struct {
	MnemonicFile string `mapstructure:"mnemonic_file"`
}

// VaultConfig holds the Vault entropy source configuration.
type VaultConfig struct {
	Address    string `mapstructure:"address"`
	Token      string `mapstructure:"token"`
	SecretPath string `mapstructure:"secret_path"`
}

// StateConfig holds the persisted-state database configuration.
type StateConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

// ChainConfig holds the active chain and RPC endpoints.
type ChainConfig struct {
	// ID is the active chain id as a hex-prefixed string, e.g. "0x539".
	ID string `mapstructure:"id"`
	// NodeURL is the execution-node RPC endpoint used for read-only queries
	// (balance, nonce, entry-point deposit).
	NodeURL string `mapstructure:"node_url"`
	// BundlerURLs maps hex chain ids to bundler RPC endpoints. Entries are
	// merged over the persisted bundler table on startup.
	BundlerURLs map[string]string `mapstructure:"bundler_urls"`
}

// AuthConfig holds the optional HMAC transport authentication settings.
type AuthConfig struct {
	APISecret string `mapstructure:"api_secret"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig() (config Config, err error) {
	viper.AddConfigPath(".")
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	// Set default values
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.address", "")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.json", false)
	viper.SetDefault("entropy.type", "local")
	viper.SetDefault("entropy.local.mnemonic_file", "mnemonic.txt")
	viper.SetDefault("entropy.vault.address", "http://127.0.0.1:8200")
	viper.SetDefault("entropy.vault.secret_path", "secret/data/aakeyring/seed")
	viper.SetDefault("state.data_dir", "data")
	viper.SetDefault("chain.id", "0x539")
	viper.SetDefault("chain.node_url", "http://localhost:8545")

	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Config file was found but another error was produced
			return
		}
		err = nil
	}

	err = viper.Unmarshal(&config)
	return
}
