package config

// Package config provides a reusable loader for hub configuration files
// and environment variables. It is versioned so that applications can
// depend on a stable API contract.
//
// Version: v0.1.0

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"hubnode/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config is the unified configuration for a hub node. It mirrors the
// structure of the YAML files under cmd/config.
type Config struct {
	Network struct {
		ID              string `mapstructure:"id" json:"id"`
		ClockSkewBoundS int    `mapstructure:"clock_skew_bound_s" json:"clock_skew_bound_s"`
	} `mapstructure:"network" json:"network"`

	Ethereum struct {
		RPCURL          string `mapstructure:"rpc_url" json:"rpc_url"`
		IdRegistryAddr  string `mapstructure:"id_registry_addr" json:"id_registry_addr"`
		KeyRegistryAddr string `mapstructure:"key_registry_addr" json:"key_registry_addr"`
		StorageRegAddr  string `mapstructure:"storage_registry_addr" json:"storage_registry_addr"`
		ChainID         uint64 `mapstructure:"chain_id" json:"chain_id"`
	} `mapstructure:"ethereum" json:"ethereum"`

	Engine struct {
		ValidatorWorkers int  `mapstructure:"validator_workers" json:"validator_workers"`
		Ephemeral        bool `mapstructure:"ephemeral" json:"ephemeral"`
	} `mapstructure:"engine" json:"engine"`

	Storage struct {
		DBPath string `mapstructure:"db_path" json:"db_path"`
	} `mapstructure:"storage" json:"storage"`

	HTTP struct {
		ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`
	} `mapstructure:"http" json:"http"`

	Metrics struct {
		StatsdServer string `mapstructure:"statsd_server" json:"statsd_server"`
		ListenAddr   string `mapstructure:"listen_addr" json:"listen_addr"`
	} `mapstructure:"metrics" json:"metrics"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and
// returned. If env is empty, only the default configuration is loaded.
func Load(env string) (*Config, error) {
	// Load environment variables from a project .env if present; ignored
	// when absent so production deployments that rely on real env vars
	// are unaffected.
	_ = godotenv.Load(".env")

	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.SetEnvPrefix("HUB")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv() // picks up HUB_* overrides from .env

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the HUB_ENV environment variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("HUB_ENV", ""))
}
