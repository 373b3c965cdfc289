package config

// Package config provides a reusable loader for scriptindex configuration
// files and environment variables. It is versioned so that applications can
// depend on a stable API contract.
//
// Version: v0.1.0

import (
	"fmt"

	"github.com/spf13/viper"

	"scriptindex/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config represents the unified configuration for a scriptindex node. It
// mirrors the structure of the default.yaml that Load looks for under
// cmd/config or config; no such file ships with this repository.
type Config struct {
	Chain struct {
		Magic      uint32 `mapstructure:"magic" json:"magic"`
		BlockDir   string `mapstructure:"block_dir" json:"block_dir"`
		DaemonRPC  string `mapstructure:"daemon_rpc" json:"daemon_rpc"`
		DaemonUser string `mapstructure:"daemon_user" json:"daemon_user"`
		DaemonPass string `mapstructure:"daemon_pass" json:"daemon_pass"`
	} `mapstructure:"chain" json:"chain"`

	Index struct {
		Threads int `mapstructure:"threads" json:"threads"`
	} `mapstructure:"index" json:"index"`

	Storage struct {
		DBPath string `mapstructure:"db_path" json:"db_path"`
	} `mapstructure:"storage" json:"storage"`

	RPC struct {
		ListenAddr  string `mapstructure:"listen_addr" json:"listen_addr"`
		AdminAddr   string `mapstructure:"admin_addr" json:"admin_addr"`
		TickSeconds int    `mapstructure:"tick_seconds" json:"tick_seconds"`
	} `mapstructure:"rpc" json:"rpc"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and
// returned.
//
// The function uses the provided environment name to merge additional
// config files. If env is empty, only the default configuration is loaded.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	setDefaults()
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, utils.Wrap(err, "load config")
		}
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.AutomaticEnv() // process environment only; no .env file is read

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the SCRIPTINDEX_ENV environment
// variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("SCRIPTINDEX_ENV", ""))
}

func setDefaults() {
	viper.SetDefault("index.threads", 4)
	viper.SetDefault("storage.db_path", "./scriptindex.db")
	viper.SetDefault("rpc.listen_addr", "0.0.0.0:50001")
	viper.SetDefault("rpc.admin_addr", "127.0.0.1:8080")
	viper.SetDefault("rpc.tick_seconds", 5)
	viper.SetDefault("logging.level", "info")
}
