package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// New returns a viper instance with defaults, search paths, and the
// TOKENWARDEN_ environment prefix configured.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigName("tokenwarden")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.tokenwarden")
	v.AddConfigPath("/etc/tokenwarden")

	v.SetEnvPrefix("TOKENWARDEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", ":8443")
	v.SetDefault("limits.max_facts", 1000)
	v.SetDefault("limits.max_iterations", 100)
	v.SetDefault("limits.max_time", "5ms")
	v.SetDefault("limits.allow_block_programs", true)
	v.SetDefault("audit.output", "stdout")
	v.SetDefault("audit.retention_days", 7)
	v.SetDefault("dev_mode", false)

	return v
}

// Load reads, unmarshals, and validates the configuration. When cfgFile
// is non-empty it is used verbatim; otherwise the search paths apply. A
// missing config file is not an error: defaults and environment stand.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
