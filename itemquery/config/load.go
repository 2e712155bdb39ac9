package config

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. ITEMQUERY_DATABASE_DSN.
const EnvPrefix = "ITEMQUERY"

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.dsn", "itemquery.db")
	v.SetDefault("database.table_prefix", "")

	v.SetDefault("planner.inline_list_limit", 40)
	v.SetDefault("planner.max_sql_params", 100)
	v.SetDefault("planner.max_reduction_passes", 1000)
	v.SetDefault("planner.cache_size", 256)

	v.SetDefault("log.json", false)
	v.SetDefault("log.level", "info")

	v.SetDefault("identities.table", "identities")
	v.SetDefault("identities.key_column", "key")
}

// New returns a viper instance with defaults and environment overrides.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// Load reads the configuration file at path, if any, over the defaults.
// The file format follows its extension (toml, yaml, json).
func Load(path string) (*Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", path)
		}
	}
	return LoadWithViper(v)
}

// LoadWithViper loads and validates configuration using a provided Viper instance
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return &cfg, nil
}
