package config

import (
	"github.com/pkg/errors"

	"github.com/krew-solutions/itemquery/itemquery/planner"
	"github.com/krew-solutions/itemquery/itemquery/predicate"
	"github.com/krew-solutions/itemquery/itemquery/sqlbuild"
)

// Config is the itemquery configuration.
type Config struct {
	Database   DatabaseConfig        `mapstructure:"database"`
	Planner    PlannerConfig         `mapstructure:"planner"`
	Log        LogConfig             `mapstructure:"log"`
	Identities IdentitiesConfig      `mapstructure:"identities"`
	Attributes []predicate.Attribute `mapstructure:"attributes"`
}

type DatabaseConfig struct {
	// Driver is a database/sql driver name, or "pgx" for a pgxpool.
	Driver      string `mapstructure:"driver"`
	DSN         string `mapstructure:"dsn"`
	TablePrefix string `mapstructure:"table_prefix"`
}

type PlannerConfig struct {
	InlineListLimit    int `mapstructure:"inline_list_limit"`
	MaxSQLParams       int `mapstructure:"max_sql_params"`
	MaxReductionPasses int `mapstructure:"max_reduction_passes"`
	// CacheSize bounds the compiled operator cache; 0 disables it.
	CacheSize int `mapstructure:"cache_size"`
}

type LogConfig struct {
	JSON  bool   `mapstructure:"json"`
	Level string `mapstructure:"level"`
}

type IdentitiesConfig struct {
	Table     string `mapstructure:"table"`
	KeyColumn string `mapstructure:"key_column"`
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if _, err := c.Dialect(); err != nil {
		return err
	}
	if c.Planner.InlineListLimit < 0 {
		return errors.Errorf("planner.inline_list_limit must be >= 0, got %d", c.Planner.InlineListLimit)
	}
	if c.Planner.MaxSQLParams < 1 {
		return errors.Errorf("planner.max_sql_params must be positive, got %d", c.Planner.MaxSQLParams)
	}
	if c.Planner.MaxReductionPasses < 1 {
		return errors.Errorf("planner.max_reduction_passes must be positive, got %d", c.Planner.MaxReductionPasses)
	}
	if c.Planner.CacheSize < 0 {
		return errors.Errorf("planner.cache_size must be >= 0, got %d", c.Planner.CacheSize)
	}
	if c.Identities.Table == "" || c.Identities.KeyColumn == "" {
		return errors.New("identities.table and identities.key_column are required")
	}
	_, err := c.Catalog()
	return err
}

func (c *Config) Dialect() (sqlbuild.Dialect, error) {
	d, err := sqlbuild.DialectByName(c.Database.Driver)
	if err != nil {
		return nil, errors.Wrap(err, "database.driver")
	}
	return d, nil
}

func (c *Config) Catalog() (*predicate.Catalog, error) {
	catalog, err := predicate.NewCatalog(c.Attributes...)
	if err != nil {
		return nil, errors.Wrap(err, "attributes")
	}
	return catalog, nil
}

func (c *Config) PlannerOptions() planner.Options {
	return planner.Options{
		InlineListLimit:    c.Planner.InlineListLimit,
		MaxSQLParams:       c.Planner.MaxSQLParams,
		MaxReductionPasses: c.Planner.MaxReductionPasses,
		CacheSize:          c.Planner.CacheSize,
		IdentitiesTable:    c.Identities.Table,
		IdentityKeyColumn:  c.Identities.KeyColumn,
	}
}
