package main

import (
	"context"
	"database/sql"
	"io"
	"os"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/krew-solutions/itemquery/itemquery/config"
	"github.com/krew-solutions/itemquery/itemquery/filter"
	"github.com/krew-solutions/itemquery/itemquery/logger"
	"github.com/krew-solutions/itemquery/itemquery/planner"
	"github.com/krew-solutions/itemquery/itemquery/predicate"
	"github.com/krew-solutions/itemquery/itemquery/session"
	pgxsession "github.com/krew-solutions/itemquery/itemquery/session/pgx"
	sqlsession "github.com/krew-solutions/itemquery/itemquery/session/sql"
	"github.com/krew-solutions/itemquery/itemquery/sqlbuild"
	"github.com/krew-solutions/itemquery/itemquery/store"
)

type rootOptions struct {
	configPath string
}

// environment is what every command needs once the configuration is loaded.
type environment struct {
	cfg       *config.Config
	catalog   *predicate.Catalog
	dialect   sqlbuild.Dialect
	processor *planner.Processor
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "itemquery",
		Short: "Compile item filters into SQL and run them",
		Long: `itemquery turns boolean filters over item attributes into SQL selects.

Filters are YAML documents such as:

  color: {$in: [red, blue]}
  size: {$gte: 3}
  parent: {$rel: {owner: "@alice"}}

Examples:
  itemquery init-schema --config itemquery.toml
  itemquery query --config itemquery.toml --filter filter.yaml
  itemquery explain --config itemquery.toml --filter filter.yaml`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "configuration file (toml, yaml or json)")

	cmd.AddCommand(newQueryCommand(opts))
	cmd.AddCommand(newExplainCommand(opts))
	cmd.AddCommand(newSchemaCommand(opts))
	return cmd
}

func loadEnvironment(opts *rootOptions) (*environment, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if err := logger.Initialize(cfg.Log.JSON, cfg.Log.Level); err != nil {
		return nil, errors.Wrap(err, "failed to initialize logger")
	}
	catalog, err := cfg.Catalog()
	if err != nil {
		return nil, err
	}
	dialect, err := cfg.Dialect()
	if err != nil {
		return nil, err
	}
	compiler := planner.NewCompiler(planner.NewDefaultRegistry(), cfg.PlannerOptions())
	return &environment{
		cfg:       cfg,
		catalog:   catalog,
		dialect:   dialect,
		processor: planner.NewProcessor(compiler),
	}, nil
}

// readFilter parses the filter document at path ("-" reads stdin) into item
// predicates.
func (e *environment) readFilter(path string, stdin io.Reader) (predicate.Expr, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read filter")
	}
	doc, err := filter.ParseYAML(data)
	if err != nil {
		return nil, err
	}
	return filter.NewConverter(e.catalog).Convert(doc)
}

// sessionPool opens the configured database. PostgreSQL goes through pgxpool,
// everything else through database/sql.
func (e *environment) sessionPool(ctx context.Context) (session.SessionPool, func(), error) {
	if e.dialect == sqlbuild.Postgres {
		pool, err := pgxsession.Connect(ctx, e.cfg.Database.DSN)
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to connect")
		}
		return pool, pool.Close, nil
	}
	db, err := sql.Open(e.dialect.Name(), e.cfg.Database.DSN)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to open database")
	}
	return sqlsession.NewSessionPool(db), func() { db.Close() }, nil
}

// inTransaction runs fn in a transaction of a fresh database session.
func (e *environment) inTransaction(ctx context.Context, fn func(tc *store.TransactionContext) error) error {
	pool, closePool, err := e.sessionPool(ctx)
	if err != nil {
		return err
	}
	defer closePool()

	return pool.Session(ctx, func(s session.Session) error {
		return s.Atomic(func(tx session.Session) error {
			tc := store.NewTransactionContext(tx.(session.DbSession), e.dialect,
				store.WithTablePrefix(e.cfg.Database.TablePrefix))
			return fn(tc)
		})
	})
}
