package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/krew-solutions/itemquery/itemquery/extraction"
	"github.com/krew-solutions/itemquery/itemquery/logger"
	"github.com/krew-solutions/itemquery/itemquery/session"
	"github.com/krew-solutions/itemquery/itemquery/sqlbuild"
)

const (
	sqliteTableQuery   = "SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?"
	postgresTableQuery = "SELECT table_name FROM information_schema.tables " +
		"WHERE table_schema = current_schema() AND table_name = ?"
)

type tableEntry struct {
	name string
	ok   bool
}

// TransactionContext runs extraction selects through a database session.
// It is meant for a single goroutine and a single transaction.
type TransactionContext struct {
	session     session.DbSession
	dialect     sqlbuild.Dialect
	tablePrefix string
	id          uuid.UUID
	tables      map[string]tableEntry
	log         *zap.SugaredLogger
}

type Option func(*TransactionContext)

// WithTablePrefix prepends prefix to the physical name of every resolved table.
func WithTablePrefix(prefix string) Option {
	return func(c *TransactionContext) {
		c.tablePrefix = prefix
	}
}

func NewTransactionContext(s session.DbSession, dialect sqlbuild.Dialect, opts ...Option) *TransactionContext {
	c := &TransactionContext{
		session: s,
		dialect: dialect,
		id:      uuid.New(),
		tables:  make(map[string]tableEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = logger.Logger.With("tx", c.id.String(), "dialect", dialect.Name())
	return c
}

func (c *TransactionContext) Context() context.Context {
	return c.session.Context()
}

func (c *TransactionContext) Dialect() sqlbuild.Dialect {
	return c.dialect
}

func (c *TransactionContext) Session() session.DbSession {
	return c.session
}

// ResolveTable looks the table up in the catalog of the database once per
// transaction.
func (c *TransactionContext) ResolveTable(table string) (string, bool, error) {
	if e, ok := c.tables[table]; ok {
		return e.name, e.ok, nil
	}
	name := c.tablePrefix + table
	query := sqliteTableQuery
	if c.dialect == sqlbuild.Postgres {
		query = postgresTableQuery
	}
	query = c.dialect.Rebind(query)

	var found string
	err := c.session.Connection().QueryRow(query, name).Scan(&found)
	switch {
	case isNoRows(err):
		c.tables[table] = tableEntry{name: name, ok: false}
	case err != nil:
		return "", false, extraction.AsSQLError(err, query)
	default:
		c.tables[table] = tableEntry{name: name, ok: true}
	}
	c.log.Debugw("resolved table", "table", table, "name", name, "exists", c.tables[table].ok)
	return name, c.tables[table].ok, nil
}

func (c *TransactionContext) LoadItems(b *sqlbuild.SelectBuilder) ([]int64, error) {
	st := b.Build(c.dialect)
	c.log.Debugw("loading items", "sql", st.SQL, "args", len(st.Args))

	rows, err := c.session.Connection().Query(st.SQL, st.Args...)
	if err != nil {
		return nil, extraction.AsSQLError(err, st.SQL)
	}
	defer rows.Close()

	items := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, extraction.AsSQLError(err, st.SQL)
		}
		items = append(items, id)
	}
	if err := rows.Err(); err != nil {
		return nil, extraction.AsSQLError(err, st.SQL)
	}
	return sqlbuild.SortedUnique(items), nil
}

func (c *TransactionContext) CountItems(b *sqlbuild.SelectBuilder) (int, error) {
	st := b.BuildCount(c.dialect)
	c.log.Debugw("counting items", "sql", st.SQL, "args", len(st.Args))

	var n int
	if err := c.session.Connection().QueryRow(st.SQL, st.Args...).Scan(&n); err != nil {
		return 0, extraction.AsSQLError(err, st.SQL)
	}
	return n, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows)
}
