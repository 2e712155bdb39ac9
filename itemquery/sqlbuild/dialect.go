package sqlbuild

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Dialect adapts generated statements to a database engine.
type Dialect interface {
	Name() string
	// Rebind converts ? markers into the engine's placeholder syntax.
	Rebind(sql string) string
	// ArrayFragment is a parenthesized single-column subquery over one bound array.
	ArrayFragment() string
	ArrayParam(items []int64) any
}

var (
	SQLite   Dialect = sqliteDialect{}
	Postgres Dialect = postgresDialect{}
)

// DialectByName maps driver names to dialects.
func DialectByName(name string) (Dialect, error) {
	switch name {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "pgx", "postgres", "postgresql":
		return Postgres, nil
	}
	return nil, errors.Errorf("unknown sql dialect: %s", name)
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string { return "sqlite3" }

func (sqliteDialect) Rebind(sql string) string { return sql }

func (sqliteDialect) ArrayFragment() string {
	return "(SELECT value FROM json_each(?))"
}

func (sqliteDialect) ArrayParam(items []int64) any {
	var b strings.Builder
	b.WriteByte('[')
	for i, item := range items {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatInt(item, 10))
	}
	b.WriteByte(']')
	return b.String()
}

type postgresDialect struct{}

func (postgresDialect) Name() string { return "postgres" }

func (postgresDialect) Rebind(sql string) string {
	return replaceParamMarkers(sql)
}

func (postgresDialect) ArrayFragment() string {
	return "(SELECT unnest(CAST(? AS bigint[])))"
}

func (postgresDialect) ArrayParam(items []int64) any {
	return items
}

func replaceParamMarkers(sql string) string {
	var b strings.Builder
	idx := 1
	for i := 0; i < len(sql); i++ {
		if sql[i] == '?' {
			b.WriteString(fmt.Sprintf("$%d", idx))
			idx++
		} else {
			b.WriteByte(sql[i])
		}
	}
	return b.String()
}
