package store

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/krew-solutions/itemquery/itemquery/predicate"
	"github.com/krew-solutions/itemquery/itemquery/session"
	"github.com/krew-solutions/itemquery/itemquery/sqlbuild"
)

// Schema lays out the item store tables for a catalog: the items table,
// the identities table and one table per attribute.
type Schema struct {
	Catalog           *predicate.Catalog
	Dialect           sqlbuild.Dialect
	TablePrefix       string
	IdentitiesTable   string
	IdentityKeyColumn string
}

func columnType(t predicate.Type) string {
	switch t {
	case predicate.TypeInteger, predicate.TypeReference:
		return "BIGINT"
	case predicate.TypeDecimal:
		return "NUMERIC"
	case predicate.TypeBool:
		return "BOOLEAN"
	}
	return "TEXT"
}

// Statements returns the DDL creating every table that does not exist yet.
func (s Schema) Statements() []string {
	stmts := []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s BIGINT PRIMARY KEY)", sqlbuild.ItemsTable, sqlbuild.ItemColumn),
	}
	if s.IdentitiesTable != "" {
		stmts = append(stmts, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s%s (%s BIGINT NOT NULL, %s TEXT NOT NULL UNIQUE)",
			s.TablePrefix, s.IdentitiesTable, sqlbuild.ItemColumn, s.IdentityKeyColumn))
	}
	for _, a := range s.Catalog.Attributes() {
		stmts = append(stmts, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s%s (%s BIGINT NOT NULL, %s %s)",
			s.TablePrefix, a.Table, sqlbuild.ItemColumn, a.Column, columnType(a.Type)))
	}
	return stmts
}

func (s Schema) Create(conn session.DbConnection) error {
	for _, stmt := range s.Statements() {
		if _, err := conn.Exec(stmt); err != nil {
			return errors.Wrapf(err, "creating schema: %s", stmt)
		}
	}
	return nil
}

func (s Schema) AddItems(conn session.DbConnection, items ...int64) error {
	query := s.Dialect.Rebind(fmt.Sprintf("INSERT INTO %s (%s) VALUES (?)", sqlbuild.ItemsTable, sqlbuild.ItemColumn))
	for _, item := range items {
		if _, err := conn.Exec(query, item); err != nil {
			return errors.Wrapf(err, "adding item %d", item)
		}
	}
	return nil
}

// AddValues stores values of attr for item, one row per value.
func (s Schema) AddValues(conn session.DbConnection, attr *predicate.Attribute, item int64, values ...any) error {
	query := s.Dialect.Rebind(fmt.Sprintf("INSERT INTO %s%s (%s, %s) VALUES (?, ?)",
		s.TablePrefix, attr.Table, sqlbuild.ItemColumn, attr.Column))
	for _, v := range values {
		if _, err := conn.Exec(query, item, v); err != nil {
			return errors.Wrapf(err, "adding %s of item %d", attr.Name, item)
		}
	}
	return nil
}

func (s Schema) AddIdentity(conn session.DbConnection, key string, item int64) error {
	query := s.Dialect.Rebind(fmt.Sprintf("INSERT INTO %s%s (%s, %s) VALUES (?, ?)",
		s.TablePrefix, s.IdentitiesTable, sqlbuild.ItemColumn, s.IdentityKeyColumn))
	if _, err := conn.Exec(query, item, key); err != nil {
		return errors.Wrapf(err, "adding identity %s", key)
	}
	return nil
}
