package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/krew-solutions/itemquery/itemquery/boolexpr"
	"github.com/krew-solutions/itemquery/itemquery/extraction"
	"github.com/krew-solutions/itemquery/itemquery/planner"
	"github.com/krew-solutions/itemquery/itemquery/predicate"
	"github.com/krew-solutions/itemquery/itemquery/session"
	sqlsession "github.com/krew-solutions/itemquery/itemquery/session/sql"
	"github.com/krew-solutions/itemquery/itemquery/sqlbuild"
)

type storeFixture struct {
	catalog   *predicate.Catalog
	session   *sqlsession.Session
	processor *planner.Processor
}

func createTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// every connection of an in-memory database sees its own database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func newStoreFixture(t *testing.T) *storeFixture {
	t.Helper()
	return newStoreFixtureOn(t, createTestDB(t))
}

func newStoreFixtureOn(t *testing.T, db *sql.DB) *storeFixture {
	t.Helper()
	catalog, err := predicate.NewCatalog(
		predicate.Attribute{Name: "color"},
		predicate.Attribute{Name: "size", Type: predicate.TypeInteger},
		predicate.Attribute{Name: "tags", Multi: true},
		predicate.Attribute{Name: "owner", Type: predicate.TypeReference},
		predicate.Attribute{Name: "parent", Table: "links", Column: "ref", Type: predicate.TypeReference},
		predicate.Attribute{Name: "watchers", Type: predicate.TypeReference, Multi: true},
	)
	require.NoError(t, err)

	options := planner.DefaultOptions()
	schema := Schema{
		Catalog:           catalog,
		Dialect:           sqlbuild.SQLite,
		IdentitiesTable:   options.IdentitiesTable,
		IdentityKeyColumn: options.IdentityKeyColumn,
	}
	sess := sqlsession.NewSession(context.Background(), db)
	conn := sess.Connection()
	require.NoError(t, schema.Create(conn))
	require.NoError(t, schema.AddItems(conn, 1, 2, 3, 4, 5))

	attr := func(name string) *predicate.Attribute {
		a, _ := catalog.Lookup(name)
		return a
	}
	require.NoError(t, schema.AddValues(conn, attr("color"), 1, "red"))
	require.NoError(t, schema.AddValues(conn, attr("color"), 2, "blue"))
	require.NoError(t, schema.AddValues(conn, attr("color"), 3, "red"))
	require.NoError(t, schema.AddValues(conn, attr("color"), 5, "green"))
	require.NoError(t, schema.AddValues(conn, attr("size"), 1, 10))
	require.NoError(t, schema.AddValues(conn, attr("size"), 2, 20))
	require.NoError(t, schema.AddValues(conn, attr("size"), 3, 30))
	require.NoError(t, schema.AddValues(conn, attr("size"), 5, 5))
	require.NoError(t, schema.AddValues(conn, attr("tags"), 1, "a", "b"))
	require.NoError(t, schema.AddValues(conn, attr("tags"), 2, "b"))
	require.NoError(t, schema.AddValues(conn, attr("tags"), 3, "c"))
	require.NoError(t, schema.AddValues(conn, attr("parent"), 2, 1))
	require.NoError(t, schema.AddValues(conn, attr("parent"), 3, 1))
	require.NoError(t, schema.AddValues(conn, attr("parent"), 5, 4))
	require.NoError(t, schema.AddValues(conn, attr("owner"), 2, 1))
	require.NoError(t, schema.AddValues(conn, attr("owner"), 3, 5))
	require.NoError(t, schema.AddValues(conn, attr("watchers"), 1, 1, 3))
	require.NoError(t, schema.AddValues(conn, attr("watchers"), 2, 3))
	require.NoError(t, schema.AddValues(conn, attr("watchers"), 3, 4))
	require.NoError(t, schema.AddIdentity(conn, "alice", 1))
	require.NoError(t, schema.AddIdentity(conn, "bob", 4))

	return &storeFixture{
		catalog:   catalog,
		session:   sess,
		processor: planner.NewProcessor(planner.NewCompiler(planner.NewDefaultRegistry(), options)),
	}
}

func (f *storeFixture) attr(name string) *predicate.Attribute {
	a, _ := f.catalog.Lookup(name)
	return a
}

// inTransaction runs fn against a fresh transaction context.
func (f *storeFixture) inTransaction(t *testing.T, fn func(ctx *TransactionContext)) {
	t.Helper()
	require.NoError(t, f.session.Atomic(func(s session.Session) error {
		fn(NewTransactionContext(s.(session.DbSession), sqlbuild.SQLite))
		return nil
	}))
}

func term(p predicate.Predicate) predicate.Expr {
	return boolexpr.TermOf[predicate.Predicate](p)
}

func TestLoadItemsEndToEnd(t *testing.T) {
	f := newStoreFixture(t)
	red := term(predicate.NewEquals(f.attr("color"), "red"))
	blue := term(predicate.NewEquals(f.attr("color"), "blue"))
	sizeExists := term(predicate.NotNull{Attr: f.attr("size")})

	cases := []struct {
		name string
		expr predicate.Expr
		want []int64
	}{
		{"equals", red, []int64{1, 3}},
		{"not equals accepts missing rows", red.Negate(), []int64{2, 4, 5}},
		{"less", term(predicate.Compare{Attr: f.attr("size"), Value: 15, Less: true}), []int64{1, 5}},
		{"not less", term(predicate.Compare{Attr: f.attr("size"), Value: 15, Less: true}).Negate(), []int64{2, 3, 4}},
		{"intersects", term(predicate.NewIntersects(f.attr("tags"), "a", "c")), []int64{1, 3}},
		{"and", term(predicate.NewEquals(f.attr("color"), "red", "blue")).And(
			term(predicate.Compare{Attr: f.attr("size"), Value: 20, OrEqual: true})), []int64{2, 3}},
		{"or", red.Or(term(predicate.NewIntersects(f.attr("tags"), "b"))), []int64{1, 2, 3}},
		{"missing value", sizeExists.Negate(), []int64{4}},
		{"referred by", term(predicate.ReferredBy{Attr: f.attr("parent"), Query: blue}), []int64{1}},
		{"not referred by", term(predicate.ReferredBy{Attr: f.attr("parent"), Query: sizeExists}).Negate(), []int64{2, 3, 5}},
		{"referred by nothing", term(predicate.ReferredBy{Attr: f.attr("parent"), Query: term(predicate.NewEquals(f.attr("color"), "black"))}), []int64{}},
		{"identified", term(predicate.EqualsIdentified{Attr: f.attr("owner"), Key: "alice"}), []int64{2}},
		{"not identified", term(predicate.EqualsIdentified{Attr: f.attr("owner"), Key: "alice"}).Negate(), []int64{1, 3, 4, 5}},
		{"unknown identity", term(predicate.EqualsIdentified{Attr: f.attr("owner"), Key: "carol"}), []int64{}},
		{"watched by identity", term(predicate.NewIntersectsIdentified(f.attr("watchers"), "alice")), []int64{1}},
		{"watched by identities", term(predicate.NewIntersectsIdentified(f.attr("watchers"), "alice", "bob", "carol")), []int64{1, 3}},
		{"watched by unknown identity", term(predicate.NewIntersectsIdentified(f.attr("watchers"), "carol")), []int64{}},
		{"owned by identities", term(predicate.NewIntersectsIdentified(f.attr("owner"), "alice", "bob")), []int64{2}},
		{"not owned by identities", term(predicate.EqualsIdentified{Attr: f.attr("owner"), Key: "alice"}).Or(
			term(predicate.EqualsIdentified{Attr: f.attr("owner"), Key: "bob"})).Negate(), []int64{1, 3, 4, 5}},
		{"contradiction", red.And(red.Negate()), []int64{}},
		{"tautology", red.Or(red.Negate()), []int64{1, 2, 3, 4, 5}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f.inTransaction(t, func(ctx *TransactionContext) {
				items, err := f.processor.LoadItems(ctx, tc.expr)
				require.NoError(t, err)
				assert.Equal(t, tc.want, items)
			})
		})
	}
}

func TestIdentityOfMultiValuedAttribute(t *testing.T) {
	f := newStoreFixture(t)
	watchedByAlice := term(predicate.EqualsIdentified{Attr: f.attr("watchers"), Key: "alice"})

	f.inTransaction(t, func(ctx *TransactionContext) {
		for _, e := range []predicate.Expr{watchedByAlice, watchedByAlice.Negate()} {
			_, err := f.processor.LoadItems(ctx, e)
			require.Error(t, err)
			assert.True(t, errors.Is(err, planner.ErrFilterInvalid))
		}
		_, err := f.processor.LoadItems(ctx, term(predicate.NewIntersectsIdentified(f.attr("watchers"), "alice")).Negate())
		assert.True(t, errors.Is(err, planner.ErrFilterInvalid))
	})
}

func TestOperatorsSharedAcrossTransactions(t *testing.T) {
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "items.db")+"?_busy_timeout=5000")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	f := newStoreFixtureOn(t, db)

	filter := term(predicate.ReferredBy{
		Attr:  f.attr("parent"),
		Query: term(predicate.NewEquals(f.attr("color"), "red", "blue")),
	}).Or(term(predicate.NewIntersects(f.attr("tags"), "c")))
	_, err = f.processor.Compiler().Compile(filter)
	require.NoError(t, err)

	const workers = 8
	pool := sqlsession.NewSessionPool(db)
	results := make([][]int64, workers)
	g, gctx := errgroup.WithContext(context.Background())
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			return pool.Session(gctx, func(s session.Session) error {
				return s.Atomic(func(tx session.Session) error {
					ctx := NewTransactionContext(tx.(session.DbSession), sqlbuild.SQLite)
					for n := 0; n < 5; n++ {
						items, err := f.processor.LoadItems(ctx, filter)
						if err != nil {
							return err
						}
						results[i] = items
					}
					return nil
				})
			})
		})
	}
	require.NoError(t, g.Wait())
	for _, items := range results {
		assert.Equal(t, []int64{1, 3}, items)
	}
}

func TestReferencedItems(t *testing.T) {
	db := createTestDB(t)
	sess := sqlsession.NewSession(context.Background(), db)
	conn := sess.Connection()
	for _, stmt := range []string{
		"CREATE TABLE items (item BIGINT PRIMARY KEY)",
		"INSERT INTO items VALUES (1), (2), (3)",
		"CREATE TABLE refs (item BIGINT NOT NULL, ref BIGINT)",
		"INSERT INTO refs VALUES (10, 1), (11, 3)",
	} {
		_, err := conn.Exec(stmt)
		require.NoError(t, err)
	}
	referrers := extraction.NewTableJoinOperator("refs", false)

	for negated, want := range map[bool][]int64{false: {1, 3}, true: {2}} {
		ctx := NewTransactionContext(sess, sqlbuild.SQLite)
		loader := extraction.NewLoadingVisitor()
		op := extraction.NewJoinSubqueryOperator("refs", "ref", referrers, negated)
		require.NoError(t, op.Apply(ctx, extraction.AllItems()).Execute(ctx, loader))
		assert.Equal(t, want, loader.Items())
	}
}

func TestCountAndFilter(t *testing.T) {
	f := newStoreFixture(t)
	red := term(predicate.NewEquals(f.attr("color"), "red"))
	tagged := term(predicate.NewIntersects(f.attr("tags"), "b"))

	f.inTransaction(t, func(ctx *TransactionContext) {
		n, err := f.processor.Count(ctx, red)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = f.processor.Count(ctx, red.Or(tagged))
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		many := []int64{12, 11, 10, 9, 8, 7, 6, 5, 4, 3, 2, 1}
		items, err := f.processor.FilterItems(ctx, red, many)
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 3}, items)

		ok, err := f.processor.CheckItem(ctx, red, 3)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestNoQueriesForInvalidItems(t *testing.T) {
	f := newStoreFixture(t)
	red := term(predicate.NewEquals(f.attr("color"), "red"))

	var queries []string
	f.session.OnQueryEnded().Attach(func(e session.QueryEndedEvent) error {
		queries = append(queries, e.Query)
		return nil
	}, "test")

	f.inTransaction(t, func(ctx *TransactionContext) {
		ok, err := f.processor.CheckItem(ctx, red, 0)
		require.NoError(t, err)
		assert.False(t, ok)
		items, err := f.processor.FilterItems(ctx, red, nil)
		require.NoError(t, err)
		assert.Empty(t, items)
	})
	assert.Empty(t, queries)

	f.inTransaction(t, func(ctx *TransactionContext) {
		_, err := f.processor.LoadItems(ctx, red)
		require.NoError(t, err)
		_, err = f.processor.LoadItems(ctx, red)
		require.NoError(t, err)
	})
	// the table is resolved once per transaction
	assert.Len(t, queries, 3)
}

func TestMissingTableMatchesNothing(t *testing.T) {
	f := newStoreFixture(t)
	ghost := &predicate.Attribute{Name: "ghost", Table: "attr_ghost", Column: "value", Type: predicate.TypeString}

	f.inTransaction(t, func(ctx *TransactionContext) {
		items, err := f.processor.LoadItems(ctx, term(predicate.NewEquals(ghost, "x")))
		require.NoError(t, err)
		assert.Empty(t, items)

		items, err = f.processor.LoadItems(ctx, term(predicate.NewEquals(ghost, "x")).Negate())
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 2, 3, 4, 5}, items)
	})
}
