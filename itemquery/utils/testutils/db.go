package testutils

import (
	"context"
	"os"
	"testing"

	pgxsession "github.com/krew-solutions/itemquery/itemquery/session/pgx"
)

// PgEnabledEnv must be set for tests that need a PostgreSQL server.
const PgEnabledEnv = "ITEMQUERY_PG_TESTS"

func PgConnString() string {
	var db_username string = getEnv("DB_USERNAME", "devel")
	var db_password string = getEnv("DB_PASSWORD", "devel")
	var db_host string = getEnv("DB_HOST", "localhost")
	var db_port string = getEnv("DB_PORT", "5432")
	var db_basename string = getEnv("DB_DATABASE", "devel_itemquery")

	return "postgres://" + db_username + ":" + db_password + "@" + db_host + ":" + db_port + "/" + db_basename
}

// NewPgSessionPool connects to the test database, or skips t when PostgreSQL
// tests are disabled.
func NewPgSessionPool(t *testing.T) *pgxsession.SessionPool {
	t.Helper()
	if os.Getenv(PgEnabledEnv) == "" {
		t.Skipf("set %s to run PostgreSQL tests", PgEnabledEnv)
	}
	pool, err := pgxsession.Connect(context.Background(), PgConnString())
	if err != nil {
		t.Fatalf("connecting to PostgreSQL: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}

	return fallback
}
