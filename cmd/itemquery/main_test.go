package main

import (
	"bytes"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func setupDatabase(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "items.db")
	configPath := filepath.Join(dir, "itemquery.toml")
	require.NoError(t, os.WriteFile(configPath, []byte(fmt.Sprintf(`
[database]
driver = "sqlite3"
dsn = %q

[log]
level = "error"

[[attributes]]
name = "color"

[[attributes]]
name = "size"
type = "integer"

[[attributes]]
name = "parent"
table = "links"
column = "ref"
type = "reference"
`, dbPath)), 0o600))

	_, err := execute(t, "", "init-schema", "--config", configPath)
	require.NoError(t, err)

	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	defer db.Close()
	for _, stmt := range []string{
		"INSERT INTO items (item) VALUES (1), (2), (3), (4)",
		"INSERT INTO attr_color (item, value) VALUES (1, 'red'), (2, 'blue'), (3, 'red')",
		"INSERT INTO attr_size (item, value) VALUES (1, 1), (2, 5), (3, 9)",
		"INSERT INTO links (item, ref) VALUES (2, 1), (3, 4)",
		"INSERT INTO identities (item, key) VALUES (4, 'root')",
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	return configPath
}

func TestQueryCommand(t *testing.T) {
	configPath := setupDatabase(t)

	tests := []struct {
		name   string
		filter string
		args   []string
		want   string
	}{
		{"equals", "color: red", nil, "1\n3\n"},
		{"range", "size: {$gte: 2, $lt: 10}", nil, "2\n3\n"},
		{"not", "color: {$ne: red}", nil, "2\n4\n"},
		{"or", "$or: [{color: blue}, {size: 1}]", nil, "1\n2\n"},
		{"referred by", "parent: {$rel: {color: blue}}", nil, "1\n"},
		{"identity", "parent: '@root'", nil, "3\n"},
		{"count", "color: red", []string{"--count"}, "2\n"},
		{"everything", "{}", []string{"--count"}, "4\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"query", "--config", configPath}, tt.args...)
			out, err := execute(t, tt.filter, args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestQueryFromFile(t *testing.T) {
	configPath := setupDatabase(t)
	filterPath := filepath.Join(t.TempDir(), "filter.yaml")
	require.NoError(t, os.WriteFile(filterPath, []byte("color: blue\n"), 0o600))

	out, err := execute(t, "", "query", "--config", configPath, "--filter", filterPath)
	require.NoError(t, err)
	assert.Equal(t, "2\n", out)
}

func TestQueryErrors(t *testing.T) {
	configPath := setupDatabase(t)

	_, err := execute(t, "weight: 3", "query", "--config", configPath)
	assert.Error(t, err)

	_, err = execute(t, "color: [red", "query", "--config", configPath)
	assert.Error(t, err)

	_, err = execute(t, "color: red", "query", "--config", filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestExplainCommand(t *testing.T) {
	configPath := setupDatabase(t)

	out, err := execute(t, "color: {$in: [red, blue]}", "explain", "--config", configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "filter:     color in (blue, red)")
	assert.Contains(t, out, "operator:   attr_color: value in (blue, red)")
}

func TestSchemaDryRun(t *testing.T) {
	configPath := setupDatabase(t)

	out, err := execute(t, "", "init-schema", "--config", configPath, "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "CREATE TABLE IF NOT EXISTS items (item BIGINT PRIMARY KEY);")
	assert.Contains(t, out, "CREATE TABLE IF NOT EXISTS links (item BIGINT NOT NULL, ref BIGINT);")
}
