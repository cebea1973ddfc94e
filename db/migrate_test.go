package db

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMemoryDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestMigrate_CreatesSchema(t *testing.T) {
	conn := openMemoryDB(t)
	require.NoError(t, Migrate(conn, nil))

	for _, table := range []string{
		"schema_migrations", "customers", "datasources", "rules",
		"triggers", "trigger_rules", "email_triggers", "rule_states", "executions",
	} {
		var name string
		err := conn.QueryRow(
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		assert.NoError(t, err, "table %s should exist", table)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	conn := openMemoryDB(t)
	require.NoError(t, Migrate(conn, nil))
	require.NoError(t, Migrate(conn, nil))

	var applied int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&applied))
	assert.Equal(t, 4, applied)
}

func TestMigrate_RecordsVersions(t *testing.T) {
	conn := openMemoryDB(t)
	require.NoError(t, Migrate(conn, nil))

	rows, err := conn.Query(`SELECT version FROM schema_migrations ORDER BY version`)
	require.NoError(t, err)
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		require.NoError(t, rows.Scan(&v))
		versions = append(versions, v)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"000", "001", "002", "003"}, versions)
}

func TestRuleStates_UniqueKey(t *testing.T) {
	conn := openMemoryDB(t)
	require.NoError(t, Migrate(conn, nil))

	_, err := conn.Exec(`INSERT INTO customers (name) VALUES ('acme')`)
	require.NoError(t, err)
	_, err = conn.Exec(`
		INSERT INTO datasources (name, url, username, password, model, view, type, owner)
		VALUES ('src', 'http://x', 'u', 'p', 'm', 'v', 'LOOKER', 1)`)
	require.NoError(t, err)
	_, err = conn.Exec(`
		INSERT INTO rules (name, owner, datasource) VALUES ('watch', 1, 1)`)
	require.NoError(t, err)

	_, err = conn.Exec(`
		INSERT INTO rule_states (customer, rule, key_values, all_values, last_updated)
		VALUES (1, 1, '{"id":"1"}', '{"id":"1"}', '2024-03-01T00:00:00Z')`)
	require.NoError(t, err)

	_, err = conn.Exec(`
		INSERT INTO rule_states (customer, rule, key_values, all_values, last_updated)
		VALUES (1, 1, '{"id":"1"}', '{"id":"2"}', '2024-03-01T00:00:00Z')`)
	assert.Error(t, err, "duplicate (customer, rule, key_values) must be rejected")
}
