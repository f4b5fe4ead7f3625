package migrations

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EmbeddedOrder(t *testing.T) {
	pg, err := load(PostgresFS, "postgres")
	require.NoError(t, err)
	require.Len(t, pg, 2)
	assert.Equal(t, "001_positions", pg[0].Version)
	assert.Equal(t, "002_audit_log", pg[1].Version)

	ch, err := load(ClickhouseFS, "clickhouse")
	require.NoError(t, err)
	require.Len(t, ch, 2)
	assert.Equal(t, "001_risk_check_results", ch[0].Version)
}

func TestEmbeddedClickhouseMigrationsSplitCleanly(t *testing.T) {
	ch, err := load(ClickhouseFS, "clickhouse")
	require.NoError(t, err)
	for _, m := range ch {
		assert.NoError(t, validateNoSemicolonInStrings(m.SQL), m.Version)
		assert.NotEmpty(t, splitStatements(m.SQL), m.Version)
	}
}

func TestSplitStatements(t *testing.T) {
	in := `-- header
CREATE TABLE a (x UInt8) ENGINE = Memory;

-- second
CREATE TABLE b (y String) ENGINE = Memory;
`
	stmts := splitStatements(in)
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE TABLE a (x UInt8) ENGINE = Memory", stmts[0])
	assert.Equal(t, "CREATE TABLE b (y String) ENGINE = Memory", stmts[1])
}

func TestValidateNoSemicolonInStrings(t *testing.T) {
	assert.NoError(t, validateNoSemicolonInStrings(`SELECT 'a''b'; SELECT 1;`))

	err := validateNoSemicolonInStrings(`SELECT 'a;b'`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errSemicolonInString))
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := databaseFromDSN("clickhouse://default:@localhost:9000/entrygate")
	require.NoError(t, err)
	assert.Equal(t, "entrygate", db)

	_, err = databaseFromDSN("clickhouse://localhost:9000")
	assert.Error(t, err)
}
