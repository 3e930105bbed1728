package database

import (
	"io/fs"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDSNForcesRequiredOptions(t *testing.T) {
	dsn, err := NormalizeDSN("app:pw@tcp(db:3306)/netriver")
	require.NoError(t, err)

	c, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.True(t, c.ParseTime)
	assert.False(t, c.MultiStatements)
	assert.Equal(t, "UTC", c.Loc.String())
	assert.Equal(t, "netriver", c.DBName)
}

func TestApplicationDSNNeverAllowsMultiStatements(t *testing.T) {
	dsn, err := NormalizeDSN("app:pw@tcp(db:3306)/netriver?multiStatements=true")
	require.NoError(t, err)
	c, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.False(t, c.MultiStatements)

	dsn, err = MigrationDSN("app:pw@tcp(db:3306)/netriver")
	require.NoError(t, err)
	c, err = mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.True(t, c.MultiStatements)
	assert.True(t, c.ParseTime)
}

func TestNormalizeDSNRejectsGarbage(t *testing.T) {
	_, err := NormalizeDSN("not a dsn")
	assert.Error(t, err)
}

func TestMigrationsArePaired(t *testing.T) {
	ups, err := fs.Glob(migrationsFS, "migrations/*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(migrationsFS, "migrations/*.down.sql")
	require.NoError(t, err)

	assert.NotEmpty(t, ups)
	assert.Len(t, downs, len(ups))
}
