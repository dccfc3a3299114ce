package database

import (
	"context"
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatabaseName(t *testing.T) {
	cases := []struct{ dsn, want string }{
		{"postgres://cti:pw@db:5432/threatintel?sslmode=disable", "threatintel"},
		{"postgresql://localhost/reports", "reports"},
		{"host=db port=5432 user=cti dbname=cti_prod sslmode=require", "cti_prod"},
		{"host=db dbname='quoted'", "quoted"},
	}
	for _, tc := range cases {
		got, err := DatabaseName(tc.dsn)
		require.NoError(t, err, tc.dsn)
		assert.Equal(t, tc.want, got)
	}

	_, err := DatabaseName("host=db user=cti")
	assert.Error(t, err)
	_, err = DatabaseName("postgres://%zz")
	assert.Error(t, err)
}

func TestOpenRequiresDSN(t *testing.T) {
	_, err := Open(context.Background(), Config{})
	assert.Error(t, err)
}

func TestConfigDefaults(t *testing.T) {
	var c Config
	c.setDefaults()
	assert.Equal(t, 10, c.MaxOpenConns)
	assert.Equal(t, 5, c.MaxIdleConns)
	assert.NotZero(t, c.ConnectTimeout)
}

func TestEmbeddedMigrationsPaired(t *testing.T) {
	entries, err := fs.ReadDir(migrationFiles, "migrations")
	require.NoError(t, err)
	var ups, downs int
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e.Name(), ".up.sql"):
			ups++
		case strings.HasSuffix(e.Name(), ".down.sql"):
			downs++
		}
	}
	assert.Equal(t, ups, downs)
	assert.Positive(t, ups)

	body, err := fs.ReadFile(migrationFiles, "migrations/0001_cti_reports.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(body), "CREATE TABLE IF NOT EXISTS cti_reports")
}
