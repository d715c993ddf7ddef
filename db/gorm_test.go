package db

import (
	"testing"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"v4vfm/config"
)

func TestDSN(t *testing.T) {
	cfg := config.Default()
	cfg.DBUser = "v4v"
	cfg.DBPassword = "p@ss:word"
	cfg.DBHost = "db.internal"
	cfg.DBPort = "3307"
	cfg.DBName = "catalog"

	dsn := DSN(cfg)
	parsed, err := mysqldriver.ParseDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "v4v", parsed.User)
	assert.Equal(t, "p@ss:word", parsed.Passwd)
	assert.Equal(t, "db.internal:3307", parsed.Addr)
	assert.Equal(t, "catalog", parsed.DBName)
	assert.True(t, parsed.ParseTime)
	assert.Contains(t, dsn, "charset=utf8mb4")
}

func TestModels(t *testing.T) {
	assert.Len(t, Models(), 3)
	assert.Error(t, AutoMigrate(nil))
	assert.NoError(t, Close(nil))
}
