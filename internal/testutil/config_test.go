package testutil

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultTestDBConfig(t *testing.T) {
	t.Run("defaults target the local test database", func(t *testing.T) {
		for _, k := range []string{"TEST_DB_HOST", "TEST_DB_PORT", "TEST_DB_USER", "TEST_DB_NAME", "TEST_DB_EPHEMERAL"} {
			t.Setenv(k, "")
			_ = os.Unsetenv(k)
		}
		cfg := DefaultTestDBConfig()
		assert.Equal(t, "localhost", cfg.Host)
		assert.Equal(t, "55432", cfg.Port)
		assert.Equal(t, "docpipe", cfg.User)
		assert.Equal(t, "docpipe", cfg.DBName)
		assert.False(t, cfg.Ephemeral)
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("TEST_DB_HOST", "postgres")
		t.Setenv("TEST_DB_PORT", "5432")
		t.Setenv("TEST_DB_EPHEMERAL", "true")
		cfg := DefaultTestDBConfig()
		assert.Equal(t, "postgres", cfg.Host)
		assert.Equal(t, "5432", cfg.Port)
		assert.True(t, cfg.Ephemeral)
	})
}

func TestTestDBConfig_DSN(t *testing.T) {
	cfg := TestDBConfig{Host: "db", Port: "5432", User: "u", Password: "p@ss", DBName: "docs", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p%40ss@db:5432/docs?sslmode=disable", cfg.DSN(""))
	assert.Equal(t, "postgres://u:p%40ss@db:5432/docs?search_path=t_1%2Cpublic&sslmode=disable", cfg.DSN("t_1,public"))
}
