package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 15*time.Minute, cfg.Redis.CartTTL)
	assert.Empty(t, cfg.Kafka.Brokers)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http_port: "9090"
request_timeout: 5s
store:
  driver: postgres
  db_host: db.internal
kafka:
  brokers: [k1:9092, k2:9092]
auth:
  jwt_secret: from-file
  token_ttl: 1h
`), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("DB_HOST", "db.override")
	t.Setenv("JWT_TTL", "2h")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.HTTPPort)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "db.override", cfg.Store.DBHost)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "from-file", cfg.Auth.JWTSecret)
	assert.Equal(t, 2*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 5432, cfg.Store.DBPort)
}

func TestLoad_Errors(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")

	t.Setenv("JWT_SECRET", "")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("JWT_SECRET", "x")
	t.Setenv("STORE_DRIVER", "oracle")
	_, err = Load()
	assert.ErrorContains(t, err, "oracle")

	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("DB_PORT", "not-a-number")
	_, err = Load()
	assert.ErrorContains(t, err, "DB_PORT")
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a:1", "b:2"}, splitList(" a:1, ,b:2 "))
	assert.Nil(t, splitList(""))
}
