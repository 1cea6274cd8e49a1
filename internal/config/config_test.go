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
	// Act
	cfg, err := Load("payments-service", ":8082", "payments_db")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "payments-service", cfg.ServiceName)
	assert.Equal(t, ":8082", cfg.HTTPAddr)
	assert.Equal(t, "payments_db", cfg.Database.Name)
	assert.Equal(t, "payments-service", cfg.Kafka.GroupID)
	assert.Equal(t, 10*time.Second, cfg.Participants.Timeout)
	assert.False(t, cfg.TwoPhaseCommit)
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	// Arrange
	path := filepath.Join(t.TempDir(), "orders.yaml")
	content := `
http_addr: ":9000"
two_phase_commit: true
database:
  host: db.internal
  port: 6432
participants:
  timeout: 2s
kafka:
  brokers: ["k1:9092", "k2:9092"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("DATABASE_HOST", "override.internal")
	t.Setenv("RPC_CONNECT_TIMEOUT", "750ms")

	// Act
	cfg, err := Load("orders-service", ":8080", "orders_db")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.HTTPAddr)
	assert.True(t, cfg.TwoPhaseCommit)
	assert.Equal(t, "override.internal", cfg.Database.Host)
	assert.Equal(t, 6432, cfg.Database.Port)
	assert.Equal(t, 2*time.Second, cfg.Participants.Timeout)
	assert.Equal(t, 750*time.Millisecond, cfg.Participants.ConnectTimeout)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Setenv("DATABASE_PORT", "not-a-port")

	_, err := Load("reserve-service", ":8081", "reserve_db")

	assert.ErrorContains(t, err, "invalid DATABASE_PORT")
}

func TestDatabase_Renderings(t *testing.T) {
	db := Database{Host: "pg", Port: 5433, User: "u", Password: "p", Name: "orders_db"}

	assert.Equal(t, "postgres://u:p@pg:5433/orders_db?sslmode=disable", db.DSN())

	conf := db.DBConf()
	assert.Equal(t, "postgres", conf.Driver)
	assert.Equal(t, int64(5433), conf.Port)
	assert.Equal(t, "orders_db", conf.Db)
}

func TestSplitCSV(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitCSV(" a, ,b ,"))
}
