// Package config loads service configuration from defaults, an optional .env
// file, an optional YAML file and the process environment, in that order.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dtm-labs/client/dtmcli"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type Config struct {
	ServiceName string `yaml:"service_name"`
	HTTPAddr    string `yaml:"http_addr"`
	LogLevel    string `yaml:"log_level"`
	// TwoPhaseCommit is the mode used by orchestrations that are not started by
	// an API caller (balance listener re-approvals).
	TwoPhaseCommit bool `yaml:"two_phase_commit"`

	Database     Database     `yaml:"database"`
	Telemetry    Telemetry    `yaml:"telemetry"`
	Kafka        Kafka        `yaml:"kafka"`
	Redis        Redis        `yaml:"redis"`
	Participants Participants `yaml:"participants"`
}

type Database struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	User            string `yaml:"user"`
	Password        string `yaml:"password"`
	Name            string `yaml:"name"`
	MaxConns        int    `yaml:"max_conns"`
	ConnectAttempts int    `yaml:"connect_attempts"`
}

// DSN renders the pgx pool connection string.
func (d Database) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable", d.User, d.Password, d.Host, d.Port, d.Name)
}

// DBConf renders the database/sql configuration used by the prepared
// transaction coordinator.
func (d Database) DBConf() dtmcli.DBConf {
	return dtmcli.DBConf{
		Driver:   "postgres",
		Host:     d.Host,
		Port:     int64(d.Port),
		User:     d.User,
		Password: d.Password,
		Db:       d.Name,
		Schema:   "public",
	}
}

type Telemetry struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Version      string `yaml:"version"`
}

type Kafka struct {
	Brokers      []string `yaml:"brokers"`
	BalanceTopic string   `yaml:"balance_topic"`
	GroupID      string   `yaml:"group_id"`
}

type Redis struct {
	Addr    string        `yaml:"addr"`
	CostTTL time.Duration `yaml:"cost_ttl"`
}

type Participants struct {
	PaymentsURL    string        `yaml:"payments_url"`
	ReserveURL     string        `yaml:"reserve_url"`
	Timeout        time.Duration `yaml:"timeout"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// Load builds the configuration of one service. serviceName, httpAddr and
// database are the defaults for that service.
func Load(serviceName, httpAddr, database string) (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		ServiceName: serviceName,
		HTTPAddr:    httpAddr,
		LogLevel:    "info",
		Database: Database{
			Host:            "localhost",
			Port:            5432,
			User:            "root",
			Password:        "pass",
			Name:            database,
			MaxConns:        25,
			ConnectAttempts: 30,
		},
		Telemetry: Telemetry{
			Enabled:      true,
			OTLPEndpoint: "localhost:4318",
			Version:      "1.0.0",
		},
		Kafka: Kafka{
			Brokers:      []string{"localhost:9092"},
			BalanceTopic: "account.balance",
			GroupID:      serviceName,
		},
		Redis: Redis{
			Addr:    "localhost:6379",
			CostTTL: 5 * time.Minute,
		},
		Participants: Participants{
			PaymentsURL:    "http://localhost:8082",
			ReserveURL:     "http://localhost:8081",
			Timeout:        10 * time.Second,
			ConnectTimeout: 3 * time.Second,
		},
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrapf(err, "read config file %s", path)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "parse config file %s", path)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	envString("SERVICE_NAME", &cfg.ServiceName)
	envString("HTTP_ADDR", &cfg.HTTPAddr)
	envString("LOG_LEVEL", &cfg.LogLevel)
	envString("DATABASE_HOST", &cfg.Database.Host)
	envString("DATABASE_USER", &cfg.Database.User)
	envString("DATABASE_PASSWORD", &cfg.Database.Password)
	envString("DATABASE_NAME", &cfg.Database.Name)
	envString("OTEL_EXPORTER_OTLP_ENDPOINT", &cfg.Telemetry.OTLPEndpoint)
	envString("SERVICE_VERSION", &cfg.Telemetry.Version)
	envString("KAFKA_BALANCE_TOPIC", &cfg.Kafka.BalanceTopic)
	envString("KAFKA_GROUP_ID", &cfg.Kafka.GroupID)
	envString("REDIS_ADDR", &cfg.Redis.Addr)
	envString("PAYMENTS_SERVICE_URL", &cfg.Participants.PaymentsURL)
	envString("RESERVE_SERVICE_URL", &cfg.Participants.ReserveURL)
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitCSV(v)
	}

	for _, f := range []func() error{
		func() error { return envInt("DATABASE_PORT", &cfg.Database.Port) },
		func() error { return envInt("DATABASE_MAX_CONNS", &cfg.Database.MaxConns) },
		func() error { return envInt("DATABASE_CONNECT_ATTEMPTS", &cfg.Database.ConnectAttempts) },
		func() error { return envBool("OTEL_ENABLED", &cfg.Telemetry.Enabled) },
		func() error { return envBool("TWO_PHASE_COMMIT", &cfg.TwoPhaseCommit) },
		func() error { return envDuration("ITEM_COST_TTL", &cfg.Redis.CostTTL) },
		func() error { return envDuration("RPC_TIMEOUT", &cfg.Participants.Timeout) },
		func() error { return envDuration("RPC_CONNECT_TIMEOUT", &cfg.Participants.ConnectTimeout) },
	} {
		if err := f(); err != nil {
			return err
		}
	}
	return nil
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return errors.Wrapf(err, "invalid %s", key)
	}
	*dst = n
	return nil
}

func envBool(key string, dst *bool) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return errors.Wrapf(err, "invalid %s", key)
	}
	*dst = b
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return errors.Wrapf(err, "invalid %s", key)
	}
	*dst = d
	return nil
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
