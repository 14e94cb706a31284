package config

import (
	"fmt"
	"net/url"
)

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific configuration.
// The libpq PG* variables plug in through ${PGHOST} style references.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"` // disable, require, verify-ca, verify-full
}

// DefaultDatabaseConfig returns the local development database settings
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Postgres: PostgresConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "arachnid",
			User:     "postgres",
			SSLMode:  "disable",
		},
	}
}

// ConnectionString returns the PostgreSQL connection string
func (p *PostgresConfig) ConnectionString() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     fmt.Sprintf("%s:%d", p.Host, p.Port),
		Path:     "/" + p.Database,
		RawQuery: url.Values{"sslmode": {p.SSLMode}}.Encode(),
	}
	return u.String()
}

// Validate checks that the database can be addressed
func (d *DatabaseConfig) Validate() error {
	if d.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if d.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if d.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}
	if d.Postgres.Port < 1 || d.Postgres.Port > 65535 {
		return fmt.Errorf("database.postgres.port must be between 1 and 65535")
	}
	return nil
}
